package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/course-advisor-go/internal/storage"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"Intro to Machine-Learning", []string{"intro", "machine", "learning"}},
		{"CSCI-B 551: Elements of AI", []string{"csci", "b", "551", "elements", "ai"}},
		{"機器學習", []string{"機", "機器", "器", "器學", "學", "學習", "習"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenize(tt.in), tt.in)
	}
}

func TestFuseRRF(t *testing.T) {
	t.Parallel()

	got := FuseRRF([]string{"A", "B"}, []string{"B", "C"}, DefaultKeywordWeight, 0)
	require.Len(t, got, 3)

	assert.Equal(t, "B", got[0].CourseID, "present in both lists")
	assert.Equal(t, 2, got[0].KeywordRank)
	assert.Equal(t, 1, got[0].VectorRank)
	assert.InDelta(t, 0.4/62+0.6/61, got[0].Score, 1e-12)

	// C (vector rank 2) outweighs A (keyword rank 1) at 0.6/0.4.
	assert.Equal(t, []string{"B", "C", "A"}, []string{got[0].CourseID, got[1].CourseID, got[2].CourseID})

	assert.Len(t, FuseRRF([]string{"A", "B", "C"}, nil, 2, 2), 2, "topN applies and weight is clamped")
	assert.Empty(t, FuseRRF(nil, nil, 0.5, 5))

	// Equal scores fall back to course id.
	tied := FuseRRF([]string{"Z"}, nil, 1, 0)
	tied = append(tied, FuseRRF([]string{"Y"}, nil, 1, 0)...)
	assert.Equal(t, tied[0].Score, tied[1].Score)
	sorted := FuseRRF([]string{"Z", "Y"}, []string{"Y", "Z"}, 0.5, 0)
	assert.Equal(t, "Y", sorted[0].CourseID)
}

type catalogStub struct {
	courses []storage.Course
	err     error
}

func (c *catalogStub) GetAllCourses(context.Context) ([]storage.Course, error) {
	return c.courses, c.err
}

func sampleCatalog() []storage.Course {
	return []storage.Course{
		{CourseID: "ML", CourseName: "CSCI-B 555", Title: "Machine Learning", Description: "Supervised and unsupervised learning", Embedding: []float32{1, 0}},
		{CourseID: "HCI", CourseName: "INFO-I 300", Title: "Human Computer Interaction", Description: "Design and evaluation of interfaces", Embedding: []float32{0, 1}},
		{CourseID: "DB", CourseName: "CSCI-P 565", Title: "Databases", Description: "Relational systems and query processing"},
	}
}

func TestKeywordIndex(t *testing.T) {
	t.Parallel()

	idx := NewKeywordIndex()
	res, err := idx.Search("learning", 5)
	require.NoError(t, err)
	assert.Empty(t, res, "empty index")

	require.NoError(t, idx.Build(sampleCatalog()))
	assert.Equal(t, 3, idx.Count())

	res, err = idx.Search("machine learning", 5)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "ML", res[0].CourseID)
	assert.Equal(t, 1, res[0].Rank)

	res, err = idx.Search("the of", 5)
	require.NoError(t, err)
	assert.Empty(t, res, "stopwords only")
}

func TestCatalogSearcher(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{vec: []float32{0, 1}}
	s := NewCatalogSearcher(&catalogStub{courses: sampleCatalog()}, emb)
	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 3, s.Size())

	hits, err := s.Search(context.Background(), "interfaces design", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "HCI", hits[0].Course.CourseID, "keyword and vector agree")
	assert.Nil(t, hits[0].Course.Embedding)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.LessOrEqual(t, len(hits), 2)

	none, err := s.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCatalogSearcher_KeywordFallback(t *testing.T) {
	t.Parallel()

	s := NewCatalogSearcher(&catalogStub{courses: sampleCatalog()}, &stubEmbedder{err: errors.New("gateway down")})
	require.NoError(t, s.Reload(context.Background()))

	hits, err := s.Search(context.Background(), "relational query", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "DB", hits[0].Course.CourseID)
	assert.Zero(t, hits[0].VectorRank)
}

func TestCatalogSearcher_ReloadError(t *testing.T) {
	t.Parallel()

	s := NewCatalogSearcher(&catalogStub{err: errors.New("boom")}, nil)
	assert.Error(t, s.Reload(context.Background()))
}
