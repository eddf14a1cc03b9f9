package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/garyellow/course-advisor-go/internal/storage"
)

// CatalogLoader supplies the full catalog with embeddings.
type CatalogLoader interface {
	GetAllCourses(ctx context.Context) ([]storage.Course, error)
}

// CatalogHit is a catalog search result.
type CatalogHit struct {
	Course      storage.Course `json:"course"`
	Score       float64        `json:"score"`
	Similarity  float64        `json:"similarity_score"`
	KeywordRank int            `json:"keyword_rank,omitempty"`
	VectorRank  int            `json:"vector_rank,omitempty"`
}

// CatalogSearcher answers free-text catalog queries without student
// constraints. It keeps the catalog in memory; call Reload after the
// catalog or its embeddings change.
type CatalogSearcher struct {
	loader   CatalogLoader
	embedder Embedder
	keywords *KeywordIndex

	mu      sync.RWMutex
	courses map[string]storage.Course
	order   []string // course ids with embeddings, sorted
}

// NewCatalogSearcher creates a searcher. embedder may be nil for keyword-only search.
func NewCatalogSearcher(loader CatalogLoader, embedder Embedder) *CatalogSearcher {
	return &CatalogSearcher{
		loader:   loader,
		embedder: embedder,
		keywords: NewKeywordIndex(),
		courses:  make(map[string]storage.Course),
	}
}

// Reload rebuilds the in-memory catalog and keyword index.
func (s *CatalogSearcher) Reload(ctx context.Context) error {
	courses, err := s.loader.GetAllCourses(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := s.keywords.Build(courses); err != nil {
		return err
	}

	byID := make(map[string]storage.Course, len(courses))
	var order []string
	for _, c := range courses {
		byID[c.CourseID] = c
		if len(c.Embedding) > 0 {
			order = append(order, c.CourseID)
		}
	}
	slices.Sort(order)

	s.mu.Lock()
	s.courses = byID
	s.order = order
	s.mu.Unlock()

	slog.InfoContext(ctx, "catalog index rebuilt",
		"courses", len(courses),
		"embedded", len(order))
	return nil
}

// Size returns the number of courses loaded.
func (s *CatalogSearcher) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.courses)
}

// Search runs BM25 and vector search and fuses them with RRF. When the
// query cannot be embedded it degrades to keyword results alone.
func (s *CatalogSearcher) Search(ctx context.Context, query string, limit int) ([]CatalogHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	pool := limit * 3

	keywordHits, err := s.keywords.Search(query, pool)
	if err != nil {
		return nil, err
	}
	keywordIDs := make([]string, len(keywordHits))
	for i, h := range keywordHits {
		keywordIDs[i] = h.CourseID
	}

	var queryVec []float32
	if s.embedder != nil {
		queryVec, err = s.embedder.EmbedOne(ctx, query)
		if err != nil {
			slog.WarnContext(ctx, "catalog search falling back to keywords only", "error", err)
			queryVec = nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sims := make(map[string]float64)
	var vectorIDs []string
	if len(queryVec) > 0 {
		type scored struct {
			id  string
			sim float64
		}
		ranked := make([]scored, 0, len(s.order))
		for _, id := range s.order {
			if sim := CosineSimilarity(queryVec, s.courses[id].Embedding); sim > 0 {
				ranked = append(ranked, scored{id, sim})
				sims[id] = sim
			}
		}
		slices.SortStableFunc(ranked, func(a, b scored) int { return cmp.Compare(b.sim, a.sim) })
		for i := 0; i < len(ranked) && i < pool; i++ {
			vectorIDs = append(vectorIDs, ranked[i].id)
		}
	}

	fused := FuseRRF(keywordIDs, vectorIDs, DefaultKeywordWeight, limit)
	hits := make([]CatalogHit, 0, len(fused))
	for _, f := range fused {
		c, ok := s.courses[f.CourseID]
		if !ok {
			continue
		}
		c.Embedding = nil
		hits = append(hits, CatalogHit{
			Course:      c,
			Score:       f.Score,
			Similarity:  sims[f.CourseID],
			KeywordRank: f.KeywordRank,
			VectorRank:  f.VectorRank,
		})
	}
	return hits, nil
}
