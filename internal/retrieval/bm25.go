package retrieval

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/iwilltry42/bm25-go/bm25"

	"github.com/garyellow/course-advisor-go/internal/storage"
)

// BM25 parameters. k1=1.5, b=0.75 are the standard Okapi values.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// KeywordResult is a BM25 hit.
type KeywordResult struct {
	CourseID string
	Score    float64
	Rank     int // 1-indexed
}

// KeywordIndex is a BM25 index over course name, title and description.
// BM25 needs the whole corpus for IDF, so updates rebuild the index.
type KeywordIndex struct {
	mu     sync.RWMutex
	okapi  *bm25.BM25Okapi
	docIDs []string // corpus position -> course id
}

// NewKeywordIndex creates an empty index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{}
}

// Build replaces the index contents with courses.
func (idx *KeywordIndex) Build(courses []storage.Course) error {
	corpus := make([]string, 0, len(courses))
	ids := make([]string, 0, len(courses))
	for i := range courses {
		doc := courseDocument(&courses[i])
		if len(tokenize(doc)) == 0 {
			continue
		}
		corpus = append(corpus, doc)
		ids = append(ids, courses[i].CourseID)
	}

	var okapi *bm25.BM25Okapi
	if len(corpus) > 0 {
		var err error
		okapi, err = bm25.NewBM25Okapi(corpus, tokenize, bm25K1, bm25B, nil)
		if err != nil {
			return fmt.Errorf("failed to create BM25 index: %w", err)
		}
	}

	idx.mu.Lock()
	idx.okapi = okapi
	idx.docIDs = ids
	idx.mu.Unlock()
	return nil
}

// Search returns up to topN courses with a positive BM25 score, best first.
// Ties are broken by course id.
func (idx *KeywordIndex) Search(query string, topN int) ([]KeywordResult, error) {
	if idx == nil {
		return nil, nil
	}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.okapi == nil {
		return nil, nil
	}

	scores, err := idx.okapi.GetScores(tokens)
	if err != nil {
		return nil, fmt.Errorf("BM25 scoring failed: %w", err)
	}

	results := make([]KeywordResult, 0, len(scores))
	for docID, score := range scores {
		if score > 0 && docID < len(idx.docIDs) {
			results = append(results, KeywordResult{CourseID: idx.docIDs[docID], Score: score})
		}
	}
	slices.SortFunc(results, func(a, b KeywordResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.CourseID, b.CourseID)
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (idx *KeywordIndex) Count() int {
	if idx == nil {
		return 0
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docIDs)
}

func courseDocument(c *storage.Course) string {
	return strings.Join([]string{c.CourseName, c.Title, c.Description}, " ")
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit. CJK runs are emitted as single characters plus bigrams since
// they carry no spaces.
func tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			if w := word.String(); !stopwords[w] {
				tokens = append(tokens, w)
			}
			word.Reset()
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
			if i+1 < len(runes) && isCJK(runes[i+1]) {
				tokens = append(tokens, string(r)+string(runes[i+1]))
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "to": true,
	"in": true, "for": true, "on": true, "with": true, "is": true, "or": true,
}
