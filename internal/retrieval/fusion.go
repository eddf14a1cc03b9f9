package retrieval

import (
	"cmp"
	"slices"
)

const (
	// RRFConstant is k in the RRF formula 1 / (k + rank).
	RRFConstant = 60

	// DefaultKeywordWeight gives BM25 40% and vector search 60% of the fused score.
	DefaultKeywordWeight = 0.4
)

// FusedResult is a course ranked by Reciprocal Rank Fusion.
type FusedResult struct {
	CourseID    string
	Score       float64
	KeywordRank int // 0 if absent from keyword results
	VectorRank  int // 0 if absent from vector results
}

// FuseRRF combines two ranked id lists:
//
//	score(d) = w / (k + rank_keyword) + (1 - w) / (k + rank_vector)
//
// keywordWeight is clamped to [0, 1]. Results are ordered by score, then
// course id, and cut to topN when topN > 0.
func FuseRRF(keywordIDs, vectorIDs []string, keywordWeight float64, topN int) []FusedResult {
	keywordWeight = min(max(keywordWeight, 0), 1)
	vectorWeight := 1 - keywordWeight

	byID := make(map[string]*FusedResult, len(keywordIDs)+len(vectorIDs))
	get := func(id string) *FusedResult {
		r, ok := byID[id]
		if !ok {
			r = &FusedResult{CourseID: id}
			byID[id] = r
		}
		return r
	}

	for i, id := range keywordIDs {
		r := get(id)
		if r.KeywordRank != 0 {
			continue
		}
		r.KeywordRank = i + 1
		r.Score += keywordWeight / float64(RRFConstant+i+1)
	}
	for i, id := range vectorIDs {
		r := get(id)
		if r.VectorRank != 0 {
			continue
		}
		r.VectorRank = i + 1
		r.Score += vectorWeight / float64(RRFConstant+i+1)
	}

	results := make([]FusedResult, 0, len(byID))
	for _, r := range byID {
		results = append(results, *r)
	}
	slices.SortFunc(results, func(a, b FusedResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.CourseID, b.CourseID)
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}
