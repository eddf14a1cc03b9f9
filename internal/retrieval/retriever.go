// Package retrieval ranks catalog courses against free-text goals.
//
// Retriever answers "which courses can this student take next semester
// that match this goal": eligibility filtering (credits, semester,
// completion, prerequisites) followed by cosine ranking against the goal
// embedding. CatalogSearcher answers unconstrained catalog queries with
// BM25 keyword search fused with vector search.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/storage"
)

// DefaultTopN is the number of candidates returned when the caller does not say.
const DefaultTopN = 10

// CandidateCourse is an eligible course ranked against a goal.
type CandidateCourse struct {
	CourseID        string   `json:"course_id"`
	Name            string   `json:"course_name"`
	Department      string   `json:"department"`
	CreditRange     [2]int   `json:"credit_range"`
	Title           string   `json:"course_title"`
	Description     string   `json:"course_description"`
	Prerequisites   []string `json:"prerequisites"`
	OfferedSemester string   `json:"offered_semester"`
	Similarity      float64  `json:"similarity_score"`
}

// Embedder turns text into a vector.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence the retriever reads.
type Store interface {
	GetStudentConstraint(ctx context.Context, userID string) (*storage.StudentConstraint, error)
	ListCreditEligibleCourses(ctx context.Context, userID string, remainingCredits int) ([]storage.Course, error)
}

// Recorder receives retrieval outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordRetrieval(status string, candidates int, duration float64)
}

// Retriever performs eligibility-filtered semantic retrieval.
type Retriever struct {
	embedder    Embedder
	store       Store
	recorder    Recorder
	defaultTopN int
}

// NewRetriever creates a retriever. recorder may be nil. topN <= 0 uses DefaultTopN.
func NewRetriever(embedder Embedder, store Store, recorder Recorder, topN int) *Retriever {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Retriever{embedder: embedder, store: store, recorder: recorder, defaultTopN: topN}
}

// Retrieve returns up to topN courses userID is eligible for, ranked by
// similarity to the goal phrases (joined with spaces) and then by
// ascending course id.
//
// Errors wrap apperrors.ErrEmbeddingUnavailable when the goal cannot be
// embedded and apperrors.ErrRetrievalUnavailable when persistence fails.
// An unknown student, or one with nothing eligible, yields an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, userID string, goal []string, topN int) ([]CandidateCourse, error) {
	start := time.Now()
	if topN <= 0 {
		topN = r.defaultTopN
	}

	candidates, err := r.retrieve(ctx, userID, strings.TrimSpace(strings.Join(goal, " ")), topN)

	status := "success"
	switch {
	case errors.Is(err, apperrors.ErrEmbeddingUnavailable):
		status = "embedding_error"
	case err != nil:
		status = "store_error"
	case len(candidates) == 0:
		status = "empty"
	}
	if r.recorder != nil {
		r.recorder.RecordRetrieval(status, len(candidates), time.Since(start).Seconds())
	}

	if err != nil {
		slog.WarnContext(ctx, "retrieval failed",
			"status", status,
			"error", err)
		return nil, err
	}
	slog.DebugContext(ctx, "retrieval completed",
		"candidates", len(candidates),
		"duration_ms", time.Since(start).Milliseconds())
	return candidates, nil
}

func (r *Retriever) retrieve(ctx context.Context, userID, goal string, topN int) ([]CandidateCourse, error) {
	query, err := r.embedder.EmbedOne(ctx, goal)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrEmbeddingUnavailable, err)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", apperrors.ErrEmbeddingUnavailable)
	}

	constraint, err := r.store.GetStudentConstraint(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load student: %w", apperrors.ErrRetrievalUnavailable, err)
	}
	if constraint == nil {
		slog.InfoContext(ctx, "retrieval for unknown student", "user_id", userID)
		return []CandidateCourse{}, nil
	}

	courses, err := r.store.ListCreditEligibleCourses(ctx, userID, constraint.RemainingCredits)
	if err != nil {
		return nil, fmt.Errorf("%w: load courses: %w", apperrors.ErrRetrievalUnavailable, err)
	}

	candidates := make([]CandidateCourse, 0, len(courses))
	for i := range courses {
		c := &courses[i]
		if !Eligible(c, constraint) {
			continue
		}
		candidates = append(candidates, toCandidate(c, CosineSimilarity(query, c.Embedding)))
	}

	rankCandidates(candidates)
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates, nil
}

// rankCandidates sorts by similarity descending, then course id ascending.
func rankCandidates(candidates []CandidateCourse) {
	slices.SortFunc(candidates, func(a, b CandidateCourse) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.CourseID, b.CourseID)
	})
}

func toCandidate(c *storage.Course, similarity float64) CandidateCourse {
	return CandidateCourse{
		CourseID:        c.CourseID,
		Name:            c.CourseName,
		Department:      c.Department,
		CreditRange:     [2]int{c.MinCredits, c.MaxCredits},
		Title:           c.Title,
		Description:     c.Description,
		Prerequisites:   c.Prerequisites,
		OfferedSemester: c.OfferedSemester,
		Similarity:      similarity,
	}
}
