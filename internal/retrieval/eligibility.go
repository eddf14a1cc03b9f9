package retrieval

import (
	"math"
	"strings"

	"github.com/garyellow/course-advisor-go/internal/storage"
	"golang.org/x/text/cases"
)

// Eligible reports whether a student may take course next semester:
// the credit budget fits, the course is offered that semester, the
// course is not already completed and every prerequisite is completed.
//
// The credit check passes when either bound fits the remaining budget,
// so a variable-credit course is eligible when its minimum fits.
func Eligible(course *storage.Course, constraint *storage.StudentConstraint) bool {
	if course == nil || constraint == nil {
		return false
	}
	if course.MinCredits > constraint.RemainingCredits && course.MaxCredits > constraint.RemainingCredits {
		return false
	}
	if !OfferedIn(course.OfferedSemester, constraint.UpcomingSemester) {
		return false
	}
	if constraint.HasCompleted(course.CourseID) {
		return false
	}
	return PrerequisitesMet(course.Prerequisites, constraint)
}

// OfferedIn reports whether semester appears, ignoring case, in the
// course's free-text offering field (e.g. "Fall Term, Spring Term").
func OfferedIn(offered, semester string) bool {
	semester = strings.TrimSpace(semester)
	if semester == "" {
		return false
	}
	fold := cases.Fold()
	return strings.Contains(fold.String(offered), fold.String(semester))
}

// PrerequisitesMet reports whether every non-empty prerequisite id is in
// the completed set. An empty list is always met.
func PrerequisitesMet(prereqs []string, constraint *storage.StudentConstraint) bool {
	for _, p := range prereqs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !constraint.HasCompleted(p) {
			return false
		}
	}
	return true
}

// CosineSimilarity returns 1 - cosine distance clamped to [0, 1].
// Missing vectors, mismatched dimensions and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim), sim < 0:
		return 0
	case sim > 1:
		return 1
	default:
		return sim
	}
}
