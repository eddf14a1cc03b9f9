package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/garyellow/course-advisor-go/internal/storage"
)

// catalogFile is the registrar export: {"courses": [...]}.
type catalogFile struct {
	Courses []catalogEntry `json:"courses"`
}

type catalogEntry struct {
	CourseID      string   `json:"courseId"`
	Subject       string   `json:"subject"`
	CatalogNumber string   `json:"catalogNumber"`
	MinCredits    int      `json:"minCredits"`
	MaxCredits    int      `json:"maxCredits"`
	Prerequisites []string `json:"prerequisites"`
	Title         string   `json:"title"`
	CourseDetails struct {
		Description      string `json:"description"`
		TypicallyOffered string `json:"typicallyOffered"`
	} `json:"courseDetails"`
}

// trendEntry is one row of the enrollment history export.
type trendEntry struct {
	CourseID          string  `json:"course_id"`
	Year              int     `json:"year"`
	TotalSlots        int     `json:"total_slots"`
	FilledSlots       int     `json:"filled_slots"`
	TimeToFill        int     `json:"time_to_fill"`
	AverageGPA        float64 `json:"average_gpa"`
	AverageHoursSpent float64 `json:"average_hours_spent"`
	Rating            float64 `json:"rating"`
}

// parseCatalog converts a catalog export into courses. Entries without a
// courseId are skipped; a repeated courseId keeps its first entry.
func parseCatalog(r io.Reader) ([]*storage.Course, int, error) {
	var file catalogFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, 0, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Courses))
	courses := make([]*storage.Course, 0, len(file.Courses))
	skipped := 0
	for _, e := range file.Courses {
		id := strings.TrimSpace(e.CourseID)
		if id == "" {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			skipped++
			continue
		}
		seen[id] = struct{}{}
		courses = append(courses, e.toCourse(id))
	}
	return courses, skipped, nil
}

func (e *catalogEntry) toCourse(id string) *storage.Course {
	subject := strings.TrimSpace(e.Subject)
	department := subject
	if head, _, ok := strings.Cut(subject, "-"); ok {
		department = head
	}
	prereqs := make([]string, 0, len(e.Prerequisites))
	for _, p := range e.Prerequisites {
		if p = strings.TrimSpace(p); p != "" {
			prereqs = append(prereqs, p)
		}
	}
	return &storage.Course{
		CourseID:        id,
		CourseName:      strings.TrimSpace(subject + " " + strings.TrimSpace(e.CatalogNumber)),
		Department:      department,
		MinCredits:      e.MinCredits,
		MaxCredits:      e.MaxCredits,
		Prerequisites:   prereqs,
		OfferedSemester: strings.TrimSpace(e.CourseDetails.TypicallyOffered),
		Title:           strings.TrimSpace(e.Title),
		Description:     strings.TrimSpace(e.CourseDetails.Description),
	}
}

// parseTrends converts an enrollment history export into trend rows.
func parseTrends(r io.Reader) ([]*storage.CourseTrend, error) {
	var entries []trendEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode trends: %w", err)
	}
	trends := make([]*storage.CourseTrend, 0, len(entries))
	for _, e := range entries {
		if e.CourseID == "" {
			continue
		}
		trends = append(trends, &storage.CourseTrend{
			CourseID:        e.CourseID,
			Year:            e.Year,
			SlotsFilled:     e.FilledSlots,
			TotalSlots:      e.TotalSlots,
			AvgRating:       e.Rating,
			SlotsFilledTime: e.TimeToFill,
			AvgGPA:          e.AverageGPA,
			AvgHoursSpent:   e.AverageHoursSpent,
		})
	}
	return trends, nil
}

// parseStudents reads a JSON array of student profiles. RemainingCredits
// is derived when the export leaves it out.
func parseStudents(r io.Reader) ([]*storage.Student, error) {
	var students []*storage.Student
	if err := json.NewDecoder(r).Decode(&students); err != nil {
		return nil, fmt.Errorf("decode students: %w", err)
	}
	out := students[:0]
	for _, s := range students {
		if s == nil || strings.TrimSpace(s.UserID) == "" {
			continue
		}
		if s.RemainingCredits == 0 && s.TotalCredits > s.CompletedCredits {
			s.RemainingCredits = s.TotalCredits - s.CompletedCredits
		}
		out = append(out, s)
	}
	return out, nil
}

// parseCompleted reads a JSON array of completed course records.
func parseCompleted(r io.Reader) ([]*storage.CompletedCourse, error) {
	var completed []*storage.CompletedCourse
	if err := json.NewDecoder(r).Decode(&completed); err != nil {
		return nil, fmt.Errorf("decode completed courses: %w", err)
	}
	out := completed[:0]
	for _, c := range completed {
		if c != nil && c.UserID != "" && c.CourseID != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// readFile opens path and hands it to parse.
func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return parse(f)
}
