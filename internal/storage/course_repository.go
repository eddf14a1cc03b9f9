package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const courseColumns = `course_id, course_name, department, min_credits, max_credits, prerequisites,
	offered_semester, title, description, updated_at`

// SaveCoursesBatch inserts or updates catalog entries. A course saved
// without an embedding keeps the embedding it already had.
func (db *DB) SaveCoursesBatch(ctx context.Context, courses []*Course) error {
	if len(courses) == 0 {
		return nil
	}

	query := `
		INSERT INTO courses (course_id, course_name, department, min_credits, max_credits, prerequisites,
			offered_semester, title, description, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(course_id) DO UPDATE SET
			course_name = excluded.course_name,
			department = excluded.department,
			min_credits = excluded.min_credits,
			max_credits = excluded.max_credits,
			prerequisites = excluded.prerequisites,
			offered_semester = excluded.offered_semester,
			title = excluded.title,
			description = excluded.description,
			embedding = COALESCE(excluded.embedding, courses.embedding),
			updated_at = excluded.updated_at
	`

	start := time.Now()
	now := start.Unix()
	err := db.ExecBatchContext(ctx, query, func(stmt *sql.Stmt) error {
		for _, c := range courses {
			prereqs, err := json.Marshal(nonNil(c.Prerequisites))
			if err != nil {
				return fmt.Errorf("marshal prerequisites for %s: %w", c.CourseID, err)
			}
			if _, err := stmt.ExecContext(ctx, c.CourseID, c.CourseName, c.Department, c.MinCredits, c.MaxCredits,
				string(prereqs), c.OfferedSemester, c.Title, nullString(c.Description),
				embeddingValue(c.Embedding), now); err != nil {
				slog.ErrorContext(ctx, "failed to save course in batch",
					"course_id", c.CourseID,
					"error", err)
				return fmt.Errorf("failed to save course %s: %w", c.CourseID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	warnIfSlow(ctx, "SaveCoursesBatch", start, "count", len(courses))
	return nil
}

// UpdateCourseEmbeddings stores vectors for existing courses.
func (db *DB) UpdateCourseEmbeddings(ctx context.Context, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	start := time.Now()
	err := db.ExecBatchContext(ctx, `UPDATE courses SET embedding = ?, updated_at = ? WHERE course_id = ?`,
		func(stmt *sql.Stmt) error {
			now := time.Now().Unix()
			for id, v := range embeddings {
				if _, err := stmt.ExecContext(ctx, embeddingValue(v), now, id); err != nil {
					return fmt.Errorf("failed to update embedding for %s: %w", id, err)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}
	warnIfSlow(ctx, "UpdateCourseEmbeddings", start, "count", len(embeddings))
	return nil
}

// GetCourseByID retrieves one course with its embedding. Returns nil, nil if absent.
func (db *DB) GetCourseByID(ctx context.Context, courseID string) (*Course, error) {
	query := `SELECT ` + courseColumns + `, embedding FROM courses WHERE course_id = ?`
	rows, err := db.reader.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("query course: %w", err)
	}
	courses, err := scanCourses(rows, true)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, nil
	}
	return &courses[0], nil
}

// ListCourses returns up to limit courses ordered by course_id, without embeddings.
func (db *DB) ListCourses(ctx context.Context, limit int) ([]Course, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	rows, err := db.reader.QueryContext(ctx,
		`SELECT `+courseColumns+` FROM courses ORDER BY course_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return scanCourses(rows, false)
}

// GetAllCourses returns the whole catalog with embeddings.
func (db *DB) GetAllCourses(ctx context.Context) ([]Course, error) {
	start := time.Now()
	rows, err := db.reader.QueryContext(ctx,
		`SELECT `+courseColumns+`, embedding FROM courses ORDER BY course_id`)
	if err != nil {
		return nil, fmt.Errorf("get all courses: %w", err)
	}
	courses, err := scanCourses(rows, true)
	warnIfSlow(ctx, "GetAllCourses", start, "count", len(courses))
	return courses, err
}

// ListCreditEligibleCourses applies the credit and not-yet-completed
// filters in SQL. Semester and prerequisite checks are left to the caller.
func (db *DB) ListCreditEligibleCourses(ctx context.Context, userID string, remainingCredits int) ([]Course, error) {
	query := `SELECT ` + courseColumns + `, embedding FROM courses c
		WHERE (c.min_credits <= ? OR c.max_credits <= ?)
		AND NOT EXISTS (
			SELECT 1 FROM completed_courses cc WHERE cc.user_id = ? AND cc.course_id = c.course_id
		)
		ORDER BY c.course_id`

	start := time.Now()
	rows, err := db.reader.QueryContext(ctx, query, remainingCredits, remainingCredits, userID)
	if err != nil {
		return nil, fmt.Errorf("query eligible courses: %w", err)
	}
	courses, err := scanCourses(rows, true)
	warnIfSlow(ctx, "ListCreditEligibleCourses", start, "user_id", userID, "count", len(courses))
	return courses, err
}

// ListCoursesMissingEmbedding returns up to limit courses that have no embedding yet.
func (db *DB) ListCoursesMissingEmbedding(ctx context.Context, limit int) ([]Course, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE embedding IS NULL ORDER BY course_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list courses missing embedding: %w", err)
	}
	return scanCourses(rows, false)
}

// CountCourses returns the catalog size.
func (db *DB) CountCourses(ctx context.Context) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM courses`)
}

// CountCoursesMissingEmbedding returns how many courses still need an embedding.
func (db *DB) CountCoursesMissingEmbedding(ctx context.Context) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM courses WHERE embedding IS NULL`)
}

// scanCourses reads and closes rows. withEmbedding must match whether the
// query selected the embedding column last.
func scanCourses(rows *sql.Rows, withEmbedding bool) ([]Course, error) {
	defer func() { _ = rows.Close() }()

	var courses []Course
	for rows.Next() {
		var (
			c           Course
			prereqs     string
			description sql.NullString
			updatedAt   int64
			blob        []byte
		)
		dest := []any{&c.CourseID, &c.CourseName, &c.Department, &c.MinCredits, &c.MaxCredits, &prereqs,
			&c.OfferedSemester, &c.Title, &description, &updatedAt}
		if withEmbedding {
			dest = append(dest, &blob)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}

		if err := json.Unmarshal([]byte(prereqs), &c.Prerequisites); err != nil {
			return nil, fmt.Errorf("decode prerequisites for %s: %w", c.CourseID, err)
		}
		c.Description = description.String
		c.UpdatedAt = time.Unix(updatedAt, 0)

		if withEmbedding {
			v, err := DecodeEmbedding(blob)
			if err != nil {
				// A corrupt vector ranks as "no embedding" rather than failing the query.
				slog.Warn("invalid course embedding", "course_id", c.CourseID, "error", err)
			}
			c.Embedding = v
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
