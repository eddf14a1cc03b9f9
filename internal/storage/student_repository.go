package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const upsertStudentQuery = `
	INSERT INTO students (user_id, major, degree_type, upcoming_semester, total_credits, completed_credits, remaining_credits, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		major = excluded.major,
		degree_type = excluded.degree_type,
		upcoming_semester = excluded.upcoming_semester,
		total_credits = excluded.total_credits,
		completed_credits = excluded.completed_credits,
		remaining_credits = excluded.remaining_credits,
		updated_at = excluded.updated_at
`

// SaveStudentsBatch inserts or updates student profiles in one transaction.
func (db *DB) SaveStudentsBatch(ctx context.Context, students []*Student) error {
	if len(students) == 0 {
		return nil
	}

	start := time.Now()
	now := start.Unix()
	err := db.ExecBatchContext(ctx, upsertStudentQuery, func(stmt *sql.Stmt) error {
		for _, s := range students {
			if _, err := stmt.ExecContext(ctx, s.UserID, nullString(s.Major), nullString(s.DegreeType),
				s.UpcomingSemester, s.TotalCredits, s.CompletedCredits, s.RemainingCredits, now); err != nil {
				return fmt.Errorf("failed to save student %s: %w", s.UserID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "batch operation completed",
		"operation", "SaveStudentsBatch",
		"count", len(students),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// GetStudentByID retrieves a student profile. Returns nil, nil if absent.
func (db *DB) GetStudentByID(ctx context.Context, userID string) (*Student, error) {
	query := `SELECT user_id, major, degree_type, upcoming_semester, total_credits, completed_credits, remaining_credits, updated_at
		FROM students WHERE user_id = ?`

	var (
		s                 Student
		major, degreeType sql.NullString
		updatedAt         int64
	)
	err := db.reader.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &major, &degreeType, &s.UpcomingSemester,
		&s.TotalCredits, &s.CompletedCredits, &s.RemainingCredits, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to query student",
			"user_id", userID,
			"error", err)
		return nil, fmt.Errorf("query student: %w", err)
	}

	s.Major = major.String
	s.DegreeType = degreeType.String
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

// SaveCompletedCoursesBatch records completed courses. Existing rows are updated.
func (db *DB) SaveCompletedCoursesBatch(ctx context.Context, completed []*CompletedCourse) error {
	if len(completed) == 0 {
		return nil
	}

	query := `
		INSERT INTO completed_courses (user_id, course_id, semester, year, gpa, credits)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, course_id) DO UPDATE SET
			semester = excluded.semester,
			year = excluded.year,
			gpa = excluded.gpa,
			credits = excluded.credits
	`
	return db.ExecBatchContext(ctx, query, func(stmt *sql.Stmt) error {
		for _, c := range completed {
			if _, err := stmt.ExecContext(ctx, c.UserID, c.CourseID, nullString(c.Semester), c.Year, c.Grade, c.Credits); err != nil {
				return fmt.Errorf("failed to save completed course %s/%s: %w", c.UserID, c.CourseID, err)
			}
		}
		return nil
	})
}

// GetCompletedCourseIDs returns the ids of every course userID has completed, sorted.
func (db *DB) GetCompletedCourseIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT course_id FROM completed_courses WHERE user_id = ? ORDER BY course_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query completed courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed course: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetStudentConstraint loads the credit budget, upcoming semester and
// completed set used for eligibility filtering. Returns nil, nil for an
// unknown student.
func (db *DB) GetStudentConstraint(ctx context.Context, userID string) (*StudentConstraint, error) {
	student, err := db.GetStudentByID(ctx, userID)
	if err != nil || student == nil {
		return nil, err
	}

	ids, err := db.GetCompletedCourseIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		completed[id] = struct{}{}
	}
	return &StudentConstraint{
		RemainingCredits: student.RemainingCredits,
		UpcomingSemester: student.UpcomingSemester,
		CompletedIDs:     completed,
	}, nil
}

// CountStudents returns the number of student profiles.
func (db *DB) CountStudents(ctx context.Context) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM students`)
}

func (db *DB) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := db.reader.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
