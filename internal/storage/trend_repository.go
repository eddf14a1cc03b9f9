package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveCourseTrendsBatch inserts or replaces yearly trend rows.
func (db *DB) SaveCourseTrendsBatch(ctx context.Context, trends []*CourseTrend) error {
	if len(trends) == 0 {
		return nil
	}
	query := `
		INSERT INTO course_trends (course_id, year, slots_filled, total_slots, avg_rating, slots_filled_time, avg_gpa, avg_hours_spent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(course_id, year) DO UPDATE SET
			slots_filled = excluded.slots_filled,
			total_slots = excluded.total_slots,
			avg_rating = excluded.avg_rating,
			slots_filled_time = excluded.slots_filled_time,
			avg_gpa = excluded.avg_gpa,
			avg_hours_spent = excluded.avg_hours_spent
	`
	return db.ExecBatchContext(ctx, query, func(stmt *sql.Stmt) error {
		for _, t := range trends {
			if _, err := stmt.ExecContext(ctx, t.CourseID, t.Year, t.SlotsFilled, t.TotalSlots,
				t.AvgRating, t.SlotsFilledTime, t.AvgGPA, t.AvgHoursSpent); err != nil {
				return fmt.Errorf("failed to save trend %s/%d: %w", t.CourseID, t.Year, err)
			}
		}
		return nil
	})
}

// GetCourseTrends returns a course's trends, newest year first.
func (db *DB) GetCourseTrends(ctx context.Context, courseID string) ([]CourseTrend, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT course_id, year, slots_filled, total_slots,
			COALESCE(avg_rating, 0), COALESCE(slots_filled_time, 0), COALESCE(avg_gpa, 0), COALESCE(avg_hours_spent, 0)
		FROM course_trends WHERE course_id = ? ORDER BY year DESC`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query course trends: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trends []CourseTrend
	for rows.Next() {
		var t CourseTrend
		if err := rows.Scan(&t.CourseID, &t.Year, &t.SlotsFilled, &t.TotalSlots,
			&t.AvgRating, &t.SlotsFilledTime, &t.AvgGPA, &t.AvgHoursSpent); err != nil {
			return nil, fmt.Errorf("scan course trend: %w", err)
		}
		trends = append(trends, t)
	}
	return trends, rows.Err()
}
