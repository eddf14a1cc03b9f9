package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all tables and indexes. Statements are idempotent.
func InitSchema(ctx context.Context, db *sql.DB) error {
	steps := []struct {
		name  string
		query string
	}{
		{"students", `
		CREATE TABLE IF NOT EXISTS students (
			user_id TEXT PRIMARY KEY,
			major TEXT,
			degree_type TEXT,
			upcoming_semester TEXT NOT NULL CHECK(upcoming_semester IN ('fall', 'spring', 'winter', 'summer')),
			total_credits INTEGER NOT NULL DEFAULT 0,
			completed_credits INTEGER NOT NULL DEFAULT 0,
			remaining_credits INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);`},
		{"courses", `
		CREATE TABLE IF NOT EXISTS courses (
			course_id TEXT PRIMARY KEY,
			course_name TEXT NOT NULL,
			department TEXT NOT NULL,
			min_credits INTEGER NOT NULL,
			max_credits INTEGER NOT NULL,
			prerequisites TEXT NOT NULL DEFAULT '[]',
			offered_semester TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			embedding BLOB,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_courses_department ON courses(department);
		CREATE INDEX IF NOT EXISTS idx_courses_credits ON courses(min_credits, max_credits);`},
		{"completed_courses", `
		CREATE TABLE IF NOT EXISTS completed_courses (
			user_id TEXT NOT NULL REFERENCES students(user_id) ON DELETE CASCADE,
			course_id TEXT NOT NULL,
			semester TEXT,
			year INTEGER,
			gpa REAL,
			credits INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, course_id)
		);`},
		{"course_trends", `
		CREATE TABLE IF NOT EXISTS course_trends (
			course_id TEXT NOT NULL,
			year INTEGER NOT NULL,
			slots_filled INTEGER NOT NULL,
			total_slots INTEGER NOT NULL,
			avg_rating REAL,
			slots_filled_time INTEGER,
			avg_gpa REAL,
			avg_hours_spent REAL,
			PRIMARY KEY (course_id, year)
		);`},
		{"chat_sessions", `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			created_at INTEGER NOT NULL,
			last_active INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, last_active);`},
		{"chat_messages", `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES chat_sessions(session_id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id);`},
	}

	for _, s := range steps {
		if _, err := db.ExecContext(ctx, s.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.name, err)
		}
	}
	return nil
}
