// Package storage provides SQLite persistence for the course catalog,
// student profiles, course trends and chat history, together with the
// repository interfaces the rest of the service depends on.
package storage

import (
	"context"
)

// StudentRepository defines the interface for student data operations.
type StudentRepository interface {
	GetStudentByID(ctx context.Context, userID string) (*Student, error)
	SaveStudentsBatch(ctx context.Context, students []*Student) error
	SaveCompletedCoursesBatch(ctx context.Context, completed []*CompletedCourse) error
	GetCompletedCourseIDs(ctx context.Context, userID string) ([]string, error)
	// GetStudentConstraint returns nil, nil for an unknown student.
	GetStudentConstraint(ctx context.Context, userID string) (*StudentConstraint, error)
	CountStudents(ctx context.Context) (int, error)
}

// CourseRepository defines the interface for catalog operations.
type CourseRepository interface {
	GetCourseByID(ctx context.Context, courseID string) (*Course, error)
	ListCourses(ctx context.Context, limit int) ([]Course, error)
	GetAllCourses(ctx context.Context) ([]Course, error)
	// ListCreditEligibleCourses returns courses, with embeddings, that fit
	// the credit budget and that userID has not completed.
	ListCreditEligibleCourses(ctx context.Context, userID string, remainingCredits int) ([]Course, error)
	ListCoursesMissingEmbedding(ctx context.Context, limit int) ([]Course, error)
	SaveCoursesBatch(ctx context.Context, courses []*Course) error
	UpdateCourseEmbeddings(ctx context.Context, embeddings map[string][]float32) error
	CountCourses(ctx context.Context) (int, error)
	CountCoursesMissingEmbedding(ctx context.Context) (int, error)
}

// TrendRepository defines the interface for course trend operations.
type TrendRepository interface {
	GetCourseTrends(ctx context.Context, courseID string) ([]CourseTrend, error)
	SaveCourseTrendsBatch(ctx context.Context, trends []*CourseTrend) error
}

// ChatRepository defines the interface for conversation history.
type ChatRepository interface {
	// SaveTurn upserts the session row and appends messages atomically.
	SaveTurn(ctx context.Context, session *ChatSession, messages []ChatMessage) error
	// GetChatSession returns nil, nil when the session does not exist.
	GetChatSession(ctx context.Context, sessionID string) (*ChatSession, error)
	GetChatMessages(ctx context.Context, sessionID string) ([]ChatMessage, error)
	ListChatSessions(ctx context.Context, userID string) ([]SessionSummary, error)
}

// HealthRepository defines the interface for health check operations.
type HealthRepository interface {
	// Ping verifies database connection is alive.
	Ping(ctx context.Context) error

	// Ready checks if database is ready to serve queries.
	Ready(ctx context.Context) error
}

// Repository is the aggregate interface implemented by *DB.
type Repository interface {
	StudentRepository
	CourseRepository
	TrendRepository
	ChatRepository
	HealthRepository
	Close() error
}

var (
	_ StudentRepository = (*DB)(nil)
	_ CourseRepository  = (*DB)(nil)
	_ TrendRepository   = (*DB)(nil)
	_ ChatRepository    = (*DB)(nil)
	_ HealthRepository  = (*DB)(nil)
	_ Repository        = (*DB)(nil)
)
