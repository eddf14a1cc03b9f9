package storage

import "time"

// Semester values a student can be enrolled for next.
const (
	SemesterFall   = "fall"
	SemesterSpring = "spring"
	SemesterWinter = "winter"
	SemesterSummer = "summer"
)

// Message roles stored in chat_messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Student is a student profile row.
type Student struct {
	UserID           string    `json:"user_id"`
	Major            string    `json:"major,omitempty"`
	DegreeType       string    `json:"degree_type,omitempty"`
	UpcomingSemester string    `json:"upcoming_semester"`
	TotalCredits     int       `json:"total_credits"`
	CompletedCredits int       `json:"completed_credits"`
	RemainingCredits int       `json:"remaining_credits"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CompletedCourse records a course a student has finished.
type CompletedCourse struct {
	UserID   string  `json:"user_id"`
	CourseID string  `json:"course_id"`
	Semester string  `json:"semester,omitempty"`
	Year     int     `json:"year,omitempty"`
	Grade    float64 `json:"gpa,omitempty"`
	Credits  int     `json:"credits"`
}

// StudentConstraint is what retrieval needs to know about a student.
type StudentConstraint struct {
	RemainingCredits int
	UpcomingSemester string
	CompletedIDs     map[string]struct{}
}

// HasCompleted reports whether courseID is in the completed set.
func (c *StudentConstraint) HasCompleted(courseID string) bool {
	_, ok := c.CompletedIDs[courseID]
	return ok
}

// Course is a catalog entry. Embedding is nil until the course is embedded.
type Course struct {
	CourseID        string    `json:"course_id"`
	CourseName      string    `json:"course_name"`
	Department      string    `json:"department"`
	MinCredits      int       `json:"min_credits"`
	MaxCredits      int       `json:"max_credits"`
	Prerequisites   []string  `json:"prerequisites"`
	OfferedSemester string    `json:"offered_semester"`
	Title           string    `json:"course_title"`
	Description     string    `json:"course_description"`
	Embedding       []float32 `json:"-"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CourseTrend is one year of enrollment and rating statistics for a course.
type CourseTrend struct {
	CourseID        string  `json:"course_id"`
	Year            int     `json:"year"`
	SlotsFilled     int     `json:"slots_filled"`
	TotalSlots      int     `json:"total_slots"`
	AvgRating       float64 `json:"avg_rating"`
	SlotsFilledTime int     `json:"slots_filled_time"`
	AvgGPA          float64 `json:"avg_gpa"`
	AvgHoursSpent   float64 `json:"avg_hours_spent"`
}

// ChatSession is the persisted metadata of a conversation.
type ChatSession struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// ChatMessage is one persisted utterance.
type ChatMessage struct {
	ID        int64     `json:"message_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is a session listing row with its opening user message.
type SessionSummary struct {
	ChatSession
	FirstMessage string `json:"first_message,omitempty"`
	MessageCount int    `json:"message_count"`
}
