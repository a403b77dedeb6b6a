package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// GradeFinalYear is the grade level allowed into BECE past-paper mode.
const GradeFinalYear = "JHS 3"

// User represents a system user together with their gamification totals.
type User struct {
	ID            int64
	Username      string
	DisplayName   string
	PasswordHash  string
	Role          UserRole
	GradeLevel    string
	XP            int
	Coins         int
	LastDailyDate string // YYYY-MM-DD of the last daily challenge, empty if never
	Active        bool
	CreatedAt     time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ExamMode represents the kind of session a student is taking.
type ExamMode string

const (
	// ModePractice is untimed per-subject practice with flat rewards.
	ModePractice ExamMode = "practice"
	// ModeExam is a timed mock exam with grade-weighted rewards.
	ModeExam ExamMode = "exam"
	// ModeDaily is the once-per-day challenge with a completion bonus.
	ModeDaily ExamMode = "daily"
	// ModeBece is a timed BECE past-paper sitting, final-year students only.
	ModeBece ExamMode = "bece"
)

// ValidMode reports whether s names a known exam mode.
func ValidMode(s string) bool {
	switch ExamMode(s) {
	case ModePractice, ModeExam, ModeDaily, ModeBece:
		return true
	}
	return false
}

// Question represents one bank question. Choices maps choice keys ("a".."d")
// to choice text; a question with fewer than two non-empty choices is a
// free-response (theory) question and is never auto-graded.
type Question struct {
	ID         int64             `json:"id"`
	Subject    string            `json:"subject"`
	GradeLevel string            `json:"grade_level"`
	Prompt     string            `json:"prompt"`
	Choices    map[string]string `json:"choices,omitempty"`
	Answer     string            `json:"answer"` // choice key, or model answer text for theory
	IsDaily    bool              `json:"is_daily"`
	Year       int               `json:"year,omitempty"` // past-paper year, 0 for regular bank questions
}

// Objective reports whether the question is auto-gradable multiple choice:
// it must have at least two non-empty choices.
func (q Question) Objective() bool {
	n := 0
	for _, text := range q.Choices {
		if strings.TrimSpace(text) != "" {
			n++
		}
	}
	return n >= 2
}

// ExamHistory records one completed session for a user.
type ExamHistory struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Subject      string    `json:"subject"`
	Mode         ExamMode  `json:"mode"`
	Score        int       `json:"score"`
	Total        int       `json:"total"`
	XPAwarded    int       `json:"xp_awarded"`
	CoinsAwarded int       `json:"coins_awarded"`
	TakenAt      time.Time `json:"taken_at"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	QuestionCount    int            // questions per session, 0 means all available
	TimeLimits       map[string]int // per-subject exam durations in seconds
	DefaultTimeLimit int            // fallback exam duration in seconds
	DailyQuestions   int            // questions in the daily challenge
	Shuffle          bool           // randomize question order
	BasePath         string         // URL prefix for sub-path deployments (e.g. "/gh")
	SecureCookies    bool           // Set Secure flag on cookies (disable for local dev)
	FeedbackEnabled  bool           // theory feedback via LLM after submit
	AbandonedCutoff  time.Duration  // active sessions older than this are purged
}

// TimeLimitFor returns the exam duration in seconds for a subject.
func (c ServerConfig) TimeLimitFor(subject string) int {
	if sec, ok := c.TimeLimits[strings.ToLower(subject)]; ok {
		return sec
	}
	return c.DefaultTimeLimit
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Subject    string            `json:"subject"`
	GradeLevel string            `json:"grade_level"`
	Prompt     string            `json:"prompt"`
	Choices    map[string]string `json:"choices"`
	Answer     string            `json:"answer"`
	IsDaily    bool              `json:"is_daily"`
	Year       int               `json:"year"`
}
