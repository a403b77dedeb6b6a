package quiz

import (
	"context"

	"github.com/sankofa-edu/sankofa/internal/model"
)

// Filter selects candidate questions from a bank. Zero values mean no
// filtering on that field.
type Filter struct {
	Subject   string
	Grades    []string // grade levels to include; empty means any
	DailyOnly bool     // restrict to the daily challenge pool
	Year      int      // past-paper year, 0 means any
}

// QuestionSource supplies candidate questions for a session. Implementations
// guarantee no particular order and may return fewer questions than a caller
// hopes for; returning an empty slice is not an error at this layer.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, f Filter) ([]model.Question, error)
}

// SourceFunc adapts a function to the QuestionSource interface.
type SourceFunc func(ctx context.Context, f Filter) ([]model.Question, error)

// FetchQuestions calls fn.
func (fn SourceFunc) FetchQuestions(ctx context.Context, f Filter) ([]model.Question, error) {
	return fn(ctx, f)
}
