package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/sankofa-edu/sankofa/internal/model"
)

// Phase is the lifecycle state of a session. Phases only move forward:
// NotStarted -> Active -> Submitted.
type Phase string

const (
	// PhaseNotStarted is the phase before Start has produced a session.
	PhaseNotStarted Phase = "not_started"
	// PhaseActive is the phase during which answers and navigation are accepted.
	PhaseActive Phase = "active"
	// PhaseSubmitted is the terminal phase.
	PhaseSubmitted Phase = "submitted"
)

// Sampling selects how candidate questions become the session's question set.
type Sampling string

const (
	// SamplingRandom shuffles the bank and truncates to the requested count.
	SamplingRandom Sampling = "random"
	// SamplingFixed keeps the bank order (past papers are sat in print order).
	SamplingFixed Sampling = "fixed"
)

var (
	// ErrEmptyBank means no questions matched the session filter.
	ErrEmptyBank = errors.New("no questions available for this selection")
	// ErrIndexOutOfRange means a question index outside the session was used.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrInvalidPhase means an operation was invoked outside its valid phase.
	ErrInvalidPhase = errors.New("operation not valid in current session phase")
	// ErrUntimed means Tick was called on a session without a time limit.
	ErrUntimed = errors.New("session has no time limit")
)

// Config describes one session attempt.
type Config struct {
	Subject       string
	Grades        []string // grade scope; empty means any grade
	Year          int      // past-paper year filter, 0 means any
	QuestionCount int      // target sample size, 0 means all available
	TimeLimit     int      // seconds; 0 means untimed
	Sampling      Sampling
	RewardMode    RewardMode
	Daily         bool // daily challenge: draws from the daily pool and earns the completion bonus
}

// Session is one bounded attempt at a sampled set of questions. A Session is
// owned by a single logical thread of control; it does no locking of its own.
type Session struct {
	cfg       Config
	questions []model.Question
	answers   map[int]string
	current   int
	remaining int
	phase     Phase
	report    *Report
}

// Report is the immutable outcome of a submitted session.
type Report struct {
	ObjectiveScore int     `json:"objective_score"`
	ObjectiveTotal int     `json:"objective_total"`
	TheoryCount    int     `json:"theory_count"`
	PerQuestion    []*bool `json:"per_question"` // nil entries are not auto-gradable
	XPAwarded      int     `json:"xp_awarded"`
	CoinsAwarded   int     `json:"coins_awarded"`
}

// Start fetches candidate questions, samples them per cfg, and returns an
// Active session. A bank smaller than cfg.QuestionCount is used whole; an
// empty bank returns ErrEmptyBank.
func Start(ctx context.Context, cfg Config, src QuestionSource) (*Session, error) {
	candidates, err := src.FetchQuestions(ctx, Filter{
		Subject:   cfg.Subject,
		Grades:    cfg.Grades,
		DailyOnly: cfg.Daily,
		Year:      cfg.Year,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyBank
	}

	questions := make([]model.Question, len(candidates))
	copy(questions, candidates)
	if cfg.Sampling == SamplingRandom {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if cfg.QuestionCount > 0 && cfg.QuestionCount < len(questions) {
		questions = questions[:cfg.QuestionCount]
	}

	return &Session{
		cfg:       cfg,
		questions: questions,
		answers:   make(map[int]string),
		remaining: cfg.TimeLimit,
		phase:     PhaseActive,
	}, nil
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// Config returns the configuration the session was started with.
func (s *Session) Config() Config { return s.cfg }

// Questions returns the session's frozen question sequence. Callers must not
// modify the returned slice.
func (s *Session) Questions() []model.Question { return s.questions }

// Current returns the cursor index.
func (s *Session) Current() int { return s.current }

// Timed reports whether the session has a countdown.
func (s *Session) Timed() bool { return s.cfg.TimeLimit > 0 }

// Remaining returns the remaining seconds; meaningless for untimed sessions.
func (s *Session) Remaining() int { return s.remaining }

// Answer returns the recorded answer at index, if any.
func (s *Session) Answer(index int) (string, bool) {
	v, ok := s.answers[index]
	return v, ok
}

// Answers returns a copy of all recorded answers keyed by question index.
func (s *Session) Answers() map[int]string {
	out := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Report returns the final report, or nil before submission.
func (s *Session) Report() *Report { return s.report }

// RecordAnswer stores value as the answer at index, overwriting any prior
// answer (students may revisit questions). Valid only while Active.
func (s *Session) RecordAnswer(index int, value string) error {
	if s.phase != PhaseActive {
		return ErrInvalidPhase
	}
	if index < 0 || index >= len(s.questions) {
		return ErrIndexOutOfRange
	}
	s.answers[index] = value
	return nil
}

// Navigate moves the cursor to toIndex. Out-of-range targets are rejected
// rather than clamped; a bad target is a caller bug, not user input.
func (s *Session) Navigate(toIndex int) error {
	if s.phase != PhaseActive {
		return ErrInvalidPhase
	}
	if toIndex < 0 || toIndex >= len(s.questions) {
		return ErrIndexOutOfRange
	}
	s.current = toIndex
	return nil
}

// Tick advances the countdown by elapsed seconds. When the clock reaches
// zero the session submits itself synchronously, exactly once, and the
// resulting report is returned. Before expiry Tick returns (nil, nil).
func (s *Session) Tick(elapsed int) (*Report, error) {
	if s.phase != PhaseActive {
		return nil, ErrInvalidPhase
	}
	if !s.Timed() {
		return nil, ErrUntimed
	}
	if elapsed < 0 {
		elapsed = 0
	}
	s.remaining -= elapsed
	if s.remaining > 0 {
		return nil, nil
	}
	s.remaining = 0
	return s.Submit()
}

// Submit transitions the session to Submitted and produces the report.
// Submit is idempotent: a second call (e.g. a manual submit racing the timer's
// auto-submit) returns the same report and is not an error.
func (s *Session) Submit() (*Report, error) {
	if s.phase == PhaseSubmitted {
		return s.report, nil
	}
	if s.phase != PhaseActive {
		return nil, ErrInvalidPhase
	}
	s.phase = PhaseSubmitted

	result := Score(s.questions, s.answers)
	xp, coins := Reward(s.questions, result.PerQuestion, s.cfg.RewardMode)
	if s.cfg.Daily {
		xp += DailyBonusXP
	}
	s.report = &Report{
		ObjectiveScore: result.ObjectiveScore,
		ObjectiveTotal: result.ObjectiveTotal,
		TheoryCount:    result.TheoryCount,
		PerQuestion:    result.PerQuestion,
		XPAwarded:      xp,
		CoinsAwarded:   coins,
	}
	return s.report, nil
}
