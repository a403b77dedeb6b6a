package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sankofa-edu/sankofa/internal/llm"
	"github.com/sankofa-edu/sankofa/internal/model"
	"github.com/sankofa-edu/sankofa/internal/quiz"
)

const feedbackTimeout = 30 * time.Second

// activeExam is one in-flight session. The entry lock serializes the HTTP
// handlers against the countdown goroutine; the quiz.Session itself does no
// locking.
type activeExam struct {
	mu        sync.Mutex
	id        string
	userID    int64
	mode      model.ExamMode
	session   *quiz.Session
	countdown *quiz.Countdown
	startedAt time.Time
	persisted bool
}

// examRegistry holds active sessions in memory, keyed by exam ID. Sessions
// are not persisted; a restart abandons them.
type examRegistry struct {
	mu    sync.Mutex
	exams map[string]*activeExam
}

func newExamRegistry() *examRegistry {
	return &examRegistry{exams: make(map[string]*activeExam)}
}

func (reg *examRegistry) add(e *activeExam) string {
	id := uuid.NewString()
	e.id = id
	reg.mu.Lock()
	reg.exams[id] = e
	reg.mu.Unlock()
	return id
}

func (reg *examRegistry) get(id string) *activeExam {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.exams[id]
}

// PurgeStale removes sessions started before the cutoff and stops their
// timers. Submitted sessions linger until purged so the report stays
// retrievable.
func (reg *examRegistry) PurgeStale(cutoff time.Duration) int {
	deadline := time.Now().Add(-cutoff)
	reg.mu.Lock()
	defer reg.mu.Unlock()

	n := 0
	for id, e := range reg.exams {
		if e.startedAt.Before(deadline) {
			if e.countdown != nil {
				e.countdown.Stop()
			}
			delete(reg.exams, id)
			n++
		}
	}
	return n
}

type startExamRequest struct {
	Mode    string `json:"mode"`
	Subject string `json:"subject"`
	Year    int    `json:"year,omitempty"`
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	var req startExamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !model.ValidMode(req.Mode) {
		respondError(w, r, http.StatusBadRequest, "InvalidMode")
		return
	}

	user := model.UserFromContext(r.Context())
	mode := model.ExamMode(req.Mode)

	var cfg quiz.Config
	switch mode {
	case model.ModePractice:
		cfg = quiz.Config{
			Subject:       req.Subject,
			Grades:        []string{user.GradeLevel},
			QuestionCount: h.config.QuestionCount,
			Sampling:      quiz.SamplingRandom,
			RewardMode:    quiz.RewardFlat,
		}
	case model.ModeExam:
		cfg = quiz.Config{
			Subject:       req.Subject,
			Grades:        []string{user.GradeLevel},
			QuestionCount: h.config.QuestionCount,
			TimeLimit:     h.config.TimeLimitFor(req.Subject),
			Sampling:      quiz.SamplingRandom,
			RewardMode:    quiz.RewardWeighted,
		}
	case model.ModeDaily:
		today := time.Now().Format("2006-01-02")
		played, err := h.store.AlreadyAttemptedToday(user.ID, today)
		if err != nil {
			slog.Error("failed to check daily attempt", "error", err)
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if played {
			respondError(w, r, http.StatusConflict, "DailyAlreadyPlayed")
			return
		}
		cfg = quiz.Config{
			Grades:        []string{user.GradeLevel},
			QuestionCount: h.config.DailyQuestions,
			Sampling:      quiz.SamplingRandom,
			RewardMode:    quiz.RewardWeighted,
			Daily:         true,
		}
	case model.ModeBece:
		if user.GradeLevel != model.GradeFinalYear {
			respondError(w, r, http.StatusForbidden, "BeceRestricted")
			return
		}
		cfg = quiz.Config{
			Subject:    req.Subject,
			Grades:     []string{model.GradeFinalYear},
			Year:       req.Year,
			TimeLimit:  h.config.TimeLimitFor(req.Subject),
			Sampling:   quiz.SamplingFixed,
			RewardMode: quiz.RewardWeighted,
		}
	}
	if !h.config.Shuffle && cfg.Sampling == quiz.SamplingRandom {
		cfg.Sampling = quiz.SamplingFixed
	}

	sess, err := quiz.Start(r.Context(), cfg, h.store)
	if err != nil {
		if errors.Is(err, quiz.ErrEmptyBank) {
			respondError(w, r, http.StatusNotFound, "EmptyBank")
			return
		}
		slog.Error("failed to start exam", "mode", mode, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	e := &activeExam{
		userID:    user.ID,
		mode:      mode,
		session:   sess,
		startedAt: time.Now(),
	}
	id := h.exams.add(e)

	if sess.Timed() {
		e.countdown = quiz.StartCountdown(quiz.TickInterval, func() bool {
			return h.tickExam(e)
		})
	}

	slog.Info("exam started", "exam_id", id, "user_id", user.ID, "mode", mode,
		"subject", cfg.Subject, "questions", len(sess.Questions()), "time_limit", cfg.TimeLimit)

	respondJSON(w, http.StatusCreated, h.snapshot(e))
}

// tickExam advances a timed session by one second. Returns true when the
// countdown should stop.
func (h *Handler) tickExam(e *activeExam) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	report, err := e.session.Tick(1)
	if err != nil {
		// Session was submitted by hand; nothing left to drive.
		return true
	}
	if report != nil {
		slog.Info("exam auto-submitted on expiry", "exam_id", e.id, "user_id", e.userID)
		h.persistLocked(e, report)
		return true
	}
	return false
}

// persistLocked writes rewards and history for a finished session exactly
// once. Caller holds e.mu.
func (h *Handler) persistLocked(e *activeExam, report *quiz.Report) {
	if e.persisted {
		return
	}
	e.persisted = true

	if report.XPAwarded > 0 || report.CoinsAwarded > 0 {
		if err := h.store.AddRewards(e.userID, report.XPAwarded, report.CoinsAwarded); err != nil {
			slog.Error("failed to persist rewards", "exam_id", e.id, "user_id", e.userID, "error", err)
		}
	}

	if e.mode == model.ModeDaily {
		today := time.Now().Format("2006-01-02")
		if err := h.store.SetLastDailyDate(e.userID, today); err != nil {
			slog.Error("failed to set last daily date", "user_id", e.userID, "error", err)
		}
	}

	_, err := h.store.InsertExamHistory(model.ExamHistory{
		UserID:       e.userID,
		Subject:      e.session.Config().Subject,
		Mode:         e.mode,
		Score:        report.ObjectiveScore,
		Total:        report.ObjectiveTotal,
		XPAwarded:    report.XPAwarded,
		CoinsAwarded: report.CoinsAwarded,
	})
	if err != nil {
		slog.Error("failed to persist exam history", "exam_id", e.id, "user_id", e.userID, "error", err)
	}
}

// questionView is a question as shown to the student: no answer key.
type questionView struct {
	ID         int64             `json:"id"`
	Subject    string            `json:"subject"`
	GradeLevel string            `json:"grade_level"`
	Prompt     string            `json:"prompt"`
	Choices    map[string]string `json:"choices,omitempty"`
	Objective  bool              `json:"objective"`
}

type examSnapshot struct {
	ID        string         `json:"id"`
	Mode      model.ExamMode `json:"mode"`
	Subject   string         `json:"subject,omitempty"`
	Phase     quiz.Phase     `json:"phase"`
	Current   int            `json:"current"`
	Remaining int            `json:"remaining,omitempty"`
	Timed     bool           `json:"timed"`
	Questions []questionView `json:"questions"`
	Answers   map[int]string `json:"answers"`
	Report    *quiz.Report   `json:"report,omitempty"`
}

// snapshot builds the client view of a session. Caller must NOT hold e.mu.
func (h *Handler) snapshot(e *activeExam) examSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return h.snapshotLocked(e)
}

func (h *Handler) snapshotLocked(e *activeExam) examSnapshot {
	questions := e.session.Questions()
	views := make([]questionView, len(questions))
	for i, q := range questions {
		views[i] = questionView{
			ID:         q.ID,
			Subject:    q.Subject,
			GradeLevel: q.GradeLevel,
			Prompt:     q.Prompt,
			Choices:    q.Choices,
			Objective:  q.Objective(),
		}
	}
	return examSnapshot{
		ID:        e.id,
		Mode:      e.mode,
		Subject:   e.session.Config().Subject,
		Phase:     e.session.Phase(),
		Current:   e.session.Current(),
		Remaining: e.session.Remaining(),
		Timed:     e.session.Timed(),
		Questions: views,
		Answers:   e.session.Answers(),
		Report:    e.session.Report(),
	}
}

// ownedExam resolves the exam ID from the URL and checks ownership. Returns
// nil after writing the error response.
func (h *Handler) ownedExam(w http.ResponseWriter, r *http.Request) *activeExam {
	user := model.UserFromContext(r.Context())
	e := h.exams.get(chi.URLParam(r, "examID"))
	if e == nil || e.userID != user.ID {
		respondError(w, r, http.StatusNotFound, "SessionNotFound")
		return nil
	}
	return e
}

func (h *Handler) handleExamSnapshot(w http.ResponseWriter, r *http.Request) {
	e := h.ownedExam(w, r)
	if e == nil {
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot(e))
}

type answerRequest struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

func (h *Handler) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	e := h.ownedExam(w, r)
	if e == nil {
		return
	}
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e.mu.Lock()
	err := e.session.RecordAnswer(req.Index, req.Value)
	e.mu.Unlock()
	if err != nil {
		h.examError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type navigateRequest struct {
	Index int `json:"index"`
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	e := h.ownedExam(w, r)
	if e == nil {
		return
	}
	var req navigateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e.mu.Lock()
	err := e.session.Navigate(req.Index)
	current := e.session.Current()
	e.mu.Unlock()
	if err != nil {
		h.examError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"current": current})
}

// theoryFeedback pairs a question index with the model's comments on the
// student's free-response answer.
type theoryFeedback struct {
	Index    int                 `json:"index"`
	Feedback *llm.FeedbackResult `json:"feedback"`
}

type submitResponse struct {
	*quiz.Report
	TheoryFeedback []theoryFeedback `json:"theory_feedback,omitempty"`
}

func (h *Handler) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	e := h.ownedExam(w, r)
	if e == nil {
		return
	}

	e.mu.Lock()
	report, err := e.session.Submit()
	if err != nil {
		e.mu.Unlock()
		h.examError(w, r, err)
		return
	}
	h.persistLocked(e, report)
	questions := e.session.Questions()
	answers := e.session.Answers()
	e.mu.Unlock()

	if e.countdown != nil {
		e.countdown.Stop()
	}

	resp := submitResponse{Report: report}
	if h.llm != nil && h.config.FeedbackEnabled {
		resp.TheoryFeedback = h.collectTheoryFeedback(r.Context(), questions, answers)
	}

	slog.Info("exam submitted", "exam_id", e.id, "user_id", e.userID,
		"score", report.ObjectiveScore, "total", report.ObjectiveTotal,
		"xp", report.XPAwarded, "coins", report.CoinsAwarded)

	respondJSON(w, http.StatusOK, resp)
}

// collectTheoryFeedback gathers LLM comments for answered theory questions.
// Best-effort: failures are logged and skipped, scoring is already done.
func (h *Handler) collectTheoryFeedback(ctx context.Context, questions []model.Question, answers map[int]string) []theoryFeedback {
	ctx, cancel := context.WithTimeout(ctx, feedbackTimeout)
	defer cancel()

	var out []theoryFeedback
	for i, q := range questions {
		if q.Objective() {
			continue
		}
		answer, ok := answers[i]
		if !ok || answer == "" {
			continue
		}
		result, err := h.llm.TheoryFeedback(ctx, q, answer)
		if err != nil {
			slog.Error("theory feedback failed", "question_id", q.ID, "error", err)
			continue
		}
		out = append(out, theoryFeedback{Index: i, Feedback: result})
	}
	return out
}

func (h *Handler) examError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quiz.ErrIndexOutOfRange):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, quiz.ErrInvalidPhase):
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error("exam operation failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) handleSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListDistinctSubjects()
	if err != nil {
		slog.Error("failed to list subjects", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	type subjectView struct {
		Subject    string `json:"subject"`
		PaperYears []int  `json:"paper_years,omitempty"`
	}
	out := make([]subjectView, 0, len(subjects))
	for _, s := range subjects {
		years, err := h.store.ListPaperYears(s)
		if err != nil {
			slog.Error("failed to list paper years", "subject", s, "error", err)
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		out = append(out, subjectView{Subject: s, PaperYears: years})
	}
	respondJSON(w, http.StatusOK, out)
}
