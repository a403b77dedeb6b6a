package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/sankofa-edu/sankofa/internal/i18n"
	"github.com/sankofa-edu/sankofa/internal/llm"
	"github.com/sankofa-edu/sankofa/internal/model"
	"github.com/sankofa-edu/sankofa/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	llm    *llm.Client // nil when theory feedback is disabled
	config model.ServerConfig
	exams  *examRegistry
}

// New creates a new Handler.
func New(s *store.Store, l *llm.Client, cfg model.ServerConfig) *Handler {
	return &Handler{store: s, llm: l, config: cfg, exams: newExamRegistry()}
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Registry returns the in-process exam registry, for maintenance jobs.
func (h *Handler) Registry() *examRegistry {
	return h.exams
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/auth/logout", h.handleLogout)
			r.Get("/profile", h.handleProfile)
			r.Get("/subjects", h.handleSubjects)
			r.With(requireRole(model.UserRoleAdmin)).Get("/admin/export", h.handleExportHistory)
			r.Route("/exams", func(r chi.Router) {
				r.Post("/", h.handleStartExam)
				r.Get("/{examID}", h.handleExamSnapshot)
				r.Post("/{examID}/answers", h.handleRecordAnswer)
				r.Post("/{examID}/navigate", h.handleNavigate)
				r.Post("/{examID}/submit", h.handleSubmitExam)
			})
		})
	})
}

func (h *Handler) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportHistory()
	if err != nil {
		slog.Error("failed to export history", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	respondJSON(w, http.StatusOK, export)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// respondError writes a JSON error body. messageID is looked up in the
// message catalog; unknown IDs fall through as literal text.
func respondError(w http.ResponseWriter, r *http.Request, status int, messageID string) {
	respondJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), messageID)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
