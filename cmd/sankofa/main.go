package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/sankofa-edu/sankofa/internal/handler"
	appI18n "github.com/sankofa-edu/sankofa/internal/i18n"
	"github.com/sankofa-edu/sankofa/internal/llm"
	"github.com/sankofa-edu/sankofa/internal/llm/prompts"
	"github.com/sankofa-edu/sankofa/internal/model"
	"github.com/sankofa-edu/sankofa/internal/store"
)

func main() {
	// Local development settings; missing .env is fine.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sankofa",
		Short: "Gamified exam practice backend for BECE prep",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `sankofa --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "sankofa.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Paths to question JSON files (repeatable)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for theory feedback (empty disables)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("feedback-tone", string(prompts.ToneEncouraging), "Theory feedback tone (encouraging, standard, direct)")
	f.StringP("lang", "l", "en", "Message language (en, fr)")
	f.IntP("num-questions", "n", 20, "Questions per practice or exam session (0 = all available)")
	f.Int("daily-questions", 5, "Questions in the daily challenge")
	f.Int("time-limit", 1800, "Default exam duration in seconds")
	f.Bool("shuffle", true, "Randomize question order")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /gh)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set SANKOFA_ADMIN_PASSWORD)")
	f.String("cleanup-schedule", "0 3 * * *", "Cron schedule for the nightly maintenance job")
	f.Duration("abandoned-cutoff", 6*time.Hour, "Active sessions older than this are purged")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export student exam history as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "sankofa.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SANKOFA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("sankofa")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/sankofa")
	v.AddConfigPath("/etc/sankofa")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// subjectTimeLimits reads the optional per-subject duration map from the
// config file, e.g. time-limits: {mathematics: 3600, science: 2700}.
func subjectTimeLimits(v *viper.Viper) map[string]int {
	raw := v.GetStringMapString("time-limits")
	if len(raw) == 0 {
		return nil
	}
	limits := make(map[string]int, len(raw))
	for subject, val := range raw {
		sec, err := strconv.Atoi(val)
		if err != nil || sec <= 0 {
			slog.Warn("invalid time limit, ignoring", "subject", subject, "value", val)
			continue
		}
		limits[strings.ToLower(subject)] = sec
	}
	return limits
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Load questions from all specified files.
	if err := loadQuestions(db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Theory feedback is optional; without an endpoint exams still run,
	// theory answers just get no commentary.
	var llmClient *llm.Client
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		tone := strings.ToLower(strings.TrimSpace(v.GetString("feedback-tone")))
		if !prompts.IsValidTone(tone) {
			slog.Warn("invalid feedback-tone, using encouraging", "tone", tone)
			tone = string(prompts.ToneEncouraging)
		}
		llmClient = llm.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"), prompts.Tone(tone))
		if err := llmClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", llmURL, "model", v.GetString("llm-model"), "tone", tone)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		QuestionCount:    v.GetInt("num-questions"),
		TimeLimits:       subjectTimeLimits(v),
		DefaultTimeLimit: v.GetInt("time-limit"),
		DailyQuestions:   v.GetInt("daily-questions"),
		Shuffle:          v.GetBool("shuffle"),
		BasePath:         basePath,
		SecureCookies:    v.GetBool("secure-cookies"),
		FeedbackEnabled:  llmClient != nil,
		AbandonedCutoff:  v.GetDuration("abandoned-cutoff"),
	}

	h := handler.New(db, llmClient, cfg)

	// Nightly maintenance: expired auth sessions and abandoned exams.
	maintenance := cron.New()
	_, err = maintenance.AddFunc(v.GetString("cleanup-schedule"), func() {
		n, err := db.CleanupExpiredSessions()
		if err != nil {
			slog.Error("auth session cleanup failed", "error", err)
		}
		purged := h.Registry().PurgeStale(cfg.AbandonedCutoff)
		slog.Info("maintenance run", "expired_auth_sessions", n, "purged_exams", purged)
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance job: %w", err)
	}
	maintenance.Start()
	defer maintenance.Stop()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"num_questions", cfg.QuestionCount,
		"daily_questions", cfg.DailyQuestions,
		"time_limit", cfg.DefaultTimeLimit,
		"shuffle", cfg.Shuffle,
		"base_path", basePath,
		"feedback", cfg.FeedbackEnabled,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportHistory()
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func loadQuestions(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("questions file changed since last import, skipping to avoid duplicate rows",
				"path", path)
			continue
		}

		var questions []model.QuestionImport
		if err := json.Unmarshal(data, &questions); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, qi := range questions {
			_, err := db.InsertQuestion(model.Question{
				Subject:    qi.Subject,
				GradeLevel: qi.GradeLevel,
				Prompt:     qi.Prompt,
				Choices:    qi.Choices,
				Answer:     qi.Answer,
				IsDaily:    qi.IsDaily,
				Year:       qi.Year,
			})
			if err != nil {
				return fmt.Errorf("insert question from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "count", len(questions))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or SANKOFA_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
