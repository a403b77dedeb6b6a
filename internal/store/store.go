package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sankofa-edu/sankofa/internal/model"
	"github.com/sankofa-edu/sankofa/internal/quiz"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence layer. It also implements
// quiz.QuestionSource so sessions can draw directly from the bank.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL,
		grade_level TEXT NOT NULL,
		prompt TEXT NOT NULL,
		choice_a TEXT NOT NULL DEFAULT '',
		choice_b TEXT NOT NULL DEFAULT '',
		choice_c TEXT NOT NULL DEFAULT '',
		choice_d TEXT NOT NULL DEFAULT '',
		answer TEXT NOT NULL,
		is_daily INTEGER NOT NULL DEFAULT 0,
		year INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		grade_level TEXT NOT NULL DEFAULT 'Class 1',
		xp INTEGER NOT NULL DEFAULT 0,
		coins INTEGER NOT NULL DEFAULT 0,
		last_daily_date TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		subject TEXT NOT NULL,
		mode TEXT NOT NULL,
		score INTEGER NOT NULL,
		total INTEGER NOT NULL,
		xp_awarded INTEGER NOT NULL DEFAULT 0,
		coins_awarded INTEGER NOT NULL DEFAULT 0,
		taken_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO questions (subject, grade_level, prompt, choice_a, choice_b, choice_c, choice_d, answer, is_daily, year)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Subject, q.GradeLevel, q.Prompt,
		q.Choices["a"], q.Choices["b"], q.Choices["c"], q.Choices["d"],
		q.Answer, q.IsDaily, q.Year,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const questionColumns = `id, subject, grade_level, prompt, choice_a, choice_b, choice_c, choice_d, answer, is_daily, year`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var a, b, c, d string
	err := row.Scan(&q.ID, &q.Subject, &q.GradeLevel, &q.Prompt, &a, &b, &c, &d, &q.Answer, &q.IsDaily, &q.Year)
	if err != nil {
		return q, err
	}
	q.Choices = make(map[string]string, 4)
	for key, text := range map[string]string{"a": a, "b": b, "c": c, "d": d} {
		if text != "" {
			q.Choices[key] = text
		}
	}
	return q, nil
}

// FetchQuestions returns bank questions matching the filter. It implements
// quiz.QuestionSource. Subject matching is case-insensitive since content
// files are inconsistent about casing.
func (s *Store) FetchQuestions(ctx context.Context, f quiz.Filter) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE 1=1`
	var args []any
	if f.Subject != "" {
		query += ` AND subject = ? COLLATE NOCASE`
		args = append(args, f.Subject)
	}
	if len(f.Grades) > 0 {
		query += ` AND grade_level IN (?` + strings.Repeat(", ?", len(f.Grades)-1) + `)`
		for _, g := range f.Grades {
			args = append(args, g)
		}
	}
	if f.DailyOnly {
		query += ` AND is_daily = 1`
	}
	if f.Year != 0 {
		query += ` AND year = ?`
		args = append(args, f.Year)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	return scanQuestion(row)
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// ListDistinctSubjects returns the subjects present in the bank, sorted.
func (s *Store) ListDistinctSubjects() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT subject FROM questions ORDER BY subject`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []string
	for rows.Next() {
		var subj string
		if err := rows.Scan(&subj); err != nil {
			return nil, err
		}
		subjects = append(subjects, subj)
	}
	return subjects, rows.Err()
}

// ListPaperYears returns the distinct past-paper years for a subject,
// newest first. Regular bank questions (year 0) are excluded.
func (s *Store) ListPaperYears(subject string) ([]int, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT year FROM questions WHERE year > 0 AND subject = ? COLLATE NOCASE ORDER BY year DESC`,
		subject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}
