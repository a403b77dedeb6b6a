package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/sankofa-edu/sankofa/internal/model"
)

const userColumns = `id, username, display_name, password_hash, role, grade_level, xp, coins, last_daily_date, active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role,
		&u.GradeLevel, &u.XP, &u.Coins, &u.LastDailyDate, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(u model.User) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, display_name, password_hash, role, grade_level, xp, coins, last_daily_date, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.DisplayName, u.PasswordHash, u.Role, u.GradeLevel,
		u.XP, u.Coins, u.LastDailyDate, u.Active, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created user", "id", id, "username", u.Username, "role", u.Role, "grade", u.GradeLevel)
	return id, nil
}

// GetUserByUsername returns a user by username, or nil if not found.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetUserByID returns a user by ID, or nil if not found.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListUsers returns all users.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AddRewards credits XP and coins to a user's running totals.
func (s *Store) AddRewards(userID int64, xp, coins int) error {
	_, err := s.db.Exec(`UPDATE users SET xp = xp + ?, coins = coins + ? WHERE id = ?`, xp, coins, userID)
	if err != nil {
		slog.Error("failed to credit rewards", "user_id", userID, "xp", xp, "coins", coins, "error", err)
	}
	return err
}

// AlreadyAttemptedToday reports whether the user has taken the daily
// challenge on the given date (YYYY-MM-DD).
func (s *Store) AlreadyAttemptedToday(userID int64, date string) (bool, error) {
	var last string
	err := s.db.QueryRow(`SELECT last_daily_date FROM users WHERE id = ?`, userID).Scan(&last)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return last == date, nil
}

// SetLastDailyDate records the date of a user's daily challenge attempt.
func (s *Store) SetLastDailyDate(userID int64, date string) error {
	_, err := s.db.Exec(`UPDATE users SET last_daily_date = ? WHERE id = ?`, date, userID)
	return err
}
