package store

import (
	"time"

	"github.com/sankofa-edu/sankofa/internal/model"
)

// InsertExamHistory records a completed session.
func (s *Store) InsertExamHistory(h model.ExamHistory) (int64, error) {
	takenAt := h.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO exam_history (user_id, subject, mode, score, total, xp_awarded, coins_awarded, taken_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.UserID, h.Subject, h.Mode, h.Score, h.Total, h.XPAwarded, h.CoinsAwarded, takenAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const historyColumns = `id, user_id, subject, mode, score, total, xp_awarded, coins_awarded, taken_at`

func (s *Store) scanHistoryRows(query string, args ...any) ([]model.ExamHistory, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.ExamHistory
	for rows.Next() {
		var h model.ExamHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.Subject, &h.Mode, &h.Score, &h.Total,
			&h.XPAwarded, &h.CoinsAwarded, &h.TakenAt); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// ListExamHistory returns a user's sessions, newest first.
func (s *Store) ListExamHistory(userID int64) ([]model.ExamHistory, error) {
	return s.scanHistoryRows(
		`SELECT `+historyColumns+` FROM exam_history WHERE user_id = ? ORDER BY id DESC`, userID)
}

// ListAllExamHistory returns every recorded session, oldest first.
func (s *Store) ListAllExamHistory() ([]model.ExamHistory, error) {
	return s.scanHistoryRows(`SELECT ` + historyColumns + ` FROM exam_history ORDER BY id`)
}
