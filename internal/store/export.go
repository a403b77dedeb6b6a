package store

import (
	"fmt"
	"time"

	"github.com/sankofa-edu/sankofa/internal/model"
)

// ExportHistory builds an export of every student's totals and sessions.
func (s *Store) ExportHistory() (*model.HistoryExport, error) {
	users, err := s.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	export := &model.HistoryExport{ExportedAt: time.Now()}
	for _, u := range users {
		if u.Role != model.UserRoleStudent {
			continue
		}
		sessions, err := s.ListExamHistory(u.ID)
		if err != nil {
			return nil, fmt.Errorf("list history for %s: %w", u.Username, err)
		}
		export.Students = append(export.Students, model.StudentRecord{
			Username:    u.Username,
			DisplayName: u.DisplayName,
			GradeLevel:  u.GradeLevel,
			XP:          u.XP,
			Coins:       u.Coins,
			Sessions:    sessions,
		})
	}
	return export, nil
}
