package model

import "time"

// HistoryExport is the top-level JSON structure for exam history export.
type HistoryExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Students   []StudentRecord `json:"students"`
}

// StudentRecord holds one student's totals and session history for export.
type StudentRecord struct {
	Username    string        `json:"username"`
	DisplayName string        `json:"display_name"`
	GradeLevel  string        `json:"grade_level"`
	XP          int           `json:"xp"`
	Coins       int           `json:"coins"`
	Sessions    []ExamHistory `json:"sessions"`
}
