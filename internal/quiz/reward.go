package quiz

import "github.com/sankofa-edu/sankofa/internal/model"

// RewardMode selects how correct answers convert into XP and coins.
type RewardMode string

const (
	// RewardFlat grants fixed XP and coins per correct answer (practice flows).
	RewardFlat RewardMode = "flat"
	// RewardWeighted grants XP from the grade table per correct answer and a
	// bulk coin grant at session end (exam flows).
	RewardWeighted RewardMode = "weighted"
)

const (
	flatXPPerCorrect        = 10
	flatCoinsPerCorrect     = 5
	weightedCoinsPerCorrect = 10

	// DailyBonusXP is the flat completion bonus for a daily challenge,
	// independent of score.
	DailyBonusXP = 50

	defaultGradeXP = 10
)

// gradeXP maps a question's grade level to XP per correct answer.
// Values rise with grade so older students' questions pay more.
var gradeXP = map[string]int{
	"Class 1": 5,
	"Class 2": 5,
	"Class 3": 10,
	"Class 4": 10,
	"Class 5": 15,
	"Class 6": 15,
	"JHS 1":   20,
	"JHS 2":   25,
	"JHS 3":   30,
}

// XPForGrade returns the weighted XP for one correct answer at the given
// grade level. Unknown grades fall back to a middle-of-the-table default.
func XPForGrade(grade string) int {
	if xp, ok := gradeXP[grade]; ok {
		return xp
	}
	return defaultGradeXP
}

// Reward converts per-question correctness into an XP and coin award.
// Weighted XP is keyed by each question's own grade level, so a mixed-grade
// session pays different XP per question. Theory questions (nil correctness)
// never earn rewards.
func Reward(questions []model.Question, perQuestion []*bool, mode RewardMode) (xp, coins int) {
	correct := 0
	for i, c := range perQuestion {
		if c == nil || !*c {
			continue
		}
		correct++
		switch mode {
		case RewardWeighted:
			xp += XPForGrade(questions[i].GradeLevel)
		default:
			xp += flatXPPerCorrect
		}
	}
	switch mode {
	case RewardWeighted:
		coins = correct * weightedCoinsPerCorrect
	default:
		coins = correct * flatCoinsPerCorrect
	}
	return xp, coins
}
