package quiz

import (
	"strings"

	"github.com/sankofa-edu/sankofa/internal/model"
)

// ScoreResult is the outcome of grading one answer set.
type ScoreResult struct {
	ObjectiveScore int
	ObjectiveTotal int
	TheoryCount    int
	PerQuestion    []*bool // one entry per question; nil means not auto-gradable
}

// Score grades answers against questions. Only objective questions (two or
// more non-empty choices) contribute to the score and total; a missing answer
// at an objective index counts as incorrect. Theory questions get a nil
// correctness entry and are tallied in TheoryCount. Choice keys are compared
// after lowercasing and trimming, so "A" and " a " match the stored key "a".
func Score(questions []model.Question, answers map[int]string) ScoreResult {
	res := ScoreResult{PerQuestion: make([]*bool, len(questions))}
	for i, q := range questions {
		if !q.Objective() {
			res.TheoryCount++
			continue
		}
		res.ObjectiveTotal++
		correct := normalizeChoiceKey(answers[i]) == normalizeChoiceKey(q.Answer)
		res.PerQuestion[i] = &correct
		if correct {
			res.ObjectiveScore++
		}
	}
	return res
}

func normalizeChoiceKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
