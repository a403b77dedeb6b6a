package quiz

import (
	"testing"

	"github.com/sankofa-edu/sankofa/internal/model"
)

func TestObjectiveDetection(t *testing.T) {
	tests := []struct {
		name    string
		choices map[string]string
		want    bool
	}{
		{"four choices", map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"}, true},
		{"two choices", map[string]string{"a": "1", "b": "2"}, true},
		{"one choice", map[string]string{"a": "1"}, false},
		{"no choices", nil, false},
		{"empty map", map[string]string{}, false},
		{"blank choice texts ignored", map[string]string{"a": "1", "b": "  ", "c": ""}, false},
		{"two non-empty among blanks", map[string]string{"a": "1", "b": " ", "c": "3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := model.Question{Choices: tt.choices}
			if got := q.Objective(); got != tt.want {
				t.Errorf("Objective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	objective := func(answer string) model.Question {
		return model.Question{
			Choices: map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"},
			Answer:  answer,
		}
	}
	theory := model.Question{Answer: "reference text"}

	tests := []struct {
		name        string
		questions   []model.Question
		answers     map[int]string
		wantScore   int
		wantTotal   int
		wantTheory  int
		wantPerQLen int
	}{
		{
			name:        "all correct",
			questions:   []model.Question{objective("a"), objective("b")},
			answers:     map[int]string{0: "a", 1: "b"},
			wantScore:   2,
			wantTotal:   2,
			wantPerQLen: 2,
		},
		{
			name:        "missing answer counts as incorrect",
			questions:   []model.Question{objective("a"), objective("b")},
			answers:     map[int]string{0: "a"},
			wantScore:   1,
			wantTotal:   2,
			wantPerQLen: 2,
		},
		{
			name:        "case and whitespace normalized",
			questions:   []model.Question{objective("a"), objective("b")},
			answers:     map[int]string{0: "A", 1: " b "},
			wantScore:   2,
			wantTotal:   2,
			wantPerQLen: 2,
		},
		{
			name:        "theory excluded from score",
			questions:   []model.Question{objective("a"), theory, theory},
			answers:     map[int]string{0: "a", 1: "free text"},
			wantScore:   1,
			wantTotal:   1,
			wantTheory:  2,
			wantPerQLen: 3,
		},
		{
			name:        "empty session",
			questions:   nil,
			answers:     nil,
			wantPerQLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.questions, tt.answers)
			if res.ObjectiveScore != tt.wantScore {
				t.Errorf("ObjectiveScore = %d, want %d", res.ObjectiveScore, tt.wantScore)
			}
			if res.ObjectiveTotal != tt.wantTotal {
				t.Errorf("ObjectiveTotal = %d, want %d", res.ObjectiveTotal, tt.wantTotal)
			}
			if res.TheoryCount != tt.wantTheory {
				t.Errorf("TheoryCount = %d, want %d", res.TheoryCount, tt.wantTheory)
			}
			if len(res.PerQuestion) != tt.wantPerQLen {
				t.Errorf("len(PerQuestion) = %d, want %d", len(res.PerQuestion), tt.wantPerQLen)
			}
		})
	}
}

func TestScoreTheoryEntriesAreNil(t *testing.T) {
	questions := []model.Question{
		{Choices: map[string]string{"a": "1", "b": "2"}, Answer: "a"},
		{Answer: "reference"},
	}
	res := Score(questions, map[int]string{0: "b", 1: "attempt"})
	if res.PerQuestion[0] == nil || *res.PerQuestion[0] {
		t.Error("expected question 0 graded incorrect")
	}
	if res.PerQuestion[1] != nil {
		t.Error("expected nil entry for theory question")
	}
}
