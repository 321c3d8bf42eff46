package seed

import (
	"errors"
	"strings"
	"testing"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

const bank = `[
  {
    "question_text": "First-line treatment of absence seizures?",
    "options": [{"text": "Ethosuximide"}, {"text": "Phenytoin"}, {"text": "Carbamazepine"}],
    "correct_option_id": "a",
    "explanation": "Blocks T-type calcium channels.",
    "difficulty": "easy",
    "subject": "Pharmacology",
    "system": "Nervous",
    "topics": ["Anticonvulsants"]
  },
  {
    "id": "9a1f3e1c-3b44-4a4e-9d34-0d7b1e4f8a21",
    "question_text": "Most common cause of mitral stenosis?",
    "options": [{"id": "x", "text": "Rheumatic fever"}, {"id": "y", "text": "Endocarditis"}],
    "correct_option_id": "x",
    "points": 2,
    "inactive": true
  }
]`

func TestLoad(t *testing.T) {
	questions, err := Load(strings.NewReader(bank))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	q := questions[0]
	if q.Options[0].ID != "a" || q.Options[2].ID != "c" || !q.IsCorrect(&q.Options[0].ID) {
		t.Fatalf("option ids not derived: %+v", q.Options)
	}
	if q.Points != 1 || !q.IsActive || q.Difficulty != entities.DifficultyEasy {
		t.Fatalf("unexpected defaults: %+v", q)
	}
	if len(q.Tags) != 3 || q.Tags[1].Kind != entities.TagSystem {
		t.Fatalf("unexpected tags: %+v", q.Tags)
	}

	second := questions[1]
	if second.ID.String() != "9a1f3e1c-3b44-4a4e-9d34-0d7b1e4f8a21" || second.IsActive || second.Difficulty != entities.DifficultyMedium {
		t.Fatalf("unexpected second question: %+v", second)
	}

	again, _ := Load(strings.NewReader(bank))
	if again[0].ID != q.ID {
		t.Fatal("derived ids must be stable across loads")
	}
}

func TestLoadRejectsInvalidQuestions(t *testing.T) {
	tests := map[string]string{
		"no text":        `[{"options":[{"text":"a"},{"text":"b"}],"correct_option_id":"a"}]`,
		"one option":     `[{"question_text":"q","options":[{"text":"a"}],"correct_option_id":"a"}]`,
		"bad correct":    `[{"question_text":"q","options":[{"text":"a"},{"text":"b"}],"correct_option_id":"z"}]`,
		"bad difficulty": `[{"question_text":"q","options":[{"text":"a"},{"text":"b"}],"correct_option_id":"a","difficulty":"insane"}]`,
		"duplicate":      `[{"question_text":"q","options":[{"text":"a"},{"text":"b"}],"correct_option_id":"a"},{"question_text":"q","options":[{"text":"a"},{"text":"b"}],"correct_option_id":"b"}]`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(input)); !errors.Is(err, ErrInvalidQuestion) {
				t.Fatalf("expected ErrInvalidQuestion, got %v", err)
			}
		})
	}
}
