package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

const draftVersion = 1

// Draft is a snapshot of an attempt that survives a restart.
// The backend session stays authoritative once completion succeeded.
type Draft struct {
	Version   int                      `json:"version"`
	State     State                    `json:"state"`
	Session   entities.QuizSession     `json:"session"`
	Questions []entities.Question      `json:"questions"`
	Answers   []*entities.AnswerRecord `json:"answers"` // aligned with Questions, nil when unanswered
	SavedAt   time.Time                `json:"saved_at"`
}

// Recoverable reports whether the draft is waiting for completion to be persisted.
func (d *Draft) Recoverable() bool {
	return d.State == StateCompleting || d.State == StateFailed
}

// Answered returns the number of answered questions.
func (d *Draft) Answered() int {
	n := 0
	for _, a := range d.Answers {
		if a != nil {
			n++
		}
	}
	return n
}

func (d *Draft) validate() error {
	if d.Version != draftVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidDraft, d.Version)
	}
	if d.Session.ID == uuid.Nil {
		return fmt.Errorf("%w: missing session id", ErrInvalidDraft)
	}
	if len(d.Questions) == 0 || len(d.Questions) != len(d.Answers) {
		return fmt.Errorf("%w: %d questions, %d answer slots", ErrInvalidDraft, len(d.Questions), len(d.Answers))
	}
	if d.Session.TotalQuestions != len(d.Questions) {
		return fmt.Errorf("%w: total_questions %d, %d questions", ErrInvalidDraft, d.Session.TotalQuestions, len(d.Questions))
	}

	// Answers are given in order, so the answered slots form a prefix.
	answered := d.Answered()
	for i, a := range d.Answers {
		if (i < answered) != (a != nil) {
			return fmt.Errorf("%w: answers are not a prefix", ErrInvalidDraft)
		}
		if a != nil && a.QuestionID != d.Questions[i].ID {
			return fmt.Errorf("%w: answer %d belongs to another question", ErrInvalidDraft, i)
		}
	}

	return nil
}

// EncodeDraft serializes a draft.
func EncodeDraft(d *Draft) ([]byte, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}
	return payload, nil
}

// DecodeDraft parses and validates a serialized draft.
func DecodeDraft(payload []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDraft reads and decodes the draft of a session.
func LoadDraft(ctx context.Context, store DraftStore, sessionID uuid.UUID) (*Draft, error) {
	payload, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return DecodeDraft(payload)
}
