package entities

import (
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is the answer given to one question of a session.
// SelectedOptionID is nil when the question was skipped or timed out.
type AnswerRecord struct {
	SessionID        uuid.UUID     `json:"session_id"`
	QuestionID       uuid.UUID     `json:"question_id"`
	SelectedOptionID *string       `json:"selected_option_id,omitempty"`
	IsCorrect        bool          `json:"is_correct"`
	TimeTaken        time.Duration `json:"time_taken"`
	AnsweredAt       time.Time     `json:"answered_at"`
}

// NewAnswerRecord creates an answer record and derives its correctness from q.
func NewAnswerRecord(sessionID uuid.UUID, q *Question, selected *string, elapsed time.Duration) AnswerRecord {
	if elapsed < 0 {
		elapsed = 0
	}
	return AnswerRecord{
		SessionID:        sessionID,
		QuestionID:       q.ID,
		SelectedOptionID: selected,
		IsCorrect:        q.IsCorrect(selected),
		TimeTaken:        elapsed,
		AnsweredAt:       time.Now().UTC(),
	}
}

// Skipped reports whether no option was selected.
func (a *AnswerRecord) Skipped() bool {
	return a.SelectedOptionID == nil
}
