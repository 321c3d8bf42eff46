package entities

import (
	"time"

	"github.com/google/uuid"
)

// UserQuestionHistory tracks how often a user has seen a question.
type UserQuestionHistory struct {
	UserID       uuid.UUID
	QuestionID   uuid.UUID
	TimesSeen    int
	TimesCorrect int
	LastSeenAt   time.Time
}

// Seen reports whether the question was shown to the user at least once.
func (h *UserQuestionHistory) Seen() bool {
	return h.TimesSeen > 0
}
