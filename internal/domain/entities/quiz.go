package entities

import (
	"time"

	"github.com/google/uuid"
)

// SessionType is the kind of quiz attempt.
type SessionType string

const (
	SessionQuick     SessionType = "quick"
	SessionCustom    SessionType = "custom"
	SessionTimed     SessionType = "timed"
	SessionSelfPaced SessionType = "self_paced"
)

// SessionSettings is the free-form settings blob stored with a session.
type SessionSettings struct {
	TimePerQuestion time.Duration `json:"time_per_question,omitempty"`
	AutoAdvance     bool          `json:"auto_advance"`
	Categories      []string      `json:"categories,omitempty"`
	Difficulty      Difficulty    `json:"difficulty,omitempty"`
}

// QuizSession represents a single quiz attempt of a user.
type QuizSession struct {
	ID             uuid.UUID       `json:"id"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"` // nil for guests
	Type           SessionType     `json:"session_type"`
	QuestionIDs    []uuid.UUID     `json:"question_ids"`
	TotalQuestions int             `json:"total_questions"`
	CorrectAnswers int             `json:"correct_answers"`
	Score          int             `json:"score"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Settings       SessionSettings `json:"settings"`
}

// NewQuizSession creates a session draft for the given questions.
func NewQuizSession(userID *uuid.UUID, sessionType SessionType, questions []Question, settings SessionSettings) *QuizSession {
	ids := make([]uuid.UUID, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}

	return &QuizSession{
		UserID:         userID,
		Type:           sessionType,
		QuestionIDs:    ids,
		TotalQuestions: len(ids),
		StartedAt:      time.Now().UTC(),
		Settings:       settings,
	}
}

// IsCompleted reports whether the session has been completed.
func (s *QuizSession) IsCompleted() bool {
	return s.CompletedAt != nil
}

// Complete sets the final counters and the completion timestamp.
// It does nothing if the session is already completed.
func (s *QuizSession) Complete(correct, score int, at time.Time) {
	if s.CompletedAt != nil {
		return
	}
	s.CorrectAnswers = correct
	s.Score = score
	s.CompletedAt = &at
}

// SessionSummary is the final outcome of an attempt.
type SessionSummary struct {
	Session QuizSession    `json:"session"`
	Answers []AnswerRecord `json:"answers"`
	Score   int            `json:"score"`
	Saved   bool           `json:"saved"` // false when the backend did not confirm completion
}

// Accuracy returns the share of correct answers in percent.
func (s *SessionSummary) Accuracy() float64 {
	if s.Session.TotalQuestions == 0 {
		return 0
	}
	return float64(s.Session.CorrectAnswers) * 100 / float64(s.Session.TotalQuestions)
}
