package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

// QuestionSource reads questions and per-user history from the backend.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, filter entities.QuestionFilter) ([]entities.Question, error)
	QuestionHistory(ctx context.Context, userID uuid.UUID) ([]entities.UserQuestionHistory, error)
}

// SessionBackend persists sessions, answers and statistics.
type SessionBackend interface {
	CreateSession(ctx context.Context, draft *entities.QuizSession) (*entities.QuizSession, error)
	RecordAnswer(ctx context.Context, sessionID uuid.UUID, answer entities.AnswerRecord) error
	CompleteSession(ctx context.Context, sessionID uuid.UUID, summary entities.SessionSummary) (*entities.QuizSession, error)
	UpsertUserStats(ctx context.Context, userID uuid.UUID, delta entities.StatsDelta) error
}

// QuestionPicker picks the questions of a new attempt.
type QuestionPicker interface {
	Select(ctx context.Context, userID *uuid.UUID, filter entities.QuestionFilter, count int) ([]entities.Question, error)
}

// DraftStore keeps opaque snapshots of attempts keyed by session ID.
type DraftStore interface {
	Save(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	Load(ctx context.Context, sessionID uuid.UUID) ([]byte, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
	List(ctx context.Context) ([]uuid.UUID, error)
}
