package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/infra/postgres"
)

var (
	ErrSessionNotFound   = errors.New("quiz session not found")
	ErrSessionCompleted  = errors.New("quiz session is already completed")
	ErrMissingSessionRef = errors.New("quiz answer has no session or question id")
)

// QuizRepository provides access to quiz session and answer data in the database.
type QuizRepository struct {
	db postgres.DBTX
}

// NewQuizRepository creates a new QuizRepository with the provided database handle.
func NewQuizRepository(db postgres.DBTX) *QuizRepository {
	return &QuizRepository{db: db}
}

const sessionColumns = `
	id, user_id, session_type, question_ids, total_questions,
	correct_answers, score, started_at, completed_at, settings
`

// Create inserts a new quiz session and fills in the generated id.
func (r *QuizRepository) Create(ctx context.Context, session *entities.QuizSession) error {
	query := `
		INSERT INTO quiz_sessions (
			user_id, session_type, question_ids, total_questions,
			correct_answers, score, started_at, settings
		) VALUES ($1, $2, $3::uuid[], $4, $5, $6, $7, $8)
		RETURNING id, started_at
	`

	err := r.db.QueryRow(
		ctx,
		query,
		nullableUUID(session.UserID),
		string(session.Type),
		uuidStrings(session.QuestionIDs),
		session.TotalQuestions,
		session.CorrectAnswers,
		session.Score,
		session.StartedAt,
		session.Settings,
	).Scan(&session.ID, &session.StartedAt)
	if err != nil {
		return fmt.Errorf("create quiz session: %w", err)
	}

	return nil
}

// GetByID retrieves a quiz session by id.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.QuizSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM quiz_sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get quiz session: %w", err)
	}

	return session, nil
}

// SaveAnswer stores an answer, overwriting a previous answer to the same question.
// It reports whether a new row was inserted.
func (r *QuizRepository) SaveAnswer(ctx context.Context, answer *entities.AnswerRecord) (bool, error) {
	if answer.SessionID == uuid.Nil || answer.QuestionID == uuid.Nil {
		return false, ErrMissingSessionRef
	}

	query := `
		INSERT INTO quiz_answers (
			session_id, question_id, selected_option_id,
			is_correct, time_taken_ms, answered_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, question_id) DO UPDATE SET
			selected_option_id = EXCLUDED.selected_option_id,
			is_correct = EXCLUDED.is_correct,
			time_taken_ms = EXCLUDED.time_taken_ms
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.db.QueryRow(
		ctx,
		query,
		answer.SessionID.String(),
		answer.QuestionID.String(),
		answer.SelectedOptionID,
		answer.IsCorrect,
		answer.TimeTaken.Milliseconds(),
		answer.AnsweredAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("save answer: %w", err)
	}

	return inserted, nil
}

// CountAnswers returns the number of stored answers of a session.
func (r *QuizRepository) CountAnswers(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quiz_answers WHERE session_id = $1`, sessionID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

// Complete sets the final counters of a session that has not been completed yet.
func (r *QuizRepository) Complete(ctx context.Context, session *entities.QuizSession) (*entities.QuizSession, error) {
	if session.CompletedAt == nil {
		return nil, fmt.Errorf("complete quiz session: completed_at is not set")
	}

	query := `
		UPDATE quiz_sessions
		SET completed_at = $2,
		    correct_answers = $3,
		    score = $4
		WHERE id = $1 AND completed_at IS NULL
		RETURNING ` + sessionColumns

	updated, err := scanSession(r.db.QueryRow(
		ctx,
		query,
		session.ID.String(),
		*session.CompletedAt,
		session.CorrectAnswers,
		session.Score,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("complete quiz session: %w", err)
	}

	// Nothing updated: either unknown or already completed.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM quiz_sessions WHERE id = $1)`, session.ID.String()).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check quiz session: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	return nil, ErrSessionCompleted
}

func scanSession(row pgx.Row) (*entities.QuizSession, error) {
	var (
		s           entities.QuizSession
		sessionType string
	)

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&sessionType,
		&s.QuestionIDs,
		&s.TotalQuestions,
		&s.CorrectAnswers,
		&s.Score,
		&s.StartedAt,
		&s.CompletedAt,
		&s.Settings,
	)
	if err != nil {
		return nil, err
	}

	s.Type = entities.SessionType(sessionType)
	return &s, nil
}
