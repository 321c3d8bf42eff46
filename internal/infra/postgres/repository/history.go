package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/infra/postgres"
)

// HistoryRepository provides access to the per-user question history.
type HistoryRepository struct {
	db postgres.DBTX
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db postgres.DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// GetByUserID returns the history of a user ordered by last_seen_at, oldest first.
func (r *HistoryRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]entities.UserQuestionHistory, error) {
	query := `
		SELECT user_id, question_id, times_seen, times_correct, last_seen_at
		FROM user_question_history
		WHERE user_id = $1
		ORDER BY last_seen_at ASC, question_id
	`

	rows, err := r.db.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("get question history: %w", err)
	}
	defer rows.Close()

	var history []entities.UserQuestionHistory
	for rows.Next() {
		var h entities.UserQuestionHistory
		if err := rows.Scan(&h.UserID, &h.QuestionID, &h.TimesSeen, &h.TimesCorrect, &h.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan question history: %w", err)
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// RecordSeen bumps the counters of a question for a user.
func (r *HistoryRepository) RecordSeen(ctx context.Context, userID, questionID uuid.UUID, isCorrect bool, seenAt time.Time) error {
	query := `
		INSERT INTO user_question_history (user_id, question_id, times_seen, times_correct, last_seen_at)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (user_id, question_id) DO UPDATE SET
			times_seen = user_question_history.times_seen + 1,
			times_correct = user_question_history.times_correct + EXCLUDED.times_correct,
			last_seen_at = GREATEST(user_question_history.last_seen_at, EXCLUDED.last_seen_at)
	`

	correct := 0
	if isCorrect {
		correct = 1
	}

	if _, err := r.db.Exec(ctx, query, userID.String(), questionID.String(), correct, seenAt); err != nil {
		return fmt.Errorf("record question seen: %w", err)
	}

	return nil
}
