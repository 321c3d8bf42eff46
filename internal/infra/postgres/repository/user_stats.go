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

var ErrStatsNotFound = errors.New("user stats not found")

// StatsRepository provides access to aggregate user statistics.
type StatsRepository struct {
	db postgres.DBTX
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db postgres.DBTX) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetForUpdate retrieves the statistics row of a user with a row-level lock.
// Must be called inside a transaction.
func (r *StatsRepository) GetForUpdate(ctx context.Context, userID uuid.UUID) (*entities.UserStats, error) {
	query := `
		SELECT user_id, total_quizzes_completed, total_questions_answered,
		       total_correct_answers, overall_accuracy, current_streak,
		       longest_streak, last_quiz_at
		FROM user_stats
		WHERE user_id = $1
		FOR UPDATE
	`

	var s entities.UserStats
	err := r.db.QueryRow(ctx, query, userID.String()).Scan(
		&s.UserID,
		&s.TotalQuizzesCompleted,
		&s.TotalQuestionsAnswered,
		&s.TotalCorrectAnswers,
		&s.OverallAccuracy,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.LastQuizAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("get user stats: %w", err)
	}

	return &s, nil
}

// Upsert creates or replaces the statistics row of a user.
func (r *StatsRepository) Upsert(ctx context.Context, s *entities.UserStats) error {
	query := `
		INSERT INTO user_stats (
			user_id, total_quizzes_completed, total_questions_answered,
			total_correct_answers, overall_accuracy, current_streak,
			longest_streak, last_quiz_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_quizzes_completed = EXCLUDED.total_quizzes_completed,
			total_questions_answered = EXCLUDED.total_questions_answered,
			total_correct_answers = EXCLUDED.total_correct_answers,
			overall_accuracy = EXCLUDED.overall_accuracy,
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_quiz_at = EXCLUDED.last_quiz_at,
			updated_at = NOW()
	`

	_, err := r.db.Exec(
		ctx,
		query,
		s.UserID.String(),
		s.TotalQuizzesCompleted,
		s.TotalQuestionsAnswered,
		s.TotalCorrectAnswers,
		s.OverallAccuracy,
		s.CurrentStreak,
		s.LongestStreak,
		s.LastQuizAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user stats: %w", err)
	}

	return nil
}

// GetSummary calls the get_user_stats remote procedure.
func (r *StatsRepository) GetSummary(ctx context.Context, userID uuid.UUID) (*entities.UserStats, error) {
	query := `
		SELECT total_quizzes_completed, total_questions_answered,
		       total_correct_answers, overall_accuracy, current_streak,
		       longest_streak, last_quiz_at
		FROM get_user_stats($1)
	`

	s := entities.NewUserStats(userID)
	err := r.db.QueryRow(ctx, query, userID.String()).Scan(
		&s.TotalQuizzesCompleted,
		&s.TotalQuestionsAnswered,
		&s.TotalCorrectAnswers,
		&s.OverallAccuracy,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.LastQuizAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("call get_user_stats: %w", err)
	}

	return s, nil
}
