package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/infra/postgres"
	"github.com/usmle-prep/quizengine/internal/infra/postgres/repository"
)

// Client is the only component that talks to the backend database.
// It holds no per-session state and is safe for concurrent use.
type Client struct {
	pool       *pgxpool.Pool
	transactor *postgres.Transactor
	questions  *repository.QuestionRepository
	quizzes    *repository.QuizRepository
	history    *repository.HistoryRepository
	stats      *repository.StatsRepository
	profiles   *repository.ProfileRepository
	diag       *repository.DiagnosticsRepository
	logger     *zap.Logger
}

// New creates a Client on top of a connection pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Client {
	return &Client{
		pool:       pool,
		transactor: postgres.NewTransactor(pool),
		questions:  repository.NewQuestionRepository(pool),
		quizzes:    repository.NewQuizRepository(pool),
		history:    repository.NewHistoryRepository(pool),
		stats:      repository.NewStatsRepository(pool),
		profiles:   repository.NewProfileRepository(pool),
		diag:       repository.NewDiagnosticsRepository(pool),
		logger:     logger,
	}
}

// Ping checks that the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return wrap("ping", c.pool.Ping(ctx))
}

// FetchQuestions returns active questions matching the filter.
func (c *Client) FetchQuestions(ctx context.Context, filter entities.QuestionFilter) ([]entities.Question, error) {
	questions, err := c.questions.Find(ctx, filter)
	if err != nil {
		return nil, wrap("fetchQuestions", err)
	}
	return questions, nil
}

// QuestionHistory returns the question history of a user, oldest first.
func (c *Client) QuestionHistory(ctx context.Context, userID uuid.UUID) ([]entities.UserQuestionHistory, error) {
	history, err := c.history.GetByUserID(ctx, userID)
	if err != nil {
		return nil, wrap("questionHistory", err)
	}
	return history, nil
}

// CreateSession inserts a new session and returns it with its generated id.
func (c *Client) CreateSession(ctx context.Context, draft *entities.QuizSession) (*entities.QuizSession, error) {
	if draft.TotalQuestions != len(draft.QuestionIDs) {
		return nil, wrap("createSession", fmt.Errorf("total_questions %d does not match %d question ids", draft.TotalQuestions, len(draft.QuestionIDs)))
	}

	session := *draft
	if err := c.quizzes.Create(ctx, &session); err != nil {
		return nil, wrap("createSession", err)
	}

	c.logger.Debug("quiz session created",
		zap.String("session_id", session.ID.String()),
		zap.String("session_type", string(session.Type)),
		zap.Int("total_questions", session.TotalQuestions),
	)

	return &session, nil
}

// RecordAnswer stores one answer. Repeating the call for the same
// session and question overwrites the answer and does not touch the
// question history a second time.
func (c *Client) RecordAnswer(ctx context.Context, sessionID uuid.UUID, answer entities.AnswerRecord) error {
	answer.SessionID = sessionID

	err := c.transactor.WithinTx(ctx, func(ctx context.Context, tx postgres.DBTX) error {
		quizzes := repository.NewQuizRepository(tx)

		session, err := quizzes.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}

		inserted, err := quizzes.SaveAnswer(ctx, &answer)
		if err != nil {
			return err
		}

		if !inserted || session.UserID == nil {
			return nil
		}

		return repository.NewHistoryRepository(tx).RecordSeen(ctx, *session.UserID, answer.QuestionID, answer.IsCorrect, answer.AnsweredAt)
	})
	if err != nil {
		return wrap("recordAnswer", err)
	}

	return nil
}

// CompleteSession marks the session as completed with the final counters.
// It returns ErrAlreadyCompleted if the session was completed before.
func (c *Client) CompleteSession(ctx context.Context, sessionID uuid.UUID, summary entities.SessionSummary) (*entities.QuizSession, error) {
	session := summary.Session
	session.ID = sessionID
	if session.CompletedAt == nil {
		now := time.Now().UTC()
		session.CompletedAt = &now
	}
	session.Score = summary.Score

	completed, err := c.quizzes.Complete(ctx, &session)
	switch {
	case err == nil:
		return completed, nil
	case errors.Is(err, repository.ErrSessionCompleted):
		return nil, wrap("completeSession", ErrAlreadyCompleted)
	case errors.Is(err, repository.ErrSessionNotFound):
		return nil, wrap("completeSession", ErrSessionNotFound)
	default:
		return nil, wrap("completeSession", err)
	}
}

// UpsertUserStats adds the contribution of a completed session to the
// user's aggregate statistics.
func (c *Client) UpsertUserStats(ctx context.Context, userID uuid.UUID, delta entities.StatsDelta) error {
	err := c.transactor.WithinTx(ctx, func(ctx context.Context, tx postgres.DBTX) error {
		repo := repository.NewStatsRepository(tx)

		stats, err := repo.GetForUpdate(ctx, userID)
		if errors.Is(err, repository.ErrStatsNotFound) {
			stats = entities.NewUserStats(userID)
		} else if err != nil {
			return err
		}

		stats.Apply(delta)
		return repo.Upsert(ctx, stats)
	})
	if err != nil {
		return wrap("upsertUserStats", err)
	}

	return nil
}

// GetUserStats reads the aggregate statistics through get_user_stats.
func (c *Client) GetUserStats(ctx context.Context, userID uuid.UUID) (*entities.UserStats, error) {
	stats, err := c.stats.GetSummary(ctx, userID)
	if err != nil {
		return nil, wrap("getUserStats", err)
	}
	return stats, nil
}

// EnsureProfile creates the profile row of a user if it does not exist.
func (c *Client) EnsureProfile(ctx context.Context, userID uuid.UUID, displayName string) error {
	created, err := c.profiles.Save(ctx, &repository.Profile{
		ID:          userID,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return wrap("ensureProfile", err)
	}
	if created {
		c.logger.Info("profile created", zap.String("user_id", userID.String()))
	}
	return nil
}

// CountActiveQuestions returns active question counts per difficulty.
func (c *Client) CountActiveQuestions(ctx context.Context) (map[entities.Difficulty]int, error) {
	counts, err := c.questions.CountActive(ctx)
	if err != nil {
		return nil, wrap("countActiveQuestions", err)
	}
	return counts, nil
}

// SeedQuestion stores a question and links its tags in one transaction.
func (c *Client) SeedQuestion(ctx context.Context, q *entities.Question) error {
	err := c.transactor.WithinTx(ctx, func(ctx context.Context, tx postgres.DBTX) error {
		repo := repository.NewQuestionRepository(tx)

		if err := repo.Upsert(ctx, q); err != nil {
			return err
		}
		for _, tag := range q.Tags {
			tagID, err := repo.UpsertTag(ctx, tag)
			if err != nil {
				return err
			}
			if err := repo.AttachTag(ctx, q.ID, tagID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrap("seedQuestion", err)
	}
	return nil
}

// Diagnostics returns the catalog inspector used by the diagnose command.
func (c *Client) Diagnostics() *repository.DiagnosticsRepository {
	return c.diag
}
