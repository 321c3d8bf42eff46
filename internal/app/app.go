package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/backend"
	"github.com/usmle-prep/quizengine/internal/config"
	"github.com/usmle-prep/quizengine/internal/infra/postgres"
	"github.com/usmle-prep/quizengine/internal/infra/redis"
	"github.com/usmle-prep/quizengine/internal/retry"
	"github.com/usmle-prep/quizengine/internal/service"
	"github.com/usmle-prep/quizengine/internal/storage"
)

// App holds the wired quiz engine of one process.
type App struct {
	Backend  *backend.Client
	Policy   *retry.Policy
	Selector *service.Selector
	Drafts   service.DraftStore
	Scoring  service.ScoringRules
	Logger   *zap.Logger

	pool  *pgxpool.Pool
	redis *goredis.Client
}

// New connects to the backend with dsn and wires the engine around it.
func New(ctx context.Context, cfg *config.Config, dsn string, logger *zap.Logger) (*App, error) {
	scoring, err := service.ParseScoringRules(cfg.Quiz.Scoring)
	if err != nil {
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolConfig{
		MaxConns:        cfg.DB.MaxConnections,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
		ConnectTimeout:  cfg.DB.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Scoring: scoring,
		Logger:  logger,
		pool:    pool,
	}

	opts := append(cfg.Retry.Options(), retry.OnRetry(func(op string, class retry.Class, attempt int, delay time.Duration, err error) {
		logger.Warn("retrying backend call",
			zap.String("op", op),
			zap.String("class", string(class)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}))
	a.Policy = retry.NewPolicy(opts...)
	a.Backend = backend.New(pool, logger)
	a.Selector = service.NewSelector(a.Backend, a.Policy, logger)

	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.redis = client
		a.Drafts = redis.NewDraftStore(client, cfg.Redis.DraftTTL)
	} else {
		logger.Info("REDIS_URL not set, drafts are kept in memory")
		a.Drafts = storage.NewDraftStore()
	}

	return a, nil
}

// NewManager returns a Manager for a new attempt.
func (a *App) NewManager() *service.Manager {
	return service.NewManager(a.Backend, a.Selector, a.Policy, a.Drafts, a.Scoring, a.Logger)
}

// DraftsPersist reports whether drafts survive a restart.
func (a *App) DraftsPersist() bool {
	return a.redis != nil
}

// Close releases connections.
func (a *App) Close() error {
	a.pool.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			return fmt.Errorf("close redis: %w", err)
		}
	}
	return nil
}
