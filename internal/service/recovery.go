package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/storage"
)

// DefaultRecoverySchedule runs recovery every five minutes.
const DefaultRecoverySchedule = "*/5 * * * *"

const recoveryConcurrency = 4

// Recovery replays completion of attempts whose results were not saved.
type Recovery struct {
	drafts     DraftStore
	newManager func() *Manager
	logger     *zap.Logger
}

// NewRecovery creates a new Recovery. newManager must return a fresh
// Manager for every call.
func NewRecovery(drafts DraftStore, newManager func() *Manager, logger *zap.Logger) *Recovery {
	return &Recovery{
		drafts:     drafts,
		newManager: newManager,
		logger:     logger,
	}
}

// Start runs recovery once, then on schedule until ctx is done.
func (r *Recovery) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultRecoverySchedule
	}

	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(schedule, func() {
		r.logger.Debug("cron triggered: recovering quiz drafts")
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("failed to recover quiz drafts", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("add recovery job %q: %w", schedule, err)
	}

	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("failed to recover quiz drafts", zap.Error(err))
	}

	c.Start()
	r.logger.Info("draft recovery started", zap.String("schedule", schedule))

	<-ctx.Done()

	<-c.Stop().Done()
	r.logger.Info("draft recovery stopped")
	return nil
}

// RunOnce completes every recoverable draft and returns how many were saved.
func (r *Recovery) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.drafts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list drafts: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, recoveryConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	saved := 0

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok, err := r.recoverOne(ctx, id)
			if err != nil {
				r.logger.Warn("quiz draft not recovered",
					zap.String("session_id", id.String()),
					zap.Error(err),
				)
				return
			}
			if ok {
				mu.Lock()
				saved++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	r.logger.Info("quiz drafts processed",
		zap.Int("drafts", len(ids)),
		zap.Int("saved", saved),
	)

	return saved, ctx.Err()
}

// recoverOne reports whether the attempt behind a draft was saved.
func (r *Recovery) recoverOne(ctx context.Context, id uuid.UUID) (bool, error) {
	draft, err := LoadDraft(ctx, r.drafts, id)
	switch {
	case errors.Is(err, storage.ErrDraftNotFound):
		// Expired or completed by another run in the meantime.
		return false, nil
	case errors.Is(err, ErrInvalidDraft):
		r.logger.Warn("dropping unreadable quiz draft",
			zap.String("session_id", id.String()),
			zap.Error(err),
		)
		return false, r.drafts.Delete(ctx, id)
	case err != nil:
		return false, err
	}

	if !draft.Recoverable() {
		return false, nil
	}

	m := r.newManager()
	defer m.Wait()

	if err := m.Resume(ctx, draft); err != nil {
		return false, err
	}
	return m.State() == StateCompleted, nil
}
