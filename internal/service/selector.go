package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/retry"
)

// Selector picks questions a user has not seen yet.
// Seen questions are used to fill up the set, least recently seen first.
type Selector struct {
	source QuestionSource
	policy *retry.Policy
	logger *zap.Logger
}

// NewSelector creates a new Selector.
func NewSelector(source QuestionSource, policy *retry.Policy, logger *zap.Logger) *Selector {
	return &Selector{
		source: source,
		policy: policy,
		logger: logger,
	}
}

// Select returns up to count questions matching filter. It returns fewer
// only when the backend has fewer matching active questions.
func (s *Selector) Select(
	ctx context.Context,
	userID *uuid.UUID,
	filter entities.QuestionFilter,
	count int,
) ([]entities.Question, error) {
	if count <= 0 {
		return nil, nil
	}

	var history []entities.UserQuestionHistory
	if userID != nil {
		var err error
		history, err = retry.Do(ctx, s.policy, "questionHistory", func(ctx context.Context) ([]entities.UserQuestionHistory, error) {
			return s.source.QuestionHistory(ctx, *userID)
		})
		if err != nil {
			return nil, err
		}
	}

	seen := seenOldestFirst(history)

	// 1. Unseen questions first.
	unseenFilter := filter
	unseenFilter.Limit = count
	unseenFilter.Exclude = append(append([]uuid.UUID(nil), filter.Exclude...), seen...)

	unseen, err := s.fetch(ctx, unseenFilter)
	if err != nil {
		return nil, err
	}

	out, remaining := appendAndRemaining(nil, uniqueQuestions(unseen), count)
	if remaining == 0 || len(seen) == 0 {
		return takeFirst(out, count), nil
	}

	// 2. Backfill with seen questions, oldest last_seen_at first.
	backfillFilter := filter
	backfillFilter.Limit = 0
	backfillFilter.Include = seen

	candidates, err := s.fetch(ctx, backfillFilter)
	if err != nil {
		return nil, err
	}
	candidates = orderBy(candidates, seen)

	out, _ = appendAndRemaining(out, candidates, count)
	out = takeFirst(uniqueQuestions(out), count)

	s.logger.Debug("questions selected",
		zap.Int("requested", count),
		zap.Int("unseen", len(unseen)),
		zap.Int("returned", len(out)),
	)

	return out, nil
}

// SelectIDs is Select returning only question ids.
func (s *Selector) SelectIDs(
	ctx context.Context,
	userID *uuid.UUID,
	filter entities.QuestionFilter,
	count int,
) ([]uuid.UUID, error) {
	questions, err := s.Select(ctx, userID, filter, count)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return ids, nil
}

func (s *Selector) fetch(ctx context.Context, filter entities.QuestionFilter) ([]entities.Question, error) {
	return retry.Do(ctx, s.policy, "fetchQuestions", func(ctx context.Context) ([]entities.Question, error) {
		return s.source.FetchQuestions(ctx, filter)
	})
}

// seenOldestFirst returns ids of seen questions ordered by last_seen_at ascending.
func seenOldestFirst(history []entities.UserQuestionHistory) []uuid.UUID {
	seen := make([]entities.UserQuestionHistory, 0, len(history))
	for _, h := range history {
		if h.Seen() {
			seen = append(seen, h)
		}
	}

	sort.SliceStable(seen, func(i, j int) bool {
		return seen[i].LastSeenAt.Before(seen[j].LastSeenAt)
	})

	ids := make([]uuid.UUID, 0, len(seen))
	for _, h := range seen {
		ids = append(ids, h.QuestionID)
	}
	return ids
}

// orderBy sorts questions by the position of their id in order.
// Questions not present in order are dropped.
func orderBy(questions []entities.Question, order []uuid.UUID) []entities.Question {
	pos := make(map[uuid.UUID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	out := make([]entities.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := pos[q.ID]; ok {
			out = append(out, q)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return pos[out[i].ID] < pos[out[j].ID] })
	return out
}

// uniqueQuestions removes duplicates keeping the input order.
func uniqueQuestions(questions []entities.Question) []entities.Question {
	seen := make(map[uuid.UUID]struct{}, len(questions))
	out := make([]entities.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out
}

// takeFirst returns the first n elements of items, or the whole slice if it is shorter.
func takeFirst[T any](items []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// appendAndRemaining appends add to out and returns the updated out and remaining capacity up to total.
func appendAndRemaining[T any](out []T, add []T, total int) ([]T, int) {
	out = append(out, add...)
	rem := total - len(out)
	if rem < 0 {
		rem = 0
	}
	return out, rem
}
