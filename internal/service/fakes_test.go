package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/retry"
)

func noWaitPolicy() *retry.Policy {
	return retry.NewPolicy(
		retry.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		retry.WithJitter(func() time.Duration { return 0 }),
	)
}

// makeQuestions returns n active questions whose correct option is "a".
func makeQuestions(n int) []entities.Question {
	out := make([]entities.Question, 0, n)
	for i := range n {
		out = append(out, entities.Question{
			ID:   uuid.New(),
			Text: fmt.Sprintf("question %d", i+1),
			Options: []entities.Option{
				{ID: "a", Text: "A"},
				{ID: "b", Text: "B"},
				{ID: "c", Text: "C"},
				{ID: "d", Text: "D"},
			},
			CorrectOptionID: "a",
			Difficulty:      entities.DifficultyMedium,
			Points:          1,
			IsActive:        true,
		})
	}
	return out
}

func ptr(s string) *string { return &s }

type fakePicker struct {
	mu        sync.Mutex
	questions []entities.Question
	err       error
	counts    []int
	filters   []entities.QuestionFilter
}

func (p *fakePicker) Select(_ context.Context, _ *uuid.UUID, filter entities.QuestionFilter, count int) ([]entities.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts = append(p.counts, count)
	p.filters = append(p.filters, filter)
	if p.err != nil {
		return nil, p.err
	}
	return takeFirst(p.questions, count), nil
}

type fakeBackend struct {
	mu sync.Mutex

	createErr   error
	recordErr   error
	completeErr error
	statsErr    error

	createCalls   int
	completeCalls int
	answers       map[uuid.UUID]entities.AnswerRecord
	recordCalls   int
	completed     []entities.SessionSummary
	stats         []entities.StatsDelta
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{answers: make(map[uuid.UUID]entities.AnswerRecord)}
}

func (b *fakeBackend) CreateSession(_ context.Context, draft *entities.QuizSession) (*entities.QuizSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createCalls++
	if b.createErr != nil {
		return nil, b.createErr
	}
	s := *draft
	s.ID = uuid.New()
	return &s, nil
}

func (b *fakeBackend) RecordAnswer(_ context.Context, _ uuid.UUID, answer entities.AnswerRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recordCalls++
	if b.recordErr != nil {
		return b.recordErr
	}
	b.answers[answer.QuestionID] = answer
	return nil
}

func (b *fakeBackend) CompleteSession(_ context.Context, _ uuid.UUID, summary entities.SessionSummary) (*entities.QuizSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completeCalls++
	if b.completeErr != nil {
		return nil, b.completeErr
	}
	b.completed = append(b.completed, summary)
	s := summary.Session
	return &s, nil
}

func (b *fakeBackend) UpsertUserStats(_ context.Context, _ uuid.UUID, delta entities.StatsDelta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statsErr != nil {
		return b.statsErr
	}
	b.stats = append(b.stats, delta)
	return nil
}

func (b *fakeBackend) snapshot() (recordCalls, completeCalls int, stats []entities.StatsDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recordCalls, b.completeCalls, append([]entities.StatsDelta(nil), b.stats...)
}

// fakeSource serves questions from a fixed bank and applies filters the
// way the repository does.
type fakeSource struct {
	bank    []entities.Question
	history []entities.UserQuestionHistory

	historyCalls int
	fetches      []entities.QuestionFilter
}

func (s *fakeSource) FetchQuestions(_ context.Context, filter entities.QuestionFilter) ([]entities.Question, error) {
	s.fetches = append(s.fetches, filter)

	exclude := make(map[uuid.UUID]bool, len(filter.Exclude))
	for _, id := range filter.Exclude {
		exclude[id] = true
	}
	include := make(map[uuid.UUID]bool, len(filter.Include))
	for _, id := range filter.Include {
		include[id] = true
	}

	var out []entities.Question
	for _, q := range s.bank {
		if !q.IsActive || exclude[q.ID] {
			continue
		}
		if len(include) > 0 && !include[q.ID] {
			continue
		}
		if filter.Difficulty != "" && q.Difficulty != filter.Difficulty {
			continue
		}
		out = append(out, q)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeSource) QuestionHistory(_ context.Context, _ uuid.UUID) ([]entities.UserQuestionHistory, error) {
	s.historyCalls++
	return s.history, nil
}
