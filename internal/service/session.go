package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/backend"
	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/retry"
)

const draftPersistTimeout = 2 * time.Second

// Manager drives a single quiz attempt from configuration to completion:
//
//	configuring -> loading -> in_progress -> completing -> completed
//
// with failed reachable from loading and completing. A Manager is not
// reused: every attempt needs a new one. All methods are safe for
// concurrent use.
type Manager struct {
	backend SessionBackend
	picker  QuestionPicker
	policy  *retry.Policy
	drafts  DraftStore // optional
	scoring ScoringRules
	logger  *zap.Logger

	// ctx outlives individual calls; Cancel aborts background retries.
	ctx     context.Context
	cancel  context.CancelFunc
	pending conc.WaitGroup

	mu        sync.Mutex
	state     State
	err       error
	config    QuizConfig
	session   *entities.QuizSession
	questions []entities.Question
	index     map[uuid.UUID]int
	answers   []*entities.AnswerRecord
	next      int // index of the next unanswered question
	correct   int
	summary   *entities.SessionSummary
}

// NewManager creates a Manager in the configuring state.
// drafts may be nil, in which case no draft is kept.
func NewManager(
	backend SessionBackend,
	picker QuestionPicker,
	policy *retry.Policy,
	drafts DraftStore,
	scoring ScoringRules,
	logger *zap.Logger,
) *Manager {
	if policy == nil {
		policy = retry.NewPolicy()
	}
	if scoring == nil {
		scoring = DefaultScoringRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		backend: backend,
		picker:  picker,
		policy:  policy,
		drafts:  drafts,
		scoring: scoring,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateConfiguring,
	}
}

// Start validates the configuration, picks the questions and creates the
// session. An invalid configuration leaves the manager in configuring;
// any other error moves it to failed.
func (m *Manager) Start(ctx context.Context, cfg QuizConfig) error {
	m.mu.Lock()
	if m.state != StateConfiguring {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("start in state %s: %w", state, ErrInvalidState)
	}

	cfg, err := cfg.Normalize()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	m.state = StateLoading
	m.mu.Unlock()

	ctx, stop := m.scope(ctx)
	defer stop()

	questions, err := m.picker.Select(ctx, cfg.UserID, cfg.Filter(), cfg.QuestionCount)
	if err == nil && len(questions) == 0 {
		err = ErrNoQuestionsAvailable
	}
	if err != nil {
		return m.fail("select questions", err)
	}
	if len(questions) < cfg.QuestionCount {
		m.logger.Warn("short quiz session",
			zap.Int("requested", cfg.QuestionCount),
			zap.Int("available", len(questions)),
		)
	}

	draft := entities.NewQuizSession(cfg.UserID, cfg.Type, questions, cfg.Settings())
	session, err := retry.Do(ctx, m.policy, "createSession", func(ctx context.Context) (*entities.QuizSession, error) {
		return m.backend.CreateSession(ctx, draft)
	})
	if err != nil {
		return m.fail("create session", err)
	}

	m.mu.Lock()
	m.session = session
	m.questions = questions
	m.index = indexQuestions(questions)
	m.answers = make([]*entities.AnswerRecord, len(questions))
	m.state = StateInProgress
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.saveDraft(snapshot)

	m.logger.Info("quiz started",
		zap.String("session_id", session.ID.String()),
		zap.String("session_type", string(cfg.Type)),
		zap.Int("total_questions", len(questions)),
	)

	return nil
}

// SubmitAnswer records the answer to the current question. A nil selection
// marks the question as skipped. Answering an already answered question is a
// no-op that returns the first answer. The backend write happens in the
// background; answering the last question completes the quiz before
// SubmitAnswer returns.
func (m *Manager) SubmitAnswer(
	ctx context.Context,
	questionID uuid.UUID,
	selected *string,
	elapsed time.Duration,
) (entities.AnswerRecord, error) {
	m.mu.Lock()

	if m.index == nil {
		state := m.state
		m.mu.Unlock()
		return entities.AnswerRecord{}, fmt.Errorf("submit answer in state %s: %w", state, ErrInvalidState)
	}

	idx, ok := m.index[questionID]
	if !ok {
		m.mu.Unlock()
		return entities.AnswerRecord{}, ErrUnknownQuestion
	}

	if prev := m.answers[idx]; prev != nil {
		rec := *prev
		m.mu.Unlock()
		m.logger.Debug("duplicate answer ignored",
			zap.String("session_id", rec.SessionID.String()),
			zap.String("question_id", questionID.String()),
		)
		return rec, nil
	}

	if m.state != StateInProgress {
		state := m.state
		m.mu.Unlock()
		return entities.AnswerRecord{}, fmt.Errorf("submit answer in state %s: %w", state, ErrInvalidState)
	}
	if idx != m.next {
		m.mu.Unlock()
		return entities.AnswerRecord{}, ErrOutOfOrder
	}

	q := &m.questions[idx]
	if selected != nil {
		if !q.HasOption(*selected) {
			m.mu.Unlock()
			return entities.AnswerRecord{}, ErrUnknownOption
		}
		sel := *selected
		selected = &sel
	}

	rec := entities.NewAnswerRecord(m.session.ID, q, selected, elapsed)
	m.answers[idx] = &rec
	m.next++
	if rec.IsCorrect {
		m.correct++
	}

	last := m.next == len(m.questions)
	if last {
		m.state = StateCompleting
	}

	m.recordInBackground(rec)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.saveDraft(snapshot)

	if last {
		m.complete(ctx)
	}

	return rec, nil
}

// Skip records a question as skipped, e.g. when its timer ran out.
func (m *Manager) Skip(ctx context.Context, questionID uuid.UUID, elapsed time.Duration) (entities.AnswerRecord, error) {
	return m.SubmitAnswer(ctx, questionID, nil, elapsed)
}

// Resume restores an attempt from a draft. Drafts with every question
// answered go straight to completion.
func (m *Manager) Resume(ctx context.Context, d *Draft) error {
	if err := d.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateConfiguring {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("resume in state %s: %w", state, ErrInvalidState)
	}

	session := d.Session
	m.session = &session
	m.questions = append([]entities.Question(nil), d.Questions...)
	m.index = indexQuestions(m.questions)
	m.answers = make([]*entities.AnswerRecord, len(m.questions))
	m.config = QuizConfig{
		UserID:          session.UserID,
		Type:            session.Type,
		QuestionCount:   session.TotalQuestions,
		Categories:      session.Settings.Categories,
		Difficulty:      session.Settings.Difficulty,
		TimePerQuestion: session.Settings.TimePerQuestion,
		AutoAdvance:     session.Settings.AutoAdvance,
	}
	for i, a := range d.Answers {
		if a == nil {
			continue
		}
		rec := *a
		m.answers[i] = &rec
		m.next++
		if rec.IsCorrect {
			m.correct++
		}
	}

	if d.State == StateCompleted {
		m.state = StateCompleted
		m.summary = m.summaryLocked(true)
		m.mu.Unlock()
		m.deleteDraft(session.ID)
		return nil
	}

	if m.next < len(m.questions) {
		m.state = StateInProgress
		m.mu.Unlock()
		m.logger.Info("quiz resumed",
			zap.String("session_id", session.ID.String()),
			zap.Int("answered", d.Answered()),
		)
		return nil
	}

	// Everything was answered; writes may have been lost, and they are
	// idempotent, so send them again before completing.
	m.state = StateCompleting
	for _, a := range m.answers {
		m.recordInBackground(*a)
	}
	m.mu.Unlock()

	m.complete(ctx)

	if m.State() == StateFailed {
		return m.Err()
	}
	return nil
}

// complete persists the final result. It runs in the completing state.
func (m *Manager) complete(ctx context.Context) {
	ctx, stop := m.scope(ctx)
	defer stop()

	// Answer writes land before the session is closed.
	m.waitPending()

	m.mu.Lock()
	session := *m.session
	score := m.scoring.Score(session.Type, m.questions, m.answers)
	session.Complete(m.correct, score, time.Now().UTC())
	summary := entities.SessionSummary{
		Session: session,
		Answers: m.answerListLocked(),
		Score:   score,
	}
	m.mu.Unlock()

	persisted, err := retry.Do(ctx, m.policy, "completeSession", func(ctx context.Context) (*entities.QuizSession, error) {
		return m.backend.CompleteSession(ctx, session.ID, summary)
	})

	alreadyCompleted := errors.Is(err, backend.ErrAlreadyCompleted)
	if alreadyCompleted {
		m.logger.Info("quiz session was already completed", zap.String("session_id", session.ID.String()))
		err = nil
	}
	if err == nil && persisted != nil && persisted.CompletedAt != nil {
		summary.Session.CompletedAt = persisted.CompletedAt
	}

	m.mu.Lock()
	if err != nil {
		m.state = StateFailed
		m.err = err
		summary.Saved = false
		m.summary = &summary
		snapshot := m.snapshotLocked()
		m.mu.Unlock()

		m.logger.Error("quiz results may not be saved",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		m.saveDraft(snapshot)
		return
	}

	summary.Saved = true
	m.session = &summary.Session
	m.summary = &summary
	m.state = StateCompleted
	m.mu.Unlock()

	m.deleteDraft(session.ID)

	m.logger.Info("quiz completed",
		zap.String("session_id", session.ID.String()),
		zap.Int("correct_answers", summary.Session.CorrectAnswers),
		zap.Int("total_questions", summary.Session.TotalQuestions),
		zap.Int("score", summary.Score),
	)

	// A previous run already counted this session.
	if summary.Session.UserID != nil && !alreadyCompleted {
		m.upsertStatsInBackground(*summary.Session.UserID, entities.DeltaFromSummary(&summary))
	}
}

func (m *Manager) fail(stage string, err error) error {
	m.mu.Lock()
	m.state = StateFailed
	m.err = err
	m.mu.Unlock()

	m.logger.Error("quiz failed", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("%s: %w", stage, err)
}

// recordInBackground sends one answer without blocking the caller.
func (m *Manager) recordInBackground(rec entities.AnswerRecord) {
	m.pending.Go(func() {
		err := m.policy.Execute(m.ctx, "recordAnswer", func(ctx context.Context) error {
			return m.backend.RecordAnswer(ctx, rec.SessionID, rec)
		})
		if err != nil {
			m.logger.Warn("answer not recorded, keeping local copy",
				zap.String("session_id", rec.SessionID.String()),
				zap.String("question_id", rec.QuestionID.String()),
				zap.Error(err),
			)
		}
	})
}

func (m *Manager) upsertStatsInBackground(userID uuid.UUID, delta entities.StatsDelta) {
	m.pending.Go(func() {
		err := m.policy.Execute(m.ctx, "upsertUserStats", func(ctx context.Context) error {
			return m.backend.UpsertUserStats(ctx, userID, delta)
		})
		if err != nil {
			m.logger.Warn("user stats not updated",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	})
}

func (m *Manager) waitPending() {
	if r := m.pending.WaitAndRecover(); r != nil {
		m.logger.Error("background write panicked", zap.Error(r.AsError()))
	}
}

// scope derives a context that is also cancelled by Cancel.
func (m *Manager) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Cancel aborts pending retry waits. Writes already sent are not rolled back.
func (m *Manager) Cancel() {
	m.cancel()
}

// Wait blocks until background writes have finished.
func (m *Manager) Wait() {
	m.waitPending()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error that moved the manager to failed.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Config returns the normalized configuration of the attempt.
func (m *Manager) Config() QuizConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Session returns a copy of the session, or nil before it was created.
func (m *Manager) Session() *entities.QuizSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	s.CorrectAnswers = m.correct
	return &s
}

// Questions returns the questions of the attempt in order.
func (m *Manager) Questions() []entities.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Question(nil), m.questions...)
}

// CurrentQuestion returns the next unanswered question and its index.
func (m *Manager) CurrentQuestion() (entities.Question, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInProgress || m.next >= len(m.questions) {
		return entities.Question{}, 0, false
	}
	return m.questions[m.next], m.next, true
}

// Progress returns the number of answered questions and the total.
func (m *Manager) Progress() (answered, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next, len(m.questions)
}

// Answers returns the answers recorded so far, in question order.
func (m *Manager) Answers() []entities.AnswerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answerListLocked()
}

// Summary returns the final result once completion was attempted.
func (m *Manager) Summary() *entities.SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary == nil {
		return nil
	}
	s := *m.summary
	s.Answers = append([]entities.AnswerRecord(nil), m.summary.Answers...)
	return &s
}

// Snapshot returns a draft of the current attempt, or nil before the
// session was created.
func (m *Manager) Snapshot() *Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() *Draft {
	if m.session == nil {
		return nil
	}
	return &Draft{
		Version:   draftVersion,
		State:     m.state,
		Session:   *m.session,
		Questions: m.questions,
		Answers:   append([]*entities.AnswerRecord(nil), m.answers...),
		SavedAt:   time.Now().UTC(),
	}
}

func (m *Manager) summaryLocked(saved bool) *entities.SessionSummary {
	return &entities.SessionSummary{
		Session: *m.session,
		Answers: m.answerListLocked(),
		Score:   m.session.Score,
		Saved:   saved,
	}
}

func (m *Manager) answerListLocked() []entities.AnswerRecord {
	out := make([]entities.AnswerRecord, 0, m.next)
	for _, a := range m.answers {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

func (m *Manager) saveDraft(d *Draft) {
	if m.drafts == nil || d == nil {
		return
	}

	payload, err := EncodeDraft(d)
	if err != nil {
		m.logger.Warn("draft not saved", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), draftPersistTimeout)
	defer cancel()

	if err := m.drafts.Save(ctx, d.Session.ID, payload); err != nil {
		m.logger.Warn("draft not saved",
			zap.String("session_id", d.Session.ID.String()),
			zap.Error(err),
		)
	}
}

func (m *Manager) deleteDraft(sessionID uuid.UUID) {
	if m.drafts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), draftPersistTimeout)
	defer cancel()

	if err := m.drafts.Delete(ctx, sessionID); err != nil {
		m.logger.Warn("draft not deleted",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}
}

func indexQuestions(questions []entities.Question) map[uuid.UUID]int {
	index := make(map[uuid.UUID]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}
	return index
}
