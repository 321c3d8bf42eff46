package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/retry"
	"github.com/usmle-prep/quizengine/internal/service"
	"github.com/usmle-prep/quizengine/internal/storage"
)

type stubPicker struct {
	questions []entities.Question
}

func (p *stubPicker) Select(_ context.Context, _ *uuid.UUID, _ entities.QuestionFilter, count int) ([]entities.Question, error) {
	if len(p.questions) > count {
		return p.questions[:count], nil
	}
	return p.questions, nil
}

type stubBackend struct {
	mu          sync.Mutex
	answers     int
	creates     int
	createErrs  []error
	completeErr error
}

func (b *stubBackend) CreateSession(_ context.Context, draft *entities.QuizSession) (*entities.QuizSession, error) {
	b.mu.Lock()
	b.creates++
	if len(b.createErrs) > 0 {
		err := b.createErrs[0]
		b.createErrs = b.createErrs[1:]
		b.mu.Unlock()
		return nil, err
	}
	b.mu.Unlock()

	s := *draft
	s.ID = uuid.New()
	return &s, nil
}

func (b *stubBackend) RecordAnswer(context.Context, uuid.UUID, entities.AnswerRecord) error {
	b.mu.Lock()
	b.answers++
	b.mu.Unlock()
	return nil
}

func (b *stubBackend) CompleteSession(_ context.Context, _ uuid.UUID, summary entities.SessionSummary) (*entities.QuizSession, error) {
	if b.completeErr != nil {
		return nil, b.completeErr
	}
	s := summary.Session
	return &s, nil
}

func (b *stubBackend) UpsertUserStats(context.Context, uuid.UUID, entities.StatsDelta) error {
	return nil
}

func questions(n int) []entities.Question {
	out := make([]entities.Question, 0, n)
	for i := range n {
		out = append(out, entities.Question{
			ID:   uuid.New(),
			Text: "Which drug?",
			Options: []entities.Option{
				{ID: "opt-1", Text: "Propranolol"},
				{ID: "opt-2", Text: "Metoprolol"},
			},
			CorrectOptionID: "opt-2",
			Explanation:     "Cardioselective.",
			Points:          i + 1,
			IsActive:        true,
		})
	}
	return out
}

func newOptions(b *stubBackend, qs []entities.Question, drafts service.DraftStore) Options {
	policy := retry.NewPolicy(retry.WithJitter(func() time.Duration { return 0 }))
	return Options{
		NewManager: func() *service.Manager {
			return service.NewManager(b, &stubPicker{questions: qs}, policy, drafts, nil, zap.NewNop())
		},
		Drafts: drafts,
	}
}

func TestRunCustomQuiz(t *testing.T) {
	b := &stubBackend{}
	in := strings.NewReader("custom\n3\nCardiology\nmedium\nB\nx\nA\nS\n")
	var out bytes.Buffer

	if err := Run(context.Background(), in, &out, newOptions(b, questions(5), nil)); err != nil {
		t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
	}

	got := out.String()
	for _, want := range []string{
		"Q1/3: Which drug?",
		"Correct!",
		"Invalid answer.",
		"Wrong. Correct answer was B. Metoprolol",
		"Skipped.",
		"Correct: 1/3 (33%)",
		"Score: 1",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if b.answers != 3 {
		t.Fatalf("expected 3 recorded answers, got %d", b.answers)
	}
}

func TestRunRetriesInvalidSetup(t *testing.T) {
	b := &stubBackend{}
	in := strings.NewReader("custom\n50\n\n\ncustom\n2\n\n\nB\nB\n")
	var out bytes.Buffer

	if err := Run(context.Background(), in, &out, newOptions(b, questions(2), nil)); err != nil {
		t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "question_count") {
		t.Fatalf("expected validation message:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Correct: 2/2 (100%)") {
		t.Fatalf("unexpected result:\n%s", out.String())
	}
}

func TestRunSetupRetryStartsFromScratch(t *testing.T) {
	t.Run("rejected custom then quick", func(t *testing.T) {
		b := &stubBackend{}
		in := strings.NewReader("custom\n50\n\n\n\n\n\n" + strings.Repeat("B\n", 10))
		var out bytes.Buffer

		if err := Run(context.Background(), in, &out, newOptions(b, questions(10), nil)); err != nil {
			t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
		}
		if !strings.Contains(out.String(), "Correct: 10/10 (100%)") {
			t.Fatalf("quick quiz should follow the rejected custom one:\n%s", out.String())
		}
	})

	t.Run("rejected timed then self paced", func(t *testing.T) {
		b := &stubBackend{}
		in := strings.NewReader("timed\n\nbrutal\nself_paced\n2\n\n\nB\nB\n")
		var out bytes.Buffer

		if err := Run(context.Background(), in, &out, newOptions(b, questions(2), nil)); err != nil {
			t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
		}
		got := out.String()
		if !strings.Contains(got, "difficulty") {
			t.Fatalf("expected validation message:\n%s", got)
		}
		if strings.Contains(got, "to answer)") {
			t.Fatalf("self paced quiz must not carry the timed limit:\n%s", got)
		}
		if strings.Count(got, "Correct!") != 2 {
			t.Fatalf("self paced quiz should show feedback after each answer:\n%s", got)
		}
	})
}

// cancellingReader hands out data once, then cancels the run and blocks
// like a terminal waiting for input.
type cancellingReader struct {
	data    []byte
	cancel  context.CancelFunc
	release chan struct{}
}

func (r *cancellingReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	r.cancel()
	<-r.release
	return 0, io.EOF
}

func TestRunStopsWhenCancelled(t *testing.T) {
	b := &stubBackend{}
	drafts := storage.NewDraftStore()
	opts := newOptions(b, questions(3), drafts)

	var m *service.Manager
	newManager := opts.NewManager
	opts.NewManager = func() *service.Manager {
		m = newManager()
		return m
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := &cancellingReader{
		data:    []byte("custom\n3\n\n\nB\n"),
		cancel:  cancel,
		release: make(chan struct{}),
	}
	defer close(in.release)

	var out bytes.Buffer
	err := Run(ctx, in, &out, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v\noutput:\n%s", err, out.String())
	}

	got := out.String()
	if strings.Contains(got, "Q3/3") || strings.Contains(got, "Correct: ") {
		t.Fatalf("quiz must stop once cancelled:\n%s", got)
	}
	if m.State() != service.StateInProgress {
		t.Fatalf("interrupted quiz should stay in progress, got %s", m.State())
	}
	if ids, _ := drafts.List(context.Background()); len(ids) != 1 {
		t.Fatalf("interrupted quiz should leave a draft, got %v", ids)
	}
}

func TestRunUnsavedResultMessage(t *testing.T) {
	tests := []struct {
		name    string
		persist bool
		want    string
		notWant string
	}{
		{
			name:    "persistent drafts",
			persist: true,
			want:    "They will be retried later.",
		},
		{
			name:    "in-memory drafts",
			persist: false,
			want:    "will be lost on exit",
			notWant: "retried later",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &stubBackend{completeErr: errors.New("permission denied for table quiz_sessions")}
			opts := newOptions(b, questions(2), storage.NewDraftStore())
			opts.DraftsPersist = tt.persist

			in := strings.NewReader("custom\n2\n\n\nB\nB\n")
			var out bytes.Buffer
			if err := Run(context.Background(), in, &out, opts); err != nil {
				t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
			}

			got := out.String()
			if !strings.Contains(got, tt.want) {
				t.Fatalf("output missing %q:\n%s", tt.want, got)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Fatalf("output must not contain %q:\n%s", tt.notWant, got)
			}
		})
	}
}

func TestRunOffersRetryWhenLoadFails(t *testing.T) {
	t.Run("retry succeeds", func(t *testing.T) {
		b := &stubBackend{createErrs: []error{errors.New("permission denied for table quiz_sessions")}}
		in := strings.NewReader("custom\n2\n\n\ny\nB\nB\n")
		var out bytes.Buffer

		if err := Run(context.Background(), in, &out, newOptions(b, questions(2), nil)); err != nil {
			t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
		}
		got := out.String()
		if !strings.Contains(got, "quiz could not be started") || !strings.Contains(got, "Retry? [y/n]") {
			t.Fatalf("expected a retry offer:\n%s", got)
		}
		if !strings.Contains(got, "Correct: 2/2 (100%)") {
			t.Fatalf("retried quiz should run to the end:\n%s", got)
		}
		if b.creates != 2 {
			t.Fatalf("expected 2 create attempts, got %d", b.creates)
		}
	})

	t.Run("retry declined", func(t *testing.T) {
		b := &stubBackend{createErrs: []error{errors.New("permission denied for table quiz_sessions")}}
		in := strings.NewReader("custom\n2\n\n\nn\n")
		var out bytes.Buffer

		err := Run(context.Background(), in, &out, newOptions(b, questions(2), nil))
		if err == nil || !strings.Contains(err.Error(), "quiz could not be started") {
			t.Fatalf("expected start error, got %v", err)
		}
		if b.creates != 1 {
			t.Fatalf("expected 1 create attempt, got %d", b.creates)
		}
	})
}

func TestRunTimedOutAnswerIsSkipped(t *testing.T) {
	b := &stubBackend{}
	opts := newOptions(b, questions(20), nil)

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	opts.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	// One minute per answer fits the limit; every answer is B.
	in := strings.NewReader("timed\n\n\n" + strings.Repeat("B\n", 20))
	var out bytes.Buffer
	if err := Run(context.Background(), in, &out, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Score: 100") {
		t.Fatalf("timed quiz should be scored by accuracy:\n%s", out.String())
	}

	opts.Now = func() time.Time {
		clock = clock.Add(2 * time.Minute)
		return clock
	}
	in = strings.NewReader("timed\n\n\n" + strings.Repeat("B\n", 20))
	out.Reset()
	if err := Run(context.Background(), in, &out, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Time is up.") || !strings.Contains(out.String(), "Correct: 0/20") {
		t.Fatalf("late answers must count as timed out:\n%s", out.String())
	}
}

func TestRunResumesDraft(t *testing.T) {
	b := &stubBackend{}
	drafts := storage.NewDraftStore()
	opts := newOptions(b, questions(3), drafts)

	m := opts.NewManager()
	if err := m.Start(context.Background(), service.QuizConfig{Type: entities.SessionCustom, QuestionCount: 3}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	q, _, _ := m.CurrentQuestion()
	sel := "opt-2"
	if _, err := m.SubmitAnswer(context.Background(), q.ID, &sel, time.Second); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	m.Wait()

	in := strings.NewReader("y\nB\nA\n")
	var out bytes.Buffer
	if err := Run(context.Background(), in, &out, opts); err != nil {
		t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
	}

	got := out.String()
	if !strings.Contains(got, "(1/3 answered)") || !strings.Contains(got, "Q2/3") {
		t.Fatalf("expected resume at question 2:\n%s", got)
	}
	if !strings.Contains(got, "Correct: 2/3") {
		t.Fatalf("unexpected result:\n%s", got)
	}
	if ids, _ := drafts.List(context.Background()); len(ids) != 0 {
		t.Fatalf("draft should be gone after completion, got %v", ids)
	}
}
