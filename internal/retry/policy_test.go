package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordedSleep struct {
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestPolicy(rec *recordedSleep, opts ...Option) *Policy {
	base := []Option{
		WithSleep(rec.sleep),
		WithJitter(func() time.Duration { return 0 }),
	}
	return NewPolicy(append(base, opts...)...)
}

func TestExecuteRetriesNetworkErrorsWithBackoff(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec)

	calls := 0
	err := p.Execute(context.Background(), "fetchQuestions", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}

	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Fatalf("wait %d: expected %v, got %v", i, want[i], rec.delays[i])
		}
	}
}

func TestExecuteReturnsAttemptsAfterExhaustion(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec)

	calls := 0
	err := p.Execute(context.Background(), "createSession", func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if rerr.Attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got attempts=%d calls=%d", rerr.Attempts, calls)
	}
	if rerr.Class != ClassTimeout {
		t.Fatalf("expected timeout class, got %s", rerr.Class)
	}
	if rerr.Op != "createSession" {
		t.Fatalf("expected op name to be attached, got %q", rerr.Op)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to be preserved")
	}
}

func TestExecuteDoesNotRetryApplicationErrors(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec)

	calls := 0
	err := p.Execute(context.Background(), "createSession", func(context.Context) error {
		calls++
		return errors.New("violates not-null constraint")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
	if len(rec.delays) != 0 {
		t.Fatalf("expected no waits, got %v", rec.delays)
	}
}

func TestExecuteStopsWhenCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	p := NewPolicy(
		WithJitter(func() time.Duration { return 0 }),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	err := p.Execute(ctx, "recordAnswer", func(context.Context) error {
		calls++
		return errors.New("connection reset by peer")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("no attempt may follow a cancellation, got %d calls", calls)
	}
}

func TestSleepContextReturnsImmediatelyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep did not abort on cancel")
	}
}

func TestDoReturnsValueAndJitterIsBounded(t *testing.T) {
	p := NewPolicy(WithSleep(func(context.Context, time.Duration) error { return nil }))

	v, err := Do(context.Background(), p, "count", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("Do = %d, %v", v, err)
	}

	for i := 0; i < 100; i++ {
		if j := randomJitter(); j < 0 || j >= MaxJitter {
			t.Fatalf("jitter out of range: %v", j)
		}
	}
}

func TestWithConfigOverridesBudget(t *testing.T) {
	rec := &recordedSleep{}
	p := newTestPolicy(rec, WithConfig(ClassNetwork, Config{MaxRetries: 0}))

	calls := 0
	_ = p.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	if calls != 1 {
		t.Fatalf("expected override to disable retries, got %d calls", calls)
	}
}
