package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// MaxJitter is the upper bound of the random delay added to every backoff step.
const MaxJitter = 500 * time.Millisecond

// Config is the retry budget of one error class.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultConfigs returns the built-in budgets per class.
func DefaultConfigs() map[Class]Config {
	return map[Class]Config{
		ClassNetwork:     {MaxRetries: 2, BaseDelay: 500 * time.Millisecond},
		ClassTimeout:     {MaxRetries: 2, BaseDelay: time.Second},
		ClassRateLimit:   {MaxRetries: 3, BaseDelay: 5 * time.Second},
		ClassApplication: {MaxRetries: 0, BaseDelay: 0},
	}
}

// ConfigFor returns the default budget of a class.
func ConfigFor(class Class) Config {
	return DefaultConfigs()[class]
}

// Error is returned once an operation has failed for good.
type Error struct {
	Op       string
	Class    Class
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error after %d attempt(s): %v", e.Op, e.Class, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Policy runs operations and retries them according to the error class.
// A Policy is safe for concurrent use.
type Policy struct {
	configs  map[Class]Config
	classify func(error) Class
	jitter   func() time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	onRetry  func(op string, class Class, attempt int, delay time.Duration, err error)
}

type Option func(*Policy)

// WithConfig overrides the budget of one class.
func WithConfig(class Class, cfg Config) Option {
	return func(p *Policy) { p.configs[class] = cfg }
}

// WithJitter replaces the jitter source.
func WithJitter(fn func() time.Duration) Option {
	return func(p *Policy) { p.jitter = fn }
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = fn }
}

// WithClassifier replaces Classify.
func WithClassifier(fn func(error) Class) Option {
	return func(p *Policy) { p.classify = fn }
}

// OnRetry registers a hook called before each wait.
func OnRetry(fn func(op string, class Class, attempt int, delay time.Duration, err error)) Option {
	return func(p *Policy) { p.onRetry = fn }
}

func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		configs:  DefaultConfigs(),
		classify: Classify,
		jitter:   randomJitter,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the budget the policy applies to a class.
func (p *Policy) Config(class Class) Config {
	return p.configs[class]
}

// Delay returns the wait before retry number attempt (0-based), jitter excluded.
func (p *Policy) Delay(class Class, attempt int) time.Duration {
	return p.configs[class].BaseDelay << attempt
}

// Execute runs fn until it succeeds or its error class runs out of retries.
func (p *Policy) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, &Error{Op: op, Class: ClassApplication, Attempts: attempt, Err: err}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		class := p.classify(err)
		cfg := p.configs[class]
		if attempt >= cfg.MaxRetries {
			return zero, &Error{Op: op, Class: class, Attempts: attempt + 1, Err: err}
		}

		delay := p.Delay(class, attempt) + p.jitter()
		if p.onRetry != nil {
			p.onRetry(op, class, attempt+1, delay, err)
		}

		if serr := p.sleep(ctx, delay); serr != nil {
			// Cancelled while waiting: report the failure that caused the wait.
			return zero, &Error{Op: op, Class: class, Attempts: attempt + 1, Err: err}
		}
	}
}

func randomJitter() time.Duration {
	return rand.N(MaxJitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
