package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/service"
)

const maxAttempts = 3

// Options wires the shell to the quiz engine.
type Options struct {
	UserID        *uuid.UUID
	NewManager    func() *service.Manager
	Drafts        service.DraftStore // optional; enables resuming attempts
	// DraftsPersist is set when Drafts outlives the process, so unsaved
	// results can be recovered later.
	DraftsPersist bool
	Now           func() time.Time
	Logger        *zap.Logger
}

// Run drives one quiz attempt in a terminal: pick a setup or resume a
// draft, answer every question and print the result.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	reader := newLineReader(ctx, in)
	m := opts.NewManager()
	defer func() { m.Wait() }()
	stop := context.AfterFunc(ctx, m.Cancel)
	defer func() { stop() }()

	resumed, err := offerResume(ctx, reader, out, m, opts)
	if err != nil {
		return err
	}

	if !resumed {
		cfg, err := promptConfig(ctx, reader, out, opts.UserID)
		if err != nil {
			return err
		}

		for {
			fmt.Fprintln(out, "Loading questions...")
			err := m.Start(ctx, cfg)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, service.ErrInvalidConfiguration) || errors.Is(err, service.ErrNoQuestionsAvailable) {
				return describeStartError(err)
			}

			opts.Logger.Warn("quiz not started", zap.Error(err))
			fmt.Fprintln(out, describeStartError(err))
			again, perr := promptYesNo(ctx, reader, out, "Retry? [y/n]: ")
			if perr != nil {
				return perr
			}
			if !again {
				return describeStartError(err)
			}

			// A failed manager stays failed; the retry gets a new one.
			stop()
			m.Wait()
			m = opts.NewManager()
			stop = context.AfterFunc(ctx, m.Cancel)
		}
	}

	if err := play(ctx, reader, out, m, opts.Now); err != nil {
		return err
	}

	// Background writes finish before the result is shown.
	m.Wait()
	printSummary(out, m.Summary(), opts.DraftsPersist)
	return nil
}

func offerResume(ctx context.Context, reader *lineReader, out io.Writer, m *service.Manager, opts Options) (bool, error) {
	if opts.Drafts == nil {
		return false, nil
	}

	ids, err := opts.Drafts.List(ctx)
	if err != nil {
		opts.Logger.Warn("drafts not listed", zap.Error(err))
		return false, nil
	}

	for _, id := range ids {
		draft, err := service.LoadDraft(ctx, opts.Drafts, id)
		if err != nil || draft.State != service.StateInProgress || !sameUser(draft.Session.UserID, opts.UserID) {
			continue
		}

		prompt := fmt.Sprintf("Resume %s quiz from %s (%d/%d answered)? [y/n]: ",
			draft.Session.Type,
			draft.SavedAt.Local().Format(time.DateTime),
			draft.Answered(),
			draft.Session.TotalQuestions,
		)
		ok, err := promptYesNo(ctx, reader, out, prompt)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		if err := m.Resume(ctx, draft); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

func play(ctx context.Context, reader *lineReader, out io.Writer, m *service.Manager, now func() time.Time) error {
	settings := m.Config()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		q, idx, ok := m.CurrentQuestion()
		if !ok {
			break
		}
		_, total := m.Progress()

		printQuestion(out, idx+1, total, q, settings.TimePerQuestion)

		started := now()
		selected, err := promptAnswer(ctx, reader, out, q.Options)
		if err != nil {
			return err
		}
		elapsed := now().Sub(started)

		if settings.TimePerQuestion > 0 && elapsed > settings.TimePerQuestion {
			fmt.Fprintln(out, "Time is up.")
			selected = nil
		}

		rec, err := m.SubmitAnswer(ctx, q.ID, selected, elapsed)
		if err != nil {
			return err
		}

		if !settings.AutoAdvance {
			printFeedback(out, q, rec)
		}
	}

	if m.State() == service.StateInProgress {
		return errors.New("quiz ended before all questions were answered")
	}
	return nil
}

func promptConfig(ctx context.Context, reader *lineReader, out io.Writer, userID *uuid.UUID) (service.QuizConfig, error) {
	for attempt := 1; ; attempt++ {
		cfg := service.QuizConfig{UserID: userID}

		fmt.Fprint(out, "Session type (quick, custom, timed, self_paced) [quick]: ")
		line, err := reader.readLine(ctx)
		if err != nil {
			return cfg, err
		}
		if line == "" {
			line = string(entities.SessionQuick)
		}
		cfg.Type = entities.SessionType(line)

		switch cfg.Type {
		case entities.SessionCustom, entities.SessionSelfPaced:
			count, err := promptCount(ctx, reader, out)
			if err != nil {
				return cfg, err
			}
			cfg.QuestionCount = count
		case entities.SessionTimed:
			cfg.TimePerQuestion = 90 * time.Second
			cfg.AutoAdvance = true
		}

		fmt.Fprint(out, "Categories, comma separated [any]: ")
		line, err = reader.readLine(ctx)
		if err != nil {
			return cfg, err
		}
		cfg.Categories = splitList(line)

		fmt.Fprint(out, "Difficulty (easy, medium, hard) [any]: ")
		line, err = reader.readLine(ctx)
		if err != nil {
			return cfg, err
		}
		cfg.Difficulty = entities.Difficulty(line)

		normalized, err := cfg.Normalize()
		if err == nil {
			return normalized, nil
		}
		fmt.Fprintln(out, err)
		if attempt == maxAttempts {
			return cfg, err
		}
	}
}

func describeStartError(err error) error {
	switch {
	case errors.Is(err, service.ErrNoQuestionsAvailable):
		return errors.New("no questions match this setup")
	case errors.Is(err, service.ErrInvalidConfiguration):
		return err
	default:
		return fmt.Errorf("quiz could not be started: %w", err)
	}
}

func sameUser(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func splitList(line string) []string {
	var out []string
	for _, part := range strings.Split(line, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
