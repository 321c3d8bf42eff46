package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/app"
	"github.com/usmle-prep/quizengine/internal/config"
	"github.com/usmle-prep/quizengine/internal/logger"
	"github.com/usmle-prep/quizengine/internal/shell"
)

func main() {
	userFlag := flag.String("user", "", "user id; empty plays as guest")
	nameFlag := flag.String("name", "", "display name stored with the profile")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	err = run(cfg, lg, *userFlag, *nameFlag)
	_ = lg.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, lg *zap.Logger, user, name string) error {
	dsn, err := cfg.DB.DSN()
	if err != nil {
		return err
	}

	var userID *uuid.UUID
	if user != "" {
		id, err := uuid.Parse(user)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", user, err)
		}
		userID = &id
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, dsn, lg)
	if err != nil {
		return fmt.Errorf("initialize quiz engine: %w", err)
	}
	defer func() { _ = a.Close() }()

	if userID != nil && name != "" {
		if err := a.Backend.EnsureProfile(ctx, *userID, name); err != nil {
			lg.Warn("profile not saved", zap.Error(err))
		}
	}

	err = shell.Run(ctx, os.Stdin, os.Stdout, shell.Options{
		UserID:        userID,
		NewManager:    a.NewManager,
		Drafts:        a.Drafts,
		DraftsPersist: a.DraftsPersist(),
		Logger:        lg,
	})
	if errors.Is(err, context.Canceled) {
		fmt.Println("\nQuiz interrupted.")
		return nil
	}
	if err != nil {
		return err
	}

	if userID != nil {
		stats, err := a.Backend.GetUserStats(ctx, *userID)
		if err != nil {
			lg.Warn("stats not loaded", zap.Error(err))
			return nil
		}
		fmt.Printf("Quizzes: %d, accuracy %.0f%%, streak %d (best %d)\n",
			stats.TotalQuizzesCompleted, stats.OverallAccuracy, stats.CurrentStreak, stats.LongestStreak)
	}
	return nil
}
