package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/app"
	"github.com/usmle-prep/quizengine/internal/config"
	"github.com/usmle-prep/quizengine/internal/logger"
	"github.com/usmle-prep/quizengine/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run a single recovery pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	dsn, err := cfg.DB.DSN()
	if err != nil {
		log.Fatal(err)
	}
	if !cfg.Redis.Enabled() {
		lg.Fatal("draft recovery needs a shared draft store, set REDIS_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, dsn, lg)
	if err != nil {
		lg.Fatal("failed to initialize quiz engine", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	recovery := service.NewRecovery(a.Drafts, a.NewManager, lg)

	if *once {
		saved, err := recovery.RunOnce(ctx)
		if err != nil {
			lg.Fatal("recovery failed", zap.Error(err))
		}
		lg.Info("recovery finished", zap.Int("saved", saved))
		return
	}

	if err := recovery.Start(ctx, cfg.Recovery.Schedule); err != nil {
		lg.Fatal("recovery not started", zap.Error(err))
	}
	lg.Info("shutdown signal received")
}
