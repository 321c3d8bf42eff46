package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/backend"
	"github.com/usmle-prep/quizengine/internal/config"
	"github.com/usmle-prep/quizengine/internal/infra/postgres"
	"github.com/usmle-prep/quizengine/internal/logger"
	"github.com/usmle-prep/quizengine/internal/retry"
	"github.com/usmle-prep/quizengine/internal/seed"
)

func main() {
	path := flag.String("file", "data/questions.json", "JSON file with questions")
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

	// Seeding bypasses row level security.
	dsn, err := cfg.DB.ServiceDSN()
	if err != nil {
		log.Fatal(err)
	}

	questions, err := seed.LoadFile(*path)
	if err != nil {
		lg.Fatal("failed to read questions", zap.String("file", *path), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolConfig{
		MaxConns:        cfg.DB.MaxConnections,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
		ConnectTimeout:  cfg.DB.ConnectTimeout,
	})
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	client := backend.New(pool, lg)
	policy := retry.NewPolicy(cfg.Retry.Options()...)

	seeded := 0
	for i := range questions {
		q := &questions[i]
		err := policy.Execute(ctx, "seedQuestion", func(ctx context.Context) error {
			return client.SeedQuestion(ctx, q)
		})
		if err != nil {
			lg.Error("question not seeded",
				zap.String("question_id", q.ID.String()),
				zap.Error(err),
			)
			continue
		}
		seeded++
	}

	counts, err := client.CountActiveQuestions(ctx)
	if err != nil {
		lg.Warn("active questions not counted", zap.Error(err))
	}

	fmt.Printf("Seeded %d of %d questions.\n", seeded, len(questions))
	for difficulty, n := range counts {
		fmt.Printf("  %-6s %d active\n", difficulty, n)
	}

	if seeded != len(questions) {
		stop()
		log.Fatalf("%d questions failed", len(questions)-seeded)
	}
}
