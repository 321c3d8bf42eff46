package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/usmle-prep/quizengine/internal/backend"
	"github.com/usmle-prep/quizengine/internal/config"
	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/infra/postgres"
	"github.com/usmle-prep/quizengine/internal/logger"
)

var errMissing = errors.New("missing")

var (
	tables = []string{
		"questions", "question_tags", "tags", "quiz_sessions", "quiz_answers",
		"user_question_history", "user_stats", "profiles",
	}
	functions = []string{
		"get_user_stats", "get_unseen_questions", "find_or_create_one_to_one_chat",
	}
)

func main() {
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolConfig{ConnectTimeout: cfg.DB.ConnectTimeout})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if !run(ctx, backend.New(pool, lg)) {
		cancel()
		pool.Close()
		os.Exit(1)
	}
}

// run prints the diagnostics and reports whether everything is in place.
func run(ctx context.Context, client *backend.Client) bool {
	ok := true
	check := func(label string, err error) bool {
		if err != nil {
			fmt.Printf("[FAIL] %s: %v\n", label, err)
			ok = false
			return false
		}
		fmt.Printf("[ OK ] %s\n", label)
		return true
	}

	if !check("connection", client.Ping(ctx)) {
		return false
	}

	diag := client.Diagnostics()
	if version, err := diag.ServerVersion(ctx); check("server version", err) {
		fmt.Printf("       %s\n", version)
	}

	for _, table := range tables {
		exists, err := diag.TableExists(ctx, table)
		if err == nil && !exists {
			err = errMissing
		}
		check("table "+table, err)
	}

	for _, fn := range functions {
		exists, err := diag.FunctionExists(ctx, fn)
		if err == nil && !exists {
			err = errMissing
		}
		check("function "+fn, err)
	}

	counts, err := client.CountActiveQuestions(ctx)
	if check("active questions", err) {
		total := 0
		for _, d := range []entities.Difficulty{entities.DifficultyEasy, entities.DifficultyMedium, entities.DifficultyHard} {
			fmt.Printf("       %-6s %d\n", d, counts[d])
			total += counts[d]
		}
		if total == 0 {
			check("question bank", errors.New("no active questions, run cmd/seed"))
		}
	}

	return ok
}
