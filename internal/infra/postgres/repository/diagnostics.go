package repository

import (
	"context"
	"fmt"

	"github.com/usmle-prep/quizengine/internal/infra/postgres"
)

// DiagnosticsRepository inspects the backend catalog.
type DiagnosticsRepository struct {
	db postgres.DBTX
}

func NewDiagnosticsRepository(db postgres.DBTX) *DiagnosticsRepository {
	return &DiagnosticsRepository{db: db}
}

// TableExists reports whether a table is visible in the public schema.
func (r *DiagnosticsRepository) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT to_regclass('public.' || $1) IS NOT NULL`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}

// FunctionExists reports whether a function is defined in the public schema.
func (r *DiagnosticsRepository) FunctionExists(ctx context.Context, name string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM pg_proc p
			JOIN pg_namespace n ON n.oid = p.pronamespace
			WHERE n.nspname = 'public' AND p.proname = $1
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check function %s: %w", name, err)
	}
	return exists, nil
}

// ServerVersion returns the server_version setting.
func (r *DiagnosticsRepository) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := r.db.QueryRow(ctx, `SHOW server_version`).Scan(&v); err != nil {
		return "", fmt.Errorf("server version: %w", err)
	}
	return v, nil
}
