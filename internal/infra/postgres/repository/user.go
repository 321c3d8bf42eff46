package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/usmle-prep/quizengine/internal/infra/postgres"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is the public profile row of an authenticated user.
type Profile struct {
	ID          uuid.UUID
	DisplayName string
	CreatedAt   time.Time
}

// ProfileRepository provides access to user profiles in the database.
type ProfileRepository struct {
	db postgres.DBTX
}

// NewProfileRepository creates a new ProfileRepository with the provided database handle.
func NewProfileRepository(db postgres.DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Save inserts a new profile or updates the display name of an existing one.
// It reports whether the profile was created.
func (r *ProfileRepository) Save(ctx context.Context, p *Profile) (bool, error) {
	query := `
		INSERT INTO profiles (id, display_name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name
		RETURNING (xmax = 0) AS created
	`

	var created bool
	err := r.db.QueryRow(ctx, query, p.ID.String(), p.DisplayName, p.CreatedAt).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("save profile: %w", err)
	}

	return created, nil
}

// Exists checks if a profile with the given ID exists in the database.
func (r *ProfileRepository) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := "SELECT EXISTS(SELECT 1 FROM profiles WHERE id = $1)"

	var exists bool
	err := r.db.QueryRow(ctx, query, userID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check profile existence: %w", err)
	}

	return exists, nil
}

// GetByID retrieves a profile by ID.
func (r *ProfileRepository) GetByID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	query := `
		SELECT id, display_name, created_at
		FROM profiles
		WHERE id = $1
	`

	var p Profile
	err := r.db.QueryRow(ctx, query, userID.String()).Scan(
		&p.ID,
		&p.DisplayName,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &p, nil
}
