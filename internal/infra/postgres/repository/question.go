package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/infra/postgres"
)

var ErrQuestionNotFound = errors.New("question not found")

// QuestionRepository provides access to questions and their tags.
type QuestionRepository struct {
	db postgres.DBTX
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(db postgres.DBTX) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `
	q.id, q.question_text, q.options, q.correct_option_id, q.explanation,
	q.difficulty, q.points, q.is_active,
	COALESCE(
		jsonb_agg(jsonb_build_object('id', t.id, 'name', t.name, 'kind', t.kind))
			FILTER (WHERE t.id IS NOT NULL),
		'[]'::jsonb
	) AS tags
`

// Find returns active questions matching the filter in random order.
func (r *QuestionRepository) Find(ctx context.Context, filter entities.QuestionFilter) ([]entities.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions q
		LEFT JOIN question_tags qt ON qt.question_id = q.id
		LEFT JOIN tags t ON t.id = qt.tag_id
		WHERE q.is_active
		  AND (cardinality($1::text[]) = 0 OR EXISTS (
		      SELECT 1
		      FROM question_tags fqt
		      JOIN tags ft ON ft.id = fqt.tag_id
		      WHERE fqt.question_id = q.id AND ft.name = ANY($1::text[])
		  ))
		  AND ($2::text = '' OR q.difficulty = $2::text)
		  AND NOT (q.id = ANY($3::uuid[]))
		  AND (cardinality($4::uuid[]) = 0 OR q.id = ANY($4::uuid[]))
		GROUP BY q.id
		ORDER BY random()
		LIMIT NULLIF($5::int, 0)
	`

	rows, err := r.db.Query(
		ctx,
		query,
		nonNilStrings(filter.Categories),
		string(filter.Difficulty),
		uuidStrings(filter.Exclude),
		uuidStrings(filter.Include),
		filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	defer rows.Close()

	questions := make([]entities.Question, 0, filter.Limit)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, *q)
	}

	return questions, rows.Err()
}

// GetByID retrieves a single question with its tags.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions q
		LEFT JOIN question_tags qt ON qt.question_id = q.id
		LEFT JOIN tags t ON t.id = qt.tag_id
		WHERE q.id = $1
		GROUP BY q.id
	`

	q, err := scanQuestion(r.db.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}

	return q, nil
}

// CountActive returns the number of active questions per difficulty.
func (r *QuestionRepository) CountActive(ctx context.Context) (map[entities.Difficulty]int, error) {
	query := `
		SELECT difficulty, COUNT(*)
		FROM questions
		WHERE is_active
		GROUP BY difficulty
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count active questions: %w", err)
	}
	defer rows.Close()

	counts := make(map[entities.Difficulty]int, 3)
	for rows.Next() {
		var (
			difficulty string
			n          int
		)
		if err := rows.Scan(&difficulty, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[entities.Difficulty(difficulty)] = n
	}

	return counts, rows.Err()
}

// Upsert inserts a question or updates the existing one with the same id.
func (r *QuestionRepository) Upsert(ctx context.Context, q *entities.Question) error {
	query := `
		INSERT INTO questions (
			id, question_text, options, correct_option_id,
			explanation, difficulty, points, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			question_text = EXCLUDED.question_text,
			options = EXCLUDED.options,
			correct_option_id = EXCLUDED.correct_option_id,
			explanation = EXCLUDED.explanation,
			difficulty = EXCLUDED.difficulty,
			points = EXCLUDED.points,
			is_active = EXCLUDED.is_active
	`

	_, err := r.db.Exec(
		ctx,
		query,
		q.ID.String(),
		q.Text,
		q.Options,
		q.CorrectOptionID,
		q.Explanation,
		string(q.Difficulty),
		q.Points,
		q.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert question: %w", err)
	}

	return nil
}

// UpsertTag stores a tag by name and kind and returns its id.
func (r *QuestionRepository) UpsertTag(ctx context.Context, tag entities.Tag) (uuid.UUID, error) {
	query := `
		INSERT INTO tags (name, kind)
		VALUES ($1, $2)
		ON CONFLICT (name, kind) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, query, tag.Name, string(tag.Kind)).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("upsert tag: %w", err)
	}

	return id, nil
}

// AttachTag links a tag to a question. Linking twice is a no-op.
func (r *QuestionRepository) AttachTag(ctx context.Context, questionID, tagID uuid.UUID) error {
	query := `
		INSERT INTO question_tags (question_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, questionID.String(), tagID.String()); err != nil {
		return fmt.Errorf("attach tag: %w", err)
	}

	return nil
}

func scanQuestion(row pgx.Row) (*entities.Question, error) {
	var (
		q          entities.Question
		difficulty string
	)

	err := row.Scan(
		&q.ID,
		&q.Text,
		&q.Options,
		&q.CorrectOptionID,
		&q.Explanation,
		&difficulty,
		&q.Points,
		&q.IsActive,
		&q.Tags,
	)
	if err != nil {
		return nil, err
	}

	q.Difficulty = entities.Difficulty(difficulty)
	return &q, nil
}
