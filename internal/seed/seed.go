// Package seed reads question banks from JSON files.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

var ErrInvalidQuestion = errors.New("invalid question")

// questionNamespace derives stable ids for questions without one, so
// seeding the same file twice updates instead of duplicating.
var questionNamespace = uuid.MustParse("6f2c1d4e-8b0a-4c67-9d1e-3a5b7c9e2f10")

type questionRecord struct {
	ID              string         `json:"id"`
	Text            string         `json:"question_text"`
	Options         []optionRecord `json:"options"`
	CorrectOptionID string         `json:"correct_option_id"`
	Explanation     string         `json:"explanation"`
	Difficulty      string         `json:"difficulty"`
	Points          int            `json:"points"`
	Inactive        bool           `json:"inactive"`
	Subject         string         `json:"subject"`
	System          string         `json:"system"`
	Topics          []string       `json:"topics"`
}

type optionRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LoadFile reads questions from a JSON file.
func LoadFile(path string) ([]entities.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load decodes a JSON array of questions and validates every entry.
func Load(r io.Reader) ([]entities.Question, error) {
	var records []questionRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	questions := make([]entities.Question, 0, len(records))
	seen := make(map[uuid.UUID]int, len(records))

	for i, rec := range records {
		q, err := rec.toQuestion()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		if prev, ok := seen[q.ID]; ok {
			return nil, fmt.Errorf("question %d: %w: same id as question %d", i+1, ErrInvalidQuestion, prev)
		}
		seen[q.ID] = i + 1
		questions = append(questions, q)
	}

	return questions, nil
}

func (r questionRecord) toQuestion() (entities.Question, error) {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return entities.Question{}, fmt.Errorf("%w: empty question_text", ErrInvalidQuestion)
	}

	id := uuid.NewSHA1(questionNamespace, []byte(text))
	if r.ID != "" {
		parsed, err := uuid.Parse(r.ID)
		if err != nil {
			return entities.Question{}, fmt.Errorf("%w: id: %v", ErrInvalidQuestion, err)
		}
		id = parsed
	}

	if len(r.Options) < 2 {
		return entities.Question{}, fmt.Errorf("%w: needs at least 2 options", ErrInvalidQuestion)
	}
	options := make([]entities.Option, 0, len(r.Options))
	ids := make(map[string]bool, len(r.Options))
	for i, o := range r.Options {
		optID := o.ID
		if optID == "" {
			optID = string(rune('a' + i))
		}
		if ids[optID] {
			return entities.Question{}, fmt.Errorf("%w: duplicate option %q", ErrInvalidQuestion, optID)
		}
		ids[optID] = true
		options = append(options, entities.Option{ID: optID, Text: o.Text})
	}
	if !ids[r.CorrectOptionID] {
		return entities.Question{}, fmt.Errorf("%w: correct_option_id %q is not an option", ErrInvalidQuestion, r.CorrectOptionID)
	}

	difficulty := entities.Difficulty(r.Difficulty)
	if difficulty == "" {
		difficulty = entities.DifficultyMedium
	}
	if !difficulty.Valid() {
		return entities.Question{}, fmt.Errorf("%w: difficulty %q", ErrInvalidQuestion, r.Difficulty)
	}

	points := r.Points
	if points == 0 {
		points = 1
	}
	if points < 0 {
		return entities.Question{}, fmt.Errorf("%w: negative points", ErrInvalidQuestion)
	}

	return entities.Question{
		ID:              id,
		Text:            text,
		Options:         options,
		CorrectOptionID: r.CorrectOptionID,
		Explanation:     r.Explanation,
		Difficulty:      difficulty,
		Points:          points,
		IsActive:        !r.Inactive,
		Tags:            r.tags(),
	}, nil
}

func (r questionRecord) tags() []entities.Tag {
	var tags []entities.Tag
	add := func(name string, kind entities.TagKind) {
		if name = strings.TrimSpace(name); name != "" {
			tags = append(tags, entities.Tag{Name: name, Kind: kind})
		}
	}

	add(r.Subject, entities.TagSubject)
	add(r.System, entities.TagSystem)
	for _, t := range r.Topics {
		add(t, entities.TagTopic)
	}
	return tags
}
