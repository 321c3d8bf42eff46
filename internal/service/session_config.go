package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

// ErrInvalidConfiguration is matched by every ConfigurationError.
var ErrInvalidConfiguration = errors.New("invalid quiz configuration")

// ConfigurationError describes why a quiz setup was rejected.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid quiz configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

type countBounds struct {
	min, max, fallback int
}

var sessionBounds = map[entities.SessionType]countBounds{
	entities.SessionQuick:     {min: 10, max: 10, fallback: 10},
	entities.SessionTimed:     {min: 20, max: 20, fallback: 20},
	entities.SessionCustom:    {min: 1, max: 40},
	entities.SessionSelfPaced: {min: 1, max: 40},
}

// QuizConfig is what the user picks before starting an attempt.
type QuizConfig struct {
	UserID          *uuid.UUID // nil for guests
	Type            entities.SessionType
	QuestionCount   int // 0 uses the fixed count of quick and timed sessions
	Categories      []string
	Difficulty      entities.Difficulty
	TimePerQuestion time.Duration
	AutoAdvance     bool
}

// Normalize validates the configuration and fills in fixed question counts.
func (c QuizConfig) Normalize() (QuizConfig, error) {
	bounds, ok := sessionBounds[c.Type]
	if !ok {
		return c, &ConfigurationError{Field: "session_type", Reason: fmt.Sprintf("unknown type %q", c.Type)}
	}

	if c.QuestionCount == 0 && bounds.fallback > 0 {
		c.QuestionCount = bounds.fallback
	}
	if c.QuestionCount < bounds.min || c.QuestionCount > bounds.max {
		reason := fmt.Sprintf("must be between %d and %d", bounds.min, bounds.max)
		if bounds.min == bounds.max {
			reason = fmt.Sprintf("must be %d for %s sessions", bounds.min, c.Type)
		}
		return c, &ConfigurationError{Field: "question_count", Reason: fmt.Sprintf("%d %s", c.QuestionCount, reason)}
	}

	categories := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		cat = strings.TrimSpace(cat)
		if cat == "" {
			return c, &ConfigurationError{Field: "categories", Reason: "empty category"}
		}
		categories = append(categories, cat)
	}
	c.Categories = categories

	if c.Difficulty != "" && !c.Difficulty.Valid() {
		return c, &ConfigurationError{Field: "difficulty", Reason: fmt.Sprintf("unknown difficulty %q", c.Difficulty)}
	}
	if c.TimePerQuestion < 0 {
		return c, &ConfigurationError{Field: "time_per_question", Reason: "must not be negative"}
	}

	return c, nil
}

// Filter returns the question filter of the configuration.
func (c QuizConfig) Filter() entities.QuestionFilter {
	return entities.QuestionFilter{
		Categories: c.Categories,
		Difficulty: c.Difficulty,
		Limit:      c.QuestionCount,
	}
}

// Settings returns the settings blob stored with the session.
func (c QuizConfig) Settings() entities.SessionSettings {
	return entities.SessionSettings{
		TimePerQuestion: c.TimePerQuestion,
		AutoAdvance:     c.AutoAdvance,
		Categories:      c.Categories,
		Difficulty:      c.Difficulty,
	}
}
