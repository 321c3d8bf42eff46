package service

import (
	"fmt"
	"math"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

// ScoringMode selects how the final score of a session is computed.
type ScoringMode string

const (
	// ScoringPoints sums the points of correctly answered questions.
	ScoringPoints ScoringMode = "points"
	// ScoringAccuracy is the rounded share of correct answers, 0-100.
	ScoringAccuracy ScoringMode = "accuracy"
)

// ScoringRules maps session types to scoring modes.
type ScoringRules map[entities.SessionType]ScoringMode

// DefaultScoringRules returns the built-in rules: timed sessions are
// scored by accuracy, everything else by points.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		entities.SessionQuick:     ScoringPoints,
		entities.SessionCustom:    ScoringPoints,
		entities.SessionTimed:     ScoringAccuracy,
		entities.SessionSelfPaced: ScoringPoints,
	}
}

// ParseScoringRules builds rules from a type -> mode map, as found in config files.
// Missing types keep their default.
func ParseScoringRules(raw map[string]string) (ScoringRules, error) {
	rules := DefaultScoringRules()
	for t, m := range raw {
		st := entities.SessionType(t)
		if _, ok := sessionBounds[st]; !ok {
			return nil, fmt.Errorf("scoring: unknown session type %q", t)
		}
		mode := ScoringMode(m)
		if mode != ScoringPoints && mode != ScoringAccuracy {
			return nil, fmt.Errorf("scoring: unknown mode %q for %s", m, t)
		}
		rules[st] = mode
	}
	return rules, nil
}

// Mode returns the scoring mode of a session type, points when unset.
func (r ScoringRules) Mode(t entities.SessionType) ScoringMode {
	if m, ok := r[t]; ok {
		return m
	}
	return ScoringPoints
}

// Score computes the score of a session. answers is aligned with questions;
// nil entries are unanswered.
func (r ScoringRules) Score(t entities.SessionType, questions []entities.Question, answers []*entities.AnswerRecord) int {
	switch r.Mode(t) {
	case ScoringAccuracy:
		if len(questions) == 0 {
			return 0
		}
		correct := 0
		for _, a := range answers {
			if a != nil && a.IsCorrect {
				correct++
			}
		}
		return int(math.Round(float64(correct) * 100 / float64(len(questions))))

	default:
		score := 0
		for i, a := range answers {
			if a != nil && a.IsCorrect && i < len(questions) {
				score += questions[i].Points
			}
		}
		return score
	}
}
