package entities

import "github.com/google/uuid"

// Difficulty is the difficulty level of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// TagKind classifies a tag attached to a question.
type TagKind string

const (
	TagSubject TagKind = "subject" // e.g. "Pharmacology"
	TagSystem  TagKind = "system"  // e.g. "Cardiovascular"
	TagTopic   TagKind = "topic"   // e.g. "Beta blockers"
)

// Tag is a subject, system or topic label attached to questions.
type Tag struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Kind TagKind   `json:"kind"`
}

// Option is one answer choice of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a multiple choice question owned by the backend.
type Question struct {
	ID              uuid.UUID  `json:"id"`
	Text            string     `json:"question_text"`
	Options         []Option   `json:"options"`
	CorrectOptionID string     `json:"correct_option_id"`
	Explanation     string     `json:"explanation"`
	Difficulty      Difficulty `json:"difficulty"`
	Points          int        `json:"points"`
	IsActive        bool       `json:"is_active"`
	Tags            []Tag      `json:"tags,omitempty"`
}

// HasOption reports whether optionID is one of the question's options.
func (q *Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// IsCorrect reports whether the selected option is the correct one.
// A nil selection (skipped or timed out) is never correct.
func (q *Question) IsCorrect(selected *string) bool {
	return selected != nil && *selected == q.CorrectOptionID
}

// QuestionFilter narrows the pool of active questions.
type QuestionFilter struct {
	Categories []string    // tag names; empty means any
	Difficulty Difficulty  // empty means any
	Limit      int         // 0 means no limit
	Exclude    []uuid.UUID // ids to leave out, usually already seen
	Include    []uuid.UUID // restrict to these ids when non-empty
}
