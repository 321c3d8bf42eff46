package service

import "errors"

// State is the lifecycle state of a Manager.
type State string

const (
	StateConfiguring State = "configuring"
	StateLoading     State = "loading"
	StateInProgress  State = "in_progress"
	StateCompleting  State = "completing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var (
	ErrInvalidState         = errors.New("operation not allowed in current quiz state")
	ErrUnknownQuestion      = errors.New("question is not part of this quiz")
	ErrUnknownOption        = errors.New("option is not part of this question")
	ErrOutOfOrder           = errors.New("questions must be answered in order")
	ErrNoQuestionsAvailable = errors.New("no questions available")
	ErrInvalidDraft         = errors.New("invalid quiz draft")
)
