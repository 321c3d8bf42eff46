package entities

import (
	"time"

	"github.com/google/uuid"
)

// UserStats stores aggregate quiz statistics of a user.
type UserStats struct {
	UserID                 uuid.UUID
	TotalQuizzesCompleted  int
	TotalQuestionsAnswered int
	TotalCorrectAnswers    int
	OverallAccuracy        float64    // percent, 0-100
	CurrentStreak          int        // consecutive UTC days with a completed quiz
	LongestStreak          int        // best CurrentStreak ever reached
	LastQuizAt             *time.Time // completion time of the latest quiz, can be nil
}

// NewUserStats creates empty statistics for a user.
func NewUserStats(userID uuid.UUID) *UserStats {
	return &UserStats{UserID: userID}
}

// StatsDelta is the contribution of one completed session to UserStats.
type StatsDelta struct {
	QuestionsAnswered int
	CorrectAnswers    int
	CompletedAt       time.Time
}

// DeltaFromSummary derives the statistics contribution of a finished attempt.
func DeltaFromSummary(summary *SessionSummary) StatsDelta {
	completedAt := time.Now().UTC()
	if summary.Session.CompletedAt != nil {
		completedAt = *summary.Session.CompletedAt
	}
	return StatsDelta{
		QuestionsAnswered: len(summary.Answers),
		CorrectAnswers:    summary.Session.CorrectAnswers,
		CompletedAt:       completedAt,
	}
}

// Apply adds a completed session to the statistics.
//
// Streak rules:
//  1. Another quiz on the same UTC day keeps the streak.
//  2. A quiz on the next UTC day extends it.
//  3. Any larger gap restarts it at 1.
func (s *UserStats) Apply(d StatsDelta) {
	s.TotalQuizzesCompleted++
	s.TotalQuestionsAnswered += d.QuestionsAnswered
	s.TotalCorrectAnswers += d.CorrectAnswers

	if s.TotalQuestionsAnswered > 0 {
		s.OverallAccuracy = float64(s.TotalCorrectAnswers) * 100 / float64(s.TotalQuestionsAnswered)
	}

	day := truncateDay(d.CompletedAt)
	switch {
	case s.LastQuizAt == nil:
		s.CurrentStreak = 1
	case truncateDay(*s.LastQuizAt).Equal(day):
		if s.CurrentStreak == 0 {
			s.CurrentStreak = 1
		}
	case truncateDay(*s.LastQuizAt).AddDate(0, 0, 1).Equal(day):
		s.CurrentStreak++
	case truncateDay(*s.LastQuizAt).After(day):
		// Late recovery of an older session; leave the streak alone.
	default:
		s.CurrentStreak = 1
	}
	s.LongestStreak = max(s.LongestStreak, s.CurrentStreak)

	if s.LastQuizAt == nil || d.CompletedAt.After(*s.LastQuizAt) {
		at := d.CompletedAt
		s.LastQuizAt = &at
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
