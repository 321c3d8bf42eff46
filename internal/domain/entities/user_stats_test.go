package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUserStatsApplyCountersAndAccuracy(t *testing.T) {
	s := NewUserStats(uuid.New())
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s.Apply(StatsDelta{QuestionsAnswered: 10, CorrectAnswers: 7, CompletedAt: now})
	s.Apply(StatsDelta{QuestionsAnswered: 10, CorrectAnswers: 9, CompletedAt: now.Add(time.Hour)})

	if s.TotalQuizzesCompleted != 2 {
		t.Fatalf("expected 2 quizzes, got %d", s.TotalQuizzesCompleted)
	}
	if s.TotalQuestionsAnswered != 20 || s.TotalCorrectAnswers != 16 {
		t.Fatalf("unexpected counters: answered=%d correct=%d", s.TotalQuestionsAnswered, s.TotalCorrectAnswers)
	}
	if s.OverallAccuracy != 80 {
		t.Fatalf("expected accuracy 80, got %v", s.OverallAccuracy)
	}
	if s.CurrentStreak != 1 {
		t.Fatalf("same day quizzes should keep streak at 1, got %d", s.CurrentStreak)
	}
}

func TestUserStatsApplyStreak(t *testing.T) {
	s := NewUserStats(uuid.New())
	day1 := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	s.Apply(StatsDelta{QuestionsAnswered: 1, CompletedAt: day1})
	s.Apply(StatsDelta{QuestionsAnswered: 1, CompletedAt: day1.Add(2 * time.Hour)}) // next day
	s.Apply(StatsDelta{QuestionsAnswered: 1, CompletedAt: day1.AddDate(0, 0, 2)})

	if s.CurrentStreak != 3 || s.LongestStreak != 3 {
		t.Fatalf("expected streak 3/3, got %d/%d", s.CurrentStreak, s.LongestStreak)
	}

	s.Apply(StatsDelta{QuestionsAnswered: 1, CompletedAt: day1.AddDate(0, 0, 5)})
	if s.CurrentStreak != 1 {
		t.Fatalf("expected streak reset to 1, got %d", s.CurrentStreak)
	}
	if s.LongestStreak != 3 {
		t.Fatalf("longest streak must be kept, got %d", s.LongestStreak)
	}
}
