package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

func historyFor(userID uuid.UUID, questions []entities.Question, base time.Time, order ...int) []entities.UserQuestionHistory {
	out := make([]entities.UserQuestionHistory, 0, len(order))
	for rank, i := range order {
		out = append(out, entities.UserQuestionHistory{
			UserID:     userID,
			QuestionID: questions[i].ID,
			TimesSeen:  1,
			LastSeenAt: base.Add(time.Duration(rank) * time.Hour),
		})
	}
	return out
}

func TestSelectBackfillsWithOldestSeen(t *testing.T) {
	bank := makeQuestions(15)
	userID := uuid.New()

	// Questions 0..11 were seen; 11 longest ago, 0 most recently.
	order := []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	source := &fakeSource{
		bank:    bank,
		history: historyFor(userID, bank, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), order...),
	}
	s := NewSelector(source, noWaitPolicy(), zap.NewNop())

	got, err := s.Select(context.Background(), &userID, entities.QuestionFilter{}, 10)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(got))
	}

	for i := range 3 {
		if got[i].ID != bank[12+i].ID {
			t.Fatalf("position %d: expected unseen question %d", i, 12+i)
		}
	}
	for i := 3; i < 10; i++ {
		want := bank[order[i-3]].ID
		if got[i].ID != want {
			t.Fatalf("position %d: expected seen question %d", i, order[i-3])
		}
	}
}

func TestSelectPrefersUnseen(t *testing.T) {
	bank := makeQuestions(20)
	userID := uuid.New()
	source := &fakeSource{
		bank:    bank,
		history: historyFor(userID, bank, time.Now(), 0, 1, 2),
	}
	s := NewSelector(source, noWaitPolicy(), zap.NewNop())

	got, err := s.Select(context.Background(), &userID, entities.QuestionFilter{}, 10)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(got))
	}

	seen := map[uuid.UUID]bool{bank[0].ID: true, bank[1].ID: true, bank[2].ID: true}
	for _, q := range got {
		if seen[q.ID] {
			t.Fatalf("seen question %s returned while unseen ones remain", q.ID)
		}
	}
	if len(source.fetches) != 1 {
		t.Fatalf("no backfill expected, got %d fetches", len(source.fetches))
	}
}

func TestSelectGuestSkipsHistory(t *testing.T) {
	source := &fakeSource{bank: makeQuestions(4)}
	s := NewSelector(source, noWaitPolicy(), zap.NewNop())

	got, err := s.Select(context.Background(), nil, entities.QuestionFilter{}, 10)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected the 4 available questions, got %d", len(got))
	}
	if source.historyCalls != 0 {
		t.Fatal("history must not be read for guests")
	}
}

func TestSelectKeepsFilter(t *testing.T) {
	bank := makeQuestions(6)
	for i := range bank[:3] {
		bank[i].Difficulty = entities.DifficultyHard
	}
	userID := uuid.New()
	source := &fakeSource{
		bank:    bank,
		history: historyFor(userID, bank, time.Now(), 0, 3),
	}
	s := NewSelector(source, noWaitPolicy(), zap.NewNop())

	got, err := s.Select(context.Background(), &userID, entities.QuestionFilter{Difficulty: entities.DifficultyHard}, 5)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 hard questions, got %d", len(got))
	}
	for _, q := range got {
		if q.Difficulty != entities.DifficultyHard {
			t.Fatalf("filter ignored: got %s question", q.Difficulty)
		}
	}
	if got[2].ID != bank[0].ID {
		t.Fatal("seen hard question should come last")
	}
}

func TestSelectIDs(t *testing.T) {
	bank := makeQuestions(3)
	s := NewSelector(&fakeSource{bank: bank}, noWaitPolicy(), zap.NewNop())

	ids, err := s.SelectIDs(context.Background(), nil, entities.QuestionFilter{}, 2)
	if err != nil {
		t.Fatalf("SelectIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != bank[0].ID || ids[1] != bank[1].ID {
		t.Fatalf("unexpected ids %v", ids)
	}
}
