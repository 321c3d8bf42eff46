package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestDraftStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewDraftStore()
	id := uuid.New()

	payload := []byte(`{"state":"in_progress"}`)
	if err := s.Save(ctx, id, payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	payload[0] = 'x' // stored copy must not change

	got, err := s.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != `{"state":"in_progress"}` {
		t.Fatalf("unexpected payload %q", got)
	}

	ids, _ := s.List(ctx)
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected ids %v", ids)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, id); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("deleting a missing draft must succeed: %v", err)
	}
}
