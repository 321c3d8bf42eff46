package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/usmle-prep/quizengine/internal/storage"
)

func newTestStore(t *testing.T, ttl time.Duration) (*DraftStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewDraftStore(client, ttl), mr
}

func TestDraftStoreSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, time.Hour)
	id := uuid.New()

	if err := store.Save(ctx, id, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Fatalf("unexpected payload %q", got)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, id); !errors.Is(err, storage.ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
}

func TestDraftStoreExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute)
	id := uuid.New()

	if err := store.Save(ctx, id, []byte(`{}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Load(ctx, id); !errors.Is(err, storage.ErrDraftNotFound) {
		t.Fatalf("expected draft to expire, got %v", err)
	}
}

func TestDraftStoreListSkipsForeignKeys(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Hour)

	a, b := uuid.New(), uuid.New()
	_ = store.Save(ctx, a, []byte(`{}`))
	_ = store.Save(ctx, b, []byte(`{}`))
	_ = mr.Set("quiz:draft:not-a-uuid", "x")
	_ = mr.Set("user:info:1", "x")

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
}
