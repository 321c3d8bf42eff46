package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/usmle-prep/quizengine/internal/storage"
)

const (
	draftKeyPrefix  = "quiz:draft:"
	defaultDraftTTL = 7 * 24 * time.Hour
	scanBatch       = 100
)

// DraftStore keeps quiz drafts in Redis with a TTL.
type DraftStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewDraftStore creates a Redis backed draft store. A non-positive ttl uses the default of 7 days.
func NewDraftStore(client *goredis.Client, ttl time.Duration) *DraftStore {
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	return &DraftStore{client: client, ttl: ttl}
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func draftKey(sessionID uuid.UUID) string {
	return draftKeyPrefix + sessionID.String()
}

// Save stores the payload and refreshes its TTL.
func (s *DraftStore) Save(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	if err := s.client.Set(ctx, draftKey(sessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Load returns the payload stored for a session or storage.ErrDraftNotFound.
func (s *DraftStore) Load(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	payload, err := s.client.Get(ctx, draftKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return payload, nil
}

// Delete removes the draft of a session.
func (s *DraftStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.client.Del(ctx, draftKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// List returns the session IDs that currently have a draft.
func (s *DraftStore) List(ctx context.Context) ([]uuid.UUID, error) {
	var (
		ids    []uuid.UUID
		cursor uint64
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, draftKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan drafts: %w", err)
		}

		for _, key := range keys {
			id, err := uuid.Parse(strings.TrimPrefix(key, draftKeyPrefix))
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}

		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}
