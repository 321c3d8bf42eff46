package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrDraftNotFound is returned when no draft exists for a session.
var ErrDraftNotFound = errors.New("draft not found")

// DraftStore provides in-memory storage for quiz drafts by session ID.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[uuid.UUID][]byte
}

// NewDraftStore creates a new DraftStore.
func NewDraftStore() *DraftStore {
	return &DraftStore{
		drafts: make(map[uuid.UUID][]byte),
	}
}

// Save stores a copy of the payload under the session ID.
func (s *DraftStore) Save(_ context.Context, sessionID uuid.UUID, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[sessionID] = append([]byte(nil), payload...)
	return nil
}

// Load retrieves the payload stored for a session ID.
func (s *DraftStore) Load(_ context.Context, sessionID uuid.UUID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.drafts[sessionID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return append([]byte(nil), payload...), nil
}

// Delete removes the draft of a session ID. Deleting a missing draft is not an error.
func (s *DraftStore) Delete(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, sessionID)
	return nil
}

// List returns the session IDs that have a draft, in a stable order.
func (s *DraftStore) List(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.drafts))
	for id := range s.drafts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
