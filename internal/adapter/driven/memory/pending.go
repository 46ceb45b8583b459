package memory

import (
	"context"
	"sync"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PendingActionStore = (*PendingActionStore)(nil)

// PendingActionStore keeps action sets awaiting confirmation in memory.
type PendingActionStore struct {
	mu      sync.RWMutex
	pending map[string]model.ActionSet
}

// NewPendingActionStore creates an empty in-memory pending action store.
func NewPendingActionStore() *PendingActionStore {
	return &PendingActionStore{pending: make(map[string]model.ActionSet)}
}

// Save stores the action set under its id.
func (s *PendingActionStore) Save(_ context.Context, set model.ActionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[set.ID] = set
	return nil
}

// Load returns the action set for the id, or nil when unknown.
func (s *PendingActionStore) Load(_ context.Context, id string) (*model.ActionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.pending[id]
	if !ok {
		return nil, nil
	}
	return &set, nil
}

// Delete removes the action set. Deleting an unknown id is not an error.
func (s *PendingActionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	return nil
}
