// Package store provides persistence backends for RelationshipState.
// The engine core never touches storage: the caller loads state, runs one
// turn, and hands the result back here.
package store

import (
	"context"
	"fmt"
	"sync"

	oraclesdk "github.com/candlelight-labs/oracle-companion-go"
)

// RelationshipStore persists one RelationshipState per user id. State must
// round-trip exactly: full stage history, rolling signal windows, overrides
// and any pending transition.
type RelationshipStore interface {
	// Load returns the state for a user, or (nil, nil) for a first-time
	// user. Implementations validate structural invariants on load and
	// return ErrCorruptState-wrapped errors rather than self-heal.
	Load(ctx context.Context, userID string) (*oraclesdk.RelationshipState, error)

	// Save persists the state after a turn.
	Save(ctx context.Context, state *oraclesdk.RelationshipState) error

	// Delete removes a user's state. Engine state is append-only in normal
	// operation; this exists for account erasure only.
	Delete(ctx context.Context, userID string) error

	Close() error
}

// InMemoryRelationshipStore is a thread-safe in-memory store for tests
// and single-process deployments.
type InMemoryRelationshipStore struct {
	mu     sync.RWMutex
	states map[string]*oraclesdk.RelationshipState
}

// NewInMemoryRelationshipStore creates an empty in-memory store.
func NewInMemoryRelationshipStore() *InMemoryRelationshipStore {
	return &InMemoryRelationshipStore{
		states: make(map[string]*oraclesdk.RelationshipState),
	}
}

func (s *InMemoryRelationshipStore) Load(ctx context.Context, userID string) (*oraclesdk.RelationshipState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	if err := oraclesdk.ValidateState(state); err != nil {
		return nil, fmt.Errorf("load %s: %w", userID, err)
	}
	return state, nil
}

func (s *InMemoryRelationshipStore) Save(ctx context.Context, state *oraclesdk.RelationshipState) error {
	if state == nil || state.UserID == "" {
		return fmt.Errorf("save: missing user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UserID] = state
	return nil
}

func (s *InMemoryRelationshipStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

func (s *InMemoryRelationshipStore) Close() error {
	return nil
}

var _ RelationshipStore = (*InMemoryRelationshipStore)(nil)
