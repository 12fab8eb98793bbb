package confirm

import (
	"context"
	"sync"
	"time"
)

// MemoryStore — in-process реализация Store для тестов и CLI.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]PendingAction // по ID
}

// NewMemoryStore создает пустой in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]PendingAction)}
}

// Create реализует Store.
func (s *MemoryStore) Create(_ context.Context, action PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.actions {
		if a.ConversationID == action.ConversationID && a.Status == StatusCreated {
			return ErrActionPending
		}
	}

	s.actions[action.ID] = action
	return nil
}

// Open реализует Store.
func (s *MemoryStore) Open(_ context.Context, conversationID string) (PendingAction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.actions {
		if a.ConversationID == conversationID && a.Status == StatusCreated {
			return a, true, nil
		}
	}
	return PendingAction{}, false, nil
}

// Resolve реализует Store.
func (s *MemoryStore) Resolve(_ context.Context, actionID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[actionID]
	if !ok || a.Status != StatusCreated {
		return ErrActionNotFound
	}

	a.Status = status
	s.actions[actionID] = a
	return nil
}

// ExpireStale реализует Store.
func (s *MemoryStore) ExpireStale(_ context.Context, conversationID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, a := range s.actions {
		if a.ConversationID == conversationID && a.Status == StatusCreated && a.Expired(now) {
			a.Status = StatusExpired
			s.actions[id] = a
			expired++
		}
	}
	return expired, nil
}
