package location

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[string][]Reading
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string][]Reading)}
}

// Insert appends the reading.
func (s *MemoryStore) Insert(ctx context.Context, r Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[r.UserID] = append(s.byUser[r.UserID], r)
	return nil
}

// BySession returns readings tagged with sessionID in insertion order.
func (s *MemoryStore) BySession(ctx context.Context, userID, sessionID string) ([]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Reading
	for _, r := range s.byUser[userID] {
		if r.SessionID != nil && *r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Latest returns the most recently inserted reading.
func (s *MemoryStore) Latest(ctx context.Context, userID string) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := s.byUser[userID]
	if len(readings) == 0 {
		return Reading{}, ErrNoReading
	}
	return readings[len(readings)-1], nil
}
