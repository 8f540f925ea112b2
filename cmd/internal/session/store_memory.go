package session

import (
	"context"
	"sync"
	"time"

	"beacon/cmd/identity/ids"
)

// MemoryStore is an in-memory Store for dev mode and tests.
// A single mutex serializes all transitions, which trivially satisfies the
// per-user atomicity contract.
type MemoryStore struct {
	mu sync.Mutex
	// byUser preserves creation order (append-only history).
	byUser map[string][]*Session
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string][]*Session)}
}

// Start closes any active session and creates a fresh one.
func (s *MemoryStore) Start(ctx context.Context, userID string, now time.Time) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.byUser[userID] {
		if sess.IsActive {
			ended := now
			sess.IsActive = false
			sess.EndedAt = &ended
		}
	}

	created := &Session{ID: id, UserID: userID, StartedAt: now, IsActive: true}
	s.byUser[userID] = append(s.byUser[userID], created)
	return *created, nil
}

// End transitions one session to Ended.
func (s *MemoryStore) End(ctx context.Context, userID, sessionID string, now time.Time) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.byUser[userID] {
		if sess.ID != sessionID {
			continue
		}
		if !sess.IsActive {
			return Session{}, ErrAlreadyEnded
		}
		ended := now
		sess.IsActive = false
		sess.EndedAt = &ended
		return *sess, nil
	}
	return Session{}, ErrNotFound
}

// Active returns the current active session.
func (s *MemoryStore) Active(ctx context.Context, userID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.byUser[userID] {
		if sess.IsActive {
			return *sess, nil
		}
	}
	return Session{}, ErrNotFound
}

// All returns every session in creation order.
func (s *MemoryStore) All(ctx context.Context, userID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.byUser[userID]))
	for _, sess := range s.byUser[userID] {
		out = append(out, *sess)
	}
	return out, nil
}
