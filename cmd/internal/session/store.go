// Package session owns the sharing-session lifecycle: at most one active
// session per user, append-only history, all-or-nothing transitions.
package session

import (
	"context"
	"errors"
	"time"
)

// Sentinel error kinds.
var (
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyEnded: ending is deliberately not idempotent. A second end
	// call is an error so clients notice double-submits.
	ErrAlreadyEnded = errors.New("session already ended")
)

// Session is one sharing-session instance.
// Lifecycle: created Active, transitioned exactly once to Ended.
// Rows are never deleted; ending sets EndedAt and flips IsActive.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time
	EndedAt   *time.Time
	IsActive  bool
}

// Store is the durable session boundary.
//
// Concurrency contract: Start must be atomic per user — two concurrent Start
// calls for the same user must never both observe "no active session" and
// leave two active rows. The Postgres store serializes per user with a
// transactional advisory lock; the memory store with a mutex.
type Store interface {
	// Start closes any active session for userID (sets ended_at, flips the
	// flag) and creates a fresh active one, atomically. Returns the new session.
	Start(ctx context.Context, userID string, now time.Time) (Session, error)

	// End transitions one session to Ended.
	// ErrNotFound if no such session belongs to userID; ErrAlreadyEnded if it
	// is already ended (ended_at is left untouched in that case).
	End(ctx context.Context, userID, sessionID string, now time.Time) (Session, error)

	// Active returns the current active session, or ErrNotFound when none.
	// Absence is an error, not a zero value: callers must branch on presence.
	Active(ctx context.Context, userID string) (Session, error)

	// All returns every session for userID in stable storage order.
	All(ctx context.Context, userID string) ([]Session, error)
}
