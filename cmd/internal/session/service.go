package session

import (
	"context"
	"log/slog"
	"time"

	"beacon/cmd/identity"
)

// UserLookup is the slice of identity the session service needs.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}

// Service is the session lifecycle manager.
// State machine per instance: NoSession -> Active -> Ended (terminal); a user
// may hold many sequential instances but never two concurrently active.
type Service struct {
	log   *slog.Logger
	users UserLookup
	store Store
}

// NewService constructs a Service.
func NewService(log *slog.Logger, users UserLookup, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log, users: users, store: store}
}

// Start begins a fresh sharing session for userID, ending any session that
// is still active. Fails with identity's not-found when the user is unknown.
func (s *Service) Start(ctx context.Context, userID string) (Session, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return Session{}, err
	}

	sess, err := s.store.Start(ctx, userID, time.Now().UTC())
	if err != nil {
		return Session{}, err
	}

	s.log.Info("session.start", "user_id", userID, "session_id", sess.ID)
	return sess, nil
}

// End closes one session. ErrNotFound for an unknown session id,
// ErrAlreadyEnded when the session was already closed.
func (s *Service) End(ctx context.Context, userID, sessionID string) (Session, error) {
	sess, err := s.store.End(ctx, userID, sessionID, time.Now().UTC())
	if err != nil {
		return Session{}, err
	}

	s.log.Info("session.end", "user_id", userID, "session_id", sess.ID)
	return sess, nil
}

// Active returns the user's active session, or ErrNotFound when none exists.
func (s *Service) Active(ctx context.Context, userID string) (Session, error) {
	return s.store.Active(ctx, userID)
}

// All returns the user's full session history.
func (s *Service) All(ctx context.Context, userID string) ([]Session, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.All(ctx, userID)
}
