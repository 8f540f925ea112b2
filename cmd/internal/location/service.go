package location

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"beacon/cmd/identity/ids"
	"beacon/cmd/internal/session"
)

// ErrNoReading is returned when a user has no stored readings.
var ErrNoReading = errors.New("no location reading")

// SessionLookup resolves the caller's active session, if any.
type SessionLookup interface {
	Active(ctx context.Context, userID string) (session.Session, error)
}

// Sample is one incoming location fix.
type Sample struct {
	Lat      float64
	Lng      float64
	Accuracy *float64
}

// Service is the ingest pipeline: tag with the active session, stamp, persist.
type Service struct {
	log      *slog.Logger
	sessions SessionLookup
	store    Store
}

// NewService constructs a Service.
func NewService(log *slog.Logger, sessions SessionLookup, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log, sessions: sessions, store: store}
}

// Record persists one sample for userID. The reading is tagged with the user's
// active session id when one exists and left untagged otherwise; either way it
// is stored. Storage errors surface to the caller, who decides whether the
// surrounding stream survives.
func (s *Service) Record(ctx context.Context, userID string, sample Sample) (Reading, error) {
	now := time.Now().UTC()

	id, err := ids.NewULID(now)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		ID:         id,
		UserID:     userID,
		Lat:        sample.Lat,
		Lng:        sample.Lng,
		Accuracy:   sample.Accuracy,
		RecordedAt: now,
	}

	active, err := s.sessions.Active(ctx, userID)
	switch {
	case err == nil:
		r.SessionID = &active.ID
	case errors.Is(err, session.ErrNotFound):
		// Untagged reading.
	default:
		return Reading{}, err
	}

	if err := s.store.Insert(ctx, r); err != nil {
		s.log.Error("location.record.fail", "user_id", userID, "err", err)
		return Reading{}, err
	}
	return r, nil
}

// History returns the readings recorded during one session.
func (s *Service) History(ctx context.Context, userID, sessionID string) ([]Reading, error) {
	return s.store.BySession(ctx, userID, sessionID)
}

// Latest returns the user's most recent reading, or ErrNoReading.
func (s *Service) Latest(ctx context.Context, userID string) (Reading, error) {
	return s.store.Latest(ctx, userID)
}
