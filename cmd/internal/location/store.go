// Package location ingests and persists location readings.
package location

import (
	"context"
	"time"
)

// Reading is one persisted location sample.
// SessionID is nil when the reading arrived outside any active sharing session;
// such readings are still stored, just untagged.
type Reading struct {
	ID         string
	UserID     string
	SessionID  *string
	Lat        float64
	Lng        float64
	Accuracy   *float64
	RecordedAt time.Time
}

// Store is the durable reading boundary.
type Store interface {
	Insert(ctx context.Context, r Reading) error

	// BySession returns readings tagged with sessionID in insertion order.
	BySession(ctx context.Context, userID, sessionID string) ([]Reading, error)

	// Latest returns the most recent reading for userID, or ErrNoReading.
	Latest(ctx context.Context, userID string) (Reading, error)
}
