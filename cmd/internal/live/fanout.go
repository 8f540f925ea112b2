package live

import (
	"context"
	"log/slog"

	v1 "beacon/shared/contracts/live/v1"
)

// Gate resolves which registered users may receive a sharer's events.
type Gate interface {
	// AcceptedRecipients returns the registered user ids among ownerID's
	// accepted contacts. Acceptance is directional: ownerID accepting a
	// contact entitles that contact to receive, never the reverse.
	AcceptedRecipients(ctx context.Context, ownerID string) ([]string, error)
}

// Broadcaster fans events out to a sharer's authorized, currently connected
// contacts.
type Broadcaster struct {
	log      *slog.Logger
	registry *Registry
	gate     Gate
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(log *slog.Logger, registry *Registry, gate Gate) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{log: log, registry: registry, gate: gate}
}

// Fanout delivers event from actorID to every online accepted contact.
// Delivery is per-recipient and non-blocking: offline contacts are skipped,
// saturated ones dropped, and neither outcome affects the others.
// Returns the number of recipients the event was enqueued for.
func (b *Broadcaster) Fanout(ctx context.Context, actorID string, event v1.Event) int {
	recipients, err := b.gate.AcceptedRecipients(ctx, actorID)
	if err != nil {
		b.log.Error("live.fanout.gate", "user_id", actorID, "err", err)
		return 0
	}

	delivered := 0
	for _, id := range recipients {
		peer := b.registry.Lookup(id)
		if peer == nil {
			continue
		}
		if trySend(peer, event) {
			delivered++
		}
	}
	return delivered
}
