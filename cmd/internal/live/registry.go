package live

import (
	"log/slog"
	"sync"

	"beacon/cmd/internal/metrics"
	v1 "beacon/shared/contracts/live/v1"
)

// Registry maps user ids to their live connection. At most one connection per
// user: registering again displaces the previous one (last writer wins).
//
// Concurrency guarantees:
// - Register/Unregister are safe under concurrent fan-out.
// - Fan-out over a snapshot never blocks on a slow peer.
// - Sends are panic-safe because Client.Send is never closed by the server.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		clients: make(map[string]*Client),
	}
}

// Register installs client as the user's connection and returns the displaced
// client, if any. The caller owns closing the displaced connection.
func (r *Registry) Register(client *Client) *Client {
	if r == nil || client == nil || client.UserID == "" {
		return nil
	}

	r.mu.Lock()
	prev := r.clients[client.UserID]
	r.clients[client.UserID] = client
	n := len(r.clients)
	r.mu.Unlock()

	metrics.LiveConnections.Set(float64(n))
	r.log.Info("live.register", "user_id", client.UserID, "displaced", prev != nil)
	return prev
}

// Unregister removes the mapping only if it still points at client.
// A stale disconnect must never evict the user's newer connection.
func (r *Registry) Unregister(client *Client) bool {
	if r == nil || client == nil || client.UserID == "" {
		return false
	}

	r.mu.Lock()
	cur, ok := r.clients[client.UserID]
	removed := ok && cur == client
	if removed {
		delete(r.clients, client.UserID)
	}
	n := len(r.clients)
	r.mu.Unlock()

	if removed {
		metrics.LiveConnections.Set(float64(n))
		r.log.Info("live.unregister", "user_id", client.UserID)
	}
	return removed
}

// Lookup returns the user's connection, or nil.
func (r *Registry) Lookup(userID string) *Client {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[userID]
}

// Snapshot returns the current clients. Mutations after the call are not seen.
func (r *Registry) Snapshot() []*Client {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// BroadcastExcept fans out event to every registered client except exceptID.
// Non-blocking: a full peer queue drops the event for that peer only.
func (r *Registry) BroadcastExcept(exceptID string, event v1.Event) {
	for _, c := range r.Snapshot() {
		if c == nil || c.UserID == exceptID {
			continue
		}
		trySend(c, event)
	}
}

// trySend enqueues event without blocking. Clients that are shutting down or
// saturated are skipped; the event is dropped for them.
func trySend(c *Client, event v1.Event) bool {
	select {
	case <-c.Done():
		return false
	default:
	}

	select {
	case c.Send <- event:
		metrics.FanoutDelivered.Inc()
		return true
	default:
		metrics.FanoutDropped.Inc()
		return false
	}
}
