// Package notify sends out-of-band messages to phone numbers.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers one message to one phone number and returns the
// provider's message id.
type Notifier interface {
	Notify(ctx context.Context, phone, body string) (string, error)
}

// Noop logs instead of sending. Used in dev mode and tests.
type Noop struct {
	Log *slog.Logger
}

// Notify logs the message and reports success.
func (n Noop) Notify(_ context.Context, phone, body string) (string, error) {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notify.noop", "phone", phone, "len", len(body))
	return "noop", nil
}
