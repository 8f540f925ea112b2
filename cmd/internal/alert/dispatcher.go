// Package alert dispatches emergency notifications to trusted contacts.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"beacon/cmd/identity"
	"beacon/cmd/internal/contact"
	"beacon/cmd/internal/metrics"
	"beacon/cmd/internal/notify"
)

// ErrQueueFull is returned when the dispatch queue cannot accept another alert.
var ErrQueueFull = errors.New("alert queue full")

// Alert is one emergency to dispatch.
type Alert struct {
	UserID string
	Lat    float64
	Lng    float64
	At     time.Time
}

// UserLookup is the slice of identity the dispatcher needs.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}

// ContactLookup resolves the alerting user's accepted contacts.
type ContactLookup interface {
	AcceptedContacts(ctx context.Context, ownerID string) ([]contact.Contact, error)
}

// Dispatcher delivers emergency notifications off the connection hot path.
// Trigger enqueues and returns immediately; a worker goroutine drains the
// queue and performs the slow provider calls.
type Dispatcher struct {
	log       *slog.Logger
	users     UserLookup
	contacts  ContactLookup
	notifier  notify.Notifier
	serverURL string

	queue chan Alert

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	drained   chan struct{}

	// perAlertTimeout bounds the provider calls for one alert.
	perAlertTimeout time.Duration
}

// Config configures a Dispatcher.
type Config struct {
	// ServerURL is the public base URL used in tracking links.
	ServerURL string
	// QueueSize bounds pending alerts. Default 64.
	QueueSize int
}

// NewDispatcher constructs a Dispatcher. Call Start before Trigger.
func NewDispatcher(log *slog.Logger, users UserLookup, contacts ContactLookup, notifier notify.Notifier, cfg Config) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Dispatcher{
		log:             log,
		users:           users,
		contacts:        contacts,
		notifier:        notifier,
		serverURL:       strings.TrimSuffix(cfg.ServerURL, "/"),
		queue:           make(chan Alert, cfg.QueueSize),
		done:            make(chan struct{}),
		drained:         make(chan struct{}),
		perAlertTimeout: 30 * time.Second,
	}
}

// Start launches the worker goroutine. Safe to call once.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Stop signals the worker and waits for in-flight work to finish.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.done) })
	select {
	case <-d.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger enqueues an alert without blocking. ErrQueueFull when the queue is
// saturated; the caller's stream keeps flowing either way.
func (d *Dispatcher) Trigger(a Alert) error {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	select {
	case d.queue <- a:
		metrics.AlertsDispatched.Inc()
		return nil
	default:
		d.log.Warn("alert.queue.full", "user_id", a.UserID)
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.drained)
	for {
		select {
		case a := <-d.queue:
			d.dispatch(a)
		case <-d.done:
			// Drain what is already queued, then exit.
			for {
				select {
				case a := <-d.queue:
					d.dispatch(a)
				default:
					return
				}
			}
		}
	}
}

// dispatch notifies the alerting user's own phone plus every accepted
// contact's phone. Recipient failures are isolated: one provider error never
// suppresses the remaining sends.
func (d *Dispatcher) dispatch(a Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.perAlertTimeout)
	defer cancel()

	user, err := d.users.GetUser(ctx, a.UserID)
	if err != nil {
		d.log.Error("alert.dispatch.user", "user_id", a.UserID, "err", err)
		return
	}

	body := d.message(user.Username, a)

	sent, failed := 0, 0
	if user.Phone != nil && *user.Phone != "" {
		if d.send(ctx, *user.Phone, body) {
			sent++
		} else {
			failed++
		}
	}

	contacts, err := d.contacts.AcceptedContacts(ctx, a.UserID)
	if err != nil {
		d.log.Error("alert.dispatch.contacts", "user_id", a.UserID, "err", err)
	}
	for _, c := range contacts {
		if c.Phone == nil || *c.Phone == "" {
			continue
		}
		if d.send(ctx, *c.Phone, body) {
			sent++
		} else {
			failed++
		}
	}

	d.log.Info("alert.dispatch.done", "user_id", a.UserID, "sent", sent, "failed", failed)
}

func (d *Dispatcher) send(ctx context.Context, phone, body string) bool {
	sid, err := d.notifier.Notify(ctx, phone, body)
	if err != nil {
		metrics.Notifications.WithLabelValues("error").Inc()
		d.log.Error("alert.notify.fail", "phone", phone, "err", err)
		return false
	}
	metrics.Notifications.WithLabelValues("ok").Inc()
	d.log.Info("alert.notify.ok", "phone", phone, "message_id", sid)
	return true
}

func (d *Dispatcher) message(name string, a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EMERGENCY: %s triggered an alert.\n", name)
	fmt.Fprintf(&b, "Last known position: %.5f, %.5f\n", a.Lat, a.Lng)
	if d.serverURL != "" {
		fmt.Fprintf(&b, "Live tracking: %s/track/%s\n", d.serverURL, a.UserID)
	}
	fmt.Fprintf(&b, "Sent %s", a.At.Format(time.RFC3339))
	return b.String()
}
