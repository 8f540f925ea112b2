package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"beacon/cmd/identity"
	"beacon/cmd/internal/contact"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]bool
	calls map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{fail: make(map[string]bool), calls: make(map[string]string)}
}

func (n *recordingNotifier) Notify(_ context.Context, phone, body string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[phone] = body
	if n.fail[phone] {
		return "", errors.New("provider down")
	}
	n.sent = append(n.sent, phone)
	return "SM-" + phone, nil
}

func (n *recordingNotifier) delivered() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func (n *recordingNotifier) body(phone string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[phone]
}

func strp(s string) *string { return &s }

func newTestDispatcher(t *testing.T, notifier *recordingNotifier) (*Dispatcher, *contact.Service) {
	t.Helper()

	users := identity.NewMemoryStore()
	users.Seed(identity.User{ID: "alice", Username: "alice", Phone: strp("+15550000000")})
	users.Seed(identity.User{ID: "bob", Username: "bob"})

	contacts := contact.NewService(nil, users, contact.NewMemoryStore())

	d := NewDispatcher(nil, users, contacts, notifier, Config{ServerURL: "https://beacon.example"})
	d.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d, contacts
}

func seedContacts(t *testing.T, contacts *contact.Service) {
	t.Helper()
	ctx := context.Background()
	cases := []contact.CreateInput{
		{Name: "Mom", Phone: strp("+15551112222"), Status: contact.StatusAccepted},
		{Name: "Dad", Phone: strp("+15557778888"), Status: contact.StatusAccepted},
		{Name: "Pending", Phone: strp("+15559990000"), Status: contact.StatusPending},
	}
	for _, in := range cases {
		if _, err := contacts.Create(ctx, "alice", in); err != nil {
			t.Fatalf("seed contact %s: %v", in.Name, err)
		}
	}
}

func waitDrained(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestDispatchNotifiesSelfAndAcceptedContacts(t *testing.T) {
	t.Parallel()

	notifier := newRecordingNotifier()
	d, contacts := newTestDispatcher(t, notifier)
	seedContacts(t, contacts)

	if err := d.Trigger(Alert{UserID: "alice", Lat: 34.68, Lng: -82.84}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	waitDrained(t, d)

	got := notifier.delivered()
	want := map[string]bool{"+15550000000": true, "+15551112222": true, "+15557778888": true}
	if len(got) != len(want) {
		t.Fatalf("delivered=%v want %v", got, want)
	}
	for _, phone := range got {
		if !want[phone] {
			t.Fatalf("unexpected recipient %s", phone)
		}
	}

	body := notifier.body("+15551112222")
	for _, frag := range []string{"alice", "34.68", "-82.84", "https://beacon.example/track/alice"} {
		if !strings.Contains(body, frag) {
			t.Fatalf("body missing %q:\n%s", frag, body)
		}
	}
}

func TestDispatchIsolatesRecipientFailures(t *testing.T) {
	t.Parallel()

	notifier := newRecordingNotifier()
	notifier.fail["+15551112222"] = true

	d, contacts := newTestDispatcher(t, notifier)
	seedContacts(t, contacts)

	if err := d.Trigger(Alert{UserID: "alice", Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	waitDrained(t, d)

	got := notifier.delivered()
	if len(got) != 2 {
		t.Fatalf("delivered=%v want 2 despite one failure", got)
	}
	for _, phone := range got {
		if phone == "+15551112222" {
			t.Fatalf("failed recipient reported as delivered")
		}
	}
}

func TestTriggerRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()

	users := identity.NewMemoryStore()
	users.Seed(identity.User{ID: "alice", Username: "alice"})
	contacts := contact.NewService(nil, users, contact.NewMemoryStore())

	// Never started: the queue only fills.
	d := NewDispatcher(nil, users, contacts, newRecordingNotifier(), Config{QueueSize: 1})

	if err := d.Trigger(Alert{UserID: "alice"}); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if err := d.Trigger(Alert{UserID: "alice"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue-full, got %v", err)
	}
}
