package location

import (
	"context"
	"errors"
	"testing"

	"beacon/cmd/identity"
	"beacon/cmd/internal/session"
)

type fixture struct {
	sessions *session.Service
	svc      *Service
	store    *MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := identity.NewMemoryStore()
	users.Seed(identity.User{ID: "alice", Username: "alice"})

	sessions := session.NewService(nil, users, session.NewMemoryStore())
	store := NewMemoryStore()
	return &fixture{
		sessions: sessions,
		svc:      NewService(nil, sessions, store),
		store:    store,
	}
}

func TestRecordTagsActiveSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	r, err := f.svc.Record(ctx, "alice", Sample{Lat: 34.68, Lng: -82.84})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if r.SessionID == nil || *r.SessionID != sess.ID {
		t.Fatalf("session tag=%v want %s", r.SessionID, sess.ID)
	}
	if r.ID == "" || r.RecordedAt.IsZero() {
		t.Fatalf("reading not stamped: %+v", r)
	}

	history, err := f.svc.History(ctx, "alice", sess.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != r.ID {
		t.Fatalf("history=%v want the recorded reading", history)
	}
}

func TestRecordWithoutSessionIsUntagged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Record(ctx, "alice", Sample{Lat: 34.68, Lng: -82.84})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if r.SessionID != nil {
		t.Fatalf("expected untagged reading, got session %s", *r.SessionID)
	}

	latest, err := f.svc.Latest(ctx, "alice")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != r.ID {
		t.Fatalf("latest=%s want %s", latest.ID, r.ID)
	}
}

func TestRecordStopsTaggingAfterEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.Start(ctx, "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.sessions.End(ctx, "alice", sess.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	r, err := f.svc.Record(ctx, "alice", Sample{Lat: 34.68, Lng: -82.84})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if r.SessionID != nil {
		t.Fatalf("reading tagged with ended session %s", *r.SessionID)
	}
}

func TestRecordSurfacesStorageFailure(t *testing.T) {
	t.Parallel()

	users := identity.NewMemoryStore()
	users.Seed(identity.User{ID: "alice", Username: "alice"})
	sessions := session.NewService(nil, users, session.NewMemoryStore())

	svc := NewService(nil, sessions, failingStore{})
	if _, err := svc.Record(context.Background(), "alice", Sample{Lat: 1, Lng: 2}); err == nil {
		t.Fatal("expected storage error to surface")
	}
}

func TestLatestWithoutReadings(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.svc.Latest(context.Background(), "alice"); !errors.Is(err, ErrNoReading) {
		t.Fatalf("expected no-reading, got %v", err)
	}
}

type failingStore struct{}

func (failingStore) Insert(context.Context, Reading) error { return errors.New("disk full") }
func (failingStore) BySession(context.Context, string, string) ([]Reading, error) {
	return nil, errors.New("disk full")
}
func (failingStore) Latest(context.Context, string) (Reading, error) {
	return Reading{}, errors.New("disk full")
}
