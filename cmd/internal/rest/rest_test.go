package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"beacon/cmd/identity"
	"beacon/cmd/internal/auth/token"
	"beacon/cmd/internal/contact"
	"beacon/cmd/internal/location"
	"beacon/cmd/internal/session"
)

type fixture struct {
	server *httptest.Server
	tokens *token.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := identity.NewMemoryStore()
	users.Seed(identity.User{ID: "alice", Username: "alice"})
	users.Seed(identity.User{ID: "bob", Username: "bob"})

	tokens, err := token.NewManager(token.Config{Secret: []byte(strings.Repeat("k", 32))})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	sessions := session.NewService(nil, users, session.NewMemoryStore())
	locations := location.NewService(nil, sessions, location.NewMemoryStore())
	contacts := contact.NewService(nil, users, contact.NewMemoryStore())

	mux := http.NewServeMux()
	NewSessionHandler(nil, tokens, sessions, locations).Register(mux)
	NewContactHandler(nil, tokens, contacts).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path, asUser string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if asUser != "" {
		tok, _, err := f.tokens.Issue(asUser, time.Now().UTC())
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestSessionLifecycleOverREST(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/users/alice/sessions", "alice", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status=%d", resp.StatusCode)
	}
	var started sessionResponse
	decodeInto(t, resp, &started)
	if !started.IsActive || started.UserID != "alice" {
		t.Fatalf("started=%+v", started)
	}

	resp = f.do(t, http.MethodGet, "/users/alice/sessions/active", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("active status=%d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPut, "/users/alice/sessions/"+started.ID+"/end", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status=%d", resp.StatusCode)
	}

	// Ending twice is a client error, not an idempotent no-op.
	resp = f.do(t, http.MethodPut, "/users/alice/sessions/"+started.ID+"/end", "alice", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("re-end status=%d want 400", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/users/alice/sessions/active", "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("active after end status=%d want 404", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/users/alice/sessions", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status=%d", resp.StatusCode)
	}
	var list map[string][]sessionResponse
	decodeInto(t, resp, &list)
	if len(list["sessions"]) != 1 {
		t.Fatalf("sessions=%+v want 1", list)
	}
}

func TestRESTEnforcesOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Bob's token must not operate on alice's resources.
	resp := f.do(t, http.MethodPost, "/users/alice/sessions", "bob", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("foreign token status=%d want 401", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/users/alice/contacts", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status=%d want 401", resp.StatusCode)
	}
}

func TestContactCRUDOverREST(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/users/alice/contacts", "alice", map[string]any{
		"name": "Bob", "phone": "+1 555 000 2222", "contact_user_id": "bob",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d", resp.StatusCode)
	}
	var created contactResponse
	decodeInto(t, resp, &created)
	if created.Status != string(contact.StatusInvited) {
		t.Fatalf("default status=%s", created.Status)
	}
	if created.Phone == nil || *created.Phone != "+15550002222" {
		t.Fatalf("phone not normalized: %v", created.Phone)
	}

	// Duplicate phone for the same owner conflicts.
	resp = f.do(t, http.MethodPost, "/users/alice/contacts", "alice", map[string]any{
		"name": "Robert", "phone": "+15550002222",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status=%d want 409", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPut, "/users/alice/contacts/"+created.ID+"/status", "alice", map[string]any{
		"status": "accepted",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status update=%d", resp.StatusCode)
	}
	var updated contactResponse
	decodeInto(t, resp, &updated)
	if updated.Status != string(contact.StatusAccepted) {
		t.Fatalf("status=%s want accepted", updated.Status)
	}

	resp = f.do(t, http.MethodPut, "/users/alice/contacts/"+created.ID+"/status", "alice", map[string]any{
		"status": "bestie",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status=%d want 400", resp.StatusCode)
	}

	resp = f.do(t, http.MethodDelete, "/users/alice/contacts/"+created.ID, "alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodDelete, "/users/alice/contacts/"+created.ID, "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status=%d want 404", resp.StatusCode)
	}
}

func TestContactCreateRequiresReachability(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/users/alice/contacts", "alice", map[string]any{"name": "Nobody"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", resp.StatusCode)
	}
}
