package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.TokenSecret = []byte(strings.Repeat("k", 32))

	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func newTestServer(t *testing.T, a *App) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.db.pool, a.dbEnabled, a.registry,
		a.ws, a.auth, a.sessionsAPI, a.contactsAPI, a.locations)

	srv := httptest.NewServer(WithRequestLogging(mux, a.log))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	a := newTestApp(t)
	srv := newTestServer(t, a)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status=%d", path, resp.StatusCode)
		}
	}
}

func TestReadyzRequiresDBWhenConfigured(t *testing.T) {
	a := newTestApp(t)
	a.cfg.ReadinessRequireDB = true
	srv := newTestServer(t, a)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d want 503 without db", resp.StatusCode)
	}
}

func TestRegisterThenTrackFlow(t *testing.T) {
	a := newTestApp(t)
	srv := newTestServer(t, a)

	// No reading yet.
	resp, err := http.Get(srv.URL + "/track/nobody")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("track status=%d want 404", resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]any{"username": "alice", "password": "correct horse battery"})
	resp, err = http.Post(srv.URL+"/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status=%d", resp.StatusCode)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Errorf("parseLogLevel(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestResolveTokenSecret(t *testing.T) {
	t.Parallel()

	long := Config{TokenSecret: []byte(strings.Repeat("s", 32))}
	secret, ephemeral, err := long.ResolveTokenSecret()
	if err != nil || ephemeral || len(secret) != 32 {
		t.Fatalf("configured secret: %v %v %d", err, ephemeral, len(secret))
	}

	short := Config{TokenSecret: []byte("short")}
	if _, _, err := short.ResolveTokenSecret(); err == nil {
		t.Fatalf("expected rejection of short secret")
	}

	empty := Config{}
	secret, ephemeral, err = empty.ResolveTokenSecret()
	if err != nil || !ephemeral || len(secret) != 32 {
		t.Fatalf("ephemeral secret: %v %v %d", err, ephemeral, len(secret))
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("BEACON_TEST_STR", "  hello ")
	t.Setenv("BEACON_TEST_BOOL", "true")
	t.Setenv("BEACON_TEST_INT", "42")
	t.Setenv("BEACON_TEST_DUR", "3s")

	if got := EnvString("BEACON_TEST_STR", "def"); got != "hello" {
		t.Errorf("EnvString=%q", got)
	}
	if got := EnvBool("BEACON_TEST_BOOL", false); !got {
		t.Errorf("EnvBool=false")
	}
	if got := EnvInt("BEACON_TEST_INT", 1); got != 42 {
		t.Errorf("EnvInt=%d", got)
	}
	if got := EnvDuration("BEACON_TEST_DUR", time.Second); got != 3*time.Second {
		t.Errorf("EnvDuration=%v", got)
	}
	if got := EnvInt("BEACON_TEST_MISSING", 7); got != 7 {
		t.Errorf("EnvInt default=%d", got)
	}
}
