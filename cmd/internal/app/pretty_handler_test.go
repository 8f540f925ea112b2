package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPrettyHandlerRendersAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false)
	log := slog.New(h)

	log.Info("http.request", "method", "GET", "path", "/healthz", "status", 200, "note", "a b")

	out := buf.String()
	for _, frag := range []string{"[INFO]", "http.request", "method=GET", "path=/healthz", "status=200", `note="a b"`} {
		if !strings.Contains(out, frag) {
			t.Fatalf("output missing %q:\n%s", frag, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color escapes present with color disabled:\n%s", out)
	}
}

func TestPrettyHandlerLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error disabled at warn level")
	}
}

func TestPrettyHandlerGroupsAndWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := newPrettyHandler(&buf, nil, false)
	log := slog.New(base.WithAttrs([]slog.Attr{slog.String("service", "beacon")})).WithGroup("db")

	log.Info("query", slog.Duration("took", 3*time.Millisecond))

	out := buf.String()
	for _, frag := range []string{"service=beacon", "db.took=3ms"} {
		if !strings.Contains(out, frag) {
			t.Fatalf("output missing %q:\n%s", frag, out)
		}
	}
}
