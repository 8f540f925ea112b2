package token

import (
	"strings"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret: []byte(strings.Repeat("k", 32)),
		Issuer: "beacon-test",
		TTL:    15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueVerifyRoundtrip(t *testing.T) {
	t.Parallel()

	m := testManager(t)
	now := time.Now().UTC()

	signed, exp, err := m.Issue("user-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("exp=%v not after now=%v", exp, now)
	}

	claims, err := m.Verify(signed, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("user id=%q want user-1", claims.UserID)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	m := testManager(t)
	now := time.Now().UTC()

	signed, _, err := m.Issue("user-2", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Verify(signed, now); err == nil {
		t.Fatalf("expected expired token rejection")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	m := testManager(t)
	other, err := NewManager(Config{
		Secret: []byte(strings.Repeat("z", 32)),
		Issuer: "beacon-test",
		TTL:    15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	now := time.Now().UTC()
	signed, _, err := other.Issue("user-3", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Verify(signed, now); err == nil {
		t.Fatalf("expected signature rejection")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	m := testManager(t)
	for _, bad := range []string{"", "abc", "a.b.c"} {
		if _, err := m.Verify(bad, time.Now().UTC()); err == nil {
			t.Fatalf("expected rejection of %q", bad)
		}
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewManager(Config{Secret: []byte("short"), TTL: time.Hour}); err == nil {
		t.Fatalf("expected short-secret rejection")
	}
}

func TestBearerFromHeader(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{in: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{in: "Bearer   spaced  ", want: "spaced"},
		{in: "bearer abc", want: ""},
		{in: "Basic abc", want: ""},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := BearerFromHeader(tc.in); got != tc.want {
			t.Fatalf("BearerFromHeader(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}
