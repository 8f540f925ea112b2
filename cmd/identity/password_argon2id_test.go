package identity

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery", DefaultArgon2idParams())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", hash)
	}

	ok, err := VerifyPassword("correct horse battery", hash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("verify mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHashPasswordPolicy(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("short", DefaultArgon2idParams()); err == nil {
		t.Fatalf("expected rejection of short password")
	}
	if _, err := HashPassword(strings.Repeat("x", 300), DefaultArgon2idParams()); err == nil {
		t.Fatalf("expected rejection of oversized password")
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"not-a-phc-string",
		"$argon2i$v=19$m=65536,t=2,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=65536,t=2,p=1$c2FsdA$a2V5",
		// Declared memory above the verify bound.
		"$argon2id$v=19$m=99999999,t=2,p=1$c2FsdA$a2V5",
	}
	for _, c := range cases {
		if _, err := VerifyPassword("whatever-pass", c); err == nil {
			t.Fatalf("expected error for hash %q", c)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{in: "+1 (555) 010-2030", want: "+15550102030"},
		{in: "555 010 2030", want: "5550102030"},
		{in: "  +44 20 7946 0958 ", want: "+442079460958"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Fatalf("NormalizePhone(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}
