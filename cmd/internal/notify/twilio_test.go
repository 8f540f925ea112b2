package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTwilioNotify(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s want POST", r.Method)
		}
		if got, want := r.URL.Path, "/2010-04-01/Accounts/AC123/Messages.json"; got != want {
			t.Errorf("path=%s want %s", got, want)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("basic auth=%s:%s ok=%v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("From"); got != "whatsapp:+14155238886" {
			t.Errorf("From=%s", got)
		}
		if got := r.PostForm.Get("To"); got != "whatsapp:+15550001111" {
			t.Errorf("To=%s", got)
		}
		if got := r.PostForm.Get("Body"); got != "help" {
			t.Errorf("Body=%s", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42"}`))
	}))
	defer srv.Close()

	tw, err := NewTwilio(nil, TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+14155238886",
		BaseURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("new twilio: %v", err)
	}

	sid, err := tw.Notify(context.Background(), "+15550001111", "help")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sid != "SM42" {
		t.Fatalf("sid=%s want SM42", sid)
	}
}

func TestTwilioNotifyAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid 'To' number"}`))
	}))
	defer srv.Close()

	tw, err := NewTwilio(nil, TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+14155238886",
		BaseURL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("new twilio: %v", err)
	}

	if _, err := tw.Notify(context.Background(), "bogus", "help"); err == nil {
		t.Fatal("expected error from API failure")
	}
}

func TestTwilioRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewTwilio(nil, TwilioConfig{From: "+14155238886"}); err == nil {
		t.Fatal("expected credential validation error")
	}
}
