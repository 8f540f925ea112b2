package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds Twilio API credentials and the sender number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the sending number, e.g. "+14155238886".
	From string
	// BaseURL overrides the API endpoint. Empty means the public API.
	BaseURL string
}

// Twilio sends WhatsApp messages through the Twilio Messages API.
type Twilio struct {
	cfg    TwilioConfig
	client *http.Client
	log    *slog.Logger
}

// NewTwilio constructs a Twilio notifier.
func NewTwilio(log *slog.Logger, cfg TwilioConfig) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, fmt.Errorf("notify: twilio account sid, auth token and from number are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Twilio{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}, nil
}

// Notify sends body to phone over the WhatsApp channel and returns the
// Twilio message SID.
func (t *Twilio) Notify(ctx context.Context, phone, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimSuffix(t.cfg.BaseURL, "/"), url.PathEscape(t.cfg.AccountSID))

	form := url.Values{}
	form.Set("From", whatsapp(t.cfg.From))
	form.Set("To", whatsapp(phone))
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		t.log.Error("notify.twilio.fail", "status", resp.StatusCode, "code", apiErr.Code)
		return "", fmt.Errorf("twilio: status %d code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("twilio response decode: %w", err)
	}
	return out.SID, nil
}

func whatsapp(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}
