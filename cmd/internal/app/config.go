package app

import (
	"crypto/rand"
	"errors"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	// PrettyLog switches the JSON handler for a human-readable one. Dev only.
	PrettyLog bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// TokenSecret signs access tokens (HS256). Min 32 bytes.
	// Empty means dev mode: an ephemeral secret is generated at startup and
	// every token dies with the process.
	TokenSecret []byte
	TokenIssuer string
	TokenTTL    time.Duration

	// ServerURL is the public base URL used in emergency tracking links.
	ServerURL string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	AlertQueueSize int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("BEACON_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("BEACON_LOG_LEVEL", "info"),
		PrettyLog: EnvBool("BEACON_LOG_PRETTY", false),

		ReadHeaderTimeout: EnvDuration("BEACON_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("BEACON_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("BEACON_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("BEACON_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("BEACON_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("BEACON_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("BEACON_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BEACON_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("BEACON_READINESS_REQUIRE_DB", false),

		TokenSecret: []byte(EnvString("BEACON_TOKEN_SECRET", "")),
		TokenIssuer: EnvString("BEACON_TOKEN_ISSUER", "beacon"),
		TokenTTL:    EnvDuration("BEACON_TOKEN_TTL", time.Hour),

		ServerURL: EnvString("BEACON_SERVER_URL", "http://localhost:8080"),

		TwilioAccountSID: EnvString("BEACON_TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  EnvString("BEACON_TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       EnvString("BEACON_TWILIO_FROM", ""),

		AlertQueueSize: EnvInt("BEACON_ALERT_QUEUE_SIZE", 64),
	}
}

// ResolveTokenSecret returns the configured signing secret, generating an
// ephemeral one when none is set. Production deployments must configure
// BEACON_TOKEN_SECRET; an ephemeral secret invalidates all tokens on restart.
func (c Config) ResolveTokenSecret() ([]byte, bool, error) {
	if len(c.TokenSecret) >= 32 {
		return c.TokenSecret, false, nil
	}
	if len(c.TokenSecret) > 0 {
		return nil, false, errors.New("BEACON_TOKEN_SECRET must be at least 32 bytes")
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, false, err
	}
	return secret, true, nil
}
