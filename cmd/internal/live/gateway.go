// Package live is the realtime heart of Beacon: one websocket per user,
// a connection registry, and authorization-gated fan-out of location and
// session events to accepted contacts.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"beacon/cmd/internal/alert"
	"beacon/cmd/internal/auth/token"
	"beacon/cmd/internal/location"
	"beacon/cmd/internal/metrics"
	"beacon/cmd/internal/session"
	v1 "beacon/shared/contracts/live/v1"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3
)

// TokenVerifier authenticates the upgrade credential.
type TokenVerifier interface {
	Verify(tokenStr string, now time.Time) (token.Claims, error)
}

// SessionManager is the slice of the session service the gateway drives.
type SessionManager interface {
	Start(ctx context.Context, userID string) (session.Session, error)
	End(ctx context.Context, userID, sessionID string) (session.Session, error)
	Active(ctx context.Context, userID string) (session.Session, error)
}

// LocationRecorder persists incoming location samples.
type LocationRecorder interface {
	Record(ctx context.Context, userID string, sample location.Sample) (location.Reading, error)
}

// AlertTrigger enqueues emergency alerts for out-of-band dispatch.
type AlertTrigger interface {
	Trigger(a alert.Alert) error
}

// Gateway is the websocket entrypoint for Beacon live sharing.
//
// It authenticates the upgrade, registers the connection, runs the event loop
// with heartbeats and rate limits, and routes validated events to the session,
// location, and alert services.
type Gateway struct {
	log       *slog.Logger
	tokens    TokenVerifier
	registry  *Registry
	fanout    *Broadcaster
	sessions  SessionManager
	locations LocationRecorder
	alerts    AlertTrigger

	devInsecure    bool
	allowedOrigins []string
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration

	// ungated replays the pre-authorization prototype: location updates go to
	// every connected peer instead of the accepted-contact set. Dev only.
	ungated bool
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, tokens TokenVerifier, registry *Registry, fanout *Broadcaster,
	sessions SessionManager, locations LocationRecorder, alerts AlertTrigger) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &Gateway{
		log:       log,
		tokens:    tokens,
		registry:  registry,
		fanout:    fanout,
		sessions:  sessions,
		locations: locations,
		alerts:    alerts,
	}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("BEACON_WS_DEV_INSECURE", false)

	// Mobile clients send no Origin header, so the allowlist is opt-in:
	// empty means browser clients are limited to same-host upgrades.
	g.allowedOrigins = envCSVWS("BEACON_WS_ALLOWED_ORIGINS", "")
	g.originPatterns = originPatterns(g.allowedOrigins)

	g.writeTimeout = envDurationWS("BEACON_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("BEACON_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("BEACON_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("BEACON_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("BEACON_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("BEACON_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("BEACON_WS_RATE_WINDOW", rateLimitWindow)

	g.ungated = envBoolWS("BEACON_LIVE_UNGATED", false)
	if g.ungated {
		g.log.Warn("live.ungated", "msg", "contact authorization gate disabled; dev only")
	}

	return g
}

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates and upgrades a request to a live-sharing stream.
// Route shape: GET /ws/{user_id}?token=...
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("user_id"))
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	// Authenticate before the upgrade so failures are plain HTTP 401s.
	// The credential subject must be the path user: no connecting as someone else.
	cred := strings.TrimSpace(r.URL.Query().Get("token"))
	if cred == "" {
		cred = token.BearerFromHeader(r.Header.Get("Authorization"))
	}
	claims, err := g.tokens.Verify(cred, time.Now().UTC())
	if err != nil || claims.UserID != userID {
		g.log.Info("ws.reject.auth", "user_id", userID, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(userID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Last writer wins: a reconnect displaces the previous connection.
	if prev := g.registry.Register(client); prev != nil {
		prev.Close()
	}

	// shutdown is idempotent. It does NOT close client.Send.
	// Ordering matters: compare-and-remove from the registry first, and only
	// the invocation that actually removed the mapping announces the
	// departure, so peers see exactly one presence_left per connection.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			if g.registry.Unregister(client) {
				g.registry.BroadcastExcept(userID, v1.Event{
					Type: v1.TypePresenceLeft,
					ID:   userID,
					Left: true,
				})
			}

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case event := <-client.Send:
				if err := writeEvent(ctx, conn, event, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "user_id", userID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "user_id", userID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		event, err := readEvent(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "user_id", userID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := event.ValidateInbound(); err != nil {
			g.trySendError(ctx, client, "bad_event", err.Error())
			continue readLoop
		}
		metrics.EventsReceived.WithLabelValues(event.Type).Inc()

		switch event.Type {
		case v1.TypeStartSession:
			g.onStartSession(ctx, client)

		case v1.TypeEndSession:
			g.onEndSession(ctx, client, event)

		case v1.TypeLocationUpdate:
			g.onLocationUpdate(ctx, client, event)

		case v1.TypeEmergencyAlert:
			g.onEmergencyAlert(ctx, client, event, now)

		default:
			g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", event.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

func (g *Gateway) onStartSession(ctx context.Context, client *Client) {
	sess, err := g.sessions.Start(ctx, client.UserID)
	if err != nil {
		g.log.Error("ws.session.start.fail", "user_id", client.UserID, "err", err)
		g.trySendError(ctx, client, "start_failed", "could not start session")
		return
	}

	g.enqueue(ctx, client, v1.Event{Type: v1.TypeSessionStarted, SessionID: sess.ID})
	g.fanout.Fanout(ctx, client.UserID, v1.Event{Type: v1.TypeContactStarted, UserID: client.UserID})
}

func (g *Gateway) onEndSession(ctx context.Context, client *Client, event v1.Event) {
	sessionID := strings.TrimSpace(event.SessionID)
	if sessionID == "" {
		active, err := g.sessions.Active(ctx, client.UserID)
		if err != nil {
			g.trySendError(ctx, client, "not_found", "no active session")
			return
		}
		sessionID = active.ID
	}

	sess, err := g.sessions.End(ctx, client.UserID, sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		g.trySendError(ctx, client, "not_found", "unknown session")
		return
	case errors.Is(err, session.ErrAlreadyEnded):
		g.trySendError(ctx, client, "invalid_state", "session already ended")
		return
	case err != nil:
		g.log.Error("ws.session.end.fail", "user_id", client.UserID, "err", err)
		g.trySendError(ctx, client, "end_failed", "could not end session")
		return
	}

	g.enqueue(ctx, client, v1.Event{Type: v1.TypeSessionEnded, SessionID: sess.ID})
	g.fanout.Fanout(ctx, client.UserID, v1.Event{Type: v1.TypeContactEnded, UserID: client.UserID})
}

func (g *Gateway) onLocationUpdate(ctx context.Context, client *Client, event v1.Event) {
	if _, err := g.locations.Record(ctx, client.UserID, location.Sample{
		Lat:      *event.Lat,
		Lng:      *event.Lng,
		Accuracy: event.Accuracy,
	}); err != nil {
		// Storage trouble must not tear down the stream or stop the relay:
		// the sender learns, the contacts still see the position.
		g.trySendError(ctx, client, "ingest_failed", "reading not stored")
	}

	out := v1.Event{
		Type: v1.TypeLocationUpdate,
		ID:   client.UserID,
		Lat:  event.Lat,
		Lng:  event.Lng,
	}

	if g.ungated {
		g.registry.BroadcastExcept(client.UserID, out)
		return
	}
	g.fanout.Fanout(ctx, client.UserID, out)
}

func (g *Gateway) onEmergencyAlert(ctx context.Context, client *Client, event v1.Event, now time.Time) {
	if _, err := g.locations.Record(ctx, client.UserID, location.Sample{
		Lat: *event.Lat,
		Lng: *event.Lng,
	}); err != nil {
		g.log.Error("ws.alert.record.fail", "user_id", client.UserID, "err", err)
	}

	g.fanout.Fanout(ctx, client.UserID, v1.Event{
		Type: v1.TypeEmergencyAlert,
		ID:   client.UserID,
		Lat:  event.Lat,
		Lng:  event.Lng,
	})

	if err := g.alerts.Trigger(alert.Alert{
		UserID: client.UserID,
		Lat:    *event.Lat,
		Lng:    *event.Lng,
		At:     now,
	}); err != nil {
		g.log.Error("ws.alert.trigger.fail", "user_id", client.UserID, "err", err)
		g.trySendError(ctx, client, "alert_queue_full", "alert dispatch overloaded")
	}
}

// ---- send helpers ----

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	g.enqueue(ctx, client, v1.Event{Type: v1.TypeError, Code: code, Message: msg})
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, event v1.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- event:
		return true
	default:
		return false
	}
}

// ---- event IO ----

func readEvent(ctx context.Context, conn *websocket.Conn) (v1.Event, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Event{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Event{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var event v1.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return v1.Event{}, err
	}
	return event, nil
}

func writeEvent(parent context.Context, conn *websocket.Conn, event v1.Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors surface from json.Unmarshal, not conn.Read.
	// String fallback for errors propagated as text.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
