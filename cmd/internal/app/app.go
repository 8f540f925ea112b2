// Package app wires the Beacon server runtime: config, logging, HTTP routes,
// the live websocket gateway, and the emergency dispatch worker.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"beacon/cmd/identity"
	"beacon/cmd/internal/alert"
	authapi "beacon/cmd/internal/auth/api"
	"beacon/cmd/internal/auth/token"
	"beacon/cmd/internal/contact"
	"beacon/cmd/internal/live"
	"beacon/cmd/internal/location"
	"beacon/cmd/internal/metrics"
	"beacon/cmd/internal/notify"
	"beacon/cmd/internal/rest"
	"beacon/cmd/internal/session"
)

// stores bundles the persistence layer, backed either by Postgres or by
// process memory in dev mode.
type stores struct {
	users     identity.Store
	sessions  session.Store
	locations location.Store
	contacts  contact.Store

	pool *pgxpool.Pool
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// App is the Beacon server runtime.
type App struct {
	cfg Config
	log Logger

	db        *stores
	dbEnabled bool

	registry *prometheus.Registry

	dispatcher *alert.Dispatcher
	ws         *live.Gateway

	auth        *authapi.Handler
	sessionsAPI *rest.SessionHandler
	contactsAPI *rest.ContactHandler
	locations   *location.Service
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.PrettyLog)
	}

	db, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	secret, ephemeral, err := cfg.ResolveTokenSecret()
	if err != nil {
		db.Close()
		return nil, err
	}
	if ephemeral {
		log.Warn("token.secret.ephemeral", "msg", "BEACON_TOKEN_SECRET unset; tokens will not survive restart")
	}
	tokens, err := token.NewManager(token.Config{
		Secret: secret,
		Issuer: cfg.TokenIssuer,
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	sessionSvc := session.NewService(log, db.users, db.sessions)
	locationSvc := location.NewService(log, sessionSvc, db.locations)
	contactSvc := contact.NewService(log, db.users, db.contacts)

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	dispatcher := alert.NewDispatcher(log, db.users, contactSvc, notifier, alert.Config{
		ServerURL: cfg.ServerURL,
		QueueSize: cfg.AlertQueueSize,
	})

	connRegistry := live.NewRegistry(log)
	fanout := live.NewBroadcaster(log, connRegistry, contactSvc)
	ws := live.NewGateway(log, tokens, connRegistry, fanout, sessionSvc, locationSvc, dispatcher)

	promRegistry := prometheus.NewRegistry()
	metrics.MustRegister(promRegistry)
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		cfg:         cfg,
		log:         log,
		db:          db,
		dbEnabled:   db.pool != nil,
		registry:    promRegistry,
		dispatcher:  dispatcher,
		ws:          ws,
		auth:        authapi.NewHandler(log, db.users, tokens),
		sessionsAPI: rest.NewSessionHandler(log, tokens, sessionSvc, locationSvc),
		contactsAPI: rest.NewContactHandler(log, tokens, contactSvc),
		locations:   locationSvc,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start()

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.db.pool, a.dbEnabled, a.registry,
		a.ws, a.auth, a.sessionsAPI, a.contactsAPI, a.locations)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Drain queued emergency alerts before dropping the pool.
	if err := a.dispatcher.Stop(shutdownCtx); err != nil {
		a.log.Error("dispatcher.stop.fail", "err", err)
	}
	a.db.Close()

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return &stores{
			users:     identity.NewMemoryStore(),
			sessions:  session.NewMemoryStore(),
			locations: location.NewMemoryStore(),
			contacts:  contact.NewMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("db.enabled.postgres_store")

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	sessions, err := session.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	locations, err := location.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	contacts, err := contact.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &stores{
		users:     users,
		sessions:  sessions,
		locations: locations,
		contacts:  contacts,
		pool:      pool,
	}, nil
}

// newNotifier selects the emergency message transport.
// Twilio when fully configured, a logging no-op otherwise.
func newNotifier(cfg Config, log Logger) (notify.Notifier, error) {
	if cfg.TwilioAccountSID == "" && cfg.TwilioAuthToken == "" && cfg.TwilioFrom == "" {
		log.Info("notify.noop", "msg", "Twilio not configured; emergency messages are logged only")
		return notify.Noop{Log: log}, nil
	}
	return notify.NewTwilio(log, notify.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioFrom,
	})
}
