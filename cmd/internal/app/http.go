package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authapi "beacon/cmd/internal/auth/api"
	"beacon/cmd/internal/live"
	"beacon/cmd/internal/location"
	"beacon/cmd/internal/rest"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	registry *prometheus.Registry,
	ws *live.Gateway,
	auth *authapi.Handler,
	sessions *rest.SessionHandler,
	contacts *rest.ContactHandler,
	locations *location.Service,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if auth != nil {
		auth.Register(mux)
	}
	if sessions != nil {
		sessions.Register(mux)
	}
	if contacts != nil {
		contacts.Register(mux)
	}

	// Tracking links from emergency messages land here. Deliberately
	// unauthenticated: recipients are not Beacon users.
	mux.HandleFunc("GET /track/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		handleTrack(w, r, log, locations)
	})

	mux.HandleFunc("GET /ws/{user_id}", ws.HandleWS)
}

func handleTrack(w http.ResponseWriter, r *http.Request, log Logger, locations *location.Service) {
	userID := r.PathValue("user_id")

	reading, err := locations.Latest(r.Context(), userID)
	switch {
	case errors.Is(err, location.ErrNoReading):
		http.Error(w, "no location available", http.StatusNotFound)
		return
	case err != nil:
		log.Error("track.latest.fail", "user_id", userID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(trackResponse{
		UserID:     userID,
		Lat:        reading.Lat,
		Lng:        reading.Lng,
		RecordedAt: reading.RecordedAt,
	})
}

type trackResponse struct {
	UserID     string    `json:"user_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}
