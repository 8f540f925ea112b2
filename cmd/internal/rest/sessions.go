package rest

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"beacon/cmd/identity"
	"beacon/cmd/internal/location"
	"beacon/cmd/internal/session"
)

type sessionResponse struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	IsActive  bool       `json:"is_active"`
}

type readingResponse struct {
	ID         string    `json:"id"`
	SessionID  *string   `json:"session_id,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SessionHandler exposes the session lifecycle over REST for clients that
// manage sessions outside the live stream.
type SessionHandler struct {
	log       *slog.Logger
	tokens    TokenVerifier
	sessions  *session.Service
	locations *location.Service
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(log *slog.Logger, tokens TokenVerifier, sessions *session.Service, locations *location.Service) *SessionHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SessionHandler{log: log, tokens: tokens, sessions: sessions, locations: locations}
}

// Register wires session routes onto the provided mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /users/{user_id}/sessions", requireUser(h.tokens, h.handleStart))
	mux.HandleFunc("GET /users/{user_id}/sessions", requireUser(h.tokens, h.handleList))
	mux.HandleFunc("GET /users/{user_id}/sessions/active", requireUser(h.tokens, h.handleActive))
	mux.HandleFunc("PUT /users/{user_id}/sessions/{session_id}/end", requireUser(h.tokens, h.handleEnd))
	mux.HandleFunc("GET /users/{user_id}/sessions/{session_id}/locations", requireUser(h.tokens, h.handleLocations))
}

func (h *SessionHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Start(r.Context(), r.PathValue("user_id"))
	switch {
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "unknown user")
		return
	case err != nil:
		h.log.Error("rest.session.start.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not start session")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (h *SessionHandler) handleEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.End(r.Context(), r.PathValue("user_id"), r.PathValue("session_id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "unknown session")
		return
	case errors.Is(err, session.ErrAlreadyEnded):
		writeError(w, http.StatusBadRequest, "invalid_state", "session already ended")
		return
	case err != nil:
		h.log.Error("rest.session.end.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not end session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *SessionHandler) handleActive(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Active(r.Context(), r.PathValue("user_id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no active session")
		return
	case err != nil:
		h.log.Error("rest.session.active.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not fetch session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *SessionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.sessions.All(r.Context(), r.PathValue("user_id"))
	switch {
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "unknown user")
		return
	case err != nil:
		h.log.Error("rest.session.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list sessions")
		return
	}

	out := make([]sessionResponse, 0, len(all))
	for _, sess := range all {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, map[string][]sessionResponse{"sessions": out})
}

func (h *SessionHandler) handleLocations(w http.ResponseWriter, r *http.Request) {
	readings, err := h.locations.History(r.Context(), r.PathValue("user_id"), r.PathValue("session_id"))
	if err != nil {
		h.log.Error("rest.session.locations.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list readings")
		return
	}

	out := make([]readingResponse, 0, len(readings))
	for _, rd := range readings {
		out = append(out, readingResponse{
			ID:         rd.ID,
			SessionID:  rd.SessionID,
			Lat:        rd.Lat,
			Lng:        rd.Lng,
			Accuracy:   rd.Accuracy,
			RecordedAt: rd.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]readingResponse{"locations": out})
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		IsActive:  s.IsActive,
	}
}
