// Package authapi exposes the HTTP auth surface: registration, login, and
// token introspection. It owns no business rules beyond credential checks;
// identity persistence lives in cmd/identity.
package authapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"beacon/cmd/identity"
	"beacon/cmd/internal/auth/token"
)

const maxAuthBodyBytes = 64 << 10

// Handler wires HTTP auth endpoints to the identity store and token manager.
type Handler struct {
	log    *slog.Logger
	store  identity.Store
	tokens *token.Manager

	// dummyHash keeps login timing flat for unknown emails.
	dummyHash string
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, store identity.Store, tokens *token.Manager) *Handler {
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{log: log, store: store, tokens: tokens}
	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		h.dummyHash = hash
	}
	return h
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("GET /auth/me", h.handleMe)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, maxAuthBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	u, err := h.store.CreateUser(r.Context(), identity.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	switch {
	case identity.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", "username or email already in use")
		return
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	case err != nil:
		h.log.Error("auth.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "registration failed")
		return
	}

	h.log.Info("auth.register", "user_id", u.ID)
	h.respondWithToken(w, http.StatusCreated, u)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, maxAuthBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "email and password are required")
		return
	}

	u, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Burn a hash verification anyway so unknown emails are not
		// distinguishable from wrong passwords by response time.
		_, _ = identity.VerifyPassword(req.Password, h.dummyHash)
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	ok, err := identity.VerifyPassword(req.Password, u.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	h.log.Info("auth.login", "user_id", u.ID)
	h.respondWithToken(w, http.StatusOK, u)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	cred := token.BearerFromHeader(r.Header.Get("Authorization"))
	claims, err := h.tokens.Verify(cred, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return
	}

	u, err := h.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

func (h *Handler) respondWithToken(w http.ResponseWriter, status int, u identity.User) {
	signed, exp, err := h.tokens.Issue(u.ID, time.Now().UTC())
	if err != nil {
		h.log.Error("auth.token.issue.fail", "user_id", u.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "token issuance failed")
		return
	}

	writeJSON(w, status, authResponse{
		User:  toUserResponse(u),
		Token: tokenResponse{AccessToken: signed, ExpiresAt: exp},
	})
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
	}
}
