// Package rest exposes the non-realtime HTTP surface: session and trusted
// contact management, scoped per user behind bearer authentication.
package rest

import (
	"net/http"
	"strings"
	"time"

	"beacon/cmd/internal/auth/token"
)

// TokenVerifier authenticates bearer credentials.
type TokenVerifier interface {
	Verify(tokenStr string, now time.Time) (token.Claims, error)
}

// requireUser authenticates the request and enforces that the credential
// subject is the {user_id} path segment. Acting on another user's resources
// is a hard 401, indistinguishable from a bad token.
func requireUser(tokens TokenVerifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.PathValue("user_id"))
		if userID == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "missing user id")
			return
		}

		cred := token.BearerFromHeader(r.Header.Get("Authorization"))
		claims, err := tokens.Verify(cred, time.Now().UTC())
		if err != nil || claims.UserID != userID {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credential for user")
			return
		}

		next(w, r)
	}
}
