package webauthnhandler

import (
	"crypto/sha256"
	"encoding/hex"
	"github.com/myrjola/casefile/internal/contexthelpers"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/logging"
	"log/slog"
	"net/http"
)

// AuthenticateMiddleware marks the request authenticated when the session belongs to a known user.
// Place it after the session manager's LoadAndSave.
func (h *WebAuthnHandler) AuthenticateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := h.sessionManager.GetBytes(ctx, string(userIDSessionKey))

		// User has not yet authenticated.
		if userID == nil {
			next.ServeHTTP(w, r)
			return
		}

		exists, err := h.users.Exists(ctx, userID)
		if err != nil {
			h.logger.LogAttrs(ctx, slog.LevelError, "server error",
				slog.String("method", r.Method), slog.String("uri", r.URL.RequestURI()), errors.SlogError(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if exists {
			r = contexthelpers.AuthenticateContext(r, userID)
		}

		// Hash the token with sha256 to avoid leaking it in logs.
		tokenHash := sha256.Sum256([]byte(h.sessionManager.Token(ctx)))
		ctx = logging.WithAttrs(r.Context(),
			slog.String("session_hash", hex.EncodeToString(tokenHash[:])),
			slog.String("user_id", hex.EncodeToString(userID)),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthentication responds 401 to requests without an authenticated user.
func RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !contexthelpers.IsAuthenticated(r.Context()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
