// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/session"
)

// Authenticator resolves a bearer token to its session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Session, error)
}

// SessionAuth is a middleware that requires a valid bearer session token.
//
// On success the session is stored in the request context and can be read
// downstream with session.FromContext.
func SessionAuth(auth Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			s, err := auth.Authenticate(r.Context(), token)
			switch {
			case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrNotFound):
				http.Error(w, "session expired or invalid", http.StatusUnauthorized)
				return
			case err != nil:
				log.Error("authenticate session", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// GetUserIDFromContext returns the user ID of the authenticated session, or
// an empty string outside SessionAuth.
func GetUserIDFromContext(ctx context.Context) string {
	if s, ok := session.FromContext(ctx); ok {
		return s.User.ID
	}
	return ""
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
