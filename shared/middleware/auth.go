package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/running-tracker-api/shared/auth"
)

type contextKey struct{}

var userIDKey = contextKey{}

// TokenBlacklist reports whether an access token was revoked before it expired.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

var (
	errMissingAuthHeader = errors.New("missing authorization header")
	errInvalidAuthHeader = errors.New("invalid authorization header format")
	errRevokedToken      = errors.New("token has been revoked")
)

// NewJWTMiddleware authenticates requests with a bearer access token and stores
// the user id in the request context. blacklist may be nil.
func NewJWTMiddleware(
	jwtAuth auth.JWTAuthenticator,
	secret string,
	blacklist TokenBlacklist,
	logger *zerolog.Logger,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			claims, err := jwtAuth.ValidateAccessToken(token, secret)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected access token")
				writeUnauthorized(w, "invalid access token")
				return
			}

			if blacklist != nil {
				revoked, err := blacklist.IsBlacklisted(r.Context(), token)
				if err != nil {
					logger.Error().Err(err).Msg("failed to check token blacklist")
					writeJSONError(w, http.StatusServiceUnavailable, "authentication is temporarily unavailable")
					return
				}
				if revoked {
					writeUnauthorized(w, errRevokedToken.Error())
					return
				}
			}

			ctx := WithUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user id stored by NewJWTMiddleware.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingAuthHeader
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errInvalidAuthHeader
	}

	return parts[1], nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusUnauthorized, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ERROR",
		"message":   message,
		"timestamp": time.Now(),
	})
}
