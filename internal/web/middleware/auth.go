package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetvault/internal/core"
	"github.com/JonMunkholm/sheetvault/internal/logging"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

// Authenticator resolves an access token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*store.User, error)
}

// BearerAuth returns middleware that requires an "Authorization: Bearer"
// access token. The user is attached to the request context for handlers
// and to the logging context as user_id.
func BearerAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				slog.Warn("auth: missing bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"ip", ClientIP(r),
				)
				writeAuthError(w, http.StatusUnauthorized, "authentication required", "AUTH002")
				return
			}

			user, err := a.Authenticate(r.Context(), token)
			if err != nil {
				slog.Warn("auth: invalid token",
					"path", r.URL.Path,
					"method", r.Method,
					"ip", ClientIP(r),
					"error", err,
				)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token", "AUTH002")
				return
			}

			ctx := core.ContextWithUser(r.Context(), user)
			ctx = logging.ContextWith(ctx, "user_id", user.ID)
			Annotate(ctx, "user_id", user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects users that are neither staff nor superuser. It must
// run after BearerAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := core.UserFromContext(r.Context())
		if user == nil {
			writeAuthError(w, http.StatusUnauthorized, "authentication required", "AUTH002")
			return
		}
		if !user.IsAdmin() {
			slog.Warn("auth: admin required",
				"path", r.URL.Path,
				"user_id", user.ID,
			)
			writeAuthError(w, http.StatusForbidden, "administrator access required", "AUTH003")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireToken returns middleware that validates the named header (or the
// "token" query parameter) against a shared secret. An empty secret
// disables the route entirely.
func RequireToken(header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.NotFound(w, r)
				return
			}

			got := r.Header.Get(header)
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if !isValidToken(got, secret) {
				slog.Warn("auth: invalid token",
					"path", r.URL.Path,
					"method", r.Method,
					"ip", ClientIP(r),
				)
				writeAuthError(w, http.StatusForbidden, "invalid token", "AUTH003")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
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

// isValidToken compares in constant time.
func isValidToken(got, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","message":"` + msg + `","code":"` + code + `"}`))
}
