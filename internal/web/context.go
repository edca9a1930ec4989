package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sheetvault/internal/core"
	"github.com/JonMunkholm/sheetvault/internal/store"
	mw "github.com/JonMunkholm/sheetvault/internal/web/middleware"
)

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, mw.ClientIP(r))
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}

// currentUser returns the user set by BearerAuth.
func currentUser(r *http.Request) *store.User {
	return core.UserFromContext(r.Context())
}
