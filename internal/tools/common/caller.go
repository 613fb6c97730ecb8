package common

import (
	"context"

	"github.com/teemow/ads-mcp/internal/mcp/oauth"
)

// DefaultCaller names requests that carry no authenticated user, such as
// stdio sessions or HTTP without auth.
const DefaultCaller = "default"

// CallerFromContext returns the authenticated user's email, or DefaultCaller.
func CallerFromContext(ctx context.Context) string {
	if email := oauth.UserEmailFromContext(ctx); email != "" {
		return email
	}
	return DefaultCaller
}
