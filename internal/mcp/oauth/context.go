package oauth

import (
	"context"

	mcpoauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers"

	"github.com/teemow/ads-mcp/internal/google"
)

type userKey struct{}

// ContextWithUser attaches the authenticated user to ctx, both under this
// package's key and the mcp-oauth one.
func ContextWithUser(ctx context.Context, user *providers.UserInfo) context.Context {
	ctx = mcpoauth.ContextWithUserInfo(ctx, user)
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user set by the auth middleware.
func UserFromContext(ctx context.Context) (*providers.UserInfo, bool) {
	user, ok := ctx.Value(userKey{}).(*providers.UserInfo)
	return user, ok && user != nil
}

// UserEmailFromContext returns the authenticated email or "".
func UserEmailFromContext(ctx context.Context) string {
	if user, ok := UserFromContext(ctx); ok {
		return user.Email
	}
	return ""
}

// CopyAuth carries the user and Google token from src into dst.
func CopyAuth(dst, src context.Context) context.Context {
	if user, ok := UserFromContext(src); ok {
		dst = ContextWithUser(dst, user)
	}
	if tok, ok := google.TokenFromContext(src); ok {
		dst = google.ContextWithToken(dst, tok)
	}
	return dst
}
