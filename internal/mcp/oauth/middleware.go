package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/giantswarm/mcp-oauth/providers"
	"golang.org/x/oauth2"

	"github.com/teemow/ads-mcp/internal/google"
	"github.com/teemow/ads-mcp/internal/instrumentation"
	"github.com/teemow/ads-mcp/internal/logging"
)

// Middleware rate limits and authenticates requests to MCP endpoints. On
// success the request context carries the user and their Google token.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return h.limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.metrics.RecordOAuthAuth(r.Context(), instrumentation.OAuthResultFailure)
			h.unauthorized(w, nil)
			return
		}

		ctx, err := h.authenticate(r.Context(), token)
		if err != nil {
			result := instrumentation.OAuthResultFailure
			if errors.Is(err, ErrTokenExpired) {
				result = instrumentation.OAuthResultExpired
			}
			h.metrics.RecordOAuthAuth(r.Context(), result)
			h.logger.Debug("Rejected bearer token", logging.Err(err))

			oerr := ErrInvalidToken(actionableMessage(err))
			if errors.Is(err, ErrMissingScope) {
				oerr = ErrInsufficientScope(actionableMessage(err))
			}
			h.unauthorized(w, oerr)
			return
		}

		h.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

// authenticate resolves token to a user and Google token. Tokens issued
// by this server are tried first; anything else must be a Google access
// token.
func (h *Handler) authenticate(ctx context.Context, token string) (context.Context, error) {
	if h.sessions != nil {
		if sess, err := h.sessions.AccessToken(token); err == nil {
			googleToken, err := h.tokens.TokenForUser(contextWithHTTPClient(ctx, h.config.HTTPClient), sess.Email)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
			}
			ctx = ContextWithUser(ctx, &providers.UserInfo{Email: sess.Email, Name: sess.Name})
			return google.ContextWithToken(ctx, googleToken), nil
		}
	}

	id, err := h.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	googleToken := &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: id.ExpiresAt}
	if err := h.store.SaveToken(ctx, id.Email, googleToken); err != nil {
		h.logger.Warn("Failed to save Google token", logging.UserHash(id.Email), logging.Err(err))
	}

	ctx = ContextWithUser(ctx, &providers.UserInfo{Email: id.Email})
	return google.ContextWithToken(ctx, googleToken), nil
}

// unauthorized writes a 401 (or 403 for scope errors) that points the
// client at the protected resource metadata.
func (h *Handler) unauthorized(w http.ResponseWriter, oerr *OAuthError) {
	challenge := fmt.Sprintf(`Bearer resource_metadata="%s"`, h.resourceMetadataURL())
	if oerr == nil {
		oerr = ErrInvalidToken("Missing bearer token")
	} else {
		challenge += fmt.Sprintf(`, error="%s", error_description="%s"`, oerr.Code, strings.ReplaceAll(oerr.Description, `"`, `'`))
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeOAuthError(w, oerr)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// actionableMessage turns a verification error into advice for the user.
func actionableMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "Google token is expired. Please re-authenticate through your MCP client."
	case errors.Is(err, ErrMissingScope):
		return "Token lacks the Google Ads scope. Please re-authenticate and grant Google Ads access."
	case errors.Is(err, ErrTokenRejected):
		return "Google token is invalid. Please re-authenticate through your MCP client."
	default:
		return "Unable to verify token with Google. Please try again in a moment."
	}
}

func contextWithHTTPClient(ctx context.Context, c *http.Client) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c)
}
