package google

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when no Google token is known for a user.
var ErrNoToken = errors.New("no google token for user")

// TokenStore is the subset of the mcp-oauth token store used here.
type TokenStore interface {
	SaveToken(ctx context.Context, userID string, token *oauth2.Token) error
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
}

// TokenProvider resolves the Google token for an authenticated user.
type TokenProvider interface {
	TokenForUser(ctx context.Context, email string) (*oauth2.Token, error)
}

// StoreTokenProvider serves tokens saved in a TokenStore. Expired tokens
// are refreshed through conf when one is set and the refresh is written
// back.
type StoreTokenProvider struct {
	store TokenStore
	conf  *oauth2.Config
}

func NewStoreTokenProvider(store TokenStore, conf *oauth2.Config) *StoreTokenProvider {
	return &StoreTokenProvider{store: store, conf: conf}
}

func (p *StoreTokenProvider) TokenForUser(ctx context.Context, email string) (*oauth2.Token, error) {
	tok, err := p.store.GetToken(ctx, email)
	if err != nil || tok == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if tok.Valid() || p.conf == nil || tok.RefreshToken == "" {
		return tok, nil
	}

	fresh, err := p.conf.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh google token: %w", err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := p.store.SaveToken(ctx, email, fresh); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
	}
	return fresh, nil
}

type tokenKey struct{}

// ContextWithToken attaches the caller's Google access token to ctx.
func ContextWithToken(ctx context.Context, tok *oauth2.Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// TokenFromContext returns the token set by ContextWithToken.
func TokenFromContext(ctx context.Context) (*oauth2.Token, bool) {
	tok, ok := ctx.Value(tokenKey{}).(*oauth2.Token)
	return tok, ok && tok != nil && tok.AccessToken != ""
}
