package oauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/mcp-oauth/providers"
	"golang.org/x/oauth2"

	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/google"
)

// fakeGoogle serves canned tokeninfo and userinfo answers.
type fakeGoogle struct {
	mu     sync.Mutex
	tokens map[string]*TokenInfo
	user   *providers.UserInfo
	calls  int
}

func (f *fakeGoogle) TokenInfo(_ context.Context, accessToken string) (*TokenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	info, ok := f.tokens[accessToken]
	if !ok {
		return nil, ErrTokenRejected
	}
	return info, nil
}

func (f *fakeGoogle) UserInfo(context.Context, *oauth2.Token) (*providers.UserInfo, error) {
	return f.user, nil
}

func (f *fakeGoogle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func validTokenInfo(email string) *TokenInfo {
	return &TokenInfo{
		Email:     email,
		Scopes:    []string{google.ScopeUserInfoEmail, config.AdwordsScope},
		ExpiresIn: time.Hour,
	}
}

func newTestHandler(t *testing.T, cfg Config) *Handler {
	t.Helper()
	if cfg.Resource == "" {
		cfg.Resource = "http://localhost:8000"
	}
	if cfg.RequiredScopes == nil {
		cfg.RequiredScopes = []string{config.AdwordsScope}
	}
	if cfg.RateLimit.Rate == 0 {
		cfg.RateLimit = RateLimitConfig{Rate: 1000, Burst: 1000}
	}
	h, err := NewHandler(cfg)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	t.Cleanup(h.Stop)
	return h
}
