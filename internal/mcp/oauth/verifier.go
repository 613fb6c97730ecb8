package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/mcp-oauth/providers"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var (
	// ErrTokenRejected is returned when Google does not recognise a token.
	ErrTokenRejected = errors.New("token rejected by google")
	// ErrTokenExpired is returned for tokens with no remaining lifetime.
	ErrTokenExpired = errors.New("token expired")
	// ErrMissingScope is returned when a token lacks a required scope.
	ErrMissingScope = errors.New("token missing required scope")
)

// TokenInfo is what Google reports about an access token.
type TokenInfo struct {
	Email     string
	Audience  string
	Scopes    []string
	ExpiresIn time.Duration
}

// GoogleIdentity is the subset of Google's OAuth2 API the package calls.
type GoogleIdentity interface {
	TokenInfo(ctx context.Context, accessToken string) (*TokenInfo, error)
	UserInfo(ctx context.Context, token *oauth2.Token) (*providers.UserInfo, error)
}

// googleIdentity calls Google through google.golang.org/api/oauth2/v2.
type googleIdentity struct {
	httpClient *http.Client
}

// NewGoogleIdentity returns a GoogleIdentity that sends requests through
// httpClient.
func NewGoogleIdentity(httpClient *http.Client) GoogleIdentity {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &googleIdentity{httpClient: httpClient}
}

func (g *googleIdentity) TokenInfo(ctx context.Context, accessToken string) (*TokenInfo, error) {
	svc, err := oauth2api.NewService(ctx, option.WithHTTPClient(g.httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth2 service: %w", err)
	}
	info, err := svc.Tokeninfo().AccessToken(accessToken).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	return &TokenInfo{
		Email:     info.Email,
		Audience:  info.Audience,
		Scopes:    strings.Fields(info.Scope),
		ExpiresIn: time.Duration(info.ExpiresIn) * time.Second,
	}, nil
}

func (g *googleIdentity) UserInfo(ctx context.Context, token *oauth2.Token) (*providers.UserInfo, error) {
	ctx = contextWithHTTPClient(ctx, g.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	svc, err := oauth2api.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	return &providers.UserInfo{Email: info.Email, Name: info.Name}, nil
}

// Identity is a verified caller.
type Identity struct {
	Email     string
	Scopes    []string
	ExpiresAt time.Time
}

type cachedIdentity struct {
	identity Identity
	until    time.Time
}

// Verifier checks Google access tokens through tokeninfo. Accepted tokens
// are cached until they expire or cacheTTL passes, whichever is first.
type Verifier struct {
	google         GoogleIdentity
	requiredScopes []string
	cacheTTL       time.Duration
	now            func() time.Time

	mu    sync.Mutex
	cache map[string]cachedIdentity
}

// NewVerifier returns a Verifier that requires every scope in requiredScopes.
func NewVerifier(google GoogleIdentity, requiredScopes []string, cacheTTL time.Duration) *Verifier {
	if cacheTTL <= 0 {
		cacheTTL = DefaultVerifyCacheTTL
	}
	return &Verifier{
		google:         google,
		requiredScopes: requiredScopes,
		cacheTTL:       cacheTTL,
		now:            time.Now,
		cache:          make(map[string]cachedIdentity),
	}
}

// Verify returns the identity behind accessToken.
func (v *Verifier) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	key := cacheKey(accessToken)
	now := v.now()

	v.mu.Lock()
	if c, ok := v.cache[key]; ok {
		if now.Before(c.until) {
			v.mu.Unlock()
			id := c.identity
			return &id, nil
		}
		delete(v.cache, key)
	}
	v.mu.Unlock()

	info, err := v.google.TokenInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if info.ExpiresIn <= 0 {
		return nil, ErrTokenExpired
	}
	for _, scope := range v.requiredScopes {
		if !slices.Contains(info.Scopes, scope) {
			return nil, fmt.Errorf("%w: %s", ErrMissingScope, scope)
		}
	}
	if info.Email == "" {
		return nil, fmt.Errorf("%w: no email in token, request the userinfo.email scope", ErrTokenRejected)
	}

	id := Identity{Email: info.Email, Scopes: info.Scopes, ExpiresAt: now.Add(info.ExpiresIn)}
	until := now.Add(min(v.cacheTTL, info.ExpiresIn))

	v.mu.Lock()
	v.cache[key] = cachedIdentity{identity: id, until: until}
	v.mu.Unlock()

	return &id, nil
}

// Forget drops a cached result, e.g. after revocation.
func (v *Verifier) Forget(accessToken string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.cache, cacheKey(accessToken))
}

func (v *Verifier) cleanupExpired() {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	for k, c := range v.cache {
		if !now.Before(c.until) {
			delete(v.cache, k)
		}
	}
}

// cacheKey keeps raw tokens out of the cache map.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
