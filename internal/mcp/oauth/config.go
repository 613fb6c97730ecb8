package oauth

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/google"
	"github.com/teemow/ads-mcp/internal/instrumentation"
)

// Config holds the settings of a Handler.
type Config struct {
	// Resource is the public base URL of the server. It is the protected
	// resource identifier and, in provider mode, the issuer.
	Resource string

	Strategy config.AuthStrategy

	// GoogleAuth is the Google OAuth client the provider proxies to.
	GoogleAuth GoogleAuthConfig

	// SupportedScopes are requested from Google and advertised in metadata.
	// Defaults to google.DefaultOAuthScopes.
	SupportedScopes []string

	// RequiredScopes must all be present on a verified Google token.
	RequiredScopes []string

	RateLimit RateLimitConfig
	Security  SecurityConfig

	CleanupInterval time.Duration
	VerifyCacheTTL  time.Duration

	// Store keeps Google tokens by user email. A memory store is created
	// when nil.
	Store google.TokenStore

	// Identity replaces the Google tokeninfo/userinfo client.
	Identity GoogleIdentity

	Logger     *slog.Logger
	HTTPClient *http.Client
	Metrics    *instrumentation.Metrics
}

// GoogleAuthConfig is the upstream Google OAuth client.
type GoogleAuthConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL defaults to Resource + "/oauth/callback".
	RedirectURL string
	// Endpoint defaults to Google's.
	Endpoint oauth2.Endpoint
}

// RateLimitConfig sets per-IP limits. A zero Rate uses the default.
type RateLimitConfig struct {
	Rate       int
	Burst      int
	TrustProxy bool
}

// SecurityConfig tunes dynamic client registration and token lifetimes.
type SecurityConfig struct {
	MaxClientsPerIP int
	RefreshTokenTTL time.Duration
	AccessTokenTTL  time.Duration
}

// FromServerConfig maps the process configuration onto a handler Config.
func FromServerConfig(cfg config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) Config {
	return Config{
		Resource: cfg.BaseURL,
		Strategy: cfg.Auth.Strategy,
		GoogleAuth: GoogleAuthConfig{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
		},
		RequiredScopes: cfg.Auth.RequiredScopes,
		RateLimit:      RateLimitConfig{TrustProxy: cfg.Auth.TrustProxy},
		Logger:         logger,
		HTTPClient:     google.HTTP1Client(),
		Metrics:        metrics,
	}
}

func (c *Config) setDefaults() {
	if len(c.SupportedScopes) == 0 {
		c.SupportedScopes = google.DefaultOAuthScopes
	}
	if c.GoogleAuth.RedirectURL == "" {
		c.GoogleAuth.RedirectURL = c.Resource + "/oauth/callback"
	}
	if c.RateLimit.Rate <= 0 {
		c.RateLimit.Rate = DefaultRateLimitRate
		if c.RateLimit.Burst <= 0 {
			c.RateLimit.Burst = DefaultRateLimitBurst
		}
	}
	if c.Security.MaxClientsPerIP == 0 {
		c.Security.MaxClientsPerIP = DefaultMaxClientsPerIP
	}
	if c.Security.RefreshTokenTTL == 0 {
		c.Security.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.Security.AccessTokenTTL == 0 {
		c.Security.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
}
