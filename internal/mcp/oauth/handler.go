package oauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/mcp-oauth/storage/memory"
	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
	oauth2google "golang.org/x/oauth2/google"

	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/google"
	"github.com/teemow/ads-mcp/internal/instrumentation"
)

// Well-known and OAuth endpoint paths.
const (
	ProtectedResourcePath   = "/.well-known/oauth-protected-resource"
	AuthorizationServerPath = "/.well-known/oauth-authorization-server"
	RegisterPath            = "/oauth/register"
	AuthorizePath           = "/oauth/authorize"
	CallbackPath            = "/oauth/callback"
	TokenPath               = "/oauth/token"
	RevokePath              = "/oauth/revoke"
)

// Handler authenticates MCP requests and, in provider mode, serves the
// OAuth authorization server endpoints.
type Handler struct {
	config Config
	logger *slog.Logger

	verifier *Verifier
	identity GoogleIdentity
	store    google.TokenStore
	tokens   google.TokenProvider
	limiter  *RateLimiter

	// Provider mode only.
	googleConfig *oauth2.Config
	clients      *ClientStore
	flows        *FlowStore
	sessions     *SessionStore

	metrics   *instrumentation.Metrics
	stopStore func()
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewHandler builds a Handler for cfg.Strategy and starts its cleanup loop.
// Call Stop to release it.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Strategy == config.AuthNone {
		return nil, errors.New("oauth handler requires an auth strategy")
	}
	if cfg.Resource == "" {
		return nil, errors.New("resource is required")
	}
	cfg.setDefaults()

	h := &Handler{
		config:  cfg,
		logger:  cfg.Logger.With("component", "oauth"),
		metrics: cfg.Metrics,
		limiter: NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.RateLimit.TrustProxy),
		stop:    make(chan struct{}),
	}

	h.identity = cfg.Identity
	if h.identity == nil {
		h.identity = NewGoogleIdentity(cfg.HTTPClient)
	}
	h.verifier = NewVerifier(h.identity, cfg.RequiredScopes, cfg.VerifyCacheTTL)

	h.store = cfg.Store
	if h.store == nil {
		mem := memory.New()
		h.store = mem
		h.stopStore = mem.Stop
	}

	if cfg.Strategy == config.AuthOAuthProvider {
		if cfg.GoogleAuth.ClientID == "" || cfg.GoogleAuth.ClientSecret == "" {
			h.Stop()
			return nil, errors.New("oauth provider requires a google client id and secret")
		}
		endpoint := cfg.GoogleAuth.Endpoint
		if endpoint.AuthURL == "" {
			endpoint = oauth2google.Endpoint
		}
		h.googleConfig = &oauth2.Config{
			ClientID:     cfg.GoogleAuth.ClientID,
			ClientSecret: cfg.GoogleAuth.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       cfg.SupportedScopes,
			RedirectURL:  cfg.GoogleAuth.RedirectURL,
		}
		h.clients = NewClientStore(h.logger)
		h.flows = NewFlowStore(h.logger)
		h.sessions = NewSessionStore()
		h.tokens = google.NewStoreTokenProvider(h.store, h.googleConfig)
	} else {
		h.tokens = google.NewStoreTokenProvider(h.store, nil)
	}

	go h.cleanupLoop(cfg.CleanupInterval)

	h.logger.Info("OAuth enabled",
		"strategy", cfg.Strategy.String(),
		"resource", cfg.Resource,
		"rate_limit", cfg.RateLimit.Rate)
	return h, nil
}

// IsProvider reports whether the authorization server endpoints are served.
func (h *Handler) IsProvider() bool {
	return h.googleConfig != nil
}

// Routes registers the metadata endpoints and, in provider mode, the
// authorization server. None of these routes require a bearer token.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.limiter.Middleware)

		r.Get(ProtectedResourcePath, h.ServeProtectedResourceMetadata)
		if !h.IsProvider() {
			return
		}
		r.Get(AuthorizationServerPath, h.ServeAuthorizationServerMetadata)
		r.Post(RegisterPath, h.ServeClientRegistration)
		r.Get(AuthorizePath, h.ServeAuthorization)
		r.Get(CallbackPath, h.ServeGoogleCallback)
		r.Post(TokenPath, h.ServeToken)
		r.Post(RevokePath, h.ServeRevoke)
	})
}

// Stop ends the cleanup loop and releases the token store.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		if h.stopStore != nil {
			h.stopStore()
		}
	})
}

func (h *Handler) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.verifier.cleanupExpired()
			h.limiter.cleanupInactive()
			if h.flows != nil {
				h.flows.cleanupExpired()
			}
			if h.sessions != nil {
				h.sessions.cleanupExpired()
			}
		}
	}
}

// ServeProtectedResourceMetadata serves RFC 9728 metadata. MCP clients
// reach it from the WWW-Authenticate header of a 401.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	authServer := h.config.Resource
	if !h.IsProvider() {
		authServer = "https://accounts.google.com"
	}
	writeJSON(w, http.StatusOK, ProtectedResourceMetadata{
		Resource:               h.config.Resource,
		AuthorizationServers:   []string{authServer},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        h.config.SupportedScopes,
	})
}

// ServeAuthorizationServerMetadata serves RFC 8414 metadata.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	base := h.config.Resource
	writeJSON(w, http.StatusOK, AuthorizationServerMetadata{
		Issuer:                            base,
		AuthorizationEndpoint:             base + AuthorizePath,
		TokenEndpoint:                     base + TokenPath,
		RegistrationEndpoint:              base + RegisterPath,
		RevocationEndpoint:                base + RevokePath,
		ScopesSupported:                   h.config.SupportedScopes,
		ResponseTypesSupported:            DefaultResponseTypes,
		GrantTypesSupported:               DefaultGrantTypes,
		TokenEndpointAuthMethodsSupported: SupportedTokenAuthMethods,
		CodeChallengeMethodsSupported:     SupportedCodeChallengeMethods,
	})
}

func (h *Handler) resourceMetadataURL() string {
	return fmt.Sprintf("%s%s", h.config.Resource, ProtectedResourcePath)
}
