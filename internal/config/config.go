package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rusq/osenv/v2"
)

// Transport names accepted by MCP_TRANSPORT.
const (
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
	TransportStdio          = "stdio"
)

// Defaults used when the environment is silent.
const (
	DefaultTransport   = TransportSSE
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultBaseURL     = "http://localhost:8000"
	DefaultAPIVersion  = "v21"
	DefaultMetricsAddr = ":9090"

	// AdwordsScope is the OAuth scope every caller must hold.
	AdwordsScope = "https://www.googleapis.com/auth/adwords"
)

// Environment variable names.
const (
	EnvTransport         = "MCP_TRANSPORT"
	EnvHost              = "MCP_HOST"
	EnvPort              = "PORT"
	EnvMCPPort           = "MCP_PORT"
	EnvBaseURL           = "FASTMCP_SERVER_BASE_URL"
	EnvUseAccessToken    = "USE_GOOGLE_OAUTH_ACCESS_TOKEN"
	EnvAuthClientID      = "FASTMCP_SERVER_AUTH_GOOGLE_CLIENT_ID"
	EnvAuthClientSecret  = "FASTMCP_SERVER_AUTH_GOOGLE_CLIENT_SECRET"
	EnvAdsConfigPath     = "GOOGLE_ADS_CONFIGURATION_FILE_PATH"
	EnvAdsAPIVersion     = "GOOGLE_ADS_API_VERSION"
	EnvAdsLoginCustomer  = "GOOGLE_ADS_LOGIN_CUSTOMER_ID"
	EnvAdsViewsPath      = "GOOGLE_ADS_VIEWS_PATH"
	EnvMetricsEnabled    = "METRICS_ENABLED"
	EnvMetricsAddr       = "METRICS_ADDR"
	EnvDebug             = "MCP_DEBUG"
	EnvDisableStreaming  = "MCP_DISABLE_STREAMING"
	EnvTrustProxy        = "MCP_TRUST_PROXY"
	EnvAllowInsecureAuth = "MCP_ALLOW_INSECURE_AUTH_HTTP"
)

var (
	// ErrInvalidTransport is returned by Validate for an unknown transport name.
	ErrInvalidTransport = errors.New("invalid transport")
	// ErrInvalidPort is returned by Validate for a port outside 1..65535.
	ErrInvalidPort = errors.New("invalid port")
)

// AuthStrategy selects how MCP endpoints authenticate callers.
type AuthStrategy int

const (
	// AuthNone leaves MCP endpoints open.
	AuthNone AuthStrategy = iota
	// AuthTokenVerifier accepts Google access tokens passed as bearer tokens.
	AuthTokenVerifier
	// AuthOAuthProvider runs an OAuth authorization server proxied to Google.
	AuthOAuthProvider
)

func (s AuthStrategy) String() string {
	switch s {
	case AuthTokenVerifier:
		return "token-verifier"
	case AuthOAuthProvider:
		return "oauth-provider"
	default:
		return "none"
	}
}

// Auth groups the authentication settings.
type Auth struct {
	Strategy       AuthStrategy
	ClientID       string
	ClientSecret   string
	RequiredScopes []string
	// AllowInsecureHTTP permits an http:// base URL on non-loopback hosts.
	AllowInsecureHTTP bool
	// TrustProxy makes rate limiting honour X-Forwarded-For.
	TrustProxy bool
}

// Enabled reports whether MCP endpoints require a bearer token.
func (a Auth) Enabled() bool {
	return a.Strategy != AuthNone
}

// Ads groups the Google Ads API settings.
type Ads struct {
	APIVersion      string
	CredentialsPath string
	LoginCustomerID string
	ViewsPath       string
}

// Metrics groups the metrics server settings.
type Metrics struct {
	Enabled bool
	Addr    string
}

// Config is the process configuration. It is built once and passed by value.
type Config struct {
	Transport        string
	Host             string
	Port             int
	BaseURL          string
	Debug            bool
	DisableStreaming bool

	Auth    Auth
	Ads     Ads
	Metrics Metrics
}

// FromEnv assembles a Config from the process environment.
func FromEnv() Config {
	return Config{
		Transport:        strings.ToLower(strings.TrimSpace(osenv.Value(EnvTransport, DefaultTransport))),
		Host:             osenv.Value(EnvHost, DefaultHost),
		Port:             portFromEnv(),
		BaseURL:          strings.TrimRight(osenv.Value(EnvBaseURL, DefaultBaseURL), "/"),
		Debug:            osenv.Value(EnvDebug, false),
		DisableStreaming: osenv.Value(EnvDisableStreaming, false),
		Auth:             authFromEnv(),
		Ads: Ads{
			APIVersion:      osenv.Value(EnvAdsAPIVersion, DefaultAPIVersion),
			CredentialsPath: osenv.Value(EnvAdsConfigPath, defaultCredentialsPath()),
			LoginCustomerID: osenv.Value(EnvAdsLoginCustomer, ""),
			ViewsPath:       osenv.Value(EnvAdsViewsPath, defaultViewsPath()),
		},
		Metrics: Metrics{
			Enabled: osenv.Value(EnvMetricsEnabled, true),
			Addr:    osenv.Value(EnvMetricsAddr, DefaultMetricsAddr),
		},
	}
}

// portFromEnv resolves PORT, then MCP_PORT, then the default.
// Unparseable values are skipped.
func portFromEnv() int {
	for _, key := range []string{EnvPort, EnvMCPPort} {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		if p, err := strconv.Atoi(v); err == nil {
			return p
		}
	}
	return DefaultPort
}

// authFromEnv applies the selection rules in order; the provider rule is
// evaluated last so it wins when both are configured.
func authFromEnv() Auth {
	a := Auth{
		Strategy:          AuthNone,
		ClientID:          osenv.Value(EnvAuthClientID, ""),
		ClientSecret:      osenv.Value(EnvAuthClientSecret, ""),
		RequiredScopes:    []string{AdwordsScope},
		AllowInsecureHTTP: osenv.Value(EnvAllowInsecureAuth, false),
		TrustProxy:        osenv.Value(EnvTrustProxy, false),
	}
	if os.Getenv(EnvUseAccessToken) != "" {
		a.Strategy = AuthTokenVerifier
	}
	if a.ClientID != "" && a.ClientSecret != "" {
		a.Strategy = AuthOAuthProvider
	}
	return a
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "google-ads.yaml"
	}
	return filepath.Join(home, "google-ads.yaml")
}

func defaultViewsPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "gaql_resources.yaml"
	}
	return filepath.Join(dir, "ads-mcp", "gaql_resources.yaml")
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportSSE, TransportStreamableHTTP, TransportStdio:
	default:
		return fmt.Errorf("%w %q, must be one of: %s, %s, %s",
			ErrInvalidTransport, c.Transport, TransportSSE, TransportStreamableHTTP, TransportStdio)
	}
	if c.Transport != TransportStdio && (c.Port < 1 || c.Port > 65535) {
		return fmt.Errorf("%w %d", ErrInvalidPort, c.Port)
	}
	return nil
}

// WithTransport returns a copy of c with the transport replaced.
func (c Config) WithTransport(t string) Config {
	c.Transport = strings.ToLower(t)
	return c
}

// WithAddr returns a copy of c with the host and port replaced.
func (c Config) WithAddr(host string, port int) Config {
	c.Host = host
	c.Port = port
	return c
}
