package oauth

import "time"

// Token and code lifetimes
const (
	// DefaultRefreshTokenTTL is the lifetime of refresh tokens issued to clients (90 days)
	DefaultRefreshTokenTTL = 90 * 24 * time.Hour

	// DefaultAuthorizationCodeTTL is how long authorization codes and pending states are valid
	DefaultAuthorizationCodeTTL = 10 * time.Minute

	// DefaultAccessTokenTTL is used when Google does not report an expiry
	DefaultAccessTokenTTL = 1 * time.Hour

	// DefaultCleanupInterval is how often expired flow and token data is dropped
	DefaultCleanupInterval = 1 * time.Minute

	// DefaultVerifyCacheTTL caps how long a tokeninfo result is reused
	DefaultVerifyCacheTTL = 5 * time.Minute

	// InactiveLimiterCleanupWindow is the idle time after which a per-IP limiter is dropped
	InactiveLimiterCleanupWindow = 10 * time.Minute
)

// Client and rate limit defaults
const (
	DefaultMaxClientsPerIP = 10

	// DefaultRateLimitRate is requests per second per IP
	DefaultRateLimitRate = 10

	DefaultRateLimitBurst = 20

	DefaultTokenEndpointAuthMethod = "client_secret_basic"
)

// Generated token lengths in random bytes
const (
	ClientIDTokenLength     = 32
	ClientSecretTokenLength = 48
	AccessTokenLength       = 48
	RefreshTokenLength      = 48
	StateTokenLength        = 32

	// MinCodeVerifierLength and MaxCodeVerifierLength bound PKCE verifiers (RFC 7636)
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
)

// Grant and response types
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	ResponseTypeCode           = "code"
	CodeChallengeMethodS256    = "S256"
	AuthMethodNone             = "none"
)

var (
	// DangerousSchemes are never accepted as redirect URI schemes
	DangerousSchemes = []string{"javascript", "data", "file", "vbscript", "about"}

	// LoopbackAddresses are accepted over plain http
	LoopbackAddresses = []string{"localhost", "127.0.0.1", "::1", "[::1]"}

	DefaultGrantTypes    = []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken}
	DefaultResponseTypes = []string{ResponseTypeCode}

	// SupportedCodeChallengeMethods only lists S256; plain is not allowed by OAuth 2.1
	SupportedCodeChallengeMethods = []string{CodeChallengeMethodS256}

	SupportedTokenAuthMethods = []string{"client_secret_basic", "client_secret_post", AuthMethodNone}
)
