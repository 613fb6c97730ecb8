package google

// OAuth scopes used by ads-mcp.
const (
	ScopeAdwords       = "https://www.googleapis.com/auth/adwords"
	ScopeUserInfoEmail = "https://www.googleapis.com/auth/userinfo.email"
	ScopeOpenID        = "openid"
)

// DefaultOAuthScopes are requested from Google when a user signs in
// through the OAuth provider. The email scope identifies the user; adwords
// grants Ads API access.
var DefaultOAuthScopes = []string{
	ScopeOpenID,
	ScopeUserInfoEmail,
	ScopeAdwords,
}
