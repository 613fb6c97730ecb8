// Package oauth authenticates MCP requests against Google.
//
// Two modes are supported, matching config.AuthStrategy:
//
//   - Token verifier: clients send a Google access token as a bearer
//     token. It is checked against Google's tokeninfo endpoint and must
//     carry the adwords scope.
//   - OAuth provider: the server is an OAuth 2.1 authorization server that
//     proxies sign-in to Google. Clients register dynamically, run the
//     authorization code flow with PKCE and receive opaque access tokens
//     that map to the user's Google token.
//
// In both modes the user's Google token is kept in the mcp-oauth memory
// token store keyed by email, and the authenticated request context carries
// the user identity and the Google token so the Ads client can act as the
// caller.
package oauth
