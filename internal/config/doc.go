// Package config builds the immutable server configuration from the
// process environment.
//
// The configuration is assembled once at startup by FromEnv and passed by
// value to every component that needs it. Nothing in the server mutates it
// afterwards; command-line overrides produce modified copies through the
// With* helpers.
//
// Authentication strategy selection:
//   - USE_GOOGLE_OAUTH_ACCESS_TOKEN set: Google access tokens are verified
//   - FASTMCP_SERVER_AUTH_GOOGLE_CLIENT_ID and _SECRET both set: the server
//     acts as an OAuth provider proxied to Google (takes precedence)
//   - neither: no authentication
package config
