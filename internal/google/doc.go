// Package google holds the Google OAuth plumbing shared by the Ads client
// and the authentication layer: scopes, token sources for refresh tokens
// and service accounts, and the per-request token carried in a context.
package google
