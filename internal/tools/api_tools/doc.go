// Package api_tools provides read-only MCP tools backed by the Google Ads
// API: listing accessible customers, running structured and raw GAQL
// searches, and looking up field metadata.
//
// Every tool resolves its Ads client per call, so HTTP requests that carry
// a user's Google token are executed as that user.
package api_tools
