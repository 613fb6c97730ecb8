// Package ads is a small client for the Google Ads REST API.
//
// It covers the read-only surface the MCP tools need: GAQL search with
// pagination, listing accessible customers, and field metadata lookups.
// Requests are authorized either with the server's own credentials, read
// from google-ads.yaml and GOOGLE_ADS_* variables, or with the calling
// user's Google token when one is present in the request context.
package ads
