// Package server hosts the HTTP side of the MCP server.
//
// HTTPServer mounts one of the mcp-go HTTP transports on a chi router:
//   - sse: GET /sse opens the event stream, POST /messages/ carries requests
//   - streamable-http: /mcp
//
// Both transports also answer POST and OPTIONS on /sse through SSECompat.
// An initialize request posted to /sse is answered inline with a single
// "message" event; any other body gets an "endpoint" event pointing at
// /messages/ with a fresh session id. These shims are never authenticated.
//
// When an oauth.Handler is configured, its metadata and authorization routes
// are mounted and the MCP endpoints are wrapped with its bearer token
// middleware.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. The detailed
// endpoint also reports the startup checks run by the bootstrap package.
// MetricsServer exposes Prometheus metrics on a separate address.
package server
