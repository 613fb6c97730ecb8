// Package instrumentation provides OpenTelemetry metrics, tracing and
// audit logging for the ads-mcp server.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds
//   - ads_api_operations_total, ads_api_operation_duration_seconds
//   - oauth_auth_total
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//   - sse_handshakes_total{variant}
//   - bootstrap_steps_total{step,status}
//
// Prometheus metrics are served by the dedicated metrics server in
// internal/server.
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>) and Google Ads
// API calls (ads.<operation>). Incoming HTTP requests are traced by the
// otelhttp handler wrapper.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED (default true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default 0.1)
//   - METRICS_DETAILED_LABELS adds customer ids to Ads API metrics
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
package instrumentation
