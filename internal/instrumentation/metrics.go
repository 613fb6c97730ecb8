package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrTool      = "tool"
	attrCustomer  = "customer_id"
	attrVariant   = "variant"
	attrStep      = "step"
)

// Metrics records the server's OpenTelemetry instruments. The zero value
// is a valid no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	adsAPIOperationsTotal   metric.Int64Counter
	adsAPIOperationDuration metric.Float64Histogram

	oauthAuthTotal metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	sseHandshakesTotal  metric.Int64Counter
	bootstrapStepsTotal metric.Int64Counter

	// detailedLabels adds customer ids to Ads API metrics.
	detailedLabels bool
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.adsAPIOperationsTotal, err = meter.Int64Counter(
		"ads_api_operations_total",
		metric.WithDescription("Total number of Google Ads API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ads_api_operations_total counter: %w", err)
	}

	m.adsAPIOperationDuration, err = meter.Float64Histogram(
		"ads_api_operation_duration_seconds",
		metric.WithDescription("Google Ads API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ads_api_operation_duration_seconds histogram: %w", err)
	}

	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of OAuth authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.sseHandshakesTotal, err = meter.Int64Counter(
		"sse_handshakes_total",
		metric.WithDescription("Total number of POST /sse compatibility responses by variant"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sse_handshakes_total counter: %w", err)
	}

	m.bootstrapStepsTotal, err = meter.Int64Counter(
		"bootstrap_steps_total",
		metric.WithDescription("Total number of background bootstrap steps by outcome"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap_steps_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAdsAPIOperation records one Google Ads API call. The customer id is
// only attached when detailed labels are enabled.
func (m *Metrics) RecordAdsAPIOperation(ctx context.Context, operation, customerID, status string, duration time.Duration) {
	if m == nil || m.adsAPIOperationsTotal == nil || m.adsAPIOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && customerID != "" {
		attrs = append(attrs, attribute.String(attrCustomer, customerID))
	}

	m.adsAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.adsAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthAuth records an authentication attempt; result is one of the
// OAuthResult constants.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)

	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSSEHandshake counts one POST /sse response. variant is
// HandshakeInitialize or HandshakeEndpoint.
func (m *Metrics) RecordSSEHandshake(ctx context.Context, variant string) {
	if m == nil || m.sseHandshakesTotal == nil {
		return
	}
	m.sseHandshakesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrVariant, variant)))
}

// RecordBootstrapStep counts one background bootstrap step outcome.
func (m *Metrics) RecordBootstrapStep(ctx context.Context, step, status string) {
	if m == nil || m.bootstrapStepsTotal == nil {
		return
	}
	m.bootstrapStepsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStep, step),
		attribute.String(attrStatus, status),
	))
}
