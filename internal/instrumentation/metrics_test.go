package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newPrometheusProvider(t *testing.T) *Provider {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
		DetailedLabels:  true,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestMetrics_Record(t *testing.T) {
	metrics := newPrometheusProvider(t).Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	ctx := context.Background()

	// None of these should panic.
	metrics.RecordHTTPRequest(ctx, "POST", "/sse", 200, 10*time.Millisecond)
	metrics.RecordAdsAPIOperation(ctx, OperationSearch, "1234567890", StatusSuccess, 300*time.Millisecond)
	metrics.RecordAdsAPIOperation(ctx, OperationListAccessibleCustomers, "", StatusError, time.Second)
	metrics.RecordOAuthAuth(ctx, OAuthResultSuccess)
	metrics.RecordToolInvocation(ctx, "search", StatusSuccess, 400*time.Millisecond)
	metrics.RecordSSEHandshake(ctx, HandshakeInitialize)
	metrics.RecordSSEHandshake(ctx, HandshakeEndpoint)
	metrics.RecordBootstrapStep(ctx, "views", StatusError)
}

func TestMetrics_ZeroValueIsNoop(t *testing.T) {
	ctx := context.Background()

	for _, m := range []*Metrics{{}, nil} {
		m.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
		m.RecordAdsAPIOperation(ctx, OperationSearch, "1", StatusSuccess, time.Millisecond)
		m.RecordOAuthAuth(ctx, OAuthResultFailure)
		m.RecordToolInvocation(ctx, "search", StatusError, time.Millisecond)
		m.RecordSSEHandshake(ctx, HandshakeEndpoint)
		m.RecordBootstrapStep(ctx, "ads_client", StatusSuccess)
	}
}
