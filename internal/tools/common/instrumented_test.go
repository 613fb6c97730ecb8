package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/giantswarm/mcp-oauth/providers"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/ads-mcp/internal/instrumentation"
	"github.com/teemow/ads-mcp/internal/mcp/oauth"
	"github.com/teemow/ads-mcp/internal/server"
)

func newServerContext(t *testing.T, opts ...server.ServerContextOption) *server.ServerContext {
	t.Helper()
	sc := server.NewServerContext(context.Background(), nil, nil, opts...)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func newAuditedContext(t *testing.T) (*server.ServerContext, *bytes.Buffer) {
	t.Helper()
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	audit := instrumentation.NewAuditLogger(logger, instrumentation.AuditLoggingConfig{Enabled: true, IncludePII: true})
	return newServerContext(t, server.WithInstrumentation(metrics, audit)), &buf
}

func callTool(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_NoInstrumentation(t *testing.T) {
	sc := newServerContext(t)

	called := false
	wrapped := InstrumentedToolHandler("test_tool", sc, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, result.IsError)
}

func TestInstrumentedToolHandler_Audit(t *testing.T) {
	handlerErr := errors.New("boom")

	tests := []struct {
		name       string
		ctx        context.Context
		args       map[string]any
		handler    func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		wantErr    error
		wantInLog  []string
		wantAbsent []string
	}{
		{
			name: "success with customer",
			ctx:  context.Background(),
			args: map[string]any{"customer_id": "123-456-7890"},
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
			wantInLog: []string{"tool_executed", "tool=search", "customer_id=1234567890", "user=default", "success=true"},
		},
		{
			name: "invalid customer id is not recorded",
			ctx:  context.Background(),
			args: map[string]any{"customer_id": "nope"},
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
			wantInLog:  []string{"tool_executed"},
			wantAbsent: []string{"customer_id="},
		},
		{
			name: "error result",
			ctx:  oauth.ContextWithUser(context.Background(), &providers.UserInfo{Email: "ana@example.com"}),
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("bad query"), nil
			},
			wantInLog: []string{"tool_failed", "user=ana@example.com", "success=false"},
		},
		{
			name: "handler error",
			ctx:  context.Background(),
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, handlerErr
			},
			wantErr:   handlerErr,
			wantInLog: []string{"tool_failed", "error=boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, buf := newAuditedContext(t)
			wrapped := InstrumentedToolHandler("search", sc, tt.handler)

			_, err := wrapped(tt.ctx, callTool(tt.args))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			for _, s := range tt.wantInLog {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.wantAbsent {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestCallerFromContext(t *testing.T) {
	assert.Equal(t, DefaultCaller, CallerFromContext(context.Background()))

	ctx := oauth.ContextWithUser(context.Background(), &providers.UserInfo{Email: "ana@example.com"})
	assert.Equal(t, "ana@example.com", CallerFromContext(ctx))
}
