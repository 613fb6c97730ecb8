package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/ads-mcp/internal/ads"
	"github.com/teemow/ads-mcp/internal/instrumentation"
	"github.com/teemow/ads-mcp/internal/server"
)

// InstrumentedToolHandler wraps a tool handler with a trace span, metrics
// and audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		args := request.GetArguments()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithUser(CallerFromContext(ctx)).
			WithSpanContext(ctx)
		if raw, ok := StringArg(args, "customer_id"); ok {
			if id, err := ads.NormalizeCustomerID(raw); err == nil {
				invocation.WithCustomer(id)
			}
		}

		start := time.Now()
		result, err := handler(ctx, request)
		duration := time.Since(start)

		success := err == nil && (result == nil || !result.IsError)
		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		case !success:
			status = instrumentation.StatusError
			span.SetAttributes(attribute.Bool(instrumentation.SpanAttrToolError, true))
		default:
			instrumentation.SetSpanSuccess(span)
		}
		invocation.Complete(success, err)

		if metrics := sc.Metrics(); metrics != nil {
			metrics.RecordToolInvocation(ctx, toolName, status, duration)
		}
		if audit := sc.AuditLogger(); audit != nil {
			audit.LogToolInvocation(invocation)
		}

		sc.Logger().Debug("tool invocation",
			"tool", toolName,
			"status", status,
			"duration", duration)

		return result, err
	}
}
