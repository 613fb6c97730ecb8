package docs_tools

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/ads-mcp/internal/server"
	"github.com/teemow/ads-mcp/internal/tools/common"
)

//go:embed gaql.md
var gaqlDoc string

// GAQLReference returns the embedded Google Ads Query Language reference.
func GAQLReference() string {
	return gaqlDoc
}

// Tool names.
const (
	ToolGetGAQLDoc          = "get_gaql_doc"
	ToolListReportingViews  = "list_reporting_views"
	ToolGetReportingViewDoc = "get_reporting_view_doc"
)

// RegisterDocsTools registers the documentation tools with the MCP server.
func RegisterDocsTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	gaqlTool := mcp.NewTool(ToolGetGAQLDoc,
		mcp.WithDescription("Get the Google Ads Query Language reference: grammar, operators, date ranges and examples"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(gaqlTool, common.InstrumentedToolHandler(ToolGetGAQLDoc, sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(gaqlDoc), nil
		}))

	listViewsTool := mcp.NewTool(ToolListReportingViews,
		mcp.WithDescription("List the reporting views that have field documentation"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(listViewsTool, common.InstrumentedToolHandler(ToolListReportingViews, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListReportingViews(ctx, request, sc)
		}))

	viewDocTool := mcp.NewTool(ToolGetReportingViewDoc,
		mcp.WithDescription("Get the fields of a reporting view as a markdown table"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("view",
			mcp.Required(),
			mcp.Description("The view name, as returned by list_reporting_views"),
		),
	)
	s.AddTool(viewDocTool, common.InstrumentedToolHandler(ToolGetReportingViewDoc, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetReportingViewDoc(ctx, request, sc)
		}))

	return nil
}

func handleListReportingViews(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	defs := sc.Views().Current()

	var b strings.Builder
	if defs.APIVersion != "" {
		fmt.Fprintf(&b, "Reporting views (Google Ads API %s, generated %s):\n\n",
			defs.APIVersion, defs.GeneratedAt.Format("2006-01-02"))
	} else {
		b.WriteString("Reporting views:\n\n")
	}
	for _, v := range defs.Views {
		fmt.Fprintf(&b, "- %s: %s\n", v.Name, v.Description)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleGetReportingViewDoc(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, err := common.RequiredString(request.GetArguments(), "view")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	view, err := sc.Views().Current().Lookup(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(view.Markdown()), nil
}
