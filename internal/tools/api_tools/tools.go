package api_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/ads-mcp/internal/ads"
	"github.com/teemow/ads-mcp/internal/server"
	"github.com/teemow/ads-mcp/internal/tools/common"
	"github.com/teemow/ads-mcp/internal/views"
)

// Tool names.
const (
	ToolListAccessibleCustomers = "list_accessible_customers"
	ToolSearch                  = "search"
	ToolExecuteGAQL             = "execute_gaql"
	ToolGetResourceFields       = "get_resource_fields"
)

var resourceName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// RegisterAPITools registers the Google Ads API tools with the MCP server.
func RegisterAPITools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listCustomersTool := mcp.NewTool(ToolListAccessibleCustomers,
		mcp.WithDescription("List the ids of Google Ads customers the authenticated user can access directly"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(listCustomersTool, common.InstrumentedToolHandler(ToolListAccessibleCustomers, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListAccessibleCustomers(ctx, request, sc)
		}))

	searchTool := mcp.NewTool(ToolSearch,
		mcp.WithDescription("Search a Google Ads resource. The query is built as "+
			"SELECT <fields> FROM <resource> [WHERE <conditions joined by AND>] [ORDER BY <orderings>] [LIMIT <limit>]. "+
			"Use get_reporting_view_doc or get_resource_fields to discover field names."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("customer_id",
			mcp.Required(),
			mcp.Description("The 10 digit customer id, dashes allowed"),
		),
		mcp.WithArray("fields",
			mcp.Required(),
			mcp.Description("Fields to select, e.g. campaign.id, metrics.clicks"),
			mcp.WithStringItems(),
		),
		mcp.WithString("resource",
			mcp.Required(),
			mcp.Description("The resource to select from, e.g. campaign"),
		),
		mcp.WithArray("conditions",
			mcp.Description("WHERE conditions, combined with AND, e.g. segments.date DURING LAST_7_DAYS"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("orderings",
			mcp.Description("ORDER BY clauses, e.g. metrics.clicks DESC"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of rows to return"),
		),
		mcp.WithString("login_customer_id",
			mcp.Description("Manager account id to send as login-customer-id"),
		),
	)
	s.AddTool(searchTool, common.InstrumentedToolHandler(ToolSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearch(ctx, request, sc)
		}))

	gaqlTool := mcp.NewTool(ToolExecuteGAQL,
		mcp.WithDescription("Run a raw Google Ads Query Language query against a customer. See get_gaql_doc for the grammar."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("customer_id",
			mcp.Required(),
			mcp.Description("The 10 digit customer id, dashes allowed"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The GAQL query"),
		),
		mcp.WithString("login_customer_id",
			mcp.Description("Manager account id to send as login-customer-id"),
		),
	)
	s.AddTool(gaqlTool, common.InstrumentedToolHandler(ToolExecuteGAQL, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleExecuteGAQL(ctx, request, sc)
		}))

	fieldsTool := mcp.NewTool(ToolGetResourceFields,
		mcp.WithDescription("Get metadata (type, category, selectable, filterable, sortable) for every field of a Google Ads resource"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("resource",
			mcp.Required(),
			mcp.Description("The resource name, e.g. campaign or metrics"),
		),
	)
	s.AddTool(fieldsTool, common.InstrumentedToolHandler(ToolGetResourceFields, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetResourceFields(ctx, request, sc)
		}))

	return nil
}

func handleListAccessibleCustomers(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, err := sc.AdsClient(ctx)
	if err != nil {
		return toolError("Failed to create Google Ads client", err), nil
	}

	ids, err := client.ListAccessibleCustomers(ctx)
	if err != nil {
		return toolError("Failed to list accessible customers", err), nil
	}
	sort.Strings(ids)

	return jsonResult(struct {
		CustomerIDs []string `json:"customer_ids"`
	}{CustomerIDs: ids})
}

// searchOutput is the JSON returned by search and execute_gaql.
type searchOutput struct {
	CustomerID string           `json:"customer_id"`
	Query      string           `json:"query"`
	RowCount   int              `json:"row_count"`
	Truncated  bool             `json:"truncated,omitempty"`
	Rows       []map[string]any `json:"rows"`
}

func handleSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	customerID, err := customerIDArg(args, "customer_id", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	q := ads.Query{}
	if q.Fields, err = common.StringList(args, "fields"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.Resource, err = common.RequiredString(args, "resource"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.Conditions, err = common.StringList(args, "conditions"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.Orderings, err = common.StringList(args, "orderings"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.Limit, _, err = common.IntArg(args, "limit"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := q.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	loginCustomerID, err := customerIDArg(args, "login_customer_id", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return runSearch(ctx, sc, ads.SearchRequest{
		CustomerID:      customerID,
		Query:           q.String(),
		LoginCustomerID: loginCustomerID,
		MaxRows:         q.Limit,
	})
}

func handleExecuteGAQL(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	customerID, err := customerIDArg(args, "customer_id", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := common.RequiredString(args, "query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	loginCustomerID, err := customerIDArg(args, "login_customer_id", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return runSearch(ctx, sc, ads.SearchRequest{
		CustomerID:      customerID,
		Query:           query,
		LoginCustomerID: loginCustomerID,
	})
}

func runSearch(ctx context.Context, sc *server.ServerContext, req ads.SearchRequest) (*mcp.CallToolResult, error) {
	client, err := sc.AdsClient(ctx)
	if err != nil {
		return toolError("Failed to create Google Ads client", err), nil
	}

	res, err := client.Search(ctx, req)
	if err != nil {
		return toolError("Search failed", err), nil
	}

	rows := res.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return jsonResult(searchOutput{
		CustomerID: req.CustomerID,
		Query:      req.Query,
		RowCount:   len(rows),
		Truncated:  res.Truncated,
		Rows:       rows,
	})
}

func handleGetResourceFields(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	resource, err := common.RequiredString(request.GetArguments(), "resource")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !resourceName.MatchString(resource) {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid resource name %q: use lowercase letters, digits and underscores", resource)), nil
	}

	client, err := sc.AdsClient(ctx)
	if err != nil {
		return toolError("Failed to create Google Ads client", err), nil
	}

	fields, err := client.SearchFields(ctx, views.FieldsQuery(resource))
	if err != nil {
		return toolError("Failed to get resource fields", err), nil
	}
	if len(fields) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("No fields found for resource %q", resource)), nil
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	return jsonResult(struct {
		Resource string      `json:"resource"`
		Fields   []ads.Field `json:"fields"`
	}{Resource: resource, Fields: fields})
}

// customerIDArg reads and normalizes a customer id argument.
func customerIDArg(args map[string]any, name string, required bool) (string, error) {
	raw, ok := common.StringArg(args, name)
	if !ok {
		if required {
			return "", fmt.Errorf("%s is required", name)
		}
		return "", nil
	}
	id, err := ads.NormalizeCustomerID(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

func toolError(msg string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", msg, ads.Describe(err)))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to serialize result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
