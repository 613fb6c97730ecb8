package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/ads-mcp/internal/mcp/oauth"
	"github.com/teemow/ads-mcp/internal/server"
	"github.com/teemow/ads-mcp/internal/tools/common"
	"github.com/teemow/ads-mcp/internal/tools/docs_tools"
)

// Resource URIs.
const (
	URIUserProfile   = "user://profile"
	URIGAQLReference = "ads://docs/gaql"
	URIViewTemplate  = "ads://views/{name}"

	viewURIPrefix = "ads://views/"

	mimeJSON     = "application/json"
	mimeMarkdown = "text/markdown"
)

// RegisterResources registers the user profile, the GAQL reference and one
// resource template covering every reporting view.
func RegisterResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	profileResource := mcp.NewResource(
		URIUserProfile,
		"Current User Profile",
		mcp.WithResourceDescription("The authenticated Google account and the Ads customers it can access"),
		mcp.WithMIMEType(mimeJSON),
	)
	s.AddResource(profileResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleUserProfile(ctx, request, sc)
	})

	gaqlResource := mcp.NewResource(
		URIGAQLReference,
		"GAQL Reference",
		mcp.WithResourceDescription("Google Ads Query Language grammar, operators, date ranges and examples"),
		mcp.WithMIMEType(mimeMarkdown),
	)
	s.AddResource(gaqlResource, func(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return textContents(request.Params.URI, mimeMarkdown, docs_tools.GAQLReference()), nil
	})

	viewTemplate := mcp.NewResourceTemplate(
		URIViewTemplate,
		"Reporting View",
		mcp.WithTemplateDescription("Field reference of a reporting view, e.g. ads://views/campaign"),
		mcp.WithTemplateMIMEType(mimeMarkdown),
	)
	s.AddResourceTemplate(viewTemplate, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleView(ctx, request, sc)
	})

	return nil
}

// profile is the user://profile payload.
type profile struct {
	Account       string   `json:"account"`
	Email         string   `json:"email,omitempty"`
	Name          string   `json:"name,omitempty"`
	Authenticated bool     `json:"authenticated"`
	CustomerIDs   []string `json:"customer_ids"`
}

func handleUserProfile(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	p := profile{Account: common.CallerFromContext(ctx)}
	if user, ok := oauth.UserFromContext(ctx); ok {
		p.Authenticated = true
		p.Email = user.Email
		p.Name = user.Name
	}

	client, err := sc.AdsClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Ads client: %w", err)
	}
	ids, err := client.ListAccessibleCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible customers: %w", err)
	}
	sort.Strings(ids)
	p.CustomerIDs = ids

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	return textContents(request.Params.URI, mimeJSON, string(data)), nil
}

func handleView(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	name, ok := strings.CutPrefix(request.Params.URI, viewURIPrefix)
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid view URI %q", request.Params.URI)
	}

	view, err := sc.Views().Current().Lookup(name)
	if err != nil {
		return nil, err
	}
	return textContents(request.Params.URI, mimeMarkdown, view.Markdown()), nil
}

func textContents(uri, mimeType, text string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: mimeType,
			Text:     text,
		},
	}
}
