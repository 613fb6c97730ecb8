package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"github.com/teemow/ads-mcp/internal/instrumentation"
)

// DefaultBaseURL is the Google Ads REST endpoint.
const DefaultBaseURL = "https://googleads.googleapis.com"

// maxPages bounds pagination of a single search.
const maxPages = 100

// Options configures a Client.
type Options struct {
	APIVersion      string
	BaseURL         string
	LoginCustomerID string
	UserAgent       string

	// HTTPClient replaces the client built by google.golang.org/api.
	// Requests are still authorized with the token source, sent over the
	// transport of HTTPClient.
	HTTPClient *http.Client

	// TokenSource replaces the one a Provider builds from the credentials
	// file. Per-user clients ignore it.
	TokenSource oauth2.TokenSource

	Metrics *instrumentation.Metrics
}

// Client calls the Google Ads REST API.
type Client struct {
	http            *http.Client
	baseURL         string
	apiVersion      string
	developerToken  string
	loginCustomerID string
	metrics         *instrumentation.Metrics
}

// NewClient builds a Client that authorizes requests with ts.
func NewClient(ctx context.Context, developerToken string, ts oauth2.TokenSource, opts Options) (*Client, error) {
	if developerToken == "" {
		return nil, ErrMissingDeveloperToken
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		if ts == nil {
			return nil, ErrMissingCredentials
		}
		clientOpts := []option.ClientOption{option.WithTokenSource(ts)}
		if opts.UserAgent != "" {
			clientOpts = append(clientOpts, option.WithUserAgent(opts.UserAgent))
		}
		var err error
		httpClient, _, err = htransport.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ads http client: %w", err)
		}
	} else if ts != nil {
		httpClient = &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: httpClient.Transport},
			Timeout:   httpClient.Timeout,
		}
	}

	c := &Client{
		http:            httpClient,
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		apiVersion:      opts.APIVersion,
		developerToken:  developerToken,
		loginCustomerID: opts.LoginCustomerID,
		metrics:         opts.Metrics,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.apiVersion == "" {
		c.apiVersion = "v21"
	}
	return c, nil
}

// APIVersion returns the API version requests are sent to.
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// SearchRequest is one GAQL search against a customer.
type SearchRequest struct {
	CustomerID string
	Query      string
	// LoginCustomerID overrides the client default for this request.
	LoginCustomerID string
	// MaxRows stops pagination once this many rows are collected. Zero
	// means all rows.
	MaxRows int
}

// SearchResult holds the collected rows of a search.
type SearchResult struct {
	Rows      []map[string]any `json:"rows"`
	FieldMask string           `json:"field_mask,omitempty"`
	Truncated bool             `json:"truncated,omitempty"`
}

type searchRequestBody struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponseBody struct {
	Results       []map[string]any `json:"results"`
	NextPageToken string           `json:"nextPageToken"`
	FieldMask     string           `json:"fieldMask"`
}

// Search runs a GAQL query and follows page tokens.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	customerID, err := NormalizeCustomerID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	login := c.loginCustomerID
	if req.LoginCustomerID != "" {
		if login, err = NormalizeCustomerID(req.LoginCustomerID); err != nil {
			return nil, fmt.Errorf("login customer: %w", err)
		}
	}

	path := fmt.Sprintf("/%s/customers/%s/googleAds:search", c.apiVersion, customerID)
	result := &SearchResult{Rows: []map[string]any{}}

	err = c.observe(ctx, instrumentation.OperationSearch, customerID, func(ctx context.Context) error {
		defer func() {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Int(instrumentation.SpanAttrRows, len(result.Rows)))
		}()
		body := searchRequestBody{Query: req.Query}
		for page := 0; page < maxPages; page++ {
			var resp searchResponseBody
			if err := c.do(ctx, http.MethodPost, path, login, body, &resp); err != nil {
				return err
			}
			result.Rows = append(result.Rows, resp.Results...)
			if resp.FieldMask != "" {
				result.FieldMask = resp.FieldMask
			}
			if req.MaxRows > 0 && len(result.Rows) >= req.MaxRows {
				result.Truncated = len(result.Rows) > req.MaxRows || resp.NextPageToken != ""
				result.Rows = result.Rows[:req.MaxRows]
				return nil
			}
			if resp.NextPageToken == "" {
				return nil
			}
			body.PageToken = resp.NextPageToken
		}
		result.Truncated = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAccessibleCustomers returns the ids of customers the caller can access
// directly, without the customers/ prefix.
func (c *Client) ListAccessibleCustomers(ctx context.Context) ([]string, error) {
	var resp struct {
		ResourceNames []string `json:"resourceNames"`
	}
	path := fmt.Sprintf("/%s/customers:listAccessibleCustomers", c.apiVersion)
	err := c.observe(ctx, instrumentation.OperationListAccessibleCustomers, "", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, "", nil, &resp)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.ResourceNames))
	for _, name := range resp.ResourceNames {
		ids = append(ids, strings.TrimPrefix(name, "customers/"))
	}
	return ids, nil
}

// Field is the metadata of one GAQL field.
type Field struct {
	Name       string `json:"name" yaml:"name"`
	Category   string `json:"category,omitempty" yaml:"category,omitempty"`
	DataType   string `json:"dataType,omitempty" yaml:"data_type,omitempty"`
	Selectable bool   `json:"selectable" yaml:"selectable"`
	Filterable bool   `json:"filterable" yaml:"filterable"`
	Sortable   bool   `json:"sortable" yaml:"sortable"`
}

// SearchFields queries googleAdsFields. The query has no FROM clause,
// e.g. SELECT name, data_type WHERE name LIKE 'campaign.%'.
func (c *Client) SearchFields(ctx context.Context, query string) ([]Field, error) {
	var resp struct {
		Results       []Field `json:"results"`
		NextPageToken string  `json:"nextPageToken"`
	}
	path := fmt.Sprintf("/%s/googleAdsFields:search", c.apiVersion)

	var fields []Field
	err := c.observe(ctx, instrumentation.OperationSearchFields, "", func(ctx context.Context) error {
		body := map[string]string{"query": query}
		for page := 0; page < maxPages; page++ {
			resp.Results, resp.NextPageToken = nil, ""
			if err := c.do(ctx, http.MethodPost, path, "", body, &resp); err != nil {
				return err
			}
			fields = append(fields, resp.Results...)
			if resp.NextPageToken == "" {
				return nil
			}
			body["pageToken"] = resp.NextPageToken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// observe wraps fn in an Ads API span and records its outcome.
func (c *Client) observe(ctx context.Context, operation, customerID string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartAdsAPISpan(ctx, operation, customerID,
		attribute.String(instrumentation.SpanAttrAPIVersion, c.apiVersion))
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordAdsAPIOperation(ctx, operation, customerID, status, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, method, path, loginCustomerID string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("developer-token", c.developerToken)
	if loginCustomerID == "" {
		loginCustomerID = c.loginCustomerID
	}
	if loginCustomerID != "" {
		req.Header.Set("login-customer-id", loginCustomerID)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer googleapi.CloseBody(resp)

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
