package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/mcp-oauth/providers"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/ads-mcp/internal/bootstrap"
	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/google"
	"github.com/teemow/ads-mcp/internal/mcp/oauth"
)

// rejectAll is a Google identity that knows no tokens.
type rejectAll struct{}

func (rejectAll) TokenInfo(context.Context, string) (*oauth.TokenInfo, error) {
	return nil, oauth.ErrTokenRejected
}

func (rejectAll) UserInfo(context.Context, *oauth2.Token) (*providers.UserInfo, error) {
	return nil, errors.New("no user")
}

func testConfig(transport string) config.Config {
	return config.Config{
		Transport: transport,
		Host:      "127.0.0.1",
		Port:      0,
		BaseURL:   "http://localhost:8000",
	}
}

func newTestHTTPServer(t *testing.T, cfg config.Config, auth *oauth.Handler) *HTTPServer {
	t.Helper()
	s, err := NewHTTPServer(HTTPConfig{
		Config:    cfg,
		MCPServer: mcpserver.NewMCPServer(testInfo.Name, testInfo.Version, mcpserver.WithToolCapabilities(true)),
		Info:      testInfo,
		Auth:      auth,
	})
	require.NoError(t, err)
	return s
}

func newVerifierAuth(t *testing.T) *oauth.Handler {
	t.Helper()
	h, err := oauth.NewHandler(oauth.Config{
		Resource:       "http://localhost:8000",
		Strategy:       config.AuthTokenVerifier,
		RequiredScopes: []string{config.AdwordsScope},
		RateLimit:      oauth.RateLimitConfig{Rate: 1000, Burst: 1000},
		Identity:       rejectAll{},
	})
	require.NoError(t, err)
	t.Cleanup(h.Stop)
	return h
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPServer_ShimRoutes(t *testing.T) {
	for _, transport := range []string{config.TransportSSE, config.TransportStreamableHTTP} {
		t.Run(transport, func(t *testing.T) {
			h := newTestHTTPServer(t, testConfig(transport), nil).Handler()

			rec := serve(h, http.MethodPost, "/sse", `{"method":"initialize","id":7}`)
			require.Equal(t, http.StatusOK, rec.Code)
			event, data := parseEvent(t, rec.Body.String())
			assert.Equal(t, "message", event)
			var payload struct {
				ID int `json:"id"`
			}
			require.NoError(t, json.Unmarshal([]byte(data), &payload))
			assert.Equal(t, 7, payload.ID)

			rec = serve(h, http.MethodOptions, "/sse", "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assertCORS(t, rec.Header())

			rec = serve(h, http.MethodGet, "/healthz", "")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestHTTPServer_AuthGuardsMCPEndpoints(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		method    string
		target    string
	}{
		{name: "sse stream", transport: config.TransportSSE, method: http.MethodGet, target: "/sse"},
		{name: "sse messages", transport: config.TransportSSE, method: http.MethodPost, target: "/messages/?sessionId=x"},
		{name: "streamable", transport: config.TransportStreamableHTTP, method: http.MethodPost, target: "/mcp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHTTPServer(t, testConfig(tt.transport), newVerifierAuth(t)).Handler()

			rec := serve(h, tt.method, tt.target, `{}`)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t,
				`Bearer resource_metadata="http://localhost:8000/.well-known/oauth-protected-resource"`,
				rec.Header().Get("WWW-Authenticate"))

			rec = serve(h, http.MethodPost, "/sse", "")
			assert.Equal(t, http.StatusOK, rec.Code, "the POST shim is never authenticated")
			rec = serve(h, http.MethodOptions, "/sse", "")
			assert.Equal(t, http.StatusOK, rec.Code)

			rec = serve(h, http.MethodGet, oauth.ProtectedResourcePath, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			rec = serve(h, http.MethodGet, "/readyz", "")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestNewHTTPServer_Errors(t *testing.T) {
	_, err := NewHTTPServer(HTTPConfig{Config: testConfig(config.TransportSSE)})
	assert.Error(t, err, "mcp server is required")

	mcp := mcpserver.NewMCPServer(testInfo.Name, testInfo.Version)

	_, err = NewHTTPServer(HTTPConfig{Config: testConfig(config.TransportStdio), MCPServer: mcp})
	assert.ErrorIs(t, err, config.ErrInvalidTransport)

	cfg := testConfig(config.TransportSSE)
	cfg.BaseURL = "http://ads.example.com"
	_, err = NewHTTPServer(HTTPConfig{Config: cfg, MCPServer: mcp, Auth: newVerifierAuth(t)})
	assert.Error(t, err, "plain HTTP base URL needs the insecure override")

	cfg.Auth.AllowInsecureHTTP = true
	_, err = NewHTTPServer(HTTPConfig{Config: cfg, MCPServer: mcp, Auth: newVerifierAuth(t)})
	assert.NoError(t, err)
}

func TestHTTPServer_ServeAndShutdown(t *testing.T) {
	s := newTestHTTPServer(t, testConfig(config.TransportStreamableHTTP), nil)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()

	url := "http://" + l.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHTTPServer_ServeAfterShutdown(t *testing.T) {
	s := newTestHTTPServer(t, testConfig(config.TransportSSE), nil)
	require.NoError(t, s.Shutdown(context.Background()))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.NoError(t, s.Serve(l))

	_, err = net.Dial("tcp", l.Addr().String())
	assert.Error(t, err, "listener must be closed")
}

func TestHealthChecker_Bootstrap(t *testing.T) {
	hc := NewHealthChecker(nil)

	read := func() DetailedHealthResponse {
		rec := httptest.NewRecorder()
		hc.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp DetailedHealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	assert.Equal(t, healthStatusPending, read().Bootstrap.Status)

	hc.SetBootstrapResult(&bootstrap.Result{Steps: []bootstrap.StepResult{
		{Name: "views", Status: bootstrap.StatusFailed, Error: "no fields"},
		{Name: "ads_client", Status: bootstrap.StatusOK},
	}})
	resp := read()
	assert.Equal(t, healthStatusOK, resp.Status, "bootstrap failures do not fail the probe")
	assert.Equal(t, healthStatusDegraded, resp.Bootstrap.Status)
	require.Len(t, resp.Bootstrap.Steps, 2)
	assert.Equal(t, "no fields", resp.Bootstrap.Steps[0].Error)

	rec := httptest.NewRecorder()
	hc.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthChecker_NotReady(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, nil)
	hc := NewHealthChecker(sc)

	tests := []struct {
		name   string
		setup  func()
		status int
	}{
		{name: "ready", setup: func() {}, status: http.StatusOK},
		{name: "not ready", setup: func() { hc.SetReady(false) }, status: http.StatusServiceUnavailable},
		{name: "shutting down", setup: func() { hc.SetReady(true); _ = sc.Shutdown() }, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			rec := httptest.NewRecorder()
			hc.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.status, rec.Code)

			rec = httptest.NewRecorder()
			hc.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, rec.Code, "liveness never depends on readiness")
		})
	}
}

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "valid HTTPS URL", baseURL: "https://mcp.example.com"},
		{name: "valid HTTP localhost", baseURL: "http://localhost:8080"},
		{name: "valid HTTP 127.0.0.1", baseURL: "http://127.0.0.1:8080"},
		{name: "valid HTTP ::1", baseURL: "http://[::1]:8080"},
		{name: "invalid HTTP non-localhost", baseURL: "http://mcp.example.com", wantErr: true},
		{name: "invalid HTTP with localhost substring", baseURL: "http://localhost.example.com", wantErr: true},
		{name: "invalid HTTP with 127.0.0.1 in domain", baseURL: "http://127.0.0.1.example.com", wantErr: true},
		{name: "empty URL", baseURL: "", wantErr: true},
		{name: "invalid URL format", baseURL: "not a url", wantErr: true},
		{name: "invalid scheme", baseURL: "ftp://example.com", wantErr: true},
		{name: "HTTPS with path", baseURL: "https://mcp.example.com/api"},
		{name: "HTTPS with port", baseURL: "https://mcp.example.com:8443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := newResponseWriter(recorder)
		rw.WriteHeader(http.StatusNotFound)
		assert.Equal(t, http.StatusNotFound, rw.statusCode)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("defaults to 200", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("flushes through", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		var w http.ResponseWriter = newResponseWriter(recorder)
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		f.Flush()
		assert.True(t, recorder.Flushed)
	})
}

// acceptToken is a Google identity that knows exactly one token.
type acceptToken struct {
	token string
	email string
}

func (a acceptToken) TokenInfo(_ context.Context, accessToken string) (*oauth.TokenInfo, error) {
	if accessToken != a.token {
		return nil, oauth.ErrTokenRejected
	}
	return &oauth.TokenInfo{
		Email:     a.email,
		Scopes:    []string{config.AdwordsScope},
		ExpiresIn: time.Hour,
	}, nil
}

func (a acceptToken) UserInfo(context.Context, *oauth2.Token) (*providers.UserInfo, error) {
	return &providers.UserInfo{Email: a.email}, nil
}

func TestHTTPServer_ToolsSeeAuthenticatedCaller(t *testing.T) {
	auth, err := oauth.NewHandler(oauth.Config{
		Resource:       "http://localhost:8000",
		Strategy:       config.AuthTokenVerifier,
		RequiredScopes: []string{config.AdwordsScope},
		RateLimit:      oauth.RateLimitConfig{Rate: 1000, Burst: 1000},
		Identity:       acceptToken{token: "ya29.good", email: "jane@example.com"},
	})
	require.NoError(t, err)
	t.Cleanup(auth.Stop)

	mcpSrv := mcpserver.NewMCPServer(testInfo.Name, testInfo.Version, mcpserver.WithToolCapabilities(true))
	mcpSrv.AddTool(mcp.NewTool("whoami"), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tok, ok := google.TokenFromContext(ctx)
		if !ok {
			return mcp.NewToolResultError("no token"), nil
		}
		return mcp.NewToolResultText(oauth.UserEmailFromContext(ctx) + " " + tok.AccessToken), nil
	})

	s, err := NewHTTPServer(HTTPConfig{
		Config:    testConfig(config.TransportStreamableHTTP),
		MCPServer: mcpSrv,
		Info:      testInfo,
		Auth:      auth,
	})
	require.NoError(t, err)
	h := s.Handler()

	post := func(body, sessionID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer ya29.good")
		if sessionID != "" {
			req.Header.Set(mcpserver.HeaderKeySessionID, sessionID)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessionID := rec.Header().Get(mcpserver.HeaderKeySessionID)
	require.NotEmpty(t, sessionID)

	rec = post(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"whoami","arguments":{}}}`, sessionID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Result.IsError)
	require.Len(t, resp.Result.Content, 1)
	assert.Equal(t, "jane@example.com ya29.good", resp.Result.Content[0].Text)
}
