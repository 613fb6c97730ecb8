package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/oauth2"

	"github.com/teemow/ads-mcp/internal/ads"
	"github.com/teemow/ads-mcp/internal/bootstrap"
	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/instrumentation"
	"github.com/teemow/ads-mcp/internal/logging"
	"github.com/teemow/ads-mcp/internal/server"
	"github.com/teemow/ads-mcp/internal/tools/api_tools"
	"github.com/teemow/ads-mcp/internal/tools/docs_tools"
	"github.com/teemow/ads-mcp/internal/views"
)

func TestApplyFlags(t *testing.T) {
	base := config.Config{
		Transport: config.TransportSSE,
		Host:      config.DefaultHost,
		Port:      config.DefaultPort,
		BaseURL:   config.DefaultBaseURL,
		Ads:       config.Ads{APIVersion: config.DefaultAPIVersion, CredentialsPath: "/env/google-ads.yaml"},
		Metrics:   config.Metrics{Enabled: true, Addr: config.DefaultMetricsAddr},
	}

	tests := []struct {
		name  string
		flags map[string]string
		check func(t *testing.T, cfg config.Config)
	}{
		{
			name: "no flags keeps environment",
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, base, cfg)
			},
		},
		{
			name:  "transport is lower cased",
			flags: map[string]string{"transport": "STDIO"},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, config.TransportStdio, cfg.Transport)
			},
		},
		{
			name:  "port only keeps host",
			flags: map[string]string{"port": "9000"},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
			},
		},
		{
			name:  "host only keeps port",
			flags: map[string]string{"host": "127.0.0.1"},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, "127.0.0.1:8000", cfg.Addr())
			},
		},
		{
			name: "ads settings",
			flags: map[string]string{
				"google-ads-config": "/flag/google-ads.yaml",
				"api-version":       "v20",
				"login-customer-id": "123-456-7890",
				"views-path":        "/tmp/views.yaml",
			},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, config.Ads{
					APIVersion:      "v20",
					CredentialsPath: "/flag/google-ads.yaml",
					LoginCustomerID: "123-456-7890",
					ViewsPath:       "/tmp/views.yaml",
				}, cfg.Ads)
			},
		},
		{
			name:  "metrics disabled",
			flags: map[string]string{"metrics-enabled": "false", "metrics-addr": ":9191"},
			check: func(t *testing.T, cfg config.Config) {
				assert.False(t, cfg.Metrics.Enabled)
				assert.Equal(t, ":9191", cfg.Metrics.Addr)
			},
		},
		{
			name:  "server settings",
			flags: map[string]string{"debug": "true", "disable-streaming": "true", "base-url": "https://ads.example.com"},
			check: func(t *testing.T, cfg config.Config) {
				assert.True(t, cfg.Debug)
				assert.True(t, cfg.DisableStreaming)
				assert.Equal(t, "https://ads.example.com", cfg.BaseURL)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts serveOptions
			cmd := &cobra.Command{Use: "serve"}
			bindServeFlags(cmd, &opts)
			for name, value := range tt.flags {
				require.NoError(t, cmd.Flags().Set(name, value))
			}
			tt.check(t, applyFlags(cmd, base, opts))
		})
	}
}

func TestRegisterTools(t *testing.T) {
	sc := server.NewServerContext(context.Background(), nil, views.NewCatalog(filepath.Join(t.TempDir(), "views.yaml")))
	t.Cleanup(func() { _ = sc.Shutdown() })

	mcpSrv := newMCPServer()
	require.NoError(t, registerTools(mcpSrv, sc))

	var names []string
	for _, serverTool := range mcpSrv.ListTools() {
		names = append(names, serverTool.Tool.Name)
	}
	assert.ElementsMatch(t, []string{
		api_tools.ToolListAccessibleCustomers,
		api_tools.ToolSearch,
		api_tools.ToolExecuteGAQL,
		api_tools.ToolGetResourceFields,
		docs_tools.ToolGetGAQLDoc,
		docs_tools.ToolListReportingViews,
		docs_tools.ToolGetReportingViewDoc,
	}, names)

	for _, name := range names {
		_, ok := toolCategories[name]
		assert.True(t, ok, "tool %s has no docs category", name)
	}
}

func TestGenerateToolsMarkdown(t *testing.T) {
	markdown, err := toolsMarkdown()
	require.NoError(t, err)

	assert.Contains(t, markdown, "# MCP Tools Reference")
	assert.Contains(t, markdown, "- [Ads API Tools](#ads-api-tools)")
	assert.Contains(t, markdown, "- [Ads Docs Tools](#ads-docs-tools)")
	assert.Contains(t, markdown, "### execute_gaql")
	assert.Contains(t, markdown, "- `customer_id` (string, required): ")
	assert.Contains(t, markdown, "- `limit` (number, optional): ")
	assert.NotContains(t, markdown, "## Other")
}

// writeCredentials writes a google-ads.yaml that passes validation. The
// tests point the client at a fake server, so the secrets are never used.
func writeCredentials(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "google-ads.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"developer_token: dev-token\n"+
			"client_id: client\n"+
			"client_secret: secret\n"+
			"refresh_token: refresh\n"), 0o600))
	return path
}

func fieldsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21/googleAdsFields:search", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"results":[{"name":"campaign.id","category":"ATTRIBUTE","dataType":"INT64","selectable":true}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeProvider serves the shared client from srv with a fixed access token,
// so no request reaches Google's token endpoint.
func fakeProvider(t *testing.T, srv *httptest.Server) *ads.Provider {
	t.Helper()
	return ads.NewProvider(context.Background(), writeCredentials(t), ads.Options{
		APIVersion:  "v21",
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"}),
	})
}

func TestBootstrap(t *testing.T) {
	srv := fieldsServer(t)
	provider := fakeProvider(t, srv)
	viewsPath := filepath.Join(t.TempDir(), "views.yaml")
	catalog := views.NewCatalog(viewsPath)

	var logs bytes.Buffer
	res := newBootstrap(provider, catalog, logging.New(&logs, false), nil).Run(context.Background())

	require.True(t, res.OK(), "failed steps: %+v", res.Failed())
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "views", res.Steps[0].Name)
	assert.Equal(t, "ads_client", res.Steps[1].Name)

	assert.Equal(t, "v21", catalog.Current().APIVersion)
	assert.FileExists(t, viewsPath)
	assert.Contains(t, logs.String(), "bootstrap step completed")
}

func TestBootstrap_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_ADS_DEVELOPER_TOKEN", "")

	provider := ads.NewProvider(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), ads.Options{})
	catalog := views.NewCatalog(filepath.Join(t.TempDir(), "views.yaml"))

	var logs bytes.Buffer
	res := newBootstrap(provider, catalog, logging.New(&logs, false), nil).Run(context.Background())

	assert.False(t, res.OK())
	require.Len(t, res.Failed(), 2, "a failed step must not stop later steps")
	for _, step := range res.Steps {
		assert.Equal(t, bootstrap.StatusFailed, step.Status)
		assert.ErrorIs(t, step.Err, ads.ErrMissingDeveloperToken)
	}

	assert.Empty(t, catalog.Current().APIVersion, "built-in views stay in place")
	assert.Contains(t, logs.String(), "bootstrap step failed")
}

func TestRunViewsRefresh(t *testing.T) {
	srv := fieldsServer(t)
	provider := fakeProvider(t, srv)
	path := filepath.Join(t.TempDir(), "out", "views.yaml")

	var out bytes.Buffer
	require.NoError(t, runViewsRefresh(context.Background(), provider, path, &out))

	assert.Contains(t, out.String(), "(Google Ads API v21) to "+path)
	defs, err := views.Load(path)
	require.NoError(t, err)
	assert.Len(t, defs.Views, len(views.DefaultSpecs))
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { SetVersion("dev") })

	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "ads-mcp version 1.2.3\n", out.String())
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRunHTTPServer_ServesWhileBootstrapFails(t *testing.T) {
	port := freePort(t)
	cfg := config.Config{
		Transport: config.TransportSSE,
		Host:      "127.0.0.1",
		Port:      port,
		BaseURL:   fmt.Sprintf("http://127.0.0.1:%d", port),
	}

	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{Enabled: false})
	require.NoError(t, err)

	t.Setenv("GOOGLE_ADS_DEVELOPER_TOKEN", "")
	adsProvider := ads.NewProvider(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), ads.Options{})
	sc := server.NewServerContext(context.Background(), adsProvider, views.NewCatalog(filepath.Join(t.TempDir(), "views.yaml")))
	t.Cleanup(func() { _ = sc.Shutdown() })

	runner := &bootstrap.Runner{
		StepTimeout: time.Minute,
		Steps: []bootstrap.Step{
			{Name: "explode", Run: func(context.Context) error { panic("boom") }},
			{Name: "hang", Run: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runHTTPServer(ctx, cfg, newMCPServer(), sc, runner, provider, logging.New(io.Discard, false))
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/healthz/detailed")
	require.NoError(t, err)
	var detailed server.DetailedHealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detailed))
	_ = resp.Body.Close()
	assert.Equal(t, "pending", detailed.Bootstrap.Status, "the hanging step is still running")

	resp, err = http.Post(base+"/sse", "application/json", strings.NewReader(`{"method":"initialize","id":1}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runHTTPServer did not return after cancel")
	}
}

func TestTracedStep(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	errBroken := errors.New("broken")
	step := traced(bootstrap.Step{Name: "views", Run: func(context.Context) error { return errBroken }})
	assert.Equal(t, "views", step.Name)
	assert.ErrorIs(t, step.Run(context.Background()), errBroken)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "bootstrap.views", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(instrumentation.SpanAttrStep, "views"))
}
