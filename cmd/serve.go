package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/ads-mcp/internal/ads"
	"github.com/teemow/ads-mcp/internal/bootstrap"
	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/instrumentation"
	"github.com/teemow/ads-mcp/internal/logging"
	"github.com/teemow/ads-mcp/internal/mcp/oauth"
	"github.com/teemow/ads-mcp/internal/resources"
	"github.com/teemow/ads-mcp/internal/server"
	"github.com/teemow/ads-mcp/internal/tools/api_tools"
	"github.com/teemow/ads-mcp/internal/tools/docs_tools"
	"github.com/teemow/ads-mcp/internal/views"
)

// The name and version MCP clients see in the initialize response. They
// identify the tool surface, not the binary.
const (
	serverName    = "Google Ads API"
	serverVersion = "2.13.0.2"
)

var serverInfo = server.ServerInfo{Name: serverName, Version: serverVersion}

// serveOptions holds the flag values. Only flags the user set override the
// environment.
type serveOptions struct {
	transport        string
	host             string
	port             int
	baseURL          string
	debug            bool
	disableStreaming bool
	metricsEnabled   bool
	metricsAddr      string
	credentialsPath  string
	apiVersion       string
	loginCustomerID  string
	viewsPath        string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server providing read-only Google Ads
API tools for AI assistants.

Supports multiple transport types:
  - sse: Server-Sent Events on /sse and /messages/ (default)
  - streamable-http: Streamable HTTP on /mcp
  - stdio: Standard input/output

Both HTTP transports also answer POST /sse: an initialize request gets the
initialize result as a single SSE event, anything else gets the message
endpoint for a new session.

Authentication (HTTP transports only):
  FASTMCP_SERVER_AUTH_GOOGLE_CLIENT_ID and FASTMCP_SERVER_AUTH_GOOGLE_CLIENT_SECRET
    run an OAuth authorization server proxied to Google.
  USE_GOOGLE_OAUTH_ACCESS_TOKEN
    accepts Google access tokens as bearer tokens.
  Otherwise the MCP endpoints are open.

Google Ads credentials are read from google-ads.yaml
(GOOGLE_ADS_CONFIGURATION_FILE_PATH) and GOOGLE_ADS_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := applyFlags(cmd, config.FromEnv(), opts)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	bindServeFlags(cmd, &opts)

	return cmd
}

// bindServeFlags registers the serve flags on cmd, bound to opts.
func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.transport, "transport", config.DefaultTransport, "Transport type: sse, streamable-http or stdio. Can also use MCP_TRANSPORT env var.")
	f.StringVar(&opts.host, "host", config.DefaultHost, "Host to listen on (HTTP transports). Can also use MCP_HOST env var.")
	f.IntVar(&opts.port, "port", config.DefaultPort, "Port to listen on (HTTP transports). Can also use PORT or MCP_PORT env vars.")
	f.StringVar(&opts.baseURL, "base-url", config.DefaultBaseURL, "Public base URL, used as the OAuth resource identifier. Can also use FASTMCP_SERVER_BASE_URL env var.")
	f.BoolVar(&opts.debug, "debug", false, "Enable debug logging. Can also use MCP_DEBUG env var.")
	f.BoolVar(&opts.disableStreaming, "disable-streaming", false, "Answer streamable HTTP requests with plain JSON. Can also use MCP_DISABLE_STREAMING env var.")

	f.StringVar(&opts.credentialsPath, "google-ads-config", "", "Path to google-ads.yaml. Can also use GOOGLE_ADS_CONFIGURATION_FILE_PATH env var. Default: $HOME/google-ads.yaml")
	f.StringVar(&opts.apiVersion, "api-version", config.DefaultAPIVersion, "Google Ads API version. Can also use GOOGLE_ADS_API_VERSION env var.")
	f.StringVar(&opts.loginCustomerID, "login-customer-id", "", "Manager account id sent as login-customer-id. Can also use GOOGLE_ADS_LOGIN_CUSTOMER_ID env var.")
	f.StringVar(&opts.viewsPath, "views-path", "", "Path of the reporting view definitions. Can also use GOOGLE_ADS_VIEWS_PATH env var.")

	// Metrics server flags
	f.BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	f.StringVar(&opts.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cmd *cobra.Command, cfg config.Config, opts serveOptions) config.Config {
	f := cmd.Flags()

	if f.Changed("transport") {
		cfg = cfg.WithTransport(opts.transport)
	}
	if f.Changed("host") || f.Changed("port") {
		host, port := cfg.Host, cfg.Port
		if f.Changed("host") {
			host = opts.host
		}
		if f.Changed("port") {
			port = opts.port
		}
		cfg = cfg.WithAddr(host, port)
	}
	if f.Changed("base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if f.Changed("debug") {
		cfg.Debug = opts.debug
	}
	if f.Changed("disable-streaming") {
		cfg.DisableStreaming = opts.disableStreaming
	}
	if f.Changed("google-ads-config") {
		cfg.Ads.CredentialsPath = opts.credentialsPath
	}
	if f.Changed("api-version") {
		cfg.Ads.APIVersion = opts.apiVersion
	}
	if f.Changed("login-customer-id") {
		cfg.Ads.LoginCustomerID = opts.loginCustomerID
	}
	if f.Changed("views-path") {
		cfg.Ads.ViewsPath = opts.viewsPath
	}
	if f.Changed("metrics-enabled") {
		cfg.Metrics.Enabled = opts.metricsEnabled
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	return cfg
}

func runServe(cfg config.Config) error {
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logs always go to stderr; stdout belongs to the stdio transport.
	logger := logging.New(os.Stderr, cfg.Debug)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if cfg.Transport == config.TransportStdio {
		instrConfig.Output = os.Stderr
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	var (
		metrics *instrumentation.Metrics
		audit   *instrumentation.AuditLogger
	)
	if provider.Enabled() {
		metrics = provider.Metrics()
		audit = instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)
	}

	adsProvider := ads.NewProvider(ctx, cfg.Ads.CredentialsPath, ads.Options{
		APIVersion:      cfg.Ads.APIVersion,
		LoginCustomerID: cfg.Ads.LoginCustomerID,
		UserAgent:       "ads-mcp/" + version,
		Metrics:         metrics,
	})
	catalog := views.NewCatalog(cfg.Ads.ViewsPath)

	serverContext := server.NewServerContext(ctx, adsProvider, catalog,
		server.WithLogger(logger),
		server.WithInstrumentation(metrics, audit),
	)
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	mcpSrv := newMCPServer()
	if err := registerTools(mcpSrv, serverContext); err != nil {
		return err
	}

	runner := newBootstrap(adsProvider, catalog, logger, metrics)

	logger.Info("starting ads-mcp",
		"version", version,
		logging.Transport(cfg.Transport),
		"api_version", cfg.Ads.APIVersion)

	if cfg.Transport == config.TransportStdio {
		return runStdioServer(ctx, mcpSrv, runner, logger)
	}
	return runHTTPServer(ctx, cfg, mcpSrv, serverContext, runner, provider, logger)
}

func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer(serverName, serverVersion,
		mcpserver.WithToolCapabilities(true),
		// Matches the capabilities the POST /sse initialize shim advertises.
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithRecovery(),
	)
}

// registerTools registers every tool group and the resources. A failure
// aborts startup.
func registerTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Ads API",
			register: func() error {
				return api_tools.RegisterAPITools(mcpSrv, sc)
			},
		},
		{
			name: "Ads Docs",
			register: func() error {
				return docs_tools.RegisterDocsTools(mcpSrv, sc)
			},
		},
		{
			name: "Ads Resources",
			register: func() error {
				return resources.RegisterResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}
	return nil
}

// newBootstrap returns the startup checks: regenerate the reporting view
// definitions, then make sure the server's own Ads client can be built.
func newBootstrap(provider *ads.Provider, catalog *views.Catalog, logger *slog.Logger, metrics *instrumentation.Metrics) *bootstrap.Runner {
	return &bootstrap.Runner{
		Steps: []bootstrap.Step{
			traced(bootstrap.Step{
				Name: "views",
				Run: func(ctx context.Context) error {
					client, err := provider.Shared(ctx)
					if err != nil {
						return err
					}
					defs, err := views.Refresh(ctx, client, client.APIVersion(), catalog.Path())
					if defs != nil {
						catalog.Set(defs)
					}
					return err
				},
			}),
			traced(bootstrap.Step{
				Name: "ads_client",
				Run: func(ctx context.Context) error {
					_, err := provider.Shared(ctx)
					return err
				},
			}),
		},
		OnStep: func(ctx context.Context, r bootstrap.StepResult) {
			metrics.RecordBootstrapStep(ctx, r.Name, r.Status)
			if r.Err != nil {
				logger.Warn("bootstrap step failed",
					logging.Step(r.Name), logging.Duration(r.Duration), logging.Err(r.Err))
				return
			}
			logger.Info("bootstrap step completed",
				logging.Step(r.Name), logging.Duration(r.Duration))
		},
	}
}

// traced runs step inside a span named bootstrap.<name>.
func traced(step bootstrap.Step) bootstrap.Step {
	run := step.Run
	step.Run = func(ctx context.Context) error {
		ctx, span := instrumentation.StartSpan(ctx, "bootstrap."+step.Name,
			attribute.String(instrumentation.SpanAttrStep, step.Name))
		defer span.End()

		err := run(ctx)
		if err != nil {
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		return err
	}
	return step
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, runner *bootstrap.Runner, logger *slog.Logger) error {
	go runner.Run(ctx)

	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, cfg config.Config, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, runner *bootstrap.Runner, provider *instrumentation.Provider, logger *slog.Logger) error {
	metrics := sc.Metrics()
	health := server.NewHealthChecker(sc)

	var auth *oauth.Handler
	if cfg.Auth.Enabled() {
		var err error
		auth, err = oauth.NewHandler(oauth.FromServerConfig(cfg, logger, metrics))
		if err != nil {
			return fmt.Errorf("failed to create auth handler: %w", err)
		}
	}

	httpSrv, err := server.NewHTTPServer(server.HTTPConfig{
		Config:    cfg,
		MCPServer: mcpSrv,
		Info:      serverInfo,
		Health:    health,
		Auth:      auth,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		if auth != nil {
			auth.Stop()
		}
		return err
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() && provider.ServesPrometheus() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpSrv.Start(gctx)
	})
	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Start(gctx)
		})
	}
	g.Go(func() error {
		health.SetBootstrapResult(runner.Run(gctx))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()

		errs := []error{httpSrv.Shutdown(shutdownCtx)}
		if metricsServer != nil {
			errs = append(errs, metricsServer.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
