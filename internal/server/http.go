package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/ads-mcp/internal/config"
	"github.com/teemow/ads-mcp/internal/instrumentation"
	"github.com/teemow/ads-mcp/internal/mcp/oauth"
)

const (
	sseEndpoint = "/sse"
	mcpEndpoint = "/mcp"

	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// HTTPConfig wires the HTTP transports.
type HTTPConfig struct {
	Config    config.Config
	MCPServer *mcpserver.MCPServer
	Info      ServerInfo
	Health    *HealthChecker

	// Auth guards the MCP endpoints. Nil serves them unauthenticated.
	Auth *oauth.Handler

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// HTTPServer serves one of the HTTP MCP transports together with the /sse
// compatibility shims, health probes and, when auth is enabled, the OAuth
// endpoints.
type HTTPServer struct {
	cfg     HTTPConfig
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool

	sse        *mcpserver.SSEServer
	streamable *mcpserver.StreamableHTTPServer
}

// NewHTTPServer builds the router for cfg.Config.Transport.
func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.MCPServer == nil {
		return nil, errors.New("mcp server is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthChecker(nil)
	}
	if cfg.Auth != nil && !cfg.Config.Auth.AllowInsecureHTTP {
		if err := validateHTTPSRequirement(cfg.Config.BaseURL); err != nil {
			return nil, err
		}
	}

	s := &HTTPServer{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrumentationMiddleware)

	cfg.Health.RegisterHealthEndpoints(r)

	shim := NewSSECompat(cfg.Info, cfg.Metrics)
	r.Post(sseEndpoint, shim.ServePost)
	r.Options(sseEndpoint, shim.ServeOptions)

	if cfg.Auth != nil {
		cfg.Auth.Routes(r)
	}

	switch cfg.Config.Transport {
	case config.TransportSSE:
		s.sse = mcpserver.NewSSEServer(cfg.MCPServer,
			mcpserver.WithSSEEndpoint(sseEndpoint),
			mcpserver.WithMessageEndpoint(messagesPath),
			mcpserver.WithSSEContextFunc(authContext),
		)
		r.Method(http.MethodGet, sseEndpoint, s.protect(s.sse.SSEHandler()))
		r.Method(http.MethodPost, messagesPath, s.protect(s.sse.MessageHandler()))

	case config.TransportStreamableHTTP:
		opts := []mcpserver.StreamableHTTPOption{
			mcpserver.WithEndpointPath(mcpEndpoint),
			mcpserver.WithHTTPContextFunc(authContext),
		}
		if cfg.Config.DisableStreaming {
			opts = append(opts, mcpserver.WithDisableStreaming(true))
		}
		s.streamable = mcpserver.NewStreamableHTTPServer(cfg.MCPServer, opts...)
		r.Handle(mcpEndpoint, s.protect(s.streamable))

	default:
		return nil, fmt.Errorf("%w: %q is not an HTTP transport", config.ErrInvalidTransport, cfg.Config.Transport)
	}

	s.handler = otelhttp.NewHandler(r, "ads-mcp")
	return s, nil
}

// authContext hands the user and Google token the auth middleware put on
// the request to the context tool handlers run with.
func authContext(ctx context.Context, r *http.Request) context.Context {
	return oauth.CopyAuth(ctx, r.Context())
}

// protect wraps MCP endpoints with the auth middleware when one is configured.
func (s *HTTPServer) protect(h http.Handler) http.Handler {
	if s.cfg.Auth == nil {
		return h
	}
	return s.cfg.Auth.Middleware(h)
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.cfg.Config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Config.Addr(), err)
	}
	return s.Serve(l)
}

// Serve serves on l. It returns nil after a graceful shutdown.
func (s *HTTPServer) Serve(l net.Listener) error {
	// No WriteTimeout: SSE streams stay open for the life of the session.
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return l.Close()
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.cfg.Logger.Info("starting HTTP server",
		"addr", l.Addr().String(),
		"transport", s.cfg.Config.Transport,
		"auth", s.cfg.Config.Auth.Strategy.String())

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the MCP transport, then drains the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	var errs []error
	if s.sse != nil {
		if err := s.sse.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sse transport: %w", err))
		}
	}
	if s.streamable != nil {
		if err := s.streamable.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("streamable transport: %w", err))
		}
	}
	s.mu.Lock()
	srv := s.httpServer
	s.closed = true
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cfg.Auth != nil {
		s.cfg.Auth.Stop()
	}
	return errors.Join(errs...)
}

// instrumentationMiddleware records request count and latency per route pattern.
func (s *HTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	if s.cfg.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		s.cfg.Metrics.RecordHTTPRequest(r.Context(), r.Method, path, rw.statusCode, time.Since(start))
	})
}

// responseWriter captures the status code. It keeps Flush working for SSE.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance.
// HTTP is only allowed for loopback addresses.
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS (got: %s). Use HTTPS, localhost, or set %s=true for development", baseURL, config.EnvAllowInsecureAuth)
		}
		return nil
	default:
		return fmt.Errorf("invalid URL scheme: %q. Must be http (localhost only) or https", u.Scheme)
	}
}
