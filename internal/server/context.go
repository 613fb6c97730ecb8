package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/ads-mcp/internal/ads"
	"github.com/teemow/ads-mcp/internal/instrumentation"
	"github.com/teemow/ads-mcp/internal/views"
)

// ServerContext carries the dependencies tool handlers share for the
// lifetime of the server.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	ads     *ads.Provider
	catalog *views.Catalog
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// ServerContextOption configures optional ServerContext fields.
type ServerContextOption func(*ServerContext)

// WithLogger sets the logger used by tool handlers.
func WithLogger(logger *slog.Logger) ServerContextOption {
	return func(sc *ServerContext) {
		sc.logger = logger
	}
}

// WithInstrumentation sets the metrics recorder and audit logger.
func WithInstrumentation(metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) ServerContextOption {
	return func(sc *ServerContext) {
		sc.metrics = metrics
		sc.audit = audit
	}
}

// NewServerContext creates a new server context. The returned context is
// cancelled by Shutdown.
func NewServerContext(ctx context.Context, provider *ads.Provider, catalog *views.Catalog, opts ...ServerContextOption) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		ads:     provider,
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// AdsClient returns the Ads client for the caller identified by ctx.
func (sc *ServerContext) AdsClient(ctx context.Context) (*ads.Client, error) {
	return sc.ads.Client(ctx)
}

// AdsProvider returns the Ads client provider.
func (sc *ServerContext) AdsProvider() *ads.Provider {
	return sc.ads
}

// Views returns the reporting view catalog.
func (sc *ServerContext) Views() *views.Catalog {
	return sc.catalog
}

func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics may return nil when instrumentation is disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger may return nil when instrumentation is disabled.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
