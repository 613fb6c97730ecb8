package instrumentation

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rusq/osenv/v2"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName defaults to ads-mcp.
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname, which is the pod name in Kubernetes.
	ServiceInstanceID string
	K8sNamespace      string
	K8sPodName        string

	// Enabled is false when INSTRUMENTATION_ENABLED=false.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp, stdout.
	MetricsExporter string

	// TracingExporter is one of otlp, stdout, none.
	TracingExporter string

	// OTLPEndpoint is host:port without scheme, e.g. localhost:4318.
	OTLPEndpoint string

	// OTLPInsecure switches OTLP export to plain HTTP. Local development only.
	OTLPInsecure bool

	// TraceSamplingRate is between 0.0 and 1.0.
	TraceSamplingRate float64

	// DetailedLabels adds high-cardinality labels such as customer ids.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig

	// Output receives the stdout exporters' output. Nil means os.Stdout;
	// the stdio transport points it at stderr.
	Output io.Writer
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII logs full email addresses instead of their domain.
	// Audit logs must then be routed to access-controlled storage.
	IncludePII bool
}

// DefaultConfig returns a Config populated from the environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:       osenv.Value("OTEL_SERVICE_NAME", ServiceName),
		ServiceVersion:    "unknown",
		ServiceInstanceID: osenv.Value("OTEL_SERVICE_INSTANCE_ID", ""),
		K8sNamespace:      osenv.Value("K8S_NAMESPACE", osenv.Value("POD_NAMESPACE", "")),
		K8sPodName:        osenv.Value("K8S_POD_NAME", osenv.Value("HOSTNAME", "")),
		Enabled:           osenv.Value("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:   osenv.Value("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:   osenv.Value("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:      osenv.Value("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      osenv.Value("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate: envFloat("OTEL_TRACES_SAMPLER_ARG", 0.1),
		DetailedLabels:    osenv.Value("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    osenv.Value("AUDIT_LOGGING_ENABLED", true),
			IncludePII: osenv.Value("AUDIT_LOGGING_INCLUDE_PII", false),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	validMetricsExporters := map[string]bool{ExporterPrometheus: true, ExporterOTLP: true, ExporterStdout: true}
	if c.MetricsExporter != "" && !validMetricsExporters[c.MetricsExporter] {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	validTracingExporters := map[string]bool{ExporterOTLP: true, ExporterStdout: true, ExporterNone: true}
	if c.TracingExporter != "" && !validTracingExporters[c.TracingExporter] {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.TracingExporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
	}
	if c.MetricsExporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
	}

	return nil
}

// envFloat falls back to def when the variable is unset or unparseable.
func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

// Constants for metric label values.
const (
	ServiceName = "ads-mcp"

	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"
	OAuthResultExpired = "expired"

	// SSE handshake variants
	HandshakeInitialize = "initialize"
	HandshakeEndpoint   = "endpoint"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	DefaultMetricInterval = 10 * time.Second
)
