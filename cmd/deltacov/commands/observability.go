package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
	"github.com/Sumatoshi-tech/deltacov/pkg/version"
)

// observabilityConfig builds the telemetry configuration shared by every
// command. OTLP export is configured through the standard OTEL_* variables.
func observabilityConfig(mode observability.AppMode, verbose bool, logOutput io.Writer) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version.Version
	cfg.Environment = os.Getenv("DELTACOV_ENVIRONMENT")
	cfg.Mode = mode
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	cfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	cfg.LogOutput = logOutput

	if verbose {
		cfg.LogLevel = slog.LevelDebug
		cfg.DebugTrace = true
	}

	return cfg
}
