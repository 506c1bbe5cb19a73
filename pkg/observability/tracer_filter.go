package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Span and tracer names dropped unless Config.TraceVerbose is set.
const (
	// SpanHistoryFile covers the history query of one changed file.
	SpanHistoryFile = "deltacov.history.file"
	// SpanCoverageParse covers the parse of one coverage report.
	SpanCoverageParse = "deltacov.coverage.parse"
	// TracerGitlib names the tracer of the libgit2 backend.
	TracerGitlib = "deltacov.gitlib"
)

// filteringTracerProvider wraps a TracerProvider and swaps per-file spans for
// no-op spans. Whole tracers can be silenced as well as single span names.
type filteringTracerProvider struct {
	embedded.TracerProvider

	delegate          trace.TracerProvider
	noop              trace.TracerProvider
	suppressedTracers map[string]bool
	suppressedSpans   map[string]bool
}

// NewFilteringTracerProvider wraps delegate so that per-file and per-git-call
// spans are dropped while the stage spans of a run are kept.
func NewFilteringTracerProvider(delegate trace.TracerProvider) trace.TracerProvider {
	return &filteringTracerProvider{
		delegate: delegate,
		noop:     nooptrace.NewTracerProvider(),
		suppressedTracers: map[string]bool{
			TracerGitlib: true,
		},
		suppressedSpans: map[string]bool{
			SpanHistoryFile:   true,
			SpanCoverageParse: true,
		},
	}
}

// Tracer returns a tracer for the given name.
func (f *filteringTracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if f.suppressedTracers[name] {
		return f.noop.Tracer(name, opts...)
	}

	return &filteringTracer{
		delegate: f.delegate.Tracer(name, opts...),
		noop:     f.noop.Tracer(name, opts...),
		suppress: f.suppressedSpans,
	}
}

type filteringTracer struct {
	embedded.Tracer

	delegate trace.Tracer
	noop     trace.Tracer
	suppress map[string]bool
}

// Start creates a span, returning a noop span for suppressed names.
func (f *filteringTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if f.suppress[name] {
		return f.noop.Start(ctx, name, opts...)
	}

	return f.delegate.Start(ctx, name, opts...)
}
