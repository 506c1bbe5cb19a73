package pipeline

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/deltacov/pkg/history"
	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
)

// tracedProvider opens a span per file query and counts failed queries,
// which history.Collect skips.
type tracedProvider struct {
	delegate history.Provider
	tracer   trace.Tracer
	failed   atomic.Int64
}

func (p *tracedProvider) ChangedFiles(ctx context.Context, rng history.Range) ([]string, error) {
	return p.delegate.ChangedFiles(ctx, rng)
}

func (p *tracedProvider) ChangedLines(ctx context.Context, rng history.Range, path string) ([]int, error) {
	ctx, span := p.tracer.Start(ctx, observability.SpanHistoryFile,
		trace.WithAttributes(attribute.String("history.file", path)))
	defer span.End()

	lines, err := p.delegate.ChangedLines(ctx, rng, path)
	if err != nil {
		if ctx.Err() == nil {
			p.failed.Add(1)
		}

		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("history.lines", len(lines)))

	return lines, nil
}

func (p *tracedProvider) failures() int {
	return int(p.failed.Load())
}
