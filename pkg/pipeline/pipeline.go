package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/deltacov/pkg/coverage"
	"github.com/Sumatoshi-tech/deltacov/pkg/delta"
	"github.com/Sumatoshi-tech/deltacov/pkg/gitcli"
	"github.com/Sumatoshi-tech/deltacov/pkg/gitlib"
	"github.com/Sumatoshi-tech/deltacov/pkg/history"
	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
	"github.com/Sumatoshi-tech/deltacov/pkg/report"
)

// tracerName is the fallback tracer when Options.Tracer is nil.
const tracerName = "deltacov"

const defaultWorkers = 4

// Outcome is the result of one run.
type Outcome struct {
	Payload   report.Payload
	Changes   history.ChangeSet
	Results   map[string]delta.FileResult
	Aggregate delta.Aggregate
	Passed    bool
	Duration  time.Duration
}

// Run evaluates the delta coverage of opts.Range and writes the report.
// Identical inputs produce identical outcomes.
func Run(ctx context.Context, opts Options) (Outcome, error) {
	err := opts.Validate()
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	logger := opts.Logger

	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	ctx, span := tracer.Start(ctx, "deltacov.pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.since", opts.Range.Since),
		attribute.String("pipeline.until", opts.Range.Until),
		attribute.Float64("pipeline.threshold", opts.Threshold),
	))
	defer span.End()

	outcome, skipped, err := run(ctx, opts, tracer, logger, workers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return Outcome{}, err
	}

	outcome.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("run.files", len(outcome.Results)),
		attribute.Int("run.changed", outcome.Aggregate.Changed),
		attribute.Int("run.covered", outcome.Aggregate.Covered),
		attribute.Float64("run.ratio", outcome.Aggregate.Ratio),
		attribute.Bool("run.passed", outcome.Passed),
	)

	opts.Metrics.RecordRun(ctx, observability.RunStats{
		Files:          len(outcome.Results),
		SkippedFiles:   skipped,
		MissingReports: countMissing(outcome.Results),
		Changed:        outcome.Aggregate.Changed,
		Covered:        outcome.Aggregate.Covered,
		Ratio:          outcome.Aggregate.Ratio,
		Passed:         outcome.Passed,
		Duration:       outcome.Duration,
	})

	logger.InfoContext(ctx, "delta coverage evaluated",
		"range", opts.Range.String(),
		"changed", outcome.Aggregate.Changed,
		"covered", outcome.Aggregate.Covered,
		"ratio", outcome.Aggregate.Ratio,
		"passed", outcome.Passed,
		"duration", outcome.Duration,
	)

	return outcome, nil
}

func run(ctx context.Context, opts Options, tracer trace.Tracer, logger *slog.Logger, workers int) (Outcome, int, error) {
	provider, release, err := openProvider(opts, logger)
	if err != nil {
		return Outcome{}, 0, err
	}
	defer release()

	traced := &tracedProvider{delegate: provider, tracer: tracer}

	changes, err := collect(ctx, traced, opts, tracer, logger, workers)
	if err != nil {
		return Outcome{}, 0, err
	}

	naming := opts.naming()

	classifications, err := loadCoverage(ctx, changes.Files(), opts.Report.ReportDir, naming, tracer, logger, workers)
	if err != nil {
		return Outcome{}, 0, err
	}

	_, correlateSpan := tracer.Start(ctx, "deltacov.delta.correlate")
	results := delta.Correlate(changes, classifications)
	aggregate := delta.Summarize(results)
	correlateSpan.End()

	reportCfg := opts.Report
	reportCfg.Naming = naming

	assembleCtx, assembleSpan := tracer.Start(ctx, "deltacov.report.assemble")

	payload, err := report.NewAssembler(reportCfg, logger).Assemble(assembleCtx, report.Run{
		Range:     opts.Range,
		Threshold: opts.Threshold,
		Results:   results,
		Aggregate: aggregate,
	})
	if err != nil {
		assembleSpan.SetStatus(codes.Error, err.Error())
		assembleSpan.End()

		return Outcome{}, 0, fmt.Errorf("assemble report: %w", err)
	}

	assembleSpan.SetAttributes(attribute.String("report.path", payload.Report))
	assembleSpan.End()

	return Outcome{
		Payload:   payload,
		Changes:   changes,
		Results:   results,
		Aggregate: aggregate,
		Passed:    aggregate.Passed(opts.Threshold),
	}, traced.failures(), nil
}

// openProvider returns the history provider and a function releasing it.
func openProvider(opts Options, logger *slog.Logger) (history.Provider, func(), error) {
	if opts.Provider != nil {
		return opts.Provider, func() {}, nil
	}

	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, nil, err
	}

	repoPath := opts.RepoPath
	if repoPath == "" {
		repoPath = "."
	}

	if backend == BackendCLI {
		runner := gitcli.NewExecRunner(logger)
		if opts.GitTimeout > 0 {
			runner.Timeout = opts.GitTimeout
		}

		return gitcli.NewClient(runner, repoPath), func() {}, nil
	}

	repo, err := gitlib.LoadRepository(repoPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", repoPath, err)
	}

	return gitlib.NewProvider(repo), repo.Free, nil
}

func collect(
	ctx context.Context, provider history.Provider, opts Options,
	tracer trace.Tracer, logger *slog.Logger, workers int,
) (history.ChangeSet, error) {
	ctx, span := tracer.Start(ctx, "deltacov.history.collect",
		trace.WithAttributes(attribute.String("history.backend", string(opts.Backend))))
	defer span.End()

	changes, err := history.Collect(ctx, provider, opts.Range, history.Options{
		Filter:  opts.Filter,
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(
		attribute.Int("history.files", len(changes)),
		attribute.Int("history.lines", changes.Lines()),
	)

	return changes, nil
}

// loadCoverage parses the documents of files in parallel. A document that
// cannot be read is logged and treated as missing.
func loadCoverage(
	ctx context.Context, files []string, dir string, naming coverage.Naming,
	tracer trace.Tracer, logger *slog.Logger, workers int,
) (map[string]coverage.Classification, error) {
	ctx, span := tracer.Start(ctx, "deltacov.coverage.load",
		trace.WithAttributes(attribute.Int("coverage.files", len(files))))
	defer span.End()

	var (
		mu              sync.Mutex
		classifications = make(map[string]coverage.Classification, len(files))
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, file := range files {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			_, fileSpan := tracer.Start(groupCtx, observability.SpanCoverageParse,
				trace.WithAttributes(attribute.String("coverage.file", file)))

			classification, err := coverage.Load(dir, file, naming, logger)
			if err != nil {
				logger.WarnContext(groupCtx, "unreadable coverage report, counting as missing", "file", file, "error", err)
				fileSpan.SetStatus(codes.Error, err.Error())

				classification = coverage.NotFound()
			}

			fileSpan.SetAttributes(attribute.Bool("coverage.found", classification.Found))
			fileSpan.End()

			mu.Lock()
			classifications[file] = classification
			mu.Unlock()

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("load coverage: %w", err)
	}

	return classifications, nil
}

func countMissing(results map[string]delta.FileResult) int {
	missing := 0

	for _, result := range results {
		if !result.ReportFound {
			missing++
		}
	}

	return missing
}
