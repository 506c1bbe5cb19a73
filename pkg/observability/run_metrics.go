package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRunsTotal      = "deltacov.runs.total"
	metricRunDuration    = "deltacov.run.duration.seconds"
	metricFilesTotal     = "deltacov.files.total"
	metricChangedLines   = "deltacov.changed.lines"
	metricCoveredLines   = "deltacov.covered.lines"
	metricCoverageRatio  = "deltacov.coverage.ratio"
	metricSkippedFiles   = "deltacov.files.skipped.total"
	metricMissingReports = "deltacov.reports.missing.total"

	attrVerdict = "verdict"
	verdictPass = "pass"
	verdictFail = "fail"
)

// RunMetrics holds the OTel instruments describing delta coverage runs.
type RunMetrics struct {
	runsTotal      metric.Int64Counter
	runDuration    metric.Float64Histogram
	filesTotal     metric.Int64Counter
	changedLines   metric.Int64Gauge
	coveredLines   metric.Int64Gauge
	coverageRatio  metric.Float64Gauge
	skippedFiles   metric.Int64Counter
	missingReports metric.Int64Counter
}

// RunStats summarizes one completed run, decoupled from pipeline types.
type RunStats struct {
	Files          int
	SkippedFiles   int
	MissingReports int
	Changed        int
	Covered        int
	Ratio          float64
	Passed         bool
	Duration       time.Duration
}

// NewRunMetrics creates run metric instruments from the given meter.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	runs, err := mt.Int64Counter(metricRunsTotal,
		metric.WithDescription("Completed delta coverage runs by verdict"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricRunDuration,
		metric.WithDescription("End-to-end run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunDuration, err)
	}

	files, err := mt.Int64Counter(metricFilesTotal,
		metric.WithDescription("Changed files scored"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFilesTotal, err)
	}

	changed, err := mt.Int64Gauge(metricChangedLines,
		metric.WithDescription("Changed instrumented lines in the last run"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChangedLines, err)
	}

	covered, err := mt.Int64Gauge(metricCoveredLines,
		metric.WithDescription("Changed lines covered in the last run"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCoveredLines, err)
	}

	ratio, err := mt.Float64Gauge(metricCoverageRatio,
		metric.WithDescription("Delta coverage ratio of the last run"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCoverageRatio, err)
	}

	skipped, err := mt.Int64Counter(metricSkippedFiles,
		metric.WithDescription("Changed files skipped because history could not be queried"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSkippedFiles, err)
	}

	missing, err := mt.Int64Counter(metricMissingReports,
		metric.WithDescription("Changed files without a coverage report"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMissingReports, err)
	}

	return &RunMetrics{
		runsTotal:      runs,
		runDuration:    duration,
		filesTotal:     files,
		changedLines:   changed,
		coveredLines:   covered,
		coverageRatio:  ratio,
		skippedFiles:   skipped,
		missingReports: missing,
	}, nil
}

// RecordRun records the statistics of a completed run.
// Safe to call on a nil receiver (no-op).
func (rm *RunMetrics) RecordRun(ctx context.Context, stats RunStats) {
	if rm == nil {
		return
	}

	verdict := verdictFail
	if stats.Passed {
		verdict = verdictPass
	}

	verdictAttrs := metric.WithAttributes(attribute.String(attrVerdict, verdict))

	rm.runsTotal.Add(ctx, 1, verdictAttrs)
	rm.runDuration.Record(ctx, stats.Duration.Seconds(), verdictAttrs)
	rm.filesTotal.Add(ctx, int64(stats.Files))
	rm.skippedFiles.Add(ctx, int64(stats.SkippedFiles))
	rm.missingReports.Add(ctx, int64(stats.MissingReports))
	rm.changedLines.Record(ctx, int64(stats.Changed))
	rm.coveredLines.Record(ctx, int64(stats.Covered))
	rm.coverageRatio.Record(ctx, stats.Ratio)
}
