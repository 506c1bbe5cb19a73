// Package pipeline runs one delta coverage evaluation end to end: history
// collection, coverage parsing, correlation, and report assembly.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/deltacov/pkg/coverage"
	"github.com/Sumatoshi-tech/deltacov/pkg/history"
	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
	"github.com/Sumatoshi-tech/deltacov/pkg/report"
)

// Sentinel errors.
var (
	// ErrInvalidThreshold is returned for thresholds outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
	// ErrUnknownBackend is returned for history backends other than libgit2 and cli.
	ErrUnknownBackend = errors.New("unknown history backend")
	// ErrMissingReportDir is returned when no coverage directory is given.
	ErrMissingReportDir = errors.New("report directory is required")
)

// Backend selects how version-control history is queried.
type Backend string

// History backends.
const (
	// BackendLibgit2 reads the repository in-process through libgit2.
	BackendLibgit2 Backend = "libgit2"
	// BackendCLI runs the git executable.
	BackendCLI Backend = "cli"
)

// DefaultThreshold is the minimum passing ratio when none is configured.
const DefaultThreshold = 0.2

// ParseBackend validates a backend name; empty selects BackendLibgit2.
func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(name)) {
	case "", BackendLibgit2:
		return BackendLibgit2, nil
	case BackendCLI:
		return BackendCLI, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// Options configures Run.
type Options struct {
	// RepoPath is the working tree or bare repository to query.
	RepoPath  string
	Range     history.Range
	Threshold float64
	Filter    history.Filter
	Backend   Backend
	// Workers bounds concurrent history queries and report parses.
	Workers int
	// GitTimeout bounds each git invocation of the cli backend.
	GitTimeout time.Duration
	// Report locates the coverage documents and the generated artifacts.
	Report report.Config

	// Provider replaces the backend selected by Backend.
	Provider history.Provider

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.RunMetrics
}

// Validate checks the options that cannot be defaulted.
func (o Options) Validate() error {
	err := o.Range.Validate()
	if err != nil {
		return err
	}

	if o.Report.ReportDir == "" {
		return ErrMissingReportDir
	}

	err = o.Report.Naming.Validate()
	if err != nil {
		return err
	}

	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, o.Threshold)
	}

	if o.Provider == nil {
		_, err = ParseBackend(string(o.Backend))
		if err != nil {
			return err
		}
	}

	_, err = report.ParseAnnotateMode(string(o.Report.Annotate))
	if err != nil {
		return err
	}

	return validateBuckets(o.Report.Buckets)
}

func validateBuckets(buckets report.Buckets) error {
	if buckets == (report.Buckets{}) {
		return nil
	}

	return buckets.Validate()
}

// naming returns the report naming with defaults applied.
func (o Options) naming() coverage.Naming {
	naming := o.Report.Naming
	if naming.Joiner == "" {
		naming.Joiner = coverage.DefaultJoiner
	}

	return naming
}
