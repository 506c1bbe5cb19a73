// Package report renders the results of a delta coverage run: the aggregate
// HTML document, one annotated copy per scored coverage document, and the
// console summary.
package report

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/deltacov/pkg/coverage"
	"github.com/Sumatoshi-tech/deltacov/pkg/delta"
	"github.com/Sumatoshi-tech/deltacov/pkg/history"
)

// DefaultOutputName is the aggregate document written into the report directory.
const DefaultOutputName = "increment_coverage_report.html"

const (
	defaultTitle = "Delta Coverage Report"
	barMaxWidth  = 200
	percentScale = 100
	timeLayout   = "2006-01-02 15:04:05"
)

// ErrUnknownAnnotateMode is returned for annotation modes other than uncovered and changed.
var ErrUnknownAnnotateMode = errors.New("unknown annotate mode")

// AnnotateMode selects which changed rows are flagged in annotated documents.
type AnnotateMode string

// Annotation modes.
const (
	// AnnotateUncovered flags changed lines that are not covered.
	AnnotateUncovered AnnotateMode = "uncovered"
	// AnnotateChanged flags every changed instrumented line.
	AnnotateChanged AnnotateMode = "changed"
)

// ParseAnnotateMode validates a mode name; empty selects AnnotateUncovered.
func ParseAnnotateMode(name string) (AnnotateMode, error) {
	switch AnnotateMode(name) {
	case "", AnnotateUncovered:
		return AnnotateUncovered, nil
	case AnnotateChanged:
		return AnnotateChanged, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownAnnotateMode, name)
}

// Config controls where and how reports are written.
type Config struct {
	// ReportDir holds the source coverage documents.
	ReportDir string
	// OutputPath is the aggregate document; defaults to ReportDir/DefaultOutputName.
	OutputPath string
	Naming     coverage.Naming
	Annotate   AnnotateMode
	Marker     coverage.Marker
	Buckets    Buckets
	// AbsoluteLinks writes absolute paths to annotated documents instead of relative ones.
	AbsoluteLinks bool
	Title         string
	// Now stamps the document; defaults to time.Now.
	Now func() time.Time
}

// Output returns the resolved aggregate document path.
func (c Config) Output() string {
	if c.OutputPath != "" {
		return c.OutputPath
	}

	return filepath.Join(c.ReportDir, DefaultOutputName)
}

// Run is the scored input of one report.
type Run struct {
	Range     history.Range
	Threshold float64
	Results   map[string]delta.FileResult
	Aggregate delta.Aggregate
}

// Assembler writes the artifacts of a run.
type Assembler struct {
	Config Config
	Logger *slog.Logger
}

// NewAssembler creates an assembler, filling unset configuration with defaults.
func NewAssembler(cfg Config, logger *slog.Logger) *Assembler {
	if cfg.Annotate == "" {
		cfg.Annotate = AnnotateUncovered
	}

	if cfg.Marker == (coverage.Marker{}) {
		cfg.Marker = coverage.DefaultMarker()
	}

	if cfg.Buckets == (Buckets{}) {
		cfg.Buckets = DefaultBuckets()
	}

	if cfg.Title == "" {
		cfg.Title = defaultTitle
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Assembler{Config: cfg, Logger: logger}
}

// Assemble annotates every scored document, renders the aggregate document and
// returns the summary payload.
func (a *Assembler) Assemble(ctx context.Context, run Run) (Payload, error) {
	outputPath := a.Config.Output()
	outDir := filepath.Dir(outputPath)

	err := os.MkdirAll(outDir, 0o755)
	if err != nil {
		return Payload{}, fmt.Errorf("create output directory: %w", err)
	}

	payload := NewPayload(run)
	payload.Report = outputPath

	rows := make([]rowData, 0, len(payload.Files))

	for i := range payload.Files {
		if ctx.Err() != nil {
			return Payload{}, ctx.Err()
		}

		file := &payload.Files[i]
		file.Bucket = a.Config.Buckets.Classify(file.Percent)

		link, annotateErr := a.annotate(file.File, run.Results[file.File], outDir)
		if annotateErr != nil {
			return Payload{}, annotateErr
		}

		file.Annotated = link
		rows = append(rows, newRow(*file))
	}

	chart, err := renderChart(buildChart(rows))
	if err != nil {
		return Payload{}, err
	}

	err = a.writePage(outputPath, payload, rows, chart)
	if err != nil {
		return Payload{}, err
	}

	a.Logger.InfoContext(ctx, "delta coverage report written",
		"path", outputPath, "files", len(rows), "ratio", payload.Ratio)

	return payload, nil
}

// annotate writes the annotated copy of one file's document and returns its link.
// An empty link means there was no document to annotate.
func (a *Assembler) annotate(file string, result delta.FileResult, outDir string) (string, error) {
	if !result.ReportFound {
		return "", nil
	}

	reportName := coverage.ReportName(file, a.Config.Naming)
	srcPath := filepath.Join(a.Config.ReportDir, reportName)
	dstPath := filepath.Join(outDir, coverage.AnnotatedName(reportName))

	lines := result.UncoveredLines
	if a.Config.Annotate == AnnotateChanged {
		lines = result.RelevantLines()
	}

	rewritten, err := coverage.AnnotateFile(srcPath, dstPath, coverage.NewLineSet(lines...), a.Config.Marker)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.Logger.Warn("coverage report disappeared before annotation", "file", file, "report", srcPath)

			return "", nil
		}

		return "", fmt.Errorf("annotate %s: %w", file, err)
	}

	a.Logger.Debug("annotated coverage report", "file", file, "path", dstPath, "rows", rewritten)

	return a.link(outDir, dstPath)
}

func (a *Assembler) link(outDir, target string) (string, error) {
	if a.Config.AbsoluteLinks {
		abs, err := filepath.Abs(target)
		if err != nil {
			return "", fmt.Errorf("resolve annotated report path: %w", err)
		}

		return filepath.ToSlash(abs), nil
	}

	rel, err := filepath.Rel(outDir, target)
	if err != nil {
		return "", fmt.Errorf("relative annotated report path: %w", err)
	}

	return filepath.ToSlash(rel), nil
}

func (a *Assembler) writePage(outputPath string, payload Payload, rows []rowData, chart string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	err = renderPage(file, pageData{
		Title:            a.Config.Title,
		AssetsHost:       defaultAssetURL,
		Since:            payload.Since,
		Until:            payload.Until,
		GeneratedAt:      a.Config.Now().Format(timeLayout),
		Changed:          payload.Changed,
		Covered:          payload.Covered,
		Ratio:            payload.Ratio,
		Percent:          delta.Round2(payload.Ratio * percentScale),
		ThresholdPercent: delta.Round2(payload.Threshold * percentScale),
		Passed:           payload.Passed,
		Chart:            template.HTML(chart), //nolint:gosec // echarts output, generated locally.
		Rows:             rows,
	})

	closeErr := file.Close()
	if err != nil {
		return err
	}

	if closeErr != nil {
		return fmt.Errorf("close report: %w", closeErr)
	}

	return nil
}

func newRow(file FileSummary) rowData {
	return rowData{
		File:      file.File,
		Link:      file.Annotated,
		Relevant:  file.Relevant,
		Covered:   file.Covered,
		Percent:   file.Percent,
		Bucket:    file.Bucket,
		BarColor:  file.Bucket.BarColor(),
		CellColor: file.Bucket.CellColor(),
		BarWidth:  int(file.Percent * barMaxWidth / percentScale),
	}
}
