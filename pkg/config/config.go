// Package config provides YAML-based configuration for deltacov runs.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Sumatoshi-tech/deltacov/pkg/coverage"
	"github.com/Sumatoshi-tech/deltacov/pkg/history"
	"github.com/Sumatoshi-tech/deltacov/pkg/pipeline"
	"github.com/Sumatoshi-tech/deltacov/pkg/report"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers    = errors.New("workers must not be negative")
	ErrInvalidGitTimeout = errors.New("git timeout must be positive")
)

// Config holds every setting of a deltacov run.
type Config struct {
	Repo       string          `mapstructure:"repo"`
	Since      string          `mapstructure:"since"`
	Until      string          `mapstructure:"until"`
	Threshold  float64         `mapstructure:"threshold"`
	Backend    string          `mapstructure:"backend"`
	Workers    int             `mapstructure:"workers"`
	GitTimeout time.Duration   `mapstructure:"git_timeout"`
	Report     ReportConfig    `mapstructure:"report"`
	Filter     FilterConfig    `mapstructure:"filter"`
	Summary    SummaryConfig   `mapstructure:"summary"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
}

// ReportConfig locates the coverage documents and shapes the generated report.
type ReportConfig struct {
	Dir           string        `mapstructure:"dir"`
	Prefix        string        `mapstructure:"prefix"`
	MissingPrefix string        `mapstructure:"missing_prefix"`
	Joiner        string        `mapstructure:"joiner"`
	Output        string        `mapstructure:"output"`
	Annotate      string        `mapstructure:"annotate"`
	AbsoluteLinks bool          `mapstructure:"absolute_links"`
	Title         string        `mapstructure:"title"`
	Buckets       BucketsConfig `mapstructure:"buckets"`
}

// BucketsConfig holds the coverage tier boundaries, in percent.
type BucketsConfig struct {
	High float64 `mapstructure:"high"`
	Low  float64 `mapstructure:"low"`
}

// FilterConfig selects which changed files are scored.
type FilterConfig struct {
	Extensions   []string `mapstructure:"extensions"`
	Include      []string `mapstructure:"include"`
	Exclude      []string `mapstructure:"exclude"`
	SkipVendored bool     `mapstructure:"skip_vendored"`
}

// SummaryConfig controls the stdout summary.
type SummaryConfig struct {
	Print  bool   `mapstructure:"print"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig controls metrics export and logging.
type TelemetryConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	PushJob     string `mapstructure:"push_job"`
	LogJSON     bool   `mapstructure:"log_json"`
}

// Range returns the configured revision range.
func (c *Config) Range() history.Range {
	return history.Range{Since: c.Since, Until: c.Until}
}

// Naming returns the report naming convention.
func (c *Config) Naming() coverage.Naming {
	return coverage.Naming{
		MissingPrefix: c.Report.MissingPrefix,
		Prefix:        c.Report.Prefix,
		Joiner:        c.Report.Joiner,
	}
}

// Validate checks the configuration. Missing revisions and prefix report
// the history and coverage sentinels; an out-of-range threshold reports
// [pipeline.ErrInvalidThreshold].
func (c *Config) Validate() error {
	err := c.Range().Validate()
	if err != nil {
		return err
	}

	err = c.Naming().Validate()
	if err != nil {
		return err
	}

	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: %v", pipeline.ErrInvalidThreshold, c.Threshold)
	}

	if c.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}

	if c.GitTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidGitTimeout, c.GitTimeout)
	}

	_, err = pipeline.ParseBackend(c.Backend)
	if err != nil {
		return err
	}

	_, err = report.ParseAnnotateMode(c.Report.Annotate)
	if err != nil {
		return err
	}

	_, err = report.ParseFormat(c.Summary.Format)
	if err != nil {
		return err
	}

	return c.buckets().Validate()
}

// Options converts a validated configuration into pipeline options.
func (c *Config) Options() (pipeline.Options, error) {
	err := c.Validate()
	if err != nil {
		return pipeline.Options{}, err
	}

	backend, err := pipeline.ParseBackend(c.Backend)
	if err != nil {
		return pipeline.Options{}, err
	}

	annotate, err := report.ParseAnnotateMode(c.Report.Annotate)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		RepoPath:   c.Repo,
		Range:      c.Range(),
		Threshold:  c.Threshold,
		Filter:     c.filter(),
		Backend:    backend,
		Workers:    c.Workers,
		GitTimeout: c.GitTimeout,
		Report: report.Config{
			ReportDir:     c.Report.Dir,
			OutputPath:    c.Report.Output,
			Naming:        c.Naming(),
			Annotate:      annotate,
			Buckets:       c.buckets(),
			AbsoluteLinks: c.Report.AbsoluteLinks,
			Title:         c.Report.Title,
		},
	}, nil
}

func (c *Config) buckets() report.Buckets {
	return report.Buckets{High: c.Report.Buckets.High, Low: c.Report.Buckets.Low}
}

func (c *Config) filter() history.Filter {
	filter := history.DefaultFilter()

	if len(c.Filter.Extensions) > 0 {
		filter.Extensions = c.Filter.Extensions
	}

	filter.Include = c.Filter.Include
	filter.Exclude = c.Filter.Exclude
	filter.SkipVendored = c.Filter.SkipVendored

	return filter
}
