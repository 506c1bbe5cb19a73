package config

import (
	"github.com/Sumatoshi-tech/deltacov/pkg/coverage"
	"github.com/Sumatoshi-tech/deltacov/pkg/gitcli"
	"github.com/Sumatoshi-tech/deltacov/pkg/pipeline"
	"github.com/Sumatoshi-tech/deltacov/pkg/report"
)

// Run defaults.
const (
	DefaultRepo       = "."
	DefaultThreshold  = pipeline.DefaultThreshold
	DefaultBackend    = string(pipeline.BackendLibgit2)
	DefaultWorkers    = 4
	DefaultGitTimeout = gitcli.DefaultTimeout
)

// Report defaults.
const (
	DefaultReportDir     = "."
	DefaultMissingPrefix = coverage.DefaultMissingPrefix
	DefaultJoiner        = coverage.DefaultJoiner
	DefaultAnnotate      = string(report.AnnotateUncovered)
	DefaultHighPercent   = report.DefaultHighPercent
	DefaultLowPercent    = report.DefaultLowPercent
)

// Summary and telemetry defaults.
const (
	DefaultSummaryFormat = string(report.FormatText)
	DefaultPushJob       = "deltacov"
)
