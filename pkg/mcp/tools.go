package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/deltacov/pkg/config"
	"github.com/Sumatoshi-tech/deltacov/pkg/pipeline"
	"github.com/Sumatoshi-tech/deltacov/pkg/report"
)

// ToolNameCheck is the name of the delta coverage tool.
const ToolNameCheck = "deltacov_check"

const checkToolDescription = "Measure how many of the lines changed between two git revisions " +
	"are covered by tests, using per-file gcovr html-details reports. " +
	"Writes an annotated HTML report and returns the per-file and aggregate ratios."

// Sentinel errors for tool input validation.
var (
	// ErrEmptyRepoPath indicates the repo_path parameter is empty.
	ErrEmptyRepoPath = errors.New("repo_path parameter is required and must not be empty")
	// ErrRepoPathNotAbsolute indicates the repo_path is not an absolute path.
	ErrRepoPathNotAbsolute = errors.New("repo_path must be an absolute path")
	// ErrRepoNotFound indicates the repository path does not exist.
	ErrRepoNotFound = errors.New("repository path does not exist")
)

// CheckInput is the input schema for the deltacov_check tool.
type CheckInput struct {
	RepoPath      string   `json:"repo_path"                jsonschema:"absolute path to a git repository"`
	Since         string   `json:"since"                    jsonschema:"start revision of the range (exclusive)"`
	Until         string   `json:"until"                    jsonschema:"end revision of the range (inclusive)"`
	Prefix        string   `json:"prefix"                   jsonschema:"file name prefix of every coverage document"`
	ReportDir     string   `json:"report_dir,omitempty"     jsonschema:"directory of the coverage documents, relative to repo_path unless absolute (default: repo_path)"`
	MissingPrefix *string  `json:"missing_prefix,omitempty" jsonschema:"leading path removed before naming coverage documents (default: src/)"`
	Threshold     *float64 `json:"threshold,omitempty"      jsonschema:"minimum passing ratio between 0 and 1 (default: 0.2)"`
	Backend       string   `json:"backend,omitempty"        jsonschema:"history backend, libgit2 or cli (default: libgit2)"`
	Annotate      string   `json:"annotate,omitempty"       jsonschema:"rows flagged in annotated documents, uncovered or changed (default: uncovered)"`
	Output        string   `json:"output,omitempty"         jsonschema:"path of the aggregate HTML report, relative to repo_path unless absolute"`
}

// CheckOutput is the structured result of the deltacov_check tool.
type CheckOutput struct {
	Passed  bool            `json:"passed"`
	Summary *report.Payload `json:"summary,omitempty"`
}

func (s *Server) handleCheck(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input CheckInput,
) (*mcpsdk.CallToolResult, CheckOutput, error) {
	opts, err := input.options()
	if err != nil {
		return errorResult(err)
	}

	opts.Logger = s.logger
	opts.Tracer = s.tracer
	opts.Metrics = s.runMetrics

	outcome, err := s.run(ctx, opts)
	if err != nil {
		return errorResult(fmt.Errorf("delta coverage: %w", err))
	}

	return checkResult(outcome.Payload)
}

// options validates the input and converts it through the same
// configuration rules as the command line.
func (in CheckInput) options() (pipeline.Options, error) {
	err := validateRepoPath(in.RepoPath)
	if err != nil {
		return pipeline.Options{}, err
	}

	cfg := config.Config{
		Repo:       in.RepoPath,
		Since:      in.Since,
		Until:      in.Until,
		Threshold:  config.DefaultThreshold,
		Backend:    in.Backend,
		Workers:    config.DefaultWorkers,
		GitTimeout: config.DefaultGitTimeout,
		Report: config.ReportConfig{
			Dir:           resolve(in.RepoPath, in.ReportDir),
			Prefix:        in.Prefix,
			MissingPrefix: config.DefaultMissingPrefix,
			Joiner:        config.DefaultJoiner,
			Annotate:      in.Annotate,
			Buckets: config.BucketsConfig{
				High: config.DefaultHighPercent,
				Low:  config.DefaultLowPercent,
			},
		},
		Summary: config.SummaryConfig{Format: config.DefaultSummaryFormat},
	}

	if in.Output != "" {
		cfg.Report.Output = resolve(in.RepoPath, in.Output)
	}

	if in.MissingPrefix != nil {
		cfg.Report.MissingPrefix = *in.MissingPrefix
	}

	if in.Threshold != nil {
		cfg.Threshold = *in.Threshold
	}

	if cfg.Backend == "" {
		cfg.Backend = config.DefaultBackend
	}

	if cfg.Report.Annotate == "" {
		cfg.Report.Annotate = config.DefaultAnnotate
	}

	return cfg.Options()
}

func validateRepoPath(repoPath string) error {
	if repoPath == "" {
		return ErrEmptyRepoPath
	}

	if !filepath.IsAbs(repoPath) {
		return fmt.Errorf("%w: %s", ErrRepoPathNotAbsolute, repoPath)
	}

	_, err := os.Stat(repoPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, repoPath)
	}

	return nil
}

// resolve joins a relative path onto the repository path.
func resolve(repoPath, path string) string {
	if path == "" {
		return repoPath
	}

	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(repoPath, path)
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, CheckOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, CheckOutput{}, nil
}

// checkResult renders the payload as indented JSON text plus structured output.
func checkResult(payload report.Payload) (*mcpsdk.CallToolResult, CheckOutput, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, CheckOutput{Passed: payload.Passed, Summary: &payload}, nil
}
