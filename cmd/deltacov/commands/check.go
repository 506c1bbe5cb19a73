package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/deltacov/pkg/config"
	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
	"github.com/Sumatoshi-tech/deltacov/pkg/pipeline"
	"github.com/Sumatoshi-tech/deltacov/pkg/report"
)

// checkCommand holds the flags that are not configuration keys.
type checkCommand struct {
	configPath string
	verbose    bool
	run        func(ctx context.Context, opts pipeline.Options) (pipeline.Outcome, error)
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return newCheckCommand(pipeline.Run)
}

func newCheckCommand(run func(ctx context.Context, opts pipeline.Options) (pipeline.Outcome, error)) *cobra.Command {
	cc := &checkCommand{run: run}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Measure the test coverage of the lines changed in a revision range",
		Long: `Collect the lines added or modified between --since and --until, look each
changed file up in the gcovr html-details reports under --report-dir, and write
an annotated aggregate report.

Exit status is 0 when the covered ratio reaches --threshold, 1 when it does
not, and 2 on configuration or runtime errors.`,
		Example: `  deltacov check --since v1.2 --until HEAD -r build/coverage --prefix utcov. -s
  deltacov check --config ci/deltacov.yaml --threshold 0.8 --format json -s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          cc.runE,
	}

	flags := cmd.Flags()
	flags.SetNormalizeFunc(normalizeFlagName)

	flags.StringVar(&cc.configPath, "config", "", "config file (default .deltacov.yaml in the working directory or $HOME)")
	flags.BoolVarP(&cc.verbose, "verbose", "v", false, "debug logging and full trace sampling")

	registerCheckFlags(flags)

	return cmd
}

func registerCheckFlags(flags *pflag.FlagSet) {
	flags.StringP("repo", "C", config.DefaultRepo, "path of the git repository")
	flags.String("since", "", "start revision of the range, exclusive (required)")
	flags.String("until", "", "end revision of the range, inclusive (required)")
	flags.Float64("threshold", config.DefaultThreshold, "minimum passing ratio of covered changed lines, between 0 and 1")
	flags.String("backend", config.DefaultBackend, "history backend: libgit2 or cli")
	flags.Int("workers", config.DefaultWorkers, "files processed concurrently")
	flags.Duration("git-timeout", config.DefaultGitTimeout, "timeout of each git invocation of the cli backend")

	flags.StringP("report-dir", "r", config.DefaultReportDir, "directory of the gcovr html-details documents")
	flags.String("prefix", "", "file name prefix of every coverage document (required)")
	flags.String("missing-prefix", config.DefaultMissingPrefix, "leading path removed from changed files before naming documents")
	flags.String("joiner", config.DefaultJoiner, "replacement for path separators in document names")
	flags.StringP("output", "o", "", "path of the aggregate HTML report (default <report-dir>/"+report.DefaultOutputName+")")
	flags.String("annotate", config.DefaultAnnotate, "rows flagged in annotated documents: uncovered or changed")
	flags.Bool("html-absolute-paths", false, "link annotated documents by absolute path")
	flags.String("title", "", "title of the aggregate report")

	flags.StringSlice("ext", nil, "extensions of the changed files to score (default C/C++ sources)")
	flags.StringSlice("include", nil, "glob patterns a changed file must match")
	flags.StringSlice("exclude", nil, "glob patterns of changed files to skip")
	flags.Bool("skip-vendored", false, "skip paths classified as vendored or third-party")

	flags.BoolP("print-summary", "s", false, "print the summary to stdout")
	flags.String("format", config.DefaultSummaryFormat, "summary format: text, json or yaml")

	flags.String("pushgateway", "", "Prometheus Pushgateway URL receiving the run metrics")
	flags.String("push-job", config.DefaultPushJob, "Pushgateway job name")
	flags.Bool("log-json", false, "JSON log output")
}

// normalizeFlagName accepts underscores in flag names, e.g. --missing_prefix.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func (cc *checkCommand) runE(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(cc.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(cfg.Summary.Format)
	if err != nil {
		return err
	}

	obsCfg := observabilityConfig(observability.ModeCLI, cc.verbose, cmd.ErrOrStderr())
	obsCfg.LogJSON = cfg.Telemetry.LogJSON
	obsCfg.PushgatewayURL = cfg.Telemetry.Pushgateway
	obsCfg.PushJob = cfg.Telemetry.PushJob

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	runMetrics, err := observability.NewRunMetrics(providers.Meter)
	if err != nil {
		return err
	}

	opts.Logger = providers.Logger
	opts.Tracer = providers.Tracer
	opts.Metrics = runMetrics

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := cc.run(ctx, opts)
	if err != nil {
		return fmt.Errorf("delta coverage: %w", err)
	}

	if cfg.Summary.Print {
		err = report.PrintSummary(cmd.OutOrStdout(), outcome.Payload, format)
		if err != nil {
			return err
		}
	}

	pushErr := providers.Push(ctx, map[string]string{"since": cfg.Since, "until": cfg.Until})
	if pushErr != nil {
		providers.Logger.Warn("pushgateway push failed", "error", pushErr)
	}

	if !outcome.Passed {
		return fmt.Errorf("%w: %.2f%% < %.2f%%", ErrBelowThreshold,
			outcome.Aggregate.Ratio*percent, cfg.Threshold*percent)
	}

	return nil
}

const percent = 100
