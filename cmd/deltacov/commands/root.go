// Package commands implements the deltacov cobra commands.
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/deltacov/pkg/version"
)

// Process exit codes.
const (
	// ExitPass means the delta coverage reached the threshold.
	ExitPass = 0
	// ExitBelowThreshold means the delta coverage is under the threshold.
	ExitBelowThreshold = 1
	// ExitFatal covers configuration errors and runtime failures.
	ExitFatal = 2
)

// ErrBelowThreshold is returned by check when the run fails its threshold.
var ErrBelowThreshold = errors.New("delta coverage below threshold")

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitPass
	case errors.Is(err, ErrBelowThreshold):
		return ExitBelowThreshold
	default:
		return ExitFatal
	}
}

// NewRootCommand creates the deltacov root command with every subcommand.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deltacov",
		Short: "Delta coverage - test coverage of the lines changed between two revisions",
		Long: `deltacov measures which of the lines changed between two git revisions are
covered by tests, using per-file gcovr html-details reports.

Commands:
  check     Score a revision range and write the annotated report
  mcp       Serve the check as an MCP tool`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("deltacov {{.Version}}\n")

	rootCmd.AddCommand(NewCheckCommand())
	rootCmd.AddCommand(NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deltacov %s\n", version.String())
			if err != nil {
				return fmt.Errorf("write version: %w", err)
			}

			return nil
		},
	}
}
