// Package history builds the set of changed lines per file for a revision range.
//
// A line counts as changed when the most recent commit that modified it lies
// inside the range, no matter how often it was touched. The version-control
// backend is reached only through [Provider], so both the libgit2 and the git
// CLI backends feed the same collection logic.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Sentinel errors.
var (
	// ErrMissingSince is returned when the start revision is empty.
	ErrMissingSince = errors.New("since revision is required")
	// ErrMissingUntil is returned when the end revision is empty.
	ErrMissingUntil = errors.New("until revision is required")
	// ErrInvalidRevision is returned for revisions that git would parse as an option.
	ErrInvalidRevision = errors.New("revision must not start with '-'")
	// ErrBinaryFile is returned by providers for paths with binary content.
	ErrBinaryFile = errors.New("binary file")
	// ErrFileNotFound is returned by providers when the path does not exist at until.
	ErrFileNotFound = errors.New("file not found at revision")
)

// defaultWorkers bounds concurrent per-file queries when Options.Workers is zero.
const defaultWorkers = 4

// Range is a revision range (Since, Until].
type Range struct {
	Since string
	Until string
}

// Validate checks that both ends of the range are set and cannot be read as
// command-line options.
func (r Range) Validate() error {
	if r.Since == "" {
		return ErrMissingSince
	}

	if r.Until == "" {
		return ErrMissingUntil
	}

	for _, rev := range []string{r.Since, r.Until} {
		if strings.HasPrefix(rev, "-") {
			return fmt.Errorf("%w: %q", ErrInvalidRevision, rev)
		}
	}

	return nil
}

// String formats the range the way git does.
func (r Range) String() string {
	return r.Since + ".." + r.Until
}

// Provider answers the two questions deltacov asks version control.
type Provider interface {
	// ChangedFiles lists paths whose content differs between Since and Until.
	ChangedFiles(ctx context.Context, rng Range) ([]string, error)
	// ChangedLines lists the 1-based line numbers of path at Until whose last
	// modifying commit is inside the range.
	ChangedLines(ctx context.Context, rng Range, path string) ([]int, error)
}

// ChangeSet maps a file path to its sorted, de-duplicated changed line numbers.
type ChangeSet map[string][]int

// Files returns the paths in sorted order.
func (c ChangeSet) Files() []string {
	files := make([]string, 0, len(c))
	for f := range c {
		files = append(files, f)
	}

	sort.Strings(files)

	return files
}

// Lines returns the total number of changed lines across all files.
func (c ChangeSet) Lines() int {
	total := 0
	for _, lines := range c {
		total += len(lines)
	}

	return total
}

// Options configures Collect.
type Options struct {
	Filter  Filter
	Workers int
	Logger  *slog.Logger
}

// Collect queries provider for the changed files of rng, keeps the ones that
// pass the filter and attributes their changed lines.
//
// A file whose line query fails is skipped with a warning. A file with no
// attributable lines is dropped. Only a failure to list the changed files
// aborts the collection.
func Collect(ctx context.Context, provider Provider, rng Range, opts Options) (ChangeSet, error) {
	err := rng.Validate()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	files, err := provider.ChangedFiles(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("list changed files %s: %w", rng, err)
	}

	selected := make([]string, 0, len(files))

	for _, file := range files {
		if !opts.Filter.Match(file) {
			logger.InfoContext(ctx, "file filtered out", "file", file)

			continue
		}

		selected = append(selected, file)
	}

	logger.DebugContext(ctx, "changed files", "range", rng.String(), "total", len(files), "selected", len(selected))

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	var (
		mu      sync.Mutex
		changes = ChangeSet{}
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, file := range selected {
		group.Go(func() error {
			lines, lineErr := provider.ChangedLines(groupCtx, rng, file)
			if lineErr != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}

				logger.WarnContext(groupCtx, "skipping file", "file", file, "error", lineErr)

				return nil
			}

			lines = normalizeLines(lines)
			if len(lines) == 0 {
				logger.DebugContext(groupCtx, "no attributable lines", "file", file)

				return nil
			}

			logger.DebugContext(groupCtx, "changed lines", "file", file, "count", len(lines))

			mu.Lock()
			changes[file] = lines
			mu.Unlock()

			return nil
		})
	}

	err = group.Wait()
	if err != nil {
		return nil, fmt.Errorf("collect changed lines: %w", err)
	}

	return changes, nil
}

// normalizeLines sorts, de-duplicates and drops non-positive line numbers.
func normalizeLines(lines []int) []int {
	out := slices.DeleteFunc(slices.Clone(lines), func(n int) bool { return n <= 0 })
	slices.Sort(out)

	return slices.Compact(out)
}
