package gitcli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/deltacov/pkg/history"
)

// hashHexLen is the length of a full SHA-1 commit id.
const hashHexLen = 40

// endOfOptions stops git from reading the following revisions as options.
const endOfOptions = "--end-of-options"

// ErrMalformedBlame is returned when porcelain blame output cannot be parsed.
var ErrMalformedBlame = errors.New("malformed blame output")

// Client implements [history.Provider] on top of a [Runner].
type Client struct {
	runner Runner
	dir    string

	mu      sync.Mutex
	commits map[history.Range]map[string]struct{}
}

// NewClient creates a client running git inside dir.
func NewClient(runner Runner, dir string) *Client {
	return &Client{
		runner:  runner,
		dir:     dir,
		commits: map[history.Range]map[string]struct{}{},
	}
}

// ChangedFiles runs `git diff --name-only` between the two revisions.
// Deleted paths are filtered out by --diff-filter.
func (c *Client) ChangedFiles(ctx context.Context, rng history.Range) ([]string, error) {
	err := rng.Validate()
	if err != nil {
		return nil, err
	}

	out, err := c.runner.Output(ctx, c.dir,
		"-c", "core.quotePath=false",
		"diff", "--name-only", "-z", "--diff-filter=ACMRT", "--ignore-submodules",
		endOfOptions, rng.Since, rng.Until, "--")
	if err != nil {
		return nil, err
	}

	return splitNul(out), nil
}

// ChangedLines blames path at Until and keeps lines last touched by a commit in the range.
func (c *Client) ChangedLines(ctx context.Context, rng history.Range, path string) ([]int, error) {
	err := rng.Validate()
	if err != nil {
		return nil, err
	}

	content, err := c.runner.Output(ctx, c.dir, "cat-file", "blob", rng.Until+":"+path)
	if err != nil {
		if errors.Is(err, ErrCommandFailed) {
			return nil, fmt.Errorf("%w: %s: %w", history.ErrFileNotFound, path, err)
		}

		return nil, err
	}

	if history.LooksBinary(content) {
		return nil, fmt.Errorf("%w: %s", history.ErrBinaryFile, path)
	}

	commits, err := c.rangeCommits(ctx, rng)
	if err != nil {
		return nil, err
	}

	if len(commits) == 0 {
		return nil, nil
	}

	out, err := c.runner.Output(ctx, c.dir, "blame", "--porcelain", endOfOptions, rng.Until, "--", path)
	if err != nil {
		return nil, err
	}

	attributions, err := ParsePorcelainBlame(out)
	if err != nil {
		return nil, fmt.Errorf("blame %s: %w", path, err)
	}

	var lines []int

	for _, attr := range attributions {
		if _, ok := commits[attr.Commit]; ok {
			lines = append(lines, attr.Line)
		}
	}

	return lines, nil
}

func (c *Client) rangeCommits(ctx context.Context, rng history.Range) (map[string]struct{}, error) {
	c.mu.Lock()
	cached, ok := c.commits[rng]
	c.mu.Unlock()

	if ok {
		return cached, nil
	}

	out, err := c.runner.Output(ctx, c.dir, "rev-list", endOfOptions, rng.Since+".."+rng.Until, "--")
	if err != nil {
		return nil, err
	}

	commits := map[string]struct{}{}

	for line := range strings.Lines(string(out)) {
		hash := strings.TrimSpace(line)
		if hash != "" {
			commits[hash] = struct{}{}
		}
	}

	c.mu.Lock()
	c.commits[rng] = commits
	c.mu.Unlock()

	return commits, nil
}

// LineAttribution ties one final-revision line to the commit that last touched it.
type LineAttribution struct {
	Commit string
	Line   int
}

// ParsePorcelainBlame reads `git blame --porcelain` output. Each header line is
// "<sha> <orig-line> <final-line> [<group-size>]"; metadata lines and the
// tab-prefixed content lines are skipped.
func ParsePorcelainBlame(out []byte) ([]LineAttribution, error) {
	var attributions []LineAttribution

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '\t' {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 || !isHexHash(fields[0]) {
			continue
		}

		final, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedBlame, line)
		}

		attributions = append(attributions, LineAttribution{Commit: fields[0], Line: final})
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("scan blame output: %w", err)
	}

	return attributions, nil
}

func isHexHash(s string) bool {
	if len(s) != hashHexLen {
		return false
	}

	for _, ch := range s {
		if !strings.ContainsRune("0123456789abcdef", ch) {
			return false
		}
	}

	return true
}

func splitNul(out []byte) []string {
	var paths []string

	for part := range bytes.SplitSeq(out, []byte{0}) {
		path := strings.TrimSpace(string(part))
		if path != "" {
			paths = append(paths, path)
		}
	}

	return paths
}
