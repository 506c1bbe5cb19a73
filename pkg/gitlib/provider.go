package gitlib

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Sumatoshi-tech/deltacov/pkg/history"
)

// tracerName names the tracer of libgit2 calls.
const tracerName = "deltacov.gitlib"

// Provider answers history queries from a libgit2 repository.
//
// libgit2 repository handles are not safe for concurrent use, so every query
// holds the provider lock. Resolved ranges are cached for the provider's lifetime.
type Provider struct {
	mu     sync.Mutex
	repo   *Repository
	ranges map[history.Range]*resolvedRange
}

type resolvedRange struct {
	since   Hash
	until   Hash
	commits HashSet
}

// NewProvider wraps an open repository. The caller keeps ownership of repo.
func NewProvider(repo *Repository) *Provider {
	return &Provider{repo: repo, ranges: map[history.Range]*resolvedRange{}}
}

// ChangedFiles lists the paths present at Until whose content differs from Since.
// Deleted paths are omitted since they have no current-revision lines.
func (p *Provider) ChangedFiles(ctx context.Context, rng history.Range) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	resolved, err := p.resolve(ctx, rng)
	if err != nil {
		return nil, err
	}

	changes, err := p.repo.ChangedPaths(resolved.since, resolved.until)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(changes))

	for _, change := range changes {
		if change.Status == ChangeDeleted {
			continue
		}

		files = append(files, change.NewPath)
	}

	return files, nil
}

// ChangedLines blames path at Until and keeps lines whose commit is in the range.
func (p *Provider) ChangedLines(ctx context.Context, rng history.Range, path string) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	resolved, err := p.resolve(ctx, rng)
	if err != nil {
		return nil, err
	}

	blob, err := p.repo.FileBlob(resolved.until, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", history.ErrFileNotFound, path, err)
	}

	binary := blob.IsBinary()
	blob.Free()

	if binary {
		return nil, fmt.Errorf("%w: %s", history.ErrBinaryFile, path)
	}

	if len(resolved.commits) == 0 {
		return nil, nil
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "git.blame")
	span.SetAttributes(attribute.Int("git.range.commits", len(resolved.commits)))

	hunks, err := p.repo.BlameFile(path, resolved.until)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()

		return nil, err
	}

	span.SetAttributes(attribute.Int("git.blame.hunks", len(hunks)))
	span.End()

	return LinesFromCommits(hunks, resolved.commits), nil
}

func (p *Provider) resolve(ctx context.Context, rng history.Range) (*resolvedRange, error) {
	if cached, ok := p.ranges[rng]; ok {
		return cached, nil
	}

	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	since, err := p.repo.ResolveCommit(rng.Since)
	if err != nil {
		return nil, err
	}

	until, err := p.repo.ResolveCommit(rng.Until)
	if err != nil {
		return nil, err
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "git.revwalk")
	defer span.End()

	commits, err := p.repo.CommitsInRange(since, until)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("git.range.commits", len(commits)))

	resolved := &resolvedRange{since: since, until: until, commits: commits}
	p.ranges[rng] = resolved

	return resolved, nil
}
