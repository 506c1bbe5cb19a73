package gitlib

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrNotAFile is returned when a path resolves to something other than file content.
var ErrNotAFile = errors.New("path is not a regular file")

// BlameHunk is a run of consecutive lines last modified by the same commit.
type BlameHunk struct {
	Commit    Hash
	StartLine int // 1-based, in the blamed revision.
	Lines     int
	Boundary  bool
}

// BlameFile attributes every line of path, as of commit newest, to the commit
// that last modified it.
func (r *Repository) BlameFile(path string, newest Hash) ([]BlameHunk, error) {
	opts, err := git2go.DefaultBlameOptions()
	if err != nil {
		return nil, fmt.Errorf("get blame options: %w", err)
	}

	opts.NewestCommit = newest.ToOid()

	blame, err := r.repo.BlameFile(path, &opts)
	if err != nil {
		return nil, fmt.Errorf("blame %s: %w", path, err)
	}

	defer func() {
		_ = blame.Free()
	}()

	count := blame.HunkCount()
	hunks := make([]BlameHunk, 0, count)

	for i := range count {
		hunk, hunkErr := blame.HunkByIndex(i)
		if hunkErr != nil {
			return nil, fmt.Errorf("blame %s hunk %d: %w", path, i, hunkErr)
		}

		hunks = append(hunks, BlameHunk{
			Commit:    HashFromOid(hunk.FinalCommitId),
			StartLine: int(hunk.FinalStartLineNumber),
			Lines:     int(hunk.LinesInHunk),
			Boundary:  hunk.Boundary,
		})
	}

	return hunks, nil
}

// LinesFromCommits expands blame hunks into the sorted line numbers whose
// commit is in commits.
func LinesFromCommits(hunks []BlameHunk, commits HashSet) []int {
	var lines []int

	for _, hunk := range hunks {
		if !commits.Contains(hunk.Commit) {
			continue
		}

		for offset := range hunk.Lines {
			lines = append(lines, hunk.StartLine+offset)
		}
	}

	return lines
}

// FileBlob returns the blob stored at path in the tree of commit.
func (r *Repository) FileBlob(commit Hash, path string) (*Blob, error) {
	tree, err := r.commitTree(commit)
	if err != nil {
		return nil, err
	}
	defer tree.Free()

	entry, err := tree.EntryByPath(path)
	if err != nil {
		return nil, err
	}

	if !entry.IsBlob() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	return r.LookupBlob(entry.Hash())
}
