package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ChangeStatus classifies a path change between two trees.
type ChangeStatus int

const (
	// ChangeAdded means the path only exists in the new tree.
	ChangeAdded ChangeStatus = iota
	// ChangeModified means the content differs.
	ChangeModified
	// ChangeRenamed means the path was renamed or copied.
	ChangeRenamed
	// ChangeDeleted means the path only exists in the old tree.
	ChangeDeleted
	// ChangeOther covers type changes and statuses deltacov does not score.
	ChangeOther
)

// String returns the single-letter git status code.
func (s ChangeStatus) String() string {
	switch s {
	case ChangeAdded:
		return "A"
	case ChangeModified:
		return "M"
	case ChangeRenamed:
		return "R"
	case ChangeDeleted:
		return "D"
	case ChangeOther:
		return "T"
	}

	return "?"
}

// PathChange is one file-level entry of a tree diff.
type PathChange struct {
	Status  ChangeStatus
	OldPath string
	NewPath string
	NewHash Hash
}

func statusFromDelta(delta git2go.Delta) ChangeStatus {
	switch delta {
	case git2go.DeltaAdded:
		return ChangeAdded
	case git2go.DeltaModified:
		return ChangeModified
	case git2go.DeltaRenamed, git2go.DeltaCopied:
		return ChangeRenamed
	case git2go.DeltaDeleted:
		return ChangeDeleted
	default:
		return ChangeOther
	}
}

// ChangedPaths diffs the trees of two commits and returns one entry per changed path,
// in the order libgit2 reports them (sorted by path).
func (r *Repository) ChangedPaths(since, until Hash) ([]PathChange, error) {
	oldTree, err := r.commitTree(since)
	if err != nil {
		return nil, err
	}
	defer oldTree.Free()

	newTree, err := r.commitTree(until)
	if err != nil {
		return nil, err
	}
	defer newTree.Free()

	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("get diff options: %w", err)
	}

	diff, err := r.repo.DiffTreeToTree(oldTree.tree, newTree.tree, &opts)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	defer func() {
		// Free errors are non-actionable in cleanup.
		_ = diff.Free()
	}()

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, fmt.Errorf("get num deltas: %w", err)
	}

	changes := make([]PathChange, 0, numDeltas)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			return nil, fmt.Errorf("get delta %d: %w", i, deltaErr)
		}

		changes = append(changes, PathChange{
			Status:  statusFromDelta(delta.Status),
			OldPath: delta.OldFile.Path,
			NewPath: delta.NewFile.Path,
			NewHash: HashFromOid(delta.NewFile.Oid),
		})
	}

	return changes, nil
}

// commitTree returns the root tree of the commit identified by hash.
func (r *Repository) commitTree(hash Hash) (*Tree, error) {
	commit, err := r.repo.LookupCommit(hash.ToOid())
	if err != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", hash, err)
	}
	defer commit.Free()

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("tree of commit %s: %w", hash, err)
	}

	return &Tree{tree: tree}, nil
}
