package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// RevWalk wraps a libgit2 revision walker.
type RevWalk struct {
	walk *git2go.RevWalk
}

// Push adds a commit to start walking from.
func (w *RevWalk) Push(hash Hash) error {
	err := w.walk.Push(hash.ToOid())
	if err != nil {
		return fmt.Errorf("push to revwalk: %w", err)
	}

	return nil
}

// Hide excludes a commit and its ancestors from the walk.
func (w *RevWalk) Hide(hash Hash) error {
	err := w.walk.Hide(hash.ToOid())
	if err != nil {
		return fmt.Errorf("hide in revwalk: %w", err)
	}

	return nil
}

// Next returns the next commit hash in the walk.
// It returns false once the walk is exhausted.
func (w *RevWalk) Next() (Hash, bool, error) {
	oid := new(git2go.Oid)

	err := w.walk.Next(oid)
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
			return Hash{}, false, nil
		}

		return Hash{}, false, fmt.Errorf("revwalk next: %w", err)
	}

	return HashFromOid(oid), true, nil
}

// Free releases the walker resources.
func (w *RevWalk) Free() {
	if w.walk != nil {
		w.walk.Free()
		w.walk = nil
	}
}

// CommitsInRange returns the commits reachable from until but not from since,
// the same set as `git rev-list since..until`.
func (r *Repository) CommitsInRange(since, until Hash) (HashSet, error) {
	walk, err := r.Walk()
	if err != nil {
		return nil, err
	}
	defer walk.Free()

	walk.walk.Sorting(git2go.SortTopological)

	err = walk.Push(until)
	if err != nil {
		return nil, err
	}

	err = walk.Hide(since)
	if err != nil {
		return nil, err
	}

	commits := HashSet{}

	for {
		hash, ok, nextErr := walk.Next()
		if nextErr != nil {
			return nil, nextErr
		}

		if !ok {
			break
		}

		commits[hash] = struct{}{}
	}

	return commits, nil
}
