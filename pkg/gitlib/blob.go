package gitlib

import (
	git2go "github.com/libgit2/git2go/v34"

	"github.com/Sumatoshi-tech/deltacov/pkg/history"
)

// Blob wraps a libgit2 blob.
type Blob struct {
	blob *git2go.Blob
}

// Contents returns the blob contents.
func (b *Blob) Contents() []byte {
	return b.blob.Contents()
}

// IsBinary reports whether the blob looks like binary content.
func (b *Blob) IsBinary() bool {
	return history.LooksBinary(b.Contents())
}

// Free releases the blob resources.
func (b *Blob) Free() {
	if b.blob != nil {
		b.blob.Free()
		b.blob = nil
	}
}
