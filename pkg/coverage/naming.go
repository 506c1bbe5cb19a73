// Package coverage reads per-line coverage documents in the gcovr
// "html-details" layout and writes annotated copies of them.
package coverage

import (
	"errors"
	"path/filepath"
	"strings"
)

// Naming defaults.
const (
	DefaultMissingPrefix = "src/"
	DefaultJoiner        = "_"
	reportSuffix         = ".html"
)

// ErrEmptyPrefix is returned when no report file prefix is configured.
var ErrEmptyPrefix = errors.New("report prefix must not be empty")

// Naming describes how a source path maps to its coverage document name.
type Naming struct {
	// MissingPrefix is stripped from the front of the source path.
	MissingPrefix string
	// Prefix is prepended to every document name.
	Prefix string
	// Joiner replaces path separators.
	Joiner string
}

// DefaultNaming returns the gcovr naming convention for the given prefix.
func DefaultNaming(prefix string) Naming {
	return Naming{MissingPrefix: DefaultMissingPrefix, Prefix: prefix, Joiner: DefaultJoiner}
}

// Validate checks that a document name can be derived.
func (n Naming) Validate() error {
	if n.Prefix == "" {
		return ErrEmptyPrefix
	}

	return nil
}

// ReportName maps a slash-separated source path to its coverage document name:
// the missing prefix is stripped, separators become the joiner, the prefix is
// prepended and ".html" appended.
func ReportName(path string, naming Naming) string {
	name := strings.TrimPrefix(path, naming.MissingPrefix)
	name = strings.ReplaceAll(name, "/", naming.Joiner)

	return naming.Prefix + name + reportSuffix
}

// ReportPath joins the report directory and the document name for path.
func ReportPath(dir, path string, naming Naming) string {
	return filepath.Join(dir, ReportName(path, naming))
}
