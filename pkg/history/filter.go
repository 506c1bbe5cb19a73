package history

import (
	"bytes"
	"path"
	"strings"

	"github.com/src-d/enry/v2"
)

// DefaultExtensions are the C/C++ source and header extensions scored by default.
var DefaultExtensions = []string{"c", "cc", "cpp", "cxx", "h", "hh", "hpp", "hxx"}

// Filter selects which changed files are scored.
type Filter struct {
	// Extensions without the leading dot; empty accepts every extension.
	Extensions []string
	// Include keeps only paths matching at least one pattern, when non-empty.
	Include []string
	// Exclude drops paths matching any pattern.
	Exclude []string
	// SkipVendored drops paths enry classifies as vendored. Off by default:
	// enry also matches directories such as cache/, dist/ and external/.
	SkipVendored bool
}

// DefaultFilter returns the extension-only filter for C/C++ sources.
func DefaultFilter() Filter {
	return Filter{Extensions: DefaultExtensions}
}

// Apply returns the paths accepted by the filter, preserving order.
func (f Filter) Apply(files []string) []string {
	out := make([]string, 0, len(files))

	for _, file := range files {
		if f.Match(file) {
			out = append(out, file)
		}
	}

	return out
}

// Match reports whether a single slash-separated path is accepted.
func (f Filter) Match(file string) bool {
	if file == "" {
		return false
	}

	if !f.matchExtension(file) {
		return false
	}

	if f.SkipVendored && enry.IsVendor(file) {
		return false
	}

	if len(f.Include) > 0 && !matchAny(f.Include, file) {
		return false
	}

	return !matchAny(f.Exclude, file)
}

func (f Filter) matchExtension(file string) bool {
	if len(f.Extensions) == 0 {
		return true
	}

	ext := strings.TrimPrefix(path.Ext(file), ".")
	if ext == "" {
		return false
	}

	for _, want := range f.Extensions {
		if strings.EqualFold(strings.TrimPrefix(want, "."), ext) {
			return true
		}
	}

	return false
}

// matchAny matches path.Match patterns; a trailing "/**" matches the whole subtree.
func matchAny(patterns []string, file string) bool {
	for _, pattern := range patterns {
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			if file == dir || strings.HasPrefix(file, dir+"/") {
				return true
			}

			continue
		}

		matched, err := path.Match(pattern, file)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// binarySniffLen is how many leading bytes are inspected for NUL, matching git's heuristic.
const binarySniffLen = 8000

// LooksBinary reports whether data contains a NUL byte within the sniff window.
func LooksBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}

	return bytes.IndexByte(data, 0) >= 0
}
