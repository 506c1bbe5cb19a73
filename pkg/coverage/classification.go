package coverage

import (
	"maps"
	"slices"
)

// LineSet is a set of 1-based line numbers.
type LineSet map[int]struct{}

// NewLineSet builds a set from the given lines.
func NewLineSet(lines ...int) LineSet {
	set := make(LineSet, len(lines))

	for _, line := range lines {
		set[line] = struct{}{}
	}

	return set
}

// Has reports whether line is in the set.
func (s LineSet) Has(line int) bool {
	_, ok := s[line]

	return ok
}

// Sorted returns the lines in ascending order.
func (s LineSet) Sorted() []int {
	return slices.Sorted(maps.Keys(s))
}

// Classification is the per-line verdict of one coverage document.
// Covered and Uncovered are disjoint. Lines in neither set were not
// instrumented and never count towards coverage.
type Classification struct {
	// Found is false when no document exists for the source file.
	Found     bool
	Covered   LineSet
	Uncovered LineSet
}

// NotFound is the classification used when a document is missing.
func NotFound() Classification {
	return Classification{Covered: LineSet{}, Uncovered: LineSet{}}
}

// Relevant reports whether line was instrumented.
func (c Classification) Relevant(line int) bool {
	return c.Covered.Has(line) || c.Uncovered.Has(line)
}
