// Package delta intersects changed lines with coverage classifications.
//
// Every function here is pure: the same inputs always produce the same results.
package delta

import (
	"math"
	"slices"

	"github.com/Sumatoshi-tech/deltacov/pkg/coverage"
	"github.com/Sumatoshi-tech/deltacov/pkg/history"
)

// FileResult is the delta coverage of one changed file.
// Relevant always equals Covered + len(UncoveredLines).
type FileResult struct {
	Relevant       int   `json:"relevant"        yaml:"relevant"`
	Covered        int   `json:"covered"         yaml:"covered"`
	UncoveredLines []int `json:"uncovered_lines" yaml:"uncovered_lines"`
	// CoveredLines lists the changed lines credited as covered.
	CoveredLines []int `json:"-" yaml:"-"`
	// ReportFound is false when no coverage document existed for the file.
	ReportFound bool `json:"report_found" yaml:"report_found"`
}

// RelevantLines returns the changed instrumented lines in ascending order.
func (r FileResult) RelevantLines() []int {
	lines := slices.Concat(r.CoveredLines, r.UncoveredLines)
	slices.Sort(lines)

	return lines
}

// Percent is the file's coverage as a percentage rounded to two decimals.
func (r FileResult) Percent() float64 {
	if r.Relevant == 0 {
		return 0
	}

	return Round2(float64(r.Covered) / float64(r.Relevant) * 100)
}

// Correlate scores every file of the change set. A file without a
// classification, or whose document was not found, has every changed line
// counted as uncovered. Classified files absent from the change set are ignored.
func Correlate(changes history.ChangeSet, classifications map[string]coverage.Classification) map[string]FileResult {
	results := make(map[string]FileResult, len(changes))

	for file, lines := range changes {
		results[file] = correlateFile(lines, classifications[file])
	}

	return results
}

func correlateFile(lines []int, classification coverage.Classification) FileResult {
	if !classification.Found {
		uncovered := slices.Clone(lines)
		slices.Sort(uncovered)
		uncovered = slices.Compact(uncovered)

		return FileResult{Relevant: len(uncovered), UncoveredLines: uncovered}
	}

	result := FileResult{ReportFound: true}

	for _, line := range lines {
		switch {
		case classification.Uncovered.Has(line):
			result.UncoveredLines = append(result.UncoveredLines, line)
		case classification.Covered.Has(line):
			result.CoveredLines = append(result.CoveredLines, line)
		}
	}

	slices.Sort(result.UncoveredLines)
	result.UncoveredLines = slices.Compact(result.UncoveredLines)
	slices.Sort(result.CoveredLines)
	result.CoveredLines = slices.Compact(result.CoveredLines)

	result.Covered = len(result.CoveredLines)
	result.Relevant = result.Covered + len(result.UncoveredLines)

	return result
}

// Aggregate sums the results of a run.
type Aggregate struct {
	Changed int     `json:"changed" yaml:"changed"`
	Covered int     `json:"covered" yaml:"covered"`
	Ratio   float64 `json:"ratio"   yaml:"ratio"`
}

// Summarize totals the per-file results. The ratio is rounded with Round2 and
// an empty run has a ratio of zero.
func Summarize(results map[string]FileResult) Aggregate {
	var agg Aggregate

	for _, result := range results {
		agg.Changed += result.Relevant
		agg.Covered += result.Covered
	}

	agg.Ratio = Ratio(agg.Covered, agg.Changed)

	return agg
}

// Ratio is covered / max(changed, 1), rounded to two decimals.
func Ratio(covered, changed int) float64 {
	return Round2(float64(covered) / float64(max(changed, 1)))
}

// Uncovered is the number of changed relevant lines not covered.
func (a Aggregate) Uncovered() int {
	return a.Changed - a.Covered
}

// Passed reports whether the rounded ratio reaches the threshold.
func (a Aggregate) Passed(threshold float64) bool {
	return a.Ratio >= threshold
}

// Round2 rounds to two decimals, halves away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Files returns the result keys in ascending order.
func Files(results map[string]FileResult) []string {
	files := make([]string, 0, len(results))
	for file := range results {
		files = append(files, file)
	}

	slices.Sort(files)

	return files
}
