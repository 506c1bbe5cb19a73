package delta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/deltacov/pkg/coverage"
	"github.com/Sumatoshi-tech/deltacov/pkg/delta"
	"github.com/Sumatoshi-tech/deltacov/pkg/history"
)

func found(covered, uncovered []int) coverage.Classification {
	return coverage.Classification{
		Found:     true,
		Covered:   coverage.NewLineSet(covered...),
		Uncovered: coverage.NewLineSet(uncovered...),
	}
}

func scenarioC() (history.ChangeSet, map[string]coverage.Classification) {
	changes := history.ChangeSet{
		"a.cpp": {10, 20, 30},
		"b.cpp": {5, 6},
	}
	classifications := map[string]coverage.Classification{
		"a.cpp": found([]int{10, 30}, []int{20}),
		"b.cpp": coverage.NotFound(),
	}

	return changes, classifications
}

func TestCorrelate_ScenarioA(t *testing.T) {
	t.Parallel()

	results := delta.Correlate(
		history.ChangeSet{"a.cpp": {10, 20, 30}},
		map[string]coverage.Classification{"a.cpp": found([]int{10, 30}, []int{20})},
	)

	got := results["a.cpp"]
	assert.Equal(t, 3, got.Relevant)
	assert.Equal(t, 2, got.Covered)
	assert.Equal(t, []int{20}, got.UncoveredLines)
	assert.True(t, got.ReportFound)
	assert.Equal(t, []int{10, 20, 30}, got.RelevantLines())
}

func TestCorrelate_ScenarioBMissingReport(t *testing.T) {
	t.Parallel()

	for name, classifications := range map[string]map[string]coverage.Classification{
		"not found sentinel":  {"b.cpp": coverage.NotFound()},
		"absent from the map": {},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := delta.Correlate(history.ChangeSet{"b.cpp": {5, 6}}, classifications)["b.cpp"]

			assert.Equal(t, 2, got.Relevant)
			assert.Zero(t, got.Covered)
			assert.Equal(t, []int{5, 6}, got.UncoveredLines)
			assert.False(t, got.ReportFound)
		})
	}
}

func TestSummarize_ScenarioC(t *testing.T) {
	t.Parallel()

	changes, classifications := scenarioC()
	agg := delta.Summarize(delta.Correlate(changes, classifications))

	assert.Equal(t, 5, agg.Changed)
	assert.Equal(t, 2, agg.Covered)
	assert.Equal(t, 3, agg.Uncovered())
	assert.InDelta(t, 0.40, agg.Ratio, 1e-9)
	assert.False(t, agg.Passed(0.5))
	assert.True(t, agg.Passed(0.3))
	assert.True(t, agg.Passed(0.4), "ratio equal to the threshold passes")
}

func TestCorrelate_IgnoresUnchangedAndUninstrumented(t *testing.T) {
	t.Parallel()

	results := delta.Correlate(
		history.ChangeSet{"a.cpp": {1, 2, 3}},
		map[string]coverage.Classification{
			"a.cpp":     found([]int{1}, nil),
			"other.cpp": found([]int{1, 2}, []int{3}),
		},
	)

	require.Len(t, results, 1)
	assert.Equal(t, delta.FileResult{Relevant: 1, Covered: 1, CoveredLines: []int{1}, ReportFound: true}, results["a.cpp"])
}

func TestCorrelate_PartitionInvariant(t *testing.T) {
	t.Parallel()

	changes := history.ChangeSet{
		"a.cpp": {1, 2, 3, 4, 5, 6, 7, 8, 9},
		"b.cpp": {2, 4},
		"c.cpp": {100},
	}
	classifications := map[string]coverage.Classification{
		"a.cpp": found([]int{1, 3, 5, 7}, []int{2, 8, 11}),
		"c.cpp": found(nil, nil),
	}

	for file, result := range delta.Correlate(changes, classifications) {
		assert.Equal(t, result.Relevant, result.Covered+len(result.UncoveredLines), file)
		assert.IsIncreasing(t, append([]int{0}, result.UncoveredLines...), file)
	}
}

func TestCorrelate_Idempotent(t *testing.T) {
	t.Parallel()

	changes, classifications := scenarioC()

	first := delta.Correlate(changes, classifications)
	second := delta.Correlate(changes, classifications)

	assert.Equal(t, first, second)
	assert.Equal(t, delta.Summarize(first), delta.Summarize(second))
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	agg := delta.Summarize(nil)

	assert.Equal(t, delta.Aggregate{}, agg)
	assert.True(t, agg.Passed(0))
	assert.False(t, agg.Passed(0.2))
}

func TestRound2(t *testing.T) {
	t.Parallel()

	tests := []struct {
		covered, changed int
		want             float64
	}{
		{1, 8, 0.13},
		{2, 3, 0.67},
		{2, 5, 0.40},
		{1, 3, 0.33},
		{0, 0, 0},
		{7, 7, 1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, delta.Ratio(tt.covered, tt.changed), 1e-9, "%d/%d", tt.covered, tt.changed)
	}

	assert.InDelta(t, 12.5, delta.Round2(12.5), 1e-9)
	assert.InDelta(t, -0.13, delta.Round2(-0.125), 1e-9)
}

func TestFileResultPercent(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 66.67, delta.FileResult{Relevant: 3, Covered: 2}.Percent(), 1e-9)
	assert.Zero(t, delta.FileResult{}.Percent())
	assert.Equal(t, []string{"a.cpp", "b.cpp"}, delta.Files(map[string]delta.FileResult{"b.cpp": {}, "a.cpp": {}}))
}
