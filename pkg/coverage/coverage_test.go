package coverage_test

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/deltacov/pkg/coverage"
)

func row(line int, class string) string {
	return fmt.Sprintf("<tr>\n"+
		"<td align=\"right\" class=\"lineno\"><pre>%d</pre></td>\n"+
		"<td align=\"right\" class=\"linebranch\"></td>\n"+
		"<td align=\"right\" class=\"linecount %s\"><pre>1</pre></td>\n"+
		"<td align=\"left\" class=\"src %s\"><pre>code();</pre></td>\n"+
		"</tr>\n", line, class, class)
}

func document(rows ...string) string {
	return "<html><body><table>\n" + strings.Join(rows, "") + "</table></body></html>\n"
}

// scenarioA covers lines 10 and 30, leaves 20 uncovered and 15 uninstrumented.
func scenarioA() string {
	return document(row(10, "coveredLine"), row(15, ""), row(20, "uncoveredLine"), row(30, "coveredLine"))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReportName(t *testing.T) {
	t.Parallel()

	naming := coverage.Naming{MissingPrefix: "src/", Prefix: "utcov.", Joiner: "_"}

	assert.Equal(t, "utcov.dir1_dir1_1_func.cpp.html", coverage.ReportName("src/dir1/dir1_1/func.cpp", naming))
	assert.Equal(t, "utcov.lib_a.c.html", coverage.ReportName("lib/a.c", naming))
	assert.Equal(t, "utcov.a.c.html", coverage.ReportName("a.c", coverage.DefaultNaming("utcov.")))
	assert.Equal(t, "p.x-y.c.html", coverage.ReportName("x/y.c", coverage.Naming{Prefix: "p.", Joiner: "-"}))
}

func TestNamingValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, coverage.Naming{}.Validate(), coverage.ErrEmptyPrefix)
	require.NoError(t, coverage.DefaultNaming("x.").Validate())
}

func TestParse_ScenarioA(t *testing.T) {
	t.Parallel()

	got, err := coverage.Parse(strings.NewReader(scenarioA()), quietLogger())
	require.NoError(t, err)

	assert.True(t, got.Found)
	assert.Equal(t, []int{10, 30}, got.Covered.Sorted())
	assert.Equal(t, []int{20}, got.Uncovered.Sorted())
	assert.False(t, got.Relevant(15))
}

func TestParse_NewerGcovrLayout(t *testing.T) {
	t.Parallel()

	doc := `<table><tr class="source-line">
<td class="lineno"><a id="l7" href="#l7">7</a></td>
<td class="linebranch"></td>
<td class="linecount coveredLine">3</td>
<td class="src coveredLine">x++;</td>
</tr><tr class="source-line">
<td class="lineno"><a id="l8" href="#l8">8</a></td>
<td class="linecount uncoveredLine"></td>
</tr></table>`

	got, err := coverage.Parse(strings.NewReader(doc), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []int{7}, got.Covered.Sorted())
	assert.Equal(t, []int{8}, got.Uncovered.Sorted())
}

func TestParse_NonNumericLineNumberIgnored(t *testing.T) {
	t.Parallel()

	doc := `<table><tr><td class="lineno"><pre>abc</pre></td><td class="linecount coveredLine"></td></tr></table>`

	got, err := coverage.Parse(strings.NewReader(doc), quietLogger())
	require.NoError(t, err)
	assert.Empty(t, got.Covered)
	assert.Empty(t, got.Uncovered)
}

func TestParse_OneClassificationPerRow(t *testing.T) {
	t.Parallel()

	doc := `<table><tr><td class="lineno">4</td>` +
		`<td class="linecount uncoveredLine"></td><td class="linecount coveredLine"></td></tr></table>`

	got, err := coverage.Parse(strings.NewReader(doc), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got.Uncovered.Sorted())
	assert.Empty(t, got.Covered)
}

func TestParse_DuplicateLineLastWriterWins(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&logs, nil))

	got, err := coverage.Parse(strings.NewReader(document(row(3, "uncoveredLine"), row(3, "coveredLine"))), logger)
	require.NoError(t, err)

	assert.Equal(t, []int{3}, got.Covered.Sorted())
	assert.Empty(t, got.Uncovered)
	assert.Contains(t, logs.String(), "classified more than once")
}

func TestParse_TruncatedMarkupKeepsRecognizedRows(t *testing.T) {
	t.Parallel()

	doc := scenarioA()
	truncated := doc[:strings.Index(doc, ">30<")]

	got, err := coverage.Parse(strings.NewReader(truncated), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []int{10}, got.Covered.Sorted())
	assert.Equal(t, []int{20}, got.Uncovered.Sorted())
}

func TestParse_GarbageDoesNotPanic(t *testing.T) {
	t.Parallel()

	inputs := []string{"", "<td class=", "<<<>>></td></tr>", `<td class="linecount coveredLine">`, "\x00\x01<tr><td"}

	for _, input := range inputs {
		assert.NotPanics(t, func() {
			got, err := coverage.Parse(strings.NewReader(input), quietLogger())
			require.NoError(t, err)
			assert.Empty(t, got.Covered)
		})
	}
}

func TestParse_ClassificationDisjoint(t *testing.T) {
	t.Parallel()

	rows := make([]string, 0, 40)
	for i := range 40 {
		class := "coveredLine"
		if i%3 == 0 {
			class = "uncoveredLine"
		}

		rows = append(rows, row(i%17+1, class))
	}

	got, err := coverage.Parse(strings.NewReader(document(rows...)), quietLogger())
	require.NoError(t, err)

	for line := range got.Covered {
		assert.False(t, got.Uncovered.Has(line), "line %d in both sets", line)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	naming := coverage.DefaultNaming("utcov.")

	err := os.WriteFile(filepath.Join(dir, "utcov.a.cpp.html"), []byte(scenarioA()), 0o644)
	require.NoError(t, err)

	found, err := coverage.Load(dir, "src/a.cpp", naming, quietLogger())
	require.NoError(t, err)
	assert.True(t, found.Found)
	assert.Equal(t, []int{20}, found.Uncovered.Sorted())

	missing, err := coverage.Load(dir, "src/b.cpp", naming, quietLogger())
	require.NoError(t, err)
	assert.False(t, missing.Found)
	assert.Empty(t, missing.Covered)
	assert.Empty(t, missing.Uncovered)

	_, err = coverage.Open(dir, "src/b.cpp", naming)
	require.ErrorIs(t, err, coverage.ErrReportNotFound)
}

func TestAnnotate_OnlyFlaggedRowsChange(t *testing.T) {
	t.Parallel()

	src := scenarioA()

	var out bytes.Buffer

	rewritten, err := coverage.Annotate(strings.NewReader(src), &out, coverage.NewLineSet(20), coverage.DefaultMarker())
	require.NoError(t, err)
	assert.Equal(t, 1, rewritten)

	srcLines := strings.Split(src, "\n")
	outLines := strings.Split(out.String(), "\n")
	require.Len(t, outLines, len(srcLines))

	changed := 0

	for i := range srcLines {
		if srcLines[i] == outLines[i] {
			continue
		}

		changed++

		assert.Equal(t,
			`<td align="right" class="lineno" style="background:red"><pre>NN  20</pre></td>`,
			outLines[i])
	}

	assert.Equal(t, 1, changed)
}

func TestAnnotate_AnchorLayout(t *testing.T) {
	t.Parallel()

	src := `<td class="lineno"><a id="l8" href="#l8">8</a></td>` + "\n"

	var out bytes.Buffer

	_, err := coverage.Annotate(strings.NewReader(src), &out, coverage.NewLineSet(8), coverage.DefaultMarker())
	require.NoError(t, err)

	assert.Equal(t, `<td class="lineno" style="background:red"><a id="l8" href="#l8">NN  8</a></td>`+"\n", out.String())
}

func TestAnnotate_NoTrailingNewline(t *testing.T) {
	t.Parallel()

	src := "<p>a</p>\n<p>b</p>"

	var out bytes.Buffer

	_, err := coverage.Annotate(strings.NewReader(src), &out, coverage.NewLineSet(1), coverage.DefaultMarker())
	require.NoError(t, err)
	assert.Equal(t, src, out.String())
}

func TestAnnotateFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "utcov.a.cpp.html")
	require.NoError(t, os.WriteFile(srcPath, []byte(scenarioA()), 0o644))

	dstPath := filepath.Join(dir, "out", coverage.AnnotatedName("utcov.a.cpp.html"))

	rewritten, err := coverage.AnnotateFile(srcPath, dstPath, coverage.NewLineSet(10, 30), coverage.DefaultMarker())
	require.NoError(t, err)
	assert.Equal(t, 2, rewritten)

	data, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "NN  "))
	assert.Equal(t, "new_utcov.a.cpp.html", filepath.Base(dstPath))
}
