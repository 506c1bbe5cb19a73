package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/deltacov/pkg/delta"
)

// ErrUnknownFormat is returned for summary formats other than text, json and yaml.
var ErrUnknownFormat = errors.New("unknown summary format")

// Format selects the summary encoding.
type Format string

// Summary formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name; empty selects FormatText.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// maxListedLines caps the uncovered lines shown per file in the text summary.
const maxListedLines = 12

// FileSummary is the per-file part of a Payload.
type FileSummary struct {
	File           string  `json:"file"                yaml:"file"`
	Relevant       int     `json:"relevant"            yaml:"relevant"`
	Covered        int     `json:"covered"             yaml:"covered"`
	Percent        float64 `json:"percent"             yaml:"percent"`
	Bucket         Bucket  `json:"bucket,omitempty"    yaml:"bucket,omitempty"`
	UncoveredLines []int   `json:"uncovered_lines"     yaml:"uncovered_lines"`
	ReportFound    bool    `json:"report_found"        yaml:"report_found"`
	Annotated      string  `json:"annotated,omitempty" yaml:"annotated,omitempty"`
}

// Payload is the machine-readable result of a run.
type Payload struct {
	Since     string        `json:"since"            yaml:"since"`
	Until     string        `json:"until"            yaml:"until"`
	Threshold float64       `json:"threshold"        yaml:"threshold"`
	Passed    bool          `json:"passed"           yaml:"passed"`
	Changed   int           `json:"changed"          yaml:"changed"`
	Covered   int           `json:"covered"          yaml:"covered"`
	Uncovered int           `json:"uncovered"        yaml:"uncovered"`
	Ratio     float64       `json:"ratio"            yaml:"ratio"`
	Report    string        `json:"report,omitempty" yaml:"report,omitempty"`
	Files     []FileSummary `json:"files"            yaml:"files"`
}

// NewPayload builds the payload of a run. Files without relevant changed
// lines are omitted; the rest are sorted by path.
func NewPayload(run Run) Payload {
	payload := Payload{
		Since:     run.Range.Since,
		Until:     run.Range.Until,
		Threshold: run.Threshold,
		Passed:    run.Aggregate.Passed(run.Threshold),
		Changed:   run.Aggregate.Changed,
		Covered:   run.Aggregate.Covered,
		Uncovered: run.Aggregate.Uncovered(),
		Ratio:     run.Aggregate.Ratio,
		Files:     []FileSummary{},
	}

	for _, file := range delta.Files(run.Results) {
		result := run.Results[file]
		if result.Relevant == 0 {
			continue
		}

		uncovered := result.UncoveredLines
		if uncovered == nil {
			uncovered = []int{}
		}

		payload.Files = append(payload.Files, FileSummary{
			File:           file,
			Relevant:       result.Relevant,
			Covered:        result.Covered,
			Percent:        result.Percent(),
			UncoveredLines: uncovered,
			ReportFound:    result.ReportFound,
		})
	}

	return payload
}

// PrintSummary writes the payload in the requested format.
func PrintSummary(w io.Writer, payload Payload, format Format) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		err := encoder.Encode(payload)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}

		return nil
	case FormatYAML:
		data, err := yaml.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}

		_, err = w.Write(data)
		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}

		return nil
	case FormatText, "":
		return printText(w, payload)
	}

	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func printText(w io.Writer, payload Payload) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"File", "Changed", "Covered", "Coverage", "Uncovered lines"})

	for _, file := range payload.Files {
		tbl.AppendRow(table.Row{
			fileLabel(file),
			humanize.Comma(int64(file.Relevant)),
			humanize.Comma(int64(file.Covered)),
			fmt.Sprintf("%.2f%%", file.Percent),
			formatLines(file.UncoveredLines),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d files", len(payload.Files)),
		humanize.Comma(int64(payload.Changed)),
		humanize.Comma(int64(payload.Covered)),
		fmt.Sprintf("%.2f%%", payload.Ratio*percentScale),
		"",
	})

	_, err := fmt.Fprintf(w, "Delta coverage %s..%s\n%s\n", payload.Since, payload.Until, tbl.Render())
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	verdict := color.New(color.FgGreen)
	label := "PASS"

	if !payload.Passed {
		verdict = color.New(color.FgRed)
		label = "FAIL"
	}

	_, err = verdict.Fprintf(w, "%s: %.2f%% of %s changed lines covered (threshold %.2f%%)\n",
		label, payload.Ratio*percentScale, humanize.Comma(int64(payload.Changed)), payload.Threshold*percentScale)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if payload.Report != "" {
		_, err = fmt.Fprintf(w, "Report: %s\n", payload.Report)
		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	return nil
}

func fileLabel(file FileSummary) string {
	if file.ReportFound {
		return file.File
	}

	return file.File + " (no report)"
}

func formatLines(lines []int) string {
	shown := lines
	if len(shown) > maxListedLines {
		shown = shown[:maxListedLines]
	}

	parts := make([]string, len(shown))
	for i, line := range shown {
		parts[i] = strconv.Itoa(line)
	}

	text := strings.Join(parts, ",")
	if len(lines) > maxListedLines {
		text += fmt.Sprintf(" (+%d)", len(lines)-maxListedLines)
	}

	return text
}
