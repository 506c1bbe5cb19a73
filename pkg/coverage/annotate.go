package coverage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// AnnotatedPrefix is prepended to the name of every annotated document.
const AnnotatedPrefix = "new_"

// lineNumberCell matches the line-number cell of a gcovr row and captures the number.
var lineNumberCell = regexp.MustCompile(`<td[^>]*\bclass="lineno"[^>]*>(?:\s*<[^>]+>)*\s*(\d+)`)

const classAttr = `class="lineno"`

// Marker describes how a flagged row is highlighted.
type Marker struct {
	// Style is inserted as a style attribute on the line-number cell.
	Style string
	// Prefix is written in front of the line number.
	Prefix string
}

// DefaultMarker paints the line number red and prefixes it with "NN".
func DefaultMarker() Marker {
	return Marker{Style: "background:red", Prefix: "NN  "}
}

// AnnotatedName returns the annotated document name for a report name.
func AnnotatedName(reportName string) string {
	return AnnotatedPrefix + reportName
}

// Annotate copies src to dst line by line, rewriting only the rows whose line
// number is in lines. Every other byte is copied unchanged.
func Annotate(src io.Reader, dst io.Writer, lines LineSet, marker Marker) (int, error) {
	reader := bufio.NewReader(src)
	writer := bufio.NewWriter(dst)
	rewritten := 0

	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			out, flagged := markLine(line, lines, marker)
			if flagged {
				rewritten++
			}

			_, err := writer.WriteString(out)
			if err != nil {
				return rewritten, fmt.Errorf("write annotated report: %w", err)
			}
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			return rewritten, fmt.Errorf("read coverage report: %w", readErr)
		}
	}

	err := writer.Flush()
	if err != nil {
		return rewritten, fmt.Errorf("flush annotated report: %w", err)
	}

	return rewritten, nil
}

// AnnotateFile writes an annotated copy of the document at srcPath to dstPath.
func AnnotateFile(srcPath, dstPath string, lines LineSet, marker Marker) (int, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open coverage report: %w", err)
	}
	defer src.Close()

	err = os.MkdirAll(filepath.Dir(dstPath), 0o755)
	if err != nil {
		return 0, fmt.Errorf("create report directory: %w", err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("create annotated report: %w", err)
	}

	rewritten, err := Annotate(src, dst, lines, marker)

	closeErr := dst.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("close annotated report: %w", closeErr)
	}

	return rewritten, err
}

func markLine(line string, lines LineSet, marker Marker) (string, bool) {
	match := lineNumberCell.FindStringSubmatchIndex(line)
	if match == nil {
		return line, false
	}

	number, err := strconv.Atoi(line[match[2]:match[3]])
	if err != nil || !lines.Has(number) {
		return line, false
	}

	head := line[:match[1]]
	tail := line[match[1]:]
	digitsAt := match[2]

	if strings.Contains(head, "<pre>") {
		head = strings.Replace(head, "<pre>", "<pre>"+marker.Prefix, 1)
	} else {
		head = head[:digitsAt] + marker.Prefix + head[digitsAt:]
	}

	if marker.Style != "" {
		head = strings.Replace(head, classAttr, classAttr+` style="`+marker.Style+`"`, 1)
	}

	return head + tail, true
}
