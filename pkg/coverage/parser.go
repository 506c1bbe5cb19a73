package coverage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Class tokens recognized in gcovr documents.
const (
	classLineNumber = "lineno"
	classLineCount  = "linecount"
	classCovered    = "coveredLine"
	classUncovered  = "uncoveredLine"
)

// invalidLine marks a row whose line number is unknown or non-numeric.
const invalidLine = -1

type parseState int

const (
	stateIdle parseState = iota
	stateAwaitingLineNumber
	stateRowOpen
)

// parser is the reducer behind Parse. All state lives here and is discarded
// after one document.
type parser struct {
	logger *slog.Logger
	result Classification

	state      parseState
	line       int
	classified bool
	text       strings.Builder
}

// Parse classifies every instrumented line of one coverage document.
// Malformed or truncated markup is tolerated: rows that were recognized before
// the damage are kept. Only read errors are returned.
func Parse(r io.Reader, logger *slog.Logger) (Classification, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &parser{
		logger: logger,
		result: Classification{Found: true, Covered: LineSet{}, Uncovered: LineSet{}},
		line:   invalidLine,
	}

	tokenizer := html.NewTokenizer(r)

	for {
		tokenType := tokenizer.Next()

		switch tokenType {
		case html.ErrorToken:
			p.closeLineNumber()

			err := tokenizer.Err()
			if errors.Is(err, io.EOF) {
				return p.result, nil
			}

			return p.result, fmt.Errorf("read coverage document: %w", err)
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			p.startTag(token)
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			p.endTag(string(name))
		case html.TextToken:
			if p.state == stateAwaitingLineNumber {
				p.text.Write(tokenizer.Text())
			}
		case html.CommentToken, html.DoctypeToken:
		}
	}
}

func (p *parser) startTag(token html.Token) {
	switch token.Data {
	case "tr":
		p.closeLineNumber()
		p.openRow()
	case "td":
		p.closeLineNumber()

		classes := classTokens(token)

		switch {
		case hasClass(classes, classLineNumber):
			if p.state == stateIdle {
				p.openRow()
			}

			p.state = stateAwaitingLineNumber
			p.text.Reset()
		case hasClass(classes, classLineCount):
			p.classify(classes)
		}
	}
}

func (p *parser) endTag(name string) {
	switch name {
	case "td":
		p.closeLineNumber()
	case "tr", "table", "tbody":
		p.closeLineNumber()
		p.state = stateIdle
		p.line = invalidLine
	}
}

func (p *parser) openRow() {
	p.state = stateRowOpen
	p.line = invalidLine
	p.classified = false
}

// closeLineNumber finishes line-number capture, if active.
func (p *parser) closeLineNumber() {
	if p.state != stateAwaitingLineNumber {
		return
	}

	p.state = stateRowOpen

	line, err := strconv.Atoi(strings.TrimSpace(p.text.String()))
	if err != nil || line <= 0 {
		p.line = invalidLine

		return
	}

	p.line = line
}

func (p *parser) classify(classes []string) {
	if p.state != stateRowOpen || p.line == invalidLine || p.classified {
		return
	}

	var target LineSet

	switch {
	case hasClass(classes, classUncovered):
		target = p.result.Uncovered
	case hasClass(classes, classCovered):
		target = p.result.Covered
	default:
		return
	}

	p.classified = true

	if p.result.Relevant(p.line) {
		p.logger.Warn("line classified more than once, keeping the last row",
			"line", p.line)

		delete(p.result.Covered, p.line)
		delete(p.result.Uncovered, p.line)
	}

	target[p.line] = struct{}{}
}

func classTokens(token html.Token) []string {
	for _, attr := range token.Attr {
		if attr.Key == "class" {
			return strings.Fields(attr.Val)
		}
	}

	return nil
}

func hasClass(classes []string, want string) bool {
	for _, class := range classes {
		if class == want {
			return true
		}
	}

	return false
}
