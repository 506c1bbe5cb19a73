package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templates     *template.Template
	templatesOnce sync.Once
	errTemplates  error
)

// getTemplates returns the parsed templates, loading them once.
func getTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		var parseErr error

		templates, parseErr = template.New("").ParseFS(templateFS, "templates/*.html")
		if parseErr != nil {
			errTemplates = fmt.Errorf("parsing templates: %w", parseErr)
		}
	})

	return templates, errTemplates
}

// pageData feeds page.html and summary.html.
type pageData struct {
	Title            string
	AssetsHost       string
	Since            string
	Until            string
	GeneratedAt      string
	Changed          int
	Covered          int
	Ratio            float64
	Percent          float64
	ThresholdPercent float64
	Passed           bool
	Chart            template.HTML
	Rows             []rowData
}

// rowData feeds row.html.
type rowData struct {
	File      string
	Link      string
	Relevant  int
	Covered   int
	Percent   float64
	Bucket    Bucket
	BarColor  string
	CellColor string
	BarWidth  int
}

func renderPage(w io.Writer, data pageData) error {
	tmpl, err := getTemplates()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	err = tmpl.ExecuteTemplate(w, "page.html", data)
	if err != nil {
		return fmt.Errorf("executing template page.html: %w", err)
	}

	return nil
}
