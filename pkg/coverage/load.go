package coverage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// ErrReportNotFound is returned when the coverage document of a source file does not exist.
var ErrReportNotFound = errors.New("coverage report not found")

// Open opens the coverage document of a source path.
func Open(dir, path string, naming Naming) (*os.File, error) {
	reportPath := ReportPath(dir, path, naming)

	file, err := os.Open(reportPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportPath)
		}

		return nil, fmt.Errorf("open coverage report: %w", err)
	}

	return file, nil
}

// Load parses the coverage document of a source path. A missing document is
// not an error: the returned classification has Found set to false.
func Load(dir, path string, naming Naming, logger *slog.Logger) (Classification, error) {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := Open(dir, path, naming)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			logger.Warn("no coverage report for changed file, counting it as uncovered",
				"file", path, "report", ReportName(path, naming))

			return NotFound(), nil
		}

		return Classification{}, err
	}
	defer file.Close()

	classification, err := Parse(file, logger.With("file", path))
	if err != nil {
		return Classification{}, fmt.Errorf("parse %s: %w", file.Name(), err)
	}

	return classification, nil
}
