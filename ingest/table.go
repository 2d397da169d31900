/*
Package ingest turns source files into typed engine rows.

PURPOSE:
  The engine only sees typed values. Every textual-to-numeric conversion
  (fiscal years, periods, iterations, currency) happens here, once, with
  per-row errors reported and structural errors failing the load.

SUPPORTED SOURCES:
  .csv   bulk account-balance downloads and exported apportionments
  .xlsx  apportionment spreadsheets exported from the OMB portal
  .json  apportionment file payloads carrying ScheduleData lines

FLOW:
  file -> Table (headers + string cells) -> header mapping -> typed rows

SEE ALSO:
  - columns.go: header aliases per feed
  - schedule.go: ScheduleData payloads
  - load.go: parallel loading of both feeds
*/
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TABLE
// =============================================================================

// Table is a header row plus string cells.
type Table struct {
	Source  string
	Headers []string
	Rows    [][]string
}

// ReadCSV reads a delimited table. Ragged rows and stray quotes are
// tolerated; the bulk downloads contain both.
func ReadCSV(r io.Reader, source string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read CSV: %w", source, err)
	}
	return newTable(source, all)
}

// ReadXLSX reads the first sheet of a workbook, or the named sheet.
func ReadXLSX(r io.Reader, source, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open workbook: %w", source, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read sheet %q: %w", source, sheet, err)
	}
	return newTable(source, rows)
}

// Format is a supported file type.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatSchedule Format = "json"
)

// DetectFormat maps a path's extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".json":
		return FormatSchedule, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ReadTable opens a tabular file by extension.
func ReadTable(path, sheet string) (*Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatSchedule {
		return nil, fmt.Errorf("%w: %s is not tabular", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if format == FormatXLSX {
		return ReadXLSX(f, path, sheet)
	}
	return ReadCSV(f, path)
}

func newTable(source string, rows [][]string) (*Table, error) {
	// skip leading blank rows
	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptySource)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
	}

	return &Table{Source: source, Headers: headers, Rows: rows[1:]}, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// normalizeHeader lower-cases and snake-cases a header cell.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(h)
	return h
}
