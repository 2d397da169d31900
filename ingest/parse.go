package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/tas"
	"github.com/shopspring/decimal"
)

// =============================================================================
// APPORTIONMENT ROWS
// =============================================================================

// ParseApportionments types an apportionment table. Rows with untypeable
// cells are skipped and returned as RowErrors; a missing required column
// fails the whole table. Identifiers are left raw for the engine.
func ParseApportionments(t *Table) ([]lifecycle.ApportionmentRecord, []*RowError, error) {
	cols := mapColumns(t.Headers, apportionmentAliases)
	if err := cols.require(t.Source, fAccountIdentifier, fFiscalYear, fAmount); err != nil {
		return nil, nil, err
	}

	records := make([]lifecycle.ApportionmentRecord, 0, len(t.Rows))
	var rowErrs []*RowError

	for i, row := range t.Rows {
		if isBlank(row) {
			continue
		}
		p := rowParser{source: t.Source, row: i + 2, cells: row, cols: cols}

		rec := lifecycle.ApportionmentRecord{
			AccountIdentifier:  p.text(fAccountIdentifier),
			AvailabilityPeriod: p.text(fAvailabilityPeriod),
			SubAccount:         p.text(fSubAccount),
			FiscalYear:         p.requiredInt(fFiscalYear),
			Amount:             p.amount(fAmount),
			ApprovalDate:       p.date(fApprovalDate),
			Iteration:          p.optionalInt(fIteration, 1),
			SubUnit:            p.text(fSubUnit),
			AccountTitle:       p.text(fAccountTitle),
		}
		if p.err != nil {
			rowErrs = append(rowErrs, p.err)
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

// =============================================================================
// EXECUTION ROWS
// =============================================================================

// ExecutionMeta carries values a bulk file holds in its name or in load
// order rather than in its columns.
type ExecutionMeta struct {
	ReportingFiscalYear int
	ReportingPeriod     int
	SnapshotDate        time.Time
	SequenceBase        int
}

var fileYearPeriod = regexp.MustCompile(`(?i)FY(\d{4})P(\d{1,2})`)

// MetaFromFilename reads FYyyyyPpp from a bulk file name, e.g.
// "FY2024P12_All_TAS_AccountBalances.csv".
func MetaFromFilename(path string) ExecutionMeta {
	m := fileYearPeriod.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return ExecutionMeta{}
	}
	fy, _ := strconv.Atoi(m[1])
	period, _ := strconv.Atoi(m[2])
	return ExecutionMeta{ReportingFiscalYear: fy, ReportingPeriod: period}
}

// ParseExecutions types an execution table. The account may be given as a
// full identifier or as the five component columns. Reporting year and
// period fall back to meta when the file does not carry them.
func ParseExecutions(t *Table, meta ExecutionMeta) ([]lifecycle.ExecutionRecord, []*RowError, error) {
	cols := mapColumns(t.Headers, executionAliases)

	if !cols.has(fAccountIdentifier) {
		if err := cols.require(t.Source, fAgencyCode, fMainAccount); err != nil {
			return nil, nil, &MissingColumnError{Source: t.Source, Column: string(fAccountIdentifier)}
		}
	}
	if !cols.has(fReportingFiscalYear) && meta.ReportingFiscalYear == 0 {
		return nil, nil, &MissingColumnError{Source: t.Source, Column: string(fReportingFiscalYear)}
	}
	if !cols.has(fReportingPeriod) && meta.ReportingPeriod == 0 {
		return nil, nil, &MissingColumnError{Source: t.Source, Column: string(fReportingPeriod)}
	}
	if err := cols.require(t.Source, fObligations, fOutlays); err != nil {
		return nil, nil, err
	}

	records := make([]lifecycle.ExecutionRecord, 0, len(t.Rows))
	var rowErrs []*RowError

	for i, row := range t.Rows {
		if isBlank(row) {
			continue
		}
		p := rowParser{source: t.Source, row: i + 2, cells: row, cols: cols}

		begin := p.text(fBeginPeriod)
		if p.text(fAvailabilityType) == tas.NoYearToken {
			begin = tas.NoYearToken
		}

		rec := lifecycle.ExecutionRecord{
			AccountIdentifier:   p.text(fAccountIdentifier),
			AgencyCode:          p.text(fAgencyCode),
			BeginPeriod:         begin,
			EndPeriod:           p.text(fEndPeriod),
			MainAccount:         p.text(fMainAccount),
			SubAccount:          p.text(fSubAccount),
			ReportingFiscalYear: p.positiveInt(fReportingFiscalYear, meta.ReportingFiscalYear),
			ReportingPeriod:     p.positiveInt(fReportingPeriod, meta.ReportingPeriod),
			Obligations:         p.amount(fObligations),
			Outlays:             p.amount(fOutlays),
			Appropriated:        p.amount(fAppropriated),
			UnobligatedBalance:  p.amount(fUnobligated),
			AccountTitle:        p.text(fAccountTitle),
			SnapshotDate:        meta.SnapshotDate,
			Sequence:            meta.SequenceBase + i,
		}
		if d := p.date(fSnapshotDate); !d.IsZero() {
			rec.SnapshotDate = d
		}
		if p.err != nil {
			rowErrs = append(rowErrs, p.err)
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

// =============================================================================
// CELL PARSING
// =============================================================================

// rowParser types the cells of one row, keeping the first failure.
type rowParser struct {
	source string
	row    int
	cells  []string
	cols   columnMap
	err    *RowError
}

func (p *rowParser) fail(f field, value string, err error) {
	if p.err == nil {
		p.err = &RowError{Source: p.source, Row: p.row, Column: string(f), Value: value, Err: err}
	}
}

func (p *rowParser) text(f field) string {
	return p.cols.get(p.cells, f)
}

func (p *rowParser) requiredInt(f field) int {
	v := p.text(f)
	if v == "" {
		p.fail(f, v, fmt.Errorf("empty"))
		return 0
	}
	n, err := ParseInt(v)
	if err != nil {
		p.fail(f, v, err)
	}
	return n
}

func (p *rowParser) optionalInt(f field, def int) int {
	v := p.text(f)
	if v == "" {
		return def
	}
	n, err := ParseInt(v)
	if err != nil {
		p.fail(f, v, err)
		return def
	}
	return n
}

// positiveInt is optionalInt for fields that form part of a snapshot key.
// A blank cell with no file-level fallback is a row error.
func (p *rowParser) positiveInt(f field, def int) int {
	n := p.optionalInt(f, def)
	if n <= 0 {
		p.fail(f, p.text(f), fmt.Errorf("must be a positive number"))
	}
	return n
}

func (p *rowParser) amount(f field) decimal.Decimal {
	v := p.text(f)
	d, err := ParseAmount(v)
	if err != nil {
		p.fail(f, v, err)
	}
	return d
}

func (p *rowParser) date(f field) time.Time {
	v := p.text(f)
	if v == "" {
		return time.Time{}
	}
	t, err := ParseDate(v)
	if err != nil {
		p.fail(f, v, err)
	}
	return t
}

// ParseInt accepts "2024" and spreadsheet renderings such as "2024.0".
func ParseInt(s string) (int, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	return strconv.Atoi(s)
}

// ParseAmount parses a currency cell. Empty is zero; "$", thousands
// separators and accounting parentheses are accepted.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if negative {
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// ParseDate accepts the timestamp spellings seen in both feeds.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
