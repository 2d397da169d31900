package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/tas"
)

// =============================================================================
// APPORTIONMENT SCHEDULE PAYLOADS
// =============================================================================
// An apportionment file from the OMB portal is a JSON object whose
// sourceData field is itself a JSON document holding ScheduleData lines.
// Line 1920 is total budgetary resources; files without it report the
// total on line 6190.
// =============================================================================

const (
	LineTotalResources = "1920"
	LineTotalFallback  = "6190"
)

// ScheduleFile is one apportionment file.
type ScheduleFile struct {
	FileID            flexString     `json:"fileId"`
	FiscalYear        flexString     `json:"fiscalYear"`
	ApprovalTimestamp string         `json:"approvalTimestamp"`
	SourceData        string         `json:"sourceData"`
	ScheduleData      []ScheduleLine `json:"ScheduleData"`
}

// ScheduleLine is one line of an apportionment schedule.
type ScheduleLine struct {
	CgacAgency           flexString `json:"CgacAgency"`
	CgacAcct             flexString `json:"CgacAcct"`
	AvailabilityTypeCode string     `json:"AvailabilityTypeCode"`
	BeginPoa             flexString `json:"BeginPoa"`
	EndPoa               flexString `json:"EndPoa"`
	BudgetBureauTitle    string     `json:"BudgetBureauTitle"`
	AccountTitle         string     `json:"AccountTitle"`
	LineNumber           flexString `json:"LineNumber"`
	LineDescription      string     `json:"LineDescription"`
	ApprovedAmount       flexString `json:"ApprovedAmount"`
	Iteration            flexString `json:"Iteration"`
}

type sourceDocument struct {
	ScheduleData []ScheduleLine `json:"ScheduleData"`
}

// ParseSchedule reads a single file, an array of files, or an API
// envelope {"results": file}. Lines that cannot be typed are returned as
// RowErrors.
func ParseSchedule(r io.Reader, source string) ([]lifecycle.ApportionmentRecord, []*RowError, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to read: %w", source, err)
	}
	files, err := decodeScheduleFiles(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", source, err)
	}

	var records []lifecycle.ApportionmentRecord
	var rowErrs []*RowError
	for fi, f := range files {
		lines := f.ScheduleData
		if len(lines) == 0 && f.SourceData != "" {
			var doc sourceDocument
			if err := json.Unmarshal([]byte(f.SourceData), &doc); err != nil {
				return nil, nil, fmt.Errorf("%s: file %s: invalid sourceData: %w", source, f.FileID, err)
			}
			lines = doc.ScheduleData
		}

		for li, line := range totalLines(lines) {
			rec, rerr := f.record(line)
			if rerr != nil {
				rerr.Source = source
				rerr.Row = fi*10000 + li + 1
				rowErrs = append(rowErrs, rerr)
				continue
			}
			records = append(records, rec)
		}
	}
	if records == nil {
		records = []lifecycle.ApportionmentRecord{}
	}
	return records, rowErrs, nil
}

func decodeScheduleFiles(raw []byte) ([]ScheduleFile, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrEmptySource
	}

	if trimmed[0] == '[' {
		var files []ScheduleFile
		if err := json.Unmarshal(trimmed, &files); err != nil {
			return nil, fmt.Errorf("invalid schedule array: %w", err)
		}
		return files, nil
	}

	var envelope struct {
		Results *ScheduleFile `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Results != nil {
		return []ScheduleFile{*envelope.Results}, nil
	}

	var file ScheduleFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, fmt.Errorf("invalid schedule file: %w", err)
	}
	return []ScheduleFile{file}, nil
}

// totalLines keeps line 1920, or line 6190 when no 1920 line exists.
func totalLines(lines []ScheduleLine) []ScheduleLine {
	pick := func(number string) []ScheduleLine {
		var out []ScheduleLine
		for _, l := range lines {
			if string(l.LineNumber) == number {
				out = append(out, l)
			}
		}
		return out
	}
	if out := pick(LineTotalResources); len(out) > 0 {
		return out
	}
	return pick(LineTotalFallback)
}

func (f ScheduleFile) record(l ScheduleLine) (lifecycle.ApportionmentRecord, *RowError) {
	fail := func(col, value string, err error) (lifecycle.ApportionmentRecord, *RowError) {
		return lifecycle.ApportionmentRecord{}, &RowError{Column: col, Value: value, Err: err}
	}

	fy, err := ParseInt(string(f.FiscalYear))
	if err != nil {
		return fail("fiscalYear", string(f.FiscalYear), err)
	}
	amount, err := ParseAmount(string(l.ApprovedAmount))
	if err != nil {
		return fail("ApprovedAmount", string(l.ApprovedAmount), err)
	}
	iteration := 1
	if s := string(l.Iteration); s != "" {
		if iteration, err = ParseInt(s); err != nil {
			return fail("Iteration", s, err)
		}
	}
	approved, err := ParseDate(f.ApprovalTimestamp)
	if err != nil && f.ApprovalTimestamp != "" {
		return fail("approvalTimestamp", f.ApprovalTimestamp, err)
	}

	var period string
	switch {
	case strings.EqualFold(l.AvailabilityTypeCode, tas.NoYearToken):
		period = tas.NoYearToken
	case l.BeginPoa != "" && l.EndPoa != "":
		period = string(l.BeginPoa) + "/" + string(l.EndPoa)
	default:
		period = string(f.FiscalYear)
	}

	return lifecycle.ApportionmentRecord{
		AccountIdentifier:  padDigits(string(l.CgacAgency), 3) + "-" + padDigits(string(l.CgacAcct), 4),
		AvailabilityPeriod: period,
		FiscalYear:         fy,
		Amount:             amount,
		ApprovalDate:       approved,
		Iteration:          iteration,
		SubUnit:            l.BudgetBureauTitle,
		AccountTitle:       l.AccountTitle,
	}, nil
}

// padDigits restores leading zeros lost by numeric JSON encodings.
// Non-numeric input is returned unchanged for the normalizer to reject.
func padDigits(s string, width int) string {
	if !tas.IsDigits(s) {
		return s
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%0*d", width, n)
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(str))
		return nil
	}
	*s = flexString(string(b))
	return nil
}
