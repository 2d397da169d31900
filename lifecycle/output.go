package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OUTPUT DOCUMENT - flat records for rendering collaborators
// =============================================================================

// rateScale is the number of decimal places kept on serialized rates.
const rateScale = 6

// FlatRecord is the serialized form of a ReconciledRecord. Amounts are
// plain numbers because the consumers are charting code.
type FlatRecord struct {
	AccountIdentifier    string  `json:"account_identifier"`
	SimplifiedIdentifier string  `json:"simplified_identifier"`
	AvailabilityPeriod   string  `json:"availability_period"`
	AvailabilityType     string  `json:"availability_type"`
	IssuingSubUnit       string  `json:"issuing_sub_unit"`
	SubUnitAbbreviation  string  `json:"sub_unit_abbreviation,omitempty"`
	AccountTitle         string  `json:"account_title"`
	FundType             string  `json:"fund_type"`
	BudgetCategory       string  `json:"budget_category"`
	ApportionmentTotal   float64 `json:"apportionment_total"`
	ObligationsTotal     float64 `json:"obligations_total"`
	OutlaysTotal         float64 `json:"outlays_total"`
	AppropriatedTotal    float64 `json:"appropriated_total"`
	UnobligatedBalance   float64 `json:"unobligated_balance"`

	ApportionmentFiscalYears []int    `json:"apportionment_fiscal_years"`
	ReportingFiscalYears     []int    `json:"reporting_fiscal_years"`
	ExecutionAccountTitles   []string `json:"execution_account_titles"`

	MatchStatus    string  `json:"match_status"`
	ObligationRate float64 `json:"obligation_rate"`
	OutlayRate     float64 `json:"outlay_rate"`
	ExecutionRate  float64 `json:"execution_rate"`
}

// Flatten converts records for serialization, preserving order.
func Flatten(records []ReconciledRecord) []FlatRecord {
	out := make([]FlatRecord, 0, len(records))
	for _, r := range records {
		out = append(out, FlatRecord{
			AccountIdentifier:        r.Identifier.String(),
			SimplifiedIdentifier:     r.Simplified.String(),
			AvailabilityPeriod:       r.Period.String(),
			AvailabilityType:         string(r.Type),
			IssuingSubUnit:           r.SubUnit,
			SubUnitAbbreviation:      r.SubUnitAbbreviation,
			AccountTitle:             r.AccountTitle,
			FundType:                 r.FundType,
			BudgetCategory:           r.BudgetCategory,
			ApportionmentTotal:       r.Apportionment.InexactFloat64(),
			ObligationsTotal:         r.Obligations.InexactFloat64(),
			OutlaysTotal:             r.Outlays.InexactFloat64(),
			AppropriatedTotal:        r.Appropriated.InexactFloat64(),
			UnobligatedBalance:       r.UnobligatedBalance.InexactFloat64(),
			ApportionmentFiscalYears: nonNilInts(r.ApportionmentFiscalYears),
			ReportingFiscalYears:     nonNilInts(r.ReportingFiscalYears),
			ExecutionAccountTitles:   nonNilStrings(r.ExecutionTitles),
			MatchStatus:              string(r.Status),
			ObligationRate:           rateFloat(r.Rates.ObligationRate),
			OutlayRate:               rateFloat(r.Rates.OutlayRate),
			ExecutionRate:            rateFloat(r.Rates.ExecutionRate),
		})
	}
	return out
}

// FlatRollup is the serialized form of a RollupRow.
type FlatRollup struct {
	Key                string  `json:"key"`
	Records            int     `json:"records"`
	ApportionmentTotal float64 `json:"apportionment_total"`
	ObligationsTotal   float64 `json:"obligations_total"`
	OutlaysTotal       float64 `json:"outlays_total"`
	ObligationRate     float64 `json:"obligation_rate"`
	OutlayRate         float64 `json:"outlay_rate"`
	ExecutionRate      float64 `json:"execution_rate"`
}

func FlattenRollup(rows []RollupRow) []FlatRollup {
	out := make([]FlatRollup, 0, len(rows))
	for _, r := range rows {
		out = append(out, flattenRollupRow(r))
	}
	return out
}

func flattenRollupRow(r RollupRow) FlatRollup {
	return FlatRollup{
		Key:                r.Key,
		Records:            r.Records,
		ApportionmentTotal: r.Apportionment.InexactFloat64(),
		ObligationsTotal:   r.Obligations.InexactFloat64(),
		OutlaysTotal:       r.Outlays.InexactFloat64(),
		ObligationRate:     rateFloat(r.Rates.ObligationRate),
		OutlayRate:         rateFloat(r.Rates.OutlayRate),
		ExecutionRate:      rateFloat(r.Rates.ExecutionRate),
	}
}

// DiagnosticsReport is the serialized companion object.
type DiagnosticsReport struct {
	ApportionmentRows    int              `json:"apportionment_rows"`
	ExecutionRows        int              `json:"execution_rows"`
	Matched              int              `json:"matched"`
	ApportionmentOnly    int              `json:"apportionment_only"`
	ExecutionOnly        int              `json:"execution_only"`
	DroppedRows          int              `json:"dropped_rows"`
	DroppedApportionment int              `json:"dropped_apportionment_rows"`
	DroppedExecution     int              `json:"dropped_execution_rows"`
	MalformedSamples     []string         `json:"malformed_samples,omitempty"`
	FilteredRows         int              `json:"filtered_rows"`
	SupersededIterations int              `json:"superseded_iterations"`
	DuplicateSnapshots   int              `json:"duplicate_snapshots"`
	NearMisses           []NearMissReport `json:"near_misses"`
	Warning              bool             `json:"warning"`
}

type NearMissReport struct {
	AccountIdentifier string   `json:"account_identifier"`
	MatchStatus       string   `json:"match_status"`
	Candidates        []string `json:"candidates"`
}

func ReportDiagnostics(d Diagnostics) DiagnosticsReport {
	report := DiagnosticsReport{
		ApportionmentRows:    d.ApportionmentRows,
		ExecutionRows:        d.ExecutionRows,
		Matched:              d.Matched,
		ApportionmentOnly:    d.ApportionmentOnly,
		ExecutionOnly:        d.ExecutionOnly,
		DroppedRows:          d.DroppedRows(),
		DroppedApportionment: d.DroppedApportionment,
		DroppedExecution:     d.DroppedExecution,
		MalformedSamples:     d.MalformedSamples,
		FilteredRows:         d.FilteredRows,
		SupersededIterations: d.SupersededIterations,
		DuplicateSnapshots:   d.DuplicateSnapshots,
		NearMisses:           make([]NearMissReport, 0, len(d.NearMisses)),
		Warning:              d.HasWarnings(),
	}
	for _, nm := range d.NearMisses {
		candidates := make([]string, 0, len(nm.Candidates))
		for _, c := range nm.Candidates {
			candidates = append(candidates, c.String())
		}
		report.NearMisses = append(report.NearMisses, NearMissReport{
			AccountIdentifier: nm.Identifier.String(),
			MatchStatus:       string(nm.Status),
			Candidates:        candidates,
		})
	}
	return report
}

// Metadata heads an output document.
type Metadata struct {
	RunID                 string     `json:"run_id,omitempty"`
	Created               time.Time  `json:"created"`
	TotalRecords          int        `json:"total_records"`
	MatchedCombinations   int        `json:"matched_combinations"`
	UnmatchedCombinations int        `json:"unmatched_combinations"`
	Totals                FlatRollup `json:"totals"`
}

// Document is the complete output of one run.
type Document struct {
	Metadata    Metadata          `json:"metadata"`
	Records     []FlatRecord      `json:"records"`
	Diagnostics DiagnosticsReport `json:"diagnostics"`
}

// NewDocument assembles the output document for a run.
func NewDocument(runID string, created time.Time, records []ReconciledRecord, diag Diagnostics) Document {
	return Document{
		Metadata: Metadata{
			RunID:                 runID,
			Created:               created.UTC(),
			TotalRecords:          len(records),
			MatchedCombinations:   diag.Matched,
			UnmatchedCombinations: diag.Unmatched(),
			Totals:                flattenRollupRow(Totals(records)),
		},
		Records:     Flatten(records),
		Diagnostics: ReportDiagnostics(diag),
	}
}

func rateFloat(d decimal.Decimal) float64 {
	return d.Round(rateScale).InexactFloat64()
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
