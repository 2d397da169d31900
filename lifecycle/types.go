/*
Package lifecycle reconciles apportioned budget authority against reported
obligations and outlays.

PURPOSE:
  Two independent feeds describe the same appropriation accounts. The
  apportionment feed says how much an agency may obligate; the execution
  feed reports, period by period and year by year, what it has obligated
  and paid out. This package turns both into one record per account and
  availability window.

KEY CONCEPTS:
  - ApportionmentRecord / ExecutionRecord: typed input rows. Ingestion
    has already parsed amounts and years; identifiers are still raw so the
    engine can count the ones it rejects.
  - ReconciledRecord: the joined output row with its three rates.
  - Diagnostics: data-quality counts emitted next to the records.

CORE RULES:
  1. A later apportionment iteration replaces earlier ones for the same
     (account, fiscal year). Fiscal years are then summed.
  2. Execution totals are summed across every reporting fiscal year. A
     multi-year fund reports in each year its balance is live and all of
     it belongs to the same apportionment.
  3. A repeated (account, reporting year, reporting period) snapshot
     replaces the earlier one. It is never added.
  4. The join key is the full identifier. Accounts that only share
     AGENCY-MAIN are different funds.
  5. Rates are recomputed from summed totals and are 0 when the
     denominator is 0.

SEE ALSO:
  - tas/: identifier grammar and availability classification
  - engine.go: the pipeline
  - ingest/: turns files into these rows
*/
package lifecycle

import (
	"time"

	"github.com/charkitch/general-apportionment/tas"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MATCH STATUS
// =============================================================================

// MatchStatus records which feeds contributed to a reconciled record.
type MatchStatus string

const (
	MatchBoth              MatchStatus = "both"
	MatchApportionmentOnly MatchStatus = "apportionment_only"
	MatchExecutionOnly     MatchStatus = "execution_only"
)

// UnknownSubUnit labels records no source or reference table could place.
const UnknownSubUnit = "Unknown"

// =============================================================================
// INPUT ROWS
// =============================================================================

// ApportionmentRecord is one approved line of an apportionment.
//
// AccountIdentifier is either the full AGENCY-PERIOD-MAIN-SUB symbol, or
// the simplified AGENCY-MAIN form together with AvailabilityPeriod and an
// optional SubAccount.
type ApportionmentRecord struct {
	AccountIdentifier  string
	AvailabilityPeriod string
	SubAccount         string

	FiscalYear   int
	Amount       decimal.Decimal
	ApprovalDate time.Time
	Iteration    int
	SubUnit      string
	AccountTitle string
}

// ExecutionRecord is one account-balance snapshot from the execution feed.
//
// Either AccountIdentifier or the five component codes identify the
// account; the bulk files use the components.
type ExecutionRecord struct {
	AccountIdentifier string
	AgencyCode        string
	BeginPeriod       string
	EndPeriod         string
	MainAccount       string
	SubAccount        string

	ReportingFiscalYear int
	ReportingPeriod     int
	Obligations         decimal.Decimal
	Outlays             decimal.Decimal
	Appropriated        decimal.Decimal
	UnobligatedBalance  decimal.Decimal
	AccountTitle        string

	// SnapshotDate and Sequence decide which of two identical snapshots
	// wins: later date first, then later load order.
	SnapshotDate time.Time
	Sequence     int
}

// =============================================================================
// OUTPUT
// =============================================================================

// ReconciledRecord is one account/availability pair after the join.
// Records are built once per run and never mutated afterwards.
type ReconciledRecord struct {
	Identifier tas.Identifier
	Simplified tas.Simplified
	Period     tas.AvailabilityPeriod
	Type       tas.AvailabilityType

	SubUnit             string
	SubUnitAbbreviation string
	AccountTitle        string
	FundType            string
	BudgetCategory      string

	Apportionment      decimal.Decimal
	Obligations        decimal.Decimal
	Outlays            decimal.Decimal
	Appropriated       decimal.Decimal
	UnobligatedBalance decimal.Decimal

	ApportionmentFiscalYears []int
	ReportingFiscalYears     []int
	ExecutionTitles          []string

	Status MatchStatus
	Rates  Rates
}

// Input is everything one run consumes. A nil slice means the collection
// was never produced, which is different from an empty feed.
type Input struct {
	Apportionments []ApportionmentRecord
	Executions     []ExecutionRecord
}

// Result is everything one run produces.
type Result struct {
	Records     []ReconciledRecord
	Diagnostics Diagnostics
}
