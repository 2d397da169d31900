package lifecycle

import (
	"errors"

	"github.com/charkitch/general-apportionment/tas"
)

// =============================================================================
// ENGINE - the reconciliation pipeline
// =============================================================================
//
//   rows -> normalize + classify -> aggregate (per side) -> join -> rates
//
// A run is synchronous and owns every map it builds. Nothing survives
// between runs, so one Engine may serve concurrent callers.
// =============================================================================

// Engine runs reconciliations against a fixed reference configuration.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the reference configuration of the engine.
func (e *Engine) Config() Config { return e.cfg }

// Run reconciles one input. Rows with unparseable identifiers are skipped
// and counted. Only structurally invalid input is an error.
func (e *Engine) Run(in Input) (*Result, error) {
	if in.Apportionments == nil && in.Executions == nil {
		return nil, ErrEmptyInput
	}

	var diag Diagnostics
	diag.ApportionmentRows = len(in.Apportionments)
	diag.ExecutionRows = len(in.Executions)

	apps := NewApportionmentAggregator()
	for _, rec := range in.Apportionments {
		id, err := ResolveApportionment(rec)
		if err != nil {
			diag.DroppedApportionment++
			diag.recordMalformed(rec.AccountIdentifier)
			continue
		}
		if !e.cfg.keepsAgency(id) {
			diag.FilteredRows++
			continue
		}
		apps.Add(id, rec)
	}

	exes := NewExecutionAggregator()
	for _, rec := range in.Executions {
		id, err := ResolveExecution(rec)
		if err != nil {
			diag.DroppedExecution++
			diag.recordMalformed(executionLabel(rec))
			continue
		}
		if !e.cfg.keepsAgency(id) {
			diag.FilteredRows++
			continue
		}
		exes.Add(id, rec)
	}

	diag.SupersededIterations = apps.Superseded()
	diag.DuplicateSnapshots = exes.Duplicates()

	records := NewReconciler(e.cfg).Join(apps.Totals(), exes.Totals(e.cfg.CumulativePeriods))
	diag.countMatches(records)

	return &Result{Records: records, Diagnostics: diag}, nil
}

// Validate fails a result that has nothing in it. A run that looks
// complete but is empty must not be rendered.
func (r *Result) Validate() error {
	if len(r.Records) == 0 {
		return ErrNoRecords
	}
	return nil
}

// =============================================================================
// IDENTIFIER RESOLUTION
// =============================================================================

// ResolveApportionment parses the identifier of an apportionment row. A
// simplified AGENCY-MAIN identifier needs AvailabilityPeriod.
func ResolveApportionment(rec ApportionmentRecord) (tas.Identifier, error) {
	id, err := tas.ParseIdentifier(rec.AccountIdentifier)
	if err == nil {
		return id, nil
	}
	if rec.AvailabilityPeriod == "" {
		return tas.Identifier{}, err
	}
	id, cerr := tas.Compose(rec.AccountIdentifier, rec.AvailabilityPeriod, rec.SubAccount)
	if cerr != nil {
		return tas.Identifier{}, errors.Join(err, cerr)
	}
	return id, nil
}

// ResolveExecution parses the identifier of an execution row, preferring
// the full symbol when one is present.
func ResolveExecution(rec ExecutionRecord) (tas.Identifier, error) {
	if rec.AccountIdentifier != "" {
		return tas.ParseIdentifier(rec.AccountIdentifier)
	}
	return tas.FromComponents(rec.AgencyCode, rec.BeginPeriod, rec.EndPeriod, rec.MainAccount, rec.SubAccount)
}

func executionLabel(rec ExecutionRecord) string {
	if rec.AccountIdentifier != "" {
		return rec.AccountIdentifier
	}
	return rec.AgencyCode + "|" + rec.BeginPeriod + "|" + rec.EndPeriod + "|" + rec.MainAccount + "|" + rec.SubAccount
}
