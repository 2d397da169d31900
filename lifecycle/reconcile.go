package lifecycle

import (
	"sort"

	"github.com/charkitch/general-apportionment/tas"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RECONCILER - full outer join on the full identifier
// =============================================================================

// Reconciler joins the two aggregates and labels each record from the
// reference tables.
type Reconciler struct {
	cfg Config
}

func NewReconciler(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg}
}

// Join emits exactly one record per identifier present on either side,
// sorted by identifier. A missing side contributes zero. Records that only
// share AGENCY-MAIN are never merged.
func (r *Reconciler) Join(
	apportioned map[tas.Identifier]*ApportionmentTotal,
	executed map[tas.Identifier]*ExecutionTotal,
) []ReconciledRecord {
	ids := make([]tas.Identifier, 0, len(apportioned)+len(executed))
	for id := range apportioned {
		ids = append(ids, id)
	}
	for id := range executed {
		if _, ok := apportioned[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	subUnits := deriveSubUnits(ids, apportioned)

	records := make([]ReconciledRecord, 0, len(ids))
	for _, id := range ids {
		app, hasApp := apportioned[id]
		exe, hasExe := executed[id]

		rec := ReconciledRecord{
			Identifier:         id,
			Simplified:         id.Simplified(),
			Period:             id.Period(),
			Type:               id.Type(),
			Apportionment:      decimal.Zero,
			Obligations:        decimal.Zero,
			Outlays:            decimal.Zero,
			Appropriated:       decimal.Zero,
			UnobligatedBalance: decimal.Zero,
		}

		switch {
		case hasApp && hasExe:
			rec.Status = MatchBoth
		case hasApp:
			rec.Status = MatchApportionmentOnly
		default:
			rec.Status = MatchExecutionOnly
		}

		if hasApp {
			rec.Apportionment = app.Amount
			rec.ApportionmentFiscalYears = append([]int(nil), app.FiscalYears...)
			rec.SubUnit = app.SubUnit
			rec.AccountTitle = app.AccountTitle
		}
		if hasExe {
			rec.Obligations = exe.Obligations
			rec.Outlays = exe.Outlays
			rec.Appropriated = exe.Appropriated
			rec.UnobligatedBalance = exe.UnobligatedBalance
			rec.ReportingFiscalYears = append([]int(nil), exe.ReportingFiscalYears...)
			rec.ExecutionTitles = append([]string(nil), exe.AccountTitles...)
			if rec.AccountTitle == "" && len(exe.AccountTitles) > 0 {
				rec.AccountTitle = exe.AccountTitles[0]
			}
		}

		r.label(&rec, subUnits)
		rec.Rates = ComputeRates(rec.Apportionment, rec.Obligations, rec.Outlays)
		records = append(records, rec)
	}
	return records
}

func (r *Reconciler) label(rec *ReconciledRecord, derived map[tas.Simplified]string) {
	if rec.SubUnit == "" {
		rec.SubUnit = derived[rec.Simplified]
	}
	if rec.SubUnit == "" {
		rec.SubUnit = r.cfg.fallbackSubUnit(rec.Simplified)
	}
	if rec.SubUnit == "" {
		rec.SubUnit = UnknownSubUnit
	}
	rec.SubUnitAbbreviation = r.cfg.Abbreviation(rec.SubUnit)
	rec.FundType = r.cfg.FundType(rec.Identifier.Main)
	rec.BudgetCategory = r.cfg.BudgetCategory(rec.FundType)
}

// deriveSubUnits builds this run's AGENCY-MAIN -> sub-unit map from the
// apportionment side. It is used for display labels only.
func deriveSubUnits(sorted []tas.Identifier, apportioned map[tas.Identifier]*ApportionmentTotal) map[tas.Simplified]string {
	out := make(map[tas.Simplified]string)
	for _, id := range sorted {
		t, ok := apportioned[id]
		if !ok || t.SubUnit == "" {
			continue
		}
		if _, seen := out[id.Simplified()]; !seen {
			out[id.Simplified()] = t.SubUnit
		}
	}
	return out
}
