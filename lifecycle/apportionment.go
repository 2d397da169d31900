package lifecycle

import (
	"sort"
	"time"

	"github.com/charkitch/general-apportionment/tas"
	"github.com/shopspring/decimal"
)

// =============================================================================
// APPORTIONMENT AGGREGATION
// =============================================================================
// Two passes:
//   1. (identifier, fiscal year) -> the single highest-iteration row
//   2. identifier -> sum of those rows across fiscal years
// =============================================================================

type fyKey struct {
	ID         tas.Identifier
	FiscalYear int
}

type apportionmentRow struct {
	ApportionmentRecord
	id tas.Identifier
}

// ApportionmentTotal is the aggregate for one identifier.
type ApportionmentTotal struct {
	Amount       decimal.Decimal
	FiscalYears  []int
	SubUnit      string
	AccountTitle string
	LastApproval time.Time
}

// ApportionmentAggregator collapses apportionment rows. The zero value is
// not usable; call NewApportionmentAggregator.
type ApportionmentAggregator struct {
	latest     map[fyKey]apportionmentRow
	superseded int
}

func NewApportionmentAggregator() *ApportionmentAggregator {
	return &ApportionmentAggregator{latest: make(map[fyKey]apportionmentRow)}
}

// Add offers a row whose identifier is already parsed. Of two rows for the
// same (identifier, fiscal year), the higher iteration is kept; equal
// iterations fall back to the later approval date, then the first seen.
func (a *ApportionmentAggregator) Add(id tas.Identifier, rec ApportionmentRecord) {
	key := fyKey{ID: id, FiscalYear: rec.FiscalYear}
	row := apportionmentRow{ApportionmentRecord: rec, id: id}

	existing, ok := a.latest[key]
	if !ok {
		a.latest[key] = row
		return
	}
	a.superseded++
	if supersedes(rec, existing.ApportionmentRecord) {
		a.latest[key] = row
	}
}

func supersedes(candidate, current ApportionmentRecord) bool {
	if candidate.Iteration != current.Iteration {
		return candidate.Iteration > current.Iteration
	}
	return candidate.ApprovalDate.After(current.ApprovalDate)
}

// Superseded is the number of rows discarded in favour of a later iteration.
func (a *ApportionmentAggregator) Superseded() int { return a.superseded }

// Totals sums the surviving rows per identifier. Sub-unit and title come
// from the latest fiscal year that carries them.
func (a *ApportionmentAggregator) Totals() map[tas.Identifier]*ApportionmentTotal {
	keys := make([]fyKey, 0, len(a.latest))
	for k := range a.latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ID != keys[j].ID {
			return keys[i].ID.Less(keys[j].ID)
		}
		return keys[i].FiscalYear < keys[j].FiscalYear
	})

	totals := make(map[tas.Identifier]*ApportionmentTotal)
	for _, k := range keys {
		row := a.latest[k]
		t, ok := totals[k.ID]
		if !ok {
			t = &ApportionmentTotal{Amount: decimal.Zero}
			totals[k.ID] = t
		}
		t.Amount = t.Amount.Add(row.Amount)
		t.FiscalYears = append(t.FiscalYears, k.FiscalYear)
		if row.SubUnit != "" {
			t.SubUnit = row.SubUnit
		}
		if row.AccountTitle != "" {
			t.AccountTitle = row.AccountTitle
		}
		if row.ApprovalDate.After(t.LastApproval) {
			t.LastApproval = row.ApprovalDate
		}
	}
	return totals
}
