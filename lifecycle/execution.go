package lifecycle

import (
	"sort"

	"github.com/charkitch/general-apportionment/tas"
	"github.com/shopspring/decimal"
)

// =============================================================================
// EXECUTION AGGREGATION
// =============================================================================
// A multi-year fund appears in the reports of every fiscal year its balance
// is live. Its totals are the sum over all of those reporting years; the
// year a row was reported in is not part of the grouping key.
// =============================================================================

type snapshotKey struct {
	ID     tas.Identifier
	FY     int
	Period int
}

// ExecutionTotal is the aggregate for one identifier.
type ExecutionTotal struct {
	Obligations          decimal.Decimal
	Outlays              decimal.Decimal
	Appropriated         decimal.Decimal
	UnobligatedBalance   decimal.Decimal
	ReportingFiscalYears []int
	AccountTitles        []string
}

// ExecutionAggregator collapses execution snapshots.
type ExecutionAggregator struct {
	snapshots  map[snapshotKey]ExecutionRecord
	duplicates int
}

func NewExecutionAggregator() *ExecutionAggregator {
	return &ExecutionAggregator{snapshots: make(map[snapshotKey]ExecutionRecord)}
}

// Add offers a snapshot whose identifier is already parsed. A repeated
// (identifier, reporting year, reporting period) replaces the earlier one
// when it is more recent and is dropped otherwise. It is never summed.
func (a *ExecutionAggregator) Add(id tas.Identifier, rec ExecutionRecord) {
	key := snapshotKey{ID: id, FY: rec.ReportingFiscalYear, Period: rec.ReportingPeriod}
	existing, ok := a.snapshots[key]
	if !ok {
		a.snapshots[key] = rec
		return
	}
	a.duplicates++
	if newerSnapshot(rec, existing) {
		a.snapshots[key] = rec
	}
}

func newerSnapshot(candidate, current ExecutionRecord) bool {
	if !candidate.SnapshotDate.Equal(current.SnapshotDate) {
		return candidate.SnapshotDate.After(current.SnapshotDate)
	}
	return candidate.Sequence > current.Sequence
}

// Duplicates is the number of snapshots that repeated an existing key.
func (a *ExecutionAggregator) Duplicates() int { return a.duplicates }

// Totals sums obligations, outlays and appropriations per identifier across
// every reporting year. With cumulative set, each (identifier, reporting
// year) contributes only its latest reporting period. The unobligated
// balance is taken from the latest snapshot, never summed.
func (a *ExecutionAggregator) Totals(cumulative bool) map[tas.Identifier]*ExecutionTotal {
	keys := make([]snapshotKey, 0, len(a.snapshots))
	for k := range a.snapshots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ID != keys[j].ID {
			return keys[i].ID.Less(keys[j].ID)
		}
		if keys[i].FY != keys[j].FY {
			return keys[i].FY < keys[j].FY
		}
		return keys[i].Period < keys[j].Period
	})

	if cumulative {
		keys = latestPeriods(keys)
	}

	totals := make(map[tas.Identifier]*ExecutionTotal)
	for _, k := range keys {
		rec := a.snapshots[k]
		t, ok := totals[k.ID]
		if !ok {
			t = &ExecutionTotal{
				Obligations:  decimal.Zero,
				Outlays:      decimal.Zero,
				Appropriated: decimal.Zero,
			}
			totals[k.ID] = t
		}
		t.Obligations = t.Obligations.Add(rec.Obligations)
		t.Outlays = t.Outlays.Add(rec.Outlays)
		t.Appropriated = t.Appropriated.Add(rec.Appropriated)
		// keys are ordered, so the last write is the latest snapshot
		t.UnobligatedBalance = rec.UnobligatedBalance
		t.ReportingFiscalYears = appendUniqueInt(t.ReportingFiscalYears, k.FY)
		if rec.AccountTitle != "" {
			t.AccountTitles = appendUniqueString(t.AccountTitles, rec.AccountTitle)
		}
	}
	for _, t := range totals {
		sort.Strings(t.AccountTitles)
	}
	return totals
}

// latestPeriods keeps the last key of each (identifier, year) run.
// keys must be sorted.
func latestPeriods(keys []snapshotKey) []snapshotKey {
	out := keys[:0:0]
	for i, k := range keys {
		if i+1 < len(keys) && keys[i+1].ID == k.ID && keys[i+1].FY == k.FY {
			continue
		}
		out = append(out, k)
	}
	return out
}

func appendUniqueInt(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func appendUniqueString(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
