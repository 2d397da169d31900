package lifecycle

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATES
// =============================================================================

// Rates are derived from totals; they are never averaged across records.
type Rates struct {
	ObligationRate decimal.Decimal // obligations / apportionment
	OutlayRate     decimal.Decimal // outlays / apportionment
	ExecutionRate  decimal.Decimal // outlays / obligations
}

// ComputeRates applies the three formulas. Rates are never negative: a
// zero or net-negative denominator yields 0, and so does a net-negative
// numerator such as a period dominated by deobligations or refunds.
func ComputeRates(apportionment, obligations, outlays decimal.Decimal) Rates {
	return Rates{
		ObligationRate: ratio(obligations, apportionment),
		OutlayRate:     ratio(outlays, apportionment),
		ExecutionRate:  ratio(outlays, obligations),
	}
}

func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.Sign() <= 0 || num.Sign() <= 0 {
		return decimal.Zero
	}
	return num.Div(den)
}

// =============================================================================
// ROLLUPS
// =============================================================================

// Dimension selects the grouping field of a rollup.
type Dimension string

const (
	BySubUnit          Dimension = "sub_unit"
	ByAccount          Dimension = "account"
	ByAvailabilityType Dimension = "availability_type"
	ByFundType         Dimension = "fund_type"
	ByBudgetCategory   Dimension = "budget_category"
	ByMatchStatus      Dimension = "match_status"
)

// Dimensions lists every supported rollup dimension.
var Dimensions = []Dimension{
	BySubUnit, ByAccount, ByAvailabilityType, ByFundType, ByBudgetCategory, ByMatchStatus,
}

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, error) {
	for _, d := range Dimensions {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}

// RollupRow is one group of a rollup. Rates are recomputed from the
// group's summed totals.
type RollupRow struct {
	Key           string
	Records       int
	Apportionment decimal.Decimal
	Obligations   decimal.Decimal
	Outlays       decimal.Decimal
	Rates         Rates
}

func (d Dimension) keyOf(r ReconciledRecord) string {
	switch d {
	case BySubUnit:
		return r.SubUnit
	case ByAccount:
		return r.Simplified.String()
	case ByAvailabilityType:
		return string(r.Type)
	case ByFundType:
		return r.FundType
	case ByBudgetCategory:
		return r.BudgetCategory
	case ByMatchStatus:
		return string(r.Status)
	}
	return ""
}

// Rollup groups records by dimension, sorted by key.
func Rollup(records []ReconciledRecord, by Dimension) ([]RollupRow, error) {
	if _, err := ParseDimension(string(by)); err != nil {
		return nil, err
	}

	groups := make(map[string]*RollupRow)
	for _, r := range records {
		key := by.keyOf(r)
		g, ok := groups[key]
		if !ok {
			g = &RollupRow{Key: key, Apportionment: decimal.Zero, Obligations: decimal.Zero, Outlays: decimal.Zero}
			groups[key] = g
		}
		g.Records++
		g.Apportionment = g.Apportionment.Add(r.Apportionment)
		g.Obligations = g.Obligations.Add(r.Obligations)
		g.Outlays = g.Outlays.Add(r.Outlays)
	}

	rows := make([]RollupRow, 0, len(groups))
	for _, g := range groups {
		g.Rates = ComputeRates(g.Apportionment, g.Obligations, g.Outlays)
		rows = append(rows, *g)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

// Totals is the single-group rollup over every record.
func Totals(records []ReconciledRecord) RollupRow {
	t := RollupRow{Key: "total", Apportionment: decimal.Zero, Obligations: decimal.Zero, Outlays: decimal.Zero}
	for _, r := range records {
		t.Records++
		t.Apportionment = t.Apportionment.Add(r.Apportionment)
		t.Obligations = t.Obligations.Add(r.Obligations)
		t.Outlays = t.Outlays.Add(r.Outlays)
	}
	t.Rates = ComputeRates(t.Apportionment, t.Obligations, t.Outlays)
	return t
}
