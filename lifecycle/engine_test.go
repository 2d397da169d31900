package lifecycle_test

import (
	"testing"
	"time"

	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/tas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dhsConfig() lifecycle.Config {
	return lifecycle.Config{
		Agency: "070",
		SubUnitByAccount: map[string]string{
			"070-0702": "Federal Emergency Management Agency",
		},
		Abbreviations: map[string]string{
			"U.S. Customs and Border Protection":  "CBP",
			"Federal Emergency Management Agency": "FEMA",
		},
		FundTypes: map[string]string{
			"0530": "General Funds",
			"8244": "Trust Funds",
		},
	}
}

// =============================================================================
// IDENTIFIER RESOLUTION
// =============================================================================

func TestEngine_ResolvesComponentAndSimplifiedIdentifiers(t *testing.T) {
	// GIVEN: an apportionment in AGENCY-MAIN + period form and an execution
	//        row in bulk-file component form for the same fund
	in := lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{{
			AccountIdentifier:  "070-0530",
			AvailabilityPeriod: "2023/2025",
			FiscalYear:         2023,
			Amount:             dec("1000"),
			Iteration:          1,
		}},
		Executions: []lifecycle.ExecutionRecord{{
			AgencyCode:          "70",
			BeginPeriod:         "2023",
			EndPeriod:           "2025",
			MainAccount:         "530",
			SubAccount:          "0",
			ReportingFiscalYear: 2024,
			ReportingPeriod:     12,
			Obligations:         dec("250"),
			Outlays:             dec("100"),
		}},
	}

	// WHEN: reconciled
	res := run(t, in)

	// THEN: both land on the same full identifier
	require.Len(t, res.Records, 1)
	assert.Equal(t, multiYear, res.Records[0].Identifier.String())
	assert.Equal(t, lifecycle.MatchBoth, res.Records[0].Status)
}

func TestResolveApportionment_SimplifiedWithoutPeriodIsMalformed(t *testing.T) {
	_, err := lifecycle.ResolveApportionment(lifecycle.ApportionmentRecord{AccountIdentifier: "070-0530"})
	assert.ErrorIs(t, err, tas.ErrMalformed)
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func TestEngine_AgencyFilterExcludesOtherAgencies(t *testing.T) {
	in := lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{
			app(multiYear, 2023, "10", 1),
			app("069-2024-0100-000", 2024, "99", 1),
		},
		Executions: []lifecycle.ExecutionRecord{exe("069-2024-0100-000", 2024, 12, "1", "1")},
	}

	res, err := lifecycle.NewEngine(dhsConfig()).Run(in)
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, "070", res.Records[0].Identifier.Agency)
	assert.Equal(t, 2, res.Diagnostics.FilteredRows)
}

func TestEngine_LabelsSubUnitsAndFundTypes(t *testing.T) {
	// GIVEN: a CBP apportionment, an execution-only sibling under the same
	//        AGENCY-MAIN, and an execution-only FEMA account known only to
	//        the reference table
	in := lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{app(multiYear, 2023, "10", 1)},
		Executions: []lifecycle.ExecutionRecord{
			exe("070-2021/2022-0530-000", 2022, 12, "1", "1"),
			exe("070-X-0702-000", 2024, 12, "1", "1"),
			exe("070-X-8244-000", 2024, 12, "1", "1"),
		},
	}

	res, err := lifecycle.NewEngine(dhsConfig()).Run(in)
	require.NoError(t, err)

	cbp := recordFor(t, res, multiYear)
	assert.Equal(t, "U.S. Customs and Border Protection", cbp.SubUnit)
	assert.Equal(t, "CBP", cbp.SubUnitAbbreviation)
	assert.Equal(t, "General Funds", cbp.FundType)
	assert.Equal(t, lifecycle.CategoryDiscretionary, cbp.BudgetCategory)

	sibling := recordFor(t, res, "070-2021/2022-0530-000")
	assert.Equal(t, "U.S. Customs and Border Protection", sibling.SubUnit, "derived from this run's apportionments")

	fema := recordFor(t, res, "070-X-0702-000")
	assert.Equal(t, "Federal Emergency Management Agency", fema.SubUnit)
	assert.Equal(t, "FEMA", fema.SubUnitAbbreviation)
	assert.Equal(t, lifecycle.UnknownFundType, fema.FundType)
	assert.Equal(t, lifecycle.CategoryOther, fema.BudgetCategory)

	trust := recordFor(t, res, "070-X-8244-000")
	assert.Equal(t, lifecycle.UnknownSubUnit, trust.SubUnit)
	assert.Equal(t, lifecycle.CategoryMandatory, trust.BudgetCategory)
}

func TestConfig_BudgetCategory(t *testing.T) {
	cfg := lifecycle.Config{BudgetCategories: map[string]string{"Deposit Funds": "Other Mandatory"}}

	assert.Equal(t, lifecycle.CategoryDiscretionary, cfg.BudgetCategory("General Fund"))
	assert.Equal(t, lifecycle.CategoryMandatory, cfg.BudgetCategory("Special Funds"))
	assert.Equal(t, lifecycle.CategoryMandatory, cfg.BudgetCategory("Revolving Funds"))
	assert.Equal(t, lifecycle.CategoryOther, cfg.BudgetCategory("Unknown"))
	assert.Equal(t, "Other Mandatory", cfg.BudgetCategory("Deposit Funds"))
}

// =============================================================================
// EXECUTION DETAILS
// =============================================================================

func TestEngine_UnobligatedBalanceIsLatestNotSummed(t *testing.T) {
	early := exe(multiYear, 2023, 12, "100", "10")
	early.UnobligatedBalance = dec("900")
	late := exe(multiYear, 2024, 6, "100", "10")
	late.UnobligatedBalance = dec("800")
	late.Appropriated = dec("1000")

	res := run(t, lifecycle.Input{Executions: []lifecycle.ExecutionRecord{late, early}})

	rec := recordFor(t, res, multiYear)
	assertDecimal(t, "800", rec.UnobligatedBalance, "unobligated balance")
	assertDecimal(t, "1000", rec.Appropriated, "appropriated")
}

func TestEngine_CumulativePeriodsUsesLatestPeriodPerYear(t *testing.T) {
	// GIVEN: year-to-date balances for P03, P06 and P12 of FY2024 and P12 of FY2025
	rows := []lifecycle.ExecutionRecord{
		exe(multiYear, 2024, 3, "10", "1"),
		exe(multiYear, 2024, 6, "25", "5"),
		exe(multiYear, 2024, 12, "40", "20"),
		exe(multiYear, 2025, 12, "15", "15"),
	}

	// WHEN: cumulative mode is on
	res, err := lifecycle.NewEngine(lifecycle.Config{CumulativePeriods: true}).
		Run(lifecycle.Input{Executions: rows})
	require.NoError(t, err)

	// THEN: only P12 of each year counts, years still sum
	rec := recordFor(t, res, multiYear)
	assertDecimal(t, "55", rec.Obligations, "obligations")
	assertDecimal(t, "35", rec.Outlays, "outlays")

	// AND: without it every period sums
	plain := run(t, lifecycle.Input{Executions: rows})
	assertDecimal(t, "90", recordFor(t, plain, multiYear).Obligations, "obligations")
}

func TestEngine_ExecutionTitlesAreCollected(t *testing.T) {
	a := exe(multiYear, 2023, 12, "1", "1")
	a.AccountTitle = "Operations and Support"
	b := exe(multiYear, 2024, 12, "1", "1")
	b.AccountTitle = "Operations & Support"

	res := run(t, lifecycle.Input{Executions: []lifecycle.ExecutionRecord{a, b}})

	rec := recordFor(t, res, multiYear)
	assert.Equal(t, []string{"Operations & Support", "Operations and Support"}, rec.ExecutionTitles)
	assert.Equal(t, "Operations & Support", rec.AccountTitle)
}

func TestEngine_EqualIterationsPreferLaterApproval(t *testing.T) {
	first := app(multiYear, 2023, "10", 4)
	second := app(multiYear, 2023, "12", 4)
	second.ApprovalDate = first.ApprovalDate.Add(48 * time.Hour)

	res := run(t, lifecycle.Input{Apportionments: []lifecycle.ApportionmentRecord{second, first}})

	assertDecimal(t, "12", recordFor(t, res, multiYear).Apportionment, "apportionment")
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

func TestEngine_NearMissesPairUnmatchedSiblings(t *testing.T) {
	// GIVEN: apportionment says 2023/2025, execution says 2023/2024
	in := lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{app(multiYear, 2023, "10", 1)},
		Executions: []lifecycle.ExecutionRecord{
			exe("070-2023/2024-0530-000", 2024, 12, "1", "1"),
			exe("070-X-0702-000", 2024, 12, "1", "1"),
		},
	}

	res := run(t, in)

	// THEN: both sides of the drift are flagged; the unrelated account is not
	require.Len(t, res.Diagnostics.NearMisses, 2)
	nm := res.Diagnostics.NearMisses
	assert.Equal(t, "070-2023/2024-0530-000", nm[0].Identifier.String())
	assert.Equal(t, lifecycle.MatchExecutionOnly, nm[0].Status)
	assert.Equal(t, multiYear, nm[0].Candidates[0].String())
	assert.Equal(t, multiYear, nm[1].Identifier.String())
	assert.Equal(t, lifecycle.MatchApportionmentOnly, nm[1].Status)
	assert.True(t, res.Diagnostics.HasWarnings())
	assert.Equal(t, 3, res.Diagnostics.Unmatched())
}
