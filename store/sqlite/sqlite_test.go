package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/store/sqlite"
	"github.com/charkitch/general-apportionment/tas"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func reconciledRun(t *testing.T, at time.Time) lifecycle.Run {
	t.Helper()
	in := lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{
			{AccountIdentifier: "070-2023/2025-0530-000", FiscalYear: 2023, Amount: decimal.NewFromInt(500), Iteration: 1, SubUnit: "U.S. Customs and Border Protection"},
			{AccountIdentifier: "070-X-0702-000", FiscalYear: 2024, Amount: decimal.NewFromInt(90), Iteration: 2},
		},
		Executions: []lifecycle.ExecutionRecord{
			{AccountIdentifier: "070-2023/2025-0530-000", ReportingFiscalYear: 2023, ReportingPeriod: 12, Obligations: decimal.NewFromInt(100), Outlays: decimal.NewFromInt(40), AccountTitle: "Operations and Support"},
			{AccountIdentifier: "070-2023/2025-0530-000", ReportingFiscalYear: 2024, ReportingPeriod: 12, Obligations: decimal.NewFromInt(100), Outlays: decimal.NewFromInt(60), UnobligatedBalance: decimal.NewFromInt(300)},
			{AccountIdentifier: "070-2024/2024-0100-000", ReportingFiscalYear: 2024, ReportingPeriod: 12, Obligations: decimal.RequireFromString("12.34"), Outlays: decimal.NewFromInt(1)},
			{AccountIdentifier: "bogus", ReportingFiscalYear: 2024, ReportingPeriod: 12},
		},
	}
	res, err := lifecycle.NewEngine(lifecycle.Config{}).Run(in)
	require.NoError(t, err)
	return lifecycle.NewRun(lifecycle.TriggerCLI, "fixtures", res, at)
}

// =============================================================================
// TESTS
// =============================================================================

func TestStore_SaveAndGetRun(t *testing.T) {
	// GIVEN: a stored run with three records
	s := newStore(t)
	ctx := context.Background()
	run := reconciledRun(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveRun(ctx, run))

	// WHEN: it is read back
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)

	// THEN: records come back in output order with exact amounts
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, lifecycle.TriggerCLI, got.Trigger)
	assert.Equal(t, "fixtures", got.Source)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Records, len(run.Records))
	for i, want := range run.Records {
		r := got.Records[i]
		assert.Equal(t, want.Identifier, r.Identifier)
		assert.Equal(t, want.Type, r.Type)
		assert.Equal(t, want.Status, r.Status)
		assert.Equal(t, want.SubUnit, r.SubUnit)
		assert.True(t, want.Apportionment.Equal(r.Apportionment), want.Identifier.String())
		assert.True(t, want.Obligations.Equal(r.Obligations), want.Identifier.String())
		assert.True(t, want.Outlays.Equal(r.Outlays), want.Identifier.String())
		assert.True(t, want.UnobligatedBalance.Equal(r.UnobligatedBalance), want.Identifier.String())
		assert.True(t, want.Rates.ObligationRate.Equal(r.Rates.ObligationRate), want.Identifier.String())
		assert.ElementsMatch(t, want.ReportingFiscalYears, r.ReportingFiscalYears)
	}
}

func TestStore_MultiYearScenarioSurvives(t *testing.T) {
	// GIVEN: the multi-year account reported in two years
	s := newStore(t)
	ctx := context.Background()
	run := reconciledRun(t, time.Now())
	require.NoError(t, s.SaveRun(ctx, run))

	// WHEN: the run is loaded
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)

	// THEN: the stored record still carries the summed totals
	id, err := tas.ParseIdentifier("070-2023/2025-0530-000")
	require.NoError(t, err)
	var found bool
	for _, r := range got.Records {
		if r.Identifier != id {
			continue
		}
		found = true
		assert.Equal(t, "200", r.Obligations.String())
		assert.Equal(t, "100", r.Outlays.String())
		assert.Equal(t, "0.4", r.Rates.ObligationRate.String())
		assert.Equal(t, lifecycle.MatchBoth, r.Status)
		assert.Equal(t, []int{2023, 2024}, r.ReportingFiscalYears)
	}
	assert.True(t, found)
}

func TestStore_DiagnosticsRoundTrip(t *testing.T) {
	// GIVEN: a run with a dropped row
	s := newStore(t)
	ctx := context.Background()
	run := reconciledRun(t, time.Now())
	require.NoError(t, s.SaveRun(ctx, run))

	// WHEN: it is read back
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)

	// THEN: the diagnostics match
	assert.Equal(t, run.Diagnostics.DroppedExecution, got.Diagnostics.DroppedExecution)
	assert.Equal(t, 1, got.Diagnostics.DroppedExecution)
	assert.Equal(t, []string{"bogus"}, got.Diagnostics.MalformedSamples)
	assert.Equal(t, run.Diagnostics.Matched, got.Diagnostics.Matched)
	assert.Equal(t, run.Diagnostics.ExecutionOnly, got.Diagnostics.ExecutionOnly)
}

func TestStore_AppendOnly(t *testing.T) {
	// GIVEN: a stored run
	s := newStore(t)
	ctx := context.Background()
	run := reconciledRun(t, time.Now())
	require.NoError(t, s.SaveRun(ctx, run))

	// WHEN: the same run is saved again
	err := s.SaveRun(ctx, run)

	// THEN: it is rejected and the original is intact
	assert.Error(t, err)
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, got.Records, len(run.Records))
}

func TestStore_GetMissingRun(t *testing.T) {
	s := newStore(t)

	_, err := s.GetRun(context.Background(), "missing")

	assert.True(t, lifecycle.IsNotFound(err))
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	// GIVEN: three runs saved out of order
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first := reconciledRun(t, base)
	second := reconciledRun(t, base.Add(time.Hour))
	third := reconciledRun(t, base.Add(2*time.Hour))
	require.NoError(t, s.SaveRun(ctx, second))
	require.NoError(t, s.SaveRun(ctx, third))
	require.NoError(t, s.SaveRun(ctx, first))

	// WHEN: listing with and without a limit
	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	limited, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)

	// THEN: newest first with summary counts
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, first.ID, all[2].ID)
	assert.Equal(t, len(first.Records), all[2].Records)
	assert.Equal(t, 1, all[0].DroppedRows)
	require.Len(t, limited, 2)
	assert.Equal(t, second.ID, limited[1].ID)
}

func TestStore_Reset(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, reconciledRun(t, time.Now())))

	require.NoError(t, s.Reset(ctx))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
