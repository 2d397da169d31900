package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/store/sqlite"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

type fixture struct {
	dir  string
	apps string
	fy23 string
	fy24 string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:  dir,
		apps: filepath.Join(dir, "apportionment.csv"),
		fy23: filepath.Join(dir, "FY2023P12_All_TAS_AccountBalances.csv"),
		fy24: filepath.Join(dir, "FY2024P12_All_TAS_AccountBalances.csv"),
	}
	write := func(path, body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write(f.apps, "account_identifier,fiscal_year,amount,issuing_sub_unit\n"+
		"070-2023/2025-0530-000,2023,500,U.S. Customs and Border Protection\n"+
		"070-X-0702-000,2024,50,Federal Emergency Management Agency\n"+
		"015-2024/2024-0100-000,2024,99,Other Agency\n")
	write(f.fy23, "treasury_account_symbol,obligations_incurred,gross_outlay_amount\n"+
		"070-2023/2025-0530-000,100,40\n")
	write(f.fy24, "treasury_account_symbol,obligations_incurred,gross_outlay_amount\n"+
		"070-2023/2025-0530-000,100,60\n"+
		"070-2024/2026-0531-000,10,1\n")
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// =============================================================================
// TESTS
// =============================================================================

func TestReconcile_WritesDocument(t *testing.T) {
	// GIVEN: apportionment plus two reporting years of balances
	f := newFixture(t)

	// WHEN: reconciled
	out, err := execute(t, "reconcile", "-a", f.apps, "-e", f.fy23, "-e", f.fy24)
	require.NoError(t, err)

	// THEN: the document holds one record per kept account, sorted
	var doc lifecycle.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Records, 3)
	assert.Equal(t, 3, doc.Metadata.TotalRecords)
	assert.Equal(t, 1, doc.Metadata.MatchedCombinations)
	assert.Equal(t, 1, doc.Diagnostics.FilteredRows)

	first := doc.Records[0]
	assert.Equal(t, "070-2023/2025-0530-000", first.AccountIdentifier)
	assert.Equal(t, 200.0, first.ObligationsTotal)
	assert.Equal(t, 100.0, first.OutlaysTotal)
	assert.Equal(t, 0.4, first.ObligationRate)
	assert.Equal(t, "CBP", first.SubUnitAbbreviation)
	assert.Equal(t, "both", first.MatchStatus)
}

func TestReconcile_OutputFileAndStore(t *testing.T) {
	// GIVEN: an output path and a history database
	f := newFixture(t)
	outPath := filepath.Join(f.dir, "lifecycle.json")
	dbPath := filepath.Join(f.dir, "runs.db")

	// WHEN: reconciled with --store
	_, err := execute(t, "reconcile", "-a", f.apps, "-e", f.fy23, "-o", outPath, "--pretty", "--store", "--db", dbPath)
	require.NoError(t, err)

	// THEN: the file carries the stored run's ID
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var doc lifecycle.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NotEmpty(t, doc.Metadata.RunID)

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.GetRun(context.Background(), doc.Metadata.RunID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TriggerCLI, run.Trigger)
	assert.Len(t, run.Records, len(doc.Records))
}

func TestReconcile_NoRecordsFails(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "reconcile", "-a", f.apps, "--agency", "999")

	assert.ErrorIs(t, err, lifecycle.ErrNoRecords)
}

func TestReconcile_RequiresSources(t *testing.T) {
	_, err := execute(t, "reconcile")

	assert.Error(t, err)
}

func TestValidate_Strict(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "validate", "-a", f.apps, "-e", f.fy23, "-e", f.fy24)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1.0, report["execution_only"])
	assert.Equal(t, true, report["warning"])

	_, err = execute(t, "validate", "--strict", "-a", f.apps, "-e", f.fy23, "-e", f.fy24)
	assert.ErrorIs(t, err, ErrWarnings)
}

func TestRollup_ByMatchStatus(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "rollup", "--by", "match_status", "-a", f.apps, "-e", f.fy23, "-e", f.fy24)
	require.NoError(t, err)

	assert.Contains(t, out, "apportionment_only")
	assert.Contains(t, out, "execution_only")
	assert.Contains(t, out, "total")
}

func TestRollup_UnknownDimension(t *testing.T) {
	_, err := execute(t, "rollup", "--by", "colour")

	assert.ErrorIs(t, err, lifecycle.ErrUnknownDimension)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:")
}
