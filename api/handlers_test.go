/*
handlers_test.go - Tests for API handlers

Tests for:
- Run creation from request rows and status mapping
- Run retrieval, records filters, rollups and diagnostics
- Refresh from configured source files
- Scenario loading
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charkitch/general-apportionment/factory"
	"github.com/charkitch/general-apportionment/ingest"
	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/store/sqlite"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

type testServer struct {
	router http.Handler
	store  *sqlite.Store
}

func newTestServer(t *testing.T, sources ingest.Sources) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	runner := NewRunner(store, lifecycle.NewEngine(factory.DHSReference()), ingest.NewLoader(logger), sources, logger)
	h := NewHandler(store, runner, logger)
	return &testServer{router: NewRouter(h, nil), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sampleRequest() CreateRunRequest {
	return CreateRunRequest{
		Source: "test",
		Apportionments: []ApportionmentRowRequest{
			{AccountIdentifier: "070-2023/2025-0530-000", FiscalYear: 2023, Amount: "500", IssuingSubUnit: "U.S. Customs and Border Protection"},
			{AccountIdentifier: "070-0702", AvailabilityPeriod: "X", FiscalYear: 2024, Amount: "$1,000"},
		},
		Executions: []ExecutionRowRequest{
			{AccountIdentifier: "070-2023/2025-0530-000", ReportingFiscalYear: 2023, ReportingPeriod: 12, Obligations: "100", Outlays: "40"},
			{AgencyCode: "70", BeginPeriod: "2023", EndPeriod: "2025", MainAccount: "530", ReportingFiscalYear: 2024, ReportingPeriod: 12, Obligations: "100", Outlays: "60"},
			{AccountIdentifier: "070-X-8244-000", ReportingFiscalYear: 2024, ReportingPeriod: 12, Obligations: "7", Outlays: "(2)"},
		},
	}
}

func createRun(t *testing.T, s *testServer) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/runs", sampleRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[CreateRunResponse](t, rec).Run.ID
}

// =============================================================================
// RUN CREATION
// =============================================================================

func TestCreateRun_Success(t *testing.T) {
	// GIVEN: rows for two matched and one unmatched account
	s := newTestServer(t, ingest.Sources{})

	// WHEN: posted
	rec := s.do(t, http.MethodPost, "/api/runs", sampleRequest())

	// THEN: the run is stored with its counts
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[CreateRunResponse](t, rec)
	assert.NotEmpty(t, resp.Run.ID)
	assert.Equal(t, "api", resp.Run.Trigger)
	assert.Equal(t, 3, resp.Run.Records)
	assert.Equal(t, 1, resp.Diagnostics.Matched)
	assert.Equal(t, 1, resp.Diagnostics.ApportionmentOnly)
	assert.Equal(t, 1, resp.Diagnostics.ExecutionOnly)
	assert.True(t, resp.Diagnostics.Warning)

	runs := decode[[]RunDTO](t, s.do(t, http.MethodGet, "/api/runs", nil))
	require.Len(t, runs, 1)
	assert.Equal(t, resp.Run.ID, runs[0].ID)
}

func TestCreateRun_MissingCollections(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})

	rec := s.do(t, http.MethodPost, "/api/runs", `{"source":"empty"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRun_NoRecordsIsUnprocessable(t *testing.T) {
	// GIVEN: only malformed identifiers
	s := newTestServer(t, ingest.Sources{})
	req := CreateRunRequest{
		Apportionments: []ApportionmentRowRequest{{AccountIdentifier: "garbage", FiscalYear: 2024, Amount: "1"}},
		Executions:     []ExecutionRowRequest{},
	}

	// WHEN: posted
	rec := s.do(t, http.MethodPost, "/api/runs", req)

	// THEN: 422 and nothing stored
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	runs := decode[[]RunDTO](t, s.do(t, http.MethodGet, "/api/runs", nil))
	assert.Empty(t, runs)
}

func TestCreateRun_InvalidAmount(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})
	req := sampleRequest()
	req.Executions[0].Obligations = "lots"

	rec := s.do(t, http.MethodPost, "/api/runs", req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "executions[0].obligations")
}

func TestCreateRun_MissingReportingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExecutionRowRequest)
		want   string
	}{
		{"no year or period", func(r *ExecutionRowRequest) { r.ReportingFiscalYear, r.ReportingPeriod = 0, 0 }, "executions[1].reporting_fiscal_year"},
		{"no period", func(r *ExecutionRowRequest) { r.ReportingPeriod = 0 }, "executions[1].reporting_period"},
		{"negative year", func(r *ExecutionRowRequest) { r.ReportingFiscalYear = -2024 }, "executions[1].reporting_fiscal_year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: a row that would otherwise collide with its neighbour at year 0
			s := newTestServer(t, ingest.Sources{})
			req := sampleRequest()
			tt.mutate(&req.Executions[1])

			// WHEN: posted
			rec := s.do(t, http.MethodPost, "/api/runs", req)

			// THEN: rejected as a bad row and nothing stored
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[ErrorResponse](t, rec).Details, tt.want)
			runs := decode[[]RunDTO](t, s.do(t, http.MethodGet, "/api/runs", nil))
			assert.Empty(t, runs)
		})
	}
}

func TestCreateRun_MalformedBody(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})

	rec := s.do(t, http.MethodPost, "/api/runs", `{"apportionments":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RUN RETRIEVAL
// =============================================================================

func TestGetRun_SummaryAndTotals(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})
	id := createRun(t, s)

	rec := s.do(t, http.MethodGet, "/api/runs/"+id, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RunDetailResponse](t, rec)
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, 3, resp.Metadata.TotalRecords)
	assert.Equal(t, 1500.0, resp.Metadata.Totals.ApportionmentTotal)
	assert.Equal(t, 207.0, resp.Metadata.Totals.ObligationsTotal)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})

	rec := s.do(t, http.MethodGet, "/api/runs/does-not-exist", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunRecords_MultiYearSummedAcrossYears(t *testing.T) {
	// GIVEN: a run where the multi-year fund reported in 2023 and 2024
	s := newTestServer(t, ingest.Sources{})
	id := createRun(t, s)

	// WHEN: filtering to matched multi-year records
	rec := s.do(t, http.MethodGet, "/api/runs/"+id+"/records?status=both&type=multi-year", nil)

	// THEN: one record with both years' obligations
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RecordsResponse](t, rec)
	require.Equal(t, 1, resp.Total)
	r := resp.Records[0]
	assert.Equal(t, "070-2023/2025-0530-000", r.AccountIdentifier)
	assert.Equal(t, 200.0, r.ObligationsTotal)
	assert.Equal(t, 100.0, r.OutlaysTotal)
	assert.Equal(t, 0.4, r.ObligationRate)
	assert.Equal(t, 0.5, r.ExecutionRate)
	assert.Equal(t, "CBP", r.SubUnitAbbreviation)
	assert.Equal(t, []int{2023, 2024}, r.ReportingFiscalYears)
}

func TestGetRunRecords_Filters(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})
	id := createRun(t, s)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?status=execution_only", 1},
		{"?status=apportionment_only&type=no-year", 1},
		{"?sub_unit=cbp", 1},
		{"?account=070-0530", 1},
		{"?account=070-2023/2025-0530-000", 1},
		{"?type=annual", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/runs/"+id+"/records"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[RecordsResponse](t, rec)
			assert.Equal(t, tt.want, resp.Total)
			assert.Len(t, resp.Records, tt.want)
		})
	}
}

func TestGetRunRecords_InvalidFilter(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})
	id := createRun(t, s)

	for _, q := range []string{"?status=partial", "?type=biennial", "?account=0530"} {
		rec := s.do(t, http.MethodGet, "/api/runs/"+id+"/records"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetRunRollups(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})
	id := createRun(t, s)

	rec := s.do(t, http.MethodGet, "/api/runs/"+id+"/rollups?by=match_status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RollupResponse](t, rec)
	assert.Equal(t, "match_status", resp.By)
	require.Len(t, resp.Rows, 3)
	assert.Equal(t, 1500.0, resp.Totals.ApportionmentTotal)
	assert.Equal(t, 3, resp.Totals.Records)
}

func TestGetRunRollups_DefaultAndInvalid(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})
	id := createRun(t, s)

	def := s.do(t, http.MethodGet, "/api/runs/"+id+"/rollups", nil)
	require.Equal(t, http.StatusOK, def.Code)
	assert.Equal(t, "sub_unit", decode[RollupResponse](t, def).By)

	bad := s.do(t, http.MethodGet, "/api/runs/"+id+"/rollups?by=color", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestGetRunDiagnostics(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})
	id := createRun(t, s)

	rec := s.do(t, http.MethodGet, "/api/runs/"+id+"/diagnostics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[lifecycle.DiagnosticsReport](t, rec)
	assert.Equal(t, 2, d.ApportionmentRows)
	assert.Equal(t, 3, d.ExecutionRows)
	assert.Equal(t, 0, d.DroppedRows)
}

func TestGetRunDocument(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})
	id := createRun(t, s)

	rec := s.do(t, http.MethodGet, "/api/runs/"+id+"/document", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[lifecycle.Document](t, rec)
	assert.Equal(t, id, doc.Metadata.RunID)
	assert.Len(t, doc.Records, 3)
}

// =============================================================================
// REFRESH
// =============================================================================

func TestRefreshRun_NoSources(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})

	rec := s.do(t, http.MethodPost, "/api/runs/refresh", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefreshRun_FromFiles(t *testing.T) {
	// GIVEN: configured CSV sources
	dir := t.TempDir()
	apps := filepath.Join(dir, "apportionment.csv")
	exes := filepath.Join(dir, "FY2024P12_All_TAS_AccountBalances.csv")
	require.NoError(t, os.WriteFile(apps, []byte(
		"Account Identifier,Fiscal Year,Amount\n070-2024/2024-0530-000,2024,1000\n"), 0o644))
	require.NoError(t, os.WriteFile(exes, []byte(
		"treasury_account_symbol,obligations_incurred,gross_outlay_amount\n070-2024/2024-0530-000,900,450\nbad,1,1\n"), 0o644))
	s := newTestServer(t, ingest.Sources{Apportionment: []string{apps}, Execution: []string{exes}})

	// WHEN: a refresh is requested
	rec := s.do(t, http.MethodPost, "/api/runs/refresh", nil)

	// THEN: a refresh run is stored with its load report
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[CreateRunResponse](t, rec)
	assert.Equal(t, "refresh", resp.Run.Trigger)
	assert.Equal(t, 1, resp.Diagnostics.Matched)
	assert.Equal(t, 1, resp.Diagnostics.DroppedExecution)
	require.NotNil(t, resp.Load)
	assert.Len(t, resp.Load.Files, 2)
}

func TestRefreshRun_MissingColumnIsUnprocessable(t *testing.T) {
	dir := t.TempDir()
	apps := filepath.Join(dir, "apportionment.csv")
	require.NoError(t, os.WriteFile(apps, []byte("account_identifier,amount\n070-2024-0530-000,1\n"), 0o644))
	s := newTestServer(t, ingest.Sources{Apportionment: []string{apps}})

	rec := s.do(t, http.MethodPost, "/api/runs/refresh", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestLoadScenario(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})

	list := decode[[]ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios", nil))
	require.NotEmpty(t, list)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "multi-year-fund"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[CreateRunResponse](t, rec)
	assert.Equal(t, "scenario:multi-year-fund", resp.Run.Source)

	unknown := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, ingest.Sources{})

	rec := s.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])
}
