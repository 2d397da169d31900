/*
handlers.go - HTTP API handlers for the reconciliation engine

PURPOSE:
  Exposes reconciliation runs via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the Runner and the run store.

ENDPOINTS:
  Health:
    GET    /api/health                   Liveness check

  Runs:
    GET    /api/runs                     List runs, newest first (?limit=)
    POST   /api/runs                     Reconcile rows in the request body
    POST   /api/runs/refresh             Reconcile the configured source files
    GET    /api/runs/{id}                Run summary, totals and diagnostics
    GET    /api/runs/{id}/document       Full output document
    GET    /api/runs/{id}/records        Records (?status=&sub_unit=&type=&account=)
    GET    /api/runs/{id}/rollups        Rollups (?by=sub_unit|account|...)
    GET    /api/runs/{id}/diagnostics    Diagnostics only

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Reconcile a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, unknown filter value, no input collections
  - 404: Run not found
  - 409: Refresh requested with no configured sources
  - 422: Source files unusable, or the run produced no records
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - runner.go: Reconcile and Refresh
  - scenarios.go: Demo scenario inputs
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/charkitch/general-apportionment/ingest"
	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/tas"
)

// defaultMaxBodyBytes bounds POST /api/runs bodies.
const defaultMaxBodyBytes = 64 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  lifecycle.RunStore
	Runner *Runner

	// MaxBodyBytes caps request bodies; zero means the default.
	MaxBodyBytes int64

	logger *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(store lifecycle.RunStore, runner *Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:  store,
		Runner: runner,
		logger: logger,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports that the server is up.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"sources": h.Runner.HasSources(),
	})
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns stored runs, newest first.
// GET /api/runs?limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	summaries, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(summaries))
	for _, s := range summaries {
		dtos = append(dtos, toRunDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRun reconciles the rows in the request body and stores the run.
// POST /api/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := req.Input()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid row", err)
		return
	}

	source := req.Source
	if source == "" {
		source = "request"
	}
	run, err := h.Runner.Reconcile(r.Context(), lifecycle.TriggerAPI, source, in)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateRunResponse{
		Run:         toRunDTO(run.Summary()),
		Diagnostics: lifecycle.ReportDiagnostics(run.Diagnostics),
	})
}

// RefreshRun reloads the configured source files into a new run.
// POST /api/runs/refresh
func (h *Handler) RefreshRun(w http.ResponseWriter, r *http.Request) {
	run, report, err := h.Runner.Refresh(r.Context(), lifecycle.TriggerRefresh)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateRunResponse{
		Run:         toRunDTO(run.Summary()),
		Diagnostics: lifecycle.ReportDiagnostics(run.Diagnostics),
		Load:        toLoadReportDTO(report),
	})
}

// GetRun returns one run's summary, totals and diagnostics.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	doc := run.Document()
	writeJSON(w, http.StatusOK, RunDetailResponse{
		RunDTO:      toRunDTO(run.Summary()),
		Metadata:    doc.Metadata,
		Diagnostics: doc.Diagnostics,
	})
}

// GetRunDocument returns the complete output document of a run.
// GET /api/runs/{id}/document
func (h *Handler) GetRunDocument(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run.Document())
}

// GetRunRecords returns a run's records, optionally filtered.
// GET /api/runs/{id}/records?status=both&sub_unit=CBP&type=multi-year&account=070-0530
func (h *Handler) GetRunRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	var kept []lifecycle.ReconciledRecord
	for _, rec := range run.Records {
		if filter.matches(rec) {
			kept = append(kept, rec)
		}
	}

	writeJSON(w, http.StatusOK, RecordsResponse{
		RunID:   run.ID,
		Total:   len(kept),
		Records: lifecycle.Flatten(kept),
	})
}

// GetRunRollups groups a run's records along one dimension.
// GET /api/runs/{id}/rollups?by=sub_unit
func (h *Handler) GetRunRollups(w http.ResponseWriter, r *http.Request) {
	by := r.URL.Query().Get("by")
	if by == "" {
		by = string(lifecycle.BySubUnit)
	}
	dim, err := lifecycle.ParseDimension(by)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rollup dimension", err)
		return
	}

	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	rows, err := lifecycle.Rollup(run.Records, dim)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute rollup", err)
		return
	}

	writeJSON(w, http.StatusOK, RollupResponse{
		RunID:  run.ID,
		By:     string(dim),
		Rows:   lifecycle.FlattenRollup(rows),
		Totals: lifecycle.FlattenRollup([]lifecycle.RollupRow{lifecycle.Totals(run.Records)})[0],
	})
}

// GetRunDiagnostics returns only the diagnostics of a run.
// GET /api/runs/{id}/diagnostics
func (h *Handler) GetRunDiagnostics(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, lifecycle.ReportDiagnostics(run.Diagnostics))
}

// =============================================================================
// FILTERS
// =============================================================================

type recordFilter struct {
	status  lifecycle.MatchStatus
	subUnit string
	typ     tas.AvailabilityType
	account string
}

func parseRecordFilter(r *http.Request) (recordFilter, error) {
	q := r.URL.Query()
	f := recordFilter{
		subUnit: strings.TrimSpace(q.Get("sub_unit")),
		account: strings.TrimSpace(q.Get("account")),
	}

	switch s := lifecycle.MatchStatus(q.Get("status")); s {
	case "", lifecycle.MatchBoth, lifecycle.MatchApportionmentOnly, lifecycle.MatchExecutionOnly:
		f.status = s
	default:
		return f, errors.New("status must be both, apportionment_only or execution_only")
	}

	switch t := tas.AvailabilityType(q.Get("type")); t {
	case "", tas.Annual, tas.MultiYear, tas.NoYear:
		f.typ = t
	default:
		return f, errors.New("type must be annual, multi-year or no-year")
	}

	if f.account != "" {
		if simple, err := tas.ParseSimplified(f.account); err == nil {
			f.account = simple.String()
		} else {
			id, err := tas.ParseIdentifier(f.account)
			if err != nil {
				return f, err
			}
			f.account = id.String()
		}
	}

	return f, nil
}

func (f recordFilter) matches(rec lifecycle.ReconciledRecord) bool {
	if f.status != "" && rec.Status != f.status {
		return false
	}
	if f.typ != "" && rec.Type != f.typ {
		return false
	}
	if f.subUnit != "" &&
		!strings.EqualFold(rec.SubUnit, f.subUnit) &&
		!strings.EqualFold(rec.SubUnitAbbreviation, f.subUnit) {
		return false
	}
	if f.account != "" &&
		rec.Simplified.String() != f.account &&
		rec.Identifier.String() != f.account {
		return false
	}
	return true
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*lifecycle.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		if lifecycle.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Run not found", err)
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to load run", err)
		return nil, false
	}
	return run, true
}

// writeRunError maps a Reconcile or Refresh failure to a status code.
func (h *Handler) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNoRecords):
		writeError(w, http.StatusUnprocessableEntity, "Run produced no reconciled records", err)
	case lifecycle.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid run input", err)
	case errors.Is(err, ErrNoSources):
		writeError(w, http.StatusConflict, "No source files configured", err)
	case errors.Is(err, ingest.ErrMissingColumn),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, ingest.ErrEmptySource):
		writeError(w, http.StatusUnprocessableEntity, "Source files unusable", err)
	default:
		h.logger.Error("run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Run failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
