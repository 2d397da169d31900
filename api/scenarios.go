/*
scenarios.go - Demo reconciliation scenarios

PURPOSE:

	Provides pre-built inputs that exercise the reconciliation rules end to
	end. Loading a scenario reconciles it and stores the result as a normal
	run, so a frontend can be demonstrated without source files.

AVAILABLE SCENARIOS:

	multi-year-fund:      One 2023/2025 fund reported in three fiscal years
	superseded-iteration: A reapportionment replaces the first approval
	duplicate-snapshot:   The same period resubmitted with corrected numbers
	format-drift:         Feeds disagree on the availability window
	mixed-portfolio:      Annual, multi-year and no-year funds side by side

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "multi-year-fund"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Write a builder returning lifecycle.Input
 3. Register it in scenarioInputs

SEE ALSO:
  - handlers.go: Run endpoints
  - runner.go: Reconcile
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charkitch/general-apportionment/lifecycle"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to reconcile.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "multi-year-fund",
		Name:        "Multi-Year Fund",
		Description: "A 2023/2025 fund reports obligations in three fiscal years; totals are summed across them",
	},
	{
		ID:          "superseded-iteration",
		Name:        "Superseded Iteration",
		Description: "A reapportionment (iteration 2) replaces iteration 1 for the same fiscal year",
	},
	{
		ID:          "duplicate-snapshot",
		Name:        "Duplicate Snapshot",
		Description: "A resubmitted reporting period replaces the earlier snapshot instead of adding to it",
	},
	{
		ID:          "format-drift",
		Name:        "Format Drift",
		Description: "The feeds spell the availability window differently; both sides stay unmatched and a near miss is reported",
	},
	{
		ID:          "mixed-portfolio",
		Name:        "Mixed Portfolio",
		Description: "Annual, multi-year and no-year funds with matched and unmatched accounts",
	},
}

var scenarioInputs = map[string]func() lifecycle.Input{
	"multi-year-fund":      multiYearFundScenario,
	"superseded-iteration": supersededIterationScenario,
	"duplicate-snapshot":   duplicateSnapshotScenario,
	"format-drift":         formatDriftScenario,
	"mixed-portfolio":      mixedPortfolioScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario reconciles a scenario and stores it as a run.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	build, ok := scenarioInputs[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}

	run, err := h.Runner.Reconcile(r.Context(), lifecycle.TriggerAPI, "scenario:"+req.ScenarioID, build())
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateRunResponse{
		Run:         toRunDTO(run.Summary()),
		Diagnostics: lifecycle.ReportDiagnostics(run.Diagnostics),
	})
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

const (
	cbp  = "U.S. Customs and Border Protection"
	fema = "Federal Emergency Management Agency"
	uscg = "United States Coast Guard"
)

func apportioned(id string, fy int, amount int64, iteration int, subUnit, title string) lifecycle.ApportionmentRecord {
	return lifecycle.ApportionmentRecord{
		AccountIdentifier: id,
		FiscalYear:        fy,
		Amount:            decimal.NewFromInt(amount),
		ApprovalDate:      time.Date(fy-1, time.October, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 30*(iteration-1)),
		Iteration:         iteration,
		SubUnit:           subUnit,
		AccountTitle:      title,
	}
}

func executed(id string, fy, period int, obligations, outlays int64, title string) lifecycle.ExecutionRecord {
	return lifecycle.ExecutionRecord{
		AccountIdentifier:   id,
		ReportingFiscalYear: fy,
		ReportingPeriod:     period,
		Obligations:         decimal.NewFromInt(obligations),
		Outlays:             decimal.NewFromInt(outlays),
		Appropriated:        decimal.Zero,
		UnobligatedBalance:  decimal.Zero,
		AccountTitle:        title,
		SnapshotDate:        time.Date(fy, time.Month(period%12+1), 15, 0, 0, 0, 0, time.UTC),
	}
}

func multiYearFundScenario() lifecycle.Input {
	const id = "070-2023/2025-0530-000"
	return lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{
			apportioned(id, 2023, 500_000_000, 1, cbp, "Procurement, Construction, and Improvements"),
		},
		Executions: []lifecycle.ExecutionRecord{
			executed(id, 2023, 12, 100_000_000, 20_000_000, "Procurement, Construction, and Improvements, CBP"),
			executed(id, 2024, 12, 150_000_000, 80_000_000, "Procurement, Construction, and Improvements, CBP"),
			executed(id, 2025, 6, 50_000_000, 100_000_000, "Procurement, Construction, and Improvements, CBP"),
		},
	}
}

func supersededIterationScenario() lifecycle.Input {
	const id = "070-2024/2024-0700-000"
	return lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{
			apportioned(id, 2024, 12_000_000_000, 1, fema, "Disaster Relief Fund"),
			apportioned(id, 2024, 20_000_000_000, 2, fema, "Disaster Relief Fund"),
		},
		Executions: []lifecycle.ExecutionRecord{
			executed(id, 2024, 12, 18_000_000_000, 9_000_000_000, "Disaster Relief Fund, FEMA"),
		},
	}
}

func duplicateSnapshotScenario() lifecycle.Input {
	const id = "070-2024/2024-0610-000"
	first := executed(id, 2024, 9, 700_000_000, 300_000_000, "Operations and Support, USCG")
	corrected := executed(id, 2024, 9, 750_000_000, 320_000_000, "Operations and Support, USCG")
	corrected.SnapshotDate = first.SnapshotDate.AddDate(0, 0, 14)
	corrected.Sequence = 1
	return lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{
			apportioned(id, 2024, 1_000_000_000, 1, uscg, "Operations and Support"),
		},
		Executions: []lifecycle.ExecutionRecord{first, corrected},
	}
}

func formatDriftScenario() lifecycle.Input {
	return lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{
			apportioned("070-2024/2025-0531-000", 2024, 80_000_000, 1, cbp, "Procurement, Construction, and Improvements"),
		},
		Executions: []lifecycle.ExecutionRecord{
			executed("070-2024/2026-0531-000", 2024, 12, 60_000_000, 10_000_000, "Procurement, Construction, and Improvements, CBP"),
		},
	}
}

func mixedPortfolioScenario() lifecycle.Input {
	in := lifecycle.Input{
		Apportionments: []lifecycle.ApportionmentRecord{
			apportioned("070-2024/2024-0530-000", 2024, 15_000_000_000, 1, cbp, "Operations and Support"),
			apportioned("070-X-0702-000", 2024, 25_000_000_000, 1, fema, "Disaster Relief Fund"),
			apportioned("070-X-0702-000", 2025, 22_000_000_000, 1, fema, "Disaster Relief Fund"),
			apportioned("070-2024/2028-0613-000", 2024, 1_500_000_000, 1, uscg, "Procurement, Construction, and Improvements"),
		},
		Executions: []lifecycle.ExecutionRecord{
			executed("070-2024/2024-0530-000", 2024, 12, 14_200_000_000, 12_900_000_000, "Operations and Support, CBP"),
			executed("070-X-0702-000", 2024, 12, 31_000_000_000, 20_000_000_000, "Disaster Relief Fund, FEMA"),
			executed("070-X-0702-000", 2025, 6, 12_000_000_000, 9_500_000_000, "Disaster Relief Fund, FEMA"),
			executed("070-X-8244-000", 2024, 12, 40_000_000, 35_000_000, "Gifts and Donations, DHS"),
		},
	}
	return in
}
