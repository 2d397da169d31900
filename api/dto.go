/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

Amounts arrive as strings so callers can send exact decimal values
("1234.56", "(12.00)", "$1,000"). They are typed with the same parser the
file loaders use.

Record, rollup and diagnostics payloads reuse the serialized forms in
lifecycle/output.go so the API and the CLI emit the same shapes.

SEE ALSO:
  - handlers.go: Uses these types
  - lifecycle/output.go: FlatRecord, FlatRollup, DiagnosticsReport
*/
package api

import (
	"fmt"
	"time"

	"github.com/charkitch/general-apportionment/ingest"
	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ApportionmentRowRequest is one apportionment row in a run request.
type ApportionmentRowRequest struct {
	AccountIdentifier  string `json:"account_identifier"`
	AvailabilityPeriod string `json:"availability_period,omitempty"`
	SubAccount         string `json:"sub_account,omitempty"`
	FiscalYear         int    `json:"fiscal_year"`
	Amount             string `json:"amount"`
	ApprovalDate       string `json:"approval_date,omitempty"`
	Iteration          int    `json:"iteration,omitempty"`
	IssuingSubUnit     string `json:"issuing_sub_unit,omitempty"`
	AccountTitle       string `json:"account_title,omitempty"`
}

// ExecutionRowRequest is one execution snapshot in a run request.
type ExecutionRowRequest struct {
	AccountIdentifier   string `json:"account_identifier,omitempty"`
	AgencyCode          string `json:"agency_identifier_code,omitempty"`
	BeginPeriod         string `json:"beginning_period_of_availability,omitempty"`
	EndPeriod           string `json:"ending_period_of_availability,omitempty"`
	MainAccount         string `json:"main_account_code,omitempty"`
	SubAccount          string `json:"sub_account_code,omitempty"`
	ReportingFiscalYear int    `json:"reporting_fiscal_year"`
	ReportingPeriod     int    `json:"reporting_period"`
	Obligations         string `json:"obligations"`
	Outlays             string `json:"outlays"`
	Appropriated        string `json:"appropriated_amount,omitempty"`
	UnobligatedBalance  string `json:"unobligated_balance,omitempty"`
	AccountTitle        string `json:"account_title,omitempty"`
	SnapshotDate        string `json:"snapshot_date,omitempty"`
}

// CreateRunRequest carries both feeds of one reconciliation. An absent
// array is different from an empty one: omitting both is a client error.
type CreateRunRequest struct {
	Source         string                    `json:"source,omitempty"`
	Apportionments []ApportionmentRowRequest `json:"apportionments"`
	Executions     []ExecutionRowRequest     `json:"executions"`
}

// Input types the request rows. The first untypeable value fails the
// request; callers control their payload and can fix it.
func (req CreateRunRequest) Input() (lifecycle.Input, error) {
	var in lifecycle.Input

	if req.Apportionments != nil {
		in.Apportionments = make([]lifecycle.ApportionmentRecord, 0, len(req.Apportionments))
	}
	for i, row := range req.Apportionments {
		amount, err := ingest.ParseAmount(row.Amount)
		if err != nil {
			return lifecycle.Input{}, fmt.Errorf("apportionments[%d].amount: %w", i, err)
		}
		var approved time.Time
		if row.ApprovalDate != "" {
			if approved, err = ingest.ParseDate(row.ApprovalDate); err != nil {
				return lifecycle.Input{}, fmt.Errorf("apportionments[%d].approval_date: %w", i, err)
			}
		}
		iteration := row.Iteration
		if iteration == 0 {
			iteration = 1
		}
		in.Apportionments = append(in.Apportionments, lifecycle.ApportionmentRecord{
			AccountIdentifier:  row.AccountIdentifier,
			AvailabilityPeriod: row.AvailabilityPeriod,
			SubAccount:         row.SubAccount,
			FiscalYear:         row.FiscalYear,
			Amount:             amount,
			ApprovalDate:       approved,
			Iteration:          iteration,
			SubUnit:            row.IssuingSubUnit,
			AccountTitle:       row.AccountTitle,
		})
	}

	if req.Executions != nil {
		in.Executions = make([]lifecycle.ExecutionRecord, 0, len(req.Executions))
	}
	for i, row := range req.Executions {
		if row.ReportingFiscalYear <= 0 {
			return lifecycle.Input{}, fmt.Errorf("executions[%d].reporting_fiscal_year: must be a positive number", i)
		}
		if row.ReportingPeriod <= 0 {
			return lifecycle.Input{}, fmt.Errorf("executions[%d].reporting_period: must be a positive number", i)
		}
		rec := lifecycle.ExecutionRecord{
			AccountIdentifier:   row.AccountIdentifier,
			AgencyCode:          row.AgencyCode,
			BeginPeriod:         row.BeginPeriod,
			EndPeriod:           row.EndPeriod,
			MainAccount:         row.MainAccount,
			SubAccount:          row.SubAccount,
			ReportingFiscalYear: row.ReportingFiscalYear,
			ReportingPeriod:     row.ReportingPeriod,
			AccountTitle:        row.AccountTitle,
			Sequence:            i,
		}
		amounts := []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"obligations", row.Obligations, &rec.Obligations},
			{"outlays", row.Outlays, &rec.Outlays},
			{"appropriated_amount", row.Appropriated, &rec.Appropriated},
			{"unobligated_balance", row.UnobligatedBalance, &rec.UnobligatedBalance},
		}
		for _, a := range amounts {
			v, err := ingest.ParseAmount(a.raw)
			if err != nil {
				return lifecycle.Input{}, fmt.Errorf("executions[%d].%s: %w", i, a.name, err)
			}
			*a.dst = v
		}
		if row.SnapshotDate != "" {
			t, err := ingest.ParseDate(row.SnapshotDate)
			if err != nil {
				return lifecycle.Input{}, fmt.Errorf("executions[%d].snapshot_date: %w", i, err)
			}
			rec.SnapshotDate = t
		}
		in.Executions = append(in.Executions, rec)
	}

	return in, nil
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RunDTO is a run in list responses.
type RunDTO struct {
	ID                string `json:"id"`
	Trigger           string `json:"trigger"`
	Source            string `json:"source,omitempty"`
	CreatedAt         string `json:"created_at"`
	Records           int    `json:"records"`
	Matched           int    `json:"matched"`
	ApportionmentOnly int    `json:"apportionment_only"`
	ExecutionOnly     int    `json:"execution_only"`
	DroppedRows       int    `json:"dropped_rows"`
}

func toRunDTO(s lifecycle.RunSummary) RunDTO {
	return RunDTO{
		ID:                s.ID,
		Trigger:           string(s.Trigger),
		Source:            s.Source,
		CreatedAt:         s.CreatedAt.UTC().Format(time.RFC3339),
		Records:           s.Records,
		Matched:           s.Matched,
		ApportionmentOnly: s.ApportionmentOnly,
		ExecutionOnly:     s.ExecutionOnly,
		DroppedRows:       s.DroppedRows,
	}
}

// RunDetailResponse is a single run with its headline numbers.
type RunDetailResponse struct {
	RunDTO
	Metadata    lifecycle.Metadata          `json:"metadata"`
	Diagnostics lifecycle.DiagnosticsReport `json:"diagnostics"`
}

// RecordsResponse lists the records of a run after filtering.
type RecordsResponse struct {
	RunID   string                 `json:"run_id"`
	Total   int                    `json:"total"`
	Records []lifecycle.FlatRecord `json:"records"`
}

// RollupResponse groups the records of a run along one dimension.
type RollupResponse struct {
	RunID  string                 `json:"run_id"`
	By     string                 `json:"by"`
	Rows   []lifecycle.FlatRollup `json:"rows"`
	Totals lifecycle.FlatRollup   `json:"totals"`
}

// LoadReportDTO summarizes the source files behind a refresh.
type LoadReportDTO struct {
	Files       []FileDTO `json:"files"`
	SkippedRows int       `json:"skipped_rows"`
}

type FileDTO struct {
	Path    string `json:"path"`
	Feed    string `json:"feed"`
	Rows    int    `json:"rows"`
	Skipped int    `json:"skipped"`
}

func toLoadReportDTO(r *ingest.Report) *LoadReportDTO {
	if r == nil {
		return nil
	}
	dto := &LoadReportDTO{Files: make([]FileDTO, 0, len(r.Files)), SkippedRows: r.Skipped()}
	for _, f := range r.Files {
		dto.Files = append(dto.Files, FileDTO{Path: f.Path, Feed: f.Feed, Rows: f.Rows, Skipped: f.Skipped})
	}
	return dto
}

// CreateRunResponse is returned after a run is stored.
type CreateRunResponse struct {
	Run         RunDTO                      `json:"run"`
	Diagnostics lifecycle.DiagnosticsReport `json:"diagnostics"`
	Load        *LoadReportDTO              `json:"load,omitempty"`
}

// ErrorResponse is the error payload of every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
