package ingest

import "strings"

// =============================================================================
// COLUMN ALIASES
// =============================================================================
// The first alias present in a header row wins. Headers are compared after
// normalizeHeader, so "Fiscal Year" and "fiscal_year" are the same column.
// =============================================================================

type field string

const (
	fAccountIdentifier  field = "account_identifier"
	fAvailabilityPeriod field = "availability_period"
	fSubAccount         field = "sub_account"
	fFiscalYear         field = "fiscal_year"
	fAmount             field = "amount"
	fApprovalDate       field = "approval_date"
	fIteration          field = "iteration"
	fSubUnit            field = "issuing_sub_unit"
	fAccountTitle       field = "account_title"

	fAgencyCode          field = "agency_identifier_code"
	fBeginPeriod         field = "beginning_period_of_availability"
	fEndPeriod           field = "ending_period_of_availability"
	fAvailabilityType    field = "availability_type_code"
	fMainAccount         field = "main_account_code"
	fReportingFiscalYear field = "reporting_fiscal_year"
	fReportingPeriod     field = "reporting_period"
	fObligations         field = "obligations_incurred"
	fOutlays             field = "gross_outlay_amount"
	fAppropriated        field = "budget_authority_appropriated_amount"
	fUnobligated         field = "unobligated_balance"
	fSnapshotDate        field = "snapshot_date"
)

var apportionmentAliases = map[field][]string{
	fAccountIdentifier:  {"account_identifier", "tas_full", "treasury_account_symbol", "tas"},
	fAvailabilityPeriod: {"availability_period"},
	fSubAccount:         {"sub_account_code", "sub_account"},
	fFiscalYear:         {"fiscal_year", "fy"},
	fAmount:             {"amount", "approved_amount"},
	fApprovalDate:       {"approval_date", "approval_timestamp", "approvaltimestamp"},
	fIteration:          {"iteration"},
	fSubUnit:            {"issuing_sub_unit", "bureau", "budget_bureau_title"},
	fAccountTitle:       {"account_title", "account"},
}

var executionAliases = map[field][]string{
	fAccountIdentifier:   {"account_identifier", "treasury_account_symbol", "tas_full", "tas"},
	fAgencyCode:          {"agency_identifier_code"},
	fBeginPeriod:         {"beginning_period_of_availability"},
	fEndPeriod:           {"ending_period_of_availability"},
	fAvailabilityType:    {"availability_type_code"},
	fMainAccount:         {"main_account_code"},
	fSubAccount:          {"sub_account_code"},
	fReportingFiscalYear: {"reporting_fiscal_year", "submission_fiscal_year", "fiscal_year"},
	fReportingPeriod:     {"reporting_period", "reporting_fiscal_period", "submission_fiscal_period", "fiscal_period"},
	fObligations:         {"obligations_incurred", "obligations"},
	fOutlays:             {"gross_outlay_amount", "outlays"},
	fAppropriated:        {"budget_authority_appropriated_amount", "appropriated_amount"},
	fUnobligated:         {"unobligated_balance"},
	fAccountTitle:        {"account_title", "treasury_account_name"},
	fSnapshotDate:        {"snapshot_date", "last_modified_date"},
}

// columnMap resolves fields to column indexes.
type columnMap map[field]int

func mapColumns(headers []string, aliases map[field][]string) columnMap {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	cols := make(columnMap)
	for f, names := range aliases {
		for _, name := range names {
			if i, ok := index[name]; ok {
				cols[f] = i
				break
			}
		}
	}
	return cols
}

func (c columnMap) has(f field) bool {
	_, ok := c[f]
	return ok
}

// get returns the trimmed cell for f, or "" when the column or cell is
// absent.
func (c columnMap) get(row []string, f field) string {
	i, ok := c[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columnMap) require(source string, fields ...field) error {
	for _, f := range fields {
		if !c.has(f) {
			return &MissingColumnError{Source: source, Column: string(f)}
		}
	}
	return nil
}
