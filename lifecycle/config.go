package lifecycle

import (
	"strings"

	"github.com/charkitch/general-apportionment/tas"
)

// =============================================================================
// CONFIG - reference data passed into each run
// =============================================================================

// Config holds the reference tables a run consults. It is read-only once
// handed to an Engine and may be shared by concurrent runs.
type Config struct {
	// Agency restricts a run to one three-digit agency code. Empty means
	// every agency is kept.
	Agency string

	// SubUnitByAccount maps AGENCY-MAIN to an issuing sub-unit. It labels
	// records the apportionment feed did not name.
	SubUnitByAccount map[string]string

	// Abbreviations maps a sub-unit's full name to its short label.
	Abbreviations map[string]string

	// FundTypes maps a four-digit main account code to its FAST Book fund
	// type.
	FundTypes map[string]string

	// BudgetCategories overrides the default fund type -> category rule.
	BudgetCategories map[string]string

	// CumulativePeriods treats execution balances as year-to-date: only
	// the latest reporting period of each reporting year contributes.
	CumulativePeriods bool
}

const (
	UnknownFundType = "Unknown"

	CategoryDiscretionary = "Discretionary"
	CategoryMandatory     = "Mandatory"
	CategoryOther         = "Other"
)

// FundType returns the FAST Book fund type of a main account.
func (c Config) FundType(main string) string {
	if ft, ok := c.FundTypes[main]; ok && ft != "" {
		return ft
	}
	return UnknownFundType
}

// BudgetCategory derives the enforcement category of a fund type.
//
//	General Fund(s)                        -> Discretionary
//	Trust, Special or Revolving Funds      -> Mandatory
//	anything else                          -> Other
func (c Config) BudgetCategory(fundType string) string {
	if cat, ok := c.BudgetCategories[fundType]; ok {
		return cat
	}
	switch strings.TrimSpace(fundType) {
	case "General Funds", "General Fund":
		return CategoryDiscretionary
	case "Trust Funds", "Special Funds", "Revolving Funds":
		return CategoryMandatory
	default:
		return CategoryOther
	}
}

// Abbreviation returns the short label for a sub-unit, or "".
func (c Config) Abbreviation(subUnit string) string {
	return c.Abbreviations[subUnit]
}

func (c Config) keepsAgency(id tas.Identifier) bool {
	return c.Agency == "" || c.Agency == id.Agency
}

func (c Config) fallbackSubUnit(s tas.Simplified) string {
	return c.SubUnitByAccount[s.String()]
}
