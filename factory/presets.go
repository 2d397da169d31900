package factory

import (
	"fmt"

	"github.com/charkitch/general-apportionment/lifecycle"
)

// DHSReferenceYAML is the reference data for the Department of Homeland
// Security (agency 070). Sub-unit names match the apportionment portal's
// bureau titles.
const DHSReferenceYAML = `
agency: "070"
sub_units:
  - name: Analysis and Operations
    abbreviation: A&O
  - name: Citizenship and Immigration Services
    abbreviation: USCIS
  - name: Countering Weapons of Mass Destruction Office
    abbreviation: CWMD
  - name: Cybersecurity and Infrastructure Security Agency
    abbreviation: CISA
  - name: Federal Emergency Management Agency
    abbreviation: FEMA
  - name: Federal Law Enforcement Training Centers
    abbreviation: FLETC
    aliases: [Federal Law Enforcement Training Center]
  - name: Management Directorate
    abbreviation: MGMT
  - name: Office of the Inspector General
    abbreviation: OIG
  - name: Office of the Secretary and Executive Management
    abbreviation: OSEM
  - name: Science and Technology
    abbreviation: S&T
  - name: Transportation Security Administration
    abbreviation: TSA
  - name: U.S. Customs and Border Protection
    abbreviation: CBP
  - name: U.S. Immigration and Customs Enforcement
    abbreviation: ICE
  - name: United States Coast Guard
    abbreviation: USCG
  - name: United States Secret Service
    abbreviation: USSS
`

// DHSReference returns the built-in DHS reference configuration.
func DHSReference() lifecycle.Config {
	cfg, err := NewReferenceFactory().ParseReference([]byte(DHSReferenceYAML))
	if err != nil {
		panic("factory: built-in DHS reference is invalid: " + err.Error())
	}
	return cfg
}

// ResolveReference loads the reference at path, or the DHS preset when path
// is empty, then applies the agency and cumulative-period overrides. An
// empty agency keeps the reference's own.
func ResolveReference(path, agency string, cumulative bool) (lifecycle.Config, error) {
	var cfg lifecycle.Config
	if path == "" {
		cfg = DHSReference()
	} else {
		loaded, err := NewReferenceFactory().LoadReference(path)
		if err != nil {
			return lifecycle.Config{}, err
		}
		cfg = loaded
	}

	if agency != "" {
		if !agencyPattern.MatchString(agency) {
			return lifecycle.Config{}, fmt.Errorf("agency %q must be three digits", agency)
		}
		cfg.Agency = agency
	}
	if cumulative {
		cfg.CumulativePeriods = true
	}
	return cfg, nil
}
