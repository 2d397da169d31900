/*
Package factory builds the engine's reference configuration from YAML.

PURPOSE:
  Sub-unit names, abbreviations and FAST Book fund types change a few times
  a year and are maintained by budget analysts, not developers. They live
  in a YAML file; the factory validates it and produces a lifecycle.Config.

YAML SCHEMA:
  agency: "070"
  cumulative_periods: false
  sub_units:
    - name: U.S. Customs and Border Protection
      abbreviation: CBP
      accounts: ["0530", "070-0532"]
  fund_types:
    "0530": General Funds
    "8244": Trust Funds
  fund_types_csv: data/fast_book/fund_type_mapping.csv
  budget_categories:
    Deposit Funds: Other

  accounts are AGENCY-MAIN or a bare MAIN, which is prefixed with agency.
  fund_types_csv is a FAST Book extract; inline fund_types win over it.

USAGE:
  f := factory.NewReferenceFactory()
  cfg, err := f.LoadReference("config/reference.yaml")
  engine := lifecycle.NewEngine(cfg)

SEE ALSO:
  - lifecycle/config.go: the Config this produces
  - presets.go: the built-in DHS reference
*/
package factory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/charkitch/general-apportionment/lifecycle"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// ReferenceYAML is the YAML representation of the reference data.
type ReferenceYAML struct {
	Agency            string            `yaml:"agency"`
	CumulativePeriods bool              `yaml:"cumulative_periods"`
	SubUnits          []SubUnitYAML     `yaml:"sub_units"`
	FundTypes         map[string]string `yaml:"fund_types"`
	FundTypesCSV      string            `yaml:"fund_types_csv"`
	BudgetCategories  map[string]string `yaml:"budget_categories"`
}

// SubUnitYAML is one issuing sub-unit.
type SubUnitYAML struct {
	Name         string   `yaml:"name"`
	Abbreviation string   `yaml:"abbreviation"`
	Aliases      []string `yaml:"aliases"`
	Accounts     []string `yaml:"accounts"`
}

var (
	agencyPattern     = regexp.MustCompile(`^\d{3}$`)
	mainPattern       = regexp.MustCompile(`^\d{4}$`)
	simplifiedPattern = regexp.MustCompile(`^\d{3}-\d{4}$`)
)

// =============================================================================
// FACTORY
// =============================================================================

// ReferenceFactory creates lifecycle.Config values from YAML.
type ReferenceFactory struct{}

func NewReferenceFactory() *ReferenceFactory {
	return &ReferenceFactory{}
}

// LoadReference reads a YAML file. A relative fund_types_csv is resolved
// against the YAML file's directory.
func (f *ReferenceFactory) LoadReference(path string) (lifecycle.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lifecycle.Config{}, fmt.Errorf("failed to read reference %s: %w", path, err)
	}
	return f.parse(data, filepath.Dir(path))
}

// ParseReference parses YAML bytes.
func (f *ReferenceFactory) ParseReference(data []byte) (lifecycle.Config, error) {
	return f.parse(data, ".")
}

func (f *ReferenceFactory) parse(data []byte, baseDir string) (lifecycle.Config, error) {
	var ref ReferenceYAML
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return lifecycle.Config{}, fmt.Errorf("invalid reference YAML: %w", err)
	}
	return f.Build(ref, baseDir)
}

// Build validates a decoded reference and converts it.
func (f *ReferenceFactory) Build(ref ReferenceYAML, baseDir string) (lifecycle.Config, error) {
	if ref.Agency != "" && !agencyPattern.MatchString(ref.Agency) {
		return lifecycle.Config{}, fmt.Errorf("agency %q must be three digits", ref.Agency)
	}

	cfg := lifecycle.Config{
		Agency:            ref.Agency,
		CumulativePeriods: ref.CumulativePeriods,
		SubUnitByAccount:  make(map[string]string),
		Abbreviations:     make(map[string]string),
		FundTypes:         make(map[string]string),
		BudgetCategories:  make(map[string]string),
	}

	for _, su := range ref.SubUnits {
		if su.Name == "" {
			return lifecycle.Config{}, fmt.Errorf("sub_unit without name")
		}
		if su.Abbreviation != "" {
			cfg.Abbreviations[su.Name] = su.Abbreviation
			for _, alias := range su.Aliases {
				cfg.Abbreviations[alias] = su.Abbreviation
			}
		}
		for _, acct := range su.Accounts {
			key, err := accountKey(ref.Agency, acct)
			if err != nil {
				return lifecycle.Config{}, fmt.Errorf("sub_unit %q: %w", su.Name, err)
			}
			if owner, dup := cfg.SubUnitByAccount[key]; dup && owner != su.Name {
				return lifecycle.Config{}, fmt.Errorf("account %s claimed by both %q and %q", key, owner, su.Name)
			}
			cfg.SubUnitByAccount[key] = su.Name
		}
	}

	if ref.FundTypesCSV != "" {
		path := ref.FundTypesCSV
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		fundTypes, err := LoadFastBook(path)
		if err != nil {
			return lifecycle.Config{}, err
		}
		for main, ft := range fundTypes {
			cfg.FundTypes[main] = ft
		}
	}
	for main, ft := range ref.FundTypes {
		if !mainPattern.MatchString(main) {
			return lifecycle.Config{}, fmt.Errorf("fund_types key %q must be a four-digit main account", main)
		}
		cfg.FundTypes[main] = normalizeFundType(ft)
	}

	for ft, cat := range ref.BudgetCategories {
		cfg.BudgetCategories[normalizeFundType(ft)] = cat
	}

	return cfg, nil
}

func accountKey(agency, acct string) (string, error) {
	acct = strings.TrimSpace(acct)
	switch {
	case simplifiedPattern.MatchString(acct):
		return acct, nil
	case mainPattern.MatchString(acct) && agency != "":
		return agency + "-" + acct, nil
	case mainPattern.MatchString(acct):
		return "", fmt.Errorf("bare account %q needs an agency", acct)
	}
	return "", fmt.Errorf("account %q is neither AGENCY-MAIN nor MAIN", acct)
}

// =============================================================================
// FAST BOOK
// =============================================================================

// ParseFastBook reads a FAST Book extract with "TAS" and "Fund Type"
// columns. TAS cells look like "070 0530", "070X0530" or "070X0530.001";
// the four-digit main account is kept.
func ParseFastBook(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read FAST Book: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("FAST Book is empty")
	}

	tasCol, ftCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "tas":
			tasCol = i
		case "fund type":
			ftCol = i
		}
	}
	if tasCol < 0 || ftCol < 0 {
		return nil, fmt.Errorf("FAST Book needs TAS and Fund Type columns")
	}

	out := make(map[string]string)
	for _, row := range rows[1:] {
		if tasCol >= len(row) || ftCol >= len(row) {
			continue
		}
		main := fastBookMain(row[tasCol])
		ft := normalizeFundType(row[ftCol])
		if main == "" || ft == "" {
			continue
		}
		out[main] = ft
	}
	return out, nil
}

// LoadFastBook reads a FAST Book extract from disk.
func LoadFastBook(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FAST Book %s: %w", path, err)
	}
	defer f.Close()
	return ParseFastBook(f)
}

func fastBookMain(tas string) string {
	tas = strings.TrimSpace(tas)
	if len(tas) < 8 {
		return ""
	}
	main, _, _ := strings.Cut(tas[4:], ".")
	main = strings.TrimSpace(main)
	if !mainPattern.MatchString(main) {
		return ""
	}
	return main
}

// normalizeFundType folds the FAST Book's spelling variants.
func normalizeFundType(ft string) string {
	ft = strings.TrimSpace(ft)
	if ft == "General Fund" {
		return "General Funds"
	}
	return ft
}
