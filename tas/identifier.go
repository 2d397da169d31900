/*
Package tas parses Treasury Account Symbols and classifies their
funding-availability periods.

PURPOSE:
  Both source systems (the OMB apportionment portal and the spending
  transparency bulk feed) name accounts with slightly different spellings
  of the same compound key. This package is the single place that turns
  those strings into a typed Identifier, and the single source of truth
  for the availability type of a period.

IDENTIFIER GRAMMAR:
  AGENCY-PERIOD-MAIN-SUB

  AGENCY  3 digits            "070"
  PERIOD  YYYY/YYYY | YYYY | X "2023/2025", "2024", "X"
  MAIN    4 digits            "0530"
  SUB     3 digits            "000"

  A begin year greater than the end year is malformed.

SIMPLIFIED IDENTIFIER:
  AGENCY-MAIN ("070-0530"). Display grouping only. Two different funds
  share a simplified identifier whenever they differ only in availability
  or sub-account, so it is never used as a join key for dollars.

SEE ALSO:
  - period.go: AvailabilityPeriod and Classify
  - lifecycle/engine.go: applies ParseIdentifier to every row
*/
package tas

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// IDENTIFIER
// =============================================================================

// Identifier is a parsed account identifier. It is comparable and is used
// directly as a map key by the aggregators.
type Identifier struct {
	Agency    string
	BeginYear int // 0 for no-year funds
	EndYear   int // 0 for no-year funds
	Main      string
	Sub       string
}

// Simplified is the AGENCY-MAIN display key.
type Simplified struct {
	Agency string
	Main   string
}

func (s Simplified) String() string { return s.Agency + "-" + s.Main }

var identifierPattern = regexp.MustCompile(`^(\d{3})-(X|\d{4}(?:/\d{4})?)-(\d{4})-(\d{3})$`)

var simplifiedPattern = regexp.MustCompile(`^(\d{3})-(\d{4})$`)

// ParseIdentifier parses a full account identifier. It never panics; an
// unparseable string yields a *ParseError wrapping ErrMalformed.
func ParseIdentifier(raw string) (Identifier, error) {
	s := strings.TrimSpace(raw)
	m := identifierPattern.FindStringSubmatch(s)
	if m == nil {
		return Identifier{}, &ParseError{Input: raw, Reason: "does not match AGENCY-PERIOD-MAIN-SUB"}
	}

	period, err := ParsePeriod(m[2])
	if err != nil {
		return Identifier{}, &ParseError{Input: raw, Reason: err.Error()}
	}

	return Identifier{
		Agency:    m[1],
		BeginYear: period.Begin,
		EndYear:   period.End,
		Main:      m[3],
		Sub:       m[4],
	}, nil
}

// ParseSimplified parses an AGENCY-MAIN identifier.
func ParseSimplified(raw string) (Simplified, error) {
	m := simplifiedPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Simplified{}, &ParseError{Input: raw, Reason: "does not match AGENCY-MAIN"}
	}
	return Simplified{Agency: m[1], Main: m[2]}, nil
}

// Compose builds a full identifier from a simplified identifier, a raw
// availability period and a sub-account. An empty sub defaults to "000".
// The apportionment portal publishes accounts this way.
func Compose(simple, period, sub string) (Identifier, error) {
	s, err := ParseSimplified(simple)
	if err != nil {
		return Identifier{}, err
	}
	p, err := ParsePeriod(period)
	if err != nil {
		return Identifier{}, &ParseError{Input: simple + " " + period, Reason: err.Error()}
	}
	if strings.TrimSpace(sub) == "" {
		sub = "000"
	}
	padded, err := pad(sub, 3)
	if err != nil {
		return Identifier{}, &ParseError{Input: sub, Reason: "sub account: " + err.Error()}
	}
	return Identifier{Agency: s.Agency, BeginYear: p.Begin, EndYear: p.End, Main: s.Main, Sub: padded}, nil
}

// FromComponents builds an identifier from the separate columns of the
// bulk account-balance files. Numeric codes lose their leading zeros in
// those files, so they are padded back. An empty end year means annual;
// an empty or "X" begin year means no-year.
func FromComponents(agency, beginYear, endYear, main, sub string) (Identifier, error) {
	input := strings.Join([]string{agency, beginYear, endYear, main, sub}, "|")
	fail := func(reason string) (Identifier, error) {
		return Identifier{}, &ParseError{Input: input, Reason: reason}
	}

	a, err := pad(agency, 3)
	if err != nil {
		return fail("agency: " + err.Error())
	}
	m, err := pad(main, 4)
	if err != nil {
		return fail("main account: " + err.Error())
	}
	if strings.TrimSpace(sub) == "" {
		sub = "000"
	}
	s, err := pad(sub, 3)
	if err != nil {
		return fail("sub account: " + err.Error())
	}

	begin := trimYear(beginYear)
	end := trimYear(endYear)

	var period AvailabilityPeriod
	switch {
	case begin == "" || begin == NoYearToken:
		period = AvailabilityPeriod{}
	case end == "" || end == begin:
		period, err = ParsePeriod(begin)
	default:
		period, err = ParsePeriod(begin + "/" + end)
	}
	if err != nil {
		return fail(err.Error())
	}

	return Identifier{Agency: a, BeginYear: period.Begin, EndYear: period.End, Main: m, Sub: s}, nil
}

// Period returns the availability period encoded in the identifier.
func (id Identifier) Period() AvailabilityPeriod {
	return AvailabilityPeriod{Begin: id.BeginYear, End: id.EndYear}
}

// Type classifies the identifier's availability period.
func (id Identifier) Type() AvailabilityType {
	return Classify(id.Period().String())
}

// Simplified returns the display-only AGENCY-MAIN key.
func (id Identifier) Simplified() Simplified {
	return Simplified{Agency: id.Agency, Main: id.Main}
}

// String renders the canonical form. Annual funds render as YYYY/YYYY,
// matching the bulk feed.
func (id Identifier) String() string {
	var period string
	if id.BeginYear == 0 {
		period = NoYearToken
	} else {
		period = fmt.Sprintf("%04d/%04d", id.BeginYear, id.EndYear)
	}
	return id.Agency + "-" + period + "-" + id.Main + "-" + id.Sub
}

// Less orders identifiers by agency, main, sub, then availability window.
// Output collections are sorted with it so runs are reproducible.
func (id Identifier) Less(other Identifier) bool {
	if id.Agency != other.Agency {
		return id.Agency < other.Agency
	}
	if id.Main != other.Main {
		return id.Main < other.Main
	}
	if id.Sub != other.Sub {
		return id.Sub < other.Sub
	}
	if id.BeginYear != other.BeginYear {
		return id.BeginYear < other.BeginYear
	}
	return id.EndYear < other.EndYear
}

// =============================================================================
// HELPERS
// =============================================================================

func pad(code string, width int) (string, error) {
	code = strings.TrimSpace(code)
	// Spreadsheet exports render codes as floats ("70.0").
	code = strings.TrimSuffix(code, ".0")
	if code == "" {
		return "", fmt.Errorf("empty code")
	}
	if !IsDigits(code) {
		return "", fmt.Errorf("not a numeric code: %q", code)
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return "", fmt.Errorf("not a numeric code: %q", code)
	}
	out := fmt.Sprintf("%0*d", width, n)
	if len(out) > width {
		return "", fmt.Errorf("code %q wider than %d digits", code, width)
	}
	return out, nil
}

// IsDigits reports whether s is non-empty and made of ASCII digits only.
// Signs and spaces are rejected even though strconv.Atoi accepts a sign.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func trimYear(y string) string {
	y = strings.TrimSpace(y)
	return strings.TrimSuffix(y, ".0")
}
