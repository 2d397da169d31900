package tas

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// AVAILABILITY PERIOD
// =============================================================================

// NoYearToken marks funds that never expire. Case-sensitive.
const NoYearToken = "X"

// AvailabilityType is derived from a period string and never read from
// upstream labels.
type AvailabilityType string

const (
	Annual    AvailabilityType = "annual"
	MultiYear AvailabilityType = "multi-year"
	NoYear    AvailabilityType = "no-year"
)

// AvailabilityPeriod is the fiscal-year window in which funds may be
// obligated. The zero value is a no-year period.
type AvailabilityPeriod struct {
	Begin int
	End   int
}

// ParsePeriod accepts "X", "YYYY" and "YYYY/YYYY".
func ParsePeriod(raw string) (AvailabilityPeriod, error) {
	s := strings.TrimSpace(raw)
	if s == NoYearToken {
		return AvailabilityPeriod{}, nil
	}

	beginStr, endStr, multi := strings.Cut(s, "/")
	if !multi {
		endStr = beginStr
	}
	begin, err := parseYear(beginStr)
	if err != nil {
		return AvailabilityPeriod{}, err
	}
	end, err := parseYear(endStr)
	if err != nil {
		return AvailabilityPeriod{}, err
	}
	if begin > end {
		return AvailabilityPeriod{}, fmt.Errorf("begin year %d after end year %d", begin, end)
	}
	return AvailabilityPeriod{Begin: begin, End: end}, nil
}

// IsNoYear reports whether the period has no expiry.
func (p AvailabilityPeriod) IsNoYear() bool { return p.Begin == 0 && p.End == 0 }

// String renders the short form: "X", "YYYY" when begin equals end, or
// "YYYY/YYYY".
func (p AvailabilityPeriod) String() string {
	switch {
	case p.IsNoYear():
		return NoYearToken
	case p.Begin == p.End:
		return strconv.Itoa(p.Begin)
	default:
		return fmt.Sprintf("%d/%d", p.Begin, p.End)
	}
}

// Type classifies the normalized period string.
func (p AvailabilityPeriod) Type() AvailabilityType { return Classify(p.String()) }

// Classify is the only place availability types come from.
//
//	"X"         -> no-year
//	"2023/2025" -> multi-year
//	anything else -> annual
//
// Raw "YYYY/YYYY" strings with equal years classify as multi-year here;
// go through ParsePeriod first when the input may be unnormalized.
func Classify(period string) AvailabilityType {
	switch {
	case period == NoYearToken:
		return NoYear
	case strings.Contains(period, "/"):
		return MultiYear
	default:
		return Annual
	}
}

func parseYear(s string) (int, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("year %q is not four digits", s)
	}
	y, err := strconv.Atoi(s)
	if err != nil || y <= 0 {
		return 0, fmt.Errorf("year %q is not numeric", s)
	}
	return y, nil
}
