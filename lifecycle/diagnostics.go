package lifecycle

import (
	"github.com/charkitch/general-apportionment/tas"
)

// maxMalformedSamples caps the rejected identifiers kept for reporting.
const maxMalformedSamples = 25

// Diagnostics are data-quality counts for one run. They are reported and
// never drive control flow.
type Diagnostics struct {
	ApportionmentRows int
	ExecutionRows     int

	Matched           int
	ApportionmentOnly int
	ExecutionOnly     int

	// Rows rejected by the identifier normalizer, per side.
	DroppedApportionment int
	DroppedExecution     int
	MalformedSamples     []string

	// Rows outside the configured agency.
	FilteredRows int

	SupersededIterations int
	DuplicateSnapshots   int

	NearMisses []NearMiss
}

// NearMiss is an unmatched record whose AGENCY-MAIN exists unmatched on the
// other side. It usually means one feed spelled the availability window or
// sub-account differently.
type NearMiss struct {
	Identifier tas.Identifier
	Status     MatchStatus
	Candidates []tas.Identifier
}

// DroppedRows is the total rejected by the normalizer.
func (d Diagnostics) DroppedRows() int {
	return d.DroppedApportionment + d.DroppedExecution
}

// Unmatched is the number of records present on only one side.
func (d Diagnostics) Unmatched() int {
	return d.ApportionmentOnly + d.ExecutionOnly
}

// HasWarnings reports whether anything deserves a visible, non-blocking
// warning.
func (d Diagnostics) HasWarnings() bool {
	return d.Unmatched() > 0 || d.DroppedRows() > 0
}

func (d *Diagnostics) recordMalformed(raw string) {
	if len(d.MalformedSamples) < maxMalformedSamples {
		d.MalformedSamples = append(d.MalformedSamples, raw)
	}
}

// countMatches fills the match counts and near misses from joined records.
func (d *Diagnostics) countMatches(records []ReconciledRecord) {
	unmatched := map[MatchStatus]map[tas.Simplified][]tas.Identifier{
		MatchApportionmentOnly: {},
		MatchExecutionOnly:     {},
	}

	for _, r := range records {
		switch r.Status {
		case MatchBoth:
			d.Matched++
		case MatchApportionmentOnly:
			d.ApportionmentOnly++
		case MatchExecutionOnly:
			d.ExecutionOnly++
		}
		if side, ok := unmatched[r.Status]; ok {
			side[r.Simplified] = append(side[r.Simplified], r.Identifier)
		}
	}

	for _, r := range records {
		var other MatchStatus
		switch r.Status {
		case MatchApportionmentOnly:
			other = MatchExecutionOnly
		case MatchExecutionOnly:
			other = MatchApportionmentOnly
		default:
			continue
		}
		if candidates := unmatched[other][r.Simplified]; len(candidates) > 0 {
			d.NearMisses = append(d.NearMisses, NearMiss{
				Identifier: r.Identifier,
				Status:     r.Status,
				Candidates: append([]tas.Identifier(nil), candidates...),
			})
		}
	}
}
