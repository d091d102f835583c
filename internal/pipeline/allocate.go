package pipeline

import (
	"log"
	"sort"

	"github.com/hudlink/hudlink/internal/geo"
	"github.com/hudlink/hudlink/internal/loader"
)

// Crosswalk vintages are versioned to census geography. Records surveyed
// through 2019 carry 2012 PUMA codes; 2020 onward carry 2022 codes. A file
// containing any 2023+ record was extracted entirely on 2022 geography.
const (
	lastOldGeographyYear  = 2019
	forceNewGeographyYear = 2023
)

// AllocationReport accounts for what the Geographic Allocator did to the
// population weight and which PUMA codes failed to join.
type AllocationReport struct {
	RowsIn  int
	RowsOut int

	InputWeight  float64
	OutputWeight float64

	// UnmatchedPUMAs maps each PUMA with no crosswalk entry to the number of
	// person rows it affected. Non-empty usually means a crosswalk-vintage
	// mismatch and must be surfaced to the analyst.
	UnmatchedPUMAs map[string]int
}

// UnmatchedCodes returns the unmatched PUMA codes in stable order.
func (r *AllocationReport) UnmatchedCodes() []string {
	codes := make([]string, 0, len(r.UnmatchedPUMAs))
	for c := range r.UnmatchedPUMAs {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Allocate redistributes each person's household weight across the counties
// its PUMA touches. One input row becomes one output row per matching
// crosswalk entry, weighted by the entry's allocation factor. Rows whose PUMA
// has no entry keep their full weight under the Unknown County sentinel.
//
// Records are split into disjoint cohorts by survey year before joining, each
// cohort against its own crosswalk vintage, then concatenated.
func Allocate(persons []loader.Person, cw2012, cw2022 *loader.Crosswalk) ([]AllocatedPerson, *AllocationReport) {
	report := &AllocationReport{
		RowsIn:         len(persons),
		UnmatchedPUMAs: map[string]int{},
	}

	forceNew := false
	for i := range persons {
		report.InputWeight += persons[i].HHWT
		if persons[i].Year >= forceNewGeographyYear {
			forceNew = true
		}
	}

	out := make([]AllocatedPerson, 0, len(persons))
	for i := range persons {
		cw := cw2022
		if !forceNew && persons[i].Year <= lastOldGeographyYear {
			cw = cw2012
		}
		out = appendAllocated(out, &persons[i], cw, report)
	}

	report.RowsOut = len(out)
	for _, code := range report.UnmatchedCodes() {
		log.Printf("[allocate] unmatched PUMA %s: %d rows carried as %q with weight unchanged",
			code, report.UnmatchedPUMAs[code], geo.UnknownCounty)
	}
	log.Printf("[allocate] %d rows -> %d rows, weight %.2f -> %.2f",
		report.RowsIn, report.RowsOut, report.InputWeight, report.OutputWeight)
	return out, report
}

func appendAllocated(out []AllocatedPerson, p *loader.Person, cw *loader.Crosswalk, report *AllocationReport) []AllocatedPerson {
	entries := cw.ByPUMA[p.PUMA]
	if len(entries) == 0 {
		// No fan-out: the record keeps its full weight so population totals
		// stay auditable, and the gap is reported rather than swallowed.
		report.UnmatchedPUMAs[p.PUMA]++
		report.OutputWeight += p.HHWT
		return append(out, AllocatedPerson{
			Person:      *p,
			County:      geo.UnknownCounty,
			CountyAlt:   geo.UnknownCounty,
			CountyKey:   geo.MergeKey(geo.UnknownCounty),
			AllocWeight: p.HHWT,
		})
	}

	for _, e := range entries {
		alt := geo.AltName(e.County)
		w := p.HHWT * e.Allocation
		report.OutputWeight += w
		out = append(out, AllocatedPerson{
			Person:      *p,
			County:      e.County,
			CountyAlt:   alt,
			CountyKey:   geo.MergeKey(alt),
			AllocWeight: w,
		})
	}
	return out
}
