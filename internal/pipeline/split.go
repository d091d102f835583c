package pipeline

import (
	"fmt"
	"log"
	"math"
)

// maxFamUnit is the highest family-unit value the survey can legitimately
// produce. Anything above it after correction is a data-quality problem.
const maxFamUnit = 60

// relative tolerance for the weight-conservation invariant
const weightTolerance = 1e-6

// SplitReport accounts for the Household Splitter's work.
type SplitReport struct {
	HouseholdCohorts int // distinct household x county cohorts
	MultiFamily      int // cohorts with more than one family
	FamiliesOut      int // distinct family keys produced

	CorrectedFamUnits  int // degenerate values rewritten to 1
	OutOfRangeFamUnits int // values still above maxFamUnit after correction

	PreSplitWeight  float64 // sum of cohort weights going in
	PostSplitWeight float64 // sum of family weights coming out

	// DriftingCohorts counts household cohorts whose family weights did not
	// reproduce the cohort weight within tolerance.
	DriftingCohorts int
}

// SplitHouseholds partitions each household cohort into its legal families.
// Each row gets a composite family key (household + family unit + county) and
// a family weight of the cohort's allocated weight divided by the household's
// pre-split family count. Summing family weights within a cohort reproduces
// the cohort's allocated weight, and any drift beyond tolerance is logged
// with its magnitude.
func SplitHouseholds(rows []AllocatedPerson) ([]AllocatedPerson, *SplitReport) {
	report := &SplitReport{}
	out := make([]AllocatedPerson, len(rows))

	for i := range rows {
		r := rows[i] // copy; the input slice is left untouched

		if r.NFams == 1 && (r.FamUnit <= 0 || r.FamUnit > maxFamUnit) {
			// A lone-family household with a degenerate family-unit value is
			// unambiguous: it is family 1.
			r.FamUnit = 1
			report.CorrectedFamUnits++
		}
		if r.FamUnit > maxFamUnit {
			report.OutOfRangeFamUnits++
		}

		r.NFamsBefore = r.NFams
		if r.NFamsBefore < 1 {
			r.NFamsBefore = 1
		}
		r.FamilyKey = fmt.Sprintf("%s|%02d|%s", r.Serial, r.FamUnit, r.County)
		r.FamilyWeight = r.AllocWeight / float64(r.NFamsBefore)

		out[i] = r
	}

	auditSplit(out, report)

	if report.OutOfRangeFamUnits > 0 {
		log.Printf("[split] data quality: %d rows kept best-effort family keys with FAMUNIT > %d",
			report.OutOfRangeFamUnits, maxFamUnit)
	}
	log.Printf("[split] %d household cohorts (%d multi-family) -> %d families, weight %.2f -> %.2f",
		report.HouseholdCohorts, report.MultiFamily, report.FamiliesOut,
		report.PreSplitWeight, report.PostSplitWeight)
	return out, report
}

// auditSplit verifies weight conservation per household cohort: the family
// weights of a cohort's distinct families must sum back to the cohort's
// allocated weight.
func auditSplit(rows []AllocatedPerson, report *SplitReport) {
	type cohort struct {
		allocWeight float64
		familySum   float64
		families    map[string]bool
		multiFamily bool
	}
	cohorts := map[string]*cohort{}
	order := []string{}

	for i := range rows {
		r := &rows[i]
		ck := r.Serial + "|" + r.County
		c, ok := cohorts[ck]
		if !ok {
			c = &cohort{allocWeight: r.AllocWeight, families: map[string]bool{}}
			cohorts[ck] = c
			order = append(order, ck)
		}
		if r.NFamsBefore > 1 {
			c.multiFamily = true
		}
		if !c.families[r.FamilyKey] {
			c.families[r.FamilyKey] = true
			c.familySum += r.FamilyWeight
		}
	}

	for _, ck := range order {
		c := cohorts[ck]
		report.HouseholdCohorts++
		report.FamiliesOut += len(c.families)
		report.PreSplitWeight += c.allocWeight
		report.PostSplitWeight += c.familySum
		if c.multiFamily {
			report.MultiFamily++
		}

		// A cohort whose observed family count disagrees with the recorded
		// pre-split count will not conserve weight. Logged, not fatal.
		if c.allocWeight > 0 {
			drift := math.Abs(c.familySum-c.allocWeight) / c.allocWeight
			if drift > weightTolerance {
				report.DriftingCohorts++
				log.Printf("[split] weight drift in household cohort %s: families sum to %.6f, cohort weight %.6f (relative drift %.2e)",
					ck, c.familySum, c.allocWeight, drift)
			}
		}
	}
}
