package pipeline

import (
	"log"
	"math"
	"math/rand"

	"github.com/hudlink/hudlink/internal/loader"
)

// AdjustMode selects how the Incarceration Adjuster removes incarcerated
// weight from the eligibility pool. The two active modes are mutually
// exclusive.
type AdjustMode string

const (
	// ModeOff leaves the eligibility table untouched.
	ModeOff AdjustMode = "off"

	// ModeDirect zeroes every family whose group-quarters code marks it
	// institutional. No sampling: the removed weight is whatever the survey
	// itself implies.
	ModeDirect AdjustMode = "direct"

	// ModeSampling removes a randomly selected candidate subset per county
	// whose summed weight approximates the independently reported total.
	// Used when direct group-quarters coding is unavailable or unreliable.
	ModeSampling AdjustMode = "sampling"
)

// AdjustOptions configures the Incarceration Adjuster.
type AdjustOptions struct {
	Mode AdjustMode

	// RaceSampling matches the white and minority reported sub-totals
	// independently within each county instead of the single total.
	RaceSampling bool
}

// StratumRemoval records what sampling removed for one county stratum.
type StratumRemoval struct {
	County  string
	Stratum string // "all", "white", or "minority"

	Target     float64
	Removed    float64
	Candidates int
	Selected   int
}

// Shortfall is how much reported weight could not be removed because
// candidates ran out. Downstream totals are too high by this amount.
func (s StratumRemoval) Shortfall() float64 {
	if d := s.Target - s.Removed; d > 0 {
		return d
	}
	return 0
}

// AdjustReport accounts for the Incarceration Adjuster's removals.
type AdjustReport struct {
	Mode AdjustMode

	RemovedFamilies int
	RemovedWeight   float64

	// NoCandidateCounties lists counties present in the incarceration table
	// with no candidate families at all. Zero removal, not an error.
	NoCandidateCounties []string

	Strata []StratumRemoval
}

// AdjustIncarceration removes incarcerated weight from the eligibility pool.
// In direct mode every institutional family is zeroed unconditionally, which
// is idempotent. In sampling mode, candidates are single-person families in
// the non-institutional group-quarters category that are eligible at the most
// permissive tier; per county (and per race stratum when configured) a subset
// is selected whose summed family weight approximates the reported total.
//
// The random source is explicit so runs are reproducible. A nil incarceration
// table in sampling mode is a logged no-op.
func AdjustIncarceration(families []Family, counts []loader.IncarcerationCount, opts AdjustOptions, rng *rand.Rand) ([]Family, *AdjustReport) {
	report := &AdjustReport{Mode: opts.Mode}
	out := make([]Family, len(families))
	copy(out, families)

	switch opts.Mode {
	case ModeDirect:
		adjustDirect(out, report)
	case ModeSampling:
		if len(counts) == 0 {
			log.Printf("[incarceration] sampling mode with no incarceration data; leaving eligibility unchanged")
			return out, report
		}
		adjustSampling(out, counts, opts, rng, report)
	default:
		log.Printf("[incarceration] adjustment off; leaving eligibility unchanged")
	}
	return out, report
}

func adjustDirect(families []Family, report *AdjustReport) {
	for i := range families {
		if families[i].GQType != GQInstitutional {
			continue
		}
		report.RemovedFamilies++
		report.RemovedWeight += families[i].FamilyWeight
		zeroEligibility(&families[i])
	}
	log.Printf("[incarceration] direct mode: zeroed %d institutional families, weight %.2f",
		report.RemovedFamilies, report.RemovedWeight)
}

func adjustSampling(families []Family, counts []loader.IncarcerationCount, opts AdjustOptions, rng *rand.Rand, report *AdjustReport) {
	// Candidate pool: single-person, broadly institutional group quarters,
	// still eligible at the 80% tier.
	byCounty := map[string][]int{}
	for i := range families {
		f := &families[i]
		if f.GQType == GQOther && f.Size == 1 && f.Eligible[loader.Tier80] == 1 {
			byCounty[f.CountyKey] = append(byCounty[f.CountyKey], i)
		}
	}

	for _, c := range counts {
		candidates := byCounty[c.Key]
		if len(candidates) == 0 {
			report.NoCandidateCounties = append(report.NoCandidateCounties, c.County)
			log.Printf("[incarceration] no candidates found for county %q; zero removal", c.County)
			continue
		}

		if opts.RaceSampling && c.WhiteTotal.Valid && c.MinorityTotal.Valid {
			var white, minority []int
			for _, idx := range candidates {
				if families[idx].Flags.Minority {
					minority = append(minority, idx)
				} else {
					white = append(white, idx)
				}
			}
			removeStratum(families, white, c.County, "white", c.WhiteTotal.Float64, rng, report)
			removeStratum(families, minority, c.County, "minority", c.MinorityTotal.Float64, rng, report)
		} else {
			removeStratum(families, candidates, c.County, "all", c.Total, rng, report)
		}
	}

	log.Printf("[incarceration] sampling mode: zeroed %d families, weight %.2f across %d strata",
		report.RemovedFamilies, report.RemovedWeight, len(report.Strata))
}

func removeStratum(families []Family, candidates []int, county, stratum string, target float64, rng *rand.Rand, report *AdjustReport) {
	rem := StratumRemoval{
		County:     county,
		Stratum:    stratum,
		Target:     target,
		Candidates: len(candidates),
	}

	selected := selectByWeight(candidates, target, rng, func(idx int) float64 {
		return families[idx].FamilyWeight
	})
	for _, idx := range selected {
		rem.Removed += families[idx].FamilyWeight
		zeroEligibility(&families[idx])
	}
	rem.Selected = len(selected)

	report.RemovedFamilies += rem.Selected
	report.RemovedWeight += rem.Removed
	report.Strata = append(report.Strata, rem)

	if s := rem.Shortfall(); s > 0 {
		log.Printf("[incarceration] %s/%s: removed %.2f of reported %.2f (shortfall %.2f)",
			county, stratum, rem.Removed, rem.Target, s)
	}
}

// selectByWeight approximates a weighted subset-sum: randomly permute the
// candidates, take cumulative sums in permutation order, and keep whichever
// of two prefixes lands closer to the target: the longest prefix not
// exceeding it, or the prefix ending at the cumulative sum nearest to it.
// Selection is without replacement; an exact solve is unnecessary since the
// weights are themselves statistical estimates.
func selectByWeight(candidates []int, target float64, rng *rand.Rand, weight func(int) float64) []int {
	if len(candidates) == 0 || target <= 0 {
		return nil
	}

	perm := rng.Perm(len(candidates))
	ordered := make([]int, len(candidates))
	for i, p := range perm {
		ordered[i] = candidates[p]
	}

	csum := make([]float64, len(ordered))
	var running float64
	for i, idx := range ordered {
		running += weight(idx)
		csum[i] = running
	}

	// (a) longest prefix whose sum does not exceed the target
	nUnder := 0
	for nUnder < len(csum) && csum[nUnder] <= target {
		nUnder++
	}
	sumUnder := 0.0
	if nUnder > 0 {
		sumUnder = csum[nUnder-1]
	}

	// (b) prefix ending at the cumulative sum closest to the target
	nClosest := 1
	for i := 1; i < len(csum); i++ {
		if math.Abs(csum[i]-target) < math.Abs(csum[nClosest-1]-target) {
			nClosest = i + 1
		}
	}
	sumClosest := csum[nClosest-1]

	n := nClosest
	if math.Abs(sumUnder-target) < math.Abs(sumClosest-target) {
		n = nUnder
	}
	return ordered[:n]
}
