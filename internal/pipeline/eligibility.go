package pipeline

import (
	"log"
	"sort"

	"github.com/hudlink/hudlink/internal/loader"
)

// EvalOptions configures the Eligibility Evaluator.
type EvalOptions struct {
	Basis WeightBasis

	// RaceSplit additionally splits each tier's weighted contribution by the
	// head-of-family race classification.
	RaceSplit bool

	// ExcludeGroupQuarters zeroes eligibility for institutional families
	// regardless of income: institutional populations cannot independently
	// hold a voucher.
	ExcludeGroupQuarters bool
}

// EvalReport accounts for the Eligibility Evaluator's coverage.
type EvalReport struct {
	FamiliesIn int
	Determined int

	NoIncome      int // unresolved income, no determination
	Institutional int // zeroed by the group-quarters exclusion

	// MissingCounties maps counties present in families but absent from the
	// income-limit table to the number of affected families.
	MissingCounties map[string]int
}

func (r *EvalReport) missingList() []string {
	names := make([]string, 0, len(r.MissingCounties))
	for n := range r.MissingCounties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Evaluate joins families against the income-limit table and determines
// eligibility at each threshold tier. A family is eligible at a tier iff its
// resolved income does not exceed that tier's threshold for its adjusted
// size. Families in counties absent from the table, and families with
// unresolved income, get no determination and are logged, not dropped.
func Evaluate(families []Family, limits *loader.IncomeLimits, opts EvalOptions) ([]Family, *EvalReport) {
	report := &EvalReport{
		FamiliesIn:      len(families),
		MissingCounties: map[string]int{},
	}

	out := make([]Family, len(families))
	for i := range families {
		f := families[i] // copy

		entry, ok := limits.ByKey[f.CountyKey]
		if !ok {
			report.MissingCounties[f.CountyAlt]++
			out[i] = f
			continue
		}
		if !f.Income.Valid {
			report.NoIncome++
			out[i] = f
			continue
		}

		f.Determined = true
		report.Determined++
		w := f.Weight(opts.Basis)
		for _, tier := range loader.Tiers {
			if f.Income.Float64 <= entry.Limits[tier][f.AdjustedSize-1] {
				f.Eligible[tier] = 1
			}
			f.WeightedElig[tier] = float64(f.Eligible[tier]) * w
			if opts.RaceSplit {
				if f.Flags.Minority {
					f.MinorityElig[tier] = f.WeightedElig[tier]
				} else {
					f.WhiteElig[tier] = f.WeightedElig[tier]
				}
			}
		}

		if opts.ExcludeGroupQuarters && f.GQType == GQInstitutional {
			zeroEligibility(&f)
			report.Institutional++
		}
		out[i] = f
	}

	for _, name := range report.missingList() {
		log.Printf("[eligibility] county %q absent from income limits: %d families carry no determination",
			name, report.MissingCounties[name])
	}
	log.Printf("[eligibility] %d/%d families determined (%d no income, %d institutional zeroed)",
		report.Determined, report.FamiliesIn, report.NoIncome, report.Institutional)
	return out, report
}

// zeroEligibility clears every eligibility field on a family. Used by the
// group-quarters exclusion and by the Incarceration Adjuster; zeroing an
// already-zeroed family is a no-op.
func zeroEligibility(f *Family) {
	for _, tier := range loader.Tiers {
		f.Eligible[tier] = 0
		f.WeightedElig[tier] = 0
		f.WhiteElig[tier] = 0
		f.MinorityElig[tier] = 0
	}
}
