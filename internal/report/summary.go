package report

import (
	"log"
	"sort"

	"github.com/hudlink/hudlink/internal/loader"
	"github.com/hudlink/hudlink/internal/pipeline"
)

// CountySummary is one county's weighted eligibility totals, with per-flag
// weighted counts ready for share computation.
type CountySummary struct {
	County string
	Key    string

	WeightedElig [3]float64
	WhiteElig    [3]float64
	MinorityElig [3]float64

	// FlagWeighted[flag][tier] sums weighted eligibility over families
	// carrying that flag, in pipeline.FlagNames order.
	FlagWeighted [][3]float64
}

// FlagShare returns the percentage of a tier's weighted eligibility carried
// by families with the given flag. Zero totals yield a zero share.
func (s *CountySummary) FlagShare(flag int, tier loader.Tier) float64 {
	total := s.WeightedElig[tier]
	if total == 0 {
		return 0
	}
	return s.FlagWeighted[flag][tier] / total * 100
}

// Summarize aggregates the family eligibility table by county.
func Summarize(families []pipeline.Family) []CountySummary {
	byKey := map[string]*CountySummary{}
	order := []string{}

	for i := range families {
		f := &families[i]
		s, ok := byKey[f.CountyKey]
		if !ok {
			s = &CountySummary{
				County:       f.County,
				Key:          f.CountyKey,
				FlagWeighted: make([][3]float64, len(pipeline.FlagNames)),
			}
			byKey[f.CountyKey] = s
			order = append(order, f.CountyKey)
		}

		flags := f.Flags.Values()
		for _, tier := range loader.Tiers {
			s.WeightedElig[tier] += f.WeightedElig[tier]
			s.WhiteElig[tier] += f.WhiteElig[tier]
			s.MinorityElig[tier] += f.MinorityElig[tier]
			for fi, set := range flags {
				if set {
					s.FlagWeighted[fi][tier] += f.WeightedElig[tier]
				}
			}
		}
	}

	sort.Strings(order)
	out := make([]CountySummary, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	log.Printf("[report] summarized %d families into %d county rows", len(families), len(out))
	return out
}

// LinkedRow is one county's summary merged with one program's subsidy-unit
// supply: the gap between modeled eligibility and available units, and the
// rate at which units cover the eligible population.
type LinkedRow struct {
	CountySummary

	// UnitsKnown is false when the program table had no row for the county.
	UnitsKnown bool

	// TotalUnits may carry a negative HUD reporting code; gaps and rates
	// then carry the code through instead of a computed value.
	TotalUnits float64

	Gap            [3]float64
	AllocationRate [3]loader.NullFloat

	PctMinority loader.NullFloat
	PctWhite    loader.NullFloat
}

// Link merges county summaries against one program's subsidy records.
// Counties missing from the program table are logged and carried with
// UnitsKnown=false rather than dropped.
func Link(summaries []CountySummary, subsidy []loader.SubsidyRecord, program string) []LinkedRow {
	units := map[string]loader.SubsidyRecord{}
	for _, r := range subsidy {
		if r.Program == program {
			units[r.Key] = r
		}
	}

	missing := 0
	out := make([]LinkedRow, 0, len(summaries))
	for _, s := range summaries {
		row := LinkedRow{CountySummary: s}
		rec, ok := units[s.Key]
		if !ok {
			missing++
			out = append(out, row)
			continue
		}
		row.UnitsKnown = true
		row.TotalUnits = rec.TotalUnits
		row.PctMinority = rec.PctMinority
		row.PctWhite = rec.PctWhite

		for _, tier := range loader.Tiers {
			if rec.TotalUnits < 0 {
				// Negative HUD reporting code: keep it visible.
				row.Gap[tier] = rec.TotalUnits
				row.AllocationRate[tier] = loader.Float(rec.TotalUnits)
				continue
			}
			row.Gap[tier] = s.WeightedElig[tier] - rec.TotalUnits
			if s.WeightedElig[tier] > 0 {
				row.AllocationRate[tier] = loader.Float(rec.TotalUnits / s.WeightedElig[tier] * 100)
			}
		}
		out = append(out, row)
	}

	if missing > 0 {
		log.Printf("[report] program %q: %d counties had no subsidy record", program, missing)
	}
	return out
}
