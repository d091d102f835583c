package pipeline

import (
	"math/rand"
	"testing"

	"github.com/hudlink/hudlink/internal/loader"
)

func candidate(key string, weight float64) Family {
	f := Family{
		Key:          key,
		County:       "Alachua FL",
		CountyAlt:    "Alachua County",
		CountyKey:    "alachua county",
		Size:         1,
		AdjustedSize: 1,
		GQType:       GQOther,
		FamilyWeight: weight,
		AllocWeight:  weight,
		Determined:   true,
	}
	for _, tier := range loader.Tiers {
		f.Eligible[tier] = 1
		f.WeightedElig[tier] = weight
	}
	return f
}

func countyCounts(total float64) []loader.IncarcerationCount {
	return []loader.IncarcerationCount{
		{County: "Alachua County", Key: "alachua county", Total: total},
	}
}

func removedWeight(report *AdjustReport) float64 {
	return report.RemovedWeight
}

func TestAdjustDirectIdempotent(t *testing.T) {
	inst := candidate("a", 40)
	inst.GQType = GQInstitutional
	fams := []Family{inst, candidate("b", 30)}

	once, r1 := AdjustIncarceration(fams, nil, AdjustOptions{Mode: ModeDirect}, nil)
	twice, r2 := AdjustIncarceration(once, nil, AdjustOptions{Mode: ModeDirect}, nil)

	if once[0].Eligible[loader.Tier80] != 0 {
		t.Error("institutional family not zeroed")
	}
	if once[1].Eligible[loader.Tier80] != 1 {
		t.Error("non-institutional family must be untouched")
	}
	if r1.RemovedWeight != 40 {
		t.Errorf("removed weight %g, want 40", r1.RemovedWeight)
	}
	// Second application removes the same rows but changes nothing further.
	if r2.RemovedFamilies != r1.RemovedFamilies {
		t.Errorf("direct mode not idempotent: %d vs %d", r1.RemovedFamilies, r2.RemovedFamilies)
	}
	for i := range once {
		if once[i].WeightedElig != twice[i].WeightedElig {
			t.Error("second direct pass changed eligibility")
		}
	}
}

func TestAdjustSamplingOvershootsWhenCloser(t *testing.T) {
	// Weights 40, 35, 30 against a target of 100: every permutation's best
	// under-prefix sums to at most 75, while the full set sums to 105, which
	// is closer. All three must be removed regardless of shuffle order.
	for seed := int64(0); seed < 20; seed++ {
		fams := []Family{candidate("a", 40), candidate("b", 35), candidate("c", 30)}
		rng := rand.New(rand.NewSource(seed))

		_, report := AdjustIncarceration(fams, countyCounts(100), AdjustOptions{Mode: ModeSampling}, rng)

		if report.RemovedFamilies != 3 {
			t.Fatalf("seed %d: removed %d families, want 3", seed, report.RemovedFamilies)
		}
		if removedWeight(report) != 105 {
			t.Fatalf("seed %d: removed weight %g, want 105", seed, removedWeight(report))
		}
	}
}

func TestAdjustSamplingStopsNearTarget(t *testing.T) {
	// Target 40 with weights 40, 35, 30: a single candidate always lands
	// nearer the target than any longer prefix.
	for seed := int64(0); seed < 20; seed++ {
		fams := []Family{candidate("a", 40), candidate("b", 35), candidate("c", 30)}
		rng := rand.New(rand.NewSource(seed))

		_, report := AdjustIncarceration(fams, countyCounts(40), AdjustOptions{Mode: ModeSampling}, rng)

		if report.RemovedFamilies != 1 {
			t.Fatalf("seed %d: removed %d families, want 1", seed, report.RemovedFamilies)
		}
	}
}

func TestAdjustSamplingEmptySelection(t *testing.T) {
	// A lone candidate far above the target: removing nothing is closer than
	// removing it, so the selection is empty and the shortfall is reported.
	fams := []Family{candidate("a", 100)}
	rng := rand.New(rand.NewSource(1))

	out, report := AdjustIncarceration(fams, countyCounts(30), AdjustOptions{Mode: ModeSampling}, rng)

	if report.RemovedFamilies != 0 {
		t.Fatalf("removed %d families, want 0", report.RemovedFamilies)
	}
	if out[0].Eligible[loader.Tier80] != 1 {
		t.Error("unselected candidate must keep its eligibility")
	}
	if len(report.Strata) != 1 || report.Strata[0].Shortfall() != 30 {
		t.Errorf("shortfall not reported: %+v", report.Strata)
	}
}

func TestAdjustSamplingSeedReproducible(t *testing.T) {
	build := func() []Family {
		return []Family{
			candidate("a", 12), candidate("b", 9), candidate("c", 17),
			candidate("d", 22), candidate("e", 6),
		}
	}

	outA, repA := AdjustIncarceration(build(), countyCounts(30), AdjustOptions{Mode: ModeSampling}, rand.New(rand.NewSource(7)))
	outB, repB := AdjustIncarceration(build(), countyCounts(30), AdjustOptions{Mode: ModeSampling}, rand.New(rand.NewSource(7)))

	if repA.RemovedWeight != repB.RemovedWeight || repA.RemovedFamilies != repB.RemovedFamilies {
		t.Fatal("identical seeds must reproduce the removal")
	}
	for i := range outA {
		if outA[i].Eligible != outB[i].Eligible {
			t.Fatal("identical seeds must zero the same families")
		}
	}
}

func TestAdjustSamplingIneligibleNotCandidates(t *testing.T) {
	notGQ := candidate("a", 40)
	notGQ.GQType = 0
	big := candidate("b", 40)
	big.Size = 2
	ineligible := candidate("c", 40)
	ineligible.Eligible[loader.Tier80] = 0

	fams := []Family{notGQ, big, ineligible}
	rng := rand.New(rand.NewSource(1))

	_, report := AdjustIncarceration(fams, countyCounts(100), AdjustOptions{Mode: ModeSampling}, rng)

	if report.RemovedFamilies != 0 {
		t.Errorf("removed %d families from an empty candidate pool", report.RemovedFamilies)
	}
	if len(report.NoCandidateCounties) != 1 {
		t.Errorf("no-candidate county not reported: %+v", report.NoCandidateCounties)
	}
}

func TestAdjustSamplingNilCounts(t *testing.T) {
	fams := []Family{candidate("a", 40)}
	rng := rand.New(rand.NewSource(1))

	out, report := AdjustIncarceration(fams, nil, AdjustOptions{Mode: ModeSampling}, rng)

	if report.RemovedFamilies != 0 {
		t.Error("nil incarceration table must be a no-op")
	}
	if out[0].Eligible[loader.Tier80] != 1 {
		t.Error("eligibility changed on a no-op")
	}
}

func TestAdjustSamplingRaceStrata(t *testing.T) {
	white := candidate("w", 40)
	minority := candidate("m", 50)
	minority.Flags.Minority = true
	counts := []loader.IncarcerationCount{{
		County:        "Alachua County",
		Key:           "alachua county",
		Total:         90,
		WhiteTotal:    loader.Float(40),
		MinorityTotal: loader.Float(50),
	}}

	out, report := AdjustIncarceration([]Family{white, minority}, counts,
		AdjustOptions{Mode: ModeSampling, RaceSampling: true}, rand.New(rand.NewSource(3)))

	if report.RemovedFamilies != 2 {
		t.Fatalf("removed %d families, want 2", report.RemovedFamilies)
	}
	if len(report.Strata) != 2 {
		t.Fatalf("got %d strata, want 2", len(report.Strata))
	}
	for _, f := range out {
		if f.Eligible[loader.Tier80] != 0 {
			t.Errorf("family %s not removed in its stratum", f.Key)
		}
	}
}

func TestSelectByWeightWithoutReplacement(t *testing.T) {
	candidates := []int{0, 1, 2, 3}
	weights := []float64{10, 10, 10, 10}
	rng := rand.New(rand.NewSource(5))

	selected := selectByWeight(candidates, 25, rng, func(i int) float64 { return weights[i] })

	seen := map[int]bool{}
	for _, idx := range selected {
		if seen[idx] {
			t.Fatal("candidate selected twice")
		}
		seen[idx] = true
	}
}
