package pipeline

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/hudlink/hudlink/internal/loader"
)

// Inputs are the validated tables one state/year run consumes.
type Inputs struct {
	Persons       []loader.Person
	Crosswalk2012 *loader.Crosswalk
	Crosswalk2022 *loader.Crosswalk
	Limits        *loader.IncomeLimits
	Incarceration []loader.IncarcerationCount
}

// Options is the configuration surface of the core pipeline.
type Options struct {
	Eval   EvalOptions
	Adjust AdjustOptions

	// Seed for the sampling-mode random source; fixed seeds reproduce runs.
	Seed int64
}

// Result is the pipeline's output: the family eligibility table plus the
// per-stage audit reports.
type Result struct {
	Families []Family

	Allocation *AllocationReport
	Split      *SplitReport
	Income     *IncomeReport
	Eval       *EvalReport
	Adjust     *AdjustReport
}

// Run executes the core pipeline for one state/year unit of work:
// allocation, household splitting, income resolution, family construction,
// eligibility evaluation, and incarceration adjustment, in that order. Each
// stage consumes the previous stage's output; nothing is mutated in place.
func Run(in Inputs, opts Options) (*Result, error) {
	if len(in.Persons) == 0 {
		return nil, fmt.Errorf("no person records to process")
	}
	if in.Limits == nil || len(in.Limits.ByKey) == 0 {
		return nil, fmt.Errorf("income-limit table is empty")
	}
	if in.Crosswalk2012 == nil || in.Crosswalk2022 == nil {
		return nil, fmt.Errorf("both crosswalk vintages are required")
	}

	res := &Result{}

	var rows []AllocatedPerson
	rows, res.Allocation = Allocate(in.Persons, in.Crosswalk2012, in.Crosswalk2022)
	rows, res.Split = SplitHouseholds(rows)
	rows, res.Income = ResolveIncome(rows)

	families := BuildFamilies(rows)
	families, res.Eval = Evaluate(families, in.Limits, opts.Eval)

	rng := rand.New(rand.NewSource(opts.Seed))
	families, res.Adjust = AdjustIncarceration(families, in.Incarceration, opts.Adjust, rng)
	res.Families = families

	auditWeights(in.Persons, families)
	return res, nil
}

// auditWeights checks the pipeline-wide invariant: family weights tracing
// back to the original households must reproduce the original household
// weight total. The incarceration adjustment zeroes eligibility fields, not
// weights, so this holds across the whole run. Drift is logged, not fatal.
func auditWeights(persons []loader.Person, families []Family) {
	householdWeight := householdBaseline(persons)

	var familyWeight float64
	for i := range families {
		familyWeight += families[i].FamilyWeight
	}

	if householdWeight > 0 {
		drift := math.Abs(familyWeight-householdWeight) / householdWeight
		if drift > weightTolerance {
			log.Printf("[audit] weight not conserved across run: households %.6f, families %.6f (relative drift %.2e)",
				householdWeight, familyWeight, drift)
			return
		}
	}
	log.Printf("[audit] weight conserved: households %.2f, families %.2f", householdWeight, familyWeight)
}

// householdBaseline sums each distinct household's weight once. Serials
// repeat across survey years in multi-year extracts, so the household
// identity is serial plus year.
func householdBaseline(persons []loader.Person) float64 {
	seen := map[string]bool{}
	var total float64
	for i := range persons {
		key := fmt.Sprintf("%s|%d", persons[i].Serial, persons[i].Year)
		if !seen[key] {
			seen[key] = true
			total += persons[i].HHWT
		}
	}
	return total
}
