package pipeline

import (
	"log"

	"github.com/hudlink/hudlink/internal/loader"
)

// IncomeReport counts how families resolved their canonical income, by
// precedence tier. Unresolved families are carried with null income and
// excluded from eligibility determination, never treated as zero-income.
type IncomeReport struct {
	Families int

	BothPresent   int // family- and household-level totals both present; family wins
	FamilyOnly    int // only the family-level total present
	HouseholdOnly int // only the household-level aggregate present
	Itemized      int // neither total; itemized components summed per family
	Unresolved    int // no usable income field anywhere in the family
}

type familyIncome struct {
	famTotal loader.NullFloat
	hhTotal  loader.NullFloat
	itemized loader.NullFloat // summed lazily across members
}

// ResolveIncome fills one canonical income figure per family from the
// overlapping source fields, using strict precedence: the family-level total
// beats the household-level aggregate, and itemized component summation is
// the last resort. Summation is always performed at the family-key
// granularity so that one family's income is never attributed to another
// family from the same pre-split household.
func ResolveIncome(rows []AllocatedPerson) ([]AllocatedPerson, *IncomeReport) {
	report := &IncomeReport{}

	incomes := map[string]*familyIncome{}
	order := []string{}
	for i := range rows {
		r := &rows[i]
		fi, ok := incomes[r.FamilyKey]
		if !ok {
			fi = &familyIncome{}
			incomes[r.FamilyKey] = fi
			order = append(order, r.FamilyKey)
		}
		if !fi.famTotal.Valid && r.FamIncome.Valid {
			fi.famTotal = r.FamIncome
		}
		if !fi.hhTotal.Valid && r.HHIncome.Valid {
			fi.hhTotal = r.HHIncome
		}
		for _, c := range r.ItemizedIncomes() {
			if c.Valid {
				fi.itemized = loader.Float(fi.itemized.Float64 + c.Float64)
			}
		}
	}

	resolved := map[string]loader.NullFloat{}
	for _, key := range order {
		fi := incomes[key]
		report.Families++
		switch {
		case fi.famTotal.Valid && fi.hhTotal.Valid:
			report.BothPresent++
			resolved[key] = fi.famTotal
		case fi.famTotal.Valid:
			report.FamilyOnly++
			resolved[key] = fi.famTotal
		case fi.hhTotal.Valid:
			report.HouseholdOnly++
			resolved[key] = fi.hhTotal
		case fi.itemized.Valid:
			report.Itemized++
			resolved[key] = fi.itemized
		default:
			report.Unresolved++
			resolved[key] = loader.NullFloat{}
		}
	}

	out := make([]AllocatedPerson, len(rows))
	for i := range rows {
		out[i] = rows[i]
		out[i].Income = resolved[rows[i].FamilyKey]
	}

	if report.Unresolved > 0 {
		log.Printf("[income] %d families have no usable income data; they will receive no eligibility determination", report.Unresolved)
	}
	log.Printf("[income] resolved %d families: both=%d family-only=%d household-only=%d itemized=%d unresolved=%d",
		report.Families, report.BothPresent, report.FamilyOnly,
		report.HouseholdOnly, report.Itemized, report.Unresolved)
	return out, report
}
