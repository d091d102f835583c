package pipeline

import (
	"testing"

	"github.com/hudlink/hudlink/internal/loader"
)

func withIncome(key string, fam, hh loader.NullFloat, wage float64) AllocatedPerson {
	return AllocatedPerson{
		Person: loader.Person{
			FamIncome: fam,
			HHIncome:  hh,
			IncWage:   loader.Float(wage),
		},
		FamilyKey: key,
	}
}

func TestResolveIncomePrecedence(t *testing.T) {
	rows := []AllocatedPerson{
		// Family total beats the household aggregate and the components.
		withIncome("a", loader.Float(5000), loader.Float(99000), 70000),
		// Household aggregate beats the components.
		withIncome("b", loader.NullFloat{}, loader.Float(31000), 70000),
	}

	out, report := ResolveIncome(rows)

	if !out[0].Income.Valid || out[0].Income.Float64 != 5000 {
		t.Errorf("family a income %+v, want 5000", out[0].Income)
	}
	if !out[1].Income.Valid || out[1].Income.Float64 != 31000 {
		t.Errorf("family b income %+v, want 31000", out[1].Income)
	}
	if report.BothPresent != 1 || report.HouseholdOnly != 1 {
		t.Errorf("report counts wrong: %+v", report)
	}
}

func TestResolveIncomeItemizedPerFamily(t *testing.T) {
	// Two families from the same household: component sums must not leak
	// across the family-key boundary.
	rows := []AllocatedPerson{
		{Person: loader.Person{IncWage: loader.Float(12000), IncSS: loader.Float(3000)}, FamilyKey: "100|01|X"},
		{Person: loader.Person{IncWage: loader.Float(8000)}, FamilyKey: "100|01|X"},
		{Person: loader.Person{IncWage: loader.Float(50000)}, FamilyKey: "100|02|X"},
	}

	out, report := ResolveIncome(rows)

	if out[0].Income.Float64 != 23000 {
		t.Errorf("family 01 itemized sum %g, want 23000", out[0].Income.Float64)
	}
	if out[2].Income.Float64 != 50000 {
		t.Errorf("family 02 itemized sum %g, want 50000", out[2].Income.Float64)
	}
	if report.Itemized != 2 {
		t.Errorf("itemized count = %d, want 2", report.Itemized)
	}
}

func TestResolveIncomeUnresolvedStaysNull(t *testing.T) {
	rows := []AllocatedPerson{
		{Person: loader.Person{}, FamilyKey: "empty"},
	}

	out, report := ResolveIncome(rows)

	if out[0].Income.Valid {
		t.Errorf("unresolved income must stay null, got %+v", out[0].Income)
	}
	if report.Unresolved != 1 {
		t.Errorf("unresolved count = %d, want 1", report.Unresolved)
	}
}

func TestResolveIncomeTakesAnyMembersTotal(t *testing.T) {
	// The family total may be populated on a non-first member.
	rows := []AllocatedPerson{
		{Person: loader.Person{}, FamilyKey: "a"},
		{Person: loader.Person{FamIncome: loader.Float(42000)}, FamilyKey: "a"},
	}

	out, _ := ResolveIncome(rows)

	for _, r := range out {
		if !r.Income.Valid || r.Income.Float64 != 42000 {
			t.Errorf("income %+v, want 42000 on every member", r.Income)
		}
	}
}
