package pipeline

import (
	"log"

	"github.com/hudlink/hudlink/internal/loader"
)

// headPriority orders candidates for head-of-family selection: the household
// head, then the spouse, then whoever appears first.
func headPriority(relate int) int {
	switch relate {
	case 1:
		return 0
	case 2:
		return 1
	}
	return 2
}

// BuildFamilies flattens person rows into one record per family key. The
// head of family contributes the demographic flags that are head-scoped
// (sex, age, race, tenure); disability, veteran, education, and employment
// flags are set if any member carries them.
func BuildFamilies(rows []AllocatedPerson) []Family {
	byKey := map[string]*Family{}
	heads := map[string]*AllocatedPerson{}
	order := []string{}

	for i := range rows {
		r := &rows[i]
		f, ok := byKey[r.FamilyKey]
		if !ok {
			f = &Family{
				ID:           FamilyID(r.FamilyKey),
				Key:          r.FamilyKey,
				Serial:       r.Serial,
				FamUnit:      r.FamUnit,
				Year:         r.Year,
				County:       r.County,
				CountyAlt:    r.CountyAlt,
				CountyKey:    r.CountyKey,
				Size:         r.FamSize,
				NFamsBefore:  r.NFamsBefore,
				GQType:       r.GQType,
				Income:       r.Income,
				HHWT:         r.HHWT,
				AllocWeight:  r.AllocWeight,
				FamilyWeight: r.FamilyWeight,
			}
			byKey[r.FamilyKey] = f
			heads[r.FamilyKey] = r
			order = append(order, r.FamilyKey)
		}
		f.Members++

		if headPriority(r.Relate) < headPriority(heads[r.FamilyKey].Relate) {
			heads[r.FamilyKey] = r
		}

		// Any-member flags.
		fl := &f.Flags
		fl.DisabilitySensory = fl.DisabilitySensory || r.DiffSens == 2
		fl.DisabilityPhysical = fl.DisabilityPhysical || r.DiffPhys == 2
		fl.DisabilityCognitive = fl.DisabilityCognitive || r.DiffRem == 2
		fl.DisabilityIndepLiv = fl.DisabilityIndepLiv || r.DiffMob == 2
		fl.Veteran = fl.Veteran || r.VetStat == 2
		fl.HSComplete = fl.HSComplete || r.Educ >= 62
		fl.BachelorComplete = fl.BachelorComplete || r.Educ == 101
		fl.GradSchool = fl.GradSchool || r.Educ > 101
		fl.Employed = fl.Employed || r.EmpStat == 1
	}

	for _, key := range order {
		f := byKey[key]
		head := heads[key]
		applyHeadFlags(f, head)

		if f.Size < 1 {
			f.Size = f.Members
		}
		f.AdjustedSize = f.Size
		if f.AdjustedSize > loader.MaxLimitSize {
			f.AdjustedSize = loader.MaxLimitSize
		}
		f.Flags.DisabilityAny = f.Flags.DisabilitySensory || f.Flags.DisabilityPhysical ||
			f.Flags.DisabilityCognitive || f.Flags.DisabilityIndepLiv
	}

	out := make([]Family, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	log.Printf("[families] flattened %d person rows into %d families", len(rows), len(out))
	return out
}

func applyHeadFlags(f *Family, head *AllocatedPerson) {
	f.HeadRace = head.Race
	fl := &f.Flags

	fl.TwoAdults = head.Marst == 1 && head.NChild > 0
	fl.SingleAdult = head.Marst != 1 && head.NChild > 0
	fl.FemaleHead = head.Relate == 1 && head.Sex == 2
	fl.FemaleHeadChild = fl.FemaleHead && head.NChild > 0
	fl.MaleHead = head.Relate == 1 && head.Sex == 1
	fl.MaleHeadChild = fl.MaleHead && head.NChild > 0
	fl.Age62Plus = head.Relate == 1 && head.Age > 62
	fl.Age75Plus = head.Relate == 1 && head.Age > 74

	fl.Hispanic = head.Hispanic == 1
	fl.Minority = head.Hispanic == 1 || head.Race != 1
	fl.WhiteNonHispanic = head.Hispanic == 0 && head.Race == 1
	fl.BlackNonHispanic = head.Hispanic == 0 && head.Race == 2
	fl.NativeAmerican = head.Hispanic == 0 && head.Race == 3
	fl.AsianNonHispanic = head.Hispanic == 0 && (head.Race >= 4 && head.Race <= 6)
	fl.MixedRaceNonHisp = head.Hispanic == 0 && (head.Race == 8 || head.Race == 9)
	fl.OtherRaceNonHisp = head.Hispanic == 0 && head.Race == 7

	fl.NonCitizen = head.Citizen == 3
	fl.Owner = head.OwnerShp == 1
	fl.Renter = head.OwnerShp == 0 || head.OwnerShp == 2
	fl.MortgagePaid = head.Mortgage == 1
}
