package pipeline

import (
	"github.com/google/uuid"

	"github.com/hudlink/hudlink/internal/loader"
)

// Institutional group-quarters codes on the person record. Code 2 marks
// institutional populations including correctional facilities; code 1 is the
// broader "other group quarters" category used as the candidate pool when
// direct prisoner coding is unreliable.
const (
	GQOther         = 1
	GQInstitutional = 2
)

// AllocatedPerson is a person row after geographic allocation. A person whose
// PUMA straddles counties appears once per county, each copy carrying its
// share of the household weight. Later stages fill the family fields in.
type AllocatedPerson struct {
	loader.Person

	County    string // crosswalk form, or Unknown County
	CountyAlt string // HUD form used for income-limit and incarceration joins
	CountyKey string // normalized merge key of CountyAlt

	AllocWeight float64 // HHWT x allocation factor

	// Set by SplitHouseholds.
	FamilyKey    string
	NFamsBefore  int
	FamilyWeight float64 // AllocWeight / NFamsBefore

	// Set by ResolveIncome.
	Income loader.NullFloat
}

// FamilyFlags are head-of-family and any-member characteristics carried onto
// the family record for reporting breakdowns.
type FamilyFlags struct {
	TwoAdults       bool
	SingleAdult     bool
	FemaleHead      bool
	FemaleHeadChild bool
	MaleHead        bool
	MaleHeadChild   bool
	Age62Plus       bool
	Age75Plus       bool

	Minority            bool
	WhiteNonHispanic    bool
	BlackNonHispanic    bool
	NativeAmerican      bool
	AsianNonHispanic    bool
	MixedRaceNonHisp    bool
	OtherRaceNonHisp    bool
	Hispanic            bool
	NonCitizen          bool
	Owner               bool
	Renter              bool
	MortgagePaid        bool
	Veteran             bool
	DisabilitySensory   bool
	DisabilityPhysical  bool
	DisabilityCognitive bool
	DisabilityIndepLiv  bool
	DisabilityAny       bool
	HSComplete          bool
	BachelorComplete    bool
	GradSchool          bool
	Employed            bool
}

// FlagNames lists the flag labels in report order.
var FlagNames = []string{
	"two_adults", "single_adult", "female_head", "female_head_child",
	"male_head", "male_head_child", "age62plus", "age75plus",
	"minority", "white_nonhsp", "black_nonhsp", "native_american_nonhsp",
	"asian_nonhsp", "mixed_nonhsp", "otherrace", "hispanic",
	"noncitizen", "owner", "renter", "mortgage_paid", "veteran",
	"disab_hearing_vision", "disab_ambulatory", "disab_cognitive",
	"disab_independent_living", "disab_any",
	"hs_complete", "bachelor_complete", "grad_school", "employed",
}

// Values returns the flags in the same order as FlagNames.
func (f FamilyFlags) Values() []bool {
	return []bool{
		f.TwoAdults, f.SingleAdult, f.FemaleHead, f.FemaleHeadChild,
		f.MaleHead, f.MaleHeadChild, f.Age62Plus, f.Age75Plus,
		f.Minority, f.WhiteNonHispanic, f.BlackNonHispanic, f.NativeAmerican,
		f.AsianNonHispanic, f.MixedRaceNonHisp, f.OtherRaceNonHisp, f.Hispanic,
		f.NonCitizen, f.Owner, f.Renter, f.MortgagePaid, f.Veteran,
		f.DisabilitySensory, f.DisabilityPhysical, f.DisabilityCognitive,
		f.DisabilityIndepLiv, f.DisabilityAny,
		f.HSComplete, f.BachelorComplete, f.GradSchool, f.Employed,
	}
}

// Family is the eligibility-bearing unit: one legal family within a sampled
// household, within one county cohort. It owns a share of the household's
// population weight and every downstream aggregate sums over these rows.
type Family struct {
	ID  uuid.UUID
	Key string // household id + family-unit id + county

	Serial  string
	FamUnit int
	Year    int

	County    string
	CountyAlt string
	CountyKey string

	Size         int
	AdjustedSize int // capped at loader.MaxLimitSize
	Members      int
	NFamsBefore  int
	GQType       int

	HeadRace int
	Flags    FamilyFlags

	Income loader.NullFloat

	HHWT         float64 // original household weight
	AllocWeight  float64 // post-allocation household weight share
	FamilyWeight float64 // post-split family weight

	// Determined is false when the family's county was absent from the
	// income-limit table; such families carry no eligibility determination.
	Determined bool

	Eligible     [3]int     // indexed by loader.Tier
	WeightedElig [3]float64 // Eligible x weight basis
	WhiteElig    [3]float64 // race-split variants, populated on request
	MinorityElig [3]float64
}

// Weight returns the weight under the configured aggregation basis.
func (f *Family) Weight(basis WeightBasis) float64 {
	if basis == BasisHousehold {
		return f.AllocWeight
	}
	return f.FamilyWeight
}

// WeightBasis selects whether final aggregation weights families by their
// split family weight or by the post-allocation household weight.
type WeightBasis string

const (
	BasisFamily    WeightBasis = "family"
	BasisHousehold WeightBasis = "household"
)
