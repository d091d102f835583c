package loader

// NullFloat is a float64 that knows whether the source cell was populated.
// Survey income fields are frequently blank, and blank is not zero: a family
// with no resolvable income is excluded from eligibility, not treated as
// penniless.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid NullFloat.
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Person is one row of survey microdata: one surveyed individual, carrying
// the weight of the household it was sampled from.
type Person struct {
	Serial string // household identifier (CBSERIAL)
	Year   int    // survey year of this record (MULTYEAR)

	PUMA      string
	CountyICP string

	HHWT float64 // population weight of the household

	NFams   int // families in the household at survey time
	FamUnit int // family-unit id, unique only within the household
	FamSize int

	Relate   int // relationship to household head (1 = head, 2 = spouse)
	Age      int
	Sex      int
	Race     int
	Hispanic int
	Citizen  int
	Marst    int
	NChild   int
	VetStat  int
	OwnerShp int
	Mortgage int
	EmpStat  int
	Educ     int

	DiffSens int
	DiffPhys int
	DiffRem  int
	DiffMob  int

	GQType int // group-quarters type; 2 marks institutional (incl. correctional)

	HHIncome  NullFloat // household-level aggregate income
	FamIncome NullFloat // family-level total income (FTOTINC)

	IncWage    NullFloat
	IncSS      NullFloat
	IncWelfare NullFloat
	IncInvest  NullFloat
	IncRetire  NullFloat
	IncSupp    NullFloat
	IncEarn    NullFloat
	IncOther   NullFloat
}

// ItemizedIncomes returns the component income fields used when neither the
// household nor the family total is populated.
func (p *Person) ItemizedIncomes() []NullFloat {
	return []NullFloat{
		p.IncWage, p.IncSS, p.IncWelfare, p.IncInvest,
		p.IncRetire, p.IncSupp, p.IncEarn, p.IncOther,
	}
}

// CrosswalkEntry maps one PUMA to one county with the fraction of the PUMA's
// population attributable to that county. Entries for a PUMA sum to 1 after
// loading.
type CrosswalkEntry struct {
	PUMA       string
	County     string // crosswalk form, e.g. "Alachua FL"
	StateAbbr  string
	Allocation float64
}

// Crosswalk is a loaded, normalized crosswalk table keyed by PUMA.
type Crosswalk struct {
	Vintage int // crosswalk geography year, e.g. 2012 or 2022
	ByPUMA  map[string][]CrosswalkEntry
}

// Tier indexes the three percentage-of-area-median income thresholds.
type Tier int

const (
	Tier30 Tier = iota
	Tier50
	Tier80
)

var tierLabels = [...]string{"30%", "50%", "80%"}

func (t Tier) String() string { return tierLabels[t] }

// Tiers lists all thresholds from strictest to most permissive.
var Tiers = []Tier{Tier30, Tier50, Tier80}

// MaxLimitSize is the largest family size with its own income limit; larger
// families use the size-8 threshold.
const MaxLimitSize = 8

// IncomeLimitEntry holds one county's 27 thresholds: three tiers by family
// sizes 1 through 8. Limits[tier][size-1] is the ceiling for that size.
type IncomeLimitEntry struct {
	County string // HUD form, e.g. "Alachua County"
	Key    string // normalized merge key
	Limits [3][MaxLimitSize]float64
}

// IncomeLimits is the loaded income-limit table keyed by normalized county.
type IncomeLimits struct {
	ByKey map[string]IncomeLimitEntry
}

// IncarcerationCount is one county's independently reported incarcerated
// totals, optionally split by the race of the incarcerated population.
type IncarcerationCount struct {
	County        string
	Key           string
	Total         float64
	WhiteTotal    NullFloat
	MinorityTotal NullFloat
}

// SubsidyRecord is one county's subsidized-unit supply for one HUD program.
// TotalUnits may carry a negative reporting code, which is preserved.
type SubsidyRecord struct {
	County     string
	Key        string
	Program    string
	TotalUnits float64

	PctMinority NullFloat
	PctWhite    NullFloat
}
