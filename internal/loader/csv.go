package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hudlink/hudlink/internal/geo"
)

// Placeholder codes used in survey income fields to mean "not reported".
// They are replaced with zero before any arithmetic.
var incomePlaceholders = map[float64]bool{
	9999999: true,
	999999:  true,
	999998:  true,
	99999:   true,
}

type table struct {
	path string
	col  map[string]int
	rows [][]string
}

func readTable(path string, required []string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s has no data rows", path)
	}

	header := records[0]
	// Handle BOM on first header cell
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, k := range required {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("%s: %w: %s", path, ErrMissingColumn, k)
		}
	}

	return &table{path: path, col: col, rows: records[1:]}, nil
}

func (t *table) has(name string) bool {
	_, ok := t.col[name]
	return ok
}

func (t *table) get(row []string, name string) string {
	i, ok := t.col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) getFloat(row []string, rowIdx int, name string) (float64, error) {
	s := strings.ReplaceAll(t.get(row, name), ",", "")
	if s == "" {
		return 0, fmt.Errorf("%s row %d: %s is empty", t.path, rowIdx+2, name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s row %d: %s is not numeric (got %q)", t.path, rowIdx+2, name, s)
	}
	return v, nil
}

// getInt tolerates blank cells, returning 0; survey extracts leave many
// demographic fields empty for some record types.
func (t *table) getInt(row []string, rowIdx int, name string) (int, error) {
	s := t.get(row, name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s row %d: %s is not numeric (got %q)", t.path, rowIdx+2, name, s)
	}
	return int(v), nil
}

func (t *table) getNullFloat(row []string, rowIdx int, name string) (NullFloat, error) {
	s := strings.ReplaceAll(t.get(row, name), ",", "")
	if s == "" {
		return NullFloat{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NullFloat{}, fmt.Errorf("%s row %d: %s is not numeric (got %q)", t.path, rowIdx+2, name, s)
	}
	return Float(v), nil
}

func (t *table) getIncome(row []string, rowIdx int, name string) (NullFloat, error) {
	v, err := t.getNullFloat(row, rowIdx, name)
	if err != nil {
		return NullFloat{}, err
	}
	if v.Valid && incomePlaceholders[v.Float64] {
		v.Float64 = 0
	}
	return v, nil
}

var personRequired = []string{
	"CBSERIAL", "PUMA", "COUNTYICP", "HHWT", "NFAMS", "FAMUNIT",
	"MULTYEAR", "GQTYPE", "FAMSIZE", "RELATE",
	"HHINCOME", "FTOTINC", "INCWAGE", "INCSS", "INCWELFR",
	"INCINVST", "INCRETIR", "INCSUPP", "INCEARN", "INCOTHER",
}

// LoadPersons reads person-level survey microdata. A missing required column
// or an unparseable numeric field is fatal: every downstream stage assumes a
// validated schema.
func LoadPersons(path string) ([]Person, error) {
	t, err := readTable(path, personRequired)
	if err != nil {
		return nil, err
	}

	persons := make([]Person, 0, len(t.rows))
	for i, row := range t.rows {
		p := Person{
			Serial:    t.get(row, "CBSERIAL"),
			PUMA:      geo.NormalizePUMA(t.get(row, "PUMA")),
			CountyICP: t.get(row, "COUNTYICP"),
		}
		if p.Serial == "" {
			return nil, fmt.Errorf("%s row %d: CBSERIAL is empty", path, i+2)
		}
		if p.PUMA == "" || p.CountyICP == "" {
			return nil, fmt.Errorf("%s row %d: missing PUMA or COUNTYICP", path, i+2)
		}

		if p.HHWT, err = t.getFloat(row, i, "HHWT"); err != nil {
			return nil, err
		}

		ints := []struct {
			name string
			dst  *int
		}{
			{"NFAMS", &p.NFams}, {"FAMUNIT", &p.FamUnit}, {"MULTYEAR", &p.Year},
			{"FAMSIZE", &p.FamSize}, {"RELATE", &p.Relate}, {"AGE", &p.Age},
			{"SEX", &p.Sex}, {"RACE", &p.Race}, {"HISPAN", &p.Hispanic},
			{"CITIZEN", &p.Citizen}, {"MARST", &p.Marst}, {"NCHILD", &p.NChild},
			{"VETSTAT", &p.VetStat}, {"OWNERSHP", &p.OwnerShp}, {"MORTGAGE", &p.Mortgage},
			{"EMPSTAT", &p.EmpStat}, {"EDUCD", &p.Educ}, {"GQTYPE", &p.GQType},
			{"DIFFSENS", &p.DiffSens}, {"DIFFPHYS", &p.DiffPhys},
			{"DIFFREM", &p.DiffRem}, {"DIFFMOB", &p.DiffMob},
		}
		for _, f := range ints {
			if *f.dst, err = t.getInt(row, i, f.name); err != nil {
				return nil, err
			}
		}

		incomes := []struct {
			name string
			dst  *NullFloat
		}{
			{"HHINCOME", &p.HHIncome}, {"FTOTINC", &p.FamIncome},
			{"INCWAGE", &p.IncWage}, {"INCSS", &p.IncSS},
			{"INCWELFR", &p.IncWelfare}, {"INCINVST", &p.IncInvest},
			{"INCRETIR", &p.IncRetire}, {"INCSUPP", &p.IncSupp},
			{"INCEARN", &p.IncEarn}, {"INCOTHER", &p.IncOther},
		}
		for _, f := range incomes {
			if *f.dst, err = t.getIncome(row, i, f.name); err != nil {
				return nil, err
			}
		}

		persons = append(persons, p)
	}

	log.Printf("[loader] persons: %d rows from %s", len(persons), path)
	return persons, nil
}

var crosswalkRequired = []string{
	"State code", "PUMA", "County code", "State abbr.", "County_Name", "allocation factor",
}

// LoadCrosswalk reads one vintage of the PUMA-to-county crosswalk, drops
// duplicate (PUMA, county) pairs, and renormalizes allocation factors so they
// sum to 1 within each PUMA.
func LoadCrosswalk(path string, vintage int) (*Crosswalk, error) {
	t, err := readTable(path, crosswalkRequired)
	if err != nil {
		return nil, err
	}

	byPUMA := map[string][]CrosswalkEntry{}
	seen := map[string]bool{}
	for i, row := range t.rows {
		e := CrosswalkEntry{
			PUMA:      geo.NormalizePUMA(t.get(row, "PUMA")),
			County:    t.get(row, "County_Name"),
			StateAbbr: t.get(row, "State abbr."),
		}
		if e.PUMA == "" || e.County == "" {
			return nil, fmt.Errorf("%s row %d: missing PUMA or County_Name", path, i+2)
		}
		if e.Allocation, err = t.getFloat(row, i, "allocation factor"); err != nil {
			return nil, err
		}
		dup := e.PUMA + "\x00" + e.County
		if seen[dup] {
			continue
		}
		seen[dup] = true
		byPUMA[e.PUMA] = append(byPUMA[e.PUMA], e)
	}

	// Renormalize per PUMA and verify closure.
	for puma, entries := range byPUMA {
		var sum float64
		for _, e := range entries {
			sum += e.Allocation
		}
		if sum <= 0 {
			return nil, fmt.Errorf("%s: PUMA %s has non-positive allocation sum %g", path, puma, sum)
		}
		var check float64
		for j := range entries {
			entries[j].Allocation /= sum
			check += entries[j].Allocation
		}
		if math.Abs(check-1) > 1e-9 {
			return nil, fmt.Errorf("%s: PUMA %s allocation factors do not close to 1 (got %.12f)", path, puma, check)
		}
	}

	log.Printf("[loader] crosswalk %d: %d PUMAs from %s", vintage, len(byPUMA), path)
	return &Crosswalk{Vintage: vintage, ByPUMA: byPUMA}, nil
}

// LimitAgg selects how duplicate income-limit rows for one county collapse.
type LimitAgg string

const (
	AggMin    LimitAgg = "min"
	AggMax    LimitAgg = "max"
	AggMean   LimitAgg = "mean"
	AggMedian LimitAgg = "median"
)

func (a LimitAgg) valid() bool {
	switch a {
	case AggMin, AggMax, AggMean, AggMedian:
		return true
	}
	return false
}

var tierPrefixes = [...]string{"il30_p", "il50_p", "il80_p"}

func incomeLimitColumns() []string {
	cols := []string{"County_Name"}
	for _, prefix := range tierPrefixes {
		for size := 1; size <= MaxLimitSize; size++ {
			cols = append(cols, fmt.Sprintf("%s%d", prefix, size))
		}
	}
	return cols
}

// LoadIncomeLimits reads the 27-threshold income-limit table. Counties that
// appear more than once (some states cross metro boundaries) are collapsed
// with the configured aggregation.
func LoadIncomeLimits(path string, agg LimitAgg) (*IncomeLimits, error) {
	if !agg.valid() {
		return nil, fmt.Errorf("unknown income-limit aggregation %q", agg)
	}
	t, err := readTable(path, incomeLimitColumns())
	if err != nil {
		return nil, err
	}

	grouped := map[string][]IncomeLimitEntry{}
	order := []string{}
	for i, row := range t.rows {
		e := IncomeLimitEntry{County: t.get(row, "County_Name")}
		if e.County == "" {
			return nil, fmt.Errorf("%s row %d: County_Name is empty", path, i+2)
		}
		e.Key = geo.MergeKey(e.County)
		for ti, prefix := range tierPrefixes {
			for size := 1; size <= MaxLimitSize; size++ {
				v, err := t.getFloat(row, i, fmt.Sprintf("%s%d", prefix, size))
				if err != nil {
					return nil, err
				}
				e.Limits[ti][size-1] = v
			}
		}
		if _, ok := grouped[e.Key]; !ok {
			order = append(order, e.Key)
		}
		grouped[e.Key] = append(grouped[e.Key], e)
	}

	byKey := make(map[string]IncomeLimitEntry, len(grouped))
	dups := 0
	for _, key := range order {
		entries := grouped[key]
		if len(entries) > 1 {
			dups++
		}
		byKey[key] = collapseLimits(entries, agg)
	}
	if dups > 0 {
		log.Printf("[loader] income limits: %d counties had multiple rows, collapsed with %s", dups, agg)
	}

	log.Printf("[loader] income limits: %d counties from %s", len(byKey), path)
	return &IncomeLimits{ByKey: byKey}, nil
}

func collapseLimits(entries []IncomeLimitEntry, agg LimitAgg) IncomeLimitEntry {
	out := entries[0]
	if len(entries) == 1 {
		return out
	}
	for ti := range tierPrefixes {
		for si := 0; si < MaxLimitSize; si++ {
			vals := make([]float64, len(entries))
			for k, e := range entries {
				vals[k] = e.Limits[ti][si]
			}
			out.Limits[ti][si] = aggregate(vals, agg)
		}
	}
	return out
}

func aggregate(vals []float64, agg LimitAgg) float64 {
	switch agg {
	case AggMin:
		min := vals[0]
		for _, v := range vals[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case AggMax:
		max := vals[0]
		for _, v := range vals[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case AggMean:
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	default: // AggMedian
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		n := len(sorted)
		if n%2 == 1 {
			return sorted[n/2]
		}
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
}

var incarcerationRequired = []string{"State", "County_Name", "Ttl_Incarc"}

// LoadIncarceration reads per-county incarceration totals. The race-split
// columns are optional; when present they enable stratified sampling.
func LoadIncarceration(path string) ([]IncarcerationCount, error) {
	t, err := readTable(path, incarcerationRequired)
	if err != nil {
		return nil, err
	}

	counts := make([]IncarcerationCount, 0, len(t.rows))
	for i, row := range t.rows {
		c := IncarcerationCount{County: t.get(row, "County_Name")}
		// A literal "0" county name is a known symptom of a corrupted export.
		if c.County == "" || c.County == "0" {
			return nil, fmt.Errorf("%s row %d: invalid County_Name %q", path, i+2, c.County)
		}
		c.Key = geo.MergeKey(c.County)
		if c.Total, err = t.getFloat(row, i, "Ttl_Incarc"); err != nil {
			return nil, err
		}
		if t.has("Ttl_White_Incarc") {
			if c.WhiteTotal, err = t.getNullFloat(row, i, "Ttl_White_Incarc"); err != nil {
				return nil, err
			}
		}
		if t.has("Ttl_Minority_Incarc") {
			if c.MinorityTotal, err = t.getNullFloat(row, i, "Ttl_Minority_Incarc"); err != nil {
				return nil, err
			}
		}
		counts = append(counts, c)
	}

	log.Printf("[loader] incarceration: %d counties from %s", len(counts), path)
	return counts, nil
}

// Canonical program labels for the HUD subsidy table. Raw files carry
// historical short codes.
var programLabels = map[string]string{
	"All HUD":                     "Summary of All HUD Programs",
	"MF/Other":                    "Multi-Family Other",
	"MR":                          "Mod Rehab",
	"PH":                          "Public Housing",
	"S236":                        "Section 236",
	"S8":                          "Section 8 NC/SR",
	"VO":                          "Housing Choice Vouchers",
	"LIHTC":                       "LIHTC",
	"Housing Choice Vouchers":     "Housing Choice Vouchers",
	"Section 8 NC/SR":             "Section 8 NC/SR",
	"Summary of All HUD Programs": "Summary of All HUD Programs",
}

var subsidyRequired = []string{"program_label", "name", "total_units"}

// LoadSubsidyUnits reads the HUD subsidized-housing table: per county, per
// program, the number of units actually available. Negative unit values are
// HUD reporting codes and pass through untouched.
func LoadSubsidyUnits(path string) ([]SubsidyRecord, error) {
	t, err := readTable(path, subsidyRequired)
	if err != nil {
		return nil, err
	}

	recs := make([]SubsidyRecord, 0, len(t.rows))
	for i, row := range t.rows {
		r := SubsidyRecord{
			County:  t.get(row, "name"),
			Program: t.get(row, "program_label"),
		}
		if canon, ok := programLabels[r.Program]; ok {
			r.Program = canon
		}
		r.Key = geo.MergeKey(r.County)
		if r.TotalUnits, err = t.getFloat(row, i, "total_units"); err != nil {
			return nil, err
		}
		if t.has("% Minority") {
			if r.PctMinority, err = t.getNullFloat(row, i, "% Minority"); err != nil {
				return nil, err
			}
		}
		if t.has("%White Non-Hispanic") {
			if r.PctWhite, err = t.getNullFloat(row, i, "%White Non-Hispanic"); err != nil {
				return nil, err
			}
		}
		recs = append(recs, r)
	}

	log.Printf("[loader] subsidy units: %d rows from %s", len(recs), path)
	return recs, nil
}
