package report

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hudlink/hudlink/internal/loader"
	"github.com/hudlink/hudlink/internal/pipeline"
)

// OutputDir creates and returns the per-run output directory:
// root/STATE/STATE_YEAR/.
func OutputDir(root, state string, year int) (string, error) {
	state = strings.ToUpper(state)
	dir := filepath.Join(root, state, fmt.Sprintf("%s_%d", state, year))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return dir, nil
}

// basisSuffix tags output files with the aggregation weight basis.
func basisSuffix(basis pipeline.WeightBasis) string {
	if basis == pipeline.BasisHousehold {
		return "HH"
	}
	return "FAM"
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fmtNull(v loader.NullFloat) string {
	if !v.Valid {
		return ""
	}
	return fmtFloat(v.Float64)
}

func fmtBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// WriteFamilies saves the family-level eligibility table.
func WriteFamilies(dir, state string, year int, families []pipeline.Family, basis pipeline.WeightBasis) (string, error) {
	name := fmt.Sprintf("%s_%d_eligibility_%s.csv", strings.ToUpper(state), year, basisSuffix(basis))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := []string{
		"family_id", "family_key", "serial", "famunit", "year",
		"county", "county_alt", "famsize", "adjusted_famsize", "members",
		"nfams_before_split", "gqtype", "income",
		"hhwt", "allocated_hhwt", "family_weight", "determined",
	}
	for _, tier := range loader.Tiers {
		header = append(header,
			"eligible_at_"+tier.String(),
			"weighted_eligibility_count_"+tier.String(),
			"weighted_white_hh_eligibility_count_"+tier.String(),
			"weighted_minority_hh_eligibility_count_"+tier.String(),
		)
	}
	for _, flag := range pipeline.FlagNames {
		header = append(header, "elig_"+flag)
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := range families {
		fam := &families[i]
		rec := []string{
			fam.ID.String(), fam.Key, fam.Serial, strconv.Itoa(fam.FamUnit), strconv.Itoa(fam.Year),
			fam.County, fam.CountyAlt, strconv.Itoa(fam.Size), strconv.Itoa(fam.AdjustedSize),
			strconv.Itoa(fam.Members), strconv.Itoa(fam.NFamsBefore), strconv.Itoa(fam.GQType),
			fmtNull(fam.Income),
			fmtFloat(fam.HHWT), fmtFloat(fam.AllocWeight), fmtFloat(fam.FamilyWeight),
			fmtBool(fam.Determined),
		}
		for _, tier := range loader.Tiers {
			rec = append(rec,
				strconv.Itoa(fam.Eligible[tier]),
				fmtFloat(fam.WeightedElig[tier]),
				fmtFloat(fam.WhiteElig[tier]),
				fmtFloat(fam.MinorityElig[tier]),
			)
		}
		for _, set := range fam.Flags.Values() {
			rec = append(rec, fmtBool(set))
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("[report] saved family eligibility to %s", path)
	return path, nil
}

var nonWord = regexp.MustCompile(`\W+`)

// programSafe sanitizes a program label for file and column names.
func programSafe(program string) string {
	return nonWord.ReplaceAllString(strings.ToLower(strings.TrimSpace(program)), "_")
}

// WriteLinkedSummary saves one program's county summary linked against its
// subsidy-unit supply, including the per-flag weighted counts and shares.
func WriteLinkedSummary(dir, state string, year int, rows []LinkedRow, program string, basis pipeline.WeightBasis, raceSplit bool) (string, error) {
	prog := programSafe(program)
	name := fmt.Sprintf("%s_%d_%s_linked_summary_%s.csv", strings.ToUpper(state), year, prog, basisSuffix(basis))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := []string{"county"}
	for _, tier := range loader.Tiers {
		header = append(header, "weighted_eligibility_count_"+tier.String())
	}
	if raceSplit {
		for _, tier := range loader.Tiers {
			header = append(header,
				"weighted_white_count_"+tier.String(),
				"weighted_minority_count_"+tier.String(),
			)
		}
	}
	header = append(header, "total_units", "pct_minority", "pct_white_nonhispanic")
	for _, tier := range loader.Tiers {
		header = append(header,
			fmt.Sprintf("%s_gap_%s", prog, tier),
			fmt.Sprintf("%s_allocation_rate_%s", prog, tier),
		)
	}
	for _, flag := range pipeline.FlagNames {
		for _, tier := range loader.Tiers {
			header = append(header,
				fmt.Sprintf("weighted_elig_%s_count_%s", flag, tier),
				fmt.Sprintf("pct_eligible_%s_at_%s", flag, tier),
			)
		}
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := range rows {
		r := &rows[i]
		rec := []string{r.County}
		for _, tier := range loader.Tiers {
			rec = append(rec, fmtFloat(r.WeightedElig[tier]))
		}
		if raceSplit {
			for _, tier := range loader.Tiers {
				rec = append(rec, fmtFloat(r.WhiteElig[tier]), fmtFloat(r.MinorityElig[tier]))
			}
		}
		if r.UnitsKnown {
			rec = append(rec, fmtFloat(r.TotalUnits))
		} else {
			rec = append(rec, "")
		}
		rec = append(rec, fmtNull(r.PctMinority), fmtNull(r.PctWhite))
		for _, tier := range loader.Tiers {
			if r.UnitsKnown {
				rec = append(rec, fmtFloat(r.Gap[tier]), fmtNull(r.AllocationRate[tier]))
			} else {
				rec = append(rec, "", "")
			}
		}
		for fi := range pipeline.FlagNames {
			for _, tier := range loader.Tiers {
				rec = append(rec,
					fmtFloat(r.FlagWeighted[fi][tier]),
					fmtFloat(r.FlagShare(fi, tier)),
				)
			}
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("[report] saved linked summary for %q to %s", program, path)
	return path, nil
}
