package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hudlink/hudlink/internal/loader"
	"github.com/hudlink/hudlink/internal/pipeline"
)

func readBack(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestOutputDir(t *testing.T) {
	root := t.TempDir()
	dir, err := OutputDir(root, "fl", 2019)
	if err != nil {
		t.Fatalf("OutputDir: %v", err)
	}
	want := filepath.Join(root, "FL", "FL_2019")
	if dir != want {
		t.Errorf("dir = %q, want %q", dir, want)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory not created: %v", err)
	}
}

func TestWriteFamilies(t *testing.T) {
	f := pipeline.Family{
		ID:           pipeline.FamilyID("100|01|Alachua FL"),
		Key:          "100|01|Alachua FL",
		Serial:       "100",
		FamUnit:      1,
		Year:         2019,
		County:       "Alachua FL",
		CountyAlt:    "Alachua County",
		Size:         2,
		AdjustedSize: 2,
		Members:      2,
		NFamsBefore:  1,
		Income:       loader.Float(18000),
		HHWT:         40,
		AllocWeight:  20,
		FamilyWeight: 20,
		Determined:   true,
	}
	f.Eligible[loader.Tier30] = 1
	f.WeightedElig[loader.Tier30] = 20

	dir := t.TempDir()
	path, err := WriteFamilies(dir, "fl", 2019, []pipeline.Family{f}, pipeline.BasisFamily)
	if err != nil {
		t.Fatalf("WriteFamilies: %v", err)
	}
	if !strings.HasSuffix(path, "FL_2019_eligibility_FAM.csv") {
		t.Errorf("unexpected file name %q", path)
	}

	rows := readBack(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	if len(rows[0]) != len(rows[1]) {
		t.Errorf("header has %d columns, record has %d", len(rows[0]), len(rows[1]))
	}
	if rows[1][1] != "100|01|Alachua FL" {
		t.Errorf("family key column wrong: %q", rows[1][1])
	}
	// Null income would be blank; 18000 is not.
	incomeCol := -1
	for i, h := range rows[0] {
		if h == "income" {
			incomeCol = i
		}
	}
	if rows[1][incomeCol] != "18000" {
		t.Errorf("income column = %q, want 18000", rows[1][incomeCol])
	}
}

func TestWriteLinkedSummary(t *testing.T) {
	summaries := Summarize([]pipeline.Family{
		summaryFamily("alachua county", "Alachua FL", 200, false),
	})
	rows := Link(summaries, []loader.SubsidyRecord{
		subsidyRec("alachua county", "Housing Choice Vouchers", 80),
	}, "Housing Choice Vouchers")

	dir := t.TempDir()
	path, err := WriteLinkedSummary(dir, "fl", 2019, rows, "Housing Choice Vouchers", pipeline.BasisFamily, false)
	if err != nil {
		t.Fatalf("WriteLinkedSummary: %v", err)
	}
	if !strings.HasSuffix(path, "FL_2019_housing_choice_vouchers_linked_summary_FAM.csv") {
		t.Errorf("unexpected file name %q", path)
	}

	recs := readBack(t, path)
	if len(recs) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(recs))
	}
	if len(recs[0]) != len(recs[1]) {
		t.Errorf("header has %d columns, record has %d", len(recs[0]), len(recs[1]))
	}
}

func TestProgramSafe(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Housing Choice Vouchers", "housing_choice_vouchers"},
		{"Section 8 NC/SR", "section_8_nc_sr"},
		{"MF/Other", "mf_other"},
	}
	for _, tt := range tests {
		if got := programSafe(tt.in); got != tt.want {
			t.Errorf("programSafe(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
