package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/hudlink/hudlink/internal/geo"
	"github.com/hudlink/hudlink/internal/loader"
	"github.com/hudlink/hudlink/internal/pipeline"
)

// Config drives a full estimation run: which states and years to process,
// where the input tables live, and which pipeline switches are on.
type Config struct {
	States []string `yaml:"states"`
	Years  []int    `yaml:"years"`

	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`

	// Programs to link against the eligibility summaries. Accepts the
	// canonical HUD labels or the short codes expanded by ExpandPrograms.
	Programs []string `yaml:"programs"`

	// WeightBasis selects the weight column used for aggregation,
	// "family" or "household".
	WeightBasis string `yaml:"weight_basis"`

	// LimitAgg collapses duplicate income-limit rows for a county,
	// one of min, max, mean or median.
	LimitAgg string `yaml:"limit_agg"`

	RaceSampling         bool   `yaml:"race_sampling"`
	ExcludeGroupQuarters bool   `yaml:"exclude_group_quarters"`
	IncarcerationMode    string `yaml:"incarceration_mode"`
	Seed                 int64  `yaml:"seed"`

	IPUMS IPUMSConfig `yaml:"ipums"`
}

// IPUMSConfig holds the extract API settings used by the fetch tool.
type IPUMSConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Collection string `yaml:"collection"`
}

const (
	defaultDataDir    = "data"
	defaultOutputDir  = "output"
	defaultIPUMSURL   = "https://api.ipums.org"
	defaultCollection = "usa"
)

// Load reads a YAML config file and overlays environment variables on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:           defaultDataDir,
		OutputDir:         defaultOutputDir,
		WeightBasis:       "family",
		LimitAgg:          "mean",
		IncarcerationMode: "off",
		IPUMS: IPUMSConfig{
			BaseURL:    defaultIPUMSURL,
			Collection: defaultCollection,
		},
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("HUDLINK_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("HUDLINK_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("HUDLINK_STATES"); v != "" {
		c.States = SplitList(v)
	}
	if v := os.Getenv("HUDLINK_YEARS"); v != "" {
		if years, err := ParseYears(v); err == nil {
			c.Years = years
		}
	}
	if v := os.Getenv("HUDLINK_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = n
		}
	}
	if v := os.Getenv("IPUMS_API_KEY"); v != "" {
		c.IPUMS.APIKey = v
	}
}

// SplitList splits a comma-separated flag or env value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseYears parses a comma-separated list of survey years.
func ParseYears(v string) ([]int, error) {
	var out []int
	for _, s := range SplitList(v) {
		y, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("config: invalid year %q", s)
		}
		out = append(out, y)
	}
	return out, nil
}

// Validate rejects configs the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.States) == 0 {
		return fmt.Errorf("config: at least one state is required")
	}
	for _, s := range c.States {
		if _, ok := geo.StateFIPS(strings.ToUpper(s)); !ok {
			return fmt.Errorf("config: unknown state %q", s)
		}
	}
	if len(c.Years) == 0 {
		return fmt.Errorf("config: at least one year is required")
	}
	for _, y := range c.Years {
		if y < 2006 || y > 2100 {
			return fmt.Errorf("config: year %d out of range", y)
		}
	}
	switch c.WeightBasis {
	case "family", "household":
	default:
		return fmt.Errorf("config: weight_basis must be family or household, got %q", c.WeightBasis)
	}
	switch c.IncarcerationMode {
	case "off", "direct", "sampling":
	default:
		return fmt.Errorf("config: incarceration_mode must be off, direct or sampling, got %q", c.IncarcerationMode)
	}
	switch loader.LimitAgg(c.LimitAgg) {
	case loader.AggMin, loader.AggMax, loader.AggMean, loader.AggMedian:
	default:
		return fmt.Errorf("config: limit_agg must be min, max, mean or median, got %q", c.LimitAgg)
	}
	if _, err := ExpandPrograms(c.Programs); err != nil {
		return err
	}
	return nil
}

// Basis converts the configured weight basis string.
func (c *Config) Basis() pipeline.WeightBasis {
	if c.WeightBasis == "household" {
		return pipeline.BasisHousehold
	}
	return pipeline.BasisFamily
}

// AdjustMode converts the configured incarceration mode string.
func (c *Config) AdjustMode() pipeline.AdjustMode {
	switch c.IncarcerationMode {
	case "direct":
		return pipeline.ModeDirect
	case "sampling":
		return pipeline.ModeSampling
	default:
		return pipeline.ModeOff
	}
}

// PipelineOptions assembles the pipeline switches from the config.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Eval: pipeline.EvalOptions{
			Basis:                c.Basis(),
			RaceSplit:            c.RaceSampling,
			ExcludeGroupQuarters: c.ExcludeGroupQuarters,
		},
		Adjust: pipeline.AdjustOptions{
			Mode:         c.AdjustMode(),
			RaceSampling: c.RaceSampling,
		},
		Seed: c.Seed,
	}
}

// Input file layout under DataDir. The fetch tool writes the same paths
// the pipeline reads.

func (c *Config) PersonFile(state string, year int) string {
	return filepath.Join(c.DataDir, "ipums", fmt.Sprintf("%s_%d.csv", strings.ToUpper(state), year))
}

func (c *Config) CrosswalkFile(vintage int) string {
	return filepath.Join(c.DataDir, "crosswalks", fmt.Sprintf("puma_county_%d.csv", vintage))
}

func (c *Config) IncomeLimitFile(state string, year int) string {
	return filepath.Join(c.DataDir, "income_limits", fmt.Sprintf("%s_%d_income_limits.csv", strings.ToUpper(state), year))
}

func (c *Config) IncarcerationFile(state string) string {
	return filepath.Join(c.DataDir, "incarceration", fmt.Sprintf("%s_incarceration.csv", strings.ToUpper(state)))
}

func (c *Config) SubsidyFile(state string, year int) string {
	return filepath.Join(c.DataDir, "hud", fmt.Sprintf("%s_%d_subsidized_units.csv", strings.ToUpper(state), year))
}

// programShortcuts maps the short codes accepted in configs to canonical
// HUD program labels. "all_programs" expands to every individual program.
var programShortcuts = map[string][]string{
	"hcv":          {"Housing Choice Vouchers"},
	"ph":           {"Public Housing"},
	"s8":           {"Section 8 NC/SR"},
	"s236":         {"Section 236"},
	"mr":           {"Mod Rehab"},
	"mf":           {"Multi-Family Other"},
	"lihtc":        {"LIHTC"},
	"summary":      {"Summary of All HUD Programs"},
	"all_programs": {
		"Housing Choice Vouchers",
		"Public Housing",
		"Section 8 NC/SR",
		"Section 236",
		"Mod Rehab",
		"Multi-Family Other",
		"LIHTC",
	},
}

// canonicalPrograms is the set of labels accepted verbatim.
var canonicalPrograms = map[string]bool{
	"Housing Choice Vouchers":     true,
	"Public Housing":              true,
	"Section 8 NC/SR":             true,
	"Section 236":                 true,
	"Mod Rehab":                   true,
	"Multi-Family Other":          true,
	"LIHTC":                       true,
	"Summary of All HUD Programs": true,
}

// ExpandPrograms resolves shortcuts and deduplicates while keeping order.
// An empty list defaults to the all-programs summary.
func ExpandPrograms(programs []string) ([]string, error) {
	if len(programs) == 0 {
		return []string{"Summary of All HUD Programs"}, nil
	}
	var out []string
	seen := make(map[string]bool)
	add := func(label string) {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	for _, p := range programs {
		if canonicalPrograms[p] {
			add(p)
			continue
		}
		key := strings.ToLower(strings.TrimSpace(p))
		labels, ok := programShortcuts[key]
		if !ok {
			return nil, fmt.Errorf("config: unknown program %q", p)
		}
		for _, l := range labels {
			add(l)
		}
	}
	return out, nil
}
