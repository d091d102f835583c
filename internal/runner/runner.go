// Package runner drives full estimation runs: it loads the input tables for
// each configured state and year, executes the pipeline, and writes the
// family table and linked program summaries.
package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/google/uuid"

	"github.com/hudlink/hudlink/internal/config"
	"github.com/hudlink/hudlink/internal/loader"
	"github.com/hudlink/hudlink/internal/pipeline"
	"github.com/hudlink/hudlink/internal/report"
)

// Run processes every state-year combination in the config. A failure in one
// combination aborts the run; partial outputs from completed combinations
// are left in place.
func Run(cfg *config.Config) error {
	runID := uuid.New()
	log.Printf("[runner] run %s: %d states x %d years", runID, len(cfg.States), len(cfg.Years))

	cw2012, err := loader.LoadCrosswalk(cfg.CrosswalkFile(2012), 2012)
	if err != nil {
		return err
	}
	cw2022, err := loader.LoadCrosswalk(cfg.CrosswalkFile(2022), 2022)
	if err != nil {
		return err
	}

	programs, err := config.ExpandPrograms(cfg.Programs)
	if err != nil {
		return err
	}

	for _, state := range cfg.States {
		for _, year := range cfg.Years {
			if err := runOne(cfg, state, year, cw2012, cw2022, programs); err != nil {
				return fmt.Errorf("%s %d: %w", state, year, err)
			}
		}
	}
	log.Printf("[runner] run %s complete", runID)
	return nil
}

func runOne(cfg *config.Config, state string, year int, cw2012, cw2022 *loader.Crosswalk, programs []string) error {
	log.Printf("[runner] processing %s %d", state, year)

	persons, err := loader.LoadPersons(cfg.PersonFile(state, year))
	if err != nil {
		return err
	}
	limits, err := loader.LoadIncomeLimits(cfg.IncomeLimitFile(state, year), loader.LimitAgg(cfg.LimitAgg))
	if err != nil {
		return err
	}

	var counts []loader.IncarcerationCount
	if cfg.AdjustMode() == pipeline.ModeSampling {
		counts, err = loadIncarceration(cfg, state)
		if err != nil {
			return err
		}
	}

	result, err := pipeline.Run(pipeline.Inputs{
		Persons:       persons,
		Crosswalk2012: cw2012,
		Crosswalk2022: cw2022,
		Limits:        limits,
		Incarceration: counts,
	}, cfg.PipelineOptions())
	if err != nil {
		return err
	}

	dir, err := report.OutputDir(cfg.OutputDir, state, year)
	if err != nil {
		return err
	}
	basis := cfg.Basis()
	if _, err := report.WriteFamilies(dir, state, year, result.Families, basis); err != nil {
		return err
	}

	subsidy, err := loadSubsidy(cfg, state, year)
	if err != nil {
		return err
	}
	if subsidy == nil {
		log.Printf("[runner] %s %d: no subsidy table, skipping linked summaries", state, year)
		return nil
	}

	summaries := report.Summarize(result.Families)
	for _, program := range programs {
		rows := report.Link(summaries, subsidy, program)
		if len(rows) == 0 {
			log.Printf("[runner] %s %d: no counties for program %q", state, year, program)
			continue
		}
		if _, err := report.WriteLinkedSummary(dir, state, year, rows, program, basis, cfg.RaceSampling); err != nil {
			return err
		}
	}
	return nil
}

// loadIncarceration tolerates a missing file: sampling mode without county
// counts degrades to a logged no-op in the pipeline.
func loadIncarceration(cfg *config.Config, state string) ([]loader.IncarcerationCount, error) {
	counts, err := loader.LoadIncarceration(cfg.IncarcerationFile(state))
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("[runner] %s: no incarceration table, adjustment will be skipped", state)
		return nil, nil
	}
	return counts, err
}

// loadSubsidy tolerates a missing HUD table: the family-level output is
// still useful without the linked summaries.
func loadSubsidy(cfg *config.Config, state string, year int) ([]loader.SubsidyRecord, error) {
	recs, err := loader.LoadSubsidyUnits(cfg.SubsidyFile(state, year))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return recs, err
}
