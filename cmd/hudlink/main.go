package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/hudlink/hudlink/internal/config"
	"github.com/hudlink/hudlink/internal/runner"
)

func main() {
	var (
		configPath = flag.String("config", "hudlink.yaml", "path to config file")
		states     = flag.String("states", "", "comma-separated state abbreviations (overrides config)")
		years      = flag.String("years", "", "comma-separated survey years (overrides config)")
		seed       = flag.Int64("seed", -1, "random seed for incarceration sampling (overrides config)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env vars")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *states != "" {
		cfg.States = config.SplitList(*states)
	}
	if *years != "" {
		cfg.Years, err = config.ParseYears(*years)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *seed >= 0 {
		cfg.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if err := runner.Run(cfg); err != nil {
		log.Fatal(err)
	}
}
