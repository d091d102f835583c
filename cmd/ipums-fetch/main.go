package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/hudlink/hudlink/internal/config"
	"github.com/hudlink/hudlink/internal/ipums"
)

func main() {
	var (
		configPath = flag.String("config", "hudlink.yaml", "path to config file")
		states     = flag.String("states", "", "comma-separated state abbreviations (overrides config)")
		years      = flag.String("years", "", "comma-separated survey years (overrides config)")
		force      = flag.Bool("force", false, "re-download extracts that already exist on disk")
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
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.IPUMS.APIKey == "" {
		log.Fatal("IPUMS_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := ipums.NewClient(cfg.IPUMS.APIKey, cfg.IPUMS.BaseURL, cfg.IPUMS.Collection)

	for _, state := range cfg.States {
		for _, year := range cfg.Years {
			dest := cfg.PersonFile(state, year)
			if !*force {
				if _, err := os.Stat(dest); err == nil {
					log.Printf("%s already exists, skipping (use -force to re-download)", dest)
					continue
				}
			}
			if err := client.Fetch(ctx, state, year, dest); err != nil {
				log.Fatalf("fetch %s %d: %v", state, year, err)
			}
		}
	}
}
