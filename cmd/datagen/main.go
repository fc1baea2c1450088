package main

import (
	"bufio"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/config"
	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/traffic"
	"github.com/loschorros/backend/internal/training"
	"github.com/loschorros/backend/pkg/logx"
)

func main() {
	out := flag.String("out", "dataset_trafico_30dias.csv", "output CSV path")
	days := flag.Int("days", 30, "number of days to simulate")
	start := flag.String("start", "", "first day (YYYY-MM-DD), defaults to days ago")
	seed := flag.Int64("seed", 0, "random seed, 0 for time based")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logx.New(logx.Options{Level: cfg.Log.Level, Format: "text"})
	loc := domain.LoadLocation(cfg.Forecast.Timezone)

	first := time.Now().In(loc).AddDate(0, 0, -*days)
	if *start != "" {
		if first, err = domain.ParseDay(*start, loc); err != nil {
			log.Fatalf("Invalid -start: %v", err)
		}
	}
	if *days <= 0 {
		log.Fatal("-days must be positive")
	}

	obs := training.Simulate(registry.SeedSegments(), first, *days, traffic.NewRand(*seed))

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	w := bufio.NewWriter(f)
	if err := training.WriteCSV(w, obs, loc); err != nil {
		log.Fatalf("Failed to write dataset: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to flush dataset: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close %s: %v", *out, err)
	}

	log.WithFields(logrus.Fields{
		"path": *out,
		"rows": len(obs),
		"from": domain.DayKey(first, loc),
		"days": *days,
	}).Info("Dataset generated")
}
