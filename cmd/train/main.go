package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/config"
	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/model"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/repository/storage"
	"github.com/loschorros/backend/internal/service"
	"github.com/loschorros/backend/internal/training"
	"github.com/loschorros/backend/pkg/logx"
)

const (
	sourceCSV   = "csv"
	sourceStore = "store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	data := flag.String("data", "dataset_trafico_30dias.csv", "training dataset (CSV)")
	load := flag.Bool("load", false, "store the dataset as historical measurements before training")
	source := flag.String("source", sourceCSV, "training rows: csv (the -data file) or store (stored measurements)")
	from := flag.String("from", "", "first day of stored measurements to train on (YYYY-MM-DD, default: all)")
	to := flag.String("to", "", "last day of stored measurements to train on (YYYY-MM-DD, default: today)")
	dir := flag.String("models", cfg.Forecast.ModelDir, "directory for model artifacts")
	minRows := flag.Int("min-rows", model.DefaultMinRows, "skip segments with fewer rows")
	parallel := flag.Int("parallel", cfg.Forecast.Parallelism, "segments trained concurrently")
	flag.Parse()

	log := logx.New(logx.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	loc := domain.LoadLocation(cfg.Forecast.Timezone)
	if *source != sourceCSV && *source != sourceStore {
		log.Fatalf("Unknown -source %q", *source)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var obs []domain.Observation
	if *load || *source == sourceCSV {
		obs = readDataset(*data, loc, log)
	}

	var repo domain.DataRepository
	if *load || *source == sourceStore {
		if cfg.Database.Driver == config.DriverMemory {
			log.Warn("DB_DRIVER is memory, stored measurements last only for this run")
		}
		repo, err = storage.Open(ctx, cfg.Database, log, storage.Options{})
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		defer repo.Close()
	}

	if *load {
		reg, err := registry.Load(ctx, repo)
		if err != nil {
			log.Fatalf("Failed to load segment registry: %v", err)
		}
		measurements := service.NewMeasurementService(repo, reg, loc, logx.Component(log, "measurements"))
		n, err := measurements.Ingest(ctx, obs)
		if err != nil {
			log.Fatalf("Failed to store measurements: %v", err)
		}
		log.WithFields(logrus.Fields{"path": *data, "rows": n}).Info("Measurements loaded")
	}

	store := model.NewStore(*dir, 0, 0)
	pipeline := training.NewPipeline(store, training.Options{MinRows: *minRows, Parallelism: *parallel}, log)

	var report *training.Report
	if *source == sourceStore {
		start, end := window(*from, *to, loc, log)
		report, err = pipeline.RunStored(ctx, repo, start, end)
	} else {
		report, err = pipeline.Run(ctx, obs)
	}
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	log.WithFields(logrus.Fields{
		"source":  *source,
		"dir":     *dir,
		"trained": report.Trained,
		"skipped": report.Skipped,
	}).Info("Training finished")
}

func readDataset(path string, loc *time.Location, log logrus.FieldLogger) []domain.Observation {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	defer f.Close()

	obs, err := training.ReadCSV(f, loc)
	if err != nil {
		log.Fatalf("Failed to read dataset: %v", err)
	}
	log.WithFields(logrus.Fields{"path": path, "rows": len(obs)}).Info("Dataset loaded")
	return obs
}

// window turns the -from/-to days into [start, end); to is inclusive
func window(from, to string, loc *time.Location, log logrus.FieldLogger) (time.Time, time.Time) {
	start := time.Unix(0, 0).UTC()
	if from != "" {
		day, err := domain.ParseDay(from, loc)
		if err != nil {
			log.Fatalf("Invalid -from: %v", err)
		}
		start = day
	}
	end := domain.DayStart(time.Now(), loc).AddDate(0, 0, 1)
	if to != "" {
		day, err := domain.ParseDay(to, loc)
		if err != nil {
			log.Fatalf("Invalid -to: %v", err)
		}
		end = day.AddDate(0, 0, 1)
	}
	return start, end
}
