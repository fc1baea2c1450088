package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/cache"
	"github.com/loschorros/backend/internal/config"
	"github.com/loschorros/backend/internal/delivery/http"
	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/model"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/repository/storage"
	"github.com/loschorros/backend/internal/service"
	"github.com/loschorros/backend/internal/traffic"
	"github.com/loschorros/backend/pkg/logx"
)

func main() {
	// Configuration (.env is optional)
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logx.New(logx.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Dependency Injection: Repositories
	dataRepo, err := storage.Open(ctx, cfg.Database, log, storage.Options{FallbackToMemory: true})
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer dataRepo.Close()

	reg, err := registry.Load(ctx, dataRepo)
	if err != nil {
		log.Fatalf("Failed to load segment registry: %v", err)
	}
	log.WithField("segments", len(reg.IDs())).Info("Segment registry loaded")

	var cacheSvc *cache.CacheService
	if cfg.Redis.Enabled() {
		cacheSvc, err = cache.NewCacheService(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, running without prediction cache")
			cacheSvc = nil
		} else {
			defer cacheSvc.Close()
			log.WithField("addr", cfg.Redis.Addr).Info("Connected to Redis")
		}
	}

	// Dependency Injection: Services
	modelStore := model.NewStore(cfg.Forecast.ModelDir, cfg.Forecast.ModelCacheSize, cfg.Forecast.ModelCacheTTL)
	models := service.NewModelBridge(modelStore, cfg.Forecast.ModelLoadTimeout, logx.Component(log, "models"))

	loc := domain.LoadLocation(cfg.Forecast.Timezone)
	forecastSvc := service.NewForecastService(reg, dataRepo, models, cacheSvc, logx.Component(log, "forecast"), service.ForecastOptions{
		Location:         loc,
		FactorImpactStep: cfg.Forecast.FactorImpactStep,
		Rand:             traffic.NewRand(cfg.Forecast.Seed),
	})
	recommendationSvc := service.NewRecommendationService(forecastSvc, reg, dataRepo, cfg.Forecast.Parallelism, logx.Component(log, "recommendations"))
	metricsSvc := service.NewMetricsService(forecastSvc, reg, cfg.Forecast.Parallelism, logx.Component(log, "metrics"))
	factorSvc := service.NewFactorService(dataRepo, forecastSvc, reg, logx.Component(log, "factors"))
	weatherSvc := service.NewWeatherService(cfg.Weather, factorSvc, dataRepo, logx.Component(log, "weather"))
	measurementSvc := service.NewMeasurementService(dataRepo, reg, loc, logx.Component(log, "measurements"))

	checks := []http.HealthCheck{
		{Name: "database", Check: dataRepo.Health},
		{Name: "models", Check: models.Health},
	}
	if cacheSvc.Available() {
		checks = append(checks, http.HealthCheck{Name: "redis", Check: cacheSvc.Ping})
	}

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "Los Chorros Traffic API v1.0",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: http.NewErrorHandler(log),
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	http.SetupRoutes(app, http.Services{
		Registry:        reg,
		Forecasts:       forecastSvc,
		Recommendations: recommendationSvc,
		Metrics:         metricsSvc,
		Factors:         factorSvc,
		Weather:         weatherSvc,
		Measurements:    measurementSvc,
		Checks:          checks,
	})

	// Background weather alerts
	bgCtx, stopBackground := context.WithCancel(context.Background())
	if weatherSvc.Enabled() {
		weatherSvc.Start(bgCtx, cfg.Weather.RefreshInterval)
	} else {
		log.Warn("OPENWEATHER_API_KEY not set, weather alerts disabled")
	}
	if cacheSvc.Available() {
		go watchPredictionEvents(bgCtx, cacheSvc, log)
	}

	// Graceful shutdown
	go func() {
		log.Infof("Server starting on :%s", cfg.Server.Port)
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stopBackground()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	weatherSvc.WaitBackground()
	log.Info("Server exited gracefully")
}

// watchPredictionEvents logs forecast changes published by every instance sharing the Redis
func watchPredictionEvents(ctx context.Context, c *cache.CacheService, log logrus.FieldLogger) {
	sub := c.Subscribe(ctx, cache.PredictionsChannel)
	if sub == nil {
		return
	}
	defer sub.Close()

	events := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			ev, err := cache.DecodeEvent(msg.Payload)
			if err != nil {
				log.WithError(err).Warn("Malformed prediction event")
				continue
			}
			log.WithFields(logrus.Fields{
				"segment_id": ev.SegmentID,
				"day":        ev.Day,
				"action":     ev.Action,
				"version":    ev.Version,
			}).Debug("Prediction event")
		}
	}
}
