// Package metrics holds the Prometheus collectors exported at /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastDaysComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loschorros_forecast_days_computed_total",
		Help: "Forecast days computed and stored",
	})
	ForecastDaysServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loschorros_forecast_days_served_total",
		Help: "Forecast days served, by source",
	}, []string{"source"})
	ForecastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loschorros_forecast_failures_total",
		Help: "Forecast computations that returned an error",
	})
	ForecastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loschorros_forecast_compute_seconds",
		Help:    "Time spent computing one forecast day",
		Buckets: prometheus.DefBuckets,
	})
	ModelLoadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loschorros_model_load_failures_total",
		Help: "Model artifact load failures, by reason",
	}, []string{"reason"})
	Recommendations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loschorros_recommendations_total",
		Help: "Recommendations served, by mode and whether they were computed",
	}, []string{"mode", "computed"})
	WeatherFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loschorros_weather_fetch_failures_total",
		Help: "OpenWeatherMap requests that failed after retries",
	})
	CachePublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loschorros_cache_publish_failures_total",
		Help: "Redis publish or set operations that failed",
	})
	ObservationsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loschorros_observations_ingested_total",
		Help: "Historical measurements written to storage",
	})
)
