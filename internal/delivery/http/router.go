package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, svc Services) {
	handler := NewHandler(svc)

	// Health check and Prometheus scrape endpoint
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	api := app.Group("/api/v1")
	{
		// Segment registry
		api.Get("/segments", handler.ListSegments)
		api.Get("/segments/:id", handler.GetSegment)
		api.Get("/routes", handler.ListRoutes)

		// Forecasts
		api.Get("/segments/:id/predictions", handler.GetPredictions)
		api.Delete("/segments/:id/predictions", handler.InvalidatePredictions)
		api.Post("/predict", handler.Predict)

		// Recommendations
		api.Get("/recommendations/segment", handler.RecommendSegment)
		api.Get("/recommendations/route", handler.RecommendRoute)
		api.Get("/recommendations/vehicle", handler.RecommendVehicle)

		// Analytics and historical measurements
		api.Get("/metrics/daily", handler.DailyMetrics)
		api.Get("/measurements", handler.ListMeasurements)

		// External factors and weather
		api.Get("/factors", handler.ListFactors)
		api.Post("/factors", handler.CreateFactor)
		api.Post("/factors/weather/refresh", handler.RefreshWeather)
		api.Get("/weather", handler.GetWeather)
	}
}
