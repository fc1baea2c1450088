package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/config"
	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/model"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/repository/memory"
	"github.com/loschorros/backend/internal/repository/storetest"
	"github.com/loschorros/backend/internal/service"
	"github.com/loschorros/backend/pkg/logx"
)

type midRand struct{}

func (midRand) Float64() float64 { return 0.5 }

var (
	salvador = domain.LoadLocation(domain.DefaultTimezone)
	fixedAt  = time.Date(2024, 3, 11, 9, 30, 0, 0, salvador)
)

// newTestApp wires the real services over the memory repository and a model store holding
// constant models for every segment except those listed in missing
func newTestApp(t *testing.T, checks []HealthCheck, missing ...int) *fiber.App {
	t.Helper()
	log := logx.Discard()
	repo := memory.NewRepository()
	reg, err := registry.Load(context.Background(), repo)
	require.NoError(t, err)

	store := model.NewStore(t.TempDir(), 16, 0)
	skip := map[int]bool{}
	for _, id := range missing {
		skip[id] = true
	}
	for _, id := range reg.IDs() {
		if skip[id] {
			continue
		}
		require.NoError(t, store.Save(&model.Model{SegmentID: id, Version: "v-http", Intercept: 2.5}))
	}

	now := func() time.Time { return fixedAt }
	forecasts := service.NewForecastService(reg, repo, service.NewModelBridge(store, time.Second, log), nil, log, service.ForecastOptions{
		Location:         salvador,
		FactorImpactStep: service.DefaultFactorImpactStep,
		Rand:             midRand{},
		Now:              now,
	})
	factors := service.NewFactorService(repo, forecasts, reg, log)
	measurements := service.NewMeasurementService(repo, reg, salvador, log)
	_, err = measurements.Ingest(context.Background(), storetest.Observations(2, "2024-03-10", 24, 3))
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(log)})
	SetupRoutes(app, Services{
		Registry:        reg,
		Forecasts:       forecasts,
		Recommendations: service.NewRecommendationService(forecasts, reg, repo, 4, log),
		Metrics:         service.NewMetricsService(forecasts, reg, 4, log),
		Factors:         factors,
		Weather:         service.NewWeatherService(config.WeatherConfig{}, factors, repo, log),
		Measurements:    measurements,
		Checks:          checks,
		Now:             now,
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealthCheck(t *testing.T) {
	ok := HealthCheck{Name: "database", Check: func(context.Context) error { return nil }}
	app := newTestApp(t, []HealthCheck{ok})
	code, body := do(t, app, fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	failing := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}
	app = newTestApp(t, []HealthCheck{ok, failing})
	code, body = do(t, app, fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]interface{})["redis"])
}

func TestRegistryEndpoints(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := do(t, app, fiber.MethodGet, "/api/v1/segments", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 10, body["count"])

	code, body = do(t, app, fiber.MethodGet, "/api/v1/segments/4", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 4, body["data"].(map[string]interface{})["segmento_id"])

	code, body = do(t, app, fiber.MethodGet, "/api/v1/segments/99", "")
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, true, body["error"])

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/segments/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, all := do(t, app, fiber.MethodGet, "/api/v1/routes", "")
	assert.Equal(t, fiber.StatusOK, code)
	_, active := do(t, app, fiber.MethodGet, "/api/v1/routes?active=true", "")
	assert.Greater(t, all["count"].(float64), active["count"].(float64))
}

func TestPredictionEndpoints(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := do(t, app, fiber.MethodGet, "/api/v1/segments/3/predictions?fecha=2024-03-11", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 24, body["count"])
	assert.Equal(t, "2024-03-11", body["fecha"])

	// defaults to the current day
	code, body = do(t, app, fiber.MethodGet, "/api/v1/segments/3/predictions", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "2024-03-11", body["fecha"])

	code, body = do(t, app, fiber.MethodPost, "/api/v1/predict", `{"segmento_id": 5, "fecha": "2024-03-12"}`)
	assert.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 24, body["count"])

	code, _ = do(t, app, fiber.MethodPost, "/api/v1/predict", `{"segmento_id": 5`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body = do(t, app, fiber.MethodGet, "/api/v1/segments/3/predictions?fecha=11-03-2024", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, body["message"], "invalid date format")

	code, _ = do(t, app, fiber.MethodPost, "/api/v1/predict", `{"segmento_id": 42, "fecha": "2024-03-12"}`)
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = do(t, app, fiber.MethodDelete, "/api/v1/segments/3/predictions?fecha=2024-03-11", "")
	assert.Equal(t, fiber.StatusNoContent, code)
}

func TestMissingModel(t *testing.T) {
	app := newTestApp(t, nil, 7)

	code, body := do(t, app, fiber.MethodGet, "/api/v1/segments/7/predictions?fecha=2024-03-11", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, true, body["error"])
	assert.Contains(t, body["message"], "model not trained")
	assert.Contains(t, body["message"], domain.ErrModelNotFound.Error())

	code, _ = do(t, app, fiber.MethodPost, "/api/v1/predict", `{"segmento_id": 7, "fecha": "2024-03-11"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/segments/6/predictions?fecha=2024-03-11", "")
	assert.Equal(t, fiber.StatusOK, code)
}

func TestRecommendationEndpoints(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := do(t, app, fiber.MethodGet, "/api/v1/recommendations/segment?fecha=2024-03-11&hora=08:00", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, false, body["cached"])
	data := body["data"].(map[string]interface{})
	assert.NotZero(t, data["ganador_id"])
	assert.Len(t, data["alternativas"], 10)

	_, body = do(t, app, fiber.MethodGet, "/api/v1/recommendations/segment?at=2024-03-11T08:45:00-06:00", "")
	assert.Equal(t, true, body["cached"], "same hour slot is served from storage")

	code, body = do(t, app, fiber.MethodGet, "/api/v1/recommendations/route?fecha=2024-03-11&hora=17", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.NotZero(t, body["data"].(map[string]interface{})["ganador_id"])

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/recommendations/route?routes=1,x", "")
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/recommendations/segment?hora=25:00", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestVehicleRecommendation(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := do(t, app, fiber.MethodGet, "/api/v1/recommendations/vehicle?tipo=bus", "")
	require.Equal(t, fiber.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, domain.VehicleSnapshot, data["modo"])
	assert.Len(t, data["todas_las_opciones"], 2)

	code, body = do(t, app, fiber.MethodGet, "/api/v1/recommendations/vehicle?tipo=moto&fecha=2024-03-11&hora=07:00&evitar=10", "")
	require.Equal(t, fiber.StatusOK, code)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, domain.VehicleForecast, data["modo"])
	assert.EqualValues(t, 10, data["evitar"])

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/recommendations/vehicle?tipo=avion", "")
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/recommendations/vehicle?tipo=car&evitar=99", "")
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/recommendations/vehicle?tipo=car&evitar=uno", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestDailyMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := do(t, app, fiber.MethodGet, "/api/v1/metrics/daily?fecha=2024-03-11", "")
	require.Equal(t, fiber.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["horas"], 24)

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/metrics/daily?fecha=2024-03-11&segmento_id=2", "")
	assert.Equal(t, fiber.StatusOK, code)

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/metrics/daily?segmento_id=dos", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestFactorEndpoints(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := do(t, app, fiber.MethodPost, "/api/v1/factors", `{
		"nombre": "Partido en el Cuscatlán",
		"tipo": "evento",
		"fecha_inicio": "2024-03-11T16:00:00-06:00",
		"fecha_fin": "2024-03-11T20:00:00-06:00",
		"segmento_id": 2,
		"impacto": 3
	}`)
	require.Equal(t, fiber.StatusCreated, code)
	data := body["data"].(map[string]interface{})
	assert.NotZero(t, data["id"])
	assert.Equal(t, "EVENTO", data["tipo"])
	assert.Equal(t, true, data["activo"])

	code, _ = do(t, app, fiber.MethodPost, "/api/v1/factors", `{
		"nombre": "Obra",
		"tipo": "OBRA",
		"fecha_inicio": "2024-03-11T16:00:00-06:00",
		"fecha_fin": "2024-03-11T20:00:00-06:00",
		"impacto": 9
	}`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body = do(t, app, fiber.MethodGet, "/api/v1/factors?active=true", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
}

func TestWeatherEndpointsWithoutKey(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := do(t, app, fiber.MethodPost, "/api/v1/factors/weather/refresh", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, domain.RefreshUnavailable, body["data"].(map[string]interface{})["accion"])

	code, body = do(t, app, fiber.MethodGet, "/api/v1/weather", "")
	require.Equal(t, fiber.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, false, data["disponible"])
	assert.Empty(t, data["alertas_trafico"])
}

func TestMeasurementEndpoint(t *testing.T) {
	app := newTestApp(t, nil)

	code, body := do(t, app, fiber.MethodGet, "/api/v1/measurements", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, float64(24), body["count"])

	// 2024-03-10 in El Salvador starts at 06:00 UTC
	code, body = do(t, app, fiber.MethodGet, "/api/v1/measurements?segmento_id=2&from=2024-03-10&to=2024-03-10", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, float64(18), body["count"])
	first := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(2), first["segmento_id"])
	assert.NotEmpty(t, first["nombre_tramo"])
	assert.Equal(t, "2024-03-10T00:00:00-06:00", first["fecha_hora"])
	assert.Equal(t, float64(3), first["nivel_congestion"])
	assert.Equal(t, 35.25, first["velocidad_promedio"])

	code, body = do(t, app, fiber.MethodGet, "/api/v1/measurements?from=2024-03-10T00:00:00Z&to=2024-03-10T02:00:00Z", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])

	code, body = do(t, app, fiber.MethodGet, "/api/v1/measurements?segmento_id=3", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, _ = do(t, app, fiber.MethodGet, "/api/v1/measurements?segmento_id=99", "")
	assert.Equal(t, fiber.StatusNotFound, code)
	code, _ = do(t, app, fiber.MethodGet, "/api/v1/measurements?segmento_id=dos", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
	code, body = do(t, app, fiber.MethodGet, "/api/v1/measurements?from=2024-03-12&to=2024-03-10", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, body["message"], "invalid time range")
	code, _ = do(t, app, fiber.MethodGet, "/api/v1/measurements?from=2024-01-01&to=2024-03-10", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
	code, _ = do(t, app, fiber.MethodGet, "/api/v1/measurements?from=10/03/2024", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, StatusFor(domain.ErrInvalidSegment))
	assert.Equal(t, fiber.StatusServiceUnavailable, StatusFor(fmt.Errorf("model: segment 7: %w", domain.ErrModelNotFound)))
	assert.Equal(t, fiber.StatusUnprocessableEntity, StatusFor(domain.ErrNoAdmissibleCandidates))
	assert.Equal(t, fiber.StatusBadRequest, StatusFor(domain.ErrInvalidTimeFormat))
	assert.Equal(t, fiber.StatusTeapot, StatusFor(fiber.NewError(fiber.StatusTeapot, "tea")))
	assert.Equal(t, fiber.StatusInternalServerError, StatusFor(errors.New("boom")))
}
