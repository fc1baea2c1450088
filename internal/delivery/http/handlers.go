package http

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/service"
)

// HealthCheck is one dependency probed by /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services are the use cases the handlers delegate to
type Services struct {
	Registry        *registry.Registry
	Forecasts       *service.ForecastService
	Recommendations *service.RecommendationService
	Metrics         *service.MetricsService
	Factors         *service.FactorService
	Weather         *service.WeatherService
	Measurements    *service.MeasurementService
	Checks          []HealthCheck
	Now             func() time.Time
}

// Handler contains all HTTP handlers
type Handler struct {
	svc Services
}

// NewHandler creates a new handler
func NewHandler(svc Services) *Handler {
	if svc.Now == nil {
		svc.Now = time.Now
	}
	return &Handler{svc: svc}
}

// HealthCheck reports the status of every dependency; any failure turns it into a 503
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	status, code := "ok", fiber.StatusOK
	checks := fiber.Map{}
	for _, hc := range h.svc.Checks {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = err.Error()
			status, code = "degraded", fiber.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"service": "loschorros-backend",
		"checks":  checks,
	})
}

// ListSegments returns the segment registry
func (h *Handler) ListSegments(c *fiber.Ctx) error {
	segments := h.svc.Registry.List()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    segments,
		"count":   len(segments),
	})
}

// GetSegment returns one segment
func (h *Handler) GetSegment(c *fiber.Ctx) error {
	id, err := segmentParam(c)
	if err != nil {
		return err
	}
	seg, err := h.svc.Registry.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    seg,
	})
}

// ListRoutes returns candidate routes; ?active=true keeps only the active ones
func (h *Handler) ListRoutes(c *fiber.Ctx) error {
	routes := h.svc.Registry.Routes(c.QueryBool("active", false))
	return c.JSON(fiber.Map{
		"success": true,
		"data":    routes,
		"count":   len(routes),
	})
}

// GetPredictions returns the 24 hourly predictions of a segment for ?date= (default today)
func (h *Handler) GetPredictions(c *fiber.Ctx) error {
	id, err := segmentParam(c)
	if err != nil {
		return err
	}
	return h.respondDay(c, id, h.dayQuery(c))
}

// Predict computes (or returns the stored) forecast day of {segmento_id, fecha}
func (h *Handler) Predict(c *fiber.Ctx) error {
	var req struct {
		SegmentID int    `json:"segmento_id"`
		Day       string `json:"fecha"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Day == "" {
		req.Day = h.today()
	}
	return h.respondDay(c, req.SegmentID, req.Day)
}

func (h *Handler) respondDay(c *fiber.Ctx, segmentID int, day string) error {
	rows, err := h.svc.Forecasts.Predict(c.Context(), segmentID, day)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"segmento_id": segmentID,
		"fecha":       strings.TrimSpace(day),
		"data":        rows,
		"count":       len(rows),
	})
}

// InvalidatePredictions marks a forecast day stale so it is recomputed on next access
func (h *Handler) InvalidatePredictions(c *fiber.Ctx) error {
	id, err := segmentParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.Forecasts.Invalidate(c.Context(), id, h.dayQuery(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RecommendSegment returns the fastest segment for ?fecha=&hora= or ?at=
func (h *Handler) RecommendSegment(c *fiber.Ctx) error {
	at, _, err := h.target(c)
	if err != nil {
		return err
	}
	rec, computed, err := h.svc.Recommendations.RecommendSegment(c.Context(), at)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"cached":  !computed,
		"data":    rec,
	})
}

// RecommendRoute returns the fastest candidate route; ?routes=1,2 restricts the candidates
func (h *Handler) RecommendRoute(c *fiber.Ctx) error {
	at, _, err := h.target(c)
	if err != nil {
		return err
	}
	routeIDs, err := intList(c.Query("routes"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "routes must be a comma separated list of ids")
	}
	rec, computed, err := h.svc.Recommendations.RecommendRoute(c.Context(), at, routeIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"cached":  !computed,
		"data":    rec,
	})
}

// RecommendVehicle ranks the segments a vehicle class may use (?tipo=&fecha=&hora=&evitar=)
func (h *Handler) RecommendVehicle(c *fiber.Ctx) error {
	class, err := domain.ParseVehicleClass(c.Query("tipo", c.Query("vehicle")))
	if err != nil {
		return err
	}
	at, timed, err := h.target(c)
	if err != nil {
		return err
	}
	avoid, err := optionalInt(c.Query("evitar", c.Query("avoid")))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "evitar must be a segment id")
	}

	var atPtr *time.Time
	if timed {
		atPtr = &at
	}
	rec, err := h.svc.Recommendations.RecommendByVehicle(c.Context(), class, atPtr, avoid)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    rec,
	})
}

// DailyMetrics returns hourly averages and peaks for ?fecha= and optional ?segmento_id=
func (h *Handler) DailyMetrics(c *fiber.Ctx) error {
	segmentID, err := optionalInt(c.Query("segmento_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "segmento_id must be a number")
	}
	m, err := h.svc.Metrics.Daily(c.Context(), h.dayQuery(c), segmentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    m,
	})
}

// defaultMeasurementDays is the window served when ?from= is omitted
const defaultMeasurementDays = 7

// ListMeasurements returns stored measurements for ?segmento_id= between ?from= and ?to=.
// Bounds are YYYY-MM-DD civil days (to is inclusive) or RFC3339 instants; the window
// defaults to the last seven days including today.
func (h *Handler) ListMeasurements(c *fiber.Ctx) error {
	segmentID, err := optionalInt(c.Query("segmento_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "segmento_id must be a number")
	}
	loc := h.svc.Measurements.Location()

	to := domain.DayStart(h.svc.Now(), loc).AddDate(0, 0, 1)
	if raw := c.Query("to"); raw != "" {
		if to, err = rangeBound(raw, loc, true); err != nil {
			return err
		}
	}
	from := to.AddDate(0, 0, -defaultMeasurementDays)
	if raw := c.Query("from"); raw != "" {
		if from, err = rangeBound(raw, loc, false); err != nil {
			return err
		}
	}

	measurements, err := h.svc.Measurements.List(c.Context(), segmentID, from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"desde":   from.In(loc),
		"hasta":   to.In(loc),
		"data":    measurements,
		"count":   len(measurements),
	})
}

// rangeBound parses an RFC3339 instant or a civil day; an end day covers the whole day
func rangeBound(raw string, loc *time.Location, end bool) (time.Time, error) {
	if strings.Contains(raw, "T") {
		return domain.ParseInstant(raw)
	}
	day, err := domain.ParseDay(raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}

// ListFactors returns external factors, newest first; ?active=true keeps only active ones
func (h *Handler) ListFactors(c *fiber.Ctx) error {
	factors, err := h.svc.Factors.List(c.Context(), c.QueryBool("active", false))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    factors,
		"count":   len(factors),
	})
}

// CreateFactor registers an external factor
func (h *Handler) CreateFactor(c *fiber.Ctx) error {
	var f domain.ExternalFactor
	if err := c.BodyParser(&f); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.svc.Factors.Create(c.Context(), &f); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    f,
	})
}

// RefreshWeather pulls current conditions and updates the CLIMA factor
func (h *Handler) RefreshWeather(c *fiber.Ctx) error {
	res, err := h.svc.Weather.Refresh(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    res,
	})
}

// GetWeather returns current conditions together with the traffic alerts still in force
func (h *Handler) GetWeather(c *fiber.Ctx) error {
	factors, err := h.svc.Factors.List(c.Context(), true)
	if err != nil {
		return err
	}
	now := h.svc.Now()
	alerts := make([]domain.ExternalFactor, 0, len(factors))
	for _, f := range factors {
		if f.End.After(now) {
			alerts = append(alerts, f)
		}
	}

	data := fiber.Map{"disponible": false, "alertas_trafico": alerts}
	if w, err := h.svc.Weather.GetCurrentWeather(c.Context()); err == nil {
		data["disponible"] = true
		data["clima_actual"] = w
	} else {
		data["mensaje"] = "no alert data available"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func (h *Handler) loc() *time.Location {
	return h.svc.Forecasts.Location()
}

func (h *Handler) today() string {
	return domain.DayKey(h.svc.Now(), h.loc())
}

// dayQuery reads ?fecha= (or ?date=), defaulting to today in the service location
func (h *Handler) dayQuery(c *fiber.Ctx) string {
	if day := c.Query("fecha", c.Query("date")); day != "" {
		return day
	}
	return h.today()
}

// target resolves the instant a request asks about: ?at= (RFC3339) or ?fecha=&hora= in the
// service location, each defaulting to the current day and hour. timed is false when the
// request names no time at all.
func (h *Handler) target(c *fiber.Ctx) (at time.Time, timed bool, err error) {
	if raw := c.Query("at"); raw != "" {
		at, err = domain.ParseInstant(raw)
		return at, true, err
	}

	fecha, hora := c.Query("fecha", c.Query("date")), c.Query("hora", c.Query("time"))
	now := h.svc.Now().In(h.loc())
	if fecha == "" && hora == "" {
		return now, false, nil
	}

	day := domain.DayStart(now, h.loc())
	if fecha != "" {
		if day, err = domain.ParseDay(fecha, h.loc()); err != nil {
			return time.Time{}, false, err
		}
	}
	hour := now.Hour()
	if hora != "" {
		if hour, err = domain.ParseHour(hora); err != nil {
			return time.Time{}, false, err
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, h.loc()), true, nil
}

func segmentParam(c *fiber.Ctx) (int, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "segment id must be a number")
	}
	return id, nil
}

func optionalInt(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func intList(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
