package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/loschorros/backend/internal/config"
	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/metrics"
	"github.com/loschorros/backend/pkg/retry"
)

// alertReuseWindow is how far back a CLIMA factor is reused instead of creating a new one
const alertReuseWindow = 3 * time.Hour

// alertDuration is how long a weather alert stays valid after each refresh
const alertDuration = time.Hour

const noAlertData = "no alert data available"

// WeatherService turns the current OpenWeatherMap conditions at Los Chorros into CLIMA factors
type WeatherService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *retry.Runner
	factors    *FactorService
	repo       DataRepository
	now        func() time.Time
	log        logrus.FieldLogger

	wgBg sync.WaitGroup // tracks the refresh loop for graceful shutdown
}

// NewWeatherService creates a new weather service
func NewWeatherService(cfg config.WeatherConfig, factors *FactorService, repo DataRepository, log logrus.FieldLogger) *WeatherService {
	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 60
	}
	retryCfg := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.MaxAttempts
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WeatherService{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(perMin)/60), 1),
		retrier:    retry.NewRunner(retryCfg),
		factors:    factors,
		repo:       repo,
		now:        time.Now,
		log:        log,
	}
}

// Enabled reports whether an API key is configured
func (s *WeatherService) Enabled() bool {
	return s.apiKey != ""
}

// openWeatherResponse represents the OpenWeatherMap current weather response
type openWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Dt int64 `json:"dt"`
}

// GetCurrentWeather fetches current conditions at the Los Chorros reference point
func (s *WeatherService) GetCurrentWeather(ctx context.Context) (domain.Weather, error) {
	if !s.Enabled() {
		return domain.Weather{}, fmt.Errorf("weather: %s", noAlertData)
	}

	params := url.Values{}
	params.Add("lat", fmt.Sprintf("%f", domain.LosChorrosLat))
	params.Add("lon", fmt.Sprintf("%f", domain.LosChorrosLon))
	params.Add("appid", s.apiKey)
	params.Add("units", "metric")
	params.Add("lang", "es")
	endpoint := s.baseURL + "?" + params.Encode()

	var owResp openWeatherResponse
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("weather: rate limiter: %w", err))
		}
		return s.fetch(ctx, endpoint, &owResp)
	})
	if err != nil {
		metrics.WeatherFetchFailures.Inc()
		return domain.Weather{}, err
	}

	w := domain.Weather{
		Temperature:   owResp.Main.Temp,
		Humidity:      owResp.Main.Humidity,
		WindSpeed:     owResp.Wind.Speed,
		Precipitation: owResp.Rain.OneHour,
		Timestamp:     s.now(),
	}
	if owResp.Dt > 0 {
		w.Timestamp = time.Unix(owResp.Dt, 0)
	}
	if len(owResp.Weather) > 0 {
		w.Condition = owResp.Weather[0].Main
		w.Description = owResp.Weather[0].Description
	}
	return w, nil
}

func (s *WeatherService) fetch(ctx context.Context, endpoint string, dest *openWeatherResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("weather: failed to create request: %w", err))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weather: failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("weather: failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("weather: API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return retry.Permanent(fmt.Errorf("weather: failed to decode response: %w", err))
	}
	return nil
}

// ClassifyCondition maps an OpenWeatherMap main condition to a traffic impact; 0 means no risk
func ClassifyCondition(condition string) int {
	switch condition {
	case "Thunderstorm":
		return 4
	case "Rain", "Drizzle":
		return 3
	case "Fog", "Mist":
		return 2
	default:
		return 0
	}
}

func alertDescription(w domain.Weather) string {
	var text string
	switch w.Condition {
	case "Thunderstorm":
		text = fmt.Sprintf("Tormenta eléctrica: %s. Visibilidad reducida.", w.Description)
	case "Rain", "Drizzle":
		text = fmt.Sprintf("Lluvia activa: %s. Pavimento liso.", w.Description)
	default:
		text = "Neblina en la zona. Conducir con precaución."
	}
	return fmt.Sprintf("%s (Temp: %.1f°C)", text, w.Temperature)
}

// Refresh fetches the weather and creates, extends or deactivates the CLIMA factor.
// A failed fetch degrades to an unavailable result, not an error.
func (s *WeatherService) Refresh(ctx context.Context) (*domain.WeatherRefresh, error) {
	w, err := s.GetCurrentWeather(ctx)
	if err != nil {
		s.log.WithError(err).Warn("weather refresh skipped")
		return &domain.WeatherRefresh{Action: domain.RefreshUnavailable, Message: noAlertData}, nil
	}

	now := s.now().UTC()
	out := &domain.WeatherRefresh{Available: true, Weather: &w, Action: domain.RefreshNone}

	existing, err := s.repo.LatestFactor(ctx, domain.FactorWeather, now.Add(-alertReuseWindow))
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Active {
		existing = nil
	}

	impact := ClassifyCondition(w.Condition)
	switch {
	case impact > 0 && existing != nil:
		existing.Impact = impact
		existing.Description = alertDescription(w)
		existing.End = now.Add(alertDuration)
		if err := s.factors.Save(ctx, existing, false); err != nil {
			return nil, err
		}
		out.Action, out.Factor = domain.RefreshExtended, existing

	case impact > 0:
		lat, lng := domain.LosChorrosLat, domain.LosChorrosLon
		f := &domain.ExternalFactor{
			Name:        "Condición: " + w.Condition,
			Kind:        domain.FactorWeather,
			Start:       now,
			End:         now.Add(alertDuration),
			Lat:         &lat,
			Lng:         &lng,
			Impact:      impact,
			Description: alertDescription(w),
			Active:      true,
		}
		if err := s.factors.Save(ctx, f, true); err != nil {
			return nil, err
		}
		out.Action, out.Factor = domain.RefreshCreated, f

	case existing != nil:
		existing.Active = false
		if err := s.factors.Save(ctx, existing, true); err != nil {
			return nil, err
		}
		out.Action, out.Factor = domain.RefreshDeactivated, existing
	}

	s.log.WithFields(logrus.Fields{"condition": w.Condition, "action": out.Action}).Info("weather refreshed")
	return out, nil
}

// Start refreshes on every tick until ctx ends. It returns immediately without an API key.
func (s *WeatherService) Start(ctx context.Context, interval time.Duration) {
	if !s.Enabled() || interval <= 0 {
		return
	}
	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := s.Refresh(ctx); err != nil {
				s.log.WithError(err).Error("weather refresh failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// WaitBackground blocks until the refresh loop exits.
// Call during graceful shutdown after cancelling its context.
func (s *WeatherService) WaitBackground() {
	s.wgBg.Wait()
}
