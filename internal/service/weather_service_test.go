package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/config"
	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/pkg/logx"
)

// fakeOWM serves the current condition set by the test
type fakeOWM struct {
	mu        sync.Mutex
	condition string
	status    int
	hits      int
}

func (f *fakeOWM) set(condition string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.condition, f.status = condition, status
}

func (f *fakeOWM) takeHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.hits
	f.hits = 0
	return n
}

func (f *fakeOWM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if r.URL.Query().Get("appid") != "test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		return
	}
	fmt.Fprintf(w, `{"main":{"temp":24.5,"humidity":88},"weather":[{"main":%q,"description":"lluvia ligera"}],"wind":{"speed":3.1},"rain":{"1h":0.8}}`, f.condition)
}

func newWeatherService(t *testing.T, h *harness, url string) *WeatherService {
	t.Helper()
	return NewWeatherService(config.WeatherConfig{
		APIKey:         "test-key",
		BaseURL:        url,
		RequestsPerMin: 6000,
		MaxAttempts:    2,
	}, h.factors, h.repo, logx.Discard())
}

func TestClassifyCondition(t *testing.T) {
	assert.Equal(t, 3, ClassifyCondition("Rain"))
	assert.Equal(t, 3, ClassifyCondition("Drizzle"))
	assert.Equal(t, 4, ClassifyCondition("Thunderstorm"))
	assert.Equal(t, 2, ClassifyCondition("Fog"))
	assert.Equal(t, 2, ClassifyCondition("Mist"))
	assert.Zero(t, ClassifyCondition("Clear"))
	assert.Zero(t, ClassifyCondition("Clouds"))
}

func TestWeatherRefreshLifecycle(t *testing.T) {
	owm := &fakeOWM{}
	srv := httptest.NewServer(owm)
	defer srv.Close()

	h := newHarness(t, constantModels(3))
	ws := newWeatherService(t, h, srv.URL)
	ctx := context.Background()

	owm.set("Rain", http.StatusOK)
	res, err := ws.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, domain.RefreshCreated, res.Action)
	require.NotNil(t, res.Factor)
	assert.Equal(t, domain.FactorWeather, res.Factor.Kind)
	assert.Equal(t, 3, res.Factor.Impact)
	assert.Equal(t, 0.8, res.Weather.Precipitation)
	created := res.Factor.ID

	owm.set("Thunderstorm", http.StatusOK)
	res, err = ws.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshExtended, res.Action)
	assert.Equal(t, created, res.Factor.ID)
	assert.Equal(t, 4, res.Factor.Impact)

	owm.set("Clear", http.StatusOK)
	res, err = ws.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshDeactivated, res.Action)
	assert.False(t, res.Factor.Active)

	res, err = ws.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshNone, res.Action)

	active, err := h.factors.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestWeatherRefreshDegrades(t *testing.T) {
	owm := &fakeOWM{}
	srv := httptest.NewServer(owm)
	defer srv.Close()

	h := newHarness(t, constantModels(3))
	ws := newWeatherService(t, h, srv.URL)

	owm.set("", http.StatusBadGateway)
	res, err := ws.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, domain.RefreshUnavailable, res.Action)
	assert.Equal(t, 2, owm.takeHits(), "server errors are retried")

	owm.set("", http.StatusNotFound)
	res, err = ws.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshUnavailable, res.Action)
	assert.Equal(t, 1, owm.takeHits(), "client errors are not retried")
}

func TestWeatherDisabledWithoutKey(t *testing.T) {
	h := newHarness(t, constantModels(3))
	ws := NewWeatherService(config.WeatherConfig{}, h.factors, h.repo, logx.Discard())
	assert.False(t, ws.Enabled())

	res, err := ws.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshUnavailable, res.Action)
}
