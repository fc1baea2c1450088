package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/model"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/repository/memory"
	"github.com/loschorros/backend/pkg/logx"
)

// fixedRand always draws the middle of every range
type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

// stubModels serves constant models; segments missing from levels have no artifact
type stubModels struct {
	mu     sync.Mutex
	levels map[int]float64
	err    error
	loads  map[int]int
}

func constantModels(level float64) *stubModels {
	levels := map[int]float64{}
	for id := 1; id <= 10; id++ {
		levels[id] = level
	}
	return &stubModels{levels: levels, loads: map[int]int{}}
}

func (s *stubModels) Load(_ context.Context, segmentID int) (*model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[segmentID]++
	if s.err != nil {
		return nil, s.err
	}
	level, ok := s.levels[segmentID]
	if !ok {
		return nil, domain.ErrModelNotFound
	}
	return &model.Model{SegmentID: segmentID, Version: "v-test", Intercept: level}, nil
}

func (s *stubModels) loadCount(segmentID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[segmentID]
}

var (
	salvador = domain.LoadLocation(domain.DefaultTimezone)
	// Monday
	testDay = "2024-03-11"
	fixedAt = time.Date(2024, 3, 11, 9, 30, 0, 0, salvador)
)

type harness struct {
	repo            *memory.Repository
	registry        *registry.Registry
	models          *stubModels
	forecasts       *ForecastService
	recommendations *RecommendationService
	metrics         *MetricsService
	factors         *FactorService
}

func newHarness(t *testing.T, models *stubModels, routes ...domain.CandidateRoute) *harness {
	t.Helper()
	if len(routes) == 0 {
		routes = registry.SeedRoutes()
	}
	reg, err := registry.New(registry.SeedSegments(), routes)
	require.NoError(t, err)

	repo := memory.NewRepository()
	log := logx.Discard()
	forecasts := NewForecastService(reg, repo, models, nil, log, ForecastOptions{
		Location:         salvador,
		FactorImpactStep: DefaultFactorImpactStep,
		Rand:             fixedRand(0.5),
		Now:              func() time.Time { return fixedAt },
	})
	return &harness{
		repo:            repo,
		registry:        reg,
		models:          models,
		forecasts:       forecasts,
		recommendations: NewRecommendationService(forecasts, reg, repo, 4, log),
		metrics:         NewMetricsService(forecasts, reg, 4, log),
		factors:         NewFactorService(repo, forecasts, reg, log),
	}
}

func hourOf(t *testing.T, rows []domain.CongestionPrediction, hour int) domain.CongestionPrediction {
	t.Helper()
	for _, r := range rows {
		if r.Timestamp.In(salvador).Hour() == hour {
			return r
		}
	}
	t.Fatalf("no row for hour %d", hour)
	return domain.CongestionPrediction{}
}
