package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/registry"
)

func TestRecommendSegment(t *testing.T) {
	h := newHarness(t, constantModels(3))
	ctx := context.Background()
	at := time.Date(2024, 3, 11, 9, 40, 0, 0, salvador)

	rec, computed, err := h.recommendations.RecommendSegment(ctx, at)
	require.NoError(t, err)
	assert.True(t, computed)
	assert.Equal(t, domain.ModeSegment, rec.Mode)
	assert.True(t, rec.Slot.Equal(time.Date(2024, 3, 11, 9, 0, 0, 0, salvador)))
	require.Len(t, rec.Alternatives, 10)

	for i := 1; i < len(rec.Alternatives); i++ {
		assert.LessOrEqual(t, rec.Alternatives[i-1].TravelMinutes, rec.Alternatives[i].TravelMinutes)
	}
	assert.Equal(t, rec.Alternatives[0].SegmentID, rec.WinnerID)
	assert.Equal(t, rec.Alternatives[0].TravelMinutes, rec.TravelMinutes)

	// the winner matches the stored forecast of that hour
	rows, err := h.forecasts.Predict(ctx, rec.WinnerID, testDay)
	require.NoError(t, err)
	assert.Equal(t, hourOf(t, rows, 9).TravelMinutes, rec.TravelMinutes)
}

func TestRecommendSegmentCachedPerSlot(t *testing.T) {
	h := newHarness(t, constantModels(3))
	ctx := context.Background()

	first, computed, err := h.recommendations.RecommendSegment(ctx, time.Date(2024, 3, 11, 18, 5, 0, 0, salvador))
	require.NoError(t, err)
	require.True(t, computed)

	second, computed, err := h.recommendations.RecommendSegment(ctx, time.Date(2024, 3, 11, 18, 55, 0, 0, salvador))
	require.NoError(t, err)
	assert.False(t, computed)

	assert.True(t, first.Slot.Equal(second.Slot))
	assert.True(t, first.ComputedAt.Equal(second.ComputedAt))
	assert.Equal(t, first.WinnerID, second.WinnerID)
	assert.Equal(t, first.Alternatives, second.Alternatives)

	other, computed, err := h.recommendations.RecommendSegment(ctx, time.Date(2024, 3, 11, 19, 0, 0, 0, salvador))
	require.NoError(t, err)
	assert.True(t, computed)
	assert.False(t, other.Slot.Equal(first.Slot))
}

func TestRecommendSegmentConcurrent(t *testing.T) {
	h := newHarness(t, constantModels(3))
	ctx := context.Background()
	at := time.Date(2024, 3, 12, 7, 15, 0, 0, salvador)

	var (
		wg       sync.WaitGroup
		computed int32
	)
	recs := make([]*domain.RouteRecommendation, 8)
	for i := range recs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, ran, err := h.recommendations.RecommendSegment(ctx, at)
			assert.NoError(t, err)
			if ran {
				atomic.AddInt32(&computed, 1)
			}
			recs[i] = rec
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&computed))
	for _, rec := range recs[1:] {
		require.NotNil(t, rec)
		assert.Equal(t, recs[0].WinnerID, rec.WinnerID)
		assert.Equal(t, recs[0].Alternatives, rec.Alternatives)
	}
}

func TestRecommendRoute(t *testing.T) {
	h := newHarness(t, constantModels(3))
	ctx := context.Background()
	at := time.Date(2024, 3, 11, 9, 0, 0, 0, salvador)

	rec, computed, err := h.recommendations.RecommendRoute(ctx, at, nil)
	require.NoError(t, err)
	assert.True(t, computed)
	assert.Equal(t, domain.ModeRoute, rec.Mode)
	assert.Empty(t, rec.SkippedRoutes)

	ids := map[int]bool{}
	for _, alt := range rec.Alternatives {
		ids[alt.RouteID] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true, 4: true}, ids, "inactive route 5 is not ranked")
	assert.Equal(t, rec.Alternatives[0].RouteID, rec.WinnerID)

	// route 3 = tramos 9 and 10
	var total, congestion float64
	for _, id := range []int{9, 10} {
		rows, err := h.forecasts.Predict(ctx, id, testDay)
		require.NoError(t, err)
		total += hourOf(t, rows, 9).TravelMinutes
		congestion += hourOf(t, rows, 9).Congestion
	}
	for _, alt := range rec.Alternatives {
		if alt.RouteID == 3 {
			assert.InDelta(t, total, alt.TravelMinutes, 0.01)
			assert.InDelta(t, congestion/2, alt.Congestion, 0.01)
		}
	}

	again, computed, err := h.recommendations.RecommendRoute(ctx, at.Add(30*time.Minute), nil)
	require.NoError(t, err)
	assert.False(t, computed)
	assert.Equal(t, rec.Alternatives, again.Alternatives)
}

func TestRecommendRouteSkipsEmptyRoutes(t *testing.T) {
	routes := append(registry.SeedRoutes(), domain.CandidateRoute{ID: 6, Name: "Ruta sin tramos", Active: true})
	h := newHarness(t, constantModels(3), routes...)
	ctx := context.Background()
	at := time.Date(2024, 3, 11, 14, 0, 0, 0, salvador)

	rec, _, err := h.recommendations.RecommendRoute(ctx, at, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, rec.SkippedRoutes)
	for _, alt := range rec.Alternatives {
		assert.NotEqual(t, 6, alt.RouteID)
	}

	_, _, err = h.recommendations.RecommendRoute(ctx, at, []int{6})
	assert.ErrorIs(t, err, domain.ErrNoAdmissibleCandidates)
}

func TestRecommendRouteFilteredIsNotPersisted(t *testing.T) {
	h := newHarness(t, constantModels(3))
	ctx := context.Background()
	at := time.Date(2024, 3, 11, 11, 0, 0, 0, salvador)

	rec, computed, err := h.recommendations.RecommendRoute(ctx, at, []int{1, 3})
	require.NoError(t, err)
	assert.True(t, computed)
	require.Len(t, rec.Alternatives, 2)

	stored, err := h.repo.GetRecommendation(ctx, domain.RecommendationKey{Mode: domain.ModeRoute, Slot: rec.Slot.UTC()})
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRecommendByVehicle(t *testing.T) {
	h := newHarness(t, constantModels(3))
	ctx := context.Background()
	at := time.Date(2024, 3, 11, 17, 0, 0, 0, salvador)

	bus, err := h.recommendations.RecommendByVehicle(ctx, domain.VehicleBus, &at, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleForecast, bus.Mode)
	assert.ElementsMatch(t, []int{1, 2}, optionIDs(bus.Options))

	moto, err := h.recommendations.RecommendByVehicle(ctx, domain.VehicleMoto, &at, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 4, 5, 6, 7, 8, 9, 10}, optionIDs(moto.Options))

	car, err := h.recommendations.RecommendByVehicle(ctx, domain.VehicleCar, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleSnapshot, car.Mode)
	assert.True(t, car.Slot.Equal(time.Date(2024, 3, 11, 9, 0, 0, 0, salvador)))
	assert.ElementsMatch(t, []int{3, 4, 5, 6, 7, 8, 9}, optionIDs(car.Options))

	for i := 1; i < len(moto.Options); i++ {
		assert.LessOrEqual(t, moto.Options[i-1].Score, moto.Options[i].Score)
	}
	assert.Equal(t, moto.Options[0], moto.Winner)
}

func TestRecommendByVehicleAvoid(t *testing.T) {
	h := newHarness(t, constantModels(3))
	ctx := context.Background()
	at := time.Date(2024, 3, 11, 10, 0, 0, 0, salvador)

	plain, err := h.recommendations.RecommendByVehicle(ctx, domain.VehicleCar, &at, nil)
	require.NoError(t, err)
	avoid := plain.Winner.SegmentID

	avoided, err := h.recommendations.RecommendByVehicle(ctx, domain.VehicleCar, &at, &avoid)
	require.NoError(t, err)
	require.NotNil(t, avoided.Avoided)
	for _, opt := range avoided.Options {
		if opt.SegmentID == avoid {
			assert.Greater(t, opt.Score, plain.Winner.Score)
		}
	}

	unknown := 11
	_, err = h.recommendations.RecommendByVehicle(ctx, domain.VehicleCar, &at, &unknown)
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)
}

func optionIDs(options []domain.ScoredOption) []int {
	ids := make([]int, len(options))
	for i, o := range options {
		ids[i] = o.SegmentID
	}
	return ids
}
