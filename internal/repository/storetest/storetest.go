// Package storetest is a conformance suite run against every domain.DataRepository implementation
package storetest

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

// Factory returns a fresh, empty repository
type Factory func(t *testing.T) domain.DataRepository

// Run executes the whole suite
func Run(t *testing.T, newRepo Factory) {
	t.Run("Registry", func(t *testing.T) { testRegistry(t, newRepo(t)) })
	t.Run("ReplaceDay", func(t *testing.T) { testReplaceDay(t, newRepo(t)) })
	t.Run("EnsureDay", func(t *testing.T) { testEnsureDay(t, newRepo(t)) })
	t.Run("EnsureDayConcurrent", func(t *testing.T) { testEnsureDayConcurrent(t, newRepo(t)) })
	t.Run("Recommendations", func(t *testing.T) { testRecommendations(t, newRepo(t)) })
	t.Run("Factors", func(t *testing.T) { testFactors(t, newRepo(t)) })
	t.Run("Observations", func(t *testing.T) { testObservations(t, newRepo(t)) })
}

func seed(t *testing.T, repo domain.DataRepository) {
	t.Helper()
	require.NoError(t, repo.SeedRegistry(context.Background(), registry.SeedSegments(), registry.SeedRoutes()))
}

// Day builds 24 predictions for a segment starting at the UTC midnight of day
func Day(segmentID int, day string, level float64) []domain.CongestionPrediction {
	start, _ := time.Parse(domain.DayLayout, day)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.CongestionPrediction, 0, domain.HoursPerDay)
	for h := 0; h < domain.HoursPerDay; h++ {
		out = append(out, domain.CongestionPrediction{
			SegmentID:       segmentID,
			Timestamp:       start.Add(time.Duration(h) * time.Hour),
			Congestion:      level,
			CongestionLower: level - 0.5,
			CongestionUpper: level + 0.5,
			SpeedKMH:        30 + float64(h),
			Load:            400 + h,
			TravelMinutes:   25.5,
			BaseCongestion:  level,
			ModelEstimate:   level,
			Trend:           0.1,
			ModelVersion:    "v-test",
			CreatedAt:       created,
			UpdatedAt:       created,
		})
	}
	return out
}

func assertSamePredictions(t *testing.T, want, got []domain.CongestionPrediction) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.True(t, w.Timestamp.Equal(g.Timestamp), "row %d timestamp %s != %s", i, w.Timestamp, g.Timestamp)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt))
		w.Timestamp, g.Timestamp = time.Time{}, time.Time{}
		w.CreatedAt, g.CreatedAt = time.Time{}, time.Time{}
		w.UpdatedAt, g.UpdatedAt = time.Time{}, time.Time{}
		assert.Equal(t, w, g, "row %d", i)
	}
}

func testRegistry(t *testing.T, repo domain.DataRepository) {
	ctx := context.Background()
	seed(t, repo)
	// second seed is a no-op
	seed(t, repo)

	segments, err := repo.ListSegments(ctx)
	require.NoError(t, err)
	require.Len(t, segments, 10)
	assert.Equal(t, registry.SeedSegments(), segments)

	routes, err := repo.ListRoutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, registry.SeedRoutes(), routes)
}

func testReplaceDay(t *testing.T, repo domain.DataRepository) {
	ctx := context.Background()
	seed(t, repo)

	marker, err := repo.ForecastDay(ctx, 3, "2024-03-11")
	require.NoError(t, err)
	assert.Nil(t, marker)

	first := Day(3, "2024-03-11", 2.0)
	marker, err = repo.ReplaceDay(ctx, 3, "2024-03-11", first)
	require.NoError(t, err)
	assert.Equal(t, 24, marker.Rows)
	assert.NotEmpty(t, marker.Version)

	second := Day(3, "2024-03-11", 4.0)
	marker2, err := repo.ReplaceDay(ctx, 3, "2024-03-11", second)
	require.NoError(t, err)
	assert.NotEqual(t, marker.Version, marker2.Version)

	got, err := repo.DayPredictions(ctx, 3, "2024-03-11")
	require.NoError(t, err)
	assertSamePredictions(t, second, got)

	stored, err := repo.ForecastDay(ctx, 3, "2024-03-11")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, marker2.Version, stored.Version)

	from := second[6].Timestamp
	ranged, err := repo.QueryPredictions(ctx, 3, from, from.Add(3*time.Hour))
	require.NoError(t, err)
	assertSamePredictions(t, second[6:9], ranged)

	other, err := repo.DayPredictions(ctx, 4, "2024-03-11")
	require.NoError(t, err)
	assert.Empty(t, other)

	_, err = repo.ReplaceDay(ctx, 3, "2024-03-12", nil)
	assert.Error(t, err)
	_, err = repo.ReplaceDay(ctx, 3, "2024-03-12", Day(4, "2024-03-12", 1))
	assert.Error(t, err)
}

func testEnsureDay(t *testing.T, repo domain.DataRepository) {
	ctx := context.Background()
	seed(t, repo)

	var calls int32
	compute := func(level float64) domain.ComputeDayFunc {
		return func(context.Context) ([]domain.CongestionPrediction, error) {
			atomic.AddInt32(&calls, 1)
			return Day(5, "2024-03-12", level), nil
		}
	}

	first, computed, err := repo.EnsureDay(ctx, 5, "2024-03-12", compute(3.0))
	require.NoError(t, err)
	assert.True(t, computed)

	second, computed, err := repo.EnsureDay(ctx, 5, "2024-03-12", compute(1.0))
	require.NoError(t, err)
	assert.False(t, computed)
	assertSamePredictions(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, repo.InvalidateDay(ctx, 5, "2024-03-12"))
	third, computed, err := repo.EnsureDay(ctx, 5, "2024-03-12", compute(1.0))
	require.NoError(t, err)
	assert.True(t, computed)
	assert.Equal(t, 1.0, third[0].Congestion)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func testEnsureDayConcurrent(t *testing.T, repo domain.DataRepository) {
	ctx := context.Background()
	seed(t, repo)

	var calls int32
	compute := func(context.Context) ([]domain.CongestionPrediction, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return Day(6, "2024-03-13", 2.5), nil
	}

	var (
		wg       sync.WaitGroup
		computed int32
	)
	results := make([][]domain.CongestionPrediction, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ran bool
			results[i], ran, errs[i] = repo.EnsureDay(ctx, 6, "2024-03-13", compute)
			if ran {
				atomic.AddInt32(&computed, 1)
			}
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 24)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&computed), "exactly one caller reports the computation")

	rows, err := repo.DayPredictions(ctx, 6, "2024-03-13")
	require.NoError(t, err)
	assert.Len(t, rows, 24)
}

func testRecommendations(t *testing.T, repo domain.DataRepository) {
	ctx := context.Background()
	seed(t, repo)

	key := domain.RecommendationKey{Mode: domain.ModeSegment, Slot: time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC)}
	got, err := repo.GetRecommendation(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	var calls int32
	compute := func(context.Context) (*domain.RouteRecommendation, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return &domain.RouteRecommendation{
			WinnerID:      5,
			WinnerName:    "Los Chorros - Tramo 5",
			TravelMinutes: 21.5,
			Congestion:    2.25,
			Alternatives: []domain.ScoredOption{
				{SegmentID: 5, Name: "Los Chorros - Tramo 5", TravelMinutes: 21.5, Congestion: 2.25},
				{SegmentID: 3, Name: "Los Chorros - Tramo 3", TravelMinutes: 25, Congestion: 3},
			},
			ComputedAt: time.Date(2024, 3, 11, 12, 59, 0, 0, time.UTC),
		}, nil
	}

	var wg sync.WaitGroup
	recs := make([]*domain.RouteRecommendation, 6)
	for i := range recs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _, err := repo.EnsureRecommendation(ctx, key, compute)
			assert.NoError(t, err)
			recs[i] = rec
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	stored, computed, err := repo.EnsureRecommendation(ctx, key, compute)
	require.NoError(t, err)
	assert.False(t, computed)
	assert.Equal(t, domain.ModeSegment, stored.Mode)
	assert.True(t, key.Slot.Equal(stored.Slot))
	assert.Equal(t, 5, stored.WinnerID)
	assert.Equal(t, recs[0].Alternatives, stored.Alternatives)

	routeKey := domain.RecommendationKey{Mode: domain.ModeRoute, Slot: key.Slot}
	none, err := repo.GetRecommendation(ctx, routeKey)
	require.NoError(t, err)
	assert.Nil(t, none, "modes are stored independently")
}

func testFactors(t *testing.T, repo domain.DataRepository) {
	ctx := context.Background()
	seed(t, repo)

	start := time.Date(2024, 3, 11, 16, 0, 0, 0, time.UTC)
	seg := 1
	f := &domain.ExternalFactor{
		Name:      "Lluvia intensa",
		Kind:      domain.FactorWeather,
		Start:     start,
		End:       start.Add(3 * time.Hour),
		SegmentID: &seg,
		Impact:    3,
		Active:    true,
		CreatedAt: start,
	}
	require.NoError(t, repo.SaveFactor(ctx, f))
	assert.NotZero(t, f.ID)

	active, err := repo.ActiveFactors(ctx, start.Add(time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 1, *active[0].SegmentID)
	assert.Nil(t, active[0].Lat)

	none, err := repo.ActiveFactors(ctx, start.Add(3*time.Hour), start.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	latest, err := repo.LatestFactor(ctx, domain.FactorWeather, start.Add(-3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, f.ID, latest.ID)

	missing, err := repo.LatestFactor(ctx, domain.FactorWeather, start.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, missing)

	f.Active = false
	require.NoError(t, repo.SaveFactor(ctx, f))
	active, err = repo.ActiveFactors(ctx, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.ListFactors(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	onlyActive, err := repo.ListFactors(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, onlyActive)
}

// Observations builds hourly measurements of a segment starting at the UTC midnight of day
func Observations(segmentID int, day string, hours int, level float64) []domain.Observation {
	start, _ := time.Parse(domain.DayLayout, day)
	out := make([]domain.Observation, 0, hours)
	for h := 0; h < hours; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		out = append(out, domain.Observation{
			HourlyFeatureRow: domain.HourlyFeatureRow{
				Timestamp:     ts,
				Hour:          ts.Hour(),
				DayType:       domain.WeekdayName(ts.Weekday()),
				Weekend:       ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday,
				Precipitation: 0.5,
				StudentsIn:    ts.Hour() == 7,
				WorkersOut:    ts.Hour() == 17,
				Peak:          ts.Hour() == 7 || ts.Hour() == 17,
				LengthKM:      12.969,
				StopCount:     3,
				SpeedKMH:      35.25,
				Load:          470,
				SegmentID:     segmentID,
			},
			Congestion: level,
		})
	}
	return out
}

func testObservations(t *testing.T, repo domain.DataRepository) {
	ctx := context.Background()
	seed(t, repo)

	first := Observations(2, "2024-03-11", 30, 3.0)
	n, err := repo.SaveObservations(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	_, err = repo.SaveObservations(ctx, Observations(4, "2024-03-11", 5, 2.0))
	require.NoError(t, err)

	from := first[0].Timestamp
	got, err := repo.QueryObservations(ctx, 2, from, from.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 24)
	for i := range got {
		assert.True(t, first[i].Timestamp.Equal(got[i].Timestamp))
		assert.Equal(t, time.UTC, got[i].Timestamp.Location())
		want := first[i]
		want.Timestamp, got[i].Timestamp = time.Time{}, time.Time{}
		assert.Equal(t, want, got[i], "row %d", i)
	}

	// saving the same hour again replaces it
	again := Observations(2, "2024-03-11", 1, 4.5)
	_, err = repo.SaveObservations(ctx, again)
	require.NoError(t, err)
	got, err = repo.QueryObservations(ctx, 2, from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4.5, got[0].Congestion)

	all, err := repo.QueryObservations(ctx, 0, from, from.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 35)
	assert.Equal(t, 2, all[0].SegmentID)
	assert.Equal(t, 4, all[len(all)-1].SegmentID)
	for i := 1; i < 30; i++ {
		assert.True(t, all[i-1].Timestamp.Before(all[i].Timestamp), "segment rows ordered by time")
	}

	none, err := repo.QueryObservations(ctx, 3, from, from.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.SaveObservations(ctx, Observations(0, "2024-03-11", 1, 2))
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)
}
