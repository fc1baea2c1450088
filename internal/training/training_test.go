package training

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/model"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/repository/memory"
	"github.com/loschorros/backend/internal/traffic"
	"github.com/loschorros/backend/pkg/logx"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

var salvador = domain.LoadLocation(domain.DefaultTimezone)

func segmentsByID(t *testing.T, ids ...int) []domain.Segment {
	t.Helper()
	reg, err := registry.New(registry.SeedSegments(), nil)
	require.NoError(t, err)
	var out []domain.Segment
	for _, id := range ids {
		seg, err := reg.Get(id)
		require.NoError(t, err)
		out = append(out, seg)
	}
	return out
}

func TestSimulate(t *testing.T) {
	start := time.Date(2024, 3, 11, 15, 0, 0, 0, salvador)
	obs := Simulate(segmentsByID(t, 1, 3), start, 2, fixedRand(0.5))
	require.Len(t, obs, 2*24*2)

	for _, o := range obs {
		assert.GreaterOrEqual(t, o.Congestion, traffic.MinCongestion)
		assert.LessOrEqual(t, o.Congestion, traffic.MaxCongestion)
		assert.Greater(t, o.SpeedKMH, 0.0)
	}

	// starts at the civil day's midnight, hour-major with segments interleaved
	assert.Equal(t, 0, obs[0].Hour)
	assert.Equal(t, "2024-03-11", domain.DayKey(obs[0].Timestamp, salvador))
	assert.Equal(t, "Lunes", obs[0].DayType)

	// at 10:00 the transit-heavy segment carries the extra pressure
	seg1, seg3 := obs[10*2], obs[10*2+1]
	require.Equal(t, 1, seg1.SegmentID)
	require.Equal(t, 3, seg3.SegmentID)
	assert.Greater(t, seg1.Congestion, seg3.Congestion)
	assert.Greater(t, seg1.Load, seg3.Load)
}

func TestCSVRoundTrip(t *testing.T) {
	obs := Simulate(segmentsByID(t, 2), time.Date(2024, 3, 16, 0, 0, 0, 0, salvador), 1, traffic.NewRand(3))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, obs, salvador))
	assert.True(t, strings.HasPrefix(buf.String(), strings.Join(Columns, ",")+"\n"))

	got, err := ReadCSV(&buf, salvador)
	require.NoError(t, err)
	require.Len(t, got, len(obs))
	for i := range obs {
		assert.True(t, obs[i].Timestamp.Equal(got[i].Timestamp), "row %d", i)
		assert.Equal(t, obs[i].Congestion, got[i].Congestion)
		assert.Equal(t, obs[i].SpeedKMH, got[i].SpeedKMH)
		assert.Equal(t, obs[i].Load, got[i].Load)
		assert.Equal(t, obs[i].Weekend, got[i].Weekend)
		assert.Equal(t, obs[i].DayType, got[i].DayType)
	}
}

func TestReadCSVByHeaderName(t *testing.T) {
	data := "hora,nivel_congestion,fecha,segmento_id,precipitacion\n" +
		"07:00,4.8,2024-03-11,4,\n" +
		"17,4.1,2024-03-16,4,1.5\n"
	got, err := ReadCSV(strings.NewReader(data), salvador)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 4, got[0].SegmentID)
	assert.Equal(t, 7, got[0].Hour)
	assert.Equal(t, 0.0, got[0].Precipitation)
	assert.Equal(t, "Lunes", got[0].DayType)
	assert.Equal(t, 17, got[1].Hour)
	assert.Equal(t, 1.5, got[1].Precipitation)
	assert.Equal(t, "Sábado", got[1].DayType)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("segmento_id,fecha,hora\n1,2024-03-11,07:00\n"), salvador)
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ReadCSV(strings.NewReader("segmento_id,fecha,hora,nivel_congestion\n1,11/03/2024,07:00,3\n"), salvador)
	assert.ErrorIs(t, err, domain.ErrInvalidDateFormat)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadCSV(strings.NewReader("segmento_id,fecha,hora,nivel_congestion\n1,2024-03-11,07:00,alto\n"), salvador)
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("segmento_id,fecha,hora,nivel_congestion\n0,2024-03-11,07:00,3\n"), salvador)
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)
}

type recordingSaver struct {
	mu    sync.Mutex
	saved map[int]*model.Model
	err   error
}

func (s *recordingSaver) Save(m *model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved[m.SegmentID] = m
	return nil
}

func TestPipelineRun(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, salvador)
	obs := Simulate(segmentsByID(t, 3, 8), start, 14, traffic.NewRand(7))
	// a third segment with too little history
	obs = append(obs, Simulate(segmentsByID(t, 9), start, 1, traffic.NewRand(8))[:20]...)

	store := model.NewStore(t.TempDir(), 8, 0)
	now := func() time.Time { return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) }
	p := NewPipeline(store, Options{Parallelism: 2, Now: now}, logx.Discard())

	report, err := p.Run(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Trained)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Segments, 3)
	assert.Equal(t, []int{3, 8, 9}, []int{report.Segments[0].SegmentID, report.Segments[1].SegmentID, report.Segments[2].SegmentID})
	assert.True(t, report.Segments[2].Skipped)
	assert.Equal(t, 20, report.Segments[2].Rows)

	for _, id := range []int{3, 8} {
		m, err := store.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, report.Segments[0].Rows, m.Samples)
		assert.Equal(t, now(), m.TrainedAt)
	}
	_, err = store.Load(context.Background(), 9)
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}

type failingSource struct{}

func (failingSource) QueryObservations(context.Context, int, time.Time, time.Time) ([]domain.Observation, error) {
	return nil, errors.New("database is locked")
}

func TestPipelineRunStored(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.SeedRegistry(ctx, registry.SeedSegments(), registry.SeedRoutes()))

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, salvador)
	n, err := repo.SaveObservations(ctx, Simulate(segmentsByID(t, 4, 6), start, 3, traffic.NewRand(3)))
	require.NoError(t, err)
	assert.Equal(t, 144, n)

	store := model.NewStore(t.TempDir(), 8, 0)
	p := NewPipeline(store, Options{}, logx.Discard())

	// two of the three stored days
	report, err := p.RunStored(ctx, repo, start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Trained)
	require.Len(t, report.Segments, 2)
	assert.Equal(t, 48, report.Segments[0].Rows)

	m, err := store.Load(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, 48, m.Samples)

	report, err = p.RunStored(ctx, repo, start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Trained)
	assert.Equal(t, 2, report.Skipped)

	_, err = p.RunStored(ctx, failingSource{}, start, start.AddDate(0, 0, 1))
	assert.ErrorContains(t, err, "database is locked")
}

func TestPipelineSaveFailure(t *testing.T) {
	obs := Simulate(segmentsByID(t, 5), time.Date(2024, 3, 1, 0, 0, 0, 0, salvador), 14, traffic.NewRand(9))
	saver := &recordingSaver{saved: map[int]*model.Model{}, err: errors.New("disk full")}

	_, err := NewPipeline(saver, Options{}, logx.Discard()).Run(context.Background(), obs)
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, saver.saved)
}
