package service

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/traffic"
	"github.com/loschorros/backend/pkg/utils"
)

// peakThreshold is the mean congestion from which an hour counts as peak
const peakThreshold = 4.0

// MetricsService aggregates forecast days into daily analytics
type MetricsService struct {
	forecasts   dayForecaster
	registry    *registry.Registry
	parallelism int
	log         logrus.FieldLogger
}

// NewMetricsService creates a new metrics service
func NewMetricsService(forecasts *ForecastService, reg *registry.Registry, parallelism int, log logrus.FieldLogger) *MetricsService {
	return &MetricsService{forecasts: forecasts, registry: reg, parallelism: parallelism, log: log}
}

// Daily returns hourly averages and peak hours of a day, for one segment or all of them
func (s *MetricsService) Daily(ctx context.Context, day string, segmentID *int) (*domain.DailyMetrics, error) {
	ids := s.registry.IDs()
	if segmentID != nil {
		if _, err := s.registry.Get(*segmentID); err != nil {
			return nil, err
		}
		ids = []int{*segmentID}
	}
	start, err := domain.ParseDay(day, s.forecasts.Location())
	if err != nil {
		return nil, err
	}
	day = start.Format(domain.DayLayout)

	days, err := prefetchDays(ctx, s.forecasts, ids, day, s.parallelism)
	if err != nil {
		return nil, err
	}

	out := &domain.DailyMetrics{
		Day:       day,
		SegmentID: segmentID,
		Segments:  len(ids),
		Hours:     summarizeHours(days, s.forecasts),
	}

	total := 0.0
	for _, h := range out.Hours {
		total += h.AvgCongestion
	}
	out.AvgCongestion = utils.RoundTo(total/float64(len(out.Hours)), 2)
	out.Label = traffic.CongestionLabel(out.AvgCongestion)
	out.MorningPeak, out.AfternoonPeak = peakHours(out.Hours)
	out.TopHours = topHours(out.Hours, 3)
	return out, nil
}

func summarizeHours(days map[int][]domain.CongestionPrediction, f dayForecaster) []domain.HourlyMetric {
	type acc struct {
		congestion, speed, load, travel float64
		n                               int
	}
	var sums [domain.HoursPerDay]acc
	for _, rows := range days {
		for _, p := range rows {
			h := p.Timestamp.In(f.Location()).Hour()
			sums[h].congestion += p.Congestion
			sums[h].speed += p.SpeedKMH
			sums[h].load += float64(p.Load)
			sums[h].travel += p.TravelMinutes
			sums[h].n++
		}
	}

	hours := make([]domain.HourlyMetric, domain.HoursPerDay)
	for h, a := range sums {
		hours[h].Hour = h
		if a.n == 0 {
			continue
		}
		n := float64(a.n)
		hours[h].AvgCongestion = utils.RoundTo(a.congestion/n, 2)
		hours[h].AvgSpeedKMH = utils.RoundTo(a.speed/n, 1)
		hours[h].AvgLoad = utils.RoundTo(a.load/n, 1)
		hours[h].TotalTravelMinutes = utils.RoundTo(a.travel, 2)
		hours[h].Peak = hours[h].AvgCongestion >= peakThreshold
	}
	return hours
}

// peakHours returns the most congested hour before noon and from noon on.
// Ties resolve to the earlier hour.
func peakHours(hours []domain.HourlyMetric) (morning, afternoon int) {
	morning, afternoon = 0, 12
	for _, h := range hours {
		if h.Hour < 12 && h.AvgCongestion > hours[morning].AvgCongestion {
			morning = h.Hour
		}
		if h.Hour >= 12 && h.AvgCongestion > hours[afternoon].AvgCongestion {
			afternoon = h.Hour
		}
	}
	return morning, afternoon
}

func topHours(hours []domain.HourlyMetric, n int) []int {
	sorted := append([]domain.HourlyMetric(nil), hours...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AvgCongestion > sorted[j].AvgCongestion
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = sorted[i].Hour
	}
	return out
}
