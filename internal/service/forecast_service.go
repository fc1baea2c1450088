package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/cache"
	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/metrics"
	"github.com/loschorros/backend/internal/model"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/internal/traffic"
	"github.com/loschorros/backend/pkg/utils"
)

// DefaultFactorImpactStep is the base-term increase per impact level of an external factor
const DefaultFactorImpactStep = 0.05

// ForecastOptions tunes a ForecastService
type ForecastOptions struct {
	Location         *time.Location
	FactorImpactStep float64
	Rand             traffic.Rand
	Now              func() time.Time
}

// ForecastService produces and stores the 24-hour congestion profile of a segment
type ForecastService struct {
	registry   *registry.Registry
	repo       DataRepository
	models     ModelSource
	cache      *cache.CacheService
	loc        *time.Location
	factorStep float64
	rng        traffic.Rand
	now        func() time.Time
	log        logrus.FieldLogger
}

// NewForecastService creates a new forecast service; cache may be nil
func NewForecastService(
	reg *registry.Registry,
	repo DataRepository,
	models ModelSource,
	cacheSvc *cache.CacheService,
	log logrus.FieldLogger,
	opts ForecastOptions,
) *ForecastService {
	if opts.Location == nil {
		opts.Location = domain.LoadLocation("")
	}
	if opts.Rand == nil {
		opts.Rand = traffic.NewRand(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FactorImpactStep < 0 {
		opts.FactorImpactStep = 0
	}
	return &ForecastService{
		registry:   reg,
		repo:       repo,
		models:     models,
		cache:      cacheSvc,
		loc:        opts.Location,
		factorStep: opts.FactorImpactStep,
		rng:        opts.Rand,
		now:        opts.Now,
		log:        log,
	}
}

// Location is the civil timezone of forecast days
func (s *ForecastService) Location() *time.Location {
	return s.loc
}

// Predict returns the 24 hourly predictions of a segment for a civil day (YYYY-MM-DD).
// A fresh stored day is returned as is; otherwise the day is computed and stored atomically.
func (s *ForecastService) Predict(ctx context.Context, segmentID int, day string) ([]domain.CongestionPrediction, error) {
	seg, err := s.registry.Get(segmentID)
	if err != nil {
		return nil, err
	}
	start, err := domain.ParseDay(day, s.loc)
	if err != nil {
		return nil, err
	}
	day = start.Format(domain.DayLayout)
	log := s.log.WithFields(logrus.Fields{"segment_id": segmentID, "day": day})

	var cached []domain.CongestionPrediction
	found, err := s.cache.Get(ctx, cache.DayKey(segmentID, day), &cached)
	if err != nil {
		log.WithError(err).Warn("prediction cache read failed")
	}
	if found && len(cached) == domain.HoursPerDay {
		metrics.ForecastDaysServed.WithLabelValues("cache").Inc()
		return s.localize(cached), nil
	}

	rows, computed, err := s.repo.EnsureDay(ctx, segmentID, day, func(ctx context.Context) ([]domain.CongestionPrediction, error) {
		factors, err := s.repo.ActiveFactors(ctx, start.UTC(), start.AddDate(0, 0, 1).UTC())
		if err != nil {
			return nil, fmt.Errorf("forecast: failed to load external factors: %w", err)
		}
		return s.compute(ctx, seg, start, factors)
	})
	if err != nil {
		metrics.ForecastFailures.Inc()
		return nil, err
	}

	if computed {
		metrics.ForecastDaysComputed.Inc()
		log.WithField("version", rows[0].ModelVersion).Info("forecast day computed")
		s.publish(ctx, cache.PredictionEvent{SegmentID: segmentID, Day: day, Action: cache.EventComputed, Version: rows[0].ModelVersion})
	} else {
		metrics.ForecastDaysServed.WithLabelValues("store").Inc()
	}
	if err := s.cache.Set(ctx, cache.DayKey(segmentID, day), rows, 0); err != nil {
		metrics.CachePublishFailures.Inc()
		log.WithError(err).Warn("prediction cache write failed")
	}
	return s.localize(rows), nil
}

// Invalidate drops the stored freshness of a day so the next Predict recomputes it
func (s *ForecastService) Invalidate(ctx context.Context, segmentID int, day string) error {
	if _, err := s.registry.Get(segmentID); err != nil {
		return err
	}
	start, err := domain.ParseDay(day, s.loc)
	if err != nil {
		return err
	}
	day = start.Format(domain.DayLayout)

	if err := s.repo.InvalidateDay(ctx, segmentID, day); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cache.DayKey(segmentID, day)); err != nil {
		s.log.WithError(err).Warn("prediction cache delete failed")
	}
	s.publish(ctx, cache.PredictionEvent{SegmentID: segmentID, Day: day, Action: cache.EventInvalidated})
	s.log.WithFields(logrus.Fields{"segment_id": segmentID, "day": day}).Info("forecast day invalidated")
	return nil
}

func (s *ForecastService) publish(ctx context.Context, ev cache.PredictionEvent) {
	if err := s.cache.Publish(ctx, cache.PredictionsChannel, ev); err != nil {
		metrics.CachePublishFailures.Inc()
		s.log.WithError(err).Warn("prediction event publish failed")
	}
}

// compute blends the base curve with the segment model for every hour of the day
func (s *ForecastService) compute(ctx context.Context, seg domain.Segment, day time.Time, factors []domain.ExternalFactor) ([]domain.CongestionPrediction, error) {
	started := time.Now()
	defer func() { metrics.ForecastDuration.Observe(time.Since(started).Seconds()) }()

	m, err := s.models.Load(ctx, seg.ID)
	switch {
	case err == nil:
	case errors.Is(err, ErrModelUnavailable):
		s.log.WithFields(logrus.Fields{"segment_id": seg.ID, "day": day.Format(domain.DayLayout)}).
			Warn("forecasting from the base curve only")
		m = nil
	case errors.Is(err, domain.ErrModelNotFound):
		metrics.ModelLoadFailures.WithLabelValues("not_found").Inc()
		return nil, err
	default:
		metrics.ModelLoadFailures.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("forecast: failed to load model for segment %d: %w", seg.ID, err)
	}

	version := BaseOnlyVersion
	if m != nil {
		version = m.Version
	}
	now := s.now().UTC()
	frame := traffic.BuildDayFrame(seg, day, s.rng)
	out := make([]domain.CongestionPrediction, 0, len(frame))

	for _, row := range frame {
		lo, hi := traffic.BaseBand(row.Hour)
		est := model.Estimate{Value: row.BaseCongestion, Lower: lo, Upper: hi, Trend: row.BaseCongestion}
		if m != nil {
			est = m.Predict(model.Features(row, m.Epoch))
		}

		mult := s.factorMultiplier(seg, row.Timestamp, factors)
		level := traffic.AdjustCongestion(traffic.Blend(row.BaseCongestion, mult, est.Value), row.Precipitation)
		lower := traffic.AdjustCongestion(traffic.Blend(lowerBase(row.BaseCongestion, lo, m), mult, est.Lower), row.Precipitation)
		upper := traffic.AdjustCongestion(traffic.Blend(upperBase(row.BaseCongestion, hi, m), mult, est.Upper), row.Precipitation)

		speed := traffic.AdjustSpeed(traffic.SpeedFromCongestion(level, s.rng), seg.Construction, row.Precipitation)
		load := traffic.LoadFromCongestion(level, traffic.LoadConditions{
			TransitHeavy: seg.TransitHeavy,
			Raining:      row.Precipitation > 0,
			Weekend:      row.Weekend,
		})

		out = append(out, domain.CongestionPrediction{
			SegmentID:       seg.ID,
			Timestamp:       row.Timestamp.UTC(),
			Congestion:      utils.RoundTo(level, 2),
			CongestionLower: utils.RoundTo(lower, 2),
			CongestionUpper: utils.RoundTo(upper, 2),
			SpeedKMH:        utils.RoundTo(speed, 1),
			Load:            load,
			TravelMinutes:   utils.RoundTo(traffic.TravelMinutes(seg.LengthKM, speed), 2),
			BaseCongestion:  utils.RoundTo(row.BaseCongestion, 2),
			ModelEstimate:   utils.RoundTo(est.Value, 2),
			Trend:           utils.RoundTo(est.Trend, 3),
			ModelVersion:    version,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return out, nil
}

// lowerBase is the base term of the lower bound: the band floor when no model widens the interval
func lowerBase(base, bandLo float64, m *model.Model) float64 {
	if m == nil {
		return bandLo
	}
	return base
}

func upperBase(base, bandHi float64, m *model.Model) float64 {
	if m == nil {
		return bandHi
	}
	return base
}

// factorMultiplier scales the base term by the strongest external factor affecting the segment at ts
func (s *ForecastService) factorMultiplier(seg domain.Segment, ts time.Time, factors []domain.ExternalFactor) float64 {
	if s.factorStep == 0 {
		return 1
	}
	strongest := 0
	for _, f := range factors {
		if !f.Overlaps(ts, ts.Add(time.Hour)) || f.Impact <= strongest {
			continue
		}
		if s.affects(f, seg) {
			strongest = f.Impact
		}
	}
	return 1 + s.factorStep*float64(strongest)
}

// affects reports whether a factor applies to a segment. Weather covers the whole area;
// other located factors apply to the segment nearest to them.
func (s *ForecastService) affects(f domain.ExternalFactor, seg domain.Segment) bool {
	switch {
	case f.SegmentID != nil:
		return *f.SegmentID == seg.ID
	case f.Kind == domain.FactorWeather, f.Global():
		return true
	}
	nearest, _, ok := s.registry.Nearest(*f.Lat, *f.Lng)
	return ok && nearest.ID == seg.ID
}

func (s *ForecastService) localize(rows []domain.CongestionPrediction) []domain.CongestionPrediction {
	out := make([]domain.CongestionPrediction, len(rows))
	for i, r := range rows {
		r.Timestamp = r.Timestamp.In(s.loc)
		out[i] = r
	}
	return out
}
