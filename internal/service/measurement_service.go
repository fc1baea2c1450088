package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/metrics"
	"github.com/loschorros/backend/internal/registry"
)

// MaxMeasurementRange bounds a single measurement listing
const MaxMeasurementRange = 31 * 24 * time.Hour

// ingestChunk bounds the rows written per storage call
const ingestChunk = 2000

// MeasurementService loads historical measurements into storage and serves them back
type MeasurementService struct {
	repo     domain.ObservationStore
	registry *registry.Registry
	loc      *time.Location
	log      logrus.FieldLogger
}

// NewMeasurementService creates a new measurement service
func NewMeasurementService(repo domain.ObservationStore, reg *registry.Registry, loc *time.Location, log logrus.FieldLogger) *MeasurementService {
	if loc == nil {
		loc = domain.LoadLocation(domain.DefaultTimezone)
	}
	return &MeasurementService{repo: repo, registry: reg, loc: loc, log: log}
}

// Ingest stores observations of known segments. Rows already stored for the same
// (segment, hour) are replaced, so loading a dataset twice is harmless.
func (s *MeasurementService) Ingest(ctx context.Context, obs []domain.Observation) (int, error) {
	for i, o := range obs {
		if _, err := s.registry.Get(o.SegmentID); err != nil {
			return 0, fmt.Errorf("measurements: row %d: %w", i+1, err)
		}
	}

	total := 0
	for start := 0; start < len(obs); start += ingestChunk {
		end := start + ingestChunk
		if end > len(obs) {
			end = len(obs)
		}
		n, err := s.repo.SaveObservations(ctx, obs[start:end])
		if err != nil {
			return total, fmt.Errorf("measurements: failed to store rows %d-%d: %w", start+1, end, err)
		}
		total += n
		metrics.ObservationsIngested.Add(float64(n))
	}

	s.log.WithField("rows", total).Info("measurements stored")
	return total, nil
}

// List returns measurements in [from, to) for one segment, or every segment when segmentID is nil
func (s *MeasurementService) List(ctx context.Context, segmentID *int, from, to time.Time) ([]domain.Measurement, error) {
	id := 0
	if segmentID != nil {
		if _, err := s.registry.Get(*segmentID); err != nil {
			return nil, err
		}
		id = *segmentID
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: end must be after start", domain.ErrInvalidRange)
	}
	if to.Sub(from) > MaxMeasurementRange {
		return nil, fmt.Errorf("%w: at most %d days per request", domain.ErrInvalidRange, int(MaxMeasurementRange.Hours()/24))
	}

	obs, err := s.repo.QueryObservations(ctx, id, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	out := make([]domain.Measurement, 0, len(obs))
	for _, o := range obs {
		m := domain.Measurement{
			SegmentID:     o.SegmentID,
			Timestamp:     o.Timestamp.In(s.loc),
			SpeedKMH:      o.SpeedKMH,
			Congestion:    o.Congestion,
			Load:          o.Load,
			Precipitation: o.Precipitation,
			Peak:          o.Peak,
		}
		if seg, err := s.registry.Get(o.SegmentID); err == nil {
			m.SegmentName = seg.Name
		}
		out = append(out, m)
	}
	return out, nil
}

// Location is the civil timezone measurements are reported in
func (s *MeasurementService) Location() *time.Location {
	return s.loc
}
