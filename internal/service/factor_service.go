package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/registry"
)

// maxInvalidatedDays bounds how many forecast days a single factor change invalidates
const maxInvalidatedDays = 14

// FactorService manages external factors and keeps affected forecast days stale
type FactorService struct {
	repo      DataRepository
	forecasts *ForecastService
	registry  *registry.Registry
	log       logrus.FieldLogger
}

// NewFactorService creates a new factor service
func NewFactorService(repo DataRepository, forecasts *ForecastService, reg *registry.Registry, log logrus.FieldLogger) *FactorService {
	return &FactorService{repo: repo, forecasts: forecasts, registry: reg, log: log}
}

// List returns factors newest first
func (s *FactorService) List(ctx context.Context, activeOnly bool) ([]domain.ExternalFactor, error) {
	return s.repo.ListFactors(ctx, activeOnly)
}

// Create validates and stores a new active factor, then invalidates the days it touches
func (s *FactorService) Create(ctx context.Context, f *domain.ExternalFactor) error {
	f.ID = 0
	f.Active = true
	f.Name = strings.TrimSpace(f.Name)
	f.Kind = domain.FactorKind(strings.ToUpper(string(f.Kind)))
	if err := s.Validate(*f); err != nil {
		return err
	}
	return s.Save(ctx, f, true)
}

// Validate checks kind, impact, time range and segment of a factor
func (s *FactorService) Validate(f domain.ExternalFactor) error {
	switch {
	case f.Name == "":
		return fmt.Errorf("%w: name is required", domain.ErrInvalidFactor)
	case !f.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidFactor, f.Kind)
	case f.Impact < domain.MinImpact || f.Impact > domain.MaxImpact:
		return fmt.Errorf("%w: impact %d outside [%d, %d]", domain.ErrInvalidFactor, f.Impact, domain.MinImpact, domain.MaxImpact)
	case f.Start.IsZero() || !f.End.After(f.Start):
		return fmt.Errorf("%w: end must be after start", domain.ErrInvalidFactor)
	case (f.Lat == nil) != (f.Lng == nil):
		return fmt.Errorf("%w: latitude and longitude go together", domain.ErrInvalidFactor)
	}
	if f.SegmentID != nil {
		if _, err := s.registry.Get(*f.SegmentID); err != nil {
			return err
		}
	}
	return nil
}

// Save stores a factor; when invalidate is set the forecast days it overlaps are marked stale
func (s *FactorService) Save(ctx context.Context, f *domain.ExternalFactor, invalidate bool) error {
	if err := s.repo.SaveFactor(ctx, f); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"factor_id": f.ID,
		"kind":      f.Kind,
		"impact":    f.Impact,
		"active":    f.Active,
	}).Info("external factor saved")

	if invalidate {
		s.invalidate(ctx, *f)
	}
	return nil
}

func (s *FactorService) invalidate(ctx context.Context, f domain.ExternalFactor) {
	var segments []int
	for _, seg := range s.registry.List() {
		if s.forecasts.affects(f, seg) {
			segments = append(segments, seg.ID)
		}
	}

	loc := s.forecasts.Location()
	day := domain.DayStart(f.Start, loc)
	for i := 0; i < maxInvalidatedDays && day.Before(f.End); i++ {
		key := day.Format(domain.DayLayout)
		for _, id := range segments {
			if err := s.forecasts.Invalidate(ctx, id, key); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{"segment_id": id, "day": key}).
					Warn("failed to invalidate forecast day")
			}
		}
		day = day.AddDate(0, 0, 1)
	}
}
