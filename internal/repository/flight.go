// Package repository holds the pieces shared by the storage backends
package repository

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/loschorros/backend/internal/domain"
)

// DayStore is the subset of a prediction store needed to run get-or-compute
type DayStore interface {
	ForecastDay(ctx context.Context, segmentID int, day string) (*domain.ForecastDay, error)
	DayPredictions(ctx context.Context, segmentID int, day string) ([]domain.CongestionPrediction, error)
	ReplaceDay(ctx context.Context, segmentID int, day string, records []domain.CongestionPrediction) (*domain.ForecastDay, error)
}

// RecommendationSaver is the subset of a recommendation store needed to run get-or-compute
type RecommendationSaver interface {
	GetRecommendation(ctx context.Context, key domain.RecommendationKey) (*domain.RouteRecommendation, error)
	SaveRecommendation(ctx context.Context, rec *domain.RouteRecommendation) error
}

// Flight serializes get-or-compute per key inside one process.
// Backends shared between processes must use a database lock instead.
type Flight struct {
	days singleflight.Group
	recs singleflight.Group
}

type dayResult struct {
	rows     []domain.CongestionPrediction
	computed bool
}

type recResult struct {
	rec      *domain.RouteRecommendation
	computed bool
}

// DayKey is the lock key of a forecast day
func DayKey(segmentID int, day string) string {
	return fmt.Sprintf("%d:%s", segmentID, day)
}

// EnsureDay returns the fresh stored day or computes and replaces it, once per key at a time
func (f *Flight) EnsureDay(ctx context.Context, s DayStore, segmentID int, day string, compute domain.ComputeDayFunc) ([]domain.CongestionPrediction, bool, error) {
	// only the caller whose closure runs sees leader set
	leader := false
	v, err, _ := f.days.Do(DayKey(segmentID, day), func() (interface{}, error) {
		leader = true
		marker, err := s.ForecastDay(ctx, segmentID, day)
		if err != nil {
			return nil, err
		}
		if marker != nil {
			rows, err := s.DayPredictions(ctx, segmentID, day)
			if err != nil {
				return nil, err
			}
			if len(rows) == marker.Rows {
				return dayResult{rows: rows}, nil
			}
		}

		rows, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := s.ReplaceDay(ctx, segmentID, day, rows); err != nil {
			return nil, err
		}
		return dayResult{rows: rows, computed: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(dayResult)
	return CopyPredictions(res.rows), res.computed && leader, nil
}

// EnsureRecommendation returns the stored recommendation or computes and saves it, once per key at a time
func (f *Flight) EnsureRecommendation(ctx context.Context, s RecommendationSaver, key domain.RecommendationKey, compute domain.ComputeRecommendationFunc) (*domain.RouteRecommendation, bool, error) {
	leader := false
	v, err, _ := f.recs.Do(key.String(), func() (interface{}, error) {
		leader = true
		existing, err := s.GetRecommendation(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return recResult{rec: existing}, nil
		}
		rec, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		rec.Mode, rec.Slot = key.Mode, key.Slot
		if err := s.SaveRecommendation(ctx, rec); err != nil {
			return nil, err
		}
		return recResult{rec: rec, computed: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(recResult)
	return CopyRecommendation(res.rec), res.computed && leader, nil
}

// ValidateDay checks a replacement batch belongs to the segment and is non-empty
func ValidateDay(segmentID int, records []domain.CongestionPrediction) error {
	if len(records) == 0 {
		return fmt.Errorf("repository: empty prediction batch for segment %d", segmentID)
	}
	for _, r := range records {
		if r.SegmentID != segmentID {
			return fmt.Errorf("repository: prediction for segment %d in batch of segment %d", r.SegmentID, segmentID)
		}
	}
	return nil
}

// CopyPredictions returns an independent copy of rows
func CopyPredictions(rows []domain.CongestionPrediction) []domain.CongestionPrediction {
	if rows == nil {
		return nil
	}
	return append([]domain.CongestionPrediction(nil), rows...)
}

// CopyRecommendation returns a deep copy of rec
func CopyRecommendation(rec *domain.RouteRecommendation) *domain.RouteRecommendation {
	if rec == nil {
		return nil
	}
	out := *rec
	out.Alternatives = append([]domain.ScoredOption(nil), rec.Alternatives...)
	out.SkippedRoutes = append([]int(nil), rec.SkippedRoutes...)
	return &out
}
