// Package service holds the forecasting, recommendation, metrics and weather use cases
package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loschorros/backend/internal/domain"
)

// DataRepository is re-exported from domain for convenience
type DataRepository = domain.DataRepository

// BaseOnlyVersion marks predictions computed without a model estimate
const BaseOnlyVersion = "base-only"

// ErrModelUnavailable means the artifact could not be loaded in time; forecasts degrade to the base curve
var ErrModelUnavailable = errors.New("model unavailable")

// defaultParallelism bounds concurrent per-segment work
const defaultParallelism = 4

// dayForecaster is the part of ForecastService the other services depend on
type dayForecaster interface {
	Predict(ctx context.Context, segmentID int, day string) ([]domain.CongestionPrediction, error)
	Location() *time.Location
}

// prefetchDays ensures the forecast day of every segment concurrently.
// The result maps segment id to its 24 rows.
func prefetchDays(ctx context.Context, f dayForecaster, segmentIDs []int, day string, limit int) (map[int][]domain.CongestionPrediction, error) {
	if limit <= 0 {
		limit = defaultParallelism
	}
	results := make([][]domain.CongestionPrediction, len(segmentIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range segmentIDs {
		i, id := i, id
		g.Go(func() error {
			rows, err := f.Predict(gctx, id, day)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int][]domain.CongestionPrediction, len(segmentIDs))
	for i, id := range segmentIDs {
		out[id] = results[i]
	}
	return out, nil
}

// rowAt picks the prediction of a slot from a day, falling back to the row of the same hour
func rowAt(rows []domain.CongestionPrediction, slot time.Time, loc *time.Location) (domain.CongestionPrediction, bool) {
	for _, r := range rows {
		if r.Timestamp.Equal(slot) {
			return r, true
		}
	}
	hour := slot.In(loc).Hour()
	for _, r := range rows {
		if r.Timestamp.In(loc).Hour() == hour {
			return r, true
		}
	}
	return domain.CongestionPrediction{}, false
}
