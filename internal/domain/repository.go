package domain

import (
	"context"
	"time"
)

// ComputeDayFunc produces the 24 predictions of a forecast day
type ComputeDayFunc func(ctx context.Context) ([]CongestionPrediction, error)

// ComputeRecommendationFunc produces a recommendation for a slot
type ComputeRecommendationFunc func(ctx context.Context) (*RouteRecommendation, error)

// RegistryRepository stores the static segment and route catalogue
type RegistryRepository interface {
	// ListSegments returns every segment ordered by id
	ListSegments(ctx context.Context) ([]Segment, error)

	// ListRoutes returns every candidate route ordered by id
	ListRoutes(ctx context.Context) ([]CandidateRoute, error)

	// SeedRegistry inserts the given catalogue when the store is empty
	SeedRegistry(ctx context.Context, segments []Segment, routes []CandidateRoute) error
}

// PredictionStore persists forecast days.
// A day is either absent or complete: rows and their ForecastDay marker change together.
type PredictionStore interface {
	// QueryPredictions returns stored rows for a segment with timestamps in [from, to)
	QueryPredictions(ctx context.Context, segmentID int, from, to time.Time) ([]CongestionPrediction, error)

	// DayPredictions returns the stored rows of a civil day ordered by hour
	DayPredictions(ctx context.Context, segmentID int, day string) ([]CongestionPrediction, error)

	// ForecastDay returns the freshness marker for (segment, day) or nil
	ForecastDay(ctx context.Context, segmentID int, day string) (*ForecastDay, error)

	// ReplaceDay atomically swaps the rows of a day and upserts its marker
	ReplaceDay(ctx context.Context, segmentID int, day string, records []CongestionPrediction) (*ForecastDay, error)

	// EnsureDay returns the stored rows when the day is fresh, otherwise runs compute and
	// stores the result. Concurrent callers for the same key compute at most once.
	EnsureDay(ctx context.Context, segmentID int, day string, compute ComputeDayFunc) ([]CongestionPrediction, bool, error)

	// InvalidateDay drops the marker so the next EnsureDay recomputes
	InvalidateDay(ctx context.Context, segmentID int, day string) error
}

// RecommendationStore persists one recommendation per (mode, hour slot)
type RecommendationStore interface {
	// GetRecommendation returns the stored recommendation or nil
	GetRecommendation(ctx context.Context, key RecommendationKey) (*RouteRecommendation, error)

	// SaveRecommendation upserts a recommendation by its key
	SaveRecommendation(ctx context.Context, rec *RouteRecommendation) error

	// EnsureRecommendation returns the stored recommendation or computes and stores it.
	// The bool is true when compute ran.
	EnsureRecommendation(ctx context.Context, key RecommendationKey, compute ComputeRecommendationFunc) (*RouteRecommendation, bool, error)
}

// FactorRepository persists external factors
type FactorRepository interface {
	// ActiveFactors returns active factors overlapping [from, to)
	ActiveFactors(ctx context.Context, from, to time.Time) ([]ExternalFactor, error)

	// ListFactors returns factors, newest first
	ListFactors(ctx context.Context, activeOnly bool) ([]ExternalFactor, error)

	// SaveFactor inserts a factor (ID == 0, assigning its ID) or updates it
	SaveFactor(ctx context.Context, f *ExternalFactor) error

	// LatestFactor returns the newest factor of a kind created at or after since, or nil
	LatestFactor(ctx context.Context, kind FactorKind, since time.Time) (*ExternalFactor, error)
}

// ObservationStore persists historical traffic measurements, one per (segment, hour)
type ObservationStore interface {
	// SaveObservations upserts observations by (segment, timestamp) and returns how many were written
	SaveObservations(ctx context.Context, obs []Observation) (int, error)

	// QueryObservations returns observations with timestamps in [from, to), ordered by segment
	// then time. A segmentID of 0 selects every segment.
	QueryObservations(ctx context.Context, segmentID int, from, to time.Time) ([]Observation, error)
}

// DataRepository is the full persistence surface used by the services
type DataRepository interface {
	RegistryRepository
	PredictionStore
	RecommendationStore
	FactorRepository
	ObservationStore

	// Health checks storage connectivity
	Health(ctx context.Context) error

	// Close releases the underlying connections
	Close()
}
