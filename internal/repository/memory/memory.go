// Package memory is a process-local implementation of domain.DataRepository for demo mode and tests
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/repository"
)

type dayKey struct {
	segmentID int
	day       string
}

type obsKey struct {
	segmentID int
	unixNano  int64
}

type dayEntry struct {
	marker *domain.ForecastDay
	rows   []domain.CongestionPrediction
}

// Repository keeps everything in maps guarded by one RWMutex
type Repository struct {
	mu       sync.RWMutex
	segments map[int]domain.Segment
	routes   map[int]domain.CandidateRoute
	days     map[dayKey]*dayEntry
	recs     map[string]*domain.RouteRecommendation
	factors  []domain.ExternalFactor
	obs      map[obsKey]domain.Observation
	nextID   int64
	flight   repository.Flight
	now      func() time.Time
}

// NewRepository creates an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{
		segments: make(map[int]domain.Segment),
		routes:   make(map[int]domain.CandidateRoute),
		days:     make(map[dayKey]*dayEntry),
		recs:     make(map[string]*domain.RouteRecommendation),
		obs:      make(map[obsKey]domain.Observation),
		now:      time.Now,
	}
}

// SeedRegistry inserts the catalogue when no segments exist yet
func (r *Repository) SeedRegistry(ctx context.Context, segments []domain.Segment, routes []domain.CandidateRoute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.segments) > 0 {
		return nil
	}
	for _, s := range segments {
		s.Path = append([]domain.LatLng(nil), s.Path...)
		s.VehicleClasses = append([]domain.VehicleClass(nil), s.VehicleClasses...)
		r.segments[s.ID] = s
	}
	for _, rt := range routes {
		rt.SegmentIDs = append([]int(nil), rt.SegmentIDs...)
		r.routes[rt.ID] = rt
	}
	return nil
}

// ListSegments returns all segments ordered by id
func (r *Repository) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Segment, 0, len(r.segments))
	for _, s := range r.segments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListRoutes returns all routes ordered by id
func (r *Repository) ListRoutes(ctx context.Context) ([]domain.CandidateRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CandidateRoute, 0, len(r.routes))
	for _, rt := range r.routes {
		rt.SegmentIDs = append([]int(nil), rt.SegmentIDs...)
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// QueryPredictions returns rows of a segment with timestamps in [from, to)
func (r *Repository) QueryPredictions(ctx context.Context, segmentID int, from, to time.Time) ([]domain.CongestionPrediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.CongestionPrediction
	for k, e := range r.days {
		if k.segmentID != segmentID {
			continue
		}
		for _, p := range e.rows {
			if !p.Timestamp.Before(from) && p.Timestamp.Before(to) {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// DayPredictions returns the rows stored for a civil day
func (r *Repository) DayPredictions(ctx context.Context, segmentID int, day string) ([]domain.CongestionPrediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.days[dayKey{segmentID, day}]
	if !ok {
		return nil, nil
	}
	return repository.CopyPredictions(e.rows), nil
}

// ForecastDay returns the marker of a day or nil
func (r *Repository) ForecastDay(ctx context.Context, segmentID int, day string) (*domain.ForecastDay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.days[dayKey{segmentID, day}]
	if !ok || e.marker == nil {
		return nil, nil
	}
	m := *e.marker
	return &m, nil
}

// ReplaceDay swaps the rows and marker of a day under the write lock
func (r *Repository) ReplaceDay(ctx context.Context, segmentID int, day string, records []domain.CongestionPrediction) (*domain.ForecastDay, error) {
	if err := repository.ValidateDay(segmentID, records); err != nil {
		return nil, err
	}
	marker := &domain.ForecastDay{
		SegmentID:  segmentID,
		Day:        day,
		Version:    uuid.NewString(),
		Rows:       len(records),
		ComputedAt: r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.days[dayKey{segmentID, day}] = &dayEntry{marker: marker, rows: repository.CopyPredictions(records)}
	m := *marker
	return &m, nil
}

// EnsureDay runs get-or-compute for a day
func (r *Repository) EnsureDay(ctx context.Context, segmentID int, day string, compute domain.ComputeDayFunc) ([]domain.CongestionPrediction, bool, error) {
	return r.flight.EnsureDay(ctx, r, segmentID, day, compute)
}

// InvalidateDay drops the marker of a day
func (r *Repository) InvalidateDay(ctx context.Context, segmentID int, day string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.days[dayKey{segmentID, day}]; ok {
		e.marker = nil
	}
	return nil
}

// GetRecommendation returns the stored recommendation or nil
func (r *Repository) GetRecommendation(ctx context.Context, key domain.RecommendationKey) (*domain.RouteRecommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return repository.CopyRecommendation(r.recs[key.String()]), nil
}

// SaveRecommendation upserts a recommendation
func (r *Repository) SaveRecommendation(ctx context.Context, rec *domain.RouteRecommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.Key().String()] = repository.CopyRecommendation(rec)
	return nil
}

// EnsureRecommendation runs get-or-compute for a recommendation slot
func (r *Repository) EnsureRecommendation(ctx context.Context, key domain.RecommendationKey, compute domain.ComputeRecommendationFunc) (*domain.RouteRecommendation, bool, error) {
	return r.flight.EnsureRecommendation(ctx, r, key, compute)
}

// ActiveFactors returns active factors overlapping [from, to)
func (r *Repository) ActiveFactors(ctx context.Context, from, to time.Time) ([]domain.ExternalFactor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ExternalFactor
	for _, f := range r.factors {
		if f.Overlaps(from, to) {
			out = append(out, copyFactor(f))
		}
	}
	return out, nil
}

// ListFactors returns factors newest first
func (r *Repository) ListFactors(ctx context.Context, activeOnly bool) ([]domain.ExternalFactor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ExternalFactor
	for i := len(r.factors) - 1; i >= 0; i-- {
		if activeOnly && !r.factors[i].Active {
			continue
		}
		out = append(out, copyFactor(r.factors[i]))
	}
	return out, nil
}

// SaveFactor inserts or updates a factor
func (r *Repository) SaveFactor(ctx context.Context, f *domain.ExternalFactor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.ID == 0 {
		r.nextID++
		f.ID = r.nextID
		if f.CreatedAt.IsZero() {
			f.CreatedAt = r.now().UTC()
		}
		r.factors = append(r.factors, copyFactor(*f))
		return nil
	}
	for i := range r.factors {
		if r.factors[i].ID == f.ID {
			r.factors[i] = copyFactor(*f)
			return nil
		}
	}
	return fmt.Errorf("memory: factor %d not found", f.ID)
}

// LatestFactor returns the newest factor of a kind created at or after since
func (r *Repository) LatestFactor(ctx context.Context, kind domain.FactorKind, since time.Time) (*domain.ExternalFactor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.factors) - 1; i >= 0; i-- {
		f := r.factors[i]
		if f.Kind == kind && !f.CreatedAt.Before(since) {
			c := copyFactor(f)
			return &c, nil
		}
	}
	return nil, nil
}

// SaveObservations upserts observations by (segment, timestamp)
func (r *Repository) SaveObservations(ctx context.Context, obs []domain.Observation) (int, error) {
	if err := repository.ValidateObservations(obs); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range obs {
		o = repository.StoredObservation(o)
		r.obs[obsKey{o.SegmentID, o.Timestamp.UnixNano()}] = o
	}
	return len(obs), nil
}

// QueryObservations returns observations in [from, to), all segments when segmentID is 0
func (r *Repository) QueryObservations(ctx context.Context, segmentID int, from, to time.Time) ([]domain.Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Observation
	for k, o := range r.obs {
		if segmentID != 0 && k.segmentID != segmentID {
			continue
		}
		if o.Timestamp.Before(from) || !o.Timestamp.Before(to) {
			continue
		}
		out = append(out, o)
	}
	repository.SortObservations(out)
	return out, nil
}

// Health always succeeds
func (r *Repository) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *Repository) Close() {}

func copyFactor(f domain.ExternalFactor) domain.ExternalFactor {
	if f.Lat != nil {
		v := *f.Lat
		f.Lat = &v
	}
	if f.Lng != nil {
		v := *f.Lng
		f.Lng = &v
	}
	if f.SegmentID != nil {
		v := *f.SegmentID
		f.SegmentID = &v
	}
	return f
}

var _ domain.DataRepository = (*Repository)(nil)
