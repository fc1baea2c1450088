// Package registry is the in-memory view of the static segment and route catalogue
package registry

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/pkg/utils"
)

// Registry answers segment and route lookups. It is immutable after construction.
type Registry struct {
	segments map[int]domain.Segment
	ordered  []domain.Segment
	routes   []domain.CandidateRoute
}

// Load seeds the repository when empty and builds a registry from what it stores
func Load(ctx context.Context, repo domain.RegistryRepository) (*Registry, error) {
	if err := repo.SeedRegistry(ctx, SeedSegments(), SeedRoutes()); err != nil {
		return nil, fmt.Errorf("registry: failed to seed: %w", err)
	}
	segments, err := repo.ListSegments(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list segments: %w", err)
	}
	routes, err := repo.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list routes: %w", err)
	}
	return New(segments, routes)
}

// New validates the catalogue and builds a registry
func New(segments []domain.Segment, routes []domain.CandidateRoute) (*Registry, error) {
	r := &Registry{segments: make(map[int]domain.Segment, len(segments))}
	for _, s := range segments {
		if s.ID <= 0 {
			return nil, fmt.Errorf("registry: invalid segment id %d", s.ID)
		}
		if s.LengthKM <= 0 || s.StopCount < 0 {
			return nil, fmt.Errorf("registry: segment %d has invalid length or stop count", s.ID)
		}
		if _, dup := r.segments[s.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate segment %d", s.ID)
		}
		r.segments[s.ID] = s
		r.ordered = append(r.ordered, s)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].ID < r.ordered[j].ID })

	for _, rt := range routes {
		for _, id := range rt.SegmentIDs {
			if _, ok := r.segments[id]; !ok {
				return nil, fmt.Errorf("registry: route %d references %w %d", rt.ID, domain.ErrInvalidSegment, id)
			}
		}
		r.routes = append(r.routes, rt)
	}
	sort.Slice(r.routes, func(i, j int) bool { return r.routes[i].ID < r.routes[j].ID })
	return r, nil
}

// Get returns a segment by id
func (r *Registry) Get(id int) (domain.Segment, error) {
	s, ok := r.segments[id]
	if !ok {
		return domain.Segment{}, fmt.Errorf("%w: %d", domain.ErrInvalidSegment, id)
	}
	return s, nil
}

// List returns all segments ordered by id
func (r *Registry) List() []domain.Segment {
	return append([]domain.Segment(nil), r.ordered...)
}

// IDs returns all segment ids in ascending order
func (r *Registry) IDs() []int {
	ids := make([]int, len(r.ordered))
	for i, s := range r.ordered {
		ids[i] = s.ID
	}
	return ids
}

// Routes returns candidate routes ordered by id, optionally only the active ones
func (r *Registry) Routes(activeOnly bool) []domain.CandidateRoute {
	out := make([]domain.CandidateRoute, 0, len(r.routes))
	for _, rt := range r.routes {
		if activeOnly && !rt.Active {
			continue
		}
		out = append(out, rt)
	}
	return out
}

// ForClass returns the segments admitting a vehicle class, ordered by id
func (r *Registry) ForClass(class domain.VehicleClass) []domain.Segment {
	var out []domain.Segment
	for _, s := range r.ordered {
		if s.Allows(class) {
			out = append(out, s)
		}
	}
	return out
}

// Nearest returns the segment whose path passes closest to a point and the distance in km.
// ok is false when no segment has geometry.
func (r *Registry) Nearest(lat, lon float64) (seg domain.Segment, distKM float64, ok bool) {
	distKM = math.Inf(1)
	for _, s := range r.ordered {
		if d := utils.DistanceToPath(lat, lon, s.PathPairs()); d < distKM {
			seg, distKM, ok = s, d, true
		}
	}
	return seg, distKM, ok
}
