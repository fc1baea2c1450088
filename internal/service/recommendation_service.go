package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/metrics"
	"github.com/loschorros/backend/internal/registry"
	"github.com/loschorros/backend/pkg/utils"
)

// RecommendationService ranks segments and candidate routes for an hour slot
type RecommendationService struct {
	forecasts   dayForecaster
	registry    *registry.Registry
	repo        DataRepository
	parallelism int
	now         func() time.Time
	log         logrus.FieldLogger
}

// NewRecommendationService creates a new recommendation service
func NewRecommendationService(
	forecasts *ForecastService,
	reg *registry.Registry,
	repo DataRepository,
	parallelism int,
	log logrus.FieldLogger,
) *RecommendationService {
	return &RecommendationService{
		forecasts:   forecasts,
		registry:    reg,
		repo:        repo,
		parallelism: parallelism,
		now:         forecasts.now,
		log:         log,
	}
}

// Slot returns the hour slot containing at in the service location
func (s *RecommendationService) Slot(at time.Time) time.Time {
	return domain.HourSlot(at, s.forecasts.Location())
}

// RecommendSegment returns the fastest segment for the hour containing at.
// The result is persisted once per slot; later calls return it unchanged. The bool
// reports whether this call computed it.
func (s *RecommendationService) RecommendSegment(ctx context.Context, at time.Time) (*domain.RouteRecommendation, bool, error) {
	slot := s.Slot(at)
	key := domain.RecommendationKey{Mode: domain.ModeSegment, Slot: slot.UTC()}

	if rec, err := s.repo.GetRecommendation(ctx, key); err != nil || rec != nil {
		return s.served(rec, false, err)
	}

	segments := s.registry.List()
	if len(segments) == 0 {
		return nil, false, domain.ErrNoAdmissibleCandidates
	}
	hours, err := s.slotPredictions(ctx, s.registry.IDs(), slot)
	if err != nil {
		return nil, false, err
	}

	rec, computed, err := s.repo.EnsureRecommendation(ctx, key, func(context.Context) (*domain.RouteRecommendation, error) {
		options := make([]domain.ScoredOption, 0, len(segments))
		for _, seg := range segments {
			p := hours[seg.ID]
			options = append(options, domain.ScoredOption{
				SegmentID:     seg.ID,
				Name:          seg.Name,
				TravelMinutes: p.TravelMinutes,
				Congestion:    p.Congestion,
				SpeedKMH:      p.SpeedKMH,
			})
		}
		sort.SliceStable(options, func(i, j int) bool {
			if options[i].TravelMinutes != options[j].TravelMinutes {
				return options[i].TravelMinutes < options[j].TravelMinutes
			}
			return options[i].SegmentID < options[j].SegmentID
		})
		best := options[0]
		return &domain.RouteRecommendation{
			WinnerID:      best.SegmentID,
			WinnerName:    best.Name,
			TravelMinutes: best.TravelMinutes,
			Congestion:    best.Congestion,
			Alternatives:  options,
			ComputedAt:    s.now().UTC(),
		}, nil
	})
	return s.served(rec, computed, err)
}

// RecommendRoute returns the candidate route with the lowest total travel time for the hour
// containing at. Routes without tramos are skipped and reported. An empty routeIDs ranks
// every active route and persists the result per slot; a filtered ranking is computed on
// every call.
func (s *RecommendationService) RecommendRoute(ctx context.Context, at time.Time, routeIDs []int) (*domain.RouteRecommendation, bool, error) {
	slot := s.Slot(at)
	key := domain.RecommendationKey{Mode: domain.ModeRoute, Slot: slot.UTC()}
	persist := len(routeIDs) == 0

	if persist {
		if rec, err := s.repo.GetRecommendation(ctx, key); err != nil || rec != nil {
			return s.served(rec, false, err)
		}
	}

	routes := s.candidateRoutes(routeIDs)
	var (
		scorable []domain.CandidateRoute
		skipped  []int
		needed   []int
		seen     = map[int]bool{}
	)
	for _, rt := range routes {
		if err := rt.Validate(); err != nil {
			s.log.WithField("route_id", rt.ID).Warn("skipping route without segments")
			skipped = append(skipped, rt.ID)
			continue
		}
		scorable = append(scorable, rt)
		for _, id := range rt.SegmentIDs {
			if !seen[id] {
				seen[id] = true
				needed = append(needed, id)
			}
		}
	}
	if len(scorable) == 0 {
		return nil, false, fmt.Errorf("%w: no active route with segments", domain.ErrNoAdmissibleCandidates)
	}

	hours, err := s.slotPredictions(ctx, needed, slot)
	if err != nil {
		return nil, false, err
	}

	compute := func(context.Context) (*domain.RouteRecommendation, error) {
		options := make([]domain.ScoredOption, 0, len(scorable))
		for _, rt := range scorable {
			var total, congestion float64
			for _, id := range rt.SegmentIDs {
				p := hours[id]
				total += p.TravelMinutes
				congestion += p.Congestion
			}
			options = append(options, domain.ScoredOption{
				RouteID:       rt.ID,
				Name:          rt.Name,
				TravelMinutes: utils.RoundTo(total, 2),
				Congestion:    utils.RoundTo(congestion/float64(len(rt.SegmentIDs)), 2),
			})
		}
		sort.SliceStable(options, func(i, j int) bool {
			if options[i].TravelMinutes != options[j].TravelMinutes {
				return options[i].TravelMinutes < options[j].TravelMinutes
			}
			return options[i].RouteID < options[j].RouteID
		})
		best := options[0]
		return &domain.RouteRecommendation{
			Mode:          domain.ModeRoute,
			Slot:          key.Slot,
			WinnerID:      best.RouteID,
			WinnerName:    best.Name,
			TravelMinutes: best.TravelMinutes,
			Congestion:    best.Congestion,
			Alternatives:  options,
			SkippedRoutes: skipped,
			ComputedAt:    s.now().UTC(),
		}, nil
	}

	if !persist {
		rec, err := compute(ctx)
		return s.served(rec, true, err)
	}
	rec, computed, err := s.repo.EnsureRecommendation(ctx, key, compute)
	return s.served(rec, computed, err)
}

// RecommendByVehicle ranks the segments admissible for a vehicle class. Without at the
// current hour is scored as a snapshot; with at the forecast weights apply. avoid penalizes
// one segment. The result is not persisted.
func (s *RecommendationService) RecommendByVehicle(ctx context.Context, class domain.VehicleClass, at *time.Time, avoid *int) (*domain.VehicleRecommendation, error) {
	if avoid != nil {
		if _, err := s.registry.Get(*avoid); err != nil {
			return nil, err
		}
	}
	segments := s.registry.ForClass(class)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: vehicle class %s", domain.ErrNoAdmissibleCandidates, class)
	}

	mode, target := domain.VehicleSnapshot, s.now()
	if at != nil {
		mode, target = domain.VehicleForecast, *at
	}
	slot := s.Slot(target)

	ids := make([]int, len(segments))
	for i, seg := range segments {
		ids[i] = seg.ID
	}
	hours, err := s.slotPredictions(ctx, ids, slot)
	if err != nil {
		return nil, err
	}

	options := make([]domain.ScoredOption, 0, len(segments))
	for _, seg := range segments {
		p := hours[seg.ID]
		options = append(options, domain.ScoredOption{
			SegmentID:     seg.ID,
			Name:          seg.Name,
			TravelMinutes: p.TravelMinutes,
			Congestion:    p.Congestion,
			SpeedKMH:      p.SpeedKMH,
			Score:         utils.RoundTo(VehicleScore(mode, class, seg.ID, p.Congestion, p.SpeedKMH, avoid), 3),
		})
	}
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Score != options[j].Score {
			return options[i].Score < options[j].Score
		}
		return options[i].SegmentID < options[j].SegmentID
	})

	metrics.Recommendations.WithLabelValues("vehicle", "true").Inc()
	return &domain.VehicleRecommendation{
		Class:   class,
		Mode:    mode,
		Slot:    slot,
		Avoided: avoid,
		Winner:  options[0],
		Options: options,
	}, nil
}

func (s *RecommendationService) candidateRoutes(routeIDs []int) []domain.CandidateRoute {
	routes := s.registry.Routes(true)
	if len(routeIDs) == 0 {
		return routes
	}
	want := make(map[int]bool, len(routeIDs))
	for _, id := range routeIDs {
		want[id] = true
	}
	var out []domain.CandidateRoute
	for _, rt := range routes {
		if want[rt.ID] {
			out = append(out, rt)
		}
	}
	return out
}

// slotPredictions ensures the forecast day of each segment and picks the row of the slot
func (s *RecommendationService) slotPredictions(ctx context.Context, segmentIDs []int, slot time.Time) (map[int]domain.CongestionPrediction, error) {
	loc := s.forecasts.Location()
	days, err := prefetchDays(ctx, s.forecasts, segmentIDs, domain.DayKey(slot, loc), s.parallelism)
	if err != nil {
		return nil, err
	}
	out := make(map[int]domain.CongestionPrediction, len(days))
	for id, rows := range days {
		p, ok := rowAt(rows, slot, loc)
		if !ok {
			return nil, fmt.Errorf("recommendation: segment %d has no prediction at %s", id, slot.Format(time.RFC3339))
		}
		out[id] = p
	}
	return out, nil
}

func (s *RecommendationService) served(rec *domain.RouteRecommendation, computed bool, err error) (*domain.RouteRecommendation, bool, error) {
	if err != nil {
		return nil, false, err
	}
	metrics.Recommendations.WithLabelValues(string(rec.Mode), strconv.FormatBool(computed)).Inc()
	rec.Slot = rec.Slot.In(s.forecasts.Location())
	if computed {
		s.log.WithFields(logrus.Fields{
			"mode":   rec.Mode,
			"slot":   rec.Slot.Format(time.RFC3339),
			"winner": rec.WinnerID,
		}).Info("recommendation computed")
	}
	return rec, computed, nil
}
