package repository

import (
	"fmt"
	"math"
	"sort"

	"github.com/loschorros/backend/internal/domain"
)

// ValidateObservations rejects rows a backend must not store
func ValidateObservations(obs []domain.Observation) error {
	for i, o := range obs {
		switch {
		case o.SegmentID <= 0:
			return fmt.Errorf("repository: observation %d: %w %d", i, domain.ErrInvalidSegment, o.SegmentID)
		case o.Timestamp.IsZero():
			return fmt.Errorf("repository: observation %d of segment %d has no timestamp", i, o.SegmentID)
		case o.Hour < 0 || o.Hour > 23:
			return fmt.Errorf("repository: observation %d of segment %d has hour %d", i, o.SegmentID, o.Hour)
		case math.IsNaN(o.Congestion) || math.IsInf(o.Congestion, 0):
			return fmt.Errorf("repository: observation %d of segment %d has no congestion level", i, o.SegmentID)
		}
	}
	return nil
}

// SortObservations orders by segment then timestamp
func SortObservations(obs []domain.Observation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].SegmentID != obs[j].SegmentID {
			return obs[i].SegmentID < obs[j].SegmentID
		}
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})
}

// StoredObservation is o as every backend returns it: UTC timestamp and no segment-level flags
func StoredObservation(o domain.Observation) domain.Observation {
	o.Timestamp = o.Timestamp.UTC()
	o.TransitHeavy = false
	return o
}
