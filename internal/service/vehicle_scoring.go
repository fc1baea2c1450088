package service

import (
	"github.com/loschorros/backend/internal/domain"
)

// Vehicle score weights. Lower scores are better.
const (
	snapshotCongestionWeight = 1.0
	snapshotSpeedDivisor     = 10.0
	forecastCongestionWeight = 1.1
	forecastSpeedDivisor     = 12.0

	motoShortcutSegment = 10
	motoShortcutFactor  = 0.6
	avoidPenaltyFactor  = 1.5
)

// VehicleScore rates a segment for a vehicle class. mode is domain.VehicleSnapshot or
// domain.VehicleForecast; avoid, when set, penalizes that segment.
func VehicleScore(mode string, class domain.VehicleClass, segmentID int, congestion, speedKMH float64, avoid *int) float64 {
	weight, divisor := snapshotCongestionWeight, snapshotSpeedDivisor
	if mode == domain.VehicleForecast {
		weight, divisor = forecastCongestionWeight, forecastSpeedDivisor
	}
	score := weight*congestion - speedKMH/divisor

	if class == domain.VehicleMoto && segmentID == motoShortcutSegment {
		score = scaleScore(score, motoShortcutFactor)
	}
	if avoid != nil && *avoid == segmentID {
		score = scaleScore(score, avoidPenaltyFactor)
	}
	return score
}

// scaleScore applies a bonus (factor < 1) or penalty (factor > 1) so that it lowers or
// raises the score whatever its sign.
func scaleScore(score, factor float64) float64 {
	switch {
	case score > 0:
		return score * factor
	case score < 0:
		return score / factor
	default:
		return factor - 1
	}
}
