package traffic

import (
	"github.com/loschorros/backend/pkg/utils"
)

const (
	ConstructionSpeedPenalty = 5.0
	RainSpeedPenalty         = 3.0
	MinSpeed                 = 5.0
	RainCongestionBoost      = 0.4

	loadBase            = 200.0
	loadPerLevel        = 90.0
	loadHeavyThreshold  = 4.3
	loadHeavyMultiplier = 1.35
	loadTransitFactor   = 1.10
	loadRainFactor      = 1.10
	loadWeekendFactor   = 0.7
)

// SpeedFromCongestion draws a speed (km/h) from the band of the congestion level.
// Bands do not overlap, so speed never increases with congestion.
func SpeedFromCongestion(level float64, rng Rand) float64 {
	switch {
	case level < 2:
		return uniform(rng, 40, 55)
	case level < 3:
		return uniform(rng, 30, 40)
	case level < 4:
		return uniform(rng, 20, 30)
	default:
		return uniform(rng, 6, 12)
	}
}

// AdjustSpeed applies construction and rain offsets, flooring at MinSpeed
func AdjustSpeed(speed float64, construction bool, precipitation float64) float64 {
	if construction {
		speed -= ConstructionSpeedPenalty
	}
	if precipitation > 0 {
		speed -= RainSpeedPenalty
	}
	if speed < MinSpeed {
		return MinSpeed
	}
	return speed
}

// AdjustCongestion raises the level when raining and clamps it to the scale
func AdjustCongestion(level, precipitation float64) float64 {
	if precipitation > 0 {
		level += RainCongestionBoost
	}
	return utils.Clamp(level, MinCongestion, MaxCongestion)
}

// LoadConditions are the segment and hour properties that scale vehicle load
type LoadConditions struct {
	TransitHeavy bool
	Raining      bool
	Weekend      bool
}

// LoadFromCongestion estimates vehicles per hour.
// Order: base, heavy-congestion, transit, rain, weekend, truncation.
func LoadFromCongestion(level float64, c LoadConditions) int {
	load := loadBase + level*loadPerLevel
	if level >= loadHeavyThreshold {
		load *= loadHeavyMultiplier
	}
	if c.TransitHeavy {
		load *= loadTransitFactor
	}
	if c.Raining {
		load *= loadRainFactor
	}
	if c.Weekend {
		load *= loadWeekendFactor
	}
	return int(load)
}

// TravelMinutes is the time to cover lengthKM at speedKMH
func TravelMinutes(lengthKM, speedKMH float64) float64 {
	if speedKMH <= 0 {
		speedKMH = MinSpeed
	}
	return lengthKM / speedKMH * 60
}

// CongestionLabel returns the human-readable level used by the dashboards
func CongestionLabel(level float64) string {
	switch {
	case level < 1.5:
		return "Fluido"
	case level < 2.5:
		return "Moderado"
	case level < 3.5:
		return "Congestionado"
	default:
		return "Crítico"
	}
}

// BaseWeight is the share of the diurnal curve in a blended forecast
const BaseWeight = 0.7

// Blend mixes the (factor-scaled) base level with a model estimate and clamps the result
func Blend(base, factorMultiplier, modelEstimate float64) float64 {
	return utils.Clamp(utils.Lerp(modelEstimate, base*factorMultiplier, BaseWeight), MinCongestion, MaxCongestion)
}
