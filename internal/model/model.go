// Package model holds the per-segment congestion regression: its artifact, prediction, training and file store
package model

import (
	"fmt"
	"math"
	"time"

	"github.com/loschorros/backend/pkg/utils"
)

// z-score of a two-sided 80% interval
const intervalZ = 1.2816

// Model is the serialized artifact trained for one segment
type Model struct {
	SegmentID    int       `json:"segment_id"`
	Version      string    `json:"version"`
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	ResidualStd  float64   `json:"residual_std"`
	R2           float64   `json:"r2"`
	TrendCoef    float64   `json:"trend_coef"`
	Epoch        time.Time `json:"epoch"`
	TrendHorizon float64   `json:"trend_horizon_days"`
	Samples      int       `json:"samples"`
	TrainedAt    time.Time `json:"trained_at"`
}

// Estimate is a point forecast with its 80% interval and trend component
type Estimate struct {
	Value float64 `json:"value"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Trend float64 `json:"trend"`
}

// Validate checks the artifact is usable for prediction
func (m *Model) Validate() error {
	if len(m.Features) != len(m.Coefficients) {
		return fmt.Errorf("model: segment %d has %d features but %d coefficients", m.SegmentID, len(m.Features), len(m.Coefficients))
	}
	if !finite(m.Intercept) || !finite(m.ResidualStd) || m.ResidualStd < 0 {
		return fmt.Errorf("model: segment %d has invalid intercept or residual std", m.SegmentID)
	}
	for i, c := range m.Coefficients {
		if !finite(c) {
			return fmt.Errorf("model: segment %d coefficient %q is not finite", m.SegmentID, m.Features[i])
		}
	}
	return nil
}

// Raw evaluates the linear predictor without clamping. Missing features count as zero.
func (m *Model) Raw(fv FeatureVector) float64 {
	y := m.Intercept
	for i, name := range m.Features {
		v := fv[name]
		if name == FeatureTrend {
			v = m.trendDays(v)
		}
		y += m.Coefficients[i] * v
	}
	return y
}

// trendDays bounds the trend regressor to the trained range so forecasts
// past the last observed day hold the trend flat instead of extrapolating.
// A zero horizon leaves it unbounded.
func (m *Model) trendDays(t float64) float64 {
	if m.TrendHorizon <= 0 {
		return t
	}
	return utils.Clamp(t, 0, m.TrendHorizon)
}

// Predict returns the clamped estimate and interval for a feature vector
func (m *Model) Predict(fv FeatureVector) Estimate {
	y := m.Raw(fv)
	half := intervalZ * m.ResidualStd
	return Estimate{
		Value: clampLevel(y),
		Lower: clampLevel(y - half),
		Upper: clampLevel(y + half),
		Trend: m.Intercept + m.TrendCoef*m.trendDays(fv[FeatureTrend]),
	}
}

func clampLevel(v float64) float64 {
	return utils.Clamp(v, 1, 5)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
