package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sajari/regression"
	"gonum.org/v1/gonum/stat"

	"github.com/loschorros/backend/internal/domain"
)

// DefaultMinRows is the smallest per-segment history worth fitting (two days of hours)
const DefaultMinRows = 48

// ErrNotEnoughData is returned when a segment has fewer rows than required
var ErrNotEnoughData = errors.New("not enough observations")

// reduced is the fallback column set when the full regression cannot be solved
var reduced = []string{FeatureSin24, FeatureCos24, FeatureSin12, FeatureCos12, FeaturePrecip, FeatureTrend}

const varianceEpsilon = 1e-9

// TrainOptions tunes a fit
type TrainOptions struct {
	MinRows int
	Now     func() time.Time
}

// Train fits the congestion regression for one segment from its observations
func Train(segmentID int, obs []domain.Observation, opts TrainOptions) (*Model, error) {
	if opts.MinRows <= 0 {
		opts.MinRows = DefaultMinRows
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(obs) < opts.MinRows {
		return nil, fmt.Errorf("model: segment %d: %w (%d < %d)", segmentID, ErrNotEnoughData, len(obs), opts.MinRows)
	}

	epoch := earliestDay(obs)
	vectors := make([]FeatureVector, len(obs))
	targets := make([]float64, len(obs))
	for i, o := range obs {
		vectors[i] = Features(o.HourlyFeatureRow, epoch)
		targets[i] = o.Congestion
	}

	m, err := fit(segmentID, selectColumns(vectors, FeatureNames()), vectors, targets)
	if err != nil {
		m, err = fit(segmentID, selectColumns(vectors, reduced), vectors, targets)
		if err != nil {
			return nil, err
		}
	}

	m.Epoch = epoch
	m.TrendHorizon = trendHorizon(vectors)
	m.TrainedAt = opts.Now().UTC()
	return m, nil
}

func fit(segmentID int, columns []string, vectors []FeatureVector, targets []float64) (*Model, error) {
	var r regression.Regression
	r.SetObserved("nivel_congestion")
	for i, name := range columns {
		r.SetVar(i, name)
	}
	for i, fv := range vectors {
		r.Train(regression.DataPoint(targets[i], row(fv, columns)))
	}
	if err := r.Run(); err != nil {
		return nil, fmt.Errorf("model: segment %d: regression failed: %w", segmentID, err)
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) != len(columns)+1 {
		return nil, fmt.Errorf("model: segment %d: expected %d coefficients, got %d", segmentID, len(columns)+1, len(coeffs))
	}

	m := &Model{
		SegmentID:    segmentID,
		Version:      uuid.NewString(),
		Features:     append([]string(nil), columns...),
		Intercept:    coeffs[0],
		Coefficients: append([]float64(nil), coeffs[1:]...),
		R2:           r.R2,
		Samples:      len(vectors),
	}
	for i, name := range columns {
		if name == FeatureTrend {
			m.TrendCoef = m.Coefficients[i]
		}
	}

	residuals := make([]float64, len(vectors))
	for i, fv := range vectors {
		residuals[i] = targets[i] - m.Raw(fv)
	}
	m.ResidualStd = stat.StdDev(residuals, nil)
	if math.IsNaN(m.R2) {
		m.R2 = 0
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// selectColumns keeps the candidates that carry information: non-constant, not an exact
// copy of an earlier column, and all weekday dummies but the first present one.
func selectColumns(vectors []FeatureVector, candidates []string) []string {
	var kept []string
	var keptValues [][]float64
	droppedDayDummy := false

	for _, name := range candidates {
		values := column(vectors, name)
		if stat.Variance(values, nil) < varianceEpsilon {
			continue
		}
		if duplicateOf(values, keptValues) {
			continue
		}
		if isDayDummy(name) && !droppedDayDummy {
			droppedDayDummy = true
			continue
		}
		kept = append(kept, name)
		keptValues = append(keptValues, values)
	}
	return kept
}

func isDayDummy(name string) bool {
	const prefix = "tipo_dia_"
	return len(name) > len(prefix) && name[:len(prefix)] == prefix
}

func duplicateOf(values []float64, kept [][]float64) bool {
	for _, other := range kept {
		same := true
		for i := range values {
			if values[i] != other[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

func column(vectors []FeatureVector, name string) []float64 {
	out := make([]float64, len(vectors))
	for i, fv := range vectors {
		out[i] = fv[name]
	}
	return out
}

func row(fv FeatureVector, columns []string) []float64 {
	out := make([]float64, len(columns))
	for i, name := range columns {
		out[i] = fv[name]
	}
	return out
}

// trendHorizon is the largest trend value seen in training
func trendHorizon(vectors []FeatureVector) float64 {
	var horizon float64
	for _, fv := range vectors {
		if t := fv[FeatureTrend]; t > horizon {
			horizon = t
		}
	}
	return horizon
}

func earliestDay(obs []domain.Observation) time.Time {
	ts := make([]time.Time, len(obs))
	for i, o := range obs {
		ts[i] = o.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	first := ts[0].UTC()
	return time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
}
