package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loschorros/backend/internal/domain"
)

func TestVehicleScore(t *testing.T) {
	seg3 := 3
	tests := []struct {
		name       string
		mode       string
		class      domain.VehicleClass
		segment    int
		congestion float64
		speed      float64
		avoid      *int
		want       float64
	}{
		{"snapshot", domain.VehicleSnapshot, domain.VehicleCar, 3, 4, 20, nil, 2},
		{"forecast", domain.VehicleForecast, domain.VehicleCar, 3, 4, 24, nil, 2.4},
		{"moto shortcut bonus", domain.VehicleSnapshot, domain.VehicleMoto, 10, 4, 20, nil, 1.2},
		{"shortcut only for moto", domain.VehicleSnapshot, domain.VehicleCar, 10, 4, 20, nil, 2},
		{"avoid penalty", domain.VehicleSnapshot, domain.VehicleCar, 3, 4, 20, &seg3, 3},
		{"negative bonus lowers", domain.VehicleSnapshot, domain.VehicleMoto, 10, 1, 40, nil, -5},
		{"negative penalty raises", domain.VehicleSnapshot, domain.VehicleCar, 3, 1, 40, &seg3, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VehicleScore(tt.mode, tt.class, tt.segment, tt.congestion, tt.speed, tt.avoid)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScaleScoreDirection(t *testing.T) {
	for _, score := range []float64{-3, -0.5, 0, 0.5, 3} {
		assert.Less(t, scaleScore(score, motoShortcutFactor), score, "bonus lowers %v", score)
		assert.Greater(t, scaleScore(score, avoidPenaltyFactor), score, "penalty raises %v", score)
	}
}
