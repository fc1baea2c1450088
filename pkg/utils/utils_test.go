package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	// San Salvador centre to the Los Chorros weather point, about 7 km
	d := Haversine(13.6929, -89.2182, 13.6769, -89.2797)
	assert.InDelta(t, 6.9, d, 0.5)
	assert.Zero(t, Haversine(13.7, -89.3, 13.7, -89.3))
	assert.InDelta(t, d, Haversine(13.6769, -89.2797, 13.6929, -89.2182), 1e-9)
}

func TestDistanceToPath(t *testing.T) {
	path := [][2]float64{{13.70, -89.30}, {13.71, -89.29}}
	assert.InDelta(t, 0, DistanceToPath(13.71, -89.29, path), 1e-9)
	assert.InDelta(t, Haversine(13.70, -89.31, 13.70, -89.30), DistanceToPath(13.70, -89.31, path), 1e-9)
	assert.True(t, math.IsInf(DistanceToPath(13.7, -89.3, nil), 1))
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.2, 1},
		{1, 1},
		{3.3, 3.3},
		{5, 5},
		{7.1, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp(tt.in, 1, 5))
	}
}

func TestRoundToAndLerp(t *testing.T) {
	assert.Equal(t, 3.14, RoundTo(3.14159, 2))
	assert.Equal(t, 2.5, RoundTo(2.45, 1))
	// 70/30 blend expressed as interpolation from the model value towards the base value
	assert.InDelta(t, 0.7*4.8+0.3*2.0, Lerp(2.0, 4.8, 0.7), 1e-12)
}
