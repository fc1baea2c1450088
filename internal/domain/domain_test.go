package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVehicleClass(t *testing.T) {
	tests := []struct {
		in   string
		want VehicleClass
	}{
		{"car", VehicleCar},
		{"Carro", VehicleCar},
		{" auto ", VehicleCar},
		{"moto", VehicleMoto},
		{"BUS", VehicleBus},
	}
	for _, tt := range tests {
		got, err := ParseVehicleClass(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseVehicleClass("truck")
	assert.ErrorIs(t, err, ErrInvalidVehicleClass)
}

func TestVehicleClassEncoding(t *testing.T) {
	enc := EncodeVehicleClasses([]VehicleClass{VehicleMoto, VehicleCar})
	assert.Equal(t, "car,moto", enc)
	assert.Equal(t, []VehicleClass{VehicleCar, VehicleMoto}, DecodeVehicleClasses(enc))
	assert.Empty(t, DecodeVehicleClasses(""))
}

func TestCandidateRouteValidate(t *testing.T) {
	assert.NoError(t, CandidateRoute{ID: 1, SegmentIDs: []int{3, 4}}.Validate())
	assert.ErrorIs(t, CandidateRoute{ID: 2}.Validate(), ErrEmptyRouteDefinition)
}

func TestWeekdayName(t *testing.T) {
	assert.Equal(t, "Lunes", WeekdayName(time.Monday))
	assert.Equal(t, "Sábado", WeekdayName(time.Saturday))
	assert.Equal(t, "Domingo", WeekdayName(time.Sunday))
}

func TestParseDayAndHour(t *testing.T) {
	loc := LoadLocation("")

	day, err := ParseDay("2024-03-11", loc)
	require.NoError(t, err)
	assert.Equal(t, 0, day.Hour())
	assert.Equal(t, "2024-03-11", DayKey(day, loc))

	_, err = ParseDay("11/03/2024", loc)
	assert.ErrorIs(t, err, ErrInvalidDateFormat)

	h, err := ParseHour("07:30")
	require.NoError(t, err)
	assert.Equal(t, 7, h)

	h, err = ParseHour("18")
	require.NoError(t, err)
	assert.Equal(t, 18, h)

	for _, bad := range []string{"25:00", "7pm", "24", ""} {
		_, err := ParseHour(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeFormat, bad)
	}
}

func TestHourSlot(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	at := time.Date(2024, 3, 11, 13, 45, 12, 0, time.UTC)

	slot := HourSlot(at, loc)
	assert.Equal(t, 7, slot.Hour())
	assert.Zero(t, slot.Minute())
	assert.Equal(t, "2024-03-11", DayKey(at, loc))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), DayStart(at, loc))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(fmt.Errorf("wrap: %w", ErrInvalidSegment)))
	assert.True(t, IsClientError(ErrNoAdmissibleCandidates))
	assert.False(t, IsClientError(errors.New("connection refused")))
	assert.False(t, IsClientError(fmt.Errorf("model: segment 7: %w", ErrModelNotFound)))
	assert.False(t, IsClientError(nil))
}

func TestExternalFactorOverlaps(t *testing.T) {
	start := time.Date(2024, 3, 11, 16, 0, 0, 0, time.UTC)
	f := ExternalFactor{Start: start, End: start.Add(2 * time.Hour), Active: true}

	assert.True(t, f.Overlaps(start.Add(time.Hour), start.Add(2*time.Hour)))
	assert.False(t, f.Overlaps(start.Add(2*time.Hour), start.Add(3*time.Hour)))
	assert.True(t, f.Global())

	f.Active = false
	assert.False(t, f.Overlaps(start, start.Add(time.Hour)))
}

func TestVehicleRecommendationJSON(t *testing.T) {
	rec := VehicleRecommendation{
		Class:  VehicleMoto,
		Mode:   VehicleSnapshot,
		Winner: ScoredOption{SegmentID: 2, Name: "Los Chorros - Tramo 2", Score: 0},
		Options: []ScoredOption{
			{SegmentID: 2, Name: "Los Chorros - Tramo 2", Score: 0},
			{SegmentID: 4, Name: "Los Chorros - Tramo 4", Score: 1.5},
		},
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 0.0, out["recomendado"].(map[string]interface{})["puntaje"])
	options := out["todas_las_opciones"].([]interface{})
	require.Len(t, options, 2)
	assert.Equal(t, 0.0, options[0].(map[string]interface{})["puntaje"])
	assert.NotContains(t, out, "opciones")
}
