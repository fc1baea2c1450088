package model

import (
	"math"
	"time"

	"github.com/loschorros/backend/internal/domain"
)

// Feature column names. Weekday dummies are named tipo_dia_<Spanish weekday>.
const (
	FeatureHour        = "hour"
	FeatureSin24       = "sin_24h"
	FeatureCos24       = "cos_24h"
	FeatureSin12       = "sin_12h"
	FeatureCos12       = "cos_12h"
	FeaturePrecip      = "precipitacion"
	FeaturePeak        = "hora_pico"
	FeatureStudentsIn  = "entrada_estudiantes"
	FeatureStudentsOut = "salida_estudiantes"
	FeatureWorkersIn   = "entrada_trabajadores"
	FeatureWorkersOut  = "salida_trabajadores"
	FeatureConstruct   = "construccion_vial"
	FeatureLength      = "longitud_km"
	FeatureStops       = "paradas_cercanas"
	FeatureSpeed       = "velocidad_kmh"
	FeatureLoad        = "carga_vehicular"
	FeatureTrend       = "t"
)

// DayTypeFeature returns the one-hot column name for a weekday name
func DayTypeFeature(dayType string) string {
	return "tipo_dia_" + dayType
}

// FeatureNames lists every candidate column in a stable order
func FeatureNames() []string {
	names := []string{FeatureHour, FeatureSin24, FeatureCos24, FeatureSin12, FeatureCos12}
	for _, d := range domain.WeekdayNames {
		names = append(names, DayTypeFeature(d))
	}
	return append(names,
		FeaturePrecip, FeaturePeak,
		FeatureStudentsIn, FeatureStudentsOut, FeatureWorkersIn, FeatureWorkersOut,
		FeatureConstruct, FeatureLength, FeatureStops,
		FeatureSpeed, FeatureLoad, FeatureTrend,
	)
}

// FeatureVector maps column names to values; absent columns read as zero
type FeatureVector map[string]float64

// DaysSince is the trend regressor: fractional days between epoch and t
func DaysSince(epoch, t time.Time) float64 {
	return t.Sub(epoch).Hours() / 24
}

// Features engineers the model inputs of a feature row
func Features(row domain.HourlyFeatureRow, epoch time.Time) FeatureVector {
	h := float64(row.Hour)
	fv := FeatureVector{
		FeatureHour:        h,
		FeatureSin24:       math.Sin(2 * math.Pi * h / 24),
		FeatureCos24:       math.Cos(2 * math.Pi * h / 24),
		FeatureSin12:       math.Sin(2 * math.Pi * h / 12),
		FeatureCos12:       math.Cos(2 * math.Pi * h / 12),
		FeaturePrecip:      row.Precipitation,
		FeaturePeak:        boolf(row.Peak),
		FeatureStudentsIn:  boolf(row.StudentsIn),
		FeatureStudentsOut: boolf(row.StudentsOut),
		FeatureWorkersIn:   boolf(row.WorkersIn),
		FeatureWorkersOut:  boolf(row.WorkersOut),
		FeatureConstruct:   boolf(row.Construction),
		FeatureLength:      row.LengthKM,
		FeatureStops:       float64(row.StopCount),
		FeatureSpeed:       row.SpeedKMH,
		FeatureLoad:        float64(row.Load),
		FeatureTrend:       DaysSince(epoch, row.Timestamp),
	}
	for _, d := range domain.WeekdayNames {
		fv[DayTypeFeature(d)] = boolf(row.DayType == d)
	}
	return fv
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
