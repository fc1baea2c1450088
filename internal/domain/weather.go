package domain

import "time"

// Weather is the current condition snapshot for the Los Chorros reference point
type Weather struct {
	Condition     string    `json:"condicion"`
	Description   string    `json:"descripcion"`
	Temperature   float64   `json:"temperatura"`
	Humidity      int       `json:"humedad"`
	Precipitation float64   `json:"precipitacion_mm"`
	WindSpeed     float64   `json:"viento"`
	Timestamp     time.Time `json:"timestamp"`
}

// FactorKind classifies an external factor
type FactorKind string

const (
	FactorWeather  FactorKind = "CLIMA"
	FactorEvent    FactorKind = "EVENTO"
	FactorRoadwork FactorKind = "OBRA"
	FactorAccident FactorKind = "ACCIDENTE"
	FactorSchool   FactorKind = "ESCUELA"
)

// Valid reports whether k is one of the known kinds
func (k FactorKind) Valid() bool {
	switch k {
	case FactorWeather, FactorEvent, FactorRoadwork, FactorAccident, FactorSchool:
		return true
	}
	return false
}

// Impact bounds for external factors
const (
	MinImpact = 1
	MaxImpact = 4
)

// ExternalFactor is a time-bounded condition (weather, event, roadwork...) that raises congestion
type ExternalFactor struct {
	ID          int64      `json:"id"`
	Name        string     `json:"nombre"`
	Kind        FactorKind `json:"tipo"`
	Start       time.Time  `json:"fecha_inicio"`
	End         time.Time  `json:"fecha_fin"`
	Lat         *float64   `json:"latitud,omitempty"`
	Lng         *float64   `json:"longitud,omitempty"`
	SegmentID   *int       `json:"segmento_id,omitempty"`
	Impact      int        `json:"impacto"`
	Description string     `json:"descripcion"`
	Active      bool       `json:"activo"`
	CreatedAt   time.Time  `json:"fecha_creacion"`
}

// Overlaps reports whether the factor is active at some point in [from, to)
func (f ExternalFactor) Overlaps(from, to time.Time) bool {
	return f.Active && f.Start.Before(to) && f.End.After(from)
}

// Global reports whether the factor has no location and so applies to every segment
func (f ExternalFactor) Global() bool {
	return f.SegmentID == nil && (f.Lat == nil || f.Lng == nil)
}

// WeatherRefresh describes what a weather refresh did to the CLIMA factor
type WeatherRefresh struct {
	Available bool            `json:"disponible"`
	Weather   *Weather        `json:"clima,omitempty"`
	Action    string          `json:"accion"`
	Factor    *ExternalFactor `json:"factor,omitempty"`
	Message   string          `json:"mensaje,omitempty"`
}

// Weather refresh actions
const (
	RefreshCreated     = "created"
	RefreshExtended    = "extended"
	RefreshDeactivated = "deactivated"
	RefreshNone        = "none"
	RefreshUnavailable = "unavailable"
)
