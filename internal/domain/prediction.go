package domain

import "time"

// Spanish weekday names, Monday first, as used by the training dataset
var WeekdayNames = [7]string{"Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado", "Domingo"}

// WeekdayName returns the localized day-type for a weekday
func WeekdayName(d time.Weekday) string {
	// time.Weekday is Sunday-first
	return WeekdayNames[(int(d)+6)%7]
}

// HourlyFeatureRow is the engineered input for one (segment, hour) pair.
// It is built fresh for each forecast and never persisted.
type HourlyFeatureRow struct {
	Timestamp      time.Time `json:"timestamp"`
	Hour           int       `json:"hour"`
	DayType        string    `json:"tipo_dia"`
	Weekend        bool      `json:"es_fin"`
	Precipitation  float64   `json:"precipitacion"`
	StudentsIn     bool      `json:"entrada_estudiantes"`
	StudentsOut    bool      `json:"salida_estudiantes"`
	WorkersIn      bool      `json:"entrada_trabajadores"`
	WorkersOut     bool      `json:"salida_trabajadores"`
	Peak           bool      `json:"hora_pico"`
	Construction   bool      `json:"construccion_vial"`
	LengthKM       float64   `json:"longitud_km"`
	StopCount      int       `json:"paradas_cercanas"`
	SpeedKMH       float64   `json:"velocidad_kmh"`
	Load           int       `json:"carga_vehicular"`
	BaseCongestion float64   `json:"congestion_base"`
	SegmentID      int       `json:"segmento_id"`
	TransitHeavy   bool      `json:"-"`
}

// Observation is a historical (or simulated) row used for training
type Observation struct {
	HourlyFeatureRow
	Congestion float64 `json:"nivel_congestion"`
}

// Measurement is a stored observation as served to the charts
type Measurement struct {
	SegmentID     int       `json:"segmento_id"`
	SegmentName   string    `json:"nombre_tramo"`
	Timestamp     time.Time `json:"fecha_hora"`
	SpeedKMH      float64   `json:"velocidad_promedio"`
	Congestion    float64   `json:"nivel_congestion"`
	Load          int       `json:"carga_vehicular"`
	Precipitation float64   `json:"precipitacion"`
	Peak          bool      `json:"hora_pico"`
}

// CongestionPrediction is the persisted forecast for one segment at one hour
type CongestionPrediction struct {
	SegmentID       int       `json:"segmento_id"`
	Timestamp       time.Time `json:"fecha_hora"`
	Congestion      float64   `json:"congestion_predicha"`
	CongestionLower float64   `json:"congestion_min"`
	CongestionUpper float64   `json:"congestion_max"`
	SpeedKMH        float64   `json:"velocidad_estimada"`
	Load            int       `json:"carga_vehicular"`
	TravelMinutes   float64   `json:"tiempo_estimado_min"`
	BaseCongestion  float64   `json:"congestion_base"`
	ModelEstimate   float64   `json:"congestion_modelo"`
	Trend           float64   `json:"tendencia"`
	ModelVersion    string    `json:"modelo_version"`
	CreatedAt       time.Time `json:"fecha_creacion"`
	UpdatedAt       time.Time `json:"fecha_actualizacion"`
}

// ForecastDay marks a complete, fresh set of 24 predictions for (segment, day)
type ForecastDay struct {
	SegmentID  int       `json:"segmento_id"`
	Day        string    `json:"fecha"`
	Version    string    `json:"version"`
	Rows       int       `json:"filas"`
	ComputedAt time.Time `json:"calculado_en"`
}

// HoursPerDay is the fixed length of a forecast day
const HoursPerDay = 24
