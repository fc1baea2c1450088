package domain

import (
	"fmt"
	"time"
)

// RecommendationMode selects what a persisted recommendation ranks
type RecommendationMode string

const (
	ModeSegment RecommendationMode = "segment"
	ModeRoute   RecommendationMode = "route"
)

// RecommendationKey identifies one persisted recommendation
type RecommendationKey struct {
	Mode RecommendationMode
	Slot time.Time
}

// String renders the key for locks and cache keys
func (k RecommendationKey) String() string {
	return fmt.Sprintf("%s:%s", k.Mode, k.Slot.UTC().Format(time.RFC3339))
}

// ScoredOption is one candidate (segment or route) with its cost
type ScoredOption struct {
	SegmentID     int     `json:"segmento_id,omitempty"`
	RouteID       int     `json:"ruta_id,omitempty"`
	Name          string  `json:"nombre"`
	TravelMinutes float64 `json:"tiempo_estimado_min"`
	Congestion    float64 `json:"congestion"`
	SpeedKMH      float64 `json:"velocidad,omitempty"`
	Score         float64 `json:"puntaje"`
}

// RouteRecommendation is the persisted winner for (mode, hour slot) together with the alternatives it beat
type RouteRecommendation struct {
	Mode          RecommendationMode `json:"modo"`
	Slot          time.Time          `json:"fecha_hora"`
	WinnerID      int                `json:"ganador_id"`
	WinnerName    string             `json:"ganador_nombre"`
	TravelMinutes float64            `json:"tiempo_estimado_min"`
	Congestion    float64            `json:"congestion_promedio"`
	Alternatives  []ScoredOption     `json:"alternativas"`
	SkippedRoutes []int              `json:"rutas_omitidas,omitempty"`
	ComputedAt    time.Time          `json:"fecha_calculo"`
}

// Key returns the identity of the recommendation
func (r RouteRecommendation) Key() RecommendationKey {
	return RecommendationKey{Mode: r.Mode, Slot: r.Slot}
}

// RecommendationDetails is the JSON blob stored next to a recommendation row
type RecommendationDetails struct {
	Alternatives  []ScoredOption `json:"alternativas"`
	SkippedRoutes []int          `json:"rutas_omitidas,omitempty"`
}

// Vehicle scoring modes
const (
	VehicleSnapshot = "snapshot"
	VehicleForecast = "forecast"
)

// VehicleRecommendation ranks the segments admissible for a vehicle class. Not persisted.
type VehicleRecommendation struct {
	Class   VehicleClass   `json:"tipo_vehiculo"`
	Mode    string         `json:"modo"`
	Slot    time.Time      `json:"fecha_hora"`
	Avoided *int           `json:"evitar,omitempty"`
	Winner  ScoredOption   `json:"recomendado"`
	Options []ScoredOption `json:"todas_las_opciones"`
}
