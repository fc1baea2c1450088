package domain

import (
	"fmt"
	"sort"
	"strings"
)

// LatLng is a WGS84 coordinate
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// VehicleClass identifies which kind of vehicle a recommendation is for
type VehicleClass string

const (
	VehicleCar  VehicleClass = "car"
	VehicleMoto VehicleClass = "moto"
	VehicleBus  VehicleClass = "bus"
)

// ParseVehicleClass accepts the English names plus the aliases used by the frontend ("carro", "auto")
func ParseVehicleClass(s string) (VehicleClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "car", "carro", "auto":
		return VehicleCar, nil
	case "moto", "motorcycle":
		return VehicleMoto, nil
	case "bus":
		return VehicleBus, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVehicleClass, s)
	}
}

// Segment is one of the fixed road stretches being modeled
type Segment struct {
	ID             int            `json:"segmento_id"`
	Name           string         `json:"nombre"`
	Path           []LatLng       `json:"geometria,omitempty"`
	LengthKM       float64        `json:"longitud_km"`
	StopCount      int            `json:"paradas_cercanas"`
	Construction   bool           `json:"construccion_vial"`
	TransitHeavy   bool           `json:"transporte_colectivo"`
	VehicleClasses []VehicleClass `json:"tipos_vehiculo"`
}

// Allows reports whether the segment admits the vehicle class
func (s Segment) Allows(class VehicleClass) bool {
	for _, c := range s.VehicleClasses {
		if c == class {
			return true
		}
	}
	return false
}

// PathPairs returns the geometry as [lat, lon] pairs for distance helpers
func (s Segment) PathPairs() [][2]float64 {
	pairs := make([][2]float64, len(s.Path))
	for i, p := range s.Path {
		pairs[i] = [2]float64{p.Lat, p.Lng}
	}
	return pairs
}

// EncodeVehicleClasses serializes a class set as a sorted comma separated list for storage
func EncodeVehicleClasses(classes []VehicleClass) string {
	parts := make([]string, len(classes))
	for i, c := range classes {
		parts[i] = string(c)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// DecodeVehicleClasses is the inverse of EncodeVehicleClasses; unknown entries are dropped
func DecodeVehicleClasses(s string) []VehicleClass {
	var out []VehicleClass
	for _, part := range strings.Split(s, ",") {
		if c, err := ParseVehicleClass(part); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// CandidateRoute is a pre-defined path made of ordered segments (tramos)
type CandidateRoute struct {
	ID           int    `json:"id"`
	Name         string `json:"nombre"`
	Description  string `json:"descripcion,omitempty"`
	SegmentIDs   []int  `json:"tramos"`
	Active       bool   `json:"activa"`
	StartSegment *int   `json:"segmento_inicio,omitempty"`
	EndSegment   *int   `json:"segmento_fin,omitempty"`
}

// Validate rejects routes that cannot be scored
func (r CandidateRoute) Validate() error {
	if len(r.SegmentIDs) == 0 {
		return fmt.Errorf("%w: route %d (%s)", ErrEmptyRouteDefinition, r.ID, r.Name)
	}
	return nil
}

// Los Chorros reference point used for weather lookups
const (
	LosChorrosLat = 13.6769
	LosChorrosLon = -89.2797
)
