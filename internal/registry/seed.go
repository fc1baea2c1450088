package registry

import (
	"fmt"

	"github.com/loschorros/backend/internal/domain"
)

type seedSegment struct {
	id           int
	lengthKM     float64
	stops        int
	construction bool
	transit      bool
	path         []domain.LatLng
}

// The ten Los Chorros segments. This table is the only copy of their attributes;
// stores are seeded from it and the running process reads them back from storage.
var seedSegments = []seedSegment{
	{1, 12.755, 6, true, true, []domain.LatLng{{Lat: 13.6769, Lng: -89.2797}, {Lat: 13.6791, Lng: -89.2912}, {Lat: 13.6822, Lng: -89.3020}}},
	{2, 13.073, 4, false, true, []domain.LatLng{{Lat: 13.6822, Lng: -89.3020}, {Lat: 13.6858, Lng: -89.3131}, {Lat: 13.6889, Lng: -89.3245}}},
	{3, 12.969, 3, false, false, []domain.LatLng{{Lat: 13.6769, Lng: -89.2797}, {Lat: 13.6738, Lng: -89.2915}, {Lat: 13.6755, Lng: -89.3040}}},
	{4, 13.055, 5, false, false, []domain.LatLng{{Lat: 13.6755, Lng: -89.3040}, {Lat: 13.6781, Lng: -89.3162}, {Lat: 13.6810, Lng: -89.3281}}},
	{5, 12.614, 3, false, false, []domain.LatLng{{Lat: 13.6810, Lng: -89.3281}, {Lat: 13.6847, Lng: -89.3390}, {Lat: 13.6889, Lng: -89.3495}}},
	{6, 13.621, 6, false, false, []domain.LatLng{{Lat: 13.6769, Lng: -89.2797}, {Lat: 13.6702, Lng: -89.2891}, {Lat: 13.6665, Lng: -89.3010}}},
	{7, 13.167, 2, false, false, []domain.LatLng{{Lat: 13.6665, Lng: -89.3010}, {Lat: 13.6690, Lng: -89.3138}, {Lat: 13.6724, Lng: -89.3262}}},
	{8, 13.335, 2, false, false, []domain.LatLng{{Lat: 13.6724, Lng: -89.3262}, {Lat: 13.6783, Lng: -89.3371}, {Lat: 13.6889, Lng: -89.3495}}},
	{9, 15.138, 4, false, false, []domain.LatLng{{Lat: 13.6769, Lng: -89.2797}, {Lat: 13.6903, Lng: -89.2870}, {Lat: 13.7011, Lng: -89.3002}}},
	{10, 41.974, 1, false, false, []domain.LatLng{{Lat: 13.7011, Lng: -89.3002}, {Lat: 13.7150, Lng: -89.3420}, {Lat: 13.7004, Lng: -89.3790}, {Lat: 13.6889, Lng: -89.3495}}},
}

func admissibleClasses(id int) []domain.VehicleClass {
	switch {
	case id == 1 || id == 2:
		return []domain.VehicleClass{domain.VehicleBus}
	case id >= 3 && id <= 9:
		return []domain.VehicleClass{domain.VehicleCar, domain.VehicleMoto}
	case id == 10:
		return []domain.VehicleClass{domain.VehicleMoto}
	}
	return nil
}

// SeedSegments returns the initial segment catalogue
func SeedSegments() []domain.Segment {
	out := make([]domain.Segment, 0, len(seedSegments))
	for _, s := range seedSegments {
		out = append(out, domain.Segment{
			ID:             s.id,
			Name:           fmt.Sprintf("Los Chorros - Tramo %d", s.id),
			Path:           append([]domain.LatLng(nil), s.path...),
			LengthKM:       s.lengthKM,
			StopCount:      s.stops,
			Construction:   s.construction,
			TransitHeavy:   s.transit,
			VehicleClasses: admissibleClasses(s.id),
		})
	}
	return out
}

func intPtr(v int) *int { return &v }

// SeedRoutes returns the initial candidate routes
func SeedRoutes() []domain.CandidateRoute {
	return []domain.CandidateRoute{
		{
			ID: 1, Name: "Carretera Panamericana", Description: "Recorrido directo por la carretera principal",
			SegmentIDs: []int{3, 4, 5}, Active: true, StartSegment: intPtr(3), EndSegment: intPtr(5),
		},
		{
			ID: 2, Name: "Desvío por Colón", Description: "Alterna por el sur evitando el paso de Los Chorros",
			SegmentIDs: []int{6, 7, 8}, Active: true, StartSegment: intPtr(6), EndSegment: intPtr(8),
		},
		{
			ID: 3, Name: "Ruta del norte", Description: "Rodeo largo por el tramo 10",
			SegmentIDs: []int{9, 10}, Active: true, StartSegment: intPtr(9), EndSegment: intPtr(10),
		},
		{
			ID: 4, Name: "Carril de transporte colectivo", Description: "Recorrido de las rutas de buses",
			SegmentIDs: []int{1, 2}, Active: true, StartSegment: intPtr(1), EndSegment: intPtr(2),
		},
		{
			ID: 5, Name: "Paso antiguo", Description: "Cerrado por obras",
			SegmentIDs: []int{1, 4, 5}, Active: false,
		},
	}
}
