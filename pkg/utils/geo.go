// Package utils holds small geometry and numeric helpers
package utils

import "math"

// earthRadiusKM is the mean Earth radius
const earthRadiusKM = 6371.0

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Haversine returns the great-circle distance in km between two WGS84 points
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat, dLon := radians(lat2-lat1), radians(lon2-lon1)
	sinLat, sinLon := math.Sin(dLat/2), math.Sin(dLon/2)
	h := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLon*sinLon
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceToPath is the distance in km from a point to the nearest vertex of a [lat, lon]
// polyline; +Inf for an empty path
func DistanceToPath(lat, lon float64, path [][2]float64) float64 {
	best := math.Inf(1)
	for _, p := range path {
		best = math.Min(best, Haversine(lat, lon, p[0], p[1]))
	}
	return best
}
