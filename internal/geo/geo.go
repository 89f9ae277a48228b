package geo

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the fixed radius used for great-circle math. The
// engine operates on a bounded, single-city problem; a sphere is accurate
// enough at that scale.
const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the great-circle (haversine) distance between two points
// in meters. Symmetric: Distance(a, b) == Distance(b, a).
func Distance(p1, p2 Point) float64 {
	lat1 := p1.Lat * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	deltaLat := (p2.Lat - p1.Lat) * math.Pi / 180
	deltaLon := (p2.Lon - p1.Lon) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// FormatDistance renders a distance for candidate rows: "82m", "1.3km", "12km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	if meters < 10000 {
		return fmt.Sprintf("%.1fkm", meters/1000)
	}
	return fmt.Sprintf("%dkm", int(math.Round(meters/1000)))
}
