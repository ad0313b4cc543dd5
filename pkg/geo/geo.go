package geo

import (
	"errors"
	"math"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances
const EarthRadiusKm = 6371.0

// ErrEmptyLine is returned when a line is built without points
var ErrEmptyLine = errors.New("at least one point is needed to create a line")

// Point is a geographical location. Depth is in km, positive downwards.
type Point struct {
	Lon   float64 `json:"lon" yaml:"lon"`
	Lat   float64 `json:"lat" yaml:"lat"`
	Depth float64 `json:"depth,omitempty" yaml:"depth,omitempty"`
}

// SurfaceDistance returns the great-circle distance in km between two points,
// ignoring depth. Uses the haversine formula.
func SurfaceDistance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dlat := lat2 - lat1
	dlon := radians(b.Lon - a.Lon)

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Distance returns the distance in km between two points, combining the
// great-circle distance with the depth difference.
func Distance(a, b Point) float64 {
	surface := SurfaceDistance(a, b)
	dz := a.Depth - b.Depth
	return math.Sqrt(surface*surface + dz*dz)
}

// MinDistance returns the smallest distance between the target and any of
// the points. An empty slice gives +Inf.
func MinDistance(points []Point, target Point) float64 {
	best := math.Inf(1)
	for _, p := range points {
		if d := Distance(p, target); d < best {
			best = d
		}
	}
	return best
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
