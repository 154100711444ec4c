package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// EarthRadiusKm is the mean Earth radius used by all great-circle math.
const EarthRadiusKm = 6371.0

var errEmptyPolyline = errors.New("encoded polyline string is empty")

// Valid reports whether p is a finite coordinate within
// [-90, 90] latitude and [-180, 180] longitude.
func Valid(p Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Haversine returns the great-circle distance between two points in kilometers.
func Haversine(a, b Point) float64 {
	if a == b {
		return 0
	}
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Interpolate returns the point a fraction t of the way from a to b.
// Linear interpolation is adequate for road-scale distances (< 10 km edges).
func Interpolate(a, b Point, t float64) Point {
	return Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Interpolate(a, b, 0.5)
}

// Offset returns the destination point reached by travelling distanceKm from p
// along the given initial bearing (degrees).
func Offset(p Point, bearingDeg, distanceKm float64) Point {
	lat1 := p.Lat * math.Pi / 180
	lng1 := p.Lng * math.Pi / 180
	brng := bearingDeg * math.Pi / 180
	d := distanceKm / EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(
		math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)
	return Point{
		Lat: lat2 * 180 / math.Pi,
		Lng: math.Mod(lng2*180/math.Pi+540, 360) - 180,
	}
}

// PathLength returns the accumulated haversine length of a polyline in kilometers.
func PathLength(pts []Point) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += Haversine(pts[i-1], pts[i])
	}
	return total
}

// DecodePolyline decodes a Google encoded polyline string into points.
// Malformed input or out-of-range coordinates are reported as errors, never
// panics, since encoded strings arrive from external providers.
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errEmptyPolyline
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}
	points := make([]Point, len(coords))
	for i, c := range coords {
		points[i] = Point{Lat: c[0], Lng: c[1]}
		if !Valid(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}
	return points, nil
}

// EncodePolyline encodes points into the Google polyline format.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}
