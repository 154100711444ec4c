package geo

// Point is an immutable latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a rectangular geographic area. North/South are latitudes,
// East/West are longitudes. The box is assumed not to cross the antimeridian,
// which holds for single-country deployments.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains reports whether p lies inside the bounds (inclusive).
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North &&
		p.Lng >= b.West && p.Lng <= b.East
}

// Intersects reports whether two bounds share any area.
func (b Bounds) Intersects(o Bounds) bool {
	return b.South <= o.North && b.North >= o.South &&
		b.West <= o.East && b.East >= o.West
}

// Pad expands the bounds by the given number of degrees on every side.
func (b Bounds) Pad(deg float64) Bounds {
	return Bounds{
		North: b.North + deg,
		South: b.South - deg,
		East:  b.East + deg,
		West:  b.West - deg,
	}
}

// BoundsOf returns the tight bounding box around the given points.
// Returns the zero Bounds if pts is empty.
func BoundsOf(pts []Point) Bounds {
	if len(pts) == 0 {
		return Bounds{}
	}
	b := Bounds{North: pts[0].Lat, South: pts[0].Lat, East: pts[0].Lng, West: pts[0].Lng}
	for _, p := range pts[1:] {
		if p.Lat > b.North {
			b.North = p.Lat
		}
		if p.Lat < b.South {
			b.South = p.Lat
		}
		if p.Lng > b.East {
			b.East = p.Lng
		}
		if p.Lng < b.West {
			b.West = p.Lng
		}
	}
	return b
}
