package segments

import (
	"fmt"

	"github.com/saferoads/server/internal/lib/geo"
)

// DefaultTargetLengthKm is the nominal length of a rateable segment.
const DefaultTargetLengthKm = 2.0

// cutToleranceKm is how far past the target a segment may run before a cut
// point is interpolated, and the minimum length of an emitted trailing segment.
const cutToleranceKm = 0.1

// Segmenter slices a routed polyline into fixed-length rateable segments.
type Segmenter struct {
	targetKm float64
}

// NewSegmenter creates a segmenter with the given target length. Non-positive
// values fall back to DefaultTargetLengthKm.
func NewSegmenter(targetKm float64) *Segmenter {
	if targetKm <= 0 {
		targetKm = DefaultTargetLengthKm
	}
	return &Segmenter{targetKm: targetKm}
}

// Segment walks the polyline accumulating haversine distance and emits one
// RoadSegment per target length, interpolating an exact cut point whenever an
// edge would overshoot the target by more than the tolerance. The overshoot is
// carried into the next segment so concatenated segments retrace the polyline.
// The trailing partial segment is emitted when longer than the tolerance.
// Invalid points are dropped; fewer than two valid points yields nil.
func (s *Segmenter) Segment(polyline []geo.Point) []RoadSegment {
	pts := make([]geo.Point, 0, len(polyline))
	for _, p := range polyline {
		if geo.Valid(p) {
			pts = append(pts, p)
		}
	}
	if len(pts) < 2 {
		return nil
	}

	var out []RoadSegment
	seq := 0
	current := []geo.Point{pts[0]}
	accumulated := 0.0

	for i := 1; i < len(pts); {
		prev := current[len(current)-1]
		edge := geo.Haversine(prev, pts[i])

		if accumulated+edge > s.targetKm+cutToleranceKm {
			if accumulated >= s.targetKm {
				// Already at target; close the segment at the previous vertex.
				out = append(out, newSegment(current, seq, accumulated))
				seq++
				current = []geo.Point{prev}
				accumulated = 0
				continue
			}
			// Cut at exactly the target length along this edge. The remainder
			// of the edge starts the next segment.
			ratio := (s.targetKm - accumulated) / edge
			cut := geo.Interpolate(prev, pts[i], ratio)
			current = append(current, cut)
			out = append(out, newSegment(current, seq, s.targetKm))
			seq++
			current = []geo.Point{cut}
			accumulated = 0
			continue
		}

		current = append(current, pts[i])
		accumulated += edge
		i++
	}

	if accumulated > cutToleranceKm {
		out = append(out, newSegment(current, seq, accumulated))
	}
	return out
}

// newSegment builds a RoadSegment slice with a deterministic id. The sequence
// counter disambiguates otherwise-identical short segments within one route.
func newSegment(points []geo.Point, seq int, lengthKm float64) RoadSegment {
	pts := make([]geo.Point, len(points))
	copy(pts, points)
	start, end := pts[0], pts[len(pts)-1]

	return RoadSegment{
		ID:           fmt.Sprintf("%s#%d", SegmentKey(start, end), seq),
		Coordinates:  SegmentCoords{Start: start, End: end},
		Points:       pts,
		Rating:       RatingUnknown,
		BoundingArea: boundingArea(start, end),
		LengthKm:     lengthKm,
	}
}
