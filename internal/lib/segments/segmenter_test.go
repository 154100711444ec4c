package segments

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoads/server/internal/lib/geo"
)

// degPerKm converts kilometers travelled due north into degrees of latitude.
const degPerKm = 1.0 / 111.195

// straightPolyline builds a due-north polyline with the given spacing in km.
func straightPolyline(points int, spacingKm float64) []geo.Point {
	pts := make([]geo.Point, points)
	for i := range pts {
		pts[i] = geo.Point{Lat: 36.0 + float64(i)*spacingKm*degPerKm, Lng: 10.0}
	}
	return pts
}

func TestSegmenter_FiveKmPolyline(t *testing.T) {
	// 6 evenly-spaced points spanning 5 km must yield ~2, ~2 and ~1 km
	// segments, not two of 2.5 km.
	segs := NewSegmenter(2.0).Segment(straightPolyline(6, 1.0))
	require.Len(t, segs, 3)

	assert.InDelta(t, 2.0, segs[0].LengthKm, 0.1)
	assert.InDelta(t, 2.0, segs[1].LengthKm, 0.1)
	assert.InDelta(t, 1.0, segs[2].LengthKm, 0.1)
}

func TestSegmenter_InterpolatedCuts(t *testing.T) {
	// 3 points spaced 2.5 km apart force cuts mid-edge.
	polyline := straightPolyline(3, 2.5)
	segs := NewSegmenter(2.0).Segment(polyline)
	require.Len(t, segs, 3)

	for _, seg := range segs[:len(segs)-1] {
		assert.GreaterOrEqual(t, seg.LengthKm, 1.9)
		assert.LessOrEqual(t, seg.LengthKm, 2.1)
		// Stored geometry length agrees with the declared length.
		assert.InDelta(t, seg.LengthKm, geo.PathLength(seg.Points), 0.05)
	}
	assert.InDelta(t, 1.0, segs[2].LengthKm, 0.1)
}

func TestSegmenter_EndpointReconstruction(t *testing.T) {
	polyline := straightPolyline(8, 1.3)
	segs := NewSegmenter(2.0).Segment(polyline)
	require.NotEmpty(t, segs)

	// Concatenated segments retrace the original endpoints exactly, and each
	// segment starts where the previous one ended.
	assert.Equal(t, polyline[0], segs[0].Points[0])
	last := segs[len(segs)-1]
	assert.Equal(t, polyline[len(polyline)-1], last.Points[len(last.Points)-1])
	for i := 1; i < len(segs); i++ {
		assert.Equal(t, segs[i-1].Coordinates.End, segs[i].Coordinates.Start)
	}
}

func TestSegmenter_DeterministicIDs(t *testing.T) {
	polyline := straightPolyline(6, 1.0)
	first := NewSegmenter(2.0).Segment(polyline)
	second := NewSegmenter(2.0).Segment(polyline)
	require.Equal(t, len(first), len(second))

	seen := map[string]bool{}
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.False(t, seen[first[i].ID], "segment ids must be unique within a route")
		seen[first[i].ID] = true
		assert.Equal(t, RatingUnknown, first[i].Rating)
	}
}

func TestSegmenter_ShortAndInvalidInput(t *testing.T) {
	s := NewSegmenter(2.0)

	assert.Nil(t, s.Segment(nil))
	assert.Nil(t, s.Segment([]geo.Point{{Lat: 36, Lng: 10}}))

	// Invalid points are dropped rather than failing the whole polyline.
	mixed := []geo.Point{
		{Lat: math.NaN(), Lng: 10},
		{Lat: 36.0, Lng: 10},
		{Lat: 200, Lng: 10},
		{Lat: 36.018, Lng: 10},
	}
	segs := s.Segment(mixed)
	require.Len(t, segs, 1)
	assert.InDelta(t, 2.0, segs[0].LengthKm, 0.1)

	// All points invalid yields nil.
	assert.Nil(t, s.Segment([]geo.Point{{Lat: math.NaN(), Lng: 10}, {Lat: 91, Lng: 0}}))
}

func TestSegmenter_TrailingSliverDropped(t *testing.T) {
	// Vertices at 0, 2.05 and 2.13 km: the first segment closes at the 2.05 km
	// vertex and the remaining 80 m sliver is below tolerance and discarded.
	polyline := []geo.Point{
		{Lat: 36.0, Lng: 10.0},
		{Lat: 36.0 + 2.05*degPerKm, Lng: 10.0},
		{Lat: 36.0 + 2.13*degPerKm, Lng: 10.0},
	}
	segs := NewSegmenter(2.0).Segment(polyline)
	require.Len(t, segs, 1)
	assert.InDelta(t, 2.05, segs[0].LengthKm, 0.02)
}
