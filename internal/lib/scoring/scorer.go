// Package scoring rates candidate routes against the community segment map.
package scoring

import (
	"math"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/segments"
)

const (
	// NeutralScore is returned for routes that cannot be scored: degenerate
	// geometry or no rated segments anywhere near the route. It is
	// deliberately distinguishable from a computed low score.
	NeutralScore = 75

	// maxSamples caps the number of evaluated sub-segments so scoring cost
	// stays bounded on very dense polylines.
	maxSamples = 20

	// matchRadiusKm is the maximum midpoint-to-midpoint distance for a route
	// sample to be matched to a rated segment.
	matchRadiusKm = 1.0
)

// Scorer computes a 0-100 safety score by sampling a route against rated road
// segments. A Scorer is stateless and safe for concurrent use.
type Scorer struct{}

// NewScorer creates a route safety scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score samples the route at a fixed stride and counts samples whose closest
// rated segment (within matchRadiusKm) carries a Bad consensus. The result is
// round(100 - bad/sampled*100) clamped to [0, 100]. Scoring is deterministic:
// the same route and segment snapshot always yield the same score.
func (s *Scorer) Score(route []geo.Point, rated []segments.RoadSegment) int {
	if len(route) < 2 {
		return NeutralScore
	}

	stride := len(route) / maxSamples
	if stride < 1 {
		stride = 1
	}

	sampled := 0
	matched := 0
	bad := 0
	for i := 0; i+stride < len(route); i += stride {
		sampled++
		mid := geo.Midpoint(route[i], route[i+stride])

		seg := closestSegment(mid, rated)
		if seg == nil {
			continue
		}
		matched++
		if seg.Rating == segments.RatingBad {
			bad++
		}
	}

	if sampled == 0 || matched == 0 {
		return NeutralScore
	}

	score := int(math.Round(100 - float64(bad)/float64(sampled)*100))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// closestSegment returns the rated segment whose midpoint is nearest to p
// within the match radius, or nil when none qualifies.
func closestSegment(p geo.Point, rated []segments.RoadSegment) *segments.RoadSegment {
	var best *segments.RoadSegment
	bestDist := matchRadiusKm
	for i := range rated {
		seg := &rated[i]
		segMid := geo.Midpoint(seg.Coordinates.Start, seg.Coordinates.End)
		d := geo.Haversine(p, segMid)
		if d <= bestDist {
			bestDist = d
			best = seg
		}
	}
	return best
}
