package segments

import (
	"context"
	"errors"
	"fmt"

	"github.com/saferoads/server/internal/lib/geo"
)

// Rating is the consensus verdict for a road segment.
type Rating string

const (
	RatingGood    Rating = "good"
	RatingBad     Rating = "bad"
	RatingUnknown Rating = "unknown"
)

// boundsPaddingDeg is the padding applied to a segment's bounding area so
// spatial range queries catch segments whose endpoints sit just outside the
// queried box. 0.01 degrees is roughly 1.1 km.
const boundsPaddingDeg = 0.01

var (
	// ErrInvalidCoordinates indicates NaN or out-of-range input. Never retried.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrInvalidRating indicates a verdict other than good or bad.
	ErrInvalidRating = errors.New("rating must be good or bad")

	// ErrStorageUnavailable indicates the persistence backend rejected a write.
	// The rating is still applied to the in-memory store; callers must treat it
	// as not durably saved.
	ErrStorageUnavailable = errors.New("rating store unavailable")
)

// SegmentCoords are the endpoints of a rateable road segment.
type SegmentCoords struct {
	Start geo.Point `json:"start"`
	End   geo.Point `json:"end"`
}

// RoadSegment is a ~2 km stretch of road carrying a crowd-sourced safety
// consensus. The invariant RatingCount == GoodRatingCount + BadRatingCount
// holds after every mutation.
type RoadSegment struct {
	ID              string        `json:"id"`
	Coordinates     SegmentCoords `json:"coordinates"`
	Points          []geo.Point   `json:"points"`
	Rating          Rating        `json:"rating"`
	RatingCount     int           `json:"rating_count"`
	GoodRatingCount int           `json:"good_rating_count"`
	BadRatingCount  int           `json:"bad_rating_count"`
	BoundingArea    geo.Bounds    `json:"bounding_area"`
	LengthKm        float64       `json:"length_km"`
}

// clone returns a deep copy so callers never hold a live handle into the store.
func (s *RoadSegment) clone() RoadSegment {
	out := *s
	out.Points = make([]geo.Point, len(s.Points))
	copy(out.Points, s.Points)
	return out
}

// SegmentKey derives the stable identifier for the stretch of road between two
// endpoints. Coordinates are rounded to four decimal places (~11 m) so repeated
// ratings of the same physical stretch collide on the same key.
func SegmentKey(start, end geo.Point) string {
	return fmt.Sprintf("%.4f,%.4f:%.4f,%.4f", start.Lat, start.Lng, end.Lat, end.Lng)
}

// boundingArea derives the padded spatial-query box for a pair of endpoints.
func boundingArea(start, end geo.Point) geo.Bounds {
	return geo.BoundsOf([]geo.Point{start, end}).Pad(boundsPaddingDeg)
}

// Backend is the narrow interface to the persistent rating store. The core
// functions fully without one, degrading to an empty-ratings world.
type Backend interface {
	Get(ctx context.Context, key string) (*RoadSegment, error)
	Put(ctx context.Context, key string, seg RoadSegment) error
	QueryByBounds(ctx context.Context, b geo.Bounds) ([]RoadSegment, error)
}
