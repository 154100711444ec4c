package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/segments"
)

// RatingRequest is one user verdict on a road segment.
type RatingRequest struct {
	SegmentID   string
	Coordinates segments.SegmentCoords
	Rating      segments.Rating
}

// RatingResult is the updated segment after applying the verdict. Durable is
// false when the persistence backend was unavailable and the rating was
// applied in memory only.
type RatingResult struct {
	Segment segments.RoadSegment `json:"segment"`
	Durable bool                 `json:"durable"`
}

// RatingsService validates and applies community segment ratings.
type RatingsService struct {
	store      *segments.Store
	region     geo.Bounds
	regionName string
	logger     *zap.SugaredLogger
}

// NewRatingsService creates the rating service.
func NewRatingsService(store *segments.Store, region geo.Bounds, regionName string, logger *zap.SugaredLogger) *RatingsService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RatingsService{
		store:      store,
		region:     region,
		regionName: regionName,
		logger:     logger,
	}
}

// SubmitRating applies one verdict to the identified segment, creating it on
// first rating. Storage failures degrade to in-memory application rather than
// rejecting the rating.
func (s *RatingsService) SubmitRating(ctx context.Context, req RatingRequest) (*RatingResult, error) {
	if req.Rating != segments.RatingGood && req.Rating != segments.RatingBad {
		return nil, &ValidationError{Field: "rating", Reason: `must be "good" or "bad"`}
	}
	if !geo.Valid(req.Coordinates.Start) || !geo.Valid(req.Coordinates.End) {
		return nil, &ValidationError{Field: "coordinates", Reason: "out of range"}
	}
	for _, p := range []geo.Point{req.Coordinates.Start, req.Coordinates.End} {
		if !s.region.Contains(p) {
			return nil, &GeographicBoundsError{Region: s.regionName, Lat: p.Lat, Lng: p.Lng}
		}
	}

	seg, err := s.store.SubmitRating(ctx, req.SegmentID, req.Coordinates, req.Rating)
	if err != nil {
		if errors.Is(err, segments.ErrStorageUnavailable) {
			s.logger.Warnw("rating applied in memory only", "segment", seg.ID, "error", err)
			return &RatingResult{Segment: seg, Durable: false}, nil
		}
		return nil, err
	}
	return &RatingResult{Segment: seg, Durable: true}, nil
}

// QuerySegments returns all rated segments intersecting the given bounds.
// Bounds that do not touch the service region are rejected like any other
// out-of-region coordinates.
func (s *RatingsService) QuerySegments(bounds geo.Bounds) ([]segments.RoadSegment, error) {
	if bounds.North <= bounds.South {
		return nil, &ValidationError{Field: "bounds", Reason: "north must exceed south"}
	}
	if bounds.East <= bounds.West {
		return nil, &ValidationError{Field: "bounds", Reason: "east must exceed west"}
	}
	if !bounds.Intersects(s.region) {
		return nil, &GeographicBoundsError{
			Region: s.regionName,
			Lat:    (bounds.North + bounds.South) / 2,
			Lng:    (bounds.East + bounds.West) / 2,
		}
	}
	return s.store.Query(bounds), nil
}
