// Package api exposes the HTTP interface: route calculation, rating
// submission, and rated-segment queries.
package api

import (
	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/segments"
	"github.com/saferoads/server/internal/services"
)

// calculateRouteRequest is the body of POST /api/v1/routes/calculate.
type calculateRouteRequest struct {
	Start            geo.Point `json:"start"`
	Destination      geo.Point `json:"destination"`
	PrioritizeSafety bool      `json:"prioritize_safety"`
}

// calculateRouteResponse mirrors services.RouteResult for API consumers.
type calculateRouteResponse struct {
	Route            []geo.Point            `json:"route"`
	EncodedPolyline  string                 `json:"encoded_polyline"`
	DistanceKm       float64                `json:"distance_km"`
	EstimatedTimeMin float64                `json:"estimated_time_min"`
	SafetyScore      int                    `json:"safety_score"`
	CombinedScore    float64                `json:"combined_score"`
	RouteType        string                 `json:"route_type"`
	Degraded         bool                   `json:"degraded"`
	Segments         []segments.RoadSegment `json:"segments"`
}

func toRouteResponse(r *services.RouteResult) calculateRouteResponse {
	return calculateRouteResponse{
		Route:            r.Points,
		EncodedPolyline:  r.EncodedPolyline,
		DistanceKm:       r.DistanceKm,
		EstimatedTimeMin: r.DurationMinutes,
		SafetyScore:      r.SafetyScore,
		CombinedScore:    r.CombinedScore,
		RouteType:        r.RouteType,
		Degraded:         r.Degraded,
		Segments:         r.Segments,
	}
}

// submitRatingRequest is the body of POST /api/v1/ratings.
type submitRatingRequest struct {
	SegmentID   string                 `json:"segment_id"`
	Coordinates segments.SegmentCoords `json:"coordinates"`
	Rating      segments.Rating        `json:"rating"`
}

// submitRatingResponse returns the updated segment after a rating.
type submitRatingResponse struct {
	Segment segments.RoadSegment `json:"segment"`
	Durable bool                 `json:"durable"`
}

// querySegmentsResponse is the body of GET /api/v1/ratings.
type querySegmentsResponse struct {
	Segments []segments.RoadSegment `json:"segments"`
	Count    int                    `json:"count"`
}

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status        string `json:"status"`
	Region        string `json:"region"`
	Segments      int    `json:"segments"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
