// Package services implements the application layer: route selection and
// community rating submission, sitting between the HTTP API and the routing,
// scoring, and segment libraries.
package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saferoads/server/internal/cache"
	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/pathfinding"
	"github.com/saferoads/server/internal/lib/routing"
	"github.com/saferoads/server/internal/lib/scoring"
	"github.com/saferoads/server/internal/lib/segments"
)

const (
	// Combined score blend: safety dominates, extreme detours still penalized.
	safetyWeight = 0.7
	speedWeight  = 0.3

	// degradedSafetyScore is assigned to synthesized straight-line routes,
	// which cross unknown terrain and cannot be meaningfully scored.
	degradedSafetyScore = 50

	// badSegmentRadiusKm decides whether a bad segment "crosses" a route.
	badSegmentRadiusKm = 1.0

	// avoidanceOffsetKm is how far the perpendicular deviation waypoint is
	// pushed off the route during the avoidance pass.
	avoidanceOffsetKm = 0.5

	// maxAvoidanceWaypoints caps deviation waypoints per avoidance pass so the
	// re-request stays routable.
	maxAvoidanceWaypoints = 2

	// queryPadDeg widens the rated-segment query box around the request
	// endpoints so detour candidates still find their ratings.
	queryPadDeg = 0.5

	// graphSpeedKmh is the assumed average speed along waypoint-graph routes.
	graphSpeedKmh = 60.0

	// RouteTypeSafe tags results produced by a successful avoidance pass.
	RouteTypeSafe = "safe-route"
)

// RouteRequest is one route calculation request.
type RouteRequest struct {
	Start            geo.Point
	Destination      geo.Point
	PrioritizeSafety bool
}

// RouteResult is the selected route with its scores and rateable segmentation.
type RouteResult struct {
	Points          []geo.Point            `json:"points"`
	EncodedPolyline string                 `json:"encoded_polyline"`
	DistanceKm      float64                `json:"distance_km"`
	DurationMinutes float64                `json:"duration_minutes"`
	SafetyScore     int                    `json:"safety_score"`
	CombinedScore   float64                `json:"combined_score"`
	RouteType       string                 `json:"route_type"`
	Degraded        bool                   `json:"degraded"`
	Segments        []segments.RoadSegment `json:"segments"`
}

// RoutesDeps wires a RoutesService.
type RoutesDeps struct {
	Chain           *routing.Chain
	Engine          *pathfinding.Engine
	Store           *segments.Store
	Scorer          *scoring.Scorer
	Segmenter       *segments.Segmenter
	Cache           *cache.Cache
	Region          geo.Bounds
	RegionName      string
	MaxAlternatives int
	CacheTTL        time.Duration
	Logger          *zap.SugaredLogger
}

// RoutesService selects the best route for a request: it gathers candidates
// from the provider chain and the waypoint graph in parallel, scores each
// against community ratings, and optionally plans avoidance deviations around
// bad segments.
type RoutesService struct {
	chain           *routing.Chain
	engine          *pathfinding.Engine
	store           *segments.Store
	scorer          *scoring.Scorer
	segmenter       *segments.Segmenter
	cache           *cache.Cache
	region          geo.Bounds
	regionName      string
	maxAlternatives int
	cacheTTL        time.Duration
	logger          *zap.SugaredLogger
}

// NewRoutesService creates the route selection service.
func NewRoutesService(deps RoutesDeps) *RoutesService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	maxAlternatives := deps.MaxAlternatives
	if maxAlternatives < 1 {
		maxAlternatives = 3
	}
	segmenter := deps.Segmenter
	if segmenter == nil {
		segmenter = segments.NewSegmenter(segments.DefaultTargetLengthKm)
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = scoring.NewScorer()
	}
	return &RoutesService{
		chain:           deps.Chain,
		engine:          deps.Engine,
		store:           deps.Store,
		scorer:          scorer,
		segmenter:       segmenter,
		cache:           deps.Cache,
		region:          deps.Region,
		regionName:      deps.RegionName,
		maxAlternatives: maxAlternatives,
		cacheTTL:        deps.CacheTTL,
		logger:          logger,
	}
}

// SelectBestRoute validates the request, gathers and scores candidates, and
// returns the highest-scoring route. Requests outside the service region fail
// with a GeographicBoundsError before any provider is called.
func (s *RoutesService) SelectBestRoute(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	cacheKey := routeCacheKey(req)
	if s.cache != nil {
		var cached RouteResult
		if found, err := s.cache.Get(cacheKey, &cached); err == nil && found {
			return &cached, nil
		}
	}

	rated := s.ratedNear(req.Start, req.Destination)
	candidates := s.gatherCandidates(ctx, req, rated)
	if len(candidates) == 0 {
		return nil, routing.ErrNoRouteAvailable
	}

	best := s.pickBest(candidates, rated)
	routeType := best.candidate.Provider

	if req.PrioritizeSafety {
		if deviated, ok := s.avoidBadSegments(ctx, req, best, rated); ok {
			best = deviated
			routeType = RouteTypeSafe
		}
	}

	result := s.buildResult(best, routeType, rated)
	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(cacheKey, result, s.cacheTTL, "routes"); err != nil {
			s.logger.Warnw("failed to cache route result", "error", err)
		}
	}
	return result, nil
}

func (s *RoutesService) validate(req RouteRequest) error {
	if !geo.Valid(req.Start) {
		return &ValidationError{Field: "start", Reason: "coordinates out of range"}
	}
	if !geo.Valid(req.Destination) {
		return &ValidationError{Field: "destination", Reason: "coordinates out of range"}
	}
	if req.Start == req.Destination {
		return &ValidationError{Field: "destination", Reason: "must differ from start"}
	}
	if !s.region.Contains(req.Start) {
		return &GeographicBoundsError{Region: s.regionName, Lat: req.Start.Lat, Lng: req.Start.Lng}
	}
	if !s.region.Contains(req.Destination) {
		return &GeographicBoundsError{Region: s.regionName, Lat: req.Destination.Lat, Lng: req.Destination.Lng}
	}
	return nil
}

// ratedNear returns the community-rated segments around the request corridor.
// A nil store degrades to an empty-ratings world.
func (s *RoutesService) ratedNear(start, dest geo.Point) []segments.RoadSegment {
	if s.store == nil {
		return nil
	}
	box := geo.BoundsOf([]geo.Point{start, dest}).Pad(queryPadDeg)
	return s.store.Query(box)
}

// gatherCandidates runs the provider chain and the waypoint-graph search in
// parallel. The graph candidate is always included as a safety net even when
// providers succeed, so the selector can prefer it on safety grounds.
func (s *RoutesService) gatherCandidates(ctx context.Context, req RouteRequest, rated []segments.RoadSegment) []routing.Candidate {
	opts := routing.RouteOptions{
		PreferSafety: req.PrioritizeSafety,
		Alternatives: s.maxAlternatives,
	}

	var chainCands []routing.Candidate
	var graphCand *routing.Candidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.chain != nil {
			chainCands = s.chain.Candidates(gctx, req.Start, req.Destination, opts, rated)
		}
		return nil
	})
	g.Go(func() error {
		if s.engine == nil {
			return nil
		}
		path, err := s.engine.FindPath(gctx, req.Start, req.Destination, rated)
		if err != nil {
			s.logger.Debugw("waypoint-graph candidate unavailable", "error", err)
			return nil
		}
		graphCand = &routing.Candidate{
			Points:          path.Points,
			DistanceKm:      path.DistanceKm,
			DurationMinutes: path.DistanceKm / graphSpeedKmh * 60,
			Provider:        routing.ProviderAStar,
		}
		return nil
	})
	_ = g.Wait() // goroutines only report via the captured variables

	out := make([]routing.Candidate, 0, len(chainCands)+1)
	out = append(out, chainCands...)
	if graphCand != nil && !containsProvider(chainCands, routing.ProviderAStar) {
		out = append(out, *graphCand)
	}
	return out
}

func containsProvider(cands []routing.Candidate, provider string) bool {
	for _, c := range cands {
		if c.Provider == provider {
			return true
		}
	}
	return false
}

// scoredCandidate pairs a candidate with its computed scores.
type scoredCandidate struct {
	candidate routing.Candidate
	safety    int
	combined  float64
}

// score computes the safety and combined scores for one candidate.
// Straight-line synthesis gets a fixed lowered safety score since its
// geometry does not follow roads.
func (s *RoutesService) score(cand routing.Candidate, rated []segments.RoadSegment) scoredCandidate {
	safety := degradedSafetyScore
	if cand.Provider != routing.ProviderStraightLine {
		safety = s.scorer.Score(cand.Points, rated)
	}
	speed := math.Max(0, 100-cand.DurationMinutes/10)
	return scoredCandidate{
		candidate: cand,
		safety:    safety,
		combined:  safetyWeight*float64(safety) + speedWeight*speed,
	}
}

// pickBest scores all candidates and returns the highest combined score, with
// ties broken by lower duration.
func (s *RoutesService) pickBest(cands []routing.Candidate, rated []segments.RoadSegment) scoredCandidate {
	best := s.score(cands[0], rated)
	for _, cand := range cands[1:] {
		sc := s.score(cand, rated)
		if sc.combined > best.combined ||
			(sc.combined == best.combined && sc.candidate.DurationMinutes < best.candidate.DurationMinutes) {
			best = sc
		}
	}
	return best
}

// avoidBadSegments runs one avoidance pass: for each bad segment near the
// selected route it inserts a perpendicular deviation waypoint, re-requests a
// route through the augmented waypoint list, and keeps the deviation only if
// the combined score improves.
func (s *RoutesService) avoidBadSegments(ctx context.Context, req RouteRequest, current scoredCandidate, rated []segments.RoadSegment) (scoredCandidate, bool) {
	if s.chain == nil {
		return current, false
	}
	waypoints := s.deviationWaypoints(current.candidate.Points, rated)
	if len(waypoints) == 0 {
		return current, false
	}

	opts := routing.RouteOptions{
		PreferSafety: true,
		Via:          waypoints,
	}
	deviated, err := s.chain.GetRoute(ctx, req.Start, req.Destination, opts, rated)
	if err != nil {
		s.logger.Warnw("avoidance re-route failed, keeping original", "error", err)
		return current, false
	}

	sc := s.score(deviated, rated)
	if sc.combined <= current.combined {
		s.logger.Debugw("avoidance route not better, keeping original",
			"original", current.combined, "deviated", sc.combined)
		return current, false
	}
	return sc, true
}

// deviationWaypoints finds bad segments within badSegmentRadiusKm of the route
// and, for each, offsets a waypoint perpendicular to the route's local
// direction, on the side away from the bad segment.
func (s *RoutesService) deviationWaypoints(route []geo.Point, rated []segments.RoadSegment) []geo.Point {
	if len(route) < 2 {
		return nil
	}

	var waypoints []geo.Point
	for i := range rated {
		if rated[i].Rating != segments.RatingBad {
			continue
		}
		if len(waypoints) >= maxAvoidanceWaypoints {
			break
		}
		badMid := geo.Midpoint(rated[i].Coordinates.Start, rated[i].Coordinates.End)

		nearest, dist := nearestRouteIndex(route, badMid)
		if dist > badSegmentRadiusKm {
			continue
		}

		bearing := localBearing(route, nearest)
		left := geo.Offset(route[nearest], bearing-90, avoidanceOffsetKm)
		right := geo.Offset(route[nearest], bearing+90, avoidanceOffsetKm)
		if geo.Haversine(left, badMid) >= geo.Haversine(right, badMid) {
			waypoints = append(waypoints, left)
		} else {
			waypoints = append(waypoints, right)
		}
	}
	return waypoints
}

func nearestRouteIndex(route []geo.Point, p geo.Point) (int, float64) {
	nearest := 0
	dist := geo.Haversine(route[0], p)
	for i := 1; i < len(route); i++ {
		if d := geo.Haversine(route[i], p); d < dist {
			nearest = i
			dist = d
		}
	}
	return nearest, dist
}

// localBearing estimates the route's travel direction at index i.
func localBearing(route []geo.Point, i int) float64 {
	switch {
	case i+1 < len(route):
		return geo.Bearing(route[i], route[i+1])
	case i > 0:
		return geo.Bearing(route[i-1], route[i])
	default:
		return 0
	}
}

// buildResult assembles the response: the winning candidate, its rateable
// segmentation with community consensus overlaid, and the encoded polyline.
func (s *RoutesService) buildResult(best scoredCandidate, routeType string, rated []segments.RoadSegment) *RouteResult {
	segs := s.segmenter.Segment(best.candidate.Points)
	overlayRatings(segs, rated)

	return &RouteResult{
		Points:          best.candidate.Points,
		EncodedPolyline: geo.EncodePolyline(best.candidate.Points),
		DistanceKm:      best.candidate.DistanceKm,
		DurationMinutes: best.candidate.DurationMinutes,
		SafetyScore:     best.safety,
		CombinedScore:   best.combined,
		RouteType:       routeType,
		Degraded:        best.candidate.Degraded,
		Segments:        segs,
	}
}

// overlayRatings copies the community consensus onto freshly-cut route
// segments whose midpoints fall within the match radius of a rated segment.
func overlayRatings(segs []segments.RoadSegment, rated []segments.RoadSegment) {
	for i := range segs {
		mid := geo.Midpoint(segs[i].Coordinates.Start, segs[i].Coordinates.End)
		bestDist := badSegmentRadiusKm
		for j := range rated {
			ratedMid := geo.Midpoint(rated[j].Coordinates.Start, rated[j].Coordinates.End)
			if d := geo.Haversine(mid, ratedMid); d <= bestDist {
				bestDist = d
				segs[i].Rating = rated[j].Rating
				segs[i].RatingCount = rated[j].RatingCount
				segs[i].GoodRatingCount = rated[j].GoodRatingCount
				segs[i].BadRatingCount = rated[j].BadRatingCount
			}
		}
	}
}

func routeCacheKey(req RouteRequest) string {
	return fmt.Sprintf("route:%.5f,%.5f:%.5f,%.5f:safety=%t",
		req.Start.Lat, req.Start.Lng,
		req.Destination.Lat, req.Destination.Lng,
		req.PrioritizeSafety)
}
