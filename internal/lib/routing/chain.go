package routing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/pathfinding"
	"github.com/saferoads/server/internal/lib/segments"
)

const (
	// DefaultStepTimeout bounds each individual provider call.
	DefaultStepTimeout = 12 * time.Second
	// DefaultGlobalTimeout bounds the whole fallback chain so a hung provider
	// cannot stall the request past it.
	DefaultGlobalTimeout = 20 * time.Second

	// straightLineSpeedKmh is the assumed average speed for synthesized
	// straight-line routes.
	straightLineSpeedKmh = 40.0
	// astarSpeedKmh is the assumed average speed along waypoint-graph routes,
	// which follow trunk roads between junctions.
	astarSpeedKmh = 60.0
)

// Chain calls routing providers in priority order, falling back to the
// waypoint-graph search and finally to straight-line synthesis. For a valid
// start/destination pair it always produces at least one candidate: the
// explicit policy is to never show a blank result.
type Chain struct {
	providers     []Provider
	engine        *pathfinding.Engine
	stepTimeout   time.Duration
	globalTimeout time.Duration
	logger        *zap.SugaredLogger
}

// NewChain builds a fallback chain over the given providers (highest priority
// first) with the pathfinding engine as safety net.
func NewChain(providers []Provider, engine *pathfinding.Engine, stepTimeout, globalTimeout time.Duration, logger *zap.SugaredLogger) *Chain {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	if globalTimeout <= 0 {
		globalTimeout = DefaultGlobalTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Chain{
		providers:     providers,
		engine:        engine,
		stepTimeout:   stepTimeout,
		globalTimeout: globalTimeout,
		logger:        logger,
	}
}

// GetRoute returns the single best-priority candidate for the request.
func (c *Chain) GetRoute(ctx context.Context, start, dest geo.Point, opts RouteOptions, rated []segments.RoadSegment) (Candidate, error) {
	candidates := c.Candidates(ctx, start, dest, opts, rated)
	if len(candidates) == 0 {
		return Candidate{}, ErrNoRouteAvailable
	}
	return candidates[0], nil
}

// Candidates walks the fallback chain and returns the candidates of the first
// step that succeeds. Each step runs under its own timeout derived from the
// request context, so caller cancellation propagates to in-flight calls.
func (c *Chain) Candidates(ctx context.Context, start, dest geo.Point, opts RouteOptions, rated []segments.RoadSegment) []Candidate {
	ctx, cancel := context.WithTimeout(ctx, c.globalTimeout)
	defer cancel()

	for _, p := range c.providers {
		candidates, err := c.callProvider(ctx, p, start, dest, opts)
		if err != nil {
			c.logger.Warnw("routing provider failed, advancing chain",
				"provider", p.Name(), "error", err)
			continue
		}
		return candidates
	}

	if c.engine != nil {
		if cand, err := c.astarFallback(ctx, start, dest, opts, rated); err == nil {
			return []Candidate{cand}
		} else {
			c.logger.Warnw("waypoint-graph fallback failed", "error", err)
		}
	}

	c.logger.Warnw("all routing steps failed, synthesizing straight-line route",
		"start", start, "dest", dest)
	return []Candidate{StraightLine(start, dest)}
}

func (c *Chain) callProvider(ctx context.Context, p Provider, start, dest geo.Point, opts RouteOptions) ([]Candidate, error) {
	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	candidates, err := p.Route(stepCtx, start, dest, opts)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	if len(candidates) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrEmptyResult}
	}
	return candidates, nil
}

// astarFallback routes over the static waypoint graph, visiting any via
// waypoints in order by concatenating per-leg searches.
func (c *Chain) astarFallback(ctx context.Context, start, dest geo.Point, opts RouteOptions, rated []segments.RoadSegment) (Candidate, error) {
	stops := make([]geo.Point, 0, len(opts.Via)+2)
	stops = append(stops, start)
	stops = append(stops, opts.Via...)
	stops = append(stops, dest)

	var points []geo.Point
	for i := 1; i < len(stops); i++ {
		leg, err := c.engine.FindPath(ctx, stops[i-1], stops[i], rated)
		if err != nil {
			return Candidate{}, err
		}
		if len(points) > 0 && len(leg.Points) > 0 {
			leg.Points = leg.Points[1:] // legs share the junction point
		}
		points = append(points, leg.Points...)
	}

	distance := geo.PathLength(points)
	return Candidate{
		Points:          points,
		DistanceKm:      distance,
		DurationMinutes: distance / astarSpeedKmh * 60,
		Provider:        ProviderAStar,
		Degraded:        true,
	}, nil
}

// StraightLine synthesizes the terminal fallback: start, three evenly-spaced
// interpolated midpoints, destination. This step cannot fail, which is what
// makes ErrNoRouteAvailable unreachable for well-formed requests.
func StraightLine(start, dest geo.Point) Candidate {
	points := []geo.Point{
		start,
		geo.Interpolate(start, dest, 0.25),
		geo.Interpolate(start, dest, 0.50),
		geo.Interpolate(start, dest, 0.75),
		dest,
	}
	distance := geo.Haversine(start, dest)
	return Candidate{
		Points:          points,
		DistanceKm:      distance,
		DurationMinutes: distance / straightLineSpeedKmh * 60,
		Provider:        ProviderStraightLine,
		Degraded:        true,
	}
}
