package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/saferoads/server/internal/lib/geo"
)

// Provider names, also used as route provenance tags.
const (
	ProviderGraphHopper  = "graphhopper"
	ProviderOSRM         = "osrm"
	ProviderAStar        = "astar"
	ProviderStraightLine = "straight-line"
)

var (
	// ErrNoRouteAvailable is surfaced only when every fallback step fails.
	// In practice straight-line synthesis cannot fail, so well-formed requests
	// never see this.
	ErrNoRouteAvailable = errors.New("no route available from any provider")

	// ErrEmptyResult marks a provider response that parsed but contained no
	// routes. Treated as a provider failure by the chain.
	ErrEmptyResult = errors.New("provider returned no routes")
)

// ProviderError wraps a failure from one external routing provider. The chain
// recovers from these locally by advancing to the next step; they are never
// surfaced to API callers.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RouteOptions tune one routing request.
type RouteOptions struct {
	// PreferSafety requests the provider's recommended preference over the
	// fastest one, where the provider supports a preference at all.
	PreferSafety bool
	// Alternatives is the maximum number of route candidates wanted. Zero or
	// one requests a single route.
	Alternatives int
	// Via are intermediate waypoints the route must pass through, in order.
	// Used by the avoidance pass to steer around bad segments.
	Via []geo.Point
}

// Candidate is the result of one routing attempt. It is created per request
// and discarded after the response is built, never persisted.
type Candidate struct {
	Points          []geo.Point
	DistanceKm      float64
	DurationMinutes float64
	Provider        string
	// Degraded marks last-resort synthesis so callers can signal reduced
	// confidence to the user.
	Degraded bool
}

// Provider is one external routing backend returning normalized candidates.
type Provider interface {
	Name() string
	Route(ctx context.Context, start, dest geo.Point, opts RouteOptions) ([]Candidate, error)
}
