package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/pathfinding"
)

var (
	tunis = geo.Point{Lat: 36.8065, Lng: 10.1815}
	sfax  = geo.Point{Lat: 34.7406, Lng: 10.7603}
)

// stubProvider scripts one provider's behaviour for chain tests.
type stubProvider struct {
	name       string
	candidates []Candidate
	err        error
	hang       bool
	calls      int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Route(ctx context.Context, start, dest geo.Point, opts RouteOptions) ([]Candidate, error) {
	s.calls++
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

func providerCandidate(name string) Candidate {
	return Candidate{
		Points:          []geo.Point{tunis, sfax},
		DistanceKm:      240,
		DurationMinutes: 150,
		Provider:        name,
	}
}

func TestChain_PrimarySucceeds(t *testing.T) {
	primary := &stubProvider{name: ProviderGraphHopper, candidates: []Candidate{providerCandidate(ProviderGraphHopper)}}
	secondary := &stubProvider{name: ProviderOSRM, candidates: []Candidate{providerCandidate(ProviderOSRM)}}
	chain := NewChain([]Provider{primary, secondary}, nil, 0, 0, nil)

	got, err := chain.GetRoute(context.Background(), tunis, sfax, RouteOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderGraphHopper, got.Provider)
	assert.False(t, got.Degraded)
	assert.Zero(t, secondary.calls, "secondary must not be called when primary succeeds")
}

func TestChain_FallsBackToSecondary(t *testing.T) {
	primary := &stubProvider{name: ProviderGraphHopper, err: errors.New("503 service unavailable")}
	secondary := &stubProvider{name: ProviderOSRM, candidates: []Candidate{providerCandidate(ProviderOSRM)}}
	chain := NewChain([]Provider{primary, secondary}, nil, 0, 0, nil)

	got, err := chain.GetRoute(context.Background(), tunis, sfax, RouteOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOSRM, got.Provider)
	assert.Equal(t, 1, primary.calls)
}

func TestChain_EmptyResultAdvancesChain(t *testing.T) {
	primary := &stubProvider{name: ProviderGraphHopper, candidates: nil}
	secondary := &stubProvider{name: ProviderOSRM, candidates: []Candidate{providerCandidate(ProviderOSRM)}}
	chain := NewChain([]Provider{primary, secondary}, nil, 0, 0, nil)

	got, err := chain.GetRoute(context.Background(), tunis, sfax, RouteOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOSRM, got.Provider)
}

func TestChain_AStarFallback(t *testing.T) {
	primary := &stubProvider{name: ProviderGraphHopper, err: errors.New("timeout")}
	secondary := &stubProvider{name: ProviderOSRM, err: errors.New("timeout")}
	engine := pathfinding.NewEngine(pathfinding.DefaultGraph())
	chain := NewChain([]Provider{primary, secondary}, engine, 0, 0, nil)

	got, err := chain.GetRoute(context.Background(), tunis, sfax, RouteOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderAStar, got.Provider)
	assert.True(t, got.Degraded)
	assert.GreaterOrEqual(t, got.DistanceKm, geo.Haversine(tunis, sfax))
}

func TestChain_StraightLineTerminalFallback(t *testing.T) {
	// Both providers down and a graph with no path between the snapped nodes.
	primary := &stubProvider{name: ProviderGraphHopper, err: errors.New("down")}
	secondary := &stubProvider{name: ProviderOSRM, err: errors.New("down")}
	g := pathfinding.NewGraph()
	g.AddNode("north", geo.Point{Lat: 36.8, Lng: 10.18})
	g.AddNode("south", geo.Point{Lat: 34.74, Lng: 10.76})
	chain := NewChain([]Provider{primary, secondary}, pathfinding.NewEngine(g), 0, 0, nil)

	got, err := chain.GetRoute(context.Background(), tunis, sfax, RouteOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderStraightLine, got.Provider)
	assert.True(t, got.Degraded)
	require.Len(t, got.Points, 5)
	assert.Equal(t, tunis, got.Points[0])
	assert.Equal(t, sfax, got.Points[4])
	assert.InDelta(t, geo.Haversine(tunis, sfax), got.DistanceKm, 1e-9)
}

func TestChain_HungProviderIsTimedOut(t *testing.T) {
	hung := &stubProvider{name: ProviderGraphHopper, hang: true}
	secondary := &stubProvider{name: ProviderOSRM, candidates: []Candidate{providerCandidate(ProviderOSRM)}}
	chain := NewChain([]Provider{hung, secondary}, nil, 50*time.Millisecond, time.Second, nil)

	start := time.Now()
	got, err := chain.GetRoute(context.Background(), tunis, sfax, RouteOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOSRM, got.Provider)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestChain_CallerCancellationPropagates(t *testing.T) {
	hung := &stubProvider{name: ProviderGraphHopper, hang: true}
	chain := NewChain([]Provider{hung}, nil, time.Minute, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	got, err := chain.GetRoute(ctx, tunis, sfax, RouteOptions{}, nil)
	// Cancellation still ends in the straight-line fallback, not an error.
	require.NoError(t, err)
	assert.Equal(t, ProviderStraightLine, got.Provider)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStraightLine(t *testing.T) {
	cand := StraightLine(tunis, sfax)

	require.Len(t, cand.Points, 5)
	assert.Equal(t, geo.Interpolate(tunis, sfax, 0.5), cand.Points[2])
	assert.Equal(t, ProviderStraightLine, cand.Provider)
	assert.True(t, cand.Degraded)

	// 40 km/h assumed speed.
	assert.InDelta(t, cand.DistanceKm/40*60, cand.DurationMinutes, 1e-9)
}

func TestProviderError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ProviderError{Provider: ProviderOSRM, Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "osrm")

	var pe *ProviderError
	assert.ErrorAs(t, error(err), &pe)
}
