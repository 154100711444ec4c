package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoads/server/internal/cache"
	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/routing"
	"github.com/saferoads/server/internal/lib/segments"
)

var testRegion = geo.Bounds{North: 37.6, South: 30.2, East: 11.6, West: 7.5}

// stubProvider scripts provider behaviour for service tests. When deviated is
// set it is returned for any request carrying via waypoints.
type stubProvider struct {
	candidates []routing.Candidate
	deviated   []routing.Candidate
	err        error
	calls      int
}

func (s *stubProvider) Name() string { return routing.ProviderGraphHopper }

func (s *stubProvider) Route(ctx context.Context, start, dest geo.Point, opts routing.RouteOptions) ([]routing.Candidate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(opts.Via) > 0 && s.deviated != nil {
		return s.deviated, nil
	}
	return s.candidates, nil
}

// corridor builds a due-north polyline at the given longitude with points
// every ~1.1 km starting at lat 36.0.
func corridor(lng float64, points int) []geo.Point {
	route := make([]geo.Point, points)
	for i := range route {
		route[i] = geo.Point{Lat: 36.0 + float64(i)*0.01, Lng: lng}
	}
	return route
}

// rateCorridor submits one verdict per ~1.1 km stretch of the corridor.
func rateCorridor(t *testing.T, store *segments.Store, lng float64, count int, verdict segments.Rating) {
	t.Helper()
	for i := 0; i < count; i++ {
		coords := segments.SegmentCoords{
			Start: geo.Point{Lat: 36.0 + float64(i)*0.01, Lng: lng},
			End:   geo.Point{Lat: 36.0 + float64(i+1)*0.01, Lng: lng},
		}
		_, err := store.SubmitRating(context.Background(), "", coords, verdict)
		require.NoError(t, err)
	}
}

func newService(t *testing.T, provider routing.Provider, store *segments.Store, c *cache.Cache) *RoutesService {
	t.Helper()
	chain := routing.NewChain([]routing.Provider{provider}, nil, time.Second, 2*time.Second, nil)
	return NewRoutesService(RoutesDeps{
		Chain:      chain,
		Store:      store,
		Cache:      c,
		CacheTTL:   time.Minute,
		Region:     testRegion,
		RegionName: "Tunisia",
	})
}

func candidate(points []geo.Point, durationMin float64) routing.Candidate {
	return routing.Candidate{
		Points:          points,
		DistanceKm:      geo.PathLength(points),
		DurationMinutes: durationMin,
		Provider:        routing.ProviderGraphHopper,
	}
}

func TestSelectBestRoute_SafetyOutweighsSpeed(t *testing.T) {
	store := segments.NewStore(segments.StoreConfig{}, nil, nil)
	rateCorridor(t, store, 10.0, 9, segments.RatingGood)
	rateCorridor(t, store, 10.2, 9, segments.RatingBad)

	slowSafe := candidate(corridor(10.0, 10), 60)
	fastRisky := candidate(corridor(10.2, 10), 40)
	provider := &stubProvider{candidates: []routing.Candidate{fastRisky, slowSafe}}

	svc := newService(t, provider, store, nil)
	result, err := svc.SelectBestRoute(context.Background(), RouteRequest{
		Start:       geo.Point{Lat: 36.0, Lng: 10.0},
		Destination: geo.Point{Lat: 36.09, Lng: 10.0},
	})
	require.NoError(t, err)

	// Safe corridor scores 100, risky one 0; 70/30 weighting makes the
	// 20 extra minutes irrelevant.
	assert.Equal(t, 100, result.SafetyScore)
	assert.Equal(t, slowSafe.Points, result.Points)
	assert.Equal(t, routing.ProviderGraphHopper, result.RouteType)
	assert.False(t, result.Degraded)
}

func TestSelectBestRoute_FasterWinsWhenEquallySafe(t *testing.T) {
	// No ratings: both candidates score the neutral 75, so the combined
	// scores differ only through the speed component.
	store := segments.NewStore(segments.StoreConfig{}, nil, nil)
	slow := candidate(corridor(10.0, 10), 60)
	fast := candidate(corridor(10.2, 10), 40)
	provider := &stubProvider{candidates: []routing.Candidate{slow, fast}}

	svc := newService(t, provider, store, nil)
	result, err := svc.SelectBestRoute(context.Background(), RouteRequest{
		Start:       geo.Point{Lat: 36.0, Lng: 10.0},
		Destination: geo.Point{Lat: 36.09, Lng: 10.0},
	})
	require.NoError(t, err)
	assert.Equal(t, fast.Points, result.Points)
}

func TestSelectBestRoute_Validation(t *testing.T) {
	svc := newService(t, &stubProvider{}, segments.NewStore(segments.StoreConfig{}, nil, nil), nil)

	tests := []struct {
		name string
		req  RouteRequest
		want error
	}{
		{
			"start out of range",
			RouteRequest{Start: geo.Point{Lat: 95, Lng: 10}, Destination: geo.Point{Lat: 36, Lng: 10}},
			&ValidationError{},
		},
		{
			"same start and destination",
			RouteRequest{Start: geo.Point{Lat: 36, Lng: 10}, Destination: geo.Point{Lat: 36, Lng: 10}},
			&ValidationError{},
		},
		{
			"destination outside region",
			RouteRequest{Start: geo.Point{Lat: 36, Lng: 10}, Destination: geo.Point{Lat: 48.85, Lng: 2.35}},
			&GeographicBoundsError{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SelectBestRoute(context.Background(), tc.req)
			require.Error(t, err)
			switch tc.want.(type) {
			case *ValidationError:
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
			case *GeographicBoundsError:
				var ge *GeographicBoundsError
				assert.ErrorAs(t, err, &ge)
			}
		})
	}
}

func TestSelectBestRoute_OutOfBoundsSkipsProviders(t *testing.T) {
	provider := &stubProvider{candidates: []routing.Candidate{candidate(corridor(10.0, 10), 40)}}
	svc := newService(t, provider, segments.NewStore(segments.StoreConfig{}, nil, nil), nil)

	_, err := svc.SelectBestRoute(context.Background(), RouteRequest{
		Start:       geo.Point{Lat: 48.85, Lng: 2.35},
		Destination: geo.Point{Lat: 36, Lng: 10},
	})
	require.Error(t, err)
	assert.Zero(t, provider.calls, "providers must not be called for out-of-region requests")
}

func TestSelectBestRoute_CachesResults(t *testing.T) {
	provider := &stubProvider{candidates: []routing.Candidate{candidate(corridor(10.0, 10), 40)}}
	svc := newService(t, provider, segments.NewStore(segments.StoreConfig{}, nil, nil), cache.New())

	req := RouteRequest{
		Start:       geo.Point{Lat: 36.0, Lng: 10.0},
		Destination: geo.Point{Lat: 36.09, Lng: 10.0},
	}
	first, err := svc.SelectBestRoute(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.SelectBestRoute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls, "second request should be served from cache")
	assert.Equal(t, first.Points, second.Points)
	assert.Equal(t, first.SafetyScore, second.SafetyScore)
}

func TestSelectBestRoute_DegradedStraightLine(t *testing.T) {
	provider := &stubProvider{err: context.DeadlineExceeded}
	svc := newService(t, provider, segments.NewStore(segments.StoreConfig{}, nil, nil), nil)

	result, err := svc.SelectBestRoute(context.Background(), RouteRequest{
		Start:       geo.Point{Lat: 36.8065, Lng: 10.1815},
		Destination: geo.Point{Lat: 34.7406, Lng: 10.7603},
	})
	require.NoError(t, err, "a well-formed in-bounds request never returns a blank result")

	assert.Equal(t, routing.ProviderStraightLine, result.RouteType)
	assert.True(t, result.Degraded)
	assert.Equal(t, degradedSafetyScore, result.SafetyScore)
	require.Len(t, result.Points, 5)
}

func TestSelectBestRoute_AvoidancePass(t *testing.T) {
	store := segments.NewStore(segments.StoreConfig{}, nil, nil)
	rateCorridor(t, store, 10.0, 9, segments.RatingBad)

	risky := candidate(corridor(10.0, 10), 40)
	// The deviated corridor sits ~4.5 km west, clear of the bad ratings.
	detour := candidate(corridor(10.05, 10), 45)
	provider := &stubProvider{
		candidates: []routing.Candidate{risky},
		deviated:   []routing.Candidate{detour},
	}

	svc := newService(t, provider, store, nil)
	result, err := svc.SelectBestRoute(context.Background(), RouteRequest{
		Start:            geo.Point{Lat: 36.0, Lng: 10.0},
		Destination:      geo.Point{Lat: 36.09, Lng: 10.0},
		PrioritizeSafety: true,
	})
	require.NoError(t, err)

	assert.Equal(t, RouteTypeSafe, result.RouteType)
	assert.Equal(t, detour.Points, result.Points)
	assert.Greater(t, result.SafetyScore, 50)
}

func TestSelectBestRoute_AvoidanceKeepsOriginalWhenNotBetter(t *testing.T) {
	store := segments.NewStore(segments.StoreConfig{}, nil, nil)
	rateCorridor(t, store, 10.0, 9, segments.RatingBad)

	risky := candidate(corridor(10.0, 10), 40)
	// The "detour" runs through the same bad corridor but takes longer.
	worse := candidate(corridor(10.0, 10), 90)
	provider := &stubProvider{
		candidates: []routing.Candidate{risky},
		deviated:   []routing.Candidate{worse},
	}

	svc := newService(t, provider, store, nil)
	result, err := svc.SelectBestRoute(context.Background(), RouteRequest{
		Start:            geo.Point{Lat: 36.0, Lng: 10.0},
		Destination:      geo.Point{Lat: 36.09, Lng: 10.0},
		PrioritizeSafety: true,
	})
	require.NoError(t, err)

	assert.Equal(t, routing.ProviderGraphHopper, result.RouteType)
	assert.Equal(t, risky.Points, result.Points)
}

func TestSelectBestRoute_SegmentsCarryConsensus(t *testing.T) {
	store := segments.NewStore(segments.StoreConfig{}, nil, nil)
	rateCorridor(t, store, 10.0, 9, segments.RatingBad)

	provider := &stubProvider{candidates: []routing.Candidate{candidate(corridor(10.0, 10), 40)}}
	svc := newService(t, provider, store, nil)

	result, err := svc.SelectBestRoute(context.Background(), RouteRequest{
		Start:       geo.Point{Lat: 36.0, Lng: 10.0},
		Destination: geo.Point{Lat: 36.09, Lng: 10.0},
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Segments)
	for _, seg := range result.Segments {
		assert.Equal(t, segments.RatingBad, seg.Rating, "segment %s should carry the community consensus", seg.ID)
	}
	assert.NotEmpty(t, result.EncodedPolyline)
}

func TestScore_CombinedFormula(t *testing.T) {
	svc := newService(t, &stubProvider{}, nil, nil)

	// 60 min with a perfectly rated corridor vs 40 min through a bad one.
	store := segments.NewStore(segments.StoreConfig{}, nil, nil)
	rateCorridor(t, store, 10.0, 9, segments.RatingGood)
	rated := store.Query(testRegion)

	safe := svc.score(candidate(corridor(10.0, 10), 60), rated)
	assert.Equal(t, 100, safe.safety)
	assert.InDelta(t, 0.7*100+0.3*94, safe.combined, 1e-9)

	// Straight-line synthesis always gets the fixed degraded score.
	straight := routing.StraightLine(geo.Point{Lat: 36, Lng: 10}, geo.Point{Lat: 36.5, Lng: 10})
	sc := svc.score(straight, rated)
	assert.Equal(t, degradedSafetyScore, sc.safety)
}
