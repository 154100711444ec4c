package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/routing"
	"github.com/saferoads/server/internal/lib/segments"
	"github.com/saferoads/server/internal/services"
)

var testRegion = geo.Bounds{North: 37.6, South: 30.2, East: 11.6, West: 7.5}

type stubProvider struct {
	candidates []routing.Candidate
}

func (s *stubProvider) Name() string { return routing.ProviderGraphHopper }

func (s *stubProvider) Route(ctx context.Context, start, dest geo.Point, opts routing.RouteOptions) ([]routing.Candidate, error) {
	return s.candidates, nil
}

func testCandidate() routing.Candidate {
	points := []geo.Point{
		{Lat: 36.80, Lng: 10.18},
		{Lat: 36.70, Lng: 10.30},
		{Lat: 36.60, Lng: 10.40},
	}
	return routing.Candidate{
		Points:          points,
		DistanceKm:      geo.PathLength(points),
		DurationMinutes: 30,
		Provider:        routing.ProviderGraphHopper,
	}
}

func newTestServer(t *testing.T) (*Server, *segments.Store) {
	t.Helper()

	store := segments.NewStore(segments.StoreConfig{}, nil, nil)
	chain := routing.NewChain([]routing.Provider{&stubProvider{candidates: []routing.Candidate{testCandidate()}}},
		nil, time.Second, 2*time.Second, nil)

	routesSvc := services.NewRoutesService(services.RoutesDeps{
		Chain:      chain,
		Store:      store,
		Region:     testRegion,
		RegionName: "Tunisia",
	})
	ratingsSvc := services.NewRatingsService(store, testRegion, "Tunisia", nil)
	handlers := NewHandlers(routesSvc, ratingsSvc, store, "Tunisia", nil)

	return NewServer(0, handlers, []string{"*"}, nil), store
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestCalculateRoute(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/routes/calculate", map[string]interface{}{
		"start":       map[string]float64{"lat": 36.80, "lng": 10.18},
		"destination": map[string]float64{"lat": 36.60, "lng": 10.40},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp calculateRouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, routing.ProviderGraphHopper, resp.RouteType)
	assert.Len(t, resp.Route, 3)
	assert.NotEmpty(t, resp.EncodedPolyline)
	assert.Equal(t, 75, resp.SafetyScore, "unrated corridor scores neutral")
	assert.False(t, resp.Degraded)
	assert.NotEmpty(t, resp.Segments)
}

func TestCalculateRoute_MalformedBody(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/routes/calculate", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_body", resp.Error.Code)
}

func TestCalculateRoute_OutOfRegion(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/routes/calculate", map[string]interface{}{
		"start":       map[string]float64{"lat": 48.85, "lng": 2.35},
		"destination": map[string]float64{"lat": 36.60, "lng": 10.40},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "out_of_region", resp.Error.Code)
}

func TestSubmitRating(t *testing.T) {
	server, store := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/ratings", map[string]interface{}{
		"coordinates": map[string]interface{}{
			"start": map[string]float64{"lat": 36.80, "lng": 10.18},
			"end":   map[string]float64{"lat": 36.81, "lng": 10.18},
		},
		"rating": "bad",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp submitRatingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Durable)
	assert.Equal(t, segments.RatingBad, resp.Segment.Rating)
	assert.Equal(t, 1, store.Len())
}

func TestSubmitRating_InvalidVerdict(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/ratings", map[string]interface{}{
		"coordinates": map[string]interface{}{
			"start": map[string]float64{"lat": 36.80, "lng": 10.18},
			"end":   map[string]float64{"lat": 36.81, "lng": 10.18},
		},
		"rating": "terrible",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuerySegments(t *testing.T) {
	server, store := newTestServer(t)
	_, err := store.SubmitRating(context.Background(), "", segments.SegmentCoords{
		Start: geo.Point{Lat: 36.80, Lng: 10.18},
		End:   geo.Point{Lat: 36.81, Lng: 10.18},
	}, segments.RatingGood)
	require.NoError(t, err)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/ratings?north=37&south=36.5&east=10.5&west=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp querySegmentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Segments, 1)
	assert.Equal(t, segments.RatingGood, resp.Segments[0].Rating)
}

func TestQuerySegments_MissingBounds(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/ratings?north=37&south=36.5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuerySegments_EmptyAreaReturnsEmptyList(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/ratings?north=31&south=30.5&east=10.5&west=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"segments":[],"count":0}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Tunisia", resp.Region)
}

func TestMiddleware_RequestIDAndCORS(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodDelete, "/api/v1/ratings", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
