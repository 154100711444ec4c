// Package graphhopper implements the primary external routing provider.
package graphhopper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/routing"
)

const defaultBaseURL = "https://graphhopper.com/api/1"

// maxErrorBody bounds how much of an error response is read for diagnostics.
// Providers occasionally return HTML error pages instead of JSON.
const maxErrorBody = 2048

// Config holds GraphHopper client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client calls the GraphHopper Directions API and normalizes its responses
// into routing candidates.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a GraphHopper client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = routing.DefaultStepTimeout
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the provider in provenance tags.
func (c *Client) Name() string {
	return routing.ProviderGraphHopper
}

// Route requests a car route. Alternatives are requested through the
// alternative_route algorithm; GraphHopper has no safety preference, so
// PreferSafety only widens the candidate set for downstream scoring.
func (c *Client) Route(ctx context.Context, start, dest geo.Point, opts routing.RouteOptions) ([]routing.Candidate, error) {
	params := url.Values{}
	params.Add("point", fmt.Sprintf("%f,%f", start.Lat, start.Lng))
	for _, via := range opts.Via {
		params.Add("point", fmt.Sprintf("%f,%f", via.Lat, via.Lng))
	}
	params.Add("point", fmt.Sprintf("%f,%f", dest.Lat, dest.Lng))
	params.Set("profile", "car")
	params.Set("points_encoded", "true")
	params.Set("key", c.apiKey)
	// Alternative routes are only supported for two-point requests.
	if opts.Alternatives > 1 && len(opts.Via) == 0 {
		params.Set("algorithm", "alternative_route")
		params.Set("alternative_route.max_paths", fmt.Sprintf("%d", opts.Alternatives))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/route?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("graphhopper error %d: %s", resp.StatusCode, string(body))
	}

	var response routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Paths) == 0 {
		return nil, routing.ErrEmptyResult
	}

	candidates := make([]routing.Candidate, 0, len(response.Paths))
	for _, path := range response.Paths {
		points, err := geo.DecodePolyline(path.Points)
		if err != nil {
			return nil, fmt.Errorf("invalid polyline in response: %w", err)
		}
		candidates = append(candidates, routing.Candidate{
			Points:          points,
			DistanceKm:      path.Distance / 1000,
			DurationMinutes: float64(path.Time) / 1000 / 60,
			Provider:        c.Name(),
		})
	}
	return candidates, nil
}

// routeResponse is the subset of the GraphHopper response the server uses.
type routeResponse struct {
	Paths []routePath `json:"paths"`
}

type routePath struct {
	Distance float64 `json:"distance"` // meters
	Time     int64   `json:"time"`     // milliseconds
	Points   string  `json:"points"`   // encoded polyline
}
