// Package osrm implements the secondary routing provider backed by an OSRM
// instance (public demo server or self-hosted).
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/routing"
)

const defaultBaseURL = "https://router.project-osrm.org"

const maxErrorBody = 2048

// Config holds OSRM client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the OSRM HTTP API and normalizes its responses into routing
// candidates.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an OSRM client.
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
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the provider in provenance tags.
func (c *Client) Name() string {
	return routing.ProviderOSRM
}

// Route requests a driving route. OSRM coordinates go lng-first in the path.
func (c *Client) Route(ctx context.Context, start, dest geo.Point, opts routing.RouteOptions) ([]routing.Candidate, error) {
	coords := make([]string, 0, len(opts.Via)+2)
	coords = append(coords, fmt.Sprintf("%f,%f", start.Lng, start.Lat))
	for _, via := range opts.Via {
		coords = append(coords, fmt.Sprintf("%f,%f", via.Lng, via.Lat))
	}
	coords = append(coords, fmt.Sprintf("%f,%f", dest.Lng, dest.Lat))

	params := url.Values{}
	params.Set("overview", "full")
	params.Set("geometries", "polyline")
	// OSRM rejects alternatives on multi-leg requests.
	if opts.Alternatives > 1 && len(opts.Via) == 0 {
		params.Set("alternatives", "true")
	}

	endpoint := fmt.Sprintf("%s/route/v1/driving/%s?%s", c.baseURL, strings.Join(coords, ";"), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("osrm error %d: %s", resp.StatusCode, string(body))
	}

	// OSRM reports request-level failures (NoRoute, InvalidQuery) with 4xx
	// statuses and a structured code, so decode before rejecting.
	var response routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Code != "Ok" {
		return nil, fmt.Errorf("osrm returned code %q: %s", response.Code, response.Message)
	}
	if len(response.Routes) == 0 {
		return nil, routing.ErrEmptyResult
	}

	candidates := make([]routing.Candidate, 0, len(response.Routes))
	for _, route := range response.Routes {
		points, err := geo.DecodePolyline(route.Geometry)
		if err != nil {
			return nil, fmt.Errorf("invalid polyline in response: %w", err)
		}
		candidates = append(candidates, routing.Candidate{
			Points:          points,
			DistanceKm:      route.Distance / 1000,
			DurationMinutes: route.Duration / 60,
			Provider:        c.Name(),
		})
	}
	return candidates, nil
}

// routeResponse is the subset of the OSRM response the server uses.
type routeResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
	Geometry string  `json:"geometry"` // encoded polyline
}
