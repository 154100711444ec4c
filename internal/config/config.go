// Package config loads server configuration from defaults, an optional YAML
// file, and SAFEROADS_ environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/saferoads/server/internal/lib/geo"
)

const envPrefix = "SAFEROADS_"

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Region    RegionConfig    `koanf:"region"`
	Providers ProvidersConfig `koanf:"providers"`
	Routing   RoutingConfig   `koanf:"routing"`
	Segments  SegmentsConfig  `koanf:"segments"`
	Graph     GraphConfig     `koanf:"graph"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `koanf:"port"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// RegionConfig bounds the service area. Requests outside it are rejected.
type RegionConfig struct {
	Name  string  `koanf:"name"`
	North float64 `koanf:"north"`
	South float64 `koanf:"south"`
	East  float64 `koanf:"east"`
	West  float64 `koanf:"west"`
}

// Bounds returns the region as a geographic bounding box.
func (r RegionConfig) Bounds() geo.Bounds {
	return geo.Bounds{North: r.North, South: r.South, East: r.East, West: r.West}
}

// ProvidersConfig holds external routing provider settings.
type ProvidersConfig struct {
	GraphHopper GraphHopperConfig `koanf:"graphhopper"`
	OSRM        OSRMConfig        `koanf:"osrm"`
}

// GraphHopperConfig holds GraphHopper Directions API settings.
type GraphHopperConfig struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// OSRMConfig holds OSRM instance settings.
type OSRMConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// RoutingConfig holds fallback chain and candidate selection settings.
type RoutingConfig struct {
	StepTimeout     time.Duration `koanf:"step_timeout"`
	GlobalTimeout   time.Duration `koanf:"global_timeout"`
	MaxAlternatives int           `koanf:"max_alternatives"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
}

// SegmentsConfig holds segment store settings.
type SegmentsConfig struct {
	TargetLengthKm float64 `koanf:"target_length_km"`
	TieFavorsBad   bool    `koanf:"tie_favors_bad"`
	PostgresURL    string  `koanf:"postgres_url"`
}

// GraphConfig optionally replaces the built-in waypoint graph.
type GraphConfig struct {
	Nodes []GraphNode `koanf:"nodes"`
	Edges []GraphEdge `koanf:"edges"`
}

// GraphNode is a named junction in the waypoint graph.
type GraphNode struct {
	ID  string  `koanf:"id"`
	Lat float64 `koanf:"lat"`
	Lng float64 `koanf:"lng"`
}

// GraphEdge links two junctions, optionally with a static traffic hint.
type GraphEdge struct {
	From    string `koanf:"from"`
	To      string `koanf:"to"`
	Traffic string `koanf:"traffic"`
}

// defaults covers a single-country deployment over Tunisia.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":         8080,
		"server.cors_origins": []string{"*"},
		"region.name":         "Tunisia",
		"region.north":        37.6,
		"region.south":        30.2,
		"region.east":         11.6,
		"region.west":         7.5,
		"providers.graphhopper.timeout": "12s",
		"providers.osrm.base_url":       "https://router.project-osrm.org",
		"providers.osrm.timeout":        "12s",
		"routing.step_timeout":          "12s",
		"routing.global_timeout":        "20s",
		"routing.max_alternatives":      3,
		"routing.cache_ttl":             "2m",
		"segments.target_length_km":     2.0,
		"segments.tie_favors_bad":       false,
	}
}

// Load reads configuration from the optional YAML file at path, then applies
// environment overrides. Env keys use double underscores for nesting, e.g.
// SAFEROADS_PROVIDERS__GRAPHHOPPER__API_KEY.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SAFEROADS_SERVER__PORT to server.port. Double underscores
// delimit nesting so key names may themselves contain underscores.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Region.North <= c.Region.South {
		return fmt.Errorf("region north (%f) must exceed south (%f)", c.Region.North, c.Region.South)
	}
	if c.Region.East <= c.Region.West {
		return fmt.Errorf("region east (%f) must exceed west (%f)", c.Region.East, c.Region.West)
	}
	if c.Segments.TargetLengthKm <= 0 {
		return fmt.Errorf("segments target length must be positive, got %f", c.Segments.TargetLengthKm)
	}
	if c.Routing.GlobalTimeout < c.Routing.StepTimeout {
		return fmt.Errorf("routing global timeout %s is shorter than step timeout %s",
			c.Routing.GlobalTimeout, c.Routing.StepTimeout)
	}
	return nil
}
