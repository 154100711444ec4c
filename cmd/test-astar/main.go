// Command test-astar routes between two points over the built-in waypoint
// graph, optionally marking one stretch as community-rated bad to show the
// search detouring around it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/pathfinding"
	"github.com/saferoads/server/internal/lib/segments"
)

func main() {
	fs := flag.NewFlagSet("test-astar", flag.ExitOnError)
	startLat := fs.Float64("start-lat", 36.8065, "Start latitude")
	startLng := fs.Float64("start-lng", 10.1815, "Start longitude")
	destLat := fs.Float64("dest-lat", 34.7406, "Destination latitude")
	destLng := fs.Float64("dest-lng", 10.7603, "Destination longitude")
	badLat := fs.Float64("bad-lat", 0, "Latitude of a stretch to rate bad (optional)")
	badLng := fs.Float64("bad-lng", 0, "Longitude of a stretch to rate bad (optional)")

	fs.Parse(os.Args[1:])

	var rated []segments.RoadSegment
	if *badLat != 0 || *badLng != 0 {
		start := geo.Point{Lat: *badLat, Lng: *badLng}
		end := geo.Point{Lat: *badLat + 0.01, Lng: *badLng}
		rated = append(rated, segments.RoadSegment{
			ID:          segments.SegmentKey(start, end),
			Coordinates: segments.SegmentCoords{Start: start, End: end},
			Rating:      segments.RatingBad,
		})
		fmt.Printf("Rated bad: %.4f, %.4f\n", *badLat, *badLng)
	}

	engine := pathfinding.NewEngine(pathfinding.DefaultGraph())
	path, err := engine.FindPath(context.Background(),
		geo.Point{Lat: *startLat, Lng: *startLng},
		geo.Point{Lat: *destLat, Lng: *destLng},
		rated)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found path: %.2f km, %d points\n", path.DistanceKm, len(path.Points))
	for i, p := range path.Points {
		fmt.Printf("  %3d: %.4f, %.4f\n", i, p.Lat, p.Lng)
	}
}
