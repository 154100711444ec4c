// Command test-geo-utils exercises the geometry helpers from the command line:
// distances, polyline decoding, and route segmentation.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/segments"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "point-distance":
		handlePointDistance()
	case "decode-polyline":
		handleDecodePolyline()
	case "segment":
		handleSegment()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func handlePointDistance() {
	fs := flag.NewFlagSet("point-distance", flag.ExitOnError)
	lat1 := fs.Float64("lat1", 0, "Latitude of first point")
	lng1 := fs.Float64("lng1", 0, "Longitude of first point")
	lat2 := fs.Float64("lat2", 0, "Latitude of second point")
	lng2 := fs.Float64("lng2", 0, "Longitude of second point")

	fs.Parse(os.Args[2:])

	if *lat1 == 0 && *lng1 == 0 && *lat2 == 0 && *lng2 == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils point-distance --lat1 36.8065 --lng1 10.1815 --lat2 34.7406 --lng2 10.7603")
		fmt.Println("  (Distance between Tunis and Sfax)")
		os.Exit(1)
	}

	p1 := geo.Point{Lat: *lat1, Lng: *lng1}
	p2 := geo.Point{Lat: *lat2, Lng: *lng2}

	fmt.Printf("Distance: %.2f km\n", geo.Haversine(p1, p2))
	fmt.Printf("Bearing:  %.1f deg\n", geo.Bearing(p1, p2))
}

func handleDecodePolyline() {
	fs := flag.NewFlagSet("decode-polyline", flag.ExitOnError)
	encoded := fs.String("encoded", "", "Encoded polyline string")

	fs.Parse(os.Args[2:])

	if *encoded == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils decode-polyline --encoded '_p~iF~ps|U_ulLnnqC_mqNvxq`@'")
		os.Exit(1)
	}

	points, err := geo.DecodePolyline(*encoded)
	if err != nil {
		fmt.Printf("Decode failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Decoded %d points, path length %.2f km\n", len(points), geo.PathLength(points))
	for i, p := range points {
		fmt.Printf("  %3d: %.5f, %.5f\n", i, p.Lat, p.Lng)
	}
}

func handleSegment() {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	encoded := fs.String("encoded", "", "Encoded polyline string")
	target := fs.Float64("target-km", segments.DefaultTargetLengthKm, "Target segment length in km")

	fs.Parse(os.Args[2:])

	if *encoded == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils segment --encoded '<polyline>' --target-km 2.0")
		os.Exit(1)
	}

	points, err := geo.DecodePolyline(*encoded)
	if err != nil {
		fmt.Printf("Decode failed: %v\n", err)
		os.Exit(1)
	}

	segs := segments.NewSegmenter(*target).Segment(points)
	fmt.Printf("Cut %d segments from %.2f km polyline:\n", len(segs), geo.PathLength(points))
	for _, seg := range segs {
		fmt.Printf("  %-45s %.2f km  (%d points)\n", seg.ID, seg.LengthKm, len(seg.Points))
	}
}

func printUsage() {
	fmt.Println("Usage: test-geo-utils <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  point-distance   Haversine distance and bearing between two points")
	fmt.Println("  decode-polyline  Decode an encoded polyline and print its points")
	fmt.Println("  segment          Cut a polyline into rateable road segments")
	fmt.Println("  help             Show this help")
}
