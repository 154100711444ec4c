package pathfinding

import (
	"errors"
	"fmt"

	"github.com/saferoads/server/internal/lib/geo"
)

// TrafficLevel is a static congestion hint attached to a graph edge.
type TrafficLevel string

const (
	TrafficSmooth    TrafficLevel = "smooth"
	TrafficModerate  TrafficLevel = "moderate"
	TrafficCongested TrafficLevel = "congested"
	TrafficUnknown   TrafficLevel = "unknown"
)

// Weight returns the multiplicative edge-cost penalty for the traffic level.
func (t TrafficLevel) Weight() float64 {
	switch t {
	case TrafficCongested:
		return 2.5
	case TrafficModerate:
		return 1.5
	default:
		return 1.0
	}
}

// ErrEmptyGraph is returned when a lookup runs against a graph with no nodes.
var ErrEmptyGraph = errors.New("waypoint graph has no nodes")

// Node is a named highway junction in the static waypoint graph.
type Node struct {
	ID    string
	Coord geo.Point
}

// edge is an adjacency entry. Edges are stored per direction.
type edge struct {
	to      string
	traffic TrafficLevel
}

// Graph is a small, hand-curated adjacency list of highway junctions. It is
// built once at startup and read-only thereafter, so lookups need no locking.
type Graph struct {
	nodes map[string]Node
	adj   map[string][]edge
	order []string // insertion order, for deterministic iteration
}

// NewGraph creates an empty waypoint graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		adj:   make(map[string][]edge),
	}
}

// AddNode registers a junction. Re-adding an id overwrites its coordinates.
func (g *Graph) AddNode(id string, coord geo.Point) {
	if _, exists := g.nodes[id]; !exists {
		g.order = append(g.order, id)
	}
	g.nodes[id] = Node{ID: id, Coord: coord}
}

// AddEdge connects two junctions in both directions with a traffic hint.
// Unknown node ids are reported so a malformed graph config fails loudly at
// startup instead of silently producing unroutable nodes.
func (g *Graph) AddEdge(from, to string, traffic TrafficLevel) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("edge references unknown node %q", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("edge references unknown node %q", to)
	}
	if traffic == "" {
		traffic = TrafficUnknown
	}
	g.adj[from] = append(g.adj[from], edge{to: to, traffic: traffic})
	g.adj[to] = append(g.adj[to], edge{to: from, traffic: traffic})
	return nil
}

// Node returns the junction with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of junctions.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nearest returns the junction closest to p by haversine distance.
func (g *Graph) Nearest(p geo.Point) (Node, error) {
	if len(g.nodes) == 0 {
		return Node{}, ErrEmptyGraph
	}
	var best Node
	bestDist := -1.0
	for _, id := range g.order {
		n := g.nodes[id]
		d := geo.Haversine(p, n.Coord)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = n
		}
	}
	return best, nil
}

// DefaultGraph returns the built-in waypoint graph covering the Tunisian
// trunk-road network: coastal A1/GP1 corridor, the A3/A4 spurs and the main
// interior crossings. Deployments can replace it from configuration.
func DefaultGraph() *Graph {
	g := NewGraph()

	junctions := []struct {
		id       string
		lat, lng float64
	}{
		{"tunis", 36.8065, 10.1815},
		{"bizerte", 37.2744, 9.8739},
		{"nabeul", 36.4561, 10.7376},
		{"zaghouan", 36.4029, 10.1429},
		{"beja", 36.7256, 9.1817},
		{"jendouba", 36.5011, 8.7802},
		{"el-kef", 36.1742, 8.7049},
		{"sousse", 35.8256, 10.6369},
		{"monastir", 35.7643, 10.8113},
		{"mahdia", 35.5047, 11.0622},
		{"kairouan", 35.6781, 10.0963},
		{"kasserine", 35.1676, 8.8365},
		{"sidi-bouzid", 35.0382, 9.4849},
		{"sfax", 34.7406, 10.7603},
		{"gafsa", 34.4250, 8.7842},
		{"tozeur", 33.9197, 8.1335},
		{"gabes", 33.8815, 10.0982},
		{"medenine", 33.3549, 10.5055},
		{"tataouine", 32.9297, 10.4518},
	}
	for _, j := range junctions {
		g.AddNode(j.id, geo.Point{Lat: j.lat, Lng: j.lng})
	}

	links := []struct {
		from, to string
		traffic  TrafficLevel
	}{
		{"tunis", "bizerte", TrafficSmooth},
		{"tunis", "nabeul", TrafficModerate},
		{"tunis", "zaghouan", TrafficSmooth},
		{"tunis", "beja", TrafficSmooth},
		{"tunis", "sousse", TrafficModerate},
		{"beja", "jendouba", TrafficSmooth},
		{"jendouba", "el-kef", TrafficSmooth},
		{"el-kef", "kasserine", TrafficSmooth},
		{"zaghouan", "kairouan", TrafficSmooth},
		{"nabeul", "sousse", TrafficSmooth},
		{"sousse", "monastir", TrafficModerate},
		{"monastir", "mahdia", TrafficSmooth},
		{"sousse", "kairouan", TrafficSmooth},
		{"sousse", "sfax", TrafficSmooth},
		{"mahdia", "sfax", TrafficSmooth},
		{"kairouan", "sidi-bouzid", TrafficSmooth},
		{"kairouan", "kasserine", TrafficSmooth},
		{"sidi-bouzid", "sfax", TrafficSmooth},
		{"sidi-bouzid", "gafsa", TrafficSmooth},
		{"kasserine", "gafsa", TrafficSmooth},
		{"gafsa", "tozeur", TrafficSmooth},
		{"gafsa", "gabes", TrafficSmooth},
		{"sfax", "gabes", TrafficSmooth},
		{"gabes", "medenine", TrafficSmooth},
		{"medenine", "tataouine", TrafficSmooth},
	}
	for _, l := range links {
		// Node ids are defined above, so AddEdge cannot fail here.
		_ = g.AddEdge(l.from, l.to, l.traffic)
	}
	return g
}
