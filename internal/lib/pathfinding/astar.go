package pathfinding

import (
	"container/heap"
	"context"
	"errors"

	"github.com/saferoads/server/internal/lib/geo"
	"github.com/saferoads/server/internal/lib/segments"
)

// ErrNoRouteFound indicates the open set emptied before reaching the goal.
var ErrNoRouteFound = errors.New("no route found in waypoint graph")

// Safety weights applied to edges matched against community-rated segments.
const (
	weightBad     = 3.0
	weightGood    = 0.8
	weightUnknown = 1.0
)

// segmentMatchRadiusKm bounds the midpoint-proximity match between a graph
// edge and a rated road segment.
const segmentMatchRadiusKm = 1.0

// Path is the result of a successful search.
type Path struct {
	Points     []geo.Point
	DistanceKm float64
}

// Engine runs weighted A* over the static waypoint graph, steering away from
// community-rated bad stretches and congested links. It is a last-resort
// fallback: the graph holds city and highway junctions only, not a full road
// network.
type Engine struct {
	graph *Graph
}

// NewEngine creates a pathfinding engine over the given graph.
func NewEngine(graph *Graph) *Engine {
	return &Engine{graph: graph}
}

// Graph exposes the underlying waypoint graph.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// FindPath searches from the junction nearest start to the junction nearest
// goal. rated supplies the safety weights; pass nil for an unrated world.
func (e *Engine) FindPath(ctx context.Context, start, goal geo.Point, rated []segments.RoadSegment) (Path, error) {
	from, err := e.graph.Nearest(start)
	if err != nil {
		return Path{}, err
	}
	to, err := e.graph.Nearest(goal)
	if err != nil {
		return Path{}, err
	}
	nodes, err := e.search(ctx, from, to, rated)
	if err != nil {
		return Path{}, err
	}

	points := make([]geo.Point, 0, len(nodes)+2)
	if start != from.Coord {
		points = append(points, start)
	}
	for _, n := range nodes {
		points = append(points, n.Coord)
	}
	if goal != to.Coord {
		points = append(points, goal)
	}
	return Path{Points: points, DistanceKm: geo.PathLength(points)}, nil
}

// search is the A* core: gScore is the best known weighted cost from the
// start, fScore adds the admissible haversine heuristic, and ties in fScore
// fall back to insertion order so results are deterministic.
func (e *Engine) search(ctx context.Context, from, to Node, rated []segments.RoadSegment) ([]Node, error) {
	gScore := map[string]float64{from.ID: 0}
	cameFrom := map[string]string{}
	closed := map[string]bool{}

	open := &nodeQueue{}
	heap.Init(open)
	open.push(from.ID, geo.Haversine(from.Coord, to.Coord))

	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := open.pop()
		if current == to.ID {
			return e.reconstruct(cameFrom, from.ID, to.ID), nil
		}
		if closed[current] {
			continue
		}
		closed[current] = true
		currentNode := e.graph.nodes[current]

		for _, edge := range e.graph.adj[current] {
			if closed[edge.to] {
				continue
			}
			neighbor := e.graph.nodes[edge.to]
			cost := geo.Haversine(currentNode.Coord, neighbor.Coord) *
				safetyWeight(currentNode.Coord, neighbor.Coord, rated) *
				edge.traffic.Weight()

			tentative := gScore[current] + cost
			if best, seen := gScore[edge.to]; seen && tentative >= best {
				continue
			}
			gScore[edge.to] = tentative
			cameFrom[edge.to] = current
			open.push(edge.to, tentative+geo.Haversine(neighbor.Coord, to.Coord))
		}
	}
	return nil, ErrNoRouteFound
}

func (e *Engine) reconstruct(cameFrom map[string]string, fromID, toID string) []Node {
	var reversed []string
	for id := toID; ; {
		reversed = append(reversed, id)
		if id == fromID {
			break
		}
		id = cameFrom[id]
	}
	nodes := make([]Node, len(reversed))
	for i, id := range reversed {
		nodes[len(reversed)-1-i] = e.graph.nodes[id]
	}
	return nodes
}

// safetyWeight matches the edge against the nearest rated segment by midpoint
// proximity. Unmatched edges and Unknown ratings carry no penalty.
func safetyWeight(a, b geo.Point, rated []segments.RoadSegment) float64 {
	if len(rated) == 0 {
		return weightUnknown
	}
	mid := geo.Midpoint(a, b)

	bestDist := segmentMatchRadiusKm
	weight := weightUnknown
	for i := range rated {
		seg := &rated[i]
		segMid := geo.Midpoint(seg.Coordinates.Start, seg.Coordinates.End)
		d := geo.Haversine(mid, segMid)
		if d > bestDist {
			continue
		}
		bestDist = d
		switch seg.Rating {
		case segments.RatingBad:
			weight = weightBad
		case segments.RatingGood:
			weight = weightGood
		default:
			weight = weightUnknown
		}
	}
	return weight
}

// nodeQueue is a min-heap over fScore with insertion-order tie-breaking.
type queueItem struct {
	id     string
	fScore float64
	seq    int
}

type nodeQueue struct {
	items []queueItem
	seq   int
}

func (q *nodeQueue) Len() int { return len(q.items) }

func (q *nodeQueue) Less(i, j int) bool {
	if q.items[i].fScore != q.items[j].fScore {
		return q.items[i].fScore < q.items[j].fScore
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *nodeQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *nodeQueue) Push(x any) { q.items = append(q.items, x.(queueItem)) }

func (q *nodeQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

func (q *nodeQueue) push(id string, fScore float64) {
	heap.Push(q, queueItem{id: id, fScore: fScore, seq: q.seq})
	q.seq++
}

func (q *nodeQueue) pop() string {
	return heap.Pop(q).(queueItem).id
}
