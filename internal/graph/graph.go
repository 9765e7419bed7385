// Package graph provides the weighted-graph abstraction the isochrone core
// needs from a mode's street network: nearest-node lookup and shortest-path
// length. It is adapted from the teacher repo's RAPTOR engine
// (internal/routing/raptor.go), generalized from a multi-route transit
// search down to the single-graph Dijkstra that spec.md §6 actually
// requires ("nearest_node(x,y)" and "shortest_path_length(u,v,
// weight=\"length\")").
//
// Loading a graph from OSM data is out of scope (spec.md §1): callers
// construct a Graph from whatever static dataset they already have and the
// core only ever reads it.
package graph

import (
	"container/heap"
	"math"

	"github.com/antigravity/isochrone-engine/internal/geo"
)

// NodeID indexes a graph node.
type NodeID int32

// Node is a single intersection/vertex with a fixed geographic position.
type Node struct {
	ID  NodeID
	Pt  geo.Point
	Adj []Edge
}

// Edge is a weighted connection to another node, length in meters.
type Edge struct {
	To     NodeID
	Length float64
}

// Graph is an immutable-after-build weighted graph for one transport mode.
// Reads are lock-free; it must not be mutated after NewGraph returns.
type Graph struct {
	nodes []Node
}

// NewGraph builds a graph from a flat node list and adjacency already
// resolved to NodeID. Callers are expected to build this once at startup
// from whatever street-network source they maintain.
func NewGraph(nodes []Node) *Graph {
	return &Graph{nodes: nodes}
}

// Len reports the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// NearestNode returns the node whose position is closest to pt, by planar
// distance in the graph's projected CRS. Linear scan: street graphs for a
// single city are small enough (tens of thousands of nodes) that this is
// cheap relative to the outbound journey-planner calls it substitutes for;
// callers with larger graphs should front this with their own index.
func (g *Graph) NearestNode(pt geo.Point) (NodeID, bool) {
	if len(g.nodes) == 0 {
		return 0, false
	}
	best := NodeID(0)
	bestDist := math.Inf(1)
	for _, n := range g.nodes {
		d := geo.PlanarDistance(n.Pt, pt)
		if d < bestDist {
			bestDist = d
			best = n.ID
		}
	}
	return best, true
}

// ShortestPathLength runs Dijkstra from u to v and returns the total edge
// length in meters. Returns (0, true) when u == v, (0, false) when
// unreachable.
func (g *Graph) ShortestPathLength(u, v NodeID) (float64, bool) {
	if int(u) >= len(g.nodes) || int(v) >= len(g.nodes) {
		return 0, false
	}
	if u == v {
		return 0, true
	}

	dist := make([]float64, len(g.nodes))
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[u] = 0

	pq := &nodeHeap{{node: u, dist: 0}}
	visited := make([]bool, len(g.nodes))

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(nodeDist)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == v {
			return cur.dist, true
		}
		for _, e := range g.nodes[cur.node].Adj {
			nd := cur.dist + e.Length
			if nd < dist[e.To] {
				dist[e.To] = nd
				heap.Push(pq, nodeDist{node: e.To, dist: nd})
			}
		}
	}
	return 0, false
}

type nodeDist struct {
	node NodeID
	dist float64
}

type nodeHeap []nodeDist

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(nodeDist)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
