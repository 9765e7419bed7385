package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antigravity/isochrone-engine/internal/geo"
)

// line builds a 4-node chain: 0 --10-- 1 --10-- 2 --10-- 3, undirected.
func line() *Graph {
	nodes := []Node{
		{ID: 0, Pt: geo.Point{0, 0}},
		{ID: 1, Pt: geo.Point{10, 0}},
		{ID: 2, Pt: geo.Point{20, 0}},
		{ID: 3, Pt: geo.Point{30, 0}},
	}
	nodes[0].Adj = []Edge{{To: 1, Length: 10}}
	nodes[1].Adj = []Edge{{To: 0, Length: 10}, {To: 2, Length: 10}}
	nodes[2].Adj = []Edge{{To: 1, Length: 10}, {To: 3, Length: 10}}
	nodes[3].Adj = []Edge{{To: 2, Length: 10}}
	return NewGraph(nodes)
}

func TestNearestNodeFindsClosest(t *testing.T) {
	g := line()
	id, ok := g.NearestNode(geo.Point{22, 1})
	assert.True(t, ok)
	assert.Equal(t, NodeID(2), id)
}

func TestNearestNodeEmptyGraph(t *testing.T) {
	g := NewGraph(nil)
	_, ok := g.NearestNode(geo.Point{0, 0})
	assert.False(t, ok)
}

func TestShortestPathLengthSumsAlongChain(t *testing.T) {
	g := line()
	d, ok := g.ShortestPathLength(0, 3)
	assert.True(t, ok)
	assert.Equal(t, 30.0, d)
}

func TestShortestPathLengthSameNodeIsZero(t *testing.T) {
	g := line()
	d, ok := g.ShortestPathLength(2, 2)
	assert.True(t, ok)
	assert.Equal(t, 0.0, d)
}

func TestShortestPathLengthUnreachableReturnsFalse(t *testing.T) {
	nodes := []Node{
		{ID: 0, Pt: geo.Point{0, 0}},
		{ID: 1, Pt: geo.Point{10, 0}},
	}
	g := NewGraph(nodes)
	_, ok := g.ShortestPathLength(0, 1)
	assert.False(t, ok)
}

func TestShortestPathLengthOutOfRangeNode(t *testing.T) {
	g := line()
	_, ok := g.ShortestPathLength(0, NodeID(99))
	assert.False(t, ok)
}

func TestShortestPathLengthPicksCheaperDetour(t *testing.T) {
	// 0 -> 1 direct costs 100; 0 -> 2 -> 1 costs 10 + 10.
	nodes := []Node{
		{ID: 0, Pt: geo.Point{0, 0}},
		{ID: 1, Pt: geo.Point{10, 0}},
		{ID: 2, Pt: geo.Point{5, 5}},
	}
	nodes[0].Adj = []Edge{{To: 1, Length: 100}, {To: 2, Length: 10}}
	nodes[1].Adj = []Edge{{To: 0, Length: 100}, {To: 2, Length: 10}}
	nodes[2].Adj = []Edge{{To: 0, Length: 10}, {To: 1, Length: 10}}
	g := NewGraph(nodes)

	d, ok := g.ShortestPathLength(0, 1)
	assert.True(t, ok)
	assert.Equal(t, 20.0, d)
}
