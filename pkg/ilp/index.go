package ilp

import "github.com/matzehuels/fragtree/pkg/fgraph"

// EdgeIndex groups loss ids by source vertex.
//
// For every vertex v, IDs[Offsets[v] : Offsets[v]+OutDegree(v)] are exactly
// v's outgoing losses, in their original relative order. A vertex without
// outgoing losses has an empty range.
type EdgeIndex struct {
	Offsets []int // Vertex id -> first position in IDs
	IDs     []int // Permutation of [0, E) grouped by source vertex
}

// NewEdgeIndex builds the index in O(V+E).
//
// The construction runs in two phases over one offsets array. First the
// offsets are set to the prefix sums of the out-degrees. Then every loss is
// written at its source's offset and that offset is advanced, which leaves
// each offset pointing one past its group. Subtracting the out-degrees
// restores the prefix sums.
func NewEdgeIndex(g *fgraph.Graph) *EdgeIndex {
	n := g.NumFragments()
	ix := &EdgeIndex{
		Offsets: make([]int, n),
		IDs:     make([]int, g.NumLosses()),
	}

	for v := 1; v < n; v++ {
		ix.Offsets[v] = ix.Offsets[v-1] + g.OutDegree(v-1)
	}

	for e := 0; e < g.NumLosses(); e++ {
		u := g.Loss(e).Source
		ix.IDs[ix.Offsets[u]] = e
		ix.Offsets[u]++
	}

	for v := 0; v < n; v++ {
		ix.Offsets[v] -= g.OutDegree(v)
	}
	return ix
}

// Outgoing returns the ids of the losses leaving v as a read-only view.
func (ix *EdgeIndex) Outgoing(v int) []int {
	end := len(ix.IDs)
	if v+1 < len(ix.Offsets) {
		end = ix.Offsets[v+1]
	}
	return ix.IDs[ix.Offsets[v]:end]
}
