package ilp_test

import (
	"testing"

	"github.com/matzehuels/fragtree/pkg/fgraph"
)

type lossSpec struct {
	src, dst int
	w        float64
}

func buildGraph(t *testing.T, formulas []string, losses []lossSpec) *fgraph.Graph {
	t.Helper()
	b := fgraph.NewBuilder()
	for _, f := range formulas {
		b.AddFragment(f)
	}
	for _, l := range losses {
		if _, err := b.AddLoss(l.src, l.dst, l.w); err != nil {
			t.Fatalf("AddLoss(%d, %d): %v", l.src, l.dst, err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

// glucoseGraph has two root children and two fragments sharing the formula
// C4H8O4. Its optimum is 7: C6H12O6 with children C5H10O5 and the C4H8O4
// reached directly (losses 0, 2, 5).
//
//	0 ""        -> 1 (1), 2 (0.5)
//	1 C6H12O6   -> 3 (2), 4 (-1), 6 (4)
//	2 C6H10O5   -> 7 (5)
//	3 C5H10O5   -> 5 (3)
func glucoseGraph(t *testing.T) *fgraph.Graph {
	return buildGraph(t,
		[]string{"", "C6H12O6", "C6H10O5", "C5H10O5", "C5H8O4", "C4H8O4", "C4H8O4", "C3H6O3"},
		[]lossSpec{
			{0, 1, 1},
			{0, 2, 0.5},
			{1, 3, 2},
			{1, 4, -1},
			{3, 5, 3},
			{1, 6, 4},
			{2, 7, 5},
		})
}

const glucoseOptimum = 7.0

var glucoseSelection = []bool{true, false, true, false, false, true, false}

// chainGraph is a single path "" -> A -> B -> C with the given weights.
func chainGraph(t *testing.T, w1, w2, w3 float64) *fgraph.Graph {
	return buildGraph(t,
		[]string{"", "C2H6O", "C2H4", "CH2"},
		[]lossSpec{{0, 1, w1}, {1, 2, w2}, {2, 3, w3}})
}

// branchingGraph has an optimum of 12 that needs two children under R:
// "" -> R (1), R -> P (1), R -> Q (1), P -> X (5), Q -> Y (4).
func branchingGraph(t *testing.T) *fgraph.Graph {
	return buildGraph(t,
		[]string{"", "C6H12O6", "C6H10O5", "C5H10O5", "C4H8O4", "C3H6O3"},
		[]lossSpec{{0, 1, 1}, {1, 2, 1}, {1, 3, 1}, {2, 4, 5}, {3, 5, 4}})
}

const branchingOptimum = 12.0
