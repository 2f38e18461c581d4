package ilp

import (
	"math"

	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
)

// scoreTol is the largest residual Verify accepts.
const scoreTol = 1e-9

// Verify recomputes the score of t against g and compares it with the
// score the backend reported.
//
// Nodes are mapped onto graph vertices top-down. The root must be the
// target of exactly one pseudo-root loss with its formula; every other node
// must be the target of exactly one loss leaving its parent's vertex with
// its formula. A node's VertexID, when set, must agree with the match.
// Pseudo nodes (empty formula) are trusted: their own weight is subtracted.
// Children of a pseudo node without a VertexID fall back to matching by
// formula and parent formula anywhere in the graph.
//
// A residual of 1e-9 or more, or a node that cannot be mapped
// unambiguously, is an INTERNAL_CONSISTENCY error. Verify does not modify t.
func Verify(t *ftree.Tree, g *fgraph.Graph, score float64) error {
	if t == nil {
		return ferrors.New(ferrors.ErrCodeInconsistent, "no tree to verify")
	}
	residual := score

	type frame struct {
		node   *ftree.Node
		vertex int // fgraph vertex, or ftree.NoVertex for trusted nodes
	}
	var stack []frame

	root := t.Root()
	if root.IsPseudo() {
		residual -= root.Weight
		stack = append(stack, frame{root, root.VertexID})
	} else {
		e, err := matchLoss(g, g.Outgoing(g.Root()), root)
		if err != nil {
			return err
		}
		residual -= g.Loss(e).Weight
		stack = append(stack, frame{root, g.Loss(e).Target})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range f.node.Children {
			if child.IsPseudo() {
				residual -= child.Weight
				stack = append(stack, frame{child, child.VertexID})
				continue
			}
			var candidates []int
			if f.vertex != ftree.NoVertex {
				candidates = g.Outgoing(f.vertex)
			} else {
				candidates = lossesFromFormula(g, f.node.Formula)
			}
			e, err := matchLoss(g, candidates, child)
			if err != nil {
				return err
			}
			residual -= g.Loss(e).Weight
			stack = append(stack, frame{child, g.Loss(e).Target})
		}
	}

	if math.Abs(residual) >= scoreTol {
		return ferrors.New(ferrors.ErrCodeInconsistent,
			"tree score differs from reported score %g by %g", score, residual)
	}
	return nil
}

// matchLoss picks the single candidate loss whose target carries n's formula.
func matchLoss(g *fgraph.Graph, candidates []int, n *ftree.Node) (int, error) {
	found := -1
	for _, e := range candidates {
		target := g.Loss(e).Target
		if g.Formula(target) != n.Formula {
			continue
		}
		if n.VertexID != ftree.NoVertex && n.VertexID != target {
			continue
		}
		if found >= 0 {
			return -1, ferrors.New(ferrors.ErrCodeInconsistent,
				"fragment %q at %s matches several losses", n.Formula, ftree.PathKey(n))
		}
		found = e
	}
	if found < 0 {
		return -1, ferrors.New(ferrors.ErrCodeInconsistent,
			"fragment %q at %s matches no loss", n.Formula, ftree.PathKey(n))
	}
	return found, nil
}

func lossesFromFormula(g *fgraph.Graph, formula string) []int {
	var out []int
	for e := 0; e < g.NumLosses(); e++ {
		if g.Formula(g.Loss(e).Source) == formula {
			out = append(out, e)
		}
	}
	return out
}

// CheckAssignment validates a raw edge assignment before reconstruction:
// at most one active loss per color and per target vertex, exactly one
// active pseudo-root loss, and every active loss leaving a vertex that is
// itself reached. On an acyclic graph these imply the active losses form a
// tree below the pseudo-root. Violations are INTERNAL_CONSISTENCY errors.
func CheckAssignment(g *fgraph.Graph, ix *EdgeIndex, x []bool) error {
	if len(x) != g.NumLosses() {
		return ferrors.New(ferrors.ErrCodeInconsistent,
			"assignment has %d values for %d losses", len(x), g.NumLosses())
	}

	colorUsed := make([]int, g.NumColors())
	inUsed := make([]int, g.NumFragments())
	for e, on := range x {
		if !on {
			continue
		}
		l := g.Loss(e)
		if colorUsed[g.Color(e)]++; colorUsed[g.Color(e)] > 1 {
			return ferrors.New(ferrors.ErrCodeInconsistent,
				"color %q selected more than once", g.ColorName(g.Color(e)))
		}
		if inUsed[l.Target]++; inUsed[l.Target] > 1 {
			return ferrors.New(ferrors.ErrCodeInconsistent,
				"fragment %d has more than one active incoming loss", l.Target)
		}
	}

	active := 0
	for _, e := range ix.Outgoing(g.Root()) {
		if x[e] {
			active++
		}
	}
	if active != 1 {
		return ferrors.New(ferrors.ErrCodeInconsistent,
			"pseudo-root has %d active losses, want 1", active)
	}

	for e, on := range x {
		if !on {
			continue
		}
		src := g.Loss(e).Source
		if src != g.Root() && inUsed[src] == 0 {
			return ferrors.New(ferrors.ErrCodeInconsistent,
				"loss %d leaves unreached fragment %d", e, src)
		}
	}
	return nil
}
