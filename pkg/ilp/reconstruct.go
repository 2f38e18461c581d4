package ilp

import (
	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
)

// Reconstruct turns an edge assignment into a tree.
//
// The tree root is the target of the single active outgoing loss of the
// pseudo-root; its weight becomes the tree's root score. The rest of the
// tree is collected depth-first with an explicit stack, scanning each
// vertex's outgoing range in the edge index, so children appear in the
// graph's loss order.
//
// Zero or several active root losses, or a vertex reached twice, are
// INTERNAL_CONSISTENCY errors.
func Reconstruct(g *fgraph.Graph, ix *EdgeIndex, x []bool) (*ftree.Tree, error) {
	if len(x) != g.NumLosses() {
		return nil, ferrors.New(ferrors.ErrCodeInconsistent,
			"assignment has %d values for %d losses", len(x), g.NumLosses())
	}

	rootLoss := -1
	for _, e := range ix.Outgoing(g.Root()) {
		if !x[e] {
			continue
		}
		if rootLoss >= 0 {
			return nil, ferrors.New(ferrors.ErrCodeInconsistent,
				"pseudo-root has more than one active loss (%d, %d)", rootLoss, e)
		}
		rootLoss = e
	}
	if rootLoss < 0 {
		return nil, ferrors.New(ferrors.ErrCodeInconsistent, "pseudo-root has no active loss")
	}

	first := g.Loss(rootLoss)
	t := ftree.New(g.Formula(first.Target), first.Weight)
	t.Root().VertexID = first.Target

	visited := make([]bool, g.NumFragments())
	visited[g.Root()] = true
	visited[first.Target] = true

	type frame struct {
		node   *ftree.Node
		vertex int
	}
	stack := []frame{{t.Root(), first.Target}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range ix.Outgoing(f.vertex) {
			if !x[e] {
				continue
			}
			l := g.Loss(e)
			if visited[l.Target] {
				return nil, ferrors.New(ferrors.ErrCodeInconsistent,
					"fragment %d (%q) reached twice", l.Target, g.Formula(l.Target))
			}
			visited[l.Target] = true
			child := t.AddFragment(f.node, g.Formula(l.Target), l.Weight)
			child.VertexID = l.Target
			stack = append(stack, frame{child, l.Target})
		}
	}
	return t, nil
}
