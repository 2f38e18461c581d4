// Package heuristic builds feasible colorful subtrees quickly.
//
// [Greedy] implements ilp.TreeBuilder and is used to warm-start the exact
// solver. Its trees always satisfy the color and tree constraints, but are
// not optimal in general.
package heuristic

import (
	"container/heap"
	"context"
	"math"

	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
)

// Greedy grows one tree per pseudo-root child and keeps the best.
//
// Each tree is grown Prim-style: the heaviest positive loss leaving the
// tree whose color is still unused is added next. Afterwards every subtree
// whose total weight is not positive is cut off.
type Greedy struct{}

// BuildTree implements ilp.TreeBuilder. It returns nil when the graph has
// no losses or the best tree scores below lowerBound.
func (Greedy) BuildTree(ctx context.Context, g *fgraph.Graph, lowerBound float64) (*ftree.Tree, error) {
	var (
		best      []bool
		bestScore = math.Inf(-1)
	)
	for _, e := range g.Outgoing(g.Root()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sel := grow(g, e)
		prune(g, sel, g.Loss(e).Target)
		if s := score(g, sel); s > bestScore {
			best, bestScore = sel, s
		}
	}
	if best == nil || bestScore < lowerBound {
		return nil, nil
	}
	return toTree(g, best), nil
}

func grow(g *fgraph.Graph, rootLoss int) []bool {
	sel := make([]bool, g.NumLosses())
	colorUsed := make([]bool, g.NumColors())
	inTree := make([]bool, g.NumFragments())

	sel[rootLoss] = true
	first := g.Loss(rootLoss).Target
	inTree[first] = true
	colorUsed[g.FragmentColor(first)] = true

	q := &lossQueue{g: g}
	for _, e := range g.Outgoing(first) {
		heap.Push(q, e)
	}
	for q.Len() > 0 {
		e := heap.Pop(q).(int)
		l := g.Loss(e)
		if l.Weight <= 0 {
			break
		}
		if inTree[l.Target] || colorUsed[g.Color(e)] {
			continue
		}
		sel[e] = true
		inTree[l.Target] = true
		colorUsed[g.Color(e)] = true
		for _, next := range g.Outgoing(l.Target) {
			heap.Push(q, next)
		}
	}
	return sel
}

// prune removes selected subtrees below v whose net worth is not positive
// and returns the net worth of v's subtree, excluding v's incoming loss.
func prune(g *fgraph.Graph, sel []bool, v int) float64 {
	worth := 0.0
	for _, e := range g.Outgoing(v) {
		if !sel[e] {
			continue
		}
		child := g.Loss(e).Target
		sub := prune(g, sel, child) + g.Loss(e).Weight
		if sub <= 0 {
			cut(g, sel, e)
			continue
		}
		worth += sub
	}
	return worth
}

func cut(g *fgraph.Graph, sel []bool, e int) {
	sel[e] = false
	for _, next := range g.Outgoing(g.Loss(e).Target) {
		if sel[next] {
			cut(g, sel, next)
		}
	}
}

func score(g *fgraph.Graph, sel []bool) float64 {
	var s float64
	for e, on := range sel {
		if on {
			s += g.Loss(e).Weight
		}
	}
	return s
}

func toTree(g *fgraph.Graph, sel []bool) *ftree.Tree {
	var rootLoss int
	for _, e := range g.Outgoing(g.Root()) {
		if sel[e] {
			rootLoss = e
			break
		}
	}
	first := g.Loss(rootLoss)
	t := ftree.New(g.Formula(first.Target), first.Weight)
	t.Root().VertexID = first.Target

	type frame struct {
		node   *ftree.Node
		vertex int
	}
	stack := []frame{{t.Root(), first.Target}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.Outgoing(f.vertex) {
			if !sel[e] {
				continue
			}
			l := g.Loss(e)
			child := t.AddFragment(f.node, g.Formula(l.Target), l.Weight)
			child.VertexID = l.Target
			stack = append(stack, frame{child, l.Target})
		}
	}
	return t
}

// lossQueue is a max-heap of loss ids ordered by weight.
type lossQueue struct {
	g   *fgraph.Graph
	ids []int
}

func (q *lossQueue) Len() int { return len(q.ids) }
func (q *lossQueue) Less(i, j int) bool {
	return q.g.Loss(q.ids[i]).Weight > q.g.Loss(q.ids[j]).Weight
}
func (q *lossQueue) Swap(i, j int) { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *lossQueue) Push(x any)   { q.ids = append(q.ids, x.(int)) }
func (q *lossQueue) Pop() any {
	n := len(q.ids)
	x := q.ids[n-1]
	q.ids = q.ids[:n-1]
	return x
}
