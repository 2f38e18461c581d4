package fgraph

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrEmptyGraph is returned by [Builder.Build] when no fragment was added.
	ErrEmptyGraph = errors.New("graph has no fragments")

	// ErrUnknownFragment is returned by [Builder.AddLoss] when an endpoint
	// does not refer to a fragment added earlier.
	ErrUnknownFragment = errors.New("unknown fragment")

	// ErrSelfLoop is returned by [Builder.AddLoss] when source and target coincide.
	ErrSelfLoop = errors.New("loss must connect two different fragments")

	// ErrInvalidWeight is returned by [Builder.AddLoss] for NaN or infinite weights.
	ErrInvalidWeight = errors.New("loss weight must be finite")

	// ErrNoRoot is returned by [Builder.Build] when every fragment has an
	// incoming loss.
	ErrNoRoot = errors.New("graph has no root")

	// ErrMultipleRoots is returned by [Builder.Build] when more than one
	// fragment has in-degree 0.
	ErrMultipleRoots = errors.New("graph has more than one root")

	// ErrGraphHasCycle is returned by [Builder.Build] when a directed cycle is
	// detected. Cycles are detected using depth-first search with
	// white/gray/black coloring.
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// Fragment is a vertex of the fragmentation graph.
// The empty formula marks a synthetic (pseudo) fragment such as the root.
type Fragment struct {
	ID      int    // Dense vertex id, assigned in insertion order
	Formula string // Molecular formula; also the color of every loss into this fragment
}

// IsPseudo reports whether the fragment is synthetic (empty formula).
func (f Fragment) IsPseudo() bool { return f.Formula == "" }

// Loss is a scored directed edge between two fragments.
type Loss struct {
	ID     int     // Dense loss id, assigned in insertion order
	Source int     // Source fragment id
	Target int     // Target fragment id
	Weight float64 // Score contributed when the loss is part of the tree
}

// Graph is an immutable fragmentation graph with exactly one root.
//
// The zero value is not usable - construct graphs with [NewBuilder].
type Graph struct {
	fragments []Fragment
	losses    []Loss
	outgoing  [][]int // fragment id -> loss ids, insertion order
	incoming  [][]int // fragment id -> loss ids, insertion order
	colorOf   []int   // fragment id -> color id
	colors    []string
	root      int
}

// NumFragments returns the number of vertices.
func (g *Graph) NumFragments() int { return len(g.fragments) }

// NumLosses returns the number of edges.
func (g *Graph) NumLosses() int { return len(g.losses) }

// Root returns the id of the pseudo-root.
func (g *Graph) Root() int { return g.root }

// Fragment returns the fragment with the given id.
// It panics if v is out of range, like a slice index.
func (g *Graph) Fragment(v int) Fragment { return g.fragments[v] }

// Formula returns the formula of fragment v.
func (g *Graph) Formula(v int) string { return g.fragments[v].Formula }

// Loss returns the loss with the given id.
func (g *Graph) Loss(e int) Loss { return g.losses[e] }

// Losses returns a copy of all losses ordered by id.
func (g *Graph) Losses() []Loss { return slices.Clone(g.losses) }

// Fragments returns a copy of all fragments ordered by id.
func (g *Graph) Fragments() []Fragment { return slices.Clone(g.fragments) }

// OutDegree returns the number of losses leaving fragment v.
func (g *Graph) OutDegree(v int) int { return len(g.outgoing[v]) }

// InDegree returns the number of losses entering fragment v.
func (g *Graph) InDegree(v int) int { return len(g.incoming[v]) }

// Outgoing returns the ids of the losses leaving v in insertion order.
// The returned slice is a read-only view.
func (g *Graph) Outgoing(v int) []int { return g.outgoing[v] }

// Incoming returns the ids of the losses entering v in insertion order.
// The returned slice is a read-only view.
func (g *Graph) Incoming(v int) []int { return g.incoming[v] }

// Parents returns the source fragments of v's incoming losses.
func (g *Graph) Parents(v int) []int {
	parents := make([]int, len(g.incoming[v]))
	for i, e := range g.incoming[v] {
		parents[i] = g.losses[e].Source
	}
	return parents
}

// Color returns the dense color id of loss e (the interned formula of its target).
func (g *Graph) Color(e int) int { return g.colorOf[g.losses[e].Target] }

// FragmentColor returns the color id of fragment v.
func (g *Graph) FragmentColor(v int) int { return g.colorOf[v] }

// NumColors returns the number of distinct formulas in the graph.
func (g *Graph) NumColors() int { return len(g.colors) }

// ColorName returns the formula behind color c.
func (g *Graph) ColorName(c int) string { return g.colors[c] }

// Builder accumulates fragments and losses and produces a validated [Graph].
// The zero value is not usable - use [NewBuilder].
type Builder struct {
	fragments []Fragment
	losses    []Loss
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddFragment appends a fragment and returns its id.
func (b *Builder) AddFragment(formula string) int {
	id := len(b.fragments)
	b.fragments = append(b.fragments, Fragment{ID: id, Formula: formula})
	return id
}

// AddLoss appends a loss from src to dst and returns its id.
// Returns ErrUnknownFragment if an endpoint does not exist, ErrSelfLoop if
// src == dst, or ErrInvalidWeight for NaN or infinite weights.
func (b *Builder) AddLoss(src, dst int, weight float64) (int, error) {
	if src < 0 || src >= len(b.fragments) {
		return -1, fmt.Errorf("source %d: %w", src, ErrUnknownFragment)
	}
	if dst < 0 || dst >= len(b.fragments) {
		return -1, fmt.Errorf("target %d: %w", dst, ErrUnknownFragment)
	}
	if src == dst {
		return -1, fmt.Errorf("fragment %d: %w", src, ErrSelfLoop)
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return -1, fmt.Errorf("loss %d->%d: %w", src, dst, ErrInvalidWeight)
	}
	id := len(b.losses)
	b.losses = append(b.losses, Loss{ID: id, Source: src, Target: dst, Weight: weight})
	return id, nil
}

// Build validates the accumulated structure and returns an immutable graph.
// The builder may keep being used afterwards; the returned graph does not
// share memory with it.
//
// Build checks, in order: at least one fragment, exactly one fragment with
// in-degree 0, and acyclicity. Cycle detection runs in O(V+E).
func (b *Builder) Build() (*Graph, error) {
	if len(b.fragments) == 0 {
		return nil, ErrEmptyGraph
	}

	g := &Graph{
		fragments: slices.Clone(b.fragments),
		losses:    slices.Clone(b.losses),
		outgoing:  make([][]int, len(b.fragments)),
		incoming:  make([][]int, len(b.fragments)),
		colorOf:   make([]int, len(b.fragments)),
		root:      -1,
	}
	for _, l := range g.losses {
		g.outgoing[l.Source] = append(g.outgoing[l.Source], l.ID)
		g.incoming[l.Target] = append(g.incoming[l.Target], l.ID)
	}

	for v := range g.fragments {
		if len(g.incoming[v]) > 0 {
			continue
		}
		if g.root >= 0 {
			return nil, fmt.Errorf("fragments %d and %d: %w", g.root, v, ErrMultipleRoots)
		}
		g.root = v
	}
	if g.root < 0 {
		return nil, ErrNoRoot
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	index := make(map[string]int)
	for v, f := range g.fragments {
		c, ok := index[f.Formula]
		if !ok {
			c = len(g.colors)
			index[f.Formula] = c
			g.colors = append(g.colors, f.Formula)
		}
		g.colorOf[v] = c
	}
	return g, nil
}

func (g *Graph) detectCycles() error {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.fragments))
	type frame struct{ v, next int }

	for start := range g.fragments {
		if color[start] != white {
			continue
		}
		stack := []frame{{v: start}}
		color[start] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(g.outgoing[top.v]) {
				color[top.v] = black
				stack = stack[:len(stack)-1]
				continue
			}
			child := g.losses[g.outgoing[top.v][top.next]].Target
			top.next++
			switch color[child] {
			case white:
				color[child] = gray
				stack = append(stack, frame{v: child})
			case gray:
				return fmt.Errorf("via fragment %d: %w", child, ErrGraphHasCycle)
			}
		}
	}
	return nil
}
