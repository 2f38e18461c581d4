// Package ftree provides the fragmentation tree returned by the solver.
//
// A [Tree] is a rooted tree of fragment formulas. Every non-root [Node]
// carries the weight of the graph loss it was derived from; the root carries
// the weight of the pseudo-edge that selected it ([Tree.RootScore]), so
// [Tree.Score] equals the objective value of the solution.
//
// Trees hold no reference to the graph they came from. They are not safe for
// concurrent mutation.
package ftree

import (
	"slices"
	"strings"
)

// NoVertex marks a node that was not derived from a known graph vertex.
const NoVertex = -1

// Node is a fragment in a tree.
type Node struct {
	Formula  string  // Fragment formula; empty for pseudo fragments
	Weight   float64 // Weight of the incoming loss (root: the pseudo-edge weight)
	VertexID int     // Graph vertex the node was derived from, or NoVertex
	Parent   *Node   // nil for the root
	Children []*Node // Insertion order
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.Parent == nil }

// IsPseudo reports whether n is a synthetic fragment (empty formula).
func (n *Node) IsPseudo() bool { return n.Formula == "" }

// Tree is a rooted fragmentation tree.
// The zero value is not usable - use [New].
type Tree struct {
	root *Node
	size int
}

// New creates a tree with a single root fragment. rootScore is the weight of
// the pseudo-edge leading to the root and is part of [Tree.Score].
func New(formula string, rootScore float64) *Tree {
	return &Tree{
		root: &Node{Formula: formula, Weight: rootScore, VertexID: NoVertex},
		size: 1,
	}
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// RootScore returns the weight of the pseudo-edge leading to the root.
func (t *Tree) RootScore() float64 { return t.root.Weight }

// Len returns the number of nodes including the root.
func (t *Tree) Len() int { return t.size }

// AddFragment appends a child below parent and returns it.
// parent must belong to t.
func (t *Tree) AddFragment(parent *Node, formula string, weight float64) *Node {
	child := &Node{Formula: formula, Weight: weight, VertexID: NoVertex, Parent: parent}
	parent.Children = append(parent.Children, child)
	t.size++
	return child
}

// Nodes returns all nodes in pre-order (parent before children, children in
// insertion order).
func (t *Tree) Nodes() []*Node {
	nodes := make([]*Node, 0, t.size)
	stack := []*Node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes = append(nodes, n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return nodes
}

// Score returns the root score plus the weights of all other nodes.
func (t *Tree) Score() float64 {
	var sum float64
	for _, n := range t.Nodes() {
		sum += n.Weight
	}
	return sum
}

// Find returns the first node in pre-order with the given formula.
func (t *Tree) Find(formula string) (*Node, bool) {
	for _, n := range t.Nodes() {
		if n.Formula == formula {
			return n, true
		}
	}
	return nil, false
}

// Formulas returns the formulas of all nodes in pre-order.
func (t *Tree) Formulas() []string {
	nodes := t.Nodes()
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Formula
	}
	return out
}

// Depth returns the number of edges between n and the root.
func Depth(n *Node) int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Path returns the formulas from the root down to n, inclusive.
func Path(n *Node) []string {
	var path []string
	for p := n; p != nil; p = p.Parent {
		path = append(path, p.Formula)
	}
	slices.Reverse(path)
	return path
}

// PathKey joins [Path] into a single comparable string.
func PathKey(n *Node) string {
	return strings.Join(Path(n), "/")
}
