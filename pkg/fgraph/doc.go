// Package fgraph provides the fragmentation graph consumed by the colorful
// subtree solver.
//
// # Overview
//
// A fragmentation graph is a directed acyclic graph whose vertices
// ([Fragment]) are candidate molecular-fragment formulas and whose edges
// ([Loss]) carry a real-valued score. Every loss has a color: the formula of
// its target fragment. A single pseudo-root (in-degree 0) represents the
// precursor; its outgoing losses lead to the candidate precursor formulas.
//
// # Basic Usage
//
// Build a graph with a [Builder], then freeze it with [Builder.Build]:
//
//	b := fgraph.NewBuilder()
//	root := b.AddFragment("")          // pseudo-root
//	prec := b.AddFragment("C6H12O6")
//	frag := b.AddFragment("C6H10O5")
//	_, _ = b.AddLoss(root, prec, 0.5)
//	_, _ = b.AddLoss(prec, frag, 1.25)
//	g, err := b.Build()
//
// Build validates the structure (single root, no cycles, no self loops,
// finite weights) and interns colors. Fragment and loss ids are dense and
// follow insertion order, so callers can index slices by them.
//
// # Concurrency
//
// A built [Graph] is immutable and safe for concurrent readers. A [Builder]
// is not safe for concurrent use.
package fgraph
