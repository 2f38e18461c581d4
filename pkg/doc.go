// Package pkg holds the fragtree libraries.
//
// # Overview
//
// fragtree computes optimal fragmentation trees: given a fragmentation graph
// whose vertices are molecular fragments colored by formula and whose edges
// are weighted losses, it finds the maximum-weight subtree that uses every
// color at most once. The packages are:
//
//  1. [fgraph] and [ftree] - the input graph and the solution tree
//  2. [ilp] - the integer linear program and the solve protocol
//  3. [ilp/backend/pbsat] and [ilp/backend/enum] - MIP backends
//  4. [heuristic] - a greedy tree builder used for warm starts
//  5. [io] - JSON import and export of graphs, trees and results
//  6. [render/nodelink] - DOT and SVG drawings of trees
//  7. [cache] and [pipeline] - cached, parallel solving of many graphs
//
// # Data Flow
//
//	graph.json
//	     ↓
//	[io] ReadGraph → [fgraph.Graph]
//	     ↓
//	[pipeline] Runner.Solve (cache lookup)
//	     ↓
//	[ilp] Solver: build rows → backend → reconstruct → verify
//	     ↓
//	[ftree.Tree] → JSON / DOT / SVG
//
// # Quick Start
//
//	g, err := io.ImportGraph("graph.json")
//	if err != nil {
//	    return err
//	}
//	s := ilp.NewSolver(pbsat.Factory(), ilp.WithLowerBound(0))
//	res, err := s.Solve(ctx, g)
//	if err != nil {
//	    return err
//	}
//	if res.Status == ilp.StatusOptimal {
//	    fmt.Println(res.Tree.Score())
//	}
package pkg
