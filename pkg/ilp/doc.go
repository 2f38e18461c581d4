// Package ilp solves the optimal colorful subtree problem as a 0/1 integer
// linear program.
//
// # Overview
//
// Given a fragmentation graph ([fgraph.Graph]) the solver selects a subset of
// losses that forms a tree below the pseudo-root, uses every color (target
// formula) at most once, and maximizes the summed loss weights. The model is
// independent of any numeric engine: a [ModelBuilder] produces an immutable
// [Model], and a [Backend] (see the backend subpackages) solves it.
//
// # Model
//
// One binary variable per loss; the variable index equals the loss id.
//
//   - Tree: for every loss o leaving a non-root vertex v, x_o ≤ Σ incoming(v)
//   - Color: for every color, Σ incoming losses of that color ≤ 1
//   - Minimal tree size: Σ root outgoing ≥ 1
//   - Root degree: Σ root outgoing ≤ 1
//   - Lower bound: Σ weight·x ≥ lowerBound (omitted for −∞)
//   - Objective: maximize Σ weight·x
//
// # Solve Protocol
//
// [Solver.Solve] runs prepare → solve → check → reconstruct → verify →
// post-solve cleanup. Outcomes are tagged with [Status]: an optimal tree, an
// infeasible or pruned instance, or a solution the backend rejected after the
// fact. Failures are errors with code SOLVER_FAILURE; consistency failures
// (the verifier disagreeing with the backend) additionally carry
// INTERNAL_CONSISTENCY somewhere in the chain.
//
// # Edge Index
//
// [EdgeIndex] groups loss ids by source vertex in O(V+E) so the builder and
// the reconstructor can scan "all outgoing losses of v" without searching.
//
// # Concurrency
//
// A Solver may be shared by goroutines: every Solve call builds its own
// index, model and backend instance and touches no shared mutable state.
package ilp
