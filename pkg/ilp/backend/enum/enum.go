// Package enum implements an exact branch-and-bound backend for ilp models.
//
// The backend enumerates 0/1 assignments depth-first in variable order and
// prunes a branch as soon as a constraint row can no longer be satisfied by
// the unassigned variables, or the objective cannot beat the incumbent. It
// needs no native library, which makes it the reference engine for tests and
// small graphs. Runtime is exponential in the worst case; use the time limit.
package enum

import (
	"context"
	"errors"

	"github.com/matzehuels/fragtree/pkg/ilp"
)

// Name is the backend name used in configuration.
const Name = "enum"

const eps = 1e-9

// checkEvery is the number of search nodes between context checks.
var checkEvery = 1024

var (
	// ErrNotLoaded is returned when SolveMIP runs before Load.
	ErrNotLoaded = errors.New("enum: model not loaded")
	// ErrNoSolution is returned when a solution is read before one was found.
	ErrNoSolution = errors.New("enum: no solution available")
)

// Backend is a single-use exact solver.
type Backend struct {
	model *ilp.Model
	rows  []ilp.Constraint
	byVar [][]rowTerm

	act    []float64 // current activity per row
	posRem []float64 // Σ positive coefficients of unassigned vars per row
	negRem []float64 // Σ negative coefficients of unassigned vars per row

	x      []bool
	best   []bool
	score  float64
	found  bool
	nodes  int
	ctx    context.Context
	halted bool
}

type rowTerm struct {
	row  int
	coef float64
}

// New returns an empty backend.
func New() *Backend { return &Backend{} }

// Factory returns an ilp.BackendFactory producing enum backends.
func Factory() ilp.BackendFactory {
	return func() (ilp.Backend, error) { return New(), nil }
}

// Nodes returns the number of search nodes visited by the last solve.
func (b *Backend) Nodes() int { return b.nodes }

// Load implements ilp.Backend.
func (b *Backend) Load(_ context.Context, m *ilp.Model) error {
	b.model = m
	b.rows = m.Constraints()
	n := m.NumVars()
	b.byVar = make([][]rowTerm, n)
	b.act = make([]float64, len(b.rows))
	b.posRem = make([]float64, len(b.rows))
	b.negRem = make([]float64, len(b.rows))
	for r, c := range b.rows {
		for _, t := range c.Terms {
			b.byVar[t.Var] = append(b.byVar[t.Var], rowTerm{r, t.Coef})
			if t.Coef > 0 {
				b.posRem[r] += t.Coef
			} else {
				b.negRem[r] += t.Coef
			}
		}
	}
	b.x = make([]bool, n)
	b.found = false

	if start, ok := m.Start(); ok && m.Feasible(start) {
		b.best = start
		b.score = m.Evaluate(start)
		b.found = true
	}
	return nil
}

// SolveMIP implements ilp.Backend.
func (b *Backend) SolveMIP(ctx context.Context) (ilp.State, error) {
	if b.model == nil {
		return ilp.StateReturnNull, ErrNotLoaded
	}
	b.ctx = ctx
	b.nodes = 0
	b.halted = false

	var optimistic float64
	for i := 0; i < b.model.NumVars(); i++ {
		if w := b.model.Objective(i); w > 0 {
			optimistic += w
		}
	}
	for r := range b.rows {
		if !b.rowOpen(r) {
			return ilp.StateReturnNull, nil
		}
	}
	b.search(0, 0, optimistic)

	if b.halted || !b.found {
		return ilp.StateReturnNull, nil
	}
	return ilp.StateBuildSolution, nil
}

// search assigns variable i. cur is the objective of the assigned prefix and
// rest the sum of positive objective coefficients from i on.
func (b *Backend) search(i int, cur, rest float64) {
	if b.halted {
		return
	}
	b.nodes++
	if b.nodes%checkEvery == 0 && b.ctx.Err() != nil {
		b.halted = true
		return
	}
	if b.found && cur+rest <= b.score+eps {
		return
	}
	if i == len(b.x) {
		b.found = true
		b.score = cur
		b.best = append(b.best[:0], b.x...)
		return
	}

	w := b.model.Objective(i)
	nextRest := rest
	if w > 0 {
		nextRest -= w
	}
	first := w > 0
	for _, v := range [2]bool{first, !first} {
		if b.assign(i, v) {
			gain := 0.0
			if v {
				gain = w
			}
			b.search(i+1, cur+gain, nextRest)
		}
		b.unassign(i, v)
	}
}

// assign fixes variable i and reports whether every touched row stays
// satisfiable. It must be paired with unassign.
func (b *Backend) assign(i int, v bool) bool {
	b.x[i] = v
	ok := true
	for _, t := range b.byVar[i] {
		if t.coef > 0 {
			b.posRem[t.row] -= t.coef
		} else {
			b.negRem[t.row] -= t.coef
		}
		if v {
			b.act[t.row] += t.coef
		}
		if !b.rowOpen(t.row) {
			ok = false
		}
	}
	return ok
}

func (b *Backend) unassign(i int, v bool) {
	for _, t := range b.byVar[i] {
		if t.coef > 0 {
			b.posRem[t.row] += t.coef
		} else {
			b.negRem[t.row] += t.coef
		}
		if v {
			b.act[t.row] -= t.coef
		}
	}
	b.x[i] = false
}

// rowOpen reports whether row r can still be satisfied.
func (b *Backend) rowOpen(r int) bool {
	c := b.rows[r]
	if c.Sense == ilp.LessEq {
		return b.act[r]+b.negRem[r] <= c.RHS+eps
	}
	return b.act[r]+b.posRem[r] >= c.RHS-eps
}

// VariableAssignment implements ilp.Backend.
func (b *Backend) VariableAssignment() ([]bool, error) {
	if !b.found {
		return nil, ErrNoSolution
	}
	return append([]bool(nil), b.best...), nil
}

// SolverScore implements ilp.Backend. It reports the objective accumulated
// by the search, which the caller checks against the reconstructed tree.
func (b *Backend) SolverScore() (float64, error) {
	if !b.found {
		return 0, ErrNoSolution
	}
	return b.score, nil
}

// PastBuildSolution implements ilp.Backend.
func (b *Backend) PastBuildSolution() (ilp.State, error) {
	return ilp.StateFinished, nil
}

// Close implements ilp.Backend.
func (b *Backend) Close() error {
	b.model = nil
	b.rows = nil
	b.byVar = nil
	b.ctx = nil
	return nil
}
