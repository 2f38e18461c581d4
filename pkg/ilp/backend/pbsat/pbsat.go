// Package pbsat solves ilp models with the gophersat pseudo-boolean optimizer.
//
// Every constraint row is normalized to the form Σ wᵢ·lᵢ ≥ k with positive
// integer weights over literals: negative coefficients flip the literal and
// move their weight to the right-hand side, and ≤ rows are negated first.
// Real-valued rows (the lower-bound cut) and the objective are scaled to
// integers by Scale.
//
// Rounding the objective can make gophersat prefer a tree whose exact score
// is slightly lower than the best one. After the scaled optimum is found the
// backend enumerates every remaining assignment whose scaled score could
// still beat the best exact score, blocking each one it has seen, until
// none is left. The result is the exact optimum, up to maxRefinements
// extra searches.
//
// gophersat searches cannot be interrupted. A search whose context expires
// is abandoned and finishes in the background, holding one of a fixed
// number of search slots until it does.
package pbsat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/crillab/gophersat/solver"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/fragtree/pkg/ilp"
)

// Name is the backend name used in configuration.
const Name = "pbsat"

// DefaultScale converts real weights to integers with six decimal digits.
const DefaultScale = 1e6

const eps = 1e-9

// maxWeight bounds scaled integer weights so row sums cannot overflow.
const maxWeight = 1 << 40

// maxRefinements caps the searches run after the scaled optimum to close
// the rounding gap.
const maxRefinements = 256

var (
	// ErrNotLoaded is returned when SolveMIP runs before Load.
	ErrNotLoaded = errors.New("pbsat: model not loaded")
	// ErrNoSolution is returned when a solution is read before one was found.
	ErrNoSolution = errors.New("pbsat: no solution available")
	// ErrWeightRange is returned when a scaled weight does not fit in an int.
	ErrWeightRange = errors.New("pbsat: weight out of range after scaling")
	// ErrCostMismatch is returned when the cost reported by gophersat does
	// not match the exact score of the model it returned.
	ErrCostMismatch = errors.New("pbsat: optimizer cost disagrees with model score")
)

// maxSearches is the number of gophersat searches, running or abandoned,
// allowed at once.
var maxSearches = int64(runtime.GOMAXPROCS(0))

var searches = semaphore.NewWeighted(maxSearches)

// Backend is a single-use gophersat adapter.
type Backend struct {
	// Scale multiplies real coefficients before rounding. Zero means DefaultScale.
	Scale float64

	model     *ilp.Model
	search    *search
	x         []bool
	score     float64
	found     bool
	abandoned bool
	refined   int
}

// New returns a backend with the default scale.
func New() *Backend { return &Backend{Scale: DefaultScale} }

// Factory returns an ilp.BackendFactory producing pbsat backends.
func Factory() ilp.BackendFactory {
	return func() (ilp.Backend, error) { return New(), nil }
}

func (b *Backend) scale() float64 {
	if b.Scale <= 0 {
		return DefaultScale
	}
	return b.Scale
}

// Load implements ilp.Backend. Start values are ignored: gophersat has no
// warm-start interface.
func (b *Backend) Load(_ context.Context, m *ilp.Model) error {
	s := &search{model: m, scale: b.scale(), objW: make([]int, m.NumVars())}
	for _, c := range m.Constraints() {
		r, ok, err := b.normalize(c)
		if err != nil {
			return fmt.Errorf("row %s: %w", c, err)
		}
		if ok {
			s.rows = append(s.rows, r)
		}
	}
	for i := range s.objW {
		w, err := b.toInt(m.Objective(i))
		if err != nil {
			return fmt.Errorf("objective of variable %d: %w", i, err)
		}
		s.objW[i] = w
		s.slack += math.Abs(float64(w) - m.Objective(i)*s.scale)
		if w > 0 {
			s.posSum += w
		}
	}
	b.model = m
	b.search = s
	b.found = false
	b.refined = 0
	return nil
}

// row is a normalized constraint Σ weights·lits ≥ k. Literals use the DIMACS
// convention: variable i is i+1, its negation -(i+1).
type row struct {
	lits    []int
	weights []int
	k       int
}

// constr converts r for gophersat. The parser keeps the slices it is given,
// so every problem gets fresh copies.
func (r row) constr() solver.PBConstr {
	return solver.GtEq(slices.Clone(r.lits), slices.Clone(r.weights), r.k)
}

// normalize rewrites c as a ≥ row. ok is false for rows that are trivially
// satisfied.
func (b *Backend) normalize(c ilp.Constraint) (row, bool, error) {
	integral := isIntegral(c.RHS)
	for _, t := range c.Terms {
		integral = integral && isIntegral(t.Coef)
	}
	factor := 1.0
	if !integral {
		factor = b.scale()
	}
	sign := 1.0
	if c.Sense == ilp.LessEq {
		sign = -1
	}

	r := row{
		lits:    make([]int, 0, len(c.Terms)),
		weights: make([]int, 0, len(c.Terms)),
	}
	rhs := sign * c.RHS * factor
	if integral {
		rhs = math.Ceil(rhs - eps)
	} else {
		// Rounding each coefficient moves the activity by at most 0.5 per
		// term; relax the bound by that much so no feasible row is cut.
		rhs = math.Floor(rhs) - float64(len(c.Terms))
	}
	for _, t := range c.Terms {
		w := math.Round(sign * t.Coef * factor)
		if math.Abs(w) > maxWeight {
			return row{}, false, ErrWeightRange
		}
		switch {
		case w > 0:
			r.lits = append(r.lits, t.Var+1)
			r.weights = append(r.weights, int(w))
		case w < 0:
			r.lits = append(r.lits, -(t.Var + 1))
			r.weights = append(r.weights, int(-w))
			rhs -= w
		}
	}
	if rhs <= 0 {
		return row{}, false, nil
	}
	if rhs > maxWeight {
		return row{}, false, ErrWeightRange
	}
	r.k = int(rhs)
	return r, true, nil
}

func (b *Backend) toInt(v float64) (int, error) {
	w := math.Round(v * b.scale())
	if math.Abs(w) > maxWeight {
		return 0, ErrWeightRange
	}
	return int(w), nil
}

func isIntegral(v float64) bool { return v == math.Trunc(v) }

// search holds everything a gophersat run reads. It is owned by the search
// goroutine once started, so an abandoned run never races with Close.
type search struct {
	model  *ilp.Model
	rows   []row
	objW   []int
	posSum int
	// slack bounds |Σ objW·x − scale·score(x)| over all assignments.
	slack float64
	scale float64
	stop  atomic.Bool
}

type outcome struct {
	sat     bool
	x       []bool
	score   float64
	exact   bool
	refined int
	err     error
}

func (s *search) optimize() bool {
	return slices.ContainsFunc(s.objW, func(w int) bool { return w != 0 })
}

// problem parses the model rows plus extra. With cost set, the objective is
// installed as a minimization: Σ_{w>0} w·¬x + Σ_{w<0} |w|·x.
func (s *search) problem(cost bool, extra ...row) *solver.Problem {
	constrs := make([]solver.PBConstr, 0, len(s.rows)+len(extra))
	for _, r := range s.rows {
		constrs = append(constrs, r.constr())
	}
	for _, r := range extra {
		constrs = append(constrs, r.constr())
	}
	pb := solver.ParsePBConstrs(constrs)
	if cost {
		var (
			lits    []solver.Lit
			weights []int
		)
		for i, w := range s.objW {
			switch {
			case w > 0:
				lits = append(lits, solver.IntToLit(-int32(i+1)))
				weights = append(weights, w)
			case w < 0:
				lits = append(lits, solver.IntToLit(int32(i+1)))
				weights = append(weights, -w)
			}
		}
		pb.SetCostFunc(lits, weights)
	}
	return pb
}

// assignment widens a gophersat model to every variable. Variables that
// appear in no row are dropped by the parser and stay 0.
func (s *search) assignment(model []bool) []bool {
	x := make([]bool, s.model.NumVars())
	copy(x, model)
	return x
}

// block is the clause excluding exactly x.
func (s *search) block(x []bool) row {
	r := row{lits: make([]int, len(x)), weights: make([]int, len(x)), k: 1}
	for i, v := range x {
		r.lits[i] = i + 1
		if v {
			r.lits[i] = -(i + 1)
		}
		r.weights[i] = 1
	}
	return r
}

// improving is the row admitting every assignment whose exact score could
// exceed best: Σ objW·x ≥ ⌊scale·best − slack⌋ + 1. ok is false when the
// row is trivially satisfied.
func (s *search) improving(best float64) (row, bool) {
	k := int(math.Floor(best*s.scale-s.slack)) + 1
	var r row
	for i, w := range s.objW {
		switch {
		case w > 0:
			r.lits = append(r.lits, i+1)
			r.weights = append(r.weights, w)
		case w < 0:
			r.lits = append(r.lits, -(i + 1))
			r.weights = append(r.weights, -w)
			k -= w
		}
	}
	if k <= 0 {
		return row{}, false
	}
	r.k = k
	return r, true
}

// exactScaling reports whether the scaled objective orders assignments the
// same way as the real one, up to eps.
func (s *search) exactScaling() bool { return s.slack/s.scale < eps/10 }

func (s *search) run() outcome {
	if !s.optimize() {
		sv := solver.New(s.problem(false))
		if sv.Solve() != solver.Sat {
			return outcome{}
		}
		x := s.assignment(sv.Model())
		return outcome{sat: true, x: x, score: s.model.Evaluate(x), exact: true}
	}

	sv := solver.New(s.problem(true))
	cost := sv.Minimize()
	if cost < 0 {
		return outcome{}
	}
	best := s.assignment(sv.Model())
	bestScore := s.model.Evaluate(best)
	if err := s.checkCost(cost, bestScore); err != nil {
		return outcome{err: err}
	}
	if s.exactScaling() {
		return outcome{sat: true, x: best, score: bestScore, exact: true}
	}

	seen := []row{s.block(best)}
	for i := 0; i < maxRefinements; i++ {
		if s.stop.Load() {
			break
		}
		extra := seen
		if cut, ok := s.improving(bestScore); ok {
			extra = append(slices.Clip(seen), cut)
		}
		sv := solver.New(s.problem(false, extra...))
		if sv.Solve() != solver.Sat {
			return outcome{sat: true, x: best, score: bestScore, exact: true, refined: i + 1}
		}
		x := s.assignment(sv.Model())
		if sc := s.model.Evaluate(x); sc > bestScore {
			best, bestScore = x, sc
		}
		seen = append(seen, s.block(x))
	}
	return outcome{sat: true, x: best, score: bestScore, refined: len(seen) - 1}
}

// checkCost compares the optimizer's own cost, mapped back to a score, with
// the exact score of its model. They may differ by the rounding slack only.
func (s *search) checkCost(cost int, score float64) error {
	engine := float64(s.posSum-cost) / s.scale
	if math.Abs(engine-score) > (s.slack+0.5)/s.scale+eps {
		return fmt.Errorf("%w: cost %d is score %v, model scores %v", ErrCostMismatch, cost, engine, score)
	}
	return nil
}

// SolveMIP implements ilp.Backend.
//
// On deadline the search goroutine is abandoned: it stops between
// refinement searches but cannot interrupt a running one. It keeps its
// search slot until it returns, so abandoned work never exceeds maxSearches.
func (b *Backend) SolveMIP(ctx context.Context) (ilp.State, error) {
	if b.search == nil {
		return ilp.StateReturnNull, ErrNotLoaded
	}
	if err := searches.Acquire(ctx, 1); err != nil {
		return ilp.StateReturnNull, nil
	}
	s := b.search
	done := make(chan outcome, 1)
	go func() {
		defer searches.Release(1)
		done <- s.run()
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		s.stop.Store(true)
		b.abandoned = true
		return ilp.StateReturnNull, nil
	}
	if o.err != nil {
		return ilp.StateReturnNull, o.err
	}
	if !o.sat {
		return ilp.StateReturnNull, nil
	}
	b.refined = o.refined
	// An exact optimum below the bound proves no tree reaches it.
	if o.exact && b.model.HasLowerBound() && o.score < b.model.LowerBound()-eps {
		return ilp.StateReturnNull, nil
	}
	b.x = o.x
	b.score = o.score
	b.found = true
	return ilp.StateBuildSolution, nil
}

// VariableAssignment implements ilp.Backend.
func (b *Backend) VariableAssignment() ([]bool, error) {
	if !b.found {
		return nil, ErrNoSolution
	}
	return append([]bool(nil), b.x...), nil
}

// SolverScore implements ilp.Backend. The score is the exact score of the
// assignment; SolveMIP has already checked it against the optimizer's cost.
func (b *Backend) SolverScore() (float64, error) {
	if !b.found {
		return 0, ErrNoSolution
	}
	return b.score, nil
}

// PastBuildSolution implements ilp.Backend. It rejects solutions whose
// exact score misses the lower bound, which only happens when refinement
// hit maxRefinements.
func (b *Backend) PastBuildSolution() (ilp.State, error) {
	if !b.found {
		return ilp.StateReturnNull, ErrNoSolution
	}
	if b.model.HasLowerBound() && b.score < b.model.LowerBound()-eps {
		return ilp.StateReturnNull, nil
	}
	return ilp.StateFinished, nil
}

// Abandoned reports whether the last SolveMIP left a search running after
// its context expired.
func (b *Backend) Abandoned() bool { return b.abandoned }

// Refinements reports how many searches ran after the scaled optimum.
func (b *Backend) Refinements() int { return b.refined }

// Close implements ilp.Backend.
func (b *Backend) Close() error {
	b.search = nil
	b.model = nil
	return nil
}
