package ilp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
	"github.com/matzehuels/fragtree/pkg/observability"
)

// Status tags the outcome of a solve that did not fail.
type Status int

const (
	// StatusOptimal means Result.Tree holds an optimal, verified tree.
	StatusOptimal Status = iota
	// StatusInfeasible means no tree reaches the lower bound, or the time
	// budget ran out before a solution was proven.
	StatusInfeasible
	// StatusRejected means the backend discarded a solution after it was built.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the outcome of [Solver.Solve]. Tree is non-nil only for
// StatusOptimal.
type Result struct {
	Status Status
	Tree   *ftree.Tree
	Score  float64
}

// TreeBuilder produces a feasible, not necessarily optimal, tree used as a
// warm start. A nil tree with a nil error means "no suggestion".
type TreeBuilder interface {
	BuildTree(ctx context.Context, g *fgraph.Graph, lowerBound float64) (*ftree.Tree, error)
}

// Option configures a [Solver].
type Option func(*Solver)

// WithLowerBound sets the score below which solutions are not wanted.
// The default is -Inf (no bound).
func WithLowerBound(lb float64) Option {
	return func(s *Solver) { s.lowerBound = lb }
}

// WithTimeLimit bounds each Solve call. Zero or negative means unbounded.
func WithTimeLimit(d time.Duration) Option {
	return func(s *Solver) {
		if d < 0 {
			d = 0
		}
		s.timeLimit = d
	}
}

// WithFeasibleSolver sets the warm-start collaborator.
func WithFeasibleSolver(tb TreeBuilder) Option {
	return func(s *Solver) { s.feasible = tb }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(s *Solver) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCPUs records the CPU budget hint. The default is runtime.NumCPU().
func WithCPUs(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.cpus = n
		}
	}
}

// WithBackendName labels the backend in logs and metrics.
func WithBackendName(name string) Option {
	return func(s *Solver) { s.backendName = name }
}

// Solver drives one backend through the solve protocol.
//
// A Solver holds configuration only. Solve may be called concurrently: each
// call builds its own edge index and model and asks the factory for a new
// backend.
type Solver struct {
	factory     BackendFactory
	backendName string
	lowerBound  float64
	timeLimit   time.Duration
	feasible    TreeBuilder
	logger      *log.Logger
	cpus        int
}

// NewSolver creates a solver for backends produced by factory.
func NewSolver(factory BackendFactory, opts ...Option) *Solver {
	s := &Solver{
		factory:     factory,
		backendName: "custom",
		lowerBound:  math.Inf(-1),
		logger:      log.New(io.Discard),
		cpus:        runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LowerBound returns the configured lower bound.
func (s *Solver) LowerBound() float64 { return s.lowerBound }

// TimeLimit returns the per-solve budget, or 0 for unbounded.
func (s *Solver) TimeLimit() time.Duration { return s.timeLimit }

// CPUs returns the CPU budget hint.
func (s *Solver) CPUs() int { return s.cpus }

// Solve computes the optimal colorful subtree of g.
//
// "No solution" outcomes are reported through Result.Status with a nil
// error. Any failure, including a panic inside a backend, is returned as a
// single SOLVER_FAILURE error wrapping its cause, or TIMEOUT when the
// caller's deadline expired; consistency failures keep their
// INTERNAL_CONSISTENCY code in the chain (see errors.Has). A Result returned
// with an error is always the zero value.
func (s *Solver) Solve(ctx context.Context, g *fgraph.Graph) (res Result, err error) {
	if g == nil {
		return Result{}, ferrors.New(ferrors.ErrCodeSolver, "nil graph")
	}
	start := time.Now()
	hooks := observability.Solver()
	hooks.OnSolveStart(ctx, s.backendName, g.NumLosses())

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		status := res.Status.String()
		if err != nil {
			res = Result{}
			code := ferrors.ErrCodeSolver
			if errors.Is(err, context.DeadlineExceeded) {
				code = ferrors.ErrCodeTimeout
			}
			err = ferrors.Wrap(code, err, "solve graph with %d losses", g.NumLosses())
			status = "error"
		}
		hooks.OnSolveComplete(ctx, s.backendName, status, time.Since(start), err)
		s.logger.Debug("solve finished",
			"backend", s.backendName,
			"status", status,
			"losses", g.NumLosses(),
			"duration", time.Since(start))
	}()

	return s.solve(ctx, g)
}

func (s *Solver) solve(ctx context.Context, g *fgraph.Graph) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	switch g.NumLosses() {
	case 0:
		return Result{Status: StatusInfeasible}, nil
	case 1:
		return oneLoss(g), nil
	}

	ix := NewEdgeIndex(g)
	model, err := s.prepare(ctx, g, ix)
	if err != nil {
		return Result{}, fmt.Errorf("prepare: %w", err)
	}

	solveCtx := ctx
	if model.TimeLimit() > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, model.TimeLimit())
		defer cancel()
	}

	backend, err := s.factory()
	if err != nil {
		return Result{}, fmt.Errorf("create backend: %w", err)
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			s.logger.Warn("close backend", "backend", s.backendName, "err", cerr)
		}
	}()

	if err := backend.Load(solveCtx, model); err != nil {
		return Result{}, fmt.Errorf("load model: %w", err)
	}
	state, err := backend.SolveMIP(solveCtx)
	if err != nil {
		return Result{}, fmt.Errorf("solve: %w", err)
	}
	if state == StateReturnNull {
		// Cancellation by the caller is an error; an expired budget is not.
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusInfeasible}, nil
	}

	score, err := backend.SolverScore()
	if err != nil {
		return Result{}, fmt.Errorf("read score: %w", err)
	}
	x, err := backend.VariableAssignment()
	if err != nil {
		return Result{}, fmt.Errorf("read assignment: %w", err)
	}
	if err := CheckAssignment(g, ix, x); err != nil {
		return Result{}, err
	}
	t, err := Reconstruct(g, ix, x)
	if err != nil {
		return Result{}, err
	}
	if err := Verify(t, g, score); err != nil {
		return Result{}, err
	}

	post, err := backend.PastBuildSolution()
	if err != nil {
		return Result{}, fmt.Errorf("post-solve: %w", err)
	}
	if post == StateReturnNull {
		s.logger.Debug("solution rejected after build", "backend", s.backendName, "score", score)
		return Result{Status: StatusRejected}, nil
	}
	return Result{Status: StatusOptimal, Tree: t, Score: score}, nil
}

// oneLoss builds the tree of a graph whose only loss leaves the pseudo-root.
// The lower bound is not applied.
func oneLoss(g *fgraph.Graph) Result {
	l := g.Loss(0)
	t := ftree.New(g.Formula(l.Target), l.Weight)
	t.Root().VertexID = l.Target
	return Result{Status: StatusOptimal, Tree: t, Score: l.Weight}
}

func (s *Solver) prepare(ctx context.Context, g *fgraph.Graph, ix *EdgeIndex) (*Model, error) {
	b := NewModelBuilder(g, ix, s.lowerBound)
	b.SetTimeLimit(s.timeLimit)

	if !s.warmStart(ctx, g, b) {
		if err := b.DefineVariables(); err != nil {
			return nil, err
		}
	}
	if err := b.SetConstraints(); err != nil {
		return nil, err
	}
	if err := b.ApplyLowerBounds(); err != nil {
		return nil, err
	}
	if err := b.SetObjective(); err != nil {
		return nil, err
	}
	return b.Build()
}

// warmStart seeds start values from the feasible solver. Any failure falls
// back to a cold start.
func (s *Solver) warmStart(ctx context.Context, g *fgraph.Graph, b *ModelBuilder) bool {
	if s.feasible == nil {
		return false
	}
	t, err := s.feasible.BuildTree(ctx, g, s.lowerBound)
	if err != nil {
		s.logger.Warn("feasible solver failed, using cold start", "err", err)
		return false
	}
	if t == nil {
		return false
	}
	if err := b.DefineVariablesWithStartValues(t); err != nil {
		s.logger.Warn("warm-start tree rejected, using cold start", "err", err)
		return false
	}
	s.logger.Debug("warm start", "fragments", t.Len(), "score", t.Score())
	return true
}
