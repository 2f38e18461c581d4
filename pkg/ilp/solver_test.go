package ilp_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
	"github.com/matzehuels/fragtree/pkg/ilp"
	"github.com/matzehuels/fragtree/pkg/ilp/backend/enum"
)

// scripted is a fake backend that replays fixed answers.
type scripted struct {
	state     ilp.State
	x         []bool
	score     float64
	post      ilp.State
	solveErr  error
	panicMsg  string
	loaded    *ilp.Model
	closed    int
	postCalls int
}

func (s *scripted) Load(_ context.Context, m *ilp.Model) error { s.loaded = m; return nil }

func (s *scripted) SolveMIP(context.Context) (ilp.State, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.state, s.solveErr
}

func (s *scripted) VariableAssignment() ([]bool, error) { return s.x, nil }
func (s *scripted) SolverScore() (float64, error)       { return s.score, nil }

func (s *scripted) PastBuildSolution() (ilp.State, error) {
	s.postCalls++
	return s.post, nil
}

func (s *scripted) Close() error { s.closed++; return nil }

func factoryOf(b ilp.Backend) ilp.BackendFactory {
	return func() (ilp.Backend, error) { return b, nil }
}

func TestSolveOptimal(t *testing.T) {
	g := glucoseGraph(t)
	res, err := ilp.NewSolver(enum.Factory()).Solve(context.Background(), g)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Status != ilp.StatusOptimal {
		t.Fatalf("Status = %v, want optimal", res.Status)
	}
	if res.Score != glucoseOptimum || res.Tree.Score() != glucoseOptimum {
		t.Errorf("Score = %v, tree score %v, want %v", res.Score, res.Tree.Score(), glucoseOptimum)
	}
	if res.Tree.Root().Formula != "C6H12O6" {
		t.Errorf("root = %q, want C6H12O6", res.Tree.Root().Formula)
	}
}

// Colorfulness, treeness and score consistency hold for every solved graph.
func TestSolvePropertiesAcrossGraphs(t *testing.T) {
	tests := []struct {
		name  string
		graph func(t *testing.T) *fgraph.Graph
		want  float64
	}{
		{"glucose", glucoseGraph, glucoseOptimum},
		{"chain all positive", func(t *testing.T) *fgraph.Graph { return chainGraph(t, 1, 2, 3) }, 6},
		{"chain negative tail", func(t *testing.T) *fgraph.Graph { return chainGraph(t, 1, 2, -3) }, 3},
		{"chain negative root", func(t *testing.T) *fgraph.Graph { return chainGraph(t, -2, 1, 1) }, 0},
		{"negative only", func(t *testing.T) *fgraph.Graph {
			return buildGraph(t, []string{"", "A", "B"}, []lossSpec{{0, 1, -3}, {0, 2, -1}})
		}, -1},
		{"deep recolor", func(t *testing.T) *fgraph.Graph {
			// The best path reaches C twice; only one copy may stay.
			return buildGraph(t,
				[]string{"", "A", "B", "C", "C", "D"},
				[]lossSpec{{0, 1, 1}, {1, 2, 1}, {2, 3, 5}, {1, 4, 4}, {4, 5, 2}, {3, 5, 1}})
		}, 8},
		{"two children", branchingGraph, branchingOptimum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.graph(t)
			res, err := ilp.NewSolver(enum.Factory()).Solve(context.Background(), g)
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if res.Status != ilp.StatusOptimal {
				t.Fatalf("Status = %v", res.Status)
			}
			if math.Abs(res.Score-tt.want) > 1e-9 {
				t.Errorf("Score = %v, want %v", res.Score, tt.want)
			}
			seen := make(map[string]bool)
			for _, n := range res.Tree.Nodes() {
				if n.IsPseudo() {
					continue
				}
				if seen[n.Formula] {
					t.Errorf("formula %q appears twice", n.Formula)
				}
				seen[n.Formula] = true
			}
			if err := ilp.Verify(res.Tree, g, res.Score); err != nil {
				t.Errorf("Verify: %v", err)
			}
		})
	}
}

func TestSolveOneLossFastPath(t *testing.T) {
	for _, w := range []float64{2.5, 0, -7} {
		g := buildGraph(t, []string{"", "C6H12O6"}, []lossSpec{{0, 1, w}})
		called := false
		factory := func() (ilp.Backend, error) {
			called = true
			return enum.New(), nil
		}
		// The lower bound is not applied on the fast path.
		res, err := ilp.NewSolver(factory, ilp.WithLowerBound(100)).Solve(context.Background(), g)
		if err != nil {
			t.Fatalf("w=%v: %v", w, err)
		}
		if called {
			t.Errorf("w=%v: backend was created", w)
		}
		if res.Status != ilp.StatusOptimal || res.Tree.Len() != 1 {
			t.Fatalf("w=%v: status %v, tree %v", w, res.Status, res.Tree)
		}
		if res.Score != w || res.Tree.RootScore() != w {
			t.Errorf("w=%v: score %v, root score %v", w, res.Score, res.Tree.RootScore())
		}
		if res.Tree.Root().Formula != "C6H12O6" {
			t.Errorf("w=%v: root %q", w, res.Tree.Root().Formula)
		}
	}
}

func TestSolveNoLosses(t *testing.T) {
	g := buildGraph(t, []string{""}, nil)
	res, err := ilp.NewSolver(enum.Factory()).Solve(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != ilp.StatusInfeasible || res.Tree != nil {
		t.Errorf("res = %+v, want infeasible", res)
	}
}

func TestSolveLowerBound(t *testing.T) {
	g := glucoseGraph(t)
	tests := []struct {
		lb   float64
		want ilp.Status
	}{
		{math.Inf(-1), ilp.StatusOptimal},
		{-100, ilp.StatusOptimal},
		{glucoseOptimum, ilp.StatusOptimal},
		{glucoseOptimum + 0.5, ilp.StatusInfeasible},
		{1e6, ilp.StatusInfeasible},
	}
	for _, tt := range tests {
		res, err := ilp.NewSolver(enum.Factory(), ilp.WithLowerBound(tt.lb)).Solve(context.Background(), g)
		if err != nil {
			t.Fatalf("lb=%v: %v", tt.lb, err)
		}
		if res.Status != tt.want {
			t.Errorf("lb=%v: status %v, want %v", tt.lb, res.Status, tt.want)
		}
		if res.Status == ilp.StatusOptimal && res.Score != glucoseOptimum {
			t.Errorf("lb=%v: score %v, want %v", tt.lb, res.Score, glucoseOptimum)
		}
	}
}

type fixedTree struct {
	tree *ftree.Tree
	err  error
}

func (f fixedTree) BuildTree(context.Context, *fgraph.Graph, float64) (*ftree.Tree, error) {
	return f.tree, f.err
}

func TestSolveWarmStartNeutral(t *testing.T) {
	g := glucoseGraph(t)

	suboptimal := ftree.New("C6H10O5", 0.5)
	suboptimal.AddFragment(suboptimal.Root(), "C3H6O3", 5)

	builders := map[string]ilp.TreeBuilder{
		"none":       nil,
		"suboptimal": fixedTree{tree: suboptimal},
		"unmappable": fixedTree{tree: ftree.New("H2O", 1)},
		"failing":    fixedTree{err: errors.New("heuristic failed")},
		"nil tree":   fixedTree{},
	}
	for name, tb := range builders {
		t.Run(name, func(t *testing.T) {
			res, err := ilp.NewSolver(enum.Factory(), ilp.WithFeasibleSolver(tb)).Solve(context.Background(), g)
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if res.Status != ilp.StatusOptimal || res.Score != glucoseOptimum {
				t.Errorf("status %v score %v, want optimal %v", res.Status, res.Score, glucoseOptimum)
			}
		})
	}
}

func TestSolveWarmStartReachesBackend(t *testing.T) {
	g := glucoseGraph(t)
	warm := ftree.New("C6H12O6", 1)
	warm.AddFragment(warm.Root(), "C5H10O5", 2)

	fake := &scripted{state: ilp.StateReturnNull}
	_, err := ilp.NewSolver(factoryOf(fake), ilp.WithFeasibleSolver(fixedTree{tree: warm})).
		Solve(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	start, ok := fake.loaded.Start()
	if !ok || !start[0] || !start[2] || start[5] {
		t.Errorf("start = %v, %v", start, ok)
	}
}

func TestSolveBackendStates(t *testing.T) {
	g := glucoseGraph(t)

	t.Run("return null", func(t *testing.T) {
		fake := &scripted{state: ilp.StateReturnNull}
		res, err := ilp.NewSolver(factoryOf(fake)).Solve(context.Background(), g)
		if err != nil || res.Status != ilp.StatusInfeasible {
			t.Errorf("res=%+v err=%v, want infeasible", res, err)
		}
		if fake.postCalls != 0 {
			t.Error("PastBuildSolution called after return-null")
		}
		if fake.closed != 1 {
			t.Errorf("Close called %d times, want 1", fake.closed)
		}
	})

	t.Run("rejected after build", func(t *testing.T) {
		fake := &scripted{state: ilp.StateBuildSolution, x: glucoseSelection, score: glucoseOptimum, post: ilp.StateReturnNull}
		res, err := ilp.NewSolver(factoryOf(fake)).Solve(context.Background(), g)
		if err != nil || res.Status != ilp.StatusRejected || res.Tree != nil {
			t.Errorf("res=%+v err=%v, want rejected", res, err)
		}
		if fake.closed != 1 {
			t.Errorf("Close called %d times, want 1", fake.closed)
		}
	})

	t.Run("finished is accepted", func(t *testing.T) {
		fake := &scripted{state: ilp.StateFinished, x: glucoseSelection, score: glucoseOptimum, post: ilp.StateFinished}
		res, err := ilp.NewSolver(factoryOf(fake)).Solve(context.Background(), g)
		if err != nil || res.Status != ilp.StatusOptimal {
			t.Errorf("res=%+v err=%v, want optimal", res, err)
		}
	})
}

func TestSolveFailures(t *testing.T) {
	g := glucoseGraph(t)

	tests := []struct {
		name         string
		backend      *scripted
		inconsistent bool
	}{
		{"backend error", &scripted{solveErr: errors.New("engine crashed")}, false},
		{"panic", &scripted{panicMsg: "nil pointer in engine"}, false},
		{"wrong score", &scripted{state: ilp.StateBuildSolution, x: glucoseSelection, score: glucoseOptimum + 1}, true},
		{"color violated", &scripted{
			state: ilp.StateBuildSolution,
			x:     []bool{true, false, true, false, true, true, false},
			score: 10,
		}, true},
		{"no root loss", &scripted{state: ilp.StateBuildSolution, x: make([]bool, 7)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ilp.NewSolver(factoryOf(tt.backend)).Solve(context.Background(), g)
			if err == nil {
				t.Fatal("expected error")
			}
			if res.Tree != nil || res.Status != 0 || res.Score != 0 {
				t.Errorf("result alongside error: %+v", res)
			}
			if !ferrors.Is(err, ferrors.ErrCodeSolver) {
				t.Errorf("outer code = %s, want SOLVER_FAILURE", ferrors.GetCode(err))
			}
			if got := ferrors.Has(err, ferrors.ErrCodeInconsistent); got != tt.inconsistent {
				t.Errorf("Has(INTERNAL_CONSISTENCY) = %v, want %v", got, tt.inconsistent)
			}
			if tt.backend.closed != 1 {
				t.Errorf("Close called %d times, want 1", tt.backend.closed)
			}
		})
	}
}

func TestSolveFactoryError(t *testing.T) {
	factory := func() (ilp.Backend, error) { return nil, errors.New("no license") }
	_, err := ilp.NewSolver(factory).Solve(context.Background(), glucoseGraph(t))
	if !ferrors.Is(err, ferrors.ErrCodeSolver) {
		t.Errorf("err = %v, want SOLVER_FAILURE", err)
	}
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ilp.NewSolver(enum.Factory()).Solve(ctx, glucoseGraph(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}

func TestSolveCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := ilp.NewSolver(enum.Factory()).Solve(ctx, glucoseGraph(t))
	if !ferrors.Is(err, ferrors.ErrCodeTimeout) {
		t.Errorf("err = %v, want TIMEOUT", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded in chain", err)
	}
}

func TestSolveNilGraph(t *testing.T) {
	_, err := ilp.NewSolver(enum.Factory()).Solve(context.Background(), nil)
	if !ferrors.Is(err, ferrors.ErrCodeSolver) {
		t.Errorf("err = %v, want SOLVER_FAILURE", err)
	}
}

func TestSolverOptions(t *testing.T) {
	s := ilp.NewSolver(enum.Factory(),
		ilp.WithLowerBound(3),
		ilp.WithTimeLimit(-time.Second),
		ilp.WithCPUs(0),
		ilp.WithLogger(nil))
	if s.LowerBound() != 3 {
		t.Errorf("LowerBound = %v", s.LowerBound())
	}
	if s.TimeLimit() != 0 {
		t.Errorf("TimeLimit = %v, want 0", s.TimeLimit())
	}
	if s.CPUs() < 1 {
		t.Errorf("CPUs = %d, want default >= 1", s.CPUs())
	}

	def := ilp.NewSolver(enum.Factory())
	if !math.IsInf(def.LowerBound(), -1) {
		t.Errorf("default LowerBound = %v, want -Inf", def.LowerBound())
	}
}

func TestSolveConcurrent(t *testing.T) {
	g := glucoseGraph(t)
	s := ilp.NewSolver(enum.Factory())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Solve(context.Background(), g)
			if err == nil && res.Score != glucoseOptimum {
				err = errors.New("wrong score")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}
