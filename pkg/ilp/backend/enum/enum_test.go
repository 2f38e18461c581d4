package enum

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ilp"
)

// branchGraph: "" -> A (1), "" -> B (2); A -> C (3); B -> C' (1), C and C'
// share a formula. Optimum 4 via A and C.
func branchGraph(t *testing.T) *fgraph.Graph {
	t.Helper()
	b := fgraph.NewBuilder()
	root := b.AddFragment("")
	a := b.AddFragment("C6H12O6")
	bb := b.AddFragment("C6H10O5")
	c := b.AddFragment("C5H10O5")
	c2 := b.AddFragment("C5H10O5")
	for _, l := range []struct {
		s, d int
		w    float64
	}{{root, a, 1}, {root, bb, 2}, {a, c, 3}, {bb, c2, 1}} {
		if _, err := b.AddLoss(l.s, l.d, l.w); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func model(t *testing.T, g *fgraph.Graph, lb float64, start []bool) *ilp.Model {
	t.Helper()
	ix := ilp.NewEdgeIndex(g)
	b := ilp.NewModelBuilder(g, ix, lb)
	if start != nil {
		tr, err := ilp.Reconstruct(g, ix, start)
		if err != nil {
			t.Fatal(err)
		}
		if err := b.DefineVariablesWithStartValues(tr); err != nil {
			t.Fatal(err)
		}
	} else if err := b.DefineVariables(); err != nil {
		t.Fatal(err)
	}
	if err := b.SetConstraints(); err != nil {
		t.Fatal(err)
	}
	if err := b.ApplyLowerBounds(); err != nil {
		t.Fatal(err)
	}
	if err := b.SetObjective(); err != nil {
		t.Fatal(err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func solve(t *testing.T, ctx context.Context, m *ilp.Model) (*Backend, ilp.State) {
	t.Helper()
	be := New()
	if err := be.Load(ctx, m); err != nil {
		t.Fatal(err)
	}
	st, err := be.SolveMIP(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return be, st
}

func TestSolveOptimum(t *testing.T) {
	g := branchGraph(t)
	be, st := solve(t, context.Background(), model(t, g, math.Inf(-1), nil))
	if st != ilp.StateBuildSolution {
		t.Fatalf("state = %v, want build-solution", st)
	}
	x, err := be.VariableAssignment()
	if err != nil {
		t.Fatal(err)
	}
	if want := []bool{true, false, true, false}; !slices.Equal(x, want) {
		t.Errorf("assignment = %v, want %v", x, want)
	}
	if score, _ := be.SolverScore(); score != 4 {
		t.Errorf("score = %v, want 4", score)
	}
	if be.Nodes() == 0 {
		t.Error("Nodes = 0")
	}
	if st, err := be.PastBuildSolution(); st != ilp.StateFinished || err != nil {
		t.Errorf("PastBuildSolution = %v, %v", st, err)
	}
	if err := be.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSolveLowerBound(t *testing.T) {
	g := branchGraph(t)
	tests := []struct {
		lb   float64
		want ilp.State
	}{
		{3.5, ilp.StateBuildSolution},
		{4, ilp.StateBuildSolution},
		{4.01, ilp.StateReturnNull},
	}
	for _, tt := range tests {
		_, st := solve(t, context.Background(), model(t, g, tt.lb, nil))
		if st != tt.want {
			t.Errorf("lb=%v: state %v, want %v", tt.lb, st, tt.want)
		}
	}
}

func TestSolveWarmStart(t *testing.T) {
	g := branchGraph(t)

	// Optimal start: the search only has to prove it.
	be, st := solve(t, context.Background(), model(t, g, math.Inf(-1), []bool{true, false, true, false}))
	if st != ilp.StateBuildSolution {
		t.Fatalf("state = %v", st)
	}
	if score, _ := be.SolverScore(); score != 4 {
		t.Errorf("score = %v, want 4", score)
	}

	// Suboptimal start is improved on.
	be, _ = solve(t, context.Background(), model(t, g, math.Inf(-1), []bool{false, true, false, true}))
	if score, _ := be.SolverScore(); score != 4 {
		t.Errorf("score = %v, want 4", score)
	}
}

func TestSolveExpiredContext(t *testing.T) {
	old := checkEvery
	checkEvery = 1
	defer func() { checkEvery = old }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	be, st := solve(t, ctx, model(t, branchGraph(t), math.Inf(-1), nil))
	if st != ilp.StateReturnNull {
		t.Errorf("state = %v, want return-null", st)
	}
	if _, err := be.VariableAssignment(); err != nil && !errors.Is(err, ErrNoSolution) {
		t.Errorf("VariableAssignment: %v", err)
	}
}

func TestNotLoaded(t *testing.T) {
	if _, err := New().SolveMIP(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("err = %v, want ErrNotLoaded", err)
	}
	if _, err := New().SolverScore(); !errors.Is(err, ErrNoSolution) {
		t.Errorf("err = %v, want ErrNoSolution", err)
	}
}

func TestFactory(t *testing.T) {
	b1, err := Factory()()
	if err != nil {
		t.Fatal(err)
	}
	b2, _ := Factory()()
	if b1 == b2 {
		t.Error("factory must return fresh backends")
	}
}

func TestSolveNearTiedWeights(t *testing.T) {
	b := fgraph.NewBuilder()
	root := b.AddFragment("")
	a := b.AddFragment("C6H12O6")
	bb := b.AddFragment("C6H10O5")
	c := b.AddFragment("C5H10O5")
	for _, l := range []struct {
		s, d int
		w    float64
	}{{root, a, 1.0000001}, {root, bb, 1.0000004}, {a, c, 1e-7}} {
		if _, err := b.AddLoss(l.s, l.d, l.w); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	m := model(t, g, 1.0000004, nil)
	be, st := solve(t, context.Background(), m)
	if st != ilp.StateBuildSolution {
		t.Fatalf("state = %v, want build-solution", st)
	}
	x, _ := be.VariableAssignment()
	score, _ := be.SolverScore()
	if want := []bool{false, true, false}; !slices.Equal(x, want) {
		t.Errorf("assignment = %v, want %v", x, want)
	}
	if math.Abs(score-m.Evaluate(x)) > 1e-12 {
		t.Errorf("search score %v, assignment scores %v", score, m.Evaluate(x))
	}
}
