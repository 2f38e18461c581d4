package ilp

import (
	"errors"
	"math"
	"time"

	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
)

var (
	// ErrVariablesUndefined is returned when a constraint family or the
	// objective is added before DefineVariables.
	ErrVariablesUndefined = errors.New("variables are not defined")

	// ErrVariablesDefined is returned when variables are defined twice.
	ErrVariablesDefined = errors.New("variables are already defined")

	// ErrObjectiveUndefined is returned by Build when SetObjective was not called.
	ErrObjectiveUndefined = errors.New("objective is not set")
)

// ModelBuilder translates a fragmentation graph into a [Model].
//
// The builder mirrors the classic solver set-up sequence: define variables,
// add the constraint families, apply the lower bound, set the objective,
// then Build. It is single-use and not safe for concurrent use.
type ModelBuilder struct {
	g          *fgraph.Graph
	ix         *EdgeIndex
	lowerBound float64
	timeLimit  time.Duration

	varsDefined  bool
	objectiveSet bool
	objective    []float64
	start        []bool
	constraints  []Constraint
}

// NewModelBuilder creates a builder for g. ix must have been built from g.
// Use math.Inf(-1) for "no lower bound".
func NewModelBuilder(g *fgraph.Graph, ix *EdgeIndex, lowerBound float64) *ModelBuilder {
	return &ModelBuilder{g: g, ix: ix, lowerBound: lowerBound}
}

// SetTimeLimit records the solve budget carried by the model (0 = unbounded).
func (b *ModelBuilder) SetTimeLimit(d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.timeLimit = d
}

// DefineVariables creates one binary variable per loss with no start values.
func (b *ModelBuilder) DefineVariables() error {
	if b.varsDefined {
		return ErrVariablesDefined
	}
	b.varsDefined = true
	return nil
}

// DefineVariablesWithStartValues creates one binary variable per loss and
// seeds start values from a heuristic tree: 1 for every loss the tree uses,
// 0 otherwise. The tree is matched onto the graph top-down, starting at the
// pseudo-root's child with the root's formula. Start values never change
// feasibility; they only help the backend find an incumbent.
// A tree that cannot be mapped leaves the variables undefined, so the caller
// may fall back to DefineVariables.
func (b *ModelBuilder) DefineVariablesWithStartValues(t *ftree.Tree) error {
	if b.varsDefined {
		return ErrVariablesDefined
	}
	start, err := treeToAssignment(b.g, b.ix, t)
	if err != nil {
		return err
	}
	b.start = start
	b.varsDefined = true
	return nil
}

// SetConstraints adds every structural family: tree, color, minimal tree
// size and root degree.
func (b *ModelBuilder) SetConstraints() error {
	for _, add := range []func() error{
		b.SetTreeConstraint,
		b.SetColorConstraint,
		b.SetMinimalTreeSizeConstraint,
		b.SetRootDegreeConstraint,
	} {
		if err := add(); err != nil {
			return err
		}
	}
	return nil
}

// SetTreeConstraint adds, for every outgoing loss o of a non-root vertex v,
// x_o − Σ incoming(v) ≤ 0: a loss may only be selected if its source was
// reached. A reached vertex may keep any number of children.
func (b *ModelBuilder) SetTreeConstraint() error {
	if !b.varsDefined {
		return ErrVariablesUndefined
	}
	for v := 0; v < b.g.NumFragments(); v++ {
		out := b.ix.Outgoing(v)
		if v == b.g.Root() || len(out) == 0 {
			continue
		}
		in := b.g.Incoming(v)
		for _, o := range out {
			terms := make([]Term, 0, len(in)+1)
			terms = append(terms, Term{Var: o, Coef: 1})
			for _, e := range in {
				terms = append(terms, Term{Var: e, Coef: -1})
			}
			b.constraints = append(b.constraints, Constraint{
				Kind: KindTree, Subject: v, Terms: terms, Sense: LessEq, RHS: 0,
			})
		}
	}
	return nil
}

// SetColorConstraint adds, for every color, Σ incoming losses of that
// color ≤ 1, so no formula appears twice in a solution. Colors with a
// single incoming loss are trivially satisfied and produce no row.
func (b *ModelBuilder) SetColorConstraint() error {
	if !b.varsDefined {
		return ErrVariablesUndefined
	}
	byColor := make([][]Term, b.g.NumColors())
	for e := 0; e < b.g.NumLosses(); e++ {
		c := b.g.Color(e)
		byColor[c] = append(byColor[c], Term{Var: e, Coef: 1})
	}
	for c, terms := range byColor {
		if len(terms) < 2 {
			continue
		}
		b.constraints = append(b.constraints, Constraint{
			Kind: KindColor, Subject: c, Terms: terms, Sense: LessEq, RHS: 1,
		})
	}
	return nil
}

// SetMinimalTreeSizeConstraint adds Σ root outgoing ≥ 1: the empty tree is
// infeasible.
func (b *ModelBuilder) SetMinimalTreeSizeConstraint() error {
	if !b.varsDefined {
		return ErrVariablesUndefined
	}
	b.constraints = append(b.constraints, Constraint{
		Kind: KindMinimalTreeSize, Subject: b.g.Root(), Terms: b.rootTerms(), Sense: GreaterEq, RHS: 1,
	})
	return nil
}

// SetRootDegreeConstraint adds Σ root outgoing ≤ 1: the solution is rooted
// at exactly one child of the pseudo-root.
func (b *ModelBuilder) SetRootDegreeConstraint() error {
	if !b.varsDefined {
		return ErrVariablesUndefined
	}
	b.constraints = append(b.constraints, Constraint{
		Kind: KindRootDegree, Subject: b.g.Root(), Terms: b.rootTerms(), Sense: LessEq, RHS: 1,
	})
	return nil
}

func (b *ModelBuilder) rootTerms() []Term {
	out := b.ix.Outgoing(b.g.Root())
	terms := make([]Term, len(out))
	for i, e := range out {
		terms[i] = Term{Var: e, Coef: 1}
	}
	return terms
}

// ApplyLowerBounds adds the cut Σ weight·x ≥ lowerBound so the backend can
// stop once the bound is out of reach. A lower bound of -Inf adds nothing.
func (b *ModelBuilder) ApplyLowerBounds() error {
	if !b.varsDefined {
		return ErrVariablesUndefined
	}
	if math.IsInf(b.lowerBound, -1) {
		return nil
	}
	if err := ferrors.ValidateLowerBound(b.lowerBound); err != nil {
		return err
	}
	b.constraints = append(b.constraints, Constraint{
		Kind: KindLowerBound, Subject: -1, Terms: b.weightTerms(), Sense: GreaterEq, RHS: b.lowerBound,
	})
	return nil
}

func (b *ModelBuilder) weightTerms() []Term {
	terms := make([]Term, b.g.NumLosses())
	for e := range terms {
		terms[e] = Term{Var: e, Coef: b.g.Loss(e).Weight}
	}
	return terms
}

// SetObjective sets the objective: maximize Σ weight·x.
func (b *ModelBuilder) SetObjective() error {
	if !b.varsDefined {
		return ErrVariablesUndefined
	}
	b.objective = make([]float64, b.g.NumLosses())
	for e := range b.objective {
		b.objective[e] = b.g.Loss(e).Weight
	}
	b.objectiveSet = true
	return nil
}

// Build returns the immutable, ready-to-solve model.
func (b *ModelBuilder) Build() (*Model, error) {
	if !b.varsDefined {
		return nil, ErrVariablesUndefined
	}
	if !b.objectiveSet {
		return nil, ErrObjectiveUndefined
	}
	lb := b.lowerBound
	if math.IsNaN(lb) {
		lb = math.Inf(-1)
	}
	return &Model{
		numVars:     b.g.NumLosses(),
		objective:   b.objective,
		start:       b.start,
		constraints: b.constraints,
		lowerBound:  lb,
		timeLimit:   b.timeLimit,
	}, nil
}

// treeToAssignment maps the losses used by t onto graph loss ids.
// Nodes are matched top-down: a child must be the target of one of its
// mapped parent's outgoing losses with the same formula. VertexID, when set,
// must agree.
func treeToAssignment(g *fgraph.Graph, ix *EdgeIndex, t *ftree.Tree) ([]bool, error) {
	if t == nil {
		return nil, ferrors.New(ferrors.ErrCodeInvalidTree, "warm-start tree is nil")
	}
	x := make([]bool, g.NumLosses())

	type item struct {
		node   *ftree.Node
		vertex int
	}
	rootLoss, ok := matchChild(g, ix, g.Root(), t.Root())
	if !ok {
		return nil, ferrors.New(ferrors.ErrCodeInvalidTree,
			"warm-start root %q is not a child of the pseudo-root", t.Root().Formula)
	}
	x[rootLoss] = true
	stack := []item{{t.Root(), g.Loss(rootLoss).Target}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range it.node.Children {
			e, ok := matchChild(g, ix, it.vertex, child)
			if !ok {
				return nil, ferrors.New(ferrors.ErrCodeInvalidTree,
					"warm-start fragment %q has no loss from %q", child.Formula, g.Formula(it.vertex))
			}
			if x[e] {
				return nil, ferrors.New(ferrors.ErrCodeInvalidTree,
					"warm-start loss %d used twice", e)
			}
			x[e] = true
			stack = append(stack, item{child, g.Loss(e).Target})
		}
	}
	return x, nil
}

// matchChild finds the outgoing loss of vertex u leading to n's fragment.
func matchChild(g *fgraph.Graph, ix *EdgeIndex, u int, n *ftree.Node) (int, bool) {
	found := -1
	for _, e := range ix.Outgoing(u) {
		target := g.Loss(e).Target
		if n.VertexID != ftree.NoVertex && n.VertexID != target {
			continue
		}
		if g.Formula(target) != n.Formula {
			continue
		}
		if found >= 0 {
			return -1, false
		}
		found = e
	}
	return found, found >= 0
}
