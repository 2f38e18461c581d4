package ilp

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Sense is the comparison of a constraint row against its right-hand side.
type Sense int

const (
	LessEq    Sense = iota // Σ coef·x ≤ rhs
	GreaterEq              // Σ coef·x ≥ rhs
)

func (s Sense) String() string {
	if s == LessEq {
		return "<="
	}
	return ">="
}

// ConstraintKind names the constraint family a row belongs to.
type ConstraintKind int

const (
	KindTree ConstraintKind = iota
	KindColor
	KindMinimalTreeSize
	KindRootDegree
	KindLowerBound
)

var kindNames = map[ConstraintKind]string{
	KindTree:            "tree",
	KindColor:           "color",
	KindMinimalTreeSize: "minimal-tree-size",
	KindRootDegree:      "root-degree",
	KindLowerBound:      "lower-bound",
}

func (k ConstraintKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// feasibilityTol absorbs rounding in the lower-bound row, whose
// coefficients are real-valued loss weights.
const feasibilityTol = 1e-9

// Term is one coefficient of a constraint row.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is a linear row over the binary loss variables.
// Subject identifies the vertex (tree), color (color) or root the row was
// generated for, and is -1 for the lower-bound row.
type Constraint struct {
	Kind    ConstraintKind
	Subject int
	Terms   []Term
	Sense   Sense
	RHS     float64
}

// Activity returns Σ coef·x for the assignment x.
func (c Constraint) Activity(x []bool) float64 {
	var sum float64
	for _, t := range c.Terms {
		if x[t.Var] {
			sum += t.Coef
		}
	}
	return sum
}

// Satisfied reports whether x satisfies the row.
func (c Constraint) Satisfied(x []bool) bool {
	a := c.Activity(x)
	if c.Sense == LessEq {
		return a <= c.RHS+feasibilityTol
	}
	return a >= c.RHS-feasibilityTol
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s[%d]: %d terms %s %g", c.Kind, c.Subject, len(c.Terms), c.Sense, c.RHS)
}

// Model is a ready-to-solve 0/1 program: maximize Σ objective[i]·x[i]
// subject to the constraint rows. A Model is immutable; it is produced by
// [ModelBuilder.Build] and never partially configured.
type Model struct {
	numVars     int
	objective   []float64
	start       []bool
	constraints []Constraint
	lowerBound  float64
	timeLimit   time.Duration
}

// NumVars returns the number of binary variables (one per loss).
func (m *Model) NumVars() int { return m.numVars }

// Objective returns the objective coefficient of variable i.
func (m *Model) Objective(i int) float64 { return m.objective[i] }

// ObjectiveCoefs returns a copy of all objective coefficients.
func (m *Model) ObjectiveCoefs() []float64 { return slices.Clone(m.objective) }

// Start returns a copy of the warm-start values and true, or nil and false
// for a cold start.
func (m *Model) Start() ([]bool, bool) {
	if m.start == nil {
		return nil, false
	}
	return slices.Clone(m.start), true
}

// Constraints returns the constraint rows. Rows and their term slices are
// shared with the model and must be treated as read-only.
func (m *Model) Constraints() []Constraint { return slices.Clone(m.constraints) }

// NumConstraints returns the number of rows.
func (m *Model) NumConstraints() int { return len(m.constraints) }

// LowerBound returns the objective cut, or -Inf when none was applied.
func (m *Model) LowerBound() float64 { return m.lowerBound }

// HasLowerBound reports whether a finite lower bound was applied.
func (m *Model) HasLowerBound() bool { return !math.IsInf(m.lowerBound, -1) }

// TimeLimit returns the solve budget, or 0 for unbounded.
func (m *Model) TimeLimit() time.Duration { return m.timeLimit }

// Evaluate returns the objective value of x.
func (m *Model) Evaluate(x []bool) float64 {
	var sum float64
	for i, on := range x {
		if on {
			sum += m.objective[i]
		}
	}
	return sum
}

// Feasible reports whether x satisfies every constraint row.
func (m *Model) Feasible(x []bool) bool {
	if len(x) != m.numVars {
		return false
	}
	for _, c := range m.constraints {
		if !c.Satisfied(x) {
			return false
		}
	}
	return true
}
