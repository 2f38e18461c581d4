package ilp

import "context"

// State is the outcome a backend reports for a solve or post-solve step.
type State int

const (
	// StateFinished means the step completed and the caller may continue.
	StateFinished State = iota
	// StateReturnNull means no usable solution exists: the model is
	// infeasible, the lower bound cannot be reached, the time budget ran
	// out, or the backend discards the solution after the fact.
	StateReturnNull
	// StateBuildSolution means an optimal assignment is available.
	StateBuildSolution
)

func (s State) String() string {
	switch s {
	case StateFinished:
		return "finished"
	case StateReturnNull:
		return "return-null"
	case StateBuildSolution:
		return "build-solution"
	default:
		return "unknown"
	}
}

// Backend is a numeric engine able to solve a [Model].
//
// A Backend instance serves exactly one solve. The driver calls Load, then
// SolveMIP, then (for StateBuildSolution) VariableAssignment and SolverScore,
// then PastBuildSolution. Close is called on every exit path.
type Backend interface {
	// Load transfers variables, start values, constraints and the objective.
	Load(ctx context.Context, m *Model) error

	// SolveMIP optimizes the loaded model. Implementations must honor ctx's
	// deadline and report StateReturnNull when it expires.
	SolveMIP(ctx context.Context) (State, error)

	// VariableAssignment returns one value per model variable.
	VariableAssignment() ([]bool, error)

	// SolverScore returns the objective value of the assignment.
	SolverScore() (float64, error)

	// PastBuildSolution runs post-solve cleanup and may reject the solution
	// by returning StateReturnNull.
	PastBuildSolution() (State, error)

	// Close releases engine resources. It must be safe to call after any step.
	Close() error
}

// BackendFactory creates a fresh backend for one solve.
type BackendFactory func() (Backend, error)
