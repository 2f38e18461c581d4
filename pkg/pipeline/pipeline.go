// Package pipeline runs colorful subtree solves end to end.
//
// This package implements the load → cache → solve → persist flow that is
// shared by the CLI batch command and the HTTP API. Centralizing it keeps
// cache keys, defaults and backend selection consistent across entry points.
//
// # Usage
//
// Create a Runner and solve a graph:
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{Backend: pipeline.BackendPBSat, TimeLimit: 30}
//	out, err := runner.Solve(ctx, g, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out.Result.Status, out.Result.Score)
//
// Solve many graphs on a bounded worker pool:
//
//	results, err := runner.SolveBatch(ctx, jobs, opts)
//
// Render a result:
//
//	svg, err := runner.Render(ctx, out.Result, pipeline.FormatSVG, false)
package pipeline

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fragtree/pkg/cache"
	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/heuristic"
	"github.com/matzehuels/fragtree/pkg/ilp"
	"github.com/matzehuels/fragtree/pkg/ilp/backend/enum"
	"github.com/matzehuels/fragtree/pkg/ilp/backend/pbsat"
)

// Backend names.
const (
	BackendEnum  = enum.Name
	BackendPBSat = pbsat.Name
)

// DefaultBackend is the backend used when Options.Backend is empty.
const DefaultBackend = BackendPBSat

// DefaultCacheTTL is how long solve results stay cached.
const DefaultCacheTTL = 7 * 24 * time.Hour

// Output formats accepted by [Runner.Render].
const (
	FormatJSON = "json"
	FormatDOT  = "dot"
	FormatSVG  = "svg"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatJSON: true,
	FormatDOT:  true,
	FormatSVG:  true,
}

// ValidBackends is the set of supported solver backends.
var ValidBackends = map[string]bool{
	BackendEnum:  true,
	BackendPBSat: true,
}

// Options configures a solve. It is decoded from API requests (JSON) and
// configuration files (TOML).
type Options struct {
	// Backend selects the MIP engine: "enum" or "pbsat".
	Backend string `json:"backend,omitempty" toml:"backend"`

	// LowerBound prunes trees scoring below it. Nil means no bound.
	LowerBound *float64 `json:"lower_bound,omitempty" toml:"lower_bound"`

	// TimeLimit is the per-graph budget in seconds. Zero is unbounded.
	TimeLimit float64 `json:"time_limit,omitempty" toml:"time_limit"`

	// InstanceTimeLimit caps a whole batch in seconds. Zero is unbounded.
	InstanceTimeLimit float64 `json:"instance_time_limit,omitempty" toml:"instance_time_limit"`

	// CPUs bounds batch parallelism. Zero means runtime.NumCPU().
	CPUs int `json:"cpus,omitempty" toml:"cpus"`

	// WarmStart seeds the backend with the greedy heuristic's tree.
	WarmStart bool `json:"warm_start,omitempty" toml:"warm_start"`

	// Refresh bypasses cache reads; results are still written.
	Refresh bool `json:"refresh,omitempty" toml:"refresh"`

	// Namespace scopes cache keys.
	Namespace string `json:"-" toml:"namespace"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-" toml:"-"`

	validated bool
}

// ValidateBackend checks that a backend name is known.
func ValidateBackend(name string) error {
	if !ValidBackends[name] {
		return ferrors.New(ferrors.ErrCodeInvalidConfig, "invalid backend: %q (must be one of: enum, pbsat)", name)
	}
	return nil
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return ferrors.New(ferrors.ErrCodeInvalidConfig, "invalid format: %q (must be one of: json, dot, svg)", format)
	}
	return nil
}

// ValidateAndSetDefaults checks the options and fills in defaults.
// It is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Backend == "" {
		o.Backend = DefaultBackend
	}
	if err := ValidateBackend(o.Backend); err != nil {
		return err
	}
	if o.LowerBound != nil {
		if err := ferrors.ValidateLowerBound(*o.LowerBound); err != nil {
			return err
		}
	}
	if math.IsNaN(o.TimeLimit) || math.IsNaN(o.InstanceTimeLimit) {
		return ferrors.New(ferrors.ErrCodeInvalidConfig, "time limit is NaN")
	}
	// Negative limits mean unbounded, as in the solver.
	o.TimeLimit = max(o.TimeLimit, 0)
	o.InstanceTimeLimit = max(o.InstanceTimeLimit, 0)
	if o.CPUs <= 0 {
		o.CPUs = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// Overlay returns o with the non-zero solver settings of req applied.
// The result must be validated again.
func (o Options) Overlay(req Options) Options {
	if req.Backend != "" {
		o.Backend = req.Backend
	}
	if req.LowerBound != nil {
		o.LowerBound = req.LowerBound
	}
	if req.TimeLimit != 0 {
		o.TimeLimit = req.TimeLimit
	}
	if req.CPUs != 0 {
		o.CPUs = req.CPUs
	}
	if req.WarmStart {
		o.WarmStart = true
	}
	if req.Refresh {
		o.Refresh = true
	}
	o.validated = false
	return o
}

// Bound returns the lower bound, or -Inf when unset.
func (o *Options) Bound() float64 {
	if o.LowerBound == nil {
		return math.Inf(-1)
	}
	return *o.LowerBound
}

// PerGraphTimeout converts TimeLimit to a duration.
func (o *Options) PerGraphTimeout() time.Duration {
	return seconds(o.TimeLimit)
}

// BatchTimeout converts InstanceTimeLimit to a duration.
func (o *Options) BatchTimeout() time.Duration {
	return seconds(o.InstanceTimeLimit)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// SolveKeyOpts returns cache key options for a solve.
func (o *Options) SolveKeyOpts() cache.SolveKeyOpts {
	return cache.SolveKeyOpts{
		Backend:    o.Backend,
		LowerBound: o.Bound(),
		WarmStart:  o.WarmStart,
	}
}

// Factory returns the backend factory selected by o.Backend.
func (o *Options) Factory() (ilp.BackendFactory, error) {
	switch o.Backend {
	case BackendEnum:
		return enum.Factory(), nil
	case BackendPBSat:
		return pbsat.Factory(), nil
	}
	return nil, ValidateBackend(o.Backend)
}

// NewSolver builds a solver for one graph. Each call starts a fresh
// time budget.
func (o *Options) NewSolver() (*ilp.Solver, error) {
	factory, err := o.Factory()
	if err != nil {
		return nil, err
	}
	opts := []ilp.Option{
		ilp.WithBackendName(o.Backend),
		ilp.WithLowerBound(o.Bound()),
		ilp.WithTimeLimit(o.PerGraphTimeout()),
		ilp.WithCPUs(o.CPUs),
		ilp.WithLogger(o.Logger),
	}
	if o.WarmStart {
		opts = append(opts, ilp.WithFeasibleSolver(heuristic.Greedy{}))
	}
	return ilp.NewSolver(factory, opts...), nil
}

// String summarizes the options for log lines.
func (o *Options) String() string {
	return fmt.Sprintf("backend=%s lb=%g time_limit=%gs warm_start=%t", o.Backend, o.Bound(), o.TimeLimit, o.WarmStart)
}
