package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/fragtree/pkg/cache"
	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ilp"
	fio "github.com/matzehuels/fragtree/pkg/io"
	"github.com/matzehuels/fragtree/pkg/observability"
	"github.com/matzehuels/fragtree/pkg/render/nodelink"
)

// Runner encapsulates solving with caching.
// Both CLI and API use it to avoid duplicating caching logic.
//
// The Runner holds no per-solve state, so multiple goroutines can use the
// same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
	TTL    time.Duration
}

// NewRunner creates a runner with the given cache and keyer.
// A nil keyer means DefaultKeyer; a nil cache disables caching.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger, TTL: DefaultCacheTTL}
}

// Outcome is a solve result plus bookkeeping.
type Outcome struct {
	Result    ilp.Result
	GraphHash string
	CacheHit  bool
	Duration  time.Duration
}

// Job is one graph of a batch.
type Job struct {
	ID    string
	Name  string
	Graph *fgraph.Graph
}

// NewJob creates a job with a fresh random id.
func NewJob(name string, g *fgraph.Graph) Job {
	return Job{ID: uuid.NewString(), Name: name, Graph: g}
}

// JobResult pairs a job with its outcome. Exactly one of Outcome and Err
// is set.
type JobResult struct {
	Job     Job
	Outcome *Outcome
	Err     error
}

// GraphHash returns the content hash of g's canonical JSON encoding.
func GraphHash(g *fgraph.Graph) (string, error) {
	var buf bytes.Buffer
	if err := fio.WriteGraph(g, &buf); err != nil {
		return "", err
	}
	return cache.Hash(buf.Bytes()), nil
}

// Solve solves one graph, consulting the cache first.
//
// Optimal and rejected results are cached. Infeasible results are cached
// only without a time limit, since with one they may reflect an expired
// budget rather than the graph.
func (r *Runner) Solve(ctx context.Context, g *fgraph.Graph, opts Options) (*Outcome, error) {
	if g == nil {
		return nil, ferrors.New(ferrors.ErrCodeInvalidInput, "nil graph")
	}
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	start := time.Now()

	hash, err := GraphHash(g)
	if err != nil {
		return nil, fmt.Errorf("hash graph: %w", err)
	}
	key := r.keyer(opts).SolveKey(hash, opts.SolveKeyOpts())

	if !opts.Refresh {
		if res, ok := r.lookup(ctx, key); ok {
			opts.Logger.Debug("cache hit", "graph", hash[:12], "status", res.Status)
			return &Outcome{Result: res, GraphHash: hash, CacheHit: true, Duration: time.Since(start)}, nil
		}
	}

	solver, err := opts.NewSolver()
	if err != nil {
		return nil, err
	}
	res, err := solver.Solve(ctx, g)
	if err != nil {
		return nil, err
	}

	if res.Status != ilp.StatusInfeasible || opts.TimeLimit == 0 {
		r.store(ctx, key, res)
	}
	out := &Outcome{Result: res, GraphHash: hash, Duration: time.Since(start)}
	opts.Logger.Info("solved graph",
		"graph", hash[:12],
		"losses", g.NumLosses(),
		"status", res.Status,
		"score", res.Score,
		"duration", out.Duration)
	return out, nil
}

// SolveBatch solves independent graphs on a worker pool of opts.CPUs
// workers. Per-job failures are reported in the job's result and do not
// stop the batch; only cancellation of ctx or the batch time limit does.
// Results are returned in job order.
func (r *Runner) SolveBatch(ctx context.Context, jobs []Job, opts Options) ([]JobResult, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	if limit := opts.BatchTimeout(); limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	start := time.Now()
	hooks := observability.Pipeline()
	hooks.OnBatchStart(ctx, len(jobs))

	results := make([]JobResult, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.CPUs)

	for i, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		results[i].Job = job
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			out, err := r.Solve(egCtx, job.Graph, opts)
			if err != nil {
				opts.Logger.Warn("job failed", "job", job.ID, "name", job.Name, "err", err)
				results[i].Err = err
				return nil
			}
			results[i].Outcome = out
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, jr := range results {
		if jr.Err != nil {
			failed++
		}
	}
	hooks.OnBatchComplete(ctx, len(jobs), failed, time.Since(start))
	opts.Logger.Info("batch finished", "jobs", len(jobs), "failed", failed, "duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch interrupted: %w", err)
	}
	return results, nil
}

// Render converts a result tree into the given format, caching the
// artifact under the result's content hash.
func (r *Runner) Render(ctx context.Context, res ilp.Result, format string, detailed bool) ([]byte, error) {
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}
	encoded, err := fio.EncodeResult(res)
	if err != nil {
		return nil, err
	}
	if format == FormatJSON {
		return encoded, nil
	}
	if res.Tree == nil {
		return nil, fmt.Errorf("render %s: result %s has no tree", format, res.Status)
	}

	key := r.Keyer.ArtifactKey(cache.Hash(encoded), cache.ArtifactKeyOpts{Format: format, Detailed: detailed})
	if data, ok := r.get(ctx, key, "artifact"); ok {
		return data, nil
	}

	dot := nodelink.ToDOT(res.Tree, nodelink.Options{Detailed: detailed})
	data := []byte(dot)
	if format == FormatSVG {
		if data, err = nodelink.RenderSVG(ctx, dot); err != nil {
			return nil, err
		}
	}
	r.set(ctx, key, "artifact", data)
	return data, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) keyer(opts Options) cache.Keyer {
	if opts.Namespace == "" {
		return r.Keyer
	}
	return cache.NewScopedKeyer(r.Keyer, opts.Namespace+":")
}

func (r *Runner) lookup(ctx context.Context, key string) (ilp.Result, bool) {
	data, ok := r.get(ctx, key, "solve")
	if !ok {
		return ilp.Result{}, false
	}
	res, err := fio.DecodeResult(data)
	if err != nil {
		r.Logger.Warn("discarding corrupt cache entry", "key", key, "err", err)
		_ = r.Cache.Delete(ctx, key)
		return ilp.Result{}, false
	}
	return res, true
}

func (r *Runner) store(ctx context.Context, key string, res ilp.Result) {
	data, err := fio.EncodeResult(res)
	if err != nil {
		r.Logger.Warn("encode result for cache", "err", err)
		return
	}
	r.set(ctx, key, "solve", data)
}

func (r *Runner) get(ctx context.Context, key, keyType string) ([]byte, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "key", key, "err", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return data, true
}

func (r *Runner) set(ctx context.Context, key, keyType string, data []byte) {
	if err := r.Cache.Set(ctx, key, data, r.TTL); err != nil {
		r.Logger.Warn("cache write failed", "key", key, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
