// Package metrics implements the observability hooks with Prometheus
// collectors.
//
// Collectors are registered on the registry passed to [New] so that tests
// and the server can use isolated registries:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	m.Install()
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/fragtree/pkg/observability"
)

const namespace = "fragtree"

// Metrics holds every collector exported by fragtree.
type Metrics struct {
	solveDuration *prometheus.HistogramVec
	solvesTotal   *prometheus.CounterVec
	solveLosses   prometheus.Histogram
	inFlight      prometheus.Gauge

	batchJobs     prometheus.Counter
	batchFailures prometheus.Counter
	batchDuration prometheus.Histogram

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheBytes  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		solveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "duration_seconds",
			Help:      "Time spent solving one graph",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"backend", "status"}),
		solvesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Solves by backend and outcome",
		}, []string{"backend", "status"}),
		solveLosses: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "graph_losses",
			Help:      "Number of losses in solved graphs",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "in_flight",
			Help:      "Solves currently running",
		}),

		batchJobs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "jobs_total",
			Help:      "Jobs submitted through batches",
		}),
		batchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "failures_total",
			Help:      "Batch jobs that ended in an error",
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Wall time of whole batches",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),

		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by key type",
		}, []string{"key_type"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by key type",
		}, []string{"key_type"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "written_bytes_total",
			Help:      "Bytes written to the cache by key type",
		}, []string{"key_type"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Install registers m as the process-wide observability hooks.
func (m *Metrics) Install() {
	observability.SetSolverHooks(solverHooks{m})
	observability.SetPipelineHooks(pipelineHooks{m})
	observability.SetCacheHooks(cacheHooks{m})
	observability.SetHTTPHooks(httpHooks{m})
}

type solverHooks struct{ m *Metrics }

func (h solverHooks) OnSolveStart(_ context.Context, _ string, losses int) {
	h.m.inFlight.Inc()
	h.m.solveLosses.Observe(float64(losses))
}

func (h solverHooks) OnSolveComplete(_ context.Context, backend, status string, d time.Duration, _ error) {
	h.m.inFlight.Dec()
	h.m.solvesTotal.WithLabelValues(backend, status).Inc()
	h.m.solveDuration.WithLabelValues(backend, status).Observe(d.Seconds())
}

type pipelineHooks struct{ m *Metrics }

func (pipelineHooks) OnBatchStart(context.Context, int) {}

func (h pipelineHooks) OnBatchComplete(_ context.Context, jobs, failed int, d time.Duration) {
	h.m.batchJobs.Add(float64(jobs))
	h.m.batchFailures.Add(float64(failed))
	h.m.batchDuration.Observe(d.Seconds())
}

type cacheHooks struct{ m *Metrics }

func (h cacheHooks) OnCacheHit(_ context.Context, keyType string) {
	h.m.cacheHits.WithLabelValues(keyType).Inc()
}

func (h cacheHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.m.cacheMisses.WithLabelValues(keyType).Inc()
}

func (h cacheHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

type httpHooks struct{ m *Metrics }

func (httpHooks) OnRequest(context.Context, string, string) {}

func (h httpHooks) OnResponse(_ context.Context, method, route string, code int, d time.Duration) {
	h.m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	h.m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
