// Package server exposes the solve pipeline over HTTP.
//
// Routes:
//
//	POST /v1/solve    solve a graph, returns the encoded result
//	POST /v1/render   render an encoded result (?format=dot|svg|json)
//	GET  /healthz     liveness probe
//	GET  /metrics     Prometheus metrics
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	fio "github.com/matzehuels/fragtree/pkg/io"
	"github.com/matzehuels/fragtree/pkg/pipeline"
)

// DefaultAddr is the listen address used when Config.Addr is empty.
const DefaultAddr = ":8090"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Config configures a Server.
type Config struct {
	Addr     string
	Logger   *log.Logger
	Gatherer prometheus.Gatherer

	// Defaults apply to every solve; request options override set fields.
	Defaults pipeline.Options
}

// Server serves the HTTP API.
type Server struct {
	runner   *pipeline.Runner
	logger   *log.Logger
	defaults pipeline.Options
	router   chi.Router
	http     *http.Server
}

// New builds a server around runner.
func New(runner *pipeline.Runner, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{runner: runner, logger: cfg.Logger, defaults: cfg.Defaults}

	r := chi.NewRouter()
	r.Use(s.withRequestID)
	r.Use(s.withObservability)
	r.Use(s.withRecovery)
	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
		r.Post("/render", s.handleRender)
	})
	s.router = r

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server stopping")
	return s.http.Shutdown(ctx)
}

type solveRequest struct {
	Graph   json.RawMessage   `json:"graph"`
	Options *pipeline.Options `json:"options,omitempty"`
}

type solveResponse struct {
	ID         string          `json:"id"`
	GraphHash  string          `json:"graph_hash"`
	Cached     bool            `json:"cached"`
	DurationMS int64           `json:"duration_ms"`
	Result     json.RawMessage `json:"result"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body", err)
		return
	}
	if len(req.Graph) == 0 {
		writeError(w, http.StatusBadRequest, "missing_graph", nil)
		return
	}
	g, err := fio.ReadGraph(bytes.NewReader(req.Graph))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_graph", err)
		return
	}

	opts := s.defaults
	if req.Options != nil {
		opts = opts.Overlay(*req.Options)
	}

	out, err := s.runner.Solve(r.Context(), g, opts)
	if err != nil {
		s.logger.Warn("solve failed", "request", requestID(r.Context()), "err", err)
		writeError(w, statusFor(err), string(ferrors.GetCode(err)), err)
		return
	}
	encoded, err := fio.EncodeResult(out.Result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode_result", err)
		return
	}
	writeJSON(w, http.StatusOK, solveResponse{
		ID:         requestID(r.Context()),
		GraphHash:  out.GraphHash,
		Cached:     out.CacheHit,
		DurationMS: out.Duration.Milliseconds(),
		Result:     encoded,
	})
}

var contentTypes = map[string]string{
	pipeline.FormatJSON: "application/json",
	pipeline.FormatDOT:  "text/vnd.graphviz",
	pipeline.FormatSVG:  "image/svg+xml",
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = pipeline.FormatSVG
	}
	if err := pipeline.ValidateFormat(format); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_format", err)
		return
	}
	detailed, _ := strconv.ParseBool(r.URL.Query().Get("detailed"))

	res, err := fio.ReadResult(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_result", err)
		return
	}
	data, err := s.runner.Render(r.Context(), res, format, detailed)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "render_failed", err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, string(ferrors.ErrCodeNotFound),
		ferrors.New(ferrors.ErrCodeNotFound, "no route for %s", r.URL.Path))
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, string(ferrors.ErrCodeUnsupported),
		ferrors.New(ferrors.ErrCodeUnsupported, "%s not allowed on %s", r.Method, r.URL.Path))
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}
	switch ferrors.GetCode(err) {
	case ferrors.ErrCodeInvalidInput, ferrors.ErrCodeInvalidGraph, ferrors.ErrCodeInvalidTree,
		ferrors.ErrCodeInvalidConfig, ferrors.ErrCodeInvalidFormat:
		return http.StatusBadRequest
	case ferrors.ErrCodeNotFound:
		return http.StatusNotFound
	case ferrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	resp := errorResponse{Error: code}
	if err != nil {
		resp.Message = ferrors.UserMessage(err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
