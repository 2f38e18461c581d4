package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/matzehuels/fragtree/internal/metrics"
	"github.com/matzehuels/fragtree/pkg/cache"
	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/observability"
	"github.com/matzehuels/fragtree/pkg/pipeline"
)

const glucose = `{
  "fragments": [{"formula": ""}, {"formula": "C6H12O6"}, {"formula": "C6H10O5"}, {"formula": "C5H10O5"}],
  "losses": [
    {"source": 0, "target": 1, "weight": 1},
    {"source": 0, "target": 2, "weight": 0.5},
    {"source": 1, "target": 3, "weight": 2},
    {"source": 2, "target": 3, "weight": 4}
  ]
}`

func newTestServer(t *testing.T) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	metrics.New(reg).Install()
	t.Cleanup(observability.Reset)

	runner := pipeline.NewRunner(fc, nil, log.New(io.Discard))
	s := New(runner, Config{
		Logger:   log.New(io.Discard),
		Gatherer: reg,
		Defaults: pipeline.Options{Backend: pipeline.BackendEnum},
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func postSolve(t *testing.T, url, body string) (*http.Response, solveResponse) {
	t.Helper()
	resp, err := http.Post(url+"/v1/solve", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out solveResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, out
}

func TestSolve(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, out := postSolve(t, ts.URL, `{"graph": `+glucose+`}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.ID == "" || resp.Header.Get(RequestIDHeader) != out.ID {
		t.Errorf("request id %q not echoed", out.ID)
	}
	var result struct {
		Status string  `json:"status"`
		Score  float64 `json:"score"`
	}
	if err := json.Unmarshal(out.Result, &result); err != nil {
		t.Fatal(err)
	}
	// 0.5 + 4 beats 1 + 2.
	if result.Status != "optimal" || result.Score != 4.5 {
		t.Errorf("result = %+v", result)
	}
	if out.Cached {
		t.Error("first solve reported cached")
	}

	_, again := postSolve(t, ts.URL, `{"graph": `+glucose+`}`)
	if !again.Cached {
		t.Error("second solve missed the cache")
	}
}

func TestSolveOptions(t *testing.T) {
	ts, _ := newTestServer(t)
	_, out := postSolve(t, ts.URL, `{"graph": `+glucose+`, "options": {"lower_bound": 10}}`)
	if !strings.Contains(string(out.Result), `"infeasible"`) {
		t.Errorf("lower bound not applied: %s", out.Result)
	}
}

func TestSolveBadRequests(t *testing.T) {
	ts, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"no graph", `{}`, http.StatusBadRequest},
		{"cyclic graph", `{"graph": {"fragments":[{"formula":""},{"formula":"A"},{"formula":"B"}],
			"losses":[{"source":0,"target":1,"weight":1},{"source":1,"target":2,"weight":1},{"source":2,"target":1,"weight":1}]}}`,
			http.StatusBadRequest},
		{"bad backend", `{"graph": ` + glucose + `, "options": {"backend": "cplex"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postSolve(t, ts.URL, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	ts, _ := newTestServer(t)
	_, out := postSolve(t, ts.URL, `{"graph": `+glucose+`}`)

	resp, err := http.Post(ts.URL+"/v1/render?format=dot", "application/json", strings.NewReader(string(out.Result)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/vnd.graphviz" {
		t.Fatalf("status = %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	bad, err := http.Post(ts.URL+"/v1/render?format=png", "application/json", strings.NewReader(string(out.Result)))
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("png status = %d", bad.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, reg := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	postSolve(t, ts.URL, `{"graph": `+glucose+`}`)

	n, err := testutil.GatherAndCount(reg, "fragtree_http_requests_total", "fragtree_solver_solves_total")
	if err != nil {
		t.Fatal(err)
	}
	if n < 2 {
		t.Errorf("gathered %d series, want at least 2", n)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(context.DeadlineExceeded); got != http.StatusGatewayTimeout {
		t.Errorf("deadline -> %d", got)
	}
	if got := statusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("plain error -> %d", got)
	}
	if got := statusFor(ferrors.New(ferrors.ErrCodeTimeout, "late")); got != http.StatusGatewayTimeout {
		t.Errorf("TIMEOUT -> %d", got)
	}
	if got := statusFor(ferrors.New(ferrors.ErrCodeNotFound, "gone")); got != http.StatusNotFound {
		t.Errorf("NOT_FOUND -> %d", got)
	}
}

func TestUnknownRoutes(t *testing.T) {
	ts, _ := newTestServer(t)
	tests := []struct {
		method, path string
		status       int
		code         string
	}{
		{http.MethodGet, "/v1/nope", http.StatusNotFound, "NOT_FOUND"},
		{http.MethodGet, "/v1/solve", http.StatusMethodNotAllowed, "UNSUPPORTED"},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		var body errorResponse
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tt.status || body.Error != tt.code {
			t.Errorf("%s %s = %d %q, want %d %q", tt.method, tt.path, resp.StatusCode, body.Error, tt.status, tt.code)
		}
	}
}

func TestRecoveryWritesInternalError(t *testing.T) {
	s := New(pipeline.NewRunner(cache.NewNullCache(), nil, log.New(io.Discard)), Config{Logger: log.New(io.Discard)})
	h := s.withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError || body.Error != "INTERNAL_ERROR" {
		t.Errorf("got %d %q, want 500 INTERNAL_ERROR", rec.Code, body.Error)
	}
}
