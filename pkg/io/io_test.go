package io

import (
	"bytes"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
	"github.com/matzehuels/fragtree/pkg/ilp"
)

const sampleGraph = `{
  "fragments": [{"formula": ""}, {"formula": "C6H12O6"}, {"formula": "C6H10O5"}],
  "losses": [
    {"source": 0, "target": 1, "weight": 0.5},
    {"source": 1, "target": 2, "weight": 1.25}
  ]
}`

func TestReadGraph(t *testing.T) {
	g, err := ReadGraph(strings.NewReader(sampleGraph))
	if err != nil {
		t.Fatalf("ReadGraph: %v", err)
	}
	if g.NumFragments() != 3 || g.NumLosses() != 2 {
		t.Fatalf("got %d fragments, %d losses", g.NumFragments(), g.NumLosses())
	}
	if g.Root() != 0 || g.Formula(2) != "C6H10O5" || g.Loss(1).Weight != 1.25 {
		t.Errorf("unexpected graph contents")
	}
}

func TestReadGraphErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(error) bool
	}{
		{"malformed", `{"fragments": [`, func(err error) bool {
			return ferrors.Is(err, ferrors.ErrCodeInvalidFormat)
		}},
		{"unknown fragment", `{"fragments":[{"formula":""}],"losses":[{"source":0,"target":3,"weight":1}]}`,
			func(err error) bool { return errors.Is(err, fgraph.ErrUnknownFragment) }},
		{"cycle", `{"fragments":[{"formula":""},{"formula":"A"},{"formula":"B"}],
			"losses":[{"source":0,"target":1,"weight":1},{"source":1,"target":2,"weight":1},{"source":2,"target":1,"weight":1}]}`,
			func(err error) bool { return errors.Is(err, fgraph.ErrGraphHasCycle) }},
		{"two roots", `{"fragments":[{"formula":""},{"formula":"A"}],"losses":[]}`,
			func(err error) bool { return errors.Is(err, fgraph.ErrMultipleRoots) }},
		{"empty", `{"fragments":[],"losses":[]}`,
			func(err error) bool { return errors.Is(err, fgraph.ErrEmptyGraph) }},
		{"bad formula", `{"fragments":[{"formula":"C6 H12"}],"losses":[]}`,
			func(err error) bool { return ferrors.Is(err, ferrors.ErrCodeInvalidGraph) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadGraph(strings.NewReader(tt.input))
			if err == nil || !tt.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestGraphFileRoundTrip(t *testing.T) {
	g, err := ReadGraph(strings.NewReader(sampleGraph))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := ExportGraph(g, path); err != nil {
		t.Fatalf("ExportGraph: %v", err)
	}
	back, err := ImportGraph(path)
	if err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}
	if !slices.Equal(back.Losses(), g.Losses()) || !slices.Equal(back.Fragments(), g.Fragments()) {
		t.Error("graph changed across export and import")
	}
	if _, err := ImportGraph(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("ImportGraph of a missing file should fail")
	}
	if _, err := ImportGraph("bad\x00path"); !ferrors.Is(err, ferrors.ErrCodeInvalidPath) {
		t.Errorf("ImportGraph(bad path) = %v, want INVALID_PATH", err)
	}
}

func sampleTree() *ftree.Tree {
	tr := ftree.New("C6H12O6", 0.5)
	tr.Root().VertexID = 1
	c := tr.AddFragment(tr.Root(), "C6H10O5", 1.25)
	c.VertexID = 2
	tr.AddFragment(c, "", 0.25)
	return tr
}

func TestTreeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTree(sampleTree(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"score": 2`) {
		t.Errorf("output lacks score: %s", buf.String())
	}
	back, err := ReadTree(&buf)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if got, want := back.Formulas(), []string{"C6H12O6", "C6H10O5", ""}; !slices.Equal(got, want) {
		t.Errorf("Formulas = %v, want %v", got, want)
	}
	nodes := back.Nodes()
	if nodes[0].VertexID != 1 || nodes[1].VertexID != 2 || nodes[2].VertexID != ftree.NoVertex {
		t.Errorf("vertex ids = %d %d %d", nodes[0].VertexID, nodes[1].VertexID, nodes[2].VertexID)
	}
	if back.Score() != 2 {
		t.Errorf("Score = %v, want 2", back.Score())
	}
}

func TestReadTreeWithoutRoot(t *testing.T) {
	_, err := ReadTree(strings.NewReader(`{"score": 1}`))
	if !ferrors.Is(err, ferrors.ErrCodeInvalidTree) {
		t.Errorf("err = %v, want INVALID_TREE", err)
	}
}

func TestResultRoundTrip(t *testing.T) {
	tests := []ilp.Result{
		{Status: ilp.StatusOptimal, Tree: sampleTree(), Score: 2},
		{Status: ilp.StatusInfeasible},
		{Status: ilp.StatusRejected},
	}
	for _, res := range tests {
		t.Run(res.Status.String(), func(t *testing.T) {
			data, err := EncodeResult(res)
			if err != nil {
				t.Fatal(err)
			}
			back, err := DecodeResult(data)
			if err != nil {
				t.Fatalf("DecodeResult: %v", err)
			}
			if back.Status != res.Status || back.Score != res.Score {
				t.Errorf("got %v/%v, want %v/%v", back.Status, back.Score, res.Status, res.Score)
			}
			if (back.Tree == nil) != (res.Tree == nil) {
				t.Errorf("tree presence changed")
			}
		})
	}
}

func TestDecodeResultErrors(t *testing.T) {
	for _, input := range []string{`{"status":"maybe"}`, `{"status":"optimal"}`, `not json`} {
		if _, err := DecodeResult([]byte(input)); !ferrors.Is(err, ferrors.ErrCodeInvalidFormat) {
			t.Errorf("DecodeResult(%s) = %v, want INVALID_FORMAT", input, err)
		}
	}
}
