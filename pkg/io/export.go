package io

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
	"github.com/matzehuels/fragtree/pkg/ilp"
)

type graphJSON struct {
	Fragments []fragmentJSON `json:"fragments"`
	Losses    []lossJSON     `json:"losses"`
}

type fragmentJSON struct {
	Formula string `json:"formula"`
}

type lossJSON struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Weight float64 `json:"weight"`
}

type treeJSON struct {
	Score float64   `json:"score"`
	Root  *nodeJSON `json:"root"`
}

type nodeJSON struct {
	Formula  string     `json:"formula"`
	Weight   float64    `json:"weight"`
	Vertex   *int       `json:"vertex,omitempty"`
	Children []nodeJSON `json:"children,omitempty"`
}

type resultJSON struct {
	Status string    `json:"status"`
	Score  float64   `json:"score,omitempty"`
	Tree   *treeJSON `json:"tree,omitempty"`
}

// WriteGraph encodes g as JSON and writes it to w.
// The output can be re-imported with [ReadGraph].
func WriteGraph(g *fgraph.Graph, w io.Writer) error {
	out := graphJSON{
		Fragments: make([]fragmentJSON, g.NumFragments()),
		Losses:    make([]lossJSON, g.NumLosses()),
	}
	for i, f := range g.Fragments() {
		out.Fragments[i] = fragmentJSON{Formula: f.Formula}
	}
	for i, l := range g.Losses() {
		out.Losses[i] = lossJSON{Source: l.Source, Target: l.Target, Weight: l.Weight}
	}
	return encode(w, out)
}

// ExportGraph writes g to a JSON file at path.
func ExportGraph(g *fgraph.Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteGraph(g, f)
}

// WriteTree encodes t as JSON and writes it to w.
func WriteTree(t *ftree.Tree, w io.Writer) error {
	return encode(w, fromTree(t))
}

// ExportTree writes t to a JSON file at path.
func ExportTree(t *ftree.Tree, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteTree(t, f)
}

// WriteResult encodes a solve result as JSON and writes it to w.
func WriteResult(res ilp.Result, w io.Writer) error {
	out := resultJSON{Status: res.Status.String(), Score: res.Score}
	if res.Tree != nil {
		tj := fromTree(res.Tree)
		out.Tree = &tj
	}
	return encode(w, out)
}

// EncodeResult is [WriteResult] into a byte slice.
func EncodeResult(res ilp.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteResult(res, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fromTree(t *ftree.Tree) treeJSON {
	return treeJSON{Score: t.Score(), Root: fromNode(t.Root())}
}

func fromNode(n *ftree.Node) *nodeJSON {
	out := &nodeJSON{Formula: n.Formula, Weight: n.Weight}
	if n.VertexID != ftree.NoVertex {
		v := n.VertexID
		out.Vertex = &v
	}
	if len(n.Children) > 0 {
		out.Children = make([]nodeJSON, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = *fromNode(c)
		}
	}
	return out
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
