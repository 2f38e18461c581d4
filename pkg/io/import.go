package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	ferrors "github.com/matzehuels/fragtree/pkg/errors"
	"github.com/matzehuels/fragtree/pkg/fgraph"
	"github.com/matzehuels/fragtree/pkg/ftree"
	"github.com/matzehuels/fragtree/pkg/ilp"
)

var statusFromString = map[string]ilp.Status{
	"optimal":    ilp.StatusOptimal,
	"infeasible": ilp.StatusInfeasible,
	"rejected":   ilp.StatusRejected,
}

// ReadGraph decodes a JSON graph from r.
//
// Errors are wrapped with the offending fragment or loss; use errors.Is with
// the fgraph sentinel errors to check for structural problems. ReadGraph
// does not close r.
func ReadGraph(r io.Reader) (*fgraph.Graph, error) {
	var data graphJSON
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "decode graph")
	}

	b := fgraph.NewBuilder()
	for i, f := range data.Fragments {
		if err := ferrors.ValidateFormula(f.Formula); err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		b.AddFragment(f.Formula)
	}
	for i, l := range data.Losses {
		if _, err := b.AddLoss(l.Source, l.Target, l.Weight); err != nil {
			return nil, fmt.Errorf("loss %d: %w", i, err)
		}
	}
	g, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	return g, nil
}

// ImportGraph reads a JSON graph file.
func ImportGraph(path string) (*fgraph.Graph, error) {
	if err := ferrors.ValidatePath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadGraph(f)
}

// ReadTree decodes a JSON tree from r.
func ReadTree(r io.Reader) (*ftree.Tree, error) {
	var data treeJSON
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "decode tree")
	}
	return data.toTree()
}

// ImportTree reads a JSON tree file.
func ImportTree(path string) (*ftree.Tree, error) {
	if err := ferrors.ValidatePath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadTree(f)
}

// ReadResult decodes a result written by [WriteResult].
func ReadResult(r io.Reader) (ilp.Result, error) {
	var data resultJSON
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return ilp.Result{}, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "decode result")
	}
	return data.toResult()
}

// DecodeResult is [ReadResult] for an in-memory document.
func DecodeResult(data []byte) (ilp.Result, error) {
	var r resultJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return ilp.Result{}, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "decode result")
	}
	return r.toResult()
}

func (r resultJSON) toResult() (ilp.Result, error) {
	status, ok := statusFromString[r.Status]
	if !ok {
		return ilp.Result{}, ferrors.New(ferrors.ErrCodeInvalidFormat, "unknown status %q", r.Status)
	}
	res := ilp.Result{Status: status, Score: r.Score}
	if status != ilp.StatusOptimal {
		return res, nil
	}
	if r.Tree == nil {
		return ilp.Result{}, ferrors.New(ferrors.ErrCodeInvalidFormat, "optimal result without tree")
	}
	t, err := r.Tree.toTree()
	if err != nil {
		return ilp.Result{}, err
	}
	res.Tree = t
	return res, nil
}

func (d treeJSON) toTree() (*ftree.Tree, error) {
	if d.Root == nil {
		return nil, ferrors.New(ferrors.ErrCodeInvalidTree, "tree has no root")
	}
	t := ftree.New(d.Root.Formula, d.Root.Weight)
	t.Root().VertexID = vertexOf(d.Root.Vertex)

	type frame struct {
		src *nodeJSON
		dst *ftree.Node
	}
	stack := []frame{{d.Root, t.Root()}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i := range f.src.Children {
			c := &f.src.Children[i]
			if err := ferrors.ValidateFormula(c.Formula); err != nil {
				return nil, err
			}
			n := t.AddFragment(f.dst, c.Formula, c.Weight)
			n.VertexID = vertexOf(c.Vertex)
			stack = append(stack, frame{c, n})
		}
	}
	return t, nil
}

func vertexOf(v *int) int {
	if v == nil {
		return ftree.NoVertex
	}
	return *v
}
