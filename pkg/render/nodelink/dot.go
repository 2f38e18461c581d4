package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/fragtree/pkg/ftree"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds the graph vertex id and depth to node labels.
	Detailed bool

	// Precision is the number of decimals printed for loss weights.
	// Zero means 3.
	Precision int
}

// ToDOT converts a tree to Graphviz DOT format.
// The resulting DOT string can be rendered using [RenderSVG].
//
// Edges carry the loss weight. The root is drawn with a double border and
// its label includes the root score; pseudo fragments are dashed.
func ToDOT(t *ftree.Tree, opts Options) string {
	prec := opts.Precision
	if prec <= 0 {
		prec = 3
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=24, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=18];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	nodes := t.Nodes()
	ids := make(map[*ftree.Node]string, len(nodes))
	for i, n := range nodes {
		ids[n] = "n" + strconv.Itoa(i)
		label := fmtLabel(n, opts.Detailed, prec)
		fmt.Fprintf(&buf, "  %s [%s];\n", ids[n], strings.Join(fmtAttrs(n, label), ", "))
	}

	buf.WriteString("\n")
	for _, n := range nodes {
		if n.Parent == nil {
			continue
		}
		fmt.Fprintf(&buf, "  %s -> %s [label=%q];\n", ids[n.Parent], ids[n], fmtWeight(n.Weight, prec))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n *ftree.Node, detailed bool, prec int) string {
	name := n.Formula
	if n.IsPseudo() {
		name = "(pseudo)"
	}
	var parts []string
	if n.IsRoot() {
		parts = append(parts, "root score: "+fmtWeight(n.Weight, prec))
	}
	if detailed {
		if n.VertexID != ftree.NoVertex {
			parts = append(parts, fmt.Sprintf("vertex: %d", n.VertexID))
		}
		parts = append(parts, fmt.Sprintf("depth: %d", ftree.Depth(n)))
	}
	if len(parts) == 0 {
		return name
	}
	return name + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n *ftree.Node, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch {
	case n.IsPseudo():
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey", "fontcolor=black")
	case n.IsRoot():
		attrs = append(attrs, "peripheries=2")
	}
	return attrs
}

func fmtWeight(w float64, prec int) string {
	return strconv.FormatFloat(w, 'f', prec, 64)
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}
