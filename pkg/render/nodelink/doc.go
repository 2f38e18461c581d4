// Package nodelink renders fragmentation trees as node-link diagrams.
//
// # Usage
//
// Convert a tree to DOT format, then render to SVG:
//
//	dot := nodelink.ToDOT(tree, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// Nodes are boxes labeled with the fragment formula; edges are labeled with
// the loss weight. The root carries the root score and a double border.
// With Options.Detailed, labels also show the graph vertex id and depth.
//
// The generated DOT uses top-to-bottom layout (rankdir=TB) and can also be
// saved and processed with external Graphviz tools.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package nodelink
