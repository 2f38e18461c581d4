// Package io provides JSON import and export for fragmentation graphs,
// fragmentation trees and solve results.
//
// # Graph Format
//
// A graph is a JSON object with two arrays. Fragment ids are their positions
// in "fragments"; losses reference them by position:
//
//	{
//	  "fragments": [
//	    {"formula": ""},
//	    {"formula": "C6H12O6"},
//	    {"formula": "C6H10O5"}
//	  ],
//	  "losses": [
//	    {"source": 0, "target": 1, "weight": 0.5},
//	    {"source": 1, "target": 2, "weight": 1.25}
//	  ]
//	}
//
// The empty formula marks a pseudo fragment, typically the pseudo-root.
// [ReadGraph] validates formulas and runs [fgraph.Builder.Build], so a decoded
// graph has exactly one root and no cycles.
//
// # Tree Format
//
// A tree is written as nested nodes:
//
//	{
//	  "score": 3.25,
//	  "root": {
//	    "formula": "C6H12O6", "weight": 0.5, "vertex": 1,
//	    "children": [{"formula": "C6H10O5", "weight": 1.25, "vertex": 2}]
//	  }
//	}
//
// "vertex" is omitted for nodes that were not derived from a graph vertex.
//
// # Results
//
// [WriteResult] and [ReadResult] wrap a tree with its solve status. They are
// used by the result caches and the HTTP API.
package io
