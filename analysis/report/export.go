// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/deadwood/analysis/graph"
)

// GraphFormat selects a graph export format.
type GraphFormat string

const (
	FormatDOT     GraphFormat = "dot"
	FormatMermaid GraphFormat = "mermaid"
)

// GraphOptions configures graph export.
type GraphOptions struct {
	// MaxNodes limits the number of emitted nodes.
	// Default: 400
	MaxNodes int

	// Direction is the layout direction (TB, LR, BT, RL).
	// Default: "TB"
	Direction string
}

// DefaultGraphOptions returns sensible defaults.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes:  400,
		Direction: "TB",
	}
}

// GraphWriter renders the analyzed symbol graph with liveness
// coloring: roots green, used blue, dead red, allowed yellow, modules
// gray. Edges carry their kind.
//
// Thread Safety: safe for concurrent use.
type GraphWriter struct {
	opts GraphOptions
}

// NewGraphWriter creates a graph writer.
func NewGraphWriter(opts *GraphOptions) *GraphWriter {
	if opts == nil {
		defaults := DefaultGraphOptions()
		opts = &defaults
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultGraphOptions().MaxNodes
	}
	if opts.Direction == "" {
		opts.Direction = DefaultGraphOptions().Direction
	}
	return &GraphWriter{opts: *opts}
}

// Render produces the graph in the requested format.
//
// Inputs:
//
//	in - Pipeline outputs. Extraction, Roots, and Reach are required.
//	format - FormatDOT or FormatMermaid.
//
// Outputs:
//
//	string - The rendered graph.
//	error - ErrIncompleteInput or ErrUnsupportedFormat.
func (w *GraphWriter) Render(in Input, format GraphFormat) (string, error) {
	if !in.complete() {
		return "", ErrIncompleteInput
	}
	switch format {
	case FormatDOT:
		return w.renderDOT(in), nil
	case FormatMermaid:
		return w.renderMermaid(in), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// =============================================================================
// Liveness classes
// =============================================================================

const (
	classRoot    = "root"
	classUsed    = "used"
	classDead    = "dead"
	classAllowed = "allowed"
	classModule  = "module"
)

// nodeFills maps liveness classes to fill colors.
var nodeFills = map[string]string{
	classRoot:    "#10ac84",
	classUsed:    "#74b9ff",
	classDead:    "#ff6b6b",
	classAllowed: "#ffd93d",
	classModule:  "#dfe6e9",
}

// edgeColors maps edge kinds to stroke colors.
var edgeColors = map[graph.EdgeKind]string{
	graph.EdgeKindCall:             "#0984e3",
	graph.EdgeKindValueFlow:        "#6c5ce7",
	graph.EdgeKindDecorator:        "#e17055",
	graph.EdgeKindException:        "#d63031",
	graph.EdgeKindIsinstance:       "#00b894",
	graph.EdgeKindProperty:         "#fdcb6e",
	graph.EdgeKindReturnEscape:     "#e84393",
	graph.EdgeKindInheritOverride:  "#2d3436",
	graph.EdgeKindProtocolImpl:     "#636e72",
	graph.EdgeKindAlias:            "#b2bec3",
	graph.EdgeKindPolicyStructural: "#00cec9",
}

// classify computes the liveness class of every node, allowed set
// precomputed from the reach result.
func classify(in Input) map[graph.NodeID]string {
	allowed := make(map[graph.NodeID]bool)
	for _, n := range in.Reach.AllowedNodes() {
		allowed[n.ID] = true
	}

	classes := make(map[graph.NodeID]string, in.Extraction.Graph.NodeCount())
	for id, n := range in.Extraction.Graph.Nodes() {
		switch {
		case n.Kind == graph.NodeKindModule:
			classes[id] = classModule
		case in.Roots.Contains(id):
			classes[id] = classRoot
		case in.Reach.Used(id):
			classes[id] = classUsed
		case allowed[id]:
			classes[id] = classAllowed
		default:
			classes[id] = classDead
		}
	}
	return classes
}

// selectNodes returns the emitted nodes in sorted FQN order and the
// count left out by the node cap.
func (w *GraphWriter) selectNodes(in Input) ([]*graph.Node, int) {
	g := in.Extraction.Graph
	nodes := make([]*graph.Node, 0, g.NodeCount())
	for _, n := range g.Nodes() {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].FQN < nodes[j].FQN })

	if len(nodes) <= w.opts.MaxNodes {
		return nodes, 0
	}
	return nodes[:w.opts.MaxNodes], len(nodes) - w.opts.MaxNodes
}

// =============================================================================
// DOT
// =============================================================================

func (w *GraphWriter) renderDOT(in Input) string {
	g := in.Extraction.Graph
	classes := classify(in)
	nodes, overflow := w.selectNodes(in)

	kept := make(map[graph.NodeID]bool, len(nodes))
	for _, n := range nodes {
		kept[n.ID] = true
	}

	var sb strings.Builder
	sb.WriteString("digraph deadwood {\n")
	sb.WriteString(fmt.Sprintf("    rankdir=%s;\n", w.opts.Direction))
	sb.WriteString("    node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	sb.WriteString("\n")

	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("    %s [label=\"%s\", fillcolor=\"%s\"];\n",
			dotID(n.FQN), escapeDOTLabel(n.FQN), nodeFills[classes[n.ID]]))
	}
	if overflow > 0 {
		sb.WriteString(fmt.Sprintf("    overflow [label=\"+%d more\", shape=plaintext];\n", overflow))
	}
	sb.WriteString("\n")

	for _, e := range sortedEdges(g) {
		if !kept[e.From] || !kept[e.To] {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s -> %s [color=\"%s\", label=\"%s\"];\n",
			dotID(fqnOf(g, e.From)), dotID(fqnOf(g, e.To)),
			edgeColors[e.Kind], e.Kind))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// dotID quotes an FQN as a DOT identifier.
func dotID(fqn string) string {
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(fqn, "\"", "\\\""))
}

func escapeDOTLabel(s string) string {
	replacer := strings.NewReplacer(
		"\"", "\\\"",
		"\n", "\\n",
	)
	return replacer.Replace(s)
}

// =============================================================================
// Mermaid
// =============================================================================

func (w *GraphWriter) renderMermaid(in Input) string {
	g := in.Extraction.Graph
	classes := classify(in)
	nodes, overflow := w.selectNodes(in)

	// Positional IDs sidestep collisions that sanitizing dotted names
	// would introduce.
	ids := make(map[graph.NodeID]string, len(nodes))
	for i, n := range nodes {
		ids[n.ID] = fmt.Sprintf("n%d", i)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("flowchart %s\n", w.opts.Direction))

	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]:::%s\n",
			ids[n.ID], escapeMermaidLabel(n.FQN), classes[n.ID]))
	}
	if overflow > 0 {
		sb.WriteString(fmt.Sprintf("    more[\"+%d more\"]\n", overflow))
	}
	sb.WriteString("\n")

	for _, e := range sortedEdges(g) {
		from, okFrom := ids[e.From]
		to, okTo := ids[e.To]
		if !okFrom || !okTo {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", from, e.Kind, to))
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef root fill:#10ac84,stroke:#333,color:#fff\n")
	sb.WriteString("    classDef used fill:#74b9ff,stroke:#333\n")
	sb.WriteString("    classDef dead fill:#ff6b6b,stroke:#333,color:#fff\n")
	sb.WriteString("    classDef allowed fill:#ffd93d,stroke:#333\n")
	sb.WriteString("    classDef module fill:#dfe6e9,stroke:#333\n")

	return sb.String()
}

func escapeMermaidLabel(s string) string {
	replacer := strings.NewReplacer(
		"\"", "#quot;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}

// sortedEdges orders a copy of the edge list for stable output.
func sortedEdges(g *graph.Graph) []*graph.Edge {
	edges := append([]*graph.Edge(nil), g.Edges()...)
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		af, bf := fqnOf(g, a.From), fqnOf(g, b.From)
		if af != bf {
			return af < bf
		}
		at, bt := fqnOf(g, a.To), fqnOf(g, b.To)
		if at != bt {
			return at < bt
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Line < b.Line
	})
	return edges
}
