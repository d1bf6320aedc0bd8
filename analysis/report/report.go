// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders analysis results for machines and humans.
//
// # Description
//
// Build assembles the dead_code.json document from the pipeline
// outputs: liveness partitions, the full node and edge catalog,
// mutual-keep clusters, collection warnings, and the parameters that
// shaped the run. Every list is sorted, so two runs over the same
// tree produce byte-identical reports apart from the run ID.
//
// The same inputs feed the DOT and Mermaid graph exports and the
// JSON form of a witness query.
//
// Thread Safety: Report values are plain data; GraphWriter is safe
// for concurrent use.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/graph"
	"github.com/AleutianAI/deadwood/analysis/reach"
	"github.com/AleutianAI/deadwood/analysis/roots"
)

// Version is the report schema version.
const Version = "1.0"

// FileName is the report file Write produces.
const FileName = "dead_code.json"

// =============================================================================
// Document
// =============================================================================

// Report is the dead_code.json document.
type Report struct {
	// Version is the schema version.
	Version string `json:"version"`

	// RunID uniquely identifies the producing run.
	RunID string `json:"run_id"`

	// Summary holds the headline counts.
	Summary Summary `json:"summary"`

	// Roots lists the declared root FQNs.
	Roots []string `json:"roots"`

	// Reachable lists every used symbol FQN.
	Reachable []string `json:"reachable"`

	// Policy lists the symbols made live by the policy-structural
	// rule.
	Policy []string `json:"policy"`

	// Dead lists the unreachable symbols with their locations.
	Dead []NodeRecord `json:"dead"`

	// Allowed lists unreachable symbols suppressed by inline allow
	// markers.
	Allowed []NodeRecord `json:"allowed"`

	// Warnings carries collection oddities in pipeline order:
	// duplicate definitions, broken alias cycles, root warnings.
	Warnings []string `json:"warnings"`

	// PolicyParams records the knobs that shaped this run.
	PolicyParams PolicyParams `json:"policy_params"`

	// Nodes is the full symbol catalog.
	Nodes []NodeRecord `json:"nodes"`

	// Edges is the full relationship catalog.
	Edges []EdgeRecord `json:"edges"`

	// Clusters lists groups of used symbols that keep each other
	// alive.
	Clusters []Cluster `json:"clusters"`
}

// Summary holds the headline counts.
type Summary struct {
	SymbolsTotal         int `json:"symbols_total"`
	Roots                int `json:"roots"`
	Reachable            int `json:"reachable"`
	Policy               int `json:"policy"`
	Dead                 int `json:"dead"`
	Allowed              int `json:"allowed"`
	UnresolvedReferences int `json:"unresolved_references"`
	Warnings             int `json:"warnings"`
}

// NodeRecord locates one graph node.
type NodeRecord struct {
	FQN  string `json:"fqn"`
	Kind string `json:"kind"`
	File string `json:"file"`
	Line int    `json:"line"`
}

// EdgeRecord describes one relationship. File and Line are empty for
// synthesized edges.
type EdgeRecord struct {
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Type string `json:"type"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// Cluster is a mutual-keep group: used symbols forming a reference
// cycle, deletable only together.
type Cluster struct {
	Nodes []string `json:"nodes"`
	Size  int      `json:"size"`
}

// PolicyParams records the analysis knobs for reproducibility.
type PolicyParams struct {
	Pattern                 string   `json:"pattern"`
	Plugins                 []string `json:"plugins"`
	Whitelist               []string `json:"whitelist"`
	ModuleExportClosure     bool     `json:"module_export_closure"`
	ProtocolNominal         bool     `json:"protocol_nominal"`
	ProtocolStrictSignature bool     `json:"protocol_strict_signature"`
	PolicyAnywhere          bool     `json:"policy_anywhere"`
}

// =============================================================================
// Input
// =============================================================================

// Input bundles the pipeline outputs a report renders.
type Input struct {
	// Extraction supplies the graph, index, and resolution warnings.
	Extraction *extract.Result

	// Roots is the frozen root set.
	Roots *roots.Set

	// Reach is the completed reachability result.
	Reach *reach.Result

	// Params echoes the run configuration into the report.
	Params PolicyParams

	// RunID overrides the generated run ID when non-empty.
	RunID string
}

func (in Input) complete() bool {
	return in.Extraction != nil && in.Extraction.Graph != nil &&
		in.Extraction.Index != nil && in.Roots != nil && in.Reach != nil
}

// =============================================================================
// Build
// =============================================================================

// Build assembles the report document.
//
// Inputs:
//
//	in - Pipeline outputs. Extraction, Roots, and Reach are required.
//
// Outputs:
//
//	*Report - The assembled document, every list sorted and non-nil.
//	error - ErrIncompleteInput when a required input is missing.
func Build(in Input) (*Report, error) {
	if !in.complete() {
		return nil, ErrIncompleteInput
	}

	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	g := in.Extraction.Graph
	stats := in.Reach.Stats()

	r := &Report{
		Version:      Version,
		RunID:        runID,
		Roots:        in.Roots.FQNs(),
		Reachable:    fqnsOf(in.Reach.UsedNodes()),
		Policy:       fqnsOf(in.Reach.PolicyNodes()),
		Dead:         recordsOf(in.Reach.DeadNodes()),
		Allowed:      recordsOf(in.Reach.AllowedNodes()),
		Warnings:     collectWarnings(in),
		PolicyParams: normalizeParams(in.Params),
		Nodes:        nodeCatalog(g),
		Edges:        edgeCatalog(g),
		Clusters:     clusters(g, in.Reach),
	}

	r.Summary = Summary{
		SymbolsTotal:         stats.UsedSymbols + stats.DeadSymbols + stats.AllowedSymbols,
		Roots:                stats.DeclaredRoots,
		Reachable:            stats.UsedSymbols,
		Policy:               stats.PolicyMembers,
		Dead:                 stats.DeadSymbols,
		Allowed:              stats.AllowedSymbols,
		UnresolvedReferences: in.Extraction.Unresolved,
		Warnings:             len(r.Warnings),
	}

	slog.Debug("report assembled",
		slog.String("run_id", runID),
		slog.Int("dead", r.Summary.Dead),
		slog.Int("clusters", len(r.Clusters)))
	return r, nil
}

// Write renders the report as indented JSON under dir.
//
// Outputs:
//
//	string - The written file path.
//	error - Directory creation, encoding, or write failure.
func (r *Report) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	slog.Info("report written",
		slog.String("path", path),
		slog.Int("dead", r.Summary.Dead))
	return path, nil
}

// =============================================================================
// Witness queries
// =============================================================================

// ExplainRecord is the JSON form of a witness query.
type ExplainRecord struct {
	Found      bool         `json:"found"`
	Target     string       `json:"target"`
	Root       string       `json:"root,omitempty"`
	Verdict    string       `json:"verdict"`
	Suppressed bool         `json:"suppressed,omitempty"`
	PathEdges  []EdgeRecord `json:"path_edges"`
}

// NewExplainRecord converts a witness explanation for JSON output.
func NewExplainRecord(ex *reach.Explanation) *ExplainRecord {
	rec := &ExplainRecord{
		Found:      ex.Used,
		Target:     ex.Target,
		Root:       ex.Root,
		Verdict:    ex.Verdict.String(),
		Suppressed: ex.Suppressed,
		PathEdges:  make([]EdgeRecord, 0, len(ex.Steps)),
	}
	for _, s := range ex.Steps {
		rec.PathEdges = append(rec.PathEdges, EdgeRecord{
			Src:  s.From,
			Dst:  s.To,
			Type: s.Kind.String(),
			Line: s.Line,
		})
	}
	return rec
}

// =============================================================================
// Assembly helpers
// =============================================================================

func fqnsOf(nodes []*graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.FQN)
	}
	return out
}

func recordsOf(nodes []*graph.Node) []NodeRecord {
	out := make([]NodeRecord, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeRecord{
			FQN:  n.FQN,
			Kind: n.Kind.String(),
			File: n.File,
			Line: n.Line,
		})
	}
	return out
}

func collectWarnings(in Input) []string {
	out := make([]string, 0)
	for _, c := range in.Extraction.Graph.Conflicts() {
		out = append(out, fmt.Sprintf("duplicate definition of %s: kept %s:%d, dropped %s:%d",
			c.FQN, c.KeptFile, c.KeptLine, c.DroppedFile, c.DroppedLine))
	}
	for _, c := range in.Extraction.Cycles {
		out = append(out, fmt.Sprintf("%s: alias cycle broken at %s", c.Module, c.Start))
	}
	for _, w := range in.Roots.Warnings() {
		out = append(out, w.String())
	}
	return out
}

func normalizeParams(p PolicyParams) PolicyParams {
	if p.Plugins == nil {
		p.Plugins = []string{}
	}
	if p.Whitelist == nil {
		p.Whitelist = []string{}
	}
	return p
}

func nodeCatalog(g *graph.Graph) []NodeRecord {
	out := make([]NodeRecord, 0, g.NodeCount())
	for _, n := range g.Nodes() {
		out = append(out, NodeRecord{
			FQN:  n.FQN,
			Kind: n.Kind.String(),
			File: n.File,
			Line: n.Line,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FQN < out[j].FQN })
	return out
}

func edgeCatalog(g *graph.Graph) []EdgeRecord {
	edges := g.Edges()
	out := make([]EdgeRecord, 0, len(edges))
	for _, e := range edges {
		var file string
		if from := g.Node(e.From); from != nil {
			file = from.File
		}
		out = append(out, EdgeRecord{
			Src:  fqnOf(g, e.From),
			Dst:  fqnOf(g, e.To),
			Type: e.Kind.String(),
			File: file,
			Line: e.Line,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		if a.Dst != b.Dst {
			return a.Dst < b.Dst
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Line < b.Line
	})
	return out
}

func fqnOf(g *graph.Graph, id graph.NodeID) string {
	if n := g.Node(id); n != nil {
		return n.FQN
	}
	return ""
}
