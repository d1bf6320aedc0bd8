// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/graph"
)

// PendingRef is a raw reference the core pass deliberately leaves
// alone: dispatch-table values and registry strings. Entries keep
// module-sorted, file order.
type PendingRef struct {
	// Module is the FQN of the module the reference was parsed from.
	Module string

	// Ref is the raw reference.
	Ref ast.Reference
}

// Plugin is an opt-in extractor run after the core passes, while the
// graph is still building. Plugins must be explicitly enabled;
// enabling one can mask genuinely dead code.
type Plugin interface {
	// Name identifies the plugin in configuration and errors.
	Name() string

	// Extract synthesizes edges from pending references.
	Extract(ctx context.Context, pc *PluginContext) error
}

// PluginContext hands plugins the builder's resolution machinery
// without exposing its internals.
type PluginContext struct {
	b *builder
}

// Graph returns the building graph for edge insertion.
func (pc *PluginContext) Graph() *graph.Graph {
	return pc.b.g
}

// Index returns the symbol catalog.
func (pc *PluginContext) Index() *Index {
	return pc.b.ix
}

// Pending returns the deferred references of one kind, in module
// order.
func (pc *PluginContext) Pending(kind ast.RefKind) []PendingRef {
	out := make([]PendingRef, 0)
	for _, p := range pc.b.pending {
		if p.Ref.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Resolve resolves a dotted name in a module and scope context.
// Failures are not counted as unresolved references; plugin targets
// are speculative by nature.
func (pc *PluginContext) Resolve(module, scope, dotted string) (graph.NodeID, bool) {
	mi := pc.b.ix.Module(module)
	if mi == nil || dotted == "" {
		return graph.InvalidNode, false
	}
	id, _, ok := pc.b.resolveRef(mi, scope, dotted)
	return id, ok
}

// ResolveAbsolute resolves an absolute dotted path against the whole
// project, for string references that name full FQNs.
func (pc *PluginContext) ResolveAbsolute(dotted string) (graph.NodeID, bool) {
	if dotted == "" {
		return graph.InvalidNode, false
	}
	id, _, ok := pc.b.resolve(globalState(dotted, nil), "", dotted, false)
	return id, ok
}

// ScopeNode maps a module and scope to the node edges should
// originate from.
func (pc *PluginContext) ScopeNode(module, scope string) (graph.NodeID, bool) {
	mi := pc.b.ix.Module(module)
	if mi == nil {
		return graph.InvalidNode, false
	}
	return pc.b.fromNode(mi, scope), true
}
