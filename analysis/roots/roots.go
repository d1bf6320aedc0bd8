// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package roots builds the frozen root set reachability starts from.
//
// # Description
//
// Roots come from two places: each package's export surface (__all__
// when declared, otherwise the public top-level bindings of the
// package's __init__ module) and the configured whitelist (exact FQNs
// or dot-boundary suffixes). An export names a binding; the builder
// resolves the binding through its alias chain and seeds both ends,
// so re-exported definitions are live along with the bindings that
// publish them.
//
// Exported classes pull their whole body: every root class gets a
// policy-structural edge to each definition in its body, transitively,
// so members enter the search at the start-of-path position and their
// own callees are explored rather than merely marked.
//
// A package that declares nothing is a warning, not an error: a
// project scanned without any export surface produces zero roots and
// an empty used set, which the report surfaces loudly. An explicitly
// empty __all__ is a declaration and warns about nothing.
package roots

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/graph"
)

// =============================================================================
// Options
// =============================================================================

// Options configures root collection.
type Options struct {
	// Whitelist holds extra root entries: exact FQNs or dot-boundary
	// suffixes ("tasks.cleanup" matches "app.tasks.cleanup").
	Whitelist []string

	// ModuleExportClosure expands an export that names a submodule
	// into that submodule's own export surface, recursively.
	ModuleExportClosure bool
}

// DefaultOptions returns the baseline root collection options.
func DefaultOptions() Options {
	return Options{}
}

// Option mutates root collection options.
type Option func(*Options)

// WithWhitelist appends whitelist entries.
func WithWhitelist(entries ...string) Option {
	return func(o *Options) {
		o.Whitelist = append(o.Whitelist, entries...)
	}
}

// WithModuleExportClosure toggles submodule export expansion.
func WithModuleExportClosure(enabled bool) Option {
	return func(o *Options) {
		o.ModuleExportClosure = enabled
	}
}

// =============================================================================
// Warnings
// =============================================================================

// Warning records a root-collection oddity worth surfacing in the
// report without failing the run.
type Warning struct {
	// Module is the package the warning concerns, empty for whitelist
	// warnings.
	Module string

	// Name is the export name or whitelist entry, empty for
	// package-level warnings.
	Name string

	// Reason is a short human-readable explanation.
	Reason string
}

// String renders the warning for report output.
func (w Warning) String() string {
	switch {
	case w.Module != "" && w.Name != "":
		return w.Module + ": " + w.Name + ": " + w.Reason
	case w.Module != "":
		return w.Module + ": " + w.Reason
	default:
		return w.Name + ": " + w.Reason
	}
}

// =============================================================================
// Set
// =============================================================================

// Set is the frozen root set. Immutable once built; reachability
// iterates it in sorted FQN order so run-to-run output is stable.
type Set struct {
	ids      []graph.NodeID
	fqns     []string
	member   map[graph.NodeID]bool
	warnings []Warning
}

// Len returns the number of roots.
func (s *Set) Len() int {
	return len(s.ids)
}

// IDs returns the root node IDs in sorted FQN order.
func (s *Set) IDs() []graph.NodeID {
	out := make([]graph.NodeID, len(s.ids))
	copy(out, s.ids)
	return out
}

// FQNs returns the root FQNs in sorted order.
func (s *Set) FQNs() []string {
	out := make([]string, len(s.fqns))
	copy(out, s.fqns)
	return out
}

// Contains reports whether a node is a root.
func (s *Set) Contains(id graph.NodeID) bool {
	return s.member[id]
}

// Warnings returns the collection warnings in discovery order.
func (s *Set) Warnings() []Warning {
	out := make([]Warning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// =============================================================================
// Builder
// =============================================================================

type collector struct {
	res      *extract.Result
	opts     Options
	member   map[graph.NodeID]bool
	warnings []Warning
}

// Build collects the root set from package exports and the whitelist,
// then closes root classes over their bodies with policy-structural
// edges.
//
// Description:
//
//	Packages are visited in sorted module order and export names in
//	declaration order, so warnings and the resulting set are
//	deterministic. The graph must still be building: policy closure
//	inserts edges.
//
// Inputs:
//
//	ctx - Used for tracing; checked once at entry.
//	res - The extraction result (graph, index, resolver).
//	opts - Functional options.
//
// Outputs:
//
//	*Set - Frozen root set with collection warnings.
//	error - Non-nil on nil input, cancellation, or a frozen graph.
//
// Thread Safety: single caller; the returned set is immutable and safe
// for concurrent readers.
func Build(ctx context.Context, res *extract.Result, opts ...Option) (*Set, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if res == nil || res.Graph == nil || res.Index == nil || res.Resolver == nil {
		return nil, ErrNilExtraction
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(options.Whitelist))
	defer span.End()

	c := &collector{
		res:    res,
		opts:   options,
		member: make(map[graph.NodeID]bool),
	}

	for mi := range res.Index.Modules() {
		if !mi.IsPackage {
			continue
		}
		c.collectPackage(mi)
	}
	c.collectWhitelist()

	set := c.freeze()

	if err := c.closePolicy(set); err != nil {
		setBuildSpanResult(span, 0, 0, err)
		return nil, err
	}

	recordBuildMetrics(ctx, time.Since(start), set.Len())
	setBuildSpanResult(span, set.Len(), len(set.warnings), nil)
	if set.Len() == 0 {
		slog.Warn("root set is empty, nothing will be reachable",
			slog.Int("warnings", len(set.warnings)))
	} else {
		slog.Info("root set built",
			slog.Int("roots", set.Len()),
			slog.Int("warnings", len(set.warnings)),
			slog.Duration("elapsed", time.Since(start)))
	}
	return set, nil
}

// collectPackage turns one package's export surface into roots.
func (c *collector) collectPackage(mi *extract.ModuleInfo) {
	exports := mi.Exports()
	if len(exports) == 0 {
		if mi.DunderAll != nil {
			// Explicitly empty __all__ is a deliberate declaration.
			return
		}
		c.warnings = append(c.warnings, Warning{
			Module: mi.FQN,
			Reason: "package declares no exports",
		})
		return
	}

	seen := map[string]bool{mi.FQN: true}
	for _, name := range exports {
		c.collectExport(mi.FQN, name, seen)
	}
}

// collectExport resolves one export name and seeds the nodes behind
// it. A name resolving to a submodule either expands to that module's
// surface or contributes nothing, depending on configuration; module
// nodes themselves are never roots.
func (c *collector) collectExport(module, name string, seen map[string]bool) {
	id, chain, ok := c.res.Resolver.Resolve(module, name)
	if !ok {
		c.warnings = append(c.warnings, Warning{
			Module: module,
			Name:   name,
			Reason: "export resolves to nothing",
		})
		return
	}

	node := c.res.Graph.Node(id)
	if node.Kind == graph.NodeKindModule {
		if !c.opts.ModuleExportClosure {
			return
		}
		sub := c.res.Index.Module(node.FQN)
		if sub == nil || seen[node.FQN] {
			return
		}
		seen[node.FQN] = true
		for _, subName := range sub.Exports() {
			c.collectExport(sub.FQN, subName, seen)
		}
		return
	}

	c.member[id] = true
	for _, hop := range chain {
		c.member[hop] = true
	}
}

// collectWhitelist matches whitelist entries against every symbol.
func (c *collector) collectWhitelist() {
	for _, entry := range c.opts.Whitelist {
		if entry == "" {
			continue
		}
		matched := false

		if id, ok := c.res.Graph.Lookup(entry); ok {
			if c.res.Graph.Node(id).Kind != graph.NodeKindModule {
				c.seedSymbol(id)
				matched = true
			}
		}
		suffix := "." + entry
		for si := range c.res.Index.Symbols() {
			if si.FQN != entry && strings.HasSuffix(si.FQN, suffix) {
				c.seedSymbol(si.NodeID)
				matched = true
			}
		}

		if !matched {
			c.warnings = append(c.warnings, Warning{
				Name:   entry,
				Reason: "whitelist entry matches nothing",
			})
		}
	}
}

// seedSymbol roots a node; a whitelisted alias pulls the definition
// behind it the same way an export does.
func (c *collector) seedSymbol(id graph.NodeID) {
	c.member[id] = true

	si := c.res.Index.Symbol(c.res.Graph.Node(id).FQN)
	if si == nil || si.Kind != graph.NodeKindAlias {
		return
	}
	final, chain, ok := c.res.Resolver.Resolve(si.Module, si.Name)
	if !ok {
		return
	}
	if c.res.Graph.Node(final).Kind != graph.NodeKindModule {
		c.member[final] = true
		for _, hop := range chain {
			c.member[hop] = true
		}
	}
}

// freeze sorts the collected members into the immutable set.
func (c *collector) freeze() *Set {
	fqns := make([]string, 0, len(c.member))
	byFQN := make(map[string]graph.NodeID, len(c.member))
	for id := range c.member {
		fqn := c.res.Graph.Node(id).FQN
		fqns = append(fqns, fqn)
		byFQN[fqn] = id
	}
	sort.Strings(fqns)

	ids := make([]graph.NodeID, len(fqns))
	for i, fqn := range fqns {
		ids[i] = byFQN[fqn]
	}

	return &Set{
		ids:      ids,
		fqns:     fqns,
		member:   c.member,
		warnings: c.warnings,
	}
}

// closePolicy inserts class-body retention edges for every root
// class: one policy-structural edge from the class to each definition
// in its body, transitively, so exported classes keep and explore
// their members.
func (c *collector) closePolicy(set *Set) error {
	edges := 0
	for _, id := range set.ids {
		node := c.res.Graph.Node(id)
		if node.Kind != graph.NodeKindClass {
			continue
		}
		root := c.res.Index.Symbol(node.FQN)
		if root == nil {
			continue
		}

		stack := make([]string, 0, len(root.Members))
		for i := len(root.Members) - 1; i >= 0; i-- {
			stack = append(stack, root.Members[i])
		}
		for len(stack) > 0 {
			fqn := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			member := c.res.Index.Symbol(fqn)
			if member == nil {
				continue
			}
			if err := c.res.Graph.AddEdge(id, member.NodeID, graph.EdgeKindPolicyStructural, 0); err != nil {
				return err
			}
			edges++
			for i := len(member.Members) - 1; i >= 0; i-- {
				stack = append(stack, member.Members[i])
			}
		}
	}
	if edges > 0 {
		slog.Debug("policy closure inserted", slog.Int("edges", edges))
	}
	return nil
}
