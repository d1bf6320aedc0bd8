// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plugin holds the opt-in extractors that recover usage the
// core passes deliberately leave invisible.
//
// # Description
//
// Two dynamic idioms defeat static reference extraction: registration
// by dotted string ("app.register(\"pkg.tasks.send\")") and dispatch
// through a module-level table ("HANDLERS = {\"GET\": handle_get}").
// The parser records both as pending references; the core passes emit
// no edges for them. Each plugin here turns one idiom's pending
// references into value-flow edges from the site that holds the
// reference.
//
// Plugins are never enabled by default. Turning one on can mask
// genuinely dead code: a string that happens to name a symbol does not
// prove the registration path runs.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/graph"
)

// Plugin names accepted in configuration.
const (
	// NameRegistry enables the registry constructor plugin.
	NameRegistry = "registry"

	// NameDispatch enables the dispatch table plugin.
	NameDispatch = "dispatch"
)

// FromNames builds the configured plugin set in declaration order.
//
// Inputs:
//
//	names - Plugin names from configuration.
//	constructors - Registry constructor callees, used only when the
//	registry plugin is named.
//
// Outputs:
//
//	[]extract.Plugin - The instantiated plugins.
//	error - ErrUnknownPlugin naming the first unrecognized entry.
func FromNames(names []string, constructors []string) ([]extract.Plugin, error) {
	plugins := make([]extract.Plugin, 0, len(names))
	for _, name := range names {
		switch name {
		case NameRegistry:
			plugins = append(plugins, NewRegistry(constructors...))
		case NameDispatch:
			plugins = append(plugins, NewDispatch())
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
		}
	}
	return plugins, nil
}

// =============================================================================
// Registry Constructor Plugin
// =============================================================================

// Registry resolves dotted-string arguments of configured constructor
// calls to project symbols.
//
// A constructor entry matches a call site's callee exactly or as a
// dot-boundary suffix: "register" matches both "register(...)" and
// "app.register(...)". Matching strings must name absolute project
// FQNs; anything that does not resolve is skipped without complaint,
// since string targets are speculative by nature. Identifier arguments
// need no plugin; they flow through core value-flow extraction.
type Registry struct {
	constructors []string
}

// NewRegistry builds the registry plugin for the given constructor
// callees. With no constructors it matches nothing.
func NewRegistry(constructors ...string) *Registry {
	return &Registry{constructors: constructors}
}

// Name identifies the plugin in configuration and errors.
func (r *Registry) Name() string {
	return NameRegistry
}

// Extract wires each matching string reference with a value-flow edge
// from the call-site scope to the named symbol.
func (r *Registry) Extract(ctx context.Context, pc *extract.PluginContext) error {
	wired := 0
	for _, pending := range pc.Pending(ast.RefString) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.matches(pending.Ref.CallName) {
			continue
		}
		id, ok := pc.ResolveAbsolute(pending.Ref.Target)
		if !ok {
			continue
		}
		from, ok := pc.ScopeNode(pending.Module, pending.Ref.Scope)
		if !ok {
			continue
		}
		if err := pc.Graph().AddEdge(from, id, graph.EdgeKindValueFlow, pending.Ref.Line); err != nil {
			return err
		}
		wired++
	}
	slog.Debug("registry plugin wired string references", slog.Int("edges", wired))
	return nil
}

// matches reports whether a call-site callee is a configured
// constructor, by exact name or dot-boundary suffix.
func (r *Registry) matches(callee string) bool {
	if callee == "" {
		return false
	}
	for _, c := range r.constructors {
		if callee == c || strings.HasSuffix(callee, "."+c) {
			return true
		}
	}
	return false
}

// =============================================================================
// Dispatch Table Plugin
// =============================================================================

// Dispatch wires the callable values of module-level container
// assignments.
//
// The parser records a pending reference per identifier value of a
// standalone dict, list, tuple or set literal bound at module level,
// recursing through nested containers. Container literals passed as
// call arguments are core value-flow and never reach this plugin.
type Dispatch struct{}

// NewDispatch builds the dispatch table plugin.
func NewDispatch() *Dispatch {
	return &Dispatch{}
}

// Name identifies the plugin in configuration and errors.
func (d *Dispatch) Name() string {
	return NameDispatch
}

// Extract wires each table value with a value-flow edge from the
// table's defining scope.
func (d *Dispatch) Extract(ctx context.Context, pc *extract.PluginContext) error {
	wired := 0
	for _, pending := range pc.Pending(ast.RefDictValue) {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := pc.Resolve(pending.Module, pending.Ref.Scope, pending.Ref.Target)
		if !ok {
			continue
		}
		from, ok := pc.ScopeNode(pending.Module, pending.Ref.Scope)
		if !ok {
			continue
		}
		if err := pc.Graph().AddEdge(from, id, graph.EdgeKindValueFlow, pending.Ref.Line); err != nil {
			return err
		}
		wired++
	}
	slog.Debug("dispatch plugin wired table values", slog.Int("edges", wired))
	return nil
}
