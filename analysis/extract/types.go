// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns per-file parse results into the typed symbol
// graph.
//
// # Description
//
// The builder runs fixed passes over the parsed files, in sorted
// module order so repeated runs produce identical graphs:
//
//  1. Registration: one node per module and per definition, FQNs
//     assembled from the module path plus the definition path.
//     Module-level assignment aliases become alias nodes.
//  2. Binding: module-level imports that resolve inside the project
//     become alias nodes with an alias edge to their next hop;
//     assignment aliases get their next-hop edges; every alias chain
//     is pre-resolved so cycles are detected exactly once.
//  3. Hierarchy: raw base-class expressions resolve to class nodes,
//     base orders are linearized, learned field types are attached,
//     and constructor edges are synthesized.
//  4. Emission: every reference resolves through the precedence chain
//     (local alias, module alias, class scope, self/cls, superclass
//     walk) to a node and becomes one typed edge. References that
//     resolve through alias nodes additionally put a same-kind edge
//     on each traversed alias so textually used bindings stay live.
//  5. Plugins: opt-in extractors consume the pending dict-value and
//     string references the core pass deliberately leaves alone.
//
// Unresolvable references are counted and dropped, never edges.
// Alias cycles abort their chain with a recorded warning. Both are
// non-fatal; the only fatal input is a file that failed to parse,
// which never reaches this package.
package extract

import (
	"sort"
	"strings"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/graph"
)

// =============================================================================
// Inputs
// =============================================================================

// Source pairs one parsed file with its module identity. The scanner
// derives Module from the file path relative to the project root.
type Source struct {
	// Module is the dotted module FQN, e.g. "pkg.sub.mod".
	Module string

	// IsPackage is true for __init__ files, whose module FQN is the
	// package itself rather than a file-named submodule.
	IsPackage bool

	// Result is the parse output for the file.
	Result *ast.ParseResult
}

// =============================================================================
// Warnings
// =============================================================================

// CycleWarning records an alias chain that revisited a binding.
// The chain is left unresolved; references through it do not produce
// edges and are counted as unresolved.
type CycleWarning struct {
	// Module is the module whose resolution detected the cycle.
	Module string

	// Start is the dotted name whose resolution cycled.
	Start string
}

// String renders the warning for report output.
func (w CycleWarning) String() string {
	return "alias cycle: " + w.Start + " (in " + w.Module + ")"
}

// =============================================================================
// Index
// =============================================================================

// importBinding is one module-level or function-level import binding.
// The target is an absolute dotted path; relative imports are resolved
// against the importing module at registration time.
type importBinding struct {
	target string
	line   int
}

// ModuleInfo is the per-module resolution table built during
// registration. Exported fields are read-only after Build returns.
type ModuleInfo struct {
	// FQN is the dotted module name.
	FQN string

	// File is the source path the module was parsed from.
	File string

	// IsPackage is true for package __init__ modules.
	IsPackage bool

	// NodeID is the module's graph node.
	NodeID graph.NodeID

	// DunderAll holds the module's __all__ entries; nil when the
	// module declares none.
	DunderAll []string

	// TopLevel maps each top-level binding name to its symbol FQN:
	// definitions, assignment aliases, and project-resolving import
	// bindings (as alias nodes).
	TopLevel map[string]string

	imports      map[string]importBinding
	scopeImports map[string]map[string]importBinding
	localAliases map[string]map[string]string
	wildcards    []string
	allowLines   map[int]bool
}

// Exports returns the module's export surface: __all__ when declared,
// otherwise every exported top-level binding sorted by name.
func (m *ModuleInfo) Exports() []string {
	if m.DunderAll != nil {
		out := make([]string, len(m.DunderAll))
		copy(out, m.DunderAll)
		return out
	}
	names := make([]string, 0, len(m.TopLevel))
	for name := range m.TopLevel {
		if ast.IsExportedName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// exportsName reports whether the module exports the given name,
// used for wildcard-import resolution.
func (m *ModuleInfo) exportsName(name string) bool {
	if m.DunderAll != nil {
		for _, n := range m.DunderAll {
			if n == name {
				return true
			}
		}
		return false
	}
	_, ok := m.TopLevel[name]
	return ok && ast.IsExportedName(name)
}

// ClassInfo carries the hierarchy data attached to class symbols.
type ClassInfo struct {
	// Bases holds the raw base expressions as written.
	Bases []string

	// ResolvedBases holds the FQNs of bases that resolved to project
	// classes, in declaration order.
	ResolvedBases []string

	// Linearized is the transitive base order: a left-to-right
	// depth-first walk over resolved bases, first occurrence kept,
	// excluding the class itself.
	Linearized []string

	// Methods maps method name to FQN for defs in the class body.
	Methods map[string]string

	// Nested maps nested class name to FQN.
	Nested map[string]string

	// Fields maps attribute name to the FQN of the class assigned to
	// it in a method body (self.x = Cls(...)), first assignment wins.
	Fields map[string]string

	// IsProtocol is true when a raw base's final component is
	// "Protocol".
	IsProtocol bool
}

// SymbolInfo is the per-definition record kept alongside the graph
// node. Exported fields are read-only after Build returns.
type SymbolInfo struct {
	// FQN is the globally unique dotted name.
	FQN string

	// NodeID is the graph node for this symbol.
	NodeID graph.NodeID

	// Kind is the node kind registered for the symbol.
	Kind graph.NodeKind

	// Module is the owning module FQN.
	Module string

	// Parent is the enclosing symbol FQN, or the module FQN for
	// top-level definitions.
	Parent string

	// Name is the final FQN component.
	Name string

	// Exported reports Python public-name convention.
	Exported bool

	// Allowed is true when the definition line carries an allow
	// marker; allowed symbols are suppressed from dead reporting.
	Allowed bool

	// Arity is the parameter count (implicit self/cls excluded),
	// ast.ArityUnknown for variadic signatures, zero for classes.
	Arity int

	// Decorators holds raw decorator names in source order.
	Decorators []string

	// Members holds direct child FQNs in declaration order.
	Members []string

	// Class is non-nil for class symbols.
	Class *ClassInfo

	// AliasTarget is the raw target for alias nodes: module-relative
	// text for assignment aliases, an absolute dotted path for import
	// bindings.
	AliasTarget string

	// AliasAbsolute is true when AliasTarget is an absolute path.
	AliasAbsolute bool
}

// Index is the symbol and module catalog built alongside the graph.
// It backs name resolution during extraction and is consumed by the
// root builder and the nominal propagator afterwards.
//
// Thread Safety: read-only after Build returns; safe for concurrent
// readers.
type Index struct {
	modules     map[string]*ModuleInfo
	symbols     map[string]*SymbolInfo
	moduleNames []string
	symbolNames []string
}

func newIndex() *Index {
	return &Index{
		modules: make(map[string]*ModuleInfo),
		symbols: make(map[string]*SymbolInfo),
	}
}

// Module returns the module record for fqn, or nil.
func (ix *Index) Module(fqn string) *ModuleInfo {
	return ix.modules[fqn]
}

// Symbol returns the symbol record for fqn, or nil.
func (ix *Index) Symbol(fqn string) *SymbolInfo {
	return ix.symbols[fqn]
}

// ModuleCount returns the number of registered modules.
func (ix *Index) ModuleCount() int {
	return len(ix.modules)
}

// SymbolCount returns the number of registered symbols.
func (ix *Index) SymbolCount() int {
	return len(ix.symbols)
}

// Modules returns an iterator over modules in sorted FQN order.
func (ix *Index) Modules() func(yield func(*ModuleInfo) bool) {
	return func(yield func(*ModuleInfo) bool) {
		for _, name := range ix.moduleNames {
			if !yield(ix.modules[name]) {
				return
			}
		}
	}
}

// Symbols returns an iterator over symbols in sorted FQN order.
func (ix *Index) Symbols() func(yield func(*SymbolInfo) bool) {
	return func(yield func(*SymbolInfo) bool) {
		for _, name := range ix.symbolNames {
			if !yield(ix.symbols[name]) {
				return
			}
		}
	}
}

// seal sorts the iteration orders once registration is complete.
func (ix *Index) seal() {
	ix.moduleNames = make([]string, 0, len(ix.modules))
	for name := range ix.modules {
		ix.moduleNames = append(ix.moduleNames, name)
	}
	sort.Strings(ix.moduleNames)

	ix.symbolNames = make([]string, 0, len(ix.symbols))
	for name := range ix.symbols {
		ix.symbolNames = append(ix.symbolNames, name)
	}
	sort.Strings(ix.symbolNames)
}

// =============================================================================
// Result
// =============================================================================

// Result is the extraction output. The graph is still in the building
// state: the nominal propagator and the root policy closure add edges
// before the pipeline freezes it.
type Result struct {
	// Graph is the populated symbol graph.
	Graph *graph.Graph

	// Index is the module and symbol catalog.
	Index *Index

	// Unresolved counts references that resolved to nothing and were
	// dropped. Builtins and external imports land here.
	Unresolved int

	// Cycles lists the alias chains that were broken.
	Cycles []CycleWarning

	// Resolver maps names to nodes against the finished index.
	Resolver *Resolver
}

// =============================================================================
// Helpers
// =============================================================================

// joinFQN assembles a dotted FQN from non-empty parts.
func joinFQN(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

// parentPackage returns the dotted parent of a module FQN, or "" at
// the top.
func parentPackage(fqn string) string {
	idx := strings.LastIndex(fqn, ".")
	if idx < 0 {
		return ""
	}
	return fqn[:idx]
}

// enclosingScopes lists the dotted scope and its enclosing scopes,
// innermost first: "f.inner" yields ["f.inner", "f"].
func enclosingScopes(scope string) []string {
	if scope == "" {
		return nil
	}
	parts := strings.Split(scope, ".")
	out := make([]string, 0, len(parts))
	for i := len(parts); i >= 1; i-- {
		out = append(out, strings.Join(parts[:i], "."))
	}
	return out
}
