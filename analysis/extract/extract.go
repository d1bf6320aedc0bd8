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
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/graph"
)

// =============================================================================
// Options
// =============================================================================

// Options configures a graph build.
type Options struct {
	// ProjectRoot labels the graph; informational.
	ProjectRoot string

	// GraphOptions is forwarded to the graph constructor.
	GraphOptions []graph.GraphOption

	// Plugins run after the core passes, in order.
	Plugins []Plugin
}

// DefaultOptions returns the baseline build options.
func DefaultOptions() Options {
	return Options{ProjectRoot: "."}
}

// Option mutates build options.
type Option func(*Options)

// WithProjectRoot sets the project root label.
func WithProjectRoot(root string) Option {
	return func(o *Options) {
		if root != "" {
			o.ProjectRoot = root
		}
	}
}

// WithGraphOptions forwards options to the graph constructor.
func WithGraphOptions(opts ...graph.GraphOption) Option {
	return func(o *Options) {
		o.GraphOptions = append(o.GraphOptions, opts...)
	}
}

// WithPlugins appends opt-in extractor plugins.
func WithPlugins(plugins ...Plugin) Option {
	return func(o *Options) {
		o.Plugins = append(o.Plugins, plugins...)
	}
}

// =============================================================================
// Builder
// =============================================================================

// fieldRef is a deferred self.x = Cls(...) field-type record.
type fieldRef struct {
	module string
	scope  string
	name   string
	target string
}

type builder struct {
	g          *graph.Graph
	ix         *Index
	unresolved int
	cycles     []CycleWarning
	cycleSeen  map[string]bool
	pending    []PendingRef
	fields     []fieldRef
	aliasFQNs  []string
	classFQNs  []string
}

// Build turns parsed sources into the symbol graph and its index.
//
// Description:
//
//	Runs the registration, binding, hierarchy, emission and plugin
//	passes described in the package doc. Sources are processed in
//	sorted module order regardless of input order, so two builds over
//	the same inputs produce identical node IDs, edge orders, and
//	warnings.
//
// Inputs:
//
//	ctx - Cancellation checked between modules.
//	sources - One entry per parsed file. Module FQNs must be unique.
//	opts - Functional options.
//
// Outputs:
//
//	*Result - Graph (still building), index, unresolved count, and
//	          alias-cycle warnings.
//	error - Non-nil on invalid sources, capacity limits, plugin
//	        failure, or cancellation.
//
// Thread Safety: Build is single-writer by construction; the returned
// graph and index must not be mutated by callers.
func Build(ctx context.Context, sources []Source, opts ...Option) (*Result, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(sources))
	defer span.End()

	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Module < sorted[j].Module })

	seen := make(map[string]bool, len(sorted))
	for _, src := range sorted {
		if src.Module == "" || src.Result == nil {
			err := fmt.Errorf("%w: module %q", ErrInvalidSource, src.Module)
			setBuildSpanResult(span, 0, 0, 0, err)
			return nil, err
		}
		if seen[src.Module] {
			err := fmt.Errorf("%w: %s", ErrDuplicateModule, src.Module)
			setBuildSpanResult(span, 0, 0, 0, err)
			return nil, err
		}
		seen[src.Module] = true
	}

	b := &builder{
		g:         graph.NewGraph(options.ProjectRoot, options.GraphOptions...),
		ix:        newIndex(),
		cycleSeen: make(map[string]bool),
	}

	// Module nodes first, so a definition colliding with a submodule
	// FQN resolves as a conflict instead of hijacking the module.
	for _, src := range sorted {
		if err := b.registerModuleNode(src); err != nil {
			setBuildSpanResult(span, 0, 0, 0, err)
			return nil, err
		}
	}
	for _, src := range sorted {
		if err := ctx.Err(); err != nil {
			setBuildSpanResult(span, 0, 0, 0, err)
			return nil, err
		}
		if err := b.registerModule(src); err != nil {
			setBuildSpanResult(span, 0, 0, 0, err)
			return nil, err
		}
	}

	// All import alias nodes exist before any alias edge is linked,
	// so next hops land on the binding rather than skipping past it.
	for _, src := range sorted {
		if err := b.bindImportNodes(src.Module); err != nil {
			setBuildSpanResult(span, 0, 0, 0, err)
			return nil, err
		}
	}
	if err := b.linkAliasEdges(); err != nil {
		setBuildSpanResult(span, 0, 0, 0, err)
		return nil, err
	}
	b.resolveAliasChains()
	b.ix.seal()

	if err := b.resolveHierarchy(); err != nil {
		setBuildSpanResult(span, 0, 0, 0, err)
		return nil, err
	}

	for _, src := range sorted {
		if err := ctx.Err(); err != nil {
			setBuildSpanResult(span, 0, 0, 0, err)
			return nil, err
		}
		if err := b.emitModuleEdges(src); err != nil {
			setBuildSpanResult(span, 0, 0, 0, err)
			return nil, err
		}
	}

	pc := &PluginContext{b: b}
	for _, plugin := range options.Plugins {
		if err := plugin.Extract(ctx, pc); err != nil {
			wrapped := fmt.Errorf("%w: %s: %v", ErrPluginFailed, plugin.Name(), err)
			setBuildSpanResult(span, 0, 0, 0, wrapped)
			return nil, wrapped
		}
	}

	res := &Result{
		Graph:      b.g,
		Index:      b.ix,
		Unresolved: b.unresolved,
		Cycles:     b.cycles,
		Resolver:   &Resolver{b: b},
	}

	recordBuildMetrics(ctx, time.Since(start), b.g.EdgeCount(), b.unresolved)
	setBuildSpanResult(span, b.g.NodeCount(), b.g.EdgeCount(), b.unresolved, nil)
	slog.Info("symbol graph built",
		slog.Int("modules", b.ix.ModuleCount()),
		slog.Int("nodes", b.g.NodeCount()),
		slog.Int("edges", b.g.EdgeCount()),
		slog.Int("unresolved", b.unresolved),
		slog.Int("alias_cycles", len(b.cycles)),
		slog.Duration("elapsed", time.Since(start)))

	return res, nil
}

// =============================================================================
// Pass 1: registration
// =============================================================================

func mapSymbolKind(kind ast.SymbolKind) graph.NodeKind {
	switch kind {
	case ast.SymbolKindClass:
		return graph.NodeKindClass
	case ast.SymbolKindMethod:
		return graph.NodeKindMethod
	default:
		return graph.NodeKindFunction
	}
}

func (b *builder) registerModuleNode(src Source) error {
	r := src.Result

	allow := make(map[int]bool, len(r.AllowLines))
	for _, line := range r.AllowLines {
		allow[line] = true
	}

	moduleID, err := b.g.AddNode(src.Module, graph.NodeKindModule, r.FilePath, 1)
	if err != nil {
		return err
	}

	b.ix.modules[src.Module] = &ModuleInfo{
		FQN:          src.Module,
		File:         r.FilePath,
		IsPackage:    src.IsPackage,
		NodeID:       moduleID,
		DunderAll:    r.DunderAll,
		TopLevel:     make(map[string]string),
		imports:      make(map[string]importBinding),
		scopeImports: make(map[string]map[string]importBinding),
		localAliases: make(map[string]map[string]string),
		allowLines:   allow,
	}
	return nil
}

func (b *builder) registerModule(src Source) error {
	mi := b.ix.modules[src.Module]
	if err := b.registerSymbols(mi, src.Result); err != nil {
		return err
	}
	b.registerImports(mi, src.Result)
	return b.registerReferences(mi, src.Result)
}

// registerSymbols walks the definition tree iteratively, assigning
// FQNs and creating one node per definition. Declaration order is
// preserved in Members and in node IDs.
func (b *builder) registerSymbols(mi *ModuleInfo, r *ast.ParseResult) error {
	type frame struct {
		sym    *ast.Symbol
		parent string // enclosing FQN
		owner  *SymbolInfo
	}

	stack := make([]frame, 0, len(r.Symbols))
	for i := len(r.Symbols) - 1; i >= 0; i-- {
		stack = append(stack, frame{sym: r.Symbols[i], parent: mi.FQN})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s := f.sym
		fqn := f.parent + "." + s.Name
		kind := mapSymbolKind(s.Kind)

		if b.ix.symbols[fqn] != nil || b.ix.modules[fqn] != nil {
			// First definition wins; the duplicate subtree is skipped
			// and a kind mismatch lands in graph.Conflicts().
			if _, err := b.g.AddNode(fqn, kind, r.FilePath, s.Location.StartLine); err != nil {
				return err
			}
			continue
		}

		id, err := b.g.AddNode(fqn, kind, r.FilePath, s.Location.StartLine)
		if err != nil {
			return err
		}

		si := &SymbolInfo{
			FQN:        fqn,
			NodeID:     id,
			Kind:       kind,
			Module:     mi.FQN,
			Parent:     f.parent,
			Name:       s.Name,
			Exported:   s.Exported,
			Allowed:    mi.allowLines[s.Location.StartLine],
			Arity:      s.Arity,
			Decorators: s.Decorators,
		}
		if s.Kind == ast.SymbolKindClass {
			si.Class = &ClassInfo{
				Bases:      s.Bases,
				Methods:    make(map[string]string),
				Nested:     make(map[string]string),
				Fields:     make(map[string]string),
				IsProtocol: hasProtocolBase(s.Bases),
			}
			b.classFQNs = append(b.classFQNs, fqn)
		}
		b.ix.symbols[fqn] = si

		if f.owner == nil {
			mi.TopLevel[s.Name] = fqn
		} else {
			f.owner.Members = append(f.owner.Members, fqn)
			if f.owner.Class != nil {
				switch s.Kind {
				case ast.SymbolKindClass:
					f.owner.Class.Nested[s.Name] = fqn
				default:
					f.owner.Class.Methods[s.Name] = fqn
				}
			}
		}

		for i := len(s.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{sym: s.Children[i], parent: fqn, owner: si})
		}
	}
	return nil
}

// hasProtocolBase reports whether any raw base names Protocol.
func hasProtocolBase(bases []string) bool {
	for _, base := range bases {
		if base == "Protocol" || strings.HasSuffix(base, ".Protocol") {
			return true
		}
	}
	return false
}

// registerImports resolves relative levels against the importing
// module and records absolute binding targets.
func (b *builder) registerImports(mi *ModuleInfo, r *ast.ParseResult) {
	for _, imp := range r.Imports {
		base, ok := importBase(mi, imp)
		if !ok {
			continue
		}

		if imp.IsWildcard {
			if base != "" && imp.Scope == "" {
				mi.wildcards = append(mi.wildcards, base)
			}
			continue
		}

		bind := func(name, target string) {
			if name == "" || target == "" {
				return
			}
			if imp.Scope == "" {
				if _, exists := mi.imports[name]; !exists {
					mi.imports[name] = importBinding{target: target, line: imp.Line}
				}
				return
			}
			sm := mi.scopeImports[imp.Scope]
			if sm == nil {
				sm = make(map[string]importBinding)
				mi.scopeImports[imp.Scope] = sm
			}
			if _, exists := sm[name]; !exists {
				sm[name] = importBinding{target: target, line: imp.Line}
			}
		}

		if len(imp.Names) > 0 {
			for _, n := range imp.Names {
				bind(n.Local(), joinFQN(base, n.Name))
			}
			continue
		}

		// Plain import: an alias binds the full path, otherwise the
		// first component binds itself.
		if imp.Alias != "" {
			bind(imp.Alias, imp.Module)
		} else if imp.Module != "" {
			first := strings.SplitN(imp.Module, ".", 2)[0]
			bind(first, first)
		}
	}
}

// importBase computes the absolute module a from-import targets,
// walking relative levels up from the importing module's package.
func importBase(mi *ModuleInfo, imp ast.Import) (string, bool) {
	if imp.Level == 0 {
		return imp.Module, true
	}
	pkg := mi.FQN
	if !mi.IsPackage {
		pkg = parentPackage(pkg)
	}
	for i := 1; i < imp.Level; i++ {
		if pkg == "" {
			return "", false
		}
		pkg = parentPackage(pkg)
	}
	if pkg == "" && imp.Module == "" {
		return "", false
	}
	return joinFQN(pkg, imp.Module), true
}

// registerReferences files each raw reference with the pass that owns
// it: module-level assignment aliases become nodes, scoped aliases
// and imports go into resolution tables, field types and plugin
// streams are deferred.
func (b *builder) registerReferences(mi *ModuleInfo, r *ast.ParseResult) error {
	for i := range r.References {
		ref := r.References[i]
		switch ref.Kind {
		case ast.RefAlias:
			if ref.Scope != "" {
				la := mi.localAliases[ref.Scope]
				if la == nil {
					la = make(map[string]string)
					mi.localAliases[ref.Scope] = la
				}
				if _, exists := la[ref.Name]; !exists {
					la[ref.Name] = ref.Target
				}
				continue
			}
			fqn := mi.FQN + "." + ref.Name
			if b.ix.symbols[fqn] != nil || b.ix.modules[fqn] != nil {
				// A definition, earlier alias, or submodule owns the name.
				continue
			}
			id, err := b.g.AddNode(fqn, graph.NodeKindAlias, mi.File, ref.Line)
			if err != nil {
				return err
			}
			b.ix.symbols[fqn] = &SymbolInfo{
				FQN:         fqn,
				NodeID:      id,
				Kind:        graph.NodeKindAlias,
				Module:      mi.FQN,
				Parent:      mi.FQN,
				Name:        ref.Name,
				Exported:    ast.IsExportedName(ref.Name),
				Allowed:     mi.allowLines[ref.Line],
				AliasTarget: ref.Target,
			}
			mi.TopLevel[ref.Name] = fqn
			b.aliasFQNs = append(b.aliasFQNs, fqn)

		case ast.RefFieldType:
			b.fields = append(b.fields, fieldRef{
				module: mi.FQN,
				scope:  ref.Scope,
				name:   ref.Name,
				target: ref.Target,
			})

		case ast.RefDictValue, ast.RefString:
			b.pending = append(b.pending, PendingRef{Module: mi.FQN, Ref: ref})
		}
	}
	return nil
}

// =============================================================================
// Pass 2: binding
// =============================================================================

// bindImportNodes turns module-level import bindings that resolve
// inside the project into alias nodes. External imports stay in the
// resolution tables only. Edges come later, once every module's
// binding nodes exist.
func (b *builder) bindImportNodes(module string) error {
	mi := b.ix.modules[module]

	names := make([]string, 0, len(mi.imports))
	for name := range mi.imports {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		bind := mi.imports[name]
		if bind.target == "" {
			continue
		}
		if _, _, ok := b.resolve(globalState(bind.target, nil), mi.FQN, bind.target, false); !ok {
			continue
		}

		fqn := mi.FQN + "." + name
		if b.ix.symbols[fqn] != nil || b.ix.modules[fqn] != nil {
			continue
		}
		id, err := b.g.AddNode(fqn, graph.NodeKindAlias, mi.File, bind.line)
		if err != nil {
			return err
		}
		b.ix.symbols[fqn] = &SymbolInfo{
			FQN:           fqn,
			NodeID:        id,
			Kind:          graph.NodeKindAlias,
			Module:        mi.FQN,
			Parent:        mi.FQN,
			Name:          name,
			Exported:      ast.IsExportedName(name),
			Allowed:       mi.allowLines[bind.line],
			AliasTarget:   bind.target,
			AliasAbsolute: true,
		}
		mi.TopLevel[name] = fqn
		b.aliasFQNs = append(b.aliasFQNs, fqn)
	}
	return nil
}

// linkAliasEdges gives every alias node its next-hop edge, now that
// all binding nodes exist. Import aliases resolve their target
// absolutely, assignment aliases from their module's scope.
func (b *builder) linkAliasEdges() error {
	for _, fqn := range b.aliasFQNs {
		si := b.ix.symbols[fqn]
		var st resolveState
		if si.AliasAbsolute {
			st = globalState(si.AliasTarget, nil)
		} else {
			st = resolveState{mod: b.ix.modules[si.Module], parts: strings.Split(si.AliasTarget, ".")}
		}
		hop, _, ok := b.resolve(st, si.Module, si.AliasTarget, true)
		if !ok || hop == si.NodeID {
			continue
		}
		line := b.g.Node(si.NodeID).Line
		if err := b.g.AddEdge(si.NodeID, hop, graph.EdgeKindAlias, line); err != nil {
			return err
		}
	}
	return nil
}

// resolveAliasChains pre-resolves every alias chain so cycles are
// detected and warned exactly once, before any reference needs them.
func (b *builder) resolveAliasChains() {
	fqns := make([]string, len(b.aliasFQNs))
	copy(fqns, b.aliasFQNs)
	sort.Strings(fqns)

	for _, fqn := range fqns {
		si := b.ix.symbols[fqn]
		mi := b.ix.modules[si.Module]
		if si.AliasAbsolute {
			b.resolve(globalState(si.AliasTarget, nil), si.Module, fqn, false)
			continue
		}
		st := resolveState{mod: mi, parts: strings.Split(si.AliasTarget, ".")}
		b.resolve(st, si.Module, fqn, false)
	}
}

// =============================================================================
// Pass 3: hierarchy
// =============================================================================

// resolveHierarchy resolves base classes, linearizes base orders,
// attaches learned field types, and synthesizes constructor edges.
func (b *builder) resolveHierarchy() error {
	classes := make([]string, len(b.classFQNs))
	copy(classes, b.classFQNs)
	sort.Strings(classes)

	// Bases. Defining a subclass references its bases, so each
	// resolved base gets a value-flow edge from the class.
	for _, fqn := range classes {
		si := b.ix.symbols[fqn]
		mi := b.ix.modules[si.Module]
		scope := classScope(si)

		for _, raw := range si.Class.Bases {
			id, chain, ok := b.resolveRef(mi, scope, raw)
			if !ok {
				b.unresolved++
				continue
			}
			node := b.g.Node(id)
			if node.Kind == graph.NodeKindClass {
				si.Class.ResolvedBases = append(si.Class.ResolvedBases, node.FQN)
			}
			line := b.g.Node(si.NodeID).Line
			if err := b.g.AddEdge(si.NodeID, id, graph.EdgeKindValueFlow, line); err != nil {
				return err
			}
			for _, hop := range chain {
				if hop == id {
					continue
				}
				if err := b.g.AddEdge(si.NodeID, hop, graph.EdgeKindValueFlow, line); err != nil {
					return err
				}
			}
		}
	}

	for _, fqn := range classes {
		si := b.ix.symbols[fqn]
		si.Class.Linearized = b.linearize(fqn)
	}

	// Learned field types; first assignment wins.
	for _, fr := range b.fields {
		mi := b.ix.modules[fr.module]
		id, _, ok := b.resolveRef(mi, fr.scope, fr.target)
		if !ok {
			continue
		}
		node := b.g.Node(id)
		if node.Kind != graph.NodeKindClass {
			continue
		}
		cls := b.enclosingClass(mi, fr.scope)
		if cls == nil {
			continue
		}
		if _, exists := cls.Class.Fields[fr.name]; !exists {
			cls.Class.Fields[fr.name] = node.FQN
		}
	}

	// Constructor propagation: invoking a class reaches the __init__
	// that would actually run, own or nearest inherited.
	for _, fqn := range classes {
		si := b.ix.symbols[fqn]
		init := si.Class.Methods["__init__"]
		if init == "" {
			for _, baseFQN := range si.Class.Linearized {
				base := b.ix.symbols[baseFQN]
				if base == nil || base.Class == nil {
					continue
				}
				if m := base.Class.Methods["__init__"]; m != "" {
					init = m
					break
				}
			}
		}
		if init == "" {
			continue
		}
		if err := b.g.AddEdge(si.NodeID, b.ix.symbols[init].NodeID, graph.EdgeKindCall, 0); err != nil {
			return err
		}
	}
	return nil
}

// classScope is the scope a class's base expressions resolve in: the
// enclosing definition path, or module level for top-level classes.
func classScope(si *SymbolInfo) string {
	rel := strings.TrimPrefix(si.FQN, si.Module+".")
	idx := strings.LastIndex(rel, ".")
	if idx < 0 {
		return ""
	}
	return rel[:idx]
}

// linearize flattens a class's resolved bases depth-first,
// left-to-right, keeping first occurrences and excluding the class
// itself.
func (b *builder) linearize(fqn string) []string {
	var out []string
	seen := map[string]bool{fqn: true}

	si := b.ix.symbols[fqn]
	stack := make([]string, 0, len(si.Class.ResolvedBases))
	for i := len(si.Class.ResolvedBases) - 1; i >= 0; i-- {
		stack = append(stack, si.Class.ResolvedBases[i])
	}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)

		cs := b.ix.symbols[cur]
		if cs == nil || cs.Class == nil {
			continue
		}
		for i := len(cs.Class.ResolvedBases) - 1; i >= 0; i-- {
			stack = append(stack, cs.Class.ResolvedBases[i])
		}
	}
	return out
}

// =============================================================================
// Pass 4: emission
// =============================================================================

// edgeKindForRef maps reference kinds to edge kinds. Reference kinds
// owned by other passes report false.
func edgeKindForRef(kind ast.RefKind) (graph.EdgeKind, bool) {
	switch kind {
	case ast.RefCall:
		return graph.EdgeKindCall, true
	case ast.RefValue:
		return graph.EdgeKindValueFlow, true
	case ast.RefDecorator:
		return graph.EdgeKindDecorator, true
	case ast.RefException:
		return graph.EdgeKindException, true
	case ast.RefIsinstance:
		return graph.EdgeKindIsinstance, true
	case ast.RefProperty:
		return graph.EdgeKindProperty, true
	case ast.RefReturnEscape:
		return graph.EdgeKindReturnEscape, true
	default:
		return 0, false
	}
}

// fromNode maps a reference scope to its graph node, falling back to
// the module for unregistered scopes.
func (b *builder) fromNode(mi *ModuleInfo, scope string) graph.NodeID {
	if scope == "" {
		return mi.NodeID
	}
	if si := b.ix.Symbol(mi.FQN + "." + scope); si != nil {
		return si.NodeID
	}
	return mi.NodeID
}

// emitModuleEdges resolves each usage reference and emits its typed
// edge, plus a same-kind edge onto every alias traversed so used
// bindings stay live under patterns that reject mid-path aliases.
func (b *builder) emitModuleEdges(src Source) error {
	mi := b.ix.modules[src.Module]
	r := src.Result

	for i := range r.References {
		ref := r.References[i]
		kind, ok := edgeKindForRef(ref.Kind)
		if !ok || ref.Target == "" {
			continue
		}

		id, chain, resolved := b.resolveRef(mi, ref.Scope, ref.Target)
		if !resolved {
			b.unresolved++
			slog.Debug("unresolved reference",
				slog.String("module", mi.FQN),
				slog.String("target", ref.Target),
				slog.Int("line", ref.Line))
			continue
		}

		from := b.fromNode(mi, ref.Scope)
		if err := b.g.AddEdge(from, id, kind, ref.Line); err != nil {
			return err
		}
		for _, hop := range chain {
			if hop == id {
				continue
			}
			if err := b.g.AddEdge(from, hop, kind, ref.Line); err != nil {
				return err
			}
		}
	}
	return nil
}
