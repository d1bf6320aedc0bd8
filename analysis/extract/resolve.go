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
	"log/slog"
	"strings"

	"github.com/AleutianAI/deadwood/analysis/graph"
)

// resolveState is one step of the resolution machine. Module mode
// resolves parts against a module's scope and binding tables; global
// mode resolves an absolute dotted path against the whole index.
type resolveState struct {
	global bool
	mod    *ModuleInfo
	scope  string
	parts  []string
}

func (st resolveState) key() string {
	joined := strings.Join(st.parts, ".")
	if st.global {
		return "g\x00" + joined
	}
	return "m\x00" + st.mod.FQN + "\x00" + st.scope + "\x00" + joined
}

// globalState starts a global-mode step for an absolute target plus a
// remaining attribute tail.
func globalState(target string, tail []string) resolveState {
	parts := strings.Split(target, ".")
	return resolveState{global: true, parts: append(parts, tail...)}
}

// resolveRef resolves a dotted reference written in the given module
// and scope. It follows alias chains to the final target and returns
// the alias nodes traversed along the way, so the caller can keep
// textually used bindings live with same-kind edges.
func (b *builder) resolveRef(mod *ModuleInfo, scope, dotted string) (graph.NodeID, []graph.NodeID, bool) {
	st := resolveState{mod: mod, scope: scope, parts: strings.Split(dotted, ".")}
	return b.resolve(st, mod.FQN, dotted, false)
}

// resolve runs the resolution machine until a node is found, the name
// is established as external, or a visited state repeats (an alias
// cycle). Each iteration either terminates or rewrites the state by
// expanding exactly one binding, so the visited set bounds the walk.
//
// With nextHop set, resolution stops at the first alias node instead
// of following the chain; alias edge emission uses this to link each
// alias to its immediate target.
//
// # Precedence
//
// self/cls and super resolve against the enclosing class first. Then
// each enclosing function scope is checked for local aliases, local
// imports, and nested definitions, innermost first. A reference made
// directly in a class body checks the class's own attributes. Module
// level checks top-level bindings (definitions and aliases), then
// import bindings, then wildcard imports. Anything left is external.
func (b *builder) resolve(st resolveState, originModule, origin string, nextHop bool) (graph.NodeID, []graph.NodeID, bool) {
	visited := make(map[string]bool)
	var chain []graph.NodeID

steps:
	for {
		if len(st.parts) == 0 || st.parts[0] == "" {
			return graph.InvalidNode, nil, false
		}
		key := st.key()
		if visited[key] {
			b.recordCycle(originModule, origin, key)
			return graph.InvalidNode, nil, false
		}
		visited[key] = true

		if st.global {
			next, id, ch, done, ok := b.stepGlobal(st, chain, nextHop)
			if done {
				return id, ch, ok
			}
			st, chain = next, ch
			continue steps
		}

		head := st.parts[0]
		tail := st.parts[1:]

		if (head == "self" || head == "cls") && st.scope != "" {
			cls := b.enclosingClass(st.mod, st.scope)
			if cls == nil {
				return graph.InvalidNode, nil, false
			}
			if len(tail) == 0 {
				return cls.NodeID, chain, true
			}
			return b.attrChain(cls, tail, chain)
		}

		if head == "super" && st.scope != "" {
			return b.resolveSuper(st.mod, st.scope, tail, chain)
		}

		for _, sk := range enclosingScopes(st.scope) {
			// Class bodies do not scope their members for bare names;
			// methods reach them through self/cls only.
			if owner := b.ix.Symbol(joinFQN(st.mod.FQN, sk)); owner != nil && owner.Class != nil {
				continue
			}
			if raw, ok := st.mod.localAliases[sk][head]; ok {
				st.parts = append(strings.Split(raw, "."), tail...)
				st.scope = sk
				continue steps
			}
			if bind, ok := st.mod.scopeImports[sk][head]; ok {
				st = globalState(bind.target, tail)
				continue steps
			}
			if si := b.ix.Symbol(joinFQN(st.mod.FQN, sk, head)); si != nil {
				return b.finishSymbol(si, tail, chain)
			}
		}

		// A reference written directly in a class body sees the
		// class's own attributes; method bodies do not.
		if st.scope != "" {
			if cls := b.ix.Symbol(joinFQN(st.mod.FQN, st.scope)); cls != nil && cls.Class != nil {
				if id, ch, ok := b.attrChain(cls, st.parts, chain); ok {
					return id, ch, true
				}
			}
		}

		if fqn, ok := st.mod.TopLevel[head]; ok {
			si := b.ix.Symbol(fqn)
			if si != nil && si.Kind == graph.NodeKindAlias {
				chain = append(chain, si.NodeID)
				if nextHop {
					return si.NodeID, chain, true
				}
				if si.AliasAbsolute {
					st = globalState(si.AliasTarget, tail)
				} else {
					st.parts = append(strings.Split(si.AliasTarget, "."), tail...)
					st.scope = ""
				}
				continue steps
			}
			if si != nil {
				return b.finishSymbol(si, tail, chain)
			}
		}

		if bind, ok := st.mod.imports[head]; ok {
			st = globalState(bind.target, tail)
			continue steps
		}

		for _, src := range st.mod.wildcards {
			if m := b.ix.Module(src); m != nil && m.exportsName(head) {
				st = globalState(src+"."+head, tail)
				continue steps
			}
		}

		// Builtin or external; dropped and counted by the caller.
		return graph.InvalidNode, nil, false
	}
}

// stepGlobal advances one global-mode step. It returns either a
// rewritten state (done false) or a terminal result (done true).
func (b *builder) stepGlobal(st resolveState, chain []graph.NodeID, nextHop bool) (resolveState, graph.NodeID, []graph.NodeID, bool, bool) {
	full := st.parts

	// Longest module prefix wins, so submodules shadow same-named
	// attributes of their parent package.
	var m *ModuleInfo
	k := len(full)
	for ; k >= 1; k-- {
		if found := b.ix.Module(strings.Join(full[:k], ".")); found != nil {
			m = found
			break
		}
	}
	if m == nil {
		return st, graph.InvalidNode, nil, true, false
	}
	if k == len(full) {
		return st, m.NodeID, chain, true, true
	}

	rest := full[k:]
	name := rest[0]

	if fqn, ok := m.TopLevel[name]; ok {
		si := b.ix.Symbol(fqn)
		if si != nil && si.Kind == graph.NodeKindAlias {
			chain = append(chain, si.NodeID)
			if nextHop {
				return st, si.NodeID, chain, true, true
			}
			if si.AliasAbsolute {
				return globalState(si.AliasTarget, rest[1:]), graph.InvalidNode, chain, false, false
			}
			next := resolveState{
				mod:   m,
				parts: append(strings.Split(si.AliasTarget, "."), rest[1:]...),
			}
			return next, graph.InvalidNode, chain, false, false
		}
		if si != nil {
			id, ch, ok2 := b.finishSymbol(si, rest[1:], chain)
			return st, id, ch, true, ok2
		}
	}

	if bind, ok := m.imports[name]; ok {
		return globalState(bind.target, rest[1:]), graph.InvalidNode, chain, false, false
	}

	for _, src := range m.wildcards {
		if w := b.ix.Module(src); w != nil && w.exportsName(name) {
			return globalState(src+"."+name, rest[1:]), graph.InvalidNode, chain, false, false
		}
	}

	return st, graph.InvalidNode, nil, true, false
}

// finishSymbol terminates resolution at a definition. A remaining
// attribute tail only makes sense against a class; a tail against a
// function would address its call result, which is opaque here.
func (b *builder) finishSymbol(si *SymbolInfo, tail []string, chain []graph.NodeID) (graph.NodeID, []graph.NodeID, bool) {
	if len(tail) == 0 {
		return si.NodeID, chain, true
	}
	if si.Class != nil {
		return b.attrChain(si, tail, chain)
	}
	return graph.InvalidNode, nil, false
}

// attrChain walks attribute components against a class, consulting
// methods, nested classes, learned field types, and the linearized
// bases at each hop. Intermediate hops must land on classes.
func (b *builder) attrChain(cls *SymbolInfo, parts []string, chain []graph.NodeID) (graph.NodeID, []graph.NodeID, bool) {
	cur := cls
	for i, part := range parts {
		si := b.classAttr(cur, part)
		if si == nil {
			return graph.InvalidNode, nil, false
		}
		if si.Class == nil {
			if i == len(parts)-1 {
				return si.NodeID, chain, true
			}
			return graph.InvalidNode, nil, false
		}
		cur = si
	}
	return cur.NodeID, chain, true
}

// classAttr finds one attribute on a class or its linearized bases.
// A learned field resolves to the class assigned to it, so chains
// like self.repo.save keep walking.
func (b *builder) classAttr(cls *SymbolInfo, name string) *SymbolInfo {
	if cls.Class == nil {
		return nil
	}
	for i := -1; i < len(cls.Class.Linearized); i++ {
		si := cls
		if i >= 0 {
			si = b.ix.Symbol(cls.Class.Linearized[i])
		}
		if si == nil || si.Class == nil {
			continue
		}
		if fqn, ok := si.Class.Methods[name]; ok {
			return b.ix.Symbol(fqn)
		}
		if fqn, ok := si.Class.Nested[name]; ok {
			return b.ix.Symbol(fqn)
		}
		if fqn, ok := si.Class.Fields[name]; ok {
			return b.ix.Symbol(fqn)
		}
	}
	return nil
}

// resolveSuper maps super().m to the nearest base defining m.
func (b *builder) resolveSuper(mod *ModuleInfo, scope string, tail []string, chain []graph.NodeID) (graph.NodeID, []graph.NodeID, bool) {
	if len(tail) != 1 {
		return graph.InvalidNode, nil, false
	}
	cls := b.enclosingClass(mod, scope)
	if cls == nil || cls.Class == nil {
		return graph.InvalidNode, nil, false
	}
	for _, baseFQN := range cls.Class.Linearized {
		base := b.ix.Symbol(baseFQN)
		if base == nil || base.Class == nil {
			continue
		}
		if fqn, ok := base.Class.Methods[tail[0]]; ok {
			if si := b.ix.Symbol(fqn); si != nil {
				return si.NodeID, chain, true
			}
		}
	}
	return graph.InvalidNode, nil, false
}

// enclosingClass finds the innermost class containing a scope.
func (b *builder) enclosingClass(mod *ModuleInfo, scope string) *SymbolInfo {
	for _, sk := range enclosingScopes(scope) {
		if si := b.ix.Symbol(joinFQN(mod.FQN, sk)); si != nil && si.Class != nil {
			return si
		}
	}
	return nil
}

// Resolver re-runs the resolution machine against the finished index.
// The root builder uses it to map export surfaces onto nodes after
// extraction completes.
//
// Thread Safety: safe for concurrent readers once Build has returned;
// every alias chain was pre-resolved during the build, so no further
// cycle warnings are recorded.
type Resolver struct {
	b *builder
}

// Resolve resolves a dotted name as if written at the top level of the
// given module. It returns the final node and the alias nodes
// traversed on the way.
func (r *Resolver) Resolve(module, dotted string) (graph.NodeID, []graph.NodeID, bool) {
	mi := r.b.ix.Module(module)
	if mi == nil || dotted == "" {
		return graph.InvalidNode, nil, false
	}
	return r.b.resolveRef(mi, "", dotted)
}

// recordCycle records one broken alias chain, deduplicated on the
// revisited state so a cycle warns once no matter how many references
// run into it.
func (b *builder) recordCycle(module, origin, key string) {
	if b.cycleSeen[key] {
		return
	}
	b.cycleSeen[key] = true
	b.cycles = append(b.cycles, CycleWarning{Module: module, Start: origin})
	slog.Warn("alias chain cycle, left unresolved",
		slog.String("module", module),
		slog.String("name", origin))
}
