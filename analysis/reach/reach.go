// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reach decides liveness by breadth-first search over the
// product of the symbol graph and the compiled path pattern.
//
// # Description
//
// A product state pairs a node with an automaton state. The search is
// seeded at (root, start) for every declared root in frozen root
// order, then at every module node in sorted module order. Module
// seeds make module-level usage count: a dict-literal value-flow edge
// originates at the defining module's node, so a handler referenced
// only from a module-level table stays live exactly when its module is
// part of the analyzed project. Module seeds are engine-internal;
// modules are files, not symbols, and never appear in the used, dead,
// or allowed sets.
//
// A node is used when some reachable product state pairs it with an
// accepting automaton state. Two edge families bypass the pattern
// unless the pattern itself names their kinds:
//
//   - policy-structural is taken only on the first hop out of a
//     declared root; the member becomes used and is re-seeded at the
//     start state, so whatever the member uses is used.
//   - inherit-override and protocol-impl are injected on use: the
//     moment a method becomes used, every override or implementation
//     it points at becomes used and is re-seeded, cascading through
//     further overrides.
//
// The frontier is a FIFO queue and edges expand in insertion order,
// so the first accepting visit of each node, and therefore its
// witness path, is deterministic. Termination follows from the finite
// product space: each state is visited at most once, tracked in a
// roaring bitmap keyed node*numStates+state.
//
// The dead set is the symbols that are not used, excluding those
// suppressed by an inline allow marker. Whitelist suppression needs
// no handling here; whitelisted symbols arrive as declared roots.
package reach

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/graph"
	"github.com/AleutianAI/deadwood/analysis/pattern"
	"github.com/AleutianAI/deadwood/analysis/roots"
)

// contextCheckInterval is how many dequeues pass between cancellation
// checks in the search loop.
const contextCheckInterval = 1024

// =============================================================================
// Options
// =============================================================================

// Options configures the reachability search.
type Options struct {
	// PolicyAnywhere hands policy-structural edges to the pattern at
	// every step instead of restricting them to the first hop out of
	// a declared root. Only meaningful with a pattern that names the
	// kind; the default pattern rejects it everywhere.
	PolicyAnywhere bool
}

// DefaultOptions returns the baseline search options.
func DefaultOptions() Options {
	return Options{
		PolicyAnywhere: false,
	}
}

// Option mutates search options.
type Option func(*Options)

// WithPolicyAnywhere lifts the first-hop restriction on
// policy-structural edges.
func WithPolicyAnywhere(enabled bool) Option {
	return func(o *Options) {
		o.PolicyAnywhere = enabled
	}
}

// =============================================================================
// Result
// =============================================================================

// Stats summarizes one completed search.
type Stats struct {
	// DeclaredRoots is the size of the declared root set.
	DeclaredRoots int

	// ImplicitSeeds is the number of module nodes seeded.
	ImplicitSeeds int

	// PolicyMembers is the number of symbols made live by a
	// policy-structural hop out of a root.
	PolicyMembers int

	// NominalUsed is the number of symbols made live by nominal
	// injection.
	NominalUsed int

	// VisitedStates is the number of distinct product states visited.
	VisitedStates uint64

	// UsedSymbols, DeadSymbols, and AllowedSymbols partition the
	// symbol population.
	UsedSymbols    int
	DeadSymbols    int
	AllowedSymbols int
}

// Result holds the outcome of one reachability search.
//
// Thread Safety: immutable after Analyze returns; safe for concurrent
// use.
type Result struct {
	g   *graph.Graph
	ix  *extract.Index
	set *roots.Set

	numStates uint64

	parents       map[uint64]parentStep
	acceptKey     map[graph.NodeID]uint64
	policyParent  map[graph.NodeID]*graph.Edge
	nominalParent map[graph.NodeID]*graph.Edge
	usedBits      *roaring.Bitmap

	used    []*graph.Node
	dead    []*graph.Node
	allowed []*graph.Node

	stats Stats
}

// Used reports whether the node was reached in an accepting state or
// made live by fiat (root, policy member, nominal injection).
func (r *Result) Used(id graph.NodeID) bool {
	if id < 0 {
		return false
	}
	return r.usedBits.Contains(uint32(id))
}

// UsedNodes returns the used symbols in sorted FQN order.
func (r *Result) UsedNodes() []*graph.Node {
	out := make([]*graph.Node, len(r.used))
	copy(out, r.used)
	return out
}

// DeadNodes returns the dead symbols in sorted FQN order.
func (r *Result) DeadNodes() []*graph.Node {
	out := make([]*graph.Node, len(r.dead))
	copy(out, r.dead)
	return out
}

// AllowedNodes returns the symbols that are not reachable but are
// suppressed from the dead set by an inline allow marker, in sorted
// FQN order.
func (r *Result) AllowedNodes() []*graph.Node {
	out := make([]*graph.Node, len(r.allowed))
	copy(out, r.allowed)
	return out
}

// PolicyNodes returns the symbols whose first live reason was the
// policy-structural rule, in sorted FQN order.
func (r *Result) PolicyNodes() []*graph.Node {
	out := make([]*graph.Node, 0, len(r.policyParent))
	for id := range r.policyParent {
		if n := r.g.Node(id); n != nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FQN < out[j].FQN })
	return out
}

// Stats returns the search summary.
func (r *Result) Stats() Stats {
	return r.stats
}

// =============================================================================
// Engine
// =============================================================================

// product is one (node, automaton state) pair on the frontier.
type product struct {
	node  graph.NodeID
	state int32
}

// parentStep records how a product state was first reached.
type parentStep struct {
	prev uint64
	edge *graph.Edge
}

type engine struct {
	g   *graph.Graph
	ix  *extract.Index
	set *roots.Set
	pat *pattern.Pattern

	numStates uint64
	start     int32

	// Per-kind escape hatches: a pattern that names a bypass kind
	// pulls it into ordinary matching and disables the engine rule.
	policyOrdinary   bool
	inheritOrdinary  bool
	protocolOrdinary bool

	visited *roaring64.Bitmap
	queue   []product

	parents       map[uint64]parentStep
	acceptKey     map[graph.NodeID]uint64
	policyParent  map[graph.NodeID]*graph.Edge
	nominalParent map[graph.NodeID]*graph.Edge
	usedBits      *roaring.Bitmap

	policyMembers int
	nominalUsed   int
}

// Analyze runs the product search and classifies every symbol.
//
// Description:
//
//	The graph must be frozen; nominal propagation and root policy
//	closure mutate it and must have run first. A nil pat falls back
//	to pattern.Default().
//
// Inputs:
//
//	ctx - Checked at entry and at intervals inside the search loop.
//	res - The extraction result.
//	rootSet - The frozen root set.
//	pat - The compiled path pattern, or nil for the default.
//	opts - Functional options.
//
// Outputs:
//
//	*Result - Liveness classification and witness data.
//	error - ErrNilExtraction, ErrNilRoots, graph.ErrGraphNotFrozen,
//	or a context error.
func Analyze(ctx context.Context, res *extract.Result, rootSet *roots.Set, pat *pattern.Pattern, opts ...Option) (*Result, error) {
	if res == nil || res.Graph == nil || res.Index == nil {
		return nil, ErrNilExtraction
	}
	if rootSet == nil {
		return nil, ErrNilRoots
	}
	if pat == nil {
		pat = pattern.Default()
	}
	if !res.Graph.IsFrozen() {
		return nil, fmt.Errorf("reachability requires a frozen graph: %w", graph.ErrGraphNotFrozen)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := startAnalyzeSpan(ctx, rootSet.Len(), pat.Source())
	defer span.End()
	begin := time.Now()

	e := &engine{
		g:                res.Graph,
		ix:               res.Index,
		set:              rootSet,
		pat:              pat,
		numStates:        uint64(pat.NumStates()),
		start:            pat.Start(),
		policyOrdinary:   options.PolicyAnywhere || pat.UsesKind(graph.EdgeKindPolicyStructural),
		inheritOrdinary:  pat.UsesKind(graph.EdgeKindInheritOverride),
		protocolOrdinary: pat.UsesKind(graph.EdgeKindProtocolImpl),
		visited:          roaring64.New(),
		parents:          make(map[uint64]parentStep),
		acceptKey:        make(map[graph.NodeID]uint64),
		policyParent:     make(map[graph.NodeID]*graph.Edge),
		nominalParent:    make(map[graph.NodeID]*graph.Edge),
		usedBits:         roaring.New(),
	}

	implicitSeeds := e.seed()
	if err := e.search(ctx); err != nil {
		setAnalyzeSpanError(span, err)
		return nil, err
	}

	r := &Result{
		g:             e.g,
		ix:            e.ix,
		set:           e.set,
		numStates:     e.numStates,
		parents:       e.parents,
		acceptKey:     e.acceptKey,
		policyParent:  e.policyParent,
		nominalParent: e.nominalParent,
		usedBits:      e.usedBits,
	}
	r.stats = Stats{
		DeclaredRoots: rootSet.Len(),
		ImplicitSeeds: implicitSeeds,
		PolicyMembers: e.policyMembers,
		NominalUsed:   e.nominalUsed,
		VisitedStates: e.visited.GetCardinality(),
	}
	r.classify()

	recordAnalyzeMetrics(ctx, time.Since(begin), r.stats.VisitedStates)
	setAnalyzeSpanResult(span, r.stats)
	slog.Info("reachability complete",
		slog.Int("roots", r.stats.DeclaredRoots),
		slog.Int("implicit_seeds", r.stats.ImplicitSeeds),
		slog.Uint64("visited_states", r.stats.VisitedStates),
		slog.Int("used", r.stats.UsedSymbols),
		slog.Int("dead", r.stats.DeadSymbols),
		slog.Int("allowed", r.stats.AllowedSymbols),
		slog.Duration("duration", time.Since(begin)))
	return r, nil
}

// productKey packs a product state into the visited-set key space.
func (e *engine) productKey(id graph.NodeID, state int32) uint64 {
	return uint64(id)*e.numStates + uint64(state)
}

// seed enqueues the declared roots, their policy members, and the
// implicit module seeds. Returns the module seed count.
func (e *engine) seed() int {
	for _, id := range e.set.IDs() {
		e.markUsed(id)
		e.seedAt(id)
		if !e.policyOrdinary {
			for _, edge := range e.g.Outgoing(id) {
				if edge.Kind != graph.EdgeKindPolicyStructural {
					continue
				}
				if e.markUsed(edge.To) {
					e.policyParent[edge.To] = edge
					e.policyMembers++
					e.reseed(edge.To, e.productKey(id, e.start), edge)
					e.injectNominal(edge.To, e.productKey(edge.To, e.start))
				}
			}
		}
		e.injectNominal(id, e.productKey(id, e.start))
	}

	implicit := 0
	for mi := range e.ix.Modules() {
		e.seedAt(mi.NodeID)
		implicit++
	}
	return implicit
}

// seedAt enqueues a node at the automaton start state if that product
// state is new.
func (e *engine) seedAt(id graph.NodeID) {
	k := e.productKey(id, e.start)
	if e.visited.CheckedAdd(k) {
		e.queue = append(e.queue, product{node: id, state: e.start})
	}
}

// reseed enqueues a node at the start state after a bypass hop,
// recording the hop as the witness parent so paths running through
// the node trace back to a root. The parent is only written when the
// product state is new; an earlier genuine visit keeps its own
// witness.
func (e *engine) reseed(id graph.NodeID, prev uint64, edge *graph.Edge) {
	k := e.productKey(id, e.start)
	if e.visited.CheckedAdd(k) {
		e.parents[k] = parentStep{prev: prev, edge: edge}
		e.queue = append(e.queue, product{node: id, state: e.start})
	}
}

// markUsed records a node as live. Returns false when it already was.
func (e *engine) markUsed(id graph.NodeID) bool {
	return e.usedBits.CheckedAdd(uint32(id))
}

// noteAccept records the first accepting product state of a node and
// fires nominal injection if this is the moment it became live.
func (e *engine) noteAccept(id graph.NodeID, key uint64) {
	if _, seen := e.acceptKey[id]; seen {
		return
	}
	e.acceptKey[id] = key
	if e.markUsed(id) {
		e.injectNominal(id, key)
	}
}

// injectNominal walks nominal edges out of a node that just became
// live at the given product key, making each override or
// implementation live and re-seeding it so its own usage survives.
// Cascades through chains of overrides.
func (e *engine) injectNominal(id graph.NodeID, atKey uint64) {
	type liveSite struct {
		node graph.NodeID
		key  uint64
	}
	stack := []liveSite{{node: id, key: atKey}}
	for len(stack) > 0 {
		site := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, edge := range e.g.Outgoing(site.node) {
			switch edge.Kind {
			case graph.EdgeKindInheritOverride:
				if e.inheritOrdinary {
					continue
				}
			case graph.EdgeKindProtocolImpl:
				if e.protocolOrdinary {
					continue
				}
			default:
				continue
			}
			if !e.markUsed(edge.To) {
				continue
			}
			e.nominalParent[edge.To] = edge
			e.nominalUsed++
			e.reseed(edge.To, site.key, edge)
			stack = append(stack, liveSite{node: edge.To, key: e.productKey(edge.To, e.start)})
		}
	}
}

// search drains the frontier to fixpoint.
func (e *engine) search(ctx context.Context) error {
	dequeued := 0
	for head := 0; head < len(e.queue); head++ {
		ps := e.queue[head]
		dequeued++
		if dequeued%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		fromKey := e.productKey(ps.node, ps.state)
		for _, edge := range e.g.Outgoing(ps.node) {
			next := e.pat.Step(ps.state, edge.Kind)
			if next == pattern.RejectState {
				continue
			}
			k := e.productKey(edge.To, next)
			if !e.visited.CheckedAdd(k) {
				continue
			}
			e.parents[k] = parentStep{prev: fromKey, edge: edge}
			if e.pat.Accepting(next) {
				e.noteAccept(edge.To, k)
			}
			e.queue = append(e.queue, product{node: edge.To, state: next})
		}
	}
	return nil
}

// classify partitions the symbol population into used, dead, and
// allowed, in sorted FQN order.
func (r *Result) classify() {
	for si := range r.ix.Symbols() {
		n := r.g.Node(si.NodeID)
		if n == nil {
			continue
		}
		switch {
		case r.usedBits.Contains(uint32(si.NodeID)):
			r.used = append(r.used, n)
		case si.Allowed:
			r.allowed = append(r.allowed, n)
		default:
			r.dead = append(r.dead, n)
		}
	}
	r.stats.UsedSymbols = len(r.used)
	r.stats.DeadSymbols = len(r.dead)
	r.stats.AllowedSymbols = len(r.allowed)
}
