// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pattern compiles path patterns over edge kinds into dense
// finite automata.
//
// A pattern describes which edge-kind sequences count as usage when
// walking away from a root. The language has edge-kind atoms
// (the names accepted by graph.EdgeKindFromName), grouping with
// parentheses, alternation with |, the quantifiers * + ?, and
// whitespace-separated concatenation:
//
//	alias* (call|value-flow)+ isinstance?
//
// Compilation goes lexer -> recursive-descent parser -> Thompson NFA
// -> subset construction. The result is a small DFA with one dense
// transition row per state, so the reachability engine steps in O(1)
// per edge with no allocation. State numbering is deterministic for a
// given source string.
//
// Patterns are immutable after Compile and safe for concurrent use.
package pattern

import (
	"fmt"
	"sync"

	"github.com/AleutianAI/deadwood/analysis/graph"
)

// DefaultSource is the pattern used when configuration supplies none:
// any chain of exported alias re-bindings followed by at least one
// concrete usage edge. Nominal and policy kinds are deliberately
// absent; they are injected by the engine, not matched by the pattern.
const DefaultSource = "alias* (call|value-flow|decorator|exception|isinstance|property|return-escape)+"

// RejectState is returned by Step when no transition exists.
const RejectState int32 = -1

// CompileError is a fatal pattern compilation failure, reported at
// configuration load time before any analysis runs.
type CompileError struct {
	// Source is the full pattern text.
	Source string

	// Pos is the byte offset of the failure within Source.
	Pos int

	// Msg describes the failure.
	Msg string
}

// Error formats the failure with its offset.
func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern %q: offset %d: %s", e.Source, e.Pos, e.Msg)
}

// Pattern is a compiled path pattern.
//
// Thread Safety: immutable after Compile; safe for concurrent use.
type Pattern struct {
	source    string
	delta     [][graph.NumEdgeKinds]int32
	accepting []bool
}

// Compile compiles a pattern source string.
//
// Outputs:
//
//	*Pattern - The compiled automaton.
//	error - *CompileError describing the first failure.
func Compile(source string) (*Pattern, error) {
	tokens, err := lex(source)
	if err != nil {
		return nil, err
	}

	p := &parser{source: source, tokens: tokens}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}

	b := &nfaBuilder{}
	frag := b.build(root)

	return determinize(source, b, frag), nil
}

// MustCompile compiles source and panics on failure. For use with
// trusted constant patterns only.
func MustCompile(source string) *Pattern {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

var (
	defaultOnce    sync.Once
	defaultPattern *Pattern
)

// Default returns the compiled DefaultSource automaton.
func Default() *Pattern {
	defaultOnce.Do(func() {
		defaultPattern = MustCompile(DefaultSource)
	})
	return defaultPattern
}

// Source returns the pattern text this automaton was compiled from.
func (p *Pattern) Source() string {
	return p.source
}

// NumStates returns the number of automaton states.
func (p *Pattern) NumStates() int {
	return len(p.delta)
}

// Start returns the start state.
func (p *Pattern) Start() int32 {
	return 0
}

// Step advances the automaton by one edge kind. Returns RejectState
// when the kind cannot extend any path accepted from this state.
func (p *Pattern) Step(state int32, kind graph.EdgeKind) int32 {
	if state < 0 || int(state) >= len(p.delta) {
		return RejectState
	}
	if kind < 0 || kind >= graph.NumEdgeKinds {
		return RejectState
	}
	return p.delta[state][kind]
}

// Accepting reports whether a path ending in this state counts as
// usage.
func (p *Pattern) Accepting(state int32) bool {
	if state < 0 || int(state) >= len(p.accepting) {
		return false
	}
	return p.accepting[state]
}

// AcceptsEmpty reports whether the start state is accepting, i.e. the
// empty path matches.
func (p *Pattern) AcceptsEmpty() bool {
	return p.Accepting(p.Start())
}

// UsesKind reports whether any transition in the automaton consumes
// the given edge kind. The engine uses this to decide whether a
// custom pattern pulled the policy kind into ordinary matching.
func (p *Pattern) UsesKind(kind graph.EdgeKind) bool {
	if kind < 0 || kind >= graph.NumEdgeKinds {
		return false
	}
	for i := range p.delta {
		if p.delta[i][kind] != RejectState {
			return true
		}
	}
	return false
}
