// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pattern

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/deadwood/analysis/graph"
)

// =============================================================================
// Lexer
// =============================================================================

type tokenType int

const (
	tokAtom tokenType = iota
	tokLParen
	tokRParen
	tokPipe
	tokStar
	tokPlus
	tokQuest
	tokEOF
)

type token struct {
	typ  tokenType
	text string
	pos  int
}

func isAtomChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || c == '-'
}

// lex splits a pattern source into tokens. Atoms are lowercase words
// with hyphens; whitespace separates concatenated terms.
func lex(source string) ([]token, error) {
	tokens := make([]token, 0, 16)
	i := 0
	for i < len(source) {
		c := source[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == '|':
			tokens = append(tokens, token{tokPipe, "|", i})
			i++
		case c == '*':
			tokens = append(tokens, token{tokStar, "*", i})
			i++
		case c == '+':
			tokens = append(tokens, token{tokPlus, "+", i})
			i++
		case c == '?':
			tokens = append(tokens, token{tokQuest, "?", i})
			i++
		case isAtomChar(c):
			start := i
			for i < len(source) && isAtomChar(source[i]) {
				i++
			}
			tokens = append(tokens, token{tokAtom, source[start:i], start})
		default:
			return nil, &CompileError{
				Source: source,
				Pos:    i,
				Msg:    fmt.Sprintf("unexpected character %q", c),
			}
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(source)})
	return tokens, nil
}

// =============================================================================
// Parser
// =============================================================================

// Grammar, lowest precedence first:
//
//	alternation   := concatenation ('|' concatenation)*
//	concatenation := repetition repetition*
//	repetition    := primary ('*' | '+' | '?')*
//	primary       := ATOM | '(' alternation ')'
type astNode interface{}

type atomNode struct {
	kind graph.EdgeKind
}

type catNode struct {
	left, right astNode
}

type altNode struct {
	left, right astNode
}

type repeatNode struct {
	child astNode
	op    byte // '*', '+' or '?'
}

type parser struct {
	source string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.typ != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorAt(pos int, format string, args ...any) error {
	return &CompileError{
		Source: p.source,
		Pos:    pos,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func (p *parser) parse() (astNode, error) {
	if p.peek().typ == tokEOF {
		return nil, p.errorAt(0, "empty pattern")
	}
	root, err := p.alternation()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.typ != tokEOF {
		return nil, p.errorAt(t.pos, "unexpected %q", t.text)
	}
	return root, nil
}

func (p *parser) alternation() (astNode, error) {
	left, err := p.concatenation()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokPipe {
		p.next()
		right, err := p.concatenation()
		if err != nil {
			return nil, err
		}
		left = &altNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) concatenation() (astNode, error) {
	first, err := p.repetition()
	if err != nil {
		return nil, err
	}
	node := first
	for {
		t := p.peek()
		if t.typ != tokAtom && t.typ != tokLParen {
			return node, nil
		}
		next, err := p.repetition()
		if err != nil {
			return nil, err
		}
		node = &catNode{left: node, right: next}
	}
}

func (p *parser) repetition() (astNode, error) {
	node, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().typ {
		case tokStar:
			p.next()
			node = &repeatNode{child: node, op: '*'}
		case tokPlus:
			p.next()
			node = &repeatNode{child: node, op: '+'}
		case tokQuest:
			p.next()
			node = &repeatNode{child: node, op: '?'}
		default:
			return node, nil
		}
	}
}

func (p *parser) primary() (astNode, error) {
	t := p.next()
	switch t.typ {
	case tokAtom:
		kind, ok := graph.EdgeKindFromName(t.text)
		if !ok {
			return nil, p.errorAt(t.pos, "unknown edge kind %q (accepted: %s)",
				t.text, strings.Join(graph.EdgeKindNames(), ", "))
		}
		return &atomNode{kind: kind}, nil
	case tokLParen:
		if p.peek().typ == tokRParen {
			return nil, p.errorAt(p.peek().pos, "empty group")
		}
		inner, err := p.alternation()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.typ != tokRParen {
			return nil, p.errorAt(t.pos, "unclosed group")
		}
		return inner, nil
	case tokStar, tokPlus, tokQuest:
		return nil, p.errorAt(t.pos, "quantifier %q without operand", t.text)
	case tokPipe:
		return nil, p.errorAt(t.pos, "alternation branch is empty")
	case tokRParen:
		return nil, p.errorAt(t.pos, "unmatched %q", t.text)
	default:
		return nil, p.errorAt(t.pos, "unexpected end of pattern")
	}
}

// =============================================================================
// Thompson Construction
// =============================================================================

type nfaState struct {
	trans   [graph.NumEdgeKinds][]int
	epsilon []int
}

type nfaBuilder struct {
	states []*nfaState
}

// frag is a partial automaton with one entry and a set of exits.
type frag struct {
	start int
	outs  []int
}

func (b *nfaBuilder) newState() int {
	b.states = append(b.states, &nfaState{})
	return len(b.states) - 1
}

func (b *nfaBuilder) addTrans(from int, kind graph.EdgeKind, to int) {
	b.states[from].trans[kind] = append(b.states[from].trans[kind], to)
}

func (b *nfaBuilder) addEps(from, to int) {
	b.states[from].epsilon = append(b.states[from].epsilon, to)
}

// build runs the standard Thompson construction over the parse tree.
func (b *nfaBuilder) build(n astNode) frag {
	switch t := n.(type) {
	case *atomNode:
		s0 := b.newState()
		s1 := b.newState()
		b.addTrans(s0, t.kind, s1)
		return frag{start: s0, outs: []int{s1}}

	case *catNode:
		left := b.build(t.left)
		right := b.build(t.right)
		for _, out := range left.outs {
			b.addEps(out, right.start)
		}
		return frag{start: left.start, outs: right.outs}

	case *altNode:
		left := b.build(t.left)
		right := b.build(t.right)
		s := b.newState()
		b.addEps(s, left.start)
		b.addEps(s, right.start)
		outs := make([]int, 0, len(left.outs)+len(right.outs))
		outs = append(outs, left.outs...)
		outs = append(outs, right.outs...)
		return frag{start: s, outs: outs}

	case *repeatNode:
		child := b.build(t.child)
		switch t.op {
		case '*':
			s := b.newState()
			b.addEps(s, child.start)
			for _, out := range child.outs {
				b.addEps(out, s)
			}
			return frag{start: s, outs: []int{s}}
		case '+':
			loop := b.newState()
			for _, out := range child.outs {
				b.addEps(out, loop)
			}
			b.addEps(loop, child.start)
			return frag{start: child.start, outs: []int{loop}}
		default: // '?'
			s := b.newState()
			b.addEps(s, child.start)
			outs := make([]int, 0, len(child.outs)+1)
			outs = append(outs, child.outs...)
			outs = append(outs, s)
			return frag{start: s, outs: outs}
		}
	}
	// Unreachable with a well-formed parse tree.
	panic(fmt.Sprintf("pattern: unknown ast node %T", n))
}

// =============================================================================
// Subset Construction
// =============================================================================

// closure expands an NFA state set across epsilon transitions,
// returning a sorted, deduplicated slice. Iterative with an explicit
// stack to stay safe on pathological patterns.
func closure(b *nfaBuilder, set []int) []int {
	seen := make(map[int]bool, len(set))
	stack := make([]int, 0, len(set))
	for _, s := range set {
		if !seen[s] {
			seen[s] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range b.states[s].epsilon {
			if !seen[e] {
				seen[e] = true
				stack = append(stack, e)
			}
		}
	}
	result := make([]int, 0, len(seen))
	for s := range seen {
		result = append(result, s)
	}
	sort.Ints(result)
	return result
}

// subsetKey renders a canonical identity for a sorted state set.
func subsetKey(set []int) string {
	var sb strings.Builder
	for i, s := range set {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(s))
	}
	return sb.String()
}

// determinize converts the NFA fragment into a dense DFA. Subsets are
// discovered breadth-first from the start closure, so state numbering
// is deterministic for a given source.
func determinize(source string, b *nfaBuilder, f frag) *Pattern {
	nfaAccept := make(map[int]bool, len(f.outs))
	for _, out := range f.outs {
		nfaAccept[out] = true
	}

	start := closure(b, []int{f.start})

	index := map[string]int32{subsetKey(start): 0}
	subsets := [][]int{start}

	p := &Pattern{source: source}

	for i := 0; i < len(subsets); i++ {
		subset := subsets[i]

		var row [graph.NumEdgeKinds]int32
		accepting := false
		for _, s := range subset {
			if nfaAccept[s] {
				accepting = true
				break
			}
		}

		for kind := graph.EdgeKind(0); kind < graph.NumEdgeKinds; kind++ {
			var move []int
			for _, s := range subset {
				move = append(move, b.states[s].trans[kind]...)
			}
			if len(move) == 0 {
				row[kind] = RejectState
				continue
			}
			next := closure(b, move)
			key := subsetKey(next)
			id, ok := index[key]
			if !ok {
				id = int32(len(subsets))
				index[key] = id
				subsets = append(subsets, next)
			}
			row[kind] = id
		}

		p.delta = append(p.delta, row)
		p.accepting = append(p.accepting, accepting)
	}

	return p
}
