// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"testing"
)

// Helper function to add a node or fail the test.
func mustAddNode(t *testing.T, g *Graph, fqn string, kind NodeKind) NodeID {
	t.Helper()
	id, err := g.AddNode(fqn, kind, "app/mod.py", 1)
	if err != nil {
		t.Fatalf("AddNode(%s) failed: %v", fqn, err)
	}
	return id
}

func TestGraphState_String(t *testing.T) {
	tests := []struct {
		state    GraphState
		expected string
	}{
		{GraphStateBuilding, "building"},
		{GraphStateReadOnly, "readonly"},
		{GraphState(99), "unknown"},
	}

	for _, tc := range tests {
		got := tc.state.String()
		if got != tc.expected {
			t.Errorf("GraphState(%d).String() = %q, want %q", tc.state, got, tc.expected)
		}
	}
}

func TestEdgeKind_Names(t *testing.T) {
	tests := []struct {
		kind     EdgeKind
		expected string
	}{
		{EdgeKindCall, "call"},
		{EdgeKindValueFlow, "value-flow"},
		{EdgeKindDecorator, "decorator"},
		{EdgeKindException, "exception"},
		{EdgeKindIsinstance, "isinstance"},
		{EdgeKindProperty, "property"},
		{EdgeKindReturnEscape, "return-escape"},
		{EdgeKindInheritOverride, "inherit-override"},
		{EdgeKindProtocolImpl, "protocol-impl"},
		{EdgeKindAlias, "alias"},
		{EdgeKindPolicyStructural, "policy-structural"},
	}

	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.expected {
			t.Errorf("EdgeKind(%d).String() = %q, want %q", tc.kind, got, tc.expected)
		}
		back, ok := EdgeKindFromName(tc.expected)
		if !ok || back != tc.kind {
			t.Errorf("EdgeKindFromName(%q) = (%v, %v), want (%v, true)", tc.expected, back, ok, tc.kind)
		}
	}

	if _, ok := EdgeKindFromName("teleport"); ok {
		t.Error("EdgeKindFromName should reject unknown names")
	}

	names := EdgeKindNames()
	if len(names) != int(NumEdgeKinds) {
		t.Errorf("EdgeKindNames returned %d names, want %d", len(names), NumEdgeKinds)
	}
}

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph("/project")

	id, err := g.AddNode("app.mod.helper", NodeKindFunction, "app/mod.py", 12)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if id != 0 {
		t.Errorf("expected first ID 0, got %d", id)
	}

	node := g.Node(id)
	if node == nil {
		t.Fatal("expected node to exist")
	}
	if node.FQN != "app.mod.helper" || node.Kind != NodeKindFunction {
		t.Errorf("unexpected node: %+v", node)
	}
	if node.File != "app/mod.py" || node.Line != 12 {
		t.Errorf("unexpected node location: %+v", node)
	}

	if g.NodeCount() != 1 {
		t.Errorf("expected node count 1, got %d", g.NodeCount())
	}
}

func TestGraph_AddNode_Invalid(t *testing.T) {
	g := NewGraph("/project")

	if _, err := g.AddNode("", NodeKindFunction, "f.py", 1); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("expected ErrInvalidNode for empty FQN, got %v", err)
	}
	if _, err := g.AddNode("x", NodeKindUnknown, "f.py", 1); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("expected ErrInvalidNode for unknown kind, got %v", err)
	}
}

func TestGraph_AddNode_ConflictFirstWins(t *testing.T) {
	g := NewGraph("/project")

	first, err := g.AddNode("app.dup", NodeKindFunction, "app/a.py", 3)
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	second, err := g.AddNode("app.dup", NodeKindClass, "app/b.py", 9)
	if err != nil {
		t.Fatalf("duplicate AddNode must not error: %v", err)
	}
	if second != first {
		t.Errorf("expected existing ID %d for duplicate, got %d", first, second)
	}

	// First definition is untouched.
	node := g.Node(first)
	if node.Kind != NodeKindFunction || node.File != "app/a.py" {
		t.Errorf("first definition was overwritten: %+v", node)
	}

	conflicts := g.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.FQN != "app.dup" || c.KeptFile != "app/a.py" || c.DroppedFile != "app/b.py" {
		t.Errorf("unexpected conflict record: %+v", c)
	}
	if g.NodeCount() != 1 {
		t.Errorf("duplicate must not grow the graph, got %d nodes", g.NodeCount())
	}

	// A same-kind redefinition is idempotent, not a conflict.
	third, err := g.AddNode("app.dup", NodeKindFunction, "app/c.py", 20)
	if err != nil {
		t.Fatalf("same-kind duplicate must not error: %v", err)
	}
	if third != first {
		t.Errorf("expected existing ID %d, got %d", first, third)
	}
	if len(g.Conflicts()) != 1 {
		t.Errorf("same-kind duplicate must not record a conflict, got %d",
			len(g.Conflicts()))
	}
}

func TestGraph_AddNode_MaxNodes(t *testing.T) {
	g := NewGraph("/project", WithMaxNodes(2))

	mustAddNode(t, g, "a", NodeKindFunction)
	mustAddNode(t, g, "b", NodeKindFunction)

	_, err := g.AddNode("c", NodeKindFunction, "f.py", 1)
	if !errors.Is(err, ErrMaxNodesExceeded) {
		t.Errorf("expected ErrMaxNodesExceeded, got %v", err)
	}
}

func TestGraph_AddEdge(t *testing.T) {
	g := NewGraph("/project")

	from := mustAddNode(t, g, "app.caller", NodeKindFunction)
	to := mustAddNode(t, g, "app.callee", NodeKindFunction)

	if err := g.AddEdge(from, to, EdgeKindCall, 7); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	out := g.Outgoing(from)
	if len(out) != 1 || out[0].To != to || out[0].Kind != EdgeKindCall {
		t.Errorf("unexpected outgoing edges: %+v", out)
	}

	in := g.Incoming(to)
	if len(in) != 1 || in[0].From != from {
		t.Errorf("unexpected incoming edges: %+v", in)
	}

	if g.EdgeCount() != 1 {
		t.Errorf("expected edge count 1, got %d", g.EdgeCount())
	}
	if g.EdgeCountByKind(EdgeKindCall) != 1 {
		t.Errorf("expected 1 call edge, got %d", g.EdgeCountByKind(EdgeKindCall))
	}
}

func TestGraph_AddEdge_NodeNotFound(t *testing.T) {
	g := NewGraph("/project")
	id := mustAddNode(t, g, "app.solo", NodeKindFunction)

	if err := g.AddEdge(id, 42, EdgeKindCall, 1); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound for bad target, got %v", err)
	}
	if err := g.AddEdge(99, id, EdgeKindCall, 1); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound for bad source, got %v", err)
	}
}

func TestGraph_AddEdge_MaxEdges(t *testing.T) {
	g := NewGraph("/project", WithMaxEdges(1))

	a := mustAddNode(t, g, "a", NodeKindFunction)
	b := mustAddNode(t, g, "b", NodeKindFunction)

	if err := g.AddEdge(a, b, EdgeKindCall, 1); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if err := g.AddEdge(b, a, EdgeKindCall, 2); !errors.Is(err, ErrMaxEdgesExceeded) {
		t.Errorf("expected ErrMaxEdgesExceeded, got %v", err)
	}
}

func TestGraph_Freeze(t *testing.T) {
	g := NewGraph("/project")
	a := mustAddNode(t, g, "a", NodeKindFunction)
	b := mustAddNode(t, g, "b", NodeKindFunction)

	if g.IsFrozen() {
		t.Error("new graph must not be frozen")
	}

	g.Freeze()

	if !g.IsFrozen() {
		t.Error("graph should be frozen after Freeze()")
	}
	if g.BuiltAtMilli == 0 {
		t.Error("BuiltAtMilli should be set after Freeze()")
	}

	if _, err := g.AddNode("c", NodeKindFunction, "f.py", 1); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("expected ErrGraphFrozen on AddNode, got %v", err)
	}
	if err := g.AddEdge(a, b, EdgeKindCall, 1); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("expected ErrGraphFrozen on AddEdge, got %v", err)
	}

	// Reads still work.
	if g.Node(a) == nil || g.Node(b) == nil {
		t.Error("reads must work on frozen graph")
	}
}

func TestGraph_Lookup(t *testing.T) {
	g := NewGraph("/project")
	id := mustAddNode(t, g, "app.mod.Cls", NodeKindClass)

	got, ok := g.Lookup("app.mod.Cls")
	if !ok || got != id {
		t.Errorf("Lookup = (%d, %v), want (%d, true)", got, ok, id)
	}

	if _, ok := g.Lookup("app.mod.Missing"); ok {
		t.Error("Lookup should miss for unknown FQN")
	}
	if g.NodeByFQN("app.mod.Cls") == nil {
		t.Error("NodeByFQN should find the node")
	}
	if g.Node(InvalidNode) != nil {
		t.Error("Node(InvalidNode) should be nil")
	}
}

func TestGraph_NodesIterator(t *testing.T) {
	g := NewGraph("/project")
	mustAddNode(t, g, "a", NodeKindFunction)
	mustAddNode(t, g, "b", NodeKindClass)
	mustAddNode(t, g, "c", NodeKindModule)

	var order []string
	for _, node := range g.Nodes() {
		order = append(order, node.FQN)
	}

	// Iteration follows insertion order, which callers rely on for
	// deterministic output.
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("unexpected iteration order: %v", order)
	}
}

func TestGraph_Stats(t *testing.T) {
	g := NewGraph("/project")
	a := mustAddNode(t, g, "app", NodeKindModule)
	b := mustAddNode(t, g, "app.f", NodeKindFunction)
	c := mustAddNode(t, g, "app.C", NodeKindClass)

	if err := g.AddEdge(a, b, EdgeKindCall, 1); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(b, c, EdgeKindIsinstance, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddNode("app.f", NodeKindFunction, "app/other.py", 8); err != nil {
		t.Fatal(err)
	}

	g.Freeze()
	stats := g.Stats()

	if stats.NodeCount != 3 || stats.EdgeCount != 2 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.NodesByKind["function"] != 1 || stats.NodesByKind["module"] != 1 {
		t.Errorf("unexpected node kind counts: %v", stats.NodesByKind)
	}
	if stats.EdgesByKind["call"] != 1 || stats.EdgesByKind["isinstance"] != 1 {
		t.Errorf("unexpected edge kind counts: %v", stats.EdgesByKind)
	}
	if stats.ConflictCount != 1 {
		t.Errorf("expected 1 conflict, got %d", stats.ConflictCount)
	}
	if stats.State != GraphStateReadOnly {
		t.Errorf("expected readonly state, got %v", stats.State)
	}
}

func TestGraph_NodesByKind(t *testing.T) {
	g := NewGraph("/project")
	mustAddNode(t, g, "app.a", NodeKindFunction)
	mustAddNode(t, g, "app.B", NodeKindClass)
	mustAddNode(t, g, "app.c", NodeKindFunction)

	funcs := g.NodesByKind(NodeKindFunction)
	if len(funcs) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(funcs))
	}
	if funcs[0].FQN != "app.a" || funcs[1].FQN != "app.c" {
		t.Errorf("unexpected kind ordering: %v, %v", funcs[0].FQN, funcs[1].FQN)
	}

	if len(g.NodesByKind(NodeKind(99))) != 0 {
		t.Error("out-of-range kind should return empty slice")
	}
}
