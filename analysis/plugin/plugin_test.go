// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/graph"
)

func buildModule(t *testing.T, source string, plugins ...extract.Plugin) *extract.Result {
	t.Helper()
	parser := ast.NewPythonParser()
	parsed, err := parser.Parse(context.Background(), []byte(source), "m.py")
	require.NoError(t, err)
	res, err := extract.Build(context.Background(),
		[]extract.Source{{Module: "m", Result: parsed}},
		extract.WithPlugins(plugins...))
	require.NoError(t, err)
	return res
}

func hasEdge(g *graph.Graph, from, to string, kind graph.EdgeKind) bool {
	fromID, ok := g.Lookup(from)
	if !ok {
		return false
	}
	toID, ok := g.Lookup(to)
	if !ok {
		return false
	}
	for _, e := range g.Outgoing(fromID) {
		if e.To == toID && e.Kind == kind {
			return true
		}
	}
	return false
}

func TestDispatch_WiresTableValues(t *testing.T) {
	res := buildModule(t, `def handle_get():
    pass


def handle_post():
    pass


HANDLERS = {
    "GET": handle_get,
    "POST": handle_post,
}
`, NewDispatch())

	assert.True(t, hasEdge(res.Graph, "m", "m.handle_get", graph.EdgeKindValueFlow))
	assert.True(t, hasEdge(res.Graph, "m", "m.handle_post", graph.EdgeKindValueFlow))
}

func TestDispatch_NestedAndSequenceTables(t *testing.T) {
	res := buildModule(t, `def job_a():
    pass


def job_b():
    pass


JOBS = [job_a, [job_b]]
`, NewDispatch())

	assert.True(t, hasEdge(res.Graph, "m", "m.job_a", graph.EdgeKindValueFlow))
	assert.True(t, hasEdge(res.Graph, "m", "m.job_b", graph.EdgeKindValueFlow))
}

func TestDispatch_FunctionScopeTableIgnored(t *testing.T) {
	res := buildModule(t, `def helper():
    pass


def build():
    table = {"a": helper}
    return table
`, NewDispatch())

	assert.False(t, hasEdge(res.Graph, "m.build", "m.helper", graph.EdgeKindValueFlow))
	assert.False(t, hasEdge(res.Graph, "m", "m.helper", graph.EdgeKindValueFlow))
}

func TestDispatch_UnresolvedValueSkipped(t *testing.T) {
	res := buildModule(t, `TABLE = {"a": missing}
`, NewDispatch())

	id, ok := res.Graph.Lookup("m")
	require.True(t, ok)
	assert.Empty(t, res.Graph.Outgoing(id))
}

func TestRegistry_SuffixMatchedCallee(t *testing.T) {
	res := buildModule(t, `def send():
    pass


def setup(app):
    app.register("m.send")
`, NewRegistry("register"))

	assert.True(t, hasEdge(res.Graph, "m.setup", "m.send", graph.EdgeKindValueFlow))
}

func TestRegistry_ExactDottedCallee(t *testing.T) {
	res := buildModule(t, `def send():
    pass


def wire():
    tasks.register("m.send")
`, NewRegistry("tasks.register"))

	assert.True(t, hasEdge(res.Graph, "m.wire", "m.send", graph.EdgeKindValueFlow))
}

func TestRegistry_ContainerStrings(t *testing.T) {
	res := buildModule(t, `def a():
    pass


def b():
    pass


def setup(app):
    app.register(["m.a", "m.b"])
`, NewRegistry("register"))

	assert.True(t, hasEdge(res.Graph, "m.setup", "m.a", graph.EdgeKindValueFlow))
	assert.True(t, hasEdge(res.Graph, "m.setup", "m.b", graph.EdgeKindValueFlow))
}

func TestRegistry_UnconfiguredCalleeIgnored(t *testing.T) {
	res := buildModule(t, `def send():
    pass


def setup(app):
    app.attach("m.send")
`, NewRegistry("register"))

	assert.False(t, hasEdge(res.Graph, "m.setup", "m.send", graph.EdgeKindValueFlow))
}

func TestRegistry_NonProjectStringSkipped(t *testing.T) {
	res := buildModule(t, `def setup(app):
    app.register("os.path.join")
`, NewRegistry("register"))

	id, ok := res.Graph.Lookup("m.setup")
	require.True(t, ok)
	assert.Empty(t, res.Graph.Outgoing(id))
}

func TestRegistry_MatchRules(t *testing.T) {
	r := NewRegistry("register", "celery.task")
	assert.True(t, r.matches("register"))
	assert.True(t, r.matches("app.register"))
	assert.True(t, r.matches("celery.task"))
	assert.False(t, r.matches("registered"))
	assert.False(t, r.matches("deregister"))
	assert.False(t, r.matches("task"))
	assert.False(t, r.matches(""))

	empty := NewRegistry()
	assert.False(t, empty.matches("register"))
}

func TestFromNames(t *testing.T) {
	plugins, err := FromNames([]string{NameRegistry, NameDispatch}, []string{"register"})
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "registry", plugins[0].Name())
	assert.Equal(t, "dispatch", plugins[1].Name())

	plugins, err = FromNames(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, plugins)

	_, err = FromNames([]string{"telepathy"}, nil)
	assert.ErrorIs(t, err, ErrUnknownPlugin)
}

// The registry plugin consumes only pending string references; a
// resolvable identifier argument is core value-flow and must not be
// double-wired by the plugin.
func TestRegistry_IdentifierArgumentsUntouched(t *testing.T) {
	res := buildModule(t, `def send():
    pass


def setup(app):
    app.register(send)
`, NewRegistry("register"))

	fromID, ok := res.Graph.Lookup("m.setup")
	require.True(t, ok)
	toID, ok := res.Graph.Lookup("m.send")
	require.True(t, ok)

	count := 0
	for _, e := range res.Graph.Outgoing(fromID) {
		if e.To == toID && e.Kind == graph.EdgeKindValueFlow {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

// Pending references survive in deterministic order regardless of
// plugin order; running both plugins together must not interfere.
func TestPlugins_Stack(t *testing.T) {
	source := `def send():
    pass


def handle():
    pass


TABLE = {"h": handle}


def setup(app):
    app.register("m.send")
`
	plugins, err := FromNames([]string{NameRegistry, NameDispatch}, []string{"register"})
	require.NoError(t, err)

	parser := ast.NewPythonParser()
	parsed, err := parser.Parse(context.Background(), []byte(source), "m.py")
	require.NoError(t, err)
	res, err := extract.Build(context.Background(),
		[]extract.Source{{Module: "m", Result: parsed}},
		extract.WithPlugins(plugins...))
	require.NoError(t, err)

	assert.True(t, hasEdge(res.Graph, "m.setup", "m.send", graph.EdgeKindValueFlow))
	assert.True(t, hasEdge(res.Graph, "m", "m.handle", graph.EdgeKindValueFlow))
}
