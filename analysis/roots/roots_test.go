// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package roots

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/graph"
)

type testFile struct {
	module    string
	path      string
	isPackage bool
	source    string
}

func buildExtraction(t *testing.T, files []testFile) *extract.Result {
	t.Helper()
	parser := ast.NewPythonParser()
	sources := make([]extract.Source, 0, len(files))
	for _, f := range files {
		result, err := parser.Parse(context.Background(), []byte(f.source), f.path)
		require.NoError(t, err, "parse %s", f.path)
		sources = append(sources, extract.Source{
			Module:    f.module,
			IsPackage: f.isPackage,
			Result:    result,
		})
	}
	res, err := extract.Build(context.Background(), sources)
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

func TestBuild_ReexportedDefinition(t *testing.T) {
	res := buildExtraction(t, []testFile{
		{
			module:    "pkg",
			path:      "pkg/__init__.py",
			isPackage: true,
			source: `__all__ = ["run"]

from .api import run
`,
		},
		{
			module: "pkg.api",
			path:   "pkg/api.py",
			source: `def run():
    pass


def _helper():
    pass
`,
		},
	})

	set, err := Build(context.Background(), res)
	require.NoError(t, err)

	// The exported binding and the definition behind it are both
	// seeded; the private sibling is not.
	assert.Equal(t, []string{"pkg.api.run", "pkg.run"}, set.FQNs())

	id, ok := res.Graph.Lookup("pkg.api.run")
	require.True(t, ok)
	assert.True(t, set.Contains(id))
	assert.Empty(t, set.Warnings())
}

func TestBuild_PublicSurfaceWithoutDunderAll(t *testing.T) {
	res := buildExtraction(t, []testFile{{
		module:    "pkg",
		path:      "pkg/__init__.py",
		isPackage: true,
		source: `def start():
    pass


def _internal():
    pass
`,
	}})

	set, err := Build(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg.start"}, set.FQNs())
	assert.Empty(t, set.Warnings())
}

func TestBuild_EmptyPackageWarns(t *testing.T) {
	res := buildExtraction(t, []testFile{{
		module:    "pkg",
		path:      "pkg/__init__.py",
		isPackage: true,
		source:    "",
	}})

	set, err := Build(context.Background(), res)
	require.NoError(t, err)
	assert.Zero(t, set.Len())

	warnings := set.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "pkg", warnings[0].Module)
	assert.Contains(t, warnings[0].Reason, "no exports")
}

func TestBuild_ExplicitEmptyAllIsSilent(t *testing.T) {
	res := buildExtraction(t, []testFile{{
		module:    "pkg",
		path:      "pkg/__init__.py",
		isPackage: true,
		source: `__all__ = []


def hidden():
    pass
`,
	}})

	set, err := Build(context.Background(), res)
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.Empty(t, set.Warnings(), "declaring nothing is not a mistake")
}

func TestBuild_UnknownExportWarns(t *testing.T) {
	res := buildExtraction(t, []testFile{{
		module:    "pkg",
		path:      "pkg/__init__.py",
		isPackage: true,
		source:    `__all__ = ["ghost"]` + "\n",
	}})

	set, err := Build(context.Background(), res)
	require.NoError(t, err)
	assert.Zero(t, set.Len())

	warnings := set.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "pkg", warnings[0].Module)
	assert.Equal(t, "ghost", warnings[0].Name)
}

func TestBuild_Whitelist(t *testing.T) {
	res := buildExtraction(t, []testFile{{
		module: "app.tasks",
		path:   "app/tasks.py",
		source: `def cleanup():
    pass


def rotate():
    pass


def other():
    pass
`,
	}})

	set, err := Build(context.Background(), res,
		WithWhitelist("app.tasks.cleanup", "rotate", "nothing.matches"))
	require.NoError(t, err)

	assert.Equal(t, []string{"app.tasks.cleanup", "app.tasks.rotate"}, set.FQNs())

	warnings := set.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "nothing.matches", warnings[0].Name)
}

func TestBuild_WhitelistedAliasPullsDefinition(t *testing.T) {
	res := buildExtraction(t, []testFile{{
		module: "m",
		path:   "m.py",
		source: `def _impl():
    pass


public = _impl
`,
	}})

	set, err := Build(context.Background(), res, WithWhitelist("m.public"))
	require.NoError(t, err)
	assert.Equal(t, []string{"m._impl", "m.public"}, set.FQNs())
}

func TestBuild_ModuleExportClosure(t *testing.T) {
	files := []testFile{
		{
			module:    "pkg",
			path:      "pkg/__init__.py",
			isPackage: true,
			source: `__all__ = ["api"]

from . import api
`,
		},
		{
			module: "pkg.api",
			path:   "pkg/api.py",
			source: `def run():
    pass


def _hidden():
    pass
`,
		},
	}

	// Off: a submodule export contributes no roots of its own.
	set, err := Build(context.Background(), buildExtraction(t, files))
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.Empty(t, set.Warnings())

	// On: the submodule's own surface expands in.
	set, err = Build(context.Background(), buildExtraction(t, files),
		WithModuleExportClosure(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg.api.run"}, set.FQNs())
}

func TestBuild_PolicyClosure(t *testing.T) {
	res := buildExtraction(t, []testFile{
		{
			module:    "pkg",
			path:      "pkg/__init__.py",
			isPackage: true,
			source:    "from .models import Widget\n",
		},
		{
			module: "pkg.models",
			path:   "pkg/models.py",
			source: `class Widget:
    def __init__(self):
        pass

    def render(self):
        pass

    class Inner:
        def helper(self):
            pass


def _free():
    pass
`,
		},
	})

	set, err := Build(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg.Widget", "pkg.models.Widget"}, set.FQNs())

	g := res.Graph
	cls := "pkg.models.Widget"
	assert.True(t, hasEdge(g, cls, "pkg.models.Widget.__init__", graph.EdgeKindPolicyStructural))
	assert.True(t, hasEdge(g, cls, "pkg.models.Widget.render", graph.EdgeKindPolicyStructural))
	assert.True(t, hasEdge(g, cls, "pkg.models.Widget.Inner", graph.EdgeKindPolicyStructural))
	assert.True(t, hasEdge(g, cls, "pkg.models.Widget.Inner.helper", graph.EdgeKindPolicyStructural),
		"closure is transitive over nested bodies")
	assert.False(t, hasEdge(g, cls, "pkg.models._free", graph.EdgeKindPolicyStructural))
}

func TestBuild_NilExtraction(t *testing.T) {
	_, err := Build(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNilExtraction)
}

func TestBuild_FrozenGraphFailsPolicyClosure(t *testing.T) {
	res := buildExtraction(t, []testFile{{
		module:    "pkg",
		path:      "pkg/__init__.py",
		isPackage: true,
		source: `class Api:
    def call(self):
        pass
`,
	}})
	res.Graph.Freeze()

	_, err := Build(context.Background(), res)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrGraphFrozen)
}
