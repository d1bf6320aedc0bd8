// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/cache"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func modulesOf(res *Result) []string {
	out := make([]string, 0, len(res.Sources))
	for _, src := range res.Sources {
		out = append(out, src.Module)
	}
	return out
}

func TestRun_DiscoversAndParses(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/__init__.py": "from .api import run\n",
		"pkg/api.py":      "def run():\n    helper()\n\ndef helper():\n    return 1\n",
		"top.py":          "x = 1\n",
	})

	res, err := Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, root, res.Root)
	assert.Equal(t, []string{"pkg", "pkg.api", "top"}, modulesOf(res))

	pkg := res.Sources[0]
	assert.True(t, pkg.IsPackage)
	assert.Equal(t, "pkg/__init__.py", pkg.Result.FilePath)

	api := res.Sources[1]
	assert.False(t, api.IsPackage)
	assert.Equal(t, "pkg/api.py", api.Result.FilePath)
	require.Len(t, api.Result.Symbols, 2)
}

func TestRun_ExcludePatterns(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/a.py":       "def a(): ...\n",
		".venv/lib.py":   "def ignored(): ...\n",
		"sub/.venv/m.py": "def ignored(): ...\n",
		"gen_schema.py":  "def ignored(): ...\n",
		"src/gen_api.py": "def ignored(): ...\n",
		"src/notgen.py":  "def b(): ...\n",
	})

	res, err := Run(context.Background(), root,
		WithExclude(".venv/", "gen_*.py"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src.a", "src.notgen"}, modulesOf(res))
}

func TestRun_IncludeRestricts(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/a.py":   "def a(): ...\n",
		"tools/b.py": "def b(): ...\n",
	})

	res, err := Run(context.Background(), root, WithInclude("src/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src.a"}, modulesOf(res))
}

func TestRun_ParseErrorAborts(t *testing.T) {
	root := writeTree(t, map[string]string{
		"ok.py":  "def fine(): ...\n",
		"bad.py": "def broken(:\n",
	})

	res, err := Run(context.Background(), root, WithWorkers(2))
	require.Error(t, err)
	assert.Nil(t, res)
	var perr *ast.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.py", perr.Path)
}

func TestRun_RootInitSkipped(t *testing.T) {
	root := writeTree(t, map[string]string{
		"__init__.py": "def orphan(): ...\n",
		"mod.py":      "def kept(): ...\n",
	})

	res, err := Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"mod"}, modulesOf(res))
}

func TestRun_PackageShadowsModule(t *testing.T) {
	root := writeTree(t, map[string]string{
		"pkg/__init__.py": "def kept(): ...\n",
		"pkg.py":          "def shadowed(): ...\n",
	})

	res, err := Run(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, []string{"pkg"}, modulesOf(res))
	assert.True(t, res.Sources[0].IsPackage)
}

func TestRun_SingleFileRoot(t *testing.T) {
	root := writeTree(t, map[string]string{
		"solo.py": "def only(): ...\n",
	})

	res, err := Run(context.Background(), filepath.Join(root, "solo.py"))
	require.NoError(t, err)
	require.Equal(t, []string{"solo"}, modulesOf(res))
	assert.Equal(t, "solo.py", res.Sources[0].Result.FilePath)
}

func TestRun_NoPythonFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"README.md": "nothing to see\n",
	})

	res, err := Run(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Sources)
}

func TestRun_MissingRoot(t *testing.T) {
	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_CacheSkipsReparse(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "def a(): ...\n",
		"b.py": "def b(): ...\n",
	})
	store, err := cache.Open(cache.InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	_, err = Run(context.Background(), root, WithCache(store))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), store.Stats().Puts)

	res, err := Run(context.Background(), root, WithCache(store))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, modulesOf(res))
	assert.Equal(t, uint64(2), store.Stats().Hits)
}

func TestRun_Cancelled(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "def a(): ...\n",
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, root)
	require.ErrorIs(t, err, context.Canceled)
}

func TestModuleFQN(t *testing.T) {
	cases := []struct {
		rel       string
		module    string
		isPackage bool
	}{
		{"top.py", "top", false},
		{"pkg/sub/mod.py", "pkg.sub.mod", false},
		{"pkg/__init__.py", "pkg", true},
		{"pkg/sub/__init__.py", "pkg.sub", true},
		{"__init__.py", "", true},
	}
	for _, tc := range cases {
		module, isPackage := moduleFQN(tc.rel)
		assert.Equal(t, tc.module, module, tc.rel)
		assert.Equal(t, tc.isPackage, isPackage, tc.rel)
	}
}

func TestMatcher_Patterns(t *testing.T) {
	m := newMatcher([]string{"src/"}, []string{".venv/", "gen_*.py"})

	assert.True(t, m.skipDir(".venv"))
	assert.True(t, m.skipDir("a/.venv"))
	assert.False(t, m.skipDir("src"))

	assert.True(t, m.keepFile("src/a.py"))
	assert.False(t, m.keepFile("src/gen_a.py"))
	assert.False(t, m.keepFile("tools/b.py"))

	unrestricted := newMatcher(nil, nil)
	assert.True(t, unrestricted.keepFile("anything.py"))
	assert.False(t, unrestricted.skipDir("anything"))
}
