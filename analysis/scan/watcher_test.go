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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs a watcher with a short debounce and no rebuild
// floor, delivering batches on the returned channel.
func startWatcher(t *testing.T, root string, opts WatchOptions) (<-chan []Change, *Watcher) {
	t.Helper()
	batches := make(chan []Change, 8)
	w, err := NewWatcher(root, func(_ context.Context, changes []Change) {
		batches <- changes
	}, &opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(w.Stop)
	require.NoError(t, w.Start(ctx))
	return batches, w
}

func waitForPath(t *testing.T, batches <-chan []Change, rel string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case changes := <-batches:
			for _, c := range changes {
				if c.Path == rel {
					return
				}
			}
		case <-deadline:
			t.Fatalf("no rebuild for %s", rel)
		}
	}
}

func TestWatcher_RebuildOnPythonChange(t *testing.T) {
	root := t.TempDir()
	batches, w := startWatcher(t, root, WatchOptions{
		Debounce: 30 * time.Millisecond,
	})
	assert.True(t, w.IsWatching())

	require.NoError(t, os.WriteFile(filepath.Join(root, "mod.py"), []byte("x = 1\n"), 0o644))
	waitForPath(t, batches, "mod.py")
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	root := t.TempDir()
	batches, _ := startWatcher(t, root, WatchOptions{
		Debounce: 30 * time.Millisecond,
		Exclude:  []string{"skip_*.py"},
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip_me.py"), []byte("x = 1\n"), 0o644))

	select {
	case changes := <-batches:
		t.Fatalf("unexpected rebuild: %v", changes)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	batches, _ := startWatcher(t, root, WatchOptions{
		Debounce: 30 * time.Millisecond,
	})

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.py"), []byte("y = 2\n"), 0o644))
	waitForPath(t, batches, "sub/new.py")
}

func TestWatcher_StopIdempotent(t *testing.T) {
	root := t.TempDir()
	_, w := startWatcher(t, root, WatchOptions{Debounce: 30 * time.Millisecond})

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}

func TestWatcher_Relevance(t *testing.T) {
	w := &Watcher{root: "/r", matcher: newMatcher(nil, []string{".venv/"})}

	assert.True(t, w.relevant("pkg/mod.py"))
	assert.False(t, w.relevant("pkg/data.json"))
	assert.False(t, w.relevant(".venv/lib.py"))
}

func TestDedupe(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Second)
	out := dedupe([]Change{
		{Path: "a.py", Time: now},
		{Path: "b.py", Time: now},
		{Path: "a.py", Time: later},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "a.py", out[0].Path)
	assert.Equal(t, later, out[0].Time)
	assert.Equal(t, "b.py", out[1].Path)
}
