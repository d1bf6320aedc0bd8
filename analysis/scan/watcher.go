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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Change is one debounced filesystem change to a Python file.
type Change struct {
	// Path is the path relative to the watch root.
	Path string

	// Time is when the change was detected.
	Time time.Time
}

// RebuildFunc runs one re-analysis for a batch of changes. It is
// called from a single goroutine; a slow rebuild delays the next
// batch, it does not overlap it.
type RebuildFunc func(ctx context.Context, changes []Change)

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Debounce is how long to wait for further changes before a
	// batch fires. Default: 300ms.
	Debounce time.Duration

	// MinRebuildInterval is the floor between consecutive rebuilds,
	// enforced even when batches keep arriving. Zero disables the
	// floor. Default: 2s.
	MinRebuildInterval time.Duration

	// Include and Exclude filter changes with the same gitignore
	// patterns the scanner uses.
	Include []string
	Exclude []string

	// BufferSize is the change channel capacity. Default: 1024.
	BufferSize int

	// Logger receives watcher events. Nil uses slog.Default.
	Logger *slog.Logger
}

// DefaultWatchOptions returns sensible watch defaults.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		Debounce:           300 * time.Millisecond,
		MinRebuildInterval: 2 * time.Second,
		BufferSize:         1024,
	}
}

// Watcher re-runs the analysis when Python files change.
//
// # Description
//
// Watches the root recursively. Events are filtered to relevant
// Python files, batched over a debounce window, deduplicated, then
// handed to the rebuild function behind a rate limiter so a stream of
// saves cannot trigger back-to-back analyses.
//
// Thread Safety: Safe for concurrent use. The rebuild function is
// called from a single goroutine.
type Watcher struct {
	root     string
	matcher  *matcher
	watcher  *fsnotify.Watcher
	rebuild  RebuildFunc
	debounce time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a watcher for the given root directory. Call
// Start to begin watching and Stop when done.
func NewWatcher(root string, rebuild RebuildFunc, opts *WatchOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatchOptions()
		opts = &defaults
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	// rate.Every treats a non-positive interval as no limit.
	return &Watcher{
		root:     absRoot,
		matcher:  newMatcher(opts.Include, opts.Exclude),
		watcher:  fsw,
		rebuild:  rebuild,
		debounce: debounce,
		limiter:  rate.NewLimiter(rate.Every(opts.MinRebuildInterval), 1),
		logger:   logger.With(slog.String("component", "watcher")),
		changes:  make(chan Change, bufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It registers the root and every kept
// subdirectory, then spawns the event and debounce goroutines. Both
// exit on Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	w.logger.Info("watching for changes", slog.String("root", w.root))
	return nil
}

// Stop halts the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// addRecursive registers a directory tree, pruning excluded dirs.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.relativize(path); ok && rel != "." && w.matcher.skipDir(rel) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// relativize maps an event path under the root; false for paths
// outside it.
func (w *Watcher) relativize(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// relevant reports whether a changed path should trigger a rebuild.
func (w *Watcher) relevant(rel string) bool {
	return strings.HasSuffix(rel, ".py") && rel != "." && w.matcher.keepFile(rel)
}

// processEvents converts fsnotify events into debounced changes and
// keeps the directory watch list current.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			rel, inside := w.relativize(event.Name)
			if !inside {
				continue
			}

			// A created directory needs watching; it may arrive with
			// nested content already in place.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.matcher.skipDir(rel) {
						if err := w.addRecursive(event.Name); err != nil {
							w.logger.Warn("watch new directory",
								slog.String("path", rel),
								slog.String("error", err.Error()))
						}
					}
					continue
				}
			}

			if !w.relevant(rel) {
				continue
			}
			select {
			case w.changes <- Change{Path: rel, Time: time.Now()}:
			default:
				// Buffer full; the debouncer will rebuild anyway.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop batches changes and triggers rebuilds. The rate
// limiter spaces rebuilds even when batches keep closing.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		if len(batch) == 0 {
			return
		}
		deduped := dedupe(batch)
		batch = batch[:0]

		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		w.logger.Debug("rebuilding after changes", slog.Int("files", len(deduped)))
		if w.rebuild != nil {
			w.rebuild(ctx, deduped)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the most recent change per path, preserving first-seen
// order.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if idx, ok := seen[c.Path]; ok {
			out[idx] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
