// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan discovers Python files under a root and parses them in
// parallel into extract sources.
//
// # Description
//
// Discovery walks the tree once, prunes excluded directories, and
// assigns every kept file its dotted module FQN from the root-relative
// path (pkg/sub/mod.py is pkg.sub.mod, pkg/__init__.py is the package
// pkg itself). Include and exclude patterns use gitignore syntax.
// Parsing fans out over a bounded worker pool; each worker owns its
// parser because tree-sitter parsers are single-threaded. Any parse
// failure aborts the whole run: a partial graph would understate usage
// and report live code as dead.
//
// Directory symlinks are not followed, which keeps the walk loop-free.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/cache"
	"github.com/AleutianAI/deadwood/analysis/extract"
)

// =============================================================================
// Options
// =============================================================================

// Options configures a scan.
type Options struct {
	// Include restricts the scan to files matching at least one
	// pattern, gitignore syntax. Empty keeps every Python file.
	Include []string

	// Exclude skips matching files and prunes matching directories,
	// gitignore syntax.
	Exclude []string

	// Workers bounds the parse pool. Zero or negative uses
	// runtime.GOMAXPROCS.
	Workers int

	// Cache short-circuits parsing for unchanged file content.
	// Nil parses everything.
	Cache *cache.Store

	// Logger receives scan progress. Nil uses slog.Default.
	Logger *slog.Logger
}

// DefaultOptions returns the baseline scan options.
func DefaultOptions() Options {
	return Options{}
}

// Option mutates scan options.
type Option func(*Options)

// WithInclude restricts the scan to files matching the patterns.
func WithInclude(patterns ...string) Option {
	return func(o *Options) {
		o.Include = append(o.Include, patterns...)
	}
}

// WithExclude skips files and directories matching the patterns.
func WithExclude(patterns ...string) Option {
	return func(o *Options) {
		o.Exclude = append(o.Exclude, patterns...)
	}
}

// WithWorkers bounds the parse pool.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithCache routes parsing through the parse cache.
func WithCache(store *cache.Store) Option {
	return func(o *Options) {
		o.Cache = store
	}
}

// WithLogger sets the scan logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// =============================================================================
// Results
// =============================================================================

// Result is the outcome of one scan.
type Result struct {
	// Root is the absolute scan root.
	Root string

	// Sources holds one entry per parsed file, sorted by module FQN.
	Sources []extract.Source
}

// fileEntry is one discovered Python file awaiting parse.
type fileEntry struct {
	abs       string
	rel       string
	module    string
	isPackage bool
}

// =============================================================================
// Scan
// =============================================================================

// Run discovers and parses every Python file under root.
//
// # Description
//
// Walks the tree applying the include and exclude patterns, derives
// module FQNs, then parses the files on a bounded worker pool. The
// root may also be a single Python file. Cancellation is honored at
// file boundaries.
//
// Inputs:
//   - ctx: cancellation context.
//   - root: directory or file to scan.
//   - opts: functional options.
//
// Outputs:
//   - *Result: parsed sources in sorted module order.
//   - error: non-nil on walk failure, any parse failure, or
//     cancellation.
func Run(ctx context.Context, root string, opts ...Option) (*Result, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if ctx == nil {
		return nil, errors.New("nil context")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}

	start := time.Now()
	m := newMatcher(options.Include, options.Exclude)

	var files []fileEntry
	if info.IsDir() {
		files, err = discover(ctx, absRoot, m, logger)
		if err != nil {
			return nil, err
		}
	} else {
		entry, ok := singleFile(absRoot, logger)
		if ok {
			files = append(files, entry)
		}
	}

	if len(files) == 0 {
		logger.Warn("no python files found", slog.String("root", absRoot))
		return &Result{Root: absRoot, Sources: []extract.Source{}}, nil
	}

	sources, err := parseAll(ctx, files, options)
	if err != nil {
		return nil, err
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Module < sources[j].Module
	})

	logger.Info("scan complete",
		slog.String("root", absRoot),
		slog.Int("files", len(sources)),
		slog.Duration("elapsed", time.Since(start)))
	if options.Cache != nil {
		stats := options.Cache.Stats()
		logger.Debug("parse cache stats",
			slog.Uint64("hits", stats.Hits),
			slog.Uint64("misses", stats.Misses),
			slog.Uint64("corrupted", stats.Corrupted))
	}

	return &Result{Root: absRoot, Sources: sources}, nil
}

// =============================================================================
// Discovery
// =============================================================================

// matcher applies include and exclude patterns to root-relative
// slash-separated paths.
type matcher struct {
	include *ignore.GitIgnore
	exclude *ignore.GitIgnore
}

func newMatcher(include, exclude []string) *matcher {
	m := &matcher{exclude: ignore.CompileIgnoreLines(exclude...)}
	if len(include) > 0 {
		m.include = ignore.CompileIgnoreLines(include...)
	}
	return m
}

// skipDir reports whether a directory should be pruned. Directory-only
// patterns like ".venv/" need the trailing slash to match.
func (m *matcher) skipDir(rel string) bool {
	return m.exclude.MatchesPath(rel + "/")
}

// keepFile reports whether a Python file survives both filters.
func (m *matcher) keepFile(rel string) bool {
	if m.exclude.MatchesPath(rel) {
		return false
	}
	if m.include != nil && !m.include.MatchesPath(rel) {
		return false
	}
	return true
}

// discover walks the root collecting Python files in lexical order.
// Package __init__ files shadow same-named sibling modules the way the
// import system resolves them, and a root-level __init__.py is skipped
// because its module path lies outside the scanned tree.
func discover(ctx context.Context, absRoot string, m *matcher, logger *slog.Logger) ([]fileEntry, error) {
	var files []fileEntry
	byModule := make(map[string]int)

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		rel, rerr := filepath.Rel(absRoot, path)
		if rerr != nil {
			return fmt.Errorf("relativize %s: %w", path, rerr)
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if m.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") || !m.keepFile(rel) {
			return nil
		}

		module, isPackage := moduleFQN(rel)
		if module == "" {
			logger.Warn("skipping root-level __init__.py; scan the package's parent directory to analyze it",
				slog.String("path", rel))
			return nil
		}

		entry := fileEntry{abs: path, rel: rel, module: module, isPackage: isPackage}
		if prev, dup := byModule[module]; dup {
			switch {
			case entry.isPackage && !files[prev].isPackage:
				logger.Warn("module shadowed by package",
					slog.String("module", module),
					slog.String("shadowed", files[prev].rel))
				files[prev] = entry
			case !entry.isPackage && files[prev].isPackage:
				logger.Warn("module shadowed by package",
					slog.String("module", module),
					slog.String("shadowed", entry.rel))
			default:
				// Dotted filenames can collide with real module paths.
				logger.Warn("duplicate module path, keeping first",
					slog.String("module", module),
					slog.String("kept", files[prev].rel),
					slog.String("skipped", entry.rel))
			}
			return nil
		}
		byModule[module] = len(files)
		files = append(files, entry)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}

// singleFile builds the entry for a root that is itself a Python file.
func singleFile(absPath string, logger *slog.Logger) (fileEntry, bool) {
	name := filepath.Base(absPath)
	if !strings.HasSuffix(name, ".py") {
		return fileEntry{}, false
	}
	module, isPackage := moduleFQN(name)
	if module == "" {
		logger.Warn("skipping root-level __init__.py; scan the package's parent directory to analyze it",
			slog.String("path", absPath))
		return fileEntry{}, false
	}
	return fileEntry{abs: absPath, rel: name, module: module, isPackage: isPackage}, true
}

// moduleFQN converts a root-relative slash path to a dotted module
// FQN. The second return is true for package __init__ files, whose
// FQN is the enclosing package. A root-level __init__.py yields "".
func moduleFQN(rel string) (string, bool) {
	parts := strings.Split(rel, "/")
	last := parts[len(parts)-1]
	if last == "__init__.py" {
		return strings.Join(parts[:len(parts)-1], "."), true
	}
	parts[len(parts)-1] = strings.TrimSuffix(last, ".py")
	return strings.Join(parts, "."), false
}

// =============================================================================
// Parallel parse
// =============================================================================

// parseAll parses the discovered files on a bounded pool. Workers
// write disjoint slots of the result slice, so the merge needs no
// lock; sorted emission happens in Run.
func parseAll(ctx context.Context, files []fileEntry, options Options) ([]extract.Source, error) {
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(files) {
		workers = len(files)
	}

	sources := make([]extract.Source, len(files))
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range files {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			// Each worker owns a parser; tree-sitter parsers are not
			// safe for concurrent use.
			var parser ast.Parser = ast.NewPythonParser()
			if options.Cache != nil {
				parser = cache.NewParser(options.Cache, parser)
			}
			for i := range jobs {
				entry := files[i]
				content, err := os.ReadFile(entry.abs)
				if err != nil {
					return fmt.Errorf("read %s: %w", entry.rel, err)
				}
				res, err := parser.Parse(gctx, content, entry.rel)
				if err != nil {
					return err
				}
				sources[i] = extract.Source{
					Module:    entry.module,
					IsPackage: entry.isPackage,
					Result:    res,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}
