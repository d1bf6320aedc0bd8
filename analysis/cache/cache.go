// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache persists parse results between runs in an embedded
// BadgerDB store.
//
// # Description
//
// Entries are content-addressed: the key is the SHA-256 of the file
// bytes, so a file hits the cache only while its content is unchanged
// and identical files share one entry regardless of path. The value is
// the gob-encoded ParseResult behind a CRC32 checksum; an entry that
// fails the checksum or no longer decodes is dropped and reported as a
// miss, never as an error. Disabling the cache therefore cannot change
// any analysis output, only how much parsing a run repeats.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/deadwood/analysis/ast"
)

// Config holds configuration for the parse cache store.
type Config struct {
	// Path is the directory for the store's files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes. Off by default: a lost
	// entry only costs one re-parse.
	SyncWrites bool

	// Namespace partitions entries. Results parsed under different
	// parser options must not share entries, so callers that vary
	// the options set a distinct namespace per variant.
	Namespace string

	// Logger receives store events. If nil, BadgerDB's internal
	// logging is disabled and store events fall back to slog.Default.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC rewrites a value log file.
	GCDiscardRatio float64
}

// DefaultConfig returns the production configuration. The caller sets
// Path before Open.
func DefaultConfig() Config {
	return Config{
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for testing: no disk I/O,
// no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is an open parse cache.
//
// Thread Safety: Safe for concurrent use. All scan workers share one
// Store.
type Store struct {
	db        *badger.DB
	gc        *gcRunner
	namespace string
	path      string
	logger    *slog.Logger
	closed    atomic.Bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	puts      atomic.Uint64
	corrupted atomic.Uint64
}

// Stats is a snapshot of store counters. Misses counts absent keys and
// Corrupted counts entries dropped after a checksum or decode failure;
// either way the caller re-parses.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Puts      uint64
	Corrupted uint64
}

// Open creates and opens a parse cache with the given configuration.
//
// # Description
//
// Opens a BadgerDB store at the configured path, or in memory if
// InMemory is true. Creates the directory if it doesn't exist and
// starts the GC runner when GCInterval is positive.
//
// Outputs:
//   - *Store: the opened store. Caller must call Close when done.
//   - error: non-nil if the path is invalid or the store cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:        db,
		namespace: cfg.Namespace,
		path:      cfg.Path,
		logger:    logger.With(slog.String("component", "cache")),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		// badger accepts discard ratios strictly between 0 and 1.
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.gc = &gcRunner{
			db:       db,
			interval: cfg.GCInterval,
			ratio:    ratio,
			stopCh:   make(chan struct{}),
			doneCh:   make(chan struct{}),
			logger:   s.logger,
		}
		s.gc.start()
	}

	s.logger.Debug("parse cache opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory))
	return s, nil
}

// Get looks up the parse result stored for the given file content.
//
// # Description
//
// Computes the content key and reads the entry. A missing key is a
// miss, not an error. A stored entry that fails its checksum or no
// longer gob-decodes is deleted and reported as a miss, so a store
// written by an older build heals itself entry by entry.
//
// Outputs:
//   - *ast.ParseResult: a freshly decoded result the caller owns.
//   - bool: true on a hit.
//   - error: non-nil only for store failures.
func (s *Store) Get(ctx context.Context, content []byte) (*ast.ParseResult, bool, error) {
	if ctx == nil {
		return nil, false, errors.New("nil context")
	}
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context cancelled: %w", err)
	}
	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	key := cacheKey(s.namespace, content)
	var res *ast.ParseResult
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, derr := decodeResult(val)
			if derr != nil {
				return derr
			}
			res = decoded
			return nil
		})
	})

	switch {
	case err == nil:
		s.hits.Add(1)
		return res, true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		s.misses.Add(1)
		return nil, false, nil
	case errors.Is(err, ErrCorruptEntry):
		s.corrupted.Add(1)
		s.logger.Warn("dropping corrupt cache entry",
			slog.String("error", err.Error()))
		if derr := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); derr != nil {
			s.logger.Warn("delete corrupt cache entry",
				slog.String("error", derr.Error()))
		}
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
}

// Put stores the parse result for the given file content.
func (s *Store) Put(ctx context.Context, content []byte, res *ast.ParseResult) error {
	if ctx == nil {
		return errors.New("nil context")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if res == nil {
		return errors.New("nil parse result")
	}

	data, err := encodeResult(res)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	key := cacheKey(s.namespace, content)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	s.puts.Add(1)
	return nil
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Puts:      s.puts.Load(),
		Corrupted: s.corrupted.Load(),
	}
}

// Path returns the store directory, or empty string for in-memory
// stores.
func (s *Store) Path() string {
	return s.path
}

// Close stops garbage collection and closes the store. Safe to call
// multiple times.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func (r *gcRunner) start() {
	go r.run()
}

// stop signals the GC goroutine and waits for it to finish.
func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *gcRunner) collect() {
	// ErrNoRewrite means no GC was needed, not an error.
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		r.logger.Debug("cache value log GC completed")
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		r.logger.Warn("cache value log GC error",
			slog.String("error", err.Error()))
	}
}
