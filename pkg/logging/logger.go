// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the process-wide structured logger.
//
// # Description
//
// The logger is a thin layer over log/slog with two destinations:
//
//   - stderr, text by default or JSON with Config.JSON, following the
//     Unix convention that diagnostics never mix with stdout output
//   - an optional dated log file under Config.LogDir, always JSON
//     because file logs exist for machine processing
//
// Quiet mode drops the stderr destination; with no log directory
// either, records are discarded entirely. Analysis output goes to
// stdout through its own writers, so silencing the logger never
// silences results.
//
// # Usage
//
//	lg := logging.New(logging.Config{Level: slog.LevelDebug})
//	defer lg.Close()
//	slog.SetDefault(lg.Logger)
//
// Logger embeds *slog.Logger; every slog method is available
// directly, and the embedded logger can be handed to components that
// take one.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// Configuration
// =============================================================================

// Config configures the logger destinations. The zero value writes
// Info and above to stderr as text.
type Config struct {
	// Level is the minimum level across all destinations.
	Level slog.Level

	// LogDir enables file logging. The file is named
	// "{Service}_{YYYY-MM-DD}.log" inside the directory, which is
	// created with 0750 when missing. A leading ~ expands to the
	// user's home.
	LogDir string

	// Service is stamped on every record as the "service" attribute
	// and names the log file. Empty defaults the file name to
	// "deadwood" and stamps nothing.
	Service string

	// JSON switches the stderr destination to JSON. File logs are
	// JSON regardless.
	JSON bool

	// Quiet drops the stderr destination.
	Quiet bool
}

// =============================================================================
// Logger
// =============================================================================

// Logger is a slog.Logger with an owned log file. Close releases the
// file; loggers without file logging may skip it.
type Logger struct {
	*slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New builds a logger from the configuration.
//
// File logging degrades instead of failing: when the directory or
// file cannot be opened the logger comes up without it and says so
// at Warn level through its remaining destinations.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	l := &Logger{}
	var fileErr error
	if cfg.LogDir != "" {
		file, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fileErr = err
		} else {
			l.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.DiscardHandler
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", cfg.Service),
		})
	}

	l.Logger = slog.New(handler)
	if fileErr != nil {
		l.Warn("file logging disabled", "error", fileErr)
	}
	return l
}

// Default returns a stderr-only logger at Info level.
func Default() *Logger {
	return New(Config{})
}

// Close syncs and closes the log file. Safe to call more than once
// and on loggers without one.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// =============================================================================
// Fan-out handler
// =============================================================================

// multiHandler copies each record to every destination, so stderr can
// stay human-readable while the file stays JSON.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// File helpers
// =============================================================================

// openLogFile creates the dated log file under dir.
func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if service == "" {
		service = "deadwood"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
