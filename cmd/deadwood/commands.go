// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deadwood/analysis/cache"
	"github.com/AleutianAI/deadwood/analysis/config"
	"github.com/AleutianAI/deadwood/analysis/deadcode"
	"github.com/AleutianAI/deadwood/pkg/logging"
)

// Exit codes shared by every command. Each command's doc states what
// 1 means for it; 2 is always invalid arguments or a failed run.
const (
	exitSuccess = 0
	exitFailure = 1
	exitFatal   = 2
)

// --- Global Command Variables ---
var (
	cfgPath       string // Explicit config file path
	quietOutput   bool   // Suppress stderr logging
	verboseOutput bool   // Log at debug level
	logDir        string // Dated JSON log file directory
	traceEnabled  bool   // stdout span and metric exporters

	appLogger         *logging.Logger
	telemetryShutdown func(context.Context) error

	rootCmd = &cobra.Command{
		Use:   "deadwood",
		Short: "Find dead code in Python projects",
		Long: `Deadwood builds a typed symbol graph from Python sources and reports
every symbol that no path-pattern walk from an exported root can reach.

Run "deadwood init" to write a starter config, then "deadwood scan" to
analyze a tree. "explain" answers why a single symbol is kept or dead,
and "graph" exports the colored symbol graph.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupRuntime()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersionCommand, // Defined in cmd_version.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Config file path (default: deadwood.yaml or .deadwood.yml under the scan root)")
	rootCmd.PersistentFlags().BoolVarP(&quietOutput, "quiet", "q", false,
		"Suppress log output")
	rootCmd.PersistentFlags().BoolVar(&verboseOutput, "verbose", false,
		"Log at debug level")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Also write JSON logs to a dated file in this directory")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false,
		"Print OpenTelemetry spans and metrics to stdout")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// =============================================================================
// RUNTIME SETUP AND TEARDOWN
// =============================================================================

// setupRuntime builds the process logger and, when requested, the
// telemetry providers. Runs before every command.
func setupRuntime() {
	level := slog.LevelInfo
	if verboseOutput {
		level = slog.LevelDebug
	}
	appLogger = logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "deadwood",
		Quiet:   quietOutput,
	})
	slog.SetDefault(appLogger.Logger)

	if traceEnabled {
		shutdown, err := initTelemetry(context.Background())
		if err != nil {
			slog.Warn("telemetry disabled", slog.String("error", err.Error()))
			return
		}
		telemetryShutdown = shutdown
	}
}

// exit flushes telemetry and the log file before terminating. Run
// functions must use it instead of os.Exit or buffered spans and the
// final log lines are lost.
func exit(code int) {
	if telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := telemetryShutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
		}
		cancel()
	}
	if appLogger != nil {
		appLogger.Close()
	}
	os.Exit(code)
}

// =============================================================================
// SHARED COMMAND HELPERS
// =============================================================================

// resolveRoot validates the optional path argument and returns it
// absolute. The scanner accepts a directory or a single .py file.
func resolveRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() && filepath.Ext(abs) != ".py" {
		return "", fmt.Errorf("%s is neither a directory nor a Python file", abs)
	}
	return abs, nil
}

// resolveConfig loads the effective configuration for a run rooted at
// dir. An explicit --config path must load, and so must a discovered
// file; a broken project config is never silently replaced by the
// defaults. Absent any file the built-in defaults apply.
func resolveConfig(dir string) (config.Config, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	if path, ok := config.Discover(dir); ok {
		return config.Load(path)
	}
	return config.Default(), nil
}

// openCacheStore opens the parse cache when the configuration enables
// it. A cache that cannot open degrades to no cache; the results are
// identical, only parse time is lost.
func openCacheStore(cfg config.Config) *cache.Store {
	if !cfg.Cache.Enabled {
		return nil
	}
	dir, err := cfg.Cache.Path()
	if err != nil {
		slog.Warn("parse cache disabled", slog.String("error", err.Error()))
		return nil
	}
	storeCfg := cache.DefaultConfig()
	storeCfg.Path = dir
	store, err := cache.Open(storeCfg)
	if err != nil {
		slog.Warn("parse cache disabled",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return nil
	}
	return store
}

// closeStore closes an optional cache store.
func closeStore(store *cache.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		slog.Warn("close parse cache", slog.String("error", err.Error()))
	}
}

// analysisOptions builds the Analyze options for an optional store.
func analysisOptions(store *cache.Store) []deadcode.Option {
	if store == nil {
		return nil
	}
	return []deadcode.Option{deadcode.WithCache(store)}
}

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
