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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deadwood/analysis/cache"
	"github.com/AleutianAI/deadwood/analysis/config"
	"github.com/AleutianAI/deadwood/analysis/deadcode"
	"github.com/AleutianAI/deadwood/analysis/report"
	"github.com/AleutianAI/deadwood/analysis/scan"
	"github.com/AleutianAI/deadwood/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	scanInclude        []string // Restrict the scan to matching globs
	scanExclude        []string // Skip matching paths
	scanWhitelist      []string // Extra roots on top of the config
	scanPattern        string   // Path pattern override
	scanPlugins        []string // Dynamic-usage plugins to enable
	scanRegistryCtors  []string // Registration call names for the registry plugin
	scanExportClosure  bool     // Expand exports naming submodules
	scanProtoNominal   bool     // Protocol impls live with their protocol
	scanStrictSig      bool     // Require matching arity for protocol impls
	scanPolicyAnywhere bool     // Policy edges match anywhere in a path
	scanMaxDead        int      // Dead-count gate, -1 disables
	scanJSONOutput     bool     // Report JSON on stdout
	scanOutputDir      string   // Report directory override
	scanDOT            bool     // Also export dead_code.dot
	scanMermaid        bool     // Also export dead_code.mmd
	scanWatch          bool     // Re-run on file changes
	scanWorkers        int      // Parse worker count, 0 = all CPUs
	scanNoCache        bool     // Disable the parse cache
	scanCacheDir       string   // Parse cache location override
	scanLimit          int      // Dead listing display cap, 0 = all
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// scanCmd runs the full analysis over a Python tree.
//
// # Description
//
// Scans, extracts, and runs the reachability search, then writes
// dead_code.json into the output directory and prints a summary with
// the dead symbol listing. Command-line flags override the matching
// config file fields for one run; the file itself is never modified.
//
// # Examples
//
//	deadwood scan                          # Analyze the current directory
//	deadwood scan ./src --json             # Report JSON on stdout
//	deadwood scan --max 0                  # Fail when anything is dead
//	deadwood scan --whitelist myapp.main   # Keep an entry point alive
//	deadwood scan --plugins dispatch       # Enable the dispatch plugin
//	deadwood scan --watch                  # Re-run on every change
//
// # Exit Codes
//
//	0 - Analysis ran and the dead count passed the gate
//	1 - Dead count exceeded --max / output.max_dead
//	2 - Invalid arguments, bad configuration, or a failed run
//
// # Limitations
//
//   - Watch mode reuses the configuration of the first run; config
//     file edits need a restart
//   - Watch mode never exits with the gate code, it reports and keeps
//     watching
var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Analyze a Python tree and report dead code",
	Long: `Analyze a Python tree and report dead code.

The analysis builds a typed symbol graph, collects exported roots, and
searches for every symbol a path-pattern walk can reach. Whatever is
left over is dead. Results land in dead_code.json in the output
directory; the summary and listing go to stdout.

Flags override the matching config fields for this run only.
--whitelist appends to the configured list, every other flag replaces
its field.

Examples:
  deadwood scan                          # Analyze the current directory
  deadwood scan ./src --json             # Report JSON on stdout
  deadwood scan --max 0                  # Fail when anything is dead
  deadwood scan --watch                  # Re-run on every change`,
	Args: cobra.MaximumNArgs(1),
	Run:  runScanCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	registerScanFlags(scanCmd)
}

// registerScanFlags binds the scan flags to cmd. Registration resets
// the bound variables to their defaults, which lets tests rebuild the
// flag state on a scratch command.
func registerScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&scanInclude, "include", nil,
		"Restrict the scan to matching globs")
	cmd.Flags().StringSliceVar(&scanExclude, "exclude", nil,
		"Skip matching paths, gitignore syntax (replaces the configured list)")
	cmd.Flags().StringSliceVar(&scanWhitelist, "whitelist", nil,
		"Extra root FQNs or dot-boundary suffixes (appends to the configured list)")
	cmd.Flags().StringVar(&scanPattern, "pattern", "",
		"Path pattern over edge kinds (default: the configured pattern)")
	cmd.Flags().StringSliceVar(&scanPlugins, "plugins", nil,
		"Dynamic-usage plugins to enable: registry, dispatch")
	cmd.Flags().StringSliceVar(&scanRegistryCtors, "registry-constructors", nil,
		"Call names the registry plugin treats as registration points")
	cmd.Flags().BoolVar(&scanExportClosure, "module-export-closure", false,
		"Expand an export naming a submodule into that submodule's exports")
	cmd.Flags().BoolVar(&scanProtoNominal, "protocol-nominal", true,
		"Mark protocol method implementations used when the protocol is")
	cmd.Flags().BoolVar(&scanStrictSig, "strict-signature", true,
		"Require matching arity for protocol implementations")
	cmd.Flags().BoolVar(&scanPolicyAnywhere, "policy-anywhere", false,
		"Let policy-structural edges match anywhere in a path")
	cmd.Flags().IntVar(&scanMaxDead, "max", -1,
		"Fail with exit 1 when more than this many symbols are dead (-1 disables)")
	cmd.Flags().BoolVar(&scanJSONOutput, "json", false,
		"Print the report JSON on stdout instead of the summary")
	cmd.Flags().StringVarP(&scanOutputDir, "output", "o", ".",
		"Directory for dead_code.json and graph exports")
	cmd.Flags().BoolVar(&scanDOT, "dot", false,
		"Also write dead_code.dot next to the report")
	cmd.Flags().BoolVar(&scanMermaid, "mermaid", false,
		"Also write dead_code.mmd next to the report")
	cmd.Flags().BoolVarP(&scanWatch, "watch", "w", false,
		"Stay running and re-analyze when Python files change")
	cmd.Flags().IntVar(&scanWorkers, "workers", 0,
		"Parallel parse workers (0 = all CPUs)")
	cmd.Flags().BoolVar(&scanNoCache, "no-cache", false,
		"Disable the content-addressed parse cache")
	cmd.Flags().StringVar(&scanCacheDir, "cache-dir", "",
		"Parse cache location (default: ~/.deadwood/cache)")
	cmd.Flags().IntVar(&scanLimit, "limit", 0,
		"Truncate the dead listing after this many entries (0 = all)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runScanCommand executes the scan command.
//
// # Description
//
// Resolves the root and configuration, folds in flag overrides, runs
// the pipeline, renders the outputs, and applies the dead-count gate.
// With --watch it then re-runs on every debounced file change until
// interrupted.
func runScanCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	printer := ux.NewPrinter(os.Stdout)

	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	root, err := resolveRoot(path)
	if err != nil {
		printer.Errorf("%v", err)
		exit(exitFatal)
	}

	cfg, err := resolveConfig(root)
	if err != nil {
		printer.Errorf("%v", err)
		exit(exitFatal)
	}
	applyScanFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		printer.Errorf("%v", err)
		exit(exitFatal)
	}

	store := openCacheStore(cfg)

	a, err := runScanOnce(ctx, root, cfg, store, printer)
	if err != nil {
		closeStore(store)
		printer.Errorf("%v", err)
		exit(exitFatal)
	}

	if scanWatch {
		err := watchAndRescan(ctx, root, cfg, store, printer)
		closeStore(store)
		if err != nil {
			printer.Errorf("%v", err)
			exit(exitFatal)
		}
		exit(exitSuccess)
	}

	closeStore(store)
	if a.GateExceeded() {
		printer.Errorf("dead code gate: %d dead symbols exceed the limit of %d",
			a.Report.Summary.Dead, cfg.Output.MaxDead)
		exit(exitFailure)
	}
	exit(exitSuccess)
}

// applyScanFlags folds the set command-line flags into cfg. Only
// flags the user actually changed override the file, so flag defaults
// never clobber configured values.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("include") {
		cfg.Paths.Include = scanInclude
	}
	if flags.Changed("exclude") {
		cfg.Paths.Exclude = scanExclude
	}
	if flags.Changed("whitelist") {
		cfg.Analysis.Whitelist = append(cfg.Analysis.Whitelist, scanWhitelist...)
	}
	if flags.Changed("pattern") {
		cfg.Analysis.Pattern = scanPattern
	}
	if flags.Changed("plugins") {
		cfg.Analysis.Plugins = scanPlugins
	}
	if flags.Changed("registry-constructors") {
		cfg.Analysis.RegistryConstructors = scanRegistryCtors
	}
	if flags.Changed("module-export-closure") {
		cfg.Analysis.ModuleExportClosure = scanExportClosure
	}
	if flags.Changed("protocol-nominal") {
		cfg.Analysis.ProtocolNominal = scanProtoNominal
	}
	if flags.Changed("strict-signature") {
		cfg.Analysis.ProtocolStrictSignature = scanStrictSig
	}
	if flags.Changed("policy-anywhere") {
		cfg.Analysis.PolicyAnywhere = scanPolicyAnywhere
	}
	if flags.Changed("workers") {
		cfg.Scan.Workers = scanWorkers
	}
	if flags.Changed("max") {
		cfg.Output.MaxDead = scanMaxDead
	}
	if flags.Changed("output") {
		cfg.Output.Dir = scanOutputDir
	}
	if scanNoCache {
		cfg.Cache.Enabled = false
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = scanCacheDir
	}
}

// runScanOnce runs one analysis and renders every requested output.
func runScanOnce(ctx context.Context, root string, cfg config.Config, store *cache.Store, printer *ux.Printer) (*deadcode.Analysis, error) {
	a, err := deadcode.Analyze(ctx, root, cfg, analysisOptions(store)...)
	if err != nil {
		return nil, err
	}

	if scanJSONOutput {
		if err := outputJSON(a.Report); err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
	} else {
		printer.Summary(a.Report)
		printer.DeadSymbols(a.Report, scanLimit)
		printer.AllowedSymbols(a.Report)
		printer.Warnings(a.Report)
	}

	if _, err := a.Report.Write(cfg.Output.Dir); err != nil {
		return nil, err
	}
	if err := exportScanGraphs(a, cfg.Output.Dir); err != nil {
		return nil, err
	}
	return a, nil
}

// exportScanGraphs writes the DOT and Mermaid renderings next to the
// report when the matching flags are set.
func exportScanGraphs(a *deadcode.Analysis, dir string) error {
	if !scanDOT && !scanMermaid {
		return nil
	}
	w := report.NewGraphWriter(nil)
	in := report.Input{Extraction: a.Extraction, Roots: a.Roots, Reach: a.Reach}

	if scanDOT {
		if err := writeGraphFile(w, in, report.FormatDOT, filepath.Join(dir, "dead_code.dot")); err != nil {
			return err
		}
	}
	if scanMermaid {
		if err := writeGraphFile(w, in, report.FormatMermaid, filepath.Join(dir, "dead_code.mmd")); err != nil {
			return err
		}
	}
	return nil
}

// writeGraphFile renders one export format to a file.
func writeGraphFile(w *report.GraphWriter, in report.Input, format report.GraphFormat, path string) error {
	rendered, err := w.Render(in, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("write graph export: %w", err)
	}
	slog.Info("graph written", slog.String("path", path))
	return nil
}

// watchAndRescan blocks re-running the analysis on every debounced
// change batch until the context is cancelled. A failed rebuild is
// reported and watching continues; a broken edit should not kill the
// session.
func watchAndRescan(ctx context.Context, root string, cfg config.Config, store *cache.Store, printer *ux.Printer) error {
	opts := scan.DefaultWatchOptions()
	opts.Include = cfg.Paths.Include
	opts.Exclude = cfg.Paths.Exclude

	rebuild := func(ctx context.Context, changes []scan.Change) {
		slog.Info("re-analyzing after changes", slog.Int("files", len(changes)))
		if _, err := runScanOnce(ctx, root, cfg, store, printer); err != nil {
			printer.Errorf("%v", err)
		}
	}

	watcher, err := scan.NewWatcher(root, rebuild, &opts)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Stop()

	<-ctx.Done()
	return nil
}
