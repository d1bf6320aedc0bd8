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
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deadwood/analysis/deadcode"
	"github.com/AleutianAI/deadwood/analysis/reach"
	"github.com/AleutianAI/deadwood/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	explainJSONOutput bool // Output as JSON
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// explainCmd answers why one symbol is kept or dead.
//
// # Description
//
// Runs the analysis, then prints the witness path from a root to the
// named symbol, or states why no such path exists. The symbol is
// addressed by its fully qualified dotted name as it appears in
// dead_code.json.
//
// # Examples
//
//	deadwood explain myapp.api.helper          # In the current directory
//	deadwood explain myapp.api.helper ./src    # In a specific tree
//	deadwood explain myapp.api.helper --json   # Machine-readable verdict
//
// # Exit Codes
//
//	0 - Verdict printed, reachable or not
//	1 - No symbol with that name exists in the tree
//	2 - Invalid arguments or a failed run
var explainCmd = &cobra.Command{
	Use:   "explain FQN [path]",
	Short: "Show the witness path that keeps a symbol alive",
	Long: `Show the witness path that keeps a symbol alive.

A reachable symbol gets the shortest accepted path from a root, hop by
hop with edge kinds and source lines. A dead symbol gets the verdict
and, when an inline allow marker suppresses it, a note saying so.

Examples:
  deadwood explain myapp.api.helper          # In the current directory
  deadwood explain myapp.api.helper ./src    # In a specific tree
  deadwood explain myapp.api.helper --json   # Machine-readable verdict`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runExplainCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	explainCmd.Flags().BoolVar(&explainJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runExplainCommand executes the explain command.
func runExplainCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	printer := ux.NewPrinter(os.Stdout)

	fqn := args[0]
	path := "."
	if len(args) > 1 {
		path = args[1]
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

	store := openCacheStore(cfg)
	a, err := deadcode.Analyze(ctx, root, cfg, analysisOptions(store)...)
	closeStore(store)
	if err != nil {
		printer.Errorf("%v", err)
		exit(exitFatal)
	}

	rec, err := a.Explain(fqn)
	if err != nil {
		if errors.Is(err, reach.ErrUnknownFQN) {
			printer.Errorf("no symbol named %q; check the name against dead_code.json", fqn)
			exit(exitFailure)
		}
		printer.Errorf("%v", err)
		exit(exitFatal)
	}

	if explainJSONOutput {
		if err := outputJSON(rec); err != nil {
			printer.Errorf("encode verdict: %v", err)
			exit(exitFatal)
		}
	} else {
		printer.Explain(rec)
	}
	exit(exitSuccess)
}
