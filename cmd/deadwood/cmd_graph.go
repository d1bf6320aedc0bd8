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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deadwood/analysis/deadcode"
	"github.com/AleutianAI/deadwood/analysis/report"
	"github.com/AleutianAI/deadwood/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	graphExportFormat string // dot or mermaid
	graphOut          string // Output file, empty = stdout
	graphMaxNodes     int    // Node cap for the export
	graphDirection    string // Layout direction
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// graphCmd exports the analyzed symbol graph.
//
// # Description
//
// Runs the analysis and renders the symbol graph with liveness
// coloring: roots green, used blue, dead red, allowed yellow, modules
// gray. Edges carry their kind. The graph goes to stdout so it can
// pipe straight into dot; status messages go to stderr.
//
// # Examples
//
//	deadwood graph | dot -Tsvg > dead_code.svg
//	deadwood graph ./src --format mermaid
//	deadwood graph --out dead_code.dot --max-nodes 100
//
// # Exit Codes
//
//	0 - Graph rendered
//	2 - Invalid arguments or a failed run
var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Export the symbol graph as DOT or Mermaid",
	Long: `Export the symbol graph as DOT or Mermaid.

Nodes are colored by liveness (roots green, used blue, dead red,
allowed yellow, modules gray) and edges are labeled with their kind.
Large graphs are capped at --max-nodes entries in FQN order.

Examples:
  deadwood graph | dot -Tsvg > dead_code.svg
  deadwood graph ./src --format mermaid
  deadwood graph --out dead_code.dot --max-nodes 100`,
	Args: cobra.MaximumNArgs(1),
	Run:  runGraphCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	graphCmd.Flags().StringVar(&graphExportFormat, "format", "dot",
		"Export format: dot or mermaid")
	graphCmd.Flags().StringVarP(&graphOut, "out", "o", "",
		"Write to a file instead of stdout")
	graphCmd.Flags().IntVar(&graphMaxNodes, "max-nodes", 0,
		"Node cap for the export (0 = default 400)")
	graphCmd.Flags().StringVar(&graphDirection, "direction", "",
		"Layout direction: TB, LR, BT, RL (default TB)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runGraphCommand executes the graph command.
func runGraphCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The rendered graph owns stdout.
	printer := ux.NewPrinter(os.Stderr)

	format := report.GraphFormat(graphExportFormat)
	if format != report.FormatDOT && format != report.FormatMermaid {
		printer.Errorf("unknown format %q (want dot or mermaid)", graphExportFormat)
		exit(exitFatal)
	}

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

	store := openCacheStore(cfg)
	a, err := deadcode.Analyze(ctx, root, cfg, analysisOptions(store)...)
	closeStore(store)
	if err != nil {
		printer.Errorf("%v", err)
		exit(exitFatal)
	}

	opts := graphExportOptions()
	rendered, err := report.NewGraphWriter(&opts).Render(report.Input{
		Extraction: a.Extraction,
		Roots:      a.Roots,
		Reach:      a.Reach,
	}, format)
	if err != nil {
		printer.Errorf("%v", err)
		exit(exitFatal)
	}

	if graphOut == "" {
		fmt.Print(rendered)
		exit(exitSuccess)
	}
	if err := os.WriteFile(graphOut, []byte(rendered), 0644); err != nil {
		printer.Errorf("write graph: %v", err)
		exit(exitFatal)
	}
	printer.Successf("graph written to %s", graphOut)
	exit(exitSuccess)
}

// graphExportOptions folds the flags into the writer defaults.
func graphExportOptions() report.GraphOptions {
	opts := report.DefaultGraphOptions()
	if graphMaxNodes > 0 {
		opts.MaxNodes = graphMaxNodes
	}
	if graphDirection != "" {
		opts.Direction = graphDirection
	}
	return opts
}
