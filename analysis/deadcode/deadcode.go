// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deadcode runs the full analysis pipeline in one call.
//
// # Description
//
// Analyze wires the stages in their required order: scan, extract,
// nominal propagation, root collection, graph freeze, reachability,
// report assembly. The order matters in one place that is easy to get
// wrong when composing the stages by hand: root collection inserts
// policy-structural edges, so the graph freezes after roots are built
// and before the search runs.
//
// The CLI and most integration tests go through this package. Callers
// that need only part of the pipeline, or that want to interleave
// their own passes, use the stage packages directly.
//
// # Resource ownership
//
// Analyze borrows the optional parse cache store and never closes it.
// The caller owns the store lifecycle, which lets one store span many
// runs in watch mode.
package deadcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/deadwood/analysis/cache"
	"github.com/AleutianAI/deadwood/analysis/config"
	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/nominal"
	"github.com/AleutianAI/deadwood/analysis/pattern"
	"github.com/AleutianAI/deadwood/analysis/reach"
	"github.com/AleutianAI/deadwood/analysis/report"
	"github.com/AleutianAI/deadwood/analysis/roots"
	"github.com/AleutianAI/deadwood/analysis/scan"
)

// =============================================================================
// Options
// =============================================================================

// Options configures a pipeline run beyond what the config file
// carries.
type Options struct {
	// Cache is an open parse cache store, nil to parse everything.
	// Analyze never closes it.
	Cache *cache.Store

	// Logger receives run-level progress. Nil uses slog.Default.
	Logger *slog.Logger

	// RunID overrides the generated report run ID when non-empty.
	RunID string
}

// DefaultOptions returns the baseline run options.
func DefaultOptions() Options {
	return Options{}
}

// Option mutates run options.
type Option func(*Options)

// WithCache supplies an open parse cache store.
func WithCache(store *cache.Store) Option {
	return func(o *Options) {
		o.Cache = store
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithRunID pins the report run ID.
func WithRunID(id string) Option {
	return func(o *Options) {
		o.RunID = id
	}
}

// =============================================================================
// Result bundle
// =============================================================================

// Analysis bundles every stage output of one completed run.
type Analysis struct {
	// Root is the absolute scan root.
	Root string

	// Config echoes the configuration the run used.
	Config config.Config

	// Extraction holds the symbol graph, index, and resolver.
	Extraction *extract.Result

	// Nominal counts the inheritance and protocol edges inserted.
	Nominal *nominal.Result

	// Roots is the frozen root set.
	Roots *roots.Set

	// Reach holds the liveness verdicts and witness parents.
	Reach *reach.Result

	// Report is the assembled document.
	Report *report.Report
}

// Explain resolves a witness query against the completed run.
//
// Outputs:
//
//	*report.ExplainRecord - The verdict and witness path in output
//	  form.
//	error - reach.ErrUnknownFQN when the graph has no such node.
func (a *Analysis) Explain(fqn string) (*report.ExplainRecord, error) {
	ex, err := a.Reach.Explain(fqn)
	if err != nil {
		return nil, err
	}
	return report.NewExplainRecord(ex), nil
}

// GateExceeded reports whether the dead symbol count breaks the
// configured ceiling. A negative ceiling disables the gate.
func (a *Analysis) GateExceeded() bool {
	limit := a.Config.Output.MaxDead
	return limit >= 0 && a.Report.Summary.Dead > limit
}

// =============================================================================
// Pipeline
// =============================================================================

// Analyze runs the complete pipeline over the tree at root.
//
// Inputs:
//
//	ctx - Cancels the run between stages and inside each stage.
//	root - Directory or single .py file to analyze.
//	cfg - The run configuration, typically config.Load output.
//	opts - Cache store, logger, and run ID overrides.
//
// Outputs:
//
//	*Analysis - Every stage output plus the assembled report.
//	error - The first stage failure, wrapped with the stage name.
//	  Configuration problems surface before any file is read.
func Analyze(ctx context.Context, root string, cfg config.Config, opts ...Option) (*Analysis, error) {
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

	ctx, span := startRunSpan(ctx, root)
	defer span.End()
	start := time.Now()

	// Derive the pattern and plugins first so a bad configuration
	// fails before the tree is walked.
	pat, err := cfg.CompilePattern()
	if err != nil {
		setRunSpanError(span, err)
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	plugins, err := cfg.BuildPlugins()
	if err != nil {
		setRunSpanError(span, err)
		return nil, fmt.Errorf("build plugins: %w", err)
	}

	scanOpts := []scan.Option{
		scan.WithInclude(cfg.Paths.Include...),
		scan.WithExclude(cfg.Paths.Exclude...),
		scan.WithWorkers(cfg.Scan.Workers),
		scan.WithLogger(logger),
	}
	if options.Cache != nil {
		scanOpts = append(scanOpts, scan.WithCache(options.Cache))
	}
	scanned, err := scan.Run(ctx, root, scanOpts...)
	if err != nil {
		setRunSpanError(span, err)
		return nil, fmt.Errorf("scan: %w", err)
	}

	ext, err := extract.Build(ctx, scanned.Sources,
		extract.WithProjectRoot(scanned.Root),
		extract.WithPlugins(plugins...))
	if err != nil {
		setRunSpanError(span, err)
		return nil, fmt.Errorf("extract: %w", err)
	}

	nom, err := nominal.Propagate(ctx, ext,
		nominal.WithProtocolNominal(cfg.Analysis.ProtocolNominal),
		nominal.WithStrictSignatures(cfg.Analysis.ProtocolStrictSignature))
	if err != nil {
		setRunSpanError(span, err)
		return nil, fmt.Errorf("propagate nominal edges: %w", err)
	}

	rootSet, err := roots.Build(ctx, ext,
		roots.WithWhitelist(cfg.Analysis.Whitelist...),
		roots.WithModuleExportClosure(cfg.Analysis.ModuleExportClosure))
	if err != nil {
		setRunSpanError(span, err)
		return nil, fmt.Errorf("collect roots: %w", err)
	}

	// Root collection is the last pass that may insert edges.
	ext.Graph.Freeze()

	reached, err := reach.Analyze(ctx, ext, rootSet, pat,
		reach.WithPolicyAnywhere(cfg.Analysis.PolicyAnywhere))
	if err != nil {
		setRunSpanError(span, err)
		return nil, fmt.Errorf("reachability: %w", err)
	}

	rep, err := report.Build(report.Input{
		Extraction: ext,
		Roots:      rootSet,
		Reach:      reached,
		Params:     policyParams(cfg, pat),
		RunID:      options.RunID,
	})
	if err != nil {
		setRunSpanError(span, err)
		return nil, fmt.Errorf("assemble report: %w", err)
	}

	elapsed := time.Since(start)
	recordRunMetrics(ctx, elapsed)
	setRunSpanResult(span, rep)

	logger.Info("analysis complete",
		slog.String("root", scanned.Root),
		slog.Int("files", len(scanned.Sources)),
		slog.Int("symbols", rep.Summary.SymbolsTotal),
		slog.Int("dead", rep.Summary.Dead),
		slog.Duration("elapsed", elapsed.Round(time.Millisecond)))

	return &Analysis{
		Root:       scanned.Root,
		Config:     cfg,
		Extraction: ext,
		Nominal:    nom,
		Roots:      rootSet,
		Reach:      reached,
		Report:     rep,
	}, nil
}

// policyParams echoes the effective run parameters into the report.
// The pattern field carries the compiled source, so an empty config
// field shows the default expression rather than an empty string.
func policyParams(cfg config.Config, pat *pattern.Pattern) report.PolicyParams {
	return report.PolicyParams{
		Pattern:                 pat.Source(),
		Plugins:                 cfg.Analysis.Plugins,
		Whitelist:               cfg.Analysis.Whitelist,
		ModuleExportClosure:     cfg.Analysis.ModuleExportClosure,
		ProtocolNominal:         cfg.Analysis.ProtocolNominal,
		ProtocolStrictSignature: cfg.Analysis.ProtocolStrictSignature,
		PolicyAnywhere:          cfg.Analysis.PolicyAnywhere,
	}
}
