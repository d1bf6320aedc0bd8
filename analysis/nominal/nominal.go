// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nominal inserts the synthetic edges that make polymorphic
// dispatch visible to reachability.
//
// # Description
//
// A call through a base class or protocol cannot be resolved to the
// override that actually runs, so liveness of an override follows from
// liveness of the method it overrides. For every class, each method it
// defines is matched by name against the methods of every class in its
// linearized base order:
//
//   - an ordinary base contributes an inherit-override edge
//     Base.m -> Derived.m;
//   - a protocol base (a base declaring Protocol) contributes a
//     protocol-impl edge Port.m -> Impl.m instead, never both kinds
//     for the same base.
//
// Propagation is unconditional on class usage: a derived class nothing
// references still receives its edges, and liveness is decided solely
// by whether the base method is reached.
//
// Signatures gate the match. Arity must be exactly equal after the
// parser's implicit self/cls drop; a variadic signature (unknown
// arity) never blocks. Protocol matching can be relaxed to name-only;
// inherit-override is always arity-checked.
package nominal

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/deadwood/analysis/ast"
	"github.com/AleutianAI/deadwood/analysis/extract"
	"github.com/AleutianAI/deadwood/analysis/graph"
)

// =============================================================================
// Options
// =============================================================================

// Options configures nominal propagation.
type Options struct {
	// ProtocolNominal enables protocol-impl edges. Off, protocol bases
	// contribute no propagation at all.
	ProtocolNominal bool

	// StrictSignatures arity-checks protocol matches. Off, a protocol
	// method matches any implementation method of the same name.
	// Inherit-override matches are always arity-checked.
	StrictSignatures bool
}

// DefaultOptions returns the baseline propagation options.
func DefaultOptions() Options {
	return Options{
		ProtocolNominal:  true,
		StrictSignatures: true,
	}
}

// Option mutates propagation options.
type Option func(*Options)

// WithProtocolNominal toggles protocol-impl edges.
func WithProtocolNominal(enabled bool) Option {
	return func(o *Options) {
		o.ProtocolNominal = enabled
	}
}

// WithStrictSignatures toggles arity checking for protocol matches.
func WithStrictSignatures(enabled bool) Option {
	return func(o *Options) {
		o.StrictSignatures = enabled
	}
}

// =============================================================================
// Result
// =============================================================================

// Result reports what propagation inserted.
type Result struct {
	// InheritOverride counts inserted inherit-override edges.
	InheritOverride int

	// ProtocolImpl counts inserted protocol-impl edges.
	ProtocolImpl int
}

// =============================================================================
// Propagation
// =============================================================================

// Propagate inserts the nominal edges for every class in the index.
//
// Description:
//
//	Classes are visited in sorted FQN order, bases in linearized
//	order, and base methods in sorted name order, so edge insertion
//	order is deterministic. The graph must still be building.
//
// Inputs:
//
//	ctx - Used for tracing; checked once at entry.
//	res - The extraction result.
//	opts - Functional options.
//
// Outputs:
//
//	*Result - Inserted edge counts.
//	error - Non-nil on nil input, cancellation, or a frozen graph.
//
// Thread Safety: single caller, between extraction and freeze.
func Propagate(ctx context.Context, res *extract.Result, opts ...Option) (*Result, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if res == nil || res.Graph == nil || res.Index == nil {
		return nil, ErrNilExtraction
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := startPropagateSpan(ctx)
	defer span.End()

	out := &Result{}
	for si := range res.Index.Symbols() {
		if si.Class == nil {
			continue
		}
		if err := propagateClass(res, si, options, out); err != nil {
			setPropagateSpanResult(span, 0, 0, err)
			return nil, err
		}
	}

	recordPropagateMetrics(ctx, time.Since(start), out.InheritOverride+out.ProtocolImpl)
	setPropagateSpanResult(span, out.InheritOverride, out.ProtocolImpl, nil)
	slog.Info("nominal propagation complete",
		slog.Int("inherit_override", out.InheritOverride),
		slog.Int("protocol_impl", out.ProtocolImpl),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

// propagateClass matches one class's own methods against every base in
// its linearized order.
func propagateClass(res *extract.Result, derived *extract.SymbolInfo, options Options, out *Result) error {
	for _, baseFQN := range derived.Class.Linearized {
		base := res.Index.Symbol(baseFQN)
		if base == nil || base.Class == nil {
			continue
		}

		protocol := base.Class.IsProtocol
		if protocol && !options.ProtocolNominal {
			continue
		}

		names := make([]string, 0, len(base.Class.Methods))
		for name := range base.Class.Methods {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			overrideFQN, ok := derived.Class.Methods[name]
			if !ok {
				continue
			}
			baseMethod := res.Index.Symbol(base.Class.Methods[name])
			override := res.Index.Symbol(overrideFQN)
			if baseMethod == nil || override == nil {
				continue
			}

			strict := !protocol || options.StrictSignatures
			if strict && !arityCompatible(baseMethod.Arity, override.Arity) {
				continue
			}

			kind := graph.EdgeKindInheritOverride
			if protocol {
				kind = graph.EdgeKindProtocolImpl
			}
			if err := res.Graph.AddEdge(baseMethod.NodeID, override.NodeID, kind, 0); err != nil {
				return err
			}
			if protocol {
				out.ProtocolImpl++
			} else {
				out.InheritOverride++
			}
		}
	}
	return nil
}

// arityCompatible reports whether two arities match exactly, with
// unknown arity on either side matching anything.
func arityCompatible(base, override int) bool {
	if base == ast.ArityUnknown || override == ast.ArityUnknown {
		return true
	}
	return base == override
}
