// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reach

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OpenTelemetry instrumentation for reachability.
var (
	tracer = otel.Tracer("deadwood.analysis.reach")
	meter  = otel.Meter("deadwood.analysis.reach")

	analyzeDuration metric.Float64Histogram
	statesCounter   metric.Int64Counter

	metricsOnce sync.Once
)

// initMetrics lazily creates the package instruments. Failures leave
// the instrument nil; recording guards against nil.
func initMetrics() {
	var err error

	analyzeDuration, err = meter.Float64Histogram(
		"deadwood_reach_analyze_duration_seconds",
		metric.WithDescription("Reachability search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Warn("failed to create analyze duration histogram", "error", err)
	}

	statesCounter, err = meter.Int64Counter(
		"deadwood_reach_states_total",
		metric.WithDescription("Total number of product states visited"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		slog.Warn("failed to create visited states counter", "error", err)
	}
}

// recordAnalyzeMetrics records one completed search.
func recordAnalyzeMetrics(ctx context.Context, duration time.Duration, states uint64) {
	metricsOnce.Do(initMetrics)

	if analyzeDuration != nil {
		analyzeDuration.Record(ctx, duration.Seconds())
	}
	if statesCounter != nil {
		statesCounter.Add(ctx, int64(states))
	}
}

// startAnalyzeSpan opens a tracing span for one search.
func startAnalyzeSpan(ctx context.Context, rootCount int, source string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reach.analyze",
		trace.WithAttributes(
			attribute.Int("roots.count", rootCount),
			attribute.String("pattern.source", source),
		))
}

// setAnalyzeSpanError finalizes the span after a failed search.
func setAnalyzeSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// setAnalyzeSpanResult finalizes the span with the search outcome.
func setAnalyzeSpanResult(span trace.Span, stats Stats) {
	span.SetAttributes(
		attribute.Int("seeds.implicit", stats.ImplicitSeeds),
		attribute.Int64("states.visited", int64(stats.VisitedStates)),
		attribute.Int("symbols.used", stats.UsedSymbols),
		attribute.Int("symbols.dead", stats.DeadSymbols),
		attribute.Int("symbols.allowed", stats.AllowedSymbols),
	)
	span.SetStatus(codes.Ok, "")
}
