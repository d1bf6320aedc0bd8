// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

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

// OpenTelemetry instrumentation for the graph builder.
var (
	tracer = otel.Tracer("deadwood.analysis.extract")
	meter  = otel.Meter("deadwood.analysis.extract")

	buildDuration     metric.Float64Histogram
	edgesEmitted      metric.Int64Counter
	unresolvedCounter metric.Int64Counter

	metricsOnce sync.Once
)

// initMetrics lazily creates the package instruments. Failures leave
// the instrument nil; recording guards against nil.
func initMetrics() {
	var err error

	buildDuration, err = meter.Float64Histogram(
		"deadwood_extract_build_duration_seconds",
		metric.WithDescription("Graph build duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Warn("failed to create build duration histogram", "error", err)
	}

	edgesEmitted, err = meter.Int64Counter(
		"deadwood_extract_edges_total",
		metric.WithDescription("Total number of edges emitted"),
		metric.WithUnit("{edge}"),
	)
	if err != nil {
		slog.Warn("failed to create edges counter", "error", err)
	}

	unresolvedCounter, err = meter.Int64Counter(
		"deadwood_extract_unresolved_total",
		metric.WithDescription("Total number of dropped unresolved references"),
		metric.WithUnit("{reference}"),
	)
	if err != nil {
		slog.Warn("failed to create unresolved counter", "error", err)
	}
}

// recordBuildMetrics records one completed build.
func recordBuildMetrics(ctx context.Context, duration time.Duration, edges, unresolved int) {
	metricsOnce.Do(initMetrics)

	if buildDuration != nil {
		buildDuration.Record(ctx, duration.Seconds())
	}
	if edgesEmitted != nil {
		edgesEmitted.Add(ctx, int64(edges))
	}
	if unresolvedCounter != nil {
		unresolvedCounter.Add(ctx, int64(unresolved))
	}
}

// startBuildSpan opens a tracing span for one graph build.
func startBuildSpan(ctx context.Context, moduleCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "extract.build",
		trace.WithAttributes(
			attribute.Int("modules.count", moduleCount),
		),
	)
}

// setBuildSpanResult finalizes the span with the build outcome.
func setBuildSpanResult(span trace.Span, nodes, edges, unresolved int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("nodes.count", nodes),
		attribute.Int("edges.count", edges),
		attribute.Int("unresolved.count", unresolved),
	)
	span.SetStatus(codes.Ok, "")
}
