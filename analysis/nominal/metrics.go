// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nominal

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

// OpenTelemetry instrumentation for nominal propagation.
var (
	tracer = otel.Tracer("deadwood.analysis.nominal")
	meter  = otel.Meter("deadwood.analysis.nominal")

	propagateDuration metric.Float64Histogram
	edgesCounter      metric.Int64Counter

	metricsOnce sync.Once
)

// initMetrics lazily creates the package instruments. Failures leave
// the instrument nil; recording guards against nil.
func initMetrics() {
	var err error

	propagateDuration, err = meter.Float64Histogram(
		"deadwood_nominal_propagate_duration_seconds",
		metric.WithDescription("Nominal propagation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Warn("failed to create propagation duration histogram", "error", err)
	}

	edgesCounter, err = meter.Int64Counter(
		"deadwood_nominal_edges_total",
		metric.WithDescription("Total number of synthetic nominal edges"),
		metric.WithUnit("{edge}"),
	)
	if err != nil {
		slog.Warn("failed to create nominal edges counter", "error", err)
	}
}

// recordPropagateMetrics records one completed propagation.
func recordPropagateMetrics(ctx context.Context, duration time.Duration, edges int) {
	metricsOnce.Do(initMetrics)

	if propagateDuration != nil {
		propagateDuration.Record(ctx, duration.Seconds())
	}
	if edgesCounter != nil {
		edgesCounter.Add(ctx, int64(edges))
	}
}

// startPropagateSpan opens a tracing span for one propagation.
func startPropagateSpan(ctx context.Context) (context.Context, trace.Span) {
	return tracer.Start(ctx, "nominal.propagate")
}

// setPropagateSpanResult finalizes the span with the propagation
// outcome.
func setPropagateSpanResult(span trace.Span, inheritOverride, protocolImpl int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("edges.inherit_override", inheritOverride),
		attribute.Int("edges.protocol_impl", protocolImpl),
	)
	span.SetStatus(codes.Ok, "")
}
