// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package roots

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

// OpenTelemetry instrumentation for root collection.
var (
	tracer = otel.Tracer("deadwood.analysis.roots")
	meter  = otel.Meter("deadwood.analysis.roots")

	buildDuration metric.Float64Histogram
	rootsCounter  metric.Int64Counter

	metricsOnce sync.Once
)

// initMetrics lazily creates the package instruments. Failures leave
// the instrument nil; recording guards against nil.
func initMetrics() {
	var err error

	buildDuration, err = meter.Float64Histogram(
		"deadwood_roots_build_duration_seconds",
		metric.WithDescription("Root collection duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Warn("failed to create roots duration histogram", "error", err)
	}

	rootsCounter, err = meter.Int64Counter(
		"deadwood_roots_total",
		metric.WithDescription("Total number of collected roots"),
		metric.WithUnit("{root}"),
	)
	if err != nil {
		slog.Warn("failed to create roots counter", "error", err)
	}
}

// recordBuildMetrics records one completed collection.
func recordBuildMetrics(ctx context.Context, duration time.Duration, roots int) {
	metricsOnce.Do(initMetrics)

	if buildDuration != nil {
		buildDuration.Record(ctx, duration.Seconds())
	}
	if rootsCounter != nil {
		rootsCounter.Add(ctx, int64(roots))
	}
}

// startBuildSpan opens a tracing span for one collection.
func startBuildSpan(ctx context.Context, whitelistCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "roots.build",
		trace.WithAttributes(
			attribute.Int("whitelist.count", whitelistCount),
		),
	)
}

// setBuildSpanResult finalizes the span with the collection outcome.
func setBuildSpanResult(span trace.Span, roots, warnings int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("roots.count", roots),
		attribute.Int("warnings.count", warnings),
	)
	span.SetStatus(codes.Ok, "")
}
