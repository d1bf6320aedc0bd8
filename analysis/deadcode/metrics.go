// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deadcode

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

	"github.com/AleutianAI/deadwood/analysis/report"
)

// OpenTelemetry instrumentation for whole-pipeline runs. The stage
// packages trace their own work; spans started here parent them.
var (
	tracer = otel.Tracer("deadwood.analysis")
	meter  = otel.Meter("deadwood.analysis")

	runDuration metric.Float64Histogram
	runsCounter metric.Int64Counter

	metricsOnce sync.Once
)

// initMetrics lazily creates the package instruments. Failures leave
// the instrument nil; recording guards against nil.
func initMetrics() {
	var err error

	runDuration, err = meter.Float64Histogram(
		"deadwood_analysis_duration_seconds",
		metric.WithDescription("End-to-end analysis duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Warn("failed to create run duration histogram", "error", err)
	}

	runsCounter, err = meter.Int64Counter(
		"deadwood_analysis_runs_total",
		metric.WithDescription("Total number of completed analysis runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		slog.Warn("failed to create runs counter", "error", err)
	}
}

// recordRunMetrics records one completed run.
func recordRunMetrics(ctx context.Context, duration time.Duration) {
	metricsOnce.Do(initMetrics)

	if runDuration != nil {
		runDuration.Record(ctx, duration.Seconds())
	}
	if runsCounter != nil {
		runsCounter.Add(ctx, 1)
	}
}

// startRunSpan opens a tracing span for one full pipeline run.
func startRunSpan(ctx context.Context, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "deadcode.analyze",
		trace.WithAttributes(
			attribute.String("scan.root", root),
		))
}

// setRunSpanError finalizes the span after a failed run.
func setRunSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// setRunSpanResult finalizes the span with the run outcome.
func setRunSpanResult(span trace.Span, r *report.Report) {
	span.SetAttributes(
		attribute.Int("symbols.total", r.Summary.SymbolsTotal),
		attribute.Int("symbols.reachable", r.Summary.Reachable),
		attribute.Int("symbols.dead", r.Summary.Dead),
		attribute.Int("warnings", r.Summary.Warnings),
	)
	span.SetStatus(codes.Ok, "")
}
