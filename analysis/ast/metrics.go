// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

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

// OpenTelemetry instrumentation for the parser.
var (
	tracer = otel.Tracer("deadwood.analysis.ast")
	meter  = otel.Meter("deadwood.analysis.ast")

	parseCounter        metric.Int64Counter
	parseDuration       metric.Float64Histogram
	symbolsExtracted    metric.Int64Counter
	referencesExtracted metric.Int64Counter

	metricsOnce sync.Once
)

// initMetrics lazily creates the package instruments. Failures are
// logged and leave the corresponding instrument nil; recording guards
// against nil so a broken meter never breaks parsing.
func initMetrics() {
	var err error

	parseCounter, err = meter.Int64Counter(
		"deadwood_ast_parse_total",
		metric.WithDescription("Total number of files parsed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		slog.Warn("failed to create parse counter", "error", err)
	}

	parseDuration, err = meter.Float64Histogram(
		"deadwood_ast_parse_duration_seconds",
		metric.WithDescription("File parse duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Warn("failed to create parse duration histogram", "error", err)
	}

	symbolsExtracted, err = meter.Int64Counter(
		"deadwood_ast_symbols_total",
		metric.WithDescription("Total number of symbols extracted"),
		metric.WithUnit("{symbol}"),
	)
	if err != nil {
		slog.Warn("failed to create symbols counter", "error", err)
	}

	referencesExtracted, err = meter.Int64Counter(
		"deadwood_ast_references_total",
		metric.WithDescription("Total number of raw references extracted"),
		metric.WithUnit("{reference}"),
	)
	if err != nil {
		slog.Warn("failed to create references counter", "error", err)
	}
}

// recordParseMetrics records one completed parse attempt.
func recordParseMetrics(ctx context.Context, duration time.Duration, symbolCount, refCount int, success bool) {
	metricsOnce.Do(initMetrics)

	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
	)

	if parseCounter != nil {
		parseCounter.Add(ctx, 1, attrs)
	}
	if parseDuration != nil {
		parseDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if success {
		if symbolsExtracted != nil {
			symbolsExtracted.Add(ctx, int64(symbolCount))
		}
		if referencesExtracted != nil {
			referencesExtracted.Add(ctx, int64(refCount))
		}
	}
}

// startParseSpan opens a tracing span for one file parse.
func startParseSpan(ctx context.Context, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.parse",
		trace.WithAttributes(
			attribute.String("file.path", filePath),
		),
	)
}

// setParseSpanResult finalizes the span with the parse outcome.
func setParseSpanResult(span trace.Span, symbolCount, refCount int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("symbols.count", symbolCount),
		attribute.Int("references.count", refCount),
	)
	span.SetStatus(codes.Ok, "")
}
