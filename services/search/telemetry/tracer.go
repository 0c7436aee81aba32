// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "aleutian.search"

// Tracer provides OpenTelemetry spans for search steps and node
// evaluations. A disabled or nil Tracer returns no-op spans.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		if tp != nil {
			t.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewTracer creates a tracer.
//
// Inputs:
//   - logger: Logger for structured logging (can be nil).
//   - enabled: When false every Start method returns a no-op span.
//
// Outputs:
//   - *Tracer: Tracer instance.
func NewTracer(logger *slog.Logger, enabled bool, opts ...TracerOption) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracer{
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
		enabled: enabled,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enabled reports whether spans are recorded.
func (t *Tracer) Enabled() bool { return t != nil && t.enabled }

// StartRun starts a span covering a whole driver loop.
func (t *Tracer) StartRun(ctx context.Context, algorithm, id string) (context.Context, trace.Span) {
	if !t.Enabled() {
		return ctx, noop.Span{}
	}
	ctx, span := t.tracer.Start(ctx, "search.run",
		trace.WithAttributes(
			attribute.String("search.algorithm", algorithm),
			attribute.String("search.id", id),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	t.logger.DebugContext(ctx, "search run started",
		slog.String("algorithm", algorithm),
		slog.String("algorithm_id", id),
	)
	return ctx, span
}

// EndRun completes a run span.
//
// Inputs:
//   - span: The span to end.
//   - steps: Number of steps taken.
//   - solutions: Number of solutions reported.
//   - err: Failure, if any.
func (t *Tracer) EndRun(span trace.Span, steps, solutions int, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("search.result.steps", steps),
		attribute.Int("search.result.solutions", solutions),
	)
	endSpan(span, err)
}

// StartStep starts a span for one Step call.
func (t *Tracer) StartStep(ctx context.Context, algorithm string, step int) (context.Context, trace.Span) {
	if !t.Enabled() {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "search.step",
		trace.WithAttributes(
			attribute.String("search.algorithm", algorithm),
			attribute.Int("search.step", step),
		),
	)
}

// EndStep completes a step span with the kind of event produced.
func (t *Tracer) EndStep(span trace.Span, kind string, err error) {
	if span == nil {
		return
	}
	if kind != "" {
		span.SetAttributes(attribute.String("search.event", kind))
	}
	endSpan(span, err)
}

// StartEvaluate starts a span for one node evaluation.
func (t *Tracer) StartEvaluate(ctx context.Context, label string, depth int) (context.Context, trace.Span) {
	if !t.Enabled() {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "search.evaluate",
		trace.WithAttributes(
			attribute.String("search.node", truncate(label, 100)),
			attribute.Int("search.depth", depth),
		),
	)
}

// EndEvaluate completes an evaluation span.
func (t *Tracer) EndEvaluate(span trace.Span, score float64, pruned bool, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Bool("search.pruned", pruned))
	if !pruned && err == nil {
		span.SetAttributes(attribute.Float64("search.score", score))
	}
	endSpan(span, err)
}

// StartRollout starts a span for one tree-search iteration.
func (t *Tracer) StartRollout(ctx context.Context, iteration int) (context.Context, trace.Span) {
	if !t.Enabled() {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "search.rollout",
		trace.WithAttributes(attribute.Int("search.iteration", iteration)),
	)
}

// EndRollout completes a rollout span.
func (t *Tracer) EndRollout(span trace.Span, edges int, reward float64, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int("search.rollout.edges", edges))
	if err == nil {
		span.SetAttributes(attribute.Float64("search.rollout.reward", reward))
	}
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
