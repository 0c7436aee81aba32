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
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(enabled bool) (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracer(nil, enabled, WithTracerProvider(tp)), rec
}

func TestTracer_RecordsNestedSpans(t *testing.T) {
	tr, rec := newRecordingTracer(true)

	ctx, run := tr.StartRun(context.Background(), "bestfirst", "run-1")
	stepCtx, step := tr.StartStep(ctx, "bestfirst", 1)
	_, eval := tr.StartEvaluate(stepCtx, "A", 0)
	tr.EndEvaluate(eval, 1.5, false, nil)
	tr.EndStep(step, "NodesExpanded", nil)
	tr.EndRun(run, 1, 0, nil)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "search.evaluate", spans[0].Name())
	assert.Equal(t, "search.step", spans[1].Name())
	assert.Equal(t, "search.run", spans[2].Name())

	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, spans[2].SpanContext().SpanID(), spans[1].Parent().SpanID())
	assert.Equal(t, codes.Ok, spans[2].Status().Code)
}

func TestTracer_RecordsErrors(t *testing.T) {
	tr, rec := newRecordingTracer(true)
	_, span := tr.StartStep(context.Background(), "mcts", 3)
	tr.EndStep(span, "", errors.New("boom"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestTracer_DisabledAndNil(t *testing.T) {
	tr, rec := newRecordingTracer(false)
	_, span := tr.StartStep(context.Background(), "bestfirst", 1)
	tr.EndStep(span, "Finished", nil)
	assert.Empty(t, rec.Ended())
	assert.False(t, tr.Enabled())

	var nilTracer *Tracer
	ctx := context.Background()
	got, span := nilTracer.StartRollout(ctx, 1)
	assert.Equal(t, ctx, got)
	nilTracer.EndRollout(span, 3, 1, nil)
}

func TestMetrics_RecordsAndSanitizes(t *testing.T) {
	m := NewMetrics("bestfirst", true)

	before := testutil.ToFloat64(stepsTotal.WithLabelValues("bestfirst", "NodesExpanded"))
	m.RecordStep("NodesExpanded")
	m.RecordStep("NodesExpanded")
	assert.Equal(t, before+2, testutil.ToFloat64(stepsTotal.WithLabelValues("bestfirst", "NodesExpanded")))

	beforePruned := testutil.ToFloat64(nodesPrunedTotal.WithLabelValues("bestfirst", "unknown"))
	m.RecordPruned("bogus", 3)
	assert.Equal(t, beforePruned+3, testutil.ToFloat64(nodesPrunedTotal.WithLabelValues("bestfirst", "unknown")))

	m.RecordSolution(4.5, true)
	assert.Equal(t, 4.5, testutil.ToFloat64(bestScore.WithLabelValues("bestfirst")))
	m.RecordSolution(9, false)
	assert.Equal(t, 4.5, testutil.ToFloat64(bestScore.WithLabelValues("bestfirst")))

	m.SetOpenSize(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(openSize.WithLabelValues("bestfirst")))

	m.ObserveEvaluation(time.Millisecond)
	assert.Equal(t, "unknown", NewMetrics("dijkstra", true).Algorithm())
}

func TestMetrics_DisabledIsNoop(t *testing.T) {
	before := testutil.ToFloat64(solutionsTotal.WithLabelValues("mcts"))
	NewMetrics("mcts", false).RecordSolution(1, true)
	var nilMetrics *Metrics
	nilMetrics.RecordSolution(1, true)
	nilMetrics.RecordFinished("exhausted")
	assert.Equal(t, before, testutil.ToFloat64(solutionsTotal.WithLabelValues("mcts")))
}
