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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// knownAlgorithms bounds the "algorithm" label. Anything else is recorded
// as "unknown".
var knownAlgorithms = map[string]bool{
	"bestfirst": true,
	"mcts":      true,
}

// knownPruneReasons bounds the "reason" label of nodesPrunedTotal.
var knownPruneReasons = map[string]bool{
	PruneEvaluator: true,
	PruneError:     true,
	PruneDiscarded: true,
}

// Prune reasons.
const (
	PruneEvaluator = "evaluator"
	PruneError     = "error"
	PruneDiscarded = "discarded"
)

func sanitize(known map[string]bool, name string) string {
	if name == "" || !known[name] {
		return "unknown"
	}
	return name
}

var (
	// stepsTotal counts Step calls by the event they produced.
	//
	// Labels:
	//   - algorithm: "bestfirst" or "mcts"
	//   - event: event kind, or "error"
	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "search",
			Name:      "steps_total",
			Help:      "Total search steps by algorithm and produced event",
		},
		[]string{"algorithm", "event"},
	)

	// nodesExpandedTotal counts children inserted into the frontier.
	nodesExpandedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "search",
			Name:      "nodes_expanded_total",
			Help:      "Total child nodes inserted into the open collection",
		},
		[]string{"algorithm"},
	)

	// nodesPrunedTotal counts children dropped before insertion.
	//
	// Labels:
	//   - reason: "evaluator", "error" or "discarded"
	nodesPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "search",
			Name:      "nodes_pruned_total",
			Help:      "Total child nodes dropped by reason",
		},
		[]string{"algorithm", "reason"},
	)

	// solutionsTotal counts reported solutions.
	solutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "search",
			Name:      "solutions_total",
			Help:      "Total solution candidates reported",
		},
		[]string{"algorithm"},
	)

	// bestScore tracks the incumbent score.
	bestScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aleutian",
			Subsystem: "search",
			Name:      "best_score",
			Help:      "Score of the best solution found so far",
		},
		[]string{"algorithm"},
	)

	// openSize tracks the frontier size after each step.
	openSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aleutian",
			Subsystem: "search",
			Name:      "open_size",
			Help:      "Number of nodes in the open collection",
		},
		[]string{"algorithm"},
	)

	// evaluationDurationSeconds measures evaluator latency.
	evaluationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aleutian",
			Subsystem: "search",
			Name:      "evaluation_duration_seconds",
			Help:      "Node evaluation duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"algorithm"},
	)

	// runsFinishedTotal counts terminated runs.
	//
	// Labels:
	//   - reason: FinishReason string
	runsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "search",
			Name:      "runs_finished_total",
			Help:      "Total finished runs by algorithm and reason",
		},
		[]string{"algorithm", "reason"},
	)
)

// Metrics records Prometheus metrics for one engine. A nil or disabled
// Metrics records nothing.
//
// Thread Safety: Safe for concurrent use.
type Metrics struct {
	algorithm string
	enabled   bool
}

// NewMetrics creates a recorder for the given algorithm label.
func NewMetrics(algorithm string, enabled bool) *Metrics {
	return &Metrics{algorithm: sanitize(knownAlgorithms, algorithm), enabled: enabled}
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// Algorithm returns the sanitized algorithm label.
func (m *Metrics) Algorithm() string {
	if m == nil {
		return "unknown"
	}
	return m.algorithm
}

// RecordStep counts a Step that produced event (or "error").
func (m *Metrics) RecordStep(event string) {
	if !m.on() {
		return
	}
	stepsTotal.WithLabelValues(m.algorithm, event).Inc()
}

// RecordExpanded counts inserted children.
func (m *Metrics) RecordExpanded(n int) {
	if !m.on() || n <= 0 {
		return
	}
	nodesExpandedTotal.WithLabelValues(m.algorithm).Add(float64(n))
}

// RecordPruned counts dropped children.
func (m *Metrics) RecordPruned(reason string, n int) {
	if !m.on() || n <= 0 {
		return
	}
	nodesPrunedTotal.WithLabelValues(m.algorithm, sanitize(knownPruneReasons, reason)).Add(float64(n))
}

// RecordSolution counts a solution and updates the incumbent gauge when it
// improved.
func (m *Metrics) RecordSolution(score float64, improved bool) {
	if !m.on() {
		return
	}
	solutionsTotal.WithLabelValues(m.algorithm).Inc()
	if improved {
		bestScore.WithLabelValues(m.algorithm).Set(score)
	}
}

// SetOpenSize records the frontier size.
func (m *Metrics) SetOpenSize(n int) {
	if !m.on() {
		return
	}
	openSize.WithLabelValues(m.algorithm).Set(float64(n))
}

// ObserveEvaluation records evaluator latency.
func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if !m.on() {
		return
	}
	evaluationDurationSeconds.WithLabelValues(m.algorithm).Observe(d.Seconds())
}

// RecordFinished counts a terminated run.
func (m *Metrics) RecordFinished(reason string) {
	if !m.on() {
		return
	}
	runsFinishedTotal.WithLabelValues(m.algorithm, reason).Inc()
}
