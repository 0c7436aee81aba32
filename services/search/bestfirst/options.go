// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bestfirst

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/cancel"
	"github.com/AleutianAI/AleutianSearch/services/search/open"
	"github.com/AleutianAI/AleutianSearch/services/search/telemetry"
)

// ParentDiscarding controls how nodes reaching an already known label are
// handled.
type ParentDiscarding int

const (
	// DiscardNone keeps every node (tree semantics).
	DiscardNone ParentDiscarding = iota

	// DiscardOpen keeps at most one open node per label. A new node
	// replaces the open one only if its score is strictly better.
	DiscardOpen

	// DiscardAll additionally drops nodes whose label was already expanded.
	DiscardAll
)

// String returns the string representation of the mode.
func (p ParentDiscarding) String() string {
	switch p {
	case DiscardNone:
		return "none"
	case DiscardOpen:
		return "open"
	case DiscardAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseParentDiscarding parses "none", "open" or "all". Empty means open.
func ParseParentDiscarding(s string) (ParentDiscarding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return DiscardNone, nil
	case "open", "":
		return DiscardOpen, nil
	case "all":
		return DiscardAll, nil
	default:
		return 0, fmt.Errorf("unknown parent discarding %q", s)
	}
}

type options[T comparable, A any] struct {
	open        open.Collection[T, A]
	logger      *slog.Logger
	tracer      *telemetry.Tracer
	metrics     *telemetry.Metrics
	scheduler   *cancel.Scheduler
	id          string
	now         func() time.Time
	maximize    bool
	discarding  ParentDiscarding
	expandGoals bool
	timeout     time.Duration
	cpus        int
}

// Option configures an Engine.
type Option[T comparable, A any] func(*options[T, A])

// WithOpen sets the open collection. Default: open.NewPriority, ordered by
// the maximize flag.
func WithOpen[T comparable, A any](c open.Collection[T, A]) Option[T, A] {
	return func(o *options[T, A]) { o.open = c }
}

// WithLogger sets the logger.
func WithLogger[T comparable, A any](logger *slog.Logger) Option[T, A] {
	return func(o *options[T, A]) { o.logger = logger }
}

// WithTracer enables step and evaluation spans.
func WithTracer[T comparable, A any](t *telemetry.Tracer) Option[T, A] {
	return func(o *options[T, A]) { o.tracer = t }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics[T comparable, A any](m *telemetry.Metrics) Option[T, A] {
	return func(o *options[T, A]) { o.metrics = m }
}

// WithScheduler arms the timeout on s so that in-flight evaluations are
// canceled at the deadline.
func WithScheduler[T comparable, A any](s *cancel.Scheduler) Option[T, A] {
	return func(o *options[T, A]) { o.scheduler = s }
}

// WithID sets the algorithm ID carried by events.
func WithID[T comparable, A any](id string) Option[T, A] {
	return func(o *options[T, A]) { o.id = id }
}

// WithClock overrides time.Now.
func WithClock[T comparable, A any](now func() time.Time) Option[T, A] {
	return func(o *options[T, A]) { o.now = now }
}

// WithMaximize keeps the highest-scoring solution as the incumbent and,
// unless WithOpen is given, expands highest scores first.
func WithMaximize[T comparable, A any]() Option[T, A] {
	return func(o *options[T, A]) { o.maximize = true }
}

// WithParentDiscarding sets the duplicate-label policy. Default DiscardOpen.
func WithParentDiscarding[T comparable, A any](p ParentDiscarding) Option[T, A] {
	return func(o *options[T, A]) { o.discarding = p }
}

// WithExpandGoals expands goal nodes after reporting them.
func WithExpandGoals[T comparable, A any]() Option[T, A] {
	return func(o *options[T, A]) { o.expandGoals = true }
}

// WithTimeout sets the overall timeout.
func WithTimeout[T comparable, A any](d time.Duration) Option[T, A] {
	return func(o *options[T, A]) { o.timeout = d }
}

// WithCPUBudget sets the CPU budget passed to the evaluator.
func WithCPUBudget[T comparable, A any](n int) Option[T, A] {
	return func(o *options[T, A]) { o.cpus = n }
}
