// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/cancel"
	"github.com/AleutianAI/AleutianSearch/services/search/telemetry"
)

// ErrInvalidConfig is returned for bad engine settings.
var ErrInvalidConfig = errors.New("invalid mcts config")

// Config configures the tree search.
type Config struct {
	// Iterations is the rollout budget. Must be >= 1.
	Iterations int

	// ExplorationConstant is c in the UCB1 term. Default sqrt(2).
	ExplorationConstant float64

	// MaxRolloutDepth caps the edges of one sampled path.
	MaxRolloutDepth int

	// Maximize treats higher rewards as better. Default minimizes, matching
	// cost-like path scores.
	Maximize bool

	// DeadEndPenalty is the reward magnitude for rollouts ending at a
	// non-goal without successors or at the depth cap. It is added when
	// minimizing and subtracted when maximizing.
	DeadEndPenalty float64

	// Seed drives the default (rollout) policy.
	Seed int64
}

// DefaultConfig returns 1000 iterations, c = sqrt(2), depth 64 and a dead
// end penalty of 1000.
func DefaultConfig() Config {
	return Config{
		Iterations:          1000,
		ExplorationConstant: math.Sqrt2,
		MaxRolloutDepth:     64,
		DeadEndPenalty:      1000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be >= 1, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.ExplorationConstant < 0 || math.IsNaN(c.ExplorationConstant) || math.IsInf(c.ExplorationConstant, 0) {
		return fmt.Errorf("%w: exploration constant %v", ErrInvalidConfig, c.ExplorationConstant)
	}
	if c.MaxRolloutDepth < 1 {
		return fmt.Errorf("%w: max rollout depth must be >= 1", ErrInvalidConfig)
	}
	if math.IsNaN(c.DeadEndPenalty) || math.IsInf(c.DeadEndPenalty, 0) {
		return fmt.Errorf("%w: dead end penalty must be finite", ErrInvalidConfig)
	}
	return nil
}

// deadEndReward is the signed reward for a rollout that found no goal.
func (c Config) deadEndReward() float64 {
	if c.Maximize {
		return -math.Abs(c.DeadEndPenalty)
	}
	return math.Abs(c.DeadEndPenalty)
}

type options struct {
	cfg       Config
	logger    *slog.Logger
	tracer    *telemetry.Tracer
	metrics   *telemetry.Metrics
	scheduler *cancel.Scheduler
	id        string
	now       func() time.Time
	timeout   time.Duration
}

// Option configures an Engine.
type Option func(*options)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer enables rollout spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithScheduler arms the timeout on s.
func WithScheduler(s *cancel.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithID sets the algorithm ID carried by events.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTimeout sets the overall timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}
