// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package open

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

// Mode is the sub-phase of an oversearch cycle.
type Mode int

const (
	// ModeExploitation picks the best-scored node.
	ModeExploitation Mode = iota

	// ModeExploration picks the most uncertain node far from known
	// solutions.
	ModeExploration
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeExploitation:
		return "exploitation"
	case ModeExploration:
		return "exploration"
	default:
		return "unknown"
	}
}

// DistanceFunc measures how different two labels are.
type DistanceFunc[T comparable] func(a, b T) float64

// ErrInvalidOversearchConfig is returned by NewOversearch for bad settings.
var ErrInvalidOversearchConfig = errors.New("invalid oversearch config")

// OversearchConfig configures an Oversearch frontier.
type OversearchConfig[T comparable] struct {
	// Interval is the number of polls per cycle. Must be >= 1.
	Interval int

	// ExploitationShare is the fraction of each cycle spent exploiting
	// under the static split. Default 0.5, giving floor(Interval/2)
	// exploitation polls followed by ceil(Interval/2) exploration polls.
	ExploitationShare float64

	// ExploitationScoreThreshold restricts exploitation to nodes scoring
	// at or below it. Default +Inf.
	ExploitationScoreThreshold float64

	// ExplorationUncertaintyThreshold restricts exploration to nodes whose
	// uncertainty exceeds it. Default 0.
	ExplorationUncertaintyThreshold float64

	// MinSolutionDistance restricts exploration to nodes farther than this
	// from every reported solution.
	MinSolutionDistance float64

	// Distance compares labels. Nil disables the distance constraint.
	Distance DistanceFunc[T]

	// ClockModel re-splits each cycle by elapsed time: the exploitation
	// share becomes elapsed/Budget, clamped to [0, 1].
	ClockModel bool

	// Budget is the total time the clock model measures against.
	Budget time.Duration

	// Now overrides time.Now for the clock model.
	Now func() time.Time
}

// DefaultOversearchConfig returns a static 50/50 configuration over an
// interval of 10 polls with no thresholds.
func DefaultOversearchConfig[T comparable]() OversearchConfig[T] {
	return OversearchConfig[T]{
		Interval:                   10,
		ExploitationShare:          0.5,
		ExploitationScoreThreshold: math.Inf(1),
	}
}

// Validate checks the configuration.
func (c OversearchConfig[T]) Validate() error {
	if c.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidOversearchConfig, c.Interval)
	}
	if c.ExploitationShare < 0 || c.ExploitationShare > 1 || math.IsNaN(c.ExploitationShare) {
		return fmt.Errorf("%w: exploitation share must be in [0,1], got %v", ErrInvalidOversearchConfig, c.ExploitationShare)
	}
	if c.ClockModel && c.Budget <= 0 {
		return fmt.Errorf("%w: clock model requires a positive budget", ErrInvalidOversearchConfig)
	}
	return nil
}

// Oversearch alternates between exploiting the best node and exploring
// uncertain nodes that are far from the solutions found so far.
//
// Each cycle has Interval polls. The first part of a cycle exploits, the
// rest explores; the split is fixed or recomputed at every cycle start by
// the clock model. The phase index advances on every successful Poll and
// wraps at Interval.
//
// Exploitation returns the best-scored node if its score is within the
// exploitation threshold and otherwise behaves like exploration.
// Exploration returns the eligible node with the highest uncertainty and
// otherwise falls back to the best-scored node.
type Oversearch[T comparable, A any] struct {
	cfg       OversearchConfig[T]
	base      *Priority[T, A]
	solutions []T

	started    time.Time
	phase      int
	cycle      int
	exploitLen int
	prepared   bool

	picks    [2]int
	lastMode Mode
}

// NewOversearch creates an Oversearch frontier.
func NewOversearch[T comparable, A any](cfg OversearchConfig[T]) (*Oversearch[T, A], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Oversearch[T, A]{
		cfg:  cfg,
		base: NewPriority[T, A](),
	}, nil
}

// Add implements Collection.
func (o *Oversearch[T, A]) Add(node *graph.Node[T, A]) error {
	return o.base.Add(node)
}

// Peek implements Collection. It does not advance the phase.
func (o *Oversearch[T, A]) Peek() (*graph.Node[T, A], bool) {
	if o.base.Len() == 0 {
		return nil, false
	}
	o.prepareCycle()
	return o.selectFor(o.currentMode()), true
}

// Poll implements Collection.
func (o *Oversearch[T, A]) Poll() (*graph.Node[T, A], bool) {
	if o.base.Len() == 0 {
		return nil, false
	}
	o.prepareCycle()
	mode := o.currentMode()
	node := o.selectFor(mode)
	o.base.Remove(node)

	o.picks[mode]++
	o.lastMode = mode
	o.phase++
	if o.phase >= o.cfg.Interval {
		o.phase = 0
		o.cycle++
		o.prepared = false
	}
	return node, true
}

// Remove implements Collection.
func (o *Oversearch[T, A]) Remove(node *graph.Node[T, A]) bool { return o.base.Remove(node) }

// Contains implements Collection.
func (o *Oversearch[T, A]) Contains(node *graph.Node[T, A]) bool { return o.base.Contains(node) }

// Len implements Collection.
func (o *Oversearch[T, A]) Len() int { return o.base.Len() }

// Nodes returns the open nodes in score order.
func (o *Oversearch[T, A]) Nodes() []*graph.Node[T, A] { return o.base.Nodes() }

// ReportSolution implements SolutionObserver.
func (o *Oversearch[T, A]) ReportSolution(solution graph.Solution[T, A]) {
	if last := solution.Path.Last(); last != nil {
		o.solutions = append(o.solutions, last.Label())
	}
}

// Phase returns the index within the current cycle.
func (o *Oversearch[T, A]) Phase() int { return o.phase }

// Cycle returns the number of completed cycles.
func (o *Oversearch[T, A]) Cycle() int { return o.cycle }

// Picks returns the number of polls made in each mode.
func (o *Oversearch[T, A]) Picks() (exploitation, exploration int) {
	return o.picks[ModeExploitation], o.picks[ModeExploration]
}

// LastMode returns the mode of the most recent Poll.
func (o *Oversearch[T, A]) LastMode() Mode { return o.lastMode }

func (o *Oversearch[T, A]) currentMode() Mode {
	if o.phase < o.exploitLen {
		return ModeExploitation
	}
	return ModeExploration
}

func (o *Oversearch[T, A]) prepareCycle() {
	if o.prepared {
		return
	}
	o.prepared = true
	share := o.cfg.ExploitationShare
	if o.cfg.ClockModel {
		now := o.cfg.Now()
		if o.started.IsZero() {
			o.started = now
		}
		share = float64(now.Sub(o.started)) / float64(o.cfg.Budget)
		share = math.Max(0, math.Min(1, share))
	}
	o.exploitLen = int(math.Floor(float64(o.cfg.Interval) * share))
}

func (o *Oversearch[T, A]) selectFor(mode Mode) *graph.Node[T, A] {
	if mode == ModeExploitation {
		if best, ok := o.base.Peek(); ok && best.Score() <= o.cfg.ExploitationScoreThreshold {
			return best
		}
	}
	if node := o.mostUncertain(); node != nil {
		return node
	}
	best, _ := o.base.Peek()
	return best
}

func (o *Oversearch[T, A]) eligibleForExploration(node *graph.Node[T, A]) bool {
	if node.UncertaintyOrNeutral() <= o.cfg.ExplorationUncertaintyThreshold {
		return false
	}
	if o.cfg.Distance == nil {
		return true
	}
	for _, sol := range o.solutions {
		if o.cfg.Distance(node.Label(), sol) <= o.cfg.MinSolutionDistance {
			return false
		}
	}
	return true
}

// mostUncertain returns the eligible node with maximal uncertainty; ties go
// to the node that comes first in score order.
func (o *Oversearch[T, A]) mostUncertain() *graph.Node[T, A] {
	var best *priorityEntry[T, A]
	bestU := math.Inf(-1)
	for _, e := range o.base.h.items {
		if !o.eligibleForExploration(e.node) {
			continue
		}
		u := e.node.UncertaintyOrNeutral()
		if best == nil || u > bestU || (u == bestU && o.base.h.before(e, best)) {
			best, bestU = e, u
		}
	}
	if best == nil {
		return nil
	}
	return best.node
}
