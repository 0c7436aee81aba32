// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algorithm

import (
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

// Kind identifies the concrete type of an Event.
type Kind int

const (
	// KindGraphInitialized is emitted once when roots enter the frontier.
	KindGraphInitialized Kind = iota

	// KindNodesExpanded is emitted when a node's successors are evaluated.
	KindNodesExpanded

	// KindSolutionFound is emitted for every solution candidate.
	KindSolutionFound

	// KindRolloutCompleted is emitted by tree search after an iteration
	// that did not reach a goal.
	KindRolloutCompleted

	// KindFinished is the final event of every run.
	KindFinished
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindGraphInitialized:
		return "graph_initialized"
	case KindNodesExpanded:
		return "nodes_expanded"
	case KindSolutionFound:
		return "solution_found"
	case KindRolloutCompleted:
		return "rollout_completed"
	case KindFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// FinishReason explains why a run ended.
type FinishReason int

const (
	// FinishExhausted means the frontier ran empty.
	FinishExhausted FinishReason = iota

	// FinishBudget means an iteration budget was consumed.
	FinishBudget

	// FinishCanceled means Cancel was called or the driver context ended.
	FinishCanceled

	// FinishTimeout means the deadline passed.
	FinishTimeout

	// FinishFailed means a fatal error stopped the run.
	FinishFailed
)

// String returns the string representation of the reason.
func (r FinishReason) String() string {
	switch r {
	case FinishExhausted:
		return "exhausted"
	case FinishBudget:
		return "budget"
	case FinishCanceled:
		return "canceled"
	case FinishTimeout:
		return "timeout"
	case FinishFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Header carries the fields common to every event.
type Header struct {
	AlgorithmID string
	Step        int
	Timestamp   time.Time
}

// Meta returns the header. Promoted to every event type.
func (h Header) Meta() Header { return h }

// Event is the closed union of algorithm events.
//
// The set of implementations is fixed by this package; subscribers switch
// over the concrete types:
//
//	switch e := ev.(type) {
//	case algorithm.GraphInitialized[T, A]:
//	case algorithm.NodesExpanded[T, A]:
//	case algorithm.SolutionFound[T, A]:
//	case algorithm.RolloutCompleted[T, A]:
//	case algorithm.Finished[T, A]:
//	}
type Event[T comparable, A any] interface {
	Kind() Kind
	Meta() Header
	isEvent()
}

// GraphInitialized reports the root nodes placed in the frontier.
type GraphInitialized[T comparable, A any] struct {
	Header
	Roots []*graph.Node[T, A]
}

// Kind implements Event.
func (GraphInitialized[T, A]) Kind() Kind { return KindGraphInitialized }
func (GraphInitialized[T, A]) isEvent()   {}

// NodesExpanded reports the children inserted after expanding Parent.
type NodesExpanded[T comparable, A any] struct {
	Header
	Parent   *graph.Node[T, A]
	Children []*graph.Node[T, A]

	// Pruned counts successors dropped by the evaluator or by parent
	// discarding.
	Pruned int
}

// Kind implements Event.
func (NodesExpanded[T, A]) Kind() Kind { return KindNodesExpanded }
func (NodesExpanded[T, A]) isEvent()   {}

// SolutionFound reports a solution candidate.
type SolutionFound[T comparable, A any] struct {
	Header
	Solution graph.Solution[T, A]

	// Improved is set when the solution became the new incumbent.
	Improved bool
}

// Kind implements Event.
func (SolutionFound[T, A]) Kind() Kind { return KindSolutionFound }
func (SolutionFound[T, A]) isEvent()   {}

// RolloutCompleted reports one tree-search iteration.
type RolloutCompleted[T comparable, A any] struct {
	Header
	Iteration int
	Path      graph.Path[T, A]
	Reward    float64

	// Failed is set when the reward could not be computed; no statistics
	// were updated.
	Failed bool
}

// Kind implements Event.
func (RolloutCompleted[T, A]) Kind() Kind { return KindRolloutCompleted }
func (RolloutCompleted[T, A]) isEvent()   {}

// Finished is the last event of a run.
type Finished[T comparable, A any] struct {
	Header
	Reason FinishReason

	// Err is the failure for canceled, timed-out and failed runs.
	Err error
}

// Kind implements Event.
func (Finished[T, A]) Kind() Kind { return KindFinished }
func (Finished[T, A]) isEvent()   {}
