// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
	"math"
)

// ErrAlreadyEvaluated is returned when a node is annotated twice.
var ErrAlreadyEvaluated = errors.New("node already evaluated")

// ErrNaNScore is returned when an evaluation carries a NaN score.
var ErrNaNScore = errors.New("score is NaN")

// NeutralUncertainty is the uncertainty assumed when none is known.
const NeutralUncertainty = 1.0

// Node is one vertex of a search tree.
//
// T is the external label (domain state) and A the action type of the
// generator's edges. Label, action, parent and depth are fixed at creation.
//
// Thread Safety: Immutable fields are safe to read concurrently. Annotate
// must only be called by the owning engine before the node is shared.
type Node[T comparable, A any] struct {
	label     T
	action    A
	hasAction bool
	parent    *Node[T, A]
	depth     int

	evaluated  bool
	evaluation Evaluation
	goal       bool
}

// NewRoot creates a root node for the given label.
func NewRoot[T comparable, A any](label T) *Node[T, A] {
	return &Node[T, A]{label: label}
}

// Child creates a new node reached from n through action.
//
// Inputs:
//   - action: The generator action leading to the child.
//   - label: The child's external label.
//
// Outputs:
//   - *Node[T, A]: The unevaluated child. n is not modified.
func (n *Node[T, A]) Child(action A, label T) *Node[T, A] {
	return &Node[T, A]{
		label:     label,
		action:    action,
		hasAction: true,
		parent:    n,
		depth:     n.depth + 1,
	}
}

// Label returns the external label.
func (n *Node[T, A]) Label() T { return n.label }

// Action returns the action leading to n. ok is false for roots.
func (n *Node[T, A]) Action() (action A, ok bool) { return n.action, n.hasAction }

// Parent returns the parent node, or nil for a root.
func (n *Node[T, A]) Parent() *Node[T, A] { return n.parent }

// Depth returns the number of edges between n and its root.
func (n *Node[T, A]) Depth() int { return n.depth }

// IsRoot reports whether n has no parent.
func (n *Node[T, A]) IsRoot() bool { return n.parent == nil }

// Root walks the parent chain to the root.
func (n *Node[T, A]) Root() *Node[T, A] {
	cur := n
	for i := 0; i < n.depth && cur.parent != nil; i++ {
		cur = cur.parent
	}
	return cur
}

// Annotate records the node's evaluation and goal flag.
//
// Inputs:
//   - eval: A non-pruned evaluation.
//   - goal: Whether the node's label satisfies the goal test.
//
// Outputs:
//   - error: ErrAlreadyEvaluated on a second call, ErrNaNScore if the score
//     is NaN.
func (n *Node[T, A]) Annotate(eval Evaluation, goal bool) error {
	if n.evaluated {
		return ErrAlreadyEvaluated
	}
	if math.IsNaN(eval.Score) {
		return ErrNaNScore
	}
	n.evaluation = eval
	n.evaluated = true
	n.goal = goal
	return nil
}

// Evaluated reports whether Annotate has been called.
func (n *Node[T, A]) Evaluated() bool { return n.evaluated }

// Score returns the f-value. Zero until evaluated.
func (n *Node[T, A]) Score() float64 { return n.evaluation.Score }

// Uncertainty returns the evaluator's uncertainty, if any.
func (n *Node[T, A]) Uncertainty() (float64, bool) {
	return n.evaluation.Uncertainty, n.evaluation.HasUncertainty
}

// UncertaintyOrNeutral returns the uncertainty or NeutralUncertainty.
func (n *Node[T, A]) UncertaintyOrNeutral() float64 {
	if n.evaluation.HasUncertainty {
		return n.evaluation.Uncertainty
	}
	return NeutralUncertainty
}

// IsGoal reports the goal flag recorded by Annotate.
func (n *Node[T, A]) IsGoal() bool { return n.goal }

// Path returns the root-to-n path.
func (n *Node[T, A]) Path() Path[T, A] {
	nodes := make([]*Node[T, A], n.depth+1)
	cur := n
	for i := n.depth; i >= 0; i-- {
		nodes[i] = cur
		if i > 0 {
			cur = cur.parent
		}
	}
	return Path[T, A]{nodes: nodes}
}

// String renders the label and score.
func (n *Node[T, A]) String() string {
	if !n.evaluated {
		return fmt.Sprintf("%v", n.label)
	}
	return fmt.Sprintf("%v(f=%g)", n.label, n.evaluation.Score)
}
