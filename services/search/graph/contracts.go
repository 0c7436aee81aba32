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

import "context"

// Successor is one outgoing edge produced by a Generator.
type Successor[T comparable, A any] struct {
	Action A
	Label  T
}

// Generator lazily describes the graph to search.
//
// Thread Safety: Implementations used with sampling evaluators must be safe
// for concurrent use, since rollouts call Successors from worker goroutines.
type Generator[T comparable, A any] interface {
	// Roots returns the labels of the root nodes.
	Roots(ctx context.Context) ([]T, error)

	// Successors returns the outgoing edges of label in a stable order.
	Successors(ctx context.Context, label T) ([]Successor[T, A], error)

	// IsGoal reports whether label is a goal.
	IsGoal(label T) bool
}

// PathGoalTester is an optional Generator extension whose goal test needs
// the whole path rather than the final label.
type PathGoalTester[T comparable, A any] interface {
	IsGoalPath(path Path[T, A]) bool
}

// IsGoal applies the generator's goal test to path, preferring
// PathGoalTester when implemented.
func IsGoal[T comparable, A any](gen Generator[T, A], path Path[T, A]) bool {
	if tester, ok := gen.(PathGoalTester[T, A]); ok {
		return tester.IsGoalPath(path)
	}
	last := path.Last()
	if last == nil {
		return false
	}
	return gen.IsGoal(last.Label())
}

// Evaluation is the result of evaluating a path.
type Evaluation struct {
	// Score is the f-value. Lower is better unless an engine is
	// configured to maximize.
	Score float64

	// Uncertainty is meaningful only when HasUncertainty is set.
	Uncertainty    float64
	HasUncertainty bool

	// Pruned requests that the node be dropped.
	Pruned bool
}

// Scored returns an evaluation with the given score.
func Scored(score float64) Evaluation {
	return Evaluation{Score: score}
}

// ScoredWithUncertainty returns an evaluation with score and uncertainty.
func ScoredWithUncertainty(score, uncertainty float64) Evaluation {
	return Evaluation{Score: score, Uncertainty: uncertainty, HasUncertainty: true}
}

// Prune returns the prune signal.
func Prune() Evaluation {
	return Evaluation{Pruned: true}
}

// Evaluator maps a partial path to an Evaluation.
//
// Evaluate may be expensive and must honor ctx cancellation. A returned
// error is treated by engines as a prune of the node, unless it wraps an
// invariant violation.
type Evaluator[T comparable, A any] interface {
	Evaluate(ctx context.Context, path Path[T, A]) (Evaluation, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc[T comparable, A any] func(ctx context.Context, path Path[T, A]) (Evaluation, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc[T, A]) Evaluate(ctx context.Context, path Path[T, A]) (Evaluation, error) {
	return f(ctx, path)
}

// SolutionSink receives solutions discovered outside the main traversal.
type SolutionSink[T comparable, A any] func(Solution[T, A])

// SolutionReporter is implemented by evaluators that may complete solutions
// while evaluating (for example by random rollouts). Engines install a sink
// at construction time.
type SolutionReporter[T comparable, A any] interface {
	SetSolutionSink(sink SolutionSink[T, A])
}

// PathScorer scores complete paths. It is the objective function used by
// sampling evaluators and by tree search rollouts.
type PathScorer[T comparable, A any] interface {
	ScorePath(ctx context.Context, path Path[T, A]) (float64, error)
}

// PathScorerFunc adapts a function to PathScorer.
type PathScorerFunc[T comparable, A any] func(ctx context.Context, path Path[T, A]) (float64, error)

// ScorePath implements PathScorer.
func (f PathScorerFunc[T, A]) ScorePath(ctx context.Context, path Path[T, A]) (float64, error) {
	return f(ctx, path)
}
