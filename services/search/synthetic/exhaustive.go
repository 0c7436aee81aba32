// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synthetic

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

// ErrDepthExceeded is returned by ExhaustiveBest when a path grows past
// maxDepth, which on a finite graph means it contains a cycle.
var ErrDepthExceeded = errors.New("exhaustive search depth exceeded")

// ExhaustiveBest enumerates every root-to-goal path depth first and returns
// the lowest-scoring one. Ties keep the first path found. Enumeration stops
// at a goal; goals are not expanded.
//
// Inputs:
//   - gen: The graph. Must be acyclic.
//   - scorer: Objective for complete paths.
//   - maxDepth: Edge limit guarding against cycles.
//
// Outputs:
//   - graph.Solution[T, A]: The best solution.
//   - bool: False if no goal is reachable.
//   - error: Generator, scorer or ErrDepthExceeded errors.
func ExhaustiveBest[T comparable, A any](
	ctx context.Context,
	gen graph.Generator[T, A],
	scorer graph.PathScorer[T, A],
	maxDepth int,
) (graph.Solution[T, A], bool, error) {
	var best graph.Solution[T, A]
	found := false

	var visit func(node *graph.Node[T, A]) error
	visit = func(node *graph.Node[T, A]) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := node.Path()
		if graph.IsGoal(gen, path) {
			score, err := scorer.ScorePath(ctx, path)
			if err != nil {
				return fmt.Errorf("score %s: %w", path, err)
			}
			if !found || score < best.Score {
				best = graph.Solution[T, A]{Path: path, Score: score}
				found = true
			}
			return nil
		}
		if node.Depth() >= maxDepth {
			return fmt.Errorf("%w: %s", ErrDepthExceeded, path)
		}
		succ, err := gen.Successors(ctx, node.Label())
		if err != nil {
			return err
		}
		for _, s := range succ {
			if err := visit(node.Child(s.Action, s.Label)); err != nil {
				return err
			}
		}
		return nil
	}

	roots, err := gen.Roots(ctx)
	if err != nil {
		return best, false, err
	}
	for _, r := range roots {
		if err := visit(graph.NewRoot[T, A](r)); err != nil {
			return best, false, err
		}
	}
	return best, found, nil
}
