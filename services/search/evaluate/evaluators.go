// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluate

import (
	"context"
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

// DepthEvaluator scores a path by its edge count, turning best-first
// search into breadth-first order.
func DepthEvaluator[T comparable, A any]() graph.Evaluator[T, A] {
	return graph.EvaluatorFunc[T, A](func(_ context.Context, path graph.Path[T, A]) (graph.Evaluation, error) {
		return graph.Scored(float64(path.Edges())), nil
	})
}

// CostEvaluator scores a path by the summed cost of its actions (the
// g-cost), turning best-first search into uniform-cost search.
//
// Negative or NaN action costs are rejected.
func CostEvaluator[T comparable, A any](cost func(A) float64) graph.Evaluator[T, A] {
	return graph.EvaluatorFunc[T, A](func(_ context.Context, path graph.Path[T, A]) (graph.Evaluation, error) {
		g, err := pathCost(path, cost)
		if err != nil {
			return graph.Evaluation{}, err
		}
		return graph.Scored(g), nil
	})
}

// CostScorer is the PathScorer counterpart of CostEvaluator.
func CostScorer[T comparable, A any](cost func(A) float64) graph.PathScorer[T, A] {
	return graph.PathScorerFunc[T, A](func(_ context.Context, path graph.Path[T, A]) (float64, error) {
		return pathCost(path, cost)
	})
}

func pathCost[T comparable, A any](path graph.Path[T, A], cost func(A) float64) (float64, error) {
	var g float64
	for i, a := range path.Actions() {
		c := cost(a)
		if math.IsNaN(c) || c < 0 {
			return 0, fmt.Errorf("action %d has invalid cost %v", i, c)
		}
		g += c
	}
	return g, nil
}
