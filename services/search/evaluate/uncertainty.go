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
	"math"

	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

// Sample is one completed rollout and its score.
type Sample[T comparable, A any] struct {
	Path  graph.Path[T, A]
	Score float64
}

// UncertaintySource derives a node's uncertainty from rollouts.
type UncertaintySource[T comparable, A any] interface {
	Uncertainty(node *graph.Node[T, A], samples []Sample[T, A]) float64
}

// RolloutUncertainty multiplies DepthFactor by VariationFactor. Both
// default to graph.NeutralUncertainty when data is insufficient.
type RolloutUncertainty[T comparable, A any] struct{}

// Uncertainty implements UncertaintySource.
func (RolloutUncertainty[T, A]) Uncertainty(node *graph.Node[T, A], samples []Sample[T, A]) float64 {
	return DepthFactor(node, samples) * VariationFactor(samples)
}

// DepthFactor is the mean, over rollouts passing through node, of the
// share of the rollout that lies after node: (edges after node) / (total
// edges). Node membership is by identity. Returns 1.0 when no rollout
// passes through node.
func DepthFactor[T comparable, A any](node *graph.Node[T, A], samples []Sample[T, A]) float64 {
	var sum float64
	var n int
	for _, s := range samples {
		idx := s.Path.IndexOf(node)
		if idx < 0 {
			continue
		}
		n++
		total := s.Path.Edges()
		if total == 0 {
			continue
		}
		sum += float64(total-idx) / float64(total)
	}
	if n == 0 {
		return graph.NeutralUncertainty
	}
	return sum / float64(n)
}

// VariationFactor is the coefficient of variation of the finite sample
// scores (sample standard deviation over mean, absolute value), capped at
// 1.0. Returns 1.0 with fewer than two finite scores or a zero mean.
func VariationFactor[T comparable, A any](samples []Sample[T, A]) float64 {
	scores := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !math.IsNaN(s.Score) && !math.IsInf(s.Score, 0) {
			scores = append(scores, s.Score)
		}
	}
	if len(scores) < 2 {
		return graph.NeutralUncertainty
	}

	var mean float64
	for _, x := range scores {
		mean += x
	}
	mean /= float64(len(scores))
	if mean == 0 {
		return graph.NeutralUncertainty
	}

	var ss float64
	for _, x := range scores {
		ss += (x - mean) * (x - mean)
	}
	sd := math.Sqrt(ss / float64(len(scores)-1))
	return math.Min(1, math.Abs(sd/mean))
}
