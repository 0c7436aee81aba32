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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

func costScorer[T comparable]() graph.PathScorer[T, Edge[T]] {
	return graph.PathScorerFunc[T, Edge[T]](func(_ context.Context, p graph.Path[T, Edge[T]]) (float64, error) {
		var sum float64
		for _, e := range p.Actions() {
			sum += e.Weight
		}
		return sum, nil
	})
}

func TestDiamond(t *testing.T) {
	g := Diamond()
	ctx := context.Background()

	roots, err := g.Roots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, roots)

	succ, err := g.Successors(ctx, "A")
	require.NoError(t, err)
	var labels []string
	for _, s := range succ {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []string{"B", "C"}, labels)

	assert.True(t, g.IsGoal("D"))
	assert.False(t, g.IsGoal("A"))
	assert.Equal(t, 4, g.EdgeCount())
	if diff := cmp.Diff([]string{"A", "D", "B", "C"}, g.Nodes()); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestTree(t *testing.T) {
	tests := []struct {
		name      string
		branching int
		depth     int
		edges     int
		leaves    int
	}{
		{name: "root only", branching: 2, depth: 0, edges: 0, leaves: 1},
		{name: "binary depth 3", branching: 2, depth: 3, edges: 14, leaves: 8},
		{name: "ternary depth 2", branching: 3, depth: 2, edges: 12, leaves: 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Tree(tt.branching, tt.depth)
			require.NoError(t, err)
			assert.Equal(t, tt.edges, g.EdgeCount())
			leaves := 0
			for _, n := range g.Nodes() {
				if g.IsGoal(n) {
					leaves++
				}
			}
			assert.Equal(t, tt.leaves, leaves)
		})
	}

	_, err := Tree(0, 2)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestRandomDAG_DeterministicAndAcyclic(t *testing.T) {
	cfg := DAGConfig{Nodes: 12, EdgeProbability: 0.3, MaxWeight: 5, Seed: 42}
	a, err := RandomDAG(cfg)
	require.NoError(t, err)
	b, err := RandomDAG(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < cfg.Nodes; i++ {
		sa, err := a.Successors(ctx, i)
		require.NoError(t, err)
		sb, err := b.Successors(ctx, i)
		require.NoError(t, err)
		if diff := cmp.Diff(sa, sb); diff != "" {
			t.Fatalf("successors of %d differ (-a +b):\n%s", i, diff)
		}
		for _, s := range sa {
			assert.Greater(t, s.Label, i, "edges must point forward")
			assert.GreaterOrEqual(t, s.Action.Weight, 1.0)
			assert.LessOrEqual(t, s.Action.Weight, 5.0)
		}
		if i < cfg.Nodes-1 {
			assert.NotEmpty(t, sa, "node %d has no successor", i)
		}
	}
}

func TestRandomDAG_RejectsBadShape(t *testing.T) {
	_, err := RandomDAG(DAGConfig{Nodes: 1})
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = RandomDAG(DAGConfig{Nodes: 5, EdgeProbability: 1.5})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestExhaustiveBest_Diamond(t *testing.T) {
	sol, ok, err := ExhaustiveBest[string, Edge[string]](context.Background(), Diamond(), costScorer[string](), 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "D"}, sol.Path.Labels())
	assert.Equal(t, 2.0, sol.Score)
}

func TestExhaustiveBest_NoGoal(t *testing.T) {
	g := NewGraph([]string{"a"}, nil, Edge[string]{From: "a", To: "b", Weight: 1})
	_, ok, err := ExhaustiveBest[string, Edge[string]](context.Background(), g, costScorer[string](), 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExhaustiveBest_DetectsCycle(t *testing.T) {
	g := NewGraph([]string{"a"}, []string{"z"},
		Edge[string]{From: "a", To: "b", Weight: 1},
		Edge[string]{From: "b", To: "a", Weight: 1},
	)
	_, _, err := ExhaustiveBest[string, Edge[string]](context.Background(), g, costScorer[string](), 8)
	assert.True(t, errors.Is(err, ErrDepthExceeded))
}

func TestIntDistance(t *testing.T) {
	assert.Equal(t, 3.0, IntDistance(2, 5))
	assert.Equal(t, 3.0, IntDistance(5, 2))
	assert.Equal(t, 0.0, IntDistance(4, 4))
}
