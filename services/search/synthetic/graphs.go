// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synthetic provides small deterministic graphs for exercising the
// search engines, and a brute-force reference solver.
//
// Every graph is read-only after construction and safe for concurrent use.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

// ErrInvalidShape is returned for bad graph parameters.
var ErrInvalidShape = errors.New("invalid graph shape")

// Edge is the action type of synthetic graphs.
type Edge[T comparable] struct {
	From   T
	To     T
	Weight float64
}

// String renders the edge.
func (e Edge[T]) String() string {
	return fmt.Sprintf("%v->%v(%g)", e.From, e.To, e.Weight)
}

// Graph is an explicit weighted digraph implementing graph.Generator with
// Edge actions.
type Graph[T comparable] struct {
	roots []T
	goals map[T]bool
	adj   map[T][]Edge[T]
	nodes []T
}

// NewGraph builds a graph. Successors keep the order edges are given in.
func NewGraph[T comparable](roots []T, goals []T, edges ...Edge[T]) *Graph[T] {
	g := &Graph[T]{
		roots: append([]T(nil), roots...),
		goals: make(map[T]bool, len(goals)),
		adj:   make(map[T][]Edge[T]),
	}
	seen := make(map[T]bool)
	add := func(label T) {
		if !seen[label] {
			seen[label] = true
			g.nodes = append(g.nodes, label)
		}
	}
	for _, r := range roots {
		add(r)
	}
	for _, goal := range goals {
		g.goals[goal] = true
		add(goal)
	}
	for _, e := range edges {
		g.adj[e.From] = append(g.adj[e.From], e)
		add(e.From)
		add(e.To)
	}
	return g
}

// Roots implements graph.Generator.
func (g *Graph[T]) Roots(_ context.Context) ([]T, error) {
	return append([]T(nil), g.roots...), nil
}

// Successors implements graph.Generator.
func (g *Graph[T]) Successors(ctx context.Context, label T) ([]graph.Successor[T, Edge[T]], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	edges := g.adj[label]
	out := make([]graph.Successor[T, Edge[T]], len(edges))
	for i, e := range edges {
		out[i] = graph.Successor[T, Edge[T]]{Action: e, Label: e.To}
	}
	return out, nil
}

// IsGoal implements graph.Generator.
func (g *Graph[T]) IsGoal(label T) bool { return g.goals[label] }

// Nodes returns every label in first-seen order.
func (g *Graph[T]) Nodes() []T { return append([]T(nil), g.nodes...) }

// EdgeCount returns the number of edges.
func (g *Graph[T]) EdgeCount() int {
	n := 0
	for _, edges := range g.adj {
		n += len(edges)
	}
	return n
}

// Diamond returns A->B, A->C, B->D, C->D with root A and goal D. The path
// through B costs 2 and the path through C costs 3.
func Diamond() *Graph[string] {
	return NewGraph([]string{"A"}, []string{"D"},
		Edge[string]{From: "A", To: "B", Weight: 1},
		Edge[string]{From: "A", To: "C", Weight: 1},
		Edge[string]{From: "B", To: "D", Weight: 1},
		Edge[string]{From: "C", To: "D", Weight: 2},
	)
}

// Tree returns a balanced tree with the given branching factor and depth.
// Labels are breadth-first indices starting at 0 for the root; the leaves
// are the goals. Edge weights are 1.
func Tree(branching, depth int) (*Graph[int], error) {
	if branching < 1 || depth < 0 {
		return nil, fmt.Errorf("%w: branching %d depth %d", ErrInvalidShape, branching, depth)
	}
	var edges []Edge[int]
	level := []int{0}
	next := 1
	for d := 0; d < depth; d++ {
		var children []int
		for _, parent := range level {
			for b := 0; b < branching; b++ {
				edges = append(edges, Edge[int]{From: parent, To: next, Weight: 1})
				children = append(children, next)
				next++
			}
		}
		level = children
	}
	return NewGraph([]int{0}, level, edges...), nil
}

// DAGConfig configures RandomDAG.
type DAGConfig struct {
	// Nodes is the number of vertices, labeled 0..Nodes-1.
	Nodes int

	// EdgeProbability is the chance of an edge i->j for every i < j.
	EdgeProbability float64

	// MaxWeight bounds edge weights, drawn uniformly from [1, MaxWeight].
	MaxWeight float64

	// Seed makes the graph reproducible.
	Seed int64
}

// RandomDAG returns a seeded weighted DAG with root 0 and goal Nodes-1.
// Every non-sink vertex gets at least one outgoing edge, so the goal is
// reachable from the root.
func RandomDAG(cfg DAGConfig) (*Graph[int], error) {
	if cfg.Nodes < 2 {
		return nil, fmt.Errorf("%w: need at least 2 nodes, got %d", ErrInvalidShape, cfg.Nodes)
	}
	if cfg.EdgeProbability < 0 || cfg.EdgeProbability > 1 {
		return nil, fmt.Errorf("%w: edge probability %v", ErrInvalidShape, cfg.EdgeProbability)
	}
	if cfg.MaxWeight < 1 {
		cfg.MaxWeight = 1
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	weight := func() float64 { return 1 + rng.Float64()*(cfg.MaxWeight-1) }

	var edges []Edge[int]
	for i := 0; i < cfg.Nodes-1; i++ {
		out := 0
		for j := i + 1; j < cfg.Nodes; j++ {
			if rng.Float64() < cfg.EdgeProbability {
				edges = append(edges, Edge[int]{From: i, To: j, Weight: weight()})
				out++
			}
		}
		if out == 0 {
			edges = append(edges, Edge[int]{From: i, To: i + 1, Weight: weight()})
		}
	}
	return NewGraph([]int{0}, []int{cfg.Nodes - 1}, edges...), nil
}

// EdgeWeight is the cost function of Edge actions.
func EdgeWeight[T comparable](e Edge[T]) float64 { return e.Weight }

// IntDistance is the absolute label difference, a DistanceFunc for int
// labeled graphs.
func IntDistance(a, b int) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}
