// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package open provides the frontier (open list) disciplines used by
// best-first search.
//
// Three policies share the Collection interface:
//
//   - Priority: binary heap on (score, insertion order).
//   - Pareto: exposes only nodes that no other open node dominates on
//     (score, uncertainty), both minimized.
//   - Oversearch: alternates exploitation and exploration phases over a
//     fixed interval of polls.
//
// Collections are owned by one engine and are not safe for concurrent use.
package open

import (
	"fmt"
	"math"
	"strings"

	"github.com/AleutianAI/AleutianSearch/services/search/algorithm"
	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

// Collection is a frontier of discovered, not yet expanded nodes.
type Collection[T comparable, A any] interface {
	// Add inserts an evaluated node. NaN scores and duplicate inserts are
	// invariant violations.
	Add(node *graph.Node[T, A]) error

	// Peek returns the node Poll would return, without removing it.
	Peek() (*graph.Node[T, A], bool)

	// Poll removes and returns the next node per the policy.
	Poll() (*graph.Node[T, A], bool)

	// Remove deletes node. Returns false if it was not present.
	Remove(node *graph.Node[T, A]) bool

	// Contains reports membership by identity.
	Contains(node *graph.Node[T, A]) bool

	// Len returns the number of open nodes.
	Len() int

	// Nodes returns a snapshot of all open nodes.
	Nodes() []*graph.Node[T, A]
}

// SolutionObserver is implemented by collections whose selection depends
// on the solutions found so far. Engines call ReportSolution for every
// solution they emit.
type SolutionObserver[T comparable, A any] interface {
	ReportSolution(solution graph.Solution[T, A])
}

// Policy names a Collection implementation.
type Policy string

const (
	// PolicyPriority selects Priority.
	PolicyPriority Policy = "priority"

	// PolicyPareto selects Pareto.
	PolicyPareto Policy = "pareto"

	// PolicyOversearch selects Oversearch.
	PolicyOversearch Policy = "oversearch"
)

// ParsePolicy validates a policy name.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(name))); p {
	case PolicyPriority, PolicyPareto, PolicyOversearch:
		return p, nil
	case "":
		return PolicyPriority, nil
	default:
		return "", fmt.Errorf("unknown open policy %q", name)
	}
}

func checkNode[T comparable, A any](node *graph.Node[T, A]) error {
	if node == nil {
		return algorithm.Invariantf("nil node added to open collection")
	}
	if math.IsNaN(node.Score()) {
		return algorithm.Invariantf("node %v has NaN score", node.Label())
	}
	if u, ok := node.Uncertainty(); ok && math.IsNaN(u) {
		return algorithm.Invariantf("node %v has NaN uncertainty", node.Label())
	}
	return nil
}
