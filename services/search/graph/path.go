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
	"fmt"
	"strings"
)

// Path is the ordered sequence of nodes from a root to a node.
//
// Paths are derived values; the zero Path is empty.
type Path[T comparable, A any] struct {
	nodes []*Node[T, A]
}

// PathOf builds a path from an explicit node sequence.
//
// Used by evaluators that extend a path with sampled nodes that never enter
// the search tree.
func PathOf[T comparable, A any](nodes ...*Node[T, A]) Path[T, A] {
	cp := make([]*Node[T, A], len(nodes))
	copy(cp, nodes)
	return Path[T, A]{nodes: cp}
}

// Nodes returns a copy of the node sequence.
func (p Path[T, A]) Nodes() []*Node[T, A] {
	out := make([]*Node[T, A], len(p.nodes))
	copy(out, p.nodes)
	return out
}

// Len returns the number of nodes.
func (p Path[T, A]) Len() int { return len(p.nodes) }

// Edges returns the number of edges (Len - 1, or 0 for an empty path).
func (p Path[T, A]) Edges() int {
	if len(p.nodes) == 0 {
		return 0
	}
	return len(p.nodes) - 1
}

// Node returns the i-th node.
func (p Path[T, A]) Node(i int) *Node[T, A] { return p.nodes[i] }

// Last returns the final node, or nil for an empty path.
func (p Path[T, A]) Last() *Node[T, A] {
	if len(p.nodes) == 0 {
		return nil
	}
	return p.nodes[len(p.nodes)-1]
}

// Labels returns the external labels in path order.
func (p Path[T, A]) Labels() []T {
	out := make([]T, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.label
	}
	return out
}

// Actions returns the actions along the path (one per edge).
func (p Path[T, A]) Actions() []A {
	if len(p.nodes) < 2 {
		return nil
	}
	out := make([]A, 0, len(p.nodes)-1)
	for _, n := range p.nodes[1:] {
		out = append(out, n.action)
	}
	return out
}

// IndexOf returns the position of node in p by identity, or -1.
func (p Path[T, A]) IndexOf(node *Node[T, A]) int {
	for i, n := range p.nodes {
		if n == node {
			return i
		}
	}
	return -1
}

// Contains reports whether node appears in p (by identity).
func (p Path[T, A]) Contains(node *Node[T, A]) bool {
	return p.IndexOf(node) >= 0
}

// Extend returns a new path with node appended. p is not modified.
func (p Path[T, A]) Extend(node *Node[T, A]) Path[T, A] {
	out := make([]*Node[T, A], len(p.nodes)+1)
	copy(out, p.nodes)
	out[len(p.nodes)] = node
	return Path[T, A]{nodes: out}
}

// String renders the labels joined by arrows.
func (p Path[T, A]) String() string {
	parts := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		parts[i] = fmt.Sprintf("%v", n.label)
	}
	return strings.Join(parts, " -> ")
}

// Key identifies the path by its label and action sequence. Paths built
// from different nodes share a key when the sequences match.
func (p Path[T, A]) Key() string {
	var b strings.Builder
	for i, n := range p.nodes {
		if i > 0 {
			fmt.Fprintf(&b, "\x1f%v\x1e", n.action)
		}
		fmt.Fprintf(&b, "%v", n.label)
	}
	return b.String()
}

// Solution is a complete root-to-goal path with its score.
type Solution[T comparable, A any] struct {
	Path  Path[T, A]
	Score float64
}
