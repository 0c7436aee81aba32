// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package open

import (
	"container/heap"
	"sort"

	"github.com/AleutianAI/AleutianSearch/services/search/algorithm"
	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

type priorityEntry[T comparable, A any] struct {
	node  *graph.Node[T, A]
	seq   uint64
	index int
}

// priorityHeap implements heap.Interface over entries.
type priorityHeap[T comparable, A any] struct {
	items    []*priorityEntry[T, A]
	maximize bool
}

func (h *priorityHeap[T, A]) Len() int { return len(h.items) }

func (h *priorityHeap[T, A]) Less(i, j int) bool {
	return h.before(h.items[i], h.items[j])
}

// before orders by score, then by insertion sequence (FIFO).
func (h *priorityHeap[T, A]) before(a, b *priorityEntry[T, A]) bool {
	as, bs := a.node.Score(), b.node.Score()
	if as != bs {
		if h.maximize {
			return as > bs
		}
		return as < bs
	}
	return a.seq < b.seq
}

func (h *priorityHeap[T, A]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *priorityHeap[T, A]) Push(x any) {
	e := x.(*priorityEntry[T, A])
	e.index = len(h.items)
	h.items = append(h.items, e)
}

func (h *priorityHeap[T, A]) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	h.items = old[:n-1]
	return e
}

// Priority is the plain best-first frontier: a binary heap keyed by score
// with insertion order breaking ties. Add, Poll and Remove are O(log n).
type Priority[T comparable, A any] struct {
	h     *priorityHeap[T, A]
	index map[*graph.Node[T, A]]*priorityEntry[T, A]
	seq   uint64
}

// PriorityOption configures a Priority.
type PriorityOption[T comparable, A any] func(*Priority[T, A])

// WithMaximize orders highest score first.
func WithMaximize[T comparable, A any]() PriorityOption[T, A] {
	return func(p *Priority[T, A]) { p.h.maximize = true }
}

// NewPriority creates an empty priority frontier (lowest score first).
func NewPriority[T comparable, A any](opts ...PriorityOption[T, A]) *Priority[T, A] {
	p := &Priority[T, A]{
		h:     &priorityHeap[T, A]{},
		index: make(map[*graph.Node[T, A]]*priorityEntry[T, A]),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add implements Collection.
func (p *Priority[T, A]) Add(node *graph.Node[T, A]) error {
	if err := checkNode(node); err != nil {
		return err
	}
	if _, ok := p.index[node]; ok {
		return algorithm.Invariantf("node %v added twice", node.Label())
	}
	p.seq++
	e := &priorityEntry[T, A]{node: node, seq: p.seq}
	heap.Push(p.h, e)
	p.index[node] = e
	return nil
}

// Peek implements Collection.
func (p *Priority[T, A]) Peek() (*graph.Node[T, A], bool) {
	if len(p.h.items) == 0 {
		return nil, false
	}
	return p.h.items[0].node, true
}

// Poll implements Collection.
func (p *Priority[T, A]) Poll() (*graph.Node[T, A], bool) {
	if len(p.h.items) == 0 {
		return nil, false
	}
	e := heap.Pop(p.h).(*priorityEntry[T, A])
	delete(p.index, e.node)
	return e.node, true
}

// Remove implements Collection.
func (p *Priority[T, A]) Remove(node *graph.Node[T, A]) bool {
	e, ok := p.index[node]
	if !ok {
		return false
	}
	heap.Remove(p.h, e.index)
	delete(p.index, node)
	return true
}

// Contains implements Collection.
func (p *Priority[T, A]) Contains(node *graph.Node[T, A]) bool {
	_, ok := p.index[node]
	return ok
}

// Len implements Collection.
func (p *Priority[T, A]) Len() int { return len(p.h.items) }

// Nodes returns the open nodes in poll order.
func (p *Priority[T, A]) Nodes() []*graph.Node[T, A] {
	entries := make([]*priorityEntry[T, A], len(p.h.items))
	copy(entries, p.h.items)
	sort.Slice(entries, func(i, j int) bool { return p.h.before(entries[i], entries[j]) })
	out := make([]*graph.Node[T, A], len(entries))
	for i, e := range entries {
		out[i] = e.node
	}
	return out
}
