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
	"sort"

	"github.com/AleutianAI/AleutianSearch/services/search/algorithm"
	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

// Dominates reports whether candidate p dominates candidate q when both
// score and uncertainty are minimized: p is no worse on both dimensions and
// strictly better on at least one.
func Dominates(pScore, pUncertainty, qScore, qUncertainty float64) bool {
	if pScore > qScore || pUncertainty > qUncertainty {
		return false
	}
	return pScore < qScore || pUncertainty < qUncertainty
}

// Ranked pairs an open node with its insertion sequence for frontier
// ordering.
type Ranked[T comparable, A any] struct {
	Node *graph.Node[T, A]
	Seq  uint64
}

// FrontierOrder reports whether a should be polled before b.
type FrontierOrder[T comparable, A any] func(a, b Ranked[T, A]) bool

// FIFOOrder polls maximal nodes in insertion order.
func FIFOOrder[T comparable, A any]() FrontierOrder[T, A] {
	return func(a, b Ranked[T, A]) bool { return a.Seq < b.Seq }
}

// ScoreOrder polls maximal nodes by score, then insertion order.
func ScoreOrder[T comparable, A any]() FrontierOrder[T, A] {
	return func(a, b Ranked[T, A]) bool {
		if a.Node.Score() != b.Node.Score() {
			return a.Node.Score() < b.Node.Score()
		}
		return a.Seq < b.Seq
	}
}

type paretoEntry[T comparable, A any] struct {
	node        *graph.Node[T, A]
	seq         uint64
	score       float64
	uncertainty float64
	dominates   map[*paretoEntry[T, A]]struct{}
	dominatedBy map[*paretoEntry[T, A]]struct{}
	inFrontier  bool
}

func (e *paretoEntry[T, A]) ranked() Ranked[T, A] {
	return Ranked[T, A]{Node: e.node, Seq: e.seq}
}

// Pareto is a frontier that only exposes non-dominated nodes.
//
// All open nodes are kept in insertion order; a second queue holds the
// maximal subset ordered by a FrontierOrder. Nodes without uncertainty are
// compared using graph.NeutralUncertainty.
//
// Add and Remove are O(|open|) because every insertion compares the new node
// against every open node.
type Pareto[T comparable, A any] struct {
	open     []*paretoEntry[T, A]
	byNode   map[*graph.Node[T, A]]*paretoEntry[T, A]
	frontier []*paretoEntry[T, A]
	order    FrontierOrder[T, A]
	seq      uint64
}

// ParetoOption configures a Pareto.
type ParetoOption[T comparable, A any] func(*Pareto[T, A])

// WithFrontierOrder replaces the default FIFO order among maximal nodes.
func WithFrontierOrder[T comparable, A any](order FrontierOrder[T, A]) ParetoOption[T, A] {
	return func(p *Pareto[T, A]) {
		if order != nil {
			p.order = order
		}
	}
}

// NewPareto creates an empty Pareto frontier.
func NewPareto[T comparable, A any](opts ...ParetoOption[T, A]) *Pareto[T, A] {
	p := &Pareto[T, A]{
		byNode: make(map[*graph.Node[T, A]]*paretoEntry[T, A]),
		order:  FIFOOrder[T, A](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add implements Collection.
func (p *Pareto[T, A]) Add(node *graph.Node[T, A]) error {
	if err := checkNode(node); err != nil {
		return err
	}
	if _, ok := p.byNode[node]; ok {
		return algorithm.Invariantf("node %v added twice", node.Label())
	}

	p.seq++
	n := &paretoEntry[T, A]{
		node:        node,
		seq:         p.seq,
		score:       node.Score(),
		uncertainty: node.UncertaintyOrNeutral(),
		dominates:   make(map[*paretoEntry[T, A]]struct{}),
		dominatedBy: make(map[*paretoEntry[T, A]]struct{}),
	}

	for _, q := range p.open {
		switch {
		case Dominates(n.score, n.uncertainty, q.score, q.uncertainty):
			n.dominates[q] = struct{}{}
			q.dominatedBy[n] = struct{}{}
			if q.inFrontier {
				p.dropFromFrontier(q)
			}
		case Dominates(q.score, q.uncertainty, n.score, n.uncertainty):
			q.dominates[n] = struct{}{}
			n.dominatedBy[q] = struct{}{}
		}
	}

	p.open = append(p.open, n)
	p.byNode[node] = n
	if len(n.dominatedBy) == 0 {
		p.pushFrontier(n)
	}
	return nil
}

// Peek implements Collection.
func (p *Pareto[T, A]) Peek() (*graph.Node[T, A], bool) {
	if len(p.frontier) == 0 {
		return nil, false
	}
	return p.frontier[0].node, true
}

// Poll implements Collection.
func (p *Pareto[T, A]) Poll() (*graph.Node[T, A], bool) {
	if len(p.frontier) == 0 {
		return nil, false
	}
	node := p.frontier[0].node
	p.Remove(node)
	return node, true
}

// Remove implements Collection. Nodes that only node dominated become
// maximal again.
func (p *Pareto[T, A]) Remove(node *graph.Node[T, A]) bool {
	n, ok := p.byNode[node]
	if !ok {
		return false
	}
	delete(p.byNode, node)
	for i, e := range p.open {
		if e == n {
			p.open = append(p.open[:i], p.open[i+1:]...)
			break
		}
	}
	if n.inFrontier {
		p.dropFromFrontier(n)
	}

	for q := range n.dominatedBy {
		delete(q.dominates, n)
	}
	// Re-admit in insertion order so equal-ranked nodes keep FIFO order.
	released := make([]*paretoEntry[T, A], 0, len(n.dominates))
	for d := range n.dominates {
		delete(d.dominatedBy, n)
		if len(d.dominatedBy) == 0 && !d.inFrontier {
			released = append(released, d)
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i].seq < released[j].seq })
	for _, d := range released {
		p.pushFrontier(d)
	}
	return true
}

// Contains implements Collection.
func (p *Pareto[T, A]) Contains(node *graph.Node[T, A]) bool {
	_, ok := p.byNode[node]
	return ok
}

// Len implements Collection.
func (p *Pareto[T, A]) Len() int { return len(p.open) }

// Nodes returns all open nodes in insertion order.
func (p *Pareto[T, A]) Nodes() []*graph.Node[T, A] {
	out := make([]*graph.Node[T, A], len(p.open))
	for i, e := range p.open {
		out[i] = e.node
	}
	return out
}

// Frontier returns the maximal nodes in poll order.
func (p *Pareto[T, A]) Frontier() []*graph.Node[T, A] {
	out := make([]*graph.Node[T, A], len(p.frontier))
	for i, e := range p.frontier {
		out[i] = e.node
	}
	return out
}

// DominatedBy returns the open nodes that dominate node.
func (p *Pareto[T, A]) DominatedBy(node *graph.Node[T, A]) []*graph.Node[T, A] {
	n, ok := p.byNode[node]
	if !ok {
		return nil
	}
	return p.sortedNodes(n.dominatedBy)
}

// DominatedNodes returns the open nodes that node dominates.
func (p *Pareto[T, A]) DominatedNodes(node *graph.Node[T, A]) []*graph.Node[T, A] {
	n, ok := p.byNode[node]
	if !ok {
		return nil
	}
	return p.sortedNodes(n.dominates)
}

func (p *Pareto[T, A]) sortedNodes(set map[*paretoEntry[T, A]]struct{}) []*graph.Node[T, A] {
	entries := make([]*paretoEntry[T, A], 0, len(set))
	for e := range set {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]*graph.Node[T, A], len(entries))
	for i, e := range entries {
		out[i] = e.node
	}
	return out
}

// CheckInvariants verifies the dominance bookkeeping.
//
// The relation must be irreflexive, asymmetric and transitive, must agree
// with Dominates on the stored values, and a node must be in the frontier
// exactly when nothing dominates it.
//
// Outputs:
//   - error: wraps algorithm.ErrInvariant on the first violation found.
func (p *Pareto[T, A]) CheckInvariants() error {
	members := make(map[*paretoEntry[T, A]]bool, len(p.open))
	for _, e := range p.open {
		members[e] = true
	}
	inFrontier := make(map[*paretoEntry[T, A]]bool, len(p.frontier))
	for _, e := range p.frontier {
		if !members[e] {
			return algorithm.Invariantf("frontier node %v is not open", e.node.Label())
		}
		inFrontier[e] = true
	}

	for _, e := range p.open {
		if _, self := e.dominatedBy[e]; self {
			return algorithm.Invariantf("node %v dominates itself", e.node.Label())
		}
		for _, q := range p.open {
			if q == e {
				continue
			}
			_, recorded := e.dominates[q]
			if recorded != Dominates(e.score, e.uncertainty, q.score, q.uncertainty) {
				return algorithm.Invariantf("dominance of %v over %v out of date", e.node.Label(), q.node.Label())
			}
		}
		for q := range e.dominates {
			if !members[q] {
				return algorithm.Invariantf("node %v dominates removed node", e.node.Label())
			}
			if _, back := q.dominatedBy[e]; !back {
				return algorithm.Invariantf("dominance %v>%v not mirrored", e.node.Label(), q.node.Label())
			}
			if _, cycle := q.dominates[e]; cycle {
				return algorithm.Invariantf("dominance cycle between %v and %v", e.node.Label(), q.node.Label())
			}
			for r := range q.dominates {
				if _, ok := e.dominates[r]; !ok {
					return algorithm.Invariantf("dominance not transitive: %v>%v>%v", e.node.Label(), q.node.Label(), r.node.Label())
				}
			}
		}
		maximal := len(e.dominatedBy) == 0
		if maximal != inFrontier[e] || maximal != e.inFrontier {
			return algorithm.Invariantf("node %v maximal=%v but frontier=%v", e.node.Label(), maximal, inFrontier[e])
		}
	}
	return nil
}

func (p *Pareto[T, A]) pushFrontier(e *paretoEntry[T, A]) {
	r := e.ranked()
	i := sort.Search(len(p.frontier), func(i int) bool {
		return p.order(r, p.frontier[i].ranked())
	})
	p.frontier = append(p.frontier, nil)
	copy(p.frontier[i+1:], p.frontier[i:])
	p.frontier[i] = e
	e.inFrontier = true
}

func (p *Pareto[T, A]) dropFromFrontier(e *paretoEntry[T, A]) {
	for i, f := range p.frontier {
		if f == e {
			p.frontier = append(p.frontier[:i], p.frontier[i+1:]...)
			break
		}
	}
	e.inFrontier = false
}
