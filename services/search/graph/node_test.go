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
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func buildChain(t *testing.T, labels ...string) *Node[string, string] {
	t.Helper()
	n := NewRoot[string, string](labels[0])
	for _, l := range labels[1:] {
		n = n.Child(n.Label()+"->"+l, l)
	}
	return n
}

func TestNode_ChildLinks(t *testing.T) {
	root := NewRoot[string, string]("A")
	b := root.Child("a-b", "B")
	d := b.Child("b-d", "D")

	if !root.IsRoot() || b.IsRoot() {
		t.Fatalf("IsRoot mismatch: root=%v b=%v", root.IsRoot(), b.IsRoot())
	}
	if d.Parent() != b || b.Parent() != root {
		t.Errorf("parent links broken")
	}
	if d.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", d.Depth())
	}
	if d.Root() != root {
		t.Errorf("Root() = %v, want %v", d.Root(), root)
	}
	if action, ok := d.Action(); !ok || action != "b-d" {
		t.Errorf("Action() = %q, %v; want b-d, true", action, ok)
	}
	if _, ok := root.Action(); ok {
		t.Errorf("root should have no action")
	}
}

func TestNode_PathIsAcyclicAndRooted(t *testing.T) {
	n := buildChain(t, "A", "B", "C", "D", "E")
	path := n.Path()

	if diff := cmp.Diff([]string{"A", "B", "C", "D", "E"}, path.Labels()); diff != "" {
		t.Errorf("Labels() mismatch (-want +got):\n%s", diff)
	}
	if path.Len() != 5 || path.Edges() != 4 {
		t.Errorf("Len/Edges = %d/%d, want 5/4", path.Len(), path.Edges())
	}
	if !path.Node(0).IsRoot() {
		t.Errorf("first node is not a root")
	}

	seen := make(map[*Node[string, string]]bool)
	for _, node := range path.Nodes() {
		if seen[node] {
			t.Fatalf("node %v repeated in path", node)
		}
		seen[node] = true
	}
	if path.Last() != n {
		t.Errorf("Last() = %v, want %v", path.Last(), n)
	}
}

func TestNode_Annotate(t *testing.T) {
	n := NewRoot[string, string]("A")
	if n.Evaluated() {
		t.Fatal("new node should not be evaluated")
	}
	if got := n.UncertaintyOrNeutral(); got != NeutralUncertainty {
		t.Errorf("UncertaintyOrNeutral() = %v, want %v", got, NeutralUncertainty)
	}

	if err := n.Annotate(ScoredWithUncertainty(3, 0.25), true); err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if n.Score() != 3 || !n.IsGoal() {
		t.Errorf("Score/IsGoal = %v/%v, want 3/true", n.Score(), n.IsGoal())
	}
	if u, ok := n.Uncertainty(); !ok || u != 0.25 {
		t.Errorf("Uncertainty() = %v, %v; want 0.25, true", u, ok)
	}

	if err := n.Annotate(Scored(1), false); !errors.Is(err, ErrAlreadyEvaluated) {
		t.Errorf("second Annotate() error = %v, want ErrAlreadyEvaluated", err)
	}
}

func TestNode_AnnotateRejectsNaN(t *testing.T) {
	n := NewRoot[string, string]("A")
	if err := n.Annotate(Scored(math.NaN()), false); !errors.Is(err, ErrNaNScore) {
		t.Errorf("Annotate(NaN) error = %v, want ErrNaNScore", err)
	}
	if n.Evaluated() {
		t.Errorf("node should stay unevaluated after rejected annotation")
	}
}

func TestPath_ActionsAndExtend(t *testing.T) {
	n := buildChain(t, "A", "B", "C")
	path := n.Path()

	if diff := cmp.Diff([]string{"A->B", "B->C"}, path.Actions()); diff != "" {
		t.Errorf("Actions() mismatch (-want +got):\n%s", diff)
	}

	extra := n.Child("C->X", "X")
	extended := path.Extend(extra)
	if extended.Len() != 4 || path.Len() != 3 {
		t.Errorf("Extend changed lengths: extended=%d original=%d", extended.Len(), path.Len())
	}
	if extended.IndexOf(extra) != 3 || path.Contains(extra) {
		t.Errorf("IndexOf/Contains mismatch")
	}
	if got := extended.String(); got != "A -> B -> C -> X" {
		t.Errorf("String() = %q", got)
	}
}

func TestPath_Empty(t *testing.T) {
	var p Path[string, string]
	if p.Last() != nil || p.Edges() != 0 || p.Actions() != nil {
		t.Errorf("empty path accessors should be zero")
	}
}

func TestPath_Key(t *testing.T) {
	first := buildChain(t, "A", "B", "D").Path()
	second := buildChain(t, "A", "B", "D").Path()
	other := buildChain(t, "A", "C", "D").Path()

	if first.Key() != second.Key() {
		t.Errorf("equal sequences from distinct nodes should share a key: %q vs %q", first.Key(), second.Key())
	}
	if first.Key() == other.Key() {
		t.Errorf("different labels share key %q", first.Key())
	}

	root := NewRoot[string, string]("A")
	viaX := PathOf(root, root.Child("x", "B"))
	viaY := PathOf(root, root.Child("y", "B"))
	if viaX.Key() == viaY.Key() {
		t.Errorf("paths differing only in actions share key %q", viaX.Key())
	}
}

type labelGoalGen struct{ goal string }

func (g labelGoalGen) Roots(context.Context) ([]string, error) { return []string{"A"}, nil }
func (g labelGoalGen) Successors(context.Context, string) ([]Successor[string, string], error) {
	return nil, nil
}
func (g labelGoalGen) IsGoal(label string) bool { return label == g.goal }

type pathGoalGen struct{ labelGoalGen }

func (g pathGoalGen) IsGoalPath(path Path[string, string]) bool { return path.Edges() >= 2 }

func TestIsGoal_PrefersPathTester(t *testing.T) {
	short := buildChain(t, "A", "D").Path()
	long := buildChain(t, "A", "B", "D").Path()

	if !IsGoal[string, string](labelGoalGen{goal: "D"}, short) {
		t.Errorf("label goal test should accept A->D")
	}
	gen := pathGoalGen{labelGoalGen{goal: "D"}}
	if IsGoal[string, string](gen, short) {
		t.Errorf("path goal test should reject one-edge path")
	}
	if !IsGoal[string, string](gen, long) {
		t.Errorf("path goal test should accept two-edge path")
	}
	if IsGoal[string, string](gen, Path[string, string]{}) {
		t.Errorf("empty path should never be a goal")
	}
}
