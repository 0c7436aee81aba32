// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AleutianSearch/services/search/algorithm"
	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

var (
	colorBest    = lipgloss.Color("#2CD7C7")
	colorMuted   = lipgloss.Color("#2C4A54")
	colorWarning = lipgloss.Color("#F4D03F")
)

// palette styles output lines. The zero palette prints plain text.
type palette struct {
	enabled bool
	best    lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
}

func newPalette(enabled bool) palette {
	return palette{
		enabled: enabled,
		best:    lipgloss.NewStyle().Bold(true).Foreground(colorBest),
		muted:   lipgloss.NewStyle().Foreground(colorMuted),
		warning: lipgloss.NewStyle().Foreground(colorWarning),
	}
}

func (p palette) paint(style lipgloss.Style, s string) string {
	if !p.enabled {
		return s
	}
	return style.Render(s)
}

// printer writes one line per event. Handlers run on the stepping
// goroutine, so no locking is needed.
type printer[T comparable, A any] struct {
	out     io.Writer
	verbose bool
	colors  palette
	steps   int
	reason  string
}

func newPrinter[T comparable, A any](out io.Writer, verbose bool, colors palette) *printer[T, A] {
	return &printer[T, A]{out: out, verbose: verbose, colors: colors}
}

func (p *printer[T, A]) handle(ev algorithm.Event[T, A]) {
	p.steps++
	step := ev.Meta().Step
	switch e := ev.(type) {
	case algorithm.GraphInitialized[T, A]:
		fmt.Fprintf(p.out, "%4d  initialized  roots=%s\n", step, labels(e.Roots))
	case algorithm.NodesExpanded[T, A]:
		if p.verbose {
			fmt.Fprintln(p.out, p.colors.paint(p.colors.muted,
				fmt.Sprintf("%4d  expanded     %v -> %s pruned=%d", step, e.Parent, labels(e.Children), e.Pruned)))
		}
	case algorithm.SolutionFound[T, A]:
		mark := ""
		if e.Improved {
			mark = "  " + p.colors.paint(p.colors.best, "(best)")
		}
		fmt.Fprintf(p.out, "%4d  solution     %s  score=%g%s\n", step, e.Solution.Path, e.Solution.Score, mark)
	case algorithm.RolloutCompleted[T, A]:
		if !p.verbose {
			return
		}
		if e.Failed {
			fmt.Fprintf(p.out, "%4d  rollout %-4d %s  %s\n", step, e.Iteration, e.Path, p.colors.paint(p.colors.warning, "failed"))
			return
		}
		fmt.Fprintf(p.out, "%4d  rollout %-4d %s  reward=%g\n", step, e.Iteration, e.Path, e.Reward)
	case algorithm.Finished[T, A]:
		p.reason = e.Reason.String()
		if e.Err != nil {
			fmt.Fprintf(p.out, "%4d  finished     reason=%s %s\n", step, e.Reason,
				p.colors.paint(p.colors.warning, fmt.Sprintf("error=%v", e.Err)))
			return
		}
		fmt.Fprintf(p.out, "%4d  finished     reason=%s\n", step, e.Reason)
	}
}

func labels[T comparable, A any](nodes []*graph.Node[T, A]) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func printSummary(out io.Writer, s summary, colors palette) {
	fmt.Fprintf(out, "\n%s on %s: %s after %d events in %s\n", s.Algorithm, s.Graph, s.Reason, s.Steps, s.Elapsed.Round(time.Millisecond))
	if s.Err != nil {
		fmt.Fprintln(out, colors.paint(colors.warning, fmt.Sprintf("stopped early: %v", s.Err)))
	}
	if !s.Found {
		fmt.Fprintln(out, "no solution found")
		return
	}
	fmt.Fprintln(out, colors.paint(colors.best, fmt.Sprintf("best: %s  score=%g  (%d solutions)", s.BestPath, s.BestScore, s.Solutions)))
	if s.BestAction != "" {
		fmt.Fprintf(out, "best first move: %s\n", s.BestAction)
	}
}
