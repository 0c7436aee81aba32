// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/AleutianSearch/services/search/algorithm"
	"github.com/AleutianAI/AleutianSearch/services/search/graph"
	"github.com/AleutianAI/AleutianSearch/services/search/synthetic"
	"github.com/AleutianAI/AleutianSearch/services/search/telemetry"
)

type (
	strEdge = synthetic.Edge[string]
	intEdge = synthetic.Edge[int]
)

func costScorer[T comparable]() graph.PathScorer[T, synthetic.Edge[T]] {
	return graph.PathScorerFunc[T, synthetic.Edge[T]](func(_ context.Context, p graph.Path[T, synthetic.Edge[T]]) (float64, error) {
		var sum float64
		for _, e := range p.Actions() {
			sum += e.Weight
		}
		return sum, nil
	})
}

func withIterations(n int) Option {
	cfg := DefaultConfig()
	cfg.Iterations = n
	return WithConfig(cfg)
}

type recorder[S comparable, A comparable] struct {
	events []algorithm.Event[S, A]
}

func (r *recorder[S, A]) handle(ev algorithm.Event[S, A]) { r.events = append(r.events, ev) }

func (r *recorder[S, A]) kinds() []algorithm.Kind {
	out := make([]algorithm.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind()
	}
	return out
}

func TestUCB1(t *testing.T) {
	bonus := math.Sqrt(math.Log(4))
	assert.InDelta(t, 1+bonus, UCB1(1, math.Sqrt2, 4, 2, true), 1e-12)
	assert.InDelta(t, 1-bonus, UCB1(1, math.Sqrt2, 4, 2, false), 1e-12)
	assert.True(t, math.IsInf(UCB1(0, 1, 4, 0, true), 1))
	assert.True(t, math.IsInf(UCB1(0, 1, 4, 0, false), -1))
	assert.Equal(t, 3.0, UCB1(3, 1, 0, 1, true), "no bonus without visits")
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.Iterations = 0 },
		func(c *Config) { c.ExplorationConstant = -1 },
		func(c *Config) { c.MaxRolloutDepth = 0 },
		func(c *Config) { c.DeadEndPenalty = math.Inf(1) },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "case %d", i)
	}

	_, err := New[string, strEdge](synthetic.Diamond(), costScorer[string](), withIterations(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_IterationBudget(t *testing.T) {
	e, err := New[string, strEdge](synthetic.Diamond(), costScorer[string](), withIterations(5))
	require.NoError(t, err)
	rec := &recorder[string, strEdge]{}
	e.Subscribe(rec.handle)

	require.NoError(t, e.Run(context.Background()))

	kinds := rec.kinds()
	require.Len(t, kinds, 7)
	assert.Equal(t, algorithm.KindGraphInitialized, kinds[0])
	for _, k := range kinds[1:6] {
		assert.Equal(t, algorithm.KindSolutionFound, k, "every diamond rollout reaches D")
	}
	fin, ok := rec.events[6].(algorithm.Finished[string, strEdge])
	require.True(t, ok)
	assert.Equal(t, algorithm.FinishBudget, fin.Reason)
	assert.Equal(t, 5, e.Iterations())

	_, err = e.Step(context.Background())
	assert.ErrorIs(t, err, algorithm.ErrInactive)
}

func TestEngine_UntriedActionsFirst(t *testing.T) {
	g := synthetic.Diamond()
	e, err := New[string, strEdge](g, costScorer[string](), withIterations(10))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ { // init + two iterations
		_, err := e.Step(ctx)
		require.NoError(t, err)
	}
	ab := strEdge{From: "A", To: "B", Weight: 1}
	ac := strEdge{From: "A", To: "C", Weight: 1}

	st, ok := e.Stats("A", ab)
	require.True(t, ok)
	assert.Equal(t, EdgeStats{Pulls: 1, Total: 2}, st)
	st, ok = e.Stats("A", ac)
	require.True(t, ok)
	assert.Equal(t, EdgeStats{Pulls: 1, Total: 3}, st)

	bd, ok := e.Stats("B", strEdge{From: "B", To: "D", Weight: 1})
	require.True(t, ok, "rollout edges are backpropagated")
	assert.Equal(t, 1, bd.Pulls)
	assert.Equal(t, 2, e.Visits("A"))
}

func TestEngine_PrefersCheaperBranch(t *testing.T) {
	e, err := New[string, strEdge](synthetic.Diamond(), costScorer[string](), withIterations(200))
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	action, ok := e.BestAction()
	require.True(t, ok)
	assert.Equal(t, "B", action.Label)

	best, ok := e.BestSolution()
	require.True(t, ok)
	assert.Equal(t, 2.0, best.Score)
	assert.Equal(t, []string{"A", "B", "D"}, best.Path.Labels())

	ab, _ := e.Stats("A", strEdge{From: "A", To: "B", Weight: 1})
	ac, _ := e.Stats("A", strEdge{From: "A", To: "C", Weight: 1})
	assert.Greater(t, ab.Pulls, ac.Pulls)
	assert.Equal(t, 200, ab.Pulls+ac.Pulls)
	assert.Equal(t, 200, e.Visits("A"))
}

func TestEngine_TranspositionsShareStatistics(t *testing.T) {
	g := synthetic.NewGraph([]string{"A"}, []string{"G"},
		strEdge{From: "A", To: "B", Weight: 1},
		strEdge{From: "A", To: "C", Weight: 1},
		strEdge{From: "B", To: "X", Weight: 1},
		strEdge{From: "C", To: "X", Weight: 1},
		strEdge{From: "X", To: "G", Weight: 1},
	)
	e, err := New[string, strEdge](g, costScorer[string](), withIterations(20))
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	xg, ok := e.Stats("X", strEdge{From: "X", To: "G", Weight: 1})
	require.True(t, ok)
	assert.Equal(t, 20, xg.Pulls, "both tree paths update the shared (X, X->G) edge")
	assert.Equal(t, 20, e.Visits("X"))
	assert.Equal(t, 20, e.Visits("B")+e.Visits("C"))
	assert.InDelta(t, 3.0, xg.Mean(), 1e-12)
}

func TestEngine_DeadEndsArePenalized(t *testing.T) {
	g := synthetic.NewGraph([]string{"A"}, []string{"G"},
		strEdge{From: "A", To: "B", Weight: 1},
		strEdge{From: "A", To: "C", Weight: 1},
		strEdge{From: "C", To: "G", Weight: 1},
	)
	e, err := New[string, strEdge](g, costScorer[string](), withIterations(30))
	require.NoError(t, err)
	rec := &recorder[string, strEdge]{}
	e.Subscribe(rec.handle, algorithm.KindRolloutCompleted)
	require.NoError(t, e.Run(context.Background()))

	require.Len(t, rec.events, 1)
	rollout := rec.events[0].(algorithm.RolloutCompleted[string, strEdge])
	assert.Equal(t, 1000.0, rollout.Reward)
	assert.False(t, rollout.Failed)
	assert.Equal(t, []string{"A", "B"}, rollout.Path.Labels())

	ab, _ := e.Stats("A", strEdge{From: "A", To: "B", Weight: 1})
	assert.Equal(t, 1, ab.Pulls)
	action, ok := e.BestAction()
	require.True(t, ok)
	assert.Equal(t, "C", action.Label)
}

func TestEngine_RewardFailureSkipsBackprop(t *testing.T) {
	failing := graph.PathScorerFunc[string, strEdge](func(context.Context, graph.Path[string, strEdge]) (float64, error) {
		return 0, errors.New("simulator offline")
	})
	e, err := New[string, strEdge](synthetic.Diamond(), failing, withIterations(3))
	require.NoError(t, err)
	rec := &recorder[string, strEdge]{}
	e.Subscribe(rec.handle, algorithm.KindRolloutCompleted)
	require.NoError(t, e.Run(context.Background()))

	require.Len(t, rec.events, 3)
	for _, ev := range rec.events {
		assert.True(t, ev.(algorithm.RolloutCompleted[string, strEdge]).Failed)
	}
	_, ok := e.Stats("A", strEdge{From: "A", To: "B", Weight: 1})
	assert.False(t, ok)
	assert.Zero(t, e.Visits("A"))
	_, ok = e.BestSolution()
	assert.False(t, ok)
}

func TestEngine_NaNRewardIsFatal(t *testing.T) {
	nan := graph.PathScorerFunc[string, strEdge](func(context.Context, graph.Path[string, strEdge]) (float64, error) {
		return math.NaN(), nil
	})
	e, err := New[string, strEdge](synthetic.Diamond(), nan, withIterations(3))
	require.NoError(t, err)
	rec := &recorder[string, strEdge]{}
	e.Subscribe(rec.handle, algorithm.KindFinished)

	err = e.Run(context.Background())
	assert.ErrorIs(t, err, algorithm.ErrInvariant)
	require.Len(t, rec.events, 1)
	assert.Equal(t, algorithm.FinishFailed, rec.events[0].(algorithm.Finished[string, strEdge]).Reason)
}

func TestEngine_Maximize(t *testing.T) {
	tree, err := synthetic.Tree(2, 1)
	require.NoError(t, err)
	byLeaf := graph.PathScorerFunc[int, intEdge](func(_ context.Context, p graph.Path[int, intEdge]) (float64, error) {
		return float64(p.Last().Label()), nil
	})
	cfg := DefaultConfig()
	cfg.Iterations = 30
	cfg.Maximize = true
	e, err := New[int, intEdge](tree, byLeaf, WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	action, ok := e.BestAction()
	require.True(t, ok)
	assert.Equal(t, 2, action.Label)
	best, _ := e.BestSolution()
	assert.Equal(t, 2.0, best.Score)
}

func TestEngine_SeededRolloutsAreReproducible(t *testing.T) {
	g, err := synthetic.RandomDAG(synthetic.DAGConfig{Nodes: 15, EdgeProbability: 0.35, MaxWeight: 6, Seed: 21})
	require.NoError(t, err)

	run := func() [][]int {
		cfg := DefaultConfig()
		cfg.Iterations = 40
		cfg.Seed = 9
		e, err := New[int, intEdge](g, costScorer[int](), WithConfig(cfg))
		require.NoError(t, err)
		var paths [][]int
		e.Subscribe(func(ev algorithm.Event[int, intEdge]) {
			switch ev := ev.(type) {
			case algorithm.SolutionFound[int, intEdge]:
				paths = append(paths, ev.Solution.Path.Labels())
			case algorithm.RolloutCompleted[int, intEdge]:
				paths = append(paths, ev.Path.Labels())
			}
		})
		require.NoError(t, e.Run(context.Background()))
		return paths
	}
	first := run()
	require.Len(t, first, 40)
	if diff := cmp.Diff(first, run()); diff != "" {
		t.Errorf("rollouts differ between identical runs (-first +second):\n%s", diff)
	}
}

func TestEngine_CancelIsSticky(t *testing.T) {
	e, err := New[string, strEdge](synthetic.Diamond(), costScorer[string](), withIterations(100))
	require.NoError(t, err)
	rec := &recorder[string, strEdge]{}
	e.Subscribe(rec.handle, algorithm.KindFinished)
	ctx := context.Background()

	_, err = e.Step(ctx)
	require.NoError(t, err)
	_, err = e.Step(ctx)
	require.NoError(t, err)

	e.Cancel()
	_, err = e.Step(ctx)
	assert.ErrorIs(t, err, algorithm.ErrCanceled)
	_, err = e.Step(ctx)
	assert.ErrorIs(t, err, algorithm.ErrCanceled)

	assert.Equal(t, 1, e.Iterations())
	require.Len(t, rec.events, 1)
	assert.Equal(t, algorithm.FinishCanceled, rec.events[0].(algorithm.Finished[string, strEdge]).Reason)

	_, ok := e.BestSolution()
	assert.True(t, ok, "partial results survive cancellation")
}

func TestEngine_Timeout(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e, err := New[string, strEdge](synthetic.Diamond(), costScorer[string](),
		withIterations(100),
		WithClock(func() time.Time { return now }),
		WithTimeout(time.Minute),
	)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = e.Step(ctx)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = e.Step(ctx)
	assert.ErrorIs(t, err, algorithm.ErrTimeout)
	assert.False(t, e.HasNext())
}

func TestEngine_Tracing(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	e, err := New[string, strEdge](synthetic.Diamond(), costScorer[string](),
		withIterations(4),
		WithTracer(telemetry.NewTracer(nil, true, telemetry.WithTracerProvider(tp))),
		WithMetrics(telemetry.NewMetrics("mcts", true)),
	)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	counts := make(map[string]int)
	for _, s := range spans.Ended() {
		counts[s.Name()]++
	}
	assert.Equal(t, 1, counts["search.run"])
	assert.Equal(t, 6, counts["search.step"])
	assert.Equal(t, 4, counts["search.rollout"])
}

func TestEngine_NoRoots(t *testing.T) {
	g := synthetic.NewGraph[string](nil, nil)
	e, err := New[string, strEdge](g, costScorer[string](), withIterations(3))
	require.NoError(t, err)
	rec := &recorder[string, strEdge]{}
	e.Subscribe(rec.handle)
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []algorithm.Kind{algorithm.KindGraphInitialized, algorithm.KindFinished}, rec.kinds())
	assert.Equal(t, algorithm.FinishExhausted, rec.events[1].(algorithm.Finished[string, strEdge]).Reason)
	_, ok := e.BestAction()
	assert.False(t, ok)
}
