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
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/algorithm"
	"github.com/AleutianAI/AleutianSearch/services/search/graph"
	"github.com/AleutianAI/AleutianSearch/services/search/telemetry"
)

const algorithmName = "mcts"

// EdgeStats are the statistics of one (state, action) pair.
type EdgeStats struct {
	Pulls int
	Total float64
}

// Mean returns the mean reward, or 0 for an unpulled edge.
func (s EdgeStats) Mean() float64 {
	if s.Pulls == 0 {
		return 0
	}
	return s.Total / float64(s.Pulls)
}

type edgeKey[S comparable, A comparable] struct {
	state  S
	action A
}

// Engine is a UCT tree search with transpositions.
//
// Statistics are keyed by (state, action) and visit counts by state, so
// every tree path reaching the same state shares them. Each Step after the
// first runs one iteration:
//
//  1. SELECT: from a root, follow UCB1 while every action of the current
//     state has been pulled.
//  2. EXPAND: take the first unpulled action in generator order.
//  3. SIMULATE: continue with uniformly random successors until a goal,
//     a dead end or MaxRolloutDepth.
//  4. BACKPROPAGATE: every edge of the sampled path, rollout included,
//     accumulates the reward.
//
// A goal rollout is scored with the PathScorer and reported as
// SolutionFound; other rollouts receive the dead end penalty and are
// reported as RolloutCompleted. The run finishes with Finished{Budget}
// after Iterations iterations.
//
// Thread Safety: Step must be called from one goroutine at a time. Cancel,
// SetTimeout and the read-only accessors are safe from any goroutine.
type Engine[S comparable, A comparable] struct {
	gen     graph.Generator[S, A]
	scorer  graph.PathScorer[S, A]
	cfg     Config
	rng     *rand.Rand
	control *algorithm.Control
	emitter *algorithm.Emitter[S, A]
	logger  *slog.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics

	roots           []S
	successors      map[S][]graph.Successor[S, A]
	finishedEmitted bool

	mu        sync.RWMutex
	stats     map[edgeKey[S, A]]*EdgeStats
	visits    map[S]int
	iteration int
	solutions []graph.Solution[S, A]
	best      graph.Solution[S, A]
	hasBest   bool
}

// New creates a tree search in the CREATED state.
//
// Inputs:
//   - gen: The graph to search. Actions must be comparable.
//   - scorer: Reward of goal paths.
//   - opts: Engine options.
//
// Outputs:
//   - *Engine[S, A]: The engine.
//   - error: ErrInvalidConfig for bad settings or nil collaborators.
func New[S comparable, A comparable](gen graph.Generator[S, A], scorer graph.PathScorer[S, A], opts ...Option) (*Engine[S, A], error) {
	if gen == nil || scorer == nil {
		return nil, fmt.Errorf("%w: generator and scorer are required", ErrInvalidConfig)
	}
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	ctlOpts := []algorithm.ControlOption{algorithm.WithControlLogger(o.logger)}
	if o.id != "" {
		ctlOpts = append(ctlOpts, algorithm.WithControlID(o.id))
	}
	if o.scheduler != nil {
		ctlOpts = append(ctlOpts, algorithm.WithScheduler(o.scheduler))
	}
	if o.now != nil {
		ctlOpts = append(ctlOpts, algorithm.WithClock(o.now))
	}
	control := algorithm.NewControl(ctlOpts...)
	if o.timeout > 0 {
		control.SetTimeout(o.timeout)
	}
	logger := o.logger.With(slog.String("algorithm", algorithmName), slog.String("algorithm_id", control.ID()))

	return &Engine[S, A]{
		gen:        gen,
		scorer:     scorer,
		cfg:        o.cfg,
		rng:        rand.New(rand.NewSource(o.cfg.Seed)),
		control:    control,
		emitter:    algorithm.NewEmitter[S, A](logger),
		logger:     logger,
		tracer:     o.tracer,
		metrics:    o.metrics,
		successors: make(map[S][]graph.Successor[S, A]),
		stats:      make(map[edgeKey[S, A]]*EdgeStats),
		visits:     make(map[S]int),
	}, nil
}

// ID returns the algorithm ID.
func (e *Engine[S, A]) ID() string { return e.control.ID() }

// State returns the lifecycle state.
func (e *Engine[S, A]) State() algorithm.State { return e.control.State() }

// HasNext reports whether Step may still produce events.
func (e *Engine[S, A]) HasNext() bool { return e.control.HasNext() }

// Err returns the error that terminated the run, if any.
func (e *Engine[S, A]) Err() error { return e.control.Err() }

// Cancel requests cancellation.
func (e *Engine[S, A]) Cancel() { e.control.Cancel() }

// SetTimeout sets the overall timeout.
func (e *Engine[S, A]) SetTimeout(d time.Duration) { e.control.SetTimeout(d) }

// SetCPUBudget records the CPU budget. Iterations run sequentially.
func (e *Engine[S, A]) SetCPUBudget(n int) error { return e.control.SetCPUBudget(n) }

// Subscribe registers handler for the given event kinds.
func (e *Engine[S, A]) Subscribe(handler algorithm.Handler[S, A], kinds ...algorithm.Kind) string {
	return e.emitter.Subscribe(handler, kinds...)
}

// Unsubscribe removes a subscription.
func (e *Engine[S, A]) Unsubscribe(id string) bool { return e.emitter.Unsubscribe(id) }

// Iterations returns the number of completed iterations.
func (e *Engine[S, A]) Iterations() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.iteration
}

// Stats returns the statistics of (state, action).
func (e *Engine[S, A]) Stats(state S, action A) (EdgeStats, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.stats[edgeKey[S, A]{state: state, action: action}]
	if !ok {
		return EdgeStats{}, false
	}
	return *s, true
}

// Visits returns the visit count of state.
func (e *Engine[S, A]) Visits(state S) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visits[state]
}

// BestAction returns the most pulled action of the first root, breaking
// ties by the better mean reward.
func (e *Engine[S, A]) BestAction() (graph.Successor[S, A], bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.roots) == 0 {
		return graph.Successor[S, A]{}, false
	}
	root := e.roots[0]

	var best graph.Successor[S, A]
	var bestStats *EdgeStats
	for _, s := range e.successors[root] {
		st, ok := e.stats[edgeKey[S, A]{state: root, action: s.Action}]
		if !ok || st.Pulls == 0 {
			continue
		}
		if bestStats == nil || st.Pulls > bestStats.Pulls ||
			(st.Pulls == bestStats.Pulls && e.better(st.Mean(), bestStats.Mean())) {
			best, bestStats = s, st
		}
	}
	return best, bestStats != nil
}

// BestSolution returns the best goal path sampled so far.
func (e *Engine[S, A]) BestSolution() (graph.Solution[S, A], bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.best, e.hasBest
}

// Solutions returns every goal rollout in iteration order.
func (e *Engine[S, A]) Solutions() []graph.Solution[S, A] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]graph.Solution[S, A], len(e.solutions))
	copy(out, e.solutions)
	return out
}

// Run steps until the engine is inactive.
func (e *Engine[S, A]) Run(ctx context.Context) error {
	ctx, span := e.tracer.StartRun(ctx, algorithmName, e.ID())
	steps := 0
	var err error
	for e.HasNext() {
		if _, err = e.Step(ctx); err != nil {
			break
		}
		steps++
	}
	e.tracer.EndRun(span, steps, len(e.Solutions()), err)
	return err
}

// Step runs one iteration.
//
// Outputs:
//   - algorithm.Event[S, A]: GraphInitialized, SolutionFound,
//     RolloutCompleted or Finished.
//   - error: A termination error, a fatal error, or ErrInactive.
func (e *Engine[S, A]) Step(ctx context.Context) (algorithm.Event[S, A], error) {
	if err := e.control.Check(ctx); err != nil {
		return nil, e.terminated(err)
	}
	step := e.control.NextStep()
	ctx, span := e.tracer.StartStep(ctx, algorithmName, step)

	ev, err := e.step(ctx)

	kind := ""
	if ev != nil {
		kind = ev.Kind().String()
	}
	e.tracer.EndStep(span, kind, err)
	if err != nil {
		e.metrics.RecordStep("error")
		if e.control.Token().Canceled() {
			if cerr := e.control.Check(ctx); cerr != nil {
				return nil, e.terminated(cerr)
			}
		}
		return nil, e.fail(err)
	}
	e.metrics.RecordStep(kind)
	e.emitter.Emit(ev)
	return ev, nil
}

func (e *Engine[S, A]) step(ctx context.Context) (algorithm.Event[S, A], error) {
	ctx, stop := e.control.Token().Context(ctx)
	defer stop()

	if e.control.State() == algorithm.StateCreated {
		return e.initialize(ctx)
	}
	if len(e.roots) == 0 {
		e.control.Finish()
		return e.finish(algorithm.FinishExhausted, nil), nil
	}
	if e.Iterations() >= e.cfg.Iterations {
		e.control.Finish()
		return e.finish(algorithm.FinishBudget, nil), nil
	}
	return e.iterate(ctx)
}

func (e *Engine[S, A]) initialize(ctx context.Context) (algorithm.Event[S, A], error) {
	e.control.Activate()
	labels, err := e.gen.Roots(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate roots: %w", err)
	}
	e.mu.Lock()
	e.roots = labels
	e.mu.Unlock()
	roots := make([]*graph.Node[S, A], len(labels))
	for i, l := range labels {
		roots[i] = graph.NewRoot[S, A](l)
	}
	e.logger.Debug("tree search initialized",
		slog.Int("roots", len(labels)),
		slog.Int("iterations", e.cfg.Iterations),
	)
	return algorithm.GraphInitialized[S, A]{Header: e.control.Header(), Roots: roots}, nil
}

func (e *Engine[S, A]) iterate(ctx context.Context) (algorithm.Event[S, A], error) {
	e.mu.Lock()
	e.iteration++
	iteration := e.iteration
	e.mu.Unlock()

	ctx, span := e.tracer.StartRollout(ctx, iteration)
	path, goal, err := e.sample(ctx, e.roots[(iteration-1)%len(e.roots)])
	if err != nil {
		e.tracer.EndRollout(span, path.Edges(), 0, err)
		return nil, err
	}

	reward := e.cfg.deadEndReward()
	if goal {
		reward, err = e.scorer.ScorePath(ctx, path)
		if err != nil {
			e.tracer.EndRollout(span, path.Edges(), 0, err)
			e.logger.Warn("rollout reward failed; statistics unchanged",
				slog.Int("iteration", iteration),
				slog.String("error", err.Error()),
			)
			return algorithm.RolloutCompleted[S, A]{
				Header:    e.control.Header(),
				Iteration: iteration,
				Path:      path,
				Failed:    true,
			}, nil
		}
		if math.IsNaN(reward) {
			e.tracer.EndRollout(span, path.Edges(), 0, graph.ErrNaNScore)
			return nil, algorithm.Invariantf("rollout %d: reward of %s is NaN", iteration, path)
		}
	}
	e.tracer.EndRollout(span, path.Edges(), reward, nil)
	e.backpropagate(path, reward)

	if !goal {
		return algorithm.RolloutCompleted[S, A]{
			Header:    e.control.Header(),
			Iteration: iteration,
			Path:      path,
			Reward:    reward,
		}, nil
	}
	return e.report(graph.Solution[S, A]{Path: path, Score: reward}), nil
}

// sample walks the tree policy from root, expands one unpulled action and
// finishes with the default policy.
//
// Outputs:
//   - graph.Path[S, A]: The sampled path.
//   - bool: True if it ends at a goal.
//   - error: Generator failures.
func (e *Engine[S, A]) sample(ctx context.Context, root S) (graph.Path[S, A], bool, error) {
	node := graph.NewRoot[S, A](root)
	path := node.Path()
	inTree := true

	for depth := 0; ; depth++ {
		if graph.IsGoal(e.gen, path) {
			return path, true, nil
		}
		if depth >= e.cfg.MaxRolloutDepth {
			return path, false, nil
		}
		succ, err := e.successorsOf(ctx, node.Label())
		if err != nil {
			return path, false, err
		}
		if len(succ) == 0 {
			return path, false, nil
		}

		var next graph.Successor[S, A]
		if inTree {
			var untried bool
			next, untried = e.selectAction(node.Label(), succ)
			if untried {
				inTree = false
			}
		} else {
			next = succ[e.rng.Intn(len(succ))]
		}
		node = node.Child(next.Action, next.Label)
		path = path.Extend(node)
	}
}

func (e *Engine[S, A]) successorsOf(ctx context.Context, state S) ([]graph.Successor[S, A], error) {
	if succ, ok := e.successors[state]; ok {
		return succ, nil
	}
	succ, err := e.gen.Successors(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("successors of %v: %w", state, err)
	}
	e.mu.Lock()
	e.successors[state] = succ
	e.mu.Unlock()
	return succ, nil
}

// selectAction returns the first unpulled action in generator order, or
// the UCB1 choice when every action has been pulled. Ties keep generator
// order.
func (e *Engine[S, A]) selectAction(state S, succ []graph.Successor[S, A]) (graph.Successor[S, A], bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, s := range succ {
		st, ok := e.stats[edgeKey[S, A]{state: state, action: s.Action}]
		if !ok || st.Pulls == 0 {
			return s, true
		}
	}

	visits := e.visits[state]
	best := succ[0]
	bestScore := math.NaN()
	for _, s := range succ {
		st := e.stats[edgeKey[S, A]{state: state, action: s.Action}]
		score := UCB1(st.Mean(), e.cfg.ExplorationConstant, visits, st.Pulls, e.cfg.Maximize)
		if math.IsNaN(bestScore) || e.better(score, bestScore) {
			best, bestScore = s, score
		}
	}
	return best, false
}

// UCB1 returns the selection score of an edge: mean + c*sqrt(ln N / n) when
// maximizing (pick the largest) and mean - c*sqrt(ln N / n) when minimizing
// (pick the smallest). An unpulled edge scores +Inf or -Inf respectively.
func UCB1(mean, c float64, visits, pulls int, maximize bool) float64 {
	if pulls == 0 {
		if maximize {
			return math.Inf(1)
		}
		return math.Inf(-1)
	}
	bonus := 0.0
	if visits > 0 {
		bonus = c * math.Sqrt(math.Log(float64(visits))/float64(pulls))
	}
	if maximize {
		return mean + bonus
	}
	return mean - bonus
}

// backpropagate adds reward to every edge of path.
func (e *Engine[S, A]) backpropagate(path graph.Path[S, A], reward float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	nodes := path.Nodes()
	for i := 1; i < len(nodes); i++ {
		from := nodes[i-1].Label()
		action, _ := nodes[i].Action()
		key := edgeKey[S, A]{state: from, action: action}
		st, ok := e.stats[key]
		if !ok {
			st = &EdgeStats{}
			e.stats[key] = st
		}
		st.Pulls++
		st.Total += reward
		e.visits[from]++
	}
}

func (e *Engine[S, A]) better(a, b float64) bool {
	if e.cfg.Maximize {
		return a > b
	}
	return a < b
}

func (e *Engine[S, A]) report(sol graph.Solution[S, A]) algorithm.Event[S, A] {
	e.mu.Lock()
	improved := !e.hasBest || e.better(sol.Score, e.best.Score)
	if improved {
		e.best, e.hasBest = sol, true
	}
	e.solutions = append(e.solutions, sol)
	e.mu.Unlock()

	e.metrics.RecordSolution(sol.Score, improved)
	if improved {
		e.logger.Info("improved solution sampled",
			slog.String("path", sol.Path.String()),
			slog.Float64("score", sol.Score),
		)
	}
	return algorithm.SolutionFound[S, A]{Header: e.control.Header(), Solution: sol, Improved: improved}
}

func (e *Engine[S, A]) finish(reason algorithm.FinishReason, err error) algorithm.Event[S, A] {
	e.finishedEmitted = true
	e.metrics.RecordFinished(reason.String())
	attrs := []any{
		slog.String("reason", reason.String()),
		slog.Int("iterations", e.Iterations()),
		slog.Int("solutions", len(e.Solutions())),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	e.logger.Info("tree search finished", attrs...)
	return algorithm.Finished[S, A]{Header: e.control.Header(), Reason: reason, Err: err}
}

func (e *Engine[S, A]) terminated(err error) error {
	if errors.Is(err, algorithm.ErrInactive) || e.finishedEmitted {
		return err
	}
	e.emitter.Emit(e.finish(algorithm.FinishReasonFor(err), err))
	return err
}

func (e *Engine[S, A]) fail(err error) error {
	e.control.Fail(err)
	e.logger.Error("tree search failed", slog.String("error", err.Error()))
	return e.terminated(e.control.Err())
}
