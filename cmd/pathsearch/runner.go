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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/algorithm"
	"github.com/AleutianAI/AleutianSearch/services/search/bestfirst"
	"github.com/AleutianAI/AleutianSearch/services/search/cancel"
	"github.com/AleutianAI/AleutianSearch/services/search/config"
	"github.com/AleutianAI/AleutianSearch/services/search/evaluate"
	"github.com/AleutianAI/AleutianSearch/services/search/graph"
	"github.com/AleutianAI/AleutianSearch/services/search/mcts"
	"github.com/AleutianAI/AleutianSearch/services/search/open"
	"github.com/AleutianAI/AleutianSearch/services/search/synthetic"
	"github.com/AleutianAI/AleutianSearch/services/search/telemetry"
)

// summary describes a finished run.
type summary struct {
	Algorithm  string
	Graph      string
	Reason     string
	Steps      int
	Solutions  int
	Found      bool
	BestPath   string
	BestScore  float64
	BestAction string
	Elapsed    time.Duration
	Err        error
}

// runner builds and drives one engine from a validated config.
type runner struct {
	cfg       config.Config
	out       io.Writer
	logger    *slog.Logger
	scheduler *cancel.Scheduler
	tracer    *telemetry.Tracer
	metrics   *telemetry.Metrics
	runs      *telemetry.RunInstruments
	verbose   bool
	colors    palette
	now       func() time.Time
}

func newRunner(cfg config.Config, out io.Writer, logger *slog.Logger, scheduler *cancel.Scheduler, verbose bool) (*runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &runner{
		cfg:       cfg,
		out:       out,
		logger:    logger,
		scheduler: scheduler,
		tracer:    telemetry.NewTracer(logger, cfg.Observability.TracingEnabled),
		verbose:   verbose,
		now:       time.Now,
	}
	if cfg.Observability.MetricsEnabled {
		r.metrics = telemetry.NewMetrics(cfg.Algorithm, true)
		runs, err := telemetry.NewRunInstruments(nil)
		if err != nil {
			return nil, err
		}
		r.runs = runs
	}
	return r, nil
}

// run searches the configured graph.
//
// Outputs:
//   - summary: The outcome. Canceled and timed-out runs still report the
//     best solution found so far.
//   - error: Configuration problems and fatal engine failures.
func (r *runner) run(ctx context.Context) (summary, error) {
	start := r.now()
	var (
		sum summary
		err error
	)
	switch r.cfg.Graph.Kind {
	case config.GraphDiamond:
		sum, err = runGraph(ctx, r, synthetic.Diamond(), nil)
	case config.GraphTree:
		g, gerr := synthetic.Tree(r.cfg.Graph.Branching, r.cfg.Graph.Depth)
		if gerr != nil {
			return summary{}, gerr
		}
		sum, err = runGraph(ctx, r, g, synthetic.IntDistance)
	case config.GraphDAG:
		g, gerr := synthetic.RandomDAG(r.cfg.DAGConfig())
		if gerr != nil {
			return summary{}, gerr
		}
		sum, err = runGraph(ctx, r, g, synthetic.IntDistance)
	default:
		return summary{}, fmt.Errorf("%w: unknown graph kind %q", config.ErrInvalidConfig, r.cfg.Graph.Kind)
	}
	sum.Algorithm = r.cfg.Algorithm
	sum.Graph = r.cfg.Graph.Kind
	sum.Elapsed = r.now().Sub(start)

	if err != nil && !isTermination(err) {
		return sum, err
	}
	sum.Err = err
	r.runs.RecordRun(ctx, sum.Algorithm, sum.Reason, sum.Elapsed, sum.BestScore, sum.Found)
	return sum, nil
}

// isTermination reports whether err ended the run early without a fault.
func isTermination(err error) bool {
	return errors.Is(err, algorithm.ErrCanceled) || errors.Is(err, algorithm.ErrTimeout)
}

func runGraph[T comparable](ctx context.Context, r *runner, g *synthetic.Graph[T], distance open.DistanceFunc[T]) (summary, error) {
	if r.cfg.Algorithm == config.AlgorithmMCTS {
		return runTreeSearch(ctx, r, g)
	}
	return runBestFirst(ctx, r, g, distance)
}

// buildFrontier selects the open collection and the evaluator that feeds
// it. Pareto and oversearch need uncertainty, so they are paired with the
// random-completion evaluator; the priority queue uses path cost.
func buildFrontier[T comparable](r *runner, g *synthetic.Graph[T], distance open.DistanceFunc[T]) (
	open.Collection[T, synthetic.Edge[T]], graph.Evaluator[T, synthetic.Edge[T]], error,
) {
	policy, err := open.ParsePolicy(r.cfg.Open.Policy)
	if err != nil {
		return nil, nil, err
	}
	if policy == open.PolicyPriority {
		var popts []open.PriorityOption[T, synthetic.Edge[T]]
		if r.cfg.BestFirst.Maximize {
			popts = append(popts, open.WithMaximize[T, synthetic.Edge[T]]())
		}
		return open.NewPriority(popts...), evaluate.CostEvaluator[T, synthetic.Edge[T]](synthetic.EdgeWeight[T]), nil
	}

	sampler, err := evaluate.NewRandomCompletionEvaluator[T, synthetic.Edge[T]](
		g,
		evaluate.CostScorer[T, synthetic.Edge[T]](synthetic.EdgeWeight[T]),
		r.cfg.SamplingConfig(),
		evaluate.WithEvaluatorLogger[T, synthetic.Edge[T]](r.logger),
	)
	if err != nil {
		return nil, nil, err
	}
	if policy == open.PolicyPareto {
		return open.NewPareto[T, synthetic.Edge[T]](), sampler, nil
	}
	oc := config.Oversearch[T](r.cfg)
	oc.Distance = distance
	collection, err := open.NewOversearch[T, synthetic.Edge[T]](oc)
	if err != nil {
		return nil, nil, err
	}
	return collection, sampler, nil
}

func runBestFirst[T comparable](ctx context.Context, r *runner, g *synthetic.Graph[T], distance open.DistanceFunc[T]) (summary, error) {
	collection, eval, err := buildFrontier(r, g, distance)
	if err != nil {
		return summary{}, err
	}
	discarding, err := r.cfg.ParentDiscarding()
	if err != nil {
		return summary{}, err
	}

	opts := []bestfirst.Option[T, synthetic.Edge[T]]{
		bestfirst.WithOpen[T, synthetic.Edge[T]](collection),
		bestfirst.WithLogger[T, synthetic.Edge[T]](r.logger),
		bestfirst.WithTracer[T, synthetic.Edge[T]](r.tracer),
		bestfirst.WithMetrics[T, synthetic.Edge[T]](r.metrics),
		bestfirst.WithParentDiscarding[T, synthetic.Edge[T]](discarding),
		bestfirst.WithTimeout[T, synthetic.Edge[T]](r.cfg.Timeout),
		bestfirst.WithCPUBudget[T, synthetic.Edge[T]](r.cfg.CPUs),
	}
	if r.scheduler != nil {
		opts = append(opts, bestfirst.WithScheduler[T, synthetic.Edge[T]](r.scheduler))
	}
	if r.cfg.BestFirst.Maximize {
		opts = append(opts, bestfirst.WithMaximize[T, synthetic.Edge[T]]())
	}
	if r.cfg.BestFirst.ExpandGoals {
		opts = append(opts, bestfirst.WithExpandGoals[T, synthetic.Edge[T]]())
	}
	engine, err := bestfirst.New[T, synthetic.Edge[T]](g, eval, opts...)
	if err != nil {
		return summary{}, err
	}

	p := newPrinter[T, synthetic.Edge[T]](r.out, r.verbose, r.colors)
	engine.Subscribe(p.handle)
	runErr := engine.Run(ctx)

	sum := summary{Reason: p.reason, Steps: p.steps, Solutions: len(engine.Solutions())}
	if best, ok := engine.BestSolution(); ok {
		sum.Found, sum.BestPath, sum.BestScore = true, best.Path.String(), best.Score
	}
	return sum, runErr
}

func runTreeSearch[T comparable](ctx context.Context, r *runner, g *synthetic.Graph[T]) (summary, error) {
	opts := []mcts.Option{
		mcts.WithConfig(r.cfg.TreeSearchConfig()),
		mcts.WithLogger(r.logger),
		mcts.WithTracer(r.tracer),
		mcts.WithMetrics(r.metrics),
		mcts.WithTimeout(r.cfg.Timeout),
	}
	if r.scheduler != nil {
		opts = append(opts, mcts.WithScheduler(r.scheduler))
	}
	engine, err := mcts.New[T, synthetic.Edge[T]](g, evaluate.CostScorer[T, synthetic.Edge[T]](synthetic.EdgeWeight[T]), opts...)
	if err != nil {
		return summary{}, err
	}

	p := newPrinter[T, synthetic.Edge[T]](r.out, r.verbose, r.colors)
	engine.Subscribe(p.handle)
	runErr := engine.Run(ctx)

	sum := summary{Reason: p.reason, Steps: p.steps, Solutions: len(engine.Solutions())}
	if best, ok := engine.BestSolution(); ok {
		sum.Found, sum.BestPath, sum.BestScore = true, best.Path.String(), best.Score
	}
	if action, ok := engine.BestAction(); ok {
		sum.BestAction = fmt.Sprint(action.Action)
	}
	return sum, runErr
}
