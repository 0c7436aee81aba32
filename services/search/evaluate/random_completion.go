// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSearch/services/search/graph"
)

var (
	// ErrDeadEnd marks a rollout that reached a non-goal without successors.
	ErrDeadEnd = errors.New("rollout reached a dead end")

	// ErrDepthLimit marks a rollout that hit MaxRolloutDepth.
	ErrDepthLimit = errors.New("rollout depth limit reached")

	// ErrInvalidSamplingConfig is returned for bad sampling settings.
	ErrInvalidSamplingConfig = errors.New("invalid sampling config")
)

// RandomCompletionConfig configures a RandomCompletionEvaluator.
type RandomCompletionConfig struct {
	// Samples is the number of successful completions wanted per node.
	Samples int

	// MaxAttempts bounds the total rollouts per node, failed ones
	// included. Default: 3 * Samples.
	MaxAttempts int

	// SampleTimeout bounds each rollout including its scoring. Zero means
	// no per-sample limit. Independent of the search timeout.
	SampleTimeout time.Duration

	// MaxRolloutDepth caps the edges added by one rollout.
	MaxRolloutDepth int

	// Seed makes rollouts reproducible.
	Seed int64

	// CPUs bounds concurrent rollouts. Default 1.
	CPUs int

	// Maximize takes the highest sample score as the f-value.
	Maximize bool
}

// DefaultRandomCompletionConfig returns 3 samples, 9 attempts, depth 256,
// one CPU and seed 0.
func DefaultRandomCompletionConfig() RandomCompletionConfig {
	return RandomCompletionConfig{
		Samples:         3,
		MaxAttempts:     9,
		MaxRolloutDepth: 256,
		CPUs:            1,
	}
}

// Validate checks the configuration.
func (c RandomCompletionConfig) Validate() error {
	if c.Samples < 1 {
		return fmt.Errorf("%w: samples must be >= 1", ErrInvalidSamplingConfig)
	}
	if c.MaxAttempts < c.Samples {
		return fmt.Errorf("%w: max attempts %d below samples %d", ErrInvalidSamplingConfig, c.MaxAttempts, c.Samples)
	}
	if c.MaxRolloutDepth < 1 {
		return fmt.Errorf("%w: max rollout depth must be >= 1", ErrInvalidSamplingConfig)
	}
	if c.CPUs < 1 {
		return fmt.Errorf("%w: cpus must be >= 1", ErrInvalidSamplingConfig)
	}
	if c.SampleTimeout < 0 {
		return fmt.Errorf("%w: sample timeout must not be negative", ErrInvalidSamplingConfig)
	}
	return nil
}

// RandomCompletionEvaluator estimates a node by completing its path with
// uniformly random successors until a goal is reached and scoring the
// completions.
//
// The f-value is the best sample score. Uncertainty comes from the
// configured UncertaintySource. Goal paths are scored directly with
// uncertainty 0. A node with no successful completion is pruned.
//
// Rollouts run on a bounded worker pool sized by the CPU budget. They only
// read the path and create their own nodes, which never enter the search
// tree. Completed solutions go to the installed SolutionSink on the calling
// goroutine after all rollouts for the node have finished. Each distinct
// path is posted at most once, and completed-path scores are memoized by
// path key so a repeated completion is not rescored.
//
// Thread Safety: Evaluate may be called concurrently; the generator and
// scorer must then be safe for concurrent use.
type RandomCompletionEvaluator[T comparable, A any] struct {
	gen         graph.Generator[T, A]
	scorer      graph.PathScorer[T, A]
	uncertainty UncertaintySource[T, A]
	logger      *slog.Logger

	mu   sync.RWMutex
	cfg  RandomCompletionConfig
	sink graph.SolutionSink[T, A]

	calls atomic.Int64

	memoMu sync.Mutex
	scores map[string]float64
	posted map[string]struct{}
}

// RandomCompletionOption configures a RandomCompletionEvaluator.
type RandomCompletionOption[T comparable, A any] func(*RandomCompletionEvaluator[T, A])

// WithUncertaintySource replaces RolloutUncertainty.
func WithUncertaintySource[T comparable, A any](src UncertaintySource[T, A]) RandomCompletionOption[T, A] {
	return func(e *RandomCompletionEvaluator[T, A]) {
		if src != nil {
			e.uncertainty = src
		}
	}
}

// WithEvaluatorLogger sets the logger.
func WithEvaluatorLogger[T comparable, A any](logger *slog.Logger) RandomCompletionOption[T, A] {
	return func(e *RandomCompletionEvaluator[T, A]) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewRandomCompletionEvaluator creates the evaluator.
//
// Inputs:
//   - gen: Generator used to extend paths. Must be safe for concurrent use
//     when cfg.CPUs > 1.
//   - scorer: Objective for completed paths.
//   - cfg: Sampling configuration.
//
// Outputs:
//   - *RandomCompletionEvaluator[T, A]: Ready to use.
//   - error: ErrInvalidSamplingConfig for bad settings.
func NewRandomCompletionEvaluator[T comparable, A any](
	gen graph.Generator[T, A],
	scorer graph.PathScorer[T, A],
	cfg RandomCompletionConfig,
	opts ...RandomCompletionOption[T, A],
) (*RandomCompletionEvaluator[T, A], error) {
	if gen == nil || scorer == nil {
		return nil, fmt.Errorf("%w: generator and scorer are required", ErrInvalidSamplingConfig)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3 * cfg.Samples
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &RandomCompletionEvaluator[T, A]{
		gen:         gen,
		scorer:      scorer,
		uncertainty: RolloutUncertainty[T, A]{},
		logger:      slog.Default(),
		cfg:         cfg,
		scores:      make(map[string]float64),
		posted:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetSolutionSink implements graph.SolutionReporter.
func (e *RandomCompletionEvaluator[T, A]) SetSolutionSink(sink graph.SolutionSink[T, A]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// SetCPUBudget resizes the worker pool.
func (e *RandomCompletionEvaluator[T, A]) SetCPUBudget(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: cpus must be >= 1", ErrInvalidSamplingConfig)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.CPUs = n
	return nil
}

// Config returns the current configuration.
func (e *RandomCompletionEvaluator[T, A]) Config() RandomCompletionConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Evaluate implements graph.Evaluator.
func (e *RandomCompletionEvaluator[T, A]) Evaluate(ctx context.Context, path graph.Path[T, A]) (graph.Evaluation, error) {
	node := path.Last()
	if node == nil {
		return graph.Evaluation{}, fmt.Errorf("evaluate: empty path")
	}
	e.mu.RLock()
	cfg := e.cfg
	sink := e.sink
	e.mu.RUnlock()

	if graph.IsGoal(e.gen, path) {
		score, err := e.score(ctx, path)
		if err != nil {
			return graph.Evaluation{}, fmt.Errorf("score goal path: %w", err)
		}
		return graph.ScoredWithUncertainty(score, 0), nil
	}

	call := e.calls.Add(1)
	samples, attempts, err := e.sample(ctx, cfg, call, path)
	if err != nil {
		return graph.Evaluation{}, err
	}
	if len(samples) == 0 {
		e.logger.DebugContext(ctx, "no successful completion; pruning",
			slog.String("node", fmt.Sprintf("%v", node.Label())),
			slog.Int("attempts", attempts),
		)
		return graph.Prune(), nil
	}

	best := samples[0].Score
	for _, s := range samples[1:] {
		if (cfg.Maximize && s.Score > best) || (!cfg.Maximize && s.Score < best) {
			best = s.Score
		}
	}

	if sink != nil {
		for _, sol := range e.unposted(samples) {
			sink(sol)
		}
	}

	u := e.uncertainty.Uncertainty(node, samples)
	e.logger.DebugContext(ctx, "node evaluated by random completion",
		slog.String("node", fmt.Sprintf("%v", node.Label())),
		slog.Int("samples", len(samples)),
		slog.Int("attempts", attempts),
		slog.Float64("score", best),
		slog.Float64("uncertainty", u),
	)
	return graph.ScoredWithUncertainty(best, u), nil
}

// sample runs rollouts in batches until cfg.Samples succeed or
// cfg.MaxAttempts is exhausted. Successful samples are returned in attempt
// order.
func (e *RandomCompletionEvaluator[T, A]) sample(
	ctx context.Context,
	cfg RandomCompletionConfig,
	call int64,
	path graph.Path[T, A],
) ([]Sample[T, A], int, error) {
	var samples []Sample[T, A]
	attempted := 0

	for attempted < cfg.MaxAttempts && len(samples) < cfg.Samples {
		batch := min(cfg.Samples-len(samples), cfg.MaxAttempts-attempted)
		results := make([]*Sample[T, A], batch)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.CPUs)
		for i := 0; i < batch; i++ {
			idx := attempted + i
			slot := i
			g.Go(func() error {
				rng := rand.New(rand.NewSource(sampleSeed(cfg.Seed, call, idx)))
				s, err := e.rollout(gctx, cfg, rng, path)
				if err != nil {
					e.logger.DebugContext(gctx, "rollout failed",
						slog.Int("attempt", idx),
						slog.String("error", err.Error()),
					)
					return nil
				}
				results[slot] = s
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, attempted, err
		}
		if err := ctx.Err(); err != nil {
			return nil, attempted, fmt.Errorf("sampling interrupted: %w", err)
		}

		attempted += batch
		for _, s := range results {
			if s != nil {
				samples = append(samples, *s)
			}
		}
	}
	return samples, attempted, nil
}

func (e *RandomCompletionEvaluator[T, A]) rollout(
	ctx context.Context,
	cfg RandomCompletionConfig,
	rng *rand.Rand,
	path graph.Path[T, A],
) (*Sample[T, A], error) {
	if cfg.SampleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.SampleTimeout)
		defer cancel()
	}

	cur := path
	for depth := 0; !graph.IsGoal(e.gen, cur); depth++ {
		if depth >= cfg.MaxRolloutDepth {
			return nil, ErrDepthLimit
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		last := cur.Last()
		succ, err := e.gen.Successors(ctx, last.Label())
		if err != nil {
			return nil, fmt.Errorf("successors: %w", err)
		}
		if len(succ) == 0 {
			return nil, ErrDeadEnd
		}
		pick := succ[rng.Intn(len(succ))]
		cur = cur.Extend(last.Child(pick.Action, pick.Label))
	}

	score, err := e.score(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("score completion: %w", err)
	}
	if math.IsNaN(score) {
		return nil, fmt.Errorf("score completion: %w", graph.ErrNaNScore)
	}
	return &Sample[T, A]{Path: cur, Score: score}, nil
}

// score returns the memoized score of a complete path, calling the scorer
// on a miss. Errors and NaN scores are not memoized.
func (e *RandomCompletionEvaluator[T, A]) score(ctx context.Context, path graph.Path[T, A]) (float64, error) {
	key := path.Key()
	e.memoMu.Lock()
	score, ok := e.scores[key]
	e.memoMu.Unlock()
	if ok {
		return score, nil
	}

	score, err := e.scorer.ScorePath(ctx, path)
	if err != nil || math.IsNaN(score) {
		return score, err
	}
	e.memoMu.Lock()
	e.scores[key] = score
	e.memoMu.Unlock()
	return score, nil
}

// unposted marks the samples' paths as posted and returns the ones that had
// not been posted before, first occurrence first.
func (e *RandomCompletionEvaluator[T, A]) unposted(samples []Sample[T, A]) []graph.Solution[T, A] {
	e.memoMu.Lock()
	defer e.memoMu.Unlock()
	var out []graph.Solution[T, A]
	for _, s := range samples {
		key := s.Path.Key()
		if _, ok := e.posted[key]; ok {
			continue
		}
		e.posted[key] = struct{}{}
		out = append(out, graph.Solution[T, A]{Path: s.Path, Score: s.Score})
	}
	return out
}

// sampleSeed derives a per-rollout seed so results do not depend on worker
// scheduling.
func sampleSeed(seed, call int64, attempt int) int64 {
	return seed*1_000_003 + call*7_919 + int64(attempt)
}
