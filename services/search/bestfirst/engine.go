// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bestfirst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/algorithm"
	"github.com/AleutianAI/AleutianSearch/services/search/graph"
	"github.com/AleutianAI/AleutianSearch/services/search/open"
	"github.com/AleutianAI/AleutianSearch/services/search/telemetry"
)

const algorithmName = "bestfirst"

var (
	// ErrInvalidEngine is returned by New for missing collaborators.
	ErrInvalidEngine = errors.New("invalid best-first engine")

	// ErrEvaluatorPanic wraps a recovered evaluator panic. The node is
	// pruned like any other evaluator failure.
	ErrEvaluatorPanic = errors.New("evaluator panicked")
)

// cpuBudgeter is implemented by evaluators with a resizable worker pool.
type cpuBudgeter interface {
	SetCPUBudget(n int) error
}

// Engine is a step-wise best-first search.
//
// Each Step does one unit of work: the first Step materializes and
// evaluates the roots; later Steps return a queued evaluator-reported
// solution, report a polled goal, or expand the polled node. When the open
// collection runs dry Step returns Finished and the engine becomes
// inactive.
//
// Cancellation and the deadline are checked at the start of every Step.
// A triggered Step returns an error wrapping algorithm.ErrCanceled or
// algorithm.ErrTimeout and publishes Finished to subscribers; later Steps
// return the same error. A cancellation that lands while a Step evaluates
// children ends that Step with the termination error instead of reporting
// the interrupted children as pruned. Evaluator errors and panics prune the
// node. Generator errors and invariant violations are fatal.
//
// Every distinct path is reported at most once, whether the evaluator
// reported it or a goal node was polled.
//
// Thread Safety: Step must be called from one goroutine at a time. Cancel,
// SetTimeout, BestSolution, Solutions and the subscription methods are safe
// from any goroutine.
type Engine[T comparable, A any] struct {
	gen     graph.Generator[T, A]
	eval    graph.Evaluator[T, A]
	open    open.Collection[T, A]
	control *algorithm.Control
	emitter *algorithm.Emitter[T, A]
	logger  *slog.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics

	maximize    bool
	discarding  ParentDiscarding
	expandGoals bool

	openByLabel     map[T]*graph.Node[T, A]
	expanded        map[T]bool
	finishedEmitted bool

	mu        sync.Mutex
	pending   []graph.Solution[T, A]
	claimed   map[string]struct{}
	solutions []graph.Solution[T, A]
	best      graph.Solution[T, A]
	hasBest   bool
}

// New creates an engine in the CREATED state.
//
// Inputs:
//   - gen: The graph to search.
//   - eval: Scores partial paths. If it implements graph.SolutionReporter
//     its reported solutions are queued and returned by later Steps.
//   - opts: Engine options.
//
// Outputs:
//   - *Engine[T, A]: The engine.
//   - error: ErrInvalidEngine for nil collaborators, or
//     algorithm.ErrInvalidBudget for a bad CPU budget.
func New[T comparable, A any](gen graph.Generator[T, A], eval graph.Evaluator[T, A], opts ...Option[T, A]) (*Engine[T, A], error) {
	if gen == nil || eval == nil {
		return nil, fmt.Errorf("%w: generator and evaluator are required", ErrInvalidEngine)
	}
	o := options[T, A]{discarding: DiscardOpen}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.open == nil {
		var popts []open.PriorityOption[T, A]
		if o.maximize {
			popts = append(popts, open.WithMaximize[T, A]())
		}
		o.open = open.NewPriority(popts...)
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
	logger := o.logger.With(slog.String("algorithm", algorithmName), slog.String("algorithm_id", control.ID()))

	e := &Engine[T, A]{
		gen:         gen,
		eval:        eval,
		open:        o.open,
		control:     control,
		emitter:     algorithm.NewEmitter[T, A](logger),
		logger:      logger,
		tracer:      o.tracer,
		metrics:     o.metrics,
		maximize:    o.maximize,
		discarding:  o.discarding,
		expandGoals: o.expandGoals,
		openByLabel: make(map[T]*graph.Node[T, A]),
		expanded:    make(map[T]bool),
		claimed:     make(map[string]struct{}),
	}
	if o.timeout > 0 {
		control.SetTimeout(o.timeout)
	}
	if o.cpus != 0 {
		if err := e.SetCPUBudget(o.cpus); err != nil {
			return nil, err
		}
	}
	if reporter, ok := eval.(graph.SolutionReporter[T, A]); ok {
		reporter.SetSolutionSink(e.enqueue)
	}
	return e, nil
}

// ID returns the algorithm ID carried by every event.
func (e *Engine[T, A]) ID() string { return e.control.ID() }

// State returns the lifecycle state.
func (e *Engine[T, A]) State() algorithm.State { return e.control.State() }

// HasNext reports whether Step may still produce events.
func (e *Engine[T, A]) HasNext() bool { return e.control.HasNext() }

// Err returns the error that terminated the run, if any.
func (e *Engine[T, A]) Err() error { return e.control.Err() }

// Cancel requests cancellation. Idempotent and safe from any goroutine.
func (e *Engine[T, A]) Cancel() { e.control.Cancel() }

// SetTimeout sets the overall timeout. Zero means unbounded.
func (e *Engine[T, A]) SetTimeout(d time.Duration) { e.control.SetTimeout(d) }

// SetCPUBudget sets the CPU budget and forwards it to the evaluator when
// it has a worker pool.
func (e *Engine[T, A]) SetCPUBudget(n int) error {
	if err := e.control.SetCPUBudget(n); err != nil {
		return err
	}
	if b, ok := e.eval.(cpuBudgeter); ok {
		if err := b.SetCPUBudget(n); err != nil {
			return fmt.Errorf("evaluator rejected cpu budget: %w", err)
		}
	}
	return nil
}

// CPUBudget returns the CPU budget.
func (e *Engine[T, A]) CPUBudget() int { return e.control.CPUBudget() }

// Subscribe registers handler for the given event kinds (all when empty)
// and returns the subscription ID.
func (e *Engine[T, A]) Subscribe(handler algorithm.Handler[T, A], kinds ...algorithm.Kind) string {
	return e.emitter.Subscribe(handler, kinds...)
}

// Unsubscribe removes a subscription.
func (e *Engine[T, A]) Unsubscribe(id string) bool { return e.emitter.Unsubscribe(id) }

// Open returns the open collection.
func (e *Engine[T, A]) Open() open.Collection[T, A] { return e.open }

// BestSolution returns the incumbent. It stays available after any kind
// of termination.
func (e *Engine[T, A]) BestSolution() (graph.Solution[T, A], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.best, e.hasBest
}

// Solutions returns every reported solution in report order.
func (e *Engine[T, A]) Solutions() []graph.Solution[T, A] {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]graph.Solution[T, A], len(e.solutions))
	copy(out, e.solutions)
	return out
}

// Run steps until the engine is inactive.
//
// Outputs:
//   - error: nil after a normal finish, otherwise the terminating error.
func (e *Engine[T, A]) Run(ctx context.Context) error {
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

// Step performs one unit of work.
//
// Outputs:
//   - algorithm.Event[T, A]: GraphInitialized, NodesExpanded, SolutionFound
//     or Finished.
//   - error: A termination error (ErrCanceled, ErrTimeout), a fatal error
//     (ErrInvariant, generator failures), or ErrInactive after Finished.
func (e *Engine[T, A]) Step(ctx context.Context) (algorithm.Event[T, A], error) {
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
	e.metrics.SetOpenSize(e.open.Len())
	e.emitter.Emit(ev)
	return ev, nil
}

func (e *Engine[T, A]) step(ctx context.Context) (algorithm.Event[T, A], error) {
	ctx, stop := e.control.Token().Context(ctx)
	defer stop()

	if e.control.State() == algorithm.StateCreated {
		ev, err := e.initialize(ctx)
		if err == nil {
			err = e.interrupted(ctx)
		}
		if err != nil {
			return nil, err
		}
		return ev, nil
	}

	for {
		if sol, ok := e.popPending(); ok {
			return e.report(sol), nil
		}

		node, ok := e.open.Poll()
		if !ok {
			e.control.Finish()
			return e.finish(algorithm.FinishExhausted, nil), nil
		}
		if e.openByLabel[node.Label()] == node {
			delete(e.openByLabel, node.Label())
		}

		if !node.IsGoal() {
			ev, err := e.expand(ctx, node)
			if err == nil {
				err = e.interrupted(ctx)
			}
			if err != nil {
				return nil, err
			}
			return ev, nil
		}

		sol := graph.Solution[T, A]{Path: node.Path(), Score: node.Score()}
		fresh := e.claim(sol.Path)
		if e.expandGoals {
			ev, err := e.expand(ctx, node)
			if err == nil {
				err = e.interrupted(ctx)
			}
			if err != nil {
				return nil, err
			}
			if fresh {
				e.requeue(sol)
			}
			return ev, nil
		}
		if fresh {
			return e.report(sol), nil
		}
		e.logger.Debug("goal already reported",
			slog.String("node", node.String()),
			slog.String("path", sol.Path.String()),
		)
	}
}

// interrupted returns the termination error when the token or the driver
// context fired while the step was evaluating.
func (e *Engine[T, A]) interrupted(ctx context.Context) error {
	if !e.control.Token().Canceled() && ctx.Err() == nil {
		return nil
	}
	return e.control.Check(ctx)
}

func (e *Engine[T, A]) initialize(ctx context.Context) (algorithm.Event[T, A], error) {
	e.control.Activate()
	labels, err := e.gen.Roots(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate roots: %w", err)
	}
	roots := make([]*graph.Node[T, A], 0, len(labels))
	for _, label := range labels {
		node := graph.NewRoot[T, A](label)
		admitted, err := e.admit(ctx, node)
		if err != nil {
			return nil, err
		}
		if admitted {
			roots = append(roots, node)
		}
	}
	e.logger.Debug("graph initialized",
		slog.Int("roots", len(labels)),
		slog.Int("admitted", len(roots)),
	)
	return algorithm.GraphInitialized[T, A]{Header: e.control.Header(), Roots: roots}, nil
}

func (e *Engine[T, A]) expand(ctx context.Context, parent *graph.Node[T, A]) (algorithm.Event[T, A], error) {
	if e.discarding == DiscardAll {
		e.expanded[parent.Label()] = true
	}
	succ, err := e.gen.Successors(ctx, parent.Label())
	if err != nil {
		return nil, fmt.Errorf("successors of %v: %w", parent.Label(), err)
	}

	children := make([]*graph.Node[T, A], 0, len(succ))
	pruned := 0
	for _, s := range succ {
		child := parent.Child(s.Action, s.Label)
		admitted, err := e.admit(ctx, child)
		if err != nil {
			return nil, err
		}
		if admitted {
			children = append(children, child)
		} else {
			pruned++
		}
	}
	e.metrics.RecordExpanded(len(children))
	e.logger.Debug("node expanded",
		slog.String("node", parent.String()),
		slog.Int("children", len(children)),
		slog.Int("pruned", pruned),
		slog.Int("open", e.open.Len()),
	)
	return algorithm.NodesExpanded[T, A]{
		Header:   e.control.Header(),
		Parent:   parent,
		Children: children,
		Pruned:   pruned,
	}, nil
}

// admit evaluates node and inserts it into the open collection.
//
// Outputs:
//   - bool: True if the node was inserted.
//   - error: Only fatal errors; evaluator failures prune.
func (e *Engine[T, A]) admit(ctx context.Context, node *graph.Node[T, A]) (bool, error) {
	label := node.Label()
	if e.discarding == DiscardAll && e.expanded[label] {
		e.metrics.RecordPruned(telemetry.PruneDiscarded, 1)
		return false, nil
	}

	path := node.Path()
	evalCtx, span := e.tracer.StartEvaluate(ctx, fmt.Sprintf("%v", label), node.Depth())
	start := time.Now()
	ev, err := e.evaluate(evalCtx, path)
	e.metrics.ObserveEvaluation(time.Since(start))
	e.tracer.EndEvaluate(span, ev.Score, ev.Pruned, err)

	if err != nil {
		if errors.Is(err, algorithm.ErrInvariant) {
			return false, err
		}
		e.logger.Warn("evaluation failed; pruning node",
			slog.String("node", fmt.Sprintf("%v", label)),
			slog.Int("depth", node.Depth()),
			slog.String("error", err.Error()),
		)
		e.metrics.RecordPruned(telemetry.PruneError, 1)
		return false, nil
	}
	if ev.Pruned {
		e.metrics.RecordPruned(telemetry.PruneEvaluator, 1)
		return false, nil
	}
	if err := node.Annotate(ev, graph.IsGoal(e.gen, path)); err != nil {
		return false, algorithm.Invariantf("annotate %v: %v", label, err)
	}

	if e.discarding != DiscardNone {
		if old, ok := e.openByLabel[label]; ok {
			if !e.better(node.Score(), old.Score()) {
				e.metrics.RecordPruned(telemetry.PruneDiscarded, 1)
				return false, nil
			}
			e.open.Remove(old)
			e.metrics.RecordPruned(telemetry.PruneDiscarded, 1)
		}
	}
	if err := e.open.Add(node); err != nil {
		return false, err
	}
	if e.discarding != DiscardNone {
		e.openByLabel[label] = node
	}
	return true, nil
}

// evaluate calls the evaluator, converting a panic into ErrEvaluatorPanic.
func (e *Engine[T, A]) evaluate(ctx context.Context, path graph.Path[T, A]) (ev graph.Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluator panicked",
				slog.String("path", path.String()),
				slog.Any("panic", r),
			)
			ev, err = graph.Evaluation{}, fmt.Errorf("%w: %v", ErrEvaluatorPanic, r)
		}
	}()
	return e.eval.Evaluate(ctx, path)
}

func (e *Engine[T, A]) better(a, b float64) bool {
	if e.maximize {
		return a > b
	}
	return a < b
}

// claim marks path as reported. It returns false when the same label and
// action sequence was claimed before.
func (e *Engine[T, A]) claim(path graph.Path[T, A]) bool {
	key := path.Key()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.claimed[key]; ok {
		return false
	}
	e.claimed[key] = struct{}{}
	return true
}

// enqueue is the evaluator's solution sink.
func (e *Engine[T, A]) enqueue(sol graph.Solution[T, A]) {
	if !e.claim(sol.Path) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, sol)
}

// requeue puts sol at the front of the pending queue.
func (e *Engine[T, A]) requeue(sol graph.Solution[T, A]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append([]graph.Solution[T, A]{sol}, e.pending...)
}

func (e *Engine[T, A]) popPending() (graph.Solution[T, A], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return graph.Solution[T, A]{}, false
	}
	sol := e.pending[0]
	e.pending = e.pending[1:]
	return sol, true
}

// report records sol, updates the incumbent and notifies the open
// collection.
func (e *Engine[T, A]) report(sol graph.Solution[T, A]) algorithm.Event[T, A] {
	e.mu.Lock()
	improved := !e.hasBest || e.better(sol.Score, e.best.Score)
	if improved {
		e.best, e.hasBest = sol, true
	}
	e.solutions = append(e.solutions, sol)
	e.mu.Unlock()

	if obs, ok := e.open.(open.SolutionObserver[T, A]); ok {
		obs.ReportSolution(sol)
	}
	e.metrics.RecordSolution(sol.Score, improved)
	e.logger.Info("solution found",
		slog.String("path", sol.Path.String()),
		slog.Float64("score", sol.Score),
		slog.Bool("improved", improved),
	)
	return algorithm.SolutionFound[T, A]{Header: e.control.Header(), Solution: sol, Improved: improved}
}

func (e *Engine[T, A]) finish(reason algorithm.FinishReason, err error) algorithm.Event[T, A] {
	e.finishedEmitted = true
	e.metrics.RecordFinished(reason.String())
	attrs := []any{
		slog.String("reason", reason.String()),
		slog.Int("solutions", len(e.Solutions())),
		slog.Duration("elapsed", e.control.Elapsed()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	e.logger.Info("search finished", attrs...)
	return algorithm.Finished[T, A]{Header: e.control.Header(), Reason: reason, Err: err}
}

// terminated publishes Finished once for a canceled or timed-out run.
func (e *Engine[T, A]) terminated(err error) error {
	if errors.Is(err, algorithm.ErrInactive) || e.finishedEmitted {
		return err
	}
	e.emitter.Emit(e.finish(algorithm.FinishReasonFor(err), err))
	return err
}

// fail ends the run with a fatal error.
func (e *Engine[T, A]) fail(err error) error {
	e.control.Fail(err)
	e.logger.Error("search failed", slog.String("error", err.Error()))
	return e.terminated(e.control.Err())
}
