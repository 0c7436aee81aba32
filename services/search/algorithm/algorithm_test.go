// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algorithm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// State / Kind
// -----------------------------------------------------------------------------

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StateCreated, "created", false},
		{StateActive, "active", false},
		{StateInactive, "inactive", true},
		{State(9), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	kinds := map[Kind]string{
		KindGraphInitialized: "graph_initialized",
		KindNodesExpanded:    "nodes_expanded",
		KindSolutionFound:    "solution_found",
		KindRolloutCompleted: "rollout_completed",
		KindFinished:         "finished",
		Kind(77):             "unknown",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %v, want %v", int(k), got, want)
		}
	}
}

func TestTerminationError_Unwrap(t *testing.T) {
	timeout := &TerminationError{Reason: cancel.Reason{Type: cancel.CancelTimeout}}
	user := &TerminationError{Reason: cancel.Reason{Type: cancel.CancelUser}}
	parent := &TerminationError{Reason: cancel.Reason{Type: cancel.CancelParent}}

	assert.ErrorIs(t, timeout, ErrTimeout)
	assert.NotErrorIs(t, timeout, ErrCanceled)
	assert.ErrorIs(t, user, ErrCanceled)
	assert.ErrorIs(t, parent, ErrCanceled)

	var term *TerminationError
	require.ErrorAs(t, fmt.Errorf("step: %w", user), &term)
	assert.Equal(t, cancel.CancelUser, term.Reason.Type)
}

func TestInvariantf(t *testing.T) {
	err := Invariantf("score of %s is NaN", "B")
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Contains(t, err.Error(), "score of B is NaN")
}

func TestFinishReasonFor(t *testing.T) {
	assert.Equal(t, FinishExhausted, FinishReasonFor(nil))
	assert.Equal(t, FinishTimeout, FinishReasonFor(&TerminationError{Reason: cancel.Reason{Type: cancel.CancelTimeout}}))
	assert.Equal(t, FinishCanceled, FinishReasonFor(&TerminationError{Reason: cancel.Reason{Type: cancel.CancelUser}}))
	assert.Equal(t, FinishFailed, FinishReasonFor(errors.New("boom")))
	assert.Equal(t, "canceled", FinishCanceled.String())
}

// -----------------------------------------------------------------------------
// Emitter
// -----------------------------------------------------------------------------

func TestEmitter_DeliversInOrder(t *testing.T) {
	e := NewEmitter[string, string](nil)

	var got []string
	e.Subscribe(func(ev Event[string, string]) {
		got = append(got, fmt.Sprintf("first:%s:%d", ev.Kind(), ev.Meta().Step))
	})
	e.Subscribe(func(ev Event[string, string]) {
		got = append(got, fmt.Sprintf("second:%s:%d", ev.Kind(), ev.Meta().Step))
	})

	e.Emit(GraphInitialized[string, string]{Header: Header{Step: 1}})
	e.Emit(Finished[string, string]{Header: Header{Step: 2}})

	want := []string{
		"first:graph_initialized:1",
		"second:graph_initialized:1",
		"first:finished:2",
		"second:finished:2",
	}
	assert.Equal(t, want, got)
}

func TestEmitter_KindFilterAndUnsubscribe(t *testing.T) {
	e := NewEmitter[string, string](nil)

	var solutions int
	id := e.Subscribe(func(Event[string, string]) { solutions++ }, KindSolutionFound)
	assert.Equal(t, 1, e.SubscriberCount())

	e.Emit(NodesExpanded[string, string]{})
	e.Emit(SolutionFound[string, string]{})
	assert.Equal(t, 1, solutions)

	assert.True(t, e.Unsubscribe(id))
	assert.False(t, e.Unsubscribe(id))
	e.Emit(SolutionFound[string, string]{})
	assert.Equal(t, 1, solutions)
}

func TestEmitter_RecoversPanics(t *testing.T) {
	e := NewEmitter[string, string](nil)

	var reached bool
	e.Subscribe(func(Event[string, string]) { panic("subscriber bug") })
	e.Subscribe(func(Event[string, string]) { reached = true })

	assert.NotPanics(t, func() { e.Emit(Finished[string, string]{}) })
	assert.True(t, reached, "handler after the panicking one must still run")
}

func TestEvents_ExhaustiveSwitch(t *testing.T) {
	events := []Event[string, string]{
		GraphInitialized[string, string]{},
		NodesExpanded[string, string]{},
		SolutionFound[string, string]{},
		RolloutCompleted[string, string]{},
		Finished[string, string]{},
	}
	for _, ev := range events {
		var kind Kind
		switch ev.(type) {
		case GraphInitialized[string, string]:
			kind = KindGraphInitialized
		case NodesExpanded[string, string]:
			kind = KindNodesExpanded
		case SolutionFound[string, string]:
			kind = KindSolutionFound
		case RolloutCompleted[string, string]:
			kind = KindRolloutCompleted
		case Finished[string, string]:
			kind = KindFinished
		default:
			t.Fatalf("unexpected event type %T", ev)
		}
		assert.Equal(t, kind, ev.Kind())
	}
}

// -----------------------------------------------------------------------------
// Control
// -----------------------------------------------------------------------------

func TestControl_Defaults(t *testing.T) {
	c := NewControl(WithControlID("run-1"))
	assert.Equal(t, "run-1", c.ID())
	assert.Equal(t, StateCreated, c.State())
	assert.True(t, c.HasNext())
	assert.Equal(t, 1, c.CPUBudget())
	assert.Zero(t, c.Timeout())
	_, ok := c.Deadline()
	assert.False(t, ok)
}

func TestControl_SetCPUBudget(t *testing.T) {
	c := NewControl()
	require.NoError(t, c.SetCPUBudget(4))
	assert.Equal(t, 4, c.CPUBudget())
	assert.ErrorIs(t, c.SetCPUBudget(0), ErrInvalidBudget)
	assert.Equal(t, 4, c.CPUBudget())
}

func TestControl_CancelIsStickyAndIdempotent(t *testing.T) {
	c := NewControl()
	c.Activate()
	require.NoError(t, c.Check(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Cancel()
		}()
	}
	wg.Wait()

	err := c.Check(context.Background())
	require.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, StateInactive, c.State())
	assert.False(t, c.HasNext())

	again := c.Check(context.Background())
	assert.Same(t, err, again)
}

func TestControl_DeadlineAtStepBoundary(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	c := NewControl(WithClock(clock))
	c.SetTimeout(time.Second)
	c.Activate()

	deadline, ok := c.Deadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Second), deadline)
	require.NoError(t, c.Check(context.Background()))

	now = now.Add(2 * time.Second)
	err := c.Check(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, FinishTimeout, FinishReasonFor(err))
}

func TestControl_SchedulerTimeoutFiresToken(t *testing.T) {
	sched := cancel.NewScheduler(nil)
	defer sched.Close()

	c := NewControl(WithScheduler(sched))
	c.SetTimeout(5 * time.Millisecond)
	c.Activate()

	select {
	case <-c.Token().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not fire the deadline")
	}
	reason, ok := c.Token().Reason()
	require.True(t, ok)
	assert.Equal(t, cancel.CancelTimeout, reason.Type)
	assert.ErrorIs(t, c.Check(context.Background()), ErrTimeout)
}

func TestControl_FinishStopsTimer(t *testing.T) {
	sched := cancel.NewScheduler(nil)
	defer sched.Close()

	c := NewControl(WithScheduler(sched))
	c.SetTimeout(time.Hour)
	c.Activate()
	assert.Equal(t, 1, sched.Pending())

	c.Finish()
	assert.Equal(t, 0, sched.Pending())
	assert.ErrorIs(t, c.Check(context.Background()), ErrInactive)
	assert.NoError(t, c.Err())
}

func TestControl_ParentContext(t *testing.T) {
	c := NewControl()
	c.Activate()

	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()

	err := c.Check(ctx)
	require.ErrorIs(t, err, ErrCanceled)
	var term *TerminationError
	require.ErrorAs(t, err, &term)
	assert.Equal(t, cancel.CancelParent, term.Reason.Type)
}

func TestControl_FailIsSticky(t *testing.T) {
	c := NewControl()
	c.Activate()
	boom := Invariantf("dominance cycle")
	c.Fail(boom)
	c.Fail(errors.New("later"))
	assert.Same(t, boom, c.Err())
	assert.Same(t, boom, c.Check(context.Background()))
}

func TestControl_HeaderAndSteps(t *testing.T) {
	c := NewControl(WithControlID("x"))
	assert.Equal(t, 1, c.NextStep())
	assert.Equal(t, 2, c.NextStep())
	h := c.Header()
	assert.Equal(t, "x", h.AlgorithmID)
	assert.Equal(t, 2, h.Step)
}
