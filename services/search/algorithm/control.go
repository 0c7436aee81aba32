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
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSearch/services/search/cancel"
	"github.com/google/uuid"
)

// Control implements the lifecycle shared by search engines: the state
// machine, cancellation, the deadline and the CPU budget.
//
// Engines call Check at the start of every step. Cancel and SetTimeout may
// be called from any goroutine.
//
// Thread Safety: Safe for concurrent use.
type Control struct {
	id        string
	logger    *slog.Logger
	token     *cancel.Token
	scheduler *cancel.Scheduler
	now       func() time.Time

	mu       sync.Mutex
	state    State
	timeout  time.Duration
	cpus     int
	started  time.Time
	deadline time.Time
	timer    *cancel.Timer
	step     int
	err      error
}

// ControlOption configures a Control.
type ControlOption func(*Control)

// WithControlID sets the algorithm ID. Default: a random UUID.
func WithControlID(id string) ControlOption {
	return func(c *Control) {
		if id != "" {
			c.id = id
		}
	}
}

// WithControlLogger sets the logger.
func WithControlLogger(logger *slog.Logger) ControlOption {
	return func(c *Control) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithScheduler arms deadlines on the given scheduler so that a timeout
// cancels in-flight evaluations. Without one, deadlines are still enforced
// at step boundaries.
func WithScheduler(s *cancel.Scheduler) ControlOption {
	return func(c *Control) { c.scheduler = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ControlOption {
	return func(c *Control) {
		if now != nil {
			c.now = now
		}
	}
}

// NewControl creates a Control in StateCreated with an unbounded timeout
// and a CPU budget of one.
func NewControl(opts ...ControlOption) *Control {
	c := &Control{
		id:     uuid.NewString(),
		logger: slog.Default(),
		token:  cancel.NewToken(),
		now:    time.Now,
		state:  StateCreated,
		cpus:   1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the algorithm ID.
func (c *Control) ID() string { return c.id }

// Token returns the cancellation token.
func (c *Control) Token() *cancel.Token { return c.token }

// State returns the current state.
func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasNext reports whether the state is not terminal.
func (c *Control) HasNext() bool {
	return !c.State().IsTerminal()
}

// SetTimeout sets the overall timeout. Zero or negative means unbounded.
//
// Before activation the deadline is measured from the first step; on an
// active run it is measured from now and any armed timer is replaced.
func (c *Control) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.timeout = d
	if c.state == StateActive {
		c.armLocked(c.now())
	}
}

// Timeout returns the configured timeout (0 = unbounded).
func (c *Control) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Deadline returns the armed deadline. ok is false when unbounded or not
// yet active.
func (c *Control) Deadline() (deadline time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline, !c.deadline.IsZero()
}

// SetCPUBudget sets the number of CPUs evaluators may use.
//
// Outputs:
//   - error: ErrInvalidBudget if n < 1.
func (c *Control) SetCPUBudget(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidBudget, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cpus = n
	return nil
}

// CPUBudget returns the CPU budget.
func (c *Control) CPUBudget() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cpus
}

// Cancel requests cancellation. Idempotent.
func (c *Control) Cancel() {
	c.CancelWithReason(cancel.NewReason(cancel.CancelUser, "cancel requested"))
}

// CancelWithReason requests cancellation with an explicit reason.
func (c *Control) CancelWithReason(reason cancel.Reason) {
	if c.token.Cancel(reason) {
		c.logger.Info("search cancellation requested",
			slog.String("algorithm_id", c.id),
			slog.String("reason", reason.String()),
		)
	}
}

// Activate moves CREATED to ACTIVE and arms the deadline.
func (c *Control) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCreated {
		return
	}
	c.state = StateActive
	c.started = c.now()
	c.armLocked(c.started)
}

// Elapsed returns the time since activation.
func (c *Control) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started.IsZero() {
		return 0
	}
	return c.now().Sub(c.started)
}

func (c *Control) armLocked(from time.Time) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.timeout <= 0 {
		c.deadline = time.Time{}
		return
	}
	c.deadline = from.Add(c.timeout)
	if c.scheduler == nil {
		return
	}
	timeout := c.timeout
	timer, err := c.scheduler.AfterFunc(timeout, func() {
		c.CancelWithReason(cancel.NewReason(cancel.CancelTimeout, "deadline of %s exceeded", timeout))
	})
	if err != nil {
		c.logger.Warn("deadline timer not armed; enforcing at step boundaries",
			slog.String("algorithm_id", c.id),
			slog.String("error", err.Error()),
		)
		return
	}
	c.timer = timer
}

// Check is called at the start of every step.
//
// Outputs:
//   - error: nil to proceed; the sticky termination error once the run is
//     canceled or timed out; ErrInactive after a normal finish.
func (c *Control) Check(ctx context.Context) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	if c.state == StateInactive {
		c.mu.Unlock()
		return ErrInactive
	}
	deadline := c.deadline
	c.mu.Unlock()

	if ctx != nil && ctx.Err() != nil {
		c.token.Cancel(cancel.NewReason(cancel.CancelParent, "%v", ctx.Err()))
	}
	if !deadline.IsZero() && !c.now().Before(deadline) {
		c.token.Cancel(cancel.NewReason(cancel.CancelTimeout, "deadline %s passed", deadline.Format(time.RFC3339Nano)))
	}
	if reason, ok := c.token.Reason(); ok {
		err := &TerminationError{Reason: reason}
		c.Fail(err)
		return err
	}
	return nil
}

// NextStep increments and returns the step counter.
func (c *Control) NextStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step++
	return c.step
}

// Header builds an event header for the current step.
func (c *Control) Header() Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Header{AlgorithmID: c.id, Step: c.step, Timestamp: c.now()}
}

// Finish ends the run normally.
func (c *Control) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Fail ends the run with a sticky error returned by every later Check.
func (c *Control) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	c.stopLocked()
}

// Err returns the sticky failure, if any.
func (c *Control) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Control) stopLocked() {
	c.state = StateInactive
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// FinishReasonFor maps a failure to the reason carried by Finished.
func FinishReasonFor(err error) FinishReason {
	switch {
	case err == nil:
		return FinishExhausted
	case errors.Is(err, ErrTimeout):
		return FinishTimeout
	case errors.Is(err, ErrCanceled):
		return FinishCanceled
	default:
		return FinishFailed
	}
}
