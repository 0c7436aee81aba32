// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cancel

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler owns the timers that cancel running searches at their
// deadlines.
//
// One Scheduler is created by the process that drives searches and passed to
// every engine it builds. Close stops every pending timer; it is tied to the
// owner's lifecycle, typically deferred in main.
//
// Thread Safety: Safe for concurrent use.
type Scheduler struct {
	logger *slog.Logger

	mu     sync.Mutex
	timers map[uint64]*time.Timer
	nextID uint64
	closed bool
}

// NewScheduler creates a scheduler.
//
// Inputs:
//   - logger: Logger for timer events. Nil uses slog.Default().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger,
		timers: make(map[uint64]*time.Timer),
	}
}

// Timer is a handle to a scheduled callback.
type Timer struct {
	id        uint64
	scheduler *Scheduler
	timer     *time.Timer
}

// AfterFunc runs fn on its own goroutine after delay.
//
// Inputs:
//   - delay: Non-negative delay.
//   - fn: Callback. Must not block for long.
//
// Outputs:
//   - *Timer: Handle for Stop.
//   - error: ErrSchedulerClosed or ErrInvalidDelay.
func (s *Scheduler) AfterFunc(delay time.Duration, fn func()) (*Timer, error) {
	if delay < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDelay, delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}

	s.nextID++
	id := s.nextID
	t := &Timer{id: id, scheduler: s}
	t.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	s.timers[id] = t.timer
	return t, nil
}

// Stop cancels the timer. Returns true if the callback had not yet run.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	s := t.scheduler
	s.mu.Lock()
	_, live := s.timers[t.id]
	delete(s.timers, t.id)
	s.mu.Unlock()
	t.timer.Stop()
	return live
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops all pending timers and rejects new ones. Idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stopped := len(s.timers)
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.logger.Debug("scheduler closed", slog.Int("stopped_timers", stopped))
}
