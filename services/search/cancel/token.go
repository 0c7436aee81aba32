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
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Token is a one-shot cancellation flag.
//
// The first Cancel wins; its Reason is kept and later calls are no-ops.
// Readers poll Canceled without locking, which is what a search step does
// once at its start.
//
// Thread Safety: Safe for concurrent use.
type Token struct {
	fired  atomic.Bool
	once   sync.Once
	mu     sync.RWMutex
	reason Reason
	done   chan struct{}
}

// NewToken creates an untriggered token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel triggers the token.
//
// Inputs:
//   - reason: Why the token is canceled. Ignored if already triggered.
//
// Outputs:
//   - bool: True if this call triggered the token.
func (t *Token) Cancel(reason Reason) bool {
	triggered := false
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		t.fired.Store(true)
		close(t.done)
		triggered = true
	})
	return triggered
}

// Canceled reports whether the token has been triggered.
func (t *Token) Canceled() bool {
	return t.fired.Load()
}

// Reason returns the winning reason. ok is false until triggered.
func (t *Token) Reason() (reason Reason, ok bool) {
	if !t.fired.Load() {
		return Reason{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reason, true
}

// Done returns a channel closed when the token is triggered.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// ErrTokenCanceled is the context cause set by Context.
var ErrTokenCanceled = errors.New("search token canceled")

// Context derives a context that is canceled when either parent is done or
// the token fires.
//
// Evaluators receive this context so that rollouts stop promptly after a
// cancellation even though the engine itself only checks between steps.
//
// Outputs:
//   - context.Context: The derived context.
//   - context.CancelFunc: Releases resources. Must be called.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	if t.Canceled() {
		cancel(ErrTokenCanceled)
		return ctx, func() { cancel(context.Canceled) }
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-t.done:
			cancel(ErrTokenCanceled)
		case <-ctx.Done():
		case <-stop:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() { close(stop) })
		cancel(context.Canceled)
	}
}
