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
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handler is a callback for events.
type Handler[T comparable, A any] func(event Event[T, A])

// Subscription represents a registered event handler.
type Subscription[T comparable, A any] struct {
	// ID uniquely identifies this subscription.
	ID string

	// Handler is called for matching events.
	Handler Handler[T, A]

	// Kinds restricts delivery. Empty means all kinds.
	Kinds []Kind
}

// Emitter delivers events to subscribers.
//
// Handlers run synchronously on the emitting goroutine, in registration
// order, and see events in emission order. A panicking handler is recovered
// and logged; remaining handlers still run.
//
// Thread Safety: Safe for concurrent use.
type Emitter[T comparable, A any] struct {
	mu            sync.RWMutex
	subscriptions []*Subscription[T, A]
	logger        *slog.Logger
}

// NewEmitter creates an emitter.
//
// Inputs:
//   - logger: Logger for recovered panics. Nil uses slog.Default().
func NewEmitter[T comparable, A any](logger *slog.Logger) *Emitter[T, A] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter[T, A]{logger: logger}
}

// Subscribe registers a handler for events of the given kinds.
//
// Inputs:
//   - handler: The callback.
//   - kinds: Kinds to deliver. None means all.
//
// Outputs:
//   - string: Subscription ID for Unsubscribe.
func (e *Emitter[T, A]) Subscribe(handler Handler[T, A], kinds ...Kind) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription[T, A]{
		ID:      uuid.NewString(),
		Handler: handler,
		Kinds:   kinds,
	}
	e.subscriptions = append(e.subscriptions, sub)
	return sub.ID
}

// Unsubscribe removes a subscription. Returns false if id is unknown.
func (e *Emitter[T, A]) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subscriptions {
		if sub.ID == id {
			e.subscriptions = append(e.subscriptions[:i:i], e.subscriptions[i+1:]...)
			return true
		}
	}
	return false
}

// SubscriberCount returns the number of subscriptions.
func (e *Emitter[T, A]) SubscriberCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}

// Emit delivers event to every matching subscriber.
func (e *Emitter[T, A]) Emit(event Event[T, A]) {
	e.mu.RLock()
	subs := make([]*Subscription[T, A], len(e.subscriptions))
	copy(subs, e.subscriptions)
	e.mu.RUnlock()

	for _, sub := range subs {
		if sub.accepts(event.Kind()) {
			e.safeInvoke(sub.Handler, event)
		}
	}
}

func (s *Subscription[T, A]) accepts(kind Kind) bool {
	if len(s.Kinds) == 0 {
		return true
	}
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (e *Emitter[T, A]) safeInvoke(handler Handler[T, A], event Event[T, A]) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				slog.String("event_kind", event.Kind().String()),
				slog.String("algorithm_id", event.Meta().AlgorithmID),
				slog.Any("panic", r),
			)
		}
	}()
	handler(event)
}
