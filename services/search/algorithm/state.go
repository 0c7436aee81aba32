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
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianSearch/services/search/cancel"
)

// State is the lifecycle state of a search algorithm.
type State int

const (
	// StateCreated is the state before the first step.
	StateCreated State = iota

	// StateActive is the state while steps produce events.
	StateActive

	// StateInactive is terminal. No further events are produced.
	StateInactive
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if this is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateInactive
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrCanceled is the root of every cancellation failure.
	ErrCanceled = errors.New("search canceled")

	// ErrTimeout is the root of every deadline failure.
	ErrTimeout = errors.New("search timed out")

	// ErrInvariant marks fatal programming or configuration errors such as
	// NaN scores or a broken dominance relation.
	ErrInvariant = errors.New("search invariant violated")

	// ErrInactive is returned by Step after a normal finish.
	ErrInactive = errors.New("search is inactive")

	// ErrInvalidBudget is returned for CPU budgets below one.
	ErrInvalidBudget = errors.New("cpu budget must be at least 1")
)

// TerminationError reports that a search was stopped by cancellation or
// timeout. It unwraps to ErrTimeout for CancelTimeout and ErrCanceled
// otherwise.
type TerminationError struct {
	Reason cancel.Reason
}

// Error implements error.
func (e *TerminationError) Error() string {
	return fmt.Sprintf("search terminated (%s)", e.Reason)
}

// Unwrap maps the cancel type onto the sentinel errors.
func (e *TerminationError) Unwrap() error {
	if e.Reason.Type == cancel.CancelTimeout {
		return ErrTimeout
	}
	return ErrCanceled
}

// Invariantf formats an error wrapping ErrInvariant.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
