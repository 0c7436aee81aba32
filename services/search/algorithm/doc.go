// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package algorithm defines the step-wise execution contract shared by all
// search engines.
//
// # Lifecycle
//
//	CREATED --first Step--> ACTIVE --exhausted / budget--> INACTIVE
//	                          |
//	                          +--cancel / timeout / fatal--> INACTIVE (sticky error)
//
// A driver loops while HasNext and calls Step(ctx), which returns exactly
// one Event or an error. The last event of a normal run is Finished. When a
// run is canceled, times out or fails, Step returns the error (wrapping
// ErrCanceled, ErrTimeout or ErrInvariant) and subscribers still receive a
// Finished event; later Step calls return the same error.
//
// # Events
//
// Event is a closed union (GraphInitialized, NodesExpanded, SolutionFound,
// RolloutCompleted, Finished). Emitter delivers events synchronously to
// subscribers in registration order.
package algorithm
