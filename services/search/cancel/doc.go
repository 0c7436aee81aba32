// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cancel provides the cancellation primitives shared by search
// engines.
//
// # Overview
//
// Searches are single-threaded and cooperative: the driver calls Step and
// the engine checks for cancellation once at the start of each step. The
// only cross-goroutine signal is the Token, an atomic one-shot flag that any
// goroutine may trigger:
//
//	driver goroutine          other goroutine / Scheduler timer
//	  engine.Step(ctx)   <-- token.Cancel(Reason{Type: CancelUser})
//	    token.Canceled()?
//
// # Timeouts
//
// Deadlines are enforced by a Scheduler that the owning process creates,
// passes to engines, and closes on shutdown. There is no package-level
// timer.
//
//	sched := cancel.NewScheduler(logger)
//	defer sched.Close()
//	engine, _ := bestfirst.New(gen, eval, bestfirst.WithScheduler[string, string](sched))
//
// # Cancel Types
//
//   - CancelUser: explicit Cancel by the driver
//   - CancelTimeout: deadline passed
//   - CancelParent: the driver's context was done
//   - CancelShutdown: process shutdown
package cancel
