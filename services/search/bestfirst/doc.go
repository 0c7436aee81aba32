// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bestfirst implements a step-wise best-first search over a lazily
// generated graph.
//
// The frontier discipline is pluggable (see package open). With a priority
// frontier and an admissible, monotonic evaluator the first reported
// solution is optimal.
//
// Duplicate labels are controlled by ParentDiscarding. The default,
// DiscardOpen, keeps one open node per label, so the diamond A->B, A->C,
// B->D, C->D yields a single solution; DiscardNone keeps tree semantics and
// reports D once per path.
//
// Usage:
//
//	e, err := bestfirst.New(gen, evaluate.CostEvaluator[string, Edge](weight))
//	if err != nil {
//	    return err
//	}
//	for e.HasNext() {
//	    ev, err := e.Step(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    handle(ev)
//	}
package bestfirst
