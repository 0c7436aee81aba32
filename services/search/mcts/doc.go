// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcts implements Monte Carlo tree search with UCB1 selection over
// the same lazily generated graphs as package bestfirst.
//
// Statistics live on (state, action) pairs rather than on tree nodes, so
// transpositions share what they learn. Rewards come from a
// graph.PathScorer applied to goal rollouts; rollouts that miss a goal get
// Config.DeadEndPenalty.
package mcts
