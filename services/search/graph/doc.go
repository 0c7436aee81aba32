// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph defines the search-tree data model and the contracts that
// search algorithms consume.
//
// # Model
//
// A search explores an implicitly defined directed graph described by a
// Generator. Every time the search reaches a state it creates a fresh Node,
// so the search tree is always a tree even when the generator describes a
// graph with shared successors:
//
//	Generator (implicit graph)          Search tree
//	    A                                    A
//	   / \                                  / \
//	  B   C                                B   C
//	   \ /                                 |   |
//	    D                                  D   D'
//
// A Node holds its external label (the domain state), the action that
// produced it, a non-owning pointer to its parent and an evaluation record.
// A Path is the root-to-node node sequence, recomputed on demand by walking
// parent pointers.
//
// # Contracts
//
//   - Generator: roots, successors, goal test.
//   - Evaluator: maps a Path to an Evaluation (score, optional
//     uncertainty, or a prune signal).
//   - SolutionReporter: optional evaluator extension for evaluators that
//     complete solutions while sampling.
//
// # Thread Safety
//
// Nodes are owned by exactly one search engine. Label, action, parent and
// depth never change after creation and may be read from any goroutine.
// The evaluation is written once by the owning engine before the node is
// published to an open collection.
package graph
