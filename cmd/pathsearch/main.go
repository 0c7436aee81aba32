// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pathsearch runs a step-wise search over a synthetic graph and
// prints every event.
//
// Usage:
//
//	go run ./cmd/pathsearch run
//	go run ./cmd/pathsearch run --graph diamond --open pareto
//	go run ./cmd/pathsearch run --algorithm mcts --iterations 500 --seed 7
//	go run ./cmd/pathsearch run --config search.yaml --trace stdout --metrics-addr :9090
//
// Configuration is read from defaults, the --config file and SEARCH_*
// environment variables; flags given on the command line win.
package main

import (
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
