// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSearch/pkg/logging"
	"github.com/AleutianAI/AleutianSearch/services/search/bestfirst"
	"github.com/AleutianAI/AleutianSearch/services/search/evaluate"
	"github.com/AleutianAI/AleutianSearch/services/search/mcts"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AlgorithmBestFirst, cfg.Algorithm)
	assert.True(t, math.IsInf(cfg.Open.ExploitationScoreThreshold, 1))

	d, err := cfg.ParentDiscarding()
	require.NoError(t, err)
	assert.Equal(t, bestfirst.DiscardOpen, d)
	require.NoError(t, cfg.TreeSearchConfig().Validate())
	require.NoError(t, cfg.SamplingConfig().Validate())
	require.NoError(t, Oversearch[string](cfg).Validate())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") differs from Default() (-want +got):\n%s", diff)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := writeFile(t, "search.yaml", `
algorithm: mcts
timeout: 1500ms
cpus: 4
seed: 42
open:
  policy: oversearch
  interval: 6
  clock_model: true
  clock_budget: 10s
mcts:
  iterations: 250
  maximize: true
graph:
  kind: tree
  branching: 3
  depth: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, AlgorithmMCTS, cfg.Algorithm)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 4, cfg.CPUs)
	assert.Equal(t, "oversearch", cfg.Open.Policy)
	assert.Equal(t, 10*time.Second, cfg.Open.ClockBudget)
	assert.Equal(t, 0.5, cfg.Open.ExploitationShare, "unset keys keep defaults")

	tree := cfg.TreeSearchConfig()
	assert.Equal(t, 250, tree.Iterations)
	assert.True(t, tree.Maximize)
	assert.Equal(t, int64(42), tree.Seed)
	assert.Equal(t, mcts.DefaultConfig().ExplorationConstant, tree.ExplorationConstant)

	over := Oversearch[int](cfg)
	assert.Equal(t, 6, over.Interval)
	assert.True(t, over.ClockModel)
	assert.Equal(t, 10*time.Second, over.Budget)

	sampling := cfg.SamplingConfig()
	assert.Equal(t, 4, sampling.CPUs)
	assert.Equal(t, int64(42), sampling.Seed)
	assert.Equal(t, evaluate.DefaultRandomCompletionConfig().Samples, sampling.Samples)
}

func TestLoad_JSONDocument(t *testing.T) {
	path := writeFile(t, "search.json", `{"algorithm": "bestfirst", "bestfirst": {"parent_discarding": "none"}, "graph": {"kind": "diamond"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	d, err := cfg.ParentDiscarding()
	require.NoError(t, err)
	assert.Equal(t, bestfirst.DiscardNone, d)
	assert.Equal(t, GraphDiamond, cfg.Graph.Kind)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeFile(t, "typo.yaml", "algoritm: mcts\n"))
		assert.Error(t, err)
	})
	t.Run("invalid value", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", "algorithm: dijkstra\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestDecode_EmptyKeepsConfig(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode([]byte("  \n"), &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SEARCH_ALGORITHM":       "MCTS",
		"SEARCH_TIMEOUT":         "2m",
		"SEARCH_CPUS":            "8",
		"SEARCH_SEED":            "-3",
		"SEARCH_LOG_JSON":        "true",
		"SEARCH_METRICS_ENABLED": "1",
		"SEARCH_GRAPH_KIND":      "tree",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, lookup))

	assert.Equal(t, AlgorithmMCTS, cfg.Algorithm)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 8, cfg.CPUs)
	assert.Equal(t, int64(-3), cfg.Seed)
	assert.True(t, cfg.Observability.LogJSON)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, GraphTree, cfg.Graph.Kind)
	require.NoError(t, cfg.Validate())

	env = map[string]string{"SEARCH_CPUS": "many"}
	err := ApplyEnv(&cfg, lookup)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "SEARCH_CPUS")

	unchanged := Default()
	require.NoError(t, ApplyEnv(&unchanged, noEnv))
	assert.Equal(t, Default(), unchanged)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SEARCH_OPEN_POLICY", "pareto")
	path := writeFile(t, "search.yaml", "open:\n  policy: oversearch\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pareto", cfg.Open.Policy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown algorithm", func(c *Config) { c.Algorithm = "astar" }},
		{"zero cpus", func(c *Config) { c.CPUs = 0 }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"unknown policy", func(c *Config) { c.Open.Policy = "lifo" }},
		{"share above one", func(c *Config) { c.Open.ExploitationShare = 1.5 }},
		{"NaN threshold", func(c *Config) { c.Open.ExploitationScoreThreshold = math.NaN() }},
		{"clock model without budget", func(c *Config) { c.Open.ClockModel = true }},
		{"unknown discarding", func(c *Config) { c.BestFirst.ParentDiscarding = "some" }},
		{"maximize with pareto", func(c *Config) { c.BestFirst.Maximize = true; c.Open.Policy = "pareto" }},
		{"zero iterations", func(c *Config) { c.MCTS.Iterations = 0 }},
		{"infinite penalty", func(c *Config) { c.MCTS.DeadEndPenalty = math.Inf(1) }},
		{"attempts below samples", func(c *Config) { c.Sampling.Samples = 5; c.Sampling.MaxAttempts = 2 }},
		{"unknown log level", func(c *Config) { c.Observability.LogLevel = "loud" }},
		{"unknown graph", func(c *Config) { c.Graph.Kind = "grid" }},
		{"unknown trace exporter", func(c *Config) { c.Observability.TraceExporter = "jaeger" }},
		{"bad otlp endpoint", func(c *Config) { c.Observability.OTLPEndpoint = "collector" }},
		{"tiny dag", func(c *Config) { c.Graph.Nodes = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoggingConfig(t *testing.T) {
	cfg := Default()
	cfg.Observability.LogLevel = "debug"
	cfg.Observability.LogJSON = true
	lc := cfg.LoggingConfig("pathsearch")
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "pathsearch", lc.Service)
	assert.True(t, lc.JSON)
}

func TestDAGConfig(t *testing.T) {
	cfg := Default()
	dag := cfg.DAGConfig()
	assert.Equal(t, cfg.Graph.Nodes, dag.Nodes)
	assert.Equal(t, cfg.Graph.Seed, dag.Seed)
}
