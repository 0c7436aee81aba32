// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads search run settings from defaults, a YAML file and
// SEARCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianSearch/pkg/logging"
	"github.com/AleutianAI/AleutianSearch/services/search/bestfirst"
	"github.com/AleutianAI/AleutianSearch/services/search/evaluate"
	"github.com/AleutianAI/AleutianSearch/services/search/mcts"
	"github.com/AleutianAI/AleutianSearch/services/search/open"
	"github.com/AleutianAI/AleutianSearch/services/search/synthetic"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid search config")

// Algorithm names.
const (
	AlgorithmBestFirst = "bestfirst"
	AlgorithmMCTS      = "mcts"
)

// Graph kinds.
const (
	GraphDiamond = "diamond"
	GraphTree    = "tree"
	GraphDAG     = "dag"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// configValidate is the validator instance for search configuration.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	// NaN passes every numeric comparison tag, so it gets its own check.
	_ = configValidate.RegisterValidation("notnan", validateNotNaN)
}

func validateNotNaN(fl validator.FieldLevel) bool {
	return !math.IsNaN(fl.Field().Float())
}

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the complete configuration of one search run.
type Config struct {
	Algorithm     string              `yaml:"algorithm" validate:"oneof=bestfirst mcts"`
	Timeout       time.Duration       `yaml:"timeout" validate:"gte=0"`
	CPUs          int                 `yaml:"cpus" validate:"gte=1,lte=1024"`
	Seed          int64               `yaml:"seed"`
	Open          OpenConfig          `yaml:"open"`
	BestFirst     BestFirstConfig     `yaml:"bestfirst"`
	MCTS          MCTSConfig          `yaml:"mcts"`
	Sampling      SamplingConfig      `yaml:"sampling"`
	Observability ObservabilityConfig `yaml:"observability"`
	Graph         GraphConfig         `yaml:"graph"`
}

// OpenConfig selects and tunes the open collection.
type OpenConfig struct {
	Policy                          string        `yaml:"policy" validate:"oneof=priority pareto oversearch"`
	Interval                        int           `yaml:"interval" validate:"gte=1"`
	ExploitationShare               float64       `yaml:"exploitation_share" validate:"notnan,gte=0,lte=1"`
	ExploitationScoreThreshold      float64       `yaml:"exploitation_score_threshold" validate:"notnan"`
	ExplorationUncertaintyThreshold float64       `yaml:"exploration_uncertainty_threshold" validate:"notnan,gte=0"`
	ClockModel                      bool          `yaml:"clock_model"`
	ClockBudget                     time.Duration `yaml:"clock_budget" validate:"gte=0"`
}

// BestFirstConfig tunes the best-first engine.
type BestFirstConfig struct {
	ParentDiscarding string `yaml:"parent_discarding" validate:"omitempty,oneof=none open all"`
	ExpandGoals      bool   `yaml:"expand_goals"`
	Maximize         bool   `yaml:"maximize"`
}

// MCTSConfig tunes the tree search.
type MCTSConfig struct {
	Iterations          int     `yaml:"iterations" validate:"gte=1"`
	ExplorationConstant float64 `yaml:"exploration_constant" validate:"notnan,gte=0"`
	MaxRolloutDepth     int     `yaml:"max_rollout_depth" validate:"gte=1"`
	Maximize            bool    `yaml:"maximize"`
	DeadEndPenalty      float64 `yaml:"dead_end_penalty" validate:"notnan"`
}

// SamplingConfig tunes the random-completion evaluator.
type SamplingConfig struct {
	Samples         int           `yaml:"samples" validate:"gte=1"`
	MaxAttempts     int           `yaml:"max_attempts" validate:"gte=0"`
	SampleTimeout   time.Duration `yaml:"sample_timeout" validate:"gte=0"`
	MaxRolloutDepth int           `yaml:"max_rollout_depth" validate:"gte=1"`
}

// ObservabilityConfig controls logging, tracing and metrics.
//
// Tracing selects the span exporter; metrics enable the engine collectors
// plus run-level OpenTelemetry metrics, served on MetricsAddr when set.
type ObservabilityConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=otlp stdout"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout"`
	MetricsAddr    string `yaml:"metrics_addr"`
	LogLevel       string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogJSON        bool   `yaml:"log_json"`
	LogDir         string `yaml:"log_dir"`
}

// GraphConfig describes the synthetic graph to search.
type GraphConfig struct {
	Kind            string  `yaml:"kind" validate:"oneof=diamond tree dag"`
	Nodes           int     `yaml:"nodes" validate:"gte=2"`
	Branching       int     `yaml:"branching" validate:"gte=1"`
	Depth           int     `yaml:"depth" validate:"gte=1,lte=16"`
	EdgeProbability float64 `yaml:"edge_probability" validate:"notnan,gte=0,lte=1"`
	MaxWeight       float64 `yaml:"max_weight" validate:"notnan,gte=1"`
	Seed            int64   `yaml:"seed"`
}

// Default returns the configuration used when no file is given: best-first
// search with a priority frontier over a seeded 20-node DAG.
func Default() Config {
	oversearch := open.DefaultOversearchConfig[int]()
	tree := mcts.DefaultConfig()
	sampling := evaluate.DefaultRandomCompletionConfig()
	return Config{
		Algorithm: AlgorithmBestFirst,
		CPUs:      1,
		Open: OpenConfig{
			Policy:                     string(open.PolicyPriority),
			Interval:                   oversearch.Interval,
			ExploitationShare:          oversearch.ExploitationShare,
			ExploitationScoreThreshold: oversearch.ExploitationScoreThreshold,
		},
		BestFirst: BestFirstConfig{
			ParentDiscarding: bestfirst.DiscardOpen.String(),
		},
		MCTS: MCTSConfig{
			Iterations:          tree.Iterations,
			ExplorationConstant: tree.ExplorationConstant,
			MaxRolloutDepth:     tree.MaxRolloutDepth,
			DeadEndPenalty:      tree.DeadEndPenalty,
		},
		Sampling: SamplingConfig{
			Samples:         sampling.Samples,
			MaxAttempts:     sampling.MaxAttempts,
			MaxRolloutDepth: sampling.MaxRolloutDepth,
		},
		Observability: ObservabilityConfig{
			TraceExporter:  "stdout",
			OTLPEndpoint:   "localhost:4317",
			MetricExporter: "prometheus",
			LogLevel:       "info",
		},
		Graph: GraphConfig{
			Kind:            GraphDAG,
			Nodes:           20,
			Branching:       2,
			Depth:           3,
			EdgeProbability: 0.3,
			MaxWeight:       10,
			Seed:            1,
		},
	}
}

// Validate checks struct tags and the rules that span fields.
//
// Outputs:
//   - error: ErrInvalidConfig wrapping the first problem, or nil.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Open.ClockModel && c.Open.ClockBudget <= 0 {
		return fmt.Errorf("%w: open.clock_model requires a positive open.clock_budget", ErrInvalidConfig)
	}
	if c.BestFirst.Maximize && c.Open.Policy != string(open.PolicyPriority) {
		return fmt.Errorf("%w: bestfirst.maximize requires the priority open policy, got %q", ErrInvalidConfig, c.Open.Policy)
	}
	if c.Sampling.MaxAttempts != 0 && c.Sampling.MaxAttempts < c.Sampling.Samples {
		return fmt.Errorf("%w: sampling.max_attempts (%d) is below sampling.samples (%d)",
			ErrInvalidConfig, c.Sampling.MaxAttempts, c.Sampling.Samples)
	}
	if math.IsInf(c.MCTS.DeadEndPenalty, 0) {
		return fmt.Errorf("%w: mcts.dead_end_penalty must be finite", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// =============================================================================
// Engine Settings
// =============================================================================

// Oversearch converts the open section into collection settings for
// labels of type T. Distance is left to the caller.
func Oversearch[T comparable](c Config) open.OversearchConfig[T] {
	cfg := open.DefaultOversearchConfig[T]()
	cfg.Interval = c.Open.Interval
	cfg.ExploitationShare = c.Open.ExploitationShare
	cfg.ExploitationScoreThreshold = c.Open.ExploitationScoreThreshold
	cfg.ExplorationUncertaintyThreshold = c.Open.ExplorationUncertaintyThreshold
	cfg.ClockModel = c.Open.ClockModel
	cfg.Budget = c.Open.ClockBudget
	return cfg
}

// ParentDiscarding parses the bestfirst section.
func (c Config) ParentDiscarding() (bestfirst.ParentDiscarding, error) {
	return bestfirst.ParseParentDiscarding(c.BestFirst.ParentDiscarding)
}

// TreeSearchConfig converts the mcts section. The run seed drives rollouts.
func (c Config) TreeSearchConfig() mcts.Config {
	return mcts.Config{
		Iterations:          c.MCTS.Iterations,
		ExplorationConstant: c.MCTS.ExplorationConstant,
		MaxRolloutDepth:     c.MCTS.MaxRolloutDepth,
		Maximize:            c.MCTS.Maximize,
		DeadEndPenalty:      c.MCTS.DeadEndPenalty,
		Seed:                c.Seed,
	}
}

// SamplingConfig converts the sampling section. CPUs, seed and direction
// come from the run and bestfirst sections.
func (c Config) SamplingConfig() evaluate.RandomCompletionConfig {
	return evaluate.RandomCompletionConfig{
		Samples:         c.Sampling.Samples,
		MaxAttempts:     c.Sampling.MaxAttempts,
		SampleTimeout:   c.Sampling.SampleTimeout,
		MaxRolloutDepth: c.Sampling.MaxRolloutDepth,
		Seed:            c.Seed,
		CPUs:            c.CPUs,
		Maximize:        c.BestFirst.Maximize,
	}
}

// DAGConfig converts the graph section for synthetic.RandomDAG.
func (c Config) DAGConfig() synthetic.DAGConfig {
	return synthetic.DAGConfig{
		Nodes:           c.Graph.Nodes,
		EdgeProbability: c.Graph.EdgeProbability,
		MaxWeight:       c.Graph.MaxWeight,
		Seed:            c.Graph.Seed,
	}
}

// LoggingConfig converts the observability section for pkg/logging.
func (c Config) LoggingConfig(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Observability.LogLevel)
	return logging.Config{
		Level:   level,
		Service: service,
		JSON:    c.Observability.LogJSON,
		LogDir:  c.Observability.LogDir,
	}
}
