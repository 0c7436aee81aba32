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
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SEARCH_"

// Load builds the configuration for a run.
//
// Description:
//
//	Layers are applied in order: Default(), the file at path (skipped when
//	path is empty), then SEARCH_* environment variables. The result is
//	validated before it is returned. Files are decoded with yaml.v3, which
//	also accepts JSON documents. Unknown keys are rejected so typos do not
//	silently fall back to defaults.
//
// Inputs:
//   - path: YAML or JSON file. May be empty.
//
// Outputs:
//   - Config: The validated configuration.
//   - error: Read, decode, override or validation failures.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode overlays a YAML or JSON document onto cfg. Keys missing from the
// document keep their current values.
func Decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode the config: %w", err)
	}
	return nil
}

// envBinding maps one variable onto a field.
type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

var envBindings = []envBinding{
	{"ALGORITHM", func(c *Config, v string) error { c.Algorithm = strings.ToLower(v); return nil }},
	{"TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Timeout })},
	{"CPUS", intVar(func(c *Config) *int { return &c.CPUs })},
	{"SEED", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		c.Seed = n
		return err
	}},
	{"OPEN_POLICY", func(c *Config, v string) error { c.Open.Policy = strings.ToLower(v); return nil }},
	{"OPEN_INTERVAL", intVar(func(c *Config) *int { return &c.Open.Interval })},
	{"PARENT_DISCARDING", func(c *Config, v string) error { c.BestFirst.ParentDiscarding = strings.ToLower(v); return nil }},
	{"MCTS_ITERATIONS", intVar(func(c *Config) *int { return &c.MCTS.Iterations })},
	{"SAMPLES", intVar(func(c *Config) *int { return &c.Sampling.Samples })},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Observability.LogLevel = strings.ToLower(v); return nil }},
	{"LOG_JSON", boolVar(func(c *Config) *bool { return &c.Observability.LogJSON })},
	{"TRACING_ENABLED", boolVar(func(c *Config) *bool { return &c.Observability.TracingEnabled })},
	{"TRACE_EXPORTER", func(c *Config, v string) error { c.Observability.TraceExporter = strings.ToLower(v); return nil }},
	{"OTLP_ENDPOINT", func(c *Config, v string) error { c.Observability.OTLPEndpoint = v; return nil }},
	{"METRICS_ENABLED", boolVar(func(c *Config) *bool { return &c.Observability.MetricsEnabled })},
	{"METRICS_ADDR", func(c *Config, v string) error { c.Observability.MetricsAddr = v; return nil }},
	{"GRAPH_KIND", func(c *Config, v string) error { c.Graph.Kind = strings.ToLower(v); return nil }},
	{"GRAPH_SEED", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		c.Graph.Seed = n
		return err
	}},
}

// ApplyEnv applies SEARCH_* overrides read through lookup.
//
// Inputs:
//   - cfg: The configuration to modify.
//   - lookup: Typically os.LookupEnv.
//
// Outputs:
//   - error: ErrInvalidConfig naming the variable that failed to parse.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		value, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.apply(cfg, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, EnvPrefix, b.name, value, err)
		}
	}
	return nil
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
