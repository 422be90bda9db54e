// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the operator-facing YAML configuration file. It is
// a CLI-adjacent collaborator, not part of the CORE: the CORE packages
// never import it, they only accept the plain values (root, job/run id,
// retention policy, hashing options) it produces.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ClusterCockpit/ckptkit/internal/atomiccommit"
)

// Hashing controls sampled-vs-full hashing defaults.
type Hashing struct {
	SampleBytes int64 `yaml:"sample_bytes"`
	Threads     int   `yaml:"threads"`
	Full        bool  `yaml:"full"`
}

// Metrics controls where emit-metrics publishes its output.
type Metrics struct {
	Textfile       string            `yaml:"textfile"`
	Pushgateway    string            `yaml:"pushgateway"`
	PushgatewayJob string            `yaml:"pushgateway_job"`
	Labels         map[string]string `yaml:"labels"`
}

// Config is the root of config.yaml.
type Config struct {
	Root      string                       `yaml:"root"`
	JobID     string                       `yaml:"job_id"`
	RunID     string                       `yaml:"run_id"`
	Hashing   Hashing                      `yaml:"hashing"`
	Retention atomiccommit.RetentionPolicy `yaml:"retention"`
	Metrics   Metrics                      `yaml:"metrics"`
}

// Defaults mirrors the Python original's dataclass defaults: keep the last
// 3 checkpoints, 65536-byte sampled hashing, 4 hashing threads.
func Defaults() Config {
	return Config{
		JobID: "unknown",
		RunID: "unknown",
		Hashing: Hashing{
			SampleBytes: 65536,
			Threads:     4,
		},
		Retention: atomiccommit.RetentionPolicy{
			KeepLast: 3,
		},
		Metrics: Metrics{
			PushgatewayJob: "ckptkit",
		},
	}
}

// Load reads a YAML config file (if path is non-empty) over Defaults(),
// applying overrides on top of whatever the file set. An empty path is
// not an error: Load just returns Defaults()+overrides, exactly as the
// CLI's bare flags do without a --config. A non-empty path that cannot be
// read is an error.
func Load(path string, overrides func(*Config)) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if overrides != nil {
		overrides(&cfg)
	}
	return cfg, nil
}
