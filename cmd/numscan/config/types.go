// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the numscan CLI configuration from
// ~/.numscan/numscan.yaml.
package config

import (
	"path/filepath"
	"time"

	"github.com/AleutianAI/numscan/pkg/logging"
	"github.com/AleutianAI/numscan/services/scanner/monitor"
	"github.com/AleutianAI/numscan/services/scanner/retry"
	"github.com/AleutianAI/numscan/services/scanner/session"
	"github.com/AleutianAI/numscan/services/scanner/telemetry"
)

// CurrentConfigVersion is written to new config files.
const CurrentConfigVersion = "1"

// PassphraseEnv names the variable holding the vault passphrase. The
// passphrase is never read from the config file.
const PassphraseEnv = "NUMSCAN_VAULT_PASSPHRASE"

type NumscanConfig struct {
	Meta MetaConfig `yaml:"meta"`

	// Session: defaults for "numscan scan"; flags override them
	Session session.Config `yaml:"session"`

	// Paths: where state lives. Relative paths resolve against DataDir.
	Paths PathsConfig `yaml:"paths"`

	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Retry     retry.Config     `yaml:"retry"`
	Monitor   MonitorConfig    `yaml:"monitor"`
	Serve     ServeConfig      `yaml:"serve"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type PathsConfig struct {
	DataDir       string `yaml:"data_dir" validate:"required"`
	CheckpointDir string `yaml:"checkpoint_dir"` // e.g. checkpoints
	LearnerFile   string `yaml:"learner_file"`   // e.g. learner.json
	VaultDir      string `yaml:"vault_dir"`      // badger directory
	TargetsFile   string `yaml:"targets_file"`   // one target per line; empty disables matching
}

type LoggingConfig struct {
	Level logging.Level `yaml:"level"`
	Dir   string        `yaml:"dir"`
	JSON  bool          `yaml:"json"`
}

type MonitorConfig struct {
	Interval time.Duration         `yaml:"interval" validate:"gte=0"`
	Influx   *monitor.InfluxConfig `yaml:"influx,omitempty"`
}

type ServeConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// Resolve returns p with every relative path joined onto DataDir and "~"
// expanded.
func (p PathsConfig) Resolve() PathsConfig {
	dir := expandHome(p.DataDir)
	join := func(s string) string {
		if s == "" {
			return ""
		}
		s = expandHome(s)
		if filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(dir, s)
	}
	return PathsConfig{
		DataDir:       dir,
		CheckpointDir: join(p.CheckpointDir),
		LearnerFile:   join(p.LearnerFile),
		VaultDir:      join(p.VaultDir),
		TargetsFile:   join(p.TargetsFile),
	}
}

func DefaultConfig() NumscanConfig {
	return NumscanConfig{
		Meta:    MetaConfig{Version: CurrentConfigVersion},
		Session: session.DefaultConfig(),
		Paths: PathsConfig{
			DataDir:       "~/.numscan",
			CheckpointDir: "checkpoints",
			LearnerFile:   "learner.json",
			VaultDir:      "vault",
		},
		Logging: LoggingConfig{
			Level: logging.LevelInfo,
			Dir:   "~/.numscan/logs",
		},
		Telemetry: telemetry.DefaultConfig(),
		Retry:     retry.DefaultConfig(),
		Monitor:   MonitorConfig{Interval: 5 * time.Second},
		Serve:     ServeConfig{Addr: "127.0.0.1:9464"},
	}
}
