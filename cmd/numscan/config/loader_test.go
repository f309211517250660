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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/numscan/pkg/logging"
	"github.com/AleutianAI/numscan/services/scanner/session"
)

// TestLoadFrom_CreatesDefault verifies first-run creation and that the
// written file loads back to the defaults.
func TestLoadFrom_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "numscan.yaml")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if cfg.Meta.Version != CurrentConfigVersion {
		t.Errorf("Meta.Version = %q, want %q", cfg.Meta.Version, CurrentConfigVersion)
	}
	if cfg.Session.Mode != session.ModeSequential {
		t.Errorf("Session.Mode = %q, want sequential", cfg.Session.Mode)
	}
	if cfg.Session.StatsInterval != time.Second {
		t.Errorf("Session.StatsInterval = %v, want 1s", cfg.Session.StatsInterval)
	}
	if cfg.Logging.Level != logging.LevelInfo {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
}

// TestParse_OverridesKeepDefaults verifies partial files only change what
// they name.
func TestParse_OverridesKeepDefaults(t *testing.T) {
	data := []byte(`
session:
  mode: puzzle
  puzzle: 20
  threads: 8
  features: [weight_adaptation]
logging:
  level: debug
monitor:
  interval: 250ms
  influx:
    url: http://localhost:8086
    org: numscan
    bucket: perf
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if cfg.Session.Mode != session.ModePuzzle || cfg.Session.Puzzle != 20 {
		t.Errorf("Session = %+v, want puzzle 20", cfg.Session)
	}
	if cfg.Session.Threads != 8 {
		t.Errorf("Threads = %d, want 8", cfg.Session.Threads)
	}
	if cfg.Session.BatchSize != session.DefaultConfig().BatchSize {
		t.Errorf("BatchSize = %d, want default", cfg.Session.BatchSize)
	}
	if cfg.Logging.Level != logging.LevelDebug {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Monitor.Interval != 250*time.Millisecond {
		t.Errorf("Monitor.Interval = %v, want 250ms", cfg.Monitor.Interval)
	}
	if cfg.Monitor.Influx == nil || cfg.Monitor.Influx.Bucket != "perf" {
		t.Errorf("Monitor.Influx = %+v, want bucket perf", cfg.Monitor.Influx)
	}
	if err := cfg.Session.Validate(); err != nil {
		t.Errorf("session config should be valid: %v", err)
	}
}

// TestParse_Invalid verifies tag validation across sections.
func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "session: [unclosed"},
		{"zero threads", "session:\n  threads: 0\n"},
		{"unknown level", "logging:\n  level: loud\n"},
		{"bad trace exporter", "telemetry:\n  trace_exporter: zipkin\n"},
		{"influx without org", "monitor:\n  influx:\n    url: http://localhost:8086\n    bucket: b\n"},
		{"bad serve addr", "serve:\n  addr: nowhere\n"},
		{"retry backoff inverted", "retry:\n  initial_backoff: 5s\n  max_backoff: 1s\n"},
		{"missing data dir", "paths:\n  data_dir: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestPathsConfig_Resolve(t *testing.T) {
	dir := t.TempDir()
	p := PathsConfig{
		DataDir:       dir,
		CheckpointDir: "checkpoints",
		LearnerFile:   "/var/lib/numscan/learner.json",
		VaultDir:      "vault",
	}.Resolve()

	if p.CheckpointDir != filepath.Join(dir, "checkpoints") {
		t.Errorf("CheckpointDir = %q", p.CheckpointDir)
	}
	if p.LearnerFile != "/var/lib/numscan/learner.json" {
		t.Errorf("absolute LearnerFile changed: %q", p.LearnerFile)
	}
	if p.TargetsFile != "" {
		t.Errorf("empty TargetsFile resolved to %q", p.TargetsFile)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := (PathsConfig{DataDir: "~/.numscan"}).Resolve().DataDir; got != filepath.Join(home, ".numscan") {
		t.Errorf("DataDir = %q, want expanded home", got)
	}
}
