// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/numscan/pkg/validation"
	"github.com/AleutianAI/numscan/services/scanner/keyspace"
	"github.com/AleutianAI/numscan/services/scanner/learner"
)

// Mode selects what a session enumerates.
type Mode string

const (
	// ModeSequential scans an explicit [Start, End] key range.
	ModeSequential Mode = "sequential"

	// ModePuzzle scans the range of a numbered puzzle, [2^(p-1), 2^p-1].
	ModePuzzle Mode = "puzzle"

	// ModeSeed enumerates seed-phrase indices. Counts go to seeds_tested.
	ModeSeed Mode = "seed"
)

const (
	// SeedWordlistSize is the number of words per seed position.
	SeedWordlistSize = 2048

	// SeedWords is the phrase length enumerated in seed mode.
	SeedWords = 12
)

// MaxBatchSize is the largest accepted BatchSize.
const MaxBatchSize = 1 << 20

// SeedSpace returns the number of seed-phrase indices, 2048^12.
func SeedSpace() *big.Int {
	return new(big.Int).Exp(big.NewInt(SeedWordlistSize), big.NewInt(SeedWords), nil)
}

// Config is immutable for the lifetime of a session.
type Config struct {
	Mode   Mode     `yaml:"mode" json:"mode" validate:"required,oneof=sequential puzzle seed"`
	Chains []string `yaml:"chains" json:"chains" validate:"min=1,dive,required,lowercase"`

	// BatchSize is the number of candidates a worker claims at once. A
	// worker holds a whole batch in memory, so it is capped at MaxBatchSize.
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" validate:"gt=0,lte=1048576"`

	// CheckEveryN runs the match check after this many candidates per worker.
	CheckEveryN uint64 `yaml:"check_every_n" json:"check_every_n" validate:"gt=0"`

	Threads int `yaml:"threads" json:"threads" validate:"gt=0,lte=1024"`

	// CheckpointInterval is the number of consumed candidates between
	// checkpoints.
	CheckpointInterval uint64 `yaml:"checkpoint_interval" json:"checkpoint_interval" validate:"gt=0"`

	// ScoreThreshold admits candidates to the top-N and the vault.
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold" validate:"gte=0,lte=1"`

	Puzzle int `yaml:"puzzle,omitempty" json:"puzzle,omitempty" validate:"omitempty,min=1,max=256"`

	// Start and End bound the range in decimal or 0x hex. Required for
	// sequential mode, optional in seed mode.
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	End   string `yaml:"end,omitempty" json:"end,omitempty"`

	TopN int `yaml:"top_n" json:"top_n" validate:"gte=0,lte=100000"`

	// Features lists capabilities the session asks for. Locked ones are
	// declined at start and reported in Status.
	Features []string `yaml:"features,omitempty" json:"features,omitempty" validate:"dive,required"`

	// StatsInterval is the stats_update period. Zero disables the event.
	StatsInterval time.Duration `yaml:"stats_interval" json:"stats_interval" validate:"gte=0"`
}

// DefaultConfig returns a sequential config without a range. Callers set
// Start/End or switch Mode.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeSequential,
		Chains:             []string{"btc"},
		BatchSize:          1000,
		CheckEveryN:        10000,
		Threads:            4,
		CheckpointInterval: 100000,
		ScoreThreshold:     0.75,
		TopN:               100,
		StatsInterval:      time.Second,
	}
}

var validate = validator.New()

// Validate checks the config and resolves its range.
//
// Outputs:
//
//	error - A *ConfigError (wrapping ErrInvalidConfig) naming the first
//	        bad field, or nil.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: fe.Namespace(), Reason: describe(fe)}
		}
		return &ConfigError{Reason: err.Error()}
	}
	if err := validation.ValidateChains(c.Chains); err != nil {
		return &ConfigError{Field: "Config.Chains", Reason: err.Error()}
	}
	for _, f := range c.Features {
		if _, ok := learner.RequiredLevel(learner.Capability(f)); !ok {
			return &ConfigError{Field: "Config.Features", Reason: fmt.Sprintf("unknown capability %q", f)}
		}
	}
	if _, err := c.KeyRange(); err != nil {
		return err
	}
	return nil
}

func describe(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("failed %q (%s), got %v", fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("failed %q, got %v", fe.Tag(), fe.Value())
}

// KeyRange resolves the range the session scans.
func (c Config) KeyRange() (keyspace.Range, error) {
	switch c.Mode {
	case ModePuzzle:
		if c.Puzzle == 0 {
			return keyspace.Range{}, &ConfigError{Field: "Config.Puzzle", Reason: "required in puzzle mode"}
		}
		r, err := keyspace.PuzzleRange(c.Puzzle)
		if err != nil {
			return keyspace.Range{}, &ConfigError{Field: "Config.Puzzle", Reason: err.Error()}
		}
		return r, nil

	case ModeSeed:
		if c.Start == "" && c.End == "" {
			end := new(big.Int).Sub(SeedSpace(), big.NewInt(1))
			return keyspace.NewRange(big.NewInt(0), end)
		}
		r, err := c.explicitRange()
		if err != nil {
			return keyspace.Range{}, err
		}
		if r.End.Cmp(SeedSpace()) >= 0 {
			return keyspace.Range{}, &ConfigError{Field: "Config.End", Reason: "beyond the seed space"}
		}
		return r, nil

	case ModeSequential:
		if c.Start == "" || c.End == "" {
			return keyspace.Range{}, &ConfigError{Field: "Config.Start", Reason: "start and end are required in sequential mode"}
		}
		return c.explicitRange()

	default:
		return keyspace.Range{}, &ConfigError{Field: "Config.Mode", Reason: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
}

func (c Config) explicitRange() (keyspace.Range, error) {
	start, err := parseBound("Config.Start", c.Start)
	if err != nil {
		return keyspace.Range{}, err
	}
	end, err := parseBound("Config.End", c.End)
	if err != nil {
		return keyspace.Range{}, err
	}
	r, err := keyspace.NewRange(start, end)
	if err != nil {
		return keyspace.Range{}, &ConfigError{Field: "Config.End", Reason: err.Error()}
	}
	return r, nil
}

func parseBound(field, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok || n.Sign() < 0 {
		return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("not a non-negative integer: %q", s)}
	}
	return n, nil
}

// featureRequested reports whether c asks for capability f.
func (c Config) featureRequested(f learner.Capability) bool {
	for _, x := range c.Features {
		if learner.Capability(x) == f {
			return true
		}
	}
	return false
}
