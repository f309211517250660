// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package learner tracks experience across sessions and adapts the scoring
// weights from what each session found.
//
// A Learner is an explicit handle: callers construct one, share it, and
// read immutable versioned snapshots from it. Sessions take one snapshot at
// start and report back once at the end through Complete.
package learner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/AleutianAI/numscan/services/scanner/events"
	"github.com/AleutianAI/numscan/services/scanner/retry"
	"github.com/AleutianAI/numscan/services/scanner/scoring"
	"github.com/AleutianAI/numscan/services/scanner/storage/atomicfile"
)

const (
	xpPerHit        = 50
	keysPerXP       = 10_000
	seedsPerXP      = 1_000
	xpPerSession    = 1
	autoTuningBoost = 2
)

var (
	// ErrPersist is returned when the learning state could not be saved.
	// The in-memory state is still updated.
	ErrPersist = errors.New("persist learning state")
)

// State is the learning state. Values returned by Snapshot are copies.
type State struct {
	Version      uint64          `json:"version"`
	Level        int             `json:"level"`
	XP           int64           `json:"xp"`
	XPNext       *int64          `json:"xp_next"`
	Weights      scoring.Weights `json:"weights"`
	Capabilities []Capability    `json:"capabilities"`
	// DigitAffinity is keyed by reduced digit.
	DigitAffinity map[int]float64 `json:"digit_affinity"`
	Sessions      int             `json:"sessions"`
}

// LevelName returns the display name of s.Level.
func (s State) LevelName() string {
	return LevelName(s.Level)
}

// Affinity converts DigitAffinity to the scorer's table.
func (s State) Affinity() scoring.Affinity {
	var a scoring.Affinity
	for d, v := range s.DigitAffinity {
		if slot := scoring.Slot(d); slot >= 0 {
			a[slot] = v
		}
	}
	return a
}

func affinityMap(a scoring.Affinity) map[int]float64 {
	m := make(map[int]float64)
	for slot, v := range a {
		if v != 0 {
			m[scoring.SlotDigit(slot)] = v
		}
	}
	return m
}

func (s State) clone() State {
	out := s
	out.Capabilities = append([]Capability(nil), s.Capabilities...)
	out.DigitAffinity = make(map[int]float64, len(s.DigitAffinity))
	for k, v := range s.DigitAffinity {
		out.DigitAffinity[k] = v
	}
	if s.XPNext != nil {
		v := *s.XPNext
		out.XPNext = &v
	}
	return out
}

// DefaultState is the state of a learner that has never run.
func DefaultState() State {
	return State{
		Level:         1,
		XPNext:        NextThreshold(1),
		Weights:       scoring.DefaultWeights(),
		Capabilities:  CapabilitiesAt(1),
		DigitAffinity: map[int]float64{},
	}
}

// Summary is what a finished session reports to the learner.
type Summary struct {
	SessionID   string
	KeysTested  uint64
	SeedsTested uint64
	Hits        uint64

	// Findings are the records the session considers notable: confirmed
	// hits first, otherwise its top-N.
	Findings []scoring.Record

	// SessionMean is the mean sub-score over every candidate scored.
	SessionMean SubScores
}

// XPFor returns the experience awarded for a session summary.
func XPFor(s Summary) int64 {
	return int64(s.Hits)*xpPerHit +
		int64(s.KeysTested/keysPerXP) +
		int64(s.SeedsTested/seedsPerXP) +
		xpPerSession
}

// Outcome describes what Complete changed.
type Outcome struct {
	XPGained      int64           `json:"xp_gained"`
	LevelBefore   int             `json:"level_before"`
	LevelAfter    int             `json:"level_after"`
	Unlocked      []Capability    `json:"unlocked,omitempty"`
	WeightsBefore scoring.Weights `json:"weights_before"`
	WeightsAfter  scoring.Weights `json:"weights_after"`
	Version       uint64          `json:"version"`
}

// LeveledUp reports whether the session raised the level.
func (o Outcome) LeveledUp() bool {
	return o.LevelAfter > o.LevelBefore
}

// Learner owns the learning state.
//
// Thread Safety:
//
//	Safe for concurrent use. Snapshot never blocks on persistence.
type Learner struct {
	mu        sync.RWMutex
	state     State
	path      string
	logger    *slog.Logger
	publisher events.Publisher
	retryCfg  retry.Config
}

// Option configures a Learner.
type Option func(*Learner)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Learner) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPublisher sets where level_up events go.
func WithPublisher(p events.Publisher) Option {
	return func(l *Learner) {
		if p != nil {
			l.publisher = p
		}
	}
}

// WithRetry sets the persistence retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(l *Learner) {
		l.retryCfg = cfg
	}
}

// New loads the learner from path. An empty path keeps state in memory.
//
// Description:
//
//	A missing file starts from DefaultState. An unreadable or invalid file
//	also starts from DefaultState and logs a warning; it is overwritten on
//	the next successful Complete.
func New(path string, opts ...Option) *Learner {
	l := &Learner{
		path:      path,
		logger:    slog.Default(),
		publisher: events.Nop{},
		retryCfg:  retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.state = l.load()
	return l
}

func (l *Learner) load() State {
	if l.path == "" {
		return DefaultState()
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultState()
	}
	if err != nil {
		l.logger.Warn("learning state unreadable, using defaults",
			slog.String("path", l.path), slog.String("error", err.Error()))
		return DefaultState()
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		l.logger.Warn("learning state corrupt, using defaults",
			slog.String("path", l.path), slog.String("error", err.Error()))
		return DefaultState()
	}
	return repair(s, l.logger)
}

// repair clamps a loaded state back inside its invariants.
func repair(s State, logger *slog.Logger) State {
	if s.Level < 1 || s.Level > MaxLevel {
		logger.Warn("learning state level out of range, recomputing",
			slog.Int("level", s.Level))
		s.Level = LevelForXP(s.XP)
	}
	if lvl := LevelForXP(s.XP); lvl > s.Level {
		s.Level = lvl
	}
	if err := s.Weights.Validate(); err != nil {
		logger.Warn("learning state weights invalid, using defaults",
			slog.String("error", err.Error()))
		s.Weights = scoring.DefaultWeights()
	}
	if !withinBounds(s.Weights) {
		s.Weights = scoring.FromSlice(ProjectBounded(s.Weights.Slice(), MinWeight, MaxWeight))
	}
	s.XPNext = NextThreshold(s.Level)
	s.Capabilities = CapabilitiesAt(s.Level)
	if s.DigitAffinity == nil {
		s.DigitAffinity = map[int]float64{}
	}
	for d, v := range s.DigitAffinity {
		if scoring.Slot(d) < 0 {
			delete(s.DigitAffinity, d)
			continue
		}
		s.DigitAffinity[d] = max(0, min(1, v))
	}
	return s
}

// Snapshot returns a copy of the current state.
func (l *Learner) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.clone()
}

// Profile returns the scoring snapshot for a new session. The learned
// affinity is included only while learned_scoring is active.
func (l *Learner) Profile() scoring.Profile {
	s := l.Snapshot()
	p := scoring.Profile{Weights: s.Weights}
	if activeAt(CapLearnedScoring, s.Level) {
		p.Affinity = s.Affinity()
	}
	return p
}

// Gate reports whether a capability is active. It never fails; unknown
// and locked capabilities are declined with a reason.
func (l *Learner) Gate(c Capability) CapabilityStatus {
	l.mu.RLock()
	level := l.state.Level
	l.mu.RUnlock()
	return gate(c, level)
}

func gate(c Capability, level int) CapabilityStatus {
	req, ok := RequiredLevel(c)
	if !ok {
		return CapabilityStatus{Capability: c, Reason: "unknown capability"}
	}
	if level < req {
		return CapabilityStatus{
			Capability:    c,
			RequiredLevel: req,
			Reason:        fmt.Sprintf("requires level %d (%s), current level %d", req, LevelName(req), level),
		}
	}
	return CapabilityStatus{Capability: c, Active: true, RequiredLevel: req}
}

func activeAt(c Capability, level int) bool {
	return gate(c, level).Active
}

// TopNCapacity scales a base capacity by the extended_ranking capability.
func (l *Learner) TopNCapacity(base int) int {
	if l.Gate(CapExtendedRanking).Active {
		return base * 4
	}
	return base
}

// Complete folds a finished session into the learning state.
//
// Description:
//
//	Awards XP, raises the level (never lowers it), unlocks capabilities,
//	reinforces weights when weight_adaptation is active and blends digit
//	affinity when learned_scoring is active. The state is then persisted
//	and a level_up event is published when the level rose.
//
// Inputs:
//
//	ctx - Context for persistence retries.
//	s - The session summary.
//
// Outputs:
//
//	Outcome - The applied change. Valid even when error is non-nil.
//	error - Wraps ErrPersist if the state could not be saved.
func (l *Learner) Complete(ctx context.Context, s Summary) (Outcome, error) {
	l.mu.Lock()
	before := l.state.clone()
	next := l.state.clone()

	gained := XPFor(s)
	next.XP += gained
	if lvl := LevelForXP(next.XP); lvl > next.Level {
		next.Level = lvl
	}
	next.XPNext = NextThreshold(next.Level)
	next.Capabilities = CapabilitiesAt(next.Level)

	if activeAt(CapWeightAdaptation, next.Level) && len(s.Findings) > 0 {
		step := StepSize
		if activeAt(CapAutoTuning, next.Level) {
			step *= autoTuningBoost
		}
		next.Weights = Reinforce(next.Weights, MeanOf(s.Findings), s.SessionMean, step)
	}
	if activeAt(CapLearnedScoring, next.Level) {
		next.DigitAffinity = affinityMap(blendAffinity(next.Affinity(), s.Findings))
	}
	next.Sessions++
	next.Version++

	l.state = next
	persisted := next.clone()
	l.mu.Unlock()

	out := Outcome{
		XPGained:      gained,
		LevelBefore:   before.Level,
		LevelAfter:    next.Level,
		Unlocked:      unlockedBetween(before.Level, next.Level),
		WeightsBefore: before.Weights,
		WeightsAfter:  next.Weights,
		Version:       next.Version,
	}

	l.logger.Info("learning state updated",
		slog.String("session_id", s.SessionID),
		slog.Int64("xp_gained", gained),
		slog.Int64("xp", next.XP),
		slog.Int("level", next.Level),
		slog.Uint64("version", next.Version),
	)
	if out.LeveledUp() {
		unlocked := make([]string, len(out.Unlocked))
		for i, c := range out.Unlocked {
			unlocked[i] = string(c)
		}
		l.publisher.Publish(s.SessionID, events.TypeLevelUp, events.LevelUpData{
			From:     out.LevelBefore,
			To:       out.LevelAfter,
			Name:     LevelName(out.LevelAfter),
			Unlocked: unlocked,
		})
	}

	if err := l.persist(ctx, persisted); err != nil {
		return out, err
	}
	return out, nil
}

// AddXP awards experience outside a session, e.g. for a manual review.
// Negative amounts are applied but never lower the level.
func (l *Learner) AddXP(ctx context.Context, amount int64, reason string) (State, error) {
	l.mu.Lock()
	l.state.XP += amount
	if lvl := LevelForXP(l.state.XP); lvl > l.state.Level {
		l.state.Level = lvl
	}
	l.state.XPNext = NextThreshold(l.state.Level)
	l.state.Capabilities = CapabilitiesAt(l.state.Level)
	l.state.Version++
	snap := l.state.clone()
	l.mu.Unlock()

	l.logger.Info("xp adjusted",
		slog.Int64("amount", amount),
		slog.String("reason", reason),
		slog.Int("level", snap.Level),
	)
	return snap, l.persist(ctx, snap)
}

// Reset restores DefaultState and persists it.
func (l *Learner) Reset(ctx context.Context) error {
	l.mu.Lock()
	version := l.state.Version
	l.state = DefaultState()
	l.state.Version = version + 1
	snap := l.state.clone()
	l.mu.Unlock()
	return l.persist(ctx, snap)
}

func (l *Learner) persist(ctx context.Context, s State) error {
	if l.path == "" {
		return nil
	}
	_, err := retry.Do(ctx, l.retryCfg, func(context.Context, int) error {
		return atomicfile.WriteJSON(l.path, s, 0o600)
	})
	if err != nil {
		l.logger.Error("failed to persist learning state",
			slog.String("path", l.path), slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
