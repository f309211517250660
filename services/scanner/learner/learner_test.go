// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learner

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/numscan/services/scanner/events"
	"github.com/AleutianAI/numscan/services/scanner/scoring"
)

const tol = 1e-9

func assertBounded(t *testing.T, w scoring.Weights) {
	t.Helper()
	assert.InDelta(t, 1.0, w.Sum(), tol)
	for _, v := range w.Slice() {
		assert.GreaterOrEqual(t, v, MinWeight-tol)
		assert.LessOrEqual(t, v, MaxWeight+tol)
	}
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp    int64
		level int
		name  string
	}{
		{-50, 1, "Novice"},
		{0, 1, "Novice"},
		{99, 1, "Novice"},
		{100, 2, "Student"},
		{499, 2, "Student"},
		{500, 3, "Apprentice"},
		{2000, 4, "Expert"},
		{9999, 4, "Expert"},
		{10000, 5, "Master"},
		{1 << 40, 5, "Master"},
	}
	for _, tt := range tests {
		lvl := LevelForXP(tt.xp)
		assert.Equal(t, tt.level, lvl, "xp=%d", tt.xp)
		assert.Equal(t, tt.name, LevelName(lvl))
	}
	assert.Nil(t, NextThreshold(MaxLevel))
	require.NotNil(t, NextThreshold(1))
	assert.Equal(t, int64(100), *NextThreshold(1))
}

func TestXPFor(t *testing.T) {
	assert.Equal(t, int64(1), XPFor(Summary{}))
	assert.Equal(t, int64(50+3+2+1), XPFor(Summary{Hits: 1, KeysTested: 35_000, SeedsTested: 2_500}))
}

func TestReinforce_StaysBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	w := scoring.DefaultWeights()
	for i := 0; i < 5000; i++ {
		f := SubScores{Math: rng.Float64(), Numerology: rng.Float64(), Learned: rng.Float64()}
		s := SubScores{Math: rng.Float64(), Numerology: rng.Float64(), Learned: rng.Float64()}
		step := StepSize * float64(1+rng.Intn(50))
		w = Reinforce(w, f, s, step)
		assertBounded(t, w)
	}
}

func TestReinforce_Direction(t *testing.T) {
	w := scoring.DefaultWeights()
	next := Reinforce(w,
		SubScores{Math: 0.2, Numerology: 0.9, Learned: 0.1},
		SubScores{Math: 0.5, Numerology: 0.4, Learned: 0.1},
		StepSize)
	assert.Greater(t, next.Numerology, w.Numerology)
	assert.Less(t, next.Math, w.Math)
	assertBounded(t, next)
}

func TestProjectBounded_RepairsExtremes(t *testing.T) {
	out := scoring.FromSlice(ProjectBounded([3]float64{5, -3, 0}, MinWeight, MaxWeight))
	assertBounded(t, out)
	assert.InDelta(t, MaxWeight, out.Math, tol)
	assert.InDelta(t, MinWeight, out.Numerology, tol)
}

func TestComplete_LevelUpAndCapabilities(t *testing.T) {
	rec := events.NewRecorder()
	l := New("", WithPublisher(rec))

	assert.False(t, l.Gate(CapWeightAdaptation).Active)

	out, err := l.Complete(context.Background(), Summary{SessionID: "s1", Hits: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(101), out.XPGained)
	assert.Equal(t, 1, out.LevelBefore)
	assert.Equal(t, 2, out.LevelAfter)
	assert.Equal(t, []Capability{CapWeightAdaptation}, out.Unlocked)
	assert.True(t, l.Gate(CapWeightAdaptation).Active)

	levelUps := rec.ByType(events.TypeLevelUp)
	require.Len(t, levelUps, 1)
	data := levelUps[0].Data.(events.LevelUpData)
	assert.Equal(t, "Student", data.Name)
	assert.Equal(t, "s1", levelUps[0].SessionID)

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.Sessions)
	assert.Equal(t, uint64(1), snap.Version)
	require.NotNil(t, snap.XPNext)
	assert.Equal(t, int64(500), *snap.XPNext)
}

func TestComplete_WeightsAdaptOnlyWhenActive(t *testing.T) {
	findings := []scoring.Record{{MathScore: 0.1, NumerologyScore: 1, ReducedDigit: 9}}
	mean := SubScores{Math: 0.8, Numerology: 0.3}

	novice := New("")
	out, err := novice.Complete(context.Background(), Summary{Findings: findings, SessionMean: mean})
	require.NoError(t, err)
	assert.Equal(t, out.WeightsBefore, out.WeightsAfter)

	student := New("")
	_, err = student.AddXP(context.Background(), 100, "test")
	require.NoError(t, err)
	out, err = student.Complete(context.Background(), Summary{Findings: findings, SessionMean: mean})
	require.NoError(t, err)
	assert.Greater(t, out.WeightsAfter.Numerology, out.WeightsBefore.Numerology)
	assertBounded(t, out.WeightsAfter)
}

func TestProfile_LearnedScoringGated(t *testing.T) {
	ctx := context.Background()
	l := New("")
	_, err := l.AddXP(ctx, 500, "test")
	require.NoError(t, err)

	findings := []scoring.Record{{ReducedDigit: 7}, {ReducedDigit: 7}, {ReducedDigit: 11}}
	_, err = l.Complete(ctx, Summary{Findings: findings})
	require.NoError(t, err)

	p := l.Profile()
	assert.Greater(t, p.Affinity.For(7), 0.0)
	assert.Greater(t, p.Affinity.For(11), 0.0)
	assert.Equal(t, 0.0, p.Affinity.For(3))
	assert.Greater(t, p.Affinity.For(7), p.Affinity.For(11))
}

func TestGate_Unknown(t *testing.T) {
	st := New("").Gate("teleport")
	assert.False(t, st.Active)
	assert.Equal(t, "unknown capability", st.Reason)

	st = New("").Gate(CapAutoTuning)
	assert.False(t, st.Active)
	assert.Equal(t, 5, st.RequiredLevel)
	assert.NotEmpty(t, st.Reason)
}

func TestTopNCapacity(t *testing.T) {
	l := New("")
	assert.Equal(t, 100, l.TopNCapacity(100))
	_, err := l.AddXP(context.Background(), 2000, "test")
	require.NoError(t, err)
	assert.Equal(t, 400, l.TopNCapacity(100))
}

func TestLevelNeverDecreases(t *testing.T) {
	ctx := context.Background()
	l := New("")
	_, err := l.AddXP(ctx, 600, "up")
	require.NoError(t, err)
	s, err := l.AddXP(ctx, -1000, "penalty")
	require.NoError(t, err)
	assert.Equal(t, int64(-400), s.XP)
	assert.Equal(t, 3, s.Level)
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "learning.json")

	l := New(path)
	_, err := l.AddXP(ctx, 550, "seed")
	require.NoError(t, err)
	_, err = l.Complete(ctx, Summary{
		Findings:    []scoring.Record{{NumerologyScore: 0.9, ReducedDigit: 22}},
		SessionMean: SubScores{Numerology: 0.4},
	})
	require.NoError(t, err)

	reloaded := New(path).Snapshot()
	orig := l.Snapshot()
	assert.Equal(t, orig.Level, reloaded.Level)
	assert.Equal(t, orig.XP, reloaded.XP)
	assert.Equal(t, orig.Weights, reloaded.Weights)
	assert.Equal(t, orig.DigitAffinity, reloaded.DigitAffinity)
	assert.Equal(t, orig.Version, reloaded.Version)
}

func TestPersistence_CorruptFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := New(path).Snapshot()
	assert.Equal(t, 1, s.Level)
	assert.Equal(t, scoring.DefaultWeights(), s.Weights)
}

func TestPersistence_RepairsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.json")
	raw := `{"level": 9, "xp": 700, "weights": {"math": 0.9, "numerology": 0.05, "learned": 0.05}, "digit_affinity": {"7": 3, "44": 1}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	s := New(path).Snapshot()
	assert.Equal(t, 3, s.Level)
	assertBounded(t, s.Weights)
	assert.Equal(t, 1.0, s.DigitAffinity[7])
	_, ok := s.DigitAffinity[44]
	assert.False(t, ok)
}

func TestSnapshot_IsCopy(t *testing.T) {
	l := New("")
	s := l.Snapshot()
	s.Capabilities[0] = "mutated"
	s.DigitAffinity[1] = 1
	assert.Equal(t, CapBasicScanning, l.Snapshot().Capabilities[0])
	assert.Empty(t, l.Snapshot().DigitAffinity)
}

func TestComplete_Concurrent(t *testing.T) {
	l := New("")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Complete(context.Background(), Summary{KeysTested: 10_000})
			_ = l.Snapshot()
		}()
	}
	wg.Wait()
	s := l.Snapshot()
	assert.Equal(t, 20, s.Sessions)
	assert.Equal(t, int64(40), s.XP)
}
