// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/numscan/services/scanner/numerology"
)

func randomWeights(rng *rand.Rand) Weights {
	return Weights{Math: rng.Float64(), Numerology: rng.Float64(), Learned: rng.Float64()}.Normalize()
}

func TestScore_Range(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	limit := new(big.Int).Lsh(big.NewInt(1), 256)

	for i := 0; i < 300; i++ {
		c := new(big.Int).Rand(rng, limit)
		w := randomWeights(rng)
		r := Score(c, w)

		for _, v := range []float64{r.FinalScore, r.MathScore, r.NumerologyScore, r.LearnedScore} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.InDelta(t, 1.0, r.WeightsUsed.Sum(), WeightTolerance)
	}
}

func TestScore_Deterministic(t *testing.T) {
	profile := Profile{Weights: Weights{Math: 0.3, Numerology: 0.5, Learned: 0.2}}
	profile.Affinity[Slot(7)] = 0.9

	c, ok := new(big.Int).SetString("57896044618658097711785492504343953926634992332820282019728792003956564819967", 10)
	require.True(t, ok)

	a := NewScorer(profile).Score(c)
	b := NewScorer(profile).Score(c)
	assert.Equal(t, a, b)
}

func TestScore_MasterNumberBoost(t *testing.T) {
	w := DefaultWeights()

	// 29 reduces through 11; 20 reduces to plain 2. Same byte width, so
	// the only difference in numerology comes from the master bonus.
	master := Score(big.NewInt(29), w)
	plain := Score(big.NewInt(20), w)

	require.True(t, master.IsMaster)
	require.Equal(t, 11, master.ReducedDigit)
	require.Equal(t, 2, plain.ReducedDigit)
	assert.Greater(t, master.NumerologyScore, plain.NumerologyScore)

	assert.Greater(t, Score(big.NewInt(11), w).NumerologyScore, Score(big.NewInt(10), w).NumerologyScore)
}

func TestNumerologyScore(t *testing.T) {
	assert.Equal(t, 0.0, NumerologyScore(numerology.Result{}))
	assert.InDelta(t, 1.0, NumerologyScore(numerology.ReduceInt(9)), 1e-12)
	assert.InDelta(t, 2.0/9+MasterBonus, NumerologyScore(numerology.ReduceInt(11)), 1e-12)
	assert.InDelta(t, 6.0/9+MasterBonus, NumerologyScore(numerology.ReduceInt(33)), 1e-12)
}

func TestScore_LearnedAffinity(t *testing.T) {
	c := big.NewInt(7)

	none := NewScorer(DefaultProfile()).Score(c)
	assert.Equal(t, 0.0, none.LearnedScore)

	p := DefaultProfile()
	p.Affinity[Slot(7)] = 0.8
	with := NewScorer(p).Score(c)
	assert.InDelta(t, 0.8, with.LearnedScore, 1e-12)
	assert.Greater(t, with.FinalScore, none.FinalScore)
}

func TestScoreBatch_Ordering(t *testing.T) {
	cs := make([]*big.Int, 0, 200)
	for i := int64(0); i < 200; i++ {
		cs = append(cs, big.NewInt(i*i+3))
	}
	// Duplicates force the tie-break path.
	cs = append(cs, big.NewInt(3), big.NewInt(4))

	results := ScoreBatch(cs, DefaultWeights())
	require.Len(t, results, len(cs))

	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		require.GreaterOrEqual(t, prev.Record.FinalScore, cur.Record.FinalScore)
		if prev.Record.FinalScore == cur.Record.FinalScore {
			assert.LessOrEqual(t, prev.Candidate.Cmp(cur.Candidate), 0)
		}
	}
}

func TestScoreBatch_Empty(t *testing.T) {
	assert.Empty(t, ScoreBatch(nil, DefaultWeights()))
}

func TestWeights_Normalize(t *testing.T) {
	w := Weights{Math: 2, Numerology: 1, Learned: 1}.Normalize()
	assert.InDelta(t, 0.5, w.Math, 1e-12)
	assert.NoError(t, w.Validate())

	assert.Equal(t, DefaultWeights(), Weights{}.Normalize())
	assert.Equal(t, DefaultWeights(), Weights{Math: -1}.Normalize())

	assert.ErrorIs(t, Weights{Math: 0.5}.Validate(), ErrUnnormalized)
	assert.ErrorIs(t, Weights{Math: -0.5, Numerology: 1.5}.Validate(), ErrNegativeWeight)
}

func TestSlot_RoundTrip(t *testing.T) {
	for slot := 0; slot < AffinitySlots; slot++ {
		assert.Equal(t, slot, Slot(SlotDigit(slot)))
	}
	assert.Equal(t, -1, Slot(44))
	assert.Equal(t, 0.0, Affinity{}.For(44))
	assert.True(t, Affinity{}.IsZero())
}
