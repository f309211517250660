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
	"math"

	"github.com/AleutianAI/numscan/services/scanner/scoring"
)

const (
	// StepSize is the base weight update magnitude per session.
	StepSize = 0.02

	// MinWeight and MaxWeight bound every component after an update.
	MinWeight = 0.10
	MaxWeight = 0.70

	// affinityRate is the blend factor toward the latest digit frequencies.
	affinityRate = 0.10

	projectionIterations = 200
)

// SubScores is a mean of the three score components.
type SubScores struct {
	Math       float64 `json:"math"`
	Numerology float64 `json:"numerology"`
	Learned    float64 `json:"learned"`
}

func (s SubScores) slice() [3]float64 {
	return [3]float64{s.Math, s.Numerology, s.Learned}
}

// MeanOf averages the sub-scores of records. Empty input yields zeros.
func MeanOf(records []scoring.Record) SubScores {
	if len(records) == 0 {
		return SubScores{}
	}
	var m SubScores
	for _, r := range records {
		m.Math += r.MathScore
		m.Numerology += r.NumerologyScore
		m.Learned += r.LearnedScore
	}
	n := float64(len(records))
	return SubScores{Math: m.Math / n, Numerology: m.Numerology / n, Learned: m.Learned / n}
}

// Reinforce moves w toward the components that distinguish findings from
// the session average, then projects back into the bounded simplex.
//
// Description:
//
//	direction_i = clip(findings_i - session_i, -1, 1)
//	w'          = project(w + step*direction)
//
//	The result always sums to 1 and every component lies in
//	[MinWeight, MaxWeight]. A zero direction still projects, so out of
//	bounds inputs are repaired.
func Reinforce(w scoring.Weights, findings, session SubScores, step float64) scoring.Weights {
	f, s := findings.slice(), session.slice()
	v := w.Slice()
	for i := range v {
		d := f[i] - s[i]
		if math.IsNaN(d) {
			d = 0
		}
		v[i] += step * math.Max(-1, math.Min(1, d))
	}
	return scoring.FromSlice(ProjectBounded(v, MinWeight, MaxWeight))
}

func withinBounds(w scoring.Weights) bool {
	for _, v := range w.Slice() {
		if v < MinWeight-scoring.WeightTolerance || v > MaxWeight+scoring.WeightTolerance {
			return false
		}
	}
	return true
}

// ProjectBounded returns the Euclidean projection of v onto
// {x : sum(x) = 1, lo <= x_i <= hi}.
//
// The projection is clamp(v_i - tau, lo, hi) for the tau that makes the
// sum 1; tau is found by bisection. Requires n*lo <= 1 <= n*hi.
func ProjectBounded(v [3]float64, lo, hi float64) [3]float64 {
	for i := range v {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			v[i] = 1.0 / 3
		}
	}
	sumAt := func(tau float64) float64 {
		var s float64
		for _, x := range v {
			s += math.Max(lo, math.Min(hi, x-tau))
		}
		return s
	}

	// sumAt is non-increasing in tau; bracket the root.
	minV, maxV := v[0], v[0]
	for _, x := range v[1:] {
		minV = math.Min(minV, x)
		maxV = math.Max(maxV, x)
	}
	low, high := minV-hi, maxV-lo
	for i := 0; i < projectionIterations; i++ {
		mid := (low + high) / 2
		if sumAt(mid) > 1 {
			low = mid
		} else {
			high = mid
		}
	}
	tau := (low + high) / 2

	var out [3]float64
	var sum float64
	for i, x := range v {
		out[i] = math.Max(lo, math.Min(hi, x-tau))
		sum += out[i]
	}

	// Absorb residual rounding into a component with slack.
	if r := 1 - sum; r != 0 {
		for i := range out {
			if c := out[i] + r; c >= lo && c <= hi {
				out[i] = c
				break
			}
		}
	}
	return out
}

// blendAffinity moves each digit's affinity toward its relative frequency
// among findings.
func blendAffinity(a scoring.Affinity, findings []scoring.Record) scoring.Affinity {
	if len(findings) == 0 {
		return a
	}
	var counts [scoring.AffinitySlots]float64
	var peak float64
	for _, r := range findings {
		s := scoring.Slot(r.ReducedDigit)
		if s < 0 {
			continue
		}
		counts[s]++
		peak = math.Max(peak, counts[s])
	}
	if peak == 0 {
		return a
	}
	for i := range a {
		target := counts[i] / peak
		a[i] = math.Max(0, math.Min(1, (1-affinityRate)*a[i]+affinityRate*target))
	}
	return a
}
