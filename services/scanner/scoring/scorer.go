// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring fuses the structural, numeric and entropy features of a
// candidate into a single hybrid score.
//
// The pipeline for a candidate c under profile p is:
//
//	token      = encoding.Encode(c, width)
//	reduced    = numerology.Reduce(c)
//	math       = entropy.Profile(bytes(c)).Score
//	numerology = digit/9, or root/9 + MasterBonus for master numbers
//	learned    = p.Affinity.For(reduced.Digit)
//	final      = clamp01(w.Math*math + w.Numerology*numerology + w.Learned*learned)
//
// Scoring is pure: identical (candidate, profile) pairs produce identical
// records. Scorer values are safe for concurrent use.
package scoring

import (
	"cmp"
	"math"
	"math/big"
	"slices"

	"github.com/AleutianAI/numscan/services/scanner/encoding"
	"github.com/AleutianAI/numscan/services/scanner/entropy"
	"github.com/AleutianAI/numscan/services/scanner/numerology"
)

// MasterBonus is added to the numerology score of master numbers.
const MasterBonus = 0.35

// Record is the immutable result of scoring one candidate.
type Record struct {
	FinalScore      float64 `json:"final_score"`
	MathScore       float64 `json:"math_score"`
	NumerologyScore float64 `json:"numerology_score"`
	LearnedScore    float64 `json:"learned_score"`
	WeightsUsed     Weights `json:"weights_used"`
	Token           string  `json:"token"`
	ReducedDigit    int     `json:"reduced_digit"`
	IsMaster        bool    `json:"is_master"`
}

// Scored pairs a candidate with its record.
type Scored struct {
	Candidate *big.Int
	Record    Record
}

// Scorer scores candidates against a fixed profile.
type Scorer struct {
	profile    Profile
	tokenWidth int
	byteWidth  int
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTokenWidth sets the base-60 token width. Default: encoding.KeyWidth.
func WithTokenWidth(width int) Option {
	return func(s *Scorer) {
		if width > 0 {
			s.tokenWidth = width
		}
	}
}

// WithByteWidth sets the entropy representation width. Default: 32 bytes.
func WithByteWidth(width int) Option {
	return func(s *Scorer) {
		if width > 0 {
			s.byteWidth = width
		}
	}
}

// NewScorer creates a scorer for a profile. The profile's weights are
// normalized defensively so Record.WeightsUsed always sums to 1.
func NewScorer(profile Profile, opts ...Option) *Scorer {
	profile.Weights = profile.Weights.Normalize()
	s := &Scorer{
		profile:    profile,
		tokenWidth: encoding.KeyWidth,
		byteWidth:  entropy.KeyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the scorer's snapshot.
func (s *Scorer) Profile() Profile {
	return s.profile
}

// Score scores a single candidate.
//
// Inputs:
//
//	c - The candidate. Not modified. nil is scored as 0.
//
// Outputs:
//
//	Record - Every score lies in [0,1].
func (s *Scorer) Score(c *big.Int) Record {
	if c == nil {
		c = new(big.Int)
	}
	reduced := numerology.Reduce(c)
	mathScore := entropy.Score(entropy.Bytes(c, s.byteWidth))
	numScore := NumerologyScore(reduced)
	learned := s.profile.Affinity.For(reduced.Digit)
	w := s.profile.Weights

	return Record{
		FinalScore:      clamp01(w.Math*mathScore + w.Numerology*numScore + w.Learned*learned),
		MathScore:       mathScore,
		NumerologyScore: numScore,
		LearnedScore:    learned,
		WeightsUsed:     w,
		Token:           encoding.Encode(c, s.tokenWidth),
		ReducedDigit:    reduced.Digit,
		IsMaster:        reduced.IsMaster,
	}
}

// ScoreBatch scores every candidate and returns the results ordered by
// final score descending, ties broken by ascending candidate value.
func (s *Scorer) ScoreBatch(cs []*big.Int) []Scored {
	out := make([]Scored, len(cs))
	for i, c := range cs {
		if c == nil {
			c = new(big.Int)
		}
		out[i] = Scored{Candidate: c, Record: s.Score(c)}
	}
	SortScored(out)
	return out
}

// SortScored orders results by final score descending, candidate ascending.
func SortScored(results []Scored) {
	slices.SortStableFunc(results, func(a, b Scored) int {
		if c := cmp.Compare(b.Record.FinalScore, a.Record.FinalScore); c != 0 {
			return c
		}
		return a.Candidate.Cmp(b.Candidate)
	})
}

// Score scores c with explicit weights and no learned affinity.
func Score(c *big.Int, w Weights) Record {
	return NewScorer(Profile{Weights: w}).Score(c)
}

// ScoreBatch scores cs with explicit weights and no learned affinity.
func ScoreBatch(cs []*big.Int, w Weights) []Scored {
	return NewScorer(Profile{Weights: w}).ScoreBatch(cs)
}

// NumerologyScore scales a reduction result to [0,1].
//
// Plain digits score digit/9. Master numbers score their own digit root
// (11 -> 2, 22 -> 4, 33 -> 6) over 9 plus MasterBonus, capped at 1, so a
// candidate reducing through 11 always outranks one reducing to plain 2.
func NumerologyScore(r numerology.Result) float64 {
	if r.Digit <= 0 {
		return 0
	}
	if !r.IsMaster {
		return clamp01(float64(r.Digit) / 9)
	}
	root := numerology.DigitSum(r.Digit)
	return clamp01(float64(root)/9 + MasterBonus)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
