// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package entropy computes the statistical ("math") feature of a candidate.
package entropy

import (
	"math"
	"math/big"
)

// KeyBytes is the fixed width of a 256-bit key scalar.
const KeyBytes = 32

const (
	// shannonWeight and runWeight blend the two features into Score.
	shannonWeight = 0.8
	runWeight     = 0.2
)

// Features describes the disorder of a byte string.
type Features struct {
	// Shannon is the byte entropy normalised to [0,1] against the maximum
	// achievable for the input length (min(8, log2(len)) bits).
	Shannon float64 `json:"shannon"`

	// RunRegularity is the fraction of adjacent nibble pairs that are
	// equal. 1 for constant input, ~1/16 for random input.
	RunRegularity float64 `json:"run_regularity"`

	// Score is the combined math score in [0,1], monotone in disorder.
	Score float64 `json:"score"`
}

// Bytes returns the big-endian representation of n left-padded to width
// bytes. Values wider than width are returned unpadded.
func Bytes(n *big.Int, width int) []byte {
	abs := new(big.Int).Abs(n)
	if (abs.BitLen()+7)/8 > width {
		return abs.Bytes()
	}
	return abs.FillBytes(make([]byte, width))
}

// Profile computes the entropy features of b.
//
// Description:
//
//	Pure and deterministic. Empty and single-byte inputs carry no
//	measurable disorder and score 0.
//
// Inputs:
//
//	b - The fixed-width representation of a candidate. Not modified.
//
// Outputs:
//
//	Features - Normalised features; every field lies in [0,1].
func Profile(b []byte) Features {
	if len(b) < 2 {
		return Features{RunRegularity: 1}
	}

	var counts [256]int
	for _, c := range b {
		counts[c]++
	}
	n := float64(len(b))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	maxBits := math.Min(8, math.Log2(n))
	shannon := clamp01(h / maxBits)

	run := runRegularity(b)

	return Features{
		Shannon:       shannon,
		RunRegularity: run,
		Score:         clamp01(shannonWeight*shannon + runWeight*(1-run)),
	}
}

// Score is shorthand for Profile(b).Score.
func Score(b []byte) float64 {
	return Profile(b).Score
}

// runRegularity measures how often consecutive nibbles repeat.
func runRegularity(b []byte) float64 {
	prev := int(b[0] >> 4)
	equal, pairs := 0, 0
	for i, c := range b {
		hi, lo := int(c>>4), int(c&0x0f)
		if i > 0 {
			pairs++
			if hi == prev {
				equal++
			}
		}
		pairs++
		if lo == hi {
			equal++
		}
		prev = lo
	}
	return float64(equal) / float64(pairs)
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
