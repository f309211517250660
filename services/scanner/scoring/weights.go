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
	"errors"
	"fmt"
	"math"
)

// WeightTolerance is the allowed deviation of a weight sum from 1.
const WeightTolerance = 1e-9

var (
	// ErrNegativeWeight is returned when a weight is negative or NaN.
	ErrNegativeWeight = errors.New("weight must be a non-negative number")

	// ErrUnnormalized is returned when weights do not sum to 1.
	ErrUnnormalized = errors.New("weights must sum to 1")
)

// Weights is the fusion vector applied to the three sub-scores.
type Weights struct {
	Math       float64 `json:"math" yaml:"math"`
	Numerology float64 `json:"numerology" yaml:"numerology"`
	Learned    float64 `json:"learned" yaml:"learned"`
}

// DefaultWeights is the starting vector for a fresh learning state.
func DefaultWeights() Weights {
	return Weights{Math: 0.40, Numerology: 0.40, Learned: 0.20}
}

// Sum returns the total of the three weights.
func (w Weights) Sum() float64 {
	return w.Math + w.Numerology + w.Learned
}

// Slice returns the weights in (math, numerology, learned) order.
func (w Weights) Slice() [3]float64 {
	return [3]float64{w.Math, w.Numerology, w.Learned}
}

// FromSlice builds Weights from (math, numerology, learned) order.
func FromSlice(v [3]float64) Weights {
	return Weights{Math: v[0], Numerology: v[1], Learned: v[2]}
}

// Normalize rescales the weights to sum to 1. Negative or NaN components
// are treated as 0; an all-zero vector normalizes to DefaultWeights.
func (w Weights) Normalize() Weights {
	v := w.Slice()
	var sum float64
	for i := range v {
		if math.IsNaN(v[i]) || v[i] < 0 {
			v[i] = 0
		}
		sum += v[i]
	}
	if sum == 0 || math.IsInf(sum, 0) {
		return DefaultWeights()
	}
	for i := range v {
		v[i] /= sum
	}
	return FromSlice(v)
}

// Validate checks that every weight is non-negative and the sum is 1.
func (w Weights) Validate() error {
	for _, v := range w.Slice() {
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("%w: %v", ErrNegativeWeight, w)
		}
	}
	if math.Abs(w.Sum()-1) > WeightTolerance {
		return fmt.Errorf("%w: sum=%g", ErrUnnormalized, w.Sum())
	}
	return nil
}

// AffinitySlots is the number of distinct reduced digits: 0-9 plus the
// three master numbers.
const AffinitySlots = 13

// Affinity maps each reduced digit to a learned preference in [0,1].
// Use Slot to index it. The zero value contributes nothing.
type Affinity [AffinitySlots]float64

// Slot returns the Affinity index for a reduced digit, or -1.
func Slot(digit int) int {
	switch {
	case digit >= 0 && digit <= 9:
		return digit
	case digit == 11:
		return 10
	case digit == 22:
		return 11
	case digit == 33:
		return 12
	default:
		return -1
	}
}

// SlotDigit is the inverse of Slot.
func SlotDigit(slot int) int {
	switch {
	case slot >= 0 && slot <= 9:
		return slot
	case slot == 10:
		return 11
	case slot == 11:
		return 22
	case slot == 12:
		return 33
	default:
		return -1
	}
}

// For returns the affinity of a reduced digit, 0 for unknown digits.
func (a Affinity) For(digit int) float64 {
	s := Slot(digit)
	if s < 0 {
		return 0
	}
	return clamp01(a[s])
}

// IsZero reports whether no digit carries any affinity.
func (a Affinity) IsZero() bool {
	for _, v := range a {
		if v != 0 {
			return false
		}
	}
	return true
}

// Profile is an immutable scoring snapshot: the weight vector plus the
// learned digit affinity. Taken once at session start.
type Profile struct {
	Weights  Weights  `json:"weights"`
	Affinity Affinity `json:"affinity"`
}

// DefaultProfile returns default weights with no learned affinity.
func DefaultProfile() Profile {
	return Profile{Weights: DefaultWeights()}
}
