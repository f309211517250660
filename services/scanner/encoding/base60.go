// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package encoding maps candidate integers to fixed-width base-60 tokens.
//
// Each base-60 digit d is written as a 4-character syllable built from
// one of 12 animals (d / 5) and one of 5 elements (d % 5):
//
//	0  -> RAWU
//	26 -> SNFI
//	59 -> PIWA
//
// Multi-digit values are written most-significant digit first and joined
// with "-", so 2026 encodes as "HOMT-ROFI". All functions are pure.
package encoding

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Base is the radix of the structural encoding.
const Base = 60

// KeyWidth is the number of base-60 digits needed for any 256-bit scalar.
//
// 60^44 > 2^256 > 60^43.
const KeyWidth = 44

// Separator joins the per-digit tokens of an encoded value.
const Separator = "-"

var (
	// ErrInvalidToken is returned when a token cannot be decoded.
	ErrInvalidToken = errors.New("invalid base-60 token")

	// ErrDigitRange is returned when a digit lies outside 0-59.
	ErrDigitRange = errors.New("base-60 digit out of range")
)

var animals = [12]string{"RA", "OX", "TI", "RU", "DR", "SN", "HO", "GO", "MO", "RO", "DO", "PI"}

var elements = [5]string{"WU", "FI", "ER", "MT", "WA"}

var (
	animalIndex  = indexOf(animals[:])
	elementIndex = indexOf(elements[:])
	bigBase      = big.NewInt(Base)
)

func indexOf(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// Token60 returns the 4-character syllable for a single base-60 digit.
//
// Inputs:
//
//	d - Digit in 0-59.
//
// Outputs:
//
//	string - The syllable, e.g. "RAWU" for 0.
//	error - ErrDigitRange if d is outside 0-59.
func Token60(d int) (string, error) {
	if d < 0 || d >= Base {
		return "", fmt.Errorf("%w: %d", ErrDigitRange, d)
	}
	return animals[d/5] + elements[d%5], nil
}

// Digit60 is the inverse of Token60.
func Digit60(token string) (int, error) {
	if len(token) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	a, ok := animalIndex[token[:2]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown animal in %q", ErrInvalidToken, token)
	}
	e, ok := elementIndex[token[2:]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown element in %q", ErrInvalidToken, token)
	}
	return a*5 + e, nil
}

// Digits returns the base-60 digits of n, most significant first.
//
// Description:
//
//	Repeated division by 60. The result is left-padded with zeros to
//	width; a width smaller than the natural length never truncates.
//	Zero yields a single 0 digit (or width zeros). Negative inputs are
//	treated as their absolute value.
//
// Inputs:
//
//	n - Non-negative integer. Not modified.
//	width - Minimum number of digits.
//
// Outputs:
//
//	[]int - Digits, each in 0-59.
func Digits(n *big.Int, width int) []int {
	v := new(big.Int).Abs(n)
	var rev []int
	if v.Sign() == 0 {
		rev = append(rev, 0)
	}
	mod := new(big.Int)
	for v.Sign() > 0 {
		v.QuoRem(v, bigBase, mod)
		rev = append(rev, int(mod.Int64()))
	}
	for len(rev) < width {
		rev = append(rev, 0)
	}
	out := make([]int, len(rev))
	for i, d := range rev {
		out[len(rev)-1-i] = d
	}
	return out
}

// Encode returns the hyphen-joined token form of n padded to width digits.
func Encode(n *big.Int, width int) string {
	digits := Digits(n, width)
	var sb strings.Builder
	sb.Grow(len(digits) * 5)
	for i, d := range digits {
		if i > 0 {
			sb.WriteString(Separator)
		}
		sb.WriteString(animals[d/5])
		sb.WriteString(elements[d%5])
	}
	return sb.String()
}

// EncodeUint64 is Encode for small values.
func EncodeUint64(n uint64, width int) string {
	return Encode(new(big.Int).SetUint64(n), width)
}

// Decode parses a hyphen-joined token string back to its integer value.
// Leading zero digits are accepted, so Decode(Encode(n, w)) == n for any w.
func Decode(encoded string) (*big.Int, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidToken)
	}
	out := new(big.Int)
	for _, tok := range strings.Split(encoded, Separator) {
		d, err := Digit60(tok)
		if err != nil {
			return nil, err
		}
		out.Mul(out, bigBase)
		out.Add(out, big.NewInt(int64(d)))
	}
	return out, nil
}
