// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package numerology implements digit-root reduction with master numbers.
//
// A value is reduced by summing its decimal digits until a single digit
// remains. If the value, or any intermediate sum, equals one of the
// master numbers 11, 22 or 33, reduction stops there and the result is
// tagged as a master. Zero reduces to zero and is never a master.
package numerology

import (
	"math/big"
	"strconv"
)

// MasterNumbers are exempt from further reduction.
var MasterNumbers = [3]int{11, 22, 33}

// Result is the outcome of a reduction.
type Result struct {
	// Digit is 0 (input 0 only), 1-9, or a master number.
	Digit int `json:"digit"`

	// IsMaster is true iff Digit is 11, 22 or 33.
	IsMaster bool `json:"is_master"`

	// Path lists the intermediate digit sums, in order. The final element
	// equals Digit. Empty when the input was already terminal.
	Path []int `json:"path,omitempty"`
}

// IsMasterNumber reports whether v is one of the master numbers.
func IsMasterNumber(v int) bool {
	for _, m := range MasterNumbers {
		if v == m {
			return true
		}
	}
	return false
}

// Reduce reduces an arbitrary-precision non-negative integer.
//
// Description:
//
//	The first digit sum is taken over the decimal representation of n,
//	after which the value fits in an int and reduction continues on
//	ReduceInt. Negative inputs are reduced by absolute value.
//
// Inputs:
//
//	n - The value to reduce. Not modified. nil is treated as 0.
//
// Outputs:
//
//	Result - The reduced digit and master tag.
func Reduce(n *big.Int) Result {
	if n == nil || n.Sign() == 0 {
		return Result{}
	}
	if n.IsInt64() && n.Int64() >= 0 {
		return ReduceInt(int(n.Int64()))
	}
	s := new(big.Int).Abs(n).Text(10)
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += int(s[i] - '0')
	}
	r := ReduceInt(sum)
	r.Path = append([]int{sum}, r.Path...)
	return r
}

// ReduceUint64 reduces a machine-word value.
func ReduceUint64(n uint64) Result {
	if n <= uint64(^uint(0)>>1) {
		return ReduceInt(int(n))
	}
	return Reduce(new(big.Int).SetUint64(n))
}

// ReduceInt reduces a non-negative int. The master check is applied to the
// input and to every intermediate sum before reducing further.
func ReduceInt(n int) Result {
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return Result{}
	}
	var path []int
	v := n
	for {
		if IsMasterNumber(v) {
			return Result{Digit: v, IsMaster: true, Path: path}
		}
		if v < 10 {
			return Result{Digit: v, Path: path}
		}
		v = DigitSum(v)
		path = append(path, v)
	}
}

// DigitSum returns the sum of the decimal digits of v (v >= 0).
func DigitSum(v int) int {
	sum := 0
	for v > 0 {
		sum += v % 10
		v /= 10
	}
	return sum
}

// String formats a result as "7" or "11*" for masters.
func (r Result) String() string {
	s := strconv.Itoa(r.Digit)
	if r.IsMaster {
		s += "*"
	}
	return s
}
