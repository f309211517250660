// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package numerology

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceInt(t *testing.T) {
	tests := []struct {
		name     string
		in       int
		digit    int
		isMaster bool
		path     []int
	}{
		{"zero", 0, 0, false, nil},
		{"single digit", 7, 7, false, nil},
		{"ten", 10, 1, false, []int{1}},
		{"master input 11", 11, 11, true, nil},
		{"master input 22", 22, 22, true, nil},
		{"master input 33", 33, 33, true, nil},
		{"through 11", 29, 11, true, []int{11}},
		{"through 22", 499, 22, true, []int{22}},
		{"plain two", 20, 2, false, []int{2}},
		{"44 is not master", 44, 8, false, []int{8}},
		{"two steps", 99, 9, false, []int{18, 9}},
		{"999999 through 54", 999999, 9, false, []int{54, 9}},
		{"38 hits 11", 38, 11, true, []int{11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ReduceInt(tt.in)
			assert.Equal(t, tt.digit, r.Digit)
			assert.Equal(t, tt.isMaster, r.IsMaster)
			assert.Equal(t, tt.path, r.Path)
		})
	}
}

func TestReduce_BigInt(t *testing.T) {
	// 2^256 - 1 takes the arbitrary-precision path.
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	max.Sub(max, big.NewInt(1))
	r := Reduce(max)
	assert.GreaterOrEqual(t, r.Digit, 1)
	require.NotEmpty(t, r.Path)
	assert.Equal(t, r.Digit, r.Path[len(r.Path)-1])

	assert.Equal(t, Result{}, Reduce(nil))
	assert.Equal(t, Result{}, Reduce(big.NewInt(0)))
	assert.Equal(t, ReduceInt(29), Reduce(big.NewInt(29)))
}

func TestReduce_RangeProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	valid := map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true, 9: true, 11: true, 22: true, 33: true}

	check := func(r Result) {
		assert.True(t, valid[r.Digit], "digit %d out of range", r.Digit)
		assert.Equal(t, IsMasterNumber(r.Digit), r.IsMaster)
	}

	for i := 1; i < 5000; i++ {
		check(ReduceInt(i))
	}
	for i := 0; i < 500; i++ {
		n := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), 256))
		if n.Sign() == 0 {
			continue
		}
		check(Reduce(n))
	}
}

func TestReduceUint64(t *testing.T) {
	assert.Equal(t, ReduceInt(12345), ReduceUint64(12345))
	r := ReduceUint64(^uint64(0))
	assert.NotZero(t, r.Digit)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "11*", ReduceInt(11).String())
	assert.Equal(t, "7", ReduceInt(7).String())
}
