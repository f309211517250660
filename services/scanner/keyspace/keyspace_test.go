// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package keyspace

import (
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRange(t *testing.T, start, end int64) Range {
	t.Helper()
	r, err := NewRange(big.NewInt(start), big.NewInt(end))
	require.NoError(t, err)
	return r
}

func TestPuzzleRange(t *testing.T) {
	r, err := PuzzleRange(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Start.Int64())
	assert.Equal(t, int64(1), r.End.Int64())

	r, err = PuzzleRange(20)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<19), r.Start.Int64())
	assert.Equal(t, int64(1<<20-1), r.End.Int64())

	_, err = PuzzleRange(0)
	assert.ErrorIs(t, err, ErrInvalidPuzzle)
	_, err = PuzzleRange(MaxPuzzle + 1)
	assert.ErrorIs(t, err, ErrInvalidPuzzle)
}

func TestNewRange_Invalid(t *testing.T) {
	_, err := NewRange(big.NewInt(10), big.NewInt(9))
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = NewRange(big.NewInt(-1), big.NewInt(9))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRange_Overlaps(t *testing.T) {
	a := mustRange(t, 0, 99)
	assert.True(t, a.Overlaps(mustRange(t, 99, 200)))
	assert.True(t, a.Overlaps(mustRange(t, 10, 20)))
	assert.False(t, a.Overlaps(mustRange(t, 100, 200)))
}

func TestPartitioner_DisjointCover(t *testing.T) {
	p := NewPartitioner(mustRange(t, 1000, 1999), 64, 0)

	seen := make(map[int64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				b, ok := p.Next()
				if !ok {
					return
				}
				mu.Lock()
				for _, c := range b.Candidates() {
					assert.False(t, seen[c.Int64()], "candidate %d claimed twice", c.Int64())
					seen[c.Int64()] = true
				}
				mu.Unlock()
				assert.NoError(t, p.Release(b))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
	assert.True(t, p.Done())
	assert.Equal(t, int64(2000), p.Position().Int64())
	assert.Equal(t, 1.0, p.Progress())
}

func TestPartitioner_WatermarkOutOfOrder(t *testing.T) {
	p := NewPartitioner(mustRange(t, 0, 99), 10, 0)
	b0, _ := p.Next()
	b1, _ := p.Next()
	b2, _ := p.Next()

	require.NoError(t, p.Release(b2))
	assert.Equal(t, uint64(0), p.Watermark())
	require.NoError(t, p.Release(b1))
	assert.Equal(t, uint64(0), p.Watermark())
	require.NoError(t, p.Release(b0))
	assert.Equal(t, uint64(30), p.Watermark())

	assert.ErrorIs(t, p.Release(b0), ErrUnknownBatch)
}

func TestPartitioner_ResumeOffset(t *testing.T) {
	r := mustRange(t, 500, 599)
	p := NewPartitioner(r, 30, 40)
	b, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, int64(540), b.Start.Int64())
	assert.Equal(t, uint64(40), p.OffsetOf(big.NewInt(540)))
	assert.Equal(t, uint64(0), p.OffsetOf(big.NewInt(1)))
	assert.Equal(t, uint64(100), p.OffsetOf(big.NewInt(10_000)))

	// Last batch is truncated to the range end.
	var last Batch
	for {
		next, ok := p.Next()
		if !ok {
			break
		}
		last = next
	}
	assert.Equal(t, uint64(100), last.End())
	assert.True(t, p.Exhausted())
}

func TestPartitioner_WideRange(t *testing.T) {
	r, err := PuzzleRange(160)
	require.NoError(t, err)
	p := NewPartitioner(r, 1000, 0)
	assert.Equal(t, ^uint64(0), p.Total())

	b, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, 0, b.Start.Cmp(r.Start))
}

func TestPartitioner_ResolvedAboveWatermark(t *testing.T) {
	p := NewPartitioner(mustRange(t, 0, 99), 10, 0)
	b0, _ := p.Next()
	_, _ = p.Next() // still in flight
	b2, _ := p.Next()
	b3, _ := p.Next()

	require.NoError(t, p.Release(b2))
	require.NoError(t, p.Release(b3))
	require.NoError(t, p.Release(b0))
	assert.Equal(t, uint64(10), p.Watermark())
	assert.Equal(t, []Span{{Offset: 20, End: 30}, {Offset: 30, End: 40}}, p.Resolved())
}

func TestRestorePartitioner_SkipsResolvedSpans(t *testing.T) {
	spans := []Span{{Offset: 30, End: 40}, {Offset: 20, End: 30}, {Offset: 65, End: 70}, {Offset: 0, End: 5}}
	p := RestorePartitioner(mustRange(t, 0, 99), 10, 10, spans)
	assert.Equal(t, uint64(10), p.Watermark())

	var got []Span
	for {
		b, ok := p.Next()
		if !ok {
			break
		}
		got = append(got, Span{Offset: b.Offset, End: b.End()})
	}
	assert.Equal(t, []Span{
		{Offset: 10, End: 20},
		{Offset: 40, End: 50},
		{Offset: 50, End: 60},
		{Offset: 60, End: 65},
		{Offset: 70, End: 80},
		{Offset: 80, End: 90},
		{Offset: 90, End: 100},
	}, got)
	assert.True(t, p.Exhausted())

	// Releasing the first batch absorbs the restored spans it touches.
	p2 := RestorePartitioner(mustRange(t, 0, 99), 10, 10, spans)
	b, ok := p2.Next()
	require.True(t, ok)
	require.NoError(t, p2.Release(b))
	assert.Equal(t, uint64(40), p2.Watermark())
	assert.Equal(t, []Span{{Offset: 65, End: 70}}, p2.Resolved())
}

func TestRestorePartitioner_SpanAtWatermark(t *testing.T) {
	p := RestorePartitioner(mustRange(t, 0, 99), 10, 10, []Span{{Offset: 10, End: 20}})
	assert.Equal(t, uint64(20), p.Watermark())
	b, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(20), b.Offset)
}
