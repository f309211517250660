// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package keyspace describes candidate ranges and splits them into disjoint
// batches for workers.
package keyspace

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
)

// MaxPuzzle is the highest supported puzzle number (256-bit keys).
const MaxPuzzle = 256

var (
	// ErrInvalidRange is returned for empty or negative ranges.
	ErrInvalidRange = errors.New("invalid keyspace range")

	// ErrInvalidPuzzle is returned for puzzle numbers outside [1, MaxPuzzle].
	ErrInvalidPuzzle = errors.New("invalid puzzle number")

	// ErrUnknownBatch is returned when releasing a batch that was never
	// claimed or was already released.
	ErrUnknownBatch = errors.New("batch not claimed")
)

// Range is an inclusive interval of candidate values.
type Range struct {
	Start *big.Int
	End   *big.Int
}

// NewRange validates and builds a range.
func NewRange(start, end *big.Int) (Range, error) {
	if start == nil || end == nil || start.Sign() < 0 || end.Cmp(start) < 0 {
		return Range{}, fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, start, end)
	}
	return Range{Start: new(big.Int).Set(start), End: new(big.Int).Set(end)}, nil
}

// PuzzleRange maps puzzle number p to [2^(p-1), 2^p - 1].
func PuzzleRange(p int) (Range, error) {
	if p < 1 || p > MaxPuzzle {
		return Range{}, fmt.Errorf("%w: %d", ErrInvalidPuzzle, p)
	}
	one := big.NewInt(1)
	start := new(big.Int).Lsh(one, uint(p-1))
	end := new(big.Int).Sub(new(big.Int).Lsh(one, uint(p)), one)
	return Range{Start: start, End: end}, nil
}

// Size returns End - Start + 1.
func (r Range) Size() *big.Int {
	n := new(big.Int).Sub(r.End, r.Start)
	return n.Add(n, big.NewInt(1))
}

// Overlaps reports whether r and o share at least one value.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Cmp(o.End) <= 0 && o.Start.Cmp(r.End) <= 0
}

// Contains reports whether n lies in r.
func (r Range) Contains(n *big.Int) bool {
	return n.Cmp(r.Start) >= 0 && n.Cmp(r.End) <= 0
}

// String renders the range in hex.
func (r Range) String() string {
	return fmt.Sprintf("[%#x, %#x]", r.Start, r.End)
}

// Batch is a contiguous run of candidates claimed by one worker.
type Batch struct {
	// Offset is the distance of the first candidate from the range start.
	Offset uint64
	Count  uint64
	Start  *big.Int
}

// End returns the offset one past the batch.
func (b Batch) End() uint64 {
	return b.Offset + b.Count
}

// Candidates materialises the batch values.
func (b Batch) Candidates() []*big.Int {
	out := make([]*big.Int, b.Count)
	for i := uint64(0); i < b.Count; i++ {
		out[i] = new(big.Int).Add(b.Start, new(big.Int).SetUint64(i))
	}
	return out
}

// Span is a half-open offset interval [Offset, End).
type Span struct {
	Offset uint64 `json:"offset"`
	End    uint64 `json:"end"`
}

// Partitioner hands out disjoint batches and tracks a resolved watermark.
//
// Description:
//
//	Offsets are uint64 distances from Range.Start; ranges wider than
//	2^64-1 are scanned over their first 2^64-1 values. Batches may be
//	released in any order. The watermark is the end of the longest prefix
//	of released batches, so everything below it has been handled and it
//	never moves backwards.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Partitioner struct {
	mu        sync.Mutex
	r         Range
	total     uint64
	batchSize uint64
	next      uint64
	watermark uint64
	claimed   map[uint64]uint64
	resolved  map[uint64]uint64

	// skip holds restored spans above next, sorted, that Next must not
	// hand out again.
	skip []Span
}

// NewPartitioner creates a partitioner that begins at startOffset, usually
// a checkpoint watermark.
func NewPartitioner(r Range, batchSize, startOffset uint64) *Partitioner {
	if batchSize == 0 {
		batchSize = 1
	}
	total := uint64(math.MaxUint64)
	if size := r.Size(); size.IsUint64() {
		total = size.Uint64()
	}
	if startOffset > total {
		startOffset = total
	}
	return &Partitioner{
		r:         r,
		total:     total,
		batchSize: batchSize,
		next:      startOffset,
		watermark: startOffset,
		claimed:   make(map[uint64]uint64),
		resolved:  make(map[uint64]uint64),
	}
}

// RestorePartitioner creates a partitioner that begins at watermark and
// treats the given spans above it as already resolved. Spans are clipped
// to [watermark, Total) and overlapping spans are merged.
func RestorePartitioner(r Range, batchSize, watermark uint64, resolved []Span) *Partitioner {
	p := NewPartitioner(r, batchSize, watermark)
	spans := make([]Span, 0, len(resolved))
	for _, sp := range resolved {
		if sp.Offset < p.watermark {
			sp.Offset = p.watermark
		}
		if sp.End > p.total {
			sp.End = p.total
		}
		if sp.End > sp.Offset {
			spans = append(spans, sp)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Offset < spans[j].Offset })
	for _, sp := range spans {
		if n := len(p.skip); n > 0 && sp.Offset <= p.skip[n-1].End {
			if sp.End > p.skip[n-1].End {
				p.skip[n-1].End = sp.End
			}
			continue
		}
		p.skip = append(p.skip, sp)
	}
	for _, sp := range p.skip {
		p.resolved[sp.Offset] = sp.End
	}
	p.advance()
	return p
}

// Range returns the partitioned range.
func (p *Partitioner) Range() Range {
	return p.r
}

// Total returns the number of offsets the partitioner covers.
func (p *Partitioner) Total() uint64 {
	return p.total
}

// Next claims the next unclaimed batch. It returns false once every
// offset has been handed out.
func (p *Partitioner) Next() (Batch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skipResolved()
	if p.next >= p.total {
		return Batch{}, false
	}
	count := p.batchSize
	if rem := p.total - p.next; rem < count {
		count = rem
	}
	if len(p.skip) > 0 {
		if gap := p.skip[0].Offset - p.next; gap < count {
			count = gap
		}
	}
	b := Batch{
		Offset: p.next,
		Count:  count,
		Start:  new(big.Int).Add(p.r.Start, new(big.Int).SetUint64(p.next)),
	}
	p.claimed[b.Offset] = b.End()
	p.next = b.End()
	return b, true
}

// Release marks a claimed batch as resolved and advances the watermark
// over any contiguous resolved prefix.
func (p *Partitioner) Release(b Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	end, ok := p.claimed[b.Offset]
	if !ok || end != b.End() {
		return fmt.Errorf("%w: offset=%d", ErrUnknownBatch, b.Offset)
	}
	delete(p.claimed, b.Offset)
	p.resolved[b.Offset] = end
	p.advance()
	return nil
}

// skipResolved moves next past restored spans it has reached.
func (p *Partitioner) skipResolved() {
	for len(p.skip) > 0 && p.skip[0].Offset <= p.next {
		if end := p.skip[0].End; end > p.next {
			p.next = end
		}
		p.skip = p.skip[1:]
	}
}

func (p *Partitioner) advance() {
	for {
		end, ok := p.resolved[p.watermark]
		if !ok {
			return
		}
		delete(p.resolved, p.watermark)
		p.watermark = end
	}
}

// Resolved returns the resolved spans above the watermark, sorted. With
// Watermark it describes every handled offset; RestorePartitioner takes
// both back.
func (p *Partitioner) Resolved() []Span {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Span, 0, len(p.resolved))
	for off, end := range p.resolved {
		out = append(out, Span{Offset: off, End: end})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Watermark returns the resolved offset. Every offset below it is done.
func (p *Partitioner) Watermark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// Position returns Range.Start + Watermark as an absolute candidate value.
func (p *Partitioner) Position() *big.Int {
	return new(big.Int).Add(p.r.Start, new(big.Int).SetUint64(p.Watermark()))
}

// Exhausted reports whether every offset has been claimed.
func (p *Partitioner) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipResolved()
	return p.next >= p.total
}

// Done reports whether every offset has been resolved.
func (p *Partitioner) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark >= p.total
}

// Progress returns the resolved fraction in [0,1].
func (p *Partitioner) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return 1
	}
	return float64(p.watermark) / float64(p.total)
}

// OffsetOf converts an absolute position back to an offset within r,
// clamped to [0, total].
func (p *Partitioner) OffsetOf(pos *big.Int) uint64 {
	if pos == nil || pos.Cmp(p.r.Start) <= 0 {
		return 0
	}
	d := new(big.Int).Sub(pos, p.r.Start)
	if !d.IsUint64() || d.Uint64() > p.total {
		return p.total
	}
	return d.Uint64()
}
