// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package topn keeps the N highest-scoring candidates seen by a session.
package topn

import (
	"cmp"
	"container/heap"
	"slices"
	"sync"

	"github.com/AleutianAI/numscan/services/scanner/scoring"
)

// DefaultCapacity is used when a tracker is created with capacity <= 0.
const DefaultCapacity = 100

// Entry is one retained candidate.
type Entry struct {
	Score       float64        `json:"score"`
	CandidateID string         `json:"candidate_id"`
	Record      scoring.Record `json:"record"`
	// Seq is the discovery order assigned by the tracker. Lower is earlier.
	Seq uint64 `json:"seq"`
}

// Tracker is a bounded, concurrency-safe top-N set.
//
// Description:
//
//	Backed by a min-heap keyed on (score asc, seq desc), so the root is
//	always the entry that would be evicted next: the lowest score and,
//	among equal scores, the most recently discovered.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Offer holds the lock for
//	O(log N); Snapshot copies under the lock and sorts outside it.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	h        entryHeap
	nextSeq  uint64
}

// New creates a tracker that retains at most capacity entries.
func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		h:        make(entryHeap, 0, capacity),
	}
}

// Capacity returns the maximum number of retained entries.
func (t *Tracker) Capacity() int {
	return t.capacity
}

// Offer submits a candidate.
//
// Inputs:
//
//	e - The candidate. Seq is ignored and assigned by the tracker.
//
// Outputs:
//
//	bool - True if the entry was retained. An entry is retained when the
//	       tracker is not full or its score is strictly greater than the
//	       current minimum; an equal score never displaces an earlier one.
func (t *Tracker) Offer(e Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.Seq = t.nextSeq
	t.nextSeq++

	if len(t.h) < t.capacity {
		heap.Push(&t.h, e)
		return true
	}
	if e.Score <= t.h[0].Score {
		return false
	}
	t.h[0] = e
	heap.Fix(&t.h, 0)
	return true
}

// Min returns the current eviction candidate and whether the tracker is
// non-empty.
func (t *Tracker) Min() (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.h) == 0 {
		return Entry{}, false
	}
	return t.h[0], true
}

// Threshold returns the score an offer must beat to be retained once the
// tracker is full, or 0 while it still has room.
func (t *Tracker) Threshold() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.h) < t.capacity {
		return 0
	}
	return t.h[0].Score
}

// Len returns the number of retained entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.h)
}

// Snapshot returns the retained entries ordered by score descending,
// earliest discovery first among equal scores. The result is a copy.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	out := make([]Entry, len(t.h))
	copy(out, t.h)
	t.mu.Unlock()

	SortEntries(out)
	return out
}

// Restore replaces the tracker contents, typically from a checkpoint.
// Entries beyond capacity are dropped lowest first. Sequence numbers are
// kept and new offers continue after the highest restored one.
func (t *Tracker) Restore(entries []Entry) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	SortEntries(sorted)
	if len(sorted) > t.capacity {
		sorted = sorted[:t.capacity]
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.h = entryHeap(sorted)
	heap.Init(&t.h)
	t.nextSeq = 0
	for _, e := range sorted {
		if e.Seq >= t.nextSeq {
			t.nextSeq = e.Seq + 1
		}
	}
}

// SortEntries orders entries by score descending, seq ascending.
func SortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// entryHeap implements heap.Interface with the eviction candidate at the root.
type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Seq > h[j].Seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
