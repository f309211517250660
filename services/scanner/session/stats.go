// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/numscan/services/scanner/checkpoint"
	"github.com/AleutianAI/numscan/services/scanner/learner"
	"github.com/AleutianAI/numscan/services/scanner/scoring"
)

// Stats is a point-in-time copy of session counters.
type Stats struct {
	KeysTested      uint64        `json:"keys_tested"`
	SeedsTested     uint64        `json:"seeds_tested"`
	Hits            uint64        `json:"hits"`
	Elapsed         time.Duration `json:"elapsed"`
	HighestScore    float64       `json:"highest_score"`
	CheckpointCount uint64        `json:"checkpoint_count"`
	WorkerFaults    uint64        `json:"worker_faults"`
	StorageFaults   uint64        `json:"storage_faults"`
	KeysPerSecond   float64       `json:"keys_per_second"`
	Progress        float64       `json:"progress"`
}

// Tested returns keys plus seeds.
func (s Stats) Tested() uint64 {
	return s.KeysTested + s.SeedsTested
}

func (s Stats) persisted() checkpoint.Stats {
	return checkpoint.Stats{
		KeysTested:      s.KeysTested,
		SeedsTested:     s.SeedsTested,
		Hits:            s.Hits,
		ElapsedMS:       s.Elapsed.Milliseconds(),
		HighestScore:    s.HighestScore,
		CheckpointCount: s.CheckpointCount,
		WorkerFaults:    s.WorkerFaults,
		StorageFaults:   s.StorageFaults,
	}
}

// counters is the live, lock-free form of Stats. Every field is written
// with atomic adds or CAS only.
type counters struct {
	keys          atomic.Uint64
	seeds         atomic.Uint64
	hits          atomic.Uint64
	checkpoints   atomic.Uint64
	workerFaults  atomic.Uint64
	storageFaults atomic.Uint64
	highestBits   atomic.Uint64

	// elapsedBase carries time from earlier runs of a resumed session.
	elapsedBase time.Duration
	startedAt   atomic.Int64
	stoppedAt   atomic.Int64
}

func (c *counters) restore(s checkpoint.Stats) {
	c.keys.Store(s.KeysTested)
	c.seeds.Store(s.SeedsTested)
	c.hits.Store(s.Hits)
	c.checkpoints.Store(s.CheckpointCount)
	c.workerFaults.Store(s.WorkerFaults)
	c.storageFaults.Store(s.StorageFaults)
	c.highestBits.Store(math.Float64bits(s.HighestScore))
	c.elapsedBase = s.Elapsed()
}

// observeScore raises the highest score and reports whether it moved.
func (c *counters) observeScore(v float64) bool {
	for {
		old := c.highestBits.Load()
		if v <= math.Float64frombits(old) {
			return false
		}
		if c.highestBits.CompareAndSwap(old, math.Float64bits(v)) {
			return true
		}
	}
}

func (c *counters) elapsed() time.Duration {
	start := c.startedAt.Load()
	if start == 0 {
		return c.elapsedBase
	}
	end := c.stoppedAt.Load()
	if end == 0 {
		end = time.Now().UnixNano()
	}
	return c.elapsedBase + time.Duration(end-start)
}

func (c *counters) snapshot() Stats {
	s := Stats{
		KeysTested:      c.keys.Load(),
		SeedsTested:     c.seeds.Load(),
		Hits:            c.hits.Load(),
		Elapsed:         c.elapsed(),
		HighestScore:    math.Float64frombits(c.highestBits.Load()),
		CheckpointCount: c.checkpoints.Load(),
		WorkerFaults:    c.workerFaults.Load(),
		StorageFaults:   c.storageFaults.Load(),
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.KeysPerSecond = float64(s.Tested()) / secs
	}
	return s
}

// meanAccumulator tracks the session-wide mean sub-scores for the learner.
// Workers fold one batch at a time, so the lock is taken once per batch.
type meanAccumulator struct {
	mu                        sync.Mutex
	math, numerology, learned float64
	n                         uint64
}

func (m *meanAccumulator) add(sum learner.SubScores, n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.math += sum.Math
	m.numerology += sum.Numerology
	m.learned += sum.Learned
	m.n += n
}

func (m *meanAccumulator) mean() learner.SubScores {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.n == 0 {
		return learner.SubScores{}
	}
	n := float64(m.n)
	return learner.SubScores{Math: m.math / n, Numerology: m.numerology / n, Learned: m.learned / n}
}

func sumOf(results []scoring.Scored) learner.SubScores {
	var s learner.SubScores
	for _, r := range results {
		s.Math += r.Record.MathScore
		s.Numerology += r.Record.NumerologyScore
		s.Learned += r.Record.LearnedScore
	}
	return s
}
