// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"sync"
	"time"
)

// PerfSampler turns a monotonically increasing counter into a rate.
//
// Thread Safety: Safe for concurrent use.
type PerfSampler struct {
	counter func() uint64
	now     func() time.Time

	mu       sync.Mutex
	lastAt   time.Time
	lastSeen uint64
}

// NewPerfSampler samples counter. now defaults to time.Now.
func NewPerfSampler(counter func() uint64, now func() time.Time) *PerfSampler {
	if now == nil {
		now = time.Now
	}
	return &PerfSampler{counter: counter, now: now}
}

// Probe implements ProbeFunc. The first call reports a zero rate.
func (p *PerfSampler) Probe(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	at := p.now()
	count := p.counter()

	p.mu.Lock()
	defer p.mu.Unlock()

	var rate float64
	if !p.lastAt.IsZero() {
		dt := at.Sub(p.lastAt).Seconds()
		if dt > 0 && count >= p.lastSeen {
			rate = float64(count-p.lastSeen) / dt
		}
	}
	p.lastAt = at
	p.lastSeen = count
	return Sample{At: at, Count: count, Rate: rate}, nil
}
