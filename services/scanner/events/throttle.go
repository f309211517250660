// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Throttle drops high-frequency events above a per-type rate before they
// reach the wrapped publisher. Types without a limit pass through.
type Throttle struct {
	next     Publisher
	limiters map[Type]*rate.Limiter
	dropped  atomic.Uint64
}

// Limit is a per-type rate with a burst allowance.
type Limit struct {
	Every rate.Limit
	Burst int
}

// DefaultLimits throttles the chatty event types.
func DefaultLimits() map[Type]Limit {
	return map[Type]Limit{
		TypeStatsUpdate: {Every: 1, Burst: 1},
		TypeHighScore:   {Every: 5, Burst: 5},
		TypeDegraded:    {Every: rate.Limit(1.0 / 30), Burst: 1},
	}
}

// NewThrottle wraps next with the given limits.
func NewThrottle(next Publisher, limits map[Type]Limit) *Throttle {
	if next == nil {
		next = Nop{}
	}
	t := &Throttle{next: next, limiters: make(map[Type]*rate.Limiter, len(limits))}
	for typ, l := range limits {
		t.limiters[typ] = rate.NewLimiter(l.Every, l.Burst)
	}
	return t
}

// Publish forwards the event unless its type is over its limit.
func (t *Throttle) Publish(sessionID string, eventType Type, data any) {
	if l, ok := t.limiters[eventType]; ok && !l.Allow() {
		t.dropped.Add(1)
		return
	}
	t.next.Publish(sessionID, eventType, data)
}

// Dropped returns how many events were suppressed.
func (t *Throttle) Dropped() uint64 {
	return t.dropped.Load()
}
