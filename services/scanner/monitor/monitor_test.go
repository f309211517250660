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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu      sync.Mutex
	samples []Sample
	err     error
}

func (m *memSink) Write(_ context.Context, _ string, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return m.err
}

func (m *memSink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

func TestNewTask_Validation(t *testing.T) {
	_, err := NewTask("x", 0, func(context.Context) (Sample, error) { return Sample{}, nil })
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NewTask("x", time.Second, nil)
	assert.Error(t, err)
}

func TestTask_StatusTransitions(t *testing.T) {
	fail := true
	task, err := NewTask("perf", time.Hour, func(context.Context) (Sample, error) {
		if fail {
			return Sample{}, errors.New("probe down")
		}
		return Sample{Count: 7, Rate: 3.5}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, task.Status())

	r := task.RunOnce(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "probe down", r.Error)
	assert.Equal(t, uint64(1), r.Failures)

	fail = false
	r = task.RunOnce(context.Background())
	assert.Equal(t, StatusOK, r.Status)
	assert.Empty(t, r.Error)
	assert.Equal(t, uint64(7), r.Sample.Count)
	assert.False(t, r.Sample.At.IsZero())

	fail = true
	r = task.RunOnce(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, uint64(7), r.Sample.Count, "last good sample is kept")
	assert.Equal(t, uint64(3), r.Runs)
}

func TestTask_StartStop(t *testing.T) {
	var calls atomic.Int64
	sink := &memSink{err: errors.New("sink down")}
	task, err := NewTask("loop", 5*time.Millisecond, func(context.Context) (Sample, error) {
		calls.Add(1)
		return Sample{Count: uint64(calls.Load())}, nil
	}, WithSink(sink))
	require.NoError(t, err)

	require.NoError(t, task.Start(context.Background()))
	assert.ErrorIs(t, task.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool { return sink.len() >= 2 }, 2*time.Second, 5*time.Millisecond)
	task.Stop()
	task.Stop()

	assert.Equal(t, StatusOK, task.Status(), "sink errors do not degrade the task")
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())

	require.NoError(t, task.Start(context.Background()))
	task.Stop()
}

func TestTask_StopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task, err := NewTask("ctx", time.Millisecond, func(context.Context) (Sample, error) { return Sample{}, nil })
	require.NoError(t, err)
	require.NoError(t, task.Start(ctx))
	cancel()
	task.Stop()
}

func TestPerfSampler(t *testing.T) {
	var count atomic.Uint64
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	p := NewPerfSampler(count.Load, func() time.Time { return clock })

	s, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.Rate)

	count.Store(5000)
	clock = base.Add(2 * time.Second)
	s, err = p.Probe(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2500.0, s.Rate, 1e-9)
	assert.Equal(t, uint64(5000), s.Count)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Probe(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPerfPoint(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := perfPoint("perf", Sample{At: at, Count: 10, Rate: 1.5}, map[string]string{"session_id": "s1"})
	assert.Equal(t, MeasurementPerf, p.Name())
	assert.Equal(t, at, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"task": "perf", "session_id": "s1"}, tags)
	assert.Len(t, p.FieldList(), 2)
}
