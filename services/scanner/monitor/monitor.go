// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor runs cancellable periodic probes and keeps their latest
// result.
//
// A Task starts in StatusUnknown and stays there until a probe succeeds. A
// failing probe moves it to StatusDegraded; the previous sample is kept so
// callers can still show the last good numbers.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start on a running task.
	ErrAlreadyRunning = errors.New("monitor task already running")

	// ErrInvalidInterval is returned by NewTask for a non-positive interval.
	ErrInvalidInterval = errors.New("monitor interval must be positive")
)

// Status is the health of a task's most recent probe.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// Sample is one probe result.
type Sample struct {
	At    time.Time `json:"at"`
	Count uint64    `json:"count"`
	Rate  float64   `json:"rate"`
}

// Report is the latest observed state of a task.
type Report struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Sample    Sample    `json:"sample"`
	Error     string    `json:"error,omitempty"`
	Runs      uint64    `json:"runs"`
	Failures  uint64    `json:"failures"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ProbeFunc produces one sample.
type ProbeFunc func(ctx context.Context) (Sample, error)

// Sink receives every successful sample.
type Sink interface {
	Write(ctx context.Context, task string, s Sample) error
}

// Task runs a probe every interval until stopped.
//
// Thread Safety: Safe for concurrent use.
type Task struct {
	name     string
	interval time.Duration
	probe    ProbeFunc
	sinks    []Sink
	logger   *slog.Logger

	mu     sync.RWMutex
	report Report
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Task.
type Option func(*Task)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithSink adds a sink for successful samples. Sink errors are logged and
// do not change the task status.
func WithSink(s Sink) Option {
	return func(t *Task) {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
}

// NewTask creates a stopped task.
//
// Description:
//
//	The task does nothing until Start. Its report starts as StatusUnknown.
//
// Inputs:
//
//	name - Identifies the task in logs and sink writes.
//	interval - Time between probes. Must be positive.
//	probe - The probe to run. Must not be nil.
//	opts - WithLogger, WithSink.
//
// Outputs:
//
//	*Task - The created task.
//	error - ErrInvalidInterval, or an error for a nil probe.
func NewTask(name string, interval time.Duration, probe ProbeFunc, opts ...Option) (*Task, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if probe == nil {
		return nil, errors.New("monitor probe must not be nil")
	}
	t := &Task{
		name:     name,
		interval: interval,
		probe:    probe,
		logger:   slog.Default(),
		report:   Report{Name: name, Status: StatusUnknown},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("subsystem", "monitor"), slog.String("task", name))
	return t, nil
}

// Start launches the probe loop. The loop ends when ctx is cancelled or
// Stop is called.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(loopCtx, t.done)
	return nil
}

// Stop cancels the loop and waits for it to exit. Safe to call on a task
// that was never started. The report is kept.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Report returns a copy of the latest report.
func (t *Task) Report() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.report
}

// Status returns the latest status.
func (t *Task) Status() Status {
	return t.Report().Status
}

// RunOnce runs the probe a single time and records the result.
func (t *Task) RunOnce(ctx context.Context) Report {
	s, err := t.probe(ctx)
	now := time.Now()

	t.mu.Lock()
	t.report.Runs++
	t.report.UpdatedAt = now
	if err != nil {
		t.report.Failures++
		t.report.Status = StatusDegraded
		t.report.Error = err.Error()
	} else {
		if s.At.IsZero() {
			s.At = now
		}
		t.report.Status = StatusOK
		t.report.Error = ""
		t.report.Sample = s
	}
	r := t.report
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("probe failed", slog.String("error", err.Error()))
		return r
	}
	for _, sink := range t.sinks {
		if werr := sink.Write(ctx, t.name, s); werr != nil {
			t.logger.Warn("sink write failed", slog.String("error", werr.Error()))
		}
	}
	return r
}

func (t *Task) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Debug("monitor task started", slog.Duration("interval", t.interval))
	defer t.logger.Debug("monitor task stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RunOnce(ctx)
		}
	}
}
