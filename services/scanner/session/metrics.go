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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Scan Sessions
// =============================================================================

var (
	// candidatesScored counts candidates committed by workers.
	// Labels: mode
	candidatesScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "numscan",
		Subsystem: "session",
		Name:      "candidates_total",
		Help:      "Candidates scored and committed",
	}, []string{"mode"})

	// findingsRecorded counts findings by kind (hit, high_score).
	findingsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "numscan",
		Subsystem: "session",
		Name:      "findings_total",
		Help:      "Findings offered to the vault",
	}, []string{"kind"})

	workerFaults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "numscan",
		Subsystem: "session",
		Name:      "worker_faults_total",
		Help:      "Batches discarded after a worker fault",
	})

	// storageFaults counts storage operations that exhausted their retries.
	// Labels: operation (checkpoint.save, vault.record_finding, vault.put_session, learner.complete)
	storageFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "numscan",
		Subsystem: "session",
		Name:      "storage_faults_total",
		Help:      "Storage operations that gave up after retrying",
	}, []string{"operation"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "numscan",
		Subsystem: "session",
		Name:      "batch_duration_seconds",
		Help:      "Time to score and commit one batch",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	checkpointDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "numscan",
		Subsystem: "session",
		Name:      "checkpoint_duration_seconds",
		Help:      "Time to snapshot and persist a checkpoint",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "numscan",
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently running or paused",
	})
)
