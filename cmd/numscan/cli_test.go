// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/numscan/cmd/numscan/config"
	"github.com/AleutianAI/numscan/services/scanner/events"
	"github.com/AleutianAI/numscan/services/scanner/learner"
	"github.com/AleutianAI/numscan/services/scanner/monitor"
	"github.com/AleutianAI/numscan/services/scanner/scoring"
	"github.com/AleutianAI/numscan/services/scanner/session"
	"github.com/AleutianAI/numscan/services/scanner/topn"
)

func TestScanOptions_Apply(t *testing.T) {
	base := session.DefaultConfig()

	t.Run("zero options keep the config", func(t *testing.T) {
		got := scanOptions{threshold: -1}.apply(base)
		assert.Equal(t, base, got)
	})

	t.Run("puzzle implies puzzle mode", func(t *testing.T) {
		got := scanOptions{puzzle: 20, threshold: -1}.apply(base)
		assert.Equal(t, session.ModePuzzle, got.Mode)
		assert.Equal(t, 20, got.Puzzle)
		assert.NoError(t, got.Validate())
	})

	t.Run("overrides", func(t *testing.T) {
		got := scanOptions{
			start:     "0x1",
			end:       "0xffff",
			threads:   2,
			batchSize: 64,
			threshold: 0,
			topN:      5,
			chains:    []string{" BTC", "Eth"},
			features:  []string{"learned_scoring"},
		}.apply(base)
		assert.Equal(t, session.ModeSequential, got.Mode)
		assert.Equal(t, "0x1", got.Start)
		assert.Equal(t, 2, got.Threads)
		assert.Equal(t, uint64(64), got.BatchSize)
		assert.Zero(t, got.ScoreThreshold)
		assert.Equal(t, 5, got.TopN)
		assert.Equal(t, []string{"btc", "eth"}, got.Chains)
		assert.NoError(t, got.Validate())
	})

	t.Run("explicit mode wins over puzzle", func(t *testing.T) {
		got := scanOptions{mode: "seed", puzzle: 5, threshold: -1}.apply(base)
		assert.Equal(t, session.ModeSeed, got.Mode)
	})
}

func TestHealthOf(t *testing.T) {
	code, body := healthOf(session.Status{ID: "s1", State: session.StateRunning})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	code, body = healthOf(session.Status{ID: "s1", State: session.StateRunning, Degraded: true, DegradedReason: "vault.record_finding: disk full"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body.Status)
	assert.Contains(t, body.Reason, "disk full")

	code, body = healthOf(session.Status{ID: "s1", State: session.StateStopped})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "stopped", body.Status)
}

func TestOpsRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newOpsRouter(func() session.Status {
		return session.Status{ID: "abc", State: session.StateRunning}
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"abc"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(&session.ConfigError{Field: "Config.Threads", Reason: "gt"}))
	assert.Equal(t, 2, exitCode(fmt.Errorf("load: %w", config.ErrInvalid)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	printEvent(&buf, &events.Event{Timestamp: at, Data: events.StatsData{KeysTested: 500, Progress: 0.5, KeysPerSecond: 100}}, monitor.Report{})
	assert.Contains(t, buf.String(), "50.00%")
	assert.Contains(t, buf.String(), "tested=500")
	assert.Contains(t, buf.String(), "rate=100/s")

	buf.Reset()
	printEvent(&buf, &events.Event{Timestamp: at, Data: events.StatsData{}},
		monitor.Report{Status: monitor.StatusOK, Sample: monitor.Sample{Rate: 2500}})
	assert.Contains(t, buf.String(), "rate=2500/s")

	buf.Reset()
	printEvent(&buf, &events.Event{Timestamp: at, Data: events.FindingData{Kind: "high_score", CandidateID: "0x10"}}, monitor.Report{})
	assert.Empty(t, buf.String(), "high scores are not printed as matches")

	printEvent(&buf, &events.Event{Timestamp: at, Data: events.FindingData{Kind: "hit", CandidateID: "0x10", Chain: "btc"}}, monitor.Report{})
	assert.Contains(t, buf.String(), "MATCH  0x10  chain=btc")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	st := session.Status{
		ID:         "s1",
		StopReason: session.ReasonExhausted,
		Range:      "[1, 1000]",
		Position:   "1001",
		Stats:      session.Stats{KeysTested: 1000, Hits: 1, HighestScore: 0.91},
		Capabilities: []learner.CapabilityStatus{
			{Capability: learner.CapAutoTuning, RequiredLevel: 5, Reason: "requires level 5"},
		},
		Outcome: &learner.Outcome{XPGained: 51},
	}
	top := []topn.Entry{{Score: 0.91, CandidateID: "0x2a", Record: scoring.Record{Token: "HOMT", ReducedDigit: 6}}}
	printSummary(&buf, st, top, learner.DefaultState())

	out := buf.String()
	assert.Contains(t, out, "Session s1 stopped (exhausted)")
	assert.Contains(t, out, "declined")
	assert.Contains(t, out, "auto_tuning")
	assert.Contains(t, out, "xp gained")
	assert.Contains(t, out, "0x2a")
	assert.Contains(t, out, "Top 1 of 1")
}

func TestPrintLearner(t *testing.T) {
	var buf bytes.Buffer
	printLearner(&buf, learner.DefaultState())
	out := buf.String()
	assert.Contains(t, out, "level")
	assert.Contains(t, out, "basic_scanning")
	assert.Contains(t, out, "active")
	assert.Contains(t, out, "locked")
}

func TestLiveEventTypes_PipeSkipsStats(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, isTerminal(&buf))
	types := liveEventTypes(&buf)
	assert.NotContains(t, types, events.TypeStatsUpdate)
	assert.Contains(t, types, events.TypeFinding)
}
