// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events carries scanner notifications to in-process subscribers.
//
// Delivery to remote clients is left to whatever subscribes; the scanner
// only publishes.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package events

import (
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeFinding is emitted when a candidate matches a target.
	TypeFinding Type = "finding"

	// TypeCheckpoint is emitted after a checkpoint is saved.
	TypeCheckpoint Type = "checkpoint"

	// TypeLevelUp is emitted when the learner gains a level.
	TypeLevelUp Type = "level_up"

	// TypeSessionStart is emitted when a session begins running.
	TypeSessionStart Type = "session_start"

	// TypeSessionStop is emitted when a session reaches Stopped.
	TypeSessionStop Type = "session_stop"

	// TypeHighScore is emitted when a new session high score is observed.
	TypeHighScore Type = "high_score"

	// TypeWorkerFault is emitted when a worker batch fails.
	TypeWorkerFault Type = "worker_fault"

	// TypeDegraded is emitted when a storage operation gives up retrying.
	TypeDegraded Type = "degraded"

	// TypeStatsUpdate is emitted periodically with session counters.
	TypeStatsUpdate Type = "stats_update"
)

// Event is one notification.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// FindingData accompanies TypeFinding.
type FindingData struct {
	FindingID    string  `json:"finding_id"`
	Kind         string  `json:"kind"`
	CandidateID  string  `json:"candidate_id"`
	Chain        string  `json:"chain"`
	Score        float64 `json:"score"`
	Token        string  `json:"token"`
	ReducedDigit int     `json:"reduced_digit"`
	IsMaster     bool    `json:"is_master"`
}

// CheckpointData accompanies TypeCheckpoint.
type CheckpointData struct {
	Position   string `json:"position"`
	KeysTested uint64 `json:"keys_tested"`
	Count      uint64 `json:"count"`
	Final      bool   `json:"final"`
}

// LevelUpData accompanies TypeLevelUp.
type LevelUpData struct {
	From     int      `json:"from"`
	To       int      `json:"to"`
	Name     string   `json:"name"`
	Unlocked []string `json:"unlocked,omitempty"`
}

// SessionData accompanies TypeSessionStart and TypeSessionStop.
type SessionData struct {
	Mode    string `json:"mode"`
	Threads int    `json:"threads"`
	Range   string `json:"range,omitempty"`
	Resumed bool   `json:"resumed,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// HighScoreData accompanies TypeHighScore.
type HighScoreData struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
	Token       string  `json:"token"`
}

// WorkerFaultData accompanies TypeWorkerFault.
type WorkerFaultData struct {
	Worker      int    `json:"worker"`
	BatchOffset uint64 `json:"batch_offset"`
	Error       string `json:"error"`
}

// DegradedData accompanies TypeDegraded.
type DegradedData struct {
	Operation string `json:"operation"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}

// StatsData accompanies TypeStatsUpdate.
type StatsData struct {
	KeysTested    uint64  `json:"keys_tested"`
	SeedsTested   uint64  `json:"seeds_tested"`
	Hits          uint64  `json:"hits"`
	KeysPerSecond float64 `json:"keys_per_second"`
	HighestScore  float64 `json:"highest_score"`
	Progress      float64 `json:"progress"`
}
