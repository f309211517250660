// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint persists session progress so scans survive restarts.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/AleutianAI/numscan/services/scanner/keyspace"
	"github.com/AleutianAI/numscan/services/scanner/topn"
)

// Version is the current on-disk format version (semver).
const Version = "1.0.0"

var (
	// ErrNotFound is returned when no checkpoint exists for a session.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorrupt is returned when a checkpoint cannot be trusted: invalid
	// JSON, missing fields, version mismatch or checksum mismatch.
	ErrCorrupt = errors.New("checkpoint corrupt")

	// ErrInvalidSessionID is returned for ids unsafe to use as file names.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Stats is the persisted copy of session counters.
type Stats struct {
	KeysTested      uint64  `json:"keys_tested"`
	SeedsTested     uint64  `json:"seeds_tested"`
	Hits            uint64  `json:"hits"`
	ElapsedMS       int64   `json:"elapsed_ms"`
	HighestScore    float64 `json:"highest_score"`
	CheckpointCount uint64  `json:"checkpoint_count"`
	WorkerFaults    uint64  `json:"worker_faults"`
	StorageFaults   uint64  `json:"storage_faults"`
}

// Elapsed returns ElapsedMS as a duration.
func (s Stats) Elapsed() time.Duration {
	return time.Duration(s.ElapsedMS) * time.Millisecond
}

// Checkpoint is a durable snapshot of one session.
type Checkpoint struct {
	SessionID string `json:"session_id"`

	// Position is the absolute keyspace value, in decimal, below which
	// every candidate has been handled.
	Position string `json:"position_in_keyspace"`

	// Offset is Position relative to the session range start.
	Offset uint64 `json:"offset"`

	// Resolved lists batches above Offset that finished before the
	// snapshot. Stats and TopN include them, so a resume must not scan
	// them again.
	Resolved []keyspace.Span `json:"resolved_above,omitempty"`

	Stats   Stats           `json:"stats"`
	TopN    []topn.Entry    `json:"top_n"`
	SavedAt time.Time       `json:"saved_at"`
	Config  json.RawMessage `json:"config,omitempty"`
	Version string          `json:"version"`

	Checksum string `json:"checksum,omitempty"`
}

// PositionInt parses Position.
func (c *Checkpoint) PositionInt() (*big.Int, error) {
	n, ok := new(big.Int).SetString(c.Position, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: bad position %q", ErrCorrupt, c.Position)
	}
	return n, nil
}

// SetPosition stores n as Position.
func (c *Checkpoint) SetPosition(n *big.Int) {
	c.Position = n.String()
}

// computeChecksum hashes the checkpoint with the checksum field cleared.
func computeChecksum(c *Checkpoint) (string, error) {
	body := *c
	body.Checksum = ""
	data, err := json.Marshal(&body)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal stamps the version and checksum.
func (c *Checkpoint) Seal() error {
	c.Version = Version
	sum, err := computeChecksum(c)
	if err != nil {
		return err
	}
	c.Checksum = sum
	return nil
}

// Verify checks required fields, version and checksum.
//
// Outputs:
//
//	error - nil if valid, otherwise wraps ErrCorrupt.
func (c *Checkpoint) Verify() error {
	if c == nil {
		return fmt.Errorf("%w: nil checkpoint", ErrCorrupt)
	}
	switch {
	case c.SessionID == "":
		return fmt.Errorf("%w: missing session_id", ErrCorrupt)
	case c.Position == "":
		return fmt.Errorf("%w: missing position_in_keyspace", ErrCorrupt)
	case c.Checksum == "":
		return fmt.Errorf("%w: missing checksum", ErrCorrupt)
	case c.Version != Version:
		return fmt.Errorf("%w: version %q, want %q", ErrCorrupt, c.Version, Version)
	}
	if _, err := c.PositionInt(); err != nil {
		return err
	}
	want, err := computeChecksum(c)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if want != c.Checksum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return nil
}

// decode parses and verifies raw checkpoint bytes.
func decode(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}
