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
	"errors"
	"fmt"

	"github.com/AleutianAI/numscan/services/scanner/keyspace"
)

var (
	// ErrInvalidConfig is wrapped by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid session config")

	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrKeyspaceBusy is returned when a new session overlaps the keyspace
	// of a running one.
	ErrKeyspaceBusy = errors.New("keyspace already being scanned")

	// ErrInvalidState is returned for transitions the state machine forbids,
	// such as pausing a stopped session.
	ErrInvalidState = errors.New("invalid session state transition")
)

// ConfigError rejects a session before it starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidConfig, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// WorkerFault describes a batch that failed inside a worker. The batch is
// discarded and a replacement worker takes the next one.
type WorkerFault struct {
	Worker int
	Batch  keyspace.Batch
	Err    error

	// Panic holds the recovered value when the fault was a panic.
	Panic any
}

func (f *WorkerFault) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("worker %d panicked on batch at offset %d: %v", f.Worker, f.Batch.Offset, f.Panic)
	}
	return fmt.Sprintf("worker %d failed batch at offset %d: %v", f.Worker, f.Batch.Offset, f.Err)
}

func (f *WorkerFault) Unwrap() error {
	return f.Err
}
