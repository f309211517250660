// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/numscan/pkg/validation"
	"github.com/AleutianAI/numscan/services/scanner/storage/atomicfile"
)

var tracer = otel.Tracer("numscan.checkpoint")

const fileExt = ".json"

// Store keeps one checkpoint file per session in a directory.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent saves of the same session resolve
//	last-rename-wins; readers never observe a partial file.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(sessionID string) (string, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSessionID, err)
	}
	return filepath.Join(s.dir, sessionID+fileExt), nil
}

// Save writes cp to <dir>/<session_id>.json atomically.
//
// Description:
//
//	Stamps SavedAt (if zero), version and checksum on cp, then writes via
//	temp file, fsync and rename. A failed save leaves the previous
//	checkpoint intact.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	cp - The checkpoint. Modified in place by sealing.
//
// Outputs:
//
//	error - Non-nil if the id is invalid or any write step fails.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint must not be nil")
	}
	ctx, span := tracer.Start(ctx, "scanner.checkpoint.save",
		trace.WithAttributes(
			attribute.String("session_id", cp.SessionID),
			attribute.Int("top_n", len(cp.TopN)),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(cp.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	if err := cp.Seal(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("seal checkpoint: %w", err)
	}
	if err := atomicfile.WriteJSON(path, cp, 0o600); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint saved",
		slog.String("session_id", cp.SessionID),
		slog.String("position", cp.Position),
		slog.Int("top_n", len(cp.TopN)),
	)
	return nil
}

// Load reads and verifies the checkpoint for sessionID.
//
// Outputs:
//
//	*Checkpoint - Never nil on success.
//	error - ErrNotFound if absent; wraps ErrCorrupt if it fails verification.
func (s *Store) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	_, span := tracer.Start(ctx, "scanner.checkpoint.load",
		trace.WithAttributes(attribute.String("session_id", sessionID)),
	)
	defer span.End()

	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	cp, err := decode(data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return cp, nil
}

// List returns every valid checkpoint, newest first. Corrupt files are
// logged and skipped.
func (s *Store) List(ctx context.Context) ([]*Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}

	var out []*Checkpoint
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		cp, err := s.Load(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable checkpoint",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

// Latest returns the most recently saved valid checkpoint.
func (s *Store) Latest(ctx context.Context) (*Checkpoint, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

// Delete removes the checkpoint for sessionID.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
