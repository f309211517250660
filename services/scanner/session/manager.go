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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/AleutianAI/numscan/services/scanner/checkpoint"
	"github.com/AleutianAI/numscan/services/scanner/topn"
	"github.com/AleutianAI/numscan/services/scanner/vault"
)

// Manager is the session control surface: start, resume, pause, stop and
// query sessions by id.
//
// Thread Safety: Safe for concurrent use.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a manager whose sessions share deps.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// keyspaceClass separates seed indices from key scalars; they never
// overlap even when the numbers do.
func keyspaceClass(m Mode) string {
	if m == ModeSeed {
		return "seed"
	}
	return "key"
}

// Start validates cfg, checks that no live session overlaps its keyspace
// and runs it in the background. The session outlives ctx; stop it with
// Stop or Shutdown.
//
// Outputs:
//
//	string - The session id.
//	error - *ConfigError, or ErrKeyspaceBusy.
func (m *Manager) Start(ctx context.Context, cfg Config, opts ...Option) (string, error) {
	s, err := New(cfg, m.deps, opts...)
	if err != nil {
		return "", err
	}
	if err := m.register(s); err != nil {
		return "", err
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := s.Run(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("session run failed", slog.String("error", err.Error()))
		}
	}()
	return s.ID(), nil
}

func (m *Manager) register(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.sessions {
		if other.State() == StateStopped {
			continue
		}
		if id == s.ID() {
			return fmt.Errorf("%w: session %s is still running", ErrKeyspaceBusy, id)
		}
		if keyspaceClass(other.cfg.Mode) == keyspaceClass(s.cfg.Mode) && other.rng.Overlaps(s.rng) {
			return fmt.Errorf("%w: %s overlaps session %s %s", ErrKeyspaceBusy, s.rng, id, other.rng)
		}
	}
	m.sessions[s.ID()] = s
	return nil
}

// ResumeFrom restarts a session from its checkpoint.
//
// Description:
//
//	The checkpoint's stored config is used. A corrupt checkpoint is logged
//	and, when fallback is non-nil, the session starts fresh under the same
//	id with fallback; otherwise the error is returned.
//
// Outputs:
//
//	string - The session id.
//	error - checkpoint.ErrNotFound, a checkpoint.ErrCorrupt without a
//	        fallback, *ConfigError, or ErrKeyspaceBusy.
func (m *Manager) ResumeFrom(ctx context.Context, sessionID string, fallback *Config) (string, error) {
	if m.deps.Checkpoints == nil {
		return "", errors.New("resume requires a checkpoint store")
	}
	cp, err := m.deps.Checkpoints.Load(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, checkpoint.ErrCorrupt) && fallback != nil:
		m.deps.Logger.Warn("checkpoint corrupt, starting session fresh",
			slog.String("session_id", sessionID), slog.String("error", err.Error()))
		return m.Start(ctx, *fallback, WithID(sessionID))
	default:
		return "", err
	}

	cfg, err := configFromCheckpoint(cp, fallback)
	if err != nil {
		return "", err
	}
	return m.Start(ctx, cfg, WithCheckpoint(cp))
}

func configFromCheckpoint(cp *checkpoint.Checkpoint, fallback *Config) (Config, error) {
	if len(cp.Config) == 0 {
		if fallback == nil {
			return Config{}, &ConfigError{Reason: "checkpoint carries no config and no fallback was given"}
		}
		return *fallback, nil
	}
	var cfg Config
	if err := json.Unmarshal(cp.Config, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config: %w", checkpoint.ErrCorrupt, err)
	}
	return cfg, nil
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Session returns the live handle for id.
func (m *Manager) Session(id string) (*Session, error) {
	return m.get(id)
}

// Pause pauses a running session.
func (m *Manager) Pause(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Pause()
}

// Resume continues a paused session.
func (m *Manager) Resume(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Resume()
}

// Stop asks a session to stop. It does not wait.
func (m *Manager) Stop(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Stop()
}

// Stats returns live counters.
func (m *Manager) Stats(id string) (Stats, error) {
	s, err := m.get(id)
	if err != nil {
		return Stats{}, err
	}
	return s.Stats(), nil
}

// TopN returns the top-N snapshot, best first.
func (m *Manager) TopN(id string) ([]topn.Entry, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.TopN(), nil
}

// Status returns the full status of a session.
func (m *Manager) Status(id string) (Status, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}

// Wait blocks until the session has stopped or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (Status, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	return s.Wait(ctx)
}

// List returns the recorded session history merged with live sessions,
// ordered by start time. Live state wins over the stored record.
func (m *Manager) List(ctx context.Context) ([]vault.SessionRecord, error) {
	byID := make(map[string]vault.SessionRecord)
	if m.deps.History != nil {
		recs, err := m.deps.History.Sessions(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			byID[r.ID] = r
		}
	}

	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()
	for _, s := range live {
		byID[s.ID()] = s.record(s.State())
	}

	out := make([]vault.SessionRecord, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b vault.SessionRecord) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

// Shutdown stops every session and waits for their final checkpoints.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, s := range m.sessions {
		_ = s.Stop()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
