// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package match

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// TargetWatcher is a Checker backed by a target file that is reloaded when
// the file changes. A reload that fails to parse keeps the previous set.
//
// Thread Safety: Safe for concurrent use.
type TargetWatcher struct {
	path    string
	current atomic.Pointer[TargetSet]
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// reloaded holds the result of the latest reload attempt.
	reloaded chan error
}

// NewTargetWatcher loads path and prepares a watcher. Call Start to begin
// watching and Stop to release the watcher.
func NewTargetWatcher(path string, logger *slog.Logger) (*TargetWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ts, err := LoadTargets(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &TargetWatcher{
		path:     filepath.Clean(path),
		watcher:  watcher,
		logger:   logger,
		reloaded: make(chan error, 1),
	}
	w.current.Store(ts)
	return w, nil
}

// Start watches until ctx ends or Stop is called. The parent directory is
// watched so editors that replace the file by rename are noticed.
func (w *TargetWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

func (w *TargetWatcher) loop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("target watcher error", slog.String("error", err.Error()))

		case <-ctx.Done():
			return
		}
	}
}

func (w *TargetWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	err := w.reload()
	// Keep only the latest result.
	select {
	case <-w.reloaded:
	default:
	}
	select {
	case w.reloaded <- err:
	default:
	}
}

func (w *TargetWatcher) reload() error {
	ts, err := LoadTargets(w.path)
	if err != nil {
		w.logger.Warn("target reload failed, keeping previous set",
			slog.String("path", w.path), slog.String("error", err.Error()))
		return err
	}
	prev := w.current.Swap(ts)
	w.logger.Info("targets reloaded",
		slog.String("path", w.path),
		slog.Int("count", ts.Len()),
		slog.Int("previous", prev.Len()),
	)
	return nil
}

// Reloaded delivers the result of reload attempts.
func (w *TargetWatcher) Reloaded() <-chan error {
	return w.reloaded
}

// Len returns the size of the current set.
func (w *TargetWatcher) Len() int {
	return w.current.Load().Len()
}

// Check implements Checker against the current set.
func (w *TargetWatcher) Check(ctx context.Context, c Candidate) (bool, error) {
	return w.current.Load().Check(ctx, c)
}

// Stop closes the watcher.
func (w *TargetWatcher) Stop() error {
	return w.watcher.Close()
}
