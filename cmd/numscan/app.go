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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/numscan/cmd/numscan/config"
	"github.com/AleutianAI/numscan/pkg/logging"
	"github.com/AleutianAI/numscan/services/scanner/checkpoint"
	"github.com/AleutianAI/numscan/services/scanner/events"
	"github.com/AleutianAI/numscan/services/scanner/learner"
	"github.com/AleutianAI/numscan/services/scanner/match"
	"github.com/AleutianAI/numscan/services/scanner/session"
	kv "github.com/AleutianAI/numscan/services/scanner/storage/badger"
	"github.com/AleutianAI/numscan/services/scanner/telemetry"
	"github.com/AleutianAI/numscan/services/scanner/vault"
)

// need selects which parts of the runtime a command opens.
type need uint8

const (
	needTelemetry need = 1 << iota
	needVault
	needCheckpoints
	needLearner
	needEvents

	needScan = needTelemetry | needVault | needCheckpoints | needLearner | needEvents
)

// app holds everything a command may touch. Fields a command did not ask
// for stay nil.
type app struct {
	cfg   config.NumscanConfig
	paths config.PathsConfig

	log    *logging.Logger
	logger *slog.Logger

	shutdownTelemetry func(context.Context) error

	db          *kv.DB
	vault       *vault.Store
	checkpoints *checkpoint.Store
	learner     *learner.Learner
	emitter     *events.Emitter
	targets     *match.TargetWatcher
}

// newApp builds the runtime from config.Global and the persistent flags.
func newApp(ctx context.Context, n need) (*app, error) {
	cfg := config.Global
	a := &app{cfg: cfg, paths: cfg.Paths.Resolve()}
	if err := a.open(ctx, n); err != nil {
		a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context, n need) (err error) {
	cfg := a.cfg

	level := cfg.Logging.Level
	if logLevel != "" {
		if level, err = logging.ParseLevel(logLevel); err != nil {
			return err
		}
	}
	a.log = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "numscan",
		JSON:    cfg.Logging.JSON || logJSON,
	})
	a.logger = a.log.Slog()
	slog.SetDefault(a.logger)

	if n&needTelemetry != 0 {
		if a.shutdownTelemetry, err = telemetry.Init(ctx, cfg.Telemetry); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(a.paths.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if n&needEvents != 0 {
		a.emitter = events.NewEmitter(events.WithLogger(a.logger))
		a.emitter.Subscribe(a.logEvent,
			events.TypeLevelUp, events.TypeWorkerFault, events.TypeDegraded, events.TypeHighScore)
	}

	if n&needVault != 0 {
		dbCfg := kv.DefaultConfig(a.paths.VaultDir)
		dbCfg.Logger = a.logger
		if a.db, err = kv.Open(dbCfg); err != nil {
			return fmt.Errorf("open vault storage: %w", err)
		}
		if a.vault, err = vault.Open(ctx, a.db, []byte(os.Getenv(config.PassphraseEnv)), vault.WithLogger(a.logger)); err != nil {
			return fmt.Errorf("open vault: %w", err)
		}
	}

	if n&needCheckpoints != 0 {
		if a.checkpoints, err = checkpoint.NewStore(a.paths.CheckpointDir, a.logger); err != nil {
			return err
		}
	}

	if n&needLearner != 0 {
		opts := []learner.Option{learner.WithLogger(a.logger), learner.WithRetry(cfg.Retry)}
		if a.emitter != nil {
			opts = append(opts, learner.WithPublisher(a.emitter))
		}
		a.learner = learner.New(a.paths.LearnerFile, opts...)
	}
	return nil
}

// sessionDeps assembles session dependencies around checker.
func (a *app) sessionDeps(checker match.Checker) session.Deps {
	deps := session.Deps{
		Learner:     a.learner,
		Checkpoints: a.checkpoints,
		Checker:     checker,
		Logger:      a.logger,
		Retry:       a.cfg.Retry,
	}
	if a.vault != nil {
		deps.Vault = a.vault
		deps.History = a.vault
	}
	if a.emitter != nil {
		deps.Publisher = a.emitter
	}
	return deps
}

// checker loads the target list and keeps it current while the command
// runs. No list means no matching.
func (a *app) checker(ctx context.Context, path string) (match.Checker, error) {
	if path == "" {
		path = a.paths.TargetsFile
	}
	if path == "" {
		return match.Noop{}, nil
	}
	w, err := match.NewTargetWatcher(path, a.logger)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return nil, fmt.Errorf("watch targets: %w", err)
	}
	a.targets = w
	a.logger.Info("targets loaded", slog.String("path", path), slog.Int("count", w.Len()))
	return w, nil
}

func (a *app) logEvent(e *events.Event) {
	attrs := []any{
		slog.String("event", string(e.Type)),
		slog.String("session_id", e.SessionID),
		slog.Any("data", e.Data),
	}
	switch e.Type {
	case events.TypeWorkerFault, events.TypeDegraded:
		a.logger.Warn("scanner event", attrs...)
	default:
		a.logger.Info("scanner event", attrs...)
	}
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if a.targets != nil {
		_ = a.targets.Stop()
	}
	if a.vault != nil {
		if err := a.vault.Close(); err != nil {
			a.logger.Warn("close vault", slog.String("error", err.Error()))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close vault storage", slog.String("error", err.Error()))
		}
	}
	vault.PurgeSecrets()
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}
	if a.log != nil {
		_ = a.log.Close()
	}
}

// exitCode maps errors to process exit codes: 2 for bad input, 1 otherwise.
func exitCode(err error) int {
	var ce *session.ConfigError
	switch {
	case errors.As(err, &ce), errors.Is(err, config.ErrInvalid), errors.Is(err, checkpoint.ErrInvalidSessionID):
		return 2
	default:
		return 1
	}
}
