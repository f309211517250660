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
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/numscan/pkg/validation"
	"github.com/AleutianAI/numscan/services/scanner/checkpoint"
	"github.com/AleutianAI/numscan/services/scanner/events"
	"github.com/AleutianAI/numscan/services/scanner/monitor"
	"github.com/AleutianAI/numscan/services/scanner/session"
)

// scanOptions are the flags shared by scan and serve. Zero values keep the
// config file's setting.
type scanOptions struct {
	mode       string
	start, end string
	puzzle     int
	threads    int
	batchSize  uint64
	checkEvery uint64
	interval   uint64
	threshold  float64
	topN       int
	chains     []string
	features   []string
	sessionID  string
	targets    string
	addr       string
	quiet      bool
}

func registerScanFlags(c *cobra.Command, o *scanOptions) {
	f := c.Flags()
	f.StringVar(&o.mode, "mode", "", "Scan mode: sequential, puzzle or seed")
	f.StringVar(&o.start, "start", "", "First key (decimal or 0x hex)")
	f.StringVar(&o.end, "end", "", "Last key, inclusive")
	f.IntVar(&o.puzzle, "puzzle", 0, "Puzzle number p; scans [2^(p-1), 2^p - 1]")
	f.IntVar(&o.threads, "threads", 0, "Worker threads")
	f.Uint64Var(&o.batchSize, "batch-size", 0, "Candidates per batch")
	f.Uint64Var(&o.checkEvery, "check-every", 0, "Run the match check every N candidates per worker")
	f.Uint64Var(&o.interval, "checkpoint-interval", 0, "Candidates between checkpoints")
	f.Float64Var(&o.threshold, "threshold", -1, "Minimum score for the top-N and the vault (0-1)")
	f.IntVar(&o.topN, "top", 0, "Top-N capacity")
	f.StringSliceVar(&o.chains, "chains", nil, "Chains to check, comma separated")
	f.StringSliceVar(&o.features, "features", nil, "Capabilities to request, e.g. learned_scoring")
	f.StringVar(&o.sessionID, "id", "", "Session id (default: random)")
	f.StringVar(&o.targets, "targets", "", "Target list file (one decimal or 0x value per line)")
	f.BoolVar(&o.quiet, "quiet", false, "Do not print progress lines")
}

// apply overlays the flags on base. Setting --puzzle implies puzzle mode
// and setting --start/--end outside puzzle mode implies sequential.
func (o scanOptions) apply(base session.Config) session.Config {
	cfg := base
	if o.mode != "" {
		cfg.Mode = session.Mode(o.mode)
	}
	if o.puzzle > 0 {
		cfg.Puzzle = o.puzzle
		if o.mode == "" {
			cfg.Mode = session.ModePuzzle
		}
	}
	if o.start != "" {
		cfg.Start = o.start
	}
	if o.end != "" {
		cfg.End = o.end
	}
	if o.threads > 0 {
		cfg.Threads = o.threads
	}
	if o.batchSize > 0 {
		cfg.BatchSize = o.batchSize
	}
	if o.checkEvery > 0 {
		cfg.CheckEveryN = o.checkEvery
	}
	if o.interval > 0 {
		cfg.CheckpointInterval = o.interval
	}
	if o.threshold >= 0 {
		cfg.ScoreThreshold = o.threshold
	}
	if o.topN > 0 {
		cfg.TopN = o.topN
	}
	if len(o.chains) > 0 {
		cfg.Chains = sanitizeChains(o.chains)
	}
	if len(o.features) > 0 {
		cfg.Features = o.features
	}
	return cfg
}

// sanitizeChains normalizes chain flags. Invalid names pass through
// unchanged so Validate reports them.
func sanitizeChains(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		c, err := validation.SanitizeChain(s)
		if err != nil {
			c = s
		}
		out[i] = c
	}
	return out
}

func runScan(cmd *cobra.Command, args []string) error {
	return scan(cmd, scanFlags, nil)
}

// scan starts a session from flags and runs it in the foreground. A
// non-nil hook runs once the session is registered and returns a cleanup.
func scan(cmd *cobra.Command, opts scanOptions, hook func(*app, *session.Manager, string) func()) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, needScan)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	cfg := opts.apply(a.cfg.Session)
	if err := cfg.Validate(); err != nil {
		return err
	}
	checker, err := a.checker(ctx, opts.targets)
	if err != nil {
		return err
	}

	mgr := session.NewManager(a.sessionDeps(checker))
	var sessOpts []session.Option
	if opts.sessionID != "" {
		sessOpts = append(sessOpts, session.WithID(opts.sessionID))
	}
	id, err := mgr.Start(ctx, cfg, sessOpts...)
	if err != nil {
		return err
	}
	return supervise(ctx, cmd.OutOrStdout(), a, mgr, id, opts.quiet, hook)
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, needScan)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	var id string
	if len(args) == 1 {
		id = args[0]
	} else {
		cp, err := a.checkpoints.Latest(ctx)
		if err != nil {
			return fmt.Errorf("no session to resume: %w", err)
		}
		id = cp.SessionID
	}

	checker, err := a.checker(ctx, scanFlags.targets)
	if err != nil {
		return err
	}
	mgr := session.NewManager(a.sessionDeps(checker))

	var fallback *session.Config
	if resumeFresh {
		cfg := a.cfg.Session
		fallback = &cfg
	}
	if _, err := mgr.ResumeFrom(ctx, id, fallback); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("session %s has no checkpoint in %s", id, a.checkpoints.Dir())
		}
		return err
	}
	return supervise(ctx, cmd.OutOrStdout(), a, mgr, id, scanFlags.quiet, nil)
}

// supervise runs the perf monitor and prints progress until the session
// stops. A signal stops the session gracefully; a second one is left to
// the default handler.
func supervise(ctx context.Context, out io.Writer, a *app, mgr *session.Manager, id string, quiet bool, hook func(*app, *session.Manager, string) func()) error {
	sess, err := mgr.Session(id)
	if err != nil {
		return err
	}

	task, closeSink, err := perfTask(a, sess)
	if err != nil {
		return err
	}
	defer closeSink()
	if err := task.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer task.Stop()

	if hook != nil {
		defer hook(a, mgr, id)()
	}

	if !quiet {
		subID := a.emitter.Subscribe(func(e *events.Event) {
			if e.SessionID != id {
				return
			}
			printEvent(out, e, task.Report())
		}, liveEventTypes(out)...)
		defer a.emitter.Unsubscribe(subID)
	}

	select {
	case <-sess.Done():
	case <-ctx.Done():
		a.logger.Info("signal received, stopping session", slog.String("session_id", id))
		_ = sess.Stop()
	}
	// The final checkpoint is written before Wait returns.
	st, err := sess.Wait(context.Background())
	if err != nil {
		return err
	}
	printSummary(out, st, sess.TopN(), a.learner.Snapshot())
	return nil
}

// perfTask samples candidates per second for the session and, when
// configured, forwards samples to InfluxDB.
func perfTask(a *app, sess *session.Session) (*monitor.Task, func(), error) {
	interval := a.cfg.Monitor.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	sampler := monitor.NewPerfSampler(func() uint64 { return sess.Stats().Tested() }, nil)
	opts := []monitor.Option{monitor.WithLogger(a.logger)}
	closeSink := func() {}
	if ic := a.cfg.Monitor.Influx; ic != nil {
		sink := monitor.NewInfluxSink(*ic, map[string]string{"session_id": sess.ID()})
		opts = append(opts, monitor.WithSink(sink))
		closeSink = sink.Close
	}
	task, err := monitor.NewTask("perf", interval, sampler.Probe, opts...)
	if err != nil {
		closeSink()
		return nil, nil, err
	}
	return task, closeSink, nil
}
