// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session runs scan sessions: a fixed pool of workers pulling
// disjoint batches from a keyspace partitioner, scoring them, and reporting
// into shared stats, a top-N tracker and the vault, while one coordinator
// goroutine checkpoints progress.
//
// # State machine
//
//	Created -> Running -> {Paused <-> Running} -> Stopped
//
// Pause and Stop are observed at batch boundaries. Stopped is terminal and
// writes a final checkpoint.
//
// # Failure handling
//
// A panic or error while a worker handles a batch is a WorkerFault. The
// batch is released without touching stats and a replacement worker takes
// the next unclaimed batch. Storage writes are retried; when retries run
// out the session keeps scanning and reports itself degraded.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/numscan/pkg/validation"
	"github.com/AleutianAI/numscan/services/scanner/checkpoint"
	"github.com/AleutianAI/numscan/services/scanner/events"
	"github.com/AleutianAI/numscan/services/scanner/keyspace"
	"github.com/AleutianAI/numscan/services/scanner/learner"
	"github.com/AleutianAI/numscan/services/scanner/match"
	"github.com/AleutianAI/numscan/services/scanner/retry"
	"github.com/AleutianAI/numscan/services/scanner/scoring"
	"github.com/AleutianAI/numscan/services/scanner/topn"
	"github.com/AleutianAI/numscan/services/scanner/vault"
)

var tracer = otel.Tracer("numscan.session")

// State is a session lifecycle state.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Stop reasons reported in Status and the session_stop event.
const (
	ReasonExhausted = "exhausted"
	ReasonStopped   = "stopped"
	ReasonCancelled = "cancelled"
)

// History stores session records. *vault.Store implements it.
type History interface {
	PutSession(ctx context.Context, rec vault.SessionRecord) error
	Sessions(ctx context.Context) ([]vault.SessionRecord, error)
}

// Deps are the collaborators a session reports into. Every field is
// optional.
type Deps struct {
	// Learner supplies the scoring profile and capability gates, and is
	// told about the session when it stops. Nil uses an in-memory learner.
	Learner *learner.Learner

	// Checkpoints persists progress. Nil disables checkpointing.
	Checkpoints *checkpoint.Store

	// Vault receives findings. Nil discards them.
	Vault vault.Vault

	// History receives the session record at start and stop.
	History History

	// Checker runs the periodic match check. Nil never matches.
	Checker match.Checker

	// Publisher receives events. It is wrapped in a rate-limiting
	// events.Throttle for stats_update, high_score and degraded.
	Publisher events.Publisher

	Logger *slog.Logger

	// Retry governs storage writes. Zero value uses retry.DefaultConfig.
	Retry retry.Config
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Learner == nil {
		d.Learner = learner.New("", learner.WithLogger(d.Logger))
	}
	if d.Checker == nil {
		d.Checker = match.Noop{}
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Retry.MaxAttempts == 0 {
		d.Retry = retry.DefaultConfig()
	}
	return d
}

// Status describes a session at a point in time.
type Status struct {
	ID             string                     `json:"id"`
	State          State                      `json:"state"`
	Mode           Mode                       `json:"mode"`
	Range          string                     `json:"range"`
	Position       string                     `json:"position_in_keyspace"`
	Offset         uint64                     `json:"offset"`
	Stats          Stats                      `json:"stats"`
	Degraded       bool                       `json:"degraded"`
	DegradedReason string                     `json:"degraded_reason,omitempty"`
	Capabilities   []learner.CapabilityStatus `json:"capabilities"`
	Resumed        bool                       `json:"resumed"`
	StartedAt      time.Time                  `json:"started_at,omitempty"`
	StoppedAt      time.Time                  `json:"stopped_at,omitempty"`
	StopReason     string                     `json:"stop_reason,omitempty"`
	Outcome        *learner.Outcome           `json:"learner_outcome,omitempty"`
}

// Option configures New.
type Option func(*options)

type options struct {
	id string
	cp *checkpoint.Checkpoint
}

// WithID sets the session id. Default: a random UUID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithCheckpoint resumes from cp: the session takes its id, starts at its
// position and restores its stats and top-N.
func WithCheckpoint(cp *checkpoint.Checkpoint) Option {
	return func(o *options) { o.cp = cp }
}

// Session is one scan over one keyspace.
//
// Thread Safety: Run is called once. Every other method is safe for
// concurrent use, including while Run is in progress.
type Session struct {
	id         string
	cfg        Config
	configJSON json.RawMessage
	rng        keyspace.Range
	part       *keyspace.Partitioner
	tracker    *topn.Tracker
	scorer     *scoring.Scorer
	deps       Deps
	publisher  events.Publisher
	logger     *slog.Logger
	caps       []learner.CapabilityStatus
	resumed    bool

	counters counters
	baseline Stats
	means    meanAccumulator

	hitsMu     sync.Mutex
	hitRecords []scoring.Record

	// commitMu is held shared while a batch lands in stats, tracker and
	// partitioner, and exclusively while a checkpoint snapshots them.
	commitMu        sync.RWMutex
	ckptMu          sync.Mutex
	ckptCh          chan struct{}
	sinceCheckpoint atomic.Uint64
	workerSeq       atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu             sync.Mutex
	state          State
	resumeCh       chan struct{}
	stopRequested  bool
	degraded       bool
	degradedReason string
	startedAt      time.Time
	stoppedAt      time.Time
	stopReason     string
	outcome        *learner.Outcome
}

// New validates cfg and builds a session in StateCreated.
//
// Description:
//
//	Takes the learner profile snapshot that every worker scores with for
//	the whole session. Requested features are gated through the learner;
//	locked ones are declined and reported in Status, never fatal.
//
// Inputs:
//
//	cfg - Session configuration.
//	deps - Collaborators. Zero fields get defaults.
//	opts - WithID, WithCheckpoint.
//
// Outputs:
//
//	*Session - The created session.
//	error - *ConfigError for invalid configuration.
func New(cfg Config, deps Deps, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng, err := cfg.KeyRange()
	if err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.id != "" {
		if err := validation.ValidateSessionID(o.id); err != nil {
			return nil, &ConfigError{Field: "ID", Reason: err.Error()}
		}
	}
	deps = deps.withDefaults()

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode session config: %w", err)
	}

	s := &Session{
		cfg:        cfg,
		configJSON: configJSON,
		rng:        rng,
		deps:       deps,
		publisher:  events.NewThrottle(deps.Publisher, events.DefaultLimits()),
		ckptCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		state:      StateCreated,
	}

	s.caps = append(s.caps, deps.Learner.Gate(learner.CapBasicScanning))
	for _, f := range cfg.Features {
		c := learner.Capability(f)
		if c == learner.CapBasicScanning {
			continue
		}
		s.caps = append(s.caps, deps.Learner.Gate(c))
	}

	profile := deps.Learner.Profile()
	if !s.featureActive(learner.CapLearnedScoring) {
		profile.Affinity = scoring.Affinity{}
	}
	s.scorer = scoring.NewScorer(profile)

	capacity := cfg.TopN
	if capacity <= 0 {
		capacity = topn.DefaultCapacity
	}
	if s.featureActive(learner.CapExtendedRanking) {
		capacity = deps.Learner.TopNCapacity(capacity)
	}
	s.tracker = topn.New(capacity)

	s.id = o.id
	if o.cp != nil {
		st := deps.Learner.Gate(learner.CapCheckpointResume)
		if !st.Active {
			deps.Logger.Warn("checkpoint resume declined, starting fresh",
				slog.String("session_id", o.cp.SessionID), slog.String("reason", st.Reason))
			o.cp = nil
		}
	}
	var (
		startOffset uint64
		resolved    []keyspace.Span
	)
	if o.cp != nil {
		s.id = o.cp.SessionID
		s.resumed = true
		startOffset = o.cp.Offset
		if pos, perr := o.cp.PositionInt(); perr == nil {
			startOffset = keyspace.NewPartitioner(rng, cfg.BatchSize, 0).OffsetOf(pos)
		}
		resolved = o.cp.Resolved
		s.tracker.Restore(o.cp.TopN)
		s.counters.restore(o.cp.Stats)
	}
	s.part = keyspace.RestorePartitioner(rng, cfg.BatchSize, startOffset, resolved)
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.logger = deps.Logger.With(slog.String("session_id", s.id))
	return s, nil
}

func (s *Session) featureActive(c learner.Capability) bool {
	if !s.cfg.featureRequested(c) {
		return false
	}
	for _, st := range s.caps {
		if st.Capability == c {
			return st.Active
		}
	}
	return false
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Range returns the scanned range.
func (s *Session) Range() keyspace.Range { return s.rng }

// Done is closed once Run has returned and the final checkpoint is written.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run drives the session until the keyspace is exhausted, Stop is called
// or ctx is cancelled. Cancellation is treated like Stop: in-flight batches
// finish and the final checkpoint is written with a detached context.
//
// Outputs:
//
//	error - ErrInvalidState if the session was already run. Storage
//	        problems never fail Run; they surface through Status.Degraded.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateCreated {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: run from %s", ErrInvalidState, st)
	}
	s.state = StateRunning
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()
	defer close(s.done)

	s.counters.startedAt.Store(s.startedAt.UnixNano())
	s.baseline = s.counters.snapshot()
	activeSessions.Inc()
	defer activeSessions.Dec()

	ctx, span := tracer.Start(ctx, "scanner.session.run", trace.WithAttributes(
		attribute.String("session_id", s.id),
		attribute.String("mode", string(s.cfg.Mode)),
		attribute.Int("threads", s.cfg.Threads),
		attribute.Bool("resumed", s.resumed),
	))
	defer span.End()

	s.logger.Info("session started",
		slog.String("mode", string(s.cfg.Mode)),
		slog.String("range", s.rng.String()),
		slog.Int("threads", s.cfg.Threads),
		slog.Uint64("batch_size", s.cfg.BatchSize),
		slog.Uint64("start_offset", s.part.Watermark()),
		slog.Bool("resumed", s.resumed),
	)
	s.publisher.Publish(s.id, events.TypeSessionStart, events.SessionData{
		Mode:    string(s.cfg.Mode),
		Threads: s.cfg.Threads,
		Range:   s.rng.String(),
		Resumed: s.resumed,
	})
	s.recordHistory(ctx, StateRunning)

	coordStop := make(chan struct{})
	coordDone := make(chan struct{})
	go s.coordinate(ctx, coordStop, coordDone)

	g, gctx := errgroup.WithContext(ctx)
	for range s.cfg.Threads {
		g.Go(func() error {
			s.runSlot(gctx)
			return nil
		})
	}
	_ = g.Wait()
	close(coordStop)
	<-coordDone

	reason := ReasonExhausted
	s.mu.Lock()
	switch {
	case ctx.Err() != nil:
		reason = ReasonCancelled
	case s.stopRequested:
		reason = ReasonStopped
	}
	s.mu.Unlock()

	s.finish(context.WithoutCancel(ctx), reason)
	span.SetAttributes(
		attribute.String("stop_reason", reason),
		attribute.Int64("candidates", int64(s.counters.snapshot().Tested())),
	)
	return nil
}

// runSlot keeps one worker slot filled. A faulted worker is replaced until
// the keyspace runs out or the session stops.
func (s *Session) runSlot(ctx context.Context) {
	for {
		worker := int(s.workerSeq.Add(1))
		fault := s.runWorker(ctx, worker)
		if fault == nil {
			return
		}
		s.handleFault(fault)
	}
}

func (s *Session) runWorker(ctx context.Context, worker int) *WorkerFault {
	var sinceCheck uint64
	for {
		if !s.waitWhilePaused(ctx) {
			return nil
		}
		b, ok := s.part.Next()
		if !ok {
			return nil
		}
		if fault := s.processBatch(ctx, worker, b, &sinceCheck); fault != nil {
			return fault
		}
	}
}

// waitWhilePaused blocks while the session is paused. It returns false
// when the worker should exit.
func (s *Session) waitWhilePaused(ctx context.Context) bool {
	for {
		select {
		case <-s.stopCh:
			return false
		case <-ctx.Done():
			return false
		default:
		}
		s.mu.Lock()
		st, ch := s.state, s.resumeCh
		s.mu.Unlock()
		if st != StatePaused {
			return true
		}
		select {
		case <-ch:
		case <-s.stopCh:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Session) processBatch(ctx context.Context, worker int, b keyspace.Batch, sinceCheck *uint64) (fault *WorkerFault) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			fault = &WorkerFault{Worker: worker, Batch: b, Panic: r, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	results := s.scorer.ScoreBatch(b.Candidates())

	var hitChains []string
	*sinceCheck += b.Count
	if *sinceCheck >= s.cfg.CheckEveryN && len(results) > 0 {
		*sinceCheck = 0
		best := results[0]
		for _, chain := range s.cfg.Chains {
			ok, err := s.deps.Checker.Check(ctx, match.Candidate{Value: best.Candidate, Chain: chain})
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				return &WorkerFault{Worker: worker, Batch: b, Err: fmt.Errorf("match check: %w", err)}
			}
			if ok {
				hitChains = append(hitChains, chain)
			}
		}
	}

	s.commit(ctx, b, results, hitChains)
	batchDuration.Observe(time.Since(start).Seconds())
	return nil
}

// commit lands a fully handled batch. Vault writes happen first and
// outside commitMu; the stats, tracker and partitioner updates happen
// together under it so a checkpoint never sees half a batch.
func (s *Session) commit(ctx context.Context, b keyspace.Batch, results []scoring.Scored, hitChains []string) {
	chains := strings.Join(s.cfg.Chains, ",")
	var qualifying []scoring.Scored
	for _, r := range results {
		if r.Record.FinalScore < s.cfg.ScoreThreshold {
			break
		}
		qualifying = append(qualifying, r)
		s.recordFinding(ctx, vault.KindHighScore, chains, r)
	}
	if len(hitChains) > 0 {
		best := results[0]
		for _, chain := range hitChains {
			s.recordFinding(ctx, vault.KindHit, chain, best)
		}
		s.hitsMu.Lock()
		s.hitRecords = append(s.hitRecords, best.Record)
		s.hitsMu.Unlock()
		s.logger.Info("match found",
			slog.String("candidate_id", match.CandidateID(best.Candidate)),
			slog.String("chains", strings.Join(hitChains, ",")),
		)
	}

	s.commitMu.RLock()
	defer s.commitMu.RUnlock()

	for _, r := range qualifying {
		s.tracker.Offer(topn.Entry{
			Score:       r.Record.FinalScore,
			CandidateID: match.CandidateID(r.Candidate),
			Record:      r.Record,
		})
	}
	if s.cfg.Mode == ModeSeed {
		s.counters.seeds.Add(b.Count)
	} else {
		s.counters.keys.Add(b.Count)
	}
	s.counters.hits.Add(uint64(len(hitChains)))
	s.means.add(sumOf(results), b.Count)
	candidatesScored.WithLabelValues(string(s.cfg.Mode)).Add(float64(b.Count))

	if len(results) > 0 && s.counters.observeScore(results[0].Record.FinalScore) {
		best := results[0]
		s.publisher.Publish(s.id, events.TypeHighScore, events.HighScoreData{
			CandidateID: match.CandidateID(best.Candidate),
			Score:       best.Record.FinalScore,
			Token:       best.Record.Token,
		})
	}

	if err := s.part.Release(b); err != nil {
		s.logger.Error("release batch", slog.Uint64("batch_start", b.Offset), slog.String("error", err.Error()))
	}

	if s.sinceCheckpoint.Add(b.Count) >= s.cfg.CheckpointInterval {
		s.sinceCheckpoint.Store(0)
		select {
		case s.ckptCh <- struct{}{}:
		default:
		}
	}
}

func (s *Session) recordFinding(ctx context.Context, kind vault.Kind, chain string, r scoring.Scored) {
	f := vault.Finding{
		ID:           uuid.NewString(),
		SessionID:    s.id,
		Kind:         kind,
		CandidateID:  match.CandidateID(r.Candidate),
		Chain:        chain,
		Source:       string(s.cfg.Mode),
		PuzzleNumber: s.cfg.Puzzle,
		Score:        r.Record.FinalScore,
		Breakdown:    r.Record,
		FoundAt:      time.Now().UTC(),
	}
	findingsRecorded.WithLabelValues(string(kind)).Inc()
	if s.deps.Vault != nil {
		res, err := retry.Do(ctx, s.deps.Retry, func(ctx context.Context, _ int) error {
			err := s.deps.Vault.RecordFinding(ctx, f)
			if errors.Is(err, vault.ErrDuplicate) || errors.Is(err, vault.ErrInvalidFinding) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			s.storageFault("vault.record_finding", res, err)
		}
	}
	s.publisher.Publish(s.id, events.TypeFinding, events.FindingData{
		FindingID:    f.ID,
		Kind:         string(kind),
		CandidateID:  f.CandidateID,
		Chain:        chain,
		Score:        f.Score,
		Token:        r.Record.Token,
		ReducedDigit: r.Record.ReducedDigit,
		IsMaster:     r.Record.IsMaster,
	})
}

func (s *Session) handleFault(f *WorkerFault) {
	s.commitMu.RLock()
	s.counters.workerFaults.Add(1)
	err := s.part.Release(f.Batch)
	s.commitMu.RUnlock()
	if err != nil {
		s.logger.Error("release faulted batch", slog.Uint64("batch_start", f.Batch.Offset), slog.String("error", err.Error()))
	}
	workerFaults.Inc()

	s.logger.Error("worker fault, batch discarded",
		slog.Int("worker", f.Worker),
		slog.Uint64("batch_start", f.Batch.Offset),
		slog.Uint64("batch_count", f.Batch.Count),
		slog.String("error", f.Error()),
	)
	s.publisher.Publish(s.id, events.TypeWorkerFault, events.WorkerFaultData{
		Worker:      f.Worker,
		BatchOffset: f.Batch.Offset,
		Error:       f.Error(),
	})
}

// coordinate is the only goroutine that writes periodic checkpoints. It
// never scores.
func (s *Session) coordinate(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if s.cfg.StatsInterval > 0 {
		ticker := time.NewTicker(s.cfg.StatsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-s.ckptCh:
			if ctx.Err() == nil {
				_ = s.checkpoint(ctx, false)
			}
		case <-tick:
			st := s.Stats()
			s.publisher.Publish(s.id, events.TypeStatsUpdate, events.StatsData{
				KeysTested:    st.KeysTested,
				SeedsTested:   st.SeedsTested,
				Hits:          st.Hits,
				KeysPerSecond: st.KeysPerSecond,
				HighestScore:  st.HighestScore,
				Progress:      st.Progress,
			})
		}
	}
}

// checkpoint snapshots and persists progress. The snapshot holds commitMu
// exclusively only while copying.
func (s *Session) checkpoint(ctx context.Context, final bool) error {
	if s.deps.Checkpoints == nil {
		return nil
	}
	s.ckptMu.Lock()
	defer s.ckptMu.Unlock()
	start := time.Now()

	s.commitMu.Lock()
	offset := s.part.Watermark()
	resolved := s.part.Resolved()
	stats := s.counters.snapshot()
	top := s.tracker.Snapshot()
	s.commitMu.Unlock()

	stats.CheckpointCount++
	cp := &checkpoint.Checkpoint{
		SessionID: s.id,
		Offset:    offset,
		Resolved:  resolved,
		Stats:     stats.persisted(),
		TopN:      top,
		Config:    s.configJSON,
	}
	cp.SetPosition(new(big.Int).Add(s.rng.Start, new(big.Int).SetUint64(offset)))

	res, err := retry.Do(ctx, s.deps.Retry, func(ctx context.Context, _ int) error {
		return s.deps.Checkpoints.Save(ctx, cp)
	})
	if err != nil {
		s.storageFault("checkpoint.save", res, err)
		return err
	}
	s.counters.checkpoints.Add(1)
	checkpointDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug("checkpoint saved",
		slog.String("position", cp.Position),
		slog.Uint64("keys_tested", stats.KeysTested),
		slog.Bool("final", final),
	)
	s.publisher.Publish(s.id, events.TypeCheckpoint, events.CheckpointData{
		Position:   cp.Position,
		KeysTested: stats.KeysTested,
		Count:      stats.CheckpointCount,
		Final:      final,
	})
	return nil
}

func (s *Session) storageFault(op string, res retry.Result, err error) {
	s.counters.storageFaults.Add(1)
	storageFaults.WithLabelValues(op).Inc()

	s.mu.Lock()
	s.degraded = true
	s.degradedReason = fmt.Sprintf("%s: %v", op, err)
	s.mu.Unlock()

	s.logger.Warn("storage degraded, continuing in memory",
		slog.String("operation", op),
		slog.Int("attempts", res.Attempts),
		slog.String("error", err.Error()),
	)
	s.publisher.Publish(s.id, events.TypeDegraded, events.DegradedData{
		Operation: op,
		Attempts:  res.Attempts,
		Error:     err.Error(),
	})
}

func (s *Session) finish(ctx context.Context, reason string) {
	now := time.Now().UTC()
	s.counters.stoppedAt.Store(now.UnixNano())

	_ = s.checkpoint(ctx, true)
	outcome := s.learn(ctx)

	s.mu.Lock()
	s.state = StateStopped
	s.stoppedAt = now
	s.stopReason = reason
	s.outcome = outcome
	s.mu.Unlock()

	s.recordHistory(ctx, StateStopped)

	st := s.Stats()
	s.logger.Info("session stopped",
		slog.String("reason", reason),
		slog.Uint64("keys_tested", st.KeysTested),
		slog.Uint64("seeds_tested", st.SeedsTested),
		slog.Uint64("hits", st.Hits),
		slog.Uint64("worker_faults", st.WorkerFaults),
		slog.Float64("highest_score", st.HighestScore),
		slog.Duration("elapsed", st.Elapsed),
	)
	s.publisher.Publish(s.id, events.TypeSessionStop, events.SessionData{
		Mode:    string(s.cfg.Mode),
		Threads: s.cfg.Threads,
		Range:   s.rng.String(),
		Resumed: s.resumed,
		Reason:  reason,
	})
}

// learn reports this run, not earlier runs of a resumed session, to the
// learner.
func (s *Session) learn(ctx context.Context) *learner.Outcome {
	st := s.counters.snapshot()

	s.hitsMu.Lock()
	findings := append([]scoring.Record(nil), s.hitRecords...)
	s.hitsMu.Unlock()
	if len(findings) == 0 {
		for _, e := range s.tracker.Snapshot() {
			findings = append(findings, e.Record)
		}
	}

	out, err := s.deps.Learner.Complete(ctx, learner.Summary{
		SessionID:   s.id,
		KeysTested:  st.KeysTested - s.baseline.KeysTested,
		SeedsTested: st.SeedsTested - s.baseline.SeedsTested,
		Hits:        st.Hits - s.baseline.Hits,
		Findings:    findings,
		SessionMean: s.means.mean(),
	})
	if err != nil {
		s.storageFault("learner.complete", retry.Result{Attempts: s.deps.Retry.MaxAttempts, LastError: err}, err)
	}
	return &out
}

func (s *Session) recordHistory(ctx context.Context, state State) {
	if s.deps.History == nil {
		return
	}
	rec := s.record(state)
	res, err := retry.Do(ctx, s.deps.Retry, func(ctx context.Context, _ int) error {
		return s.deps.History.PutSession(ctx, rec)
	})
	if err != nil {
		s.storageFault("vault.put_session", res, err)
	}
}

func (s *Session) record(state State) vault.SessionRecord {
	st := s.counters.snapshot()
	s.mu.Lock()
	started, stopped := s.startedAt, s.stoppedAt
	s.mu.Unlock()
	return vault.SessionRecord{
		ID:          s.id,
		Mode:        string(s.cfg.Mode),
		Range:       s.rng.String(),
		State:       string(state),
		StartedAt:   started,
		EndedAt:     stopped,
		KeysTested:  st.KeysTested,
		SeedsTested: st.SeedsTested,
		Hits:        st.Hits,
		HighScore:   st.HighestScore,
		Config:      s.configJSON,
	}
}

// Pause stops dispatching new batches. In-flight batches finish.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.stopRequested {
		return fmt.Errorf("%w: pause from %s", ErrInvalidState, s.state)
	}
	s.state = StatePaused
	s.resumeCh = make(chan struct{})
	s.logger.Info("session paused")
	return nil
}

// Resume continues a paused session.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidState, s.state)
	}
	s.state = StateRunning
	close(s.resumeCh)
	s.logger.Info("session resumed")
	return nil
}

// Stop asks the session to end. Workers finish their current batch, then
// Run writes the final checkpoint. Stop does not wait; use Done or Wait.
// Stopping a stopped session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return nil
	}
	s.stopRequested = true
	if s.state == StatePaused {
		s.state = StateRunning
		close(s.resumeCh)
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Wait blocks until Run has finished or ctx ends.
func (s *Session) Wait(ctx context.Context) (Status, error) {
	select {
	case <-s.done:
		return s.Status(), nil
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	st := s.counters.snapshot()
	st.Progress = s.part.Progress()
	return st
}

// TopN returns the tracker snapshot, best first.
func (s *Session) TopN() []topn.Entry {
	return s.tracker.Snapshot()
}

// Status returns the full session status.
func (s *Session) Status() Status {
	offset := s.part.Watermark()
	st := s.Stats()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:             s.id,
		State:          s.state,
		Mode:           s.cfg.Mode,
		Range:          s.rng.String(),
		Position:       new(big.Int).Add(s.rng.Start, new(big.Int).SetUint64(offset)).String(),
		Offset:         offset,
		Stats:          st,
		Degraded:       s.degraded,
		DegradedReason: s.degradedReason,
		Capabilities:   append([]learner.CapabilityStatus(nil), s.caps...),
		Resumed:        s.resumed,
		StartedAt:      s.startedAt,
		StoppedAt:      s.stoppedAt,
		StopReason:     s.stopReason,
		Outcome:        s.outcome,
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
