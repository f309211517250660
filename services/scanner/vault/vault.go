// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vault records findings and session history in an append-only
// embedded store.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	kv "github.com/AleutianAI/numscan/services/scanner/storage/badger"
	"github.com/AleutianAI/numscan/services/scanner/scoring"
)

var (
	// ErrDuplicate is returned when a finding id is recorded twice.
	ErrDuplicate = errors.New("finding already recorded")

	// ErrInvalidFinding is returned for findings missing required fields.
	ErrInvalidFinding = errors.New("invalid finding")
)

const (
	prefixFinding   = "finding/"
	prefixFindingID = "finding_id/"
	prefixSession   = "session/"
	keySalt         = "meta/salt"
	keySeq          = "meta/finding_seq"
)

// Kind distinguishes confirmed matches from notable scores.
type Kind string

const (
	// KindHit is a candidate confirmed by the match checker.
	KindHit Kind = "hit"

	// KindHighScore is a candidate at or above the session threshold.
	KindHighScore Kind = "high_score"
)

// Finding is one recorded candidate. Immutable once written.
type Finding struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	Kind         Kind           `json:"kind"`
	CandidateID  string         `json:"candidate_id"`
	Chain        string         `json:"chain"`
	Source       string         `json:"source,omitempty"`
	PuzzleNumber int            `json:"puzzle_number,omitempty"`
	Score        float64        `json:"score"`
	Breakdown    scoring.Record `json:"score_breakdown"`
	FoundAt      time.Time      `json:"found_at"`
	Seq          uint64         `json:"seq"`
}

// Vault is the narrow interface sessions record findings through.
type Vault interface {
	RecordFinding(ctx context.Context, f Finding) error
}

// SessionRecord is the persisted summary of one session.
type SessionRecord struct {
	ID          string          `json:"id"`
	Mode        string          `json:"mode"`
	Range       string          `json:"range"`
	State       string          `json:"state"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     time.Time       `json:"ended_at,omitempty"`
	KeysTested  uint64          `json:"keys_tested"`
	SeedsTested uint64          `json:"seeds_tested"`
	Hits        uint64          `json:"hits"`
	HighScore   float64         `json:"highest_score"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Store is the badger-backed Vault.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *kv.DB
	seq    *badger.Sequence
	sealer *Sealer
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open wraps db as a vault. When passphrase is non-empty candidate ids are
// sealed on write; the salt is created on first use and kept in the store.
func Open(ctx context.Context, db *kv.DB, passphrase []byte, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	seq, err := db.Sequence([]byte(keySeq), 100)
	if err != nil {
		return nil, fmt.Errorf("lease finding sequence: %w", err)
	}
	s.seq = seq

	if len(passphrase) > 0 {
		salt, err := s.loadOrCreateSalt(ctx)
		if err != nil {
			seq.Release()
			return nil, err
		}
		sealer, err := NewSealer(passphrase, salt)
		if err != nil {
			seq.Release()
			return nil, err
		}
		s.sealer = sealer
	}
	return s, nil
}

// Close releases the finding sequence. The caller still owns db.
func (s *Store) Close() error {
	return s.seq.Release()
}

// Sealed reports whether new findings are sealed.
func (s *Store) Sealed() bool {
	return s.sealer != nil
}

func (s *Store) loadOrCreateSalt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keySalt))
		if err == nil {
			salt, err = item.ValueCopy(nil)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		salt, err = NewSalt()
		if err != nil {
			return err
		}
		return txn.Set([]byte(keySalt), salt)
	})
	if err != nil {
		return nil, fmt.Errorf("load vault salt: %w", err)
	}
	return salt, nil
}

func findingKey(seq uint64, id string) []byte {
	return []byte(fmt.Sprintf("%s%016x/%s", prefixFinding, seq, id))
}

// RecordFinding appends f. ID and FoundAt are filled in when empty.
//
// Outputs:
//
//	error - ErrInvalidFinding for missing fields, ErrDuplicate if the id
//	        exists, otherwise a storage error suitable for retry.
func (s *Store) RecordFinding(ctx context.Context, f Finding) error {
	if f.SessionID == "" || f.CandidateID == "" {
		return fmt.Errorf("%w: session_id and candidate_id are required", ErrInvalidFinding)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.FoundAt.IsZero() {
		f.FoundAt = time.Now().UTC()
	}
	if f.Kind == "" {
		f.Kind = KindHighScore
	}
	if s.sealer != nil && !IsSealed(f.CandidateID) {
		sealed, err := s.sealer.Seal(f.CandidateID)
		if err != nil {
			return fmt.Errorf("seal candidate: %w", err)
		}
		f.CandidateID = sealed
	}

	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next finding seq: %w", err)
	}
	f.Seq = seq

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		idKey := []byte(prefixFindingID + f.ID)
		exists, err := kv.Exists(txn, idKey)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicate, f.ID)
		}
		key := findingKey(f.Seq, f.ID)
		if err := kv.PutJSON(txn, key, f); err != nil {
			return err
		}
		return txn.Set(idKey, key)
	})
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	SessionID string
	Chain     string
	Kind      Kind
	Limit     int
}

func (f Filter) match(x Finding) bool {
	return (f.SessionID == "" || x.SessionID == f.SessionID) &&
		(f.Chain == "" || x.Chain == f.Chain) &&
		(f.Kind == "" || x.Kind == f.Kind)
}

// List returns findings in recording order.
func (s *Store) List(ctx context.Context, filter Filter) ([]Finding, error) {
	var out []Finding
	errStop := errors.New("stop")
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return kv.ScanPrefix(txn, []byte(prefixFinding), func(_, val []byte) error {
			var f Finding
			if err := json.Unmarshal(val, &f); err != nil {
				s.logger.Warn("skipping unreadable finding", slog.String("error", err.Error()))
				return nil
			}
			if !filter.match(f) {
				return nil
			}
			out = append(out, f)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return errStop
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	return out, nil
}

// Summary aggregates the vault contents.
type Summary struct {
	Total    int            `json:"total"`
	Hits     int            `json:"hits"`
	ByChain  map[string]int `json:"by_chain"`
	Sessions int            `json:"sessions"`
	Sealed   bool           `json:"sealed"`
}

// Summary counts findings by kind and chain plus recorded sessions.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	findings, err := s.List(ctx, Filter{})
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{ByChain: make(map[string]int), Sealed: s.Sealed()}
	for _, f := range findings {
		sum.Total++
		if f.Kind == KindHit {
			sum.Hits++
		}
		sum.ByChain[f.Chain]++
	}
	sessions, err := s.Sessions(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum.Sessions = len(sessions)
	return sum, nil
}

// PutSession writes or replaces a session record.
func (s *Store) PutSession(ctx context.Context, rec SessionRecord) error {
	if rec.ID == "" {
		return errors.New("session id must not be empty")
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return kv.PutJSON(txn, []byte(prefixSession+rec.ID), rec)
	})
}

// Sessions returns every recorded session ordered by start time.
func (s *Store) Sessions(ctx context.Context) ([]SessionRecord, error) {
	var out []SessionRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return kv.ScanPrefix(txn, []byte(prefixSession), func(_, val []byte) error {
			var rec SessionRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sortSessions(out)
	return out, nil
}

func sortSessions(recs []SessionRecord) {
	slices.SortStableFunc(recs, func(a, b SessionRecord) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
}
