// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package match decides whether a candidate hits a search target.
//
// Address derivation and balance lookups live outside the scanner; they
// plug in through Checker. TargetSet covers the offline case where the
// targets are known candidate values.
package match

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"
)

// ErrBadTarget is returned for target lines that are not integers.
var ErrBadTarget = errors.New("invalid target")

// Candidate is what a checker sees.
type Candidate struct {
	Value *big.Int
	Chain string
}

// ID returns the canonical hex id of the candidate.
func (c Candidate) ID() string {
	return CandidateID(c.Value)
}

// CandidateID formats n as 0x-prefixed lowercase hex.
func CandidateID(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return fmt.Sprintf("%#x", n)
}

// Checker reports whether a candidate matches a target. Implementations
// may do I/O and must honour ctx.
type Checker interface {
	Check(ctx context.Context, c Candidate) (bool, error)
}

// Noop never matches.
type Noop struct{}

// Check implements Checker.
func (Noop) Check(context.Context, Candidate) (bool, error) { return false, nil }

// TargetSet matches candidates against a fixed set of values.
//
// Thread Safety: Safe for concurrent use.
type TargetSet struct {
	mu      sync.RWMutex
	targets map[string]struct{}
}

// NewTargetSet builds a set from values.
func NewTargetSet(values ...*big.Int) *TargetSet {
	ts := &TargetSet{targets: make(map[string]struct{}, len(values))}
	for _, v := range values {
		ts.targets[CandidateID(v)] = struct{}{}
	}
	return ts
}

// ParseTarget accepts decimal or 0x-prefixed hex.
func ParseTarget(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadTarget, s)
	}
	return n, nil
}

// ReadTargets parses one target per line. Blank lines and lines starting
// with # are ignored.
func ReadTargets(r io.Reader) (*TargetSet, error) {
	ts := NewTargetSet()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		n, err := ParseTarget(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts.Add(n)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return ts, nil
}

// LoadTargets reads a target file.
func LoadTargets(path string) (*TargetSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets: %w", err)
	}
	defer f.Close()
	return ReadTargets(f)
}

// Add inserts a target.
func (t *TargetSet) Add(n *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[CandidateID(n)] = struct{}{}
}

// Len returns the number of targets.
func (t *TargetSet) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.targets)
}

// Check implements Checker.
func (t *TargetSet) Check(ctx context.Context, c Candidate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.targets[c.ID()]
	return ok, nil
}

// Func adapts a function to Checker.
type Func func(ctx context.Context, c Candidate) (bool, error)

// Check implements Checker.
func (f Func) Check(ctx context.Context, c Candidate) (bool, error) {
	return f(ctx, c)
}
