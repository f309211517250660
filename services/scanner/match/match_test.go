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
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetSet_Check(t *testing.T) {
	ts := NewTargetSet(big.NewInt(255))
	ctx := context.Background()

	ok, err := ts.Check(ctx, Candidate{Value: big.NewInt(255)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ts.Check(ctx, Candidate{Value: big.NewInt(254)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadTargets(t *testing.T) {
	input := "# puzzle keys\n0xff\n\n  1024  \n"
	ts, err := ReadTargets(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Len())

	ok, err := ts.Check(context.Background(), Candidate{Value: big.NewInt(1024)})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ReadTargets(strings.NewReader("0xff\nnot-a-number\n"))
	assert.ErrorIs(t, err, ErrBadTarget)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte("42\n"), 0o600))
	ts, err := LoadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.Len())

	_, err = LoadTargets(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestCheck_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTargetSet().Check(ctx, Candidate{Value: big.NewInt(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCandidateID(t *testing.T) {
	assert.Equal(t, "0x7ea", CandidateID(big.NewInt(2026)))
	assert.Equal(t, "0x0", CandidateID(nil))

	ok, err := Noop{}.Check(context.Background(), Candidate{Value: big.NewInt(1)})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestTargetWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte("42\n"), 0o600))

	w, err := NewTargetWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	matches := func(n int64) bool {
		ok, err := w.Check(context.Background(), Candidate{Value: big.NewInt(n)})
		return err == nil && ok
	}
	assert.True(t, matches(42))

	// Replace by rename, the way editors save.
	tmp := filepath.Join(dir, "targets.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("42\n0x2b\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	require.Eventually(t, func() bool { return matches(43) }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, w.Len())

	// A broken file keeps the previous set.
	require.NoError(t, os.WriteFile(tmp, []byte("not-a-number\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	require.Eventually(t, func() bool {
		select {
		case err := <-w.Reloaded():
			return err != nil
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, matches(43))
}
