// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestOpenInMemory_JSONRoundTrip(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
		return PutJSON(txn, []byte("r/1"), record{Name: "a", Score: 7})
	}))

	var got record
	require.NoError(t, db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return GetJSON(txn, []byte("r/1"), &got)
	}))
	assert.Equal(t, record{Name: "a", Score: 7}, got)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return GetJSON(txn, []byte("r/2"), &got)
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, db.InMemory())
	assert.NoError(t, db.Sync())
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 10 * time.Millisecond
	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
		return PutJSON(txn, []byte("k"), record{Name: "kept"})
	}))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "second close is a no-op")

	db2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer db2.Close()
	assert.Equal(t, dir, db2.Path())

	var got record
	require.NoError(t, db2.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return GetJSON(txn, []byte("k"), &got)
	}))
	assert.Equal(t, "kept", got.Name)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestScanPrefix(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
		for i := 0; i < 5; i++ {
			if err := PutJSON(txn, []byte(fmt.Sprintf("a/%02d", i)), record{Score: i}); err != nil {
				return err
			}
		}
		return PutJSON(txn, []byte("b/00"), record{Score: 99})
	}))

	var scores []int
	require.NoError(t, db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return ScanPrefix(txn, []byte("a/"), func(_, val []byte) error {
			var r record
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			scores = append(scores, r.Score)
			return nil
		})
	}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, scores)
}

func TestWithTxn_RollbackOnError(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte("x"), []byte("1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		ok, err := Exists(txn, []byte("x"))
		assert.False(t, ok)
		return err
	}))
}

func TestWithTxn_CancelledContext(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = db.WithTxn(ctx, func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSequence_Monotonic(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	seq, err := db.Sequence([]byte("seq/test"), 10)
	require.NoError(t, err)
	defer seq.Release()

	prev, err := seq.Next()
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		n, err := seq.Next()
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}
