// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package store

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/chainstore/errors"
	"github.com/bpowers/chainstore/storage"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{Directory: t.TempDir()}
}

func TestStore_CreateThenOpenClose(t *testing.T) {
	cfg := testConfig(t)

	s := New(cfg)
	require.NoError(t, s.Create())

	s2 := New(cfg)
	require.NoError(t, s2.Open())
	require.NotNil(t, s2.Block)
	require.NotNil(t, s2.Transaction)
	require.NotNil(t, s2.Spend)
	require.Nil(t, s2.History)
	require.NoError(t, s2.Close())
}

func TestStore_CreateRefusesMissingDirectory(t *testing.T) {
	cfg := Config{Directory: "/nonexistent/chainstore/dir"}
	s := New(cfg)
	err := s.Create()
	require.Error(t, err)
}

func TestStore_OpenFailsWithoutCreate(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg)
	err := s.Open()
	require.Error(t, err)
}

func TestStore_IndexAddressesCreatesHistoryFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.IndexAddresses = true

	s := New(cfg)
	require.NoError(t, s.Create())

	s2 := New(cfg)
	require.NoError(t, s2.Open())
	require.NotNil(t, s2.History)
	require.NoError(t, s2.Close())
}

func TestStore_RoundtripsBlockAcrossReopen(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg)
	require.NoError(t, s.Create())

	s1 := New(cfg)
	require.NoError(t, s1.Open())

	header := bytes.Repeat([]byte{0x22}, int(cfg.withDefaults().BlockHeaderSize))
	_, err := s1.Block.StoreHeader(header)
	require.NoError(t, err)
	require.NoError(t, s1.Flush())
	require.NoError(t, s1.Close())

	s2 := New(cfg)
	require.NoError(t, s2.Open())
	got, err := s2.Block.Header(0)
	require.NoError(t, err)
	require.Equal(t, header, got)
	require.NoError(t, s2.Close())
}

// TestStore_OpenFailsWhileAlreadyOpen exercises spec.md §8 scenario 6
// ("re-open must fail with lock_held"): a second Store.Open() against
// the same directory must fail rather than block, while the first
// Store is still open. storage.OpenFlock opens an independent file
// descriptor each time Open() runs, so s2's attempt genuinely contends
// on the exclusive lock the way a second process would.
func TestStore_OpenFailsWhileAlreadyOpen(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg)
	require.NoError(t, s.Create())

	s1 := New(cfg)
	require.NoError(t, s1.Open())
	defer s1.Close()

	s2 := New(cfg)
	err := s2.Open()
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.LockHeld))
}

// TestStore_FlushPerWriteModeDoesNotHoldFlushLockAcrossOpen verifies
// that Open() in flush-per-write mode releases the flush lock after its
// dirty-shutdown probe, rather than holding it for the whole session --
// a second handle on the flush lock file must be able to take it
// exclusively while the first store is open but not mid-write.
func TestStore_FlushPerWriteModeDoesNotHoldFlushLockAcrossOpen(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlushWrites = true
	s := New(cfg)
	require.NoError(t, s.Create())

	s1 := New(cfg)
	require.NoError(t, s1.Open())
	defer s1.Close()

	second, err := storage.OpenFlock(filepath.Join(cfg.Directory, flushLockFile))
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}
