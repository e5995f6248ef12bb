// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package htable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/chainstore/errors"
)

func TestSlabTable_StoreAndFindVariableSizes(t *testing.T) {
	f := newTestFile(t)
	tbl := NewSlabTable(f, 0, 64, Link64, 4)
	require.NoError(t, tbl.Create())

	short := []byte("hi")
	long := []byte("a much longer payload than the other one")

	_, err := tbl.Store([]byte("shrt"), uint64(len(short)), writeFixed(short))
	require.NoError(t, err)
	_, err = tbl.Store([]byte("long"), uint64(len(long)), writeFixed(long))
	require.NoError(t, err)

	got, found, err := tbl.Find([]byte("shrt"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, short, got)

	got, found, err = tbl.Find([]byte("long"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, long, got)
}

func TestSlabTable_FindMissing(t *testing.T) {
	f := newTestFile(t)
	tbl := NewSlabTable(f, 0, 64, Link64, 4)
	require.NoError(t, tbl.Create())

	_, found, err := tbl.Find([]byte("nope"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestSlabTable_UpdateSameSizeInPlace(t *testing.T) {
	f := newTestFile(t)
	tbl := NewSlabTable(f, 0, 16, Link64, 4)
	require.NoError(t, tbl.Create())

	_, err := tbl.Store([]byte("key1"), 5, writeFixed([]byte("first")))
	require.NoError(t, err)

	_, err = tbl.Update([]byte("key1"), writeFixed([]byte("2nd!!")))
	require.NoError(t, err)

	got, found, err := tbl.Find([]byte("key1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2nd!!", string(got))
}

func TestSlabTable_UpdateWrongSizeErrors(t *testing.T) {
	f := newTestFile(t)
	tbl := NewSlabTable(f, 0, 16, Link64, 4)
	require.NoError(t, tbl.Create())

	_, err := tbl.Store([]byte("key1"), 5, writeFixed([]byte("first")))
	require.NoError(t, err)

	_, err = tbl.Update([]byte("key1"), writeFixed([]byte("this is too long")))
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CapacityExhausted))

	_, err = tbl.Update([]byte("key1"), writeFixed([]byte("sh")))
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ShortWrite))
}

func TestSlabTable_UnlinkRemovesFromChain(t *testing.T) {
	f := newTestFile(t)
	tbl := NewSlabTable(f, 0, 1, Link64, 4)
	require.NoError(t, tbl.Create())

	_, err := tbl.Store([]byte("aaaa"), 3, writeFixed([]byte("aaa")))
	require.NoError(t, err)
	_, err = tbl.Store([]byte("bbbb"), 3, writeFixed([]byte("bbb")))
	require.NoError(t, err)

	ok, err := tbl.Unlink([]byte("bbbb"))
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := tbl.Find([]byte("bbbb"))
	require.NoError(t, err)
	require.False(t, found)

	got, found, err := tbl.Find([]byte("aaaa"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "aaa", string(got))
}

func TestSlabTable_RestartPreservesData(t *testing.T) {
	f := newTestFile(t)
	tbl := NewSlabTable(f, 0, 32, Link64, 4)
	require.NoError(t, tbl.Create())

	_, err := tbl.Store([]byte("key1"), 7, writeFixed([]byte("payload")))
	require.NoError(t, err)
	require.NoError(t, tbl.Sync())

	tbl2 := NewSlabTable(f, 0, 32, Link64, 4)
	require.NoError(t, tbl2.Start())

	got, found, err := tbl2.Find([]byte("key1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "payload", string(got))
}
