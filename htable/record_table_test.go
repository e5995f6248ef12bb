// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package htable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFixed copies value into buf and reports len(value), so a value
// longer than buf is reported as such rather than silently clipped.
func writeFixed(value []byte) Writer {
	return func(buf []byte) (int, error) {
		copy(buf, value)
		return len(value), nil
	}
}

func TestRecordTable_StoreAndFind(t *testing.T) {
	f := newTestFile(t)
	tbl := NewRecordTable(f, 0, 64, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	key := []byte("key1")
	value := []byte("value123")
	_, err := tbl.Store(key, writeFixed(value))
	require.NoError(t, err)

	got, found, err := tbl.Find(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, value, got)
}

func TestRecordTable_FindMissing(t *testing.T) {
	f := newTestFile(t)
	tbl := NewRecordTable(f, 0, 64, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	_, found, err := tbl.Find([]byte("nope"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestRecordTable_DuplicateKeysLIFO(t *testing.T) {
	f := newTestFile(t)
	tbl := NewRecordTable(f, 0, 16, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	key := []byte("dupe")
	_, err := tbl.Store(key, writeFixed([]byte("first...")))
	require.NoError(t, err)
	_, err = tbl.Store(key, writeFixed([]byte("second..")))
	require.NoError(t, err)

	got, found, err := tbl.Find(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "second..", string(got))
}

func TestRecordTable_Update(t *testing.T) {
	f := newTestFile(t)
	tbl := NewRecordTable(f, 0, 16, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	key := []byte("key1")
	_, err := tbl.Store(key, writeFixed([]byte("initial.")))
	require.NoError(t, err)

	_, err = tbl.Update(key, writeFixed([]byte("updated.")))
	require.NoError(t, err)

	got, found, err := tbl.Find(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "updated.", string(got))
}

func TestRecordTable_UpdateMissingReturnsNotFound(t *testing.T) {
	f := newTestFile(t)
	tbl := NewRecordTable(f, 0, 16, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	link, err := tbl.Update([]byte("nope"), writeFixed([]byte("________")))
	require.NoError(t, err)
	require.Equal(t, NotFound(Link32), link)
}

func TestRecordTable_UnlinkHead(t *testing.T) {
	f := newTestFile(t)
	tbl := NewRecordTable(f, 0, 16, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	key := []byte("key1")
	_, err := tbl.Store(key, writeFixed([]byte("value123")))
	require.NoError(t, err)

	ok, err := tbl.Unlink(key)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := tbl.Find(key)
	require.NoError(t, err)
	require.False(t, found)

	// unlinking again is a no-op, not an error
	ok, err = tbl.Unlink(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordTable_UnlinkMiddleOfChain(t *testing.T) {
	f := newTestFile(t)
	// force collisions with a single bucket.
	tbl := NewRecordTable(f, 0, 1, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	_, err := tbl.Store([]byte("aaaa"), writeFixed([]byte("value_aaa")[:8]))
	require.NoError(t, err)
	_, err = tbl.Store([]byte("bbbb"), writeFixed([]byte("value_bbb")[:8]))
	require.NoError(t, err)
	_, err = tbl.Store([]byte("cccc"), writeFixed([]byte("value_ccc")[:8]))
	require.NoError(t, err)

	ok, err := tbl.Unlink([]byte("bbbb"))
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := tbl.Find([]byte("bbbb"))
	require.NoError(t, err)
	require.False(t, found)

	// the rest of the chain survives
	_, found, err = tbl.Find([]byte("aaaa"))
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = tbl.Find([]byte("cccc"))
	require.NoError(t, err)
	require.True(t, found)
}

func TestRecordTable_RestartPreservesData(t *testing.T) {
	f := newTestFile(t)
	tbl := NewRecordTable(f, 0, 32, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	_, err := tbl.Store([]byte("key1"), writeFixed([]byte("value123")))
	require.NoError(t, err)
	require.NoError(t, tbl.Sync())

	tbl2 := NewRecordTable(f, 0, 32, Link32, 4, 8)
	require.NoError(t, tbl2.Start())

	got, found, err := tbl2.Find([]byte("key1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "value123", string(got))
}

func TestRecordTable_ShortWriteErrors(t *testing.T) {
	f := newTestFile(t)
	tbl := NewRecordTable(f, 0, 16, Link32, 4, 8)
	require.NoError(t, tbl.Create())

	_, err := tbl.Store([]byte("key1"), func(buf []byte) (int, error) {
		return 3, nil
	})
	require.Error(t, err)
}
