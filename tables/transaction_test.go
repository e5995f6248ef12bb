// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTransactionTable(t *testing.T) *Transaction {
	t.Helper()
	tx := NewTransaction(newTestFile(t), newTestFile(t), 64)
	require.NoError(t, tx.Create())
	return tx
}

func TestTransaction_StoreAndLookup(t *testing.T) {
	tx := newTransactionTable(t)

	txid := bytes.Repeat([]byte{0x01}, HashSize)
	payload := []byte("a serialized transaction")

	offset, err := tx.Store(txid, 42, payload)
	require.NoError(t, err)

	got, found, err := tx.ByTxID(txid)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload, got)

	require.Equal(t, uint64(1), tx.Len())
	gotOffset, height, err := tx.IndexRow(0)
	require.NoError(t, err)
	require.Equal(t, offset, gotOffset)
	require.Equal(t, uint64(42), height)
}

func TestTransaction_UnlinkLeavesIndexRowStale(t *testing.T) {
	tx := newTransactionTable(t)

	txid := bytes.Repeat([]byte{0x02}, HashSize)
	_, err := tx.Store(txid, 7, []byte("payload"))
	require.NoError(t, err)

	ok, err := tx.Unlink(txid)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := tx.ByTxID(txid)
	require.NoError(t, err)
	require.False(t, found)

	// the index row itself is untouched -- callers must treat it as
	// stale rather than expect it to disappear.
	require.Equal(t, uint64(1), tx.Len())
}
