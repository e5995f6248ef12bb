// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBlockTable(t *testing.T) *Block {
	t.Helper()
	b := NewBlock(newTestFile(t), newTestFile(t), newTestFile(t), 80, 64)
	require.NoError(t, b.Create())
	return b
}

func TestBlock_StoreHeaderAndPayload(t *testing.T) {
	b := newBlockTable(t)

	header := bytes.Repeat([]byte{0x11}, 80)
	height, err := b.StoreHeader(header)
	require.NoError(t, err)
	require.Equal(t, uint64(0), height)

	gotHeader, err := b.Header(height)
	require.NoError(t, err)
	require.Equal(t, header, gotHeader)

	hash := bytes.Repeat([]byte{0xaa}, HashSize)
	payload := []byte("a serialized block payload")
	storedHeight, _, err := b.Store(hash, payload)
	require.NoError(t, err)
	require.Equal(t, uint64(0), storedHeight)

	byHash, found, err := b.ByHash(hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload, byHash)

	byHeight, err := b.ByHeight(storedHeight)
	require.NoError(t, err)
	require.Equal(t, payload, byHeight)
}

func TestBlock_StoreHeaderRejectsWrongSize(t *testing.T) {
	b := newBlockTable(t)
	_, err := b.StoreHeader([]byte("too short"))
	require.Error(t, err)
}

func TestBlock_ByHashMissing(t *testing.T) {
	b := newBlockTable(t)
	hash := bytes.Repeat([]byte{0xff}, HashSize)
	_, found, err := b.ByHash(hash)
	require.NoError(t, err)
	require.False(t, found)
}
