// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package htable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/chainstore/errors"
	"github.com/bpowers/chainstore/internal/testutil"
	"github.com/bpowers/chainstore/storage"
)

func newTestFile(t *testing.T) *storage.File {
	return testutil.NewFile(t)
}

func TestHeader_CreateInitializesAllBucketsToNotFound(t *testing.T) {
	f := newTestFile(t)
	h := NewHeader(f, 0, 16, Link32)
	require.NoError(t, h.Create())

	for i := uint32(0); i < 16; i++ {
		link, err := h.Read(i)
		require.NoError(t, err)
		require.Equal(t, NotFound(Link32), link)
	}
}

func TestHeader_WriteReadRoundtrip(t *testing.T) {
	f := newTestFile(t)
	h := NewHeader(f, 0, 8, Link64)
	require.NoError(t, h.Create())

	require.NoError(t, h.Write(3, 12345))
	got, err := h.Read(3)
	require.NoError(t, err)
	require.Equal(t, uint64(12345), got)

	// unrelated buckets are untouched
	other, err := h.Read(4)
	require.NoError(t, err)
	require.Equal(t, NotFound(Link64), other)
}

func TestHeader_OutOfRange(t *testing.T) {
	f := newTestFile(t)
	h := NewHeader(f, 0, 4, Link32)
	require.NoError(t, h.Create())

	_, err := h.Read(4)
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.InvalidLink))

	err = h.Write(100, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.InvalidLink))
}

func TestHeader_StartValidatesBucketCount(t *testing.T) {
	f := newTestFile(t)
	h := NewHeader(f, 0, 8, Link32)
	require.NoError(t, h.Create())

	mismatched := NewHeader(f, 0, 16, Link32)
	err := mismatched.Start()
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CorruptHeader))

	matched := NewHeader(f, 0, 8, Link32)
	require.NoError(t, matched.Start())
}

func TestBucketOf_Deterministic(t *testing.T) {
	key := []byte("some-key")
	a := BucketOf(key, 997)
	b := BucketOf(key, 997)
	require.Equal(t, a, b)
	require.Less(t, a, uint32(997))
}

func TestBucketOf_ShortKeysAreZeroExtended(t *testing.T) {
	short := []byte{0x01}
	padded := []byte{0x01, 0, 0, 0, 0, 0, 0, 0}
	require.Equal(t, BucketOf(short, 512), BucketOf(padded, 512))
}
