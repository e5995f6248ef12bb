// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package testutil holds small helpers shared by this module's package
// tests, avoiding a copy of the same storage.File setup boilerplate in
// every package.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/chainstore/storage"
)

// NewFile creates and opens a fresh content file backed by a temp
// directory that t cleans up automatically.
func NewFile(t *testing.T) *storage.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "content")
	require.NoError(t, storage.Create(path))
	f, err := storage.Open(path, storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}
