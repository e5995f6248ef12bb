// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package htable implements the hash-table header and the chained
// (record and slab variant) hash tables built over storage.File and
// manager.RecordManager/SlabManager.
package htable

import "encoding/binary"

// LinkSize is the width in bytes of a link or slab offset: 4 (uint32)
// or 8 (uint64), chosen per table.
type LinkSize uint8

const (
	Link32 LinkSize = 4
	Link64 LinkSize = 8
)

// NotFound returns the all-ones sentinel for the given link width.
func NotFound(size LinkSize) uint64 {
	if size == Link32 {
		return uint64(^uint32(0))
	}
	return ^uint64(0)
}

// GetLink reads a little-endian link value of the given width from buf.
func GetLink(buf []byte, size LinkSize) uint64 {
	if size == Link32 {
		return uint64(binary.LittleEndian.Uint32(buf))
	}
	return binary.LittleEndian.Uint64(buf)
}

// PutLink writes v into buf as a little-endian link of the given width.
func PutLink(buf []byte, v uint64, size LinkSize) {
	if size == Link32 {
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(buf, v)
}
