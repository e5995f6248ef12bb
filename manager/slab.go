// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package manager

import (
	"encoding/binary"

	"github.com/bpowers/chainstore/errors"
	"github.com/bpowers/chainstore/storage"
)

// SlabManager bump-allocates variable-size cells inside a storage.File,
// addressed by byte offset from the start of its region.
type SlabManager struct {
	file *storage.File

	watermarkOffset uint64
	headerOffset    uint64

	used uint64 // cached number of bytes allocated in the slab area
}

// NewSlabManager describes but does not create or start the manager.
func NewSlabManager(file *storage.File, watermarkOffset, headerOffset uint64) *SlabManager {
	return &SlabManager{file: file, watermarkOffset: watermarkOffset, headerOffset: headerOffset}
}

// DataOffset returns the byte offset where the slab area begins.
func (m *SlabManager) DataOffset() uint64 {
	return m.watermarkOffset + WatermarkSize + m.headerOffset
}

// Create initializes a fresh manager region: used = 0.
func (m *SlabManager) Create() error {
	if err := m.file.Reserve(m.watermarkOffset + WatermarkSize); err != nil {
		return errors.New("manager.SlabManager.Create", errors.IO, err)
	}
	m.used = 0
	return m.persistWatermark()
}

// Start reads and caches the persisted watermark.
func (m *SlabManager) Start() error {
	var buf [WatermarkSize]byte
	if err := m.file.ReadAt(m.watermarkOffset, buf[:]); err != nil {
		return errors.New("manager.SlabManager.Start", errors.IO, err)
	}
	m.used = binary.LittleEndian.Uint64(buf[:])
	return nil
}

// Sync writes the cached used-bytes count back to storage.
func (m *SlabManager) Sync() error {
	return m.persistWatermark()
}

func (m *SlabManager) persistWatermark() error {
	var buf [WatermarkSize]byte
	binary.LittleEndian.PutUint64(buf[:], m.used)
	if err := m.file.WriteAt(m.watermarkOffset, buf[:]); err != nil {
		return errors.New("manager.SlabManager.Sync", errors.IO, err)
	}
	m.file.SetUsed(m.DataOffset() + m.used)
	return nil
}

// Used returns the number of bytes currently allocated in the slab area.
func (m *SlabManager) Used() uint64 {
	return m.used
}

// NewSlab reserves byteSize contiguous bytes and returns their absolute
// byte offset in the file (the first slab starts at DataOffset()). On
// failure the in-memory used count is rolled back.
func (m *SlabManager) NewSlab(byteSize uint64) (uint64, error) {
	preUsed := m.used
	offset := m.DataOffset() + m.used
	newUsed := m.used + byteSize

	required := m.DataOffset() + newUsed
	if err := m.file.Reserve(required); err != nil {
		m.used = preUsed
		return 0, errors.New("manager.SlabManager.NewSlab", errors.IO, err)
	}

	m.used = newUsed
	return offset, nil
}

// Get returns a pointer to size bytes at offset, bounds-checked against
// the cached used count.
func (m *SlabManager) Get(offset, size uint64) (*storage.Pointer, error) {
	if offset < m.DataOffset() || offset+size > m.DataOffset()+m.used {
		return nil, errors.New("manager.SlabManager.Get", errors.InvalidLink, nil)
	}
	return m.file.Access(offset)
}
