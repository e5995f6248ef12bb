// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package manager implements the bump-allocators layered above storage:
// RecordManager for fixed-size cells addressed by a zero-based index,
// and SlabManager for variable-size cells addressed by byte offset.
// Both persist a single watermark at a fixed header offset and commit
// it only on an explicit Sync, generalizing the teacher's
// internal/dataio append-only watermark into a two-phase
// Create/Start + Sync bump allocator.
package manager

import (
	"encoding/binary"

	"github.com/bpowers/chainstore/errors"
	"github.com/bpowers/chainstore/storage"
)

// RecordManager bump-allocates fixed-size records inside a storage.File,
// past headerOffset bytes reserved above it (typically for a
// htable.Header's bucket array).
type RecordManager struct {
	file *storage.File

	watermarkOffset uint64 // where used-record-count is persisted
	headerOffset    uint64 // bytes reserved above the watermark for the caller's header
	recordSize      uint64

	used uint64 // cached record count, valid after Create/Start
}

const WatermarkSize = 8 // uint64 LE

// NewRecordManager describes but does not create or start the manager;
// call Create or Start before use.
func NewRecordManager(file *storage.File, watermarkOffset, headerOffset, recordSize uint64) *RecordManager {
	return &RecordManager{
		file:            file,
		watermarkOffset: watermarkOffset,
		headerOffset:    headerOffset,
		recordSize:      recordSize,
	}
}

// DataOffset returns the byte offset where the record area begins.
func (m *RecordManager) DataOffset() uint64 {
	return m.watermarkOffset + WatermarkSize + m.headerOffset
}

// Create initializes a fresh manager region: used = 0.
func (m *RecordManager) Create() error {
	if err := m.file.Reserve(m.watermarkOffset + WatermarkSize); err != nil {
		return errors.New("manager.RecordManager.Create", errors.IO, err)
	}
	m.used = 0
	return m.persistWatermark()
}

// Start reads and caches the persisted watermark.
func (m *RecordManager) Start() error {
	var buf [WatermarkSize]byte
	if err := m.file.ReadAt(m.watermarkOffset, buf[:]); err != nil {
		return errors.New("manager.RecordManager.Start", errors.IO, err)
	}
	m.used = binary.LittleEndian.Uint64(buf[:])
	return nil
}

// Sync writes the cached used count back to storage -- the commit point
// for any NewRecords calls made since the last Sync.
func (m *RecordManager) Sync() error {
	return m.persistWatermark()
}

func (m *RecordManager) persistWatermark() error {
	var buf [WatermarkSize]byte
	binary.LittleEndian.PutUint64(buf[:], m.used)
	if err := m.file.WriteAt(m.watermarkOffset, buf[:]); err != nil {
		return errors.New("manager.RecordManager.Sync", errors.IO, err)
	}
	m.file.SetUsed(m.DataOffset() + m.used*m.recordSize)
	return nil
}

// Used returns the number of records currently allocated.
func (m *RecordManager) Used() uint64 {
	return m.used
}

// NewRecords reserves count contiguous records and returns the link
// (zero-based index) of the first one. On a failure to grow the
// underlying storage, the in-memory used count is rolled back to its
// pre-call value.
func (m *RecordManager) NewRecords(count uint64) (uint64, error) {
	preUsed := m.used
	link := m.used
	newUsed := m.used + count

	required := m.DataOffset() + newUsed*m.recordSize
	if err := m.file.Reserve(required); err != nil {
		m.used = preUsed
		return 0, errors.New("manager.RecordManager.NewRecords", errors.IO, err)
	}

	m.used = newUsed
	return link, nil
}

// CellOffset returns the absolute byte offset of the record identified
// by link.
func (m *RecordManager) CellOffset(link uint64) uint64 {
	return m.DataOffset() + link*m.recordSize
}

// Get returns a pointer to the payload for link, bounds-checked against
// the cached used count.
func (m *RecordManager) Get(link uint64) (*storage.Pointer, error) {
	if link >= m.used {
		return nil, errors.New("manager.RecordManager.Get", errors.InvalidLink, nil)
	}
	return m.file.Access(m.CellOffset(link))
}

// RecordSize returns the fixed size in bytes of each record cell.
func (m *RecordManager) RecordSize() uint64 {
	return m.recordSize
}
