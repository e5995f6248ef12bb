// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package tables composes htable.RecordTable/SlabTable and List over a
// storage.File into the higher-level block, transaction, spend, and
// address-history table files spec.md §2 calls "table files". Per
// spec.md §1's scope, these store and retrieve opaque byte payloads
// keyed by caller-supplied hashes; block/transaction schema and hashing
// are out of scope.
package tables

import (
	"github.com/bpowers/chainstore/errors"
	"github.com/bpowers/chainstore/htable"
	"github.com/bpowers/chainstore/manager"
	"github.com/bpowers/chainstore/storage"
)

// Writer fills a fixed-size buffer and must return len(buf).
type Writer = htable.Writer

// List is a plain append-only array of fixed-size records, addressed by
// zero-based index -- spec.md §6's "append-only arrays of records"
// (header_index, block_index, transaction_index), built directly on
// manager.RecordManager with no hash-table header above it.
type List struct {
	file       *storage.File
	mgr        *manager.RecordManager
	recordSize uint64
}

// NewList describes but does not create or start a List.
func NewList(file *storage.File, watermarkOffset, recordSize uint64) *List {
	return &List{
		file:       file,
		mgr:        manager.NewRecordManager(file, watermarkOffset, 0, recordSize),
		recordSize: recordSize,
	}
}

func (l *List) Create() error { return l.mgr.Create() }
func (l *List) Start() error  { return l.mgr.Start() }
func (l *List) Sync() error   { return l.mgr.Sync() }

func (l *List) Flush() error {
	if err := l.Sync(); err != nil {
		return err
	}
	return l.file.Flush()
}

// Len returns the number of records appended so far.
func (l *List) Len() uint64 { return l.mgr.Used() }

// Append reserves one new record and fills it via write.
func (l *List) Append(write Writer) (uint64, error) {
	link, err := l.mgr.NewRecords(1)
	if err != nil {
		return 0, err
	}
	ptr, err := l.mgr.Get(link)
	if err != nil {
		return 0, err
	}
	defer ptr.Release()

	buf, err := ptr.Bytes(l.recordSize)
	if err != nil {
		return 0, err
	}
	n, err := write(buf)
	if err != nil {
		return 0, err
	}
	if uint64(n) != l.recordSize {
		return 0, errors.New("tables.List.Append", errors.ShortWrite, nil)
	}
	return link, nil
}

// Get returns a copy of the record at index.
func (l *List) Get(index uint64) ([]byte, error) {
	ptr, err := l.mgr.Get(index)
	if err != nil {
		return nil, err
	}
	defer ptr.Release()

	buf, err := ptr.Bytes(l.recordSize)
	if err != nil {
		return nil, err
	}
	out := make([]byte, l.recordSize)
	copy(out, buf)
	return out, nil
}
