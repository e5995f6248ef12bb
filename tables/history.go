// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"encoding/binary"

	"github.com/bpowers/chainstore/errors"
	"github.com/bpowers/chainstore/htable"
	"github.com/bpowers/chainstore/storage"
)

// History row kinds, mirroring libbitcoin's history_database rows,
// which record either an output or the spend that consumed one.
const (
	HistoryOutput byte = 0
	HistorySpend  byte = 1
)

// historyRowSize: {previous(8) | height(4) | kind(1) | outpoint(OutpointSize)}.
const historyRowSize = 8 + 4 + 1 + OutpointSize

const historyHeadSize = 8 // link width used for history_table's value

// History composes the optional history_table and history_rows files
// (spec.md §4.5/§6, gated by store.Config.IndexAddresses): history_table
// is a hash table keyed by address hash whose value is the link of the
// most recently appended row for that address, and history_rows is a
// flat append-only array of rows threaded into a per-address singly
// linked list via each row's "previous" field. Supplements the
// distilled spec from original_source, which only carries store.cpp's
// filenames for this pair, not its (absent from the retrieved excerpt)
// history_database.cpp semantics -- the linked-list-over-a-flat-array
// shape is inferred from spec.md §3's Chain definition applied to this
// file pair.
type History struct {
	table *htable.SlabTable
	rows  *List
}

// NewHistory describes but does not create or start a History pair.
func NewHistory(tableFile, rowsFile *storage.File, bucketCount uint32) *History {
	return &History{
		table: htable.NewSlabTable(tableFile, 0, bucketCount, htable.Link64, HashSize),
		rows:  NewList(rowsFile, 0, historyRowSize),
	}
}

func (h *History) Create() error {
	if err := h.table.Create(); err != nil {
		return err
	}
	return h.rows.Create()
}

func (h *History) Start() error {
	if err := h.table.Start(); err != nil {
		return err
	}
	return h.rows.Start()
}

func (h *History) Sync() error {
	if err := h.table.Sync(); err != nil {
		return err
	}
	return h.rows.Sync()
}

func (h *History) Flush() error {
	if err := h.table.Flush(); err != nil {
		return err
	}
	return h.rows.Flush()
}

// Row is one decoded history_rows entry.
type Row struct {
	Height   uint32
	Kind     byte
	Outpoint []byte // OutpointSize bytes: {txid | index}
}

func noRowLink() uint64 {
	return htable.NotFound(htable.Link64)
}

// Append records a new history row for address, threading it onto the
// front of that address's per-address linked list.
func (h *History) Append(address []byte, height uint32, kind byte, outpoint []byte) (uint64, error) {
	if len(outpoint) != OutpointSize {
		return 0, errors.New("tables.History.Append", errors.InvalidLink, nil)
	}

	head, found, err := h.table.Find(address)
	if err != nil {
		return 0, err
	}
	prev := noRowLink()
	if found {
		prev = binary.LittleEndian.Uint64(head)
	}

	rowLink, err := h.rows.Append(func(buf []byte) (int, error) {
		binary.LittleEndian.PutUint64(buf[0:8], prev)
		binary.LittleEndian.PutUint32(buf[8:12], height)
		buf[12] = kind
		copy(buf[13:], outpoint)
		return historyRowSize, nil
	})
	if err != nil {
		return 0, err
	}

	newHead := func(buf []byte) (int, error) {
		binary.LittleEndian.PutUint64(buf, rowLink)
		return historyHeadSize, nil
	}
	if found {
		_, err = h.table.Update(address, newHead)
	} else {
		_, err = h.table.Store(address, historyHeadSize, newHead)
	}
	return rowLink, err
}

// Rows returns every history row for address, most recent first.
func (h *History) Rows(address []byte) ([]Row, error) {
	head, found, err := h.table.Find(address)
	if err != nil || !found {
		return nil, err
	}

	var out []Row
	cur := binary.LittleEndian.Uint64(head)
	stop := noRowLink()
	for cur != stop {
		buf, err := h.rows.Get(cur)
		if err != nil {
			return nil, err
		}
		outpoint := make([]byte, OutpointSize)
		copy(outpoint, buf[13:])
		out = append(out, Row{
			Height:   binary.LittleEndian.Uint32(buf[8:12]),
			Kind:     buf[12],
			Outpoint: outpoint,
		})
		cur = binary.LittleEndian.Uint64(buf[0:8])
	}
	return out, nil
}
