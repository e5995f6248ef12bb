// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"encoding/binary"

	"github.com/bpowers/chainstore/htable"
	"github.com/bpowers/chainstore/storage"
)

// txIndexRowSize is a sequential row: {txOffset(8), containingHeight(8)}.
const txIndexRowSize = 16

// Transaction composes transaction_index and transaction_table
// (spec.md §6): transaction_table is a hash table keyed by txid storing
// variable-size serialized transactions, and transaction_index is a
// sequential append-only log of {offset, containing block height}
// tuples, letting callers enumerate transactions in storage order
// without walking every bucket chain.
type Transaction struct {
	index *List
	table *htable.SlabTable
}

// NewTransaction describes but does not create or start a Transaction.
func NewTransaction(indexFile, tableFile *storage.File, bucketCount uint32) *Transaction {
	return &Transaction{
		index: NewList(indexFile, 0, txIndexRowSize),
		table: htable.NewSlabTable(tableFile, 0, bucketCount, htable.Link64, HashSize),
	}
}

func (t *Transaction) Create() error {
	if err := t.index.Create(); err != nil {
		return err
	}
	return t.table.Create()
}

func (t *Transaction) Start() error {
	if err := t.index.Start(); err != nil {
		return err
	}
	return t.table.Start()
}

func (t *Transaction) Sync() error {
	if err := t.index.Sync(); err != nil {
		return err
	}
	return t.table.Sync()
}

func (t *Transaction) Flush() error {
	if err := t.index.Flush(); err != nil {
		return err
	}
	return t.table.Flush()
}

// Store writes a variable-size transaction payload keyed by txid and
// records its position in transaction_index.
func (t *Transaction) Store(txid []byte, containingHeight uint64, payload []byte) (uint64, error) {
	offset, err := t.table.Store(txid, uint64(len(payload)), func(buf []byte) (int, error) {
		return copy(buf, payload), nil
	})
	if err != nil {
		return 0, err
	}
	_, err = t.index.Append(func(buf []byte) (int, error) {
		binary.LittleEndian.PutUint64(buf[0:8], offset)
		binary.LittleEndian.PutUint64(buf[8:16], containingHeight)
		return txIndexRowSize, nil
	})
	return offset, err
}

// ByTxID returns the transaction payload for txid.
func (t *Transaction) ByTxID(txid []byte) ([]byte, bool, error) {
	return t.table.Find(txid)
}

// Unlink removes txid's transaction from transaction_table. The
// transaction_index row remains (it is append-only); callers that
// reorganize the chain must treat index rows past the tip as stale.
func (t *Transaction) Unlink(txid []byte) (bool, error) {
	return t.table.Unlink(txid)
}

// IndexRow returns the raw {offset, containingHeight} row at position i.
func (t *Transaction) IndexRow(i uint64) (offset, containingHeight uint64, err error) {
	row, err := t.index.Get(i)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint64(row[0:8]), binary.LittleEndian.Uint64(row[8:16]), nil
}

// Len returns the number of rows appended to transaction_index.
func (t *Transaction) Len() uint64 { return t.index.Len() }
