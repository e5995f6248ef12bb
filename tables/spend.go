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

// OutpointSize is {txid(HashSize) | index(4)}, the fixed key and value
// width used by Spend. Supplements the distilled spec from
// original_source/include/bitcoin/database/databases/spend_database.hpp,
// which this module's instructions treat as a legitimate source of
// dropped features to reintroduce.
const OutpointSize = HashSize + 4

// Spend tracks, for every outpoint that has been spent, the outpoint of
// the input that spent it -- a single fixed-size record hash table with
// no auxiliary list, mirroring libbitcoin's spend_database.
type Spend struct {
	table *htable.RecordTable
}

// NewSpend describes but does not create or start a Spend table.
func NewSpend(file *storage.File, bucketCount uint32) *Spend {
	return &Spend{
		table: htable.NewRecordTable(file, 0, bucketCount, htable.Link32, OutpointSize, OutpointSize),
	}
}

func (s *Spend) Create() error { return s.table.Create() }
func (s *Spend) Start() error  { return s.table.Start() }
func (s *Spend) Sync() error   { return s.table.Sync() }
func (s *Spend) Flush() error  { return s.table.Flush() }

func encodeOutpoint(txid []byte, index uint32) []byte {
	buf := make([]byte, OutpointSize)
	copy(buf, txid)
	binary.LittleEndian.PutUint32(buf[HashSize:], index)
	return buf
}

func decodeOutpoint(buf []byte) (txid []byte, index uint32) {
	txid = make([]byte, HashSize)
	copy(txid, buf[:HashSize])
	index = binary.LittleEndian.Uint32(buf[HashSize:])
	return
}

// Store records that outpoint {txid, index} was spent by
// {spenderTxid, spenderIndex}.
func (s *Spend) Store(txid []byte, index uint32, spenderTxid []byte, spenderIndex uint32) (uint64, error) {
	if len(txid) != HashSize || len(spenderTxid) != HashSize {
		return 0, errors.New("tables.Spend.Store", errors.InvalidLink, nil)
	}
	key := encodeOutpoint(txid, index)
	value := encodeOutpoint(spenderTxid, spenderIndex)
	return s.table.Store(key, func(buf []byte) (int, error) {
		return copy(buf, value), nil
	})
}

// Get returns the spender outpoint for {txid, index}, if spent.
func (s *Spend) Get(txid []byte, index uint32) (spenderTxid []byte, spenderIndex uint32, found bool, err error) {
	key := encodeOutpoint(txid, index)
	value, found, err := s.table.Find(key)
	if err != nil || !found {
		return nil, 0, found, err
	}
	spenderTxid, spenderIndex = decodeOutpoint(value)
	return spenderTxid, spenderIndex, true, nil
}

// Unlink removes the spend record for {txid, index}, e.g. during a
// block reorganization that unspends an output.
func (s *Spend) Unlink(txid []byte, index uint32) (bool, error) {
	key := encodeOutpoint(txid, index)
	return s.table.Unlink(key)
}
