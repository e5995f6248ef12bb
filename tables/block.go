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

// HashSize is the width in bytes of the opaque, caller-supplied hashes
// used as table keys throughout this package. Producing that hash
// (e.g. double-SHA256 of a serialized block) is explicitly out of
// scope for this module (spec.md §1).
const HashSize = 32

// blockIndexRowSize is a height-indexed row: the byte offset of the
// block's payload within block_table.
const blockIndexRowSize = 8

// Block composes the header_index, block_index, and block_table files
// (spec.md §6) into height- and hash-addressable block storage:
// header_index is a fixed-size array of raw block headers indexed by
// height, block_index maps height to an offset into block_table, and
// block_table is a hash table keyed by block hash storing full
// (variable-size) block payloads.
type Block struct {
	headerIndex *List
	index       *List
	table       *htable.SlabTable
	headerSize  uint64
}

// NewBlock describes but does not create or start a Block.
func NewBlock(headerFile, indexFile, tableFile *storage.File, headerSize uint64, bucketCount uint32) *Block {
	return &Block{
		headerIndex: NewList(headerFile, 0, headerSize),
		index:       NewList(indexFile, 0, blockIndexRowSize),
		table:       htable.NewSlabTable(tableFile, 0, bucketCount, htable.Link64, HashSize),
		headerSize:  headerSize,
	}
}

func (b *Block) Create() error {
	if err := b.headerIndex.Create(); err != nil {
		return err
	}
	if err := b.index.Create(); err != nil {
		return err
	}
	return b.table.Create()
}

func (b *Block) Start() error {
	if err := b.headerIndex.Start(); err != nil {
		return err
	}
	if err := b.index.Start(); err != nil {
		return err
	}
	return b.table.Start()
}

func (b *Block) Sync() error {
	if err := b.headerIndex.Sync(); err != nil {
		return err
	}
	if err := b.index.Sync(); err != nil {
		return err
	}
	return b.table.Sync()
}

func (b *Block) Flush() error {
	if err := b.headerIndex.Flush(); err != nil {
		return err
	}
	if err := b.index.Flush(); err != nil {
		return err
	}
	return b.table.Flush()
}

// StoreHeader appends a fixed-size raw header at the next height.
func (b *Block) StoreHeader(header []byte) (height uint64, err error) {
	if uint64(len(header)) != b.headerSize {
		return 0, errors.New("tables.Block.StoreHeader", errors.InvalidLink, nil)
	}
	height, err = b.headerIndex.Append(func(buf []byte) (int, error) {
		return copy(buf, header), nil
	})
	return height, err
}

// Header returns the raw header bytes stored at height.
func (b *Block) Header(height uint64) ([]byte, error) {
	return b.headerIndex.Get(height)
}

// Len returns the number of headers appended to header_index.
func (b *Block) Len() uint64 { return b.headerIndex.Len() }

// Store writes a variable-size block payload keyed by hash and appends
// a row to block_index pointing at it. It returns the payload's height
// (its index in block_index) and its offset in block_table.
func (b *Block) Store(hash []byte, payload []byte) (height, offset uint64, err error) {
	offset, err = b.table.Store(hash, uint64(len(payload)), func(buf []byte) (int, error) {
		return copy(buf, payload), nil
	})
	if err != nil {
		return 0, 0, err
	}
	height, err = b.index.Append(func(buf []byte) (int, error) {
		binary.LittleEndian.PutUint64(buf, offset)
		return blockIndexRowSize, nil
	})
	return height, offset, err
}

// ByHash returns the block payload for hash.
func (b *Block) ByHash(hash []byte) ([]byte, bool, error) {
	return b.table.Find(hash)
}

// ByHeight returns the block payload stored at height.
func (b *Block) ByHeight(height uint64) ([]byte, error) {
	row, err := b.index.Get(height)
	if err != nil {
		return nil, err
	}
	offset := binary.LittleEndian.Uint64(row)
	return b.table.Get(offset)
}
