// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package htable

import (
	"encoding/binary"

	"github.com/bpowers/chainstore/errors"
	"github.com/bpowers/chainstore/storage"
)

// Header persists and serves a hash table's bucket array:
//
//	[ bucket_count : 4 bytes little-endian ]
//	[ bucket[0]    : linkSize bytes little-endian ]
//	...
//	[ bucket[N-1]  : linkSize bytes little-endian ]
type Header struct {
	file   *storage.File
	offset uint64 // absolute byte offset of bucket_count

	bucketCount uint32
	linkSize    LinkSize
}

// NewHeader describes but does not create or start a Header.
func NewHeader(file *storage.File, offset uint64, bucketCount uint32, linkSize LinkSize) *Header {
	return &Header{file: file, offset: offset, bucketCount: bucketCount, linkSize: linkSize}
}

// Size returns the total on-disk size of the header in bytes.
func Size(bucketCount uint32, linkSize LinkSize) uint64 {
	return 4 + uint64(bucketCount)*uint64(linkSize)
}

func (h *Header) bucketOffset(i uint32) uint64 {
	return h.offset + 4 + uint64(i)*uint64(h.linkSize)
}

// Create writes bucket_count and fills every bucket with NotFound.
func (h *Header) Create() error {
	if err := h.file.Reserve(h.offset + Size(h.bucketCount, h.linkSize)); err != nil {
		return errors.New("htable.Header.Create", errors.IO, err)
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], h.bucketCount)
	if err := h.file.WriteAt(h.offset, countBuf[:]); err != nil {
		return errors.New("htable.Header.Create", errors.IO, err)
	}

	notFound := NotFound(h.linkSize)
	buf := make([]byte, h.linkSize)
	PutLink(buf, notFound, h.linkSize)
	for i := uint32(0); i < h.bucketCount; i++ {
		if err := h.file.WriteAt(h.bucketOffset(i), buf); err != nil {
			return errors.New("htable.Header.Create", errors.IO, err)
		}
	}
	return nil
}

// Start validates that the persisted bucket count matches the
// configured one.
func (h *Header) Start() error {
	var countBuf [4]byte
	if err := h.file.ReadAt(h.offset, countBuf[:]); err != nil {
		return errors.New("htable.Header.Start", errors.IO, err)
	}
	stored := binary.LittleEndian.Uint32(countBuf[:])
	if stored != h.bucketCount {
		return errors.New("htable.Header.Start", errors.CorruptHeader, nil)
	}
	return nil
}

// Read returns the link stored in bucket i.
func (h *Header) Read(i uint32) (uint64, error) {
	if i >= h.bucketCount {
		return 0, errors.New("htable.Header.Read", errors.InvalidLink, nil)
	}
	buf := make([]byte, h.linkSize)
	if err := h.file.ReadAt(h.bucketOffset(i), buf); err != nil {
		return 0, errors.New("htable.Header.Read", errors.IO, err)
	}
	return GetLink(buf, h.linkSize), nil
}

// Write stores link in bucket i.
func (h *Header) Write(i uint32, link uint64) error {
	if i >= h.bucketCount {
		return errors.New("htable.Header.Write", errors.InvalidLink, nil)
	}
	buf := make([]byte, h.linkSize)
	PutLink(buf, link, h.linkSize)
	if err := h.file.WriteAt(h.bucketOffset(i), buf); err != nil {
		return errors.New("htable.Header.Write", errors.IO, err)
	}
	return nil
}

// BucketOf returns the bucket index for key.
func (h *Header) BucketOf(key []byte) uint32 {
	return BucketOf(key, h.bucketCount)
}

// BucketCount returns the configured number of buckets.
func (h *Header) BucketCount() uint32 {
	return h.bucketCount
}

// LinkSize returns the configured link width.
func (h *Header) LinkSize() LinkSize {
	return h.linkSize
}
