// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package storage

import (
	"sync/atomic"

	"github.com/bpowers/chainstore/errors"
)

// Pointer is a scoped handle to a byte offset inside a File's mapping.
// Dereferencing (Bytes) reads the File's current mapping at call time.
// While it is live it counts against the File's remap-exclusion
// semaphore, so a concurrent Reserve blocks until Release; after
// Release, Bytes returns an InvalidLink error.
type Pointer struct {
	file     *File
	offset   uint64
	released int32
}

// Bytes returns a slice of length n starting at the pointer's offset in
// the current mapping. The slice aliases the mapping directly; writes
// to it are writes to the file.
func (p *Pointer) Bytes(n uint64) ([]byte, error) {
	if atomic.LoadInt32(&p.released) != 0 {
		return nil, errors.New("storage.Pointer.Bytes", errors.InvalidLink, nil)
	}
	p.file.dataMu.RLock()
	data := p.file.data
	p.file.dataMu.RUnlock()
	if p.offset+n > uint64(len(data)) {
		return nil, errors.New("storage.Pointer.Bytes", errors.InvalidLink, nil)
	}
	return data[p.offset : p.offset+n], nil
}

// Offset returns the byte offset this pointer was created for.
func (p *Pointer) Offset() uint64 {
	return p.offset
}

// Release gives back the pointer's share of the remap-exclusion
// semaphore. It is safe to call more than once; only the first call has
// an effect.
func (p *Pointer) Release() {
	if atomic.CompareAndSwapInt32(&p.released, 0, 1) {
		p.file.sem.Release(1)
	}
}
