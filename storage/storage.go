// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package storage provides a growable, memory-mapped byte region backed
// by an OS file. It hands out reference-counted Pointers into the
// current mapping and serializes remap-on-grow against outstanding
// Pointers using a weighted semaphore, generalizing the read-only
// mmap.ReaderAt the rest of this module's teacher used into a
// read-write, growable region.
package storage

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bpowers/chainstore/errors"
)

const (
	// sentinelByte is written by Create so a freshly created file is
	// never zero-length, which some platforms treat as invalid for
	// mmap.
	sentinelByte = 'x'

	// defaultMaxReaders bounds how many concurrent Access() handles a
	// File will hand out before Reserve has to fully drain them. It is
	// a semaphore capacity, not a hard cap on goroutines using the
	// table -- callers that would exceed it simply block in Access.
	defaultMaxReaders = 1 << 16
)

// Options configures a File.
type Options struct {
	// GrowthFactor multiplies capacity when Reserve must grow the
	// mapping. Must be > 1.
	GrowthFactor float64

	// MaxReaders bounds the weighted semaphore used to exclude Reserve
	// from outstanding Access handles. Zero uses defaultMaxReaders.
	MaxReaders int64
}

func (o Options) withDefaults() Options {
	if o.GrowthFactor <= 1 {
		o.GrowthFactor = 1.5
	}
	if o.MaxReaders <= 0 {
		o.MaxReaders = defaultMaxReaders
	}
	return o
}

// File is a growable memory-mapped region backed by an OS file.
type File struct {
	path string
	f    *os.File

	opts Options
	sem  *semaphore.Weighted

	// resMu serializes Reserve calls against each other. It must never
	// be held while waiting on sem, other than by the single in-flight
	// Reserve, since Access/Pointer.Bytes never take it.
	resMu sync.Mutex

	// dataMu guards reads/writes of data/capacity/used. It is only ever
	// held for the duration of a slice/field read or a post-drain swap,
	// never across a semaphore wait, so it cannot deadlock against a
	// live Pointer trying to dereference itself while Reserve drains
	// outstanding Access handles.
	dataMu   sync.RWMutex
	data     []byte
	capacity uint64
	used     uint64
}

// Create makes a new, empty content file at path: a single sentinel
// byte so the file is never zero-length. It refuses if path already
// exists.
func Create(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.New("storage.Create", errors.AlreadyExists, nil)
	} else if !os.IsNotExist(err) {
		return errors.New("storage.Create", errors.IO, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.New("storage.Create", errors.AlreadyExists, err)
		}
		return errors.New("storage.Create", errors.IO, err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{sentinelByte}); err != nil {
		return errors.New("storage.Create", errors.IO, err)
	}
	return f.Sync()
}

// Open memory-maps the file at path, growing the mapping to at least
// the OS page size. The file must already exist and be nonempty.
func Open(path string, opts Options) (*File, error) {
	opts = opts.withDefaults()

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("storage.Open", errors.FileNotFound, err)
		}
		return nil, errors.New("storage.Open", errors.IO, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.New("storage.Open", errors.IO, err)
	}
	if fi.Size() == 0 {
		f.Close()
		return nil, errors.New("storage.Open", errors.CorruptHeader, nil)
	}

	capacity := pageAlign(uint64(fi.Size()))
	if uint64(fi.Size()) < capacity {
		if err := f.Truncate(int64(capacity)); err != nil {
			f.Close()
			return nil, errors.New("storage.Open", errors.IO, err)
		}
	}

	data, err := mmapFile(f, int(capacity))
	if err != nil {
		f.Close()
		return nil, errors.New("storage.Open", errors.IO, err)
	}

	sf := &File{
		path:     path,
		f:        f,
		opts:     opts,
		sem:      semaphore.NewWeighted(opts.MaxReaders),
		data:     data,
		capacity: capacity,
		used:     uint64(fi.Size()),
	}
	return sf, nil
}

func pageAlign(n uint64) uint64 {
	pageSize := uint64(os.Getpagesize())
	if n == 0 {
		return pageSize
	}
	rem := n % pageSize
	if rem == 0 {
		return n
	}
	return n + (pageSize - rem)
}

// Close flushes dirty pages, unmaps the region, and truncates the
// backing file to the logical used size reported by Size.
func (s *File) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if err := munmapFile(s.data); err != nil {
		return errors.New("storage.Close", errors.IO, err)
	}
	if err := s.f.Truncate(int64(s.used)); err != nil {
		return errors.New("storage.Close", errors.IO, err)
	}
	return s.f.Close()
}

// Flush synchronously writes dirty mapped pages to disk.
func (s *File) Flush() error {
	if err := msyncFile(s.data); err != nil {
		return errors.New("storage.Flush", errors.IO, err)
	}
	return nil
}

// Capacity returns the current size of the mapping in bytes.
func (s *File) Capacity() uint64 {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.capacity
}

// Size returns the logical used size in bytes: the file's size at Open
// or the largest value since passed to SetUsed, whichever is larger.
func (s *File) Size() uint64 {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.used
}

// SetUsed records the logical used size, persisted to disk at Close. A
// value smaller than the current used size is ignored. Managers call
// this after every watermark Sync so Close truncates to the committed
// watermark rather than to the mapping capacity.
func (s *File) SetUsed(used uint64) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if used > s.used {
		s.used = used
	}
}

// Access returns a scoped Pointer into the mapping at offset. The
// caller must call Pointer.Release when done; while any Pointer is
// live, Reserve blocks rather than remapping underneath it.
func (s *File) Access(offset uint64) (*Pointer, error) {
	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		return nil, errors.New("storage.Access", errors.IO, err)
	}
	if offset > s.Capacity() {
		s.sem.Release(1)
		return nil, errors.New("storage.Access", errors.InvalidLink, nil)
	}
	return &Pointer{file: s, offset: offset}, nil
}

// ReadAt copies len(buf) bytes starting at offset into buf.
func (s *File) ReadAt(offset uint64, buf []byte) error {
	p, err := s.Access(offset)
	if err != nil {
		return err
	}
	defer p.Release()
	src, err := p.Bytes(uint64(len(buf)))
	if err != nil {
		return err
	}
	copy(buf, src)
	return nil
}

// WriteAt copies buf into the mapping starting at offset.
func (s *File) WriteAt(offset uint64, buf []byte) error {
	p, err := s.Access(offset)
	if err != nil {
		return err
	}
	defer p.Release()
	dst, err := p.Bytes(uint64(len(buf)))
	if err != nil {
		return err
	}
	copy(dst, buf)
	return nil
}

// Reserve grows the mapping so that Capacity() >= required, blocking
// until all outstanding Pointers are released before remapping. It is
// a no-op if the mapping is already large enough.
func (s *File) Reserve(required uint64) error {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	capacity := s.Capacity()
	if required <= capacity {
		return nil
	}

	newCapacity := uint64(float64(capacity) * s.opts.GrowthFactor)
	if newCapacity < required {
		newCapacity = required
	}
	newCapacity = pageAlign(newCapacity)

	// Drain every outstanding Access handle before remapping. resMu is
	// not held by Access or Pointer.Bytes, so this cannot deadlock
	// against a live Pointer.
	if err := s.sem.Acquire(context.Background(), s.opts.MaxReaders); err != nil {
		return errors.New("storage.Reserve", errors.IO, err)
	}
	defer s.sem.Release(s.opts.MaxReaders)

	if err := s.f.Truncate(int64(newCapacity)); err != nil {
		return errors.New("storage.Reserve", errors.IO, err)
	}

	s.dataMu.Lock()
	newData, err := remapFile(s.f, s.data, int(newCapacity))
	if err != nil {
		s.dataMu.Unlock()
		// No partial-growth state observable: remap failed, but the
		// old mapping is still valid, so leave capacity where it was.
		return errors.New("storage.Reserve", errors.IO, err)
	}
	s.data = newData
	s.capacity = newCapacity
	s.dataMu.Unlock()
	return nil
}

// Path returns the backing file's path.
func (s *File) Path() string {
	return s.path
}
