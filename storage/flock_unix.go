// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !windows

package storage

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	chainerrors "github.com/bpowers/chainstore/errors"
)

// Flock is an advisory OS file lock backing the store's exclusive and
// flush locks (spec.md §4.5). It is grounded on
// viant-embedius/vectordb/mem/lock_unix.go's LOCK_EX|LOCK_NB /
// EWOULDBLOCK pattern, extended with a shared mode for the flush lock's
// "held shared for the session" case.
type Flock struct {
	f    *os.File
	path string
}

// OpenFlock opens (creating if necessary) the lock file at path.
func OpenFlock(path string) (*Flock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, chainerrors.New("storage.OpenFlock", chainerrors.IO, err)
	}
	return &Flock{f: f, path: path}, nil
}

// Lock blocks until it acquires an exclusive lock.
func (l *Flock) Lock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX); err != nil {
		return chainerrors.New("storage.Flock.Lock", chainerrors.IO, err)
	}
	return nil
}

// TryLock attempts to acquire an exclusive lock without blocking. It
// returns a LockHeld error if another process already holds it.
func (l *Flock) TryLock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return chainerrors.New("storage.Flock.TryLock", chainerrors.LockHeld, err)
		}
		return chainerrors.New("storage.Flock.TryLock", chainerrors.IO, err)
	}
	return nil
}

// LockShared blocks until it acquires a shared lock.
func (l *Flock) LockShared() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_SH); err != nil {
		return chainerrors.New("storage.Flock.LockShared", chainerrors.IO, err)
	}
	return nil
}

// Unlock releases whichever lock (shared or exclusive) this handle holds.
func (l *Flock) Unlock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return chainerrors.New("storage.Flock.Unlock", chainerrors.IO, err)
	}
	return nil
}

// Close releases any held lock and closes the underlying file.
func (l *Flock) Close() error {
	_ = l.Unlock()
	return l.f.Close()
}
