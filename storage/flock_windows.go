// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build windows

package storage

import (
	"os"

	"golang.org/x/sys/windows"

	chainerrors "github.com/bpowers/chainstore/errors"
)

// Flock is an advisory OS file lock backing the store's exclusive and
// flush locks (spec.md §4.5), implemented with LockFileEx on Windows.
type Flock struct {
	f    *os.File
	path string
}

func OpenFlock(path string) (*Flock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, chainerrors.New("storage.OpenFlock", chainerrors.IO, err)
	}
	return &Flock{f: f, path: path}, nil
}

func (l *Flock) lockEx(flags uint32) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(l.f.Fd()), flags, 0, 1, 0, ol)
	if err != nil {
		return err
	}
	return nil
}

func (l *Flock) Lock() error {
	if err := l.lockEx(windows.LOCKFILE_EXCLUSIVE_LOCK); err != nil {
		return chainerrors.New("storage.Flock.Lock", chainerrors.IO, err)
	}
	return nil
}

func (l *Flock) TryLock() error {
	err := l.lockEx(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return chainerrors.New("storage.Flock.TryLock", chainerrors.LockHeld, err)
		}
		return chainerrors.New("storage.Flock.TryLock", chainerrors.IO, err)
	}
	return nil
}

func (l *Flock) LockShared() error {
	if err := l.lockEx(0); err != nil {
		return chainerrors.New("storage.Flock.LockShared", chainerrors.IO, err)
	}
	return nil
}

func (l *Flock) Unlock() error {
	ol := new(windows.Overlapped)
	if err := windows.UnlockFileEx(windows.Handle(l.f.Fd()), 0, 1, 0, ol); err != nil {
		return chainerrors.New("storage.Flock.Unlock", chainerrors.IO, err)
	}
	return nil
}

func (l *Flock) Close() error {
	_ = l.Unlock()
	return l.f.Close()
}
