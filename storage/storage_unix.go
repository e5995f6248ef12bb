// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !windows

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapFile(f *os.File, length int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	// Hash-table cell access is effectively random; MADV_RANDOM disables
	// the kernel's readahead heuristics, exactly as the teacher's
	// datafile.NewReader does for its (read-only) mapping.
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return data, nil
}

func munmapFile(data []byte) error {
	return unix.Munmap(data)
}

func msyncFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Msync(data, unix.MS_SYNC)
}

// remapFile unmaps oldData and maps a fresh length-byte view of f. The
// caller must already have truncated f to at least length bytes and
// drained every outstanding Pointer.
func remapFile(f *os.File, oldData []byte, length int) ([]byte, error) {
	if err := unix.Munmap(oldData); err != nil {
		return nil, err
	}
	return mmapFile(f, length)
}
