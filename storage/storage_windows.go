// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build windows

package storage

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func mmapFile(f *os.File, length int) ([]byte, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE, 0, uint32(length), nil)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(length))
	if err != nil {
		return nil, err
	}

	var data []byte
	sh := (*sliceHeader)(unsafe.Pointer(&data))
	sh.Data = addr
	sh.Len = length
	sh.Cap = length
	return data, nil
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

func munmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := (*sliceHeader)(unsafe.Pointer(&data)).Data
	return windows.UnmapViewOfFile(addr)
}

func msyncFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := (*sliceHeader)(unsafe.Pointer(&data)).Data
	return windows.FlushViewOfFile(addr, uintptr(len(data)))
}

func remapFile(f *os.File, oldData []byte, length int) ([]byte, error) {
	if err := munmapFile(oldData); err != nil {
		return nil, err
	}
	return mmapFile(f, length)
}
