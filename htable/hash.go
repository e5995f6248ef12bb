// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package htable

import (
	"github.com/dgryski/go-farm"
)

// BucketOf resolves spec.md §9's open question about hashing keys
// shorter than the index width: the key's first min(len(key), 8) bytes
// are loaded little-endian into a zero-extended uint64 (a short key is
// treated the same as one right-padded with zero bytes), then reduced
// with FarmHash the same way the teacher's indexfile/mph.go picks a
// bucket for a key (farm.Hash64WithSeed(key, 0) & mask), except we take
// a true modulus since bucketCount need not be a power of two.
func BucketOf(key []byte, bucketCount uint32) uint32 {
	var rep [8]byte
	n := len(key)
	if n > 8 {
		n = 8
	}
	copy(rep[:n], key[:n])
	h := farm.Hash64(rep[:])
	return uint32(h % uint64(bucketCount))
}
