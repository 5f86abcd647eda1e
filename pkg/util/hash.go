// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package util

// Magic FNV Base constant as suitable for a FNV-64 hash.
const fnvBase = uint64(14695981039346656037)
const fnvPrime = 1099511628211

// FNV64Init returns the initial state of an FNV-64 hash.
func FNV64Init() uint64 {
	return fnvBase
}

// FNV64AddUint64 folds a 64-bit value into an FNV-64 hash, one byte at a time
// starting with the least significant byte.
func FNV64AddUint64(s0 uint64, v uint64) uint64 {
	for i := 0; i < 8; i++ {
		s0 *= fnvPrime
		s0 ^= v & 0xff
		v >>= 8
	}
	return s0
}
