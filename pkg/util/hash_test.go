// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFNV64(t *testing.T) {
	require.Equal(t, uint64(0xcbf29ce484222325), FNV64Init())

	a := FNV64AddUint64(FNV64AddUint64(FNV64Init(), 1), 2)
	b := FNV64AddUint64(FNV64AddUint64(FNV64Init(), 2), 1)
	require.NotEqual(t, a, b)
	require.Equal(t, a, FNV64AddUint64(FNV64AddUint64(FNV64Init(), 1), 2))

	// Every byte of the value contributes to the hash.
	require.NotEqual(t, FNV64AddUint64(FNV64Init(), 1), FNV64AddUint64(FNV64Init(), 1<<56+1))
}
