// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package syncutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssertHeld(t *testing.T) {
	var m Mutex
	m.Lock()
	m.AssertHeld()
	m.Unlock()

	var rw RWMutex
	rw.Lock()
	rw.AssertHeld()
	rw.AssertRHeld()
	rw.Unlock()
	rw.RLock()
	rw.AssertRHeld()
	rw.RUnlock()
}

func TestRWMutexReaders(t *testing.T) {
	var rw RWMutex
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rw.Lock()
			defer rw.Unlock()
			counter++
		}()
	}
	wg.Wait()
	rw.RLock()
	defer rw.RUnlock()
	require.Equal(t, 8, counter)
}
