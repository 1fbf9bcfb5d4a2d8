// Copyright 2025 The go-lsnp Authors
// This file is part of the go-lsnp library.
//
// The go-lsnp library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-lsnp library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-lsnp library. If not, see <http://www.gnu.org/licenses/>.

package ack

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsnp/go-lsnp/common/mclock"
)

// advance runs the virtual clock through n sweeper wakeups. Waiting for the
// rearmed timer between steps guarantees the previous sweep has finished.
func advance(clock *mclock.Simulated, n int) {
	for i := 0; i < n; i++ {
		clock.WaitForTimers(1)
		clock.Run(SweepInterval)
	}
}

func sweepsFor(d time.Duration) int {
	return int(d / SweepInterval)
}

func TestAckStopsRetries(t *testing.T) {
	clock := new(mclock.Simulated)
	m := NewManager(Config{Clock: clock})
	defer m.Stop()

	var resends atomic.Int32
	m.Track("m1", ResendFunc(func() { resends.Add(1) }))

	// One full timeout elapses: exactly one retry fires.
	advance(clock, sweepsFor(Timeout))
	clock.WaitForTimers(1)
	assert.Equal(t, int32(1), resends.Load())

	require.True(t, m.Acked("m1"))
	assert.Zero(t, m.PendingCount())

	// The record is gone, further time triggers nothing.
	advance(clock, sweepsFor(2*Timeout))
	clock.WaitForTimers(1)
	assert.Equal(t, int32(1), resends.Load())

	// A second ACK for the same ID is a no-op.
	assert.False(t, m.Acked("m1"))
}

func TestRetryExhaustion(t *testing.T) {
	clock := new(mclock.Simulated)
	failed := make(chan string, 1)
	m := NewManager(Config{Clock: clock, OnFailure: func(mid string) { failed <- mid }})
	defer m.Stop()

	var resends atomic.Int32
	m.Track("m2", ResendFunc(func() { resends.Add(1) }))

	// Three retries at 2s intervals, then the record is dropped at 8s.
	advance(clock, sweepsFor(4*Timeout))

	select {
	case mid := <-failed:
		assert.Equal(t, "m2", mid)
	case <-time.After(2 * time.Second):
		t.Fatal("retry exhaustion not signalled")
	}
	assert.Equal(t, int32(MaxRetries), resends.Load())
	assert.Zero(t, m.PendingCount())
}

func TestAckUnknownID(t *testing.T) {
	clock := new(mclock.Simulated)
	m := NewManager(Config{Clock: clock})
	defer m.Stop()

	assert.False(t, m.Acked("never-sent"))
}
