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

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent int

type otherEvent string

func TestSubDeliversPostedEvent(t *testing.T) {
	mux := NewTypeMux()
	defer mux.Stop()
	sub := mux.Subscribe(testEvent(0))

	go func() {
		require.NoError(t, mux.Post(testEvent(5)))
	}()
	ev := <-sub.Chan()
	assert.Equal(t, testEvent(5), ev)
}

// A subscription registered for several types is listed once per type; Stop
// must still tear it down exactly once.
func TestMuxStopMultiTypeSubscription(t *testing.T) {
	mux := NewTypeMux()
	sub := mux.Subscribe(testEvent(0), otherEvent(""))
	mux.Stop()

	_, open := <-sub.Chan()
	assert.False(t, open)

	// Unsubscribing after the mux stopped must also be a no-op.
	sub.Unsubscribe()
}

func TestMuxDoubleUnsubscribe(t *testing.T) {
	mux := NewTypeMux()
	defer mux.Stop()
	sub := mux.Subscribe(testEvent(0), otherEvent(""))
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, open := <-sub.Chan()
	assert.False(t, open)
}

func TestSubscribeAfterStop(t *testing.T) {
	mux := NewTypeMux()
	mux.Stop()

	sub := mux.Subscribe(testEvent(0))
	_, open := <-sub.Chan()
	assert.False(t, open)
	sub.Unsubscribe()

	assert.Equal(t, ErrMuxClosed, mux.Post(testEvent(1)))
}
