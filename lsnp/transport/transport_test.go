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

package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand drives the loss simulator deterministically.
type fixedRand struct{ v float64 }

func (r fixedRand) Float64() float64 { return r.v }

func newTestTransport(t *testing.T, loss float64) *Transport {
	t.Helper()
	tr, err := Listen(Config{UnicastPort: 0, DiscoveryPort: 0, LossProb: loss})
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return tr
}

func TestUnicastRoundTrip(t *testing.T) {
	a := newTestTransport(t, 0)
	b := newTestTransport(t, 0)

	got := make(chan string, 1)
	b.Loop(func(payload string, src *net.UDPAddr) {
		got <- payload
	})

	require.NoError(t, a.Unicast("127.0.0.1", b.ListenPort(), []byte("TYPE: PING\n\n"), DropNone))

	select {
	case payload := <-got:
		assert.Equal(t, "TYPE: PING\n\n", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not delivered")
	}
}

func TestSharedSocketWhenPortsCoincide(t *testing.T) {
	tr := newTestTransport(t, 0)
	assert.Same(t, tr.uniConn, tr.discConn)
	assert.NotZero(t, tr.ListenPort())
}

func TestLossSimulatorDropClasses(t *testing.T) {
	tr := newTestTransport(t, 1.0)
	tr.rng = fixedRand{v: 0.0} // always under LossProb

	sink := newTestTransport(t, 0)
	got := make(chan string, 4)
	sink.Loop(func(payload string, src *net.UDPAddr) { got <- payload })

	// file and game class sends are eaten by the simulator.
	require.NoError(t, tr.Unicast("127.0.0.1", sink.ListenPort(), []byte("dropped"), DropFile))
	require.NoError(t, tr.Unicast("127.0.0.1", sink.ListenPort(), []byte("dropped"), DropGame))
	// untagged traffic is never dropped.
	require.NoError(t, tr.Unicast("127.0.0.1", sink.ListenPort(), []byte("kept"), DropNone))

	select {
	case payload := <-got:
		assert.Equal(t, "kept", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("untagged datagram not delivered")
	}
	select {
	case payload := <-got:
		t.Fatalf("unexpected extra datagram %q", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLossProbClamped(t *testing.T) {
	cfg := Config{LossProb: 1.7}.withDefaults()
	assert.Equal(t, 1.0, cfg.LossProb)
	cfg = Config{LossProb: -0.3}.withDefaults()
	assert.Equal(t, 0.0, cfg.LossProb)
}

func TestComputeBroadcast(t *testing.T) {
	tests := []struct {
		ip   string
		want string
	}{
		{"192.168.1.7", "192.168.1.255"},
		{"10.0.0.1", "10.0.0.255"},
		{"127.0.0.1", "127.0.0.255"},
		{"not-an-ip", "255.255.255.255"},
		{"", "255.255.255.255"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ComputeBroadcast(tt.ip), tt.ip)
	}
}

func TestUnicastBadAddress(t *testing.T) {
	tr := newTestTransport(t, 0)
	assert.Error(t, tr.Unicast("definitely not an ip", 1234, []byte("x"), DropNone))
}
