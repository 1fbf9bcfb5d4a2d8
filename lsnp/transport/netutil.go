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
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
)

// listenReusable binds a UDP4 socket on the given port with reuse options set
// before bind.
func listenReusable(port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// LocalIPv4 returns the IPv4 address of the default outbound interface. The
// connect never sends a packet; it only makes the kernel pick a route.
// Falls back to 127.0.0.1 on hosts without a usable route.
func LocalIPv4() string {
	conn, err := net.Dial("udp4", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// ComputeBroadcast derives a naive /24 broadcast address from a local IPv4,
// falling back to the global broadcast address.
func ComputeBroadcast(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return strings.Join(append(parts[:3], "255"), ".")
	}
	return "255.255.255.255"
}

// lossSource yields the uniform variates consumed by the loss simulator.
type lossSource interface {
	Float64() float64
}

// lossRand is a crypto-seeded PRNG guarded by a mutex; sends happen on
// several goroutines.
type lossRand struct {
	mu  sync.Mutex
	cur *rand.Rand
}

func newLossRand() *lossRand {
	var b [8]byte
	crand.Read(b[:])
	seed := binary.BigEndian.Uint64(b[:])
	return &lossRand{cur: rand.New(rand.NewSource(int64(seed)))}
}

func (r *lossRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur.Float64()
}
