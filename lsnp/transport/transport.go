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

// Package transport implements LSNP datagram I/O: a unicast socket bound to a
// process-unique port and a discovery socket bound to the well-known
// discovery port with multicast group membership. When the two ports
// coincide a single socket serves both roles.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/lsnp/go-lsnp/log"
)

// Protocol-wide transport defaults.
const (
	DefaultPort    = 50999
	DiscoveryPort  = 50999
	MulticastGroup = "224.0.0.251"

	// bufferSize must fit a full base64 file chunk frame.
	bufferSize = 65535
)

// DropClass tags a send for the loss simulator. Only file and game traffic is
// eligible for simulated loss.
type DropClass string

// Drop classes.
const (
	DropNone DropClass = ""
	DropFile DropClass = "file"
	DropGame DropClass = "game"
)

// Handler receives one decoded datagram per call. Handlers run on the
// receiver goroutines and must not block on network round-trips.
type Handler func(payload string, src *net.UDPAddr)

// Config holds settings for the transport.
type Config struct {
	// UnicastPort is the port the unicast socket binds. Zero selects an
	// ephemeral port.
	UnicastPort int

	// DiscoveryPort is the fixed well-known port for broadcast/multicast
	// presence traffic. When it equals UnicastPort one socket is shared.
	DiscoveryPort int

	// MulticastGroup is the IPv4 discovery group address.
	MulticastGroup string

	// LossProb is the probability in [0,1] that a file or game class send
	// is dropped before hitting the wire, simulating a lossy link.
	LossProb float64

	Log log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MulticastGroup == "" {
		cfg.MulticastGroup = MulticastGroup
	}
	if cfg.LossProb < 0 {
		cfg.LossProb = 0
	}
	if cfg.LossProb > 1 {
		cfg.LossProb = 1
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

// Transport owns the UDP sockets for the lifetime of the process.
type Transport struct {
	cfg   Config
	log   log.Logger
	group *net.UDPAddr

	uniConn  *net.UDPConn
	discConn *net.UDPConn // == uniConn when ports coincide
	pktConn  *ipv4.PacketConn

	rng lossSource

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// Listen opens the transport sockets. Both sockets set address reuse (and
// port reuse where available) so several peers can share one host. Multicast
// membership on the discovery socket is best-effort: a LAN without multicast
// still works over broadcast.
func Listen(cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()

	t := &Transport{
		cfg:  cfg,
		log:  cfg.Log,
		rng:  newLossRand(),
		quit: make(chan struct{}),
	}

	uni, err := listenReusable(cfg.UnicastPort)
	if err != nil {
		return nil, fmt.Errorf("bind unicast port %d: %w", cfg.UnicastPort, err)
	}
	t.uniConn = uni

	if t.ListenPort() == cfg.DiscoveryPort || cfg.UnicastPort == cfg.DiscoveryPort {
		t.discConn = uni
	} else {
		disc, err := listenReusable(cfg.DiscoveryPort)
		if err != nil {
			uni.Close()
			return nil, fmt.Errorf("bind discovery port %d: %w", cfg.DiscoveryPort, err)
		}
		t.discConn = disc
	}

	t.group = &net.UDPAddr{IP: net.ParseIP(cfg.MulticastGroup), Port: t.discoveryPort()}
	t.pktConn = ipv4.NewPacketConn(t.discConn)
	if err := t.pktConn.JoinGroup(nil, &net.UDPAddr{IP: t.group.IP}); err != nil {
		t.log.Warn("Multicast join failed", "group", cfg.MulticastGroup, "err", err)
	}
	// TTL 1 keeps presence on the local segment; loopback lets peers on
	// this host hear us.
	if err := t.pktConn.SetMulticastTTL(1); err != nil {
		t.log.Warn("Multicast TTL not set", "err", err)
	}
	if err := t.pktConn.SetMulticastLoopback(true); err != nil {
		t.log.Warn("Multicast loopback not set", "err", err)
	}

	t.log.Debug("UDP transport up", "unicast", t.ListenPort(), "discovery", t.discoveryPort())
	return t, nil
}

// ListenPort returns the bound unicast port, advertised in PROFILE frames.
func (t *Transport) ListenPort() int {
	return t.uniConn.LocalAddr().(*net.UDPAddr).Port
}

func (t *Transport) discoveryPort() int {
	if t.cfg.DiscoveryPort != 0 {
		return t.cfg.DiscoveryPort
	}
	return t.discConn.LocalAddr().(*net.UDPAddr).Port
}

// Unicast sends one frame to ip:port. Sends tagged file or game may be
// dropped locally by the loss simulator; the ACK layer covers the gap.
func (t *Transport) Unicast(ip string, port int, payload []byte, class DropClass) error {
	if t.shouldDrop(class) {
		dropMeter.Mark(1)
		t.log.Trace("Simulated drop", "to", fmt.Sprintf("%s:%d", ip, port), "class", string(class))
		return nil
	}
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
	if addr.IP == nil {
		return fmt.Errorf("bad peer address %q", ip)
	}
	n, err := t.uniConn.WriteToUDP(payload, addr)
	if err != nil {
		t.log.Trace("UDP send failed", "to", addr, "err", err)
		return err
	}
	egressTrafficMeter.Mark(int64(n))
	t.log.Trace("SEND >", "to", addr, "frame", string(payload))
	return nil
}

// Broadcast emits a frame to bcastIP on the discovery port.
func (t *Transport) Broadcast(bcastIP string, payload []byte) error {
	addr := &net.UDPAddr{IP: net.ParseIP(bcastIP), Port: t.discoveryPort()}
	if addr.IP == nil {
		return fmt.Errorf("bad broadcast address %q", bcastIP)
	}
	n, err := t.uniConn.WriteToUDP(payload, addr)
	if err != nil {
		t.log.Trace("UDP broadcast failed", "to", addr, "err", err)
		return err
	}
	egressTrafficMeter.Mark(int64(n))
	t.log.Trace("SEND >", "to", addr, "frame", string(payload))
	return nil
}

// Multicast emits a frame to the discovery group.
func (t *Transport) Multicast(payload []byte) error {
	n, err := t.pktConn.WriteTo(payload, nil, t.group)
	if err != nil {
		t.log.Trace("UDP multicast failed", "to", t.group, "err", err)
		return err
	}
	egressTrafficMeter.Mark(int64(n))
	t.log.Trace("SEND >", "to", t.group, "frame", string(payload))
	return nil
}

// Loop starts one receiver goroutine per socket, delivering every datagram to
// handler. It may be called once.
func (t *Transport) Loop(handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true

	t.wg.Add(1)
	go t.readLoop(t.uniConn, handler)
	if t.discConn != t.uniConn {
		t.wg.Add(1)
		go t.readLoop(t.discConn, handler)
	}
}

// readLoop runs in its own goroutine and injects ingress datagrams into the
// handler until the socket closes.
func (t *Transport) readLoop(conn *net.UDPConn, handler Handler) {
	defer t.wg.Done()
	buf := make([]byte, bufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTemporary(err) {
				t.log.Debug("Temporary read error", "err", err)
				continue
			}
			select {
			case <-t.quit:
			default:
				t.log.Debug("Read error", "err", err)
			}
			return
		}
		ingressTrafficMeter.Mark(int64(n))
		payload := string(buf[:n])
		t.log.Trace("RECV <", "from", from, "frame", payload)
		handler(payload, from)
	}
}

// Close shuts the sockets and waits for the receiver goroutines to exit.
func (t *Transport) Close() {
	t.mu.Lock()
	select {
	case <-t.quit:
		t.mu.Unlock()
		return
	default:
	}
	close(t.quit)
	t.mu.Unlock()

	t.uniConn.Close()
	if t.discConn != t.uniConn {
		t.discConn.Close()
	}
	t.wg.Wait()
}

func (t *Transport) shouldDrop(class DropClass) bool {
	if class != DropFile && class != DropGame {
		return false
	}
	return t.rng.Float64() < t.cfg.LossProb
}

func isTemporary(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
