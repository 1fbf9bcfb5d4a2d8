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

// Package lsnp implements the protocol engine of a Local Social Networking
// Protocol peer. A Peer owns the transport, the reliability layer and all
// protocol state, and surfaces everything user-visible as events on its mux.
package lsnp

import (
	"fmt"
	mrand "math/rand"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/lsnp/go-lsnp/common/mclock"
	"github.com/lsnp/go-lsnp/event"
	"github.com/lsnp/go-lsnp/log"
	"github.com/lsnp/go-lsnp/lsnp/ack"
	"github.com/lsnp/go-lsnp/lsnp/filetransfer"
	"github.com/lsnp/go-lsnp/lsnp/game"
	"github.com/lsnp/go-lsnp/lsnp/peers"
	"github.com/lsnp/go-lsnp/lsnp/social"
	"github.com/lsnp/go-lsnp/lsnp/token"
	"github.com/lsnp/go-lsnp/lsnp/transport"
	"github.com/lsnp/go-lsnp/lsnp/wire"
)

// DiscoveryInterval is the period between presence announcements.
const DiscoveryInterval = 300 * time.Second

// profileStatus is advertised in every PROFILE frame.
const profileStatus = "Exploring LSNP!"

// seenCacheSize bounds the duplicate-suppression cache. Retried frames reuse
// their MESSAGE_ID, so a recent-ID cache absorbs them.
const seenCacheSize = 1024

// conn is the slice of the transport the peer engine uses. The concrete
// transport satisfies it; tests substitute a recorder.
type conn interface {
	Unicast(ip string, port int, payload []byte, class transport.DropClass) error
	Broadcast(bcastIP string, payload []byte) error
	Multicast(payload []byte) error
	Loop(transport.Handler)
	ListenPort() int
	Close()
}

// Config holds peer settings. The zero value runs a default peer on the
// well-known port.
type Config struct {
	// Port is the unicast listen port. Zero picks an ephemeral port.
	Port int

	// DiscoveryPort is the shared presence port. Defaults to the
	// well-known LSNP port.
	DiscoveryPort int

	// DisplayName is the human name part of the user identifier. Empty
	// picks a random Peer_NNNN name.
	DisplayName string

	// LocalIP overrides interface detection, mainly for tests and
	// multi-homed hosts.
	LocalIP string

	// TokenTTL is the validity window stamped into issued tokens.
	TokenTTL time.Duration

	// LossProb simulates loss of file and game sends, 0..1.
	LossProb float64

	// Loopback forces single-machine mode: the identity uses 127.0.0.1
	// and origin checks tolerate loopback mismatches.
	Loopback bool

	// InboxDir is where received files are stored.
	InboxDir string

	DiscoveryInterval time.Duration

	Clock mclock.Clock
	Log   log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.Port == 0 {
		cfg.Port = transport.DefaultPort
	}
	if cfg.DiscoveryPort == 0 {
		cfg.DiscoveryPort = transport.DiscoveryPort
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = fmt.Sprintf("Peer_%04d", 1000+mrand.Intn(9000))
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.DiscoveryInterval == 0 {
		cfg.DiscoveryInterval = DiscoveryInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

// Peer is one running LSNP node.
type Peer struct {
	cfg   Config
	clock mclock.Clock
	log   log.Logger

	userID      string
	displayName string
	localIP     string
	broadcastIP string
	loopback    bool

	tx     conn
	dir    *peers.Directory
	tokens *token.Service
	acks   *ack.Manager
	files  *filetransfer.Manager
	games  *game.Engine
	social *social.State
	groups *social.Groups
	mux    *event.TypeMux
	seen   *lru.Cache

	quit chan struct{}
}

// NewPeer opens the transport and assembles a peer. Call Start to begin
// receiving and announcing.
func NewPeer(cfg Config) (*Peer, error) {
	cfg = cfg.withDefaults()
	tx, err := transport.Listen(transport.Config{
		UnicastPort:   cfg.Port,
		DiscoveryPort: cfg.DiscoveryPort,
		LossProb:      cfg.LossProb,
		Log:           cfg.Log,
	})
	if err != nil {
		return nil, err
	}
	return newPeer(cfg, tx), nil
}

func newPeer(cfg Config, tx conn) *Peer {
	cfg = cfg.withDefaults()

	localIP := cfg.LocalIP
	if localIP == "" {
		localIP = transport.LocalIPv4()
	}
	loopback := cfg.Loopback || strings.HasPrefix(localIP, "127.")
	if loopback {
		localIP = "127.0.0.1"
	}

	p := &Peer{
		cfg:         cfg,
		clock:       cfg.Clock,
		log:         cfg.Log,
		userID:      wire.MakeUserID(cfg.DisplayName, localIP),
		displayName: cfg.DisplayName,
		localIP:     localIP,
		broadcastIP: transport.ComputeBroadcast(localIP),
		loopback:    loopback,
		tx:          tx,
		dir:         peers.NewDirectory(),
		mux:         event.NewTypeMux(),
		social:      social.NewState(),
		groups:      social.NewGroups(),
		quit:        make(chan struct{}),
	}
	p.seen, _ = lru.New(seenCacheSize)
	p.tokens = token.NewService(cfg.Clock)
	p.acks = ack.NewManager(ack.Config{Clock: cfg.Clock, Log: cfg.Log})
	p.files = filetransfer.NewManager(filetransfer.Config{
		UserID:    p.userID,
		TokenTTL:  cfg.TokenTTL,
		InboxDir:  cfg.InboxDir,
		Transport: tx,
		Peers:     p.dir,
		Acks:      p.acks,
		Tokens:    p.tokens,
		Mux:       p.mux,
		Clock:     cfg.Clock,
		Log:       cfg.Log,
	})
	p.games = game.NewEngine(game.Config{
		UserID:    p.userID,
		TokenTTL:  cfg.TokenTTL,
		Transport: tx,
		Peers:     p.dir,
		Acks:      p.acks,
		Tokens:    p.tokens,
		Mux:       p.mux,
		Clock:     cfg.Clock,
		Log:       cfg.Log,
	})
	return p
}

// Start begins packet reception and periodic presence announcements.
func (p *Peer) Start() {
	p.tx.Loop(p.onPacket)
	go p.discoveryLoop()
	p.log.Info("LSNP peer up", "user", p.userID, "port", p.tx.ListenPort(), "loopback", p.loopback)
}

// Stop tears the peer down. It is safe to call once.
func (p *Peer) Stop() {
	close(p.quit)
	p.acks.Stop()
	p.tx.Close()
	p.mux.Stop()
}

// UserID returns the local identity, name@ip.
func (p *Peer) UserID() string { return p.userID }

// DisplayName returns the local display name.
func (p *Peer) DisplayName() string { return p.displayName }

// ListenPort returns the bound unicast port.
func (p *Peer) ListenPort() int { return p.tx.ListenPort() }

// Peers lists the discovered peer directory.
func (p *Peer) Peers() []peers.Peer { return p.dir.List() }

// Board exposes a game board for rendering.
func (p *Peer) Board(gameID string) (string, bool) { return p.games.Board(gameID) }

// Subscribe registers for display events. See events.go and the game and
// filetransfer packages for the posted types.
func (p *Peer) Subscribe(types ...interface{}) event.Subscription {
	return p.mux.Subscribe(types...)
}

// SetVerbose toggles wire-level tracing.
func (p *Peer) SetVerbose(on bool) {
	if on {
		log.SetVerbosity(log.LvlTrace)
	} else {
		log.SetVerbosity(log.LvlInfo)
	}
}

// discoveryLoop announces presence on start and every interval after.
func (p *Peer) discoveryLoop() {
	for {
		p.announce()
		select {
		case <-p.clock.After(p.cfg.DiscoveryInterval):
		case <-p.quit:
			return
		}
	}
}

// announce emits PING and PROFILE on both broadcast and multicast, so peers
// are found whichever flavor the segment lets through.
func (p *Peer) announce() {
	ping := wire.New(wire.TypePing)
	ping.Set(wire.FieldUserID, p.userID)
	prof := p.profileFrame()

	for _, raw := range [][]byte{ping.Encode(), prof} {
		if err := p.tx.Broadcast(p.broadcastIP, raw); err != nil {
			p.log.Debug("Broadcast failed", "err", err)
		}
		if err := p.tx.Multicast(raw); err != nil {
			p.log.Debug("Multicast failed", "err", err)
		}
	}
}

// profileFrame builds the local PROFILE, advertising the unicast port.
func (p *Peer) profileFrame() []byte {
	prof := wire.New(wire.TypeProfile)
	prof.Set(wire.FieldUserID, p.userID)
	prof.Set(wire.FieldDisplayName, p.displayName)
	prof.Set(wire.FieldStatus, profileStatus)
	prof.Set(wire.FieldPort, fmt.Sprintf("%d", p.tx.ListenPort()))
	return prof.Encode()
}

// newToken issues a bearer token for the given scope using the configured
// TTL.
func (p *Peer) newToken(scope string) string {
	return token.Make(p.userID, p.clock.Unix()+int64(p.cfg.TokenTTL/time.Second), scope)
}
