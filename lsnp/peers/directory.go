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

// Package peers maintains the directory of peers discovered through PROFILE
// frames. Records live for the process lifetime and are never evicted.
package peers

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lsnp/go-lsnp/lsnp/wire"
)

// Peer is one directory record, mutated only by PROFILE ingestion.
type Peer struct {
	UserID      string
	Address     string
	Port        int
	DisplayName string
	Status      string
	AvatarType  string
	AvatarData  string
}

// Directory maps user identifiers to endpoints and profile data.
type Directory struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

// NewDirectory creates an empty peer directory.
func NewDirectory() *Directory {
	return &Directory{peers: make(map[string]Peer)}
}

// UpsertFromProfile records or refreshes a peer from a PROFILE frame. The
// port preference is: the advertised PORT field, then the previously known
// port, then the observed source port.
func (d *Directory) UpsertFromProfile(msg *wire.Message, srcIP string, srcPort int) {
	uid := msg.Get(wire.FieldUserID)
	if uid == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	advertised, _ := strconv.Atoi(msg.Get(wire.FieldPort))
	port := advertised
	if port <= 0 {
		if prev, ok := d.peers[uid]; ok && prev.Port > 0 {
			port = prev.Port
		} else {
			port = srcPort
		}
	}

	display := msg.Get(wire.FieldDisplayName)
	if display == "" {
		display = uid
	}
	d.peers[uid] = Peer{
		UserID:      uid,
		Address:     srcIP,
		Port:        port,
		DisplayName: display,
		Status:      msg.Get(wire.FieldStatus),
		AvatarType:  msg.Get(wire.FieldAvatarType),
		AvatarData:  msg.Get(wire.FieldAvatarData),
	}
}

// Get returns the record for a user.
func (d *Directory) Get(uid string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[uid]
	return p, ok
}

// Endpoint returns the known (ip, port) for a user. For undiscovered peers
// the IP embedded in the user identifier is returned with port 0, letting
// callers decide whether a pre-discovery send makes sense.
func (d *Directory) Endpoint(uid string) (string, int) {
	d.mu.RLock()
	p, ok := d.peers[uid]
	d.mu.RUnlock()
	if ok && p.Port > 0 {
		return p.Address, p.Port
	}
	return wire.IPFromUserID(uid), 0
}

// DisplayName returns the peer's display name, or the identifier itself for
// unknown peers.
func (d *Directory) DisplayName(uid string) string {
	if p, ok := d.Get(uid); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return uid
}

// List returns all records ordered by display name.
func (d *Directory) List() []Peer {
	d.mu.RLock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out
}

// Len returns the number of known peers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}
