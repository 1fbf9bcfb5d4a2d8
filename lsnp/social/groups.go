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

package social

import (
	"sort"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// group is one named member set.
type group struct {
	name    string
	members mapset.Set[string]
}

// Groups holds group membership as last-writer-wins state driven by
// GROUP_CREATE and GROUP_UPDATE frames.
type Groups struct {
	mu     sync.Mutex
	groups map[string]*group
}

// NewGroups creates empty group state.
func NewGroups() *Groups {
	return &Groups{groups: make(map[string]*group)}
}

// Create replaces the group's name and member list.
func (g *Groups) Create(gid, name string, members []string) {
	if name == "" {
		name = gid
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[gid] = &group{name: name, members: mapset.NewSet(members...)}
}

// Update applies add/remove deltas. An update for an unknown group creates
// it, named after its ID, matching how updates can outrun creates on a lossy
// network.
func (g *Groups) Update(gid string, add, remove []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gr, ok := g.groups[gid]
	if !ok {
		gr = &group{name: gid, members: mapset.NewSet[string]()}
		g.groups[gid] = gr
	}
	for _, m := range add {
		gr.members.Add(m)
	}
	for _, m := range remove {
		gr.members.Remove(m)
	}
}

// Members returns the member list of a group, sorted. Unknown groups yield
// nil.
func (g *Groups) Members(gid string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	gr, ok := g.groups[gid]
	if !ok {
		return nil
	}
	out := gr.members.ToSlice()
	sort.Strings(out)
	return out
}

// IsMember reports whether uid belongs to the group.
func (g *Groups) IsMember(gid, uid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	gr, ok := g.groups[gid]
	return ok && gr.members.Contains(uid)
}

// Name returns the group's display name, or the ID itself when unknown.
func (g *Groups) Name(gid string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gr, ok := g.groups[gid]; ok {
		return gr.name
	}
	return gid
}

// SplitMembers parses a comma-separated member list, dropping empty entries.
func SplitMembers(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
