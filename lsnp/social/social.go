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

// Package social tracks the local peer's social graph: who it follows, who
// follows it, and like state in both directions. All mutators are idempotent
// and report whether they changed anything, so duplicate datagrams collapse
// into no-ops.
package social

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// likeKey identifies a like the local user sent: recipient plus the post's
// timestamp, which is how LSNP names posts.
type likeKey struct {
	to     string
	postTS string
}

// State holds the follow and like relations.
type State struct {
	following mapset.Set[string]
	followers mapset.Set[string]
	sentLikes mapset.Set[likeKey]

	mu          sync.Mutex
	likesByPost map[string]mapset.Set[string]
}

// NewState creates empty social state.
func NewState() *State {
	return &State{
		following:   mapset.NewSet[string](),
		followers:   mapset.NewSet[string](),
		sentLikes:   mapset.NewSet[likeKey](),
		likesByPost: make(map[string]mapset.Set[string]),
	}
}

// Follow records that the local user follows uid. Returns false when already
// following.
func (s *State) Follow(uid string) bool {
	return s.following.Add(uid)
}

// Unfollow removes uid from the following set. Returns false when not
// following.
func (s *State) Unfollow(uid string) bool {
	if !s.following.Contains(uid) {
		return false
	}
	s.following.Remove(uid)
	return true
}

// Following reports whether the local user follows uid.
func (s *State) Following(uid string) bool {
	return s.following.Contains(uid)
}

// AddFollower records an incoming FOLLOW. Duplicates return false.
func (s *State) AddFollower(uid string) bool {
	return s.followers.Add(uid)
}

// RemoveFollower records an incoming UNFOLLOW. Returns false when uid was not
// a follower.
func (s *State) RemoveFollower(uid string) bool {
	if !s.followers.Contains(uid) {
		return false
	}
	s.followers.Remove(uid)
	return true
}

// Followers returns the current follower set, sorted.
func (s *State) Followers() []string {
	out := s.followers.ToSlice()
	sort.Strings(out)
	return out
}

// MarkLikeSent records an outgoing LIKE. Returns false when that post was
// already liked.
func (s *State) MarkLikeSent(to, postTS string) bool {
	return s.sentLikes.Add(likeKey{to: to, postTS: postTS})
}

// MarkUnlikeSent records an outgoing UNLIKE. Returns false when the post was
// never liked.
func (s *State) MarkUnlikeSent(to, postTS string) bool {
	k := likeKey{to: to, postTS: postTS}
	if !s.sentLikes.Contains(k) {
		return false
	}
	s.sentLikes.Remove(k)
	return true
}

// RecordLike stores an incoming LIKE on one of the local user's posts.
// Returns false for duplicates.
func (s *State) RecordLike(postTS, sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	liked, ok := s.likesByPost[postTS]
	if !ok {
		liked = mapset.NewSet[string]()
		s.likesByPost[postTS] = liked
	}
	return liked.Add(sender)
}

// RecordUnlike removes an incoming LIKE. Returns false when the sender had
// not liked the post.
func (s *State) RecordUnlike(postTS, sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	liked, ok := s.likesByPost[postTS]
	if !ok || !liked.Contains(sender) {
		return false
	}
	liked.Remove(sender)
	return true
}

// Likes returns who liked the post with the given timestamp, sorted.
func (s *State) Likes(postTS string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	liked, ok := s.likesByPost[postTS]
	if !ok {
		return nil
	}
	out := liked.ToSlice()
	sort.Strings(out)
	return out
}
