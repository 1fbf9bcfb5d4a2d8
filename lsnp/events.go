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

package lsnp

// Display events posted on the peer's event mux. The console subscribes to
// the ones it renders; embedders can pick what they care about. File and game
// events live in their own packages.

// ProfileEvent announces a peer profile, new or refreshed.
type ProfileEvent struct {
	UserID      string
	DisplayName string
	Status      string
}

// DMEvent is a validated direct message.
type DMEvent struct {
	From        string
	FromDisplay string
	Content     string
}

// PostEvent is a validated broadcast post from a followed author (or the
// local user's own echo).
type PostEvent struct {
	From        string
	FromDisplay string
	Content     string
	Timestamp   string
}

// FollowEvent reports a change to the local follower set.
type FollowEvent struct {
	From     string
	Followed bool
}

// LikeEvent reports a like or unlike on one of the local user's posts.
type LikeEvent struct {
	From   string
	PostTS string
	Action string
}

// GroupCreateEvent reports that the local user was added to a group.
type GroupCreateEvent struct {
	GroupID string
	Name    string
	By      string
	Members []string
}

// GroupUpdateEvent reports a membership change in a known group.
type GroupUpdateEvent struct {
	GroupID string
	Name    string
}

// GroupMessageEvent is a validated message to a group.
type GroupMessageEvent struct {
	GroupID     string
	GroupName   string
	From        string
	FromDisplay string
	Content     string
}
