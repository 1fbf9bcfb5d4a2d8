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

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lsnp/go-lsnp/lsnp/ack"
	"github.com/lsnp/go-lsnp/lsnp/filetransfer"
	"github.com/lsnp/go-lsnp/lsnp/game"
	"github.com/lsnp/go-lsnp/lsnp/token"
	"github.com/lsnp/go-lsnp/lsnp/transport"
	"github.com/lsnp/go-lsnp/lsnp/wire"
)

// Command-surface errors, shown verbatim by the console.
var (
	ErrUnknownPeer      = errors.New("peer endpoint not yet discovered, wait for a PROFILE")
	ErrAlreadyFollowing = errors.New("already following that user")
	ErrNotFollowing     = errors.New("not following that user")
	ErrAlreadyLiked     = errors.New("post already liked")
	ErrNotLiked         = errors.New("post not liked yet")
	ErrNoGroupMembers   = errors.New("no known members in that group")
)

// Post publishes a broadcast post. With no known followers it falls back to
// broadcast plus multicast, so a solo peer still sees its own traffic; with
// followers it unicasts to each one.
func (p *Peer) Post(content string) error {
	msg := wire.New(wire.TypePost)
	msg.Set(wire.FieldUserID, p.userID)
	msg.Set(wire.FieldContent, content)
	msg.Set(wire.FieldTTL, strconv.FormatInt(int64(p.cfg.TokenTTL/time.Second), 10))
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(p.clock.Unix(), 10))
	msg.Set(wire.FieldMessageID, wire.NewMessageID())
	msg.Set(wire.FieldToken, p.newToken(token.ScopeBroadcast))
	raw := msg.Encode()

	followers := p.social.Followers()
	if len(followers) == 0 {
		if err := p.tx.Broadcast(p.broadcastIP, raw); err != nil {
			return err
		}
		return p.tx.Multicast(raw)
	}
	for _, f := range followers {
		ip, port := p.dir.Endpoint(f)
		if ip == "" || port == 0 {
			p.log.Warn("No endpoint for follower, skipping", "user", f)
			continue
		}
		if err := p.tx.Unicast(ip, port, raw, transport.DropNone); err != nil {
			p.log.Warn("Post unicast failed", "user", f, "err", err)
		}
	}
	return nil
}

// DM sends a direct message with delivery tracking.
func (p *Peer) DM(toUser, content string) error {
	ip, port := p.dir.Endpoint(toUser)
	if ip == "" || port == 0 {
		return ErrUnknownPeer
	}
	msg := wire.New(wire.TypeDM)
	msg.Set(wire.FieldFrom, p.userID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldContent, content)
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(p.clock.Unix(), 10))
	msg.Set(wire.FieldMessageID, wire.NewMessageID())
	msg.Set(wire.FieldToken, p.newToken(token.ScopeChat))
	raw := msg.Encode()

	mid := msg.Get(wire.FieldMessageID)
	p.acks.Track(mid, ack.ResendFunc(func() {
		if err := p.tx.Unicast(ip, port, raw, transport.DropNone); err != nil {
			p.log.Error("DM resend failed", "id", mid, "err", err)
		}
	}))
	return p.tx.Unicast(ip, port, raw, transport.DropNone)
}

// Follow notifies a peer and optimistically updates local state. Follows are
// fire and forget, no ACK tracking, so a duplicate never spams the peer.
func (p *Peer) Follow(toUser string) error {
	if p.social.Following(toUser) {
		return ErrAlreadyFollowing
	}
	if err := p.sendFollow(wire.TypeFollow, toUser); err != nil {
		return err
	}
	p.social.Follow(toUser)
	return nil
}

// Unfollow is the inverse of Follow, with the same delivery semantics.
func (p *Peer) Unfollow(toUser string) error {
	if !p.social.Following(toUser) {
		return ErrNotFollowing
	}
	if err := p.sendFollow(wire.TypeUnfollow, toUser); err != nil {
		return err
	}
	p.social.Unfollow(toUser)
	return nil
}

func (p *Peer) sendFollow(mtype, toUser string) error {
	ip, port := p.dir.Endpoint(toUser)
	if ip == "" || port == 0 {
		return ErrUnknownPeer
	}
	msg := wire.New(mtype)
	msg.Set(wire.FieldMessageID, wire.NewMessageID())
	msg.Set(wire.FieldFrom, p.userID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(p.clock.Unix(), 10))
	msg.Set(wire.FieldToken, p.newToken(token.ScopeFollow))
	return p.tx.Unicast(ip, port, msg.Encode(), transport.DropNone)
}

// Like sends a LIKE or UNLIKE for a post, identified by its timestamp.
// Duplicate likes are caught locally before anything hits the wire.
func (p *Peer) Like(toUser, postTS, action string) error {
	action = strings.ToUpper(strings.TrimSpace(action))
	if action == "" {
		action = "LIKE"
	}
	ip, port := p.dir.Endpoint(toUser)
	if ip == "" || port == 0 {
		return ErrUnknownPeer
	}
	if action == "LIKE" {
		if !p.social.MarkLikeSent(toUser, postTS) {
			return ErrAlreadyLiked
		}
	} else {
		if !p.social.MarkUnlikeSent(toUser, postTS) {
			return ErrNotLiked
		}
	}

	msg := wire.New(wire.TypeLike)
	msg.Set(wire.FieldFrom, p.userID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldPostTS, postTS)
	msg.Set(wire.FieldAction, action)
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(p.clock.Unix(), 10))
	msg.Set(wire.FieldToken, p.newToken(token.ScopeBroadcast))
	return p.tx.Unicast(ip, port, msg.Encode(), transport.DropNone)
}

// GroupCreate creates a group locally, always including the local user, and
// notifies the listed members.
func (p *Peer) GroupCreate(gid, name string, members []string) error {
	local := append(append([]string(nil), members...), p.userID)
	sort.Strings(local)
	p.groups.Create(gid, name, dedupe(local))

	msg := wire.New(wire.TypeGroupCreate)
	msg.Set(wire.FieldFrom, p.userID)
	msg.Set(wire.FieldGroupID, gid)
	msg.Set(wire.FieldGroupName, name)
	msg.Set(wire.FieldMembers, strings.Join(members, ","))
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(p.clock.Unix(), 10))
	msg.Set(wire.FieldToken, p.newToken(token.ScopeGroup))
	p.sendToMembers(members, msg.Encode())
	return nil
}

// GroupUpdate applies a membership delta locally and notifies the current
// member list.
func (p *Peer) GroupUpdate(gid string, add, remove []string) error {
	msg := wire.New(wire.TypeGroupUpdate)
	msg.Set(wire.FieldFrom, p.userID)
	msg.Set(wire.FieldGroupID, gid)
	msg.Set(wire.FieldAdd, strings.Join(add, ","))
	msg.Set(wire.FieldRemove, strings.Join(remove, ","))
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(p.clock.Unix(), 10))
	msg.Set(wire.FieldToken, p.newToken(token.ScopeGroup))

	p.groups.Update(gid, add, remove)
	p.sendToMembers(p.groups.Members(gid), msg.Encode())
	return nil
}

// GroupMessage sends a message to every known member of a group.
func (p *Peer) GroupMessage(gid, content string) error {
	var recipients []string
	for _, m := range p.groups.Members(gid) {
		if m != p.userID {
			recipients = append(recipients, m)
		}
	}
	if len(recipients) == 0 {
		return ErrNoGroupMembers
	}

	msg := wire.New(wire.TypeGroupMessage)
	msg.Set(wire.FieldFrom, p.userID)
	msg.Set(wire.FieldGroupID, gid)
	msg.Set(wire.FieldContent, content)
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(p.clock.Unix(), 10))
	msg.Set(wire.FieldToken, p.newToken(token.ScopeGroup))
	p.sendToMembers(recipients, msg.Encode())
	return nil
}

// sendToMembers unicasts a frame to each member except the local user,
// skipping members without a known endpoint.
func (p *Peer) sendToMembers(members []string, raw []byte) {
	for _, m := range members {
		if m == p.userID {
			continue
		}
		ip, port := p.dir.Endpoint(m)
		if ip == "" || port == 0 {
			p.log.Warn("No endpoint for group member, skipping", "user", m)
			continue
		}
		if err := p.tx.Unicast(ip, port, raw, transport.DropNone); err != nil {
			p.log.Warn("Group unicast failed", "user", m, "err", err)
		}
	}
}

// SendFile offers and streams a file to a peer, returning the FILEID.
func (p *Peer) SendFile(toUser, path string) (string, error) {
	fileid, err := p.files.SendFile(toUser, path)
	if errors.Is(err, filetransfer.ErrUnknownPeer) {
		return "", ErrUnknownPeer
	}
	return fileid, err
}

// AcceptFile accepts a pending inbound file offer.
func (p *Peer) AcceptFile(fileid string) bool { return p.files.Accept(fileid) }

// IgnoreFile discards a pending inbound file offer.
func (p *Peer) IgnoreFile(fileid string) bool { return p.files.Ignore(fileid) }

// Revoke invalidates a token locally and tells the segment about it.
func (p *Peer) Revoke(tok string) error {
	p.tokens.Revoke(tok)
	msg := wire.New(wire.TypeRevoke)
	msg.Set(wire.FieldUserID, p.userID)
	msg.Set(wire.FieldToken, tok)
	raw := msg.Encode()
	if err := p.tx.Broadcast(p.broadcastIP, raw); err != nil {
		return err
	}
	return p.tx.Multicast(raw)
}

// GameInvite starts a game. An empty game ID generates a short one; an empty
// symbol defaults to X.
func (p *Peer) GameInvite(toUser, gameID, symbol string) (string, error) {
	if gameID == "" {
		gameID = "g" + wire.NewShortID()[:2]
	}
	err := p.games.Invite(toUser, gameID, symbol)
	if errors.Is(err, game.ErrUnknownPeer) {
		return "", ErrUnknownPeer
	}
	return gameID, err
}

// GameMove plays one move.
func (p *Peer) GameMove(toUser, gameID string, position, turn int, symbol string) error {
	err := p.games.Move(toUser, gameID, position, turn, symbol)
	if errors.Is(err, game.ErrUnknownPeer) {
		return ErrUnknownPeer
	}
	return err
}

// NextTurn suggests the next turn number for a game.
func (p *Peer) NextTurn(gameID string) int { return p.games.NextTurn(gameID) }

func dedupe(in []string) []string {
	out := in[:0]
	var prev string
	for i, s := range in {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}
