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
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/lsnp/go-lsnp/lsnp/social"
	"github.com/lsnp/go-lsnp/lsnp/token"
	"github.com/lsnp/go-lsnp/lsnp/transport"
	"github.com/lsnp/go-lsnp/lsnp/wire"
)

// onPacket is the dispatcher. It runs on the transport's receiver goroutines:
// parse, origin check, auto-ACK, ACK ingestion, duplicate suppression, then
// the per-type handler. Handlers re-validate tokens themselves.
func (p *Peer) onPacket(raw string, src *net.UDPAddr) {
	msg := wire.Parse(raw)
	mtype := msg.Type()
	if mtype == "" {
		return
	}
	srcIP := src.IP.String()

	// Housekeeping frames only show up under wire tracing.
	if wire.Suppressed(mtype) {
		p.log.Trace("Frame in", "type", mtype, "src", src)
	} else {
		p.log.Debug("Frame in", "type", mtype, "src", src)
	}

	sender := senderOf(msg)
	if sender != "" {
		if declared := wire.IPFromUserID(sender); declared != "" && declared != srcIP {
			if p.loopback && declared == "127.0.0.1" {
				p.log.Warn("Loopback: tolerating IP mismatch", "declared", declared, "actual", srcIP, "type", mtype)
			} else {
				p.log.Warn("IP mismatch, dropping", "declared", declared, "actual", srcIP, "type", mtype)
				return
			}
		}
	}

	mid := msg.Get(wire.FieldMessageID)
	to := msg.Get(wire.FieldTo)
	addressedToMe := to == "" || to == p.userID
	if addressedToMe && mid != "" && wire.AckTracked(mtype) {
		p.sendAck(sender, mid, srcIP, src.Port)
	}

	if mtype == wire.TypeAck {
		if mid != "" {
			p.acks.Acked(mid)
		}
		return
	}

	// Retries reuse the MESSAGE_ID; the ACK above answers them, the
	// handler must not run twice.
	if mid != "" {
		if seen, _ := p.seen.ContainsOrAdd(mid, struct{}{}); seen {
			p.log.Trace("Duplicate frame suppressed", "id", mid, "type", mtype)
			return
		}
	}

	switch mtype {
	case wire.TypePing:
		p.handlePing()
	case wire.TypeProfile:
		p.handleProfile(msg, srcIP, src.Port)
	case wire.TypeDM:
		p.handleDM(msg)
	case wire.TypePost:
		p.handlePost(msg)
	case wire.TypeFollow, wire.TypeUnfollow:
		p.handleFollow(msg, mtype == wire.TypeFollow)
	case wire.TypeLike:
		p.handleLike(msg)
	case wire.TypeGroupCreate:
		p.handleGroupCreate(msg)
	case wire.TypeGroupUpdate:
		p.handleGroupUpdate(msg)
	case wire.TypeGroupMessage:
		p.handleGroupMessage(msg)
	case wire.TypeFileOffer:
		p.files.HandleOffer(msg)
	case wire.TypeFileChunk:
		p.files.HandleChunk(msg)
	case wire.TypeFileReceived:
		p.log.Trace("File received by peer", "file", msg.Get(wire.FieldFileID), "status", msg.Get(wire.FieldStatus))
	case wire.TypeGameInvite:
		p.games.HandleInvite(msg)
	case wire.TypeGameMove:
		p.games.HandleMove(msg)
	case wire.TypeGameResult:
		p.games.HandleResult(msg)
	case wire.TypeRevoke:
		if tok := msg.Get(wire.FieldToken); tok != "" {
			p.tokens.Revoke(tok)
		}
	default:
		p.log.Debug("Unknown message type", "type", mtype, "from", sender)
	}
}

// sendAck answers a tracked frame. The reply goes to the sender's known
// endpoint, falling back to the datagram's source address.
func (p *Peer) sendAck(sender, mid, srcIP string, srcPort int) {
	ip, port := p.dir.Endpoint(sender)
	if ip == "" {
		ip = srcIP
	}
	if port == 0 {
		port = srcPort
	}
	ackMsg := wire.New(wire.TypeAck)
	ackMsg.Set(wire.FieldMessageID, mid)
	ackMsg.Set(wire.FieldStatus, "RECEIVED")
	if err := p.tx.Unicast(ip, port, ackMsg.Encode(), transport.DropNone); err != nil {
		p.log.Debug("ACK send failed", "id", mid, "err", err)
	}
}

// handlePing answers presence probes with the local profile on both
// discovery flavors.
func (p *Peer) handlePing() {
	prof := p.profileFrame()
	if err := p.tx.Broadcast(p.broadcastIP, prof); err != nil {
		p.log.Debug("Profile broadcast failed", "err", err)
	}
	if err := p.tx.Multicast(prof); err != nil {
		p.log.Debug("Profile multicast failed", "err", err)
	}
}

func (p *Peer) handleProfile(msg *wire.Message, srcIP string, srcPort int) {
	p.dir.UpsertFromProfile(msg, srcIP, srcPort)
	uid := msg.Get(wire.FieldUserID)
	if uid == "" || uid == p.userID {
		return
	}
	p.post(ProfileEvent{
		UserID:      uid,
		DisplayName: p.dir.DisplayName(uid),
		Status:      msg.Get(wire.FieldStatus),
	})
}

func (p *Peer) handleDM(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !p.tokens.Validate(msg.Get(wire.FieldToken), token.ScopeChat, sender) {
		p.log.Warn("Rejected DM, invalid token", "from", sender)
		return
	}
	p.post(DMEvent{
		From:        sender,
		FromDisplay: p.dir.DisplayName(sender),
		Content:     msg.Get(wire.FieldContent),
	})
}

// handlePost gates broadcast posts twice: the token must be valid and
// unexpired by the frame's own TTL, and the author must be the local user or
// someone the local user follows.
func (p *Peer) handlePost(msg *wire.Message) {
	uid := msg.Get(wire.FieldUserID)
	if !p.tokens.Validate(msg.Get(wire.FieldToken), token.ScopeBroadcast, uid) {
		p.log.Warn("Rejected POST, invalid token", "from", uid)
		return
	}
	ts, _ := strconv.ParseInt(msg.Get(wire.FieldTimestamp), 10, 64)
	ttl, _ := strconv.ParseInt(msg.Get(wire.FieldTTL), 10, 64)
	if ttl == 0 {
		ttl = int64(p.cfg.TokenTTL / time.Second)
	}
	if p.clock.Unix() > ts+ttl {
		p.log.Warn("Rejected POST, TTL expired", "from", uid)
		return
	}
	if uid != p.userID && !p.social.Following(uid) {
		return
	}
	p.post(PostEvent{
		From:        uid,
		FromDisplay: p.dir.DisplayName(uid),
		Content:     msg.Get(wire.FieldContent),
		Timestamp:   msg.Get(wire.FieldTimestamp),
	})
}

func (p *Peer) handleFollow(msg *wire.Message, follow bool) {
	sender := msg.Get(wire.FieldFrom)
	if !p.tokens.Validate(msg.Get(wire.FieldToken), token.ScopeFollow, sender) {
		p.log.Warn("Rejected FOLLOW/UNFOLLOW, invalid token", "from", sender)
		return
	}
	var changed bool
	if follow {
		changed = p.social.AddFollower(sender)
	} else {
		changed = p.social.RemoveFollower(sender)
	}
	if changed {
		p.post(FollowEvent{From: sender, Followed: follow})
	}
}

func (p *Peer) handleLike(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !p.tokens.Validate(msg.Get(wire.FieldToken), token.ScopeBroadcast, sender) {
		p.log.Warn("Rejected LIKE, invalid token", "from", sender)
		return
	}
	if msg.Get(wire.FieldTo) != p.userID {
		return
	}
	postTS := msg.Get(wire.FieldPostTS)
	action := strings.ToUpper(msg.Get(wire.FieldAction))
	if action == "" {
		action = "LIKE"
	}
	var changed bool
	if action == "LIKE" {
		changed = p.social.RecordLike(postTS, sender)
	} else {
		changed = p.social.RecordUnlike(postTS, sender)
	}
	if changed {
		p.post(LikeEvent{From: sender, PostTS: postTS, Action: action})
	}
}

func (p *Peer) handleGroupCreate(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !p.tokens.Validate(msg.Get(wire.FieldToken), token.ScopeGroup, sender) {
		p.log.Warn("Rejected GROUP_CREATE, invalid token", "from", sender)
		return
	}
	gid := msg.Get(wire.FieldGroupID)
	name := msg.Get(wire.FieldGroupName)
	if name == "" {
		name = gid
	}
	members := social.SplitMembers(msg.Get(wire.FieldMembers))
	p.groups.Create(gid, name, members)
	p.post(GroupCreateEvent{GroupID: gid, Name: name, By: sender, Members: members})
}

func (p *Peer) handleGroupUpdate(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !p.tokens.Validate(msg.Get(wire.FieldToken), token.ScopeGroup, sender) {
		p.log.Warn("Rejected GROUP_UPDATE, invalid token", "from", sender)
		return
	}
	gid := msg.Get(wire.FieldGroupID)
	p.groups.Update(gid, social.SplitMembers(msg.Get(wire.FieldAdd)), social.SplitMembers(msg.Get(wire.FieldRemove)))
	p.post(GroupUpdateEvent{GroupID: gid, Name: p.groups.Name(gid)})
}

func (p *Peer) handleGroupMessage(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !p.tokens.Validate(msg.Get(wire.FieldToken), token.ScopeGroup, sender) {
		p.log.Warn("Rejected GROUP_MESSAGE, invalid token", "from", sender)
		return
	}
	gid := msg.Get(wire.FieldGroupID)
	p.post(GroupMessageEvent{
		GroupID:     gid,
		GroupName:   p.groups.Name(gid),
		From:        sender,
		FromDisplay: p.dir.DisplayName(sender),
		Content:     msg.Get(wire.FieldContent),
	})
}

func (p *Peer) post(ev interface{}) {
	p.mux.Post(ev)
}

// senderOf extracts the claimed origin, FROM for directed frames and USER_ID
// for presence frames.
func senderOf(msg *wire.Message) string {
	if from := msg.Get(wire.FieldFrom); from != "" {
		return from
	}
	return msg.Get(wire.FieldUserID)
}
