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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsnp/go-lsnp/common/mclock"
	"github.com/lsnp/go-lsnp/lsnp/token"
	"github.com/lsnp/go-lsnp/lsnp/transport"
	"github.com/lsnp/go-lsnp/lsnp/wire"
)

const (
	bobUser = "bob@10.0.0.2"
	bobIP   = "10.0.0.2"
	bobPort = 41000
)

type unicastFrame struct {
	ip      string
	port    int
	payload string
	class   transport.DropClass
}

// fakeConn satisfies the conn interface and records all egress.
type fakeConn struct {
	mu        sync.Mutex
	uni       []unicastFrame
	broadcast []string
	multicast []string
}

func (f *fakeConn) Unicast(ip string, port int, payload []byte, class transport.DropClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uni = append(f.uni, unicastFrame{ip: ip, port: port, payload: string(payload), class: class})
	return nil
}

func (f *fakeConn) Broadcast(bcastIP string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, string(payload))
	return nil
}

func (f *fakeConn) Multicast(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multicast = append(f.multicast, string(payload))
	return nil
}

func (f *fakeConn) Loop(transport.Handler) {}
func (f *fakeConn) ListenPort() int        { return 42000 }
func (f *fakeConn) Close()                 {}

func (f *fakeConn) unicasts() []unicastFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]unicastFrame(nil), f.uni...)
}

func (f *fakeConn) broadcasts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.broadcast...)
}

type peerRig struct {
	peer   *Peer
	tx     *fakeConn
	clock  *mclock.Simulated
	events chan interface{}
}

func newPeerRig(t *testing.T, types ...interface{}) *peerRig {
	t.Helper()
	clock := new(mclock.Simulated)
	clock.SetUnix(1000)

	tx := &fakeConn{}
	p := newPeer(Config{
		DisplayName: "alice",
		LocalIP:     "10.0.0.1",
		InboxDir:    t.TempDir(),
		Clock:       clock,
	}, tx)
	t.Cleanup(p.Stop)

	rig := &peerRig{peer: p, tx: tx, clock: clock, events: make(chan interface{}, 32)}
	if len(types) > 0 {
		sub := p.Subscribe(types...)
		go func() {
			for ev := range sub.Chan() {
				rig.events <- ev
			}
		}()
	}
	return rig
}

// deliver injects a frame into the dispatcher as if it arrived from addr.
func (r *peerRig) deliver(msg *wire.Message, ip string, port int) {
	r.peer.onPacket(string(msg.Encode()), &net.UDPAddr{IP: net.ParseIP(ip), Port: port})
}

// discover seeds bob in the peer directory.
func (r *peerRig) discover() {
	prof := wire.New(wire.TypeProfile)
	prof.Set(wire.FieldUserID, bobUser)
	prof.Set(wire.FieldDisplayName, "Bob")
	prof.Set(wire.FieldPort, "41000")
	r.deliver(prof, bobIP, 51000)
}

func (r *peerRig) waitEvent(t *testing.T) interface{} {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected event not posted")
		return nil
	}
}

func (r *peerRig) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func chatToken(user string) string { return token.Make(user, 2000, token.ScopeChat) }

func dmFrom(user, content string) *wire.Message {
	msg := wire.New(wire.TypeDM)
	msg.Set(wire.FieldFrom, user)
	msg.Set(wire.FieldTo, "alice@10.0.0.1")
	msg.Set(wire.FieldContent, content)
	msg.Set(wire.FieldMessageID, wire.NewMessageID())
	msg.Set(wire.FieldToken, chatToken(user))
	return msg
}

func TestProfileRegistersPeer(t *testing.T) {
	rig := newPeerRig(t, ProfileEvent{})
	rig.discover()

	ev := rig.waitEvent(t).(ProfileEvent)
	assert.Equal(t, bobUser, ev.UserID)
	assert.Equal(t, "Bob", ev.DisplayName)

	list := rig.peer.Peers()
	require.Len(t, list, 1)
	assert.Equal(t, bobIP, list[0].Address)
	assert.Equal(t, bobPort, list[0].Port)
}

func TestOriginMismatchDropped(t *testing.T) {
	rig := newPeerRig(t, DMEvent{})
	rig.discover()
	rig.waitDrain()

	// Claimed identity embeds 10.0.0.2, datagram arrives from elsewhere.
	rig.deliver(dmFrom(bobUser, "spoofed"), "10.0.0.9", 51000)
	rig.expectNoEvent(t)
	assert.Empty(t, rig.tx.unicasts())
}

func TestAutoAckAndDuplicateSuppression(t *testing.T) {
	rig := newPeerRig(t, DMEvent{})
	rig.discover()

	msg := dmFrom(bobUser, "hello")
	rig.deliver(msg, bobIP, 51000)

	ev := rig.waitEvent(t).(DMEvent)
	assert.Equal(t, "hello", ev.Content)
	assert.Equal(t, "Bob", ev.FromDisplay)

	// The ACK goes to bob's advertised endpoint, not the source port.
	frames := rig.tx.unicasts()
	require.Len(t, frames, 1)
	assert.Equal(t, bobIP, frames[0].ip)
	assert.Equal(t, bobPort, frames[0].port)
	ackMsg := wire.Parse(frames[0].payload)
	assert.Equal(t, wire.TypeAck, ackMsg.Type())
	assert.Equal(t, msg.Get(wire.FieldMessageID), ackMsg.Get(wire.FieldMessageID))
	assert.Equal(t, "RECEIVED", ackMsg.Get(wire.FieldStatus))

	// A retry of the same frame is re-ACKed but not re-displayed.
	rig.deliver(msg, bobIP, 51000)
	rig.expectNoEvent(t)
	assert.Len(t, rig.tx.unicasts(), 2)
}

func TestAckClearsPendingDM(t *testing.T) {
	rig := newPeerRig(t)
	rig.discover()

	require.NoError(t, rig.peer.DM(bobUser, "hi bob"))
	frames := rig.tx.unicasts()
	require.Len(t, frames, 1)
	sent := wire.Parse(frames[0].payload)
	mid := sent.Get(wire.FieldMessageID)
	require.NotEmpty(t, mid)
	assert.Equal(t, 1, rig.peer.acks.PendingCount())

	ackMsg := wire.New(wire.TypeAck)
	ackMsg.Set(wire.FieldMessageID, mid)
	ackMsg.Set(wire.FieldStatus, "RECEIVED")
	rig.deliver(ackMsg, bobIP, bobPort)
	assert.Zero(t, rig.peer.acks.PendingCount())
}

func TestDMRequiresKnownEndpoint(t *testing.T) {
	rig := newPeerRig(t)
	assert.ErrorIs(t, rig.peer.DM("nobody@10.9.9.9", "hi"), ErrUnknownPeer)
}

func TestPostVisibilityGating(t *testing.T) {
	rig := newPeerRig(t, PostEvent{})
	rig.discover()

	post := func(content string, ts int64) *wire.Message {
		msg := wire.New(wire.TypePost)
		msg.Set(wire.FieldUserID, bobUser)
		msg.Set(wire.FieldContent, content)
		msg.Set(wire.FieldTimestamp, "900")
		msg.Set(wire.FieldTTL, "3600")
		msg.Set(wire.FieldMessageID, wire.NewMessageID())
		msg.Set(wire.FieldToken, token.Make(bobUser, ts, token.ScopeBroadcast))
		return msg
	}

	// Not following bob: the post is silently dropped.
	rig.deliver(post("unseen", 2000), bobIP, 51000)
	rig.expectNoEvent(t)

	require.NoError(t, rig.peer.Follow(bobUser))
	rig.deliver(post("seen", 2000), bobIP, 51000)
	ev := rig.waitEvent(t).(PostEvent)
	assert.Equal(t, "seen", ev.Content)

	// Expired token.
	rig.deliver(post("stale", 500), bobIP, 51000)
	rig.expectNoEvent(t)
}

func TestFollowerLifecycleAndPostFanout(t *testing.T) {
	rig := newPeerRig(t, FollowEvent{})
	rig.discover()

	follow := wire.New(wire.TypeFollow)
	follow.Set(wire.FieldFrom, bobUser)
	follow.Set(wire.FieldTo, "alice@10.0.0.1")
	follow.Set(wire.FieldMessageID, wire.NewMessageID())
	follow.Set(wire.FieldToken, token.Make(bobUser, 2000, token.ScopeFollow))
	rig.deliver(follow, bobIP, 51000)

	ev := rig.waitEvent(t).(FollowEvent)
	assert.True(t, ev.Followed)
	assert.Equal(t, []string{bobUser}, rig.peer.social.Followers())

	// With a follower, a post goes unicast to bob only.
	require.NoError(t, rig.peer.Post("hello followers"))
	frames := rig.tx.unicasts()
	require.Len(t, frames, 1)
	assert.Equal(t, bobIP, frames[0].ip)
	assert.Equal(t, bobPort, frames[0].port)
	sent := wire.Parse(frames[0].payload)
	assert.Equal(t, wire.TypePost, sent.Type())
	assert.Empty(t, rig.tx.broadcasts())
}

func TestSoloPostFallsBackToBroadcast(t *testing.T) {
	rig := newPeerRig(t)

	require.NoError(t, rig.peer.Post("anyone there?"))
	assert.Empty(t, rig.tx.unicasts())
	require.Len(t, rig.tx.broadcasts(), 1)
	sent := wire.Parse(rig.tx.broadcasts()[0])
	assert.Equal(t, wire.TypePost, sent.Type())
	assert.Equal(t, "anyone there?", sent.Get(wire.FieldContent))
}

func TestPingAnsweredWithProfile(t *testing.T) {
	rig := newPeerRig(t)

	ping := wire.New(wire.TypePing)
	ping.Set(wire.FieldUserID, bobUser)
	rig.deliver(ping, bobIP, 51000)

	bc := rig.tx.broadcasts()
	require.Len(t, bc, 1)
	prof := wire.Parse(bc[0])
	assert.Equal(t, wire.TypeProfile, prof.Type())
	assert.Equal(t, "alice@10.0.0.1", prof.Get(wire.FieldUserID))
	assert.Equal(t, "42000", prof.Get(wire.FieldPort))
}

func TestRevokedTokenRejected(t *testing.T) {
	rig := newPeerRig(t, DMEvent{})
	rig.discover()

	tok := chatToken(bobUser)
	revoke := wire.New(wire.TypeRevoke)
	revoke.Set(wire.FieldToken, tok)
	rig.deliver(revoke, bobIP, 51000)

	msg := dmFrom(bobUser, "too late")
	msg.Set(wire.FieldToken, tok)
	rig.deliver(msg, bobIP, 51000)
	rig.expectNoEvent(t)
}

func TestLikeDedup(t *testing.T) {
	rig := newPeerRig(t, LikeEvent{})
	rig.discover()

	like := func() *wire.Message {
		msg := wire.New(wire.TypeLike)
		msg.Set(wire.FieldFrom, bobUser)
		msg.Set(wire.FieldTo, "alice@10.0.0.1")
		msg.Set(wire.FieldPostTS, "1700000000")
		msg.Set(wire.FieldAction, "LIKE")
		msg.Set(wire.FieldMessageID, wire.NewMessageID())
		msg.Set(wire.FieldToken, token.Make(bobUser, 2000, token.ScopeBroadcast))
		return msg
	}
	rig.deliver(like(), bobIP, 51000)
	ev := rig.waitEvent(t).(LikeEvent)
	assert.Equal(t, "LIKE", ev.Action)

	// Same sender liking again (fresh MESSAGE_ID): state is unchanged.
	rig.deliver(like(), bobIP, 51000)
	rig.expectNoEvent(t)
}

func TestGroupFlow(t *testing.T) {
	rig := newPeerRig(t, GroupCreateEvent{}, GroupMessageEvent{})
	rig.discover()

	groupToken := token.Make(bobUser, 2000, token.ScopeGroup)

	create := wire.New(wire.TypeGroupCreate)
	create.Set(wire.FieldFrom, bobUser)
	create.Set(wire.FieldGroupID, "g1")
	create.Set(wire.FieldGroupName, "Study")
	create.Set(wire.FieldMembers, bobUser+",alice@10.0.0.1")
	create.Set(wire.FieldToken, groupToken)
	rig.deliver(create, bobIP, 51000)

	cev := rig.waitEvent(t).(GroupCreateEvent)
	assert.Equal(t, "Study", cev.Name)
	assert.Equal(t, bobUser, cev.By)

	gm := wire.New(wire.TypeGroupMessage)
	gm.Set(wire.FieldFrom, bobUser)
	gm.Set(wire.FieldGroupID, "g1")
	gm.Set(wire.FieldContent, "meeting at 5")
	gm.Set(wire.FieldToken, groupToken)
	rig.deliver(gm, bobIP, 51000)

	mev := rig.waitEvent(t).(GroupMessageEvent)
	assert.Equal(t, "Study", mev.GroupName)
	assert.Equal(t, "meeting at 5", mev.Content)

	// Replying reaches bob, the only remote member.
	require.NoError(t, rig.peer.GroupMessage("g1", "on my way"))
	frames := rig.tx.unicasts()
	require.Len(t, frames, 1)
	assert.Equal(t, bobIP, frames[0].ip)
}

func TestDiscoveryAnnounce(t *testing.T) {
	rig := newPeerRig(t)
	rig.peer.announce()

	bc := rig.tx.broadcasts()
	require.Len(t, bc, 2)
	assert.Equal(t, wire.TypePing, wire.Parse(bc[0]).Type())
	prof := wire.Parse(bc[1])
	assert.Equal(t, wire.TypeProfile, prof.Type())
	assert.Equal(t, "Exploring LSNP!", prof.Get(wire.FieldStatus))
}

// waitDrain consumes any events already queued, keeping assertions about
// later frames clean.
func (r *peerRig) waitDrain() {
	for {
		select {
		case <-r.events:
		case <-time.After(20 * time.Millisecond):
			return
		}
	}
}
