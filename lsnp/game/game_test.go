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

package game

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsnp/go-lsnp/common/mclock"
	"github.com/lsnp/go-lsnp/lsnp/ack"
	"github.com/lsnp/go-lsnp/lsnp/peers"
	"github.com/lsnp/go-lsnp/lsnp/token"
	"github.com/lsnp/go-lsnp/lsnp/transport"
	"github.com/lsnp/go-lsnp/lsnp/wire"
)

const (
	localUser = "alice@10.0.0.1"
	oppUser   = "bob@10.0.0.2"
)

type sentFrame struct {
	ip      string
	port    int
	payload string
	class   transport.DropClass
}

// captureSender records frames instead of hitting the network.
type captureSender struct {
	mu   sync.Mutex
	sent []sentFrame
}

func (c *captureSender) Unicast(ip string, port int, payload []byte, class transport.DropClass) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentFrame{ip: ip, port: port, payload: string(payload), class: class})
	return nil
}

func (c *captureSender) frames() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentFrame(nil), c.sent...)
}

type testRig struct {
	engine *Engine
	tx     *captureSender
	acks   *ack.Manager
	clock  *mclock.Simulated
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	clock := new(mclock.Simulated)
	clock.SetUnix(1000)

	dir := peers.NewDirectory()
	prof := wire.New(wire.TypeProfile)
	prof.Set(wire.FieldUserID, oppUser)
	prof.Set(wire.FieldPort, "50999")
	dir.UpsertFromProfile(prof, "10.0.0.2", 50999)

	acks := ack.NewManager(ack.Config{Clock: clock})
	t.Cleanup(acks.Stop)

	tx := &captureSender{}
	engine := NewEngine(Config{
		UserID:    localUser,
		Transport: tx,
		Peers:     dir,
		Acks:      acks,
		Tokens:    token.NewService(clock),
		Clock:     clock,
	})
	return &testRig{engine: engine, tx: tx, acks: acks, clock: clock}
}

func gameToken(user string) string {
	return token.Make(user, 2000, token.ScopeGame)
}

func moveMsg(gid string, pos, turn int, sym string) *wire.Message {
	msg := wire.New(wire.TypeGameMove)
	msg.Set(wire.FieldFrom, oppUser)
	msg.Set(wire.FieldTo, localUser)
	msg.Set(wire.FieldGameID, gid)
	msg.Set(wire.FieldPosition, strconv.Itoa(pos))
	msg.Set(wire.FieldSymbol, sym)
	msg.Set(wire.FieldTurn, strconv.Itoa(turn))
	msg.Set(wire.FieldToken, gameToken(oppUser))
	msg.Set(wire.FieldMessageID, wire.NewMessageID())
	return msg
}

func TestHandleInviteCreatesGame(t *testing.T) {
	rig := newTestRig(t)

	inv := wire.New(wire.TypeGameInvite)
	inv.Set(wire.FieldFrom, oppUser)
	inv.Set(wire.FieldTo, localUser)
	inv.Set(wire.FieldGameID, "g1")
	inv.Set(wire.FieldSymbol, "X")
	inv.Set(wire.FieldToken, gameToken(oppUser))
	rig.engine.HandleInvite(inv)

	board, ok := rig.engine.Board("g1")
	require.True(t, ok)
	assert.Equal(t, "         ", board)
	assert.Equal(t, 1, rig.engine.NextTurn("g1"))
}

func TestHandleInviteRejectsBadToken(t *testing.T) {
	rig := newTestRig(t)

	inv := wire.New(wire.TypeGameInvite)
	inv.Set(wire.FieldFrom, oppUser)
	inv.Set(wire.FieldGameID, "g1")
	inv.Set(wire.FieldToken, token.Make(oppUser, 500, token.ScopeGame)) // expired
	rig.engine.HandleInvite(inv)

	_, ok := rig.engine.Board("g1")
	assert.False(t, ok)
}

func TestHandleMoveAppliesAndDedups(t *testing.T) {
	rig := newTestRig(t)

	rig.engine.HandleMove(moveMsg("g1", 4, 1, "X"))
	board, _ := rig.engine.Board("g1")
	assert.Equal(t, "    X    ", board)
	assert.Equal(t, 2, rig.engine.NextTurn("g1"))

	// A replay of turn 1 must not mutate the board.
	rig.engine.HandleMove(moveMsg("g1", 0, 1, "X"))
	board, _ = rig.engine.Board("g1")
	assert.Equal(t, "    X    ", board)

	// Occupied cell: ignored entirely, the turn does not advance.
	rig.engine.HandleMove(moveMsg("g1", 4, 2, "O"))
	board, _ = rig.engine.Board("g1")
	assert.Equal(t, "    X    ", board)
	assert.Equal(t, 2, rig.engine.NextTurn("g1"))

	// Out-of-range position: ignored.
	rig.engine.HandleMove(moveMsg("g1", 9, 2, "O"))
	board, _ = rig.engine.Board("g1")
	assert.Equal(t, "    X    ", board)
}

func TestHandleMoveCreatesGameImplicitly(t *testing.T) {
	rig := newTestRig(t)

	// No invite was seen, the move still lands on a fresh board.
	rig.engine.HandleMove(moveMsg("lost-invite", 0, 1, "X"))
	board, ok := rig.engine.Board("lost-invite")
	require.True(t, ok)
	assert.Equal(t, "X        ", board)
}

func TestWinningMoveSendsResult(t *testing.T) {
	rig := newTestRig(t)

	rig.engine.HandleMove(moveMsg("g1", 0, 1, "X"))
	rig.engine.HandleMove(moveMsg("g1", 1, 2, "X"))
	rig.engine.HandleMove(moveMsg("g1", 2, 3, "X"))

	frames := rig.tx.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, transport.DropGame, frames[0].class)

	res := wire.Parse(frames[0].payload)
	assert.Equal(t, wire.TypeGameResult, res.Type())
	assert.Equal(t, "WIN", res.Get(wire.FieldResult))
	assert.Equal(t, "X", res.Get(wire.FieldSymbol))
	assert.Equal(t, "0,1,2", res.Get(wire.FieldWinningLine))
	assert.Equal(t, oppUser, res.Get(wire.FieldTo))
}

func TestInviteTracksAck(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, rig.engine.Invite(oppUser, "g1", "X"))

	frames := rig.tx.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "10.0.0.2", frames[0].ip)
	assert.Equal(t, 50999, frames[0].port)
	assert.Equal(t, transport.DropGame, frames[0].class)

	msg := wire.Parse(frames[0].payload)
	assert.Equal(t, wire.TypeGameInvite, msg.Type())
	mid := msg.Get(wire.FieldMessageID)
	require.NotEmpty(t, mid)
	assert.Equal(t, 1, rig.acks.PendingCount())
	assert.True(t, rig.acks.Acked(mid))
}

func TestMoveRefusesUndiscoveredPeer(t *testing.T) {
	rig := newTestRig(t)
	err := rig.engine.Move("stranger@10.9.9.9", "g1", 0, 1, "X")
	assert.ErrorIs(t, err, ErrUnknownPeer)
	assert.Empty(t, rig.tx.frames())
}

func TestRenderBoard(t *testing.T) {
	got := RenderBoard("X O  X  O")
	want := " X |   | O \n-----------\n   |   | X \n-----------\n   |   | O "
	assert.Equal(t, want, got)

	// Junk characters render as blanks.
	assert.Equal(t,
		"   |   |   \n-----------\n   |   |   \n-----------\n   |   |   ",
		RenderBoard("abc?!.,;-"))
}

func TestBoardResult(t *testing.T) {
	tests := []struct {
		board    string
		result   string
		line     string
	}{
		{"XXX      ", "WIN", "0,1,2"},
		{"O  O  O  ", "WIN", "0,3,6"},
		{"X   X   X", "WIN", "0,4,8"},
		{"XOXXOXOXO", "DRAW", ""},
		{"X        ", "", ""},
		{"         ", "", ""},
	}
	for _, tt := range tests {
		result, line := boardResult(tt.board)
		assert.Equal(t, tt.result, result, tt.board)
		assert.Equal(t, tt.line, line, tt.board)
	}
}
