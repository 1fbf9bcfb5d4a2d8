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

package filetransfer

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
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
	peerUser  = "bob@10.0.0.2"
)

type sentFrame struct {
	ip      string
	port    int
	payload string
	class   transport.DropClass
}

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
	mgr   *Manager
	tx    *captureSender
	acks  *ack.Manager
	inbox string
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	clock := new(mclock.Simulated)
	clock.SetUnix(1000)

	dir := peers.NewDirectory()
	prof := wire.New(wire.TypeProfile)
	prof.Set(wire.FieldUserID, peerUser)
	prof.Set(wire.FieldPort, "50999")
	dir.UpsertFromProfile(prof, "10.0.0.2", 50999)

	acks := ack.NewManager(ack.Config{Clock: clock})
	t.Cleanup(acks.Stop)

	tx := &captureSender{}
	inbox := t.TempDir()
	mgr := NewManager(Config{
		UserID:    localUser,
		InboxDir:  inbox,
		Transport: tx,
		Peers:     dir,
		Acks:      acks,
		Tokens:    token.NewService(clock),
		Clock:     clock,
	})
	return &testRig{mgr: mgr, tx: tx, acks: acks, inbox: inbox}
}

func fileToken(user string) string {
	return token.Make(user, 2000, token.ScopeFile)
}

func offerMsg(fileid, filename string, size int) *wire.Message {
	msg := wire.New(wire.TypeFileOffer)
	msg.Set(wire.FieldFrom, peerUser)
	msg.Set(wire.FieldTo, localUser)
	msg.Set(wire.FieldFileID, fileid)
	msg.Set(wire.FieldFilename, filename)
	msg.Set(wire.FieldFilesize, strconv.Itoa(size))
	msg.Set(wire.FieldToken, fileToken(peerUser))
	msg.Set(wire.FieldMessageID, wire.NewMessageID())
	return msg
}

func chunkMsg(fileid string, index, total int, data []byte) *wire.Message {
	msg := wire.New(wire.TypeFileChunk)
	msg.Set(wire.FieldFrom, peerUser)
	msg.Set(wire.FieldTo, localUser)
	msg.Set(wire.FieldFileID, fileid)
	msg.Set(wire.FieldChunkIndex, strconv.Itoa(index))
	msg.Set(wire.FieldTotalChunks, strconv.Itoa(total))
	msg.Set(wire.FieldChunkSize, strconv.Itoa(ChunkSize))
	msg.Set(wire.FieldData, base64.StdEncoding.EncodeToString(data))
	msg.Set(wire.FieldToken, fileToken(peerUser))
	msg.Set(wire.FieldMessageID, wire.NewMessageID())
	return msg
}

func TestReceiveFlow(t *testing.T) {
	rig := newTestRig(t)

	rig.mgr.HandleOffer(offerMsg("f1", "notes.txt", 10))
	require.True(t, rig.mgr.Accept("f1"))

	// Chunks arrive out of order.
	rig.mgr.HandleChunk(chunkMsg("f1", 1, 2, []byte("world")))
	rig.mgr.HandleChunk(chunkMsg("f1", 0, 2, []byte("hello ")))

	path := filepath.Join(rig.inbox, "bob", "notes.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Zero(t, rig.mgr.PendingCount())

	// Completion notifies the offerer.
	frames := rig.tx.frames()
	require.Len(t, frames, 1)
	recv := wire.Parse(frames[0].payload)
	assert.Equal(t, wire.TypeFileReceived, recv.Type())
	assert.Equal(t, "COMPLETE", recv.Get(wire.FieldStatus))
	assert.Equal(t, "f1", recv.Get(wire.FieldFileID))

	// The record is gone, a late duplicate chunk does nothing.
	rig.mgr.HandleChunk(chunkMsg("f1", 0, 2, []byte("hello ")))
	assert.Len(t, rig.tx.frames(), 1)
}

func TestChunksBeforeAcceptAreDropped(t *testing.T) {
	rig := newTestRig(t)

	rig.mgr.HandleOffer(offerMsg("f1", "a.bin", 4))
	rig.mgr.HandleChunk(chunkMsg("f1", 0, 2, []byte("ab")))

	require.True(t, rig.mgr.Accept("f1"))
	rig.mgr.HandleChunk(chunkMsg("f1", 1, 2, []byte("cd")))

	// Chunk 0 predates the accept, so the transfer is still incomplete.
	assert.Equal(t, 1, rig.mgr.PendingCount())
	assert.Empty(t, rig.tx.frames())

	rig.mgr.HandleChunk(chunkMsg("f1", 0, 2, []byte("ab")))
	assert.Zero(t, rig.mgr.PendingCount())
	data, err := os.ReadFile(filepath.Join(rig.inbox, "bob", "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))
}

func TestIgnoreDiscardsOffer(t *testing.T) {
	rig := newTestRig(t)

	rig.mgr.HandleOffer(offerMsg("f1", "a.bin", 4))
	require.True(t, rig.mgr.Ignore("f1"))
	assert.False(t, rig.mgr.Accept("f1"))
	assert.False(t, rig.mgr.Ignore("f1"))
}

func TestOfferBadTokenRejected(t *testing.T) {
	rig := newTestRig(t)

	msg := offerMsg("f1", "a.bin", 4)
	msg.Set(wire.FieldToken, token.Make(peerUser, 500, token.ScopeFile)) // expired
	rig.mgr.HandleOffer(msg)
	assert.Zero(t, rig.mgr.PendingCount())
}

func TestSendFileChunksWholePayload(t *testing.T) {
	rig := newTestRig(t)

	payload := bytes.Repeat([]byte("x"), 2*ChunkSize+5)
	src := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(src, payload, 0o644))

	fileid, err := rig.mgr.SendFile(peerUser, src)
	require.NoError(t, err)
	assert.Len(t, fileid, 8)

	frames := rig.tx.frames()
	require.Len(t, frames, 4) // offer + 3 chunks

	offer := wire.Parse(frames[0].payload)
	assert.Equal(t, wire.TypeFileOffer, offer.Type())
	assert.Equal(t, "big.bin", offer.Get(wire.FieldFilename))
	assert.Equal(t, strconv.Itoa(len(payload)), offer.Get(wire.FieldFilesize))

	var got []byte
	for _, fr := range frames[1:] {
		chunk := wire.Parse(fr.payload)
		assert.Equal(t, wire.TypeFileChunk, chunk.Type())
		assert.Equal(t, "3", chunk.Get(wire.FieldTotalChunks))
		assert.Equal(t, transport.DropFile, fr.class)
		data, err := base64.StdEncoding.DecodeString(chunk.Get(wire.FieldData))
		require.NoError(t, err)
		got = append(got, data...)
	}
	assert.Equal(t, payload, got)

	// Every tracked frame is outstanding until ACKed.
	assert.Equal(t, 4, rig.acks.PendingCount())
}

func TestSendFileMissing(t *testing.T) {
	rig := newTestRig(t)
	_, err := rig.mgr.SendFile(peerUser, filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)
}
