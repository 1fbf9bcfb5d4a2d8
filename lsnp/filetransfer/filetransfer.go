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

// Package filetransfer moves files between peers as base64 chunks inside
// FILE_CHUNK frames. Offers require an explicit accept before chunks are
// stored; completed files land under the inbox directory.
package filetransfer

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lsnp/go-lsnp/common/mclock"
	"github.com/lsnp/go-lsnp/event"
	"github.com/lsnp/go-lsnp/log"
	"github.com/lsnp/go-lsnp/lsnp/ack"
	"github.com/lsnp/go-lsnp/lsnp/peers"
	"github.com/lsnp/go-lsnp/lsnp/token"
	"github.com/lsnp/go-lsnp/lsnp/transport"
	"github.com/lsnp/go-lsnp/lsnp/wire"
)

// ChunkSize keeps each FILE_CHUNK datagram comfortably under a 1500-byte MTU
// after base64 expansion and headers.
const ChunkSize = 1200

// FallbackDir is searched when the path given to SendFile does not exist.
const FallbackDir = "client-files"

const (
	defaultFiletype    = "application/octet-stream"
	defaultDescription = "File via LSNP"
)

// ErrUnknownPeer is returned when the target has no discovered endpoint.
var ErrUnknownPeer = errors.New("peer endpoint not yet discovered")

// OfferEvent is posted when a peer offers a file.
type OfferEvent struct {
	From     string
	FileID   string
	Filename string
	Filesize int64
}

// SavedEvent is posted when all chunks arrived and the file hit disk.
type SavedEvent struct {
	From   string
	FileID string
	Path   string
}

type sender interface {
	Unicast(ip string, port int, payload []byte, class transport.DropClass) error
}

// inbound is the receive-side record for one FILEID. It exists from the
// offer until the assembled file is written or the offer is ignored.
type inbound struct {
	accepted bool
	writing  bool
	chunks   map[int][]byte
	total    int
	filename string
	sender   string
}

// Config holds the transfer manager's identity and collaborators.
type Config struct {
	UserID   string
	TokenTTL time.Duration
	InboxDir string

	Transport sender
	Peers     *peers.Directory
	Acks      *ack.Manager
	Tokens    *token.Service
	Mux       *event.TypeMux

	Clock mclock.Clock
	Log   log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.InboxDir == "" {
		cfg.InboxDir = "inbox"
	}
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

// Manager owns both directions of file transfer state.
type Manager struct {
	cfg   Config
	clock mclock.Clock
	log   log.Logger

	mu sync.Mutex
	rx map[string]*inbound
}

// NewManager creates a file transfer manager.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:   cfg,
		clock: cfg.Clock,
		log:   cfg.Log,
		rx:    make(map[string]*inbound),
	}
}

// SendFile offers and streams a local file to a peer. A path that does not
// exist is retried under the client-files directory. The generated FILEID is
// returned.
func (m *Manager) SendFile(toUser, path string) (string, error) {
	path = strings.Trim(strings.TrimSpace(path), `"'`)
	if _, err := os.Stat(path); err != nil {
		alt := filepath.Join(FallbackDir, filepath.Base(path))
		if _, err2 := os.Stat(alt); err2 != nil {
			return "", err
		}
		path = alt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	fileid := wire.NewShortID()
	fname := filepath.Base(path)
	if err := m.SendOffer(toUser, fileid, fname, int64(len(data)), defaultFiletype, defaultDescription); err != nil {
		return "", err
	}

	total := (len(data) + ChunkSize - 1) / ChunkSize
	if total == 0 {
		total = 1
	}
	for i := 0; i < total; i++ {
		end := (i + 1) * ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := m.SendChunk(toUser, fileid, i, total, data[i*ChunkSize:end]); err != nil {
			return "", err
		}
	}
	return fileid, nil
}

// SendOffer sends a FILE_OFFER and tracks it for ACK.
func (m *Manager) SendOffer(toUser, fileid, filename string, filesize int64, filetype, description string) error {
	msg := wire.New(wire.TypeFileOffer)
	msg.Set(wire.FieldFrom, m.cfg.UserID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldFilename, filename)
	msg.Set(wire.FieldFilesize, strconv.FormatInt(filesize, 10))
	msg.Set(wire.FieldFiletype, filetype)
	msg.Set(wire.FieldFileID, fileid)
	msg.Set(wire.FieldDescription, description)
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(m.clock.Unix(), 10))
	msg.Set(wire.FieldToken, m.token())
	return m.sendTracked(toUser, msg)
}

// SendChunk sends one FILE_CHUNK and tracks it for ACK.
func (m *Manager) SendChunk(toUser, fileid string, index, total int, chunk []byte) error {
	msg := wire.New(wire.TypeFileChunk)
	msg.Set(wire.FieldFrom, m.cfg.UserID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldFileID, fileid)
	msg.Set(wire.FieldChunkIndex, strconv.Itoa(index))
	msg.Set(wire.FieldTotalChunks, strconv.Itoa(total))
	msg.Set(wire.FieldChunkSize, strconv.Itoa(ChunkSize))
	msg.Set(wire.FieldData, base64.StdEncoding.EncodeToString(chunk))
	msg.Set(wire.FieldToken, m.token())
	return m.sendTracked(toUser, msg)
}

// HandleOffer processes an incoming FILE_OFFER. The record starts
// unaccepted, chunks are discarded until Accept.
func (m *Manager) HandleOffer(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !m.cfg.Tokens.Validate(msg.Get(wire.FieldToken), token.ScopeFile, sender) {
		m.log.Debug("Dropping file offer with bad token", "from", sender)
		return
	}
	fileid := msg.Get(wire.FieldFileID)
	filename := msg.Get(wire.FieldFilename)
	if filename == "" {
		filename = "received.bin"
	}

	m.mu.Lock()
	m.rx[fileid] = &inbound{
		chunks:   make(map[int][]byte),
		filename: filename,
		sender:   sender,
	}
	m.mu.Unlock()

	size, _ := strconv.ParseInt(msg.Get(wire.FieldFilesize), 10, 64)
	m.post(OfferEvent{From: sender, FileID: fileid, Filename: filename, Filesize: size})
}

// Accept marks a pending offer so its chunks are stored. It reports whether
// the FILEID was known.
func (m *Manager) Accept(fileid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rx[fileid]
	if !ok {
		return false
	}
	st.accepted = true
	return true
}

// Ignore discards a pending offer. Chunks already buffered are dropped.
func (m *Manager) Ignore(fileid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rx[fileid]; !ok {
		return false
	}
	delete(m.rx, fileid)
	return true
}

// HandleChunk processes an incoming FILE_CHUNK. Chunks for unknown or
// unaccepted FILEIDs are dropped silently. When the last chunk lands, the
// file is assembled exactly once, written to the inbox and announced with
// FILE_RECEIVED.
func (m *Manager) HandleChunk(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !m.cfg.Tokens.Validate(msg.Get(wire.FieldToken), token.ScopeFile, sender) {
		m.log.Debug("Dropping file chunk with bad token", "from", sender)
		return
	}
	fileid := msg.Get(wire.FieldFileID)

	m.mu.Lock()
	st, ok := m.rx[fileid]
	if !ok || !st.accepted {
		m.mu.Unlock()
		return
	}
	idx, _ := strconv.Atoi(msg.Get(wire.FieldChunkIndex))
	total, err := strconv.Atoi(msg.Get(wire.FieldTotalChunks))
	if err != nil || total < 1 {
		total = 1
	}
	data, err := base64.StdEncoding.DecodeString(msg.Get(wire.FieldData))
	if err != nil {
		m.mu.Unlock()
		return
	}
	st.chunks[idx] = data
	st.total = total

	if st.writing || !st.complete() {
		m.mu.Unlock()
		return
	}
	st.writing = true
	out := make([]byte, 0)
	for i := 0; i < st.total; i++ {
		out = append(out, st.chunks[i]...)
	}
	filename := filepath.Base(st.filename)
	from := st.sender
	m.mu.Unlock()

	// The record is kept across write failures so a later retransmit can
	// complete the file.
	path, err := m.writeInbox(from, filename, out)
	m.mu.Lock()
	if err != nil {
		st.writing = false
		m.mu.Unlock()
		m.log.Warn("Writing received file failed", "file", fileid, "err", err)
		return
	}
	delete(m.rx, fileid)
	m.mu.Unlock()

	m.sendReceived(from, fileid)
	m.post(SavedEvent{From: from, FileID: fileid, Path: path})
}

// PendingCount returns the number of in-flight inbound offers.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

// complete reports whether every chunk index 0..total-1 has arrived.
func (st *inbound) complete() bool {
	if st.total < 1 || len(st.chunks) < st.total {
		return false
	}
	for i := 0; i < st.total; i++ {
		if _, ok := st.chunks[i]; !ok {
			return false
		}
	}
	return true
}

func (m *Manager) token() string {
	expiry := m.clock.Unix() + int64(m.cfg.TokenTTL/time.Second)
	return token.Make(m.cfg.UserID, expiry, token.ScopeFile)
}

func (m *Manager) sendTracked(toUser string, msg *wire.Message) error {
	ip, port := m.cfg.Peers.Endpoint(toUser)
	if ip == "" || port == 0 {
		return ErrUnknownPeer
	}
	if msg.Get(wire.FieldMessageID) == "" {
		msg.Set(wire.FieldMessageID, wire.NewMessageID())
	}
	mid := msg.Get(wire.FieldMessageID)
	raw := msg.Encode()

	m.cfg.Acks.Track(mid, ack.ResendFunc(func() {
		if err := m.cfg.Transport.Unicast(ip, port, raw, transport.DropFile); err != nil {
			m.log.Error("File resend failed", "id", mid, "err", err)
		}
	}))
	return m.cfg.Transport.Unicast(ip, port, raw, transport.DropFile)
}

// writeInbox stores an assembled file under inbox/<sender>/ and returns the
// final path.
func (m *Manager) writeInbox(from, filename string, data []byte) (string, error) {
	dir := filepath.Join(m.cfg.InboxDir, senderDir(from))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// sendReceived notifies the offerer of completion, fire and forget.
func (m *Manager) sendReceived(toUser, fileid string) {
	ip, port := m.cfg.Peers.Endpoint(toUser)
	if ip == "" || port == 0 {
		return
	}
	msg := wire.New(wire.TypeFileReceived)
	msg.Set(wire.FieldFrom, m.cfg.UserID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldFileID, fileid)
	msg.Set(wire.FieldStatus, "COMPLETE")
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(m.clock.Unix(), 10))
	if err := m.cfg.Transport.Unicast(ip, port, msg.Encode(), transport.DropFile); err != nil {
		m.log.Error("FILE_RECEIVED send failed", "file", fileid, "err", err)
	}
}

func (m *Manager) post(ev interface{}) {
	if m.cfg.Mux != nil {
		m.cfg.Mux.Post(ev)
	}
}

// senderDir maps a user identifier to its inbox subdirectory.
func senderDir(uid string) string {
	name := wire.LocalName(uid)
	if name == "" {
		return "unknown"
	}
	return name
}
