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

// Package game implements tic-tac-toe over unreliable datagrams. The wire is
// stateless, each peer keeps local state per GAMEID and deduplicates moves by
// (GAMEID, TURN).
package game

import (
	"errors"
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

// ErrUnknownPeer is returned when the target has no discovered endpoint.
var ErrUnknownPeer = errors.New("peer endpoint not yet discovered")

// winLines enumerates the eight winning cell triples.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// RenderBoard formats a 9-cell board for terminal display. Anything that is
// not X or O renders as an empty cell.
func RenderBoard(board string) string {
	cells := make([]byte, 9)
	for i := range cells {
		cells[i] = ' '
		if i < len(board) && (board[i] == 'X' || board[i] == 'O') {
			cells[i] = board[i]
		}
	}
	row := func(a, b, c int) string {
		return " " + string(cells[a]) + " | " + string(cells[b]) + " | " + string(cells[c]) + " "
	}
	sep := "\n-----------\n"
	return row(0, 1, 2) + sep + row(3, 4, 5) + sep + row(6, 7, 8)
}

// InviteEvent is posted when a peer invites the local user to a game.
type InviteEvent struct {
	From   string
	GameID string
	Symbol string
}

// BoardEvent is posted whenever a game board should be (re)drawn.
type BoardEvent struct {
	GameID string
	Board  string
}

// ResultEvent is posted when a TICTACTOE_RESULT arrives.
type ResultEvent struct {
	GameID      string
	Board       string
	Result      string
	Symbol      string
	WinningLine string
}

// sender is the slice of the transport the engine needs.
type sender interface {
	Unicast(ip string, port int, payload []byte, class transport.DropClass) error
}

// gameState is the local record for one GAMEID.
type gameState struct {
	board        [9]byte
	nextTurn     int
	lastTurnSeen int
	mySymbol     string
	oppSymbol    string
	opponent     string
}

func newGameState(mySymbol, oppSymbol, opponent string) *gameState {
	st := &gameState{nextTurn: 1, mySymbol: mySymbol, oppSymbol: oppSymbol, opponent: opponent}
	for i := range st.board {
		st.board[i] = ' '
	}
	return st
}

func (st *gameState) boardString() string { return string(st.board[:]) }

// Config holds the engine's identity and collaborators.
type Config struct {
	UserID   string
	TokenTTL time.Duration

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
	if cfg.Clock == nil {
		cfg.Clock = mclock.System{}
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

// Engine owns all local game state. All exported methods are safe for
// concurrent use; the dispatcher and the console both call in.
type Engine struct {
	cfg   Config
	clock mclock.Clock
	log   log.Logger

	mu    sync.Mutex
	games map[string]*gameState
}

// NewEngine creates a game engine.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:   cfg,
		clock: cfg.Clock,
		log:   cfg.Log,
		games: make(map[string]*gameState),
	}
}

// Invite sends a TICTACTOE_INVITE and tracks it for ACK. The inviter plays
// the given symbol; the local game record is created so incoming moves land
// on a board.
func (e *Engine) Invite(toUser, gameID, symbol string) error {
	symbol = normalizeSymbol(symbol, "X")
	opp := "O"
	if symbol == "O" {
		opp = "X"
	}

	msg := wire.New(wire.TypeGameInvite)
	msg.Set(wire.FieldFrom, e.cfg.UserID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldGameID, gameID)
	msg.Set(wire.FieldSymbol, symbol)
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(e.clock.Unix(), 10))
	msg.Set(wire.FieldToken, e.token())
	if err := e.sendTracked(toUser, msg); err != nil {
		return err
	}

	e.mu.Lock()
	e.games[gameID] = newGameState(symbol, opp, toUser)
	e.mu.Unlock()
	return nil
}

// Move sends a TICTACTOE_MOVE and tracks it for ACK. The caller supplies the
// turn number; the board is updated optimistically.
func (e *Engine) Move(toUser, gameID string, position, turn int, symbol string) error {
	if position < 0 || position > 8 {
		return errors.New("position out of range 0..8")
	}
	symbol = normalizeSymbol(symbol, "X")

	msg := wire.New(wire.TypeGameMove)
	msg.Set(wire.FieldFrom, e.cfg.UserID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldGameID, gameID)
	msg.Set(wire.FieldPosition, strconv.Itoa(position))
	msg.Set(wire.FieldSymbol, symbol)
	msg.Set(wire.FieldTurn, strconv.Itoa(turn))
	msg.Set(wire.FieldToken, e.token())
	if err := e.sendTracked(toUser, msg); err != nil {
		return err
	}

	e.mu.Lock()
	st, ok := e.games[gameID]
	if !ok {
		opp := "O"
		if symbol == "O" {
			opp = "X"
		}
		st = newGameState(symbol, opp, toUser)
		e.games[gameID] = st
	}
	if st.board[position] == ' ' {
		st.board[position] = symbol[0]
		st.nextTurn = turn + 1
	}
	board := st.boardString()
	e.mu.Unlock()

	e.post(BoardEvent{GameID: gameID, Board: board})
	return nil
}

// HandleInvite processes an incoming TICTACTOE_INVITE. The invite is accepted
// implicitly: a fresh board is created with the opposite symbol.
func (e *Engine) HandleInvite(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !e.cfg.Tokens.Validate(msg.Get(wire.FieldToken), token.ScopeGame, sender) {
		e.log.Debug("Dropping game invite with bad token", "from", sender)
		return
	}
	gid := msg.Get(wire.FieldGameID)
	symbol := normalizeSymbol(msg.Get(wire.FieldSymbol), "X")
	mySymbol := "O"
	if symbol == "O" {
		mySymbol = "X"
	}

	e.mu.Lock()
	e.games[gid] = newGameState(mySymbol, symbol, sender)
	e.mu.Unlock()

	e.post(InviteEvent{From: sender, GameID: gid, Symbol: symbol})
}

// HandleMove processes an incoming TICTACTOE_MOVE. An unknown GAMEID creates
// a game on the fly with the local player as O, covering invites lost on the
// wire. Replayed turns only redraw the board; out-of-range or occupied cells
// are ignored.
func (e *Engine) HandleMove(msg *wire.Message) {
	sender := msg.Get(wire.FieldFrom)
	if !e.cfg.Tokens.Validate(msg.Get(wire.FieldToken), token.ScopeGame, sender) {
		e.log.Debug("Dropping game move with bad token", "from", sender)
		return
	}
	gid := msg.Get(wire.FieldGameID)
	pos, _ := strconv.Atoi(msg.Get(wire.FieldPosition))
	sym := normalizeSymbol(msg.Get(wire.FieldSymbol), "X")
	turn, err := strconv.Atoi(msg.Get(wire.FieldTurn))
	if err != nil {
		turn = 1
	}

	e.mu.Lock()
	st, ok := e.games[gid]
	if !ok {
		st = newGameState("O", "X", sender)
		e.games[gid] = st
	}

	if turn <= st.lastTurnSeen {
		board := st.boardString()
		e.mu.Unlock()
		e.post(BoardEvent{GameID: gid, Board: board})
		return
	}
	if pos < 0 || pos > 8 || st.board[pos] == 'X' || st.board[pos] == 'O' {
		e.mu.Unlock()
		return
	}
	st.board[pos] = sym[0]
	st.lastTurnSeen = turn
	st.nextTurn = turn + 1
	board := st.boardString()
	e.mu.Unlock()

	e.post(BoardEvent{GameID: gid, Board: board})

	if result, line := boardResult(board); result != "" {
		e.sendResult(sender, gid, result, sym, line)
	}
}

// HandleResult processes an incoming TICTACTOE_RESULT. Results are
// informational, they carry no token and are not ACKed.
func (e *Engine) HandleResult(msg *wire.Message) {
	gid := msg.Get(wire.FieldGameID)
	board := strings.Repeat(" ", 9)
	e.mu.Lock()
	if st, ok := e.games[gid]; ok {
		board = st.boardString()
	}
	e.mu.Unlock()

	e.post(ResultEvent{
		GameID:      gid,
		Board:       board,
		Result:      strings.ToUpper(msg.Get(wire.FieldResult)),
		Symbol:      msg.Get(wire.FieldSymbol),
		WinningLine: msg.Get(wire.FieldWinningLine),
	})
}

// Board returns the current board string for a game.
func (e *Engine) Board(gameID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.games[gameID]
	if !ok {
		return "", false
	}
	return st.boardString(), true
}

// NextTurn returns the next turn number for a game, defaulting to 1.
func (e *Engine) NextTurn(gameID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.games[gameID]; ok {
		return st.nextTurn
	}
	return 1
}

func (e *Engine) token() string {
	expiry := e.clock.Unix() + int64(e.cfg.TokenTTL/time.Second)
	return token.Make(e.cfg.UserID, expiry, token.ScopeGame)
}

// sendTracked serializes msg, sends it with the game drop class and registers
// a resender so retries carry the identical frame.
func (e *Engine) sendTracked(toUser string, msg *wire.Message) error {
	ip, port := e.cfg.Peers.Endpoint(toUser)
	if ip == "" || port == 0 {
		return ErrUnknownPeer
	}
	if msg.Get(wire.FieldMessageID) == "" {
		msg.Set(wire.FieldMessageID, wire.NewMessageID())
	}
	mid := msg.Get(wire.FieldMessageID)
	raw := msg.Encode()

	e.cfg.Acks.Track(mid, ack.ResendFunc(func() {
		if err := e.cfg.Transport.Unicast(ip, port, raw, transport.DropGame); err != nil {
			e.log.Error("Game resend failed", "id", mid, "err", err)
		}
	}))
	return e.cfg.Transport.Unicast(ip, port, raw, transport.DropGame)
}

// sendResult emits a TICTACTOE_RESULT, fire and forget.
func (e *Engine) sendResult(toUser, gid, result, symbol, line string) {
	ip, port := e.cfg.Peers.Endpoint(toUser)
	if ip == "" || port == 0 {
		return
	}
	msg := wire.New(wire.TypeGameResult)
	msg.Set(wire.FieldFrom, e.cfg.UserID)
	msg.Set(wire.FieldTo, toUser)
	msg.Set(wire.FieldGameID, gid)
	msg.Set(wire.FieldResult, result)
	msg.Set(wire.FieldSymbol, symbol)
	msg.Set(wire.FieldWinningLine, line)
	msg.Set(wire.FieldTimestamp, strconv.FormatInt(e.clock.Unix(), 10))
	msg.Set(wire.FieldMessageID, wire.NewMessageID())
	if err := e.cfg.Transport.Unicast(ip, port, msg.Encode(), transport.DropGame); err != nil {
		e.log.Error("Result send failed", "game", gid, "err", err)
	}
}

func (e *Engine) post(ev interface{}) {
	if e.cfg.Mux != nil {
		e.cfg.Mux.Post(ev)
	}
}

// boardResult scans for a finished game. It returns "WIN" with the winning
// cell triple, "DRAW" when the board is full, or "".
func boardResult(board string) (string, string) {
	for _, l := range winLines {
		a, b, c := board[l[0]], board[l[1]], board[l[2]]
		if a != ' ' && a == b && b == c {
			return "WIN", strconv.Itoa(l[0]) + "," + strconv.Itoa(l[1]) + "," + strconv.Itoa(l[2])
		}
	}
	if !strings.Contains(board, " ") {
		return "DRAW", ""
	}
	return "", ""
}

func normalizeSymbol(s, fallback string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s != "X" && s != "O" {
		return fallback
	}
	return s
}
