// Copyright 2025 The go-lsnp Authors
// This file is part of go-lsnp.
//
// go-lsnp is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-lsnp is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-lsnp. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/lsnp/go-lsnp/lsnp"
	"github.com/lsnp/go-lsnp/lsnp/filetransfer"
	"github.com/lsnp/go-lsnp/lsnp/game"
)

var (
	headline = color.New(color.FgCyan, color.Bold)
	goodText = color.New(color.FgGreen)
	warnText = color.New(color.FgYellow)
	dimText  = color.New(color.Faint)
)

// console is the interactive command loop wrapped around a running peer.
type console struct {
	peer *lsnp.Peer
	out  io.Writer
	cmds map[string]func(args string)
}

func newConsole(peer *lsnp.Peer) *console {
	c := &console{peer: peer, out: colorable.NewColorableStdout()}
	c.cmds = map[string]func(string){
		"peers":        c.cmdPeers,
		"post":         c.cmdPost,
		"dm":           c.cmdDM,
		"follow":       c.cmdFollow,
		"unfollow":     c.cmdUnfollow,
		"like":         c.cmdLike,
		"group_create": c.cmdGroupCreate,
		"group_update": c.cmdGroupUpdate,
		"group_msg":    c.cmdGroupMsg,
		"file_send":    c.cmdFileSend,
		"accept":       c.cmdAccept,
		"ignore":       c.cmdIgnore,
		"revoke":       c.cmdRevoke,
		"ttt_invite":   c.cmdGameInvite,
		"ttt_move":     c.cmdGameMove,
		"verbose":      c.cmdVerbose,
		"help":         c.cmdHelp,
	}
	return c
}

// run blocks on the prompt until quit or EOF. Incoming display events print
// concurrently from the subscription goroutine.
func (c *console) run() error {
	sub := c.peer.Subscribe(
		lsnp.ProfileEvent{}, lsnp.DMEvent{}, lsnp.PostEvent{}, lsnp.FollowEvent{},
		lsnp.LikeEvent{}, lsnp.GroupCreateEvent{}, lsnp.GroupUpdateEvent{},
		lsnp.GroupMessageEvent{}, filetransfer.OfferEvent{}, filetransfer.SavedEvent{},
		game.InviteEvent{}, game.BoardEvent{}, game.ResultEvent{},
	)
	defer sub.Unsubscribe()
	go func() {
		for ev := range sub.Chan() {
			c.display(ev)
		}
	}()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) (res []string) {
		for name := range c.cmds {
			if strings.HasPrefix(name, strings.ToLower(l)) {
				res = append(res, name)
			}
		}
		sort.Strings(res)
		return res
	})

	headline.Fprintf(c.out, "LSNP peer %s listening on port %d\n", c.peer.UserID(), c.peer.ListenPort())
	dimText.Fprintln(c.out, `Type "help" for commands.`)

	for {
		input, err := line.Prompt("lsnp> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		name, args := splitCommand(input)
		if name == "exit" || name == "quit" {
			return nil
		}
		cmd, ok := c.cmds[name]
		if !ok {
			warnText.Fprintf(c.out, "Unknown command %q, try help\n", name)
			continue
		}
		cmd(args)
	}
}

func splitCommand(input string) (string, string) {
	name, rest, _ := strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// display renders one protocol event.
func (c *console) display(ev interface{}) {
	switch e := ev.(type) {
	case lsnp.ProfileEvent:
		dimText.Fprintf(c.out, "\n[%s] %s\n", e.DisplayName, e.Status)
	case lsnp.DMEvent:
		headline.Fprintln(c.out, "\nDIRECT MESSAGE")
		fmt.Fprintf(c.out, "From: %s (%s)\n%s\n", e.FromDisplay, e.From, e.Content)
	case lsnp.PostEvent:
		headline.Fprintln(c.out, "\nPOST")
		fmt.Fprintf(c.out, "From: %s (%s)\n%s\n", e.FromDisplay, e.From, e.Content)
	case lsnp.FollowEvent:
		if e.Followed {
			goodText.Fprintf(c.out, "\n%s followed you\n", localName(e.From))
		} else {
			warnText.Fprintf(c.out, "\n%s unfollowed you\n", localName(e.From))
		}
	case lsnp.LikeEvent:
		if e.Action == "LIKE" {
			goodText.Fprintf(c.out, "\n%s likes your post [%s]\n", localName(e.From), e.PostTS)
		} else {
			warnText.Fprintf(c.out, "\n%s unliked your post [%s]\n", localName(e.From), e.PostTS)
		}
	case lsnp.GroupCreateEvent:
		goodText.Fprintf(c.out, "\nAdded to group %q (id=%s) by %s. Members: %s\n",
			e.Name, e.GroupID, localName(e.By), strings.Join(e.Members, ", "))
	case lsnp.GroupUpdateEvent:
		dimText.Fprintf(c.out, "\nThe group %q member list was updated.\n", e.Name)
	case lsnp.GroupMessageEvent:
		fmt.Fprintf(c.out, "\n[%s] %s: %s\n", e.GroupName, localName(e.From), e.Content)
	case filetransfer.OfferEvent:
		warnText.Fprintf(c.out, "\nUser %s is sending you a file (%s, %d bytes), do you accept? Use: accept %s\n",
			localName(e.From), e.Filename, e.Filesize, e.FileID)
	case filetransfer.SavedEvent:
		goodText.Fprintf(c.out, "\nFile saved to %s\n", e.Path)
	case game.InviteEvent:
		headline.Fprintf(c.out, "\n%s is inviting you to play tic-tac-toe (game %s, they are %s).\n",
			localName(e.From), e.GameID, e.Symbol)
	case game.BoardEvent:
		fmt.Fprintf(c.out, "\n%s\n", game.RenderBoard(e.Board))
	case game.ResultEvent:
		fmt.Fprintf(c.out, "\n%s\n", game.RenderBoard(e.Board))
		if e.Result != "" {
			extra := ""
			if e.WinningLine != "" {
				extra = fmt.Sprintf(" (line %s)", e.WinningLine)
			}
			headline.Fprintf(c.out, "Game %s: %s by %s%s\n", e.GameID, e.Result, e.Symbol, extra)
		}
	}
}

func (c *console) cmdPeers(string) {
	list := c.peer.Peers()
	if len(list) == 0 {
		dimText.Fprintln(c.out, "No peers discovered yet.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Name", "User ID", "Endpoint", "Status"})
	for _, p := range list {
		table.Append([]string{p.DisplayName, p.UserID, fmt.Sprintf("%s:%d", p.Address, p.Port), p.Status})
	}
	table.Render()
}

func (c *console) cmdPost(args string) {
	if args == "" {
		c.usage("post <message>")
		return
	}
	if err := c.peer.Post(args); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintln(c.out, "Post sent.")
}

func (c *console) cmdDM(args string) {
	to, content, ok := strings.Cut(args, " ")
	if !ok {
		c.usage("dm <user_id> <message>")
		return
	}
	if err := c.peer.DM(to, content); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintf(c.out, "DM sent to %s.\n", to)
}

func (c *console) cmdFollow(args string) {
	if args == "" {
		c.usage("follow <user_id>")
		return
	}
	if err := c.peer.Follow(args); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintf(c.out, "Follow sent to %s.\n", args)
}

func (c *console) cmdUnfollow(args string) {
	if args == "" {
		c.usage("unfollow <user_id>")
		return
	}
	if err := c.peer.Unfollow(args); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintf(c.out, "Unfollow sent to %s.\n", args)
}

func (c *console) cmdLike(args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		c.usage("like <user_id> <post_timestamp> [UNLIKE]")
		return
	}
	action := "LIKE"
	if len(parts) > 2 {
		action = parts[2]
	}
	if err := c.peer.Like(parts[0], parts[1], action); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintf(c.out, "%s sent to %s for post %s.\n", strings.ToUpper(action), parts[0], parts[1])
}

func (c *console) cmdGroupCreate(args string) {
	gid, rest, ok := strings.Cut(args, " ")
	if !ok {
		c.usage(`group_create <group_id> "<group name>" member1,member2`)
		return
	}
	name, memberList := gid, rest
	if strings.HasPrefix(strings.TrimSpace(rest), `"`) {
		parts := strings.SplitN(rest, `"`, 3)
		if len(parts) < 3 {
			c.usage(`group_create <group_id> "<group name>" member1,member2`)
			return
		}
		name, memberList = parts[1], strings.TrimSpace(parts[2])
	}
	members := splitList(memberList)
	if err := c.peer.GroupCreate(gid, name, members); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintf(c.out, "Group %q created and members notified.\n", name)
}

func (c *console) cmdGroupUpdate(args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		c.usage("group_update <group_id> add=a,b remove=c")
		return
	}
	var add, remove []string
	for _, p := range parts[1:] {
		switch {
		case strings.HasPrefix(p, "add="):
			add = splitList(strings.TrimPrefix(p, "add="))
		case strings.HasPrefix(p, "remove="):
			remove = splitList(strings.TrimPrefix(p, "remove="))
		}
	}
	if err := c.peer.GroupUpdate(parts[0], add, remove); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintln(c.out, "Group member list updated.")
}

func (c *console) cmdGroupMsg(args string) {
	gid, content, ok := strings.Cut(args, " ")
	if !ok {
		c.usage("group_msg <group_id> <message>")
		return
	}
	if err := c.peer.GroupMessage(gid, content); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintln(c.out, "Group message delivered (UDP best effort).")
}

func (c *console) cmdFileSend(args string) {
	to, path, ok := strings.Cut(args, " ")
	if !ok {
		c.usage("file_send <user_id> <path>")
		return
	}
	fileid, err := c.peer.SendFile(to, path)
	if err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintf(c.out, "File offered to %s (id=%s).\n", to, fileid)
}

func (c *console) cmdAccept(args string) {
	if args == "" {
		c.usage("accept <fileid>")
		return
	}
	if !c.peer.AcceptFile(args) {
		warnText.Fprintf(c.out, "No pending file %s.\n", args)
		return
	}
	goodText.Fprintf(c.out, "Accepted file %s.\n", args)
}

func (c *console) cmdIgnore(args string) {
	if args == "" {
		c.usage("ignore <fileid>")
		return
	}
	if !c.peer.IgnoreFile(args) {
		warnText.Fprintf(c.out, "No pending file %s.\n", args)
		return
	}
	goodText.Fprintf(c.out, "Ignored file %s.\n", args)
}

func (c *console) cmdRevoke(args string) {
	if args == "" {
		c.usage("revoke <token>")
		return
	}
	if err := c.peer.Revoke(args); err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintln(c.out, "Token revoked.")
}

func (c *console) cmdGameInvite(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		c.usage("ttt_invite <user_id> [X|O] [gameid]")
		return
	}
	symbol, gameID := "X", ""
	if len(parts) > 1 {
		symbol = parts[1]
	}
	if len(parts) > 2 {
		gameID = parts[2]
	}
	gid, err := c.peer.GameInvite(parts[0], gameID, symbol)
	if err != nil {
		c.fail(err)
		return
	}
	goodText.Fprintf(c.out, "Invited %s to game %s.\n", parts[0], gid)
}

func (c *console) cmdGameMove(args string) {
	parts := strings.Fields(args)
	if len(parts) < 5 {
		c.usage("ttt_move <user_id> <gameid> <position> <turn> <symbol>")
		return
	}
	pos, err1 := strconv.Atoi(parts[2])
	turn, err2 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil {
		c.usage("ttt_move <user_id> <gameid> <position> <turn> <symbol>")
		return
	}
	if err := c.peer.GameMove(parts[0], parts[1], pos, turn, parts[4]); err != nil {
		c.fail(err)
		return
	}
	if board, ok := c.peer.Board(parts[1]); ok {
		fmt.Fprintln(c.out, game.RenderBoard(board))
	}
}

func (c *console) cmdVerbose(args string) {
	on := false
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "1", "on", "true", "yes":
		on = true
	}
	c.peer.SetVerbose(on)
	dimText.Fprintf(c.out, "Verbose set to %v.\n", on)
}

func (c *console) cmdHelp(string) {
	rows := [][2]string{
		{"peers", "List known peers"},
		{"post <message>", "Broadcast a post to followers"},
		{"dm <user_id> <message>", "Send a direct message"},
		{"follow <user_id>", "Follow a user"},
		{"unfollow <user_id>", "Unfollow a user"},
		{"like <user_id> <post_ts> [UNLIKE]", "Like or unlike a post"},
		{`group_create <id> "<name>" a,b`, "Create a group"},
		{"group_update <id> add=a,b remove=c", "Modify group members"},
		{"group_msg <id> <text>", "Send a group message"},
		{"file_send <user_id> <path>", "Send a file"},
		{"accept <fileid>", "Accept an incoming file"},
		{"ignore <fileid>", "Ignore an incoming file"},
		{"revoke <token>", "Revoke a token"},
		{"ttt_invite <user> [X|O] [gameid]", "Invite to tic-tac-toe"},
		{"ttt_move <user> <gid> <pos> <turn> <sym>", "Make a move"},
		{"verbose <on|off>", "Toggle wire tracing"},
		{"help", "Show this help"},
		{"exit / quit", "Quit"},
	}
	w := 0
	for _, r := range rows {
		if len(r[0]) > w {
			w = len(r[0])
		}
	}
	headline.Fprintln(c.out, "\nCommands:")
	for _, r := range rows {
		fmt.Fprintf(c.out, "  %-*s  %s\n", w, r[0], r[1])
	}
}

func (c *console) usage(u string) {
	warnText.Fprintf(c.out, "Usage: %s\n", u)
}

func (c *console) fail(err error) {
	warnText.Fprintln(c.out, err.Error())
}

func localName(uid string) string {
	name, _, _ := strings.Cut(uid, "@")
	return name
}

func splitList(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
