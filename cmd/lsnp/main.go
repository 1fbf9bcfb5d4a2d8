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

// lsnp is the command line LSNP peer: it joins the local segment, announces
// presence and drops into an interactive console.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/lsnp/go-lsnp/log"
	"github.com/lsnp/go-lsnp/lsnp"
	"github.com/lsnp/go-lsnp/lsnp/transport"
)

var (
	portFlag = cli.IntFlag{
		Name:  "port",
		Usage: "UDP listen port",
		Value: transport.DefaultPort,
	}
	nameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "display name (default: random Peer_NNNN)",
	}
	ttlFlag = cli.IntFlag{
		Name:  "ttl",
		Usage: "token validity in seconds",
		Value: 3600,
	}
	lossFlag = cli.Float64Flag{
		Name:  "loss",
		Usage: "induced packet loss probability (0..1) for game/file traffic",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "trace every frame on the wire",
	}
	loopbackFlag = cli.BoolFlag{
		Name:  "loopback",
		Usage: "single-machine testing, identity uses 127.0.0.1",
	}
)

func main() {
	// glog checks flag.Parsed on every write; urfave/cli never touches the
	// standard flag set, so parse it empty here.
	flag.CommandLine.Parse(nil)

	app := cli.NewApp()
	app.Name = "lsnp"
	app.Usage = "local social networking protocol peer"
	app.Flags = []cli.Flag{portFlag, nameFlag, ttlFlag, lossFlag, verboseFlag, loopbackFlag}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.Bool(verboseFlag.Name) {
		log.SetVerbosity(log.LvlTrace)
	}

	peer, err := lsnp.NewPeer(lsnp.Config{
		Port:        ctx.Int(portFlag.Name),
		DisplayName: ctx.String(nameFlag.Name),
		TokenTTL:    time.Duration(ctx.Int(ttlFlag.Name)) * time.Second,
		LossProb:    ctx.Float64(lossFlag.Name),
		Loopback:    ctx.Bool(loopbackFlag.Name),
	})
	if err != nil {
		return err
	}
	peer.Start()
	defer peer.Stop()

	return newConsole(peer).run()
}
