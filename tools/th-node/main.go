package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/telehash/gotelehash"
	"github.com/telehash/gotelehash/cipherset"
	_ "github.com/telehash/gotelehash/cipherset/cs1a"
	_ "github.com/telehash/gotelehash/cipherset/cs3a"
	"github.com/telehash/gotelehash/transports/mux"
	"github.com/telehash/gotelehash/transports/udp"
	"github.com/telehash/gotelehash/util/events"
	"github.com/telehash/gotelehash/util/logs"
)

const usage = `Telehash node.

Usage:
  th-node [options]
  th-node -h | --help
  th-node --version

Options:
  -i --identity=<file>    Identity file, created when missing. [default: identity.json]
  -p --passphrase=<pass>  Passphrase sealing the private key.
  -l --listen=<addr>      UDP address to listen on. [default: :42424]
  -s --seeds=<file>       JSON array of nodes to open on start.
  --seed-key=<file>       Public key of one more seed.
  --seed-addr=<addr>      UDP address of the --seed-key seed.
  --suite=<id>            Cipher set of a new identity, 1a or 3a. [default: 1a]
  --ping=<interval>       Ping all seeds at this interval. [default: 30s]
  --max-lines=<n>         Maximum number of lines. [default: 0]
  -h --help               Show this screen.
  --version               Show version.

The passphrase can also be set with TH_PASSPHRASE. The cipher set of an
existing identity is read from its file.
`

var log = logs.Module("th-node")

func main() {
	args, _ := docopt.Parse(usage, nil, true, "0.2-dev", false)

	var (
		path          = args["--identity"].(string)
		passphrase, _ = args["--passphrase"].(string)
		listen        = args["--listen"].(string)
		seedsPath, _  = args["--seeds"].(string)
		seedKey, _    = args["--seed-key"].(string)
		seedAddr, _   = args["--seed-addr"].(string)
		seeds         []*telehash.Node
	)

	if passphrase == "" {
		passphrase = os.Getenv("TH_PASSPHRASE")
	}

	interval, err := time.ParseDuration(args["--ping"].(string))
	assert(err)

	var maxLines int
	_, err = fmt.Sscanf(args["--max-lines"].(string), "%d", &maxLines)
	assert(err)

	ident, err := telehash.ReadIdentity(nil, path, passphrase)
	if os.IsNotExist(err) {
		var (
			id    uint8
			suite cipherset.Suite
		)
		_, err = fmt.Sscanf(args["--suite"].(string), "%x", &id)
		assert(err)
		suite, err = cipherset.Lookup(id)
		assert(err)

		ident, err = telehash.GenerateIdentity(suite)
		assert(err)
		assert(telehash.WriteIdentity(ident, path, passphrase))
		log.Infof("generated identity %s", ident.Hashname())
	}
	assert(err)

	suite := ident.Suite()

	if seedsPath != "" {
		seeds, err = telehash.ReadSeeds(suite, seedsPath)
		assert(err)
	}

	if seedKey != "" {
		seed, err := readSeed(suite, seedKey, seedAddr)
		assert(err)
		seeds = append(seeds, seed)
	}

	handlers := telehash.NewMux()
	handlers.HandleFallback(telehash.ChannelHandlerFuncs{
		Open: func(c *telehash.Channel) {
			log.Infof("refused %s from %s", c, c.Line().RemoteNode())
			c.Close()
		},
	})

	sw, err := telehash.NewSwitch(telehash.Config{
		Identity: ident,
		Transport: mux.Config{
			udp.Config{Network: udp.UDPv4, Addr: listen},
			udp.Config{Network: udp.UDPv6, Addr: listen},
		},
		Mux:      handlers,
		Seeds:    seeds,
		MaxLines: maxLines,
	})
	assert(err)

	evts := make(chan events.E, 128)
	sw.Subscribe(evts)
	go events.Log(logs.Module("events"), evts)

	assert(sw.Start())

	node, err := sw.LocalNode()
	assert(err)
	desc, err := json.MarshalIndent(node, "", "  ")
	assert(err)
	fmt.Fprintf(os.Stderr, "node:\n%s\n", desc)

	ctx, cancel := context.WithCancel(context.Background())
	if len(seeds) > 0 && interval > 0 {
		go pingLoop(ctx, sw, seeds, interval)
	}

	{ // wait
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		signal.Stop(sig)
	}

	cancel()
	log.Infof("stats: %s", sw.Stats())

	sw.Unsubscribe(evts)
	assert(sw.Stop())
	close(evts)
}

func readSeed(suite cipherset.Suite, keyPath, hostport string) (*telehash.Node, error) {
	if hostport == "" {
		return nil, errors.New("--seed-key needs --seed-addr")
	}

	pub, err := telehash.ReadPublicKey(suite, keyPath)
	if err != nil {
		return nil, err
	}

	addr, err := udp.ResolveAddr("udp", hostport)
	if err != nil {
		return nil, err
	}

	return telehash.NewNode(suite, pub, addr)
}

func pingLoop(ctx context.Context, sw *telehash.Switch, seeds []*telehash.Node, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, seed := range seeds {
			pctx, cancel := context.WithTimeout(ctx, interval)
			rtt, err := sw.Ping(pctx, seed)
			cancel()

			if err != nil {
				log.Warnf("ping %s: %s", seed, err)
			} else {
				log.Infof("ping %s: %s", seed, rtt)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func assert(err error) {
	if err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
}
