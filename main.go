package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Hubmakerlabs/bridgr/app"
	"github.com/Hubmakerlabs/bridgr/pkg/interrupt"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
	"github.com/Hubmakerlabs/bridgr/pkg/slog"
	"github.com/alexflint/go-arg"
)

var (
	AppName = "bridgr"
	Version = "v0.0.1"
)

var args, conf app.Config

func main() {
	var log, chk = slog.New(os.Stderr)
	arg.MustParse(&args)
	if !slog.SetLogLevelString(args.LogLevel) {
		log.W.F("unknown log level '%s'", args.LogLevel)
	}
	log.T.S(args)
	var dataDirBase string
	var err error
	if dataDirBase, err = os.UserHomeDir(); log.E.Chk(err) {
		os.Exit(1)
	}
	dataDir := filepath.Join(dataDirBase, args.Profile)
	log.D.F("using profile directory: %s", dataDir)
	configPath := filepath.Join(dataDir, "config.json")
	if args.InitCfgCmd != nil {
		if len(args.Relays) == 0 {
			args.Relays = append([]string(nil), app.DefaultRelays...)
		}
		if err = os.MkdirAll(dataDir, 0700); chk.E(err) {
			os.Exit(1)
		}
		if err = args.Save(configPath); chk.E(err) {
			log.E.F("failed to write configuration: '%s'", err)
			os.Exit(1)
		}
		log.I.Ln("configuration written to", configPath)
		return
	}
	if err = conf.Load(configPath); err != nil {
		log.D.F("no configuration loaded: '%s'", err)
	} else {
		// if fields are empty, fill them in from the config file
		args.Merge(&conf)
	}
	if len(args.Relays) == 0 {
		args.Relays = append([]string(nil), app.DefaultRelays...)
	}
	if args.DataDir == "" {
		args.DataDir = filepath.Join(dataDir, "events")
	}
	if err = args.Validate(); chk.E(err) {
		os.Exit(1)
	}
	log.I.F("%s %s starting with %d relays", AppName, Version,
		len(args.Relays))
	c, cancel := context.WithCancel(context.Background())
	interrupt.AddHandler(cancel)
	err = app.Serve(c, &args, os.Stdin, os.Stdout, app.BadgerStore(&args),
		app.PoolTransport(relay.Options{RedialInterval: args.RedialInterval}))
	if interrupt.Requested() {
		log.I.Ln("stopped by signal")
	}
	// the engine may have stopped on its own, run the handlers either way
	interrupt.Request()
	<-interrupt.HandlersDone
	if chk.E(err) {
		os.Exit(1)
	}
}
