package main

import (
	"log/slog"
	"os"

	"github.com/df-mc/dragonfly/server/player/chat"
	"github.com/smell-of-curry/pokebedrock-kits/openkits"
)

// init ...
func init() {
	chat.Global.Subscribe(chat.StdoutSubscriber{})
}

// main ...
func main() {
	conf, err := openkits.ReadConfig()
	if err != nil {
		panic(err)
	}

	level, err := openkits.ParseLogLevel(conf.OpenKits.LogLevel)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if err != nil {
		log.Warn("invalid log level, using info", "level", conf.OpenKits.LogLevel)
	}
	slog.SetDefault(log)

	kits, err := openkits.NewOpenKits(log, conf)
	if err != nil {
		panic(err)
	}

	kits.Start()
}
