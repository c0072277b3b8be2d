// Kung Fu Chess server - real-time chess without turns.
package main

import (
	"context"
	"os"

	"github.com/hailam/kungfuchess/internal/config"
	"github.com/hailam/kungfuchess/internal/lobby"
	"github.com/hailam/kungfuchess/internal/logging"
	"github.com/hailam/kungfuchess/internal/server"
	"github.com/hailam/kungfuchess/internal/session"
	"github.com/hailam/kungfuchess/internal/storage"
)

func main() {
	log := logging.GetLog("main")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	var store *storage.Storage
	if cfg.DataDir != "" {
		store, err = storage.Open(cfg.DataDir)
	} else {
		store, err = storage.NewStorage()
	}
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	lobbies := lobby.NewManager(store, cfg.LobbyGrace())
	if err := lobbies.Restore(); err != nil {
		log.Warningf("lobby restore: %v", err)
	}
	sessions := session.NewManager(cfg.TickRateHz)

	srv := server.New(cfg, sessions, lobbies, store)
	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("server: %v", err)
	}
}
