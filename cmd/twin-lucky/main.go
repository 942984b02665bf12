// twin-lucky simulates the Lucky Lubricants loyalty REST API so the client can
// be developed and tested without the production backend.
//
// Integration method: point LUCKY_API_URL at http://localhost:<port>/api
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"github.com/luckylubricants/rewards/internal/twin/api"
	"github.com/luckylubricants/rewards/internal/twin/store"
	"github.com/luckylubricants/rewards/pkg/admin"
	"github.com/luckylubricants/rewards/pkg/twincore"
)

func main() {
	cfg, err := twincore.ParseFlags("twin-lucky", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	twin := twincore.New(cfg)
	memStore := store.New()
	memStore.SeedDefaults()

	// API handlers
	apiHandler := api.NewHandler(memStore, twin.Middleware(), cfg.JWTSecret)
	apiHandler.Routes(twin.Router)

	// Admin control plane
	adminHandler := admin.NewHandler(memStore, twin.Middleware(), memStore.Clock)
	adminHandler.SetConfigProvider(twin)
	adminHandler.Routes(twin.Router)

	if cfg.SeedFile != "" {
		data, err := os.ReadFile(cfg.SeedFile)
		if err != nil {
			log.Fatalf("failed to read seed file: %v", err)
		}
		if err := memStore.LoadState(data); err != nil {
			log.Fatalf("failed to load seed data: %v", err)
		}
		twin.Logger.Info("loaded seed data", "file", cfg.SeedFile)
	}

	twin.Logger.Info("twin-lucky ready",
		"port", cfg.Port,
		"demo_phone", store.DemoPhone,
	)

	if err := twin.Serve(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
