// SPDX-License-Identifier: Apache-2.0

// Operator CLI for inspecting and recovering deployments:
//
//	cli list                 print every site with a persisted deployment
//	cli show <site-id>       dump one deployment record as JSON
//	cli restart <site-id>    reset a FAILED deployment for re-provisioning
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/config"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/statestore"
	memorystore "github.com/ericcgu/eg-mist-orchestration-core/internal/statestore/memory"
	pgstore "github.com/ericcgu/eg-mist-orchestration-core/internal/statestore/postgres"
	redisstore "github.com/ericcgu/eg-mist-orchestration-core/internal/statestore/redis"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/workflow"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, cleanup, err := newStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("state store setup failed: %v", err)
	}
	defer cleanup()

	engine := workflow.New(store, logger)

	switch os.Args[1] {
	case "list":
		for _, siteID := range engine.ListDeployments(ctx) {
			fmt.Println(siteID)
		}

	case "show":
		siteID := requireSiteArg()
		state, err := engine.GetDeployment(ctx, siteID)
		if err != nil {
			log.Fatalf("show %s: %v", siteID, err)
		}
		printJSON(state)

	case "restart":
		siteID := requireSiteArg()
		state, err := engine.RestartDeployment(ctx, siteID)
		if err != nil {
			log.Fatalf("restart %s: %v", siteID, err)
		}
		printJSON(state)

	default:
		usage()
		os.Exit(2)
	}
}

func requireSiteArg() string {
	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}
	return os.Args[2]
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(out))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cli <list|show|restart> [site-id]")
}

func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (statestore.Store, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		store := redisstore.New(client, redisstore.WithLogger(logger))
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis connect failed: %w", err)
		}
		return store, func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("db connect failed: %w", err)
		}
		return pgstore.New(pool, logger), pool.Close, nil

	case config.BackendMemory:
		return memorystore.New(), noop, nil

	case config.BackendNone:
		return statestore.Noop{}, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
