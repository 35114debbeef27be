// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/config"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/logging"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/mist"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/netcalc"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/orchestrator"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/statestore"
	memorystore "github.com/ericcgu/eg-mist-orchestration-core/internal/statestore/memory"
	pgstore "github.com/ericcgu/eg-mist-orchestration-core/internal/statestore/postgres"
	redisstore "github.com/ericcgu/eg-mist-orchestration-core/internal/statestore/redis"
	httptransport "github.com/ericcgu/eg-mist-orchestration-core/internal/transport/http"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/workflow"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	store, cleanup, err := newStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("state store setup failed: %v", err)
	}
	defer cleanup()

	engine := workflow.New(store, logger)
	calc := netcalc.New()
	mistClient := mist.New(cfg.MistHost, cfg.MistAPIKey, mist.WithLogger(logger))
	provisioner := orchestrator.New(engine, mistClient, calc, logger)

	handler := httptransport.NewRouter(httptransport.Deps{
		Workflow:    engine,
		Provisioner: provisioner,
		Planner:     calc,
		Logger:      logger,
		AdminToken:  cfg.AdminToken,
		Version:     Version,
		Commit:      Commit,
		BuildDate:   BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"store_backend", cfg.StoreBackend,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (statestore.Store, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		store := redisstore.New(client, redisstore.WithLogger(logger))

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis connect failed: %w", err)
		}
		return store, func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("db connect failed: %w", err)
		}
		if cfg.AutoMigrate {
			if err := pgstore.EnsureSchema(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, noop, fmt.Errorf("schema bootstrap failed: %w", err)
			}
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
