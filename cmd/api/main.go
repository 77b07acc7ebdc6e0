// Package main serves the latest-snapshot read API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/api"
	"github.com/marinade-finance/solana-snapshot-manager/internal/config"
	"github.com/marinade-finance/solana-snapshot-manager/internal/logging"
	"github.com/marinade-finance/solana-snapshot-manager/internal/observability"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage/migrations"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage/postgres"
)

func main() {
	flags := pflag.NewFlagSet("api", pflag.ExitOnError)
	flags.String("api.listen", ":8080", "Listen address")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Postgres.DSN == "" {
		fmt.Fprintln(os.Stderr, "postgres.dsn is required for the api")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	metrics := observability.NewMetrics("")
	go metrics.TrackUptime(ctx, time.Second)

	pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN, metrics)
	if err != nil {
		log.Fatal("postgres", zap.Error(err))
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		log.Fatal("postgres migrations", zap.Error(err))
	}

	server := api.New(
		postgres.NewSnapshotStore(pool),
		postgres.NewHolderStore(pool),
		postgres.NewVeMNDEStore(pool),
		postgres.NewNativeStakeStore(pool),
		log,
	)
	if err := server.ListenAndServe(ctx, cfg.API.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api server", zap.Error(err))
	}
}
