// Package main parses one snapshot dump into holder records.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/config"
	"github.com/marinade-finance/solana-snapshot-manager/internal/logging"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/observability"
	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
	"github.com/marinade-finance/solana-snapshot-manager/internal/runner"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage/clickhouse"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage/migrations"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage/postgres"
)

func main() {
	flags := pflag.NewFlagSet("parse", pflag.ExitOnError)
	flags.String("snapshot.sqlite_path", "", "Path to the snapshot SQLite dump")
	flags.Uint64("snapshot.slot", 0, "Slot the dump was captured at")
	flags.String("snapshot.csv_output", "", "Optional CSV output path")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Snapshot.SQLitePath == "" || cfg.Snapshot.Slot == 0 {
		fmt.Fprintln(os.Stderr, "both --snapshot.sqlite_path and --snapshot.slot are required")
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
		log.Info("received signal, cancelling run", zap.String("signal", sig.String()))
		cancel()
	}()

	reg, err := registry.Load(config.Viper())
	if err != nil {
		log.Fatal("address registry", zap.Error(err))
	}

	metrics := observability.NewMetrics("")
	client := metadata.NewClient(
		metadata.WithTimeout(time.Duration(cfg.RPC.RequestTimeout)*time.Second),
		metadata.WithMaxRetries(cfg.RPC.MaxRetries),
		metadata.WithRateLimit(cfg.RPC.RatePerSecond, cfg.RPC.RateBurst),
		metadata.WithMetrics(metrics),
	)
	rpc := metadata.NewRPC(cfg.RPC.Endpoint, client)
	protocols := metadata.NewProtocols(client, metadata.DefaultEndpoints())

	opts := runner.Options{
		SQLitePath: cfg.Snapshot.SQLitePath,
		Slot:       cfg.Snapshot.Slot,
		CSVPath:    cfg.Snapshot.CSVOutput,
		Registry:   reg,
		RPC:        rpc,
		Protocols:  protocols,
		Log:        log,
		Metrics:    metrics,
	}

	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN, metrics)
		if err != nil {
			log.Fatal("postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			log.Fatal("postgres migrations", zap.Error(err))
		}
		opts.Snapshots = postgres.NewSnapshotStore(pool)
		opts.Holders = postgres.NewHolderStore(pool)
		opts.VeMNDE = postgres.NewVeMNDEStore(pool)
		opts.NativeStakes = postgres.NewNativeStakeStore(pool)
	}
	if cfg.Click.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Click.DSN)
		if err != nil {
			log.Fatal("clickhouse migrations", zap.Error(err))
		}
		defer conn.Close()
		opts.Reconciliations = clickhouse.NewReconciliationStore(conn, metrics)
	}

	summary, err := runner.Run(ctx, opts)
	if err != nil {
		log.Fatal("parse run failed", zap.Error(err))
	}

	fmt.Printf("parsed slot %d: %d owners, %d records\n",
		summary.Slot, summary.Owners, summary.Records)
	fmt.Printf("supply %s, parsed %s, vault %s, delta %s\n",
		summary.Reconciliation.TotalSupply.String(),
		summary.Reconciliation.TotalParsed.String(),
		summary.Reconciliation.VaultParsed.String(),
		summary.Reconciliation.Delta.String())
}
