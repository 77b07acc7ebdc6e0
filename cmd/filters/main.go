// Package main emits the capture descriptor for the snapshot collector.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/config"
	"github.com/marinade-finance/solana-snapshot-manager/internal/filters"
	"github.com/marinade-finance/solana-snapshot-manager/internal/logging"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/observability"
	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
)

func main() {
	flags := pflag.NewFlagSet("filters", pflag.ExitOnError)
	flags.String("snapshot.json_output", "", "Descriptor output path (default stdout)")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
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
		log.Info("received signal, cancelling", zap.String("signal", sig.String()))
		cancel()
	}()

	reg, err := registry.Load(config.Viper())
	if err != nil {
		log.Fatal("address registry", zap.Error(err))
	}

	client := metadata.NewClient(
		metadata.WithTimeout(time.Duration(cfg.RPC.RequestTimeout)*time.Second),
		metadata.WithMaxRetries(cfg.RPC.MaxRetries),
		metadata.WithRateLimit(cfg.RPC.RatePerSecond, cfg.RPC.RateBurst),
		metadata.WithMetrics(observability.NewMetrics("")),
	)
	rpc := metadata.NewRPC(cfg.RPC.Endpoint, client)
	protocols := metadata.NewProtocols(client, metadata.DefaultEndpoints())

	builder := filters.NewBuilder(reg, protocols, rpc, log)
	descriptor, err := builder.Build(ctx)
	if err != nil {
		log.Fatal("build descriptor", zap.Error(err))
	}

	out := os.Stdout
	if cfg.Snapshot.JSONOutput != "" {
		f, err := os.Create(cfg.Snapshot.JSONOutput)
		if err != nil {
			log.Fatal("create output file", zap.Error(err))
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(descriptor); err != nil {
		log.Fatal("encode descriptor", zap.Error(err))
	}
}
