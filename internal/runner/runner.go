// Package runner wires the full parse pipeline: snapshot in, holder records
// and reconciliation out.
package runner

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/aggregate"
	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/observability"
	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sharemath"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sources"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage"
)

// Options configures one parse run. The store fields may each be nil, which
// disables the corresponding persistence; file outputs are controlled by
// their paths.
type Options struct {
	SQLitePath string
	Slot       uint64
	CSVPath    string

	Registry  *registry.Registry
	RPC       *metadata.RPC
	Protocols *metadata.Protocols
	Log       *zap.Logger
	Metrics   *observability.Metrics

	Snapshots       storage.SnapshotStore
	Holders         storage.HolderStore
	VeMNDE          storage.VeMNDEStore
	NativeStakes    storage.NativeStakeStore
	Reconciliations storage.ReconciliationStore
}

// Summary reports what one run produced.
type Summary struct {
	Slot           uint64
	Owners         int
	Records        int
	Reconciliation *domain.ReconciliationResult
}

// Run executes the pipeline against one snapshot dump.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	log := opts.Log

	db, err := snapshot.Open(opts.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	// Without the reference supply nothing downstream can be vouched for,
	// so fail before any extraction work.
	if _, err := db.MintSupply(ctx, opts.Registry.MsolMint); err != nil {
		if errors.Is(err, snapshot.ErrDataMissing) {
			return nil, fmt.Errorf("%w: %v", aggregate.ErrSupplyUnavailable, err)
		}
		return nil, err
	}

	blockTime, err := opts.RPC.GetBlockTime(ctx, opts.Slot)
	if err != nil {
		return nil, fmt.Errorf("block time for slot %d: %w", opts.Slot, err)
	}

	for _, addr := range opts.Registry.OnCurveVaults() {
		log.Warn("static vault address is on-curve, looks like a wallet",
			zap.String("address", addr))
	}

	extractors := sources.All(sources.Deps{
		Registry:  opts.Registry,
		Protocols: opts.Protocols,
		Curve:     sharemath.WhirlpoolCurve{},
		Vault:     sharemath.LockedProfitVault{},
		Decoder:   sharemath.PortDecoder{},
		Log:       log,
		BlockTime: blockTime,
	})

	agg := aggregate.New(extractors, opts.Registry.StaticVaults, log, opts.Metrics)
	res, err := agg.Run(ctx, db)
	if err != nil {
		return nil, err
	}

	reconciler := aggregate.NewReconciler(opts.Registry.MsolMint, log, opts.Metrics)
	recon, err := reconciler.Reconcile(ctx, db, res)
	if err != nil {
		return nil, err
	}

	records, err := persist(ctx, opts, db, res)
	if err != nil {
		return nil, err
	}

	if opts.Reconciliations != nil {
		row := &storage.ReconciliationRow{
			Slot:        opts.Slot,
			TotalParsed: recon.TotalParsed.String(),
			VaultParsed: recon.VaultParsed.String(),
			TotalSupply: recon.TotalSupply.String(),
			Delta:       recon.Delta.String(),
			Overcounted: recon.Overcounted(),
		}
		if err := opts.Reconciliations.Insert(ctx, row); err != nil {
			return nil, fmt.Errorf("store reconciliation: %w", err)
		}

		stats := make([]storage.SourceStatRow, 0, len(res.SourceTotals))
		for _, st := range res.SourceTotals {
			stats = append(stats, storage.SourceStatRow{
				Slot:   opts.Slot,
				Source: st.Source.String(),
				Owners: uint64(st.Owners),
				Total:  st.Total.String(),
			})
		}
		if err := opts.Reconciliations.InsertSourceStats(ctx, stats); err != nil {
			return nil, fmt.Errorf("store source stats: %w", err)
		}
	}

	opts.Metrics.LastSuccessfulParse.SetToCurrentTime()
	log.Info("parse run complete",
		zap.Uint64("slot", opts.Slot),
		zap.Int("owners", res.Ledger.Len()),
		zap.Int("records", records))
	return &Summary{
		Slot:           opts.Slot,
		Owners:         res.Ledger.Len(),
		Records:        records,
		Reconciliation: recon,
	}, nil
}

// persist writes all outputs for one aggregation result and returns the
// number of emitted records.
func persist(ctx context.Context, opts Options, db *snapshot.DB, res *aggregate.Result) (int, error) {
	decimals := opts.Registry.MsolDecimals

	var csvWriter *csv.Writer
	if opts.CSVPath != "" {
		f, err := os.Create(opts.CSVPath)
		if err != nil {
			return 0, fmt.Errorf("create csv output: %w", err)
		}
		defer f.Close()
		csvWriter = csv.NewWriter(f)
		defer csvWriter.Flush()
		if err := csvWriter.Write([]string{"pubkey", "amount", "source"}); err != nil {
			return 0, fmt.Errorf("write csv header: %w", err)
		}
	}

	// Fold the per-contribution stream back into one row per owner for the
	// holder table; the CSV keeps the full breakdown.
	var rows []storage.HolderRow
	var records int
	err := aggregate.EmitRecords(res, decimals, func(rec domain.Record) error {
		records++
		opts.Metrics.RecordsEmitted.Inc()
		if csvWriter != nil {
			if err := csvWriter.Write([]string{rec.Owner, rec.Amount, rec.Source.String()}); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		if len(rows) > 0 && rows[len(rows)-1].Owner == rec.Owner {
			last := &rows[len(rows)-1]
			last.Sources = append(last.Sources, rec.Source.String())
			last.Amounts = append(last.Amounts, rec.Amount)
			return nil
		}
		rows = append(rows, storage.HolderRow{
			Owner:   rec.Owner,
			Sources: []string{rec.Source.String()},
			Amounts: []string{rec.Amount},
			IsVault: rec.IsVault,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i := range rows {
		entry := res.Ledger.Entry(rows[i].Owner)
		rows[i].Amount = domain.FormatLamports(entry.Total, decimals)
	}
	if csvWriter != nil {
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			return 0, fmt.Errorf("flush csv output: %w", err)
		}
	}

	if opts.Snapshots == nil {
		return records, nil
	}

	snapshotID, err := opts.Snapshots.Create(ctx, opts.Slot)
	if err != nil {
		return 0, fmt.Errorf("create snapshot row: %w", err)
	}
	if err := opts.Holders.InsertBulk(ctx, snapshotID, rows); err != nil {
		return 0, fmt.Errorf("store holders: %w", err)
	}
	opts.Metrics.BatchesStored.WithLabelValues("msol_holders").Inc()

	if opts.VeMNDE != nil {
		balances, err := sources.VeMNDEBalances(ctx, db, opts.Log)
		if err != nil {
			return 0, err
		}
		var recs []domain.VeMNDERecord
		aggregate.EmitVeMNDE(balances, decimals, func(r domain.VeMNDERecord) error {
			recs = append(recs, r)
			return nil
		})
		if err := opts.VeMNDE.InsertBulk(ctx, snapshotID, recs); err != nil {
			return 0, fmt.Errorf("store vemnde holders: %w", err)
		}
		opts.Metrics.BatchesStored.WithLabelValues("vemnde_holders").Inc()
	}

	if opts.NativeStakes != nil {
		balances, err := sources.NativeStakeBalances(ctx, db, opts.Log)
		if err != nil {
			return 0, err
		}
		var recs []domain.NativeStakeRecord
		aggregate.EmitNativeStakes(balances, decimals, func(r domain.NativeStakeRecord) error {
			recs = append(recs, r)
			return nil
		})
		if err := opts.NativeStakes.InsertBulk(ctx, snapshotID, recs); err != nil {
			return 0, fmt.Errorf("store native stakes: %w", err)
		}
		opts.Metrics.BatchesStored.WithLabelValues("native_stake_accounts").Inc()
	}

	return records, nil
}
