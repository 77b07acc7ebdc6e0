// Package aggregate folds per-source extractor output into a single holder
// ledger, classifies custody addresses, reconciles the ledger against the
// issued supply and emits persistence-ready records.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/observability"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sources"
)

// Result is the outcome of one aggregation run: the folded ledger, the
// final custody address set (static registry entries plus addresses the
// extractors discovered), and per-source extraction stats in run order.
type Result struct {
	Ledger       *domain.HolderLedger
	Vaults       map[string]struct{}
	SourceTotals []SourceTotal
}

// SourceTotal sums what one source contributed to the run.
type SourceTotal struct {
	Source domain.Source
	Owners int
	Total  *big.Int
}

// Aggregator runs every extractor in canonical order and folds the output.
type Aggregator struct {
	extractors []sources.Extractor
	vaults     []string
	log        *zap.Logger
	metrics    *observability.Metrics
}

// New creates an Aggregator. staticVaults is the registry's custody list;
// extractors implementing sources.VaultDiscoverer extend it during the run.
func New(extractors []sources.Extractor, staticVaults []string, log *zap.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{extractors: extractors, vaults: staticVaults, log: log, metrics: metrics}
}

// Run executes every extractor against the snapshot and folds balances into
// one ledger. An extractor error aborts the run; per-row gaps were already
// handled inside the extractors.
func (a *Aggregator) Run(ctx context.Context, db *snapshot.DB) (*Result, error) {
	ledger := domain.NewHolderLedger()
	totals := make([]SourceTotal, 0, len(a.extractors))

	for _, ex := range a.extractors {
		tag := ex.Tag()
		start := time.Now()
		balances, err := ex.Extract(ctx, db)
		if err != nil {
			if errors.Is(err, snapshot.ErrDataMissing) {
				a.metrics.SourceDataMissing.WithLabelValues(tag.String()).Inc()
			}
			return nil, fmt.Errorf("extract %s: %w", tag, err)
		}
		total := new(big.Int)
		for owner, amount := range balances {
			ledger.Add(owner, amount, tag)
			total.Add(total, amount)
		}
		totals = append(totals, SourceTotal{Source: tag, Owners: len(balances), Total: total})
		a.metrics.SourceOwnersExtracted.WithLabelValues(tag.String()).Set(float64(len(balances)))
		a.metrics.SourceDuration.WithLabelValues(tag.String()).Observe(time.Since(start).Seconds())
		a.log.Info("folded source",
			zap.String("source", tag.String()),
			zap.Int("owners", len(balances)),
			zap.Duration("took", time.Since(start)))
	}

	// Classification runs after extraction so discovered custody addresses
	// cover contributions folded earlier in the same run.
	vaults := make(map[string]struct{}, len(a.vaults))
	for _, v := range a.vaults {
		vaults[v] = struct{}{}
	}
	for _, ex := range a.extractors {
		discoverer, ok := ex.(sources.VaultDiscoverer)
		if !ok {
			continue
		}
		for _, v := range discoverer.DiscoveredVaults() {
			if _, seen := vaults[v]; !seen {
				vaults[v] = struct{}{}
				a.log.Debug("discovered custody address",
					zap.String("address", v), zap.String("source", ex.Tag().String()))
			}
		}
	}

	a.log.Info("aggregation complete",
		zap.Int("owners", ledger.Len()), zap.Int("vaults", len(vaults)))
	return &Result{Ledger: ledger, Vaults: vaults, SourceTotals: totals}, nil
}
