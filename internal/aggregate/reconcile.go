package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/observability"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
)

// ErrSupplyUnavailable aborts the run: without the issued supply the
// reconciliation check cannot vouch for the output at all.
var ErrSupplyUnavailable = errors.New("reference mint supply unavailable")

// Reconciler compares a folded ledger against the reference mint's issued
// supply. A positive delta is expected slack from not-yet-integrated
// protocols; an overcount is a warning, never an abort, since the records
// themselves remain individually auditable.
type Reconciler struct {
	mint    string
	log     *zap.Logger
	metrics *observability.Metrics
}

func NewReconciler(mint string, log *zap.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{mint: mint, log: log, metrics: metrics}
}

// Reconcile computes the supply delta for one aggregation result.
func (r *Reconciler) Reconcile(ctx context.Context, db *snapshot.DB, res *Result) (*domain.ReconciliationResult, error) {
	supply, err := db.MintSupply(ctx, r.mint)
	if errors.Is(err, snapshot.ErrDataMissing) {
		return nil, fmt.Errorf("%w: %v", ErrSupplyUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	nonVault, vault := res.Ledger.TotalSplit(res.Vaults)
	result := &domain.ReconciliationResult{
		TotalParsed: nonVault,
		VaultParsed: vault,
		TotalSupply: supply,
		Delta:       new(big.Int).Sub(supply, nonVault),
	}

	delta, _ := new(big.Float).SetInt(result.Delta).Float64()
	r.metrics.ReconciliationDelta.Set(delta)
	if result.Overcounted() {
		r.metrics.ReconciliationOvercount.Inc()
		r.log.Warn("parsed holdings exceed issued supply",
			zap.String("parsed", nonVault.String()),
			zap.String("vault", vault.String()),
			zap.String("supply", supply.String()))
	} else {
		r.log.Info("reconciled against issued supply",
			zap.String("parsed", nonVault.String()),
			zap.String("vault", vault.String()),
			zap.String("supply", supply.String()),
			zap.String("delta", result.Delta.String()))
	}
	return result, nil
}
