package sources

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
)

// SaberExtractor handles the Saber stable pools from the address registry:
// LP holders claim the reference-asset vault pro rata.
type SaberExtractor struct {
	pools []registry.SaberPool
	log   *zap.Logger
}

var _ Extractor = (*SaberExtractor)(nil)

func NewSaberExtractor(d Deps) *SaberExtractor {
	return &SaberExtractor{pools: d.Registry.SaberPools, log: d.Log}
}

func (e *SaberExtractor) Tag() domain.Source { return domain.SourceSaber }

func (e *SaberExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	out := make(Balances)
	for _, pool := range e.pools {
		if err := extractLpPool(ctx, db, out, pool.LpMint, pool.Vault, e.log); err != nil {
			return nil, err
		}
	}
	e.log.Info("extracted saber balances",
		zap.Int("pools", len(e.pools)), zap.Int("owners", len(out)))
	return out, nil
}

// MercurialStableExtractor handles the Mercurial stable-swap pool, which
// holds the reference asset directly in a pool-owned token account.
type MercurialStableExtractor struct {
	pool registry.MercurialStablePool
	log  *zap.Logger
}

var _ Extractor = (*MercurialStableExtractor)(nil)

func NewMercurialStableExtractor(d Deps) *MercurialStableExtractor {
	return &MercurialStableExtractor{pool: d.Registry.MercurialPool, log: d.Log}
}

func (e *MercurialStableExtractor) Tag() domain.Source { return domain.SourceMercurialStable }

func (e *MercurialStableExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	out := make(Balances)
	if err := extractLpPool(ctx, db, out, e.pool.LpMint, e.pool.VaultMsolAta, e.log); err != nil {
		return nil, err
	}
	e.log.Info("extracted mercurial stable balances", zap.Int("owners", len(out)))
	return out, nil
}

// extractLpPool distributes one vault token account among the holders of one
// LP mint. Missing vault or mint rows are logged and skipped, leaving out
// untouched.
func extractLpPool(ctx context.Context, db *snapshot.DB, out Balances, lpMint, vault string, log *zap.Logger) error {
	vaultBalance, err := db.TokenAccountBalance(ctx, vault)
	if errors.Is(err, snapshot.ErrDataMissing) {
		log.Warn("pool vault not captured, skipping",
			zap.String("vault", vault), zap.String("lp_mint", lpMint))
		return nil
	}
	if err != nil {
		return err
	}
	lpSupply, err := db.MintSupply(ctx, lpMint)
	if errors.Is(err, snapshot.ErrDataMissing) {
		log.Warn("pool lp mint not captured, skipping", zap.String("lp_mint", lpMint))
		return nil
	}
	if err != nil {
		return err
	}
	holders, err := db.SystemOwnedTokenAccountsByMint(ctx, lpMint)
	if err != nil {
		return err
	}
	distributePot(out, holders, vaultBalance, lpSupply)
	return nil
}

// LifinityExtractor attributes the registry's Lifinity pool vaults. These
// pools carry no public LP token; all liquidity belongs to the configured
// treasury, so each vault balance is credited to it whole.
type LifinityExtractor struct {
	vaults []registry.LifinityVault
	log    *zap.Logger
}

var _ Extractor = (*LifinityExtractor)(nil)

func NewLifinityExtractor(d Deps) *LifinityExtractor {
	return &LifinityExtractor{vaults: d.Registry.LifinityVaults, log: d.Log}
}

func (e *LifinityExtractor) Tag() domain.Source { return domain.SourceLifinity }

func (e *LifinityExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	out := make(Balances)
	for _, v := range e.vaults {
		balance, err := db.TokenAccountBalance(ctx, v.Vault)
		if errors.Is(err, snapshot.ErrDataMissing) {
			e.log.Warn("lifinity vault not captured, skipping",
				zap.String("vault", v.Vault), zap.String("name", v.Name))
			continue
		}
		if err != nil {
			return nil, err
		}
		out.Add(v.Owner, balance)
	}
	e.log.Info("extracted lifinity balances",
		zap.Int("vaults", len(e.vaults)), zap.Int("owners", len(out)))
	return out, nil
}
