package sources

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sharemath"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
)

// RaydiumV2Extractor handles the constant-product pools: each LP token
// represents a pro-rata claim on the pool's reference-asset vault.
type RaydiumV2Extractor struct {
	mint      string
	protocols *metadata.Protocols
	log       *zap.Logger
}

var _ Extractor = (*RaydiumV2Extractor)(nil)

func NewRaydiumV2Extractor(d Deps) *RaydiumV2Extractor {
	return &RaydiumV2Extractor{mint: d.Registry.MsolMint, protocols: d.Protocols, log: d.Log}
}

func (e *RaydiumV2Extractor) Tag() domain.Source { return domain.SourceRaydiumV2 }

func (e *RaydiumV2Extractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	pools, err := e.protocols.RaydiumLiquidityPools(ctx, e.mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}

	out := make(Balances)
	for _, pool := range pools {
		vaultBalance, err := db.TokenAccountBalance(ctx, pool.Vault)
		if errors.Is(err, snapshot.ErrDataMissing) {
			e.log.Warn("raydium vault not captured, skipping",
				zap.String("vault", pool.Vault), zap.String("lp_mint", pool.LpMint))
			continue
		}
		if err != nil {
			return nil, err
		}
		lpSupply, err := db.MintSupply(ctx, pool.LpMint)
		if errors.Is(err, snapshot.ErrDataMissing) {
			e.log.Warn("raydium lp mint not captured, skipping",
				zap.String("lp_mint", pool.LpMint))
			continue
		}
		if err != nil {
			return nil, err
		}
		holders, err := db.SystemOwnedTokenAccountsByMint(ctx, pool.LpMint)
		if err != nil {
			return nil, err
		}
		distributePot(out, holders, vaultBalance, lpSupply)
	}
	e.log.Info("extracted raydium v2 balances",
		zap.Int("pools", len(pools)), zap.Int("owners", len(out)))
	return out, nil
}

// RaydiumV3Extractor handles the concentrated pools. Position bounds are
// stored as tick indexes, so the curve converts ticks to sqrt prices before
// the liquidity split.
type RaydiumV3Extractor struct {
	mint  string
	curve sharemath.CurveMath
	log   *zap.Logger
}

var _ Extractor = (*RaydiumV3Extractor)(nil)

func NewRaydiumV3Extractor(d Deps) *RaydiumV3Extractor {
	return &RaydiumV3Extractor{mint: d.Registry.MsolMint, curve: d.Curve, log: d.Log}
}

func (e *RaydiumV3Extractor) Tag() domain.Source { return domain.SourceRaydiumV3 }

func (e *RaydiumV3Extractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	pools, err := db.RaydiumPools(ctx, e.mint)
	if err != nil {
		return nil, err
	}

	out := make(Balances)
	for _, pool := range pools {
		msolIsFirst := pool.Mint1 == e.mint
		positions, err := db.RaydiumPositions(ctx, pool.Pubkey)
		if err != nil {
			return nil, err
		}
		for _, p := range positions {
			lower := e.curve.SqrtPriceX64FromTick(p.TickLower)
			upper := e.curve.SqrtPriceX64FromTick(p.TickUpper)
			amountA, amountB := e.curve.AmountsFromLiquidity(
				p.Liquidity, pool.SqrtPriceX64, lower, upper, false)
			if msolIsFirst {
				out.Add(p.Owner, amountA)
			} else {
				out.Add(p.Owner, amountB)
			}
		}
		e.log.Debug("extracted raydium v3 positions",
			zap.String("pool", pool.Pubkey), zap.Int("positions", len(positions)))
	}
	e.log.Info("extracted raydium v3 balances",
		zap.Int("pools", len(pools)), zap.Int("owners", len(out)))
	return out, nil
}
