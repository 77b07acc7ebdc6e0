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

// OrcaExtractor walks every live whirlpool holding the reference asset and
// converts each captured position's liquidity into token amounts at the
// pool's captured price. The pool list comes from the live registry; pools
// absent from the snapshot are logged and skipped.
type OrcaExtractor struct {
	mint      string
	protocols *metadata.Protocols
	curve     sharemath.CurveMath
	log       *zap.Logger
}

var _ Extractor = (*OrcaExtractor)(nil)

func NewOrcaExtractor(d Deps) *OrcaExtractor {
	return &OrcaExtractor{
		mint:      d.Registry.MsolMint,
		protocols: d.Protocols,
		curve:     d.Curve,
		log:       d.Log,
	}
}

func (e *OrcaExtractor) Tag() domain.Source { return domain.SourceOrca }

func (e *OrcaExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	pools, err := e.protocols.OrcaWhirlpools(ctx, e.mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}

	out := make(Balances)
	for _, pool := range pools {
		state, err := db.WhirlpoolPool(ctx, pool.Address)
		if errors.Is(err, snapshot.ErrDataMissing) {
			e.log.Warn("whirlpool not captured, skipping",
				zap.String("pool", pool.Address), zap.String("name", pool.Name))
			continue
		}
		if err != nil {
			return nil, err
		}

		positions, err := db.OrcaPositions(ctx, pool.Address)
		if err != nil {
			return nil, err
		}
		for _, p := range positions {
			// Whirlpool position amounts round up, matching the on-chain
			// withdrawal quote.
			amountA, amountB := e.curve.AmountsFromLiquidity(
				p.Liquidity, state.SqrtPrice, p.PriceLower, p.PriceUpper, true)
			if pool.MsolIsA {
				out.Add(p.Owner, amountA)
			} else {
				out.Add(p.Owner, amountB)
			}
		}
		e.log.Debug("extracted whirlpool positions",
			zap.String("pool", pool.Address), zap.Int("positions", len(positions)))
	}
	e.log.Info("extracted orca balances",
		zap.Int("pools", len(pools)), zap.Int("owners", len(out)))
	return out, nil
}
