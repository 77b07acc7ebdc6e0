package sources

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
)

// KaminoExtractor distributes each Kamino strategy's reference-asset
// holdings among the holders of its shares mint. The collector resolves a
// strategy's total token amounts (vault balances plus the amount invested in
// the underlying pool position) into the captured strategy row.
type KaminoExtractor struct {
	mint string
	log  *zap.Logger

	discovered []string
}

var (
	_ Extractor       = (*KaminoExtractor)(nil)
	_ VaultDiscoverer = (*KaminoExtractor)(nil)
)

func NewKaminoExtractor(d Deps) *KaminoExtractor {
	return &KaminoExtractor{mint: d.Registry.MsolMint, log: d.Log}
}

func (e *KaminoExtractor) Tag() domain.Source { return domain.SourceKamino }

func (e *KaminoExtractor) DiscoveredVaults() []string { return e.discovered }

func (e *KaminoExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	strategies, err := db.KaminoStrategies(ctx, e.mint)
	if err != nil {
		return nil, err
	}

	out := make(Balances)
	for _, s := range strategies {
		msolIsA := s.TokenAMint == e.mint

		// The strategy's token vault and the pool vault on the reference
		// side custody tokens for the share holders.
		if msolIsA {
			e.discovered = append(e.discovered, s.TokenAVault, s.PoolTokenVaultA)
		} else {
			e.discovered = append(e.discovered, s.TokenBVault, s.PoolTokenVaultB)
		}

		pot := s.TokenAAmounts
		if !msolIsA {
			pot = s.TokenBAmounts
		}
		if pot.Sign() == 0 || s.SharesIssued.Sign() == 0 {
			continue
		}

		sharesSupply, err := db.MintSupply(ctx, s.SharesMint)
		if errors.Is(err, snapshot.ErrDataMissing) {
			e.log.Warn("kamino shares mint not captured, skipping",
				zap.String("strategy", s.Pubkey), zap.String("shares_mint", s.SharesMint))
			continue
		}
		if err != nil {
			return nil, err
		}
		if sharesSupply.Cmp(s.SharesIssued) != 0 {
			e.log.Warn("kamino shares supply disagrees with strategy state",
				zap.String("strategy", s.Pubkey),
				zap.String("supply", sharesSupply.String()),
				zap.String("issued", s.SharesIssued.String()))
		}

		holders, err := db.SystemOwnedTokenAccountsByMint(ctx, s.SharesMint)
		if err != nil {
			return nil, err
		}
		distributePot(out, holders, pot, sharesSupply)
	}

	e.log.Info("extracted kamino strategy balances",
		zap.Int("strategies", len(strategies)), zap.Int("owners", len(out)))
	return out, nil
}

// KaminoLendingExtractor credits resolved Kamino lending deposits, filtered
// to the canonical market list so test markets and forks never count.
type KaminoLendingExtractor struct {
	mint      string
	protocols *metadata.Protocols
	log       *zap.Logger
}

var _ Extractor = (*KaminoLendingExtractor)(nil)

func NewKaminoLendingExtractor(d Deps) *KaminoLendingExtractor {
	return &KaminoLendingExtractor{mint: d.Registry.MsolMint, protocols: d.Protocols, log: d.Log}
}

func (e *KaminoLendingExtractor) Tag() domain.Source { return domain.SourceKaminoLending }

func (e *KaminoLendingExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	markets, err := e.protocols.KaminoLendingMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	canonical := make(map[string]struct{}, len(markets))
	for _, m := range markets {
		canonical[m] = struct{}{}
	}

	deposits, err := db.KaminoObligationDeposits(ctx, e.mint)
	if err != nil {
		return nil, err
	}

	out := make(Balances)
	var foreign int
	for _, d := range deposits {
		if _, ok := canonical[d.Market]; !ok {
			foreign++
			continue
		}
		out.Add(d.Owner, d.Amount)
	}
	e.log.Info("extracted kamino lending deposits",
		zap.Int("deposits", len(deposits)),
		zap.Int("foreign_market", foreign),
		zap.Int("owners", len(out)))
	return out, nil
}
