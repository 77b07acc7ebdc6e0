package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
)

// WalletExtractor attributes directly held token accounts: every account of
// the reference mint whose owner is a plain system account.
type WalletExtractor struct {
	mint string
	log  *zap.Logger
}

var _ Extractor = (*WalletExtractor)(nil)

func NewWalletExtractor(d Deps) *WalletExtractor {
	return &WalletExtractor{mint: d.Registry.MsolMint, log: d.Log}
}

func (e *WalletExtractor) Tag() domain.Source { return domain.SourceWallet }

func (e *WalletExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	accounts, err := db.SystemOwnedTokenAccountsByMint(ctx, e.mint)
	if err != nil {
		return nil, err
	}
	out := make(Balances, len(accounts))
	for _, a := range accounts {
		out.Add(a.Owner, a.Amount)
	}
	e.log.Info("extracted wallet balances",
		zap.Int("accounts", len(accounts)), zap.Int("owners", len(out)))
	return out, nil
}

// ShareMintExtractor attributes a yield token one-to-one: holding N shares
// counts as N units of the underlying. Used for integrations whose share
// price is pegged at issue (Tulip, Friktion volts).
type ShareMintExtractor struct {
	tag  domain.Source
	mint string
	log  *zap.Logger
}

var _ Extractor = (*ShareMintExtractor)(nil)

func NewShareMintExtractor(d Deps, tag domain.Source, mint string) *ShareMintExtractor {
	return &ShareMintExtractor{tag: tag, mint: mint, log: d.Log}
}

func (e *ShareMintExtractor) Tag() domain.Source { return e.tag }

func (e *ShareMintExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	accounts, err := db.SystemOwnedTokenAccountsByMint(ctx, e.mint)
	if err != nil {
		return nil, err
	}
	out := make(Balances, len(accounts))
	for _, a := range accounts {
		out.Add(a.Owner, a.Amount)
	}
	e.log.Info("extracted share mint balances",
		zap.String("source", e.tag.String()), zap.Int("owners", len(out)))
	return out, nil
}
