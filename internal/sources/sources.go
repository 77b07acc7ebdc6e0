// Package sources implements the per-protocol balance extractors. Each
// extractor reads one integration's state out of the snapshot, converts
// protocol shares into reference-asset amounts with exact integer math, and
// returns per-owner balances for the aggregation fold.
package sources

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sharemath"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
)

// Balances maps owner address to extracted amount in the asset's smallest
// unit. Extractors never return zero or negative amounts.
type Balances map[string]*big.Int

// Add accumulates amt into owner's balance. Amounts of zero are dropped so
// dust-only positions never produce records.
func (b Balances) Add(owner string, amt *big.Int) {
	if amt.Sign() <= 0 {
		return
	}
	if cur, ok := b[owner]; ok {
		cur.Add(cur, amt)
		return
	}
	b[owner] = new(big.Int).Set(amt)
}

// Extractor extracts one protocol's reference-asset balances from a
// snapshot. Extract returns an error only for conditions that invalidate the
// whole run; recoverable gaps (a pool missing from the dump) are logged and
// skipped inside the extractor.
type Extractor interface {
	Tag() domain.Source
	Extract(ctx context.Context, db *snapshot.DB) (Balances, error)
}

// VaultDiscoverer is implemented by extractors that learn protocol custody
// addresses while extracting. Discovered addresses join the static vault
// list for record classification; DiscoveredVaults is only meaningful after
// Extract has run.
type VaultDiscoverer interface {
	DiscoveredVaults() []string
}

// Deps carries the shared collaborators the extractors are built from.
type Deps struct {
	Registry  *registry.Registry
	Protocols *metadata.Protocols
	Curve     sharemath.CurveMath
	Vault     sharemath.VaultMath
	Decoder   sharemath.ObligationDecoder
	Log       *zap.Logger

	// BlockTime is the unix time of the snapshot slot, used by the vault
	// unlock schedules.
	BlockTime int64
}

// All returns every extractor in canonical enumeration order.
func All(d Deps) []Extractor {
	return []Extractor{
		NewWalletExtractor(d),
		NewOrcaExtractor(d),
		NewRaydiumV2Extractor(d),
		NewRaydiumV3Extractor(d),
		NewDepositTableExtractor(d, domain.SourceSolend, "solend"),
		NewShareMintExtractor(d, domain.SourceTulip, d.Registry.TulipMint),
		NewMercurialStableExtractor(d),
		NewMeteoraExtractor(d),
		NewSaberExtractor(d),
		NewShareMintExtractor(d, domain.SourceFriktion, d.Registry.FriktionMint),
		NewPortExtractor(d),
		NewDepositTableExtractor(d, domain.SourceDrift, "drift"),
		NewDepositTableExtractor(d, domain.SourceMrgn, "mrgn"),
		NewDepositTableExtractor(d, domain.SourceMango, "mango"),
		NewLifinityExtractor(d),
		NewKaminoExtractor(d),
		NewKaminoLendingExtractor(d),
	}
}

// distributePot splits pot among LP-mint holders proportionally to their
// share of supply, floor division. Rounding remainders stay unattributed,
// never redistributed; the reconciliation delta absorbs them.
func distributePot(out Balances, holders []snapshot.TokenAccount, pot, supply *big.Int) {
	if supply.Sign() == 0 || pot.Sign() == 0 {
		return
	}
	for _, h := range holders {
		amt := new(big.Int).Mul(h.Amount, pot)
		amt.Div(amt, supply)
		out.Add(h.Owner, amt)
	}
}
