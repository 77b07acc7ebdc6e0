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

// MeteoraExtractor handles the shared Meteora yield vault and the Mercurial
// AMM pools built on top of it. Vault LP value at the snapshot instant is
// the withdrawable amount under the locked-profit unlock schedule, so the
// snapshot's block time feeds the computation.
//
// Attribution is two-tier: wallets holding vault LP directly are credited
// their share, and AMM pools holding vault LP have that share passed through
// to the holders of the pool's own LP mint.
type MeteoraExtractor struct {
	mint      string
	protocols *metadata.Protocols
	vault     sharemath.VaultMath
	blockTime int64
	log       *zap.Logger

	discovered []string
}

var (
	_ Extractor       = (*MeteoraExtractor)(nil)
	_ VaultDiscoverer = (*MeteoraExtractor)(nil)
)

func NewMeteoraExtractor(d Deps) *MeteoraExtractor {
	return &MeteoraExtractor{
		mint:      d.Registry.MsolMint,
		protocols: d.Protocols,
		vault:     d.Vault,
		blockTime: d.BlockTime,
		log:       d.Log,
	}
}

func (e *MeteoraExtractor) Tag() domain.Source { return domain.SourceMeteoraVaults }

func (e *MeteoraExtractor) DiscoveredVaults() []string { return e.discovered }

func (e *MeteoraExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	live, err := e.protocols.MeteoraVaultForMint(ctx, e.mint)
	if err != nil {
		return nil, err
	}

	state, err := e.vaultState(ctx, db, live.Pubkey)
	if errors.Is(err, snapshot.ErrDataMissing) {
		e.log.Warn("meteora vault not captured, skipping",
			zap.String("vault", live.Pubkey))
		return Balances{}, nil
	}
	if err != nil {
		return nil, err
	}

	withdrawable := e.vault.WithdrawableAmount(e.blockTime, sharemath.VaultState{
		LastReport:              state.LastReport,
		LockedProfitDegradation: state.LockedProfitDegradation,
		LastUpdatedLockedProfit: state.LastUpdatedLockedProfit,
		TotalAmount:             state.TotalAmount,
	})
	lpSupply, err := db.MintSupply(ctx, state.LpMint)
	if errors.Is(err, snapshot.ErrDataMissing) {
		e.log.Warn("meteora vault lp mint not captured, skipping",
			zap.String("lp_mint", state.LpMint))
		return Balances{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(Balances)

	// Tier one: wallets holding vault LP directly.
	holders, err := db.SystemOwnedTokenAccountsByMint(ctx, state.LpMint)
	if err != nil {
		return nil, err
	}
	for _, h := range holders {
		out.Add(h.Owner, e.vault.AmountByShare(h.Amount, withdrawable, lpSupply))
	}

	// Tier two: AMM pools holding vault LP, passed through to pool LP holders.
	pools, err := db.MercurialPools(ctx)
	if err != nil {
		return nil, err
	}
	for _, pool := range pools {
		vaultLpAccount := ""
		switch e.mint {
		case pool.TokenAMint:
			vaultLpAccount = pool.AVaultLp
		case pool.TokenBMint:
			vaultLpAccount = pool.BVaultLp
		default:
			continue
		}
		poolShare, err := db.TokenAccountBalance(ctx, vaultLpAccount)
		if errors.Is(err, snapshot.ErrDataMissing) {
			e.log.Warn("mercurial pool vault lp account not captured, skipping",
				zap.String("pool", pool.Pubkey), zap.String("account", vaultLpAccount))
			continue
		}
		if err != nil {
			return nil, err
		}
		poolMsol := e.vault.AmountByShare(poolShare, withdrawable, lpSupply)
		poolLpSupply, err := db.MintSupply(ctx, pool.LpMint)
		if errors.Is(err, snapshot.ErrDataMissing) {
			e.log.Warn("mercurial pool lp mint not captured, skipping",
				zap.String("pool", pool.Pubkey), zap.String("lp_mint", pool.LpMint))
			continue
		}
		if err != nil {
			return nil, err
		}
		poolHolders, err := db.SystemOwnedTokenAccountsByMint(ctx, pool.LpMint)
		if err != nil {
			return nil, err
		}
		distributePot(out, poolHolders, poolMsol, poolLpSupply)

		// The pool address custodies vault LP on behalf of its own LP
		// holders; anything else attributed to it elsewhere is custody, not
		// a real holding.
		e.discovered = append(e.discovered, pool.Pubkey)
	}

	e.log.Info("extracted meteora vault balances",
		zap.String("vault", live.Pubkey),
		zap.String("withdrawable", withdrawable.String()),
		zap.Int("pools", len(pools)),
		zap.Int("owners", len(out)))
	return out, nil
}

func (e *MeteoraExtractor) vaultState(ctx context.Context, db *snapshot.DB, pubkey string) (*snapshot.MeteoraVault, error) {
	vaults, err := db.MeteoraVaults(ctx)
	if err != nil {
		return nil, err
	}
	for i := range vaults {
		if vaults[i].Pubkey == pubkey {
			return &vaults[i], nil
		}
	}
	return nil, fmt.Errorf("meteora vault %s: %w", pubkey, snapshot.ErrDataMissing)
}
