package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
)

// VeMNDEBalances sums captured voter-stake-registry voting power per voter
// authority. These are governance balances, recorded alongside the holder
// set but never folded into it.
func VeMNDEBalances(ctx context.Context, db *snapshot.DB, log *zap.Logger) (Balances, error) {
	accounts, err := db.VeMNDEAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(Balances, len(accounts))
	for _, a := range accounts {
		out.Add(a.VoterAuthority, a.VotingPower)
	}
	log.Info("extracted vemnde balances",
		zap.Int("accounts", len(accounts)), zap.Int("authorities", len(out)))
	return out, nil
}

// NativeStakeBalances sums captured native stake per withdraw authority.
func NativeStakeBalances(ctx context.Context, db *snapshot.DB, log *zap.Logger) (Balances, error) {
	accounts, err := db.NativeStakeAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(Balances, len(accounts))
	for _, a := range accounts {
		out.Add(a.WithdrawAuthority, a.Amount)
	}
	log.Info("extracted native stake balances",
		zap.Int("accounts", len(accounts)), zap.Int("authorities", len(out)))
	return out, nil
}
