package aggregate

import (
	"sort"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sources"
)

// EmitRecords streams one record per (owner, contribution) through fn,
// owners in lexical order and contributions in fold order, so output is
// reproducible run to run. Formatting from base units to decimal strings
// happens only here, at the emission boundary. Emission stops at the first
// fn error.
func EmitRecords(res *Result, decimals int, fn func(domain.Record) error) error {
	for _, owner := range res.Ledger.Owners() {
		entry := res.Ledger.Entry(owner)
		_, isVault := res.Vaults[owner]
		for _, c := range entry.Contributions {
			rec := domain.Record{
				Owner:   c.Owner,
				Amount:  domain.FormatLamports(c.Amount, decimals),
				Source:  c.Source,
				IsVault: isVault,
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// EmitVeMNDE streams governance balances sorted by authority.
func EmitVeMNDE(balances sources.Balances, decimals int, fn func(domain.VeMNDERecord) error) error {
	for _, authority := range sortedKeys(balances) {
		rec := domain.VeMNDERecord{
			Authority: authority,
			Amount:    domain.FormatLamports(balances[authority], decimals),
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// EmitNativeStakes streams native stake balances sorted by authority.
func EmitNativeStakes(balances sources.Balances, decimals int, fn func(domain.NativeStakeRecord) error) error {
	for _, authority := range sortedKeys(balances) {
		rec := domain.NativeStakeRecord{
			Authority: authority,
			Amount:    domain.FormatLamports(balances[authority], decimals),
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(balances sources.Balances) []string {
	keys := make([]string, 0, len(balances))
	for k := range balances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
