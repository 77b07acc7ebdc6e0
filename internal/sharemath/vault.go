package sharemath

import "math/big"

// VaultState is the subset of a Meteora-style yield vault's on-chain state
// needed to compute the currently withdrawable amount. Profits unlock
// linearly after each report, governed by the degradation rate.
type VaultState struct {
	LastReport              *big.Int // unix seconds of last profit report
	LockedProfitDegradation *big.Int // unlock rate, 1e12 denominator
	LastUpdatedLockedProfit *big.Int
	TotalAmount             *big.Int
}

// VaultMath computes withdrawable amounts and proportional LP shares for
// time-decayed yield vaults.
type VaultMath interface {
	// WithdrawableAmount returns the vault funds withdrawable at the given
	// unix timestamp: total amount minus still-locked profit.
	WithdrawableAmount(now int64, state VaultState) *big.Int

	// AmountByShare converts an LP share amount into the underlying token
	// amount, floor division. Returns zero when lpSupply is zero.
	AmountByShare(share, withdrawable, lpSupply *big.Int) *big.Int
}

// LockedProfitVault implements VaultMath with the linear locked-profit
// degradation schedule.
type LockedProfitVault struct{}

var _ VaultMath = LockedProfitVault{}

// lockedProfitDegradationDenominator scales the degradation rate.
var lockedProfitDegradationDenominator = big.NewInt(1_000_000_000_000)

func (LockedProfitVault) WithdrawableAmount(now int64, state VaultState) *big.Int {
	duration := new(big.Int).Sub(big.NewInt(now), state.LastReport)
	if duration.Sign() < 0 {
		duration.SetInt64(0)
	}
	lockedFundRatio := new(big.Int).Mul(duration, state.LockedProfitDegradation)

	locked := new(big.Int)
	if lockedFundRatio.Cmp(lockedProfitDegradationDenominator) <= 0 {
		locked.Sub(lockedProfitDegradationDenominator, lockedFundRatio)
		locked.Mul(locked, state.LastUpdatedLockedProfit)
		locked.Div(locked, lockedProfitDegradationDenominator)
	}

	withdrawable := new(big.Int).Sub(state.TotalAmount, locked)
	if withdrawable.Sign() < 0 {
		withdrawable.SetInt64(0)
	}
	return withdrawable
}

func (LockedProfitVault) AmountByShare(share, withdrawable, lpSupply *big.Int) *big.Int {
	if lpSupply.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(share, withdrawable)
	return out.Div(out, lpSupply)
}
