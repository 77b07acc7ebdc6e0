// Package sharemath supplies the protocol-owned proportional-ownership math
// the extractors delegate to: concentrated-liquidity curve conversions,
// yield-vault unlock schedules and lending obligation decoding. Everything
// is exact integer arithmetic on big.Int; no value ever passes through a
// float.
package sharemath

import "math/big"

// CurveMath converts concentrated-liquidity positions into token amounts.
// Prices are square roots in Q64.64 fixed point, as stored on chain.
type CurveMath interface {
	// SqrtPriceX64FromTick returns the Q64.64 square-root price at a tick.
	SqrtPriceX64FromTick(tick int) *big.Int

	// AmountsFromLiquidity converts a position's liquidity into the token A
	// and token B amounts it currently represents, given the pool's current
	// sqrt price and the position's bounds.
	AmountsFromLiquidity(liquidity, current, lower, upper *big.Int, roundUp bool) (amountA, amountB *big.Int)
}

// WhirlpoolCurve implements CurveMath with the whirlpool-style Q64.64 tick
// arithmetic shared by Orca and Raydium concentrated pools.
type WhirlpoolCurve struct{}

var _ CurveMath = WhirlpoolCurve{}

var (
	one  = big.NewInt(1)
	q64  = new(big.Int).Lsh(one, 64)  // 2^64
	q128 = new(big.Int).Lsh(one, 128) // 2^128
)

// negTickRatios[i] is the Q64.64 value of sqrt(1.0001)^-(2^i).
var negTickRatios = [19]*big.Int{
	mustBig("18445821805675392311"),
	mustBig("18444899583751176498"),
	mustBig("18443055278223354162"),
	mustBig("18439367220385604838"),
	mustBig("18431993317065449817"),
	mustBig("18417254355718160513"),
	mustBig("18387811781193591352"),
	mustBig("18329067761203520168"),
	mustBig("18212142134806087854"),
	mustBig("17980523815641551639"),
	mustBig("17526086738831147013"),
	mustBig("16651378430235024244"),
	mustBig("15030750278693429944"),
	mustBig("12247334978882834399"),
	mustBig("8131365268884726200"),
	mustBig("3584323654723342297"),
	mustBig("696457651847595233"),
	mustBig("26294789957452057"),
	mustBig("37481735321082"),
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("sharemath: bad constant " + s)
	}
	return n
}

// SqrtPriceX64FromTick returns the Q64.64 square-root price at a tick.
// Computed over the negative-power constant table; positive ticks take the
// reciprocal in 256-bit space, matching the on-chain implementations.
func (WhirlpoolCurve) SqrtPriceX64FromTick(tick int) *big.Int {
	abs := tick
	if abs < 0 {
		abs = -abs
	}
	ratio := new(big.Int).Set(q64)
	for i := 0; i < len(negTickRatios) && abs != 0; i++ {
		if abs&1 != 0 {
			ratio.Mul(ratio, negTickRatios[i])
			ratio.Rsh(ratio, 64)
		}
		abs >>= 1
	}
	if tick >= 0 {
		ratio.Div(q128, ratio)
	}
	return ratio
}

// AmountsFromLiquidity converts liquidity into token amounts.
// tokenA is the amount above the current price, tokenB the amount below,
// the standard constant-liquidity curve split.
func (WhirlpoolCurve) AmountsFromLiquidity(liquidity, current, lower, upper *big.Int, roundUp bool) (*big.Int, *big.Int) {
	lo, hi := lower, upper
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	switch {
	case current.Cmp(lo) <= 0:
		return amountADelta(liquidity, lo, hi, roundUp), new(big.Int)
	case current.Cmp(hi) >= 0:
		return new(big.Int), amountBDelta(liquidity, lo, hi, roundUp)
	default:
		return amountADelta(liquidity, current, hi, roundUp),
			amountBDelta(liquidity, lo, current, roundUp)
	}
}

// amountADelta = L * 2^64 * (hi - lo) / (hi * lo)
func amountADelta(liquidity, lo, hi *big.Int, roundUp bool) *big.Int {
	num := new(big.Int).Sub(hi, lo)
	num.Mul(num, liquidity)
	num.Lsh(num, 64)
	den := new(big.Int).Mul(hi, lo)
	q, r := num.QuoRem(num, den, new(big.Int))
	if roundUp && r.Sign() != 0 {
		q.Add(q, one)
	}
	return q
}

// amountBDelta = L * (hi - lo) / 2^64
func amountBDelta(liquidity, lo, hi *big.Int, roundUp bool) *big.Int {
	num := new(big.Int).Sub(hi, lo)
	num.Mul(num, liquidity)
	q := new(big.Int).Rsh(num, 64)
	if roundUp {
		rem := new(big.Int).And(num, new(big.Int).Sub(q64, one))
		if rem.Sign() != 0 {
			q.Add(q, one)
		}
	}
	return q
}
