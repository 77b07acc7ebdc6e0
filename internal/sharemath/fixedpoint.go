package sharemath

import (
	"fmt"
	"math/big"
	"strings"
)

const i80f48FracBits = 48

var (
	i80f48Two128   = new(big.Int).Lsh(big.NewInt(1), 128)
	i80f48FracMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), i80f48FracBits), big.NewInt(1))
	// 5^48; frac * 5^48 is the exact decimal numerator of frac/2^48 over 10^48
	i80f48Five48 = new(big.Int).Exp(big.NewInt(5), big.NewInt(i80f48FracBits), nil)
)

// I80F48String renders a little-endian I80F48 fixed-point value (signed
// 128-bit, 48 fractional bits) as its exact decimal string, trailing zeros
// trimmed.
func I80F48String(raw []byte) (string, error) {
	if len(raw) != 16 {
		return "", fmt.Errorf("i80f48 value must be 16 bytes, got %d", len(raw))
	}

	be := make([]byte, 16)
	for i, b := range raw {
		be[15-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		v.Sub(v, i80f48Two128)
	}

	sign := ""
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}
	whole := new(big.Int).Rsh(v, i80f48FracBits)
	frac := new(big.Int).And(v, i80f48FracMask)
	if frac.Sign() == 0 {
		return sign + whole.String(), nil
	}

	dec := fmt.Sprintf("%048s", new(big.Int).Mul(frac, i80f48Five48).String())
	return sign + whole.String() + "." + strings.TrimRight(dec, "0"), nil
}
