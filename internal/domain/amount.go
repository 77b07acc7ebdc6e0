package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// MSolDecimals is the decimal count of the mSOL mint.
const MSolDecimals = 9

// ParseAmount parses a base-10 integer amount as read from the snapshot.
// Snapshot columns are always cast to text before crossing this boundary so
// large supplies never pass through a float.
func ParseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", s)
	}
	return n, nil
}

// FormatLamports renders an integer amount in the asset's smallest unit as a
// fixed-point decimal string. The decimal point is inserted by digit
// manipulation only; no floating-point arithmetic is involved.
func FormatLamports(amount *big.Int, decimals int) string {
	s := amount.Text(10)
	if decimals <= 0 {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) < decimals+1 {
		s = strings.Repeat("0", decimals+1-len(s)) + s
	}
	out := s[:len(s)-decimals] + "." + s[len(s)-decimals:]
	if neg {
		out = "-" + out
	}
	return out
}

// MlamportsToMsol formats an mSOL lamport amount with the mSOL decimal count.
func MlamportsToMsol(amount *big.Int) string {
	return FormatLamports(amount, MSolDecimals)
}
