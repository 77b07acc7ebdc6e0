package domain

import "math/big"

// Record is one emitted (owner, source) contribution, formatted for the
// persistence layer. Amount is a fixed-point decimal string.
type Record struct {
	Owner   string
	Amount  string
	Source  Source
	IsVault bool
}

// VeMNDERecord is one emitted veMNDE voting-power balance, keyed by the
// voter authority rather than a token owner.
type VeMNDERecord struct {
	Authority string
	Amount    string
}

// NativeStakeRecord is one emitted native stake balance, keyed by the
// withdraw authority.
type NativeStakeRecord struct {
	Authority string
	Amount    string
}

// ReconciliationResult compares aggregated holdings against the reference
// asset's issued supply. Delta = TotalSupply - TotalParsed; a positive delta
// is expected (not-yet-integrated protocols hold the remainder).
type ReconciliationResult struct {
	TotalParsed *big.Int // non-vault contributions
	VaultParsed *big.Int // contributions attributed to custody addresses
	TotalSupply *big.Int
	Delta       *big.Int
}

// Overcounted reports whether parsed holdings exceed the issued supply,
// which indicates a double-count bug in some extractor.
func (r ReconciliationResult) Overcounted() bool {
	sum := new(big.Int).Add(r.TotalParsed, r.VaultParsed)
	return sum.Cmp(r.TotalSupply) > 0
}
