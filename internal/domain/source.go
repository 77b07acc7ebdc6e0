package domain

// Source identifies the protocol integration that contributed a balance.
type Source string

const (
	SourceWallet             Source = "WALLET"
	SourceOrca               Source = "ORCA"
	SourceRaydiumV2          Source = "RAYDIUM_V2"
	SourceRaydiumV3          Source = "RAYDIUM_V3"
	SourceSolend             Source = "SOLEND"
	SourceTulip              Source = "TULIP"
	SourceMercurialStable    Source = "MERCURIAL_STABLE_SWAP_POOL"
	SourceMeteoraVaults      Source = "MERCURIAL_METEORA_VAULTS"
	SourceSaber              Source = "SABER"
	SourceFriktion           Source = "FRIKTION"
	SourcePort               Source = "PORT"
	SourceDrift              Source = "DRIFT"
	SourceMrgn               Source = "MRGN"
	SourceMango              Source = "MANGO"
	SourceLifinity           Source = "LIFINITY"
	SourceKamino             Source = "KAMINO"
	SourceKaminoLending      Source = "KAMINO_LENDING"
)

// SourceOrder is the canonical enumeration order of extraction sources.
// The order has no effect on aggregated totals (folding is commutative per
// owner) but keeps logs and emitted record sequences reproducible.
var SourceOrder = []Source{
	SourceWallet,
	SourceOrca,
	SourceRaydiumV2,
	SourceRaydiumV3,
	SourceSolend,
	SourceTulip,
	SourceMercurialStable,
	SourceMeteoraVaults,
	SourceSaber,
	SourceFriktion,
	SourcePort,
	SourceDrift,
	SourceMrgn,
	SourceMango,
	SourceLifinity,
	SourceKamino,
	SourceKaminoLending,
}

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a known value.
func (s Source) IsValid() bool {
	for _, known := range SourceOrder {
		if s == known {
			return true
		}
	}
	return false
}
