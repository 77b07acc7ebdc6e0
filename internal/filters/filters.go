// Package filters assembles the capture descriptor consumed by the snapshot
// collector: which mints, owners, pools and raw account blobs the next dump
// must include for every extractor to run. The descriptor is the feedback
// half of the pipeline; a field missing here shows up one run later as a
// data-missing skip.
package filters

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sharemath"
)

// driftCumulativeInterestSlice locates the 16-byte cumulative deposit
// interest figure inside the Drift spot market account.
var driftCumulativeInterestSlice = metadata.DataSlice{Offset: 464, Length: 16}

// Mango v4 bank layout: the owning group and the bank mint anchor the
// program scan, depositIndex is the I80F48 behind the oracle config and
// stable price model.
const (
	mangoBankGroupOffset = 8
	mangoBankMintOffset  = 56
)

var mangoDepositIndexSlice = metadata.DataSlice{Offset: 536, Length: 16}

// Descriptor is the collector capture contract. Field names are part of the
// wire contract with the collector and must stay stable.
type Descriptor struct {
	AccountOwners           []string `json:"account_owners"`
	AccountMints            []string `json:"account_mints"`
	WhirlpoolPoolAddress    []string `json:"whirlpool_pool_address"`
	VsrRegistrarData        string   `json:"vsr_registrar_data"`
	DriftCumulativeInterest string   `json:"drift_cumulative_interest"`
	MrgnBankData            string   `json:"mrgn_bank_data"`
	SolendReserveData       string   `json:"solend_reserve_data"`
	MangoBankDepositIndex   string   `json:"mango_bank_deposit_index"`
	MeteoraVaults           []string `json:"meteora_vaults"`
	MercurialPools          []string `json:"mercurial_pools"`
	KaminoStrategies        []string `json:"kamino_strategies"`
}

// Builder assembles descriptors from the live protocol registries and chain
// state. Every fetch is required; the collector cannot act on a partial
// descriptor, so the first failure aborts the build.
type Builder struct {
	registry  *registry.Registry
	protocols *metadata.Protocols
	rpc       *metadata.RPC
	log       *zap.Logger
}

func NewBuilder(reg *registry.Registry, protocols *metadata.Protocols, rpc *metadata.RPC, log *zap.Logger) *Builder {
	return &Builder{registry: reg, protocols: protocols, rpc: rpc, log: log}
}

// Build assembles one complete descriptor.
func (b *Builder) Build(ctx context.Context) (*Descriptor, error) {
	reg := b.registry

	d := &Descriptor{
		AccountOwners: []string{domain.SystemProgram},
		AccountMints: []string{
			reg.MsolMint,
			reg.TulipMint,
			reg.FriktionMint,
			reg.SolendMsolMint,
			reg.MercurialPool.LpMint,
		},
	}
	for _, pool := range reg.SaberPools {
		d.AccountMints = append(d.AccountMints, pool.LpMint)
	}

	whirlpools, err := b.protocols.OrcaWhirlpools(ctx, reg.MsolMint)
	if err != nil {
		return nil, fmt.Errorf("%w: orca whirlpools: %v", metadata.ErrUnavailable, err)
	}
	for _, w := range whirlpools {
		d.WhirlpoolPoolAddress = append(d.WhirlpoolPoolAddress, w.Address)
	}

	raydium, err := b.protocols.RaydiumLiquidityPools(ctx, reg.MsolMint)
	if err != nil {
		return nil, fmt.Errorf("%w: raydium pools: %v", metadata.ErrUnavailable, err)
	}
	for _, p := range raydium {
		d.AccountMints = append(d.AccountMints, p.LpMint)
	}

	vault, err := b.protocols.MeteoraVaultForMint(ctx, reg.MsolMint)
	if err != nil {
		return nil, err
	}
	d.MeteoraVaults = []string{vault.Pubkey}
	d.AccountMints = append(d.AccountMints, vault.LpMint)

	ammPools, err := b.protocols.MeteoraAmmPools(ctx, reg.MsolMint)
	if err != nil {
		return nil, fmt.Errorf("%w: meteora amm pools: %v", metadata.ErrUnavailable, err)
	}
	for _, p := range ammPools {
		d.MercurialPools = append(d.MercurialPools, p.Pool)
		d.AccountMints = append(d.AccountMints, p.LpMint)
	}

	// Kamino share holders are paid through the strategy shares mints, and
	// the collector resolves the strategy rows itself from the listed
	// addresses.
	kamino, err := b.protocols.KaminoStrategies(ctx, reg.MsolMint)
	if err != nil {
		return nil, fmt.Errorf("%w: kamino strategies: %v", metadata.ErrUnavailable, err)
	}
	for _, s := range kamino {
		d.KaminoStrategies = append(d.KaminoStrategies, s.Address)
		d.AccountMints = append(d.AccountMints, s.SharesMint)
	}

	blobs := []struct {
		name   string
		pubkey string
		slice  *metadata.DataSlice
		dst    *string
	}{
		{"vsr registrar", reg.VsrRegistrar, nil, &d.VsrRegistrarData},
		{"drift market", reg.DriftMsolMarket, &driftCumulativeInterestSlice, &d.DriftCumulativeInterest},
		{"mrgn bank", reg.MrgnBank, nil, &d.MrgnBankData},
		{"solend reserve", reg.SolendReserve, nil, &d.SolendReserveData},
	}
	for _, blob := range blobs {
		data, err := b.rpc.GetAccountData(ctx, blob.pubkey, blob.slice)
		if err != nil {
			return nil, fmt.Errorf("%w: %s account %s: %v",
				metadata.ErrUnavailable, blob.name, blob.pubkey, err)
		}
		*blob.dst = base64.StdEncoding.EncodeToString(data)
	}

	if d.MangoBankDepositIndex, err = b.mangoDepositIndex(ctx); err != nil {
		return nil, err
	}

	b.log.Info("built capture descriptor",
		zap.Int("mints", len(d.AccountMints)),
		zap.Int("whirlpools", len(d.WhirlpoolPoolAddress)),
		zap.Int("mercurial_pools", len(d.MercurialPools)),
		zap.Int("kamino_strategies", len(d.KaminoStrategies)))
	return d, nil
}

// mangoDepositIndex scans the mango program for the bank of the reference
// mint inside the configured group and renders its deposit index.
func (b *Builder) mangoDepositIndex(ctx context.Context) (string, error) {
	reg := b.registry
	banks, err := b.rpc.GetProgramAccounts(ctx, reg.MangoProgram, []metadata.MemcmpFilter{
		{Offset: mangoBankGroupOffset, Bytes: reg.MangoGroup},
		{Offset: mangoBankMintOffset, Bytes: reg.MsolMint},
	}, &mangoDepositIndexSlice)
	if err != nil {
		return "", fmt.Errorf("%w: mango bank scan: %v", metadata.ErrUnavailable, err)
	}
	if len(banks) == 0 {
		return "", fmt.Errorf("%w: no mango bank for mint %s", metadata.ErrUnavailable, reg.MsolMint)
	}
	index, err := sharemath.I80F48String(banks[0].Data)
	if err != nil {
		return "", fmt.Errorf("%w: mango bank %s deposit index: %v",
			metadata.ErrUnavailable, banks[0].Pubkey, err)
	}
	return index, nil
}
