// Package registry holds the protocol address tables the engine consults:
// mints, custody vaults, reserves, markets. These change as protocols add
// pools, so they live in versioned configuration rather than code; the
// defaults below track mainnet at the time of writing.
package registry

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
)

// LifinityVault is a pool vault whose liquidity is fully owned by one known
// treasury, so its balance is attributed directly without share math.
type LifinityVault struct {
	Name  string `mapstructure:"name"`
	Vault string `mapstructure:"vault"`
	Owner string `mapstructure:"owner"`
}

// SaberPool is one Saber stable pool: LP mint plus reference-asset vault.
type SaberPool struct {
	LpMint string `mapstructure:"lp_mint"`
	Vault  string `mapstructure:"vault"`
}

// MercurialStablePool is the Mercurial stable-swap pool holding the
// reference asset.
type MercurialStablePool struct {
	Pool         string `mapstructure:"pool"`
	LpMint       string `mapstructure:"lp_mint"`
	VaultMsolAta string `mapstructure:"vault_msol_ata"`
}

// Registry is the full address table for one run.
type Registry struct {
	// Reference asset.
	MsolMint     string `mapstructure:"msol_mint"`
	MsolDecimals int    `mapstructure:"msol_decimals"`

	// Share mints attributed one-to-one to their holders.
	TulipMint    string `mapstructure:"tulip_mint"`
	FriktionMint string `mapstructure:"friktion_mint"`

	// Lending / margin integration anchors.
	SolendMsolMint    string `mapstructure:"solend_msol_mint"`
	SolendReserve     string `mapstructure:"solend_reserve"`
	DriftMsolMarket   string `mapstructure:"drift_msol_market"`
	MrgnBank          string `mapstructure:"mrgn_bank"`
	MangoGroup        string `mapstructure:"mango_group"`
	MangoProgram      string `mapstructure:"mango_program"`
	VsrRegistrar      string `mapstructure:"vsr_registrar"`
	PortMsolReserve   string `mapstructure:"port_msol_reserve"`
	PortLendingMarket string `mapstructure:"port_lending_market"`
	PortProgram       string `mapstructure:"port_program"`

	SaberPools     []SaberPool         `mapstructure:"saber_pools"`
	LifinityVaults []LifinityVault     `mapstructure:"lifinity_vaults"`
	MercurialPool  MercurialStablePool `mapstructure:"mercurial_stable_pool"`

	// Custody addresses known up front. Extractors report further ones
	// discovered at run time (e.g. Kamino strategy vaults).
	StaticVaults []string `mapstructure:"static_vaults"`
}

// Default returns the mainnet registry.
func Default() *Registry {
	return &Registry{
		MsolMint:     "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So",
		MsolDecimals: domain.MSolDecimals,

		TulipMint:    "8cn7JcYVjDZesLa3RTt3NXne4WcDw9PdUneQWuByehwW",
		FriktionMint: "6UA3yn28XecAHLTwoCtjfzy3WcyQj1x13bxnH8urUiKt",

		SolendMsolMint:    "3JFC4cB56Er45nWVe29Bhnn5GnwQzSmHVf6eUq9ac91h",
		SolendReserve:     "CCpirWrgNuBVLdkP2haxLTbD6XqEgaYuVXixbbpxUB6",
		DriftMsolMarket:   "Mr2XZwj1NisUur3WZWdERdqnEUMoa9F9pUr52vqHyqj",
		MrgnBank:          "22DcjMZrMwC5Bpa5AGBsmjc5V9VuQrXG6N9ZtdUNyYGE",
		MangoGroup:        "78b8f4cGCwmZ9ysPFMWLaLTkkaYnUjwMJYStWe5RTSSX",
		MangoProgram:      "4MangoMjqJ2firMokCjjGgoK8d4MXcrgL7XJaL3w6fVg",
		VsrRegistrar:      "5zgEgPbWKsAAnLPjSM56ZsbLPfVM6nUzh3u45tCnm97D",
		PortMsolReserve:   "9gDF5W94RowoDugxT8cM29cX8pKKQitTp2uYVrarBSQ7",
		PortLendingMarket: "H27Quk3DSbu55T4dCr1NddTTSAezXwHU67FPCZVKLhSW",
		PortProgram:       "Port7uDYB3wk6GJAw4KT1WpTeMtSu9bTcChBHkX2LfR",

		SaberPools: []SaberPool{
			{
				LpMint: "SoLEao8wTzSfqhuou8rcYsVoLjthVmiXuEjzdNPMnCz",
				Vault:  "9DgFSWkPDGijNKcLGbr3p5xoJbHsPgXUTr6QvGBJ5vGN",
			},
		},
		LifinityVaults: []LifinityVault{
			{
				Name:  "mSOL-USDC v1",
				Vault: "AymgLAHXAHLuZXqF5h8SxfmvwVQ4VykKhUJda87DUWZe",
				Owner: "71hhezkHQ2dhmPySsHVCCkLggfWzPFEBdfEjbn4NCXMG",
			},
			{
				Name:  "mSOL-UXD v1",
				Vault: "2u4darckm8R24hZdYQEWDQwMRuQCh1x4zDtEZr74Kiue",
				Owner: "71hhezkHQ2dhmPySsHVCCkLggfWzPFEBdfEjbn4NCXMG",
			},
			{
				Name:  "mSOL-USDC v2",
				Vault: "5z4wU1DidgndEk4oJPsKUDyQxRgZpVWrhwVnMAU6XTJE",
				Owner: "71hhezkHQ2dhmPySsHVCCkLggfWzPFEBdfEjbn4NCXMG",
			},
			{
				Name:  "mSOL-USDT v2",
				Vault: "7GawBqVSriYXQYCTr5XygeRNTeHamRWeHmVFiuf6wLfK",
				Owner: "71hhezkHQ2dhmPySsHVCCkLggfWzPFEBdfEjbn4NCXMG",
			},
			{
				Name:  "MNDE-mSOL v2",
				Vault: "3TauBEL9fTs531NLKcaFKNr4va4XZmuvGGG13uoyq6BV",
				Owner: "71hhezkHQ2dhmPySsHVCCkLggfWzPFEBdfEjbn4NCXMG",
			},
		},
		MercurialPool: MercurialStablePool{
			Pool:         "MAR1zHjHaQcniE2gXsDptkyKUnNfMEsLBVcfP7vLyv7",
			LpMint:       "7HqhfUqig7kekN8FbJCtQ36VgdXKriZWQ62rTve9ZmQ",
			VaultMsolAta: "GM48qFn8rnqhyNMrBHyPJgUVwXQ1JvMbcu3b9zkThW9L",
		},
	}
}

// Load reads a registry from viper configuration, falling back to defaults
// for anything the config does not set.
func Load(v *viper.Viper) (*Registry, error) {
	reg := Default()
	if v != nil {
		if err := v.UnmarshalKey("registry", reg); err != nil {
			return nil, fmt.Errorf("unmarshal address registry: %w", err)
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Validate checks that every configured address decodes to a 32-byte key.
func (r *Registry) Validate() error {
	check := func(field, addr string) error {
		if addr == "" {
			return fmt.Errorf("registry: %s is empty", field)
		}
		if err := domain.ValidateAddress(addr); err != nil {
			return fmt.Errorf("registry: %s: %w", field, err)
		}
		return nil
	}

	fields := map[string]string{
		"msol_mint":           r.MsolMint,
		"tulip_mint":          r.TulipMint,
		"friktion_mint":       r.FriktionMint,
		"solend_msol_mint":    r.SolendMsolMint,
		"solend_reserve":      r.SolendReserve,
		"drift_msol_market":   r.DriftMsolMarket,
		"mrgn_bank":           r.MrgnBank,
		"mango_group":         r.MangoGroup,
		"mango_program":       r.MangoProgram,
		"vsr_registrar":       r.VsrRegistrar,
		"port_msol_reserve":   r.PortMsolReserve,
		"port_lending_market": r.PortLendingMarket,
		"port_program":        r.PortProgram,
	}
	for field, addr := range fields {
		if err := check(field, addr); err != nil {
			return err
		}
	}
	for i, pool := range r.SaberPools {
		if err := check(fmt.Sprintf("saber_pools[%d].lp_mint", i), pool.LpMint); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("saber_pools[%d].vault", i), pool.Vault); err != nil {
			return err
		}
	}
	for i, vault := range r.LifinityVaults {
		if err := check(fmt.Sprintf("lifinity_vaults[%d].vault", i), vault.Vault); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("lifinity_vaults[%d].owner", i), vault.Owner); err != nil {
			return err
		}
	}
	for i, vault := range r.StaticVaults {
		if err := check(fmt.Sprintf("static_vaults[%d]", i), vault); err != nil {
			return err
		}
	}
	return nil
}

// OnCurveVaults returns statically registered custody addresses that decode
// to on-curve points. Custody addresses are normally program-derived and
// off-curve, so an on-curve entry usually means a wallet address slipped
// into the vault list and deserves operator review.
func (r *Registry) OnCurveVaults() []string {
	var suspicious []string
	for _, vault := range r.StaticVaults {
		if domain.IsOnCurve(vault) {
			suspicious = append(suspicious, vault)
		}
	}
	return suspicious
}
