package metadata

import (
	"context"
	"fmt"
	"strconv"
)

// Default public list endpoints. Overridable for tests and outages.
const (
	DefaultOrcaWhirlpoolListURL = "https://api.mainnet.orca.so/v1/whirlpool/list"
	DefaultRaydiumLiquidityURL  = "https://api.raydium.io/v2/sdk/liquidity/mainnet.json"
	DefaultMeteoraVaultInfoURL  = "https://merv2-api.mercurial.finance/vault_info"
	DefaultMeteoraAmmPoolsURL   = "https://app.meteora.ag/amm/pools"
	DefaultKaminoMarketsURL     = "https://api.kamino.finance/kamino-market"
	DefaultKaminoStrategiesURL  = "https://api.kamino.finance/strategies"
)

// Endpoints groups the protocol list URLs one Protocols client talks to.
type Endpoints struct {
	OrcaWhirlpoolList string
	RaydiumLiquidity  string
	MeteoraVaultInfo  string
	MeteoraAmmPools   string
	KaminoMarkets     string
	KaminoStrategies  string
}

// DefaultEndpoints returns the public mainnet endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		OrcaWhirlpoolList: DefaultOrcaWhirlpoolListURL,
		RaydiumLiquidity:  DefaultRaydiumLiquidityURL,
		MeteoraVaultInfo:  DefaultMeteoraVaultInfoURL,
		MeteoraAmmPools:   DefaultMeteoraAmmPoolsURL,
		KaminoMarkets:     DefaultKaminoMarketsURL,
		KaminoStrategies:  DefaultKaminoStrategiesURL,
	}
}

// Protocols fetches live protocol pool and market listings.
type Protocols struct {
	client    *Client
	endpoints Endpoints
}

// NewProtocols creates a Protocols client.
func NewProtocols(client *Client, endpoints Endpoints) *Protocols {
	return &Protocols{client: client, endpoints: endpoints}
}

// Whirlpool is one Orca whirlpool that has the reference asset on one side.
type Whirlpool struct {
	Name    string
	Address string
	MsolIsA bool // which side of the pool holds the reference asset
}

type whirlpoolListResponse struct {
	Whirlpools []struct {
		Address string `json:"address"`
		TokenA  struct {
			Mint   string `json:"mint"`
			Symbol string `json:"symbol"`
		} `json:"tokenA"`
		TokenB struct {
			Mint   string `json:"mint"`
			Symbol string `json:"symbol"`
		} `json:"tokenB"`
	} `json:"whirlpools"`
}

// OrcaWhirlpools lists whirlpools holding the given mint.
func (p *Protocols) OrcaWhirlpools(ctx context.Context, mint string) ([]Whirlpool, error) {
	var resp whirlpoolListResponse
	if err := p.client.getJSON(ctx, p.endpoints.OrcaWhirlpoolList, &resp); err != nil {
		return nil, fmt.Errorf("orca whirlpool list: %w", err)
	}

	var pools []Whirlpool
	for _, w := range resp.Whirlpools {
		if w.TokenA.Mint != mint && w.TokenB.Mint != mint {
			continue
		}
		pools = append(pools, Whirlpool{
			Name:    w.TokenA.Symbol + "/" + w.TokenB.Symbol,
			Address: w.Address,
			MsolIsA: w.TokenA.Mint == mint,
		})
	}
	return pools, nil
}

// RaydiumPool is one constant-product pool with the reference asset on one
// side: its LP mint and the vault token account holding the asset.
type RaydiumPool struct {
	LpMint string
	Vault  string
}

type raydiumLiquidityResponse struct {
	Official   []raydiumPoolJSON `json:"official"`
	UnOfficial []raydiumPoolJSON `json:"unOfficial"`
}

type raydiumPoolJSON struct {
	BaseMint   string `json:"baseMint"`
	QuoteMint  string `json:"quoteMint"`
	LpMint     string `json:"lpMint"`
	BaseVault  string `json:"baseVault"`
	QuoteVault string `json:"quoteVault"`
}

// RaydiumLiquidityPools lists constant-product pools holding the given mint.
func (p *Protocols) RaydiumLiquidityPools(ctx context.Context, mint string) ([]RaydiumPool, error) {
	var resp raydiumLiquidityResponse
	if err := p.client.getJSON(ctx, p.endpoints.RaydiumLiquidity, &resp); err != nil {
		return nil, fmt.Errorf("raydium liquidity list: %w", err)
	}

	var pools []RaydiumPool
	for _, pool := range append(resp.Official, resp.UnOfficial...) {
		switch mint {
		case pool.BaseMint:
			pools = append(pools, RaydiumPool{LpMint: pool.LpMint, Vault: pool.BaseVault})
		case pool.QuoteMint:
			pools = append(pools, RaydiumPool{LpMint: pool.LpMint, Vault: pool.QuoteVault})
		}
	}
	return pools, nil
}

// MeteoraVault is one live yield vault listing.
type MeteoraVault struct {
	Pubkey string
	LpMint string
}

type meteoraVaultJSON struct {
	Symbol       string `json:"symbol"`
	Pubkey       string `json:"pubkey"`
	TokenAddress string `json:"token_address"`
	LpMint       string `json:"lp_mint"`
}

// MeteoraVaultForMint returns the single live vault for the given mint.
// The vault layout assumes one vault per token; a second one would need new
// base keys, so it is treated as a contract change rather than data.
func (p *Protocols) MeteoraVaultForMint(ctx context.Context, mint string) (*MeteoraVault, error) {
	var vaults []meteoraVaultJSON
	if err := p.client.getJSON(ctx, p.endpoints.MeteoraVaultInfo, &vaults); err != nil {
		return nil, fmt.Errorf("meteora vault list: %w", err)
	}

	var matches []MeteoraVault
	for _, v := range vaults {
		if v.TokenAddress == mint {
			matches = append(matches, MeteoraVault{Pubkey: v.Pubkey, LpMint: v.LpMint})
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no meteora vault for mint %s", ErrUnavailable, mint)
	}
	if len(matches) != 1 {
		return nil, fmt.Errorf("%w: %d meteora vaults for mint %s, single-vault assumption broken", ErrUnavailable, len(matches), mint)
	}
	return &matches[0], nil
}

// MeteoraAmmPool is one live AMM pool built on the shared vaults.
type MeteoraAmmPool struct {
	Pool   string
	LpMint string
}

type meteoraAmmPoolJSON struct {
	PoolAddress    string   `json:"pool_address"`
	PoolTokenMints []string `json:"pool_token_mints"`
	LpMint         string   `json:"lp_mint"`
	PoolVersion    string   `json:"pool_version"`
}

// MeteoraAmmPools lists vault-backed AMM pools containing the given mint.
// Version 1 pools hold tokens directly and are covered by the stable-swap
// source instead.
func (p *Protocols) MeteoraAmmPools(ctx context.Context, mint string) ([]MeteoraAmmPool, error) {
	var resp []meteoraAmmPoolJSON
	if err := p.client.getJSON(ctx, p.endpoints.MeteoraAmmPools, &resp); err != nil {
		return nil, fmt.Errorf("meteora amm pool list: %w", err)
	}

	var pools []MeteoraAmmPool
	for _, pool := range resp {
		version, err := strconv.Atoi(pool.PoolVersion)
		if err != nil || version <= 1 {
			continue
		}
		for _, m := range pool.PoolTokenMints {
			if m == mint {
				pools = append(pools, MeteoraAmmPool{Pool: pool.PoolAddress, LpMint: pool.LpMint})
				break
			}
		}
	}
	return pools, nil
}

// KaminoStrategy is one live yield strategy with the reference asset on one
// side: its address and the shares mint holders are paid through.
type KaminoStrategy struct {
	Address    string
	SharesMint string
}

type kaminoStrategyJSON struct {
	Address    string `json:"address"`
	ShareMint  string `json:"shareMint"`
	TokenAMint string `json:"tokenAMint"`
	TokenBMint string `json:"tokenBMint"`
}

// KaminoStrategies lists live strategies holding the given mint.
func (p *Protocols) KaminoStrategies(ctx context.Context, mint string) ([]KaminoStrategy, error) {
	var resp []kaminoStrategyJSON
	if err := p.client.getJSON(ctx, p.endpoints.KaminoStrategies, &resp); err != nil {
		return nil, fmt.Errorf("kamino strategy list: %w", err)
	}

	var strategies []KaminoStrategy
	for _, s := range resp {
		if s.TokenAMint != mint && s.TokenBMint != mint {
			continue
		}
		strategies = append(strategies, KaminoStrategy{Address: s.Address, SharesMint: s.ShareMint})
	}
	return strategies, nil
}

type kaminoMarketJSON struct {
	LendingMarket string `json:"lendingMarket"`
	IsPrimary     bool   `json:"isPrimary"`
	Name          string `json:"name"`
}

// KaminoLendingMarkets lists the canonical Kamino lending market addresses.
func (p *Protocols) KaminoLendingMarkets(ctx context.Context) ([]string, error) {
	var resp []kaminoMarketJSON
	if err := p.client.getJSON(ctx, p.endpoints.KaminoMarkets, &resp); err != nil {
		return nil, fmt.Errorf("kamino market list: %w", err)
	}

	markets := make([]string, 0, len(resp))
	for _, m := range resp {
		markets = append(markets, m.LendingMarket)
	}
	return markets, nil
}
