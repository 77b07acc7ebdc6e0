package sources_test

import (
	"context"
	"encoding/binary"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sharemath"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot/snapshottest"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sources"
)

func testDeps() sources.Deps {
	return sources.Deps{
		Registry: registry.Default(),
		Curve:    sharemath.WhirlpoolCurve{},
		Vault:    sharemath.LockedProfitVault{},
		Decoder:  sharemath.PortDecoder{},
		Log:      zap.NewNop(),
	}
}

// fakeProtocols serves canned protocol listings on the given routes.
func fakeProtocols(t *testing.T, routes map[string]string) *metadata.Protocols {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := metadata.NewClient(
		metadata.WithMaxRetries(0),
		metadata.WithRateLimit(10_000, 10_000),
	)
	return metadata.NewProtocols(client, metadata.Endpoints{
		OrcaWhirlpoolList: srv.URL + "/orca",
		RaydiumLiquidity:  srv.URL + "/raydium",
		MeteoraVaultInfo:  srv.URL + "/meteora-vaults",
		MeteoraAmmPools:   srv.URL + "/meteora-pools",
		KaminoMarkets:     srv.URL + "/kamino-markets",
		KaminoStrategies:  srv.URL + "/kamino-strategies",
	})
}

func openFixture(t *testing.T, build func(b *snapshottest.Builder)) *snapshot.DB {
	t.Helper()
	b, err := snapshottest.New(t.TempDir())
	require.NoError(t, err)
	build(b)
	require.NoError(t, b.Close())

	db, err := snapshot.Open(b.Path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBalances_Add(t *testing.T) {
	b := make(sources.Balances)
	b.Add("alice", big.NewInt(100))
	b.Add("alice", big.NewInt(50))
	b.Add("bob", big.NewInt(0))
	b.Add("carol", big.NewInt(-5))

	require.Len(t, b, 1)
	assert.Equal(t, "150", b["alice"].String())

	// the stored value must not alias the caller's big.Int
	src := big.NewInt(7)
	b.Add("dave", src)
	src.SetInt64(9999)
	assert.Equal(t, "7", b["dave"].String())
}

func TestWalletExtractor(t *testing.T) {
	deps := testDeps()
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithHolding("walletA", deps.Registry.MsolMint, "1000000000"))
		require.NoError(t, b.WithHolding("walletB", deps.Registry.MsolMint, "42"))
		// program-owned custody account must not count
		require.NoError(t, b.WithAccount("custody", "someProgram"))
		require.NoError(t, b.WithTokenAccount("custody-ata", deps.Registry.MsolMint, "custody", "5555"))
	})

	got, err := sources.NewWalletExtractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1000000000", got["walletA"].String())
	assert.Equal(t, "42", got["walletB"].String())
}

func TestShareMintExtractor(t *testing.T) {
	deps := testDeps()
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithHolding("farmer", deps.Registry.TulipMint, "300"))
	})

	e := sources.NewShareMintExtractor(deps, domain.SourceTulip, deps.Registry.TulipMint)
	assert.Equal(t, domain.SourceTulip, e.Tag())

	got, err := e.Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "300", got["farmer"].String())
}

func TestDepositTableExtractor(t *testing.T) {
	deps := testDeps()
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`INSERT INTO drift (owner, amount) VALUES (?, ?)`, "trader", 700))
		require.NoError(t, b.Exec(`INSERT INTO drift (owner, amount) VALUES (?, ?)`, "trader", 300))
	})

	e := sources.NewDepositTableExtractor(deps, domain.SourceDrift, "drift")
	got, err := e.Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1000", got["trader"].String())
}

func portBlob(t *testing.T, market, owner, reserve string, amount uint64) []byte {
	t.Helper()
	data := make([]byte, sharemath.PortProfileDataSize)
	for offset, address := range map[int]string{10: market, 42: owner} {
		raw, err := base58.Decode(address)
		require.NoError(t, err)
		copy(data[offset:offset+32], raw)
	}
	data[138] = 1
	raw, err := base58.Decode(reserve)
	require.NoError(t, err)
	copy(data[140:172], raw)
	binary.LittleEndian.PutUint64(data[172:180], amount)
	return data
}

func TestPortExtractor(t *testing.T) {
	deps := testDeps()
	reg := deps.Registry
	owner := "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"

	db := openFixture(t, func(b *snapshottest.Builder) {
		good := portBlob(t, reg.PortLendingMarket, owner, reg.PortMsolReserve, 1234)
		require.NoError(t, b.Exec(`INSERT INTO port (pubkey, owner, data) VALUES (?, ?, ?)`,
			"obligation1", reg.PortProgram, good))

		// foreign program
		require.NoError(t, b.Exec(`INSERT INTO port (pubkey, owner, data) VALUES (?, ?, ?)`,
			"obligation2", "EvilProgram1111111111111111111111111111111", good))

		// foreign lending market
		foreign := portBlob(t, reg.SolendReserve, owner, reg.PortMsolReserve, 5000)
		require.NoError(t, b.Exec(`INSERT INTO port (pubkey, owner, data) VALUES (?, ?, ?)`,
			"obligation3", reg.PortProgram, foreign))

		// truncated blob, must be skipped with a warning
		require.NoError(t, b.Exec(`INSERT INTO port (pubkey, owner, data) VALUES (?, ?, ?)`,
			"obligation4", reg.PortProgram, []byte{1, 2, 3}))
	})

	got, err := sources.NewPortExtractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1234", got[owner].String())
}

func TestSaberExtractor_Distribution(t *testing.T) {
	deps := testDeps()
	deps.Registry.SaberPools = []registry.SaberPool{{LpMint: "saberLp", Vault: "saberVault"}}

	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithTokenAccount("saberVault", deps.Registry.MsolMint, "poolAuthority", "500"))
		require.NoError(t, b.WithMint("saberLp", "1000"))
		require.NoError(t, b.WithHolding("lpHolder", "saberLp", "250"))
		require.NoError(t, b.WithHolding("lpWhale", "saberLp", "750"))
	})

	got, err := sources.NewSaberExtractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "125", got["lpHolder"].String())
	assert.Equal(t, "375", got["lpWhale"].String())
}

func TestSaberExtractor_MissingVaultSkipped(t *testing.T) {
	deps := testDeps()
	deps.Registry.SaberPools = []registry.SaberPool{{LpMint: "saberLp", Vault: "notCaptured"}}

	db := openFixture(t, func(b *snapshottest.Builder) {})

	got, err := sources.NewSaberExtractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMercurialStableExtractor(t *testing.T) {
	deps := testDeps()
	deps.Registry.MercurialPool = registry.MercurialStablePool{
		Pool: "mercPool", LpMint: "mercLp", VaultMsolAta: "mercVault",
	}

	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithTokenAccount("mercVault", deps.Registry.MsolMint, "mercPool", "900"))
		require.NoError(t, b.WithMint("mercLp", "300"))
		require.NoError(t, b.WithHolding("lpHolder", "mercLp", "100"))
	})

	got, err := sources.NewMercurialStableExtractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "300", got["lpHolder"].String())
}

func TestLifinityExtractor(t *testing.T) {
	deps := testDeps()
	deps.Registry.LifinityVaults = []registry.LifinityVault{
		{Name: "mSOL-USDC", Vault: "lifinityVault1", Owner: "treasury"},
		{Name: "mSOL-UST", Vault: "goneVault", Owner: "treasury"},
	}

	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithTokenAccount("lifinityVault1", deps.Registry.MsolMint, "poolAuthority", "8888"))
	})

	got, err := sources.NewLifinityExtractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "8888", got["treasury"].String())
}

func TestRaydiumV3Extractor(t *testing.T) {
	deps := testDeps()
	db := openFixture(t, func(b *snapshottest.Builder) {
		// price fixed at 1.0, position range below current price: all value
		// sits in token A
		sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 64)
		require.NoError(t, b.Exec(`
			INSERT INTO raydium_amms (pubkey, mint1, mint2, vault1, vault2, liquidity, sqrt_price_x64)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"rayPool", deps.Registry.MsolMint, "usdc", "v1", "v2", "0", sqrtPrice.String()))
		require.NoError(t, b.Exec(`
			INSERT INTO raydium_amm_positions (nft_mint, pool_id, tick_lower_index, tick_upper_index, liquidity)
			VALUES (?, ?, ?, ?, ?)`,
			"posNft", "rayPool", 10, 20, "1000000000"))
		require.NoError(t, b.WithHolding("positionOwner", "posNft", "1"))
	})

	got, err := sources.NewRaydiumV3Extractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Positive(t, got["positionOwner"].Sign())
}

func TestRaydiumV3Extractor_RoundsDown(t *testing.T) {
	deps := testDeps()
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 64)
	liquidity := big.NewInt(1_000_000_000)

	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`
			INSERT INTO raydium_amms (pubkey, mint1, mint2, vault1, vault2, liquidity, sqrt_price_x64)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"rayPool", deps.Registry.MsolMint, "usdc", "v1", "v2", "0", sqrtPrice.String()))
		require.NoError(t, b.Exec(`
			INSERT INTO raydium_amm_positions (nft_mint, pool_id, tick_lower_index, tick_upper_index, liquidity)
			VALUES (?, ?, ?, ?, ?)`,
			"posNft", "rayPool", 10, 20, liquidity.String()))
		require.NoError(t, b.WithHolding("positionOwner", "posNft", "1"))
	})

	curve := deps.Curve
	lower := curve.SqrtPriceX64FromTick(10)
	upper := curve.SqrtPriceX64FromTick(20)
	floorA, _ := curve.AmountsFromLiquidity(liquidity, sqrtPrice, lower, upper, false)
	upA, _ := curve.AmountsFromLiquidity(liquidity, sqrtPrice, lower, upper, true)
	require.NotEqual(t, floorA.String(), upA.String(), "fixture must carry a division remainder")

	got, err := sources.NewRaydiumV3Extractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, floorA.String(), got["positionOwner"].String())
}

func TestOrcaExtractor_RoundsUp(t *testing.T) {
	deps := testDeps()
	deps.Protocols = fakeProtocols(t, map[string]string{
		"/orca": `{"whirlpools": [
			{"address": "wp1",
			 "tokenA": {"mint": "` + deps.Registry.MsolMint + `", "symbol": "mSOL"},
			 "tokenB": {"mint": "usdc", "symbol": "USDC"}}]}`,
	})

	// price 1.0, position range [4, 9]: all value sits in token A and the
	// split is 101/6, which only integer round-up turns into 17
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 64)
	lower := new(big.Int).Lsh(big.NewInt(2), 64)
	upper := new(big.Int).Lsh(big.NewInt(3), 64)

	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`
			INSERT INTO whirlpool_pools (pubkey, token_a, token_b, sqrt_price)
			VALUES (?, ?, ?, ?)`,
			"wp1", deps.Registry.MsolMint, "usdc", sqrtPrice.String()))
		require.NoError(t, b.Exec(`
			INSERT INTO orca (position_mint, pool, price_lower, price_upper, liquidity)
			VALUES (?, ?, ?, ?, ?)`,
			"posMint", "wp1", lower.String(), upper.String(), "101"))
		require.NoError(t, b.WithHolding("posOwner", "posMint", "1"))
	})

	got, err := sources.NewOrcaExtractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "17", got["posOwner"].String())
}

func TestRaydiumV2Extractor(t *testing.T) {
	deps := testDeps()
	deps.Protocols = fakeProtocols(t, map[string]string{
		"/raydium": `{"official": [
			{"baseMint": "` + deps.Registry.MsolMint + `", "quoteMint": "usdc",
			 "lpMint": "rayV2Lp", "baseVault": "rayVault", "quoteVault": "qv"},
			{"baseMint": "` + deps.Registry.MsolMint + `", "quoteMint": "bonk",
			 "lpMint": "goneLp", "baseVault": "goneVault", "quoteVault": "qv2"}]}`,
	})

	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithTokenAccount("rayVault", deps.Registry.MsolMint, "poolAuthority", "1000"))
		require.NoError(t, b.WithMint("rayV2Lp", "100"))
		require.NoError(t, b.WithHolding("lpHolder", "rayV2Lp", "25"))
		// the second pool's vault was never captured and must be skipped
	})

	got, err := sources.NewRaydiumV2Extractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "250", got["lpHolder"].String())
}

func TestMeteoraExtractor(t *testing.T) {
	deps := testDeps()
	deps.BlockTime = 1_700_000_000
	deps.Protocols = fakeProtocols(t, map[string]string{
		"/meteora-vaults": `[{"pubkey": "metVault", "token_address": "` +
			deps.Registry.MsolMint + `", "lp_mint": "metLp"}]`,
	})

	db := openFixture(t, func(b *snapshottest.Builder) {
		// no locked profit: the full vault amount is withdrawable
		require.NoError(t, b.Exec(`
			INSERT INTO meteora_vaults
				(pubkey, lp_mint, token_vault, last_report,
				 locked_profit_degradation, last_updated_locked_profit, total_amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"metVault", "metLp", "metTokenVault", "1700000000", "0", "0", "1000"))
		require.NoError(t, b.WithMint("metLp", "100"))

		// tier one: a wallet holding vault LP directly
		require.NoError(t, b.WithHolding("directHolder", "metLp", "10"))

		// tier two: an AMM pool holding vault LP, passed through to its
		// own LP holders
		require.NoError(t, b.Exec(`
			INSERT INTO mercurial_pools
				(pubkey, lp_mint, token_a_mint, token_b_mint, a_vault_lp, b_vault_lp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			"ammPool", "ammLp", deps.Registry.MsolMint, "usdc", "ammAVaultLp", "bvl"))
		require.NoError(t, b.WithTokenAccount("ammAVaultLp", "metLp", "ammPool", "50"))
		require.NoError(t, b.WithMint("ammLp", "1000"))
		require.NoError(t, b.WithHolding("ammHolder", "ammLp", "400"))
	})

	e := sources.NewMeteoraExtractor(deps)
	got, err := e.Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "100", got["directHolder"].String())
	// pool share 50/100 of 1000 = 500, holder share 400/1000 of that
	assert.Equal(t, "200", got["ammHolder"].String())
	assert.Equal(t, []string{"ammPool"}, e.DiscoveredVaults())
}

func TestKaminoLendingExtractor(t *testing.T) {
	deps := testDeps()
	deps.Protocols = fakeProtocols(t, map[string]string{
		"/kamino-markets": `[{"lendingMarket": "mainMarket", "isPrimary": true, "name": "Main Market"}]`,
	})

	db := openFixture(t, func(b *snapshottest.Builder) {
		insert := `INSERT INTO kamino_obligations (owner, market, mint, deposited_amount) VALUES (?, ?, ?, ?)`
		require.NoError(t, b.Exec(insert, "lender", "mainMarket", deps.Registry.MsolMint, 800))
		require.NoError(t, b.Exec(insert, "forkUser", "testMarket", deps.Registry.MsolMint, 999))
		require.NoError(t, b.Exec(insert, "otherAsset", "mainMarket", "usdc", 123))
	})

	got, err := sources.NewKaminoLendingExtractor(deps).Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "800", got["lender"].String())
}

func TestKaminoExtractor(t *testing.T) {
	deps := testDeps()
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`
			INSERT INTO kamino_strategies
				(pubkey, pool, shares_mint, shares_issued, token_a_mint, token_b_mint,
				 token_a_vault, token_b_vault, pool_token_vault_a, pool_token_vault_b,
				 token_a_amounts, token_b_amounts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"strat", "whirl", "kShares", "1000", deps.Registry.MsolMint, "usdc",
			"va", "vb", "pva", "pvb", "600", "999999"))
		require.NoError(t, b.WithMint("kShares", "1000"))
		require.NoError(t, b.WithHolding("kHolder", "kShares", "500"))
	})

	e := sources.NewKaminoExtractor(deps)
	got, err := e.Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "300", got["kHolder"].String())
	// custody is the strategy's token vault and the pool vault on the
	// reference-asset side
	assert.ElementsMatch(t, []string{"va", "pva"}, e.DiscoveredVaults())
}

func TestKaminoExtractor_ReferenceAssetOnBSide(t *testing.T) {
	deps := testDeps()
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`
			INSERT INTO kamino_strategies
				(pubkey, pool, shares_mint, shares_issued, token_a_mint, token_b_mint,
				 token_a_vault, token_b_vault, pool_token_vault_a, pool_token_vault_b,
				 token_a_amounts, token_b_amounts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"strat", "whirl", "kShares", "1000", "usdc", deps.Registry.MsolMint,
			"va", "vb", "pva", "pvb", "999999", "600"))
		require.NoError(t, b.WithMint("kShares", "1000"))
		require.NoError(t, b.WithHolding("kHolder", "kShares", "500"))
	})

	e := sources.NewKaminoExtractor(deps)
	got, err := e.Extract(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "300", got["kHolder"].String())
	assert.ElementsMatch(t, []string{"vb", "pvb"}, e.DiscoveredVaults())
}

func TestKaminoExtractor_ZeroSharesSkipped(t *testing.T) {
	deps := testDeps()
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`
			INSERT INTO kamino_strategies
				(pubkey, pool, shares_mint, shares_issued, token_a_mint, token_b_mint,
				 token_a_vault, token_b_vault, pool_token_vault_a, pool_token_vault_b,
				 token_a_amounts, token_b_amounts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"emptyStrat", "whirl", "kShares", "0", deps.Registry.MsolMint, "usdc",
			"va", "vb", "pva", "pvb", "600", "0"))
	})

	e := sources.NewKaminoExtractor(deps)
	got, err := e.Extract(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, got)
	// custody vaults are reported even when the strategy holds nothing
	assert.ElementsMatch(t, []string{"va", "pva"}, e.DiscoveredVaults())
}

func TestStakeBalances(t *testing.T) {
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`INSERT INTO vemnde_accounts (pubkey, voter_authority, voting_power) VALUES (?, ?, ?)`,
			"voter1", "authorityA", "100"))
		require.NoError(t, b.Exec(`INSERT INTO vemnde_accounts (pubkey, voter_authority, voting_power) VALUES (?, ?, ?)`,
			"voter2", "authorityA", "50"))
		require.NoError(t, b.Exec(`INSERT INTO native_stake_accounts (pubkey, withdraw_authority, amount) VALUES (?, ?, ?)`,
			"stake1", "authorityB", "7777"))
	})

	log := zap.NewNop()
	ve, err := sources.VeMNDEBalances(context.Background(), db, log)
	require.NoError(t, err)
	require.Len(t, ve, 1)
	assert.Equal(t, "150", ve["authorityA"].String())

	native, err := sources.NativeStakeBalances(context.Background(), db, log)
	require.NoError(t, err)
	require.Len(t, native, 1)
	assert.Equal(t, "7777", native["authorityB"].String())
}

func TestAll_CanonicalOrder(t *testing.T) {
	extractors := sources.All(testDeps())
	require.Len(t, extractors, len(domain.SourceOrder))
	for i, e := range extractors {
		assert.Equal(t, domain.SourceOrder[i], e.Tag())
	}
}
