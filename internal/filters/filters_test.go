package filters_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/filters"
	"github.com/marinade-finance/solana-snapshot-manager/internal/metadata"
	"github.com/marinade-finance/solana-snapshot-manager/internal/registry"
)

// fakeUpstream serves every protocol list plus the JSON-RPC getAccountInfo
// lookups the descriptor build needs.
func fakeUpstream(t *testing.T, reg *registry.Registry) *httptest.Server {
	t.Helper()
	mint := reg.MsolMint

	mux := http.NewServeMux()
	mux.HandleFunc("/orca", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"whirlpools": [
			{"address": "whirlpool1",
			 "tokenA": {"mint": "` + mint + `", "symbol": "mSOL"},
			 "tokenB": {"mint": "usdc", "symbol": "USDC"}}]}`))
	})
	mux.HandleFunc("/raydium", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"official": [
			{"baseMint": "` + mint + `", "quoteMint": "usdc",
			 "lpMint": "rayLp", "baseVault": "bv", "quoteVault": "qv"}]}`))
	})
	mux.HandleFunc("/meteora-vaults", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"pubkey": "meteoraVault", "token_address": "` + mint + `", "lp_mint": "meteoraLp"}]`))
	})
	mux.HandleFunc("/meteora-pools", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"pool_address": "mercPool", "pool_token_mints": ["` + mint + `", "usdc"],
			"lp_mint": "mercLp", "pool_version": "2"}]`))
	})
	mux.HandleFunc("/kamino-strategies", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"address": "kamStrat", "shareMint": "kamShare",
			 "tokenAMint": "` + mint + `", "tokenBMint": "usdc"},
			{"address": "otherStrat", "shareMint": "otherShare",
			 "tokenAMint": "bonk", "tokenBMint": "usdc"}]`))
	})
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "getAccountInfo":
			var pubkey string
			require.NoError(t, json.Unmarshal(req.Params[0], &pubkey))
			payload := base64.StdEncoding.EncodeToString([]byte("blob:" + pubkey))
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"result": map[string]any{"value": map[string]any{"data": []string{payload, "base64"}}},
			})
		case "getProgramAccounts":
			var program string
			require.NoError(t, json.Unmarshal(req.Params[0], &program))
			assert.Equal(t, reg.MangoProgram, program)
			var cfg struct {
				DataSlice *metadata.DataSlice `json:"dataSlice"`
				Filters   []struct {
					Memcmp struct {
						Offset int    `json:"offset"`
						Bytes  string `json:"bytes"`
					} `json:"memcmp"`
				} `json:"filters"`
			}
			require.NoError(t, json.Unmarshal(req.Params[1], &cfg))
			require.NotNil(t, cfg.DataSlice)
			assert.Equal(t, metadata.DataSlice{Offset: 536, Length: 16}, *cfg.DataSlice)
			require.Len(t, cfg.Filters, 2)
			assert.Equal(t, 8, cfg.Filters[0].Memcmp.Offset)
			assert.Equal(t, reg.MangoGroup, cfg.Filters[0].Memcmp.Bytes)
			assert.Equal(t, 56, cfg.Filters[1].Memcmp.Offset)
			assert.Equal(t, mint, cfg.Filters[1].Memcmp.Bytes)

			// deposit index 1.5 in signed 128-bit fixed point with 48
			// fractional bits, little-endian
			raw := make([]byte, 16)
			raw[5] = 0x80
			raw[6] = 0x01
			payload := base64.StdEncoding.EncodeToString(raw)
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"result": []map[string]any{{
					"pubkey":  "msolBank",
					"account": map[string]any{"data": []string{payload, "base64"}},
				}},
			})
		default:
			t.Fatalf("unexpected RPC method %q", req.Method)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newBuilder(t *testing.T, reg *registry.Registry, base string) *filters.Builder {
	client := metadata.NewClient(
		metadata.WithMaxRetries(0),
		metadata.WithRateLimit(10_000, 10_000),
	)
	protocols := metadata.NewProtocols(client, metadata.Endpoints{
		OrcaWhirlpoolList: base + "/orca",
		RaydiumLiquidity:  base + "/raydium",
		MeteoraVaultInfo:  base + "/meteora-vaults",
		MeteoraAmmPools:   base + "/meteora-pools",
		KaminoStrategies:  base + "/kamino-strategies",
	})
	rpc := metadata.NewRPC(base+"/rpc", client)
	return filters.NewBuilder(reg, protocols, rpc, zap.NewNop())
}

func TestBuilder_Build(t *testing.T) {
	reg := registry.Default()
	srv := fakeUpstream(t, reg)

	d, err := newBuilder(t, reg, srv.URL).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{domain.SystemProgram}, d.AccountOwners)
	assert.Equal(t, []string{"whirlpool1"}, d.WhirlpoolPoolAddress)
	assert.Equal(t, []string{"meteoraVault"}, d.MeteoraVaults)
	assert.Equal(t, []string{"mercPool"}, d.MercurialPools)
	assert.Equal(t, []string{"kamStrat"}, d.KaminoStrategies)

	assert.Contains(t, d.AccountMints, reg.MsolMint)
	assert.Contains(t, d.AccountMints, reg.TulipMint)
	assert.Contains(t, d.AccountMints, reg.FriktionMint)
	assert.Contains(t, d.AccountMints, "rayLp")
	assert.Contains(t, d.AccountMints, "meteoraLp")
	assert.Contains(t, d.AccountMints, "mercLp")
	assert.Contains(t, d.AccountMints, "kamShare")
	assert.NotContains(t, d.AccountMints, "otherShare")
	for _, pool := range reg.SaberPools {
		assert.Contains(t, d.AccountMints, pool.LpMint)
	}

	decode := func(s string) string {
		raw, err := base64.StdEncoding.DecodeString(s)
		require.NoError(t, err)
		return string(raw)
	}
	assert.Equal(t, "blob:"+reg.VsrRegistrar, decode(d.VsrRegistrarData))
	assert.Equal(t, "blob:"+reg.DriftMsolMarket, decode(d.DriftCumulativeInterest))
	assert.Equal(t, "blob:"+reg.MrgnBank, decode(d.MrgnBankData))
	assert.Equal(t, "blob:"+reg.SolendReserve, decode(d.SolendReserveData))
	assert.Equal(t, "1.5", d.MangoBankDepositIndex)
}

func TestBuilder_Build_FetchFailureAborts(t *testing.T) {
	reg := registry.Default()
	srv := fakeUpstream(t, reg)

	client := metadata.NewClient(metadata.WithMaxRetries(0), metadata.WithRateLimit(10_000, 10_000))
	// break the orca endpoint only
	broken := metadata.NewProtocols(client, metadata.Endpoints{
		OrcaWhirlpoolList: srv.URL + "/missing",
		RaydiumLiquidity:  srv.URL + "/raydium",
		MeteoraVaultInfo:  srv.URL + "/meteora-vaults",
		MeteoraAmmPools:   srv.URL + "/meteora-pools",
		KaminoStrategies:  srv.URL + "/kamino-strategies",
	})
	b := filters.NewBuilder(reg, broken, metadata.NewRPC(srv.URL+"/rpc", client), zap.NewNop())

	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, metadata.ErrUnavailable)
}
