package snapshot_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot/snapshottest"
)

const msolMint = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"

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

func TestOpen_MissingFile(t *testing.T) {
	_, err := snapshot.Open(filepath.Join(t.TempDir(), "nope.sqlite"))
	assert.Error(t, err)
}

func TestSystemOwnedTokenAccountsByMint(t *testing.T) {
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithHolding("walletA", msolMint, "500"))
		require.NoError(t, b.WithHolding("walletB", msolMint, "2000"))
		// held by a program, not a wallet
		require.NoError(t, b.WithAccount("pdaOwner", "someProgram111"))
		require.NoError(t, b.WithTokenAccount("ata-pda", msolMint, "pdaOwner", "9999"))
		// empty account
		require.NoError(t, b.WithHolding("walletC", msolMint, "0"))
		// different mint
		require.NoError(t, b.WithHolding("walletD", "otherMint", "300"))
	})

	got, err := db.SystemOwnedTokenAccountsByMint(context.Background(), msolMint)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "walletB", got[0].Owner)
	assert.Equal(t, "2000", got[0].Amount.String())
	assert.Equal(t, "walletA", got[1].Owner)
	assert.Equal(t, "500", got[1].Amount.String())
}

func TestMintSupply(t *testing.T) {
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithMint(msolMint, "123456789000"))
	})

	supply, err := db.MintSupply(context.Background(), msolMint)
	require.NoError(t, err)
	assert.Equal(t, "123456789000", supply.String())

	_, err = db.MintSupply(context.Background(), "unknownMint")
	assert.ErrorIs(t, err, snapshot.ErrDataMissing)
}

func TestTokenAccountBalance(t *testing.T) {
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.WithTokenAccount("vault1", msolMint, "poolAuthority", "777"))
	})

	amount, err := db.TokenAccountBalance(context.Background(), "vault1")
	require.NoError(t, err)
	assert.Equal(t, "777", amount.String())

	_, err = db.TokenAccountBalance(context.Background(), "vault2")
	assert.ErrorIs(t, err, snapshot.ErrDataMissing)
}

func TestDepositRows(t *testing.T) {
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`INSERT INTO solend (owner, deposit_amount) VALUES (?, ?)`, "alice", 100))
		require.NoError(t, b.Exec(`INSERT INTO solend (owner, deposit_amount) VALUES (?, ?)`, "bob", 900))
	})

	rows, err := db.DepositRows(context.Background(), "solend")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bob", rows[0].Owner)
	assert.Equal(t, "900", rows[0].Amount.String())
	assert.Equal(t, "alice", rows[1].Owner)
}

func TestDepositRows_UnknownTable(t *testing.T) {
	db := openFixture(t, func(b *snapshottest.Builder) {})

	_, err := db.DepositRows(context.Background(), "account; DROP TABLE account")
	assert.Error(t, err)
}

func TestMeteoraVaults(t *testing.T) {
	db := openFixture(t, func(b *snapshottest.Builder) {
		require.NoError(t, b.Exec(`
			INSERT INTO meteora_vaults
				(pubkey, lp_mint, token_vault, last_report, locked_profit_degradation,
				 last_updated_locked_profit, total_amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"vaultPk", "vaultLp", "custody", "1700000000", "1000000", "500000", "10000000"))
	})

	vaults, err := db.MeteoraVaults(context.Background())
	require.NoError(t, err)
	require.Len(t, vaults, 1)
	v := vaults[0]
	assert.Equal(t, "vaultPk", v.Pubkey)
	assert.Equal(t, "vaultLp", v.LpMint)
	assert.Equal(t, int64(1700000000), v.LastReport.Int64())
	assert.Equal(t, int64(10000000), v.TotalAmount.Int64())
}

func TestKaminoStrategies_MintFilter(t *testing.T) {
	insert := func(b *snapshottest.Builder, pubkey, mintA, mintB string) {
		require.NoError(t, b.Exec(`
			INSERT INTO kamino_strategies
				(pubkey, pool, shares_mint, shares_issued, token_a_mint, token_b_mint,
				 token_a_vault, token_b_vault, pool_token_vault_a, pool_token_vault_b,
				 token_a_amounts, token_b_amounts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pubkey, "pool-"+pubkey, "shares-"+pubkey, "1000",
			mintA, mintB, "va", "vb", "pva", "pvb", "111", "222"))
	}
	db := openFixture(t, func(b *snapshottest.Builder) {
		insert(b, "stratA", msolMint, "usdc")
		insert(b, "stratB", "usdc", msolMint)
		insert(b, "stratC", "usdc", "usdt")
	})

	strategies, err := db.KaminoStrategies(context.Background(), msolMint)
	require.NoError(t, err)
	require.Len(t, strategies, 2)
	for _, s := range strategies {
		assert.NotEqual(t, "stratC", s.Pubkey)
		assert.Equal(t, "1000", s.SharesIssued.String())
	}
}
