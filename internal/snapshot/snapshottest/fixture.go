// Package snapshottest builds throwaway SQLite snapshot dumps for tests,
// with the same schema the collector produces.
package snapshottest

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE account (
	pubkey TEXT PRIMARY KEY,
	owner TEXT NOT NULL
);
CREATE TABLE token_account (
	pubkey TEXT PRIMARY KEY,
	mint TEXT NOT NULL,
	owner TEXT NOT NULL,
	amount INTEGER NOT NULL
);
CREATE TABLE token_mint (
	pubkey TEXT PRIMARY KEY,
	supply INTEGER NOT NULL
);
CREATE TABLE whirlpool_pools (
	pubkey TEXT PRIMARY KEY,
	token_a TEXT NOT NULL,
	token_b TEXT NOT NULL,
	sqrt_price TEXT NOT NULL
);
CREATE TABLE orca (
	position_mint TEXT PRIMARY KEY,
	pool TEXT NOT NULL,
	price_lower TEXT NOT NULL,
	price_upper TEXT NOT NULL,
	liquidity TEXT NOT NULL
);
CREATE TABLE raydium_amms (
	pubkey TEXT PRIMARY KEY,
	mint1 TEXT NOT NULL,
	mint2 TEXT NOT NULL,
	vault1 TEXT NOT NULL,
	vault2 TEXT NOT NULL,
	liquidity TEXT NOT NULL,
	sqrt_price_x64 TEXT NOT NULL
);
CREATE TABLE raydium_amm_positions (
	nft_mint TEXT PRIMARY KEY,
	pool_id TEXT NOT NULL,
	tick_lower_index INTEGER NOT NULL,
	tick_upper_index INTEGER NOT NULL,
	liquidity TEXT NOT NULL
);
CREATE TABLE solend (
	owner TEXT NOT NULL,
	deposit_amount INTEGER NOT NULL
);
CREATE TABLE drift (
	owner TEXT NOT NULL,
	amount INTEGER NOT NULL
);
CREATE TABLE mrgn (
	owner TEXT NOT NULL,
	amount INTEGER NOT NULL
);
CREATE TABLE mango (
	owner TEXT NOT NULL,
	amount INTEGER NOT NULL
);
CREATE TABLE port (
	pubkey TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	data BLOB NOT NULL
);
CREATE TABLE meteora_vaults (
	pubkey TEXT PRIMARY KEY,
	lp_mint TEXT NOT NULL,
	token_vault TEXT NOT NULL,
	last_report TEXT NOT NULL,
	locked_profit_degradation TEXT NOT NULL,
	last_updated_locked_profit TEXT NOT NULL,
	total_amount TEXT NOT NULL
);
CREATE TABLE mercurial_pools (
	pubkey TEXT PRIMARY KEY,
	lp_mint TEXT NOT NULL,
	token_a_mint TEXT NOT NULL,
	token_b_mint TEXT NOT NULL,
	a_vault_lp TEXT NOT NULL,
	b_vault_lp TEXT NOT NULL
);
CREATE TABLE kamino_strategies (
	pubkey TEXT PRIMARY KEY,
	pool TEXT NOT NULL,
	shares_mint TEXT NOT NULL,
	shares_issued TEXT NOT NULL,
	token_a_mint TEXT NOT NULL,
	token_b_mint TEXT NOT NULL,
	token_a_vault TEXT NOT NULL,
	token_b_vault TEXT NOT NULL,
	pool_token_vault_a TEXT NOT NULL,
	pool_token_vault_b TEXT NOT NULL,
	token_a_amounts TEXT NOT NULL,
	token_b_amounts TEXT NOT NULL
);
CREATE TABLE kamino_obligations (
	owner TEXT NOT NULL,
	market TEXT NOT NULL,
	mint TEXT NOT NULL,
	deposited_amount INTEGER NOT NULL
);
CREATE TABLE vemnde_accounts (
	pubkey TEXT PRIMARY KEY,
	voter_authority TEXT NOT NULL,
	voting_power TEXT NOT NULL
);
CREATE TABLE native_stake_accounts (
	pubkey TEXT PRIMARY KEY,
	withdraw_authority TEXT NOT NULL,
	amount TEXT NOT NULL
);
`

// Builder creates and populates a snapshot dump file.
type Builder struct {
	Path string
	db   *sql.DB
}

// New creates an empty snapshot dump under dir and applies the schema.
func New(dir string) (*Builder, error) {
	path := filepath.Join(dir, "snapshot.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open fixture db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply fixture schema: %w", err)
	}
	return &Builder{Path: path, db: db}, nil
}

// Close finishes writing the fixture. The file stays readable afterwards.
func (b *Builder) Close() error {
	return b.db.Close()
}

// Exec runs one statement against the fixture.
func (b *Builder) Exec(query string, args ...any) error {
	_, err := b.db.Exec(query, args...)
	return err
}

// WithSystemAccount registers a plain system-owned account.
// Repeated registrations of the same pubkey are ignored.
func (b *Builder) WithSystemAccount(pubkey string) error {
	return b.Exec(`INSERT OR IGNORE INTO account (pubkey, owner) VALUES (?, ?)`,
		pubkey, "11111111111111111111111111111111")
}

// WithAccount registers an account with an arbitrary owning program.
func (b *Builder) WithAccount(pubkey, owner string) error {
	return b.Exec(`INSERT INTO account (pubkey, owner) VALUES (?, ?)`, pubkey, owner)
}

// WithTokenAccount registers a token account.
func (b *Builder) WithTokenAccount(pubkey, mint, owner string, amount string) error {
	return b.Exec(`INSERT INTO token_account (pubkey, mint, owner, amount) VALUES (?, ?, ?, ?)`,
		pubkey, mint, owner, amount)
}

// WithMint registers a token mint with its supply.
func (b *Builder) WithMint(pubkey string, supply string) error {
	return b.Exec(`INSERT INTO token_mint (pubkey, supply) VALUES (?, ?)`, pubkey, supply)
}

// WithHolding registers a system-owned wallet holding amount of mint,
// deriving synthetic account pubkeys from the owner.
func (b *Builder) WithHolding(owner, mint string, amount string) error {
	if err := b.WithSystemAccount(owner); err != nil {
		return err
	}
	return b.WithTokenAccount("ata-"+mint+"-"+owner, mint, owner, amount)
}
