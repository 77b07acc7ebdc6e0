// Package snapshot provides read-only, indexed access to a point-in-time
// SQLite dump of ledger account state produced by the snapshot collector.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
)

// ErrDataMissing is returned when a required row (mint, vault account, ...)
// is absent from the dump. Callers decide per source whether this is fatal.
var ErrDataMissing = errors.New("snapshot data missing")

// DB is a read-only handle to one snapshot dump. Opened at run start,
// closed at run end, never mutated.
type DB struct {
	db *sql.DB
}

// Open opens the SQLite dump at path in read-only mode.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", url.PathEscape(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping snapshot %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// TokenAccount is a single token ledger entry as captured in the snapshot.
type TokenAccount struct {
	Pubkey string
	Owner  string
	Amount *big.Int
}

// SystemOwnedTokenAccountsByMint lists token accounts of the given mint
// whose owner is a plain system-program account, amount > 0, ordered by
// amount descending. The descending order keeps emitted sequences and test
// fixtures reproducible; correctness does not depend on it.
func (s *DB) SystemOwnedTokenAccountsByMint(ctx context.Context, mint string) ([]TokenAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_account.owner, CAST(token_account.amount AS TEXT) AS amount, account.pubkey
		FROM token_account, account
		WHERE token_account.mint = ?
		  AND token_account.owner = account.pubkey
		  AND account.owner = ?
		  AND token_account.amount > 0
		ORDER BY token_account.amount DESC, account.pubkey ASC
	`, mint, domain.SystemProgram)
	if err != nil {
		return nil, fmt.Errorf("query token accounts for mint %s: %w", mint, err)
	}
	defer rows.Close()

	var accounts []TokenAccount
	for rows.Next() {
		var owner, amount, pubkey string
		if err := rows.Scan(&owner, &amount, &pubkey); err != nil {
			return nil, fmt.Errorf("scan token account: %w", err)
		}
		n, err := domain.ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("token account %s: %w", pubkey, err)
		}
		accounts = append(accounts, TokenAccount{Pubkey: pubkey, Owner: owner, Amount: n})
	}
	return accounts, rows.Err()
}

// MintSupply returns the total issued supply of a mint.
// Returns ErrDataMissing when the mint row is not captured.
func (s *DB) MintSupply(ctx context.Context, mint string) (*big.Int, error) {
	var supply string
	err := s.db.QueryRowContext(ctx,
		`SELECT CAST(supply AS TEXT) FROM token_mint WHERE pubkey = ?`, mint,
	).Scan(&supply)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mint %s: %w", mint, ErrDataMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("query mint supply %s: %w", mint, err)
	}
	return domain.ParseAmount(supply)
}

// TokenAccountBalance returns the amount held by a single token account.
// Returns ErrDataMissing when the account row is not captured.
func (s *DB) TokenAccountBalance(ctx context.Context, pubkey string) (*big.Int, error) {
	var amount string
	err := s.db.QueryRowContext(ctx,
		`SELECT CAST(amount AS TEXT) FROM token_account WHERE pubkey = ?`, pubkey,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token account %s: %w", pubkey, ErrDataMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("query token account balance %s: %w", pubkey, err)
	}
	return domain.ParseAmount(amount)
}
