package postgres

import (
	"context"
	"fmt"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage"
)

// VeMNDEStore implements storage.VeMNDEStore using PostgreSQL.
type VeMNDEStore struct {
	pool *Pool
}

// NewVeMNDEStore creates a new VeMNDEStore.
func NewVeMNDEStore(pool *Pool) *VeMNDEStore {
	return &VeMNDEStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VeMNDEStore = (*VeMNDEStore)(nil)

// InsertBulk adds voting-power rows for one snapshot in batches.
func (s *VeMNDEStore) InsertBulk(ctx context.Context, snapshotID int64, rows []domain.VeMNDERecord) (err error) {
	done := s.pool.observe("vemnde_insert_bulk")
	defer func() { done(err) }()

	query := `
		INSERT INTO vemnde_holders (snapshot_id, owner, amount)
		VALUES ($1, $2, $3)
	`
	return insertAuthorityRows(ctx, s.pool, query, snapshotID, len(rows), func(i int) (string, string) {
		return rows[i].Authority, rows[i].Amount
	})
}

// GetByAuthority retrieves one authority's voting power in the snapshot.
func (s *VeMNDEStore) GetByAuthority(ctx context.Context, snapshotID int64, authority string) (_ *domain.VeMNDERecord, err error) {
	done := s.pool.observe("vemnde_get_by_authority")
	defer func() { done(err) }()

	query := `
		SELECT owner, amount::text
		FROM vemnde_holders
		WHERE snapshot_id = $1 AND owner = $2
	`

	var rec domain.VeMNDERecord
	if err := s.pool.QueryRow(ctx, query, snapshotID, authority).Scan(&rec.Authority, &rec.Amount); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get vemnde holder %s: %w", authority, err)
	}
	return &rec, nil
}

// NativeStakeStore implements storage.NativeStakeStore using PostgreSQL.
type NativeStakeStore struct {
	pool *Pool
}

// NewNativeStakeStore creates a new NativeStakeStore.
func NewNativeStakeStore(pool *Pool) *NativeStakeStore {
	return &NativeStakeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.NativeStakeStore = (*NativeStakeStore)(nil)

// InsertBulk adds native stake rows for one snapshot in batches.
func (s *NativeStakeStore) InsertBulk(ctx context.Context, snapshotID int64, rows []domain.NativeStakeRecord) (err error) {
	done := s.pool.observe("native_stake_insert_bulk")
	defer func() { done(err) }()

	query := `
		INSERT INTO native_stake_accounts (snapshot_id, withdraw_authority, amount)
		VALUES ($1, $2, $3)
	`
	return insertAuthorityRows(ctx, s.pool, query, snapshotID, len(rows), func(i int) (string, string) {
		return rows[i].Authority, rows[i].Amount
	})
}

// GetByAuthority retrieves one authority's native stake in the snapshot.
func (s *NativeStakeStore) GetByAuthority(ctx context.Context, snapshotID int64, authority string) (_ *domain.NativeStakeRecord, err error) {
	done := s.pool.observe("native_stake_get_by_authority")
	defer func() { done(err) }()

	query := `
		SELECT withdraw_authority, amount::text
		FROM native_stake_accounts
		WHERE snapshot_id = $1 AND withdraw_authority = $2
	`

	var rec domain.NativeStakeRecord
	if err := s.pool.QueryRow(ctx, query, snapshotID, authority).Scan(&rec.Authority, &rec.Amount); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get native stake %s: %w", authority, err)
	}
	return &rec, nil
}

// insertAuthorityRows shares the batched (snapshot_id, authority, amount)
// insert loop of the two stake stores.
func insertAuthorityRows(ctx context.Context, pool *Pool, query string, snapshotID int64, n int, row func(int) (string, string)) error {
	for start := 0; start < n; start += insertBatchSize {
		end := start + insertBatchSize
		if end > n {
			end = n
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		for i := start; i < end; i++ {
			authority, amount := row(i)
			if _, err := tx.Exec(ctx, query, snapshotID, authority, amount); err != nil {
				tx.Rollback(ctx)
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert row %s: %w", authority, err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	return nil
}
