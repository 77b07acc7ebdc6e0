package postgres

import (
	"context"
	"fmt"

	"github.com/marinade-finance/solana-snapshot-manager/internal/storage"
)

// insertBatchSize bounds how many rows go into one transaction. Snapshots
// carry hundreds of thousands of holders; unbounded transactions stall the
// server and lose all progress on a late failure.
const insertBatchSize = 1000

// HolderStore implements storage.HolderStore using PostgreSQL.
type HolderStore struct {
	pool *Pool
}

// NewHolderStore creates a new HolderStore.
func NewHolderStore(pool *Pool) *HolderStore {
	return &HolderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HolderStore = (*HolderStore)(nil)

// InsertBulk adds holder rows for one snapshot in batches of insertBatchSize.
func (s *HolderStore) InsertBulk(ctx context.Context, snapshotID int64, rows []storage.HolderRow) (err error) {
	done := s.pool.observe("holders_insert_bulk")
	defer func() { done(err) }()

	query := `
		INSERT INTO msol_holders (
			snapshot_id, owner, amount, sources, amounts, is_vault
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		for _, row := range rows[start:end] {
			_, err := tx.Exec(ctx, query,
				snapshotID,
				row.Owner,
				row.Amount,
				row.Sources,
				row.Amounts,
				row.IsVault,
			)
			if err != nil {
				tx.Rollback(ctx)
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert holder %s: %w", row.Owner, err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit holder batch: %w", err)
		}
	}
	return nil
}

// GetByOwner retrieves one owner's row in the given snapshot.
func (s *HolderStore) GetByOwner(ctx context.Context, snapshotID int64, owner string) (_ *storage.HolderRow, err error) {
	done := s.pool.observe("holders_get_by_owner")
	defer func() { done(err) }()

	query := `
		SELECT owner, amount::text, sources, amounts::text[], is_vault
		FROM msol_holders
		WHERE snapshot_id = $1 AND owner = $2
	`

	var row storage.HolderRow
	if err := s.pool.QueryRow(ctx, query, snapshotID, owner).Scan(
		&row.Owner, &row.Amount, &row.Sources, &row.Amounts, &row.IsVault); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder %s: %w", owner, err)
	}
	return &row, nil
}
