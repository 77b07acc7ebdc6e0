package postgres

import (
	"context"
	"fmt"

	"github.com/marinade-finance/solana-snapshot-manager/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Create inserts a new snapshot run row and returns its ID.
func (s *SnapshotStore) Create(ctx context.Context, slot uint64) (id int64, err error) {
	done := s.pool.observe("snapshot_create")
	defer func() { done(err) }()

	query := `
		INSERT INTO snapshots (slot, created_at)
		VALUES ($1, NOW())
		RETURNING snapshot_id
	`

	if err := s.pool.QueryRow(ctx, query, slot).Scan(&id); err != nil {
		if isDuplicateKeyError(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// Latest returns the most recently created snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (snap *storage.Snapshot, err error) {
	done := s.pool.observe("snapshot_latest")
	defer func() { done(err) }()

	query := `
		SELECT snapshot_id, slot, created_at
		FROM snapshots
		ORDER BY created_at DESC, snapshot_id DESC
		LIMIT 1
	`

	var latest storage.Snapshot
	if err := s.pool.QueryRow(ctx, query).Scan(&latest.ID, &latest.Slot, &latest.CreatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return &latest, nil
}
