package storage

import (
	"context"
	"time"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
)

// Snapshot is one persisted parse run.
type Snapshot struct {
	ID        int64
	Slot      uint64
	CreatedAt time.Time
}

// HolderRow is one owner's aggregated balance in a snapshot: the total plus
// the parallel per-source breakdown. Amounts are fixed-point decimal
// strings; Sources and Amounts are index-aligned.
type HolderRow struct {
	Owner   string
	Amount  string
	Sources []string
	Amounts []string
	IsVault bool
}

// ReconciliationRow is one persisted supply reconciliation outcome.
type ReconciliationRow struct {
	Slot        uint64
	TotalParsed string
	VaultParsed string
	TotalSupply string
	Delta       string
	Overcounted bool
	CreatedAt   time.Time
}

// SnapshotStore provides access to snapshots storage.
type SnapshotStore interface {
	// Create inserts a new snapshot run row and returns its ID.
	// Returns ErrDuplicateKey when the slot was already parsed.
	Create(ctx context.Context, slot uint64) (int64, error)

	// Latest returns the most recently created snapshot.
	// Returns ErrNotFound when no snapshot exists.
	Latest(ctx context.Context) (*Snapshot, error)
}

// HolderStore provides access to msol_holders storage.
type HolderStore interface {
	// InsertBulk adds holder rows for one snapshot in batches.
	// Fails the entire call on any duplicate (snapshot_id, owner).
	InsertBulk(ctx context.Context, snapshotID int64, rows []HolderRow) error

	// GetByOwner retrieves one owner's row in the given snapshot.
	// Returns ErrNotFound if the owner holds nothing there.
	GetByOwner(ctx context.Context, snapshotID int64, owner string) (*HolderRow, error)
}

// VeMNDEStore provides access to vemnde_holders storage.
type VeMNDEStore interface {
	InsertBulk(ctx context.Context, snapshotID int64, rows []domain.VeMNDERecord) error

	// GetByAuthority returns ErrNotFound for unknown authorities.
	GetByAuthority(ctx context.Context, snapshotID int64, authority string) (*domain.VeMNDERecord, error)
}

// NativeStakeStore provides access to native_stake_accounts storage.
type NativeStakeStore interface {
	InsertBulk(ctx context.Context, snapshotID int64, rows []domain.NativeStakeRecord) error

	// GetByAuthority returns ErrNotFound for unknown authorities.
	GetByAuthority(ctx context.Context, snapshotID int64, authority string) (*domain.NativeStakeRecord, error)
}

// SourceStatRow is one source's extraction outcome in one run.
type SourceStatRow struct {
	Slot      uint64
	Source    string
	Owners    uint64
	Total     string
	CreatedAt time.Time
}

// ReconciliationStore keeps the append-only reconciliation history used to
// watch extraction coverage drift across runs.
type ReconciliationStore interface {
	Insert(ctx context.Context, row *ReconciliationRow) error

	// History returns the most recent rows, newest first.
	History(ctx context.Context, limit int) ([]*ReconciliationRow, error)

	// InsertSourceStats appends one run's per-source extraction stats.
	InsertSourceStats(ctx context.Context, rows []SourceStatRow) error

	// SourceHistory returns the per-source rows of one slot.
	SourceHistory(ctx context.Context, slot uint64) ([]*SourceStatRow, error)
}
