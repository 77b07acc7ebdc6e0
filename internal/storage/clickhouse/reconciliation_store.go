package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marinade-finance/solana-snapshot-manager/internal/observability"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage"
)

// ReconciliationStore implements storage.ReconciliationStore using
// ClickHouse. History rows are append-only; the MergeTree keeps one row per
// (slot, created_at) and queries slice the most recent runs.
type ReconciliationStore struct {
	conn    *Conn
	metrics *observability.Metrics
}

// NewReconciliationStore creates a new ReconciliationStore. metrics may be
// nil.
func NewReconciliationStore(conn *Conn, metrics *observability.Metrics) *ReconciliationStore {
	return &ReconciliationStore{conn: conn, metrics: metrics}
}

// Compile-time interface check.
var _ storage.ReconciliationStore = (*ReconciliationStore)(nil)

// observe starts timing one store operation. The returned func takes the
// operation's final error.
func (s *ReconciliationStore) observe(op string) func(error) {
	start := time.Now()
	return func(err error) {
		if s.metrics == nil {
			return
		}
		s.metrics.DBQueryDuration.WithLabelValues("clickhouse", op).Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, storage.ErrInvalidInput) {
			s.metrics.DBQueryErrors.WithLabelValues("clickhouse", op).Inc()
		}
	}
}

// Insert appends one reconciliation outcome.
func (s *ReconciliationStore) Insert(ctx context.Context, row *storage.ReconciliationRow) (err error) {
	done := s.observe("reconciliation_insert")
	defer func() { done(err) }()

	created := row.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	query := `
		INSERT INTO reconciliation_history (
			slot, total_parsed, vault_parsed, total_supply, delta, overcounted, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err = s.conn.Exec(ctx, query,
		row.Slot,
		row.TotalParsed,
		row.VaultParsed,
		row.TotalSupply,
		row.Delta,
		row.Overcounted,
		created,
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation row: %w", err)
	}
	return nil
}

// History returns the most recent rows, newest first.
func (s *ReconciliationStore) History(ctx context.Context, limit int) (_ []*storage.ReconciliationRow, err error) {
	done := s.observe("reconciliation_history")
	defer func() { done(err) }()

	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT slot, total_parsed, vault_parsed, total_supply, delta, overcounted, created_at
		FROM reconciliation_history
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query reconciliation history: %w", err)
	}
	defer rows.Close()

	var history []*storage.ReconciliationRow
	for rows.Next() {
		var r storage.ReconciliationRow
		if err := rows.Scan(&r.Slot, &r.TotalParsed, &r.VaultParsed,
			&r.TotalSupply, &r.Delta, &r.Overcounted, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation row: %w", err)
		}
		history = append(history, &r)
	}
	return history, rows.Err()
}

// InsertSourceStats appends one run's per-source extraction stats.
func (s *ReconciliationStore) InsertSourceStats(ctx context.Context, rows []storage.SourceStatRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	done := s.observe("source_stats_insert")
	defer func() { done(err) }()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO source_extraction_history (slot, source, owners, total, created_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare source stats batch: %w", err)
	}
	for _, r := range rows {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if err := batch.Append(r.Slot, r.Source, r.Owners, r.Total, created); err != nil {
			return fmt.Errorf("append source stat row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send source stats batch: %w", err)
	}
	return nil
}

// SourceHistory returns the per-source rows of one slot, ordered by source.
func (s *ReconciliationStore) SourceHistory(ctx context.Context, slot uint64) (_ []*storage.SourceStatRow, err error) {
	done := s.observe("source_history")
	defer func() { done(err) }()

	query := `
		SELECT slot, source, owners, total, created_at
		FROM source_extraction_history
		WHERE slot = ?
		ORDER BY source
	`
	rows, err := s.conn.Query(ctx, query, slot)
	if err != nil {
		return nil, fmt.Errorf("query source history: %w", err)
	}
	defer rows.Close()

	var history []*storage.SourceStatRow
	for rows.Next() {
		var r storage.SourceStatRow
		if err := rows.Scan(&r.Slot, &r.Source, &r.Owners, &r.Total, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source stat row: %w", err)
		}
		history = append(history, &r)
	}
	return history, rows.Err()
}
