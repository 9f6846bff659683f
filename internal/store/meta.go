package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
)

// Keys in the sync_meta table.
const (
	MetaLastSyncAt    = "last_sync_at"
	MetaLastSyncCount = "last_sync_count"
	MetaSeedVersion   = "seed_version"
)

func setMeta(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storageErr("set "+key, err)
	}
	return nil
}

// GetMeta returns a metadata value, or "" if the key was never set.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if isNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("get "+key, err)
	}
	return value, nil
}

// RecordSync stores the time and row count of a successful snapshot replace.
func (db *DB) RecordSync(ctx context.Context, at time.Time, count int) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := setMeta(ctx, tx, MetaLastSyncAt, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if err := setMeta(ctx, tx, MetaLastSyncCount, strconv.Itoa(count)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit sync record", err)
	}
	return nil
}

// ResetToSeed replaces every shipment with rows, clears the outbox and
// records the seed version, all in one transaction.
func (db *DB) ResetToSeed(ctx context.Context, rows []shipment.Shipment, version string) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	n, err := replaceShipments(ctx, tx, rows)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shipments_outbox`); err != nil {
		return 0, storageErr("clear outbox", err)
	}
	if err := setMeta(ctx, tx, MetaSeedVersion, version); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit reset", err)
	}
	return n, nil
}

// Stats summarizes the store for status output and the dashboard.
type Stats struct {
	Shipments      int            `json:"shipments" yaml:"shipments"`
	ByStatus       map[string]int `json:"by_status" yaml:"by_status"`
	PendingDeletes int            `json:"pending_deletes" yaml:"pending_deletes"`
	LastSyncAt     *time.Time     `json:"last_sync_at,omitempty" yaml:"last_sync_at,omitempty"`
	LastSyncCount  int            `json:"last_sync_count" yaml:"last_sync_count"`
	SeedVersion    string         `json:"seed_version,omitempty" yaml:"seed_version,omitempty"`
	SizeBytes      int64          `json:"size_bytes" yaml:"size_bytes"`
}

// Stats collects store statistics.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByStatus: map[string]int{}, SizeBytes: db.SizeBytes()}

	rows, err := db.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM shipments GROUP BY status`)
	if err != nil {
		return nil, storageErr("count by status", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr("scan status count", err)
		}
		st.ByStatus[status] = n
		st.Shipments += n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate status counts", err)
	}

	if st.PendingDeletes, err = db.CountPendingDeletes(ctx); err != nil {
		return nil, err
	}

	at, err := db.GetMeta(ctx, MetaLastSyncAt)
	if err != nil {
		return nil, err
	}
	if at != "" {
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			st.LastSyncAt = &t
		}
	}

	count, err := db.GetMeta(ctx, MetaLastSyncCount)
	if err != nil {
		return nil, err
	}
	if count != "" {
		if st.LastSyncCount, err = strconv.Atoi(count); err != nil {
			return nil, fmt.Errorf("corrupt %s %q: %w", MetaLastSyncCount, count, err)
		}
	}

	if st.SeedVersion, err = db.GetMeta(ctx, MetaSeedVersion); err != nil {
		return nil, err
	}
	return st, nil
}
