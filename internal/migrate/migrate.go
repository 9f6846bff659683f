// Package migrate converts databases written by the legacy soft-delete client
// to the outbox layout used by internal/store.
//
// The legacy client marked deleted shipments with shipments.is_deleted = 1 and
// could hold several identical rows in shipments_outbox. Migrate turns every
// soft-deleted row into a pending outbox delete, removes the row, drops the
// column and collapses duplicate outbox entries so the UNIQUE(op_type, order_id)
// index can be created.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fieldagentpro/fieldsync/internal/store"
)

// MigrateOptions contains configuration for the migration
type MigrateOptions struct {
	DryRun bool // Report what would change without writing
	Backup bool // Copy the database file before writing
}

// MigrateResult contains statistics about the migration
type MigrateResult struct {
	OutboxDeduped  int    // duplicate outbox rows removed
	SoftDeleted    int    // is_deleted rows moved to the outbox
	ColumnDropped  bool   // is_deleted column removed
	BackupCreated  string // path of the backup, if any
	AlreadyCurrent bool   // nothing to do
}

// Migrate brings the database at db up to the current schema.
// It is safe to run on an already migrated or fresh database.
func Migrate(ctx context.Context, db *store.DB, opts MigrateOptions) (*MigrateResult, error) {
	result := &MigrateResult{}
	conn := db.RawDB()

	hasOutbox, err := db.TableExists(ctx, "shipments_outbox")
	if err != nil {
		return nil, err
	}
	hasShipments, err := db.TableExists(ctx, "shipments")
	if err != nil {
		return nil, err
	}

	dupes := 0
	if hasOutbox {
		if dupes, err = countDuplicateOutbox(ctx, conn); err != nil {
			return nil, err
		}
	}
	softDeleted := 0
	legacy := false
	if hasShipments {
		if legacy, err = hasColumn(ctx, conn, "shipments", "is_deleted"); err != nil {
			return nil, err
		}
		if legacy {
			err := conn.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM shipments WHERE is_deleted = 1`).Scan(&softDeleted)
			if err != nil {
				return nil, fmt.Errorf("failed to count soft-deleted rows: %w", err)
			}
		}
	}

	if dupes == 0 && !legacy {
		result.AlreadyCurrent = true
		if !opts.DryRun {
			if err := db.InitSchemaContext(ctx); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	if opts.DryRun {
		result.OutboxDeduped = dupes
		result.SoftDeleted = softDeleted
		result.ColumnDropped = legacy
		return result, nil
	}

	if opts.Backup {
		backupPath := db.Path() + ".backup." + time.Now().Format("20060102-150405")
		if err := backupFile(ctx, conn, db.Path(), backupPath); err != nil {
			return nil, err
		}
		result.BackupCreated = backupPath
	}

	// Duplicates must go before the unique index in the schema is created.
	if hasOutbox && dupes > 0 {
		res, err := conn.ExecContext(ctx, `
			DELETE FROM shipments_outbox
			WHERE id NOT IN (
				SELECT MIN(id) FROM shipments_outbox GROUP BY op_type, order_id
			)`)
		if err != nil {
			return nil, fmt.Errorf("failed to dedupe outbox: %w", err)
		}
		n, _ := res.RowsAffected()
		result.OutboxDeduped = int(n)
	}

	if err := db.InitSchemaContext(ctx); err != nil {
		return nil, err
	}

	if legacy {
		moved, err := dropSoftDelete(ctx, conn)
		if err != nil {
			return nil, err
		}
		result.SoftDeleted = moved
		result.ColumnDropped = true

		// Indexes on the rebuilt table.
		if err := db.InitSchemaContext(ctx); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// dropSoftDelete moves soft-deleted rows to the outbox and rebuilds the
// shipments table without the is_deleted column, in one transaction.
func dropSoftDelete(ctx context.Context, conn *sql.DB) (int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO shipments_outbox (op_type, order_id, created_at)
		SELECT ?, order_id, ? FROM shipments WHERE is_deleted = 1
		ON CONFLICT(op_type, order_id) DO NOTHING`, store.OpDelete, now); err != nil {
		return 0, fmt.Errorf("failed to enqueue soft-deleted rows: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM shipments WHERE is_deleted = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to remove soft-deleted rows: %w", err)
	}
	moved, _ := res.RowsAffected()

	stmts := []string{
		`ALTER TABLE shipments RENAME TO shipments_legacy`,
		`DROP INDEX IF EXISTS idx_shipments_delivery_date`,
		`DROP INDEX IF EXISTS idx_shipments_status`,
		`DROP INDEX IF EXISTS idx_shipments_is_deleted`,
		`CREATE TABLE shipments (
			order_id INTEGER PRIMARY KEY NOT NULL,
			status TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			client_company TEXT NOT NULL,
			delivery_address TEXT NOT NULL,
			contact_phone TEXT,
			delivery_date TEXT NOT NULL,
			end_time TEXT,
			task_type TEXT NOT NULL,
			latitude REAL NOT NULL DEFAULT 0,
			longitude REAL NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,
		`INSERT INTO shipments (order_id, status, customer_name, client_company,
			delivery_address, contact_phone, delivery_date, end_time, task_type,
			latitude, longitude, notes, updated_at)
		SELECT order_id, status, COALESCE(customer_name, ''), COALESCE(client_company, ''),
			COALESCE(delivery_address, ''), contact_phone, delivery_date, end_time,
			COALESCE(task_type, ''), COALESCE(latitude, 0), COALESCE(longitude, 0),
			COALESCE(notes, ''), COALESCE(updated_at, '` + now + `')
		FROM shipments_legacy`,
		`DROP TABLE shipments_legacy`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to rebuild shipments table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit migration: %w", err)
	}
	return int(moved), nil
}

func countDuplicateOutbox(ctx context.Context, conn *sql.DB) (int, error) {
	var n int
	err := conn.QueryRowContext(ctx, `
		SELECT COUNT(*) - COUNT(DISTINCT op_type || ':' || order_id)
		FROM shipments_outbox`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect outbox: %w", err)
	}
	return n, nil
}

func hasColumn(ctx context.Context, conn *sql.DB, table, column string) (bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, fmt.Errorf("failed to inspect %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// backupFile checkpoints the WAL and copies the database file.
func backupFile(ctx context.Context, conn *sql.DB, src, dst string) error {
	if _, err := conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint before backup: %w", err)
	}

	// #nosec G304 - controlled path from config
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to read database for backup: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return out.Close()
}
