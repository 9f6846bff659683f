// Package store provides the on-device SQLite persistence for fieldsync.
//
// The store holds the current known set of shipments plus a durable outbox of
// remote operations that could not be confirmed yet. It is the cache that
// presentation reads from while offline; the reconciliation engine is its only
// writer during sync operations.
//
// Architecture:
//   - Database file: fieldsync.db (path from config)
//   - WAL mode: readers keep seeing the previous snapshot while a replace runs
//   - Schema: shipments, shipments_outbox, sync_meta tables
//   - Indexes: delivery_date and status for agenda/list queries,
//     UNIQUE(op_type, order_id) on the outbox
//
// Deleted shipments are absent from the table. There is no soft-delete flag;
// databases written by the legacy soft-delete client are converted by
// internal/migrate.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DB wraps the SQLite connection with the shipment and outbox queries.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The database is opened in WAL mode with a busy timeout so that readers are
// never blocked by a snapshot replace. If the file doesn't exist it is
// created; call InitSchema before use.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open("~/.local/share/fieldsync/fieldsync.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, storageErr("create database directory", err)
	}

	conn, err := sql.Open(driverName, dataSourceName(path))
	if err != nil {
		return nil, storageErr("open database", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, storageErr("ping database", err)
	}

	// One writer at a time is enforced above this layer; the pool is for readers.
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, storageErr("enable WAL mode", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
// This is used by internal/migrate and the load test.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// WriteLock returns the cross-process lock guarding writes to this database.
func (db *DB) WriteLock() *FileLock {
	return NewFileLock(db.path + ".lock")
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return storageErr("close database", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
//
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return storageErr("initialize schema", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS shipments (
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
);

CREATE TABLE IF NOT EXISTS shipments_outbox (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	op_type TEXT NOT NULL,   -- delete
	order_id INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

-- Agenda and list queries
CREATE INDEX IF NOT EXISTS idx_shipments_delivery_date ON shipments(delivery_date);
CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status);

-- At most one pending operation per (op_type, order_id)
CREATE UNIQUE INDEX IF NOT EXISTS idx_outbox_op_order
	ON shipments_outbox(op_type, order_id);
`

// TableExists reports whether a table is present in the database.
func (db *DB) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	if err != nil {
		return false, storageErr("inspect schema", err)
	}
	return count == 1, nil
}

// SizeBytes returns the size of the database file, or 0 if it can't be read.
func (db *DB) SizeBytes() int64 {
	info, err := os.Stat(db.path)
	if err != nil {
		return 0
	}
	return info.Size()
}
