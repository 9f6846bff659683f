package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OpDelete is the only outbox operation type.
const OpDelete = "delete"

// OutboxEntry is a pending remote operation.
type OutboxEntry struct {
	ID        int64     `json:"id"`
	OpType    string    `json:"op_type"`
	OrderID   int64     `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

const enqueueSQL = `
INSERT INTO shipments_outbox (op_type, order_id, created_at)
VALUES (?, ?, ?)
ON CONFLICT(op_type, order_id) DO NOTHING
`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	execer
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func enqueueDelete(ctx context.Context, q queryer, orderID int64) (OutboxEntry, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := q.ExecContext(ctx, enqueueSQL, OpDelete, orderID, now); err != nil {
		return OutboxEntry{}, storageErr(fmt.Sprintf("enqueue delete %d", orderID), err)
	}

	// Read back the surviving entry; on conflict this is the original one.
	var e OutboxEntry
	var createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT id, op_type, order_id, created_at FROM shipments_outbox
		WHERE op_type = ? AND order_id = ?`, OpDelete, orderID).
		Scan(&e.ID, &e.OpType, &e.OrderID, &createdAt)
	if err != nil {
		return OutboxEntry{}, storageErr(fmt.Sprintf("read outbox entry %d", orderID), err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}

// EnqueueDelete records a pending remote delete for orderID.
//
// This is idempotent: a second call for the same order leaves exactly one
// entry and returns it.
func (db *DB) EnqueueDelete(ctx context.Context, orderID int64) (OutboxEntry, error) {
	return enqueueDelete(ctx, db.conn, orderID)
}

// DeleteAndEnqueue removes the shipment and records its pending remote delete
// in one transaction. removed reports whether a row was actually deleted.
func (db *DB) DeleteAndEnqueue(ctx context.Context, orderID int64) (entry OutboxEntry, removed bool, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return OutboxEntry{}, false, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM shipments WHERE order_id = ?`, orderID)
	if err != nil {
		return OutboxEntry{}, false, storageErr(fmt.Sprintf("delete shipment %d", orderID), err)
	}
	n, _ := res.RowsAffected()

	entry, err = enqueueDelete(ctx, tx, orderID)
	if err != nil {
		return OutboxEntry{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return OutboxEntry{}, false, storageErr("commit delete", err)
	}
	return entry, n > 0, nil
}

// Dequeue removes an outbox entry. Removing a missing entry is not an error.
func (db *DB) Dequeue(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM shipments_outbox WHERE id = ?`, id); err != nil {
		return storageErr(fmt.Sprintf("dequeue outbox entry %d", id), err)
	}
	return nil
}

// ListPendingDeletes returns pending deletes in the order they were recorded.
func (db *DB) ListPendingDeletes(ctx context.Context) ([]OutboxEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, op_type, order_id, created_at FROM shipments_outbox
		WHERE op_type = ?
		ORDER BY id`, OpDelete)
	if err != nil {
		return nil, storageErr("list outbox", err)
	}
	defer rows.Close()

	entries := []OutboxEntry{}
	for rows.Next() {
		var e OutboxEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.OpType, &e.OrderID, &createdAt); err != nil {
			return nil, storageErr("scan outbox entry", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate outbox", err)
	}
	return entries, nil
}

// PendingDeleteIDs returns the set of order IDs with a pending delete.
func (db *DB) PendingDeleteIDs(ctx context.Context) (map[int64]struct{}, error) {
	entries, err := db.ListPendingDeletes(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		ids[e.OrderID] = struct{}{}
	}
	return ids, nil
}

// CountPendingDeletes returns the number of pending deletes.
func (db *DB) CountPendingDeletes(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shipments_outbox WHERE op_type = ?`, OpDelete).Scan(&count)
	if err != nil {
		return 0, storageErr("count outbox", err)
	}
	return count, nil
}
