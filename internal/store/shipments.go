package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
)

const shipmentColumns = `order_id, status, customer_name, client_company,
	delivery_address, contact_phone, delivery_date, end_time, task_type,
	latitude, longitude, notes, updated_at`

const upsertShipmentSQL = `
INSERT INTO shipments (` + shipmentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(order_id) DO UPDATE SET
	status = excluded.status,
	customer_name = excluded.customer_name,
	client_company = excluded.client_company,
	delivery_address = excluded.delivery_address,
	contact_phone = excluded.contact_phone,
	delivery_date = excluded.delivery_date,
	end_time = excluded.end_time,
	task_type = excluded.task_type,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	notes = excluded.notes,
	updated_at = excluded.updated_at
`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertShipment(ctx context.Context, ex execer, s *shipment.Shipment) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid shipment: %w", err)
	}

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := ex.ExecContext(ctx, upsertShipmentSQL,
		s.OrderID,
		s.Status,
		s.CustomerName,
		s.ClientCompany,
		s.DeliveryAddress,
		stringPtrToNull(s.ContactPhone),
		s.DeliveryDate,
		stringPtrToNull(s.EndTime),
		s.TaskType,
		s.Latitude,
		s.Longitude,
		s.Notes,
		updatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return storageErr(fmt.Sprintf("upsert shipment %d", s.OrderID), err)
	}
	return nil
}

// UpsertShipment inserts or updates a single shipment keyed by order_id.
func (db *DB) UpsertShipment(ctx context.Context, s *shipment.Shipment) error {
	return upsertShipment(ctx, db.conn, s)
}

// DeleteShipment removes a shipment from the store.
// Returns nil if the shipment doesn't exist (idempotent).
func (db *DB) DeleteShipment(ctx context.Context, orderID int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM shipments WHERE order_id = ?`, orderID)
	if err != nil {
		return storageErr(fmt.Sprintf("delete shipment %d", orderID), err)
	}
	return nil
}

// ReplaceAllShipments swaps the entire table contents for rows in a single
// transaction. Readers see either the previous rows or the new ones, never an
// empty table. Rows sharing an order_id collapse to the last one.
//
// Returns the number of distinct shipments written.
func (db *DB) ReplaceAllShipments(ctx context.Context, rows []shipment.Shipment) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	n, err := replaceShipments(ctx, tx, rows)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit shipment replace", err)
	}
	return n, nil
}

func replaceShipments(ctx context.Context, tx *sql.Tx, rows []shipment.Shipment) (int, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM shipments`); err != nil {
		return 0, storageErr("clear shipments", err)
	}

	written := make(map[int64]struct{}, len(rows))
	for i := range rows {
		if err := upsertShipment(ctx, tx, &rows[i]); err != nil {
			return 0, err
		}
		written[rows[i].OrderID] = struct{}{}
	}
	return len(written), nil
}

// GetShipment retrieves a single shipment by order ID.
// Returns ErrNotFound if it is not in the store.
func (db *DB) GetShipment(ctx context.Context, orderID int64) (*shipment.Shipment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("query shipment %d", orderID), err)
	}
	defer rows.Close()

	list, err := scanShipments(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return &list[0], nil
}

// ListActive returns every shipment still in the store, latest delivery first.
func (db *DB) ListActive() ([]shipment.Shipment, error) {
	return db.ListActiveContext(context.Background())
}

// ListActiveContext returns every shipment with context support.
func (db *DB) ListActiveContext(ctx context.Context) ([]shipment.Shipment, error) {
	return db.queryShipments(ctx, "list shipments",
		`SELECT `+shipmentColumns+` FROM shipments
		ORDER BY delivery_date DESC, order_id DESC`)
}

// ListByDay returns shipments whose delivery_date falls on day (YYYY-MM-DD),
// latest first. The match is a prefix match on the stored ISO text.
func (db *DB) ListByDay(ctx context.Context, day string) ([]shipment.Shipment, error) {
	if err := shipment.ValidateDay(day); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDay, err)
	}
	return db.queryShipments(ctx, "list shipments for "+day,
		`SELECT `+shipmentColumns+` FROM shipments
		WHERE delivery_date LIKE ?
		ORDER BY delivery_date DESC, order_id DESC`, day+"%")
}

// ListByStatus returns shipments with the given status, latest first.
// A limit of 0 means no limit.
func (db *DB) ListByStatus(ctx context.Context, status string, limit int) ([]shipment.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments
		WHERE status = ?
		ORDER BY delivery_date DESC, order_id DESC`
	args := []any{status}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return db.queryShipments(ctx, "list "+status+" shipments", query, args...)
}

// GetShipmentCount returns the number of shipments in the store.
func (db *DB) GetShipmentCount() (int, error) {
	return db.GetShipmentCountContext(context.Background())
}

// GetShipmentCountContext returns the number of shipments with context support.
func (db *DB) GetShipmentCountContext(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM shipments").Scan(&count); err != nil {
		return 0, storageErr("count shipments", err)
	}
	return count, nil
}

func (db *DB) queryShipments(ctx context.Context, op, query string, args ...any) ([]shipment.Shipment, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	return scanShipments(rows)
}

// scanShipments is a helper function to scan multiple shipments from query results.
// The returned slice is never nil so empty results encode as [].
func scanShipments(rows *sql.Rows) ([]shipment.Shipment, error) {
	list := []shipment.Shipment{}

	for rows.Next() {
		var s shipment.Shipment
		var phone, endTime sql.NullString
		var updatedAt string

		err := rows.Scan(
			&s.OrderID,
			&s.Status,
			&s.CustomerName,
			&s.ClientCompany,
			&s.DeliveryAddress,
			&phone,
			&s.DeliveryDate,
			&endTime,
			&s.TaskType,
			&s.Latitude,
			&s.Longitude,
			&s.Notes,
			&updatedAt,
		)
		if err != nil {
			return nil, storageErr("scan shipment", err)
		}

		s.ContactPhone = nullToStringPtr(phone)
		s.EndTime = nullToStringPtr(endTime)
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			s.UpdatedAt = t
		}

		list = append(list, s)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate shipments", err)
	}

	return list, nil
}

// stringPtrToNull converts an optional string to a nullable SQL value.
func stringPtrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullToStringPtr converts a nullable SQL string to an optional string.
func nullToStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
