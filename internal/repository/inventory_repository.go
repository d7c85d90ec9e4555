package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eventure/ticketing/internal/ledger"
)

// InventoryRepo implements ledger.Store on MySQL.  The capacity check
// is a conditional UPDATE so the check-then-increment is indivisible at
// the database: concurrent reserves against the same category serialize
// on the row and the first statement to satisfy the guard wins.  All
// methods run their statements inside a single transaction.
type InventoryRepo struct {
	db *sql.DB
}

// NewInventoryRepo returns an InventoryRepo bound to the provided database.
func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{db: db} }

// Reserve atomically increments reserved_count when the category still
// has room and records the reservation token.  When the guard fails it
// distinguishes a missing category from an exhausted one and leaves no
// side effect either way.
func (r *InventoryRepo) Reserve(ctx context.Context, res *ledger.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const upd = `UPDATE ticket_categories
				 SET reserved_count = reserved_count + ?
				 WHERE event_id = ? AND name = ? AND reserved_count + ? <= capacity`
	result, err := tx.ExecContext(ctx, upd, res.Quantity, res.EventID, res.CategoryName, res.Quantity)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// The guard failed: either the category does not exist or it is
		// out of capacity. Read the counters to build a precise error.
		const sel = `SELECT capacity, reserved_count FROM ticket_categories WHERE event_id = ? AND name = ?`
		var capacity, reserved uint32
		err := tx.QueryRowContext(ctx, sel, res.EventID, res.CategoryName).Scan(&capacity, &reserved)
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrCategoryNotFound
		}
		if err != nil {
			return err
		}
		remaining := uint32(0)
		if capacity > reserved {
			remaining = capacity - reserved
		}
		return &ledger.CapacityError{
			EventID:      res.EventID,
			CategoryName: res.CategoryName,
			Requested:    res.Quantity,
			Remaining:    remaining,
		}
	}
	res.CreatedAt = time.Now().UTC()
	const ins = `INSERT INTO ticket_reservations (token, event_id, category_name, quantity, booking_id, status, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins,
		res.Token, res.EventID, res.CategoryName, res.Quantity, res.BookingID, res.Status, res.CreatedAt,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Release settles an outstanding reservation and returns its units to
// the pool.  It reports false without error when the token was already
// released or finalized, which makes retries a no-op.
func (r *InventoryRepo) Release(ctx context.Context, token string) (bool, error) {
	return r.settle(ctx, token, ledger.StatusReleased)
}

// Finalize settles an outstanding reservation as a confirmed sale by
// incrementing confirmed_count.  reserved_count keeps counting the
// finalized units, so confirmed_count <= reserved_count holds.
func (r *InventoryRepo) Finalize(ctx context.Context, token string) (bool, error) {
	return r.settle(ctx, token, ledger.StatusFinalized)
}

func (r *InventoryRepo) settle(ctx context.Context, token, to string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	// Lock the token row so the status check and the counter update are
	// one atomic step even across processes.
	const sel = `SELECT event_id, category_name, quantity, status FROM ticket_reservations WHERE token = ? FOR UPDATE`
	var eventID, categoryName, status string
	var quantity uint32
	err = tx.QueryRowContext(ctx, sel, token).Scan(&eventID, &categoryName, &quantity, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if status != ledger.StatusOutstanding {
		if err := tx.Commit(); err != nil {
			return false, err
		}
		committed = true
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ticket_reservations SET status = ? WHERE token = ?`, to, token,
	); err != nil {
		return false, err
	}
	var counter string
	if to == ledger.StatusReleased {
		counter = `UPDATE ticket_categories SET reserved_count = reserved_count - ? WHERE event_id = ? AND name = ?`
	} else {
		counter = `UPDATE ticket_categories SET confirmed_count = confirmed_count + ? WHERE event_id = ? AND name = ?`
	}
	if _, err := tx.ExecContext(ctx, counter, quantity, eventID, categoryName); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}

// ListByBooking returns all reservation tokens created for a booking,
// settled or not, ordered by creation time.
func (r *InventoryRepo) ListByBooking(ctx context.Context, bookingID string) ([]ledger.Reservation, error) {
	const q = `SELECT token, event_id, category_name, quantity, booking_id, status, created_at
			   FROM ticket_reservations
			   WHERE booking_id = ?
			   ORDER BY created_at, token`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reservations []ledger.Reservation
	for rows.Next() {
		var res ledger.Reservation
		if err := rows.Scan(&res.Token, &res.EventID, &res.CategoryName, &res.Quantity, &res.BookingID, &res.Status, &res.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}
