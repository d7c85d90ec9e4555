package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/eventure/ticketing/internal/model"
)

// BookingRepo provides data access to bookings and their line items.
// Status transitions are guarded conditional updates: the row must
// still be in the expected source state or the update reports zero
// affected rows, which callers treat as a state violation.  All
// timestamp columns are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// Create inserts a booking and its line items in one transaction.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
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
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	const ins = `INSERT INTO bookings (id, user_id, event_id, event_title, event_starts_at, total_amount_cents,
									   payment_method, payment_status, status, notes, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins,
		b.ID, b.UserID, b.EventID, b.EventTitle, b.EventStartsAt.UTC(), b.TotalAmountCents,
		b.PaymentMethod, b.PaymentStatus, b.Status, b.Notes, b.CreatedAt, b.UpdatedAt,
	); err != nil {
		return err
	}
	if len(b.Items) > 0 {
		query := `INSERT INTO booking_items (booking_id, category_name, quantity, unit_price_cents) VALUES `
		args := make([]interface{}, 0, len(b.Items)*4)
		for i, item := range b.Items {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?)"
			args = append(args, b.ID, item.CategoryName, item.Quantity, item.UnitPriceCents)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID loads a booking with its line items.  sql.ErrNoRows is
// returned when the booking does not exist.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	const q = `SELECT id, user_id, event_id, event_title, event_starts_at, total_amount_cents,
					  payment_method, payment_status, status, notes, created_at, updated_at
			   FROM bookings WHERE id = ?`
	var b model.Booking
	var notes sql.NullString
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.UserID, &b.EventID, &b.EventTitle, &b.EventStartsAt, &b.TotalAmountCents,
		&b.PaymentMethod, &b.PaymentStatus, &b.Status, &notes, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if notes.Valid {
		n := notes.String
		b.Notes = &n
	}
	items, err := r.loadItems(ctx, []string{b.ID})
	if err != nil {
		return nil, err
	}
	b.Items = items[b.ID]
	return &b, nil
}

// ListByUser returns all bookings for the given user, newest first,
// with line items populated in a second query.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	const q = `SELECT id, user_id, event_id, event_title, event_starts_at, total_amount_cents,
					  payment_method, payment_status, status, notes, created_at, updated_at
			   FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bookings := make([]model.Booking, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var b model.Booking
		var notes sql.NullString
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.EventID, &b.EventTitle, &b.EventStartsAt, &b.TotalAmountCents,
			&b.PaymentMethod, &b.PaymentStatus, &b.Status, &notes, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if notes.Valid {
			n := notes.String
			b.Notes = &n
		}
		bookings = append(bookings, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return bookings, nil
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].Items = items[bookings[i].ID]
	}
	return bookings, nil
}

// loadItems fetches line items for the given booking IDs in one query.
func (r *BookingRepo) loadItems(ctx context.Context, bookingIDs []string) (map[string][]model.BookingItem, error) {
	if len(bookingIDs) == 0 {
		return map[string][]model.BookingItem{}, nil
	}
	placeholders := make([]string, 0, len(bookingIDs))
	args := make([]interface{}, 0, len(bookingIDs))
	for _, id := range bookingIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	query := `SELECT booking_id, category_name, quantity, unit_price_cents
			  FROM booking_items
			  WHERE booking_id IN (` + strings.Join(placeholders, ",") + `)
			  ORDER BY booking_id, category_name`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make(map[string][]model.BookingItem)
	for rows.Next() {
		var item model.BookingItem
		if err := rows.Scan(&item.BookingID, &item.CategoryName, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		items[item.BookingID] = append(items[item.BookingID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus performs a guarded one-shot transition of both status
// columns.  It reports false when the booking was not in the expected
// source state, in which case nothing was written.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, pay model.PaymentStatus) (bool, error) {
	const upd = `UPDATE bookings SET status = ?, payment_status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, upd, to, pay, time.Now().UTC(), id, from)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CancelExpired performs the expiry-sweep cancel as one guarded update.
// The NOT EXISTS arm re-checks for an unresolved receipt inside the
// statement itself, so a receipt submitted after the candidate list was
// read still fences the cancel out.  Reports false when nothing was
// written.
func (r *BookingRepo) CancelExpired(ctx context.Context, id string) (bool, error) {
	const upd = `UPDATE bookings b SET b.status = ?, b.payment_status = ?, b.updated_at = ?
				 WHERE b.id = ? AND b.status = ?
				   AND NOT EXISTS (
					   SELECT 1 FROM payment_receipts pr
					   WHERE pr.booking_id = b.id AND pr.status = 'pending'
				   )`
	result, err := r.db.ExecContext(ctx, upd,
		model.BookingStatusCancelled, model.PaymentStatusFailed, time.Now().UTC(),
		id, model.BookingStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListExpiredPending returns pending online-payment bookings created
// before the cutoff that have no unresolved receipt.  These are the
// candidates for the expiry sweep; line items are not loaded.
func (r *BookingRepo) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]model.Booking, error) {
	const q = `SELECT b.id, b.user_id, b.event_id, b.event_title, b.event_starts_at, b.total_amount_cents,
					  b.payment_method, b.payment_status, b.status, b.created_at, b.updated_at
			   FROM bookings b
			   LEFT JOIN payment_receipts pr ON pr.booking_id = b.id AND pr.status = 'pending'
			   WHERE b.status = 'pending'
				 AND b.payment_method <> ?
				 AND b.created_at <= ?
				 AND pr.id IS NULL`
	rows, err := r.db.QueryContext(ctx, q, model.PayAtEvent, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.EventID, &b.EventTitle, &b.EventStartsAt, &b.TotalAmountCents,
			&b.PaymentMethod, &b.PaymentStatus, &b.Status, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}
