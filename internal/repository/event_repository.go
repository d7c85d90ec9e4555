package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/eventure/ticketing/internal/model"
)

// EventRepo provides data access to events, their ticket categories and
// payment methods.  Inventory counters on ticket_categories are never
// written here; they belong to the ledger.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Create inserts an event together with its categories and payment
// methods in one transaction.  Counter columns start at zero.
func (r *EventRepo) Create(ctx context.Context, evt *model.Event) error {
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
	evt.CreatedAt = time.Now().UTC()
	evt.UpdatedAt = evt.CreatedAt
	const ins = `INSERT INTO events (id, owner_id, owner_name, owner_contact, title, location, starts_at, status, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins,
		evt.ID, evt.OwnerID, evt.OwnerName, evt.OwnerContact, evt.Title, evt.Location,
		evt.StartsAt.UTC(), evt.Status, evt.CreatedAt, evt.UpdatedAt,
	); err != nil {
		return err
	}
	if len(evt.Categories) > 0 {
		query := `INSERT INTO ticket_categories (event_id, name, unit_price_cents, capacity, reserved_count, confirmed_count) VALUES `
		args := make([]interface{}, 0, len(evt.Categories)*4)
		for i, cat := range evt.Categories {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, 0, 0)"
			args = append(args, evt.ID, cat.Name, cat.UnitPriceCents, cat.Capacity)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	if len(evt.PaymentMethods) > 0 {
		query := `INSERT INTO payment_methods (event_id, name, active) VALUES `
		args := make([]interface{}, 0, len(evt.PaymentMethods)*3)
		for i, m := range evt.PaymentMethods {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, evt.ID, m.Name, m.Active)
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

// GetByID loads an event with its categories and payment methods.
// sql.ErrNoRows is returned when the event does not exist.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	const q = `SELECT id, owner_id, owner_name, owner_contact, title, location, starts_at,
					  status, status_reason, new_starts_at, new_location, created_at, updated_at
			   FROM events WHERE id = ?`
	var evt model.Event
	var reason, newLocation sql.NullString
	var newStartsAt sql.NullTime
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&evt.ID, &evt.OwnerID, &evt.OwnerName, &evt.OwnerContact, &evt.Title, &evt.Location, &evt.StartsAt,
		&evt.Status, &reason, &newStartsAt, &newLocation, &evt.CreatedAt, &evt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if reason.Valid {
		s := reason.String
		evt.StatusReason = &s
	}
	if newStartsAt.Valid {
		t := newStartsAt.Time.UTC()
		evt.NewStartsAt = &t
	}
	if newLocation.Valid {
		s := newLocation.String
		evt.NewLocation = &s
	}
	const catQ = `SELECT event_id, name, unit_price_cents, capacity, reserved_count, confirmed_count
				  FROM ticket_categories WHERE event_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, catQ, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cat model.TicketCategory
		if err := rows.Scan(&cat.EventID, &cat.Name, &cat.UnitPriceCents, &cat.Capacity, &cat.ReservedCount, &cat.ConfirmedCount); err != nil {
			return nil, err
		}
		evt.Categories = append(evt.Categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	const pmQ = `SELECT event_id, name, active FROM payment_methods WHERE event_id = ? ORDER BY name`
	prows, err := r.db.QueryContext(ctx, pmQ, id)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var m model.PaymentMethod
		if err := prows.Scan(&m.EventID, &m.Name, &m.Active); err != nil {
			return nil, err
		}
		evt.PaymentMethods = append(evt.PaymentMethods, m)
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}
	return &evt, nil
}

// UpdateStatus applies an organizer status change with its detail
// payload.  It returns ErrForbidden when the caller does not own the
// event and sql.ErrNoRows when the event does not exist.
func (r *EventRepo) UpdateStatus(ctx context.Context, eventID, ownerID string, status model.EventStatus, reason *string, newStartsAt *time.Time, newLocation *string) error {
	const checkQ = `SELECT owner_id FROM events WHERE id = ?`
	var actualOwnerID string
	if err := r.db.QueryRowContext(ctx, checkQ, eventID).Scan(&actualOwnerID); err != nil {
		return err
	}
	if actualOwnerID != ownerID {
		return ErrForbidden
	}
	const upd = `UPDATE events
				 SET status = ?, status_reason = ?, new_starts_at = ?, new_location = ?, updated_at = ?
				 WHERE id = ?`
	var startsAt interface{}
	if newStartsAt != nil {
		startsAt = newStartsAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, upd, status, reason, startsAt, newLocation, time.Now().UTC(), eventID)
	return err
}

// ListBookingUserIDs returns the distinct users holding a non-cancelled
// booking on the event.  Used to fan out event status notifications.
func (r *EventRepo) ListBookingUserIDs(ctx context.Context, eventID string) ([]string, error) {
	const q = `SELECT DISTINCT user_id FROM bookings WHERE event_id = ? AND status <> 'cancelled'`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var userIDs []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return userIDs, nil
}
