// Package ledger is the only authority allowed to mutate the per-category
// inventory counters.  Reservations are granted through an indivisible
// conditional increment in the backing store, so the capacity check and
// the increment are a single atomic step regardless of how many
// processes run the service.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCapacityExceeded is the sentinel wrapped by CapacityError.  Use
// errors.Is against it when the exact counts are not needed.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrCategoryNotFound is returned when a reserve names a category that
// does not exist on the event.
var ErrCategoryNotFound = errors.New("ticket category not found")

// ErrNotOutstanding is returned by Finalize when the reservation has
// already been released or finalized.  Release never returns it;
// releasing a settled reservation is a no-op so retries are safe.
var ErrNotOutstanding = errors.New("reservation not outstanding")

// CapacityError reports a failed reservation with the exhausted
// category and the availability remaining at the time of the attempt.
type CapacityError struct {
	EventID      string
	CategoryName string
	Requested    uint32
	Remaining    uint32
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("category %q: requested %d, %d remaining", e.CategoryName, e.Requested, e.Remaining)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// Reservation statuses as stored in ticket_reservations.status.
const (
	StatusOutstanding = "outstanding"
	StatusReleased    = "released"
	StatusFinalized   = "finalized"
)

// Reservation is the token record for one granted claim on ticket
// units.  The token is opaque to callers; the ledger uses it to make
// release and finalize one-shot transitions.
type Reservation struct {
	Token        string    // ticket_reservations.token
	EventID      string    // ticket_reservations.event_id
	CategoryName string    // ticket_reservations.category_name
	Quantity     uint32    // ticket_reservations.quantity
	BookingID    string    // ticket_reservations.booking_id
	Status       string    // ticket_reservations.status
	CreatedAt    time.Time // ticket_reservations.created_at
}

// Store is the persistence contract the ledger drives.  Reserve must
// perform the capacity check, the reserved_count increment and the
// token insert as one atomic unit; Release and Finalize must settle the
// token and adjust the counters atomically, returning false when the
// token was not outstanding.
type Store interface {
	Reserve(ctx context.Context, res *Reservation) error
	Release(ctx context.Context, token string) (bool, error)
	Finalize(ctx context.Context, token string) (bool, error)
	ListByBooking(ctx context.Context, bookingID string) ([]Reservation, error)
}

// Ledger exposes the reserve/release/finalize operations over a Store.
type Ledger struct {
	store Store
}

// New returns a Ledger backed by the given store.
func New(store Store) *Ledger {
	if store == nil {
		panic("nil store passed to ledger.New")
	}
	return &Ledger{store: store}
}

// Reserve claims quantity units of the category for the booking.  It
// succeeds iff reserved_count + quantity <= capacity at the instant of
// the call and returns an opaque reservation token.  On failure it
// returns a CapacityError (or ErrCategoryNotFound) with no side effect.
func (l *Ledger) Reserve(ctx context.Context, eventID, categoryName string, quantity uint32, bookingID string) (string, error) {
	res := &Reservation{
		Token:        uuid.NewString(),
		EventID:      eventID,
		CategoryName: categoryName,
		Quantity:     quantity,
		BookingID:    bookingID,
		Status:       StatusOutstanding,
	}
	if err := l.store.Reserve(ctx, res); err != nil {
		return "", err
	}
	return res.Token, nil
}

// Release returns the token's units to the pool.  Releasing a token
// that was already released or finalized is a no-op, not an error, so
// retries and concurrent sweeps stay safe.
func (l *Ledger) Release(ctx context.Context, token string) error {
	_, err := l.store.Release(ctx, token)
	return err
}

// Finalize converts an outstanding reservation into a confirmed sale by
// incrementing confirmed_count.  It fails with ErrNotOutstanding when
// the reservation was already settled.
func (l *Ledger) Finalize(ctx context.Context, token string) error {
	ok, err := l.store.Finalize(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOutstanding
	}
	return nil
}

// ReleaseBooking releases every reservation held by the booking.  Used
// for compensation after a partial reserve, on rejection and on expiry;
// already-settled tokens are skipped.
func (l *Ledger) ReleaseBooking(ctx context.Context, bookingID string) error {
	reservations, err := l.store.ListByBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		if _, err := l.store.Release(ctx, res.Token); err != nil {
			return err
		}
	}
	return nil
}

// FinalizeBooking finalizes every outstanding reservation held by the
// booking.  It returns ErrNotOutstanding if none of the booking's
// reservations were still outstanding.
func (l *Ledger) FinalizeBooking(ctx context.Context, bookingID string) error {
	reservations, err := l.store.ListByBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	finalized := 0
	for _, res := range reservations {
		ok, err := l.store.Finalize(ctx, res.Token)
		if err != nil {
			return err
		}
		if ok {
			finalized++
		}
	}
	if finalized == 0 {
		return ErrNotOutstanding
	}
	return nil
}
