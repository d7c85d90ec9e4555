// Package booking turns client booking requests into consistent
// Booking plus ledger state.  The orchestrator never leaves partial
// state behind: a failed reservation or persistence step releases every
// unit already acquired for the request before the error is returned.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventure/ticketing/internal/model"
	"github.com/eventure/ticketing/internal/repository"
)

// Validation failures surfaced to the caller.  All are local and
// non-retryable; capacity errors come from the ledger and carry the
// exhausted category.
var (
	ErrNotBookable          = errors.New("event is not bookable")
	ErrSelfBookingForbidden = errors.New("organizers cannot book their own event")
	ErrInvalidCategory      = errors.New("invalid ticket category")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

// EventStore loads the event aggregate a booking request targets.
type EventStore interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// Store persists bookings.  UpdateStatus must be a guarded one-shot
// transition reporting false when the booking left the source state.
type Store interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, pay model.PaymentStatus) (bool, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]model.Booking, error)
	CancelExpired(ctx context.Context, id string) (bool, error)
}

// Inventory is the ledger surface the orchestrator drives.
type Inventory interface {
	Reserve(ctx context.Context, eventID, categoryName string, quantity uint32, bookingID string) (string, error)
	ReleaseBooking(ctx context.Context, bookingID string) error
	FinalizeBooking(ctx context.Context, bookingID string) error
}

// Notifier is the dispatcher's publish contract.  Publish failures are
// logged, never propagated: notifications are a side effect, not a
// source of truth.
type Notifier interface {
	Publish(ctx context.Context, userID string, typ model.NotificationType, title, message string, payload map[string]any) error
}

// ItemRequest is one requested line of a booking.
type ItemRequest struct {
	CategoryName string
	Quantity     uint32
}

// Request is a validated-on-entry booking request from the UI layer.
type Request struct {
	EventID       string
	UserID        string
	Items         []ItemRequest
	PaymentMethod string
	Notes         *string
}

// Orchestrator coordinates event validation, the ledger and booking
// persistence for one request at a time.  Many orchestrator calls run
// in parallel; the ledger serializes them per category.
type Orchestrator struct {
	events    EventStore
	bookings  Store
	inventory Inventory
	notifier  Notifier
	log       *logrus.Logger
	now       func() time.Time
}

// NewOrchestrator constructs an Orchestrator.  All collaborators must
// be non-nil.
func NewOrchestrator(events EventStore, bookings Store, inventory Inventory, notifier Notifier, log *logrus.Logger) *Orchestrator {
	if events == nil || bookings == nil || inventory == nil || notifier == nil {
		panic("nil collaborator passed to NewOrchestrator")
	}
	return &Orchestrator{
		events:    events,
		bookings:  bookings,
		inventory: inventory,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the request, reserves inventory for every line item
// (all-or-nothing), persists the booking and runs the payment fast path
// for pay-at-event bookings.  The returned booking is the authoritative
// post-transition state; no follow-up fetch is needed.
func (o *Orchestrator) Create(ctx context.Context, req Request) (*model.Booking, error) {
	evt, err := o.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if evt.Status == model.EventStatusCancelled || evt.Status == model.EventStatusDraft || !evt.StartsAt.After(o.now()) {
		return nil, ErrNotBookable
	}
	if evt.OwnerID == req.UserID {
		return nil, ErrSelfBookingForbidden
	}
	if len(req.Items) == 0 {
		return nil, ErrInvalidQuantity
	}
	// Validate everything before touching the ledger so validation
	// failures never need compensation.
	for _, item := range req.Items {
		if item.Quantity == 0 {
			return nil, ErrInvalidQuantity
		}
		if evt.Category(item.CategoryName) == nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, item.CategoryName)
		}
	}
	if !evt.AcceptsPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentMethod, req.PaymentMethod)
	}

	bookingID := uuid.NewString()
	items := make([]model.BookingItem, 0, len(req.Items))
	total := uint32(0)
	for _, item := range req.Items {
		if _, err := o.inventory.Reserve(ctx, req.EventID, item.CategoryName, item.Quantity, bookingID); err != nil {
			// All-or-nothing: return every unit acquired so far.
			if relErr := o.inventory.ReleaseBooking(ctx, bookingID); relErr != nil {
				o.log.WithError(relErr).WithField("booking_id", bookingID).Error("compensating release failed")
			}
			return nil, err
		}
		// Price captured at reservation time; later category edits do
		// not change this booking's total.
		cat := evt.Category(item.CategoryName)
		items = append(items, model.BookingItem{
			BookingID:      bookingID,
			CategoryName:   item.CategoryName,
			Quantity:       item.Quantity,
			UnitPriceCents: cat.UnitPriceCents,
		})
		total += cat.UnitPriceCents * item.Quantity
	}

	b := &model.Booking{
		ID:               bookingID,
		UserID:           req.UserID,
		EventID:          evt.ID,
		EventTitle:       evt.Title,
		EventStartsAt:    evt.StartsAt,
		Items:            items,
		TotalAmountCents: total,
		PaymentMethod:    req.PaymentMethod,
		PaymentStatus:    model.PaymentStatusPending,
		Status:           model.BookingStatusPending,
		Notes:            req.Notes,
	}
	if err := o.bookings.Create(ctx, b); err != nil {
		if relErr := o.inventory.ReleaseBooking(ctx, bookingID); relErr != nil {
			o.log.WithError(relErr).WithField("booking_id", bookingID).Error("compensating release failed")
		}
		return nil, err
	}

	if req.PaymentMethod == model.PayAtEvent {
		// No receipt step: settle the units first, then flip the
		// status.  The order matters because the expiry sweep skips
		// pay-at-event bookings, so a confirmed booking with
		// still-outstanding units would never be settled by anyone.
		if err := o.inventory.FinalizeBooking(ctx, bookingID); err != nil {
			if _, cErr := o.bookings.UpdateStatus(ctx, bookingID, model.BookingStatusPending, model.BookingStatusCancelled, model.PaymentStatusFailed); cErr != nil {
				o.log.WithError(cErr).WithField("booking_id", bookingID).Error("compensating cancel failed")
			}
			if relErr := o.inventory.ReleaseBooking(ctx, bookingID); relErr != nil {
				o.log.WithError(relErr).WithField("booking_id", bookingID).Error("compensating release failed")
			}
			return nil, err
		}
		ok, err := o.bookings.UpdateStatus(ctx, bookingID, model.BookingStatusPending, model.BookingStatusConfirmed, model.PaymentStatusPending)
		if err != nil || !ok {
			// Units are already finalized; flag it for operator
			// reconciliation since nothing downstream will retry.
			o.log.WithError(err).WithField("booking_id", bookingID).Error("booking confirm failed after units were finalized")
			if err != nil {
				return nil, err
			}
			return nil, repository.ErrConflict
		}
		b.Status = model.BookingStatusConfirmed
		o.publish(ctx, b.UserID, model.NotificationBookingConfirmed,
			"Booking confirmed",
			fmt.Sprintf("Your booking for %q is confirmed. Payment is due at the event.", evt.Title),
			map[string]any{
				"booking_id":         b.ID,
				"event_id":           b.EventID,
				"total_amount_cents": b.TotalAmountCents,
			})
		return b, nil
	}

	o.publish(ctx, b.UserID, model.NotificationPaymentReminder,
		"Payment proof required",
		fmt.Sprintf("Your booking for %q is reserved. Upload your payment proof to confirm it before the hold expires.", evt.Title),
		map[string]any{
			"booking_id":         b.ID,
			"event_id":           b.EventID,
			"total_amount_cents": b.TotalAmountCents,
			"payment_method":     b.PaymentMethod,
		})
	return b, nil
}

// Get returns a booking owned by the given user.
func (o *Orchestrator) Get(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	b, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, repository.ErrForbidden
	}
	return b, nil
}

// ListForUser returns all bookings owned by the given user.
func (o *Orchestrator) ListForUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return o.bookings.ListByUser(ctx, userID)
}

// Cancel is the owner-initiated cancellation of a still-pending
// booking.  The guarded transition keeps it one-shot; the release of
// the booking's reservations is idempotent.
func (o *Orchestrator) Cancel(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	b, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, repository.ErrForbidden
	}
	ok, err := o.bookings.UpdateStatus(ctx, bookingID, model.BookingStatusPending, model.BookingStatusCancelled, model.PaymentStatusFailed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrConflict
	}
	if err := o.inventory.ReleaseBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatusCancelled
	b.PaymentStatus = model.PaymentStatusFailed
	return b, nil
}

func (o *Orchestrator) publish(ctx context.Context, userID string, typ model.NotificationType, title, message string, payload map[string]any) {
	if err := o.notifier.Publish(ctx, userID, typ, title, message, payload); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"type":    typ,
		}).Warn("notification publish failed")
	}
}
