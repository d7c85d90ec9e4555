// Package payment tracks uploaded proof-of-payment receipts from
// submission to a terminal confirmed or rejected state.  The receipt
// state machine is strictly one-directional: pending -> confirmed or
// pending -> rejected, exactly once, never reversed.  Re-submission
// after rejection is a new booking attempt, not a new receipt on the
// old booking, which keeps the transition history append-only.
package payment

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

// ErrStateViolation is returned when a transition finds its subject in
// a non-matching state: confirming a resolved receipt, submitting
// against a non-pending booking, or racing another verifier.  Always a
// stale view or a programming bug, never retried.
var ErrStateViolation = errors.New("state violation")

// ErrDuplicateReceipt is returned when the booking already has an
// unresolved receipt awaiting verification.
var ErrDuplicateReceipt = errors.New("booking already has an unresolved receipt")

// BookingStore is the booking surface the verifier drives.
type BookingStore interface {
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, pay model.PaymentStatus) (bool, error)
}

// EventStore resolves the event for verifier authorization and for the
// organizer contact surfaced on rejection.
type EventStore interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// ReceiptStore persists receipts.  Resolve must be a guarded one-shot
// transition reporting false when the receipt was no longer pending.
type ReceiptStore interface {
	Create(ctx context.Context, rec *model.PaymentReceipt) error
	GetByID(ctx context.Context, id string) (*model.PaymentReceipt, error)
	HasUnresolved(ctx context.Context, bookingID string) (bool, error)
	Resolve(ctx context.Context, id string, to model.ReceiptStatus, verifierID string, notes *string, at time.Time) (bool, error)
}

// Inventory is the ledger surface the verifier drives.
type Inventory interface {
	ReleaseBooking(ctx context.Context, bookingID string) error
	FinalizeBooking(ctx context.Context, bookingID string) error
}

// Notifier is the dispatcher's publish contract.
type Notifier interface {
	Publish(ctx context.Context, userID string, typ model.NotificationType, title, message string, payload map[string]any) error
}

// SubmitRequest carries an attendee's proof-of-payment upload.  The
// proof reference comes from the external file-storage collaborator and
// is passed through opaquely.
type SubmitRequest struct {
	BookingID      string
	UserID         string
	ProofRef       string
	AmountCents    uint32
	PaymentMethod  string
	TransactionRef *string
	Notes          *string
}

// Verifier runs the receipt state machine and its side effects on the
// ledger, the booking and the notification dispatcher.
type Verifier struct {
	bookings  BookingStore
	events    EventStore
	receipts  ReceiptStore
	inventory Inventory
	notifier  Notifier
	log       *logrus.Logger
	now       func() time.Time
}

// NewVerifier constructs a Verifier.  All collaborators must be non-nil.
func NewVerifier(bookings BookingStore, events EventStore, receipts ReceiptStore, inventory Inventory, notifier Notifier, log *logrus.Logger) *Verifier {
	if bookings == nil || events == nil || receipts == nil || inventory == nil || notifier == nil {
		panic("nil collaborator passed to NewVerifier")
	}
	return &Verifier{
		bookings:  bookings,
		events:    events,
		receipts:  receipts,
		inventory: inventory,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a pending receipt for a pending booking.  The booking
// must belong to the submitting user and must not already have an
// unresolved receipt.  The event organizer is notified that a receipt
// awaits verification.
func (v *Verifier) Submit(ctx context.Context, req SubmitRequest) (*model.PaymentReceipt, error) {
	b, err := v.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != req.UserID {
		return nil, repository.ErrForbidden
	}
	if b.Status != model.BookingStatusPending {
		return nil, fmt.Errorf("%w: booking is %s", ErrStateViolation, b.Status)
	}
	unresolved, err := v.receipts.HasUnresolved(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if unresolved {
		return nil, ErrDuplicateReceipt
	}
	rec := &model.PaymentReceipt{
		ID:             uuid.NewString(),
		BookingID:      b.ID,
		EventID:        b.EventID,
		UserID:         req.UserID,
		ProofRef:       req.ProofRef,
		AmountCents:    req.AmountCents,
		PaymentMethod:  req.PaymentMethod,
		TransactionRef: req.TransactionRef,
		Notes:          req.Notes,
		Status:         model.ReceiptStatusPending,
	}
	if err := v.receipts.Create(ctx, rec); err != nil {
		return nil, err
	}
	if evt, err := v.events.GetByID(ctx, b.EventID); err == nil {
		v.publish(ctx, evt.OwnerID, model.NotificationPaymentReceipt,
			"New payment receipt",
			fmt.Sprintf("A payment receipt for %q awaits verification.", b.EventTitle),
			map[string]any{
				"receipt_id":   rec.ID,
				"booking_id":   b.ID,
				"event_id":     b.EventID,
				"amount_cents": rec.AmountCents,
			})
	}
	return rec, nil
}

// Confirm resolves a pending receipt as verified.  The guarded booking
// transition is the first write and the linearization point: it fences
// out a concurrent verifier and the expiry sweeper alike, so a receipt
// is never resolved against a booking that already left the pending
// state.  Once it succeeds the receipt is resolved, the reservation
// finalized and the payer notified.
func (v *Verifier) Confirm(ctx context.Context, receiptID, verifierID string, admin bool, notes *string) (*model.PaymentReceipt, error) {
	rec, err := v.authorize(ctx, receiptID, verifierID, admin)
	if err != nil {
		return nil, err
	}
	now := v.now()
	ok, err := v.bookings.UpdateStatus(ctx, rec.BookingID, model.BookingStatusPending, model.BookingStatusConfirmed, model.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking is no longer pending", ErrStateViolation)
	}
	ok, err = v.receipts.Resolve(ctx, receiptID, model.ReceiptStatusConfirmed, verifierID, notes, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Cannot happen through this state machine: every resolver
		// claims the booking transition first.  Surfaced loudly so an
		// out-of-band write does not pass silently.
		v.log.WithField("receipt_id", receiptID).Error("receipt resolved outside a booking transition")
		return nil, fmt.Errorf("%w: receipt already resolved", ErrStateViolation)
	}
	if err := v.inventory.FinalizeBooking(ctx, rec.BookingID); err != nil {
		return nil, err
	}
	rec.Status = model.ReceiptStatusConfirmed
	rec.VerifiedBy = &verifierID
	rec.VerifiedAt = &now
	rec.VerifierNotes = notes
	v.publish(ctx, rec.UserID, model.NotificationPaymentConfirmed,
		"Payment confirmed",
		"Your payment has been verified and your booking is confirmed.",
		map[string]any{
			"receipt_id": rec.ID,
			"booking_id": rec.BookingID,
			"event_id":   rec.EventID,
		})
	v.publish(ctx, rec.UserID, model.NotificationTicketGenerated,
		"Tickets ready",
		"Your tickets have been generated and are ready for download.",
		map[string]any{
			"booking_id": rec.BookingID,
			"event_id":   rec.EventID,
		})
	return rec, nil
}

// Reject resolves a pending receipt as rejected: the booking is
// cancelled, its reservation released, and the payer notified with the
// verifier's notes plus the organizer contact for recourse.
func (v *Verifier) Reject(ctx context.Context, receiptID, verifierID string, admin bool, notes *string) (*model.PaymentReceipt, error) {
	rec, err := v.authorize(ctx, receiptID, verifierID, admin)
	if err != nil {
		return nil, err
	}
	now := v.now()
	ok, err := v.bookings.UpdateStatus(ctx, rec.BookingID, model.BookingStatusPending, model.BookingStatusCancelled, model.PaymentStatusFailed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking is no longer pending", ErrStateViolation)
	}
	ok, err = v.receipts.Resolve(ctx, receiptID, model.ReceiptStatusRejected, verifierID, notes, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		v.log.WithField("receipt_id", receiptID).Error("receipt resolved outside a booking transition")
		return nil, fmt.Errorf("%w: receipt already resolved", ErrStateViolation)
	}
	if err := v.inventory.ReleaseBooking(ctx, rec.BookingID); err != nil {
		return nil, err
	}
	rec.Status = model.ReceiptStatusRejected
	rec.VerifiedBy = &verifierID
	rec.VerifiedAt = &now
	rec.VerifierNotes = notes
	payload := map[string]any{
		"receipt_id": rec.ID,
		"booking_id": rec.BookingID,
		"event_id":   rec.EventID,
	}
	message := "Your payment proof was rejected and the booking was cancelled."
	if notes != nil {
		payload["verifier_notes"] = *notes
	}
	if evt, err := v.events.GetByID(ctx, rec.EventID); err == nil {
		payload["organizer_name"] = evt.OwnerName
		payload["organizer_contact"] = evt.OwnerContact
		message = fmt.Sprintf("%s Contact %s (%s) if you believe this is a mistake.", message, evt.OwnerName, evt.OwnerContact)
	}
	v.publish(ctx, rec.UserID, model.NotificationPaymentRejected, "Payment rejected", message, payload)
	return rec, nil
}

// authorize loads the receipt and checks that the caller may resolve
// it: the event owner or an admin.
func (v *Verifier) authorize(ctx context.Context, receiptID, verifierID string, admin bool) (*model.PaymentReceipt, error) {
	rec, err := v.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if !admin {
		evt, err := v.events.GetByID(ctx, rec.EventID)
		if err != nil {
			return nil, err
		}
		if evt.OwnerID != verifierID {
			return nil, repository.ErrForbidden
		}
	}
	return rec, nil
}

func (v *Verifier) publish(ctx context.Context, userID string, typ model.NotificationType, title, message string, payload map[string]any) {
	if err := v.notifier.Publish(ctx, userID, typ, title, message, payload); err != nil {
		v.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"type":    typ,
		}).Warn("notification publish failed")
	}
}
