package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventure/ticketing/internal/model"
	"github.com/eventure/ticketing/internal/repository"
)

type fakeBookings struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
}

func (f *fakeBookings) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, errors.New("booking not found")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookings) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, pay model.PaymentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.PaymentStatus = pay
	return true, nil
}

type fakeEvents struct {
	events map[string]*model.Event
}

func (f *fakeEvents) GetByID(ctx context.Context, id string) (*model.Event, error) {
	evt, ok := f.events[id]
	if !ok {
		return nil, errors.New("event not found")
	}
	cp := *evt
	return &cp, nil
}

type fakeReceipts struct {
	mu       sync.Mutex
	receipts map[string]*model.PaymentReceipt
}

func (f *fakeReceipts) Create(ctx context.Context, rec *model.PaymentReceipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	cp.CreatedAt = time.Now().UTC()
	f.receipts[rec.ID] = &cp
	return nil
}

func (f *fakeReceipts) GetByID(ctx context.Context, id string) (*model.PaymentReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.receipts[id]
	if !ok {
		return nil, errors.New("receipt not found")
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeReceipts) HasUnresolved(ctx context.Context, bookingID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.receipts {
		if rec.BookingID == bookingID && rec.Status == model.ReceiptStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReceipts) Resolve(ctx context.Context, id string, to model.ReceiptStatus, verifierID string, notes *string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.receipts[id]
	if !ok || rec.Status != model.ReceiptStatusPending {
		return false, nil
	}
	rec.Status = to
	rec.VerifiedBy = &verifierID
	rec.VerifiedAt = &at
	rec.VerifierNotes = notes
	return true, nil
}

type fakeInventory struct {
	mu        sync.Mutex
	released  []string
	finalized []string
}

func (f *fakeInventory) ReleaseBooking(ctx context.Context, bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, bookingID)
	return nil
}

func (f *fakeInventory) FinalizeBooking(ctx context.Context, bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, bookingID)
	return nil
}

type sentNotification struct {
	UserID  string
	Type    model.NotificationType
	Message string
	Payload map[string]any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Publish(ctx context.Context, userID string, typ model.NotificationType, title, message string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{UserID: userID, Type: typ, Message: message, Payload: payload})
	return nil
}

func (f *fakeNotifier) byType(typ model.NotificationType) []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentNotification
	for _, n := range f.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	bookings  *fakeBookings
	events    *fakeEvents
	receipts  *fakeReceipts
	inventory *fakeInventory
	notifier  *fakeNotifier
	verifier  *Verifier
}

func newFixture() *fixture {
	f := &fixture{
		bookings: &fakeBookings{bookings: map[string]*model.Booking{
			"bk-1": {
				ID:            "bk-1",
				UserID:        "user-1",
				EventID:       "evt-1",
				EventTitle:    "Summer Concert",
				PaymentMethod: "bank_transfer",
				PaymentStatus: model.PaymentStatusPending,
				Status:        model.BookingStatusPending,
			},
		}},
		events: &fakeEvents{events: map[string]*model.Event{
			"evt-1": {
				ID:           "evt-1",
				OwnerID:      "organizer-1",
				OwnerName:    "Ada",
				OwnerContact: "ada@example.com",
				Title:        "Summer Concert",
			},
		}},
		receipts:  &fakeReceipts{receipts: make(map[string]*model.PaymentReceipt)},
		inventory: &fakeInventory{},
		notifier:  &fakeNotifier{},
	}
	f.verifier = NewVerifier(f.bookings, f.events, f.receipts, f.inventory, f.notifier, logrus.New())
	return f
}

func (f *fixture) submit(t *testing.T) *model.PaymentReceipt {
	t.Helper()
	rec, err := f.verifier.Submit(context.Background(), SubmitRequest{
		BookingID:     "bk-1",
		UserID:        "user-1",
		ProofRef:      "uploads/proof-1.jpg",
		AmountCents:   4000,
		PaymentMethod: "bank_transfer",
	})
	require.NoError(t, err)
	return rec
}

func TestSubmitCreatesPendingReceiptAndNotifiesOrganizer(t *testing.T) {
	f := newFixture()
	rec := f.submit(t)

	assert.Equal(t, model.ReceiptStatusPending, rec.Status)
	assert.Equal(t, "bk-1", rec.BookingID)
	assert.Equal(t, "evt-1", rec.EventID)

	alerts := f.notifier.byType(model.NotificationPaymentReceipt)
	require.Len(t, alerts, 1)
	assert.Equal(t, "organizer-1", alerts[0].UserID)
	assert.Equal(t, rec.ID, alerts[0].Payload["receipt_id"])
}

func TestSubmitRequiresBookingOwnership(t *testing.T) {
	f := newFixture()
	_, err := f.verifier.Submit(context.Background(), SubmitRequest{
		BookingID: "bk-1",
		UserID:    "user-2",
		ProofRef:  "uploads/proof.jpg",
	})
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestSubmitRequiresPendingBooking(t *testing.T) {
	f := newFixture()
	f.bookings.bookings["bk-1"].Status = model.BookingStatusConfirmed

	_, err := f.verifier.Submit(context.Background(), SubmitRequest{
		BookingID: "bk-1",
		UserID:    "user-1",
		ProofRef:  "uploads/proof.jpg",
	})
	assert.ErrorIs(t, err, ErrStateViolation)
}

func TestSubmitRejectsSecondUnresolvedReceipt(t *testing.T) {
	f := newFixture()
	f.submit(t)

	_, err := f.verifier.Submit(context.Background(), SubmitRequest{
		BookingID: "bk-1",
		UserID:    "user-1",
		ProofRef:  "uploads/proof-2.jpg",
	})
	assert.ErrorIs(t, err, ErrDuplicateReceipt)
}

func TestConfirmFinalizesBookingAndNotifiesPayer(t *testing.T) {
	f := newFixture()
	rec := f.submit(t)
	ctx := context.Background()

	confirmed, err := f.verifier.Confirm(ctx, rec.ID, "organizer-1", false, nil)
	require.NoError(t, err)

	assert.Equal(t, model.ReceiptStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.VerifiedBy)
	assert.Equal(t, "organizer-1", *confirmed.VerifiedBy)

	assert.Equal(t, []string{"bk-1"}, f.inventory.finalized)
	b, err := f.bookings.GetByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, b.Status)
	assert.Equal(t, model.PaymentStatusCompleted, b.PaymentStatus)

	require.Len(t, f.notifier.byType(model.NotificationPaymentConfirmed), 1)
	tickets := f.notifier.byType(model.NotificationTicketGenerated)
	require.Len(t, tickets, 1)
	assert.Equal(t, "user-1", tickets[0].UserID)
}

func TestConfirmByAdminWhoIsNotOwner(t *testing.T) {
	f := newFixture()
	rec := f.submit(t)

	_, err := f.verifier.Confirm(context.Background(), rec.ID, "admin-9", true, nil)
	assert.NoError(t, err)
}

func TestConfirmByStrangerForbidden(t *testing.T) {
	f := newFixture()
	rec := f.submit(t)

	_, err := f.verifier.Confirm(context.Background(), rec.ID, "user-2", false, nil)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	// Nothing moved.
	stored, getErr := f.receipts.GetByID(context.Background(), rec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ReceiptStatusPending, stored.Status)
	assert.Empty(t, f.inventory.finalized)
}

func TestRejectReleasesBookingWithRecourseContact(t *testing.T) {
	f := newFixture()
	rec := f.submit(t)
	ctx := context.Background()
	notes := "amount does not match the transfer"

	rejected, err := f.verifier.Reject(ctx, rec.ID, "organizer-1", false, &notes)
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusRejected, rejected.Status)

	assert.Equal(t, []string{"bk-1"}, f.inventory.released)
	b, err := f.bookings.GetByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, b.Status)
	assert.Equal(t, model.PaymentStatusFailed, b.PaymentStatus)

	alerts := f.notifier.byType(model.NotificationPaymentRejected)
	require.Len(t, alerts, 1)
	assert.Equal(t, "user-1", alerts[0].UserID)
	assert.Equal(t, notes, alerts[0].Payload["verifier_notes"])
	assert.Equal(t, "Ada", alerts[0].Payload["organizer_name"])
	assert.Equal(t, "ada@example.com", alerts[0].Payload["organizer_contact"])
	assert.Contains(t, alerts[0].Message, "ada@example.com")
}

func TestConfirmAfterExpirySweepLeavesReceiptPending(t *testing.T) {
	f := newFixture()
	rec := f.submit(t)
	ctx := context.Background()

	// The expiry sweeper got there first: booking cancelled, units
	// released.  A later confirm must fence on the booking transition
	// and leave the receipt untouched rather than attach a confirmed
	// receipt to a cancelled booking.
	f.bookings.bookings["bk-1"].Status = model.BookingStatusCancelled
	f.bookings.bookings["bk-1"].PaymentStatus = model.PaymentStatusFailed

	_, err := f.verifier.Confirm(ctx, rec.ID, "organizer-1", false, nil)
	assert.ErrorIs(t, err, ErrStateViolation)

	stored, getErr := f.receipts.GetByID(ctx, rec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ReceiptStatusPending, stored.Status)
	assert.Empty(t, f.inventory.finalized)
	assert.Empty(t, f.notifier.byType(model.NotificationPaymentConfirmed))
}

func TestResolveIsOneShot(t *testing.T) {
	f := newFixture()
	rec := f.submit(t)
	ctx := context.Background()

	_, err := f.verifier.Confirm(ctx, rec.ID, "organizer-1", false, nil)
	require.NoError(t, err)

	_, err = f.verifier.Confirm(ctx, rec.ID, "organizer-1", false, nil)
	assert.ErrorIs(t, err, ErrStateViolation)
	_, err = f.verifier.Reject(ctx, rec.ID, "organizer-1", false, nil)
	assert.ErrorIs(t, err, ErrStateViolation)

	// The losing transitions had no side effects.
	assert.Equal(t, []string{"bk-1"}, f.inventory.finalized)
	assert.Empty(t, f.inventory.released)
}
