package booking

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventure/ticketing/internal/ledger"
	"github.com/eventure/ticketing/internal/model"
)

func newSweeperFixture(t *testing.T) (*fixture, *Sweeper) {
	t.Helper()
	f := newFixture(testEvent())
	s := NewSweeper(f.bookings, ledger.New(f.inventory), f.notifier, 30*time.Minute, time.Minute, logrus.New())
	return f, s
}

func TestSweepCancelsExpiredHolds(t *testing.T) {
	f, s := newSweeperFixture(t)
	ctx := context.Background()

	b, err := f.orch.Create(ctx, Request{
		EventID:       "evt-1",
		UserID:        "user-1",
		PaymentMethod: "bank_transfer",
		Items:         []ItemRequest{{CategoryName: "general", Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, uint32(2), f.inventory.reservedFor("general"))

	// Age the booking past the hold window.
	f.bookings.mu.Lock()
	f.bookings.bookings[b.ID].CreatedAt = time.Now().UTC().Add(-time.Hour)
	f.bookings.mu.Unlock()

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	swept, err := f.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, swept.Status)
	assert.Equal(t, model.PaymentStatusFailed, swept.PaymentStatus)
	assert.Equal(t, uint32(0), f.inventory.reservedFor("general"))

	expiries := f.notifier.byType(model.NotificationPaymentReminder)
	// One reminder from booking creation, one from expiry.
	require.Len(t, expiries, 2)
	assert.Equal(t, "payment window expired", expiries[1].Payload["reason"])
}

func TestSweepLeavesFreshHoldsAlone(t *testing.T) {
	f, s := newSweeperFixture(t)
	ctx := context.Background()

	b, err := f.orch.Create(ctx, Request{
		EventID:       "evt-1",
		UserID:        "user-1",
		PaymentMethod: "bank_transfer",
		Items:         []ItemRequest{{CategoryName: "general", Quantity: 1}},
	})
	require.NoError(t, err)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	fresh, err := f.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, fresh.Status)
	assert.Equal(t, uint32(1), f.inventory.reservedFor("general"))
}

func TestSweepSkipsPayAtEventBookings(t *testing.T) {
	f, s := newSweeperFixture(t)
	ctx := context.Background()

	b, err := f.orch.Create(ctx, Request{
		EventID:       "evt-1",
		UserID:        "user-1",
		PaymentMethod: model.PayAtEvent,
		Items:         []ItemRequest{{CategoryName: "general", Quantity: 1}},
	})
	require.NoError(t, err)

	f.bookings.mu.Lock()
	f.bookings.bookings[b.ID].CreatedAt = time.Now().UTC().Add(-time.Hour)
	f.bookings.mu.Unlock()

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepSparesBookingReceiptedAfterListing(t *testing.T) {
	f, s := newSweeperFixture(t)
	ctx := context.Background()

	b, err := f.orch.Create(ctx, Request{
		EventID:       "evt-1",
		UserID:        "user-1",
		PaymentMethod: "bank_transfer",
		Items:         []ItemRequest{{CategoryName: "general", Quantity: 2}},
	})
	require.NoError(t, err)

	// Aged past the hold window, so the candidate list includes it, but
	// a receipt lands before the cancel.  The guarded cancel must fence
	// on the receipt rather than tear down a booking under verification.
	f.bookings.mu.Lock()
	f.bookings.bookings[b.ID].CreatedAt = time.Now().UTC().Add(-time.Hour)
	f.bookings.receipted[b.ID] = true
	f.bookings.mu.Unlock()

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	kept, err := f.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, kept.Status)
	assert.Equal(t, uint32(2), f.inventory.reservedFor("general"))
	// Only the reminder from booking creation, no expiry notice.
	assert.Len(t, f.notifier.byType(model.NotificationPaymentReminder), 1)
}

func TestSweepIsIdempotent(t *testing.T) {
	f, s := newSweeperFixture(t)
	ctx := context.Background()

	b, err := f.orch.Create(ctx, Request{
		EventID:       "evt-1",
		UserID:        "user-1",
		PaymentMethod: "bank_transfer",
		Items:         []ItemRequest{{CategoryName: "general", Quantity: 1}},
	})
	require.NoError(t, err)

	f.bookings.mu.Lock()
	f.bookings.bookings[b.ID].CreatedAt = time.Now().UTC().Add(-time.Hour)
	f.bookings.mu.Unlock()

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// A second pass finds nothing to claim.
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint32(0), f.inventory.reservedFor("general"))
}
