package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eventure/ticketing/internal/model"
)

// Sweeper cancels pending online-payment bookings whose hold window
// expired without a submitted receipt.  It runs on a fixed interval and
// is safe to run from multiple workers: the cancel transition is a
// guarded one-shot update, and releasing an already-released
// reservation is a no-op.
type Sweeper struct {
	bookings  Store
	inventory Inventory
	notifier  Notifier
	holdTTL   time.Duration
	interval  time.Duration
	log       *logrus.Logger
	now       func() time.Time
}

// NewSweeper constructs a Sweeper with the given hold window and sweep
// interval.
func NewSweeper(bookings Store, inventory Inventory, notifier Notifier, holdTTL, interval time.Duration, log *logrus.Logger) *Sweeper {
	if bookings == nil || inventory == nil || notifier == nil {
		panic("nil collaborator passed to NewSweeper")
	}
	return &Sweeper{
		bookings:  bookings,
		inventory: inventory,
		notifier:  notifier,
		holdTTL:   holdTTL,
		interval:  interval,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on the configured interval until the context is
// cancelled.  Intended to be started as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Warn("expiry sweep failed")
			} else if n > 0 {
				s.log.WithField("cancelled", n).Info("expired pending bookings cancelled")
			}
		}
	}
}

// Sweep cancels every expired pending booking once and returns how many
// it cancelled.  CancelExpired re-checks for an unresolved receipt
// inside the guarded update, so a receipt submitted after the candidate
// list was read still saves its booking.  A booking claimed by a
// concurrent worker or fenced by a fresh receipt is skipped silently.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.holdTTL)
	expired, err := s.bookings.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, b := range expired {
		ok, err := s.bookings.CancelExpired(ctx, b.ID)
		if err != nil {
			return cancelled, err
		}
		if !ok {
			continue
		}
		if err := s.inventory.ReleaseBooking(ctx, b.ID); err != nil {
			return cancelled, err
		}
		cancelled++
		if err := s.notifier.Publish(ctx, b.UserID, model.NotificationPaymentReminder,
			"Booking cancelled",
			fmt.Sprintf("Your booking for %q was cancelled: payment window expired.", b.EventTitle),
			map[string]any{
				"booking_id": b.ID,
				"event_id":   b.EventID,
				"reason":     "payment window expired",
			}); err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Warn("expiry notification failed")
		}
	}
	return cancelled, nil
}
