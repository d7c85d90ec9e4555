package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventure/ticketing/internal/model"
	"github.com/eventure/ticketing/internal/queue"
)

// Store is the write side of the durable notification log.
type Store interface {
	Create(ctx context.Context, n *model.Notification) error
}

// WirePublisher pushes persisted notifications onto the message broker
// for delivery by the queue consumer.  Implemented by queue.Publisher.
type WirePublisher interface {
	PublishCreated(ctx context.Context, ev queue.NotificationCreated) error
}

// Dispatcher is the single entry point business logic uses to emit
// notifications.  It persists the row first, then attempts live
// delivery; a failed delivery never rolls back the persisted row and
// never propagates to the caller.
type Dispatcher struct {
	store  Store
	wire   WirePublisher
	broker *Broker
	log    *logrus.Logger
}

// NewDispatcher wires the dispatcher to its collaborators.  wire may be
// nil, in which case live delivery goes straight to the broker.
func NewDispatcher(store Store, wire WirePublisher, broker *Broker, log *logrus.Logger) *Dispatcher {
	if store == nil || broker == nil {
		panic("nil collaborator passed to notify.NewDispatcher")
	}
	return &Dispatcher{store: store, wire: wire, broker: broker, log: log}
}

// Publish durably records a notification for the user and then fans it
// out.  Only the persistence step can fail the call; everything after
// the row is written is best effort, with the durable log serving as
// the catch-up mechanism for clients that missed the live copy.
func (d *Dispatcher) Publish(ctx context.Context, userID string, typ model.NotificationType, title, message string, payload map[string]any) error {
	n := model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.Create(ctx, &n); err != nil {
		return err
	}
	if d.wire != nil {
		if err := d.wire.PublishCreated(ctx, queue.NewNotificationCreated(n)); err == nil {
			return nil
		}
		d.log.WithFields(logrus.Fields{
			"notification_id": n.ID,
			"user_id":         userID,
		}).Warn("wire publish failed, delivering directly")
	}
	d.broker.Send(n)
	return nil
}
