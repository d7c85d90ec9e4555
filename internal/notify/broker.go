// Package notify contains the notification dispatcher and the channel
// broker.  The dispatcher owns durability (the notification row is
// written before any delivery attempt); the broker owns live fan-out
// and replay and is reached only through the dispatcher's publish
// contract or the realtime connection handler.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eventure/ticketing/internal/model"
)

// subscriberBuffer bounds the per-user delivery channel.  A slow or
// disconnected client drops live messages instead of blocking the
// publisher; the durable log remains the catch-up mechanism.
const subscriberBuffer = 64

// ReplayStore is the read side of the durable notification log used to
// serve replay requests.
type ReplayStore interface {
	ListSince(ctx context.Context, userID string, since time.Time) ([]model.Notification, error)
}

// Subscription is one user's live delivery channel.  C is closed when
// the subscription is replaced by a newer connection or cancelled.
type Subscription struct {
	C      <-chan model.Notification
	userID string
	ch     chan model.Notification
}

// Broker maintains at most one logical channel per connected user and
// fans persisted notifications out to it.  Send never blocks.
type Broker struct {
	mu    sync.Mutex
	subs  map[string]*Subscription
	store ReplayStore
	log   *logrus.Logger
}

// NewBroker returns a Broker serving replay from the given store.
func NewBroker(store ReplayStore, log *logrus.Logger) *Broker {
	return &Broker{
		subs:  make(map[string]*Subscription),
		store: store,
		log:   log,
	}
}

// Subscribe opens the user's channel.  A previous subscription for the
// same user is closed and replaced; the newest connection wins.
func (b *Broker) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		userID: userID,
		ch:     make(chan model.Notification, subscriberBuffer),
	}
	sub.C = sub.ch
	b.mu.Lock()
	if old, ok := b.subs[userID]; ok {
		close(old.ch)
	}
	b.subs[userID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe closes the subscription if it is still the user's current
// one.  A subscription already replaced by a newer connection was
// closed by Subscribe and is left alone.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if current, ok := b.subs[sub.userID]; ok && current == sub {
		delete(b.subs, sub.userID)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Send delivers a notification to the target user's channel if one is
// open.  Delivery is fire-and-forget: no channel or a full buffer means
// the message is dropped and the client catches up via replay.
//
// The send stays under the mutex: Subscribe and Unsubscribe close the
// channel while holding it, so sending outside the lock could race a
// reconnect and hit a closed channel.  The select cannot block.
func (b *Broker) Send(n model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[n.UserID]
	if !ok {
		return
	}
	select {
	case sub.ch <- n:
	default:
		b.log.WithFields(logrus.Fields{
			"user_id":         n.UserID,
			"notification_id": n.ID,
		}).Warn("subscriber buffer full, dropping live delivery")
	}
}

// Replay returns every notification for the user created strictly after
// the client's last-acknowledged timestamp, in creation order.  This is
// the only replay mechanism; reconciliation of live and replayed copies
// happens client-side by notification id.
func (b *Broker) Replay(ctx context.Context, userID string, since time.Time) ([]model.Notification, error) {
	return b.store.ListSince(ctx, userID, since)
}
