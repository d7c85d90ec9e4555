package notify

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventure/ticketing/internal/model"
)

// memLog is an in-memory durable notification log used as both the
// dispatcher's Store and the broker's ReplayStore.
type memLog struct {
	mu   sync.Mutex
	rows []model.Notification
	fail bool
}

func (m *memLog) Create(ctx context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return assert.AnError
	}
	m.rows = append(m.rows, *n)
	return nil
}

func (m *memLog) ListSince(ctx context.Context, userID string, since time.Time) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.rows {
		if n.UserID == userID && n.CreatedAt.After(since) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func note(id, userID string, at time.Time) model.Notification {
	return model.Notification{
		ID:        id,
		UserID:    userID,
		Type:      model.NotificationBookingConfirmed,
		Title:     "t",
		Message:   "m",
		CreatedAt: at,
	}
}

func TestSendReachesSubscriber(t *testing.T) {
	b := NewBroker(&memLog{}, logrus.New())
	sub := b.Subscribe("user-1")
	defer b.Unsubscribe(sub)

	b.Send(note("n-1", "user-1", time.Now()))

	select {
	case got := <-sub.C:
		assert.Equal(t, "n-1", got.ID)
	default:
		t.Fatal("expected a buffered delivery")
	}
}

func TestSendToUnknownUserIsDropped(t *testing.T) {
	b := NewBroker(&memLog{}, logrus.New())
	// Must not panic or block.
	b.Send(note("n-1", "nobody", time.Now()))
}

func TestSendNeverBlocksOnFullBuffer(t *testing.T) {
	b := NewBroker(&memLog{}, logrus.New())
	sub := b.Subscribe("user-1")
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			b.Send(note("n", "user-1", time.Now()))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a full subscriber buffer")
	}
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestSendDuringReconnectChurnDoesNotPanic(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	b := NewBroker(&memLog{}, log)

	// Senders race subscribers replacing (and closing) the same user's
	// channel.  Send must never hit a just-closed channel.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					b.Send(note("n", "user-1", time.Now()))
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					sub := b.Subscribe("user-1")
					b.Unsubscribe(sub)
				}
			}
		}()
	}

	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestNewestConnectionWins(t *testing.T) {
	b := NewBroker(&memLog{}, logrus.New())
	old := b.Subscribe("user-1")
	newer := b.Subscribe("user-1")
	defer b.Unsubscribe(newer)

	// The displaced channel is closed so its reader loop exits.
	_, open := <-old.C
	assert.False(t, open)

	b.Send(note("n-1", "user-1", time.Now()))
	select {
	case got := <-newer.C:
		assert.Equal(t, "n-1", got.ID)
	default:
		t.Fatal("newest subscription missed the delivery")
	}
}

func TestUnsubscribeLeavesNewerSubscriptionAlone(t *testing.T) {
	b := NewBroker(&memLog{}, logrus.New())
	old := b.Subscribe("user-1")
	newer := b.Subscribe("user-1")

	// The stale handler unsubscribing its displaced subscription must
	// not tear down the live one.
	b.Unsubscribe(old)
	b.Send(note("n-1", "user-1", time.Now()))

	select {
	case got := <-newer.C:
		assert.Equal(t, "n-1", got.ID)
	default:
		t.Fatal("live subscription was torn down by a stale unsubscribe")
	}
	b.Unsubscribe(newer)
}

func TestReplayReturnsRowsStrictlyAfterTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log := &memLog{rows: []model.Notification{
		note("n-1", "user-1", base),
		note("n-2", "user-1", base.Add(time.Second)),
		note("n-3", "user-1", base.Add(2*time.Second)),
		note("n-x", "user-2", base.Add(3*time.Second)),
	}}
	b := NewBroker(log, logrus.New())

	rows, err := b.Replay(context.Background(), "user-1", base)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// The row at exactly the acked timestamp is not re-sent.
	assert.Equal(t, "n-2", rows[0].ID)
	assert.Equal(t, "n-3", rows[1].ID)
}

func TestReplayOrdersEqualTimestampsByID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log := &memLog{rows: []model.Notification{
		note("b", "user-1", at),
		note("a", "user-1", at),
	}}
	b := NewBroker(log, logrus.New())

	rows, err := b.Replay(context.Background(), "user-1", at.Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "b", rows[1].ID)
}
