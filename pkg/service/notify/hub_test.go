package notify_test

import (
	"context"
	"sync"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/service/notify"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	received []model.ChangeMessage
	sendErr  error
	closed   bool
}

func (f *fakeSubscriber) Send(ctx context.Context, msg model.ChangeMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.received = append(f.received, msg)
	return nil
}

func (f *fakeSubscriber) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func (f *fakeSubscriber) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newMessage(t *testing.T, tenantID types.TenantID) model.ChangeMessage {
	t.Helper()
	msg, err := model.NewChangeMessage(types.MessageEventCreated, tenantID, "event-1", nil)
	gt.NoError(t, err).Required()
	return msg
}

func TestHub(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to every subscriber of the tenant", func(t *testing.T) {
		hub := notify.NewHub()
		a := &fakeSubscriber{}
		b := &fakeSubscriber{}
		hub.Register("family-1", a)
		hub.Register("family-1", b)

		hub.Publish(ctx, newMessage(t, "family-1"))

		gt.Number(t, a.count()).Equal(1)
		gt.Number(t, b.count()).Equal(1)
	})

	t.Run("never crosses tenant boundaries", func(t *testing.T) {
		hub := notify.NewHub()
		mine := &fakeSubscriber{}
		other := &fakeSubscriber{}
		hub.Register("family-1", mine)
		hub.Register("family-2", other)

		hub.Publish(ctx, newMessage(t, "family-1"))

		gt.Number(t, mine.count()).Equal(1)
		gt.Number(t, other.count()).Equal(0)
	})

	t.Run("publish without subscribers is a no-op", func(t *testing.T) {
		hub := notify.NewHub()
		hub.Publish(ctx, newMessage(t, "family-1"))
	})

	t.Run("failing subscriber is dropped, the rest still deliver", func(t *testing.T) {
		hub := notify.NewHub()
		broken := &fakeSubscriber{sendErr: goerr.New("connection reset")}
		healthy := &fakeSubscriber{}
		hub.Register("family-1", broken)
		hub.Register("family-1", healthy)

		hub.Publish(ctx, newMessage(t, "family-1"))

		gt.Number(t, healthy.count()).Equal(1)
		gt.B(t, broken.isClosed()).True()
		gt.Number(t, hub.SubscriberCount("family-1")).Equal(1)

		// The dropped subscriber receives nothing afterwards.
		hub.Publish(ctx, newMessage(t, "family-1"))
		gt.Number(t, healthy.count()).Equal(2)
		gt.Number(t, broken.count()).Equal(0)
	})

	t.Run("unregister is idempotent", func(t *testing.T) {
		hub := notify.NewHub()
		sub := &fakeSubscriber{}
		hub.Register("family-1", sub)
		hub.Unregister("family-1", sub)
		hub.Unregister("family-1", sub)
		gt.Number(t, hub.SubscriberCount("family-1")).Equal(0)
	})

	t.Run("shutdown closes every subscriber", func(t *testing.T) {
		hub := notify.NewHub()
		a := &fakeSubscriber{}
		b := &fakeSubscriber{}
		hub.Register("family-1", a)
		hub.Register("family-2", b)

		hub.Shutdown("server shutting down")

		gt.B(t, a.isClosed()).True()
		gt.B(t, b.isClosed()).True()
		gt.Number(t, hub.SubscriberCount("family-1")).Equal(0)
	})
}
