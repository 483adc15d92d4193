package runtime

import (
	"context"
	"guide-chat/contract"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(context.Context, event.Event) error {
	return nil
}

func TestRegistry_Subscribe_KeepsOrder(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	presence, journal := Sink{name: "presence"}, Sink{name: "journal"}

	// When two subscribers register the same type
	registry.Subscribe("presence", presence, []event.Type{event.OnlineUsersType})
	registry.Subscribe("journal", journal, event.AllTypes())

	// Then both receive it in subscription order
	req.Equal([]contract.EventSink{presence, journal}, registry.SinksFor(event.OnlineUsersType))
	req.Equal([]contract.EventSink{journal}, registry.SinksFor(event.NewMessageType))
}

func TestRegistry_Subscribe_SameIDTwiceReplaces(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first, second := Sink{name: "first"}, Sink{name: "second"}

	registry.Subscribe("thread", first, []event.Type{event.NewMessageType})
	registry.Subscribe("thread", second, []event.Type{event.NewMessageType})

	req.Equal([]contract.EventSink{second}, registry.SinksFor(event.NewMessageType))
}

func TestRegistry_Unsubscribe(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	thread, directory := Sink{name: "thread"}, Sink{name: "directory"}
	registry.Subscribe("thread", thread, []event.Type{event.NewMessageType})
	registry.Subscribe("directory", directory, []event.Type{event.NewMessageType, event.ConversationUpdateType})

	registry.Unsubscribe("thread", []event.Type{event.NewMessageType})
	req.Equal([]contract.EventSink{directory}, registry.SinksFor(event.NewMessageType))

	registry.Unsubscribe("directory", []event.Type{event.NewMessageType, event.ConversationUpdateType})
	req.Empty(registry.SinksFor(event.NewMessageType))
	req.Empty(registry.subscriptions)
}

func TestBus_PublishAfterClose(t *testing.T) {
	req := require.New(t)
	bus := NewBus(1)
	ctx := context.Background()

	req.NoError(bus.Publish(ctx, event.NewNotificationCount(event.FromPush, 1)))
	received := <-bus.Events()
	req.Equal(event.NotificationCountType, received.Type)

	bus.Close()
	req.ErrorIs(bus.Publish(ctx, event.NewNotificationCount(event.FromPush, 2)), errors.ErrSessionClosed)
}

func TestBus_PublishRespectsContext(t *testing.T) {
	req := require.New(t)
	bus := NewBus(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := bus.Publish(ctx, event.NewNotificationCount(event.FromPush, 1))
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestBus_CloseReleasesBlockedPublisher(t *testing.T) {
	req := require.New(t)
	bus := NewBus(0)

	// Given a publisher blocked on a full bus with no deadline
	errs := make(chan error, 1)
	go func() {
		errs <- bus.Publish(context.Background(), event.NewNotificationCount(event.FromPush, 1))
	}()

	// When the bus is closed
	closed := make(chan struct{})
	go func() {
		bus.Close()
		close(closed)
	}()

	// Then Close returns and the publisher is released
	select {
	case <-closed:
	case <-time.After(time.Second):
		req.Fail("Close blocked on a pending publisher")
	}
	select {
	case err := <-errs:
		req.ErrorIs(err, errors.ErrSessionClosed)
	case <-time.After(time.Second):
		req.Fail("publisher still blocked after Close")
	}
	bus.Close()
}
