package runtime

import (
	"context"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"sync"
)

// Bus is the single inbound queue of the session. Fetch and push producers
// publish on it, the fanout worker drains it in receipt order.
type Bus struct {
	events    chan event.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func NewBus(bufferSize int) *Bus {
	return &Bus{events: make(chan event.Event, bufferSize), closed: make(chan struct{})}
}

// Publish blocks while the buffer is full, until ctx is done or the bus is closed.
func (b *Bus) Publish(ctx context.Context, e event.Event) error {
	select {
	case <-b.closed:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case b.events <- e:
		return nil
	case <-b.closed:
		return errors.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Events() <-chan event.Event {
	return b.events
}

// Close rejects later publications and releases blocked publishers.
// Queued events are left to the consumer.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}
