// Package sink adapts bus events to the entry points of the state stores.
// Fetched and pushed data reach the stores through the same sinks.
package sink

import (
	"context"
	"fmt"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"guide-chat/projection"
	"log/slog"
)

type PresenceSink struct {
	tracker *projection.PresenceTracker
}

func NewPresenceSink(tracker *projection.PresenceTracker) *PresenceSink {
	return &PresenceSink{tracker: tracker}
}

func (s *PresenceSink) Consume(_ context.Context, e event.Event) error {
	switch p := e.Payload.(type) {
	case event.OnlineUsers:
		s.tracker.ApplySnapshot(p.IDs)
		return nil
	default:
		return invalidPayload(e)
	}
}

// DirectorySink keeps conversation activity current from message and
// conversation pushes. A stale reference is already handled by a reload.
type DirectorySink struct {
	log       *slog.Logger
	directory *projection.ConversationDirectory
}

func NewDirectorySink(log *slog.Logger, directory *projection.ConversationDirectory) *DirectorySink {
	return &DirectorySink{log: log, directory: directory}
}

func (s *DirectorySink) Consume(ctx context.Context, e event.Event) error {
	var err error
	switch p := e.Payload.(type) {
	case event.ConversationUpdated:
		err = s.directory.ApplyConversationUpdate(ctx, p)
	case event.MessageReceived:
		err = s.directory.ApplyMessage(ctx, p.Message)
	default:
		return invalidPayload(e)
	}
	if errors.Is(err, errors.ErrStaleReference) {
		s.log.Debug("Stale conversation reference", "type", e.Type, "error", err)
		return nil
	}
	return err
}

type ThreadSink struct {
	thread *projection.MessageThread
}

func NewThreadSink(thread *projection.MessageThread) *ThreadSink {
	return &ThreadSink{thread: thread}
}

func (s *ThreadSink) Consume(_ context.Context, e event.Event) error {
	switch p := e.Payload.(type) {
	case event.MessageReceived:
		s.thread.ApplyMessage(p.Message)
		return nil
	default:
		return invalidPayload(e)
	}
}

type NotificationSink struct {
	counter *projection.NotificationCounter
}

func NewNotificationSink(counter *projection.NotificationCounter) *NotificationSink {
	return &NotificationSink{counter: counter}
}

func (s *NotificationSink) Consume(_ context.Context, e event.Event) error {
	switch p := e.Payload.(type) {
	case event.NotificationReceived:
		s.counter.ApplyNotification(p.Notification)
		return nil
	case event.NotificationCountChanged:
		s.counter.ApplyNotificationCount(p.Count)
		return nil
	default:
		return invalidPayload(e)
	}
}

func invalidPayload(e event.Event) error {
	return fmt.Errorf("%w: %s carries %T", errors.ErrInvalidPayload, e.Type, e.Payload)
}
